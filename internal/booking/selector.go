package booking

import (
	"errors"

	"servifind/internal/models"
)

// ErrInvalidSelection is returned when a selection event names a date or
// slot the current service does not offer. The prior selection is kept.
var ErrInvalidSelection = errors.New("invalid selection")

// Selection is the validated (service, date, slot) tuple the orchestrator
// consumes, plus the provider the service belongs to. Transient: rebuilt
// whenever a higher-level field changes.
type Selection struct {
	ProviderID string
	Service    models.Service
	Date       string
	Slot       string
}

// Complete reports whether all three fields are set and the slot is still a
// member of the chosen date's slot set.
func (s Selection) Complete() bool {
	if s.ProviderID == "" || s.Service.ID == "" || s.Date == "" || s.Slot == "" {
		return false
	}
	slots, ok := models.SlotsFor(s.Service.Availability, s.Date)
	if !ok {
		return false
	}
	for _, slot := range slots {
		if slot == s.Slot {
			return true
		}
	}
	return false
}

// Selector is a pure reducer narrowing service, then date, then slot. It
// performs no network calls and never mutates the service data it is given.
type Selector struct {
	sel Selection
}

// NewSelector creates an empty selector.
func NewSelector() *Selector {
	return &Selector{}
}

// SelectService picks a provider's service, resetting date and slot.
func (s *Selector) SelectService(providerID string, service models.Service) {
	s.sel = Selection{ProviderID: providerID, Service: service}
}

// SelectDate picks a date offered by the current service, resetting the
// slot. A date with no availability entry is rejected with no state change.
func (s *Selector) SelectDate(date string) error {
	if s.sel.Service.ID == "" {
		return ErrInvalidSelection
	}
	if _, ok := models.SlotsFor(s.sel.Service.Availability, date); !ok {
		return ErrInvalidSelection
	}
	s.sel.Date = date
	s.sel.Slot = ""
	return nil
}

// SelectSlot picks a slot from the currently selected (service, date) pair.
// A slot outside that set is rejected and the prior selection is unchanged.
func (s *Selector) SelectSlot(slot string) error {
	if s.sel.Service.ID == "" || s.sel.Date == "" {
		return ErrInvalidSelection
	}
	slots, _ := models.SlotsFor(s.sel.Service.Availability, s.sel.Date)
	for _, candidate := range slots {
		if candidate == slot {
			s.sel.Slot = slot
			return nil
		}
	}
	return ErrInvalidSelection
}

// Reload replaces the service snapshot with fresher data for the same
// service, keeping date and slot. IsComplete then re-judges the selection,
// catching a slot the provider has withdrawn since it was picked.
func (s *Selector) Reload(service models.Service) {
	if service.ID != s.sel.Service.ID {
		return
	}
	s.sel.Service = service
}

// Selection returns the current selection snapshot.
func (s *Selector) Selection() Selection {
	return s.sel
}

// IsComplete reports whether service, date and slot are all set and the
// slot is still valid against the current service snapshot.
func (s *Selector) IsComplete() bool {
	return s.sel.Complete()
}
