package models

// Immutable update helpers for service availability editing. Every function
// returns a fresh slice and leaves its input untouched, so a snapshot handed
// to an in-flight request never changes underneath it.

// UpsertDate ensures an availability entry exists for date, preserving the
// existing entry order and appending new dates at the end.
func UpsertDate(availability []Availability, date string) []Availability {
	for _, a := range availability {
		if a.Date == date {
			return cloneAvailability(availability)
		}
	}
	out := cloneAvailability(availability)
	return append(out, Availability{Date: date})
}

// AddSlot adds a slot label to the given date, creating the date entry if
// needed. Duplicate slots are ignored.
func AddSlot(availability []Availability, date, slot string) []Availability {
	out := UpsertDate(availability, date)
	for i := range out {
		if out[i].Date != date {
			continue
		}
		for _, s := range out[i].Slots {
			if s == slot {
				return out
			}
		}
		out[i].Slots = append(out[i].Slots, slot)
		return out
	}
	return out
}

// RemoveSlot removes a slot label from the given date. Removing the last
// slot keeps the (empty) date entry; use RemoveDate to drop it.
func RemoveSlot(availability []Availability, date, slot string) []Availability {
	out := cloneAvailability(availability)
	for i := range out {
		if out[i].Date != date {
			continue
		}
		kept := out[i].Slots[:0:0]
		for _, s := range out[i].Slots {
			if s != slot {
				kept = append(kept, s)
			}
		}
		out[i].Slots = kept
	}
	return out
}

// RemoveDate drops the availability entry for a date entirely.
func RemoveDate(availability []Availability, date string) []Availability {
	out := make([]Availability, 0, len(availability))
	for _, a := range availability {
		if a.Date != date {
			out = append(out, cloneEntry(a))
		}
	}
	return out
}

func cloneAvailability(availability []Availability) []Availability {
	out := make([]Availability, len(availability))
	for i, a := range availability {
		out[i] = cloneEntry(a)
	}
	return out
}

func cloneEntry(a Availability) Availability {
	slots := make([]string, len(a.Slots))
	copy(slots, a.Slots)
	return Availability{Date: a.Date, Slots: slots}
}
