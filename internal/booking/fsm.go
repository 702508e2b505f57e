// Package booking holds the slot selection reducer and the booking-to-payment
// orchestration state machine.
package booking

// State represents the current state of a booking-to-payment flow.
type State string

const (
	StateIdle            State = "idle"
	StateReserving       State = "reserving"
	StateAwaitingPayment State = "awaiting_payment"
	StateVerifying       State = "verifying"
	StateCompleted       State = "completed"
	StateCancelled       State = "cancelled"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transitions can leave the state.
// Cancelled is deliberately not terminal: a payment re-attempt against the
// same booking is allowed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// FSM manages allowed transitions for the booking flow.
type FSM struct {
	transitions map[State][]State
}

// NewFSM creates an FSM with the booking flow's transition table.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateIdle:            {StateReserving},
			StateReserving:       {StateAwaitingPayment, StateFailed},
			StateAwaitingPayment: {StateVerifying, StateCancelled},
			StateVerifying:       {StateCompleted, StateFailed},
			StateCancelled:       {StateAwaitingPayment},
		},
	}
}

// CanTransition checks if the transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
