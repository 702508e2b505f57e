package booking

import "testing"

func TestFSMTransitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name        string
		from        State
		to          State
		shouldAllow bool
	}{
		{"idle to reserving", StateIdle, StateReserving, true},
		{"reserving to awaiting payment", StateReserving, StateAwaitingPayment, true},
		{"reserving to failed", StateReserving, StateFailed, true},
		{"awaiting payment to verifying", StateAwaitingPayment, StateVerifying, true},
		{"awaiting payment to cancelled", StateAwaitingPayment, StateCancelled, true},
		{"verifying to completed", StateVerifying, StateCompleted, true},
		{"verifying to failed", StateVerifying, StateFailed, true},
		// Payment re-attempt against the same booking
		{"cancelled back to awaiting payment", StateCancelled, StateAwaitingPayment, true},
		// Invalid transitions
		{"idle to completed", StateIdle, StateCompleted, false},
		{"idle to awaiting payment", StateIdle, StateAwaitingPayment, false},
		{"cancelled to completed", StateCancelled, StateCompleted, false},
		{"cancelled to verifying", StateCancelled, StateVerifying, false},
		{"completed anywhere", StateCompleted, StateIdle, false},
		{"failed anywhere", StateFailed, StateAwaitingPayment, false},
		{"verifying to cancelled", StateVerifying, StateCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed := fsm.CanTransition(tt.from, tt.to)
			if allowed != tt.shouldAllow {
				t.Errorf("transition %s -> %s: expected allowed=%v, got %v",
					tt.from, tt.to, tt.shouldAllow, allowed)
			}
		})
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StateIdle, StateReserving, StateAwaitingPayment, StateVerifying, StateCancelled} {
		if s.Terminal() {
			t.Errorf("state %s should not be terminal", s)
		}
	}
	for _, s := range []State{StateCompleted, StateFailed} {
		if !s.Terminal() {
			t.Errorf("state %s should be terminal", s)
		}
	}
}
