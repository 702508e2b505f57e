package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"servifind/internal/api"
	"servifind/internal/events"
	"servifind/internal/metrics"
	"servifind/internal/models"
	"servifind/internal/payment"
	"servifind/internal/session"
)

var (
	// ErrIncompleteSelection rejects Start before any network call when the
	// selection is missing a field or its slot is no longer offered.
	ErrIncompleteSelection = errors.New("selection is incomplete")
	// ErrNoSession rejects Start before any network call when the session
	// is not valid.
	ErrNoSession = errors.New("no active session")
	// ErrWrongState rejects an operation issued outside the state it is
	// meaningful in.
	ErrWrongState = errors.New("operation not allowed in current state")
)

// Session is the slice of the session manager the orchestrator needs.
type Session interface {
	api.Doer
	State() session.State
	CurrentUser() *models.User
}

// Failure is the terminal reason attached to the Failed state. Kind lets the
// caller tell "payment attempted but unconfirmed" from transport trouble.
type Failure struct {
	Kind    api.Kind
	Message string
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Orchestrator drives one booking through reservation, external payment
// authorization and server-side verification. Events are applied strictly
// in arrival order; completions that arrive for a state the machine has
// already left are discarded, never replayed as errors.
type Orchestrator struct {
	sess    Session
	gateway payment.Gateway
	bus     *events.Bus
	logger  zerolog.Logger
	fsm     *FSM

	mu        sync.Mutex
	state     State
	selection Selection
	booking   *models.Booking
	order     *api.PaymentOrder
	failure   *Failure
}

// NewOrchestrator creates an orchestrator in the Idle state. One instance
// drives one booking; start a new instance for a new reservation.
func NewOrchestrator(sess Session, gateway payment.Gateway, bus *events.Bus, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		sess:    sess,
		gateway: gateway,
		bus:     bus,
		logger:  logger.With().Str("component", "booking").Logger(),
		fsm:     NewFSM(),
		state:   StateIdle,
	}
}

// State returns the current flow state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Booking returns a copy of the reservation, or nil before one exists.
func (o *Orchestrator) Booking() *models.Booking {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.booking == nil {
		return nil
	}
	b := *o.booking
	return &b
}

// Failure returns the terminal reason, or nil unless the state is Failed.
func (o *Orchestrator) Failure() *Failure {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failure == nil {
		return nil
	}
	f := *o.failure
	return &f
}

// Start reserves the selected slot and hands off to the payment surface.
// Precondition violations are rejected synchronously with no network call.
func (o *Orchestrator) Start(ctx context.Context, sel Selection) error {
	if !sel.Complete() {
		return ErrIncompleteSelection
	}
	if o.sess.State() != session.StateValid {
		return ErrNoSession
	}

	o.mu.Lock()
	if !o.fsm.CanTransition(o.state, StateReserving) {
		o.mu.Unlock()
		return ErrWrongState
	}
	o.state = StateReserving
	o.selection = sel
	o.mu.Unlock()

	booking, err := api.CreateBooking(ctx, o.sess, api.CreateBookingRequest{
		ProviderID: sel.ProviderID,
		ServiceID:  sel.Service.ID,
		Date:       sel.Date,
		Slot:       sel.Slot,
	})
	if err != nil {
		metrics.IncBookingCreated("failed")
		o.fail(StateReserving, err)
		return fmt.Errorf("create booking: %w", err)
	}
	metrics.IncBookingCreated("created")

	o.mu.Lock()
	o.booking = booking
	o.mu.Unlock()
	o.logger.Info().Str("booking_id", booking.ID).Msg("reservation created")

	if err := o.openPayment(ctx, StateReserving); err != nil {
		return err
	}
	return nil
}

// Retry re-attempts payment for an already reserved booking after a
// cancellation. The reservation is not recreated.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateCancelled || o.booking == nil {
		o.mu.Unlock()
		return ErrWrongState
	}
	o.mu.Unlock()

	return o.openPayment(ctx, StateCancelled)
}

// openPayment requests a gateway order and opens the authorization surface.
// from names the state the flow is currently in; on order failure the flow
// goes to Failed when reserving, or stays Cancelled to allow another retry.
func (o *Orchestrator) openPayment(ctx context.Context, from State) error {
	o.mu.Lock()
	amount := o.selection.Service.Price
	bookingID := o.booking.ID
	user := o.sess.CurrentUser()
	o.mu.Unlock()

	order, err := api.CreatePaymentOrder(ctx, o.sess, amount, bookingID)
	if err != nil {
		if from == StateReserving {
			o.fail(StateReserving, err)
		}
		return fmt.Errorf("create payment order: %w", err)
	}

	o.mu.Lock()
	if !o.fsm.CanTransition(o.state, StateAwaitingPayment) {
		o.mu.Unlock()
		return ErrWrongState
	}
	o.state = StateAwaitingPayment
	o.order = order
	o.mu.Unlock()

	gworder := payment.Order{
		OrderID:  order.OrderID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  payment.NewReceipt(),
	}
	if user != nil {
		gworder.CustomerName = user.Name
		gworder.CustomerEmail = user.Email
	}

	cb := payment.Callbacks{
		OnAuthorized: func(res payment.Result) { o.HandleAuthorized(ctx, res) },
		OnDismissed:  o.HandleDismissed,
	}
	if err := o.gateway.Open(ctx, gworder, cb); err != nil {
		// The surface never opened; treat like a dismissal so the booking
		// stays re-attemptable.
		o.HandleDismissed()
		return fmt.Errorf("open payment surface: %w", err)
	}
	return nil
}

// HandleAuthorized applies a successful gateway authorization: the flow
// moves to Verifying and the identifiers are checked server-side. Stale
// authorizations (the machine already left AwaitingPayment) are discarded.
func (o *Orchestrator) HandleAuthorized(ctx context.Context, res payment.Result) {
	o.mu.Lock()
	if o.state != StateAwaitingPayment {
		o.logger.Debug().Str("state", string(o.state)).Msg("discarding stale authorization")
		o.mu.Unlock()
		return
	}
	o.state = StateVerifying
	bookingID := o.booking.ID
	providerID := o.booking.ProviderID
	o.mu.Unlock()

	_, err := api.VerifyPayment(ctx, o.sess, api.VerifyPaymentRequest{
		OrderID:          res.OrderID,
		GatewayPaymentID: res.PaymentID,
		GatewaySignature: res.Signature,
		BookingID:        bookingID,
	})
	if err != nil {
		metrics.IncPayment("failed")
		o.fail(StateVerifying, err)
		return
	}

	o.mu.Lock()
	if o.state != StateVerifying {
		o.logger.Debug().Str("state", string(o.state)).Msg("discarding stale verification")
		o.mu.Unlock()
		return
	}
	o.state = StateCompleted
	confirmed := *o.booking
	confirmed.PaymentStatus = models.PaymentCompleted
	o.booking = &confirmed
	o.mu.Unlock()

	metrics.IncPayment("completed")
	o.logger.Info().Str("booking_id", bookingID).Msg("payment verified")
	if o.bus != nil {
		o.bus.Publish(events.Event{Type: events.TypeBookingCompleted, Payload: providerID})
	}
}

// HandleDismissed applies a gateway dismissal: the flow moves to Cancelled
// and the booking stays re-attemptable. Stale dismissals are discarded.
func (o *Orchestrator) HandleDismissed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateAwaitingPayment {
		o.logger.Debug().Str("state", string(o.state)).Msg("discarding stale dismissal")
		return
	}
	o.state = StateCancelled
	metrics.IncPayment("cancelled")
	o.logger.Info().Msg("payment cancelled by user")
}

// Cancel stops the payment interaction. It is meaningful only while
// awaiting payment; anywhere else it is a no-op with no state change and no
// network call. It never cancels an in-flight request, it only stops the
// machine from acting on a later inconsistent resolution.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateAwaitingPayment {
		return false
	}
	o.state = StateCancelled
	metrics.IncPayment("cancelled")
	o.logger.Info().Msg("payment cancelled")
	return true
}

// fail records a terminal failure if the machine is still in the state the
// failing operation started from.
func (o *Orchestrator) fail(from State, err error) {
	var apiErr *api.Error
	failure := Failure{Kind: api.KindTransport, Message: err.Error()}
	if errors.As(err, &apiErr) {
		failure = Failure{Kind: apiErr.Kind, Message: apiErr.Message}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != from || !o.fsm.CanTransition(o.state, StateFailed) {
		o.logger.Debug().Str("state", string(o.state)).Msg("discarding stale failure")
		return
	}
	o.state = StateFailed
	o.failure = &failure
	o.logger.Warn().Str("kind", failure.Kind.String()).Str("reason", failure.Message).Msg("booking flow failed")
}
