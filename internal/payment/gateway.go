// Package payment defines the narrow capability boundary to the external
// payment-authorization surface. Concrete adapters (hosted checkout, test
// fakes) live with their callers; the orchestrator depends only on Gateway.
package payment

import (
	"context"

	"github.com/google/uuid"
)

// Order is the gateway order handed to the authorization surface.
type Order struct {
	OrderID  string
	Amount   int64
	Currency string
	Receipt  string
	// Prefill hints shown by the checkout surface.
	CustomerName  string
	CustomerEmail string
}

// Result carries the gateway-issued identifiers after a successful
// authorization. They are opaque to the client; only the verification
// endpoint can judge them.
type Result struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Callbacks receive the gateway's asynchronous outcome. Exactly one of the
// two is invoked per Open, at most once.
type Callbacks struct {
	// OnAuthorized fires when the user completed authorization.
	OnAuthorized func(Result)
	// OnDismissed fires when the surface was closed without authorizing.
	OnDismissed func()
}

// Gateway opens the payment-authorization surface for an order. Open must
// not assume the surface resolves synchronously; the outcome arrives through
// the callbacks, possibly after Open has returned.
type Gateway interface {
	Open(ctx context.Context, order Order, cb Callbacks) error
}

// NewReceipt returns a fresh receipt identifier for an order.
func NewReceipt() string {
	return "rcpt_" + uuid.NewString()
}
