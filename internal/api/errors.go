package api

import (
	"errors"
	"fmt"
)

// Kind classifies a request failure for the caller's retry decision.
type Kind int

const (
	// KindTransport covers network failures, timeouts and 5xx responses.
	// Surfaced directly, never retried automatically.
	KindTransport Kind = iota
	// KindAuthorization is the server's generic signal that the supplied
	// credential is missing, expired or invalid (HTTP 401). Intercepted
	// exactly once by the session manager for a refresh-and-retry.
	KindAuthorization
	// KindValidation covers malformed or conflicting input, e.g. a slot
	// already taken or a rating out of range.
	KindValidation
	// KindPaymentGateway covers verification rejections: signature or
	// amount mismatch, expired order. Terminal for the payment attempt.
	KindPaymentGateway
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindPaymentGateway:
		return "payment_gateway"
	default:
		return "unknown"
	}
}

// Error is a classified API failure. Message carries the server-provided
// human-readable reason when one was present.
type Error struct {
	Kind    Kind
	Status  int // HTTP status, 0 for transport-level failures
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %s (http %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("api: %s: %s", e.Kind, e.Message)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// IsAuthorization reports whether err is a credential rejection.
func IsAuthorization(err error) bool { return IsKind(err, KindAuthorization) }

// IsTransport reports whether err is a network or server-side failure.
func IsTransport(err error) bool { return IsKind(err, KindTransport) }

// IsValidation reports whether err is an input rejection.
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// IsPaymentGateway reports whether err is a payment verification rejection.
func IsPaymentGateway(err error) bool { return IsKind(err, KindPaymentGateway) }
