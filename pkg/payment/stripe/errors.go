package stripe

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when required configuration is missing
	ErrInvalidConfig = errors.New("invalid stripe configuration")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrNetworkError is returned when Stripe could not be reached or gave no
	// parseable answer once retries ran out
	ErrNetworkError = errors.New("network error")
)

const (
	ErrorTypeCard        = "card_error"
	ErrorTypeIdempotency = "idempotency_error"
	ErrorTypeInvalid     = "invalid_request_error"
	ErrorTypeAPI         = "api_error"
)

// Error is a structured Stripe API error.
type Error struct {
	StatusCode      int    `json:"-"`
	Type            string `json:"type"`
	Code            string `json:"code"`
	DeclineCode     string `json:"decline_code"`
	Message         string `json:"message"`
	PaymentIntentID string `json:"-"`
}

func (e *Error) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("stripe %s (%d): %s [%s/%s]", e.Type, e.StatusCode, e.Message, e.Code, e.DeclineCode)
	}
	return fmt.Sprintf("stripe %s (%d): %s [%s]", e.Type, e.StatusCode, e.Message, e.Code)
}

// IsIdempotencyError reports whether err is Stripe rejecting a reused
// idempotency key sent with different parameters.
func IsIdempotencyError(err error) bool {
	var stripeErr *Error
	return errors.As(err, &stripeErr) && stripeErr.Type == ErrorTypeIdempotency
}

// AsError extracts a structured Stripe error from err.
func AsError(err error) (*Error, bool) {
	var stripeErr *Error
	if errors.As(err, &stripeErr) {
		return stripeErr, true
	}
	return nil, false
}
