package omnivore

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig = errors.New("invalid omnivore configuration")
	ErrNotFound      = errors.New("ticket not found")
	ErrUnauthorized  = errors.New("unauthorized: invalid API key")
	ErrNetworkError  = errors.New("network error")
)

// APIError carries a non-2xx response the client did not map to a sentinel.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("omnivore api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
