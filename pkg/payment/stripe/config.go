package stripe

import "time"

// Config represents the configuration for the Stripe client
type Config struct {
	// SecretKey is the platform account secret key (sk_...)
	SecretKey string

	// BaseURL defaults to https://api.stripe.com; a trailing /v1 is dropped
	BaseURL string

	// Currency is the ISO currency used for charges, lower case
	Currency string

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration

	// MaxAttempts bounds tries per request, first one included. Network
	// errors, 409s and 5xx answers are retried with the same idempotency key.
	MaxAttempts int
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.SecretKey == "" || c.BaseURL == "" || c.Currency == "" {
		return ErrInvalidConfig
	}
	return nil
}
