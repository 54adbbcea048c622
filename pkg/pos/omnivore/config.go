package omnivore

import "time"

// Config represents the configuration for the Omnivore client
type Config struct {
	APIKey  string
	BaseURL string

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration

	// MaxAttempts bounds reads retried on network errors, 429 and 5xx
	MaxAttempts int

	// RetryBaseDelay grows linearly with each attempt
	RetryBaseDelay time.Duration

	// PaymentType is the tender type posted with payments
	PaymentType string
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIKey == "" || c.BaseURL == "" {
		return ErrInvalidConfig
	}
	return nil
}
