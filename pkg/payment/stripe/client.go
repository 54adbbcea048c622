package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// Client charges saved cards and refunds them through stripe-go. Network
// failures, 409s and 5xx answers are retried by the SDK with the same
// idempotency key.
type Client struct {
	config Config
	api    *client.API
}

// NewClient creates a new Stripe client with the given configuration
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = stripego.APIURL
	}
	config.BaseURL = strings.TrimSuffix(strings.TrimRight(config.BaseURL, "/"), "/v1")
	if config.Currency == "" {
		config.Currency = "usd"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	backend := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		HTTPClient:        &http.Client{Timeout: config.Timeout},
		URL:               stripego.String(config.BaseURL),
		MaxNetworkRetries: stripego.Int64(int64(config.MaxAttempts - 1)),
		LeveledLogger:     leveledLogger{},
		EnableTelemetry:   stripego.Bool(false),
	})

	api := &client.API{}
	api.Init(config.SecretKey, &stripego.Backends{API: backend, Connect: backend, Uploads: backend})

	return &Client{config: config, api: api}, nil
}

// Currency returns the configured charge currency
func (c *Client) Currency() string {
	return c.config.Currency
}

// CreateCharge confirms an off-session PaymentIntent. Any intent that does
// not end up succeeded is returned as *Error.
func (c *Client) CreateCharge(ctx context.Context, params ChargeParams) (*PaymentIntent, error) {
	if params.CustomerID == "" || params.PaymentMethodID == "" || params.AmountCents <= 0 {
		return nil, ErrInvalidRequest
	}
	currency := params.Currency
	if currency == "" {
		currency = c.config.Currency
	}

	p := &stripego.PaymentIntentParams{
		Amount:        stripego.Int64(params.AmountCents),
		Currency:      stripego.String(currency),
		Customer:      stripego.String(params.CustomerID),
		PaymentMethod: stripego.String(params.PaymentMethodID),
		OffSession:    stripego.Bool(true),
		Confirm:       stripego.Bool(true),
	}
	if params.Description != "" {
		p.Description = stripego.String(params.Description)
	}
	if params.DestinationAccount != "" {
		p.TransferData = &stripego.PaymentIntentTransferDataParams{
			Destination: stripego.String(params.DestinationAccount),
		}
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}
	p.Context = ctx

	pi, err := c.api.PaymentIntents.New(p)
	if err != nil {
		return nil, convertError(err)
	}

	intent := toPaymentIntent(pi)
	if intent.Status != PaymentIntentSucceeded {
		return intent, &Error{
			StatusCode:      http.StatusOK,
			Type:            ErrorTypeCard,
			Code:            "payment_intent_" + intent.Status,
			Message:         "payment intent did not succeed",
			PaymentIntentID: intent.ID,
		}
	}
	return intent, nil
}

// Refund refunds a PaymentIntent in full.
func (c *Client) Refund(ctx context.Context, params RefundParams) (*Refund, error) {
	if params.PaymentIntentID == "" {
		return nil, ErrInvalidRequest
	}

	p := &stripego.RefundParams{
		PaymentIntent: stripego.String(params.PaymentIntentID),
	}
	if params.Reason != "" {
		p.Reason = stripego.String(params.Reason)
	}
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}
	p.Context = ctx

	r, err := c.api.Refunds.New(p)
	if err != nil {
		return nil, convertError(err)
	}

	refund := &Refund{
		ID:     r.ID,
		Amount: r.Amount,
		Status: string(r.Status),
		Reason: string(r.Reason),
	}
	if r.PaymentIntent != nil {
		refund.PaymentIntent = r.PaymentIntent.ID
	}
	return refund, nil
}

func toPaymentIntent(pi *stripego.PaymentIntent) *PaymentIntent {
	intent := &PaymentIntent{
		ID:       pi.ID,
		Object:   pi.Object,
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Status:   string(pi.Status),
		Metadata: pi.Metadata,
	}
	if pi.Customer != nil {
		intent.Customer = pi.Customer.ID
	}
	return intent
}

// convertError maps an SDK error onto *Error. Anything that is not an API
// answer means Stripe gave nothing usable after the SDK's retries.
func convertError(err error) error {
	var apiErr *stripego.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	out := &Error{
		StatusCode:  apiErr.HTTPStatusCode,
		Type:        string(apiErr.Type),
		Code:        string(apiErr.Code),
		DeclineCode: string(apiErr.DeclineCode),
		Message:     apiErr.Msg,
	}
	if apiErr.PaymentIntent != nil {
		out.PaymentIntentID = apiErr.PaymentIntent.ID
	}
	return out
}
