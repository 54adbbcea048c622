package omnivore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ikkim/tabline-backend/pkg/money"
)

// Client talks to the Omnivore POS REST API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new Omnivore client with the given configuration
func NewClient(config Config) (*Client, error) {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 300 * time.Millisecond
	}
	if config.PaymentType == "" {
		config.PaymentType = "cash"
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// PaymentType returns the configured tender type
func (c *Client) PaymentType() string {
	return c.config.PaymentType
}

// GetTicket fetches a single ticket.
func (c *Client) GetTicket(ctx context.Context, locationID, ticketID string) (Ticket, error) {
	path := fmt.Sprintf("/locations/%s/tickets/%s", url.PathEscape(locationID), url.PathEscape(ticketID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeObject(body)
}

// GetTicketItems fetches the line items of a ticket.
func (c *Client) GetTicketItems(ctx context.Context, locationID, ticketID string) ([]map[string]interface{}, error) {
	path := fmt.Sprintf("/locations/%s/tickets/%s/items", url.PathEscape(locationID), url.PathEscape(ticketID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	obj, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	return embeddedList(obj, "items"), nil
}

// ListOpenTickets returns every ticket currently open at the location.
func (c *Client) ListOpenTickets(ctx context.Context, locationID string) ([]Ticket, error) {
	path := fmt.Sprintf("/locations/%s/tickets?where=%s", url.PathEscape(locationID), url.QueryEscape("eq(open,true)"))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	obj, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	tickets := embeddedList(obj, "tickets")
	open := make([]Ticket, 0, len(tickets))
	for _, t := range tickets {
		if money.IsOpen(t) {
			open = append(open, t)
		}
	}
	return open, nil
}

// PostPayment records a payment against a ticket. It is never retried here
// since the POS has no idempotency guarantee.
func (c *Client) PostPayment(ctx context.Context, locationID, ticketID string, req PaymentRequest) (*PaymentReceipt, error) {
	if req.Type == "" {
		req.Type = c.config.PaymentType
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	path := fmt.Sprintf("/locations/%s/tickets/%s/payments", url.PathEscape(locationID), url.PathEscape(ticketID))
	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	obj, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	receipt := &PaymentReceipt{Raw: obj, Amount: req.Amount, Tip: req.Tip}
	if id, ok := obj["id"]; ok {
		receipt.ID = fmt.Sprint(id)
	}
	return receipt, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		body, err := c.do(ctx, http.MethodGet, path, nil)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.config.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(time.Duration(attempt) * c.config.RetryBaseDelay):
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Api-Key", c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrNetworkError, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
}

func retryable(err error) bool {
	if errors.Is(err, ErrNetworkError) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

func decodeObject(body []byte) (map[string]interface{}, error) {
	obj, err := money.DecodeObject(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return obj, nil
}

func embeddedList(obj map[string]interface{}, key string) []map[string]interface{} {
	embedded, _ := obj["_embedded"].(map[string]interface{})
	list, _ := embedded[key].([]interface{})
	out := make([]map[string]interface{}, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
