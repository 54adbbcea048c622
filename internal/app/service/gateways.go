package service

import (
	"context"
	"time"

	"github.com/ikkim/tabline-backend/pkg/payment/stripe"
	"github.com/ikkim/tabline-backend/pkg/pos/omnivore"
	"github.com/ikkim/tabline-backend/pkg/sms"
)

// POSGateway is the subset of the POS client the services call.
// *omnivore.Client satisfies it.
type POSGateway interface {
	GetTicket(ctx context.Context, locationID, ticketID string) (omnivore.Ticket, error)
	GetTicketItems(ctx context.Context, locationID, ticketID string) ([]map[string]interface{}, error)
	ListOpenTickets(ctx context.Context, locationID string) ([]omnivore.Ticket, error)
	PostPayment(ctx context.Context, locationID, ticketID string, req omnivore.PaymentRequest) (*omnivore.PaymentReceipt, error)
}

// PaymentGateway charges saved cards and refunds them. *stripe.Client
// satisfies it.
type PaymentGateway interface {
	Currency() string
	CreateCharge(ctx context.Context, params stripe.ChargeParams) (*stripe.PaymentIntent, error)
	Refund(ctx context.Context, params stripe.RefundParams) (*stripe.Refund, error)
}

// Messenger never returns an error; callers check Result.OK.
type Messenger interface {
	Send(ctx context.Context, to, body string) sms.Result
}

// VerificationLedger tracks burned verification tokens and failed PIN
// attempts per token id.
type VerificationLedger interface {
	Burn(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
	IsBurned(ctx context.Context, tokenID string) (bool, error)
	IncrAttempts(ctx context.Context, tokenID string, ttl time.Duration) (int64, error)
	Attempts(ctx context.Context, tokenID string) (int64, error)
}

// TokenBlacklist revokes staff access tokens before they expire.
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, token string, expiry time.Duration) error
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
}

// Ticket link events pushed to staff dashboards.
const (
	EventLinkPending = "ticket_link.pending"
	EventLinkOpened  = "ticket_link.opened"
	EventLinkClosed  = "ticket_link.closed"
)

// EventPublisher fans events out to a restaurant's dashboards.
type EventPublisher interface {
	PublishToRestaurant(restaurantID uint, eventType string, data interface{})
}

type noopPublisher struct{}

func (noopPublisher) PublishToRestaurant(uint, string, interface{}) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
