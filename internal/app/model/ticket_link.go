package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type TicketLinkStatus string

const (
	TicketLinkPending TicketLinkStatus = "pending" // SMS sent, not verified
	TicketLinkOpen    TicketLinkStatus = "open"    // PIN verified, dining
	TicketLinkClosed  TicketLinkStatus = "closed"  // paid, immutable
)

// TicketLink binds one member to one POS ticket at one restaurant for a
// single dining session. Money columns are written once, at close.
type TicketLink struct {
	ID           uint             `gorm:"primarykey" json:"id"`
	MemberID     uint             `gorm:"not null;index:idx_ticket_links_triple" json:"member_id"`
	RestaurantID uint             `gorm:"not null;index:idx_ticket_links_triple" json:"restaurant_id"`
	TicketID     string           `gorm:"not null;index:idx_ticket_links_triple" json:"ticket_id"`
	TicketNumber string           `json:"ticket_number"`
	Status       TicketLinkStatus `gorm:"type:varchar(10);not null;index" json:"status"`
	ServerName   string           `json:"server_name"`

	LastKnownTotalCents int64 `json:"last_known_total_cents"`

	SMSSentAt    *time.Time `json:"sms_sent_at,omitempty"`
	SMSMessageID string     `json:"-"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	SettlingAt   *time.Time `json:"-"`

	SubtotalCents  int64 `json:"subtotal_cents"`
	TaxCents       int64 `json:"tax_cents"`
	DiscountsCents int64 `json:"discounts_cents"`
	TotalCents     int64 `json:"total_cents"`
	TipCents       int64 `json:"tip_cents"`
	PaidCents      int64 `json:"paid_cents"`

	ItemsJSON       datatypes.JSON `json:"items,omitempty"`
	RawTicketJSON   datatypes.JSON `json:"-"`
	POSRef          string         `gorm:"column:pos_ref" json:"pos_ref,omitempty"`
	PaymentIntentID string         `json:"payment_intent_id,omitempty"`

	// Charges refunded after a failed POS post, space separated. A replayed
	// idempotent charge returning one of these must not settle the tab.
	RefundedIntentIDs string `gorm:"type:text" json:"-"`

	MerchantName  string `json:"merchant_name,omitempty"`
	MerchantAddr1 string `json:"merchant_addr1,omitempty"`
	MerchantAddr2 string `json:"merchant_addr2,omitempty"`
	MerchantCity  string `json:"merchant_city,omitempty"`
	MerchantState string `json:"merchant_state,omitempty"`
	MerchantZip   string `json:"merchant_zip,omitempty"`
	MerchantPhone string `json:"merchant_phone,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Member     *Member     `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	Restaurant *Restaurant `gorm:"foreignKey:RestaurantID" json:"restaurant,omitempty"`
}

func (TicketLink) TableName() string {
	return "ticket_links"
}

// WasRefunded reports whether the payment intent was refunded against this
// link.
func (l *TicketLink) WasRefunded(paymentIntentID string) bool {
	if paymentIntentID == "" {
		return false
	}
	for _, id := range strings.Fields(l.RefundedIntentIDs) {
		if id == paymentIntentID {
			return true
		}
	}
	return false
}
