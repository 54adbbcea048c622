package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	"github.com/ikkim/tabline-backend/pkg/logger"
	"github.com/ikkim/tabline-backend/pkg/money"
)

var ErrReceiptNotFound = errors.New("receipt not found")

type Merchant struct {
	Name  string `json:"name"`
	Addr1 string `json:"addr1,omitempty"`
	Addr2 string `json:"addr2,omitempty"`
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
	Zip   string `json:"zip,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// LiveReceipt is the running bill for an open tab. Stale is set when the POS
// could not be reached and only the total from open time is known.
type LiveReceipt struct {
	TicketLinkID     uint         `json:"ticket_link_id"`
	TicketID         string       `json:"ticket_id"`
	TicketNumber     string       `json:"ticket_number"`
	ServerName       string       `json:"server_name"`
	Merchant         Merchant     `json:"merchant"`
	SubtotalCents    int64        `json:"subtotal_cents"`
	TaxCents         int64        `json:"tax_cents"`
	DiscountsCents   int64        `json:"discounts_cents"`
	TotalCents       int64        `json:"total_cents"`
	DueCents         int64        `json:"due_cents"`
	ReportedDueCents int64        `json:"reported_due_cents"`
	Items            []money.Item `json:"items"`
	Stale            bool         `json:"stale"`
}

// ClosedReceipt is rendered from the snapshot written at close.
type ClosedReceipt struct {
	TicketLinkID    uint         `json:"ticket_link_id"`
	TicketNumber    string       `json:"ticket_number"`
	ServerName      string       `json:"server_name"`
	Merchant        Merchant     `json:"merchant"`
	SubtotalCents   int64        `json:"subtotal_cents"`
	TaxCents        int64        `json:"tax_cents"`
	DiscountsCents  int64        `json:"discounts_cents"`
	TotalCents      int64        `json:"total_cents"`
	TipCents        int64        `json:"tip_cents"`
	PaidCents       int64        `json:"paid_cents"`
	Items           []money.Item `json:"items"`
	PaymentIntentID string       `json:"payment_intent_id"`
	ClosedAt        *time.Time   `json:"closed_at"`
}

type ReceiptSummary struct {
	TicketLinkID uint       `json:"ticket_link_id"`
	MerchantName string     `json:"merchant_name"`
	TicketNumber string     `json:"ticket_number"`
	PaidCents    int64      `json:"paid_cents"`
	ClosedAt     *time.Time `json:"closed_at"`
}

type ReceiptService interface {
	Live(ctx context.Context, memberNumber string) (*LiveReceipt, error)
	Closed(memberNumber string, linkID uint) (*ClosedReceipt, error)
	History(memberNumber string) ([]ReceiptSummary, error)
}

type receiptService struct {
	memberRepo repository.MemberRepository
	linkRepo   repository.TicketLinkRepository
	pos        POSGateway
	priceMode  money.PriceMode
}

func NewReceiptService(
	memberRepo repository.MemberRepository,
	linkRepo repository.TicketLinkRepository,
	pos POSGateway,
	priceMode money.PriceMode,
) ReceiptService {
	return &receiptService{
		memberRepo: memberRepo,
		linkRepo:   linkRepo,
		pos:        pos,
		priceMode:  priceMode,
	}
}

func (s *receiptService) member(number string) (*model.Member, error) {
	member, err := s.memberRepo.FindByNumber(number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

func (s *receiptService) Live(ctx context.Context, memberNumber string) (*LiveReceipt, error) {
	member, err := s.member(memberNumber)
	if err != nil {
		return nil, err
	}
	link, err := s.linkRepo.FindOpenByMember(member.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveTicket
		}
		return nil, err
	}

	receipt := &LiveReceipt{
		TicketLinkID: link.ID,
		TicketID:     link.TicketID,
		TicketNumber: link.TicketNumber,
		ServerName:   link.ServerName,
		Items:        []money.Item{},
	}
	var locationID string
	if link.Restaurant != nil {
		receipt.Merchant = merchantFromRestaurant(link.Restaurant)
		locationID = link.Restaurant.OmnivoreLocationID
	}

	ticket, err := s.pos.GetTicket(ctx, locationID, link.TicketID)
	if err != nil {
		logger.Warn("POS unreachable, serving stale receipt", map[string]interface{}{
			"ticket_link_id": link.ID,
			"error":          err.Error(),
		})
		receipt.TotalCents = link.LastKnownTotalCents
		receipt.DueCents = link.LastKnownTotalCents
		receipt.Stale = true
		return receipt, nil
	}

	items, err := s.pos.GetTicketItems(ctx, locationID, link.TicketID)
	if err != nil {
		items = nil
	}
	result := money.Normalize(ticket, items, s.priceMode)
	receipt.SubtotalCents = result.Totals.SubtotalCents
	receipt.TaxCents = result.Totals.TaxCents
	receipt.DiscountsCents = result.Totals.DiscountsCents
	receipt.TotalCents = result.Totals.TotalCents
	receipt.DueCents = result.Totals.DueCents
	receipt.ReportedDueCents = result.Totals.ReportedDueCents
	if result.Items != nil {
		receipt.Items = result.Items
	}
	if server := money.ServerName(ticket); server != "" {
		receipt.ServerName = server
	}
	if number := money.TicketNumber(ticket); number != "" {
		receipt.TicketNumber = number
	}
	return receipt, nil
}

func (s *receiptService) Closed(memberNumber string, linkID uint) (*ClosedReceipt, error) {
	member, err := s.member(memberNumber)
	if err != nil {
		return nil, err
	}
	link, err := s.linkRepo.FindByID(linkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	if link.MemberID != member.ID || link.Status != model.TicketLinkClosed {
		return nil, ErrReceiptNotFound
	}

	items := []money.Item{}
	if len(link.ItemsJSON) > 0 {
		if err := json.Unmarshal(link.ItemsJSON, &items); err != nil {
			return nil, fmt.Errorf("failed to decode receipt items: %w", err)
		}
	}

	return &ClosedReceipt{
		TicketLinkID: link.ID,
		TicketNumber: link.TicketNumber,
		ServerName:   link.ServerName,
		Merchant: Merchant{
			Name:  link.MerchantName,
			Addr1: link.MerchantAddr1,
			Addr2: link.MerchantAddr2,
			City:  link.MerchantCity,
			State: link.MerchantState,
			Zip:   link.MerchantZip,
			Phone: link.MerchantPhone,
		},
		SubtotalCents:   link.SubtotalCents,
		TaxCents:        link.TaxCents,
		DiscountsCents:  link.DiscountsCents,
		TotalCents:      link.TotalCents,
		TipCents:        link.TipCents,
		PaidCents:       link.PaidCents,
		Items:           items,
		PaymentIntentID: link.PaymentIntentID,
		ClosedAt:        link.ClosedAt,
	}, nil
}

func (s *receiptService) History(memberNumber string) ([]ReceiptSummary, error) {
	member, err := s.member(memberNumber)
	if err != nil {
		return nil, err
	}
	links, err := s.linkRepo.FindClosedByMember(member.ID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ReceiptSummary, 0, len(links))
	for _, l := range links {
		summaries = append(summaries, ReceiptSummary{
			TicketLinkID: l.ID,
			MerchantName: l.MerchantName,
			TicketNumber: l.TicketNumber,
			PaidCents:    l.PaidCents,
			ClosedAt:     l.ClosedAt,
		})
	}
	return summaries, nil
}

func merchantFromRestaurant(r *model.Restaurant) Merchant {
	return Merchant{
		Name:  r.Name,
		Addr1: r.Addr1,
		Addr2: r.Addr2,
		City:  r.City,
		State: r.State,
		Zip:   r.Zip,
		Phone: r.Phone,
	}
}
