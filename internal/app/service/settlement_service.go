package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	"github.com/ikkim/tabline-backend/pkg/logger"
	"github.com/ikkim/tabline-backend/pkg/money"
	"github.com/ikkim/tabline-backend/pkg/payment/stripe"
	"github.com/ikkim/tabline-backend/pkg/pos/omnivore"
)

var (
	ErrNoActiveTicket         = errors.New("no active ticket")
	ErrNothingDue             = errors.New("nothing due on ticket")
	ErrInvalidTip             = errors.New("tip must not be negative")
	ErrMissingPaymentMethod   = errors.New("customer has no payment method on file")
	ErrConcurrentModification = errors.New("ticket link was modified concurrently")
)

// ChargeFailedError is a declined or otherwise failed processor charge.
// Nothing was posted to the POS.
type ChargeFailedError struct {
	Code            string
	DeclineCode     string
	PaymentIntentID string
	Message         string
}

func (e *ChargeFailedError) Error() string {
	return fmt.Sprintf("charge failed: %s %s", e.Code, e.DeclineCode)
}

// POSRefundedError means the POS rejected the payment and the charge was
// refunded.
type POSRefundedError struct {
	POSDetail       string
	PaymentIntentID string
}

func (e *POSRefundedError) Error() string {
	return "pos payment failed, charge refunded: " + e.POSDetail
}

// UnreconciledError means the guest was charged, the POS post failed and the
// refund failed too. An operator has to reconcile by hand.
type UnreconciledError struct {
	POSDetail       string
	RefundDetail    string
	PaymentIntentID string
}

func (e *UnreconciledError) Error() string {
	return fmt.Sprintf("payment %s captured but unreconciled: pos=%s refund=%s",
		e.PaymentIntentID, e.POSDetail, e.RefundDetail)
}

// UnrecordedCloseError means the guest was charged and the POS accepted the
// payment, but the closed tab could not be written. The settlement lease is
// left held so a retry cannot post to the POS again.
type UnrecordedCloseError struct {
	PaymentIntentID string
	POSRef          string
	Err             error
}

func (e *UnrecordedCloseError) Error() string {
	return fmt.Sprintf("payment %s posted to pos as %s but not recorded: %v",
		e.PaymentIntentID, e.POSRef, e.Err)
}

func (e *UnrecordedCloseError) Unwrap() error {
	return e.Err
}

// DefaultSettlementLease outlasts the worst case of a retried charge, both
// POS payloads and a retried refund at the default client timeouts.
const DefaultSettlementLease = 5 * time.Minute

type SettlementConfig struct {
	PaymentType string
	PriceMode   money.PriceMode
	Lease       time.Duration
}

type ReviewPrompt struct {
	RestaurantID   uint   `json:"restaurant_id"`
	RestaurantName string `json:"restaurant_name"`
	TicketLinkID   uint   `json:"ticket_link_id"`
}

type CloseResult struct {
	PaidCents     int64        `json:"paid_cents"`
	TipCents      int64        `json:"tip_cents"`
	BaseDueCents  int64        `json:"base_due_cents"`
	PaymentIntent string       `json:"payment_intent"`
	Destination   string       `json:"destination"`
	POSRef        string       `json:"pos_ref"`
	Review        ReviewPrompt `json:"review"`
}

type SettlementService interface {
	CloseTab(ctx context.Context, memberNumber string, tipCents int64, reference string) (*CloseResult, error)
}

type settlementService struct {
	memberRepo repository.MemberRepository
	linkRepo   repository.TicketLinkRepository
	pos        POSGateway
	payments   PaymentGateway
	events     EventPublisher
	db         *gorm.DB
	config     SettlementConfig
	now        func() time.Time
}

func NewSettlementService(
	memberRepo repository.MemberRepository,
	linkRepo repository.TicketLinkRepository,
	pos POSGateway,
	payments PaymentGateway,
	events EventPublisher,
	db *gorm.DB,
	config SettlementConfig,
) SettlementService {
	if config.PaymentType == "" {
		config.PaymentType = "cash"
	}
	if config.Lease <= 0 {
		config.Lease = DefaultSettlementLease
	}
	return &settlementService{
		memberRepo: memberRepo,
		linkRepo:   linkRepo,
		pos:        pos,
		payments:   payments,
		events:     publisherOrNoop(events),
		db:         db,
		config:     config,
		now:        time.Now,
	}
}

// IdempotencyKey digests the exact charge parameters. Identical parameters
// always give the same key and any change gives a new one.
func IdempotencyKey(customerID, paymentMethodID string, amountCents int64, destination, ticketID string, tipCents int64) string {
	raw := strings.Join([]string{
		customerID,
		paymentMethodID,
		strconv.FormatInt(amountCents, 10),
		destination,
		ticketID,
		strconv.FormatInt(tipCents, 10),
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return "tab_" + hex.EncodeToString(sum[:])[:40]
}

// dueSnapshot is the money picture the charge is based on.
type dueSnapshot struct {
	totals  money.Totals
	items   []money.Item
	ticket  map[string]interface{}
	server  string
	fromPOS bool
}

func (s *settlementService) CloseTab(ctx context.Context, memberNumber string, tipCents int64, reference string) (*CloseResult, error) {
	log := logger.WithContext(map[string]interface{}{
		"member_number": memberNumber,
	})

	if tipCents < 0 {
		return nil, ErrInvalidTip
	}

	member, err := s.memberRepo.FindByNumber(memberNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveTicket
		}
		return nil, fmt.Errorf("failed to load member: %w", err)
	}

	link, err := s.linkRepo.FindOpenByMember(member.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveTicket
		}
		return nil, fmt.Errorf("failed to load open ticket link: %w", err)
	}
	if link.Restaurant == nil {
		return nil, fmt.Errorf("ticket link %d has no restaurant", link.ID)
	}
	restaurant := link.Restaurant

	claimed, err := s.linkRepo.ClaimSettlement(link.ID, s.now(), s.config.Lease)
	if err != nil {
		return nil, fmt.Errorf("failed to claim settlement: %w", err)
	}
	if claimed == 0 {
		log.Warn("Settlement already in progress", map[string]interface{}{
			"ticket_link_id": link.ID,
		})
		return nil, ErrConcurrentModification
	}
	// Cleared once the link is closed, or when money has moved in a way a
	// retry must not repeat.
	releaseLease := true
	defer func() {
		if !releaseLease {
			return
		}
		if err := s.linkRepo.ReleaseSettlement(link.ID); err != nil {
			log.Error("Failed to release settlement lease", err, map[string]interface{}{
				"ticket_link_id": link.ID,
			})
		}
	}()

	due, err := s.baseDue(ctx, restaurant, link)
	if err != nil {
		return nil, err
	}
	baseDue := due.totals.DueCents
	if baseDue <= 0 {
		return nil, ErrNothingDue
	}
	gross := baseDue + tipCents

	customer := member.Customer
	if !customer.HasPaymentMethod() {
		return nil, ErrMissingPaymentMethod
	}

	log.Info("Charging tab", map[string]interface{}{
		"ticket_link_id": link.ID,
		"ticket_id":      link.TicketID,
		"base_due_cents": baseDue,
		"tip_cents":      tipCents,
		"gross_cents":    gross,
		"from_pos":       due.fromPOS,
	})

	intent, err := s.charge(ctx, chargeRequest{
		link:        link,
		customer:    customer,
		amount:      gross,
		tip:         tipCents,
		destination: restaurant.StripeAccountID,
		ticketID:    link.TicketID,
		description: fmt.Sprintf("%s ticket #%s", restaurant.Name, link.TicketNumber),
		metadata: map[string]string{
			"member_number":  member.Number,
			"ticket_id":      link.TicketID,
			"ticket_link_id": strconv.FormatUint(uint64(link.ID), 10),
			"location_id":    restaurant.OmnivoreLocationID,
			"tip_cents":      strconv.FormatInt(tipCents, 10),
			"reference":      reference,
		},
	})
	if err != nil {
		return nil, err
	}

	receipt, posErr := s.postPayment(ctx, restaurant.OmnivoreLocationID, link.TicketID, baseDue, tipCents)
	if posErr != nil {
		recorded, compErr := s.compensate(ctx, link.ID, intent.ID, posErr)
		releaseLease = recorded
		return nil, compErr
	}

	snap, err := buildCloseSnapshot(due, tipCents, receipt.ID, intent.ID, *restaurant, s.now())
	if err == nil {
		err = s.closeLinks(link, snap)
	}
	if err != nil {
		// Guest charged and POS settled; only our record is behind.
		releaseLease = false
		unrecorded := &UnrecordedCloseError{PaymentIntentID: intent.ID, POSRef: receipt.ID, Err: err}
		log.Error("Failed to record closed tab", unrecorded, map[string]interface{}{
			"ticket_link_id":    link.ID,
			"payment_intent_id": intent.ID,
			"pos_ref":           receipt.ID,
		})
		return nil, unrecorded
	}
	releaseLease = false

	s.events.PublishToRestaurant(restaurant.ID, EventLinkClosed, map[string]interface{}{
		"ticket_link_id": link.ID,
		"ticket_id":      link.TicketID,
		"paid_cents":     snap.PaidCents,
	})

	log.Info("Tab closed", map[string]interface{}{
		"ticket_link_id":    link.ID,
		"paid_cents":        snap.PaidCents,
		"payment_intent_id": intent.ID,
		"pos_ref":           receipt.ID,
	})

	return &CloseResult{
		PaidCents:     snap.PaidCents,
		TipCents:      tipCents,
		BaseDueCents:  baseDue,
		PaymentIntent: intent.ID,
		Destination:   restaurant.StripeAccountID,
		POSRef:        receipt.ID,
		Review: ReviewPrompt{
			RestaurantID:   restaurant.ID,
			RestaurantName: restaurant.Name,
			TicketLinkID:   link.ID,
		},
	}, nil
}

// baseDue reads the live ticket. When the POS cannot be reached it falls back
// to the largest last-known total among open links on the same ticket; a POS
// that answers with a refusal ends the close.
func (s *settlementService) baseDue(ctx context.Context, restaurant *model.Restaurant, link *model.TicketLink) (*dueSnapshot, error) {
	ticket, err := s.pos.GetTicket(ctx, restaurant.OmnivoreLocationID, link.TicketID)
	if err != nil && !posUnreachable(err) {
		logger.Warn("POS refused ticket read", map[string]interface{}{
			"ticket_id": link.TicketID,
			"error":     err.Error(),
		})
		return nil, ErrTicketUnavailable
	}
	if err == nil {
		items, itemsErr := s.pos.GetTicketItems(ctx, restaurant.OmnivoreLocationID, link.TicketID)
		if itemsErr != nil {
			logger.Warn("Falling back to embedded ticket items", map[string]interface{}{
				"ticket_id": link.TicketID,
				"error":     itemsErr.Error(),
			})
			items = nil
		}
		result := money.Normalize(ticket, items, s.config.PriceMode)
		return &dueSnapshot{
			totals:  result.Totals,
			items:   result.Items,
			ticket:  ticket,
			server:  money.ServerName(ticket),
			fromPOS: true,
		}, nil
	}

	logger.Warn("POS unreachable, using last known total", map[string]interface{}{
		"ticket_id": link.TicketID,
		"error":     err.Error(),
	})

	siblings, dbErr := s.linkRepo.FindOpenByTicket(link.RestaurantID, link.TicketID)
	if dbErr != nil {
		return nil, fmt.Errorf("failed to load open links for ticket: %w", dbErr)
	}
	var last int64
	for _, sibling := range siblings {
		if sibling.LastKnownTotalCents > last {
			last = sibling.LastKnownTotalCents
		}
	}
	if link.LastKnownTotalCents > last {
		last = link.LastKnownTotalCents
	}
	return &dueSnapshot{
		totals: money.Totals{SubtotalCents: last, TotalCents: last, DueCents: last, ReportedDueCents: last},
		server: link.ServerName,
	}, nil
}

// posUnreachable separates a POS that could not answer from one that
// answered no.
func posUnreachable(err error) bool {
	if errors.Is(err, omnivore.ErrNetworkError) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *omnivore.APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

type chargeRequest struct {
	link        *model.TicketLink
	customer    model.Customer
	amount      int64
	tip         int64
	destination string
	ticketID    string
	description string
	metadata    map[string]string
}

// charge creates the processor charge. A key collision is retried once with
// a suffixed key, and so is a replay of a charge already refunded on this
// link. Every other failure is terminal.
func (s *settlementService) charge(ctx context.Context, req chargeRequest) (*stripe.PaymentIntent, error) {
	key := IdempotencyKey(req.customer.StripeCustomerID, req.customer.DefaultPaymentMethod,
		req.amount, req.destination, req.ticketID, req.tip)

	params := stripe.ChargeParams{
		CustomerID:         req.customer.StripeCustomerID,
		PaymentMethodID:    req.customer.DefaultPaymentMethod,
		AmountCents:        req.amount,
		Currency:           s.payments.Currency(),
		IdempotencyKey:     key,
		Description:        req.description,
		DestinationAccount: req.destination,
		Metadata:           req.metadata,
	}

	intent, err := s.payments.CreateCharge(ctx, params)
	switch {
	case err != nil && stripe.IsIdempotencyError(err):
		intent, err = s.chargeWithFreshKey(ctx, params, key, "Idempotency key collision, retrying with fresh key")
	case err == nil && req.link.WasRefunded(intent.ID):
		intent, err = s.chargeWithFreshKey(ctx, params, key, "Charge replayed a refunded payment, retrying with fresh key")
		if err == nil && req.link.WasRefunded(intent.ID) {
			err = &stripe.Error{
				Type:            stripe.ErrorTypeIdempotency,
				Code:            "refunded_charge_replayed",
				Message:         "processor returned a refunded payment",
				PaymentIntentID: intent.ID,
			}
		}
	}
	if err != nil {
		failure := &ChargeFailedError{Code: "charge_failed", Message: err.Error()}
		if stripeErr, ok := stripe.AsError(err); ok {
			failure.Code = stripeErr.Code
			failure.DeclineCode = stripeErr.DeclineCode
			failure.PaymentIntentID = stripeErr.PaymentIntentID
			failure.Message = stripeErr.Message
		}
		if failure.PaymentIntentID == "" && intent != nil {
			failure.PaymentIntentID = intent.ID
		}
		logger.Warn("Charge failed", map[string]interface{}{
			"code":              failure.Code,
			"decline_code":      failure.DeclineCode,
			"payment_intent_id": failure.PaymentIntentID,
		})
		return nil, failure
	}
	return intent, nil
}

func (s *settlementService) chargeWithFreshKey(ctx context.Context, params stripe.ChargeParams, key, reason string) (*stripe.PaymentIntent, error) {
	params.IdempotencyKey = key + "-" + uuid.NewString()[:8]
	logger.Warn(reason, map[string]interface{}{
		"idempotency_key": params.IdempotencyKey,
	})
	return s.payments.CreateCharge(ctx, params)
}

// postPayment posts the primary payload and, if the POS rejects it, a
// fallback that folds the tip into the amount.
func (s *settlementService) postPayment(ctx context.Context, locationID, ticketID string, baseDue, tip int64) (*omnivore.PaymentReceipt, error) {
	primary := omnivore.PaymentRequest{Type: s.config.PaymentType, Amount: baseDue, Tip: tip}
	receipt, err := s.pos.PostPayment(ctx, locationID, ticketID, primary)
	if err == nil {
		return receipt, nil
	}

	logger.Warn("POS rejected primary payment payload, trying fallback", map[string]interface{}{
		"ticket_id": ticketID,
		"error":     err.Error(),
	})

	fallback := omnivore.PaymentRequest{Type: s.config.PaymentType, Amount: baseDue + tip, Tip: 0}
	receipt, fallbackErr := s.pos.PostPayment(ctx, locationID, ticketID, fallback)
	if fallbackErr == nil {
		return receipt, nil
	}
	return nil, fmt.Errorf("primary: %v; fallback: %w", err, fallbackErr)
}

// compensate refunds the charge after the POS post failed and records the
// refund on the link. The bool is false when a refund happened but could not
// be recorded, in which case the lease must stay held.
func (s *settlementService) compensate(ctx context.Context, linkID uint, paymentIntentID string, posErr error) (bool, error) {
	_, refundErr := s.payments.Refund(ctx, stripe.RefundParams{
		PaymentIntentID: paymentIntentID,
		Reason:          stripe.RefundReasonRequestedByCustomer,
		IdempotencyKey:  "refund_" + paymentIntentID,
	})
	if refundErr != nil {
		unreconciled := &UnreconciledError{
			POSDetail:       posErr.Error(),
			RefundDetail:    refundErr.Error(),
			PaymentIntentID: paymentIntentID,
		}
		logger.Error("Payment captured but unreconciled", unreconciled, map[string]interface{}{
			"payment_intent_id": paymentIntentID,
		})
		// The charge stands, so a retry that replays it and posts to the POS
		// settles the tab against money actually held.
		return true, unreconciled
	}

	logger.Warn("POS payment failed, charge refunded", map[string]interface{}{
		"payment_intent_id": paymentIntentID,
		"pos_detail":        posErr.Error(),
	})
	refunded := &POSRefundedError{POSDetail: posErr.Error(), PaymentIntentID: paymentIntentID}

	if err := s.linkRepo.RecordRefund(linkID, paymentIntentID); err != nil {
		logger.Error("Failed to record refund on ticket link", err, map[string]interface{}{
			"ticket_link_id":    linkID,
			"payment_intent_id": paymentIntentID,
		})
		return false, refunded
	}
	return true, refunded
}

func buildCloseSnapshot(due *dueSnapshot, tip int64, posRef, paymentIntentID string, restaurant model.Restaurant, closedAt time.Time) (repository.CloseSnapshot, error) {
	snap := repository.CloseSnapshot{
		ServerName:      due.server,
		SubtotalCents:   due.totals.SubtotalCents,
		TaxCents:        due.totals.TaxCents,
		DiscountsCents:  due.totals.DiscountsCents,
		TotalCents:      due.totals.TotalCents,
		TipCents:        tip,
		PaidCents:       due.totals.TotalCents + tip,
		POSRef:          posRef,
		PaymentIntentID: paymentIntentID,
		Restaurant:      restaurant,
		ClosedAt:        closedAt,
	}

	items := due.items
	if items == nil {
		items = []money.Item{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return snap, fmt.Errorf("failed to encode items: %w", err)
	}
	snap.ItemsJSON = itemsJSON

	if due.ticket != nil {
		raw, err := json.Marshal(due.ticket)
		if err != nil {
			return snap, fmt.Errorf("failed to encode ticket: %w", err)
		}
		snap.RawTicketJSON = raw
	}
	return snap, nil
}

// closeLinks closes every open link on the ticket, split seats included,
// in one transaction.
func (s *settlementService) closeLinks(primary *model.TicketLink, snap repository.CloseSnapshot) error {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var links []model.TicketLink
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("restaurant_id = ? AND ticket_id = ? AND status = ?",
			primary.RestaurantID, primary.TicketID, model.TicketLinkOpen).
		Find(&links).Error; err != nil {
		tx.Rollback()
		return err
	}

	repo := s.linkRepo.WithTx(tx)
	closedPrimary := false
	for _, l := range links {
		n, err := repo.MarkClosed(l.ID, snap)
		if err != nil {
			tx.Rollback()
			return err
		}
		if l.ID == primary.ID && n == 1 {
			closedPrimary = true
		}
	}
	if !closedPrimary {
		tx.Rollback()
		return ErrConcurrentModification
	}

	return tx.Commit().Error
}
