package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	"github.com/ikkim/tabline-backend/internal/db"
	"github.com/ikkim/tabline-backend/pkg/payment/stripe"
	"github.com/ikkim/tabline-backend/pkg/pos/omnivore"
	"github.com/ikkim/tabline-backend/pkg/sms"
	"github.com/ikkim/tabline-backend/pkg/util"
)

const testPIN = "1234"

// fakePOS serves tickets from memory and records payment posts.
type fakePOS struct {
	mu       sync.Mutex
	tickets  map[string]omnivore.Ticket
	getErr   error
	listErr  error
	postErrs []error
	posts    []omnivore.PaymentRequest
}

func newFakePOS() *fakePOS {
	return &fakePOS{tickets: map[string]omnivore.Ticket{}}
}

func (p *fakePOS) GetTicket(_ context.Context, _, ticketID string) (omnivore.Ticket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	t, ok := p.tickets[ticketID]
	if !ok {
		return nil, omnivore.ErrNotFound
	}
	return t, nil
}

func (p *fakePOS) GetTicketItems(_ context.Context, _, ticketID string) ([]map[string]interface{}, error) {
	// nil makes the normalizer read the embedded items
	return nil, nil
}

func (p *fakePOS) ListOpenTickets(_ context.Context, _ string) ([]omnivore.Ticket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	var out []omnivore.Ticket
	for _, t := range p.tickets {
		if t["open"] == true {
			out = append(out, t)
		}
	}
	return out, nil
}

func (p *fakePOS) PostPayment(_ context.Context, _, _ string, req omnivore.PaymentRequest) (*omnivore.PaymentReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, req)
	if len(p.postErrs) > 0 {
		err := p.postErrs[0]
		p.postErrs = p.postErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &omnivore.PaymentReceipt{
		ID:     fmt.Sprintf("pos-pay-%d", len(p.posts)),
		Amount: req.Amount,
		Tip:    req.Tip,
	}, nil
}

// fakePayments records charges and refunds. With replayKeys set it answers a
// repeated idempotency key with the intent first created for it, as Stripe
// does, even after that intent was refunded.
type fakePayments struct {
	mu         sync.Mutex
	chargeErrs []error
	refundErr  error
	replayKeys bool
	byKey      map[string]*stripe.PaymentIntent
	charges    []stripe.ChargeParams
	refunds    []stripe.RefundParams
}

func (f *fakePayments) Currency() string { return "usd" }

func (f *fakePayments) CreateCharge(_ context.Context, params stripe.ChargeParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, params)
	if len(f.chargeErrs) > 0 {
		err := f.chargeErrs[0]
		f.chargeErrs = f.chargeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.replayKeys {
		if intent, ok := f.byKey[params.IdempotencyKey]; ok {
			return intent, nil
		}
	}
	intent := &stripe.PaymentIntent{
		ID:     fmt.Sprintf("pi_%d", len(f.charges)),
		Amount: params.AmountCents,
		Status: stripe.PaymentIntentSucceeded,
	}
	if f.replayKeys {
		if f.byKey == nil {
			f.byKey = map[string]*stripe.PaymentIntent{}
		}
		f.byKey[params.IdempotencyKey] = intent
	}
	return intent, nil
}

func (f *fakePayments) Refund(_ context.Context, params stripe.RefundParams) (*stripe.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, params)
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &stripe.Refund{ID: "re_1", PaymentIntent: params.PaymentIntentID, Status: "succeeded"}, nil
}

type sentSMS struct {
	to   string
	body string
}

type fakeMessenger struct {
	mu   sync.Mutex
	fail bool
	sent []sentSMS
}

func (m *fakeMessenger) Send(_ context.Context, to, body string) sms.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return sms.Result{OK: false, Error: "gateway rejected"}
	}
	m.sent = append(m.sent, sentSMS{to: to, body: body})
	return sms.Result{OK: true, ID: fmt.Sprintf("msg-%d", len(m.sent))}
}

type publishedEvent struct {
	restaurantID uint
	eventType    string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishToRestaurant(restaurantID uint, eventType string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{restaurantID: restaurantID, eventType: eventType})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

// posTicket builds an open ticket with amounts in cents.
func posTicket(id, number string, subtotal, tax int64) omnivore.Ticket {
	return omnivore.Ticket{
		"id":            id,
		"ticket_number": number,
		"open":          true,
		"totals": map[string]interface{}{
			"subtotal": subtotal,
			"tax":      tax,
			"due":      subtotal + tax,
		},
		"_embedded": map[string]interface{}{
			"employee": map[string]interface{}{"check_name": "Dana"},
			"items": []interface{}{
				map[string]interface{}{"id": "i1", "name": "Burger", "quantity": int64(1), "price": subtotal},
			},
		},
	}
}

type serviceFixture struct {
	db         *gorm.DB
	memberRepo repository.MemberRepository
	linkRepo   repository.TicketLinkRepository
	restRepo   repository.RestaurantRepository
	restaurant *model.Restaurant
	member     *model.Member
	pos        *fakePOS
	payments   *fakePayments
	messenger  *fakeMessenger
	events     *recordingPublisher
}

func setupServiceTest(t *testing.T) *serviceFixture {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CleanupTestDB(testDB) })

	restaurant := &model.Restaurant{
		Name:               "Harbor Grill",
		Addr1:              "1 Pier Rd",
		City:               "Portland",
		State:              "ME",
		Zip:                "04101",
		Phone:              "207-555-0100",
		OmnivoreLocationID: "loc-harbor",
		StripeAccountID:    "acct_harbor",
	}
	require.NoError(t, testDB.Create(restaurant).Error)

	pinHash, err := util.HashPIN(testPIN)
	require.NoError(t, err)
	member := &model.Member{
		Number:   "SMIT0001",
		LastName: "Smith",
		Customer: model.Customer{
			FirstName:            "Ann",
			LastName:             "Smith",
			Phone:                "+12075550111",
			PINHash:              pinHash,
			StripeCustomerID:     "cus_ann",
			DefaultPaymentMethod: "pm_visa",
		},
	}
	require.NoError(t, testDB.Create(member).Error)

	return &serviceFixture{
		db:         testDB,
		memberRepo: repository.NewMemberRepository(testDB),
		linkRepo:   repository.NewTicketLinkRepository(testDB),
		restRepo:   repository.NewRestaurantRepository(testDB),
		restaurant: restaurant,
		member:     member,
		pos:        newFakePOS(),
		payments:   &fakePayments{},
		messenger:  &fakeMessenger{},
		events:     &recordingPublisher{},
	}
}

// addMember enrolls another diner with a card on file.
func (f *serviceFixture) addMember(t *testing.T, number, lastName string) *model.Member {
	pinHash, err := util.HashPIN(testPIN)
	require.NoError(t, err)
	member := &model.Member{
		Number:   number,
		LastName: lastName,
		Customer: model.Customer{
			FirstName:            "Guest",
			LastName:             lastName,
			Phone:                "+12075550199",
			PINHash:              pinHash,
			StripeCustomerID:     "cus_" + number,
			DefaultPaymentMethod: "pm_" + number,
		},
	}
	require.NoError(t, f.db.Create(member).Error)
	return member
}

// openLink inserts an open link directly, as if the PIN had been verified.
func (f *serviceFixture) openLink(t *testing.T, memberID uint, ticketID string, lastKnown int64) *model.TicketLink {
	now := time.Now()
	link := &model.TicketLink{
		MemberID:            memberID,
		RestaurantID:        f.restaurant.ID,
		TicketID:            ticketID,
		TicketNumber:        "42",
		Status:              model.TicketLinkOpen,
		ServerName:          "Dana",
		LastKnownTotalCents: lastKnown,
		OpenedAt:            &now,
	}
	require.NoError(t, f.linkRepo.Create(link))
	return link
}

func (f *serviceFixture) reload(t *testing.T, id uint) *model.TicketLink {
	link, err := f.linkRepo.FindByID(id)
	require.NoError(t, err)
	return link
}

var errPOSRejected = errors.New("pos rejected payment")

// faultyLinkRepo fails selected writes, inside transactions too.
type faultyLinkRepo struct {
	repository.TicketLinkRepository
	recordRefundErr error
	markClosedErr   error
}

func (r *faultyLinkRepo) WithTx(tx *gorm.DB) repository.TicketLinkRepository {
	return &faultyLinkRepo{
		TicketLinkRepository: r.TicketLinkRepository.WithTx(tx),
		recordRefundErr:      r.recordRefundErr,
		markClosedErr:        r.markClosedErr,
	}
}

func (r *faultyLinkRepo) RecordRefund(id uint, paymentIntentID string) error {
	if r.recordRefundErr != nil {
		return r.recordRefundErr
	}
	return r.TicketLinkRepository.RecordRefund(id, paymentIntentID)
}

func (r *faultyLinkRepo) MarkClosed(id uint, snap repository.CloseSnapshot) (int64, error) {
	if r.markClosedErr != nil {
		return 0, r.markClosedErr
	}
	return r.TicketLinkRepository.MarkClosed(id, snap)
}
