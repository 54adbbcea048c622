package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	"github.com/ikkim/tabline-backend/pkg/money"
	"github.com/ikkim/tabline-backend/pkg/payment/stripe"
	"github.com/ikkim/tabline-backend/pkg/pos/omnivore"
)

func newSettlement(f *serviceFixture) SettlementService {
	return newSettlementWithRepo(f, f.linkRepo)
}

func newSettlementWithRepo(f *serviceFixture, linkRepo repository.TicketLinkRepository) SettlementService {
	return NewSettlementService(f.memberRepo, linkRepo, f.pos, f.payments, f.events, f.db, SettlementConfig{
		PriceMode: money.PriceModeCents,
	})
}

func TestIdempotencyKey(t *testing.T) {
	base := IdempotencyKey("cus_1", "pm_1", 3000, "acct_1", "T-1", 500)

	assert.Equal(t, base, IdempotencyKey("cus_1", "pm_1", 3000, "acct_1", "T-1", 500))
	assert.Len(t, base, len("tab_")+40)
	assert.Equal(t, "tab_", base[:4])

	variants := []string{
		IdempotencyKey("cus_2", "pm_1", 3000, "acct_1", "T-1", 500),
		IdempotencyKey("cus_1", "pm_2", 3000, "acct_1", "T-1", 500),
		IdempotencyKey("cus_1", "pm_1", 3001, "acct_1", "T-1", 500),
		IdempotencyKey("cus_1", "pm_1", 3000, "acct_2", "T-1", 500),
		IdempotencyKey("cus_1", "pm_1", 3000, "acct_1", "T-2", 500),
		IdempotencyKey("cus_1", "pm_1", 3000, "acct_1", "T-1", 501),
	}
	for _, v := range variants {
		assert.NotEqual(t, base, v)
	}
}

func TestCloseTab_HappyPath(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2300, 200)
	link := f.openLink(t, f.member.ID, "T-1", 2500)

	result, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 500, "")
	require.NoError(t, err)

	assert.Equal(t, int64(3000), result.PaidCents)
	assert.Equal(t, int64(2500), result.BaseDueCents)
	assert.Equal(t, int64(500), result.TipCents)
	assert.Equal(t, "pi_1", result.PaymentIntent)
	assert.Equal(t, "acct_harbor", result.Destination)
	assert.Equal(t, "pos-pay-1", result.POSRef)
	assert.Equal(t, link.ID, result.Review.TicketLinkID)

	require.Len(t, f.payments.charges, 1)
	charge := f.payments.charges[0]
	assert.Equal(t, int64(3000), charge.AmountCents)
	assert.Equal(t, "cus_ann", charge.CustomerID)
	assert.Equal(t, "pm_visa", charge.PaymentMethodID)
	assert.Equal(t, "usd", charge.Currency)
	assert.Equal(t, IdempotencyKey("cus_ann", "pm_visa", 3000, "acct_harbor", "T-1", 500), charge.IdempotencyKey)

	require.Len(t, f.pos.posts, 1)
	assert.Equal(t, int64(2500), f.pos.posts[0].Amount)
	assert.Equal(t, int64(500), f.pos.posts[0].Tip)
	assert.Equal(t, "cash", f.pos.posts[0].Type)

	closed := f.reload(t, link.ID)
	assert.Equal(t, model.TicketLinkClosed, closed.Status)
	assert.Equal(t, int64(2300), closed.SubtotalCents)
	assert.Equal(t, int64(200), closed.TaxCents)
	assert.Equal(t, int64(2500), closed.TotalCents)
	assert.Equal(t, int64(500), closed.TipCents)
	assert.Equal(t, int64(3000), closed.PaidCents)
	assert.Equal(t, "pi_1", closed.PaymentIntentID)
	assert.Equal(t, "pos-pay-1", closed.POSRef)
	assert.Equal(t, "Harbor Grill", closed.MerchantName)
	assert.NotNil(t, closed.ClosedAt)
	assert.NotEmpty(t, closed.ItemsJSON)

	assert.Contains(t, f.events.types(), EventLinkClosed)
}

func TestCloseTab_FallbackPayload(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	f.pos.postErrs = []error{errPOSRejected}
	link := f.openLink(t, f.member.ID, "T-1", 2500)

	result, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 500, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), result.PaidCents)

	require.Len(t, f.pos.posts, 2)
	assert.Equal(t, int64(3000), f.pos.posts[1].Amount)
	assert.Equal(t, int64(0), f.pos.posts[1].Tip)
	assert.Empty(t, f.payments.refunds)
	assert.Equal(t, model.TicketLinkClosed, f.reload(t, link.ID).Status)
}

func TestCloseTab_Declined(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	f.payments.chargeErrs = []error{&stripe.Error{
		StatusCode:      402,
		Type:            stripe.ErrorTypeCard,
		Code:            "card_declined",
		DeclineCode:     "insufficient_funds",
		Message:         "Your card has insufficient funds.",
		PaymentIntentID: "pi_declined",
	}}
	link := f.openLink(t, f.member.ID, "T-1", 2500)

	_, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 0, "")
	var chargeErr *ChargeFailedError
	require.True(t, errors.As(err, &chargeErr))
	assert.Equal(t, "card_declined", chargeErr.Code)
	assert.Equal(t, "insufficient_funds", chargeErr.DeclineCode)
	assert.Equal(t, "pi_declined", chargeErr.PaymentIntentID)

	assert.Empty(t, f.pos.posts)
	reloaded := f.reload(t, link.ID)
	assert.Equal(t, model.TicketLinkOpen, reloaded.Status)
	assert.Nil(t, reloaded.SettlingAt)
}

func TestCloseTab_IdempotencyCollisionRetriesOnce(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	f.payments.chargeErrs = []error{&stripe.Error{StatusCode: 400, Type: stripe.ErrorTypeIdempotency}}
	f.openLink(t, f.member.ID, "T-1", 2500)

	_, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 0, "")
	require.NoError(t, err)

	require.Len(t, f.payments.charges, 2)
	first, second := f.payments.charges[0].IdempotencyKey, f.payments.charges[1].IdempotencyKey
	assert.NotEqual(t, first, second)
	assert.Equal(t, first+"-", second[:len(first)+1])
}

func TestCloseTab_POSFailureRefunds(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	f.pos.postErrs = []error{errPOSRejected, errPOSRejected}
	link := f.openLink(t, f.member.ID, "T-1", 2500)

	_, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 300, "")
	var refunded *POSRefundedError
	require.True(t, errors.As(err, &refunded))
	assert.Equal(t, "pi_1", refunded.PaymentIntentID)

	require.Len(t, f.payments.refunds, 1)
	assert.Equal(t, "pi_1", f.payments.refunds[0].PaymentIntentID)
	assert.Equal(t, stripe.RefundReasonRequestedByCustomer, f.payments.refunds[0].Reason)
	assert.Equal(t, "refund_pi_1", f.payments.refunds[0].IdempotencyKey)

	reloaded := f.reload(t, link.ID)
	assert.Equal(t, model.TicketLinkOpen, reloaded.Status)
	assert.Nil(t, reloaded.SettlingAt)
}

func TestCloseTab_Unreconciled(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	f.pos.postErrs = []error{errPOSRejected, errPOSRejected}
	f.payments.refundErr = errors.New("stripe unavailable")
	link := f.openLink(t, f.member.ID, "T-1", 2500)

	_, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 0, "")
	var unreconciled *UnreconciledError
	require.True(t, errors.As(err, &unreconciled))
	assert.Equal(t, "pi_1", unreconciled.PaymentIntentID)
	assert.Contains(t, unreconciled.RefundDetail, "stripe unavailable")
	assert.Equal(t, model.TicketLinkOpen, f.reload(t, link.ID).Status)
}

func TestCloseTab_Preconditions(t *testing.T) {
	t.Run("negative tip", func(t *testing.T) {
		f := setupServiceTest(t)
		_, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, -1, "")
		assert.ErrorIs(t, err, ErrInvalidTip)
	})

	t.Run("no open link", func(t *testing.T) {
		f := setupServiceTest(t)
		_, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 0, "")
		assert.ErrorIs(t, err, ErrNoActiveTicket)
	})

	t.Run("unknown member", func(t *testing.T) {
		f := setupServiceTest(t)
		_, err := newSettlement(f).CloseTab(context.Background(), "NOPE0000", 0, "")
		assert.ErrorIs(t, err, ErrNoActiveTicket)
	})

	t.Run("nothing due", func(t *testing.T) {
		f := setupServiceTest(t)
		f.pos.tickets["T-1"] = posTicket("T-1", "42", 0, 0)
		link := f.openLink(t, f.member.ID, "T-1", 0)
		_, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 500, "")
		assert.ErrorIs(t, err, ErrNothingDue)
		assert.Empty(t, f.payments.charges)
		assert.Nil(t, f.reload(t, link.ID).SettlingAt)
	})

	t.Run("missing payment method", func(t *testing.T) {
		f := setupServiceTest(t)
		require.NoError(t, f.db.Model(&model.Customer{}).
			Where("id = ?", f.member.CustomerID).
			Update("default_payment_method", "").Error)
		f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
		f.openLink(t, f.member.ID, "T-1", 2500)
		_, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 0, "")
		assert.ErrorIs(t, err, ErrMissingPaymentMethod)
		assert.Empty(t, f.payments.charges)
	})
}

func TestCloseTab_SettlementInProgress(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	link := f.openLink(t, f.member.ID, "T-1", 2500)

	n, err := f.linkRepo.ClaimSettlement(link.ID, time.Now(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = newSettlement(f).CloseTab(context.Background(), f.member.Number, 0, "")
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Empty(t, f.payments.charges)
}

func TestCloseTab_ClosesSplitSeats(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 4000, 0)
	other := f.addMember(t, "JONE0001", "Jones")
	primary := f.openLink(t, f.member.ID, "T-1", 4000)
	seat := f.openLink(t, other.ID, "T-1", 4000)

	_, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 0, "")
	require.NoError(t, err)

	for _, id := range []uint{primary.ID, seat.ID} {
		closed := f.reload(t, id)
		assert.Equal(t, model.TicketLinkClosed, closed.Status)
		assert.Equal(t, "pi_1", closed.PaymentIntentID)
		assert.Equal(t, int64(4000), closed.PaidCents)
	}

	_, err = newSettlement(f).CloseTab(context.Background(), other.Number, 0, "")
	assert.ErrorIs(t, err, ErrNoActiveTicket)
}

func TestCloseTab_POSUnreachableUsesLastKnownTotal(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.getErr = fmt.Errorf("%w: dial tcp: connection refused", omnivore.ErrNetworkError)
	other := f.addMember(t, "JONE0001", "Jones")
	f.openLink(t, f.member.ID, "T-1", 1800)
	f.openLink(t, other.ID, "T-1", 2200)

	result, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 200, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2200), result.BaseDueCents)
	assert.Equal(t, int64(2400), result.PaidCents)
	require.Len(t, f.pos.posts, 1)
	assert.Equal(t, int64(2200), f.pos.posts[0].Amount)
}

func TestCloseTab_POSAnswerSkipsFallback(t *testing.T) {
	tests := []struct {
		name   string
		getErr error
	}{
		{name: "ticket gone", getErr: omnivore.ErrNotFound},
		{name: "bad credentials", getErr: omnivore.ErrUnauthorized},
		{name: "client error", getErr: &omnivore.APIError{StatusCode: 400, Body: "bad ticket"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupServiceTest(t)
			f.pos.getErr = tt.getErr
			link := f.openLink(t, f.member.ID, "T-1", 2500)

			_, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 0, "")
			assert.ErrorIs(t, err, ErrTicketUnavailable)
			assert.Empty(t, f.payments.charges)
			assert.Empty(t, f.pos.posts)
			assert.Nil(t, f.reload(t, link.ID).SettlingAt)
		})
	}
}

func TestCloseTab_POSServerErrorUsesLastKnownTotal(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.getErr = &omnivore.APIError{StatusCode: 503, Body: "maintenance"}
	f.openLink(t, f.member.ID, "T-1", 1800)

	result, err := newSettlement(f).CloseTab(context.Background(), f.member.Number, 0, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1800), result.BaseDueCents)
}

func TestCloseTab_RetryAfterRefundNeverReusesRefundedCharge(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	f.pos.postErrs = []error{errPOSRejected, errPOSRejected}
	f.payments.replayKeys = true
	link := f.openLink(t, f.member.ID, "T-1", 2500)
	settlement := newSettlement(f)

	_, err := settlement.CloseTab(context.Background(), f.member.Number, 500, "")
	var refunded *POSRefundedError
	require.True(t, errors.As(err, &refunded))

	afterRefund := f.reload(t, link.ID)
	assert.True(t, afterRefund.WasRefunded("pi_1"))
	assert.Nil(t, afterRefund.SettlingAt)

	result, err := settlement.CloseTab(context.Background(), f.member.Number, 500, "")
	require.NoError(t, err)

	// original key replays pi_1, which was refunded, so a fresh key charges again
	require.Len(t, f.payments.charges, 3)
	baseKey := f.payments.charges[0].IdempotencyKey
	assert.Equal(t, baseKey, f.payments.charges[1].IdempotencyKey)
	assert.Equal(t, baseKey+"-", f.payments.charges[2].IdempotencyKey[:len(baseKey)+1])
	assert.Equal(t, "pi_3", result.PaymentIntent)
	assert.Equal(t, int64(3000), result.PaidCents)

	closed := f.reload(t, link.ID)
	assert.Equal(t, model.TicketLinkClosed, closed.Status)
	assert.Equal(t, "pi_3", closed.PaymentIntentID)
	require.Len(t, f.payments.refunds, 1)
	assert.Equal(t, "pi_1", f.payments.refunds[0].PaymentIntentID)
}

func TestCloseTab_UnrecordedRefundKeepsLease(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	f.pos.postErrs = []error{errPOSRejected, errPOSRejected}
	link := f.openLink(t, f.member.ID, "T-1", 2500)
	repo := &faultyLinkRepo{TicketLinkRepository: f.linkRepo, recordRefundErr: errors.New("database is locked")}

	_, err := newSettlementWithRepo(f, repo).CloseTab(context.Background(), f.member.Number, 0, "")
	var refunded *POSRefundedError
	require.True(t, errors.As(err, &refunded))

	reloaded := f.reload(t, link.ID)
	assert.Equal(t, model.TicketLinkOpen, reloaded.Status)
	assert.NotNil(t, reloaded.SettlingAt)

	_, err = newSettlement(f).CloseTab(context.Background(), f.member.Number, 0, "")
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Len(t, f.payments.charges, 1)
}

func TestCloseTab_UnrecordedCloseKeepsLease(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	link := f.openLink(t, f.member.ID, "T-1", 2500)
	repo := &faultyLinkRepo{TicketLinkRepository: f.linkRepo, markClosedErr: errors.New("database is locked")}

	_, err := newSettlementWithRepo(f, repo).CloseTab(context.Background(), f.member.Number, 500, "")
	var unrecorded *UnrecordedCloseError
	require.True(t, errors.As(err, &unrecorded))
	assert.Equal(t, "pi_1", unrecorded.PaymentIntentID)
	assert.Equal(t, "pos-pay-1", unrecorded.POSRef)
	assert.Empty(t, f.payments.refunds)

	reloaded := f.reload(t, link.ID)
	assert.Equal(t, model.TicketLinkOpen, reloaded.Status)
	assert.NotNil(t, reloaded.SettlingAt)

	_, err = newSettlement(f).CloseTab(context.Background(), f.member.Number, 500, "")
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Len(t, f.pos.posts, 1)
	assert.Len(t, f.payments.charges, 1)
}

func TestCloseTab_DefaultLeaseCoversSlowSettlement(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	link := f.openLink(t, f.member.ID, "T-1", 2500)

	// a settlement that started three minutes ago is still running
	_, err := f.linkRepo.ClaimSettlement(link.ID, time.Now().Add(-3*time.Minute), time.Minute)
	require.NoError(t, err)
	_, err = newSettlement(f).CloseTab(context.Background(), f.member.Number, 0, "")
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Empty(t, f.payments.charges)

	require.NoError(t, f.linkRepo.ReleaseSettlement(link.ID))
	_, err = f.linkRepo.ClaimSettlement(link.ID, time.Now().Add(-DefaultSettlementLease-time.Minute), time.Minute)
	require.NoError(t, err)
	_, err = newSettlement(f).CloseTab(context.Background(), f.member.Number, 0, "")
	require.NoError(t, err)
}
