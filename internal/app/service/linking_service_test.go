package service

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/pkg/money"
	"github.com/ikkim/tabline-backend/pkg/verifytoken"
)

const testTokenSecret = "verify-secret"

func newLinking(f *serviceFixture, codec *verifytoken.Codec) LinkingService {
	links := NewTicketLinkService(f.linkRepo, f.events, f.db)
	return NewLinkingService(f.memberRepo, f.restRepo, links, f.pos, codec, f.messenger, LinkingConfig{
		PublicBaseURL: "https://tab.example.com/",
		PriceMode:     money.PriceModeCents,
	})
}

// tokenFromSMS pulls the verification token out of the last message sent.
func tokenFromSMS(t *testing.T, m *fakeMessenger) (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	body := m.sent[len(m.sent)-1].body
	fields := strings.Fields(body)
	u, err := url.Parse(fields[len(fields)-1])
	require.NoError(t, err)
	member := strings.TrimPrefix(u.Path, "/verify/")
	return member, u.Query().Get("t")
}

func TestLinkingService_LinkByTicketID(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	codec := verifytoken.NewCodec(testTokenSecret)

	result, err := newLinking(f, codec).Link(context.Background(), LinkRequest{
		RestaurantID: f.restaurant.ID,
		MemberNumber: "smit0001",
		LastName:     "SMITH",
		TicketID:     "T-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Sent)
	assert.False(t, result.Multiple)

	link := f.reload(t, result.TicketLinkID)
	assert.Equal(t, model.TicketLinkPending, link.Status)
	assert.Equal(t, "42", link.TicketNumber)
	assert.Equal(t, "msg-1", link.SMSMessageID)

	require.Len(t, f.messenger.sent, 1)
	assert.Equal(t, "+12075550111", f.messenger.sent[0].to)
	assert.Contains(t, f.messenger.sent[0].body, "https://tab.example.com/verify/SMIT0001?t=")

	member, token := tokenFromSMS(t, f.messenger)
	assert.Equal(t, "SMIT0001", member)
	claims, err := codec.Validate(token, 0)
	require.NoError(t, err)
	assert.Equal(t, "loc-harbor", claims.Location)
	assert.Equal(t, "T-1", claims.Ticket)
}

func TestLinkingService_LinkByHint(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	f.pos.tickets["T-2"] = posTicket("T-2", "142", 1000, 80)
	f.pos.tickets["T-3"] = posTicket("T-3", "77", 500, 0)
	svc := newLinking(f, verifytoken.NewCodec(testTokenSecret))

	result, err := svc.Link(context.Background(), LinkRequest{
		RestaurantID: f.restaurant.ID,
		MemberNumber: "SMIT0001",
		CheckHint:    "42",
	})
	require.NoError(t, err)
	assert.True(t, result.Multiple)
	assert.False(t, result.Sent)
	require.Len(t, result.Candidates, 2)
	labels := []string{result.Candidates[0].Label, result.Candidates[1].Label}
	assert.Contains(t, labels, "#42 · Dana · $25.00")
	assert.Contains(t, labels, "#142 · Dana · $10.80")
	assert.Empty(t, f.messenger.sent)

	result, err = svc.Link(context.Background(), LinkRequest{
		RestaurantID: f.restaurant.ID,
		MemberNumber: "SMIT0001",
		CheckHint:    "77",
	})
	require.NoError(t, err)
	assert.True(t, result.Sent)

	_, err = svc.Link(context.Background(), LinkRequest{
		RestaurantID: f.restaurant.ID,
		MemberNumber: "SMIT0001",
		CheckHint:    "999",
	})
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestLinkingService_LinkErrors(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	closed := posTicket("T-2", "43", 1000, 0)
	closed["open"] = false
	f.pos.tickets["T-2"] = closed
	svc := newLinking(f, verifytoken.NewCodec(testTokenSecret))
	ctx := context.Background()

	tests := []struct {
		name    string
		req     LinkRequest
		wantErr error
	}{
		{"no target", LinkRequest{RestaurantID: f.restaurant.ID, MemberNumber: "SMIT0001"}, ErrLinkTargetRequired},
		{"unknown member", LinkRequest{RestaurantID: f.restaurant.ID, MemberNumber: "NOPE0000", TicketID: "T-1"}, ErrMemberNotFound},
		{"last name mismatch", LinkRequest{RestaurantID: f.restaurant.ID, MemberNumber: "SMIT0001", LastName: "Jones", TicketID: "T-1"}, ErrLastNameMismatch},
		{"unknown restaurant", LinkRequest{RestaurantID: 999, MemberNumber: "SMIT0001", TicketID: "T-1"}, ErrRestaurantNotFound},
		{"unknown ticket", LinkRequest{RestaurantID: f.restaurant.ID, MemberNumber: "SMIT0001", TicketID: "T-404"}, ErrTicketNotFound},
		{"closed ticket", LinkRequest{RestaurantID: f.restaurant.ID, MemberNumber: "SMIT0001", TicketID: "T-2"}, ErrTicketUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Link(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, f.messenger.sent)
}

func TestLinkingService_SMSFailureLeavesNoPendingRow(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	f.messenger.fail = true

	_, err := newLinking(f, verifytoken.NewCodec(testTokenSecret)).Link(context.Background(), LinkRequest{
		RestaurantID: f.restaurant.ID,
		MemberNumber: "SMIT0001",
		TicketID:     "T-1",
	})
	assert.ErrorIs(t, err, ErrSMSFailed)

	var count int64
	require.NoError(t, f.db.Model(&model.TicketLink{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLinkingService_NoPhone(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	require.NoError(t, f.db.Model(&model.Customer{}).
		Where("id = ?", f.member.CustomerID).
		Update("phone", "").Error)

	_, err := newLinking(f, verifytoken.NewCodec(testTokenSecret)).Link(context.Background(), LinkRequest{
		RestaurantID: f.restaurant.ID,
		MemberNumber: "SMIT0001",
		TicketID:     "T-1",
	})
	assert.ErrorIs(t, err, ErrNoPhoneOnFile)
}

func TestLinkingService_POSUnavailable(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.listErr = assert.AnError

	_, err := newLinking(f, verifytoken.NewCodec(testTokenSecret)).Link(context.Background(), LinkRequest{
		RestaurantID: f.restaurant.ID,
		MemberNumber: "SMIT0001",
		CheckHint:    "42",
	})
	assert.ErrorIs(t, err, ErrPOSUnavailable)
}

func TestLinkingService_Resend(t *testing.T) {
	f := setupServiceTest(t)
	f.pos.tickets["T-1"] = posTicket("T-1", "42", 2500, 0)
	svc := newLinking(f, verifytoken.NewCodec(testTokenSecret))
	ctx := context.Background()

	result, err := svc.Link(ctx, LinkRequest{
		RestaurantID: f.restaurant.ID,
		MemberNumber: "SMIT0001",
		TicketID:     "T-1",
	})
	require.NoError(t, err)

	link, err := svc.Resend(ctx, f.restaurant.ID, result.TicketLinkID)
	require.NoError(t, err)
	assert.Equal(t, result.TicketLinkID, link.ID)
	assert.Len(t, f.messenger.sent, 2)
	assert.Equal(t, "msg-2", f.reload(t, link.ID).SMSMessageID)

	open := f.openLink(t, f.member.ID, "T-5", 100)
	_, err = svc.Resend(ctx, f.restaurant.ID, open.ID)
	assert.ErrorIs(t, err, ErrLinkNotPending)

	require.NoError(t, svc.Cancel(f.restaurant.ID, result.TicketLinkID))
	_, err = svc.Resend(ctx, f.restaurant.ID, result.TicketLinkID)
	assert.ErrorIs(t, err, ErrLinkNotFound)
}
