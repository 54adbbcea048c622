package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/service"
	"github.com/ikkim/tabline-backend/internal/middleware"
	"github.com/ikkim/tabline-backend/pkg/util"
)

const staffUserID uint = 7

type stubAuth struct {
	users map[uint]*model.User
}

func newStubAuth() *stubAuth {
	return &stubAuth{users: map[uint]*model.User{
		staffUserID: {ID: staffUserID, Email: "dana@harbor.test", Role: model.RoleManager, RestaurantID: 3},
	}}
}

func (s *stubAuth) CreateStaff(uint, string, string, string, model.UserRole) (*model.User, error) {
	return nil, nil
}

func (s *stubAuth) Login(email, password string) (*model.User, *util.TokenPair, error) {
	if email == "dana@harbor.test" && password == "correct-horse" {
		return s.users[staffUserID], &util.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
	}
	return nil, nil, service.ErrInvalidCredentials
}

func (s *stubAuth) Refresh(string) (*util.TokenPair, error) { return nil, util.ErrInvalidToken }

func (s *stubAuth) Logout(context.Context, string) error { return nil }

func (s *stubAuth) GetUserByID(id uint) (*model.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, service.ErrUserNotFound
}

type stubLinking struct {
	result  *service.LinkResult
	err     error
	last    service.LinkRequest
	resent  uint
	cancels []uint
}

func (s *stubLinking) Link(_ context.Context, req service.LinkRequest) (*service.LinkResult, error) {
	s.last = req
	return s.result, s.err
}

func (s *stubLinking) Resend(_ context.Context, restaurantID, linkID uint) (*model.TicketLink, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.resent = linkID
	return &model.TicketLink{ID: linkID, RestaurantID: restaurantID, Status: model.TicketLinkPending}, nil
}

func (s *stubLinking) Cancel(_ uint, linkID uint) error {
	if s.err != nil {
		return s.err
	}
	s.cancels = append(s.cancels, linkID)
	return nil
}

type stubLinks struct {
	service.TicketLinkService
	links []model.TicketLink
}

func (s *stubLinks) List(restaurantID uint, status model.TicketLinkStatus, limit int) ([]model.TicketLink, error) {
	if status != "" && status != model.TicketLinkPending && status != model.TicketLinkOpen && status != model.TicketLinkClosed {
		return nil, service.ErrInvalidStatus
	}
	var out []model.TicketLink
	for _, l := range s.links {
		if l.RestaurantID == restaurantID && (status == "" || l.Status == status) && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

type stubSettlement struct {
	result *service.CloseResult
	err    error
	tip    int64
}

func (s *stubSettlement) CloseTab(_ context.Context, _ string, tipCents int64, _ string) (*service.CloseResult, error) {
	s.tip = tipCents
	return s.result, s.err
}

type stubReceipts struct {
	live    *service.LiveReceipt
	liveErr error
	history []service.ReceiptSummary
	closed  map[uint]*service.ClosedReceipt
}

func (s *stubReceipts) Live(context.Context, string) (*service.LiveReceipt, error) {
	return s.live, s.liveErr
}

func (s *stubReceipts) Closed(_ string, id uint) (*service.ClosedReceipt, error) {
	if r, ok := s.closed[id]; ok {
		return r, nil
	}
	return nil, service.ErrReceiptNotFound
}

func (s *stubReceipts) History(string) ([]service.ReceiptSummary, error) {
	return s.history, nil
}

type stubExport struct {
	result   *service.ExportResult
	err      error
	from, to time.Time
}

func (s *stubExport) ExportClosed(_ context.Context, _ uint, from, to time.Time) (*service.ExportResult, error) {
	s.from, s.to = from, to
	return s.result, s.err
}

// asStaff stands in for the JWT middleware.
func asStaff(userID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Set(middleware.UserRoleKey, model.RoleManager)
		c.Next()
	}
}

// asMember stands in for the session middleware.
func asMember(number string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.MemberNumberKey, number)
		c.Next()
	}
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.SetHTMLTemplate(Templates())
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
