package controller

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	"github.com/ikkim/tabline-backend/internal/app/service"
	"github.com/ikkim/tabline-backend/internal/db"
	apperrors "github.com/ikkim/tabline-backend/internal/errors"
)

func setupReviewTest(t *testing.T) (http.Handler, *model.TicketLink, *model.TicketLink) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CleanupTestDB(testDB) })

	restaurant := &model.Restaurant{Name: "Harbor Grill", OmnivoreLocationID: "loc-harbor"}
	require.NoError(t, testDB.Create(restaurant).Error)
	member := &model.Member{Number: "SMIT0001", LastName: "Smith", Customer: model.Customer{LastName: "Smith"}}
	require.NoError(t, testDB.Create(member).Error)

	now := time.Now()
	closed := &model.TicketLink{
		MemberID: member.ID, RestaurantID: restaurant.ID, TicketID: "T-1",
		Status: model.TicketLinkClosed, OpenedAt: &now, ClosedAt: &now,
	}
	open := &model.TicketLink{
		MemberID: member.ID, RestaurantID: restaurant.ID, TicketID: "T-2",
		Status: model.TicketLinkOpen, OpenedAt: &now,
	}
	require.NoError(t, testDB.Create(closed).Error)
	require.NoError(t, testDB.Create(open).Error)

	reviewService := service.NewReviewService(
		repository.NewReviewRepository(testDB),
		repository.NewMemberRepository(testDB),
		repository.NewTicketLinkRepository(testDB),
	)
	auth := newStubAuth()
	auth.users[staffUserID].RestaurantID = restaurant.ID
	ctrl := NewReviewController(reviewService, auth)

	router := newTestRouter()
	router.POST("/api/member/:member/reviews", asMember("SMIT0001"), ctrl.Submit)
	router.GET("/api/v1/staff/analytics/ratings", asStaff(staffUserID), ctrl.Analytics)
	return router, closed, open
}

func TestReviewController_SubmitAndAnalytics(t *testing.T) {
	router, closed, _ := setupReviewTest(t)

	w := doJSON(t, router, http.MethodPost, "/api/member/SMIT0001/reviews", map[string]interface{}{
		"ticket_link_id": closed.ID,
		"rating":         4,
		"comment":        "Great chowder",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/member/SMIT0001/reviews", map[string]interface{}{
		"ticket_link_id": closed.ID,
		"rating":         5,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.ReviewAlreadyExists, decode(t, w)["error"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/staff/analytics/ratings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(4), body["average"])
	assert.Len(t, body["recent"], 1)
}

func TestReviewController_Submit_Rejects(t *testing.T) {
	router, closed, open := setupReviewTest(t)

	tests := []struct {
		name     string
		body     map[string]interface{}
		wantCode int
		wantErr  string
	}{
		{"Rating too high", map[string]interface{}{"ticket_link_id": closed.ID, "rating": 6}, http.StatusBadRequest, apperrors.ReviewInvalidRating},
		{"Open tab", map[string]interface{}{"ticket_link_id": open.ID, "rating": 3}, http.StatusConflict, apperrors.ReviewTabNotClosed},
		{"Missing rating", map[string]interface{}{"ticket_link_id": closed.ID}, http.StatusBadRequest, apperrors.ValidationInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/member/SMIT0001/reviews", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decode(t, w)["error"])
		})
	}
}
