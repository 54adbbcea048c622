package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikkim/tabline-backend/internal/app/service"
	apperrors "github.com/ikkim/tabline-backend/internal/errors"
	"github.com/ikkim/tabline-backend/internal/storage"
	"github.com/ikkim/tabline-backend/internal/websocket"
)

func setupStaffRouter(export *stubExport, hub *websocket.Hub) http.Handler {
	ctrl := NewStaffController(export, newStubAuth(), hub, nil)
	router := newTestRouter()
	staff := router.Group("/api/v1/staff", asStaff(staffUserID))
	staff.GET("/exports/closed", ctrl.ExportClosed)
	staff.GET("/ws", ctrl.Stream)
	return router
}

func TestStaffController_ExportClosed_Streams(t *testing.T) {
	export := &stubExport{result: &service.ExportResult{
		Filename:    "closed-tabs-20260101-20260201.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Rows:        2,
		Content:     []byte("PK-workbook"),
	}}
	router := setupStaffRouter(export, websocket.NewHub())

	w := doJSON(t, router, http.MethodGet, "/api/v1/staff/exports/closed?from=2026-01-01&to=2026-01-31", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.result.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "closed-tabs-20260101-20260201.xlsx")
	assert.Equal(t, "PK-workbook", w.Body.String())

	// "to" is inclusive, so the service sees the following midnight.
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), export.from)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), export.to)
}

func TestStaffController_ExportClosed_Uploaded(t *testing.T) {
	expires := time.Date(2026, 2, 1, 12, 15, 0, 0, time.UTC)
	export := &stubExport{result: &service.ExportResult{
		Filename: "closed-tabs.xlsx",
		Rows:     5,
		Object: &storage.StoredObject{
			Key:         "exports/3/closed-tabs.xlsx",
			DownloadURL: "https://bucket.example/exports/3/closed-tabs.xlsx?sig=1",
			ExpiresAt:   expires,
		},
	}}
	router := setupStaffRouter(export, websocket.NewHub())

	w := doJSON(t, router, http.MethodGet, "/api/v1/staff/exports/closed?from=2026-01-01&to=2026-01-31", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "https://bucket.example/exports/3/closed-tabs.xlsx?sig=1", body["download_url"])
	assert.Equal(t, float64(5), body["rows"])
}

func TestStaffController_ExportClosed_BadRange(t *testing.T) {
	tests := []struct {
		name  string
		query string
		err   error
	}{
		{"Missing from", "?to=2026-01-31", nil},
		{"Malformed to", "?from=2026-01-01&to=31/01/2026", nil},
		{"Reversed", "?from=2026-02-01&to=2026-01-01", service.ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupStaffRouter(&stubExport{err: tt.err}, websocket.NewHub())

			w := doJSON(t, router, http.MethodGet, "/api/v1/staff/exports/closed"+tt.query, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, apperrors.ValidationInvalidRange, decode(t, w)["error"])
		})
	}
}

func TestStaffController_Stream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(setupStaffRouter(&stubExport{}, hub))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/staff/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ConnectedCount(3) == 1 }, time.Second, 10*time.Millisecond)

	hub.PublishToRestaurant(3, service.EventLinkOpened, map[string]interface{}{"ticket_link_id": 9})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event websocket.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, service.EventLinkOpened, event.Type)
	assert.Equal(t, uint(3), event.RestaurantID)
}
