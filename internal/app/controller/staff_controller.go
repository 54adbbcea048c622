package controller

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/ikkim/tabline-backend/internal/app/service"
	apperrors "github.com/ikkim/tabline-backend/internal/errors"
	"github.com/ikkim/tabline-backend/internal/middleware"
	"github.com/ikkim/tabline-backend/internal/websocket"
)

const exportDateLayout = "2006-01-02"

// StaffController serves dashboard exports and the live event stream.
type StaffController struct {
	exportService service.ExportService
	authService   service.AuthService
	hub           *websocket.Hub
	upgrader      gorillaws.Upgrader
}

func NewStaffController(
	exportService service.ExportService,
	authService service.AuthService,
	hub *websocket.Hub,
	allowedOrigins []string,
) *StaffController {
	return &StaffController{
		exportService: exportService,
		authService:   authService,
		hub:           hub,
		upgrader:      websocket.NewUpgrader(allowedOrigins),
	}
}

// ExportClosed builds an XLSX of closed tabs between from and to, both
// inclusive dates. The workbook is streamed unless object storage is
// configured, in which case a presigned link is returned.
// GET /api/v1/staff/exports/closed?from=2026-01-01&to=2026-01-31
func (ctrl *StaffController) ExportClosed(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	user, ok := currentStaff(c, ctrl.authService)
	if !ok {
		return
	}

	from, err := time.ParseInLocation(exportDateLayout, c.Query("from"), time.UTC)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidRange, "from must be YYYY-MM-DD")
		return
	}
	to, err := time.ParseInLocation(exportDateLayout, c.Query("to"), time.UTC)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidRange, "to must be YYYY-MM-DD")
		return
	}

	result, err := ctrl.exportService.ExportClosed(c.Request.Context(), user.RestaurantID, from, to.AddDate(0, 0, 1))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRange) {
			respondError(c, err, "export closed tabs")
			return
		}
		log.Error("Export failed", err, map[string]interface{}{
			"restaurant_id": user.RestaurantID,
		})
		apperrors.RespondWithError(c, http.StatusInternalServerError, apperrors.ExportFailed, "Export failed")
		return
	}

	if result.Object != nil {
		c.JSON(http.StatusOK, gin.H{
			"ok":           true,
			"filename":     result.Filename,
			"rows":         result.Rows,
			"download_url": result.Object.DownloadURL,
			"expires_at":   result.Object.ExpiresAt,
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

// Stream upgrades to a websocket that receives ticket link events for the
// staff member's restaurant
// GET /api/v1/staff/ws
func (ctrl *StaffController) Stream(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	user, ok := currentStaff(c, ctrl.authService)
	if !ok {
		return
	}

	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Warn("WebSocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	client := websocket.NewClient(ctrl.hub, conn, user.ID, user.RestaurantID)
	ctrl.hub.Register(client)

	log.Info("Dashboard connected", map[string]interface{}{
		"user_id":       user.ID,
		"restaurant_id": user.RestaurantID,
	})

	go client.WritePump()
	client.ReadPump()
}
