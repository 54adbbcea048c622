package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/service"
	apperrors "github.com/ikkim/tabline-backend/internal/errors"
	"github.com/ikkim/tabline-backend/internal/middleware"
)

const defaultListLimit = 100

type LinkController struct {
	linkingService service.LinkingService
	linkService    service.TicketLinkService
	authService    service.AuthService
}

func NewLinkController(
	linkingService service.LinkingService,
	linkService service.TicketLinkService,
	authService service.AuthService,
) *LinkController {
	return &LinkController{
		linkingService: linkingService,
		linkService:    linkService,
		authService:    authService,
	}
}

type LinkMemberRequest struct {
	MemberNumber string `json:"member_number" binding:"required"`
	LastName     string `json:"last_name"`
	TicketID     string `json:"ticket_id"`
	CheckHint    string `json:"check_hint"`
}

// LinkMember texts a verification link to the member for an open ticket
// POST /api/link-member
func (ctrl *LinkController) LinkMember(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	user, ok := currentStaff(c, ctrl.authService)
	if !ok {
		return
	}

	var req LinkMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid link request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "member_number is required")
		return
	}

	result, err := ctrl.linkingService.Link(c.Request.Context(), service.LinkRequest{
		RestaurantID: user.RestaurantID,
		MemberNumber: req.MemberNumber,
		LastName:     req.LastName,
		TicketID:     req.TicketID,
		CheckHint:    req.CheckHint,
	})
	if err != nil {
		respondError(c, err, "link member")
		return
	}

	if result.Multiple {
		c.JSON(http.StatusOK, gin.H{
			"ok":         true,
			"multiple":   true,
			"candidates": result.Candidates,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"sent":           result.Sent,
		"ticket_link_id": result.TicketLinkID,
	})
}

// ListLinks lists the restaurant's ticket links, optionally by status
// GET /api/v1/staff/links?status=pending&limit=50
func (ctrl *LinkController) ListLinks(c *gin.Context) {
	user, ok := currentStaff(c, ctrl.authService)
	if !ok {
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "limit must be a positive integer")
			return
		}
		limit = n
	}

	links, err := ctrl.linkService.List(user.RestaurantID, model.TicketLinkStatus(c.Query("status")), limit)
	if err != nil {
		respondError(c, err, "list ticket links")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"links": links,
		"count": len(links),
	})
}

// ResendLink re-texts a pending link with a fresh token
// POST /api/v1/staff/links/:id/resend
func (ctrl *LinkController) ResendLink(c *gin.Context) {
	user, ok := currentStaff(c, ctrl.authService)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	link, err := ctrl.linkingService.Resend(c.Request.Context(), user.RestaurantID, id)
	if err != nil {
		respondError(c, err, "resend ticket link")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"link": link,
	})
}

// CancelLink removes a pending link
// DELETE /api/v1/staff/links/:id
func (ctrl *LinkController) CancelLink(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	user, ok := currentStaff(c, ctrl.authService)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := ctrl.linkingService.Cancel(user.RestaurantID, id); err != nil {
		respondError(c, err, "cancel ticket link")
		return
	}

	log.Info("Ticket link cancelled", map[string]interface{}{
		"ticket_link_id": id,
		"user_id":        user.ID,
	})
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
	})
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid ID")
		return 0, false
	}
	return uint(id), true
}
