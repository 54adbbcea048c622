package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ikkim/tabline-backend/internal/app/service"
	apperrors "github.com/ikkim/tabline-backend/internal/errors"
	"github.com/ikkim/tabline-backend/internal/middleware"
)

type ReviewController struct {
	reviewService *service.ReviewService
	authService   service.AuthService
}

func NewReviewController(reviewService *service.ReviewService, authService service.AuthService) *ReviewController {
	return &ReviewController{
		reviewService: reviewService,
		authService:   authService,
	}
}

type SubmitReviewRequest struct {
	TicketLinkID uint   `json:"ticket_link_id" binding:"required"`
	Rating       int    `json:"rating" binding:"required"`
	Comment      string `json:"comment" binding:"max=1000"`
}

// Submit rates a closed tab
// POST /api/member/:member/reviews
func (ctrl *ReviewController) Submit(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid review request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "ticket_link_id and rating are required")
		return
	}

	review, err := ctrl.reviewService.Submit(middleware.GetMemberNumber(c), req.TicketLinkID, req.Rating, req.Comment)
	if err != nil {
		respondError(c, err, "create review")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ok":     true,
		"review": review,
	})
}

// Analytics returns rating stats for the staff member's restaurant
// GET /api/v1/staff/analytics/ratings
func (ctrl *ReviewController) Analytics(c *gin.Context) {
	user, ok := currentStaff(c, ctrl.authService)
	if !ok {
		return
	}

	analytics, err := ctrl.reviewService.Analytics(user.RestaurantID)
	if err != nil {
		respondError(c, err, "load review analytics")
		return
	}

	c.JSON(http.StatusOK, analytics)
}
