package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ikkim/tabline-backend/internal/app/service"
	apperrors "github.com/ikkim/tabline-backend/internal/errors"
	"github.com/ikkim/tabline-backend/internal/middleware"
)

type MemberController struct {
	memberService service.MemberService
}

func NewMemberController(memberService service.MemberService) *MemberController {
	return &MemberController{memberService: memberService}
}

type EnrollRequest struct {
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name" binding:"required"`
	Email                string `json:"email" binding:"omitempty,email"`
	Phone                string `json:"phone" binding:"required"`
	PIN                  string `json:"pin" binding:"required,len=4,numeric"`
	StripeCustomerID     string `json:"stripe_customer_id"`
	DefaultPaymentMethod string `json:"default_payment_method"`
}

// Enroll creates a customer and assigns a member number
// POST /api/v1/members
func (ctrl *MemberController) Enroll(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid enroll request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "last_name, phone and a 4-digit pin are required")
		return
	}

	member, err := ctrl.memberService.Enroll(service.EnrollInput{
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		Email:                req.Email,
		Phone:                req.Phone,
		PIN:                  req.PIN,
		StripeCustomerID:     req.StripeCustomerID,
		DefaultPaymentMethod: req.DefaultPaymentMethod,
	})
	if err != nil {
		if errors.Is(err, service.ErrMemberNumberExhausted) {
			log.Error("Member number allocation exhausted", err)
			apperrors.Conflict(c, apperrors.ResourceConflict, "Could not allocate a member number, try again")
			return
		}
		respondError(c, err, "create member")
		return
	}

	log.Info("Member enrolled", map[string]interface{}{
		"member_number": member.Number,
	})
	c.JSON(http.StatusCreated, gin.H{
		"ok":     true,
		"member": member,
	})
}
