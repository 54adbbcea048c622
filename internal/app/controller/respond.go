package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ikkim/tabline-backend/internal/app/service"
	apperrors "github.com/ikkim/tabline-backend/internal/errors"
	"github.com/ikkim/tabline-backend/internal/middleware"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Order matters only where one sentinel wraps another; none currently do.
var errorMappings = []errorMapping{
	{service.ErrMemberNotFound, http.StatusNotFound, apperrors.LinkMemberNotFound, "Member not found"},
	{service.ErrLastNameMismatch, http.StatusBadRequest, apperrors.LinkLastNameMismatch, "Last name does not match"},
	{service.ErrLinkTargetRequired, http.StatusBadRequest, apperrors.ValidationRequired, "ticket_id or check_hint is required"},
	{service.ErrTicketNotFound, http.StatusNotFound, apperrors.LinkTicketNotFound, "No matching open ticket"},
	{service.ErrTicketUnavailable, http.StatusConflict, apperrors.LinkTicketUnavailable, "Ticket is no longer open"},
	{service.ErrNoPhoneOnFile, http.StatusBadRequest, apperrors.LinkNoPhoneOnFile, "Member has no phone on file"},
	{service.ErrSMSFailed, http.StatusBadGateway, apperrors.LinkSMSFailed, "Could not send verification text"},
	{service.ErrPOSUnavailable, http.StatusBadGateway, apperrors.InternalExternalAPI, "Point of sale is unavailable"},
	{service.ErrRestaurantNotFound, http.StatusNotFound, apperrors.ResourceNotFound, "Restaurant not found"},
	{service.ErrLinkNotFound, http.StatusNotFound, apperrors.ResourceNotFound, "Ticket link not found"},
	{service.ErrLinkNotPending, http.StatusConflict, apperrors.LinkNotPending, "Ticket link is not pending"},
	{service.ErrInvalidStatus, http.StatusBadRequest, apperrors.ValidationInvalidInput, "Invalid status"},

	{service.ErrInvalidLink, http.StatusBadRequest, apperrors.VerifyInvalidLink, "Invalid or expired link"},
	{service.ErrInvalidPIN, http.StatusUnauthorized, apperrors.VerifyInvalidPIN, "Incorrect PIN"},
	{service.ErrTooManyAttempts, http.StatusTooManyRequests, apperrors.VerifyTooManyAttempts, "Too many attempts"},

	{service.ErrNoActiveTicket, http.StatusNotFound, apperrors.SettlementNoActiveTicket, "No open tab"},
	{service.ErrNothingDue, http.StatusBadRequest, apperrors.SettlementNothingDue, "Nothing is due on this tab"},
	{service.ErrInvalidTip, http.StatusBadRequest, apperrors.SettlementInvalidTip, "Tip must not be negative"},
	{service.ErrMissingPaymentMethod, http.StatusBadRequest, apperrors.SettlementMissingPaymentMethod, "No card on file"},
	{service.ErrConcurrentModification, http.StatusConflict, apperrors.SettlementConcurrent, "Tab is being updated, try again"},
	{service.ErrReceiptNotFound, http.StatusNotFound, apperrors.ResourceNotFound, "Receipt not found"},

	{service.ErrInvalidRating, http.StatusBadRequest, apperrors.ReviewInvalidRating, "Rating must be between 1 and 5"},
	{service.ErrReviewAlreadyExists, http.StatusConflict, apperrors.ReviewAlreadyExists, "Tab already reviewed"},
	{service.ErrTabNotClosed, http.StatusConflict, apperrors.ReviewTabNotClosed, "Tab is not closed yet"},

	{service.ErrInvalidRange, http.StatusBadRequest, apperrors.ValidationInvalidRange, "Invalid date range"},
	{service.ErrInvalidInput, http.StatusBadRequest, apperrors.ValidationInvalidInput, "Invalid input"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, apperrors.AuthInvalidCredentials, "Invalid email or password"},
	{service.ErrUserNotFound, http.StatusUnauthorized, apperrors.AuthUnauthorized, "Login required"},
}

// respondError translates a service error into the JSON error body. Failures
// with no mapping are logged and reported as 500.
func respondError(c *gin.Context, err error, action string) {
	log := middleware.GetLoggerFromContext(c)

	var chargeErr *service.ChargeFailedError
	var refunded *service.POSRefundedError
	var unreconciled *service.UnreconciledError
	var unrecorded *service.UnrecordedCloseError

	switch {
	case errors.As(err, &chargeErr):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"ok":             false,
			"error":          apperrors.SettlementChargeFailed,
			"message":        chargeErr.Message,
			"code":           chargeErr.Code,
			"decline_code":   chargeErr.DeclineCode,
			"payment_intent": chargeErr.PaymentIntentID,
		})
		return
	case errors.As(err, &refunded):
		c.JSON(http.StatusBadGateway, gin.H{
			"ok":             false,
			"error":          apperrors.SettlementPOSFailedRefunded,
			"message":        "The restaurant could not record the payment; your card was refunded",
			"pos_detail":     refunded.POSDetail,
			"payment_intent": refunded.PaymentIntentID,
		})
		return
	case errors.As(err, &unreconciled):
		log.Error("Unreconciled payment", err, map[string]interface{}{
			"payment_intent_id": unreconciled.PaymentIntentID,
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":             false,
			"error":          apperrors.SettlementUnreconciled,
			"message":        "Payment needs manual reconciliation",
			"pos_detail":     unreconciled.POSDetail,
			"refund_detail":  unreconciled.RefundDetail,
			"payment_intent": unreconciled.PaymentIntentID,
		})
		return
	case errors.As(err, &unrecorded):
		log.Error("Settled tab not recorded", err, map[string]interface{}{
			"payment_intent_id": unrecorded.PaymentIntentID,
			"pos_ref":           unrecorded.POSRef,
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":             false,
			"error":          apperrors.SettlementUnrecorded,
			"message":        "Your payment went through but the tab could not be updated; staff will confirm it",
			"payment_intent": unrecorded.PaymentIntentID,
			"pos_ref":        unrecorded.POSRef,
		})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, gin.H{
				"ok":      false,
				"error":   m.code,
				"message": m.message,
			})
			return
		}
	}

	log.Error("Failed to "+action, err)
	apperrors.ParseAndRespond(c, http.StatusInternalServerError, err, action)
}
