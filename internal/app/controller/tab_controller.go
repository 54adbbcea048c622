package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ikkim/tabline-backend/internal/app/service"
	apperrors "github.com/ikkim/tabline-backend/internal/errors"
	"github.com/ikkim/tabline-backend/internal/middleware"
)

// TabController serves the member side of an open or closed tab. Every
// route runs behind the member session middleware.
type TabController struct {
	receiptService    service.ReceiptService
	settlementService service.SettlementService
}

func NewTabController(receiptService service.ReceiptService, settlementService service.SettlementService) *TabController {
	return &TabController{
		receiptService:    receiptService,
		settlementService: settlementService,
	}
}

type CloseTabRequest struct {
	TipCents  *int64 `json:"tip_cents" binding:"required"`
	Reference string `json:"reference"`
}

// LiveReceipt returns the running bill for the member's open tab
// GET /api/member/:member/receipt
func (ctrl *TabController) LiveReceipt(c *gin.Context) {
	receipt, err := ctrl.receiptService.Live(c.Request.Context(), middleware.GetMemberNumber(c))
	if err != nil {
		respondError(c, err, "load receipt")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"receipt": receipt,
	})
}

// History lists the member's closed tabs
// GET /api/member/:member/receipts
func (ctrl *TabController) History(c *gin.Context) {
	receipts, err := ctrl.receiptService.History(middleware.GetMemberNumber(c))
	if err != nil {
		respondError(c, err, "load receipts")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"receipts": receipts,
		"count":    len(receipts),
	})
}

// ClosedReceipt returns one closed tab
// GET /api/member/:member/receipts/:id
func (ctrl *TabController) ClosedReceipt(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	receipt, err := ctrl.receiptService.Closed(middleware.GetMemberNumber(c), id)
	if err != nil {
		respondError(c, err, "load receipt")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"receipt": receipt,
	})
}

// Close charges the card on file and settles the ticket
// POST /api/member/:member/close
func (ctrl *TabController) Close(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	member := middleware.GetMemberNumber(c)

	var req CloseTabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.SettlementInvalidTip, "tip_cents is required")
		return
	}

	result, err := ctrl.settlementService.CloseTab(c.Request.Context(), member, *req.TipCents, req.Reference)
	if err != nil {
		respondError(c, err, "close tab")
		return
	}

	log.Info("Tab closed", map[string]interface{}{
		"member_number":  member,
		"paid_cents":     result.PaidCents,
		"payment_intent": result.PaymentIntent,
	})
	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"paid_cents":     result.PaidCents,
		"tip_cents":      result.TipCents,
		"base_due_cents": result.BaseDueCents,
		"payment_intent": result.PaymentIntent,
		"destination":    result.Destination,
		"review":         result.Review,
	})
}

type profileView struct {
	MemberNumber string
	Live         *service.LiveReceipt
	History      []service.ReceiptSummary
}

// Profile renders the member's landing page after PIN verification
// GET /profile/:member
func (ctrl *TabController) Profile(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	member := middleware.GetMemberNumber(c)

	view := profileView{MemberNumber: member}

	live, err := ctrl.receiptService.Live(c.Request.Context(), member)
	switch {
	case err == nil:
		view.Live = live
	case errors.Is(err, service.ErrNoActiveTicket):
	default:
		log.Error("Failed to load live receipt", err)
	}

	history, err := ctrl.receiptService.History(member)
	if err != nil {
		log.Error("Failed to load receipt history", err)
	}
	view.History = history

	c.HTML(http.StatusOK, "profile.html", view)
}
