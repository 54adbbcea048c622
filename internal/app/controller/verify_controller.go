package controller

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ikkim/tabline-backend/internal/app/service"
	"github.com/ikkim/tabline-backend/internal/middleware"
)

const invalidLinkMessage = "This link is invalid or has expired."

type SessionCookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// VerifyController serves the PIN page a member reaches from the SMS link.
type VerifyController struct {
	verificationService service.VerificationService
	cookie              SessionCookieConfig
}

func NewVerifyController(verificationService service.VerificationService, cookie SessionCookieConfig) *VerifyController {
	if cookie.Name == "" {
		cookie.Name = "tab_session"
	}
	return &VerifyController{
		verificationService: verificationService,
		cookie:              cookie,
	}
}

type verifyView struct {
	Invalid        bool
	Error          string
	RestaurantName string
	TicketID       string
	Token          string
	Action         string
}

// ShowPIN renders the PIN entry page
// GET /verify/:member?t=
func (ctrl *VerifyController) ShowPIN(c *gin.Context) {
	member := c.Param("member")
	token := c.Query("t")

	prompt, err := ctrl.verificationService.Inspect(c.Request.Context(), member, token)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidLink) {
			middleware.GetLoggerFromContext(c).Error("Failed to inspect verification link", err)
		}
		ctrl.renderInvalid(c, http.StatusBadRequest)
		return
	}

	c.HTML(http.StatusOK, "verify.html", verifyView{
		RestaurantName: prompt.RestaurantName,
		TicketID:       prompt.TicketID,
		Token:          token,
		Action:         verifyAction(member, token),
	})
}

// SubmitPIN checks the PIN and redirects to the member profile
// POST /verify/:member?t=
func (ctrl *VerifyController) SubmitPIN(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	member := c.Param("member")
	token := c.Query("t")
	if token == "" {
		token = c.PostForm("t")
	}
	pin := c.PostForm("pin")

	result, err := ctrl.verificationService.VerifyPIN(c.Request.Context(), member, token, pin)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidLink):
			ctrl.renderInvalid(c, http.StatusBadRequest)
		case errors.Is(err, service.ErrTooManyAttempts):
			c.HTML(http.StatusTooManyRequests, "verify.html", verifyView{
				Invalid: true,
				Error:   "Too many incorrect attempts.",
			})
		case errors.Is(err, service.ErrInvalidPIN):
			ctrl.renderRetry(c, http.StatusUnauthorized, member, token, "Incorrect PIN. Try again.")
		case errors.Is(err, service.ErrTicketUnavailable):
			c.HTML(http.StatusConflict, "verify.html", verifyView{
				Invalid: true,
				Error:   "This check is no longer open.",
			})
		case errors.Is(err, service.ErrPOSUnavailable):
			ctrl.renderRetry(c, http.StatusBadGateway, member, token, "We could not reach the restaurant. Try again in a moment.")
		default:
			log.Error("PIN verification failed", err)
			ctrl.renderRetry(c, http.StatusInternalServerError, member, token, "Something went wrong. Try again in a moment.")
		}
		return
	}

	log.Info("Tab opened", map[string]interface{}{
		"ticket_link_id": result.Link.ID,
		"member_number":  member,
	})

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ctrl.cookie.Name, result.SessionID, int(ctrl.cookie.TTL.Seconds()), "/", "", ctrl.cookie.Secure, true)
	c.Redirect(http.StatusFound, "/profile/"+url.PathEscape(member))
}

func (ctrl *VerifyController) renderInvalid(c *gin.Context, status int) {
	c.HTML(status, "verify.html", verifyView{
		Invalid: true,
		Error:   invalidLinkMessage,
	})
}

// renderRetry shows the form again. Prompt details are re-read so the page
// keeps the restaurant name.
func (ctrl *VerifyController) renderRetry(c *gin.Context, status int, member, token, message string) {
	view := verifyView{
		Error:  message,
		Token:  token,
		Action: verifyAction(member, token),
	}
	if prompt, err := ctrl.verificationService.Inspect(c.Request.Context(), member, token); err == nil {
		view.RestaurantName = prompt.RestaurantName
		view.TicketID = prompt.TicketID
	}
	c.HTML(status, "verify.html", view)
}

func verifyAction(member, token string) string {
	return "/verify/" + url.PathEscape(member) + "?t=" + url.QueryEscape(token)
}
