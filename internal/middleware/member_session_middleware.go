package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ikkim/tabline-backend/internal/errors"
	"github.com/ikkim/tabline-backend/pkg/session"
)

const (
	MemberNumberKey = "member_number"
	CustomerIDKey   = "customer_id"
)

// MemberSession guards /api/member/:member routes with the session cookie
// set after PIN verification.
type MemberSession struct {
	sessions   *session.Manager
	cookieName string
}

func NewMemberSession(sessions *session.Manager, cookieName string) *MemberSession {
	if cookieName == "" {
		cookieName = "tab_session"
	}
	return &MemberSession{sessions: sessions, cookieName: cookieName}
}

func (m *MemberSession) CookieName() string {
	return m.cookieName
}

// Require rejects requests without a live member session, and sessions for a
// different member than the :member path parameter.
func (m *MemberSession) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)

		id, err := c.Cookie(m.cookieName)
		if err != nil || id == "" {
			apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthSessionRequired, "Session required")
			c.Abort()
			return
		}

		var member session.Member
		if err := m.sessions.Load(c.Request.Context(), id, &member); err != nil {
			if !errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrWrongKind) {
				log.Error("Failed to load member session", err)
			}
			apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthSessionRequired, "Session required")
			c.Abort()
			return
		}

		if param := c.Param("member"); param != "" && !strings.EqualFold(param, member.MemberNumber) {
			log.Warn("Session member does not match path", map[string]interface{}{
				"path_member": param,
			})
			apperrors.RespondWithError(c, http.StatusForbidden, apperrors.AuthzWrongMember, "Session belongs to another member")
			c.Abort()
			return
		}

		c.Set(MemberNumberKey, member.MemberNumber)
		c.Set(CustomerIDKey, member.CustomerID)
		c.Next()
	}
}

// GetMemberNumber returns the member number of the current session.
func GetMemberNumber(c *gin.Context) string {
	return c.GetString(MemberNumberKey)
}
