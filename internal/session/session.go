// Package session resolves the caller's identity from small client-held values.
//
// A session is three independent values: user id, poll id and role. Each may be
// absent. Browsers carry them as the cookies uid, pid and role; other clients
// send a signed token with the same claims.
package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-classroom/livepoll/internal/models"
)

const (
	CookieUserID = "uid"
	CookiePollID = "pid"
	CookieRole   = "role"

	// ContextKey is the gin context key holding the resolved Session.
	ContextKey = "session"
)

// Session identifies the caller. Zero fields are absent.
type Session struct {
	UserID uuid.UUID   `json:"user_id"`
	PollID uuid.UUID   `json:"poll_id"`
	Role   models.Role `json:"role,omitempty"`
}

func (s Session) HasUser() bool   { return s.UserID != uuid.Nil }
func (s Session) HasPoll() bool   { return s.PollID != uuid.Nil }
func (s Session) IsTeacher() bool { return s.Role == models.RoleTeacher }
func (s Session) IsStudent() bool { return s.Role == models.RoleStudent }

// Merge returns base with every non-zero field of partial written over it.
func Merge(base, partial Session) Session {
	if partial.HasUser() {
		base.UserID = partial.UserID
	}
	if partial.HasPoll() {
		base.PollID = partial.PollID
	}
	if partial.Role != "" {
		base.Role = partial.Role
	}
	return base
}

// CookieOptions controls how carrier cookies are written.
type CookieOptions struct {
	Secure bool
	MaxAge int // seconds; 0 = browser session
}

// FromCookies reads the carrier cookies. Malformed values count as absent.
func FromCookies(r *http.Request) Session {
	var s Session
	if c, err := r.Cookie(CookieUserID); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			s.UserID = id
		}
	}
	if c, err := r.Cookie(CookiePollID); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			s.PollID = id
		}
	}
	if c, err := r.Cookie(CookieRole); err == nil {
		if role := models.Role(c.Value); role.Valid() {
			s.Role = role
		}
	}
	return s
}

// Resolve returns the caller's session. A valid bearer token (header or
// ?token=) wins; otherwise the cookies are used.
func Resolve(r *http.Request, tokens *TokenService) Session {
	if tokens != nil {
		if raw := bearerToken(r); raw != "" {
			if s, err := tokens.Validate(raw); err == nil {
				return s
			}
		}
	}
	return FromCookies(r)
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}

// Set writes only the non-zero fields of partial; absent fields keep whatever
// the client already holds.
func Set(c *gin.Context, partial Session, opts CookieOptions) {
	c.SetSameSite(http.SameSiteLaxMode)
	if partial.HasUser() {
		c.SetCookie(CookieUserID, partial.UserID.String(), opts.MaxAge, "/", "", opts.Secure, false)
	}
	if partial.HasPoll() {
		c.SetCookie(CookiePollID, partial.PollID.String(), opts.MaxAge, "/", "", opts.Secure, false)
	}
	if partial.Role != "" {
		c.SetCookie(CookieRole, string(partial.Role), opts.MaxAge, "/", "", opts.Secure, false)
	}
	Store(c, Merge(From(c), partial))
}

// Store puts s into the request context.
func Store(c *gin.Context, s Session) {
	c.Set(ContextKey, s)
}

// From returns the session stored by the session middleware, or an empty one.
func From(c *gin.Context) Session {
	if v, ok := c.Get(ContextKey); ok {
		if s, ok := v.(Session); ok {
			return s
		}
	}
	return Session{}
}
