package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-classroom/livepoll/internal/session"
)

// Session resolves the caller's session from the token or cookies and stores
// it in the gin context. A missing session is not an error here; each
// operation decides which fields it needs.
func Session(tokens *session.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		session.Store(c, session.Resolve(c.Request, tokens))
		c.Next()
	}
}
