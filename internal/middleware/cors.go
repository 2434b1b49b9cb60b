package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS answers preflights and tags responses for browser clients. origins is
// "*" or a comma separated allow-list. Only allow-listed origins get
// Allow-Credentials, since browsers refuse to send the session cookie to a
// wildcard origin.
func CORS(origins string) gin.HandlerFunc {
	allowed := originSet(origins)
	wildcard := len(allowed) == 0 || allowed["*"]
	return func(c *gin.Context) {
		if origin := resolveOrigin(c.GetHeader("Origin"), allowed, wildcard); origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Max-Age", "86400")
			if origin != "*" {
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func resolveOrigin(origin string, allowed map[string]bool, wildcard bool) string {
	switch {
	case wildcard:
		return "*"
	case origin != "" && allowed[origin]:
		return origin
	default:
		return ""
	}
}

func originSet(list string) map[string]bool {
	set := make(map[string]bool)
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimSpace(o); o != "" {
			set[o] = true
		}
	}
	return set
}
