package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/apperr"
	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/pkg/response"
)

// KickChecker reports whether a user has been removed from a poll.
type KickChecker interface {
	IsKicked(ctx context.Context, pollID, userID uuid.UUID) (bool, error)
}

// RejectKicked stops requests from students that were kicked from the session poll.
func RejectKicked(checker KickChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := session.From(c)
		if !sess.IsStudent() || !sess.HasPoll() || !sess.HasUser() {
			c.Next()
			return
		}
		kicked, err := checker.IsKicked(c.Request.Context(), sess.PollID, sess.UserID)
		if err != nil {
			response.Error(c, logger, err)
			return
		}
		if kicked {
			response.Error(c, logger, apperr.Authorization("removed from this poll"))
			return
		}
		c.Next()
	}
}
