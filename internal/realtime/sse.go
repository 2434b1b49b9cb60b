package realtime

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/apperr"
	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/pkg/response"
)

// StreamOptions tunes the long-lived event streams.
type StreamOptions struct {
	Heartbeat time.Duration
	Buffer    int
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.Heartbeat <= 0 {
		o.Heartbeat = 15 * time.Second
	}
	if o.Buffer <= 0 {
		o.Buffer = 64
	}
	return o
}

// ServeSSE streams the session poll's events as server-sent events until the
// client disconnects, the broker closes, or the session user is kicked.
func ServeSSE(broker *Broker, opts StreamOptions, logger *zap.Logger) gin.HandlerFunc {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		sess := session.From(c)
		if !sess.HasPoll() {
			response.Error(c, logger, apperr.Authorization("no poll in session"))
			return
		}

		sub := NewSubscriber(opts.Buffer).EndOnKick(sess.UserID)
		_, cancel := broker.Subscribe(sess.PollID, sub.Deliver)
		defer cancel()

		h := c.Writer.Header()
		h.Set("Content-Type", sse.ContentType)
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		if _, err := io.WriteString(c.Writer, ":ok\n\n"); err != nil {
			return
		}
		c.Writer.Flush()

		ticker := broker.clock.NewTicker(opts.Heartbeat)
		defer ticker.Stop()
		ctx := c.Request.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-broker.Done():
				return
			case <-sub.Gone():
				drainSSE(c.Writer, sub)
				logger.Info("sse stream ended for kicked participant", zap.String("user_id", sess.UserID.String()))
				return
			case <-ticker.Chan():
				if _, err := io.WriteString(c.Writer, ":keepalive\n\n"); err != nil {
					return
				}
				c.Writer.Flush()
			case ev := <-sub.Events():
				err := sse.Encode(c.Writer, sse.Event{Event: ev.Name, Data: ev.Data})
				if err != nil {
					logger.Debug("sse write failed", zap.Error(err))
					return
				}
				c.Writer.Flush()
			}
		}
	}
}

// drainSSE writes what was buffered up to and including the kick.
func drainSSE(w gin.ResponseWriter, sub *Subscriber) {
	for {
		select {
		case ev := <-sub.Events():
			if sse.Encode(w, sse.Event{Event: ev.Name, Data: ev.Data}) != nil {
				return
			}
		default:
			w.Flush()
			return
		}
	}
}
