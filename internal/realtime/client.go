package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/apperr"
	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/pkg/response"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	maxReadSize  = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is a single WebSocket connection subscribed to one poll.
type Client struct {
	ID     SubscriptionID
	PollID uuid.UUID
	UserID uuid.UUID
	Role   models.Role
	conn   *websocket.Conn
	sub    *Subscriber
	broker *Broker
	logger *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The channel
// is server-to-client; inbound frames other than control frames are ignored.
func ServeWs(broker *Broker, opts StreamOptions, logger *zap.Logger) gin.HandlerFunc {
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

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			PollID: sess.PollID,
			UserID: sess.UserID,
			Role:   sess.Role,
			conn:   conn,
			sub:    NewSubscriber(opts.Buffer).EndOnKick(sess.UserID),
			broker: broker,
			logger: logger,
		}
		id, cancel := broker.Subscribe(client.PollID, client.sub.Deliver)
		client.ID = id
		logger.Debug("websocket client joined poll", zap.Uint64("client_id", uint64(id)), zap.String("poll_id", client.PollID.String()))

		stop := make(chan struct{})
		go client.writePump(stop)
		client.readPump()
		cancel()
		close(stop)
	}
}

func (c *Client) readPump() {
	defer func() {
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	}
}

func (c *Client) writePump(stop <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-stop:
			return
		case <-c.broker.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-c.sub.Gone():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			for drained := false; !drained; {
				select {
				case ev := <-c.sub.Events():
					if err := c.conn.WriteJSON(WSMessage{Event: ev.Name, Data: ev.Data}); err != nil {
						return
					}
				default:
					drained = true
				}
			}
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "kicked"))
			c.logger.Info("websocket closed for kicked participant", zap.String("user_id", c.UserID.String()))
			return
		case ev := <-c.sub.Events():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(WSMessage{Event: ev.Name, Data: ev.Data}); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
