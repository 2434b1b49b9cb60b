package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig holds connection settings for the NATS bridge.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// NATSBridge implements Bridge over core NATS subjects, one per poll.
type NATSBridge struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

var _ Bridge = (*NATSBridge)(nil)

// NewNATSBridge connects to NATS.
func NewNATSBridge(cfg NATSConfig, logger *zap.Logger) (*NATSBridge, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "livepoll.poll"
	}
	opts := []nats.Option{
		nats.Name("livepoll"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS error", zap.Error(err))
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSBridge{nc: nc, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

func (n *NATSBridge) subject(pollID uuid.UUID) string {
	return n.prefix + "." + pollID.String()
}

// PublishPollEvent publishes ev on the poll subject.
func (n *NATSBridge) PublishPollEvent(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.nc.Publish(n.subject(ev.PollID), body)
}

// SubscribePoll delivers every event on the poll subject to handler.
func (n *NATSBridge) SubscribePoll(pollID uuid.UUID, handler func(Event)) (func(), error) {
	sub, err := n.nc.Subscribe(n.subject(pollID), func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			n.logger.Warn("drop malformed NATS event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed && err != nats.ErrBadSubscription {
			n.logger.Warn("NATS unsubscribe", zap.Error(err))
		}
	}, nil
}

// Close drains the connection.
func (n *NATSBridge) Close() {
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
	}
}
