// Package chat is the append-only message log of a poll.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/apperr"
	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/internal/realtime"
	"github.com/aura-classroom/livepoll/internal/session"
)

const maxHistoryLimit = 200

// Store is the storage the chat log needs.
type Store interface {
	AppendChatMessage(ctx context.Context, pollID, userID uuid.UUID, text string, now time.Time) (*models.ChatMessage, error)
	RecentChatMessages(ctx context.Context, pollID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

// Options bounds chat messages and history reads.
type Options struct {
	HistoryLimit int
	MaxLength    int
}

// Service implements chat posting and reading.
type Service struct {
	store  Store
	events realtime.Publisher
	clock  clockwork.Clock
	opts   Options
	logger *zap.Logger
}

// NewService creates a chat service.
func NewService(st Store, events realtime.Publisher, clock clockwork.Clock, opts Options, logger *zap.Logger) *Service {
	if events == nil {
		events = realtime.NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.HistoryLimit > maxHistoryLimit {
		opts.HistoryLimit = maxHistoryLimit
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = 1000
	}
	return &Service{store: st, events: events, clock: clock, opts: opts, logger: logger}
}

// Post appends a message from the session user.
func (s *Service) Post(ctx context.Context, sess session.Session, text string) (*models.ChatMessage, error) {
	if !sess.HasPoll() || !sess.HasUser() {
		return nil, apperr.Authorization("poll and user required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("message text is required")
	}
	if utf8.RuneCountInString(text) > s.opts.MaxLength {
		return nil, apperr.Validation(fmt.Sprintf("message longer than %d characters", s.opts.MaxLength))
	}
	msg, err := s.store.AppendChatMessage(ctx, sess.PollID, sess.UserID, text, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("append chat message: %w", err)
	}
	s.events.Publish(sess.PollID, realtime.EventChatMessage, msg)
	return msg, nil
}

// Recent returns up to limit of the newest messages, oldest first. A
// non-positive limit uses the configured default.
func (s *Service) Recent(ctx context.Context, sess session.Session, limit int) ([]models.ChatMessage, error) {
	if !sess.HasPoll() {
		return []models.ChatMessage{}, nil
	}
	if limit <= 0 {
		limit = s.opts.HistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.store.RecentChatMessages(ctx, sess.PollID, limit)
}
