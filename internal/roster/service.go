// Package roster lists poll participants and removes them on request.
package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/apperr"
	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/internal/realtime"
	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/internal/store"
)

// Store is the storage the roster needs.
type Store interface {
	ListParticipants(ctx context.Context, pollID uuid.UUID) ([]models.Participant, error)
	GetParticipation(ctx context.Context, pollID, userID uuid.UUID) (*models.Participation, error)
	KickParticipant(ctx context.Context, pollID, userID uuid.UUID, now time.Time) (*models.Participation, error)
}

// Service implements the roster operations.
type Service struct {
	store  Store
	events realtime.Publisher
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewService creates a roster service.
func NewService(st Store, events realtime.Publisher, clock clockwork.Clock, logger *zap.Logger) *Service {
	if events == nil {
		events = realtime.NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, events: events, clock: clock, logger: logger}
}

// List returns the participants that have not been kicked, by join time.
func (s *Service) List(ctx context.Context, sess session.Session) ([]models.Participant, error) {
	if !sess.HasPoll() {
		return []models.Participant{}, nil
	}
	return s.store.ListParticipants(ctx, sess.PollID)
}

// Kick removes userID from the roster. Votes and chat stay.
func (s *Service) Kick(ctx context.Context, sess session.Session, userID uuid.UUID) (*models.Participation, error) {
	if !sess.IsTeacher() || !sess.HasPoll() {
		return nil, apperr.Authorization("teacher with a poll required")
	}
	if userID == uuid.Nil {
		return nil, apperr.Validation("user_id is required")
	}
	p, err := s.store.KickParticipant(ctx, sess.PollID, userID, s.clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("participant not found")
	}
	if err != nil {
		return nil, fmt.Errorf("kick participant: %w", err)
	}
	s.logger.Info("participant kicked", zap.String("poll_id", sess.PollID.String()), zap.String("user_id", userID.String()))
	s.events.Publish(sess.PollID, realtime.EventParticipantKicked, realtime.ParticipantKicked{PollID: sess.PollID, UserID: userID})
	s.events.Publish(sess.PollID, realtime.EventRosterChanged, realtime.RosterChanged{PollID: sess.PollID, UserID: userID, Reason: "kicked"})
	return p, nil
}

// State returns the participation of userID in pollID, or nil if they never joined.
func (s *Service) State(ctx context.Context, pollID, userID uuid.UUID) (*models.Participation, error) {
	p, err := s.store.GetParticipation(ctx, pollID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// IsKicked reports whether userID has been kicked from pollID.
func (s *Service) IsKicked(ctx context.Context, pollID, userID uuid.UUID) (bool, error) {
	p, err := s.State(ctx, pollID, userID)
	if err != nil || p == nil {
		return false, err
	}
	return p.IsKicked(), nil
}
