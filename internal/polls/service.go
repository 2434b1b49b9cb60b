// Package polls creates polls and identities and joins students to polls.
package polls

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

const codeAttempts = 5

// Store is the storage the poll service needs.
type Store interface {
	CreateUser(ctx context.Context, name string, role models.Role) (*models.User, error)
	CreatePoll(ctx context.Context, teacherID uuid.UUID, code string, title *string) (*models.Poll, error)
	GetPoll(ctx context.Context, id uuid.UUID) (*models.Poll, error)
	GetPollByCode(ctx context.Context, code string) (*models.Poll, error)
	JoinPoll(ctx context.Context, pollID, userID uuid.UUID, now time.Time) (*models.Participation, error)
	GetParticipation(ctx context.Context, pollID, userID uuid.UUID) (*models.Participation, error)
}

// BootstrapInput is the body of POST /bootstrap.
type BootstrapInput struct {
	Name     string  `json:"name"`
	Role     string  `json:"role"`
	PollCode string  `json:"poll_code"`
	Title    *string `json:"title"`
}

// BootstrapResult identifies the new user and the poll they are in.
type BootstrapResult struct {
	UserID uuid.UUID   `json:"user_id"`
	PollID uuid.UUID   `json:"poll_id"`
	Code   string      `json:"code"`
	Role   models.Role `json:"role"`
	Token  string      `json:"token"`
}

// Info is the public view of a poll.
type Info struct {
	ID    uuid.UUID `json:"id"`
	Code  string    `json:"code"`
	Title *string   `json:"title"`
}

// SessionInfo is the resolved session plus the caller's standing in the poll.
type SessionInfo struct {
	session.Session
	Participation string `json:"participation,omitempty"`
}

// Service implements bootstrap and poll lookups.
type Service struct {
	store   Store
	tokens  *session.TokenService
	events  realtime.Publisher
	clock   clockwork.Clock
	logger  *zap.Logger
	newCode func() (string, error)
}

// NewService creates a poll service.
func NewService(st Store, tokens *session.TokenService, events realtime.Publisher, clock clockwork.Clock, logger *zap.Logger) *Service {
	if events == nil {
		events = realtime.NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, tokens: tokens, events: events, clock: clock, logger: logger, newCode: GenerateCode}
}

// Bootstrap creates a user. A teacher also gets a fresh poll; a student joins
// the poll named by PollCode.
func (s *Service) Bootstrap(ctx context.Context, in BootstrapInput) (*BootstrapResult, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	role := models.ParseRole(in.Role)

	var (
		user *models.User
		poll *models.Poll
		err  error
	)
	if role == models.RoleTeacher {
		user, err = s.store.CreateUser(ctx, name, role)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		poll, err = s.createPoll(ctx, user.ID, trimTitle(in.Title))
		if err != nil {
			return nil, err
		}
		s.logger.Info("poll created", zap.String("poll_id", poll.ID.String()), zap.String("code", poll.Code))
	} else {
		code := strings.TrimSpace(in.PollCode)
		if code == "" {
			return nil, apperr.Validation("poll code is required")
		}
		poll, err = s.store.GetPollByCode(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("poll not found")
		}
		if err != nil {
			return nil, fmt.Errorf("find poll: %w", err)
		}
		user, err = s.store.CreateUser(ctx, name, role)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		if _, err := s.store.JoinPoll(ctx, poll.ID, user.ID, s.clock.Now()); err != nil {
			return nil, fmt.Errorf("join poll: %w", err)
		}
		s.events.Publish(poll.ID, realtime.EventRosterChanged, realtime.RosterChanged{
			PollID: poll.ID, UserID: user.ID, Reason: "joined",
		})
	}

	res := &BootstrapResult{UserID: user.ID, PollID: poll.ID, Code: poll.Code, Role: role}
	if s.tokens != nil {
		token, err := s.tokens.Generate(session.Session{UserID: user.ID, PollID: poll.ID, Role: role})
		if err != nil {
			return nil, fmt.Errorf("sign session token: %w", err)
		}
		res.Token = token
	}
	return res, nil
}

func (s *Service) createPoll(ctx context.Context, teacherID uuid.UUID, title *string) (*models.Poll, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		poll, err := s.store.CreatePoll(ctx, teacherID, code, title)
		if errors.Is(err, store.ErrDuplicateCode) {
			s.logger.Debug("poll code collision", zap.String("code", code))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create poll: %w", err)
		}
		return poll, nil
	}
	return nil, errors.New("could not allocate a unique poll code")
}

func trimTitle(title *string) *string {
	if title == nil {
		return nil
	}
	t := strings.TrimSpace(*title)
	if t == "" {
		return nil
	}
	return &t
}

// Get returns the session poll.
func (s *Service) Get(ctx context.Context, sess session.Session) (*Info, error) {
	if !sess.HasPoll() {
		return nil, apperr.NotFound("no poll in session")
	}
	poll, err := s.store.GetPoll(ctx, sess.PollID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("poll not found")
	}
	if err != nil {
		return nil, err
	}
	return &Info{ID: poll.ID, Code: poll.Code, Title: poll.Title}, nil
}

// Describe returns sess with the caller's participation state, if any.
func (s *Service) Describe(ctx context.Context, sess session.Session) (*SessionInfo, error) {
	info := &SessionInfo{Session: sess}
	if !sess.HasPoll() || !sess.HasUser() {
		return info, nil
	}
	p, err := s.store.GetParticipation(ctx, sess.PollID, sess.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return info, nil
	case err != nil:
		return nil, err
	}
	info.Participation = p.Status()
	return info, nil
}
