// Package questions runs the per-poll question state machine: creating and
// closing questions, the active question with its remaining time, and the
// question a student should answer next.
package questions

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

// Store is the storage the question service needs.
type Store interface {
	CreateQuestion(ctx context.Context, pollID uuid.UUID, draft models.QuestionDraft, now time.Time) (*models.Question, []models.Question, error)
	CloseActiveQuestion(ctx context.Context, pollID uuid.UUID, now time.Time) ([]models.Question, error)
	GetActiveQuestion(ctx context.Context, pollID uuid.UUID) (*models.Question, error)
	ListQuestions(ctx context.Context, pollID uuid.UUID) ([]models.Question, error)
	VotedQuestionIDs(ctx context.Context, pollID, userID uuid.UUID) (map[uuid.UUID]bool, error)
}

// Scheduler arms and cancels automatic closes.
type Scheduler interface {
	Schedule(q models.Question)
	Cancel(pollID, questionID uuid.UUID)
}

// Limits bounds question time limits, in milliseconds.
type Limits struct {
	MinTimeLimitMs     int64
	DefaultTimeLimitMs int64
}

// CreateInput is the body of POST /questions.
type CreateInput struct {
	Text        string        `json:"text"`
	TimeLimitMs int64         `json:"time_limit_ms"`
	Options     []OptionInput `json:"options"`
}

// OptionInput is one submitted option.
type OptionInput struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// TimedQuestion is a question with its remaining time at read.
type TimedQuestion struct {
	models.Question
	RemainingMs int64 `json:"remaining_ms"`
}

// NextQuestion is the question a student should answer. Live is false for a
// catch-up question.
type NextQuestion struct {
	Question *TimedQuestion `json:"question"`
	Live     bool           `json:"live"`
}

// Service implements the question state machine.
type Service struct {
	store     Store
	events    realtime.Publisher
	scheduler Scheduler
	clock     clockwork.Clock
	limits    Limits
	logger    *zap.Logger
}

// NewService creates a question service. scheduler may be nil to disable
// automatic closes.
func NewService(st Store, events realtime.Publisher, scheduler Scheduler, clock clockwork.Clock, limits Limits, logger *zap.Logger) *Service {
	if events == nil {
		events = realtime.NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.MinTimeLimitMs <= 0 {
		limits.MinTimeLimitMs = 10000
	}
	if limits.DefaultTimeLimitMs <= 0 {
		limits.DefaultTimeLimitMs = 60000
	}
	return &Service{store: st, events: events, scheduler: scheduler, clock: clock, limits: limits, logger: logger}
}

// RemainingTime is max(0, limit - (now - askedAt)), or the whole limit when
// the question has no asked-at stamp.
func RemainingTime(q *models.Question, now time.Time) time.Duration {
	return q.Remaining(now)
}

func requireTeacher(sess session.Session) error {
	if !sess.IsTeacher() || !sess.HasPoll() {
		return apperr.Authorization("teacher with a poll required")
	}
	return nil
}

func (s *Service) draft(in CreateInput) (models.QuestionDraft, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return models.QuestionDraft{}, apperr.Validation("question text is required")
	}
	if len(in.Options) < 2 {
		return models.QuestionDraft{}, apperr.Validation("at least two options are required")
	}
	limit := in.TimeLimitMs
	if limit <= 0 {
		limit = s.limits.DefaultTimeLimitMs
	}
	if limit < s.limits.MinTimeLimitMs {
		limit = s.limits.MinTimeLimitMs
	}
	d := models.QuestionDraft{Text: text, TimeLimitMs: limit, Options: make([]models.OptionDraft, len(in.Options))}
	for i, o := range in.Options {
		ot := strings.TrimSpace(o.Text)
		if ot == "" {
			ot = fmt.Sprintf("Option %d", i+1)
		}
		d.Options[i] = models.OptionDraft{Text: ot, IsCorrect: o.IsCorrect}
	}
	return d, nil
}

// Create closes the poll's ACTIVE question, if any, and asks a new one.
func (s *Service) Create(ctx context.Context, sess session.Session, in CreateInput) (*models.Question, error) {
	if err := requireTeacher(sess); err != nil {
		return nil, err
	}
	d, err := s.draft(in)
	if err != nil {
		return nil, err
	}

	q, closed, err := s.store.CreateQuestion(ctx, sess.PollID, d, s.clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("poll not found")
	}
	if err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}

	for _, c := range closed {
		s.events.Publish(sess.PollID, realtime.EventQuestionClosed, realtime.QuestionClosed{
			PollID: sess.PollID, QuestionID: c.ID, Reason: "replaced",
		})
	}
	s.events.Publish(sess.PollID, realtime.EventQuestionCreated, s.timed(q))
	if s.scheduler != nil {
		s.scheduler.Schedule(*q)
	}
	s.logger.Info("question created",
		zap.String("poll_id", sess.PollID.String()),
		zap.String("question_id", q.ID.String()),
		zap.Int("order", q.Position),
		zap.Int64("time_limit_ms", q.TimeLimitMs))
	return q, nil
}

// CloseActive closes the poll's ACTIVE question. Closing with nothing active
// is not an error and returns 0. Only the closed question's timer is cancelled.
func (s *Service) CloseActive(ctx context.Context, sess session.Session) (int, error) {
	if err := requireTeacher(sess); err != nil {
		return 0, err
	}
	closed, err := s.store.CloseActiveQuestion(ctx, sess.PollID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("close active question: %w", err)
	}
	for _, c := range closed {
		if s.scheduler != nil {
			s.scheduler.Cancel(sess.PollID, c.ID)
		}
		s.events.Publish(sess.PollID, realtime.EventQuestionClosed, realtime.QuestionClosed{
			PollID: sess.PollID, QuestionID: c.ID, Reason: "teacher",
		})
	}
	return len(closed), nil
}

// Active returns the poll's ACTIVE question or nil.
func (s *Service) Active(ctx context.Context, sess session.Session) (*TimedQuestion, error) {
	if !sess.HasPoll() {
		return nil, apperr.Authorization("no poll in session")
	}
	q, err := s.store.GetActiveQuestion(ctx, sess.PollID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.timed(q), nil
}

// NextForStudent applies SelectNext for the session user.
func (s *Service) NextForStudent(ctx context.Context, sess session.Session) (*NextQuestion, error) {
	if !sess.HasPoll() || !sess.HasUser() {
		return nil, apperr.Authorization("poll and user required")
	}
	list, err := s.store.ListQuestions(ctx, sess.PollID)
	if err != nil {
		return nil, err
	}
	voted, err := s.store.VotedQuestionIDs(ctx, sess.PollID, sess.UserID)
	if err != nil {
		return nil, err
	}
	q, live := SelectNext(list, voted)
	if q == nil {
		return &NextQuestion{}, nil
	}
	return &NextQuestion{Question: s.timed(q), Live: live}, nil
}

func (s *Service) timed(q *models.Question) *TimedQuestion {
	remaining := RemainingTime(q, s.clock.Now())
	if !q.IsActive() {
		remaining = 0
	}
	return &TimedQuestion{Question: *q, RemainingMs: remaining.Milliseconds()}
}
