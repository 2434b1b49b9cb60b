// Package votes records student answers and aggregates them into tallies.
package votes

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

// Store is the storage the vote service needs.
type Store interface {
	UpsertVote(ctx context.Context, pollID, userID, optionID uuid.UUID, now time.Time) (*models.Vote, error)
	Tally(ctx context.Context, questionID uuid.UUID) ([]models.OptionCount, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
	ListQuestions(ctx context.Context, pollID uuid.UUID) ([]models.Question, error)
}

// TallyEvent is the payload of vote_tally.
type TallyEvent struct {
	QuestionID uuid.UUID            `json:"question_id"`
	Options    []models.OptionCount `json:"options"`
	TotalVotes int                  `json:"total_votes"`
}

// Service implements vote submission and result queries.
type Service struct {
	store  Store
	events realtime.Publisher
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewService creates a vote service.
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

// Submit records the student's choice for the option's question, replacing
// any earlier choice.
func (s *Service) Submit(ctx context.Context, sess session.Session, optionID uuid.UUID) (*models.Vote, error) {
	if !sess.IsStudent() || !sess.HasPoll() || !sess.HasUser() {
		return nil, apperr.Authorization("student with a poll required")
	}
	if optionID == uuid.Nil {
		return nil, apperr.Validation("option_id is required")
	}
	v, err := s.store.UpsertVote(ctx, sess.PollID, sess.UserID, optionID, s.clock.Now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound("option not found")
	case errors.Is(err, store.ErrQuestionClosed):
		return nil, apperr.Conflict("question is not active")
	case err != nil:
		return nil, fmt.Errorf("upsert vote: %w", err)
	}

	counts, err := s.store.Tally(ctx, v.QuestionID)
	if err != nil {
		s.logger.Warn("tally after vote failed", zap.String("question_id", v.QuestionID.String()), zap.Error(err))
		return v, nil
	}
	s.events.Publish(sess.PollID, realtime.EventVoteTally, TallyEvent{
		QuestionID: v.QuestionID,
		Options:    counts,
		TotalVotes: total(counts),
	})
	return v, nil
}

func total(counts []models.OptionCount) int {
	n := 0
	for _, c := range counts {
		n += c.Count
	}
	return n
}

// Tally returns every option of a question in the session poll with its
// count, zero counts included.
func (s *Service) Tally(ctx context.Context, sess session.Session, questionID uuid.UUID) (*models.QuestionResult, error) {
	if !sess.HasPoll() {
		return nil, apperr.Authorization("no poll in session")
	}
	q, err := s.store.GetQuestion(ctx, questionID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && q.PollID != sess.PollID) {
		return nil, apperr.NotFound("question not found")
	}
	if err != nil {
		return nil, err
	}
	return s.result(ctx, q)
}

func (s *Service) result(ctx context.Context, q *models.Question) (*models.QuestionResult, error) {
	counts, err := s.store.Tally(ctx, q.ID)
	if err != nil {
		return nil, fmt.Errorf("tally question %s: %w", q.ID, err)
	}
	r := models.NewQuestionResult(q, counts)
	return &r, nil
}

// History returns every question of the poll in order with its results.
func (s *Service) History(ctx context.Context, sess session.Session) ([]models.QuestionResult, error) {
	out := []models.QuestionResult{}
	if !sess.HasPoll() {
		return out, nil
	}
	list, err := s.store.ListQuestions(ctx, sess.PollID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		r, err := s.result(ctx, &list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// Stats returns the latest question with its results: the ACTIVE question
// when there is one, else the highest positioned. Nil for an empty poll.
func (s *Service) Stats(ctx context.Context, sess session.Session) (*models.QuestionResult, error) {
	if !sess.HasPoll() {
		return nil, apperr.Authorization("no poll in session")
	}
	list, err := s.store.ListQuestions(ctx, sess.PollID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	latest := &list[len(list)-1]
	for i := range list {
		if list[i].IsActive() {
			latest = &list[i]
		}
	}
	return s.result(ctx, latest)
}
