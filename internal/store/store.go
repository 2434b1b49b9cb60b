// Package store is the relational collaborator behind the poll services.
//
// Two adapters satisfy Store: Postgres for deployments and Memory for tests and
// single-process development. Both give the same guarantees: at most one ACTIVE
// question per poll, one vote per (question, user), and close/vote serialization
// on the question row.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aura-classroom/livepoll/internal/models"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrQuestionClosed is returned when a vote targets a question that is not ACTIVE.
	ErrQuestionClosed = errors.New("question is not active")
	// ErrDuplicateCode is returned when a poll join code is already taken.
	ErrDuplicateCode = errors.New("poll code already exists")
)

// Store is the full persistence surface used by the server.
type Store interface {
	CreateUser(ctx context.Context, name string, role models.Role) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	CreatePoll(ctx context.Context, teacherID uuid.UUID, code string, title *string) (*models.Poll, error)
	GetPoll(ctx context.Context, id uuid.UUID) (*models.Poll, error)
	GetPollByCode(ctx context.Context, code string) (*models.Poll, error)

	JoinPoll(ctx context.Context, pollID, userID uuid.UUID, now time.Time) (*models.Participation, error)
	GetParticipation(ctx context.Context, pollID, userID uuid.UUID) (*models.Participation, error)
	ListParticipants(ctx context.Context, pollID uuid.UUID) ([]models.Participant, error)
	KickParticipant(ctx context.Context, pollID, userID uuid.UUID, now time.Time) (*models.Participation, error)

	CreateQuestion(ctx context.Context, pollID uuid.UUID, draft models.QuestionDraft, now time.Time) (*models.Question, []models.Question, error)
	CloseActiveQuestion(ctx context.Context, pollID uuid.UUID, now time.Time) ([]models.Question, error)
	CloseQuestion(ctx context.Context, questionID uuid.UUID, now time.Time) (bool, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
	GetActiveQuestion(ctx context.Context, pollID uuid.UUID) (*models.Question, error)
	ListQuestions(ctx context.Context, pollID uuid.UUID) ([]models.Question, error)
	ListActiveQuestions(ctx context.Context) ([]models.Question, error)

	UpsertVote(ctx context.Context, pollID, userID, optionID uuid.UUID, now time.Time) (*models.Vote, error)
	VotedQuestionIDs(ctx context.Context, pollID, userID uuid.UUID) (map[uuid.UUID]bool, error)
	Tally(ctx context.Context, questionID uuid.UUID) ([]models.OptionCount, error)

	AppendChatMessage(ctx context.Context, pollID, userID uuid.UUID, text string, now time.Time) (*models.ChatMessage, error)
	RecentChatMessages(ctx context.Context, pollID uuid.UUID, limit int) ([]models.ChatMessage, error)
}
