package exports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aura-classroom/livepoll/internal/models"
)

// ReportSource is the read side of the store a report is built from.
type ReportSource interface {
	GetPoll(ctx context.Context, id uuid.UUID) (*models.Poll, error)
	ListQuestions(ctx context.Context, pollID uuid.UUID) ([]models.Question, error)
	Tally(ctx context.Context, questionID uuid.UUID) ([]models.OptionCount, error)
	ListParticipants(ctx context.Context, pollID uuid.UUID) ([]models.Participant, error)
}

// Report is the exported snapshot of a poll.
type Report struct {
	Poll         models.Poll             `json:"poll"`
	Questions    []models.QuestionResult `json:"questions"`
	Participants []models.Participant    `json:"participants"`
	GeneratedAt  time.Time               `json:"generated_at"`
}

// BuildReport collects a poll, its questions with tallies and the active roster.
func BuildReport(ctx context.Context, src ReportSource, pollID uuid.UUID, now time.Time) (*Report, error) {
	poll, err := src.GetPoll(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("get poll: %w", err)
	}
	list, err := src.ListQuestions(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	results := make([]models.QuestionResult, 0, len(list))
	for i := range list {
		counts, err := src.Tally(ctx, list[i].ID)
		if err != nil {
			return nil, fmt.Errorf("tally %s: %w", list[i].ID, err)
		}
		results = append(results, models.NewQuestionResult(&list[i], counts))
	}
	participants, err := src.ListParticipants(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return &Report{
		Poll:         *poll,
		Questions:    results,
		Participants: participants,
		GeneratedAt:  now.UTC(),
	}, nil
}
