package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote is a user's current choice for a question. One per (question, user).
type Vote struct {
	QuestionID uuid.UUID `json:"question_id"`
	UserID     uuid.UUID `json:"user_id"`
	OptionID   uuid.UUID `json:"option_id"`
	VotedAt    time.Time `json:"voted_at"`
}

// OptionCount is one row of a tally.
type OptionCount struct {
	OptionID  uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	Position  int       `json:"order"`
	IsCorrect bool      `json:"is_correct"`
	Count     int       `json:"count"`
}

// QuestionResult is a question with its per-option counts.
type QuestionResult struct {
	ID          uuid.UUID      `json:"id"`
	Text        string         `json:"text"`
	Status      QuestionStatus `json:"status"`
	Position    int            `json:"order"`
	TimeLimitMs int64          `json:"time_limit_ms"`
	AskedAt     *time.Time     `json:"asked_at,omitempty"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	Options     []OptionCount  `json:"options"`
	TotalVotes  int            `json:"total_votes"`
}

// NewQuestionResult merges a question with its tally.
func NewQuestionResult(q *Question, counts []OptionCount) QuestionResult {
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	if counts == nil {
		counts = []OptionCount{}
	}
	return QuestionResult{
		ID:          q.ID,
		Text:        q.Text,
		Status:      q.Status,
		Position:    q.Position,
		TimeLimitMs: q.TimeLimitMs,
		AskedAt:     q.AskedAt,
		ClosedAt:    q.ClosedAt,
		Options:     counts,
		TotalVotes:  total,
	}
}
