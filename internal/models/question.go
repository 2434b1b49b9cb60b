package models

import (
	"time"

	"github.com/google/uuid"
)

// QuestionStatus is ACTIVE until the question is closed; CLOSED is terminal.
type QuestionStatus string

const (
	QuestionActive QuestionStatus = "ACTIVE"
	QuestionClosed QuestionStatus = "CLOSED"
)

// Question is a timed multiple-choice question asked in a poll.
type Question struct {
	ID          uuid.UUID      `json:"id"`
	PollID      uuid.UUID      `json:"poll_id"`
	Text        string         `json:"text"`
	Position    int            `json:"order"`
	Status      QuestionStatus `json:"status"`
	TimeLimitMs int64          `json:"time_limit_ms"`
	AskedAt     *time.Time     `json:"asked_at,omitempty"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	Options     []Option       `json:"options"`
}

// Option is one answer choice of a question.
type Option struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Text       string    `json:"text"`
	Position   int       `json:"order"`
	IsCorrect  bool      `json:"is_correct"`
}

// IsActive reports whether votes are still accepted.
func (q *Question) IsActive() bool {
	return q.Status == QuestionActive
}

// TimeLimit returns the configured limit as a duration.
func (q *Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitMs) * time.Millisecond
}

// Remaining is max(0, limit - (now - askedAt)), or the full limit when the
// question was never stamped. Clients compute the same value from asked_at.
func (q *Question) Remaining(now time.Time) time.Duration {
	limit := q.TimeLimit()
	if q.AskedAt == nil {
		return limit
	}
	left := limit - now.Sub(*q.AskedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Deadline is the instant the time limit runs out. Zero when never asked.
func (q *Question) Deadline() time.Time {
	if q.AskedAt == nil {
		return time.Time{}
	}
	return q.AskedAt.Add(q.TimeLimit())
}

// QuestionDraft is the validated input for a new question.
type QuestionDraft struct {
	Text        string
	TimeLimitMs int64
	Options     []OptionDraft
}

// OptionDraft is one option of a QuestionDraft.
type OptionDraft struct {
	Text      string
	IsCorrect bool
}
