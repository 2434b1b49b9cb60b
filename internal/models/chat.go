package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is an append-only chat line in a poll.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	PollID    uuid.UUID `json:"poll_id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
