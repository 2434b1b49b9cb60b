package models

import (
	"time"

	"github.com/google/uuid"
)

// Poll is one teacher-owned live session identified by a join code.
type Poll struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Title     *string   `json:"title,omitempty"`
	TeacherID uuid.UUID `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
}
