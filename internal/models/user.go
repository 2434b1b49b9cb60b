package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents a user's role inside a poll.
type Role string

const (
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// ParseRole maps client input to a Role. Anything other than TEACHER is a student.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleTeacher)) {
		return RoleTeacher
	}
	return RoleStudent
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// User is created on session bootstrap and never modified afterwards.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
