package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ParticipationState is either Active or Kicked.
type ParticipationState interface {
	participationState()
}

// Active marks a participant that is still on the roster.
type Active struct{}

// Kicked marks a participant removed by the teacher at At.
type Kicked struct {
	At time.Time
}

func (Active) participationState() {}
func (Kicked) participationState() {}

// Participation links a user to a poll. Kicking retains the row.
type Participation struct {
	PollID   uuid.UUID
	UserID   uuid.UUID
	JoinedAt time.Time
	State    ParticipationState
}

// IsKicked reports whether the participant has been removed from the roster.
func (p *Participation) IsKicked() bool {
	_, ok := p.State.(Kicked)
	return ok
}

// KickedAt returns the kick time, or nil for an active participant.
func (p *Participation) KickedAt() *time.Time {
	if k, ok := p.State.(Kicked); ok {
		at := k.At
		return &at
	}
	return nil
}

// Status is the wire name of the state.
func (p *Participation) Status() string {
	switch p.State.(type) {
	case Kicked:
		return "kicked"
	default:
		return "active"
	}
}

// MarshalJSON flattens the tagged state into status and kicked_at.
func (p Participation) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PollID   uuid.UUID  `json:"poll_id"`
		UserID   uuid.UUID  `json:"user_id"`
		JoinedAt time.Time  `json:"joined_at"`
		Status   string     `json:"status"`
		KickedAt *time.Time `json:"kicked_at,omitempty"`
	}{p.PollID, p.UserID, p.JoinedAt, p.Status(), p.KickedAt()})
}

// StateFromKickedAt converts the nullable storage column into a state.
func StateFromKickedAt(kickedAt *time.Time) ParticipationState {
	if kickedAt == nil {
		return Active{}
	}
	return Kicked{At: *kickedAt}
}

// Participant is a roster entry.
type Participant struct {
	UserID   uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}
