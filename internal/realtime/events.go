package realtime

import "github.com/google/uuid"

// Poll event names.
const (
	EventQuestionCreated   = "question_created"
	EventQuestionClosed    = "question_closed"
	EventVoteTally         = "vote_tally"
	EventChatMessage       = "chat_message"
	EventRosterChanged     = "roster_changed"
	EventParticipantKicked = "participant_kicked"
)

// Publisher is the publishing side of Broker, as seen by services.
type Publisher interface {
	Publish(pollID uuid.UUID, name string, payload interface{})
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(uuid.UUID, string, interface{}) {}

// RosterChanged is the payload of roster_changed.
type RosterChanged struct {
	PollID uuid.UUID `json:"poll_id"`
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason"`
}

// ParticipantKicked is the payload of participant_kicked.
type ParticipantKicked struct {
	PollID uuid.UUID `json:"poll_id"`
	UserID uuid.UUID `json:"user_id"`
}

// QuestionClosed is the payload of question_closed.
type QuestionClosed struct {
	PollID     uuid.UUID `json:"poll_id"`
	QuestionID uuid.UUID `json:"question_id"`
	Reason     string    `json:"reason"`
}
