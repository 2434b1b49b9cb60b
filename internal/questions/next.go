package questions

import (
	"github.com/google/uuid"

	"github.com/aura-classroom/livepoll/internal/models"
)

// SelectNext picks the question a student should see. questions must be in
// position order. The first question the student has not voted on wins and is
// not live; once everything is answered the ACTIVE question, if any, is
// returned as live. A nil question means there is nothing to show.
func SelectNext(questions []models.Question, voted map[uuid.UUID]bool) (q *models.Question, live bool) {
	for i := range questions {
		if !voted[questions[i].ID] {
			return &questions[i], false
		}
	}
	for i := len(questions) - 1; i >= 0; i-- {
		if questions[i].IsActive() {
			return &questions[i], true
		}
	}
	return nil, false
}
