package questions

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-classroom/livepoll/internal/models"
)

func question(pos int, status models.QuestionStatus) models.Question {
	return models.Question{ID: uuid.New(), Position: pos, Status: status}
}

func TestSelectNextCatchUpOrdering(t *testing.T) {
	qs := []models.Question{
		question(1, models.QuestionClosed),
		question(2, models.QuestionClosed),
		question(3, models.QuestionActive),
	}
	voted := map[uuid.UUID]bool{qs[0].ID: true}

	q, live := SelectNext(qs, voted)
	require.NotNil(t, q)
	assert.Equal(t, qs[1].ID, q.ID)
	assert.False(t, live)

	voted[qs[1].ID] = true
	q, live = SelectNext(qs, voted)
	require.NotNil(t, q)
	assert.Equal(t, qs[2].ID, q.ID)
	assert.False(t, live, "unanswered active question is still served in catch-up order")

	voted[qs[2].ID] = true
	q, live = SelectNext(qs, voted)
	require.NotNil(t, q)
	assert.Equal(t, qs[2].ID, q.ID)
	assert.True(t, live)

	qs[2].Status = models.QuestionClosed
	q, live = SelectNext(qs, voted)
	assert.Nil(t, q)
	assert.False(t, live)
}

func TestSelectNextEmptyPoll(t *testing.T) {
	q, live := SelectNext(nil, nil)
	assert.Nil(t, q)
	assert.False(t, live)
}
