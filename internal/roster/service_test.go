package roster

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-classroom/livepoll/internal/apperr"
	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/internal/realtime"
	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/internal/store"
)

func TestKickHidesFromRoster(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	clock := clockwork.NewFakeClock()
	broker := realtime.NewBroker(nil, clock, nil)
	svc := NewService(st, broker, clock, nil)

	teacher, err := st.CreateUser(ctx, "T", models.RoleTeacher)
	require.NoError(t, err)
	poll, err := st.CreatePoll(ctx, teacher.ID, "AB12CD", nil)
	require.NoError(t, err)
	teacherSess := session.Session{UserID: teacher.ID, PollID: poll.ID, Role: models.RoleTeacher}

	var ids []uuid.UUID
	for _, name := range []string{"Ana", "Ben", "Cy"} {
		u, err := st.CreateUser(ctx, name, models.RoleStudent)
		require.NoError(t, err)
		_, err = st.JoinPoll(ctx, poll.ID, u.ID, clock.Now())
		require.NoError(t, err)
		clock.Advance(time.Second)
		ids = append(ids, u.ID)
	}

	list, err := svc.List(ctx, teacherSess)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Ana", list[0].Name)
	assert.Equal(t, "Cy", list[2].Name)

	sub := realtime.NewSubscriber(4)
	broker.Subscribe(poll.ID, sub.Deliver)

	p, err := svc.Kick(ctx, teacherSess, ids[1])
	require.NoError(t, err)
	assert.True(t, p.IsKicked())
	assert.Equal(t, realtime.EventParticipantKicked, (<-sub.Events()).Name)
	assert.Equal(t, realtime.EventRosterChanged, (<-sub.Events()).Name)

	list, err = svc.List(ctx, teacherSess)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, entry := range list {
		assert.NotEqual(t, ids[1], entry.UserID)
	}

	kicked, err := svc.IsKicked(ctx, poll.ID, ids[1])
	require.NoError(t, err)
	assert.True(t, kicked)
	kicked, err = svc.IsKicked(ctx, poll.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, kicked)
}

func TestKickRejections(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewService(st, nil, nil, nil)
	pollID := uuid.New()

	_, err := svc.Kick(ctx, session.Session{PollID: pollID, Role: models.RoleStudent}, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = svc.Kick(ctx, session.Session{PollID: pollID, Role: models.RoleTeacher}, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	list, err := svc.List(ctx, session.Session{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
