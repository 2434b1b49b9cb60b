package questions

import (
	"context"
	"sync"
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

type fixture struct {
	svc     *Service
	store   *store.Memory
	broker  *realtime.Broker
	clock   *clockwork.FakeClock
	teacher session.Session
	student session.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	clock := clockwork.NewFakeClock()
	broker := realtime.NewBroker(nil, clock, nil)

	teacher, err := st.CreateUser(ctx, "T", models.RoleTeacher)
	require.NoError(t, err)
	poll, err := st.CreatePoll(ctx, teacher.ID, "AB12CD", nil)
	require.NoError(t, err)
	student, err := st.CreateUser(ctx, "S", models.RoleStudent)
	require.NoError(t, err)
	_, err = st.JoinPoll(ctx, poll.ID, student.ID, clock.Now())
	require.NoError(t, err)

	svc := NewService(st, broker, nil, clock, Limits{MinTimeLimitMs: 10000, DefaultTimeLimitMs: 60000}, nil)
	return &fixture{
		svc:     svc,
		store:   st,
		broker:  broker,
		clock:   clock,
		teacher: session.Session{UserID: teacher.ID, PollID: poll.ID, Role: models.RoleTeacher},
		student: session.Session{UserID: student.ID, PollID: poll.ID, Role: models.RoleStudent},
	}
}

func twoOptions(text string, limit int64) CreateInput {
	return CreateInput{Text: text, TimeLimitMs: limit, Options: []OptionInput{{Text: "Yes", IsCorrect: true}, {Text: "No"}}}
}

func TestCreateClampsTimeLimit(t *testing.T) {
	f := newFixture(t)
	q, err := f.svc.Create(context.Background(), f.teacher, twoOptions("Q1", 1000))
	require.NoError(t, err)
	assert.Equal(t, int64(10000), q.TimeLimitMs)
	assert.Equal(t, 1, q.Position)
	assert.True(t, q.IsActive())
	require.NotNil(t, q.AskedAt)

	q, err = f.svc.Create(context.Background(), f.teacher, twoOptions("Q2", 0))
	require.NoError(t, err)
	assert.Equal(t, int64(60000), q.TimeLimitMs)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		sess session.Session
		in   CreateInput
		kind apperr.Kind
	}{
		{"student", f.student, twoOptions("Q", 30000), apperr.KindAuthorization},
		{"no poll", session.Session{Role: models.RoleTeacher}, twoOptions("Q", 30000), apperr.KindAuthorization},
		{"blank text", f.teacher, twoOptions("   ", 30000), apperr.KindValidation},
		{"one option", f.teacher, CreateInput{Text: "Q", Options: []OptionInput{{Text: "only"}}}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.sess, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	list, err := f.store.ListQuestions(context.Background(), f.teacher.PollID)
	require.NoError(t, err)
	assert.Empty(t, list, "rejected creates write nothing")
}

func TestCreateNamesBlankOptions(t *testing.T) {
	f := newFixture(t)
	q, err := f.svc.Create(context.Background(), f.teacher, CreateInput{
		Text:    "Pick",
		Options: []OptionInput{{Text: "A"}, {Text: " "}},
	})
	require.NoError(t, err)
	require.Len(t, q.Options, 2)
	assert.Equal(t, "Option 2", q.Options[1].Text)
}

func TestCreatePublishesCloseThenCreate(t *testing.T) {
	f := newFixture(t)
	sub := realtime.NewSubscriber(8)
	f.broker.Subscribe(f.teacher.PollID, sub.Deliver)

	_, err := f.svc.Create(context.Background(), f.teacher, twoOptions("Q1", 30000))
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), f.teacher, twoOptions("Q2", 30000))
	require.NoError(t, err)

	var names []string
	for len(sub.Events()) > 0 {
		names = append(names, (<-sub.Events()).Name)
	}
	assert.Equal(t, []string{
		realtime.EventQuestionCreated,
		realtime.EventQuestionClosed,
		realtime.EventQuestionCreated,
	}, names)
}

func TestConcurrentCreatesLeaveOneActive(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), f.teacher, twoOptions("Q", 30000))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := f.store.ListQuestions(context.Background(), f.teacher.PollID)
	require.NoError(t, err)
	active := 0
	for _, q := range list {
		if q.IsActive() {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestCloseActiveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.teacher, twoOptions("Q1", 30000))
	require.NoError(t, err)

	n, err := f.svc.CloseActive(context.Background(), f.teacher)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.CloseActive(context.Background(), f.teacher)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	active, err := f.svc.Active(context.Background(), f.student)
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = f.svc.CloseActive(context.Background(), f.student)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestActiveReportsRemainingTime(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.teacher, twoOptions("Q1", 30000))
	require.NoError(t, err)

	f.clock.Advance(12 * time.Second)
	active, err := f.svc.Active(context.Background(), f.student)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, int64(18000), active.RemainingMs)

	f.clock.Advance(time.Minute)
	active, err = f.svc.Active(context.Background(), f.student)
	require.NoError(t, err)
	assert.Equal(t, int64(0), active.RemainingMs)

	_, err = f.svc.Active(context.Background(), session.Session{})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestRemainingTimeWithoutAskedAt(t *testing.T) {
	q := &models.Question{TimeLimitMs: 15000}
	assert.Equal(t, 15*time.Second, RemainingTime(q, time.Now()))
}

func TestNextForStudentFollowsVotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q1, err := f.svc.Create(ctx, f.teacher, twoOptions("Q1", 30000))
	require.NoError(t, err)

	next, err := f.svc.NextForStudent(ctx, f.student)
	require.NoError(t, err)
	require.NotNil(t, next.Question)
	assert.Equal(t, q1.ID, next.Question.ID)
	assert.False(t, next.Live)

	_, err = f.store.UpsertVote(ctx, f.student.PollID, f.student.UserID, q1.Options[0].ID, f.clock.Now())
	require.NoError(t, err)
	next, err = f.svc.NextForStudent(ctx, f.student)
	require.NoError(t, err)
	require.NotNil(t, next.Question)
	assert.Equal(t, q1.ID, next.Question.ID)
	assert.True(t, next.Live)

	_, err = f.svc.CloseActive(ctx, f.teacher)
	require.NoError(t, err)
	next, err = f.svc.NextForStudent(ctx, f.student)
	require.NoError(t, err)
	assert.Nil(t, next.Question)

	_, err = f.svc.NextForStudent(ctx, session.Session{PollID: uuid.New()})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}
