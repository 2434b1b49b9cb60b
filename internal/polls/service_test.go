package polls

import (
	"context"
	"regexp"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-classroom/livepoll/internal/apperr"
	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/internal/realtime"
	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Memory, *realtime.Broker) {
	t.Helper()
	st := store.NewMemory()
	broker := realtime.NewBroker(nil, nil, nil)
	svc := NewService(st, session.NewTokenService("test-secret", 1), broker, clockwork.NewFakeClock(), nil)
	return svc, st, broker
}

func TestGenerateCodeFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

func TestBootstrapTeacherCreatesPoll(t *testing.T) {
	svc, st, _ := newTestService(t)
	svc.newCode = func() (string, error) { return "AB12CD", nil }
	title := "  Biology  "

	res, err := svc.Bootstrap(context.Background(), BootstrapInput{Name: " Ms. Rivera ", Role: "teacher", Title: &title})
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, res.Role)
	assert.Equal(t, "AB12CD", res.Code)
	assert.NotEmpty(t, res.Token)

	poll, err := st.GetPoll(context.Background(), res.PollID)
	require.NoError(t, err)
	assert.Equal(t, res.UserID, poll.TeacherID)
	require.NotNil(t, poll.Title)
	assert.Equal(t, "Biology", *poll.Title)

	user, err := st.GetUser(context.Background(), res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Ms. Rivera", user.Name)

	tokenSess, err := svc.tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.PollID, tokenSess.PollID)
	assert.Equal(t, models.RoleTeacher, tokenSess.Role)
}

func TestBootstrapRetriesCodeCollision(t *testing.T) {
	svc, _, _ := newTestService(t)
	codes := []string{"AB12CD", "AB12CD", "ZZ99ZZ"}
	svc.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	_, err := svc.Bootstrap(context.Background(), BootstrapInput{Name: "T1", Role: "TEACHER"})
	require.NoError(t, err)
	res, err := svc.Bootstrap(context.Background(), BootstrapInput{Name: "T2", Role: "TEACHER"})
	require.NoError(t, err)
	assert.Equal(t, "ZZ99ZZ", res.Code)
}

func TestBootstrapStudentJoinsByCode(t *testing.T) {
	svc, st, broker := newTestService(t)
	svc.newCode = func() (string, error) { return "AB12CD", nil }
	teacher, err := svc.Bootstrap(context.Background(), BootstrapInput{Name: "T", Role: "TEACHER"})
	require.NoError(t, err)

	sub := realtime.NewSubscriber(4)
	broker.Subscribe(teacher.PollID, sub.Deliver)

	res, err := svc.Bootstrap(context.Background(), BootstrapInput{Name: "Sam", Role: "anything", PollCode: "ab12cd"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, res.Role)
	assert.Equal(t, teacher.PollID, res.PollID)

	p, err := st.GetParticipation(context.Background(), res.PollID, res.UserID)
	require.NoError(t, err)
	assert.False(t, p.IsKicked())

	require.Len(t, sub.Events(), 1)
	assert.Equal(t, realtime.EventRosterChanged, (<-sub.Events()).Name)
}

func TestBootstrapValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	tests := []struct {
		name string
		in   BootstrapInput
		kind apperr.Kind
	}{
		{"blank name", BootstrapInput{Name: "  ", Role: "TEACHER"}, apperr.KindValidation},
		{"student without code", BootstrapInput{Name: "Sam"}, apperr.KindValidation},
		{"unknown code", BootstrapInput{Name: "Sam", PollCode: "NOPE00"}, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Bootstrap(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestGetAndDescribe(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, session.Session{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	teacher, err := svc.Bootstrap(ctx, BootstrapInput{Name: "T", Role: "TEACHER"})
	require.NoError(t, err)
	info, err := svc.Get(ctx, session.Session{PollID: teacher.PollID})
	require.NoError(t, err)
	assert.Equal(t, teacher.Code, info.Code)
	assert.Nil(t, info.Title)

	student, err := svc.Bootstrap(ctx, BootstrapInput{Name: "Sam", PollCode: teacher.Code})
	require.NoError(t, err)
	desc, err := svc.Describe(ctx, session.Session{UserID: student.UserID, PollID: student.PollID, Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, "active", desc.Participation)

	desc, err = svc.Describe(ctx, session.Session{UserID: teacher.UserID, PollID: teacher.PollID})
	require.NoError(t, err)
	assert.Empty(t, desc.Participation)
}
