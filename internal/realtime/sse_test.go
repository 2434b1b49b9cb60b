package realtime

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newSSEServer(t *testing.T, b *Broker, pollID uuid.UUID) *httptest.Server {
	t.Helper()
	return newUserSSEServer(t, b, session.Session{PollID: pollID})
}

func newUserSSEServer(t *testing.T, b *Broker, sess session.Session) *httptest.Server {
	t.Helper()
	r := gin.New()
	r.GET("/events", func(c *gin.Context) {
		if sess.HasPoll() {
			session.Store(c, sess)
		}
		c.Next()
	}, ServeSSE(b, StreamOptions{Heartbeat: 15 * time.Second, Buffer: 8}, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func readFrame(t *testing.T, r *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestServeSSEStreamsPollEvents(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := NewBroker(nil, clock, nil)
	pollID := uuid.New()
	srv := newSSEServer(t, b, pollID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	assert.Equal(t, []string{":ok"}, readFrame(t, reader))
	require.Equal(t, 1, b.SubscriberCount(pollID))

	b.Publish(pollID, EventQuestionClosed, QuestionClosed{PollID: pollID, Reason: "teacher"})
	frame := readFrame(t, reader)
	require.Len(t, frame, 2)
	assert.Equal(t, "event:"+EventQuestionClosed, frame[0])
	assert.True(t, strings.HasPrefix(frame[1], "data:"))
	assert.Contains(t, frame[1], `"reason":"teacher"`)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(15 * time.Second)
	assert.Equal(t, []string{":keepalive"}, readFrame(t, reader))

	cancel()
	require.Eventually(t, func() bool { return b.SubscriberCount(pollID) == 0 },
		2*time.Second, 10*time.Millisecond, "disconnect deregisters the subscriber")
}

func TestServeSSERequiresPoll(t *testing.T) {
	b := NewBroker(nil, nil, nil)
	srv := newSSEServer(t, b, uuid.Nil)

	resp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeSSEEndsWhenUserIsKicked(t *testing.T) {
	b := NewBroker(nil, nil, nil)
	pollID, userID := uuid.New(), uuid.New()
	srv := newUserSSEServer(t, b, session.Session{PollID: pollID, UserID: userID, Role: models.RoleStudent})

	resp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)
	assert.Equal(t, []string{":ok"}, readFrame(t, reader))

	b.Publish(pollID, EventParticipantKicked, ParticipantKicked{PollID: pollID, UserID: uuid.New()})
	assert.Equal(t, "event:"+EventParticipantKicked, readFrame(t, reader)[0], "someone else's kick keeps the stream open")

	b.Publish(pollID, EventParticipantKicked, ParticipantKicked{PollID: pollID, UserID: userID})
	b.Publish(pollID, EventChatMessage, map[string]string{"text": "secret answer is 4"})

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Contains(t, string(rest), EventParticipantKicked)
	assert.NotContains(t, string(rest), "secret answer")
	require.Eventually(t, func() bool { return b.SubscriberCount(pollID) == 0 }, 2*time.Second, 10*time.Millisecond)
}
