package questions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/internal/realtime"
)

// QuestionCloser closes one question if it is still ACTIVE.
type QuestionCloser interface {
	CloseQuestion(ctx context.Context, questionID uuid.UUID, now time.Time) (bool, error)
}

// ActiveLister lists every ACTIVE question across polls.
type ActiveLister interface {
	ListActiveQuestions(ctx context.Context) ([]models.Question, error)
}

type pendingClose struct {
	questionID uuid.UUID
	position   int
	timer      clockwork.Timer
	stop       chan struct{}
}

// Expirer closes questions whose time limit (plus grace) has passed. It keeps
// at most one timer per poll; scheduling a later question replaces the old one
// and an earlier one is ignored.
type Expirer struct {
	closer QuestionCloser
	events realtime.Publisher
	clock  clockwork.Clock
	grace  time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingClose
	stopped bool
	wg      sync.WaitGroup
}

// NewExpirer creates an expirer.
func NewExpirer(closer QuestionCloser, events realtime.Publisher, clock clockwork.Clock, grace time.Duration, logger *zap.Logger) *Expirer {
	if events == nil {
		events = realtime.NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expirer{
		closer:  closer,
		events:  events,
		clock:   clock,
		grace:   grace,
		logger:  logger,
		pending: make(map[uuid.UUID]*pendingClose),
	}
}

// Schedule arms the close timer for q, replacing any timer for its poll unless
// that timer belongs to a later question.
func (e *Expirer) Schedule(q models.Question) {
	if !q.IsActive() {
		return
	}
	wait := q.Remaining(e.clock.Now()) + e.grace
	p := &pendingClose{
		questionID: q.ID,
		position:   q.Position,
		timer:      e.clock.NewTimer(wait),
		stop:       make(chan struct{}),
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		p.timer.Stop()
		return
	}
	old := e.pending[q.PollID]
	if old != nil && old.position > q.Position {
		e.mu.Unlock()
		p.timer.Stop()
		e.logger.Debug("stale question expiry ignored",
			zap.String("question_id", q.ID.String()),
			zap.String("pending_question_id", old.questionID.String()))
		return
	}
	if old != nil {
		stopAndDrainTimer(old.timer)
		close(old.stop)
	}
	e.pending[q.PollID] = p
	e.wg.Add(1)
	e.mu.Unlock()

	go e.wait(q.PollID, p)
	e.logger.Debug("question expiry scheduled",
		zap.String("poll_id", q.PollID.String()),
		zap.String("question_id", q.ID.String()),
		zap.Duration("in", wait))
}

func (e *Expirer) wait(pollID uuid.UUID, p *pendingClose) {
	defer e.wg.Done()
	select {
	case <-p.stop:
		return
	case <-p.timer.Chan():
	}

	e.mu.Lock()
	if e.pending[pollID] == p {
		delete(e.pending, pollID)
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	closed, err := e.closer.CloseQuestion(ctx, p.questionID, e.clock.Now())
	if err != nil {
		e.logger.Warn("expire question failed", zap.String("question_id", p.questionID.String()), zap.Error(err))
		return
	}
	if !closed {
		return
	}
	e.logger.Info("question expired", zap.String("poll_id", pollID.String()), zap.String("question_id", p.questionID.String()))
	e.events.Publish(pollID, realtime.EventQuestionClosed, realtime.QuestionClosed{
		PollID: pollID, QuestionID: p.questionID, Reason: "expired",
	})
}

// Cancel drops the poll's timer if it belongs to questionID.
func (e *Expirer) Cancel(pollID, questionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p := e.pending[pollID]; p != nil && p.questionID == questionID {
		stopAndDrainTimer(p.timer)
		close(p.stop)
		delete(e.pending, pollID)
	}
}

// Pending returns the number of armed timers.
func (e *Expirer) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Resume schedules every question that was ACTIVE when the process started.
func (e *Expirer) Resume(ctx context.Context, lister ActiveLister) error {
	list, err := lister.ListActiveQuestions(ctx)
	if err != nil {
		return err
	}
	for _, q := range list {
		e.Schedule(q)
	}
	e.logger.Info("question expiry resumed", zap.Int("active_questions", len(list)))
	return nil
}

// Stop cancels all timers and waits for in-flight closes.
func (e *Expirer) Stop() {
	e.mu.Lock()
	e.stopped = true
	for pollID, p := range e.pending {
		stopAndDrainTimer(p.timer)
		close(p.stop)
		delete(e.pending, pollID)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
