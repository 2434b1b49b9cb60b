package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const bridgePublishTimeout = 5 * time.Second

// Event is one poll-scoped notification.
type Event struct {
	Name   string          `json:"event"`
	PollID uuid.UUID       `json:"poll_id"`
	Data   json.RawMessage `json:"data"`
	At     time.Time       `json:"at"`
}

// DeliverFunc receives events for one subscription. It must not block.
type DeliverFunc func(Event)

// SubscriptionID identifies a registered subscriber.
type SubscriptionID uint64

// Bridge carries events between server instances.
type Bridge interface {
	PublishPollEvent(ctx context.Context, ev Event) error
	SubscribePoll(pollID uuid.UUID, handler func(Event)) (cancel func(), err error)
}

type subscription struct {
	pollID  uuid.UUID
	deliver DeliverFunc
}

// Broker fans poll events out to the subscribers of that poll. With a Bridge
// configured, publishes go through the bridge and every instance fans out
// what it receives, so local subscribers see each event once.
type Broker struct {
	mu         sync.RWMutex
	subs       map[SubscriptionID]subscription
	byPoll     map[uuid.UUID]map[SubscriptionID]struct{}
	bridgeSubs map[uuid.UUID]func()
	nextID     SubscriptionID
	closed     bool
	done       chan struct{}

	bridge Bridge
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewBroker creates a broker. bridge may be nil for a single instance.
func NewBroker(bridge Bridge, clock clockwork.Clock, logger *zap.Logger) *Broker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subs:       make(map[SubscriptionID]subscription),
		byPoll:     make(map[uuid.UUID]map[SubscriptionID]struct{}),
		bridgeSubs: make(map[uuid.UUID]func()),
		done:       make(chan struct{}),
		bridge:     bridge,
		clock:      clock,
		logger:     logger,
	}
}

// Subscribe registers deliver for pollID. The returned cancel func is the same
// as Unsubscribe(id) and is safe to call more than once.
func (b *Broker) Subscribe(pollID uuid.UUID, deliver DeliverFunc) (SubscriptionID, func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = subscription{pollID: pollID, deliver: deliver}
	first := b.byPoll[pollID] == nil
	if first {
		b.byPoll[pollID] = make(map[SubscriptionID]struct{})
	}
	b.byPoll[pollID][id] = struct{}{}
	b.mu.Unlock()

	if first && b.bridge != nil {
		b.openBridge(pollID)
	}
	b.logger.Debug("subscriber registered", zap.Uint64("subscription_id", uint64(id)), zap.String("poll_id", pollID.String()))
	return id, func() { b.Unsubscribe(id) }
}

// openBridge subscribes outside the lock. An overlapping call that finds a
// bridge subscription already stored cancels its own.
func (b *Broker) openBridge(pollID uuid.UUID) {
	cancel, err := b.bridge.SubscribePoll(pollID, func(ev Event) {
		b.deliverLocal(ev)
	})
	if err != nil {
		b.logger.Warn("bridge subscribe failed, poll events stay local", zap.String("poll_id", pollID.String()), zap.Error(err))
		return
	}
	b.mu.Lock()
	_, stillWanted := b.byPoll[pollID]
	_, open := b.bridgeSubs[pollID]
	if stillWanted && !open && !b.closed {
		b.bridgeSubs[pollID] = cancel
		cancel = nil
	}
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Unsubscribe removes a subscription. The per-poll bridge subscription closes
// with the last local subscriber.
func (b *Broker) Unsubscribe(id SubscriptionID) {
	var cancelBridge func()
	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, id)
	if set := b.byPoll[sub.pollID]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(b.byPoll, sub.pollID)
			cancelBridge = b.bridgeSubs[sub.pollID]
			delete(b.bridgeSubs, sub.pollID)
		}
	}
	b.mu.Unlock()

	if cancelBridge != nil {
		cancelBridge()
	}
	b.logger.Debug("subscriber removed", zap.Uint64("subscription_id", uint64(id)), zap.String("poll_id", sub.pollID.String()))
}

// SubscriberCount returns the number of local subscribers of pollID.
func (b *Broker) SubscriberCount(pollID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byPoll[pollID])
}

// Publish marshals payload once and notifies every subscriber of pollID.
// Delivery is at-most-once; failures are dropped per subscriber.
func (b *Broker) Publish(pollID uuid.UUID, name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("marshal event payload", zap.String("event", name), zap.Error(err))
		return
	}
	ev := Event{Name: name, PollID: pollID, Data: data, At: b.clock.Now()}

	if b.bridge == nil {
		b.deliverLocal(ev)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), bridgePublishTimeout)
	defer cancel()
	if err := b.bridge.PublishPollEvent(ctx, ev); err != nil {
		b.logger.Warn("bridge publish failed, delivering locally", zap.String("event", name), zap.Error(err))
		b.deliverLocal(ev)
		return
	}
	b.mu.RLock()
	_, bridged := b.bridgeSubs[pollID]
	b.mu.RUnlock()
	if !bridged {
		b.deliverLocal(ev)
	}
}

func (b *Broker) deliverLocal(ev Event) {
	b.mu.RLock()
	targets := make([]DeliverFunc, 0, len(b.byPoll[ev.PollID]))
	for id := range b.byPoll[ev.PollID] {
		targets = append(targets, b.subs[id].deliver)
	}
	b.mu.RUnlock()

	for _, deliver := range targets {
		b.safeDeliver(deliver, ev)
	}
}

func (b *Broker) safeDeliver(deliver DeliverFunc, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("subscriber delivery panicked", zap.String("event", ev.Name), zap.Any("panic", r))
		}
	}()
	deliver(ev)
}

// Done is closed when the broker shuts down.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// Close drops every subscription and bridge subscription. Streams watching
// Done end on their own.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	cancels := make([]func(), 0, len(b.bridgeSubs))
	for _, cancel := range b.bridgeSubs {
		cancels = append(cancels, cancel)
	}
	b.subs = make(map[SubscriptionID]subscription)
	b.byPoll = make(map[uuid.UUID]map[SubscriptionID]struct{})
	b.bridgeSubs = make(map[uuid.UUID]func())
	close(b.done)
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Subscriber buffers events for one connection. A full buffer drops the event
// for this subscriber only.
type Subscriber struct {
	ch      chan Event
	mu      sync.Mutex
	dropped int
	userID  uuid.UUID
	gone    chan struct{}
	ended   bool
}

// NewSubscriber creates a subscriber with the given buffer size.
func NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 1
	}
	return &Subscriber{ch: make(chan Event, buffer), gone: make(chan struct{})}
}

// EndOnKick makes the subscriber end when a participant_kicked event names
// userID. Nothing is buffered after that event.
func (s *Subscriber) EndOnKick(userID uuid.UUID) *Subscriber {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
	return s
}

// Deliver implements DeliverFunc.
func (s *Subscriber) Deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped++
	}
	if s.userID != uuid.Nil && kicks(ev, s.userID) {
		s.ended = true
		close(s.gone)
	}
}

func kicks(ev Event, userID uuid.UUID) bool {
	if ev.Name != EventParticipantKicked {
		return false
	}
	var k ParticipantKicked
	return json.Unmarshal(ev.Data, &k) == nil && k.UserID == userID
}

// Events is the receive side of the buffer.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Gone is closed once the subscriber's user has been kicked.
func (s *Subscriber) Gone() <-chan struct{} {
	return s.gone
}

// Dropped returns how many events were discarded on a full buffer.
func (s *Subscriber) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
