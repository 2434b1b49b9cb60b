package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBridge struct {
	mu         sync.Mutex
	handlers   map[uuid.UUID]func(Event)
	published  []Event
	publishErr error
	cancelled  []uuid.UUID
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{handlers: make(map[uuid.UUID]func(Event))}
}

func (f *fakeBridge) PublishPollEvent(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, ev)
	if h := f.handlers[ev.PollID]; h != nil {
		go h(ev)
	}
	return nil
}

func (f *fakeBridge) SubscribePoll(pollID uuid.UUID, handler func(Event)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[pollID] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, pollID)
		f.cancelled = append(f.cancelled, pollID)
	}, nil
}

func (f *fakeBridge) subscribed(pollID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[pollID] != nil
}

func TestBrokerDeliversOnlyToPollSubscribers(t *testing.T) {
	b := NewBroker(nil, clockwork.NewFakeClock(), nil)
	pollA, pollB := uuid.New(), uuid.New()
	subA := NewSubscriber(4)
	subB := NewSubscriber(4)
	b.Subscribe(pollA, subA.Deliver)
	b.Subscribe(pollB, subB.Deliver)

	b.Publish(pollA, EventChatMessage, map[string]string{"text": "hi"})

	require.Len(t, subA.Events(), 1)
	assert.Empty(t, subB.Events())
	ev := <-subA.Events()
	assert.Equal(t, EventChatMessage, ev.Name)
	assert.Equal(t, pollA, ev.PollID)
	assert.JSONEq(t, `{"text":"hi"}`, string(ev.Data))
}

func TestBrokerIsolatesFaultySubscriber(t *testing.T) {
	b := NewBroker(nil, nil, nil)
	pollID := uuid.New()
	healthy := NewSubscriber(4)
	b.Subscribe(pollID, func(Event) { panic("broken client") })
	b.Subscribe(pollID, healthy.Deliver)

	assert.NotPanics(t, func() {
		b.Publish(pollID, EventVoteTally, struct{}{})
	})
	assert.Len(t, healthy.Events(), 1)
}

func TestBrokerFullBufferDropsForThatSubscriberOnly(t *testing.T) {
	b := NewBroker(nil, nil, nil)
	pollID := uuid.New()
	slow := NewSubscriber(1)
	fast := NewSubscriber(8)
	b.Subscribe(pollID, slow.Deliver)
	b.Subscribe(pollID, fast.Deliver)

	for i := 0; i < 3; i++ {
		b.Publish(pollID, EventVoteTally, i)
	}
	assert.Len(t, slow.Events(), 1)
	assert.Equal(t, 2, slow.Dropped())
	assert.Len(t, fast.Events(), 3)
}

func TestBrokerUnsubscribeIsPromptAndIdempotent(t *testing.T) {
	b := NewBroker(nil, nil, nil)
	pollID := uuid.New()
	sub := NewSubscriber(4)
	id, cancel := b.Subscribe(pollID, sub.Deliver)
	assert.Equal(t, 1, b.SubscriberCount(pollID))

	cancel()
	b.Unsubscribe(id)
	assert.Equal(t, 0, b.SubscriberCount(pollID))

	b.Publish(pollID, EventChatMessage, "late")
	assert.Empty(t, sub.Events())
}

func TestBrokerBridgeFanOutOnReceipt(t *testing.T) {
	bridge := newFakeBridge()
	b := NewBroker(bridge, nil, nil)
	pollID := uuid.New()
	sub := NewSubscriber(4)
	_, cancel := b.Subscribe(pollID, sub.Deliver)
	require.True(t, bridge.subscribed(pollID))

	b.Publish(pollID, EventQuestionCreated, map[string]int{"order": 1})

	ev := <-sub.Events()
	assert.Equal(t, EventQuestionCreated, ev.Name)
	assert.Empty(t, sub.Events(), "delivered once, through the bridge")
	require.Len(t, bridge.published, 1)

	cancel()
	assert.False(t, bridge.subscribed(pollID), "bridge subscription closes with the last subscriber")
}

func TestBrokerBridgeFailureFallsBackToLocal(t *testing.T) {
	bridge := newFakeBridge()
	bridge.publishErr = errors.New("redis down")
	b := NewBroker(bridge, nil, nil)
	pollID := uuid.New()
	sub := NewSubscriber(4)
	b.Subscribe(pollID, sub.Deliver)

	b.Publish(pollID, EventChatMessage, "hello")
	require.Len(t, sub.Events(), 1)
	ev := <-sub.Events()
	var text string
	require.NoError(t, json.Unmarshal(ev.Data, &text))
	assert.Equal(t, "hello", text)
}

func TestBrokerCloseEndsSubscriptions(t *testing.T) {
	bridge := newFakeBridge()
	b := NewBroker(bridge, nil, nil)
	pollID := uuid.New()
	b.Subscribe(pollID, NewSubscriber(1).Deliver)

	b.Close()
	b.Close()

	select {
	case <-b.Done():
	default:
		t.Fatal("Done not closed")
	}
	assert.Equal(t, 0, b.SubscriberCount(pollID))
	assert.Contains(t, bridge.cancelled, pollID)

	id, _ := b.Subscribe(pollID, NewSubscriber(1).Deliver)
	assert.Equal(t, SubscriptionID(0), id)
}

// gatedBridge holds its first SubscribePoll until release is closed and
// counts subscriptions that were never cancelled.
type gatedBridge struct {
	fakeBridge
	calls   int
	entered chan struct{}
	release chan struct{}
	live    int
}

func (g *gatedBridge) SubscribePoll(pollID uuid.UUID, handler func(Event)) (func(), error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}
	g.mu.Lock()
	g.live++
	g.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.live--
			g.mu.Unlock()
		})
	}, nil
}

func (g *gatedBridge) liveSubs() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.live
}

func TestBrokerOverlappingBridgeOpensKeepOneSubscription(t *testing.T) {
	bridge := &gatedBridge{entered: make(chan struct{}), release: make(chan struct{})}
	b := NewBroker(bridge, clockwork.NewFakeClock(), nil)
	pollID := uuid.New()

	firstDone := make(chan func())
	go func() {
		_, cancel := b.Subscribe(pollID, NewSubscriber(1).Deliver)
		firstDone <- cancel
	}()
	<-bridge.entered

	// The first subscriber leaves and a second arrives while the first
	// bridge subscribe is still in flight.
	b.mu.RLock()
	var firstID SubscriptionID
	for id := range b.byPoll[pollID] {
		firstID = id
	}
	b.mu.RUnlock()
	b.Unsubscribe(firstID)
	_, cancelSecond := b.Subscribe(pollID, NewSubscriber(1).Deliver)
	assert.Equal(t, 1, bridge.liveSubs())

	close(bridge.release)
	<-firstDone
	assert.Equal(t, 1, bridge.liveSubs(), "the late subscription is cancelled")

	cancelSecond()
	assert.Equal(t, 0, bridge.liveSubs())
}
