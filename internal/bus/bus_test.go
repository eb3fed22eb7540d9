package bus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/convoapp/convo/internal/stats"
	"github.com/convoapp/convo/internal/testutil"
	"github.com/convoapp/convo/internal/types"
)

func newTestBus(t *testing.T) *Bus {
	return NewBus(testutil.TestLogger(t), stats.NopStats{})
}

func receiveEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("events channel closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event delivered: %+v", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	b := newTestBus(t)

	sub := b.Subscribe(MessageCreated, nil, SubscriberContext{UserId: "u1"})
	defer b.Unsubscribe(sub)

	msg := types.Message{Id: "m1", ConversationId: "c1", SenderId: "u2", Content: "hello"}
	b.Publish(MessageCreated, msg)

	ev := receiveEvent(t, sub)
	assert.Equal(t, MessageCreated, ev.Topic)
	assert.Equal(t, msg, ev.Payload)
	assert.False(t, ev.PublishedAt.IsZero(), "expected PublishedAt to be stamped")
}

func TestPublishRespectsPredicate(t *testing.T) {
	b := newTestBus(t)

	deny := func(ev Event, sub SubscriberContext) bool { return false }
	sub := b.Subscribe(MessageCreated, deny, SubscriberContext{UserId: "u1"})
	defer b.Unsubscribe(sub)

	b.Publish(MessageCreated, types.Message{Id: "m1"})

	assertNoEvent(t, sub)
}

func TestPublishDoesNotCrossTopics(t *testing.T) {
	b := newTestBus(t)

	sub := b.Subscribe(ConversationCreated, nil, SubscriberContext{UserId: "u1"})
	defer b.Unsubscribe(sub)

	b.Publish(MessageCreated, types.Message{Id: "m1"})

	assertNoEvent(t, sub)
}

func TestDeliveryOrderFollowsPublishOrder(t *testing.T) {
	b := newTestBus(t)

	sub := b.Subscribe(MessageCreated, nil, SubscriberContext{UserId: "u1"})
	defer b.Unsubscribe(sub)

	const n = 100
	for i := 0; i < n; i++ {
		b.Publish(MessageCreated, types.Message{Id: fmt.Sprintf("m%d", i)})
	}

	for i := 0; i < n; i++ {
		ev := receiveEvent(t, sub)
		assert.Equal(t, fmt.Sprintf("m%d", i), ev.Payload.(types.Message).Id, "events delivered out of order")
	}
}

func TestLateSubscriberDoesNotReceiveEarlierEvent(t *testing.T) {
	b := newTestBus(t)

	b.Publish(MessageCreated, types.Message{Id: "m1"})

	sub := b.Subscribe(MessageCreated, nil, SubscriberContext{UserId: "u1"})
	defer b.Unsubscribe(sub)

	assertNoEvent(t, sub)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(t)

	sub := b.Subscribe(MessageCreated, nil, SubscriberContext{UserId: "u1"})
	b.Unsubscribe(sub)

	b.Publish(MessageCreated, types.Message{Id: "m1"})

	// the events channel is closed on revocation; no event must arrive
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("received event after unsubscribe: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for events channel to close")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := newTestBus(t)

	sub := b.Subscribe(MessageCreated, nil, SubscriberContext{UserId: "u1"})
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	b.mu.RLock()
	defer b.mu.RUnlock()
	assert.Empty(t, b.subs[MessageCreated], "expected no remaining subscriptions")
}

func TestSlowSubscriberIsRevoked(t *testing.T) {
	b := newTestBus(t)

	// a subscriber that never consumes: both the inbound queue and the
	// delivery channel fill up, then the bus revokes it
	_ = b.Subscribe(MessageCreated, nil, SubscriberContext{UserId: "u1"})

	for i := 0; i < 3*queueSize; i++ {
		b.Publish(MessageCreated, types.Message{Id: fmt.Sprintf("m%d", i)})
	}

	assert.Eventually(t, func() bool {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return len(b.subs[MessageCreated]) == 0
	}, time.Second, 10*time.Millisecond, "expected slow subscriber to be revoked")
}

func TestPanickingPredicateDoesNotAbortFanout(t *testing.T) {
	b := newTestBus(t)

	panicky := func(ev Event, sub SubscriberContext) bool { panic("predicate exploded") }
	bad := b.Subscribe(MessageCreated, panicky, SubscriberContext{UserId: "u1"})
	defer b.Unsubscribe(bad)

	good := b.Subscribe(MessageCreated, nil, SubscriberContext{UserId: "u2"})
	defer b.Unsubscribe(good)

	b.Publish(MessageCreated, types.Message{Id: "m1"})

	ev := receiveEvent(t, good)
	assert.Equal(t, "m1", ev.Payload.(types.Message).Id)
	assertNoEvent(t, bad)
}

func TestParseTopic(t *testing.T) {
	for _, topic := range []Topic{ConversationCreated, ConversationUpdated, MessageCreated, UserUpdated} {
		parsed, err := ParseTopic(topic.String())
		assert.NoError(t, err)
		assert.Equal(t, topic, parsed)
	}

	_, err := ParseTopic("bogus")
	assert.Error(t, err)
}
