package bus

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/convoapp/convo/internal/stats"
)

// Topic is a category of event carried by the bus.
type Topic int

const (
	ConversationCreated Topic = iota
	ConversationUpdated
	MessageCreated
	UserUpdated
)

var topicNames = map[Topic]string{
	ConversationCreated: "conversation_created",
	ConversationUpdated: "conversation_updated",
	MessageCreated:      "message_created",
	UserUpdated:         "user_updated",
}

func (t Topic) String() string {
	if name, ok := topicNames[t]; ok {
		return name
	}
	return fmt.Sprintf("topic(%d)", int(t))
}

func ParseTopic(s string) (Topic, error) {
	for t, name := range topicNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown topic %q", s)
}

// Event is published once and fanned out to all matching subscriptions. It is
// never mutated after publish.
type Event struct {
	Topic       Topic
	Payload     any
	PublishedAt time.Time
}

// SubscriberContext carries the authenticated user id and the query-time
// parameters a predicate may need.
type SubscriberContext struct {
	UserId         string
	ConversationId string
	WatchedUserId  string
}

// Predicate decides whether an event is delivered to a subscriber. A
// predicate returning false, for whatever reason, means silence: the
// subscriber observes neither the event nor an error.
type Predicate func(ev Event, sub SubscriberContext) bool

// queueSize bounds both a subscription's inbound queue and its delivery
// channel so a slow consumer can never stall the publisher.
const queueSize = 256

// Subscription is one subscriber's registration on a single topic. It is
// owned exclusively by the connection session that created it.
type Subscription struct {
	id        string
	topic     Topic
	predicate Predicate
	subCtx    SubscriberContext
	bus       *Bus
	pending   chan Event
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Subscription) Id() string   { return s.id }
func (s *Subscription) Topic() Topic { return s.topic }

// Events is the subscription's delivery channel. It is closed when the
// subscription is revoked.
func (s *Subscription) Events() <-chan Event { return s.events }

// run is the subscription's delivery worker. Each subscription evaluates its
// predicate on its own goroutine, so a slow oracle lookup for one subscriber
// never delays fan-out to another, while delivery order for this subscriber
// still follows publish order.
func (s *Subscription) run() {
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.pending:
			select {
			case <-s.done:
				return
			default:
			}

			if !s.evaluate(ev) {
				continue
			}

			select {
			case s.events <- ev:
				s.bus.stats.Incr(stats.EventsDelivered)
			case <-s.done:
				return
			default:
				s.bus.log.Printf("subscription %s on %s cannot keep up, revoking", s.id, s.topic)
				s.bus.stats.Incr(stats.EventsDropped)
				s.bus.Unsubscribe(s)
				return
			}
		}
	}
}

// evaluate runs the predicate, treating a panic as a denial so one failing
// predicate cannot take down fan-out to other subscribers.
func (s *Subscription) evaluate(ev Event) (pass bool) {
	defer func() {
		if r := recover(); r != nil {
			s.bus.log.Printf("predicate panic on %s subscription %s: %v", s.topic, s.id, r)
			pass = false
		}
	}()

	if s.predicate == nil {
		return true
	}
	return s.predicate(ev, s.subCtx)
}

// Bus is a typed publish/subscribe broker. A single instance is shared by
// reference between the mutation layer, the presence tracker and all
// connection sessions.
type Bus struct {
	log    *log.Logger
	stats  stats.Provider
	mu     sync.RWMutex
	subs   map[Topic]map[string]*Subscription
	nextId atomic.Uint64
}

func NewBus(logger *log.Logger, st stats.Provider) *Bus {
	return &Bus{
		log:   logger,
		stats: st,
		subs:  make(map[Topic]map[string]*Subscription),
	}
}

// Subscribe registers a new subscription on the topic. Events published
// before Subscribe returns are never delivered to it.
func (b *Bus) Subscribe(topic Topic, predicate Predicate, subCtx SubscriberContext) *Subscription {
	sub := &Subscription{
		id:        fmt.Sprintf("sub-%d", b.nextId.Add(1)),
		topic:     topic,
		predicate: predicate,
		subCtx:    subCtx,
		bus:       b,
		pending:   make(chan Event, queueSize),
		events:    make(chan Event, queueSize),
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[string]*Subscription)
	}
	b.subs[topic][sub.id] = sub
	b.mu.Unlock()

	go sub.run()

	return sub
}

// Unsubscribe revokes the subscription and closes its delivery channel. It is
// idempotent; once it returns no further events reach the subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	if topicSubs, ok := b.subs[sub.topic]; ok {
		delete(topicSubs, sub.id)
	}
	b.mu.Unlock()

	sub.closeOnce.Do(func() {
		close(sub.done)
	})
}

// Publish fans the event out to every current subscription on the topic. It
// enqueues to each subscription's bounded inbound queue and never blocks on a
// slow subscriber; a subscriber whose queue is full is revoked instead.
func (b *Bus) Publish(topic Topic, payload any) {
	ev := Event{
		Topic:       topic,
		Payload:     payload,
		PublishedAt: time.Now().UTC(),
	}
	b.stats.Incr(stats.EventsPublished)

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs[topic]))
	for _, sub := range b.subs[topic] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.pending <- ev:
		default:
			b.log.Printf("subscription %s on %s queue full, revoking", sub.id, topic)
			b.stats.Incr(stats.EventsDropped)
			b.Unsubscribe(sub)
		}
	}
}
