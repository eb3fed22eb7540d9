package presence

import (
	"log"
	"sync"
	"time"

	"github.com/convoapp/convo/internal/bus"
	"github.com/convoapp/convo/internal/database"
	"github.com/convoapp/convo/internal/stats"
	"github.com/convoapp/convo/internal/types"
)

// Tracker maintains per-user online state derived from the number of open
// connections. OnConnect and OnDisconnect are only ever called from the
// session lifecycle, paired under a single guarded close path, so the count
// can never drift.
type Tracker struct {
	log   *log.Logger
	bus   *bus.Bus
	db    database.ConvoRepository
	stats stats.Provider

	mu      sync.Mutex
	entries map[string]*entry
}

// entry serializes all transitions for one user. Connects and disconnects of
// the same user from multiple devices contend on the entry lock, never on the
// tracker-wide one.
type entry struct {
	mu         sync.Mutex
	count      int
	lastOnline time.Time
}

func NewTracker(logger *log.Logger, b *bus.Bus, db database.ConvoRepository, st stats.Provider) *Tracker {
	return &Tracker{
		log:     logger,
		bus:     b,
		db:      db,
		stats:   st,
		entries: make(map[string]*entry),
	}
}

func (t *Tracker) entryFor(userId string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[userId]
	if !ok {
		e = &entry{}
		t.entries[userId] = e
	}
	return e
}

// OnConnect records one more open connection for the user. The first
// connection flips the user online and publishes a user_updated event.
func (t *Tracker) OnConnect(userId string) {
	e := t.entryFor(userId)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.count++
	if e.count != 1 {
		return
	}

	t.stats.Incr(stats.OnlineUsers)

	snapshot := types.User{Id: userId, IsOnline: true}
	if user, err := t.db.SetOnlineStatus(userId, true); err != nil {
		t.log.Printf("presence: persist online status for %s: %v", userId, err)
	} else {
		snapshot = user.Snapshot()
	}

	t.bus.Publish(bus.UserUpdated, snapshot)
}

// OnDisconnect records one less open connection for the user. The last
// connection flips the user offline, stamps lastOnline and publishes a
// user_updated event. The count never goes below zero.
func (t *Tracker) OnDisconnect(userId string) {
	e := t.entryFor(userId)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.count == 0 {
		t.log.Printf("presence: unmatched disconnect for %s", userId)
		return
	}

	e.count--
	if e.count != 0 {
		return
	}

	t.stats.Decr(stats.OnlineUsers)
	e.lastOnline = time.Now().UTC()

	snapshot := types.User{Id: userId, IsOnline: false, LastOnline: e.lastOnline}
	if user, err := t.db.SetLastOnline(userId, e.lastOnline); err != nil {
		t.log.Printf("presence: persist last online for %s: %v", userId, err)
	} else {
		snapshot = user.Snapshot()
	}

	t.bus.Publish(bus.UserUpdated, snapshot)
}

func (t *Tracker) IsOnline(userId string) bool {
	return t.ConnectionCount(userId) > 0
}

func (t *Tracker) ConnectionCount(userId string) int {
	t.mu.Lock()
	e, ok := t.entries[userId]
	t.mu.Unlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func (t *Tracker) LastOnline(userId string) time.Time {
	t.mu.Lock()
	e, ok := t.entries[userId]
	t.mu.Unlock()
	if !ok {
		return time.Time{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastOnline
}
