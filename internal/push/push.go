package push

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/convoapp/convo/internal/database"
	"github.com/convoapp/convo/internal/stats"
	"github.com/convoapp/convo/internal/types"
)

// Transport delivers one payload to one device endpoint.
type Transport interface {
	SendPush(reg types.PushRegistration, payload []byte) error
}

// Payload is the notification content shown by the client. Timestamp is
// stamped at send time.
type Payload struct {
	Body      string `json:"body"`
	Icon      string `json:"icon,omitempty"`
	Image     string `json:"image,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Dispatcher fans a notification out to every push registration of a target
// user. Individual endpoint failures are logged and swallowed: a dead
// registration must not keep the remaining devices from being notified, and
// there is no retry. Stale registrations are left in place.
type Dispatcher struct {
	log       *log.Logger
	db        database.ConvoRepository
	transport Transport
	stats     stats.Provider
}

func NewDispatcher(logger *log.Logger, db database.ConvoRepository, transport Transport, st stats.Provider) *Dispatcher {
	return &Dispatcher{
		log:       logger,
		db:        db,
		transport: transport,
		stats:     st,
	}
}

// Notify sends the payload to every registered endpoint of the user. It
// returns once every attempt has been issued; delivery is best-effort and a
// send failure on one endpoint never aborts the others. A user with no
// registrations is a successful no-op.
func (d *Dispatcher) Notify(userId string, payload Payload) error {
	regs, err := d.db.ListPushRegistrations(userId)
	if err != nil {
		return fmt.Errorf("load push registrations: %w", err)
	}

	if len(regs) == 0 {
		return nil
	}

	payload.Timestamp = time.Now().UnixMilli()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	var wg sync.WaitGroup
	for _, reg := range regs {
		wg.Add(1)
		go func(reg types.PushRegistration) {
			defer wg.Done()
			if err := d.transport.SendPush(reg, body); err != nil {
				d.stats.Incr(stats.PushFailed)
				d.log.Printf("push: delivery to endpoint of user %s failed: %v", userId, err)
				return
			}
			d.stats.Incr(stats.PushSent)
		}(reg)
	}
	wg.Wait()

	return nil
}

// NotifyParticipants pushes to every participant of the conversation except
// the actor who caused the event.
func (d *Dispatcher) NotifyParticipants(conv types.Conversation, actorId string, payload Payload) {
	for _, participant := range conv.Participants {
		if participant.Id == actorId {
			continue
		}

		if err := d.Notify(participant.Id, payload); err != nil {
			d.log.Printf("push: notify %s: %v", participant.Id, err)
		}
	}
}
