package session

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/convoapp/convo/internal/bus"
)

const (
	writeWait      = 5 * time.Second
	pingInterval   = 10 * time.Second
	pongWait       = pingInterval + 5*time.Second
	maxMessageSize = 4096
)

type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one live subscription connection. It is created in the
// Connecting state; the first frame must carry a subscription credential.
// Only a session that reached Active ever touched the presence tracker, and
// the close path undoes exactly what was done, exactly once, no matter how
// many close signals arrive.
type Session struct {
	id   string
	srv  *Server
	conn *websocket.Conn
	log  *log.Logger

	mu             sync.Mutex
	state          State
	userId         string
	presenceMarked bool

	send      chan *ServerMessage
	stop      chan struct{}
	closeOnce sync.Once

	subsMu sync.Mutex
	subs   map[string]*bus.Subscription
}

func (s *Session) Id() string { return s.id }

func (s *Session) UserId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userId
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) readPump() {
	defer func() {
		s.Close()
		s.log.Printf("session %s: read exiting", s.id)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("session %s: read: %v", s.id, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Printf("session %s: parse message: %v", s.id, err)
			s.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		switch {
		case msg.Auth != nil:
			s.handleAuth(&msg)
		case msg.Subscribe != nil:
			s.handleSubscribe(&msg)
		case msg.Unsubscribe != nil:
			s.handleUnsubscribe(&msg)
		default:
			s.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.Close()
		s.log.Printf("session %s: write exiting", s.id)
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				s.log.Printf("session %s: serialize message: %v", s.id, err)
				continue
			}

			if !s.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-ticker.C:
			if !s.writeMessage(websocket.PingMessage, nil) {
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Session) writeMessage(msgType int, data []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(msgType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			s.log.Printf("session %s: write: %v", s.id, err)
		}
		return false
	}
	return true
}

func (s *Session) queueMessage(msg *ServerMessage) bool {
	select {
	case s.send <- msg:
	default:
		s.log.Printf("session %s: send channel full, dropping message", s.id)
		return false
	}
	return true
}

// handleAuth validates the subscription credential. A failed validation
// closes the session without ever touching the presence tracker.
func (s *Session) handleAuth(msg *ClientMessage) {
	if s.State() != StateConnecting {
		s.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	userId, err := s.srv.verifier.VerifySubscriptionToken(msg.Auth.Token)
	if err != nil {
		s.log.Printf("session %s: credential rejected: %v", s.id, err)
		s.queueMessage(ErrUnauthorized(msg.Id))
		s.Close()
		return
	}

	if !s.activate(userId) {
		return
	}

	s.log.Printf("session %s: authenticated as %s", s.id, userId)
	s.queueMessage(NoErrOK(msg.Id, map[string]any{
		"session_id": s.id,
		"user_id":    userId,
	}))
}

// activate moves the session through Authenticated to Active and registers
// the presence connection. It is serialized against the close path so a
// session closed mid-handshake can never leak a presence increment.
func (s *Session) activate(userId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return false
	}

	s.userId = userId
	s.state = StateAuthenticated

	s.srv.presence.OnConnect(userId)
	s.presenceMarked = true
	s.state = StateActive

	return true
}

func (s *Session) handleSubscribe(msg *ClientMessage) {
	if s.State() != StateActive {
		s.queueMessage(ErrUnauthorized(msg.Id))
		return
	}

	topic, err := bus.ParseTopic(msg.Subscribe.Topic)
	if err != nil {
		s.log.Printf("session %s: subscribe: %v", s.id, err)
		s.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	predicate, err := bus.PredicateForTopic(topic, s.srv.oracle)
	if err != nil {
		s.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	sub := s.srv.bus.Subscribe(topic, predicate, bus.SubscriberContext{
		UserId:         s.UserId(),
		ConversationId: msg.Subscribe.ConversationId,
		WatchedUserId:  msg.Subscribe.UserId,
	})

	s.subsMu.Lock()
	s.subs[sub.Id()] = sub
	s.subsMu.Unlock()

	go s.relay(sub)

	s.queueMessage(NoErrOK(msg.Id, map[string]any{
		"subscription_id": sub.Id(),
	}))
}

func (s *Session) handleUnsubscribe(msg *ClientMessage) {
	s.subsMu.Lock()
	sub, ok := s.subs[msg.Unsubscribe.SubscriptionId]
	if ok {
		delete(s.subs, msg.Unsubscribe.SubscriptionId)
	}
	s.subsMu.Unlock()

	if !ok {
		s.queueMessage(ErrNotFound(msg.Id))
		return
	}

	s.srv.bus.Unsubscribe(sub)
	s.queueMessage(NoErrOK(msg.Id, nil))
}

// relay forwards delivered events to the client until the subscription's
// delivery channel closes.
func (s *Session) relay(sub *bus.Subscription) {
	for ev := range sub.Events() {
		s.queueMessage(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: ev.PublishedAt},
			Event: &EventMessage{
				Topic:   ev.Topic.String(),
				Payload: ev.Payload,
			},
		})
	}

	// the bus revokes slow subscriptions on its own; drop our reference
	s.subsMu.Lock()
	delete(s.subs, sub.Id())
	s.subsMu.Unlock()
}

// Close drives the session to Closed and runs the cleanup path: revoke every
// open subscription, then release the presence connection if and only if this
// session acquired one. Safe to call from any goroutine any number of times;
// repeated close signals (a transport error followed by a close event) cannot
// double-decrement.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = StateClosed
		marked := s.presenceMarked
		userId := s.userId
		s.mu.Unlock()

		s.log.Printf("session %s: closing (was %s)", s.id, prev)

		s.subsMu.Lock()
		subs := make([]*bus.Subscription, 0, len(s.subs))
		for _, sub := range s.subs {
			subs = append(subs, sub)
		}
		s.subs = make(map[string]*bus.Subscription)
		s.subsMu.Unlock()

		for _, sub := range subs {
			s.srv.bus.Unsubscribe(sub)
		}

		if marked {
			s.srv.presence.OnDisconnect(userId)
		}

		close(s.stop)
		s.conn.Close()
		s.srv.deregister(s)
	})
}
