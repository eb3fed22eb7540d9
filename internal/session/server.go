package session

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/convoapp/convo/internal/bus"
	"github.com/convoapp/convo/internal/presence"
	"github.com/convoapp/convo/internal/stats"
)

const sendQueueSize = 256

// CredentialVerifier checks a subscription credential and returns the
// id of the user it was issued to.
type CredentialVerifier interface {
	VerifySubscriptionToken(token string) (string, error)
}

// Server owns every live session. A connection is handed to it straight
// after the websocket upgrade and tracked until its session closes.
type Server struct {
	log      *log.Logger
	bus      *bus.Bus
	presence *presence.Tracker
	oracle   bus.ParticipantOracle
	verifier CredentialVerifier
	stats    stats.Provider

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewServer(logger *log.Logger, b *bus.Bus, tracker *presence.Tracker,
	oracle bus.ParticipantOracle, verifier CredentialVerifier, statsProvider stats.Provider) *Server {
	return &Server{
		log:      logger,
		bus:      b,
		presence: tracker,
		oracle:   oracle,
		verifier: verifier,
		stats:    statsProvider,
		sessions: make(map[string]*Session),
	}
}

// HandleConnection registers a new session for conn and starts its pumps.
// The session starts unauthenticated; the client must send a credential
// frame before anything else.
func (srv *Server) HandleConnection(conn *websocket.Conn) (*Session, error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:    id,
		srv:   srv,
		conn:  conn,
		log:   srv.log,
		state: StateConnecting,
		send:  make(chan *ServerMessage, sendQueueSize),
		stop:  make(chan struct{}),
		subs:  make(map[string]*bus.Subscription),
	}

	srv.mu.Lock()
	srv.sessions[s.id] = s
	srv.mu.Unlock()

	srv.stats.Incr(stats.ActiveSessions)
	srv.log.Printf("session %s: connected from %s", s.id, conn.RemoteAddr())

	go s.writePump()
	go s.readPump()

	return s, nil
}

// Disconnect closes the session with the given id, if it is still open.
func (srv *Server) Disconnect(sessionId string) {
	srv.mu.Lock()
	s, ok := srv.sessions[sessionId]
	srv.mu.Unlock()

	if ok {
		s.Close()
	}
}

func (srv *Server) Session(sessionId string) (*Session, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	s, ok := srv.sessions[sessionId]
	return s, ok
}

func (srv *Server) SessionCount() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}

func (srv *Server) deregister(s *Session) {
	srv.mu.Lock()
	_, ok := srv.sessions[s.id]
	if ok {
		delete(srv.sessions, s.id)
	}
	srv.mu.Unlock()

	if ok {
		srv.stats.Decr(stats.ActiveSessions)
	}
}

// Shutdown closes every open session. It returns once all sessions are
// deregistered or ctx expires.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.mu.Lock()
	open := make([]*Session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		open = append(open, s)
	}
	srv.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, s := range open {
			s.Close()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
