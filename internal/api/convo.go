package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/convoapp/convo/internal/auth"
	"github.com/convoapp/convo/internal/bus"
	"github.com/convoapp/convo/internal/config"
	"github.com/convoapp/convo/internal/database"
	"github.com/convoapp/convo/internal/push"
	"github.com/convoapp/convo/internal/session"
)

type ConvoApp struct {
	log            *log.Logger
	db             database.ConvoRepository
	mux            *http.Server
	bus            *bus.Bus
	sessions       *session.Server
	push           *push.Dispatcher
	auth           *auth.Authenticator
	allowedOrigins []string
}

func NewConvoApp(logger *log.Logger, db database.ConvoRepository, b *bus.Bus,
	sessions *session.Server, dispatcher *push.Dispatcher, authn *auth.Authenticator,
	metrics http.Handler, cfg *config.Config) *ConvoApp {
	s := &ConvoApp{
		log:            logger,
		db:             db,
		bus:            b,
		sessions:       sessions,
		push:           dispatcher,
		auth:           authn,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("PUT /api/account", s.authMiddleware(s.updateAccount))
	mux.Handle("GET /api/users", s.authMiddleware(s.listUsers))
	mux.Handle("POST /api/conversations", s.authMiddleware(s.createConversation))
	mux.Handle("GET /api/conversations", s.authMiddleware(s.listConversations))
	mux.Handle("POST /api/messages", s.authMiddleware(s.createMessage))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/push/registrations", s.authMiddleware(s.addPushRegistration))
	mux.Handle("DELETE /api/push/registrations", s.authMiddleware(s.removePushRegistration))
	mux.HandleFunc("GET /ws", s.serveWs)
	mux.Handle("GET /metrics", metrics)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ConvoApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ConvoApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
