package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/convoapp/convo/internal/api"
	"github.com/convoapp/convo/internal/auth"
	"github.com/convoapp/convo/internal/bus"
	"github.com/convoapp/convo/internal/config"
	"github.com/convoapp/convo/internal/database"
	"github.com/convoapp/convo/internal/presence"
	"github.com/convoapp/convo/internal/push"
	"github.com/convoapp/convo/internal/session"
	"github.com/convoapp/convo/internal/stats"
)

const (
	defaultSigningSecret      = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	defaultSubscriptionSecret = "5xY0X0L1p0x3DkcnUfnlRiJUnDmYStu1QbUbQ2usY3M="
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr               string
	dsn                string
	signingSecret      string
	subscriptionSecret string
	allowedOrigins     stringSliceFlag
	vapidPublicKey     string
	vapidPrivateKey    string
	vapidSubscriber    string
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingSecret, "signing-secret", defaultSigningSecret, "base64 encoded access token signing secret")
	flag.StringVar(&subscriptionSecret, "subscription-secret", defaultSubscriptionSecret, "base64 encoded subscription token signing secret")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&vapidPublicKey, "vapid-public-key", "", "VAPID public key for web push")
	flag.StringVar(&vapidPrivateKey, "vapid-private-key", "", "VAPID private key for web push")
	flag.StringVar(&vapidSubscriber, "vapid-subscriber", "mailto:admin@localhost", "VAPID subscriber contact")
	flag.Parse()

	logger := log.New(os.Stderr, "[convo] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingSecret, subscriptionSecret,
		allowedOrigins, vapidPublicKey, vapidPrivateKey, vapidSubscriber)
	if err != nil {
		logger.Fatal("config:", err)
	}

	db, err := database.NewPgConvoRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	prom := stats.NewPrometheusStats()

	eventBus := bus.NewBus(logger, prom)
	tracker := presence.NewTracker(logger, eventBus, db, prom)

	authn := auth.NewAuthenticator(cfg.SigningKey, cfg.SubscriptionKey)

	transport := push.NewWebPushTransport(cfg.VAPIDSubscriber, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	dispatcher := push.NewDispatcher(logger, db, transport, prom)

	sessions := session.NewServer(logger, eventBus, tracker, db, authn, prom)

	srv := api.NewConvoApp(logger, db, eventBus, sessions, dispatcher, authn, prom.Handler(), cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("closing live sessions...")
	if err := sessions.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("session shutdown:", err)
	}

	logger.Println("shutdown complete")
}
