package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	signingSecret := base64.StdEncoding.EncodeToString([]byte("signing-secret"))
	subscriptionSecret := base64.StdEncoding.EncodeToString([]byte("subscription-secret"))

	t.Run("valid config", func(t *testing.T) {
		cfg, err := NewConfig("localhost:8000", "host=localhost", signingSecret, subscriptionSecret,
			[]string{"http://localhost:3000"}, "pub", "priv", "mailto:admin@example.com")
		assert.NoError(t, err)
		assert.Equal(t, "localhost:8000", cfg.ServerAddr)
		assert.Equal(t, "host=localhost", cfg.DatabaseDSN)
		assert.Equal(t, []byte("signing-secret"), cfg.SigningKey)
		assert.Equal(t, []byte("subscription-secret"), cfg.SubscriptionKey)
		assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
		assert.Equal(t, "pub", cfg.VAPIDPublicKey)
		assert.Equal(t, "priv", cfg.VAPIDPrivateKey)
		assert.Equal(t, "mailto:admin@example.com", cfg.VAPIDSubscriber)
	})

	t.Run("empty server address", func(t *testing.T) {
		_, err := NewConfig("", "dsn", signingSecret, subscriptionSecret, nil, "", "", "")
		assert.ErrorContains(t, err, "server address cannot be empty")
	})

	t.Run("empty database DSN", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "", signingSecret, subscriptionSecret, nil, "", "", "")
		assert.ErrorContains(t, err, "database DSN cannot be empty")
	})

	t.Run("empty signing secret", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "dsn", "", subscriptionSecret, nil, "", "", "")
		assert.ErrorContains(t, err, "signing secret cannot be empty")
	})

	t.Run("empty subscription secret", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "dsn", signingSecret, "", nil, "", "", "")
		assert.ErrorContains(t, err, "subscription secret cannot be empty")
	})

	t.Run("invalid base64 signing secret", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "dsn", "not-base64!!", subscriptionSecret, nil, "", "", "")
		assert.ErrorContains(t, err, "decode signing secret")
	})

	t.Run("invalid base64 subscription secret", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "dsn", signingSecret, "not-base64!!", nil, "", "", "")
		assert.ErrorContains(t, err, "decode subscription secret")
	})
}
