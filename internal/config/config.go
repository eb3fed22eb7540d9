package config

import (
	"encoding/base64"
	"fmt"
)

type Config struct {
	ServerAddr      string
	DatabaseDSN     string
	SigningKey      []byte
	SubscriptionKey []byte
	AllowedOrigins  []string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string
}

func decodeSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64SigningSecret, base64SubscriptionSecret string, allowedOrigins []string, vapidPublicKey, vapidPrivateKey, vapidSubscriber string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64SigningSecret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if base64SubscriptionSecret == "" {
		return nil, fmt.Errorf("subscription secret cannot be empty")
	}

	signingKey, err := decodeSecret(base64SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	subscriptionKey, err := decodeSecret(base64SubscriptionSecret)
	if err != nil {
		return nil, fmt.Errorf("decode subscription secret: %w", err)
	}

	return &Config{
		ServerAddr:      serverAddr,
		DatabaseDSN:     databaseDSN,
		SigningKey:      signingKey,
		SubscriptionKey: subscriptionKey,
		AllowedOrigins:  allowedOrigins,
		VAPIDPublicKey:  vapidPublicKey,
		VAPIDPrivateKey: vapidPrivateKey,
		VAPIDSubscriber: vapidSubscriber,
	}, nil
}
