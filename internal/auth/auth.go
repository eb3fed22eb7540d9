package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

const (
	userIdClaim = "user-id"
	expClaim    = "exp"

	defaultAccessExp       = time.Hour * 24
	defaultSubscriptionExp = time.Hour * 24
)

// Authenticator issues and verifies the two token kinds the server uses: an
// access token for HTTP requests and a separate subscription token presented
// by clients when opening a live subscription connection. The two are signed
// with independent keys so one cannot stand in for the other.
type Authenticator struct {
	signingKey      []byte
	subscriptionKey []byte
	accessExp       time.Duration
	subscriptionExp time.Duration
}

func NewAuthenticator(signingKey, subscriptionKey []byte) *Authenticator {
	return &Authenticator{
		signingKey:      signingKey,
		subscriptionKey: subscriptionKey,
		accessExp:       defaultAccessExp,
		subscriptionExp: defaultSubscriptionExp,
	}
}

func (a *Authenticator) GenerateAccessToken(userId string) (string, error) {
	return generateToken(userId, a.signingKey, a.accessExp)
}

func (a *Authenticator) VerifyAccessToken(tokenString string) (string, error) {
	return verifyToken(tokenString, a.signingKey)
}

func (a *Authenticator) GenerateSubscriptionToken(userId string) (string, error) {
	return generateToken(userId, a.subscriptionKey, a.subscriptionExp)
}

// VerifySubscriptionToken validates a subscription credential and returns the
// authenticated user id.
func (a *Authenticator) VerifySubscriptionToken(tokenString string) (string, error) {
	return verifyToken(tokenString, a.subscriptionKey)
}

func generateToken(userId string, key []byte, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(key)
}

func verifyToken(tokenString string, key []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return "", fmt.Errorf("invalid user id claim")
	}

	return userId, nil
}

func HashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func VerifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
