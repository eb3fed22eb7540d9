package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
)

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator([]byte("signing-key"), []byte("subscription-key"))
}

func TestAccessTokenRoundTrip(t *testing.T) {
	a := newTestAuthenticator()

	token, err := a.GenerateAccessToken("user-1")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	userId, err := a.VerifyAccessToken(token)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", userId)
}

func TestSubscriptionTokenRoundTrip(t *testing.T) {
	a := newTestAuthenticator()

	token, err := a.GenerateSubscriptionToken("user-2")
	assert.NoError(t, err)

	userId, err := a.VerifySubscriptionToken(token)
	assert.NoError(t, err)
	assert.Equal(t, "user-2", userId)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	a := newTestAuthenticator()

	accessToken, err := a.GenerateAccessToken("user-1")
	assert.NoError(t, err)

	_, err = a.VerifySubscriptionToken(accessToken)
	assert.Error(t, err, "access token must not verify as a subscription token")

	subscriptionToken, err := a.GenerateSubscriptionToken("user-1")
	assert.NoError(t, err)

	_, err = a.VerifyAccessToken(subscriptionToken)
	assert.Error(t, err, "subscription token must not verify as an access token")
}

func TestVerifyToken(t *testing.T) {
	a := newTestAuthenticator()

	t.Run("garbage token", func(t *testing.T) {
		_, err := a.VerifyAccessToken("not-a-token")
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			userIdClaim: "user-1",
			expClaim:    time.Now().Add(-time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("signing-key"))
		assert.NoError(t, err)

		_, err = a.VerifyAccessToken(signed)
		assert.Error(t, err)
	})

	t.Run("missing user id claim", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			expClaim: time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("signing-key"))
		assert.NoError(t, err)

		_, err = a.VerifyAccessToken(signed)
		assert.ErrorContains(t, err, "invalid user id claim")
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			userIdClaim: "user-1",
			expClaim:    time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		assert.NoError(t, err)

		_, err = a.VerifyAccessToken(signed)
		assert.Error(t, err)
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	assert.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.True(t, VerifyPassword(hash, "hunter22"))
	assert.False(t, VerifyPassword(hash, "hunter23"))
}
