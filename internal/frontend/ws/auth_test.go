package ws

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/turf/internal/config"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newTestAuthenticator(allowPlain bool) *Authenticator {
	return NewAuthenticator(config.AuthConfig{
		JWTSecret:          testSecret,
		AllowPlainIdentity: allowPlain,
	}, "default")
}

func TestAuthenticateWithToken(t *testing.T) {
	a := newTestAuthenticator(false)
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "alice", "game": "skirmish"})

	r := httptest.NewRequest("GET", "/ws?token="+token, nil)
	identity, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.UserID)
	assert.Equal(t, "skirmish", identity.GameID)
}

func TestAuthenticateTokenDefaultsGame(t *testing.T) {
	a := newTestAuthenticator(false)
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "alice"})

	r := httptest.NewRequest("GET", "/ws?token="+token, nil)
	identity, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "default", identity.GameID)
}

func TestAuthenticateBearerHeader(t *testing.T) {
	a := newTestAuthenticator(false)
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "alice"})

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	identity, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.UserID)
}

func TestAuthenticateBadSignature(t *testing.T) {
	a := newTestAuthenticator(false)
	token := signToken(t, "wrong-secret", jwt.MapClaims{"sub": "alice"})

	r := httptest.NewRequest("GET", "/ws?token="+token, nil)
	_, err := a.Authenticate(r)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateExpiredToken(t *testing.T) {
	a := newTestAuthenticator(false)
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	r := httptest.NewRequest("GET", "/ws?token="+token, nil)
	_, err := a.Authenticate(r)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateMissingSubject(t *testing.T) {
	a := newTestAuthenticator(false)
	token := signToken(t, testSecret, jwt.MapClaims{"game": "skirmish"})

	r := httptest.NewRequest("GET", "/ws?token="+token, nil)
	_, err := a.Authenticate(r)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticatePlainIdentityWhenAllowed(t *testing.T) {
	a := newTestAuthenticator(true)

	r := httptest.NewRequest("GET", "/ws?user=alice&game=skirmish", nil)
	identity, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.UserID)
	assert.Equal(t, "skirmish", identity.GameID)
}

func TestAuthenticatePlainIdentityDefaultsGame(t *testing.T) {
	a := newTestAuthenticator(true)

	r := httptest.NewRequest("GET", "/ws?user=alice", nil)
	identity, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "default", identity.GameID)
}

func TestAuthenticatePlainIdentityRejectedByDefault(t *testing.T) {
	a := newTestAuthenticator(false)

	r := httptest.NewRequest("GET", "/ws?user=alice", nil)
	_, err := a.Authenticate(r)
	require.ErrorIs(t, err, ErrMissingCredentials)
}

func TestAuthenticateNoIdentity(t *testing.T) {
	a := newTestAuthenticator(true)

	r := httptest.NewRequest("GET", "/ws", nil)
	_, err := a.Authenticate(r)
	require.ErrorIs(t, err, ErrMissingCredentials)
}

func TestAuthenticateTokenWithVerificationDisabled(t *testing.T) {
	a := NewAuthenticator(config.AuthConfig{AllowPlainIdentity: true}, "default")
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "alice"})

	r := httptest.NewRequest("GET", "/ws?token="+token, nil)
	_, err := a.Authenticate(r)
	require.ErrorIs(t, err, ErrInvalidToken)
}
