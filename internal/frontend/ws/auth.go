// Package ws provides the WebSocket frontend: handshake authentication,
// connection acceptance, and the per-connection read/write pumps that bridge
// the transport to the game server.
package ws

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cory-johannsen/turf/internal/config"
)

var (
	// ErrMissingCredentials indicates the handshake carried no identity.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidToken indicates the handshake token failed verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the authenticated result of a handshake.
type Identity struct {
	// UserID is the player identity.
	UserID string
	// GameID is the game to join.
	GameID string
}

// Authenticator resolves a player identity from the HTTP upgrade request.
// A signed token names the user (subject) and optionally the game; plain
// query-parameter identity is for development only and must be enabled
// explicitly.
type Authenticator struct {
	cfg         config.AuthConfig
	defaultGame string
}

// NewAuthenticator creates an Authenticator.
//
// Precondition: defaultGame must be non-empty.
func NewAuthenticator(cfg config.AuthConfig, defaultGame string) *Authenticator {
	return &Authenticator{cfg: cfg, defaultGame: defaultGame}
}

// Authenticate extracts and verifies the identity in the upgrade request.
//
// Postcondition: Returns an Identity with a non-empty UserID and GameID, or
// ErrMissingCredentials / ErrInvalidToken.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	if token := bearerToken(r); token != "" {
		return a.fromToken(token)
	}
	if a.cfg.AllowPlainIdentity {
		return a.fromQuery(r)
	}
	return Identity{}, ErrMissingCredentials
}

// fromToken verifies an HS256 token and reads the identity claims. The
// subject names the user; an optional "game" claim names the game.
func (a *Authenticator) fromToken(raw string) (Identity, error) {
	if a.cfg.JWTSecret == "" {
		return Identity{}, fmt.Errorf("%w: token presented but verification is disabled", ErrInvalidToken)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	gameID := a.defaultGame
	if game, ok := claims["game"].(string); ok && game != "" {
		gameID = game
	}
	return Identity{UserID: subject, GameID: gameID}, nil
}

// fromQuery reads a plain development identity from query parameters.
func (a *Authenticator) fromQuery(r *http.Request) (Identity, error) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		return Identity{}, ErrMissingCredentials
	}
	gameID := r.URL.Query().Get("game")
	if gameID == "" {
		gameID = a.defaultGame
	}
	return Identity{UserID: userID, GameID: gameID}, nil
}

// bearerToken finds the handshake token in the Authorization header or the
// "token" query parameter. Browsers cannot set headers on WebSocket
// upgrades, hence the query fallback.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
	}
	return r.URL.Query().Get("token")
}
