package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/config"
	"github.com/cory-johannsen/turf/internal/game/session"
)

// GameServer is the game-side contract the frontend connects sessions to.
type GameServer interface {
	Connect(ctx context.Context, sessionID, userID, gameID string) (*session.Session, error)
	Disconnect(ctx context.Context, sessionID string) error
	Dispatch(ctx context.Context, sessionID string, frame []byte)
}

// Acceptor serves the WebSocket endpoint: it authenticates each upgrade
// request, admits the session into the game server, and runs the connection
// pumps until the client goes away.
type Acceptor struct {
	cfg    config.WebSocketConfig
	auth   *Authenticator
	game   GameServer
	logger *zap.Logger

	upgrader websocket.Upgrader
	server   *http.Server
}

// NewAcceptor creates a WebSocket acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; auth, game, and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.WebSocketConfig, auth *Authenticator, game GameServer, logger *zap.Logger) *Acceptor {
	a := &Acceptor{
		cfg:    cfg,
		auth:   auth,
		game:   game,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The handshake is authenticated by token, not origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, a.handleUpgrade)
	a.server = &http.Server{
		Addr:    cfg.Addr(),
		Handler: mux,
	}
	return a
}

// ListenAndServe starts the HTTP listener and blocks until Stop is called.
//
// Postcondition: Returns nil on graceful shutdown.
func (a *Acceptor) ListenAndServe() error {
	a.logger.Info("websocket listener starting",
		zap.String("addr", a.cfg.Addr()),
		zap.String("path", a.cfg.Path))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serving websocket endpoint: %w", err)
	}
	return nil
}

// Stop shuts the listener down gracefully.
func (a *Acceptor) Stop(ctx context.Context) error {
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down websocket endpoint: %w", err)
	}
	return nil
}

// handleUpgrade authenticates the request, upgrades it, and hands the
// connection to a client. Authentication failures are rejected before the
// upgrade so the client sees a plain HTTP status.
func (a *Acceptor) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	identity, err := a.auth.Authenticate(r)
	if err != nil {
		a.logger.Debug("rejecting handshake", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	sess, err := a.game.Connect(r.Context(), sessionID, identity.UserID, identity.GameID)
	if err != nil {
		a.logger.Error("failed to admit session",
			zap.String("user_id", identity.UserID),
			zap.String("game_id", identity.GameID),
			zap.Error(err))
		_ = conn.Close()
		return
	}

	client := newClient(conn, sess, a.game, a.cfg.WriteTimeout, a.cfg.PongTimeout, a.logger)
	go client.writePump()
	go client.readPump()
}
