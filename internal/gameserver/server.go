// Package gameserver wires the game logic to connected sessions: it admits
// players into games, dispatches inbound events to handlers, and fans the
// resulting broadcasts back out through the session layer.
package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/broadcast"
	"github.com/cory-johannsen/turf/internal/config"
	"github.com/cory-johannsen/turf/internal/game/economy"
	"github.com/cory-johannsen/turf/internal/game/geo"
	"github.com/cory-johannsen/turf/internal/game/region"
	"github.com/cory-johannsen/turf/internal/game/session"
	"github.com/cory-johannsen/turf/internal/game/state"
	"github.com/cory-johannsen/turf/internal/game/turn"
	"github.com/cory-johannsen/turf/internal/protocol"
	"github.com/cory-johannsen/turf/internal/storage/postgres"
)

// GameStore persists game rows, rosters, and balances.
type GameStore interface {
	EnsureGame(ctx context.Context, gameID string) error
	InGame(ctx context.Context, gameID, userID string) (bool, error)
	AddPlayer(ctx context.Context, gameID, userID string, startingMoney int64) error
	PlayerMoney(ctx context.Context, gameID, userID string) (int64, error)
	UpdateMoney(ctx context.Context, gameID, userID string, money int64) error
	SetElapsed(ctx context.Context, gameID string, elapsed time.Duration) error
}

// UserStore persists player identities.
type UserStore interface {
	EnsureUser(ctx context.Context, userID string) error
}

// AssetStore persists placed assets.
type AssetStore interface {
	Place(ctx context.Context, gameID, ownerID, regionName, kind string) (economy.Asset, error)
	Remove(ctx context.Context, gameID, ownerID, assetID string) error
}

// handlerFunc processes one inbound event for a session.
type handlerFunc func(ctx context.Context, sess *session.Session, data json.RawMessage)

// Server owns the event dispatch table and the player join/leave flow.
type Server struct {
	cfg      config.GameConfig
	sessions *session.Manager
	router   *broadcast.Router
	cache    *state.Cache
	games    GameStore
	users    UserStore
	sendBuf  int
	logger   *zap.Logger

	handlers map[string]handlerFunc
}

// Deps bundles the collaborators a Server needs.
type Deps struct {
	Sessions *session.Manager
	Router   *broadcast.Router
	Locks    *state.KeyedMutex
	Cache    *state.Cache
	Arbiter  *region.Arbiter
	Engine   *turn.Engine
	Games    GameStore
	Users    UserStore
	Assets   AssetStore
	Atlas    *geo.Atlas
	Cost     economy.CostPolicy
	// SendBuffer is the per-session outbound event buffer size.
	SendBuffer int
}

// NewServer creates a Server and registers the handler for every inbound event.
//
// Precondition: every Deps field must be non-nil.
func NewServer(cfg config.GameConfig, deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: deps.Sessions,
		router:   deps.Router,
		cache:    deps.Cache,
		games:    deps.Games,
		users:    deps.Users,
		sendBuf:  deps.SendBuffer,
		logger:   logger,
	}

	regions := NewRegionHandler(deps.Arbiter, deps.Locks, deps.Router, logger)
	turns := NewTurnHandler(deps.Engine, deps.Locks, deps.Router, logger)
	assets := NewAssetHandler(deps.Assets, deps.Games, deps.Arbiter, deps.Atlas, deps.Cost, deps.Locks, deps.Router, logger)
	gameState := NewStateHandler(deps.Cache, deps.Router, logger)

	s.handlers = map[string]handlerFunc{
		protocol.EventClaimRegion:        regions.Claim,
		protocol.EventReleaseRegion:      regions.Release,
		protocol.EventGetOwnedRegions:    regions.Owned,
		protocol.EventGetAllTakenRegions: regions.AllTaken,
		protocol.EventAssetPlaced:        assets.Place,
		protocol.EventAssetRemoved:       assets.Remove,
		protocol.EventAdvanceTurn:        turns.Advance,
		protocol.EventGamePaused:         turns.Pause,
		protocol.EventGameResumed:        turns.Resume,
		protocol.EventGetGameState:       gameState.Snapshot,
	}
	return s
}

// Connect admits an authenticated user into a game: the user and game rows
// are ensured, the user joins the roster on first contact, and the rest of
// the room learns of the arrival.
//
// Precondition: sessionID, userID, and gameID must be non-empty.
// Postcondition: Returns the registered session. The new session has been
// sent a game-state snapshot.
func (s *Server) Connect(ctx context.Context, sessionID, userID, gameID string) (*session.Session, error) {
	if err := s.users.EnsureUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	if err := s.games.EnsureGame(ctx, gameID); err != nil {
		return nil, fmt.Errorf("failed to ensure game: %w", err)
	}

	inGame, err := s.games.InGame(ctx, gameID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check roster: %w", err)
	}
	if !inGame {
		err := s.games.AddPlayer(ctx, gameID, userID, s.cfg.StartingMoney)
		if err != nil && !errors.Is(err, postgres.ErrAlreadyInGame) {
			return nil, fmt.Errorf("failed to join roster: %w", err)
		}
	}

	sess, err := s.sessions.Add(sessionID, userID, gameID, s.sendBuf)
	if err != nil {
		return nil, fmt.Errorf("failed to register session: %w", err)
	}

	s.logger.Info("player connected",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.String("game_id", gameID))

	if err := s.router.ToOthers(gameID, sessionID, protocol.EventPlayerJoined, protocol.Presence{UserID: userID}); err != nil {
		s.logger.Warn("failed to announce join", zap.String("session_id", sessionID), zap.Error(err))
	}
	s.sendSnapshot(ctx, sess)

	return sess, nil
}

// Disconnect removes the session and announces the departure. When the last
// session leaves a game, its cached state is dropped; the durable store
// rebuilds it on the next join.
//
// Postcondition: The session is gone and its entity closed, or an error when
// it was never registered.
func (s *Server) Disconnect(ctx context.Context, sessionID string) error {
	sess, roomEmpty, err := s.sessions.Remove(sessionID)
	if err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}

	s.logger.Info("player disconnected",
		zap.String("session_id", sessionID),
		zap.String("user_id", sess.UserID),
		zap.String("game_id", sess.GameID))

	if roomEmpty {
		s.cache.Evict(sess.GameID)
	} else {
		err := s.router.ToGame(sess.GameID, protocol.EventPlayerLeft, protocol.Presence{UserID: sess.UserID})
		if err != nil {
			s.logger.Warn("failed to announce departure", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return nil
}

// Dispatch routes one inbound frame to its event handler. Malformed frames
// and unknown events are answered with an error event on the same session.
//
// Precondition: sessionID must identify a connected session.
func (s *Server) Dispatch(ctx context.Context, sessionID string, frame []byte) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		s.logger.Warn("dropping frame for unknown session", zap.String("session_id", sessionID))
		return
	}

	env, err := protocol.Decode(frame)
	if err != nil {
		s.logger.Debug("malformed frame",
			zap.String("session_id", sessionID),
			zap.Error(err))
		s.router.Error(sessionID, "malformed event")
		return
	}

	handler, ok := s.handlers[env.Event]
	if !ok {
		s.router.Error(sessionID, fmt.Sprintf("unknown event %q", env.Event))
		return
	}
	handler(ctx, sess, env.Data)
}

// sendSnapshot delivers the current game state to one session.
func (s *Server) sendSnapshot(ctx context.Context, sess *session.Session) {
	st, err := s.cache.Get(ctx, sess.GameID)
	if err != nil {
		s.logger.Warn("failed to load state for snapshot",
			zap.String("game_id", sess.GameID),
			zap.Error(err))
		return
	}
	err = s.router.ToSession(sess.ID, protocol.EventGameState, protocol.GameState{
		TurnNumber:         st.TurnNumber,
		PlayerWhosTurnItIs: st.CurrentPlayer,
		IsPaused:           st.Paused,
		ElapsedTime:        int64(st.Elapsed / time.Second),
	})
	if err != nil {
		s.logger.Warn("failed to send snapshot", zap.String("session_id", sess.ID), zap.Error(err))
	}
}
