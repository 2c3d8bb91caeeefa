package gameserver

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/broadcast"
	"github.com/cory-johannsen/turf/internal/game/session"
	"github.com/cory-johannsen/turf/internal/game/state"
	"github.com/cory-johannsen/turf/internal/protocol"
)

// StateHandler answers get-game-state with a snapshot of the game's turn
// pointer, pause flag, and elapsed clock.
type StateHandler struct {
	cache  *state.Cache
	router *broadcast.Router
	logger *zap.Logger
}

// NewStateHandler creates a StateHandler with the given dependencies.
//
// Precondition: all dependencies must be non-nil.
func NewStateHandler(cache *state.Cache, router *broadcast.Router, logger *zap.Logger) *StateHandler {
	return &StateHandler{
		cache:  cache,
		router: router,
		logger: logger,
	}
}

// Snapshot sends the current game state to the requesting session only.
func (h *StateHandler) Snapshot(ctx context.Context, sess *session.Session, _ json.RawMessage) {
	st, err := h.cache.Get(ctx, sess.GameID)
	if err != nil {
		h.logger.Error("failed to load game state", zap.String("game_id", sess.GameID), zap.Error(err))
		h.router.Error(sess.ID, "could not load game state")
		return
	}
	err = h.router.ToSession(sess.ID, protocol.EventGameState, protocol.GameState{
		TurnNumber:         st.TurnNumber,
		PlayerWhosTurnItIs: st.CurrentPlayer,
		IsPaused:           st.Paused,
		ElapsedTime:        int64(st.Elapsed / time.Second),
	})
	if err != nil {
		h.logger.Warn("failed to send game state", zap.String("session_id", sess.ID), zap.Error(err))
	}
}
