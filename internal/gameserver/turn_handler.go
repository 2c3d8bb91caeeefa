package gameserver

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/broadcast"
	"github.com/cory-johannsen/turf/internal/game/session"
	"github.com/cory-johannsen/turf/internal/game/state"
	"github.com/cory-johannsen/turf/internal/game/turn"
	"github.com/cory-johannsen/turf/internal/protocol"
)

// TurnHandler handles advance-turn, game-paused, and game-resumed. Each
// request runs inside the game's keyed lock: the turn-update and money-update
// broadcasts leave in the same order the turns were committed.
type TurnHandler struct {
	engine *turn.Engine
	locks  *state.KeyedMutex
	router *broadcast.Router
	logger *zap.Logger
}

// NewTurnHandler creates a TurnHandler with the given dependencies.
//
// Precondition: all dependencies must be non-nil.
func NewTurnHandler(engine *turn.Engine, locks *state.KeyedMutex, router *broadcast.Router, logger *zap.Logger) *TurnHandler {
	return &TurnHandler{
		engine: engine,
		locks:  locks,
		router: router,
		logger: logger,
	}
}

// Advance processes an advance-turn request. On success the room receives a
// money-update per settled player followed by the turn-update; a rejection
// is answered with turn-error on the requesting session only.
func (h *TurnHandler) Advance(ctx context.Context, sess *session.Session, _ json.RawMessage) {
	unlock := h.locks.Lock(state.GameKey(sess.GameID))
	defer unlock()

	result, err := h.engine.Advance(ctx, sess.GameID, sess.UserID)
	if err != nil {
		h.rejectAdvance(sess, err)
		return
	}

	for _, settled := range result.Settlements {
		err := h.router.ToGame(sess.GameID, protocol.EventMoneyUpdate, protocol.MoneyUpdate{
			UserID:         settled.UserID,
			NewMoney:       settled.NewMoney,
			IncomeReceived: settled.Income,
		})
		if err != nil {
			h.logger.Warn("failed to announce settlement", zap.String("game_id", sess.GameID), zap.Error(err))
		}
	}

	err = h.router.ToGame(sess.GameID, protocol.EventTurnUpdate, protocol.TurnUpdate{
		TurnNumber:         result.TurnNumber,
		PlayerWhosTurnItIs: result.NextPlayer,
	})
	if err != nil {
		h.logger.Warn("failed to announce turn", zap.String("game_id", sess.GameID), zap.Error(err))
	}
}

// Pause processes a game-paused request. The transition is announced to the
// whole room; pausing an already-paused game is a silent no-op.
func (h *TurnHandler) Pause(ctx context.Context, sess *session.Session, _ json.RawMessage) {
	unlock := h.locks.Lock(state.GameKey(sess.GameID))
	defer unlock()

	changed, err := h.engine.Pause(ctx, sess.GameID)
	if err != nil {
		h.logger.Error("failed to pause game", zap.String("game_id", sess.GameID), zap.Error(err))
		h.router.Error(sess.ID, "could not pause game")
		return
	}
	if !changed {
		return
	}
	err = h.router.ToGame(sess.GameID, protocol.EventGamePaused, protocol.GamePaused{PausedBy: sess.UserID})
	if err != nil {
		h.logger.Warn("failed to announce pause", zap.String("game_id", sess.GameID), zap.Error(err))
	}
}

// Resume processes a game-resumed request, the mirror of Pause.
func (h *TurnHandler) Resume(ctx context.Context, sess *session.Session, _ json.RawMessage) {
	unlock := h.locks.Lock(state.GameKey(sess.GameID))
	defer unlock()

	changed, err := h.engine.Resume(ctx, sess.GameID)
	if err != nil {
		h.logger.Error("failed to resume game", zap.String("game_id", sess.GameID), zap.Error(err))
		h.router.Error(sess.ID, "could not resume game")
		return
	}
	if !changed {
		return
	}
	err = h.router.ToGame(sess.GameID, protocol.EventGameResumed, protocol.GameResumed{ResumedBy: sess.UserID})
	if err != nil {
		h.logger.Warn("failed to announce resume", zap.String("game_id", sess.GameID), zap.Error(err))
	}
}

func (h *TurnHandler) rejectAdvance(sess *session.Session, err error) {
	switch {
	case errors.Is(err, turn.ErrNotYourTurn),
		errors.Is(err, turn.ErrNoPlayers),
		errors.Is(err, turn.ErrNotInGame),
		errors.Is(err, turn.ErrGamePaused),
		errors.Is(err, turn.ErrTurnConflict):
		h.logger.Debug("turn advance rejected",
			zap.String("game_id", sess.GameID),
			zap.String("user_id", sess.UserID),
			zap.Error(err))
	default:
		h.logger.Error("turn advance failed",
			zap.String("game_id", sess.GameID),
			zap.String("user_id", sess.UserID),
			zap.Error(err))
	}
	sendErr := h.router.ToSession(sess.ID, protocol.EventTurnError, protocol.TurnError{Message: err.Error()})
	if sendErr != nil {
		h.logger.Warn("failed to deliver turn error", zap.String("session_id", sess.ID), zap.Error(sendErr))
	}
}
