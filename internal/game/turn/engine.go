// Package turn owns the per-game turn state machine: who holds the turn,
// how the turn pointer advances, and the income settlement that runs at
// each turn boundary.
package turn

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/game/state"
)

var (
	// ErrNotYourTurn indicates an advance by a player who does not hold the turn.
	ErrNotYourTurn = errors.New("it is not your turn")
	// ErrNoPlayers indicates an advance in a game with an empty roster.
	ErrNoPlayers = errors.New("game has no players")
	// ErrNotInGame indicates an advance by a player who is not in the roster.
	ErrNotInGame = errors.New("player is not in the game")
	// ErrGamePaused indicates an advance while the game is paused.
	ErrGamePaused = errors.New("game is paused")
	// ErrTurnConflict indicates the durable turn pointer moved underneath
	// the advance. The cached state has been discarded; retry from fresh state.
	ErrTurnConflict = errors.New("turn advanced concurrently")
)

// Player is one roster entry, ordered by joining sequence.
type Player struct {
	UserID string
	Money  int64
	Seq    int
}

// Store persists turn state, the roster, and settlement records.
type Store interface {
	// PlayersWithMoney returns the roster in turn order.
	PlayersWithMoney(ctx context.Context, gameID string) ([]Player, error)
	// AdvanceTurn moves the turn pointer iff the durable turn number still
	// equals expectedTurn. Returns true when the pointer moved.
	AdvanceTurn(ctx context.Context, gameID string, expectedTurn int, nextPlayer string) (bool, error)
	// UpdateMoney sets a player's balance.
	UpdateMoney(ctx context.Context, gameID, userID string, money int64) error
	// RecordIncome appends one settlement ledger row.
	RecordIncome(ctx context.Context, gameID, userID string, turnNumber int, amount int64) error
	// RecordSnapshot appends one player's statistics row for a turn.
	RecordSnapshot(ctx context.Context, gameID, userID string, turnNumber int, income, money int64, assetCount int) error
	// SetPaused persists the pause flag.
	SetPaused(ctx context.Context, gameID string, paused bool) error
}

// IncomeCalculator computes income and asset holdings for settlement.
type IncomeCalculator interface {
	IncomeForPlayer(ctx context.Context, gameID, userID string) (int64, error)
	AssetCounts(ctx context.Context, gameID string) (map[string]int, error)
}

// Settlement is the credited outcome for one player at a turn boundary.
type Settlement struct {
	UserID   string
	Income   int64
	NewMoney int64
}

// Result describes a completed turn advance.
type Result struct {
	// TurnNumber is the new turn number after the advance.
	TurnNumber int
	// NextPlayer now holds the turn.
	NextPlayer string
	// Settlements holds the credited income of the incoming turn holder.
	// Empty when the credit could not land.
	Settlements []Settlement
}

// Engine drives turn advancement and settlement for all games.
type Engine struct {
	store  Store
	income IncomeCalculator
	cache  *state.Cache
	logger *zap.Logger
}

// NewEngine creates a turn Engine.
//
// Precondition: store, income, cache, and logger must be non-nil.
func NewEngine(store Store, income IncomeCalculator, cache *state.Cache, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		income: income,
		cache:  cache,
		logger: logger,
	}
}

// Advance ends the current turn on behalf of callerID: the turn pointer
// moves to the next player in roster order with a durable conditional write,
// and only after that commit lands is the incoming holder's income credited
// and a statistics row recorded for every roster member.
//
// Precondition: The caller must hold the game lock for gameID, so the
// broadcasts that follow the advance are ordered with the advance itself.
// Postcondition: On success the durable turn pointer and the cache agree on
// the returned Result. ErrNotYourTurn, ErrNoPlayers, ErrNotInGame,
// ErrGamePaused, and ErrTurnConflict reject the request with no money or
// ledger mutation. A settlement or snapshot failure after the commit is
// logged and skipped; it never rolls back the advance.
func (e *Engine) Advance(ctx context.Context, gameID, callerID string) (Result, error) {
	st, err := e.cache.Get(ctx, gameID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load game state: %w", err)
	}
	if st.Paused {
		return Result{}, ErrGamePaused
	}

	players, err := e.store.PlayersWithMoney(ctx, gameID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load roster: %w", err)
	}
	if len(players) == 0 {
		return Result{}, ErrNoPlayers
	}

	next, err := e.resolveNext(gameID, st.CurrentPlayer, callerID, players)
	if err != nil {
		return Result{}, err
	}

	endedTurn := st.TurnNumber
	moved, err := e.store.AdvanceTurn(ctx, gameID, endedTurn, next.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to advance turn: %w", err)
	}
	if !moved {
		e.cache.Evict(gameID)
		return Result{}, ErrTurnConflict
	}

	st.TurnNumber++
	st.CurrentPlayer = next.UserID
	e.cache.Set(gameID, st)

	settlements := e.settle(ctx, gameID, endedTurn, next)
	e.snapshot(ctx, gameID, st.TurnNumber, players, settlements)

	return Result{
		TurnNumber:  st.TurnNumber,
		NextPlayer:  next.UserID,
		Settlements: settlements,
	}, nil
}

// resolveNext validates the caller against the recorded turn holder and
// returns the roster entry that takes the turn. A fresh game has no holder
// yet; the first player to act must be in the roster, takes the turn, and
// immediately hands it to the following seat. A recorded holder who has left
// the roster is a consistency anomaly: the turn restarts at the first seat.
func (e *Engine) resolveNext(gameID, holder, callerID string, players []Player) (Player, error) {
	callerIdx := -1
	for i, p := range players {
		if p.UserID == callerID {
			callerIdx = i
			break
		}
	}

	if holder == "" {
		if callerIdx < 0 {
			return Player{}, fmt.Errorf("%w: %q", ErrNotInGame, callerID)
		}
		return players[(callerIdx+1)%len(players)], nil
	}

	for i, p := range players {
		if p.UserID == holder {
			if p.UserID != callerID {
				return Player{}, ErrNotYourTurn
			}
			return players[(i+1)%len(players)], nil
		}
	}

	if callerIdx < 0 {
		return Player{}, fmt.Errorf("%w: %q", ErrNotInGame, callerID)
	}
	e.logger.Warn("turn holder missing from roster, restarting at first seat",
		zap.String("game_id", gameID),
		zap.String("holder", holder))
	return players[0], nil
}

// settle credits the incoming holder's income for the turn that just ended.
// Failure is tolerated: the pointer has already moved, so the player keeps
// their prior balance and the miss is only logged.
func (e *Engine) settle(ctx context.Context, gameID string, endedTurn int, next Player) []Settlement {
	income, err := e.income.IncomeForPlayer(ctx, gameID, next.UserID)
	if err != nil {
		e.logger.Error("failed to compute income, skipping settlement",
			zap.String("game_id", gameID),
			zap.String("user_id", next.UserID),
			zap.Error(err))
		return nil
	}

	newMoney := next.Money + income
	if err := e.store.UpdateMoney(ctx, gameID, next.UserID, newMoney); err != nil {
		e.logger.Error("failed to credit income",
			zap.String("game_id", gameID),
			zap.String("user_id", next.UserID),
			zap.Int64("income", income),
			zap.Error(err))
		return nil
	}
	if err := e.store.RecordIncome(ctx, gameID, next.UserID, endedTurn, income); err != nil {
		e.logger.Warn("failed to record income ledger row",
			zap.String("game_id", gameID),
			zap.String("user_id", next.UserID),
			zap.Error(err))
	}

	return []Settlement{{
		UserID:   next.UserID,
		Income:   income,
		NewMoney: newMoney,
	}}
}

// snapshot records one statistics row per roster member at the new turn
// number: the income credited at this boundary, the balance entering the
// turn, and the player's current asset count.
func (e *Engine) snapshot(ctx context.Context, gameID string, turnNumber int, players []Player, settled []Settlement) {
	counts, err := e.income.AssetCounts(ctx, gameID)
	if err != nil {
		e.logger.Warn("failed to count assets for snapshot",
			zap.String("game_id", gameID),
			zap.Error(err))
		counts = map[string]int{}
	}

	for _, p := range players {
		income := int64(0)
		money := p.Money
		for _, s := range settled {
			if s.UserID == p.UserID {
				income = s.Income
				money = s.NewMoney
			}
		}
		if err := e.store.RecordSnapshot(ctx, gameID, p.UserID, turnNumber, income, money, counts[p.UserID]); err != nil {
			e.logger.Warn("failed to record turn snapshot",
				zap.String("game_id", gameID),
				zap.String("user_id", p.UserID),
				zap.Int("turn_number", turnNumber),
				zap.Error(err))
		}
	}
}

// Pause freezes the turn clock and blocks turn advancement.
//
// Precondition: The caller must hold the game lock for gameID.
// Postcondition: Returns true when the game transitioned to paused, false
// when it already was. The durable flag and the cache agree on success.
func (e *Engine) Pause(ctx context.Context, gameID string) (bool, error) {
	return e.setPaused(ctx, gameID, true)
}

// Resume unfreezes a paused game.
//
// Precondition: The caller must hold the game lock for gameID.
// Postcondition: Returns true when the game transitioned to running, false
// when it already was.
func (e *Engine) Resume(ctx context.Context, gameID string) (bool, error) {
	return e.setPaused(ctx, gameID, false)
}

func (e *Engine) setPaused(ctx context.Context, gameID string, paused bool) (bool, error) {
	st, err := e.cache.Get(ctx, gameID)
	if err != nil {
		return false, fmt.Errorf("failed to load game state: %w", err)
	}
	if st.Paused == paused {
		return false, nil
	}
	if err := e.store.SetPaused(ctx, gameID, paused); err != nil {
		return false, fmt.Errorf("failed to persist pause state: %w", err)
	}
	st.Paused = paused
	e.cache.Set(gameID, st)
	return true, nil
}
