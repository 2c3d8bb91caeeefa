package gameserver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/broadcast"
	"github.com/cory-johannsen/turf/internal/game/session"
	"github.com/cory-johannsen/turf/internal/game/state"
	"github.com/cory-johannsen/turf/internal/protocol"
)

// ElapsedStore persists the accumulated play clock.
type ElapsedStore interface {
	SetElapsed(ctx context.Context, gameID string, elapsed time.Duration) error
}

// ElapsedTicker accumulates unpaused play time for every game with at least
// one connected session and announces the clock to the room each interval.
// It is the single writer of the elapsed clock.
//
// Invariant: a paused game's clock does not move.
type ElapsedTicker struct {
	interval time.Duration
	sessions *session.Manager
	cache    *state.Cache
	locks    *state.KeyedMutex
	store    ElapsedStore
	router   *broadcast.Router
	logger   *zap.Logger
}

// NewElapsedTicker returns a ticker that fires every interval.
//
// Precondition: interval must be > 0; all dependencies must be non-nil.
func NewElapsedTicker(interval time.Duration, sessions *session.Manager, cache *state.Cache, locks *state.KeyedMutex, store ElapsedStore, router *broadcast.Router, logger *zap.Logger) *ElapsedTicker {
	if interval <= 0 {
		panic("gameserver.NewElapsedTicker: interval must be > 0")
	}
	return &ElapsedTicker{
		interval: interval,
		sessions: sessions,
		cache:    cache,
		locks:    locks,
		store:    store,
		router:   router,
		logger:   logger,
	}
}

// Run drives the tick loop until ctx is cancelled.
//
// Postcondition: every active, unpaused game is advanced and announced once
// per interval.
func (t *ElapsedTicker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick advances the clock of every active, unpaused game by one interval.
// The new value is persisted before it is broadcast; a game whose persist
// fails keeps its old clock and is skipped this round.
func (t *ElapsedTicker) Tick(ctx context.Context) {
	for _, gameID := range t.sessions.ActiveGames() {
		t.tickGame(ctx, gameID)
	}
}

func (t *ElapsedTicker) tickGame(ctx context.Context, gameID string) {
	unlock := t.locks.Lock(state.GameKey(gameID))
	defer unlock()

	st, err := t.cache.Get(ctx, gameID)
	if err != nil {
		t.logger.Warn("failed to load state for tick", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	if st.Paused {
		return
	}

	st.Elapsed += t.interval
	if err := t.store.SetElapsed(ctx, gameID, st.Elapsed); err != nil {
		t.logger.Warn("failed to persist elapsed clock", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	t.cache.Set(gameID, st)

	err = t.router.ToGame(gameID, protocol.EventTimeUpdate, protocol.TimeUpdate{
		ElapsedTime: int64(st.Elapsed / time.Second),
	})
	if err != nil {
		t.logger.Warn("failed to announce clock", zap.String("game_id", gameID), zap.Error(err))
	}
}
