// Package state provides the in-memory per-game working state and the keyed
// critical sections serializing mutations against shared game resources.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// GameState is the cached working copy of a game's turn pointer and clock.
// It is advisory: the durable store remains authoritative, and the cache must
// be rebuildable from it at any time.
type GameState struct {
	// TurnNumber is the current turn, starting at 1.
	TurnNumber int
	// CurrentPlayer holds the turn; empty means no player has been assigned.
	CurrentPlayer string
	// Paused freezes the turn and the elapsed-time ticker.
	Paused bool
	// Elapsed is accumulated unpaused play time. The elapsed-time ticker is
	// its single writer.
	Elapsed time.Duration
}

// Source hydrates cache entries from the durable store.
type Source interface {
	// FetchState reads the durable game record. found is false when no
	// record exists for the game.
	FetchState(ctx context.Context, gameID string) (st GameState, found bool, err error)
}

// Cache is the process-wide map of per-game working state, lazily hydrated
// from the durable store. Safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	games  map[string]GameState
	source Source
}

// NewCache creates an empty Cache backed by the given source.
//
// Precondition: source must be non-nil.
func NewCache(source Source) *Cache {
	return &Cache{
		games:  make(map[string]GameState),
		source: source,
	}
}

// Get returns the cached state for gameID, hydrating from the source on a
// miss. When no durable record exists, the default state (turn 1, no player,
// unpaused, zero elapsed) is cached and returned.
//
// Postcondition: Returns a state value (never a shared pointer) or a non-nil
// error if hydration failed; failed hydrations are not cached.
func (c *Cache) Get(ctx context.Context, gameID string) (GameState, error) {
	c.mu.RLock()
	st, ok := c.games[gameID]
	c.mu.RUnlock()
	if ok {
		return st, nil
	}

	st, found, err := c.source.FetchState(ctx, gameID)
	if err != nil {
		return GameState{}, fmt.Errorf("hydrating game %s: %w", gameID, err)
	}
	if !found {
		st = GameState{TurnNumber: 1}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have hydrated while we read the store; keep the
	// existing entry so cached writes are not clobbered by a stale read.
	if existing, ok := c.games[gameID]; ok {
		return existing, nil
	}
	c.games[gameID] = st
	return st, nil
}

// Set overwrites the cache entry for gameID.
func (c *Cache) Set(gameID string, st GameState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.games[gameID] = st
}

// Evict drops the cache entry for gameID. Called when the last session for a
// game disconnects; the next Get re-hydrates from the store.
func (c *Cache) Evict(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.games, gameID)
}

// Len returns the number of cached games.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.games)
}
