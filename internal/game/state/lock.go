package state

import "sync"

// KeyedMutex provides named critical sections. All mutating operations
// against a game must run under the game's key; all mutating operations
// against a region must run under the region's key. At most one mutation is
// in flight per key.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	m    sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock acquires the critical section for key, blocking until it is free.
// The returned function releases it. Entries are removed once unreferenced,
// so idle keys do not accumulate.
//
// Postcondition: The caller holds the key until the returned func is called.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.m.Lock()

	return func() {
		e.m.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// GameKey returns the critical-section key for a game's turn and money state.
func GameKey(gameID string) string {
	return "game:" + gameID
}

// RegionKey returns the critical-section key for one region within a game.
func RegionKey(gameID, regionName string) string {
	return "game:" + gameID + ":region:" + regionName
}
