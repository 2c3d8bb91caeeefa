package session

import (
	"fmt"
	"sync"
	"time"
)

// Session tracks one connected client: the transport session identity mapped
// to the authenticated user and joined game. Lifetime is bounded by the
// connection.
type Session struct {
	// ID is the unique transport session identifier.
	ID string
	// UserID is the authenticated player identity.
	UserID string
	// GameID is the game room this session joined.
	GameID string
	// ConnectedAt is when the session was registered.
	ConnectedAt time.Time
	// Entity delivers outbound events to this session's write loop.
	Entity *PushEntity
}

// Manager tracks all active sessions and game-room occupancy.
// All methods are safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session        // session ID → session
	rooms    map[string]map[string]bool // game ID → set of session IDs
}

// NewManager creates an empty session Manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]bool),
	}
}

// Add registers a new session in the given game room.
//
// Precondition: sessionID, userID, and gameID must be non-empty; bufferSize
// is the outbound event buffer size (<= 0 uses the default).
// Postcondition: Returns the created Session, or an error if the session ID
// is already registered.
func (m *Manager) Add(sessionID, userID, gameID string, bufferSize int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; exists {
		return nil, fmt.Errorf("session %q already registered", sessionID)
	}

	sess := &Session{
		ID:          sessionID,
		UserID:      userID,
		GameID:      gameID,
		ConnectedAt: time.Now(),
		Entity:      NewPushEntity(sessionID, bufferSize),
	}

	m.sessions[sessionID] = sess
	if m.rooms[gameID] == nil {
		m.rooms[gameID] = make(map[string]bool)
	}
	m.rooms[gameID][sessionID] = true

	return sess, nil
}

// Remove deletes a session, cleans up room occupancy, and closes its entity.
//
// Precondition: sessionID must be non-empty.
// Postcondition: Returns the removed session and whether the game room is now
// empty, or an error if the session is not found.
func (m *Manager) Remove(sessionID string) (sess *Session, roomEmpty bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[sessionID]
	if !exists {
		return nil, false, fmt.Errorf("session %q not found", sessionID)
	}

	if room, ok := m.rooms[sess.GameID]; ok {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(m.rooms, sess.GameID)
			roomEmpty = true
		}
	}

	_ = sess.Entity.Close()
	delete(m.sessions, sessionID)
	return sess, roomEmpty, nil
}

// Get returns the session for the given ID.
//
// Postcondition: Returns (session, true) if found, or (nil, false).
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// InGame returns all sessions currently joined to the given game.
//
// Postcondition: Returns a slice (may be empty); the slice is a snapshot.
func (m *Manager) InGame(gameID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.rooms[gameID]
	if !ok {
		return nil
	}
	result := make([]*Session, 0, len(ids))
	for id := range ids {
		if sess, ok := m.sessions[id]; ok {
			result = append(result, sess)
		}
	}
	return result
}

// UsersInGame returns the distinct user IDs with at least one session in the
// given game.
func (m *Manager) UsersInGame(gameID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.rooms[gameID]
	if !ok {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	users := make([]string, 0, len(ids))
	for id := range ids {
		sess, ok := m.sessions[id]
		if !ok || seen[sess.UserID] {
			continue
		}
		seen[sess.UserID] = true
		users = append(users, sess.UserID)
	}
	return users
}

// ActiveGames returns the IDs of all games with at least one session.
// The elapsed-time ticker enumerates these each tick.
func (m *Manager) ActiveGames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	games := make([]string, 0, len(m.rooms))
	for gameID := range m.rooms {
		games = append(games, gameID)
	}
	return games
}

// Count returns the total number of connected sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
