// Package session provides session tracking and game-room presence
// management for connected players.
package session

import (
	"fmt"
	"sync"
)

// PushEntity routes outbound events to a Go channel, bridging the game layer
// to the transport's write loop.
type PushEntity struct {
	sessionID string
	events    chan []byte
	mu        sync.Mutex
	closed    bool
}

// NewPushEntity creates a PushEntity for the given session.
//
// Precondition: sessionID must be non-empty.
// Postcondition: Returns a PushEntity with an open events channel.
func NewPushEntity(sessionID string, bufferSize int) *PushEntity {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &PushEntity{
		sessionID: sessionID,
		events:    make(chan []byte, bufferSize),
	}
}

// SessionID returns the owning session's identifier.
func (e *PushEntity) SessionID() string {
	return e.sessionID
}

// Push enqueues data for delivery to the client.
//
// Postcondition: Data is enqueued, or an error if the entity is closed or
// the buffer is full. A full buffer never blocks the caller.
func (e *PushEntity) Push(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("session %s is closed", e.sessionID)
	}
	select {
	case e.events <- data:
		return nil
	default:
		return fmt.Errorf("session %s event buffer full", e.sessionID)
	}
}

// Events returns the read-only events channel. The transport write loop
// reads from this channel to send frames to the client.
func (e *PushEntity) Events() <-chan []byte {
	return e.events
}

// Close marks the entity as closed and closes the events channel.
//
// Postcondition: The events channel is closed. Further Push calls return an error.
func (e *PushEntity) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.events)
	}
	return nil
}

// IsClosed reports whether the entity has been closed.
func (e *PushEntity) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
