// Package broadcast fans game events out to connected sessions.
package broadcast

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/game/session"
	"github.com/cory-johannsen/turf/internal/protocol"
)

// Router delivers encoded protocol events to sessions by game room, by
// session, or to everyone in a room except the originator. Delivery is
// best-effort: a session with a full buffer is logged and skipped so one
// slow client never stalls a broadcast.
type Router struct {
	sessions *session.Manager
	logger   *zap.Logger
}

// NewRouter creates a Router over the given session manager.
//
// Precondition: sessions and logger must be non-nil.
func NewRouter(sessions *session.Manager, logger *zap.Logger) *Router {
	return &Router{
		sessions: sessions,
		logger:   logger,
	}
}

// ToGame sends an event to every session in the given game.
//
// Postcondition: The event is enqueued on each reachable session. Returns an
// error only when the payload cannot be encoded.
func (r *Router) ToGame(gameID string, event string, data any) error {
	msg, err := protocol.Encode(event, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	for _, sess := range r.sessions.InGame(gameID) {
		r.push(sess, event, msg)
	}
	return nil
}

// ToOthers sends an event to every session in the game except the named one.
//
// Postcondition: The event is enqueued on each reachable session other than
// exceptSessionID. Returns an error only when the payload cannot be encoded.
func (r *Router) ToOthers(gameID string, exceptSessionID string, event string, data any) error {
	msg, err := protocol.Encode(event, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	for _, sess := range r.sessions.InGame(gameID) {
		if sess.ID == exceptSessionID {
			continue
		}
		r.push(sess, event, msg)
	}
	return nil
}

// ToSession sends an event to a single session.
//
// Postcondition: The event is enqueued, or an error if the session is
// unknown, the payload cannot be encoded, or the session cannot accept it.
func (r *Router) ToSession(sessionID string, event string, data any) error {
	sess, ok := r.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %q not found", sessionID)
	}
	msg, err := protocol.Encode(event, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	if err := sess.Entity.Push(msg); err != nil {
		return fmt.Errorf("failed to push %s event: %w", event, err)
	}
	return nil
}

// Error sends a generic error event to a single session. Delivery failures
// are logged and swallowed: error reporting must never propagate further
// errors into the handler path.
func (r *Router) Error(sessionID string, message string) {
	err := r.ToSession(sessionID, protocol.EventError, protocol.ErrorMessage{Message: message})
	if err != nil {
		r.logger.Warn("failed to deliver error event",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

func (r *Router) push(sess *session.Session, event string, msg []byte) {
	if err := sess.Entity.Push(msg); err != nil {
		r.logger.Warn("dropping event for session",
			zap.String("session_id", sess.ID),
			zap.String("event", event),
			zap.Error(err))
	}
}
