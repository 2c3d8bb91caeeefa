package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/game/session"
)

// client runs the two pumps for one WebSocket connection: the read pump
// feeds inbound frames to the game server's dispatcher, the write pump
// drains the session's event channel onto the wire. Either pump exiting
// tears the connection down.
type client struct {
	conn         *websocket.Conn
	sess         *session.Session
	game         GameServer
	writeTimeout time.Duration
	pongTimeout  time.Duration
	logger       *zap.Logger
}

func newClient(conn *websocket.Conn, sess *session.Session, game GameServer, writeTimeout, pongTimeout time.Duration, logger *zap.Logger) *client {
	return &client{
		conn:         conn,
		sess:         sess,
		game:         game,
		writeTimeout: writeTimeout,
		pongTimeout:  pongTimeout,
		logger:       logger,
	}
}

// readPump reads frames until the connection drops, then disconnects the
// session. It owns the connection's read side and the disconnect.
func (c *client) readPump() {
	defer func() {
		if err := c.game.Disconnect(context.Background(), c.sess.ID); err != nil {
			c.logger.Warn("failed to disconnect session",
				zap.String("session_id", c.sess.ID),
				zap.Error(err))
		}
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("connection dropped",
					zap.String("session_id", c.sess.ID),
					zap.Error(err))
			}
			return
		}
		c.game.Dispatch(context.Background(), c.sess.ID, frame)
	}
}

// writePump drains the session's event channel onto the wire and keeps the
// connection alive with pings. It exits when the session entity is closed or
// a write fails.
func (c *client) writePump() {
	pingInterval := c.pongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.sess.Entity.Events():
			if !ok {
				// Session closed; say goodbye properly.
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed",
					zap.String("session_id", c.sess.ID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
