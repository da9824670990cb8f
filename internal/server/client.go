// Package server manages individual WebSocket clients, handling read/write
// pumps, per-connection session state, and lifecycle control for each
// connection.
package server

import (
	"errors"
	"io"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

// session is the per-connection protocol state: which room the connection
// joined, under what display name, whether it proved the host token, and its
// message rate limiter. It is created with the connection, destroyed with
// it, and touched only by the connection's own event handlers.
type session struct {
	roomID      string
	displayName string
	isHost      bool
	limiter     *rateLimiter
}

// Client represents one WebSocket connection. It carries the connection
// itself, a buffered send channel drained by the write pump, and the
// connection's session.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	addr    string
	closed  bool
	session session
}

// NewClient creates a Client for an upgraded connection. The read limit and
// rate limiter come from the hub's configuration.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxSocketMessageSize)
	}

	return &Client{
		id:   newConnID(),
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		hub:  hub,
		addr: addr,
		session: session{
			limiter: newRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		},
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing
// payloads.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// logReadError logs an appropriate message for a read-loop error.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Frame from %s exceeded maximum size of %d bytes", c.addr, c.hub.cfg.MaxSocketMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", c.addr, err)
	}
}

// readPump reads inbound frames and dispatches them as protocol events. On
// exit it runs the disconnect path, so room cleanup happens exactly once per
// connection regardless of how the connection died.
func (c *Client) readPump() {
	defer func() {
		c.hub.handleDisconnect(c)
		// The accounting loop may already be gone during shutdown.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error closing connection in readPump: %v", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			break
		}

		c.hub.dispatch(c, raw)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error closing connection in writePump: %v", err)
			}
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Error setting write deadline for %s: %v", c.addr, err)
				return
			}

			if !ok {
				// The hub closed the channel; tell the peer we are done.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					if !isExpectedCloseError(err) {
						log.Printf("Error writing close message to %s: %v", c.addr, err)
					}
				}
				return
			}

			if !c.writeFrame(payload) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Error writing ping message to %s: %v", c.addr, err)
				return
			}
		}
	}
}

// writeFrame writes one payload as its own text frame, then flushes any
// payloads already queued behind it as separate frames so each remains a
// valid JSON envelope on the client side.
func (c *Client) writeFrame(payload []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("Error writing message to %s: %v", c.addr, err)
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		queued, ok := <-c.send
		if !ok {
			return false
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
			log.Printf("Error writing queued message to %s: %v", c.addr, err)
			return false
		}
	}
	return true
}
