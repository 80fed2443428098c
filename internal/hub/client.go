package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/modplane/server/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Client is a single WebSocket connection tracked by the Hub (§3, "Client").
// It lives for the duration of the connection; identity starts nil and is
// attached the first time the connection presents a valid token.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	identity *models.Identity
}

func newClient(h *Hub, id string, conn *websocket.Conn) *Client {
	return &Client{id: id, hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
}

// ID returns the client's UUID, stable for the connection's lifetime.
func (c *Client) ID() string { return c.id }

// Identity returns the identity attached by a prior successful token
// check, or nil if the connection is still anonymous.
func (c *Client) Identity() *models.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Client) setIdentity(identity *models.Identity) {
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()
}

// enqueue attempts a non-blocking send; when the buffer is full the
// message is dropped and false is returned, rather than letting one slow
// client stall the hub. The client itself stays connected.
func (c *Client) enqueue(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(onFrame func(*Client, []byte)) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		onFrame(c, message)
	}
}
