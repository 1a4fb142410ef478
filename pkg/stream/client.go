package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

// client is one WebSocket subscriber. Subscriptions start wide open and can
// be narrowed with subscribe/unsubscribe control messages.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[EventType]bool
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	return &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: map[EventType]bool{
			EventInsight:   true,
			EventPick:      true,
			EventGrade:     true,
			EventSlate:     true,
			EventStatus:    true,
			EventHeartbeat: true,
		},
	}
}

func (c *client) subscribed(t EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[t]
}

// controlMessage narrows or widens a client's event subscriptions.
type controlMessage struct {
	Type   string   `json:"type"`
	Events []string `json:"events"`
}

func (c *client) handleMessage(raw []byte) {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "subscribe":
		c.mu.Lock()
		for _, ev := range msg.Events {
			c.subs[EventType(ev)] = true
		}
		c.mu.Unlock()
	case "unsubscribe":
		c.mu.Lock()
		for _, ev := range msg.Events {
			delete(c.subs, EventType(ev))
		}
		c.mu.Unlock()
	}
}

// readPump consumes control messages until the connection drops, then hands
// the client back to the hub for teardown.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("ws read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump flushes queued events to the socket and keeps the connection
// alive with pings.
func (c *client) writePump() {
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

			// Flush anything else already queued.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

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
