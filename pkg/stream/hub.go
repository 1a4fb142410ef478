// Package stream pushes scoring events to WebSocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/metrics"
	"github.com/pickpulse/shiva/pkg/picks"
)

// EventType tags a streamed payload.
type EventType string

const (
	EventInsight   EventType = "insight"
	EventPick      EventType = "pick"
	EventGrade     EventType = "grade"
	EventSlate     EventType = "slate"
	EventStatus    EventType = "status"
	EventHeartbeat EventType = "heartbeat"
)

const heartbeatInterval = 30 * time.Second

// Event is the wire envelope for every streamed message.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Hub fans scoring events out to WebSocket clients. The client set is owned
// by the Run loop; registration, teardown, and broadcast all go through its
// channels, so no lock guards the map.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	done       chan struct{}
	count      atomic.Int64

	upgrader websocket.Upgrader
	metrics  *metrics.EngineMetrics
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(m *metrics.EngineMetrics) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the API layer's CORS config.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics: m,
	}
}

// Run owns the client set until ctx is cancelled, emitting a heartbeat to
// all clients every 30 seconds.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.syncCount()
			log.Info().Msg("stream hub stopped")
			return

		case c := <-h.register:
			h.clients[c] = true
			h.syncCount()
			log.Debug().Int("clients", len(h.clients)).Msg("ws client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.syncCount()
			log.Debug().Int("clients", len(h.clients)).Msg("ws client disconnected")

		case event := <-h.broadcast:
			h.fanOut(event)

		case <-heartbeat.C:
			h.fanOut(Event{
				Type:      EventHeartbeat,
				Timestamp: time.Now().UTC(),
				Data:      map[string]any{"clients": len(h.clients)},
			})
		}
	}
}

// fanOut serializes the event once and queues it to every subscribed client.
// Clients whose send buffer is full are dropped.
func (h *Hub) fanOut(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("marshal stream event")
		return
	}
	h.metrics.RecordWSEvent(string(event.Type))

	for c := range h.clients {
		if !c.subscribed(event.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			log.Warn().Msg("ws client dropped, send buffer full")
		}
	}
	h.syncCount()
}

func (h *Hub) syncCount() {
	h.count.Store(int64(len(h.clients)))
	h.metrics.SetWSClients(len(h.clients))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Broadcast queues an event for delivery, stamping a missing timestamp.
// Drops the event instead of blocking when the hub backlog is full.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- event:
	default:
		log.Warn().Str("type", string(event.Type)).Msg("stream backlog full, event dropped")
	}
}

// BroadcastInsight streams a finished scoring run.
func (h *Hub) BroadcastInsight(insight *core.Insight) {
	h.Broadcast(Event{Type: EventInsight, Data: insight})
}

// BroadcastPick streams a newly generated pick.
func (h *Hub) BroadcastPick(p *picks.Pick) {
	h.Broadcast(Event{Type: EventPick, Data: p})
}

// BroadcastGrade streams a settled pick.
func (h *Hub) BroadcastGrade(p *picks.Pick) {
	h.Broadcast(Event{Type: EventGrade, Data: p})
}

// BroadcastSlate streams the discovered slate for a date.
func (h *Hub) BroadcastSlate(date string, games []core.Game) {
	h.Broadcast(Event{Type: EventSlate, Data: map[string]any{"date": date, "games": games}})
}

// BroadcastStatus streams a service status update.
func (h *Hub) BroadcastStatus(status any) {
	h.Broadcast(Event{Type: EventStatus, Data: status})
}

// ServeWS upgrades the request and starts the client pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	c := newClient(h, conn)
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
