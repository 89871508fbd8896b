// Package broadcast fans simulation events out to websocket subscribers.
// Delivery is fire-and-forget: a failed or slow client is dropped, and
// errors never reach the callers producing events.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/talgya/gridworld/internal/metrics"
)

// Broadcaster is the narrow interface the simulation publishes through.
type Broadcaster interface {
	Broadcast(eventType string, payload any)
}

// Envelope is the wire format pushed to subscribers.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the subscriber set and serializes registration, removal, and
// fan-out in one goroutine.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	outbound   chan []byte
	met        *metrics.Set
	count      atomic.Int64
}

// NewHub creates a hub; call Run in a goroutine before broadcasting.
func NewHub(met *metrics.Set) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		outbound:   make(chan []byte, 256),
		met:        met,
	}
}

// Run serves the hub loop. It never returns.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int64(len(h.clients)))
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(int64(len(h.clients)))
		case msg := <-h.outbound:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client: drop it rather than block the hub.
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.count.Store(int64(len(h.clients)))
		}
	}
}

// Broadcast queues an event for every subscriber. Best-effort: if the hub
// is saturated the event is dropped and logged, never returned as an error.
func (h *Hub) Broadcast(eventType string, payload any) {
	msg, err := json.Marshal(Envelope{Type: eventType, Payload: payload})
	if err != nil {
		slog.Warn("broadcast marshal failed", "type", eventType, "error", err)
		return
	}
	if h.met != nil {
		h.met.BroadcastsTotal.Inc()
	}
	select {
	case h.outbound <- msg:
	default:
		slog.Warn("broadcast queue full, event dropped", "type", eventType)
	}
}

// ClientCount reports how many subscribers are connected.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// HandleWS upgrades an HTTP request and subscribes the connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 128)}
	h.register <- c
	go c.writer()
	go c.reader(h)
}

func (c *client) writer() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// reader drains (and ignores) inbound frames so pings and closes are
// processed, unregistering on disconnect.
func (c *client) reader(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
