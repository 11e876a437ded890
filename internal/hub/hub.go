// Package hub streams probe results and status transitions to websocket
// clients.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/reachmon/internal/domain"
)

const (
	TypeProbeResult      = "probe.result"
	TypeTargetTransition = "target.transition"
)

type Event struct {
	Type     string          `json:"type"`
	TargetID domain.TargetID `json:"target_id"`
	Payload  any             `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	log *zap.Logger

	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
}

func New(log *zap.Logger, allowedOrigins []string) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Hub{
		log:        log,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true // non-browser clients (CLI, curl)
				}
				if allowed["*"] || allowed[origin] {
					return true
				}
				// Always allow localhost.
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				host := u.Hostname()
				return host == "localhost" || host == "127.0.0.1" || host == "::1"
			},
		},
	}
}

// Run serves registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow client
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues evt for every client. It never blocks; events are
// dropped when the broadcast buffer is full.
func (h *Hub) Broadcast(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.Warn("hub_marshal_error", zap.String("type", evt.Type), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("hub_broadcast_dropped", zap.String("type", evt.Type))
	}
}

func (h *Hub) RecordResult(_ context.Context, r domain.ProbeResult) error {
	h.Broadcast(Event{Type: TypeProbeResult, TargetID: r.TargetID, Payload: r})
	return nil
}

func (h *Hub) RecordTransition(_ context.Context, e domain.TransitionEvent) error {
	h.Broadcast(Event{Type: TypeTargetTransition, TargetID: e.TargetID, Payload: e})
	return nil
}

func (h *Hub) HandleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws_upgrade_error", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(h)
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
