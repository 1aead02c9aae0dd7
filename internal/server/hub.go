package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nvandessel/nexus/internal/logging"
	"github.com/nvandessel/nexus/internal/scheduler"
)

const (
	// sendBuffer is how many frames may queue for one client before new
	// frames are dropped for it.
	sendBuffer = 64
	writeWait  = 5 * time.Second
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts frames to websocket clients. It implements
// scheduler.Observer and never blocks the caller on a slow client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	dropped uint64
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		clients: make(map[string]*client),
		logger:  logger,
	}
}

// OnFrame queues f for every connected client.
func (h *Hub) OnFrame(f scheduler.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("encoding frame", "event", f.Event, "error", err)
		return
	}

	h.mu.RLock()
	var dropped uint64
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	if dropped > 0 {
		h.mu.Lock()
		h.dropped += dropped
		h.mu.Unlock()
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were discarded for full client queues.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// register adds conn with initial queued first and starts its writer.
func (h *Hub) register(conn *websocket.Conn, initial []byte) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if initial != nil {
		c.send <- initial
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writePump(c)
	h.logger.Debug("websocket client connected", "client", c.id)
	return c
}

// unregister removes c and stops its writer. Safe to call twice.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("websocket client disconnected", "client", c.id)
}

// closeAll disconnects every client.
func (h *Hub) closeAll() {
	h.mu.Lock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("websocket write failed", "client", c.id, "error", err)
			h.unregister(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
