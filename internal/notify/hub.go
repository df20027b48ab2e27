package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/kidbuddy/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
	queueSize      = 16
)

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected foreground contexts and fans messages out to them
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// the page is served through this gateway, so origins always match
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log.With().Str("component", "notify").Logger(),
		clients: make(map[uuid.UUID]*client),
	}
}

// Clients returns the number of connected contexts
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues m for every connected context without blocking. A client
// whose queue is full misses the message.
func (h *Hub) Broadcast(_ context.Context, m Message) int {
	b, err := json.Marshal(m)
	if err != nil {
		h.log.Error().Err(err).Str("type", m.Type).Msg("encode broadcast")
		return 0
	}
	metrics.Broadcasts.WithLabelValues(m.Type).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	reached := 0
	for _, c := range h.clients {
		select {
		case c.send <- b:
			reached++
		default:
			h.log.Warn().Stringer("client", c.id).Str("type", m.Type).Msg("client queue full, dropping message")
		}
	}
	h.log.Debug().Str("type", m.Type).Int("clients", reached).Msg("broadcast")
	return reached
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	metrics.ConnectedClients.Set(float64(n))
	h.log.Info().Stringer("client", c.id).Int("clients", n).Msg("client connected")
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.ConnectedClients.Set(float64(n))
	h.log.Info().Stringer("client", c.id).Int("clients", n).Msg("client disconnected")
}

// ServeHTTP upgrades the request and registers the connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{id: uuid.New(), conn: conn, send: make(chan []byte, queueSize)}
	h.add(c)

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards inbound frames; it exists to notice disconnects and pongs
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Stringer("client", c.id).Msg("websocket read")
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}
