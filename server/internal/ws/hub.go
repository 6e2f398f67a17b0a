package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/livefeed/livefeed/pkg/types"
	"github.com/livefeed/livefeed/server/internal/config"
	"github.com/livefeed/livefeed/server/internal/metrics"
)

// readLimit caps inbound frames; subscribers have nothing to say.
const readLimit = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins. Apply CORS restrictions at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub manages subscriber connections and broadcasts store events to them.
type Hub struct {
	sendBuf      int
	writeTimeout time.Duration
	pongWait     time.Duration
	metrics      *metrics.HubMetrics

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected subscriber.
type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub configured by cfg. m must not be nil.
func New(cfg config.HubConfig, m *metrics.HubMetrics) *Hub {
	return &Hub{
		sendBuf:      cfg.SendBuffer,
		writeTimeout: cfg.WriteTimeout,
		pongWait:     cfg.PongWait,
		metrics:      m,
		clients:      make(map[*client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the
// subscriber. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, h.sendBuf),
	}
	h.register(c)
	defer h.unregister(c)

	go h.writePump(c)
	h.readPump(c) // blocks until connection closes
}

// register adds c to the subscriber set.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.Subscribers.Set(float64(n))
	slog.Info("ws: subscriber connected", "client", c.id, "remote", c.conn.RemoteAddr().String(), "subscribers", n)
}

// unregister removes c from the subscriber set and closes its send buffer.
// Calling it more than once is safe.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.metrics.Subscribers.Set(float64(n))
		slog.Info("ws: subscriber disconnected", "client", c.id, "subscribers", n)
	}
}

// Count returns the number of currently connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends ev to every connected subscriber. It never blocks on a
// subscriber: one whose send buffer is full is disconnected instead.
//
// Calls must be serialized by the caller for events to reach each
// subscriber in the order they were produced.
func (h *Hub) Broadcast(ev types.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("ws: encode event failed", "type", ev.Type, "err", err)
		return
	}

	var slow []*client

	// Sends happen under the read lock so unregister cannot close a channel
	// mid-send.
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	h.metrics.EventsBroadcast.WithLabelValues(string(ev.Type)).Inc()

	for _, c := range slow {
		slog.Warn("ws: subscriber too slow, disconnecting", "client", c.id)
		h.metrics.SlowDisconnects.Inc()
		h.unregister(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	h.metrics.Subscribers.Set(0)
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)) //nolint:errcheck
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("ws: write failed", "client", c.id, "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages
// (pong, close) and detect disconnects. Blocks until the connection closes.
func (h *Hub) readPump(c *client) {
	defer c.conn.Close()
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(h.pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws: read failed", "client", c.id, "err", err)
			}
			return
		}
		h.metrics.MessagesReceived.Inc()
		slog.Info("ws: received message", "client", c.id, "message", string(msg))
	}
}
