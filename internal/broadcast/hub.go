// Package broadcast pushes processed readings to connected WebSocket clients
// (live dashboards). It is a fire-and-forget collaborator: a slow or dead
// client never blocks ingestion.
package broadcast

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/resonde/groundstation/internal/telemetry"
)

const writeTimeout = 5 * time.Second

// Hub manages WebSocket client connections and fans readings out to them.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			// Dashboards are served from anywhere, same as the
			// rest of the unauthenticated API.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and registers it
// with the hub until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("websocket upgrade failed: %s", err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	clients := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client connected", slog.Int("clients", clients))

	// Clients only listen; the read loop just detects disconnects.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the reading as JSON to every connected client, dropping
// clients whose writes fail.
func (h *Hub) Broadcast(r *telemetry.ProcessedReading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling reading: %w", err)
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn(fmt.Sprintf("dropping client: %s", err))
			h.remove(conn)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
	}
	return nil
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	h.mu.Unlock()
}
