// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"grimm.is/tcbridge/internal/bridge"
	"grimm.is/tcbridge/internal/logging"
	"grimm.is/tcbridge/internal/metrics"
	"grimm.is/tcbridge/internal/monitor"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4096
	wsQueueSize      = 16
)

// StatusFunc returns the current bridge snapshot.
type StatusFunc func(ctx context.Context) bridge.Snapshot

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// WSManager is the push channel: a registry of websocket observers, each
// with its own bounded queue and writer goroutine. An observer whose queue
// is full or whose connection fails is dropped; the others are unaffected.
type WSManager struct {
	mu        sync.RWMutex
	clients   map[string]*wsClient
	status    StatusFunc
	upgrader  websocket.Upgrader
	queueSize int
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewWSManager creates a WSManager. status supplies the snapshot sent to a
// newly connected observer; it may be nil.
func NewWSManager(status StatusFunc, m *metrics.Metrics, logger *logging.Logger) *WSManager {
	if logger == nil {
		logger = logging.WithComponent("ws")
	}
	return &WSManager{
		clients: make(map[string]*wsClient),
		status:  status,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		queueSize: wsQueueSize,
		logger:    logger,
		metrics:   m,
	}
}

// ServeHTTP upgrades the request and registers the observer.
func (h *WSManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.queueSize),
	}

	if h.status != nil {
		if msg, err := json.Marshal(monitor.StatusEvent(h.status(r.Context()))); err == nil {
			c.send <- msg
		}
	}

	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetObservers(n)
	h.logger.Info("observer connected", "id", c.id, "remote", r.RemoteAddr, "observers", n)

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast implements monitor.Broadcaster.
func (h *WSManager) Broadcast(ev monitor.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).Error("failed to encode push event", "type", ev.Type)
		return
	}

	var slow []*wsClient
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
			h.metrics.IncBroadcast("sent")
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.metrics.IncBroadcast("dropped")
		h.logger.Warn("dropping slow observer", "id", c.id)
		h.remove(c)
	}
}

// Publish sends data under an arbitrary event type.
func (h *WSManager) Publish(eventType string, data any) {
	h.Broadcast(monitor.Event{Type: eventType, Data: data})
}

// Count returns the number of connected observers.
func (h *WSManager) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every observer.
func (h *WSManager) Close() {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
}

// remove unregisters c and closes its queue, which stops the writer. Safe to
// call more than once.
func (h *WSManager) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetObservers(n)
	h.logger.Info("observer disconnected", "id", c.id, "observers", n)
}

func (h *WSManager) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.metrics.IncBroadcast("failed")
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readPump discards inbound messages; it exists to process control frames
// and notice when the peer goes away.
func (h *WSManager) readPump(c *wsClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
