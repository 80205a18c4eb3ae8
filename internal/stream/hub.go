// Package stream pushes session snapshots to browser tabs over websockets.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const defaultWriteTimeout = 5 * time.Second

// ErrNoConnection is returned by Publish when the tab has no open stream.
var ErrNoConnection = errors.New("no active stream connection")

// Event is the envelope written to the socket.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub tracks one websocket per client tab.
type Hub struct {
	mu           sync.RWMutex
	active       map[string]map[string]*websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		active:       make(map[string]map[string]*websocket.Conn),
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
	}
}

// GetActive returns the active connection for a client tab.
func (h *Hub) GetActive(clientID, sessionID string) *websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if sessions, ok := h.active[clientID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Register adds a connection for a client tab, closing any connection it replaces.
func (h *Hub) Register(clientID, sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[clientID]; !exists {
		h.active[clientID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := h.active[clientID][sessionID]; exists && existing != conn {
		go closeConn(existing, websocket.StatusNormalClosure, "stream replaced")
	}

	h.active[clientID][sessionID] = conn
	h.logger.Info("Stream registered", "client_id", clientID, "session_id", sessionID)
}

// Unregister removes conn if it is still the active connection for the tab.
func (h *Hub) Unregister(clientID, sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.active[clientID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(h.active, clientID)
			}
			h.logger.Info("Stream unregistered", "client_id", clientID, "session_id", sessionID)
		}
	}
}

// CloseSession closes the stream of a single tab.
func (h *Hub) CloseSession(clientID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.active[clientID]
	if !ok {
		return
	}
	if conn, exists := sessions[sessionID]; exists {
		go closeConn(conn, websocket.StatusGoingAway, "session expired")
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(h.active, clientID)
		}
	}
}

// CloseClient closes every stream of a client.
func (h *Hub) CloseClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.active[clientID]
	if !ok {
		return
	}

	for sid, conn := range sessions {
		go closeConn(conn, websocket.StatusGoingAway, "client closed")
		h.logger.Info("Stream closed", "client_id", clientID, "session_id", sid)
	}
	delete(h.active, clientID)
}

// Publish writes an event to the tab's stream. A tab without a stream is not
// an error for callers that broadcast opportunistically; they can ignore
// ErrNoConnection.
func (h *Hub) Publish(ctx context.Context, clientID, sessionID string, ev Event) error {
	conn := h.GetActive(clientID, sessionID)
	if conn == nil {
		return ErrNoConnection
	}

	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		h.logger.Debug("Stream write failed", "client_id", clientID, "session_id", sessionID, "error", err)
		return err
	}
	return nil
}

// closeConn runs the close handshake, which blocks until the peer answers or
// the library timeout fires. Callers run it outside the hub lock.
func closeConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	_ = conn.Close(code, reason)
}

// Count returns the number of open streams.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sessions := range h.active {
		n += len(sessions)
	}
	return n
}
