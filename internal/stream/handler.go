package stream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/diagnose-ai/internal/identity"
	"github.com/coder/websocket"
)

const (
	// EventSnapshot carries a full session snapshot.
	EventSnapshot = "snapshot"
	// EventConnected is sent once after the upgrade.
	EventConnected = "connected"

	defaultPingInterval = 30 * time.Second
)

// SnapshotFunc returns the current state of a client tab.
type SnapshotFunc func(clientID, sessionID string) any

// Handler upgrades GET /ws/session and keeps the socket registered in the hub.
type Handler struct {
	hub            *Hub
	snapshot       SnapshotFunc
	originPatterns []string
	pingInterval   time.Duration
	logger         *slog.Logger
}

// NewHandler creates a websocket handler. originPatterns follow
// websocket.AcceptOptions; an empty list allows only same-origin requests.
func NewHandler(hub *Hub, snapshot SnapshotFunc, originPatterns []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:            hub,
		snapshot:       snapshot,
		originPatterns: originPatterns,
		pingInterval:   defaultPingInterval,
		logger:         logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := identity.ClientIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if clientID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "client_id", clientID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "client_id", clientID)
		}
	}()

	h.hub.Register(clientID, sessionID, ws)
	defer h.hub.Unregister(clientID, sessionID, ws)

	// The client never sends data; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	if err := h.hub.Publish(ctx, clientID, sessionID, Event{Type: EventConnected}); err != nil {
		return
	}
	if h.snapshot != nil {
		ev := Event{Type: EventSnapshot, Data: h.snapshot(clientID, sessionID)}
		if err := h.hub.Publish(ctx, clientID, sessionID, ev); err != nil {
			return
		}
	}

	h.keepalive(ctx, ws, clientID)
	h.logger.Info("Stream ended", "client_id", clientID, "session_id", sessionID)
}

func (h *Handler) keepalive(ctx context.Context, ws *websocket.Conn, clientID string) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.hub.writeTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				h.logger.Debug("Stream ping failed", "error", err, "client_id", clientID)
				return
			}
		}
	}
}
