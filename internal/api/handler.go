// Package api provides HTTP handlers for the DiagnoseAI API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ashureev/diagnose-ai/internal/identity"
	"github.com/ashureev/diagnose-ai/internal/session"
	"github.com/ashureev/diagnose-ai/internal/store"
	"github.com/go-chi/chi/v5"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Handler serves client identity, public configuration and health.
type Handler struct {
	repo      store.Repository
	modelName string
}

// NewHandler creates a Handler.
func NewHandler(repo store.Repository, modelName string) *Handler {
	return &Handler{repo: repo, modelName: modelName}
}

// MeResponse describes the calling client.
type MeResponse struct {
	ClientID        string    `json:"client_id"`
	Username        string    `json:"username"`
	SessionID       string    `json:"session_id"`
	SessionsStarted int       `json:"sessions_started"`
	CreatedAt       time.Time `json:"created_at"`
}

// ConfigResponse is the public, secret-free configuration.
type ConfigResponse struct {
	Model        string                `json:"model"`
	QuickActions []session.QuickAction `json:"quick_actions"`
	Disclaimer   string                `json:"disclaimer"`
	CommandHelp  []string              `json:"command_help"`
}

// RegisterRoutes registers client routes (identity middleware required).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/me", h.HandleMe)
	r.Get("/api/config", h.HandleConfig)
	r.Get("/api/quick-actions", h.HandleQuickActions)
}

// RegisterHealth registers the health route.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.HandleHealth)
}

// HandleMe handles GET /api/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	clientID := identity.ClientIDFromContext(r.Context())
	if clientID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	client, err := h.repo.GetClient(r.Context(), clientID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load client")
		return
	}
	if client == nil {
		Error(w, http.StatusNotFound, "client not found")
		return
	}

	JSON(w, http.StatusOK, MeResponse{
		ClientID:        client.ClientID,
		Username:        client.Username,
		SessionID:       identity.SessionIDFromContext(r.Context()),
		SessionsStarted: client.SessionsStarted,
		CreatedAt:       client.CreatedAt,
	})
}

// HandleConfig handles GET /api/config.
func (h *Handler) HandleConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, ConfigResponse{
		Model:        h.modelName,
		QuickActions: session.QuickActions(),
		Disclaimer:   session.Disclaimer,
		CommandHelp:  session.CommandHelp(),
	})
}

// HandleQuickActions handles GET /api/quick-actions.
func (h *Handler) HandleQuickActions(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, session.QuickActions())
}

// HandleHealth handles GET /api/health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}
