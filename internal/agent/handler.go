package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/diagnose-ai/internal/api"
	"github.com/ashureev/diagnose-ai/internal/config"
	"github.com/ashureev/diagnose-ai/internal/domain"
	"github.com/ashureev/diagnose-ai/internal/gateway"
	"github.com/ashureev/diagnose-ai/internal/identity"
	"github.com/ashureev/diagnose-ai/internal/session"
	"github.com/ashureev/diagnose-ai/internal/shared"
	"github.com/ashureev/diagnose-ai/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (64KiB).
const defaultMaxRequestBodySize = 64 << 10

// Handler handles wizard HTTP requests.
type Handler struct {
	registry    *Registry
	repo        store.Repository
	rateLimiter *RateLimiter
	log         ConversationLogger
	maxBodySize int64
	logger      *slog.Logger
}

// NewHandler creates a wizard handler. cfg may be nil, in which case defaults apply.
func NewHandler(registry *Registry, repo store.Repository, conversationLogger ConversationLogger, cfg *config.Config, logger *slog.Logger) *Handler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	rateLimitRequests := 10
	rateLimitWindow := time.Minute
	maxBodySize := int64(defaultMaxRequestBodySize)
	if cfg != nil {
		rateLimitRequests = cfg.RateLimit.RequestsPerWindow
		rateLimitWindow = cfg.RateLimit.WindowDuration
		maxBodySize = cfg.MaxRequestBody
	}

	return &Handler{
		registry:    registry,
		repo:        repo,
		rateLimiter: NewRateLimiter(rateLimitRequests, rateLimitWindow),
		log:         conversationLogger,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// RegisterRoutes registers session routes (identity middleware required).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Group(func(r chi.Router) {
			r.Use(h.requireRate)
			r.Post("/", h.HandleStart)
			r.Post("/quick-actions/{id}", h.HandleQuickAction)
			r.Post("/feedback", h.HandleFeedback)
			r.Post("/retry", h.HandleRetry)
		})
	})
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
	if err := h.log.Close(); err != nil {
		h.logger.Warn("failed to close conversation logger", "error", err)
	}
}

func sessionKey(r *http.Request) SessionKey {
	return SessionKey{
		ClientID:  identity.ClientIDFromContext(r.Context()),
		SessionID: identity.SessionIDFromContext(r.Context()),
	}
}

// requireRate rejects unidentified callers and throttles model-calling routes.
func (h *Handler) requireRate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := identity.ClientIDFromContext(r.Context())
		if clientID == "" {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !h.rateLimiter.Allow(clientID) {
			api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleGet handles GET /api/session.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r)
	if key.ClientID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	api.JSON(w, http.StatusOK, SessionResponse{Snapshot: h.registry.Snapshot(key)})
}

// HandleStart handles POST /api/session.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !h.decode(w, r, &req) {
		return
	}

	key := sessionKey(r)
	h.logEvent(r, key, "outbound", eventProblem, req.Problem, nil)

	snap, err := h.registry.Wizard(key).SubmitProblem(r.Context(), req.Problem)
	h.respond(w, r, key, snap, err, true)
}

// HandleQuickAction handles POST /api/session/quick-actions/{id}.
func (h *Handler) HandleQuickAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := sessionKey(r)
	h.logEvent(r, key, "outbound", eventQuickAction, id, map[string]any{"quick_action": id})

	snap, err := h.registry.Wizard(key).SubmitQuickAction(r.Context(), id)
	h.respond(w, r, key, snap, err, true)
}

// HandleFeedback handles POST /api/session/feedback.
func (h *Handler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !h.decode(w, r, &req) {
		return
	}

	key := sessionKey(r)
	h.logEvent(r, key, "outbound", eventFeedback, req.Message, map[string]any{"kind": req.Kind})

	snap, err := h.registry.Wizard(key).SubmitFeedback(r.Context(), domain.FeedbackKind(req.Kind), req.Message)
	h.respond(w, r, key, snap, err, false)
}

// HandleRetry handles POST /api/session/retry.
func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r)
	h.logEvent(r, key, "outbound", eventRetry, "", nil)

	wizard := h.registry.Wizard(key)
	// Retrying from idle re-runs a failed start.
	restart := wizard.Snapshot().State == session.StateIdle
	snap, err := wizard.Retry(r.Context())
	h.respond(w, r, key, snap, err, restart)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// respond maps the wizard outcome onto an HTTP status and logs the turn.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, key SessionKey, snap session.Snapshot, err error, started bool) {
	if err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			h.logEvent(r, key, "inbound", eventGatewayFailure, gwErr.Detail(), map[string]any{"reason": gwErr.Reason})
		}
		msg := snap.LastError
		if msg == "" {
			msg = err.Error()
		}
		api.JSON(w, statusFor(err), SessionResponse{Snapshot: snap, Error: msg})
		return
	}

	if started {
		h.recordSessionStart(r.Context(), key.ClientID)
	}
	h.logLastMessage(r, key, snap)
	api.JSON(w, http.StatusOK, SessionResponse{Snapshot: snap})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrUnknownQuickAction):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInputValidation):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) recordSessionStart(ctx context.Context, clientID string) {
	err := shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, func(ctx context.Context) error {
		return h.repo.RecordSessionStart(ctx, clientID)
	})
	if err != nil {
		h.logger.Warn("failed to record session start", "client_id", clientID, "error", err)
	}
}

func (h *Handler) logLastMessage(r *http.Request, key SessionKey, snap session.Snapshot) {
	msg, ok := snap.Transcript.Last()
	if !ok {
		return
	}
	switch m := msg.(type) {
	case domain.AgentStep:
		h.logEvent(r, key, "inbound", eventAgentStep, m.Step.Title+"\n"+m.Step.Details, stepMeta(m.ID, m.Step))
	case domain.SessionSummary:
		meta := stepMeta(m.ID, m.Step)
		meta["summary"] = m.Summary
		h.logEvent(r, key, "inbound", eventSessionSummary, m.Summary, meta)
	}
}

func stepMeta(id string, step domain.RepairStep) map[string]any {
	return map[string]any{
		"message_id": id,
		"title":      step.Title,
		"command":    step.Command,
		"warning":    step.Warning,
	}
}

func (h *Handler) logEvent(r *http.Request, key SessionKey, direction, eventType, content string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["request_id"] = chiMiddleware.GetReqID(r.Context())
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		ClientID:   key.ClientID,
		SessionID:  key.SessionID,
		Channel:    channelHTTP,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}
