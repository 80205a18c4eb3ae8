// DiagnoseAI - guided PC repair wizard server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/diagnose-ai/internal/agent"
	"github.com/ashureev/diagnose-ai/internal/api"
	"github.com/ashureev/diagnose-ai/internal/config"
	"github.com/ashureev/diagnose-ai/internal/gateway"
	"github.com/ashureev/diagnose-ai/internal/identity"
	"github.com/ashureev/diagnose-ai/internal/middleware"
	"github.com/ashureev/diagnose-ai/internal/reaper"
	"github.com/ashureev/diagnose-ai/internal/session"
	"github.com/ashureev/diagnose-ai/internal/store"
	"github.com/ashureev/diagnose-ai/internal/stream"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "model", cfg.Model.Name)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	gw, err := gateway.NewGenAI(context.Background(), gateway.Config{
		APIKey: cfg.Model.APIKey,
		Model:  cfg.Model.Name,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize model gateway", "error", err)
		os.Exit(1)
	}
	slog.Info("Model gateway initialized", "model", gw.Model())

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	// Every wizard transition is pushed to the tab's stream, if one is open.
	hub := stream.NewHub(logger)
	registry := agent.NewRegistry(gw, func(key agent.SessionKey, snap session.Snapshot) {
		err := hub.Publish(context.Background(), key.ClientID, key.SessionID, stream.Event{
			Type: stream.EventSnapshot,
			Data: snap,
		})
		if err != nil && !errors.Is(err, stream.ErrNoConnection) {
			slog.Debug("Failed to publish snapshot", "client_id", key.ClientID, "session_id", key.SessionID, "error", err)
		}
	}, logger)

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, gw.Model())
	agentHandler := agent.NewHandler(registry, repo, conversationLogger, cfg, logger)
	defer agentHandler.Close()
	wsHandler := stream.NewHandler(hub, func(clientID, sessionID string) any {
		return registry.Snapshot(agent.SessionKey{ClientID: clientID, SessionID: sessionID})
	}, wsOriginPatterns(cfg), logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins, identity.SessionHeaderName))

	// Public routes.
	apiHandler.RegisterHealth(r)

	// Identity-scoped routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		apiHandler.RegisterRoutes(r)
		agentHandler.RegisterRoutes(r)
		r.Get("/ws/session", wsHandler.ServeHTTP)
	})

	// Create server.
	// Model calls can take tens of seconds and websockets are long-lived,
	// so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaper.New(repo, registry, hub, reaper.Config{
		Interval:  cfg.ReaperInterval,
		IdleTTL:   cfg.ClientIdleTTL,
		Retention: cfg.ClientRetention,
	}, logger).Start(ctx)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// wsOriginPatterns maps the CORS allow-list onto websocket origin patterns,
// which match host[:port] rather than full origins.
func wsOriginPatterns(cfg *config.Config) []string {
	if cfg.IsDevelopment() {
		return []string{"*"}
	}
	var patterns []string
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			return []string{"*"}
		}
		origin = strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
		patterns = append(patterns, origin)
	}
	return patterns
}
