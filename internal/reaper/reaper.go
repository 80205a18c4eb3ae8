// Package reaper periodically frees idle in-memory wizards and forgets
// client records that have not been seen for the retention period.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/diagnose-ai/internal/agent"
	"github.com/ashureev/diagnose-ai/internal/shared"
	"github.com/ashureev/diagnose-ai/internal/store"
)

// WizardSweeper is the subset of agent.Registry the reaper drives.
type WizardSweeper interface {
	Sweep(idle time.Duration) []agent.SessionKey
	CloseClient(clientID string) int
}

// StreamCloser is the subset of stream.Hub the reaper drives.
type StreamCloser interface {
	CloseSession(clientID, sessionID string)
	CloseClient(clientID string)
}

// Config controls the sweep cadence and thresholds.
type Config struct {
	Interval  time.Duration
	IdleTTL   time.Duration
	Retention time.Duration
}

// Reaper removes idle state.
type Reaper struct {
	repo    store.Repository
	wizards WizardSweeper
	streams StreamCloser
	cfg     Config
	logger  *slog.Logger
}

// New creates a reaper. streams may be nil.
func New(repo store.Repository, wizards WizardSweeper, streams StreamCloser, cfg Config, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{repo: repo, wizards: wizards, streams: streams, cfg: cfg, logger: logger}
}

// Start runs the sweep loop in a goroutine until ctx is done.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	go func() {
		defer ticker.Stop()
		r.logger.Info("Reaper started", "interval", r.cfg.Interval, "idle_ttl", r.cfg.IdleTTL, "retention", r.cfg.Retention)

		for {
			select {
			case <-ticker.C:
				r.RunOnce(ctx)
			case <-ctx.Done():
				r.logger.Info("Reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// RunOnce performs a single sweep.
func (r *Reaper) RunOnce(ctx context.Context) {
	swept := r.wizards.Sweep(r.cfg.IdleTTL)
	if r.streams != nil {
		for _, key := range swept {
			r.streams.CloseSession(key.ClientID, key.SessionID)
		}
	}

	stale, err := r.repo.GetIdleClients(ctx, r.cfg.Retention)
	if err != nil {
		r.logger.Error("Reaper failed to get stale clients", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	r.logger.Info("Reaper found stale clients", "count", len(stale))
	removed := 0
	for _, client := range stale {
		r.wizards.CloseClient(client.ClientID)
		if r.streams != nil {
			r.streams.CloseClient(client.ClientID)
		}

		err := shared.RetryOnConflict(ctx, 3, 100*time.Millisecond, func(ctx context.Context) error {
			return r.repo.DeleteClient(ctx, client.ClientID)
		})
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Debug("Reaper canceled during client delete, cleanup may be incomplete", "client_id", client.ClientID)
				return
			}
			r.logger.Warn("Reaper failed to delete client after retries", "error", err, "client_id", client.ClientID)
			continue
		}
		removed++
	}

	r.logger.Info("Reaper cleanup completed", "removed", removed)
}
