// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/diagnose-ai/internal/domain"
)

// Repository persists anonymous client records. Transcripts are never stored.
type Repository interface {
	// GetClient retrieves a client by ID. It returns nil, nil when absent.
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)

	// UpsertClient creates or updates a client record.
	UpsertClient(ctx context.Context, client *domain.Client) error

	// TouchClient updates the last_seen_at timestamp for a client.
	TouchClient(ctx context.Context, clientID string, lastSeen time.Time) error

	// RecordSessionStart increments the sessions_started counter.
	RecordSessionStart(ctx context.Context, clientID string) error

	// GetIdleClients retrieves clients inactive for longer than ttl.
	GetIdleClients(ctx context.Context, ttl time.Duration) ([]*domain.Client, error)

	// DeleteClient removes a client record.
	DeleteClient(ctx context.Context, clientID string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
