package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/diagnose-ai/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrClientNotFound is returned by updates that match no client row.
var ErrClientNotFound = errors.New("client not found")

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS clients (
		client_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		sessions_started INTEGER NOT NULL DEFAULT 0,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clients_last_seen ON clients(last_seen_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*domain.Client, error) {
	var c domain.Client
	var lastSeen, createdAt, updatedAt int64
	if err := row.Scan(&c.ClientID, &c.Username, &c.SessionsStarted, &lastSeen, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.LastSeenAt = time.Unix(lastSeen, 0)
	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return &c, nil
}

// GetClient retrieves a client by ID.
func (s *SQLiteStore) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	query := `
		SELECT client_id, username, sessions_started,
		       last_seen_at, created_at, updated_at
		FROM clients WHERE client_id = ?`

	c, err := scanClient(s.db.QueryRowContext(ctx, query, clientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan client row: %w", err)
	}
	return c, nil
}

// UpsertClient creates or updates a client record. The session counter of an
// existing row is preserved.
func (s *SQLiteStore) UpsertClient(ctx context.Context, client *domain.Client) error {
	query := `
	INSERT INTO clients (client_id, username, sessions_started, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(client_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		client.ClientID, client.Username, client.SessionsStarted,
		client.LastSeenAt.Unix(), client.CreatedAt.Unix(), client.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

// TouchClient updates the last_seen_at timestamp for a client.
func (s *SQLiteStore) TouchClient(ctx context.Context, clientID string, lastSeen time.Time) error {
	query := `UPDATE clients SET last_seen_at = ?, updated_at = ? WHERE client_id = ?`
	return s.execOne(ctx, "touch client", query, lastSeen.Unix(), time.Now().Unix(), clientID)
}

// RecordSessionStart increments the sessions_started counter for a client.
func (s *SQLiteStore) RecordSessionStart(ctx context.Context, clientID string) error {
	query := `UPDATE clients SET sessions_started = sessions_started + 1, updated_at = ? WHERE client_id = ?`
	return s.execOne(ctx, "record session start", query, time.Now().Unix(), clientID)
}

func (s *SQLiteStore) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("Client update affected 0 rows", "op", op)
		return fmt.Errorf("%s: %w", op, ErrClientNotFound)
	}
	return nil
}

// GetIdleClients retrieves clients whose last activity is older than ttl.
func (s *SQLiteStore) GetIdleClients(ctx context.Context, ttl time.Duration) ([]*domain.Client, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `
		SELECT client_id, username, sessions_started,
		       last_seen_at, created_at, updated_at
		FROM clients WHERE last_seen_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query idle clients: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close idle clients rows", "error", closeErr)
		}
	}()

	var clients []*domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idle client row: %w", err)
		}
		clients = append(clients, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle clients: %w", err)
	}

	return clients, nil
}

// DeleteClient removes a client record. Deleting a missing client is not an error.
func (s *SQLiteStore) DeleteClient(ctx context.Context, clientID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE client_id = ?`, clientID); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
