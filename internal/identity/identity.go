// Package identity ties each request to an anonymous device and browser tab.
package identity

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/diagnose-ai/internal/domain"
	"github.com/ashureev/diagnose-ai/internal/store"
	"github.com/google/uuid"
)

const (
	AnonCookieName    = "diagnose_anon_id"
	SessionHeaderName = "X-Diagnose-Session-ID"
	DefaultSessionID  = "default"

	sessionQueryParam = "session_id"
	cookieLifetime    = 30 * 24 * time.Hour
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// Identity names the device (client) and tab (session) a request belongs to.
type Identity struct {
	ClientID  string
	SessionID string
}

type identityKey struct{}

// WithClient returns ctx carrying the given identity. An invalid session ID
// falls back to DefaultSessionID.
func WithClient(ctx context.Context, clientID, sessionID string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{
		ClientID:  clientID,
		SessionID: normalizeSessionID(sessionID),
	})
}

// FromContext returns the identity installed by Middleware or WithClient.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// ClientIDFromContext returns the client ID, or "" outside the middleware.
func ClientIDFromContext(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.ClientID
}

// SessionIDFromContext returns the tab session ID.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok {
		return id.SessionID
	}
	return DefaultSessionID
}

func newClientID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate client id: %w", err)
	}
	return "anon_" + hex.EncodeToString(u[:]), nil
}

func normalizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) {
		return DefaultSessionID
	}
	return id
}

func deriveUsername(clientID string) string {
	if len(clientID) > 13 {
		return "anon-" + clientID[len(clientID)-8:]
	}
	return "anon-client"
}

// resolveClientID returns the cookie's client ID, or a new one when the cookie
// is missing or malformed. fresh reports the latter.
func resolveClientID(r *http.Request) (id string, fresh bool, err error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && anonIDPattern.MatchString(c.Value) {
		return c.Value, false, nil
	}
	id, err = newClientID()
	return id, true, err
}

func resolveSessionID(r *http.Request) string {
	if sid := r.Header.Get(SessionHeaderName); sid != "" {
		return normalizeSessionID(sid)
	}
	return normalizeSessionID(r.URL.Query().Get(sessionQueryParam))
}

func anonCookie(clientID string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     AnonCookieName,
		Value:    clientID,
		Path:     "/",
		MaxAge:   int(cookieLifetime.Seconds()),
		Expires:  time.Now().Add(cookieLifetime),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	}
}

// ensureClient records a new client, or refreshes last_seen_at for a known
// one. A known cookie whose row was reaped gets a new row.
func ensureClient(ctx context.Context, repo store.Repository, clientID string, fresh bool) error {
	now := time.Now()
	if !fresh {
		existing, err := repo.GetClient(ctx, clientID)
		if err != nil {
			return fmt.Errorf("lookup client: %w", err)
		}
		if existing != nil {
			if err := repo.TouchClient(ctx, clientID, now); err != nil {
				slog.Warn("failed to touch client", "client_id", clientID, "error", err)
			}
			return nil
		}
	}

	return repo.UpsertClient(ctx, &domain.Client{
		ClientID:   clientID,
		Username:   deriveUsername(clientID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func writeError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Middleware resolves the anonymous client from its cookie, issuing one when
// needed, records it in repo and installs the Identity on the request context.
// Cookies are marked Secure outside development.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, fresh, err := resolveClientID(r)
			if err != nil {
				slog.Error("failed to issue client id", "error", err)
				writeError(w, "failed to establish anonymous identity")
				return
			}
			http.SetCookie(w, anonCookie(clientID, !isDev))

			if err := ensureClient(r.Context(), repo, clientID, fresh); err != nil {
				slog.Error("failed to record client", "client_id", clientID, "error", err)
				writeError(w, "failed to initialize anonymous client")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), clientID, resolveSessionID(r))))
		})
	}
}
