//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/diagnose-ai/internal/domain"
	"github.com/ashureev/diagnose-ai/internal/identity"
	"github.com/ashureev/diagnose-ai/internal/session"
	"github.com/ashureev/diagnose-ai/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusTeapot, "short and stout")

	if w.Code != http.StatusTeapot {
		t.Fatalf("Expected status 418, got %d", w.Code)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["error"] != "short and stout" {
		t.Fatalf("unexpected body: %v", got)
	}
}

func newTestRouter(t *testing.T) (chi.Router, store.Repository) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	h := NewHandler(repo, "gemini-test")
	r := chi.NewRouter()
	h.RegisterHealth(r)
	h.RegisterRoutes(r)
	return r, repo
}

func TestHandleMe(t *testing.T) {
	t.Parallel()

	r, repo := newTestRouter(t)
	now := time.Now().Truncate(time.Second)
	if err := repo.UpsertClient(context.Background(), &domain.Client{
		ClientID: "anon_1", Username: "anon-client", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordSessionStart(context.Background(), "anon_1"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = req.WithContext(identity.WithClient(req.Context(), "anon_1", "tab-7"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got MeResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ClientID != "anon_1" || got.SessionID != "tab-7" || got.SessionsStarted != 1 {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestHandleMeWithoutIdentity(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleConfig(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	var got ConfigResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Model != "gemini-test" || got.Disclaimer == "" {
		t.Fatalf("unexpected config: %+v", got)
	}
	if diff := cmp.Diff(session.QuickActions(), got.QuickActions); diff != "" {
		t.Fatalf("quick actions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(session.CommandHelp(), got.CommandHelp); diff != "" {
		t.Fatalf("command help mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
