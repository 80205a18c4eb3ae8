package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serveCORS(origins []string, method, origin string) *httptest.ResponseRecorder {
	h := CORS(origins, "X-Diagnose-Session-ID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(method, "/api/session", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSExplicitOriginAllowsCredentials(t *testing.T) {
	t.Parallel()

	rec := serveCORS([]string{"http://app.test"}, http.MethodGet, "http://app.test")
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://app.test" {
		t.Fatal("origin not echoed")
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("explicit origin should allow credentials")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "X-Diagnose-Session-ID") {
		t.Fatal("session header should be allowed")
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want handler status", rec.Code)
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	t.Parallel()

	rec := serveCORS([]string{"*"}, http.MethodGet, "http://evil.test")
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://evil.test" {
		t.Fatal("wildcard should echo origin")
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatal("wildcard match must not allow credentials")
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	t.Parallel()

	rec := serveCORS([]string{"http://app.test"}, http.MethodGet, "http://other.test")
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unknown origin should not be allowed")
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	t.Parallel()

	rec := serveCORS([]string{"*"}, http.MethodOptions, "http://app.test")
	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d, want 200", rec.Code)
	}
}
