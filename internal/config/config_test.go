package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GEMINI_API_KEY", "API_KEY", "GEMINI_MODEL", "PORT", "DB_PATH", "FRONTEND_URL",
		"ALLOWED_ORIGINS", "CLIENT_IDLE_TTL", "CLIENT_RETENTION", "REAPER_INTERVAL", "MAX_REQUEST_BODY_BYTES",
		"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "CONVERSATION_LOG_QUEUE_SIZE",
	} {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Load error = %v, want ErrMissingAPIKey", err)
	}
}

func TestLoadFallsBackToAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "legacy-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model.APIKey != "legacy-key" {
		t.Fatalf("APIKey = %q, want legacy-key", cfg.Model.APIKey)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", " primary ")
	t.Setenv("API_KEY", "ignored")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/d.db")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("CLIENT_IDLE_TTL", "15m")
	t.Setenv("REAPER_INTERVAL", "30s")
	t.Setenv("MAX_REQUEST_BODY_BYTES", "1024")
	t.Setenv("RATE_LIMIT_REQUESTS", "3")
	t.Setenv("RATE_LIMIT_WINDOW", "10s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Model.APIKey != "primary" || cfg.Model.Name != "gemini-2.5-pro" {
		t.Fatalf("unexpected model config: %+v", cfg.Model)
	}
	if diff := cmp.Diff([]string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins); diff != "" {
		t.Fatalf("AllowedOrigins mismatch (-want +got):\n%s", diff)
	}
	if cfg.Port != "9090" || cfg.DBPath != "/tmp/d.db" {
		t.Fatalf("unexpected server config: port=%s db=%s", cfg.Port, cfg.DBPath)
	}
	if cfg.ClientIdleTTL != 15*time.Minute || cfg.ReaperInterval != 30*time.Second {
		t.Fatalf("unexpected durations: ttl=%s interval=%s", cfg.ClientIdleTTL, cfg.ReaperInterval)
	}
	if cfg.MaxRequestBody != 1024 {
		t.Fatalf("MaxRequestBody = %d, want 1024", cfg.MaxRequestBody)
	}
	want := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: 10 * time.Second}
	if cfg.RateLimit != want {
		t.Fatalf("RateLimit = %+v, want %+v", cfg.RateLimit, want)
	}
}

func TestLoadRejectsNonPositiveLimits(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("RATE_LIMIT_REQUESTS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for zero rate limit")
	}
}

func TestIsDevelopment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:3000", true},
		{"https://diagnose.example.com", false},
	}
	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.url}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
