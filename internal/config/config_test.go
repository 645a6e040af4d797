package config

import (
	"os"
	"testing"
	"time"
)

// unsetEnv clears key for the test; envconfig treats a set-but-empty variable as a value.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "DATABASE_URL", "SQLITE_PATH", "STORE_TIMEZONE", "APP_VERSION", "MANIFEST_CACHE_TTL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Address())
	}
	if cfg.StoreTimezone != "UTC" || cfg.AppVersion != "1.0" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ManifestCacheTTL != 30*time.Second {
		t.Fatalf("expected 30s manifest ttl, got %v", cfg.ManifestCacheTTL)
	}
	if cfg.StoreBackend() != "memory" {
		t.Fatalf("expected memory backend, got %q", cfg.StoreBackend())
	}
}

func TestStoreBackendPrefersPostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/infopos")
	t.Setenv("SQLITE_PATH", "/tmp/infopos.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend() != "postgres" {
		t.Fatalf("expected postgres backend, got %q", cfg.StoreBackend())
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed REQUEST_TIMEOUT")
	}
}
