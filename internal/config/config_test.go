package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("SRL_SYNC_DEBOUNCE_MS", "")
	t.Setenv("SRL_AUTH_ENABLED", "")

	cfg := Load()
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.SyncDebounce != 800*time.Millisecond {
		t.Fatalf("expected 800ms debounce, got %v", cfg.SyncDebounce)
	}
	if !cfg.AuthEnabled {
		t.Fatal("expected auth enabled by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SRL_SYNC_DEBOUNCE_MS", "250")
	t.Setenv("SRL_AUTH_ENABLED", "false")
	t.Setenv("SRL_ACCESS_TTL_SECONDS", "not-a-number")
	t.Setenv("SRL_MEANINGFUL_POLICY", "filled > 0")

	cfg := Load()
	if cfg.SyncDebounce != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", cfg.SyncDebounce)
	}
	if cfg.AuthEnabled {
		t.Fatal("expected auth disabled")
	}
	if cfg.AccessTTL != 86400*time.Second {
		t.Fatalf("expected fallback ttl, got %v", cfg.AccessTTL)
	}
	if cfg.MeaningfulPolicy != "filled > 0" {
		t.Fatalf("unexpected policy %q", cfg.MeaningfulPolicy)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "api_url: https://canvas.example.com\nauth_enabled: false\nsync_debounce_ms: 100\nmeaningful_policy: \"filled >= 3\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	base := Config{APIURL: "http://localhost:8787", AuthEnabled: true, SyncDebounce: time.Second, DataDir: "/tmp/x"}
	cfg, err := LoadFile(path, base)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.APIURL != "https://canvas.example.com" || cfg.AuthEnabled || cfg.SyncDebounce != 100*time.Millisecond {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.MeaningfulPolicy != "filled >= 3" {
		t.Fatalf("unexpected policy %q", cfg.MeaningfulPolicy)
	}
	if cfg.DataDir != "/tmp/x" {
		t.Fatalf("unset keys must keep base values, got %q", cfg.DataDir)
	}
}

func TestLoadFileMissingAndInvalid(t *testing.T) {
	base := Config{APIURL: "http://localhost:8787"}
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), base)
	if err != nil || cfg != base {
		t.Fatalf("expected base config for missing file, got %+v err=%v", cfg, err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("auth_enabled: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path, base); err == nil {
		t.Fatal("expected parse error")
	}
}
