package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.SSRForceFetchDelay != 100*time.Millisecond {
		t.Fatalf("expected 100ms delay, got %s", cfg.SSRForceFetchDelay)
	}
	if cfg.DevTools {
		t.Fatalf("expected devtools off by default")
	}
	if cfg.MaxPrepasses != 4 || cfg.PayloadTTL != time.Minute {
		t.Fatalf("unexpected driver defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UNIVERSAL_ADDR", "127.0.0.1:9000")
	t.Setenv("UNIVERSAL_SSR_FORCE_FETCH_DELAY", "250ms")
	t.Setenv("UNIVERSAL_DEVTOOLS", "true")
	t.Setenv("UNIVERSAL_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" || cfg.SSRForceFetchDelay != 250*time.Millisecond || !cfg.DevTools || cfg.LogLevel != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("UNIVERSAL_SSR_FORCE_FETCH_DELAY", "soon")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}

	t.Setenv("UNIVERSAL_SSR_FORCE_FETCH_DELAY", "-1s")
	if _, err := Load(); err == nil {
		t.Fatal("expected negative delay to be rejected")
	}

	t.Setenv("UNIVERSAL_SSR_FORCE_FETCH_DELAY", "1s")
	t.Setenv("UNIVERSAL_MAX_PREPASSES", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected zero prepasses to be rejected")
	}
}
