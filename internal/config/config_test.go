package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.FallbackRevealDelay != 30*time.Second {
		t.Errorf("expected 30s fallback delay, got %s", cfg.FallbackRevealDelay)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(cfg.ReconcileDelays) != len(want) {
		t.Fatalf("expected %d reconcile delays, got %d", len(want), len(cfg.ReconcileDelays))
	}
	for i, d := range want {
		if cfg.ReconcileDelays[i] != d {
			t.Errorf("delay %d: expected %s, got %s", i, d, cfg.ReconcileDelays[i])
		}
	}
}

func TestGetEnvAsDurations(t *testing.T) {
	t.Setenv("RECONCILE_DELAYS", "10ms, 20ms,40ms")
	cfg := Load()
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	if len(cfg.ReconcileDelays) != 3 {
		t.Fatalf("expected 3 delays, got %d", len(cfg.ReconcileDelays))
	}
	for i, d := range want {
		if cfg.ReconcileDelays[i] != d {
			t.Errorf("delay %d: expected %s, got %s", i, d, cfg.ReconcileDelays[i])
		}
	}
}

func TestGetEnvAsDurationsMalformed(t *testing.T) {
	t.Setenv("RECONCILE_DELAYS", "2s,potato")
	cfg := Load()
	if len(cfg.ReconcileDelays) != 3 || cfg.ReconcileDelays[0] != 2*time.Second {
		t.Errorf("malformed list should fall back to defaults, got %v", cfg.ReconcileDelays)
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	cfg := Load()
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origin %q", cfg.CORSAllowedOrigins[1])
	}
}
