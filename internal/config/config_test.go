package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults should succeed: %v", err)
	}

	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("expected 5m default interval, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Client.CacheLimit != 50 {
		t.Fatalf("expected default cache limit 50, got %d", cfg.Client.CacheLimit)
	}
	if !cfg.Scheduler.AlignToInterval {
		t.Fatal("expected align_to_interval to default to true")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("scheduler:\n  interval: 1m\nclient:\n  poll_interval: 30s\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading file should succeed: %v", err)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("expected 1m interval, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Client.PollInterval != 30*time.Second {
		t.Fatalf("expected 30s poll interval, got %s", cfg.Client.PollInterval)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	cfg.Engine.ObservationLimit = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("observation_limit below 2 should be rejected")
	}

	cfg.Engine.ObservationLimit = 2
	cfg.Scheduler.Interval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero scheduler interval should be rejected")
	}
}
