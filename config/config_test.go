package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Acquisition.MaxAttempts != 30 {
		t.Errorf("MaxAttempts = %d, want 30", cfg.Acquisition.MaxAttempts)
	}
	if cfg.Acquisition.RetryInterval != 2*time.Second {
		t.Errorf("RetryInterval = %v, want 2s", cfg.Acquisition.RetryInterval)
	}
	if cfg.Acquisition.StatusInterval != 5*time.Second {
		t.Errorf("StatusInterval = %v, want 5s", cfg.Acquisition.StatusInterval)
	}
	if cfg.Surface.Width != 1200 || cfg.Surface.Height != 800 {
		t.Errorf("Surface = %dx%d, want 1200x800", cfg.Surface.Width, cfg.Surface.Height)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dash.yaml")
	data := []byte(`
backend:
  base_url: http://planner:9000
acquisition:
  max_attempts: 5
messaging:
  backend: mqtt
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://planner:9000" {
		t.Errorf("BaseURL = %q, want %q", cfg.Backend.BaseURL, "http://planner:9000")
	}
	if cfg.Acquisition.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Acquisition.MaxAttempts)
	}
	// untouched keys keep their defaults
	if cfg.Acquisition.RetryInterval != 2*time.Second {
		t.Errorf("RetryInterval = %v, want 2s", cfg.Acquisition.RetryInterval)
	}
	if cfg.Messaging.Backend != "mqtt" {
		t.Errorf("Messaging.Backend = %q, want mqtt", cfg.Messaging.Backend)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dash.yaml")
	cfg := Defaults()
	cfg.Web.Port = 9999
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Web.Port != 9999 {
		t.Errorf("Web.Port = %d, want 9999", got.Web.Port)
	}
}
