package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canvaswatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "capture:\n  mode: sampled\n"))
	if err != nil {
		t.Fatal(err)
	}

	if !*cfg.Capture.Enabled {
		t.Error("Enabled default: got false, want true")
	}
	if cfg.Capture.SampleFPS != 2 {
		t.Errorf("SampleFPS default: got %d, want 2", cfg.Capture.SampleFPS)
	}
	if cfg.Encoding.Format != "png" {
		t.Errorf("Format default: got %q, want png", cfg.Encoding.Format)
	}
	if cfg.Clock.Interval != 16*time.Millisecond {
		t.Errorf("Interval default: got %v, want 16ms", cfg.Clock.Interval)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Type != "stdout" {
		t.Errorf("Sinks default: got %v", cfg.Sinks)
	}
}

func TestLoadFileFull(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
capture:
  mode: exhaustive
  clear_caches_on_reset: true
encoding:
  format: jpeg
  quality: 0.8
  max_dim: 1024
clock:
  interval: 8ms
sinks:
  - type: webhook
    url: http://localhost:9000/events
  - type: sqlite
    path: /tmp/events.db
control:
  addr: 127.0.0.1:8421
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Capture.Mode != "exhaustive" {
		t.Errorf("Mode: got %q", cfg.Capture.Mode)
	}
	if !cfg.Capture.ClearCachesOnReset {
		t.Error("ClearCachesOnReset: got false, want true")
	}
	if cfg.Encoding.MaxDim != 1024 {
		t.Errorf("MaxDim: got %d, want 1024", cfg.Encoding.MaxDim)
	}
	if cfg.Clock.Interval != 8*time.Millisecond {
		t.Errorf("Interval: got %v, want 8ms", cfg.Clock.Interval)
	}
	if len(cfg.Sinks) != 2 {
		t.Fatalf("Sinks: got %d, want 2", len(cfg.Sinks))
	}
	if cfg.Control.Addr != "127.0.0.1:8421" {
		t.Errorf("Control.Addr: got %q", cfg.Control.Addr)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown mode", "capture:\n  mode: both\n"},
		{"unknown format", "encoding:\n  format: webp\n"},
		{"webhook without url", "sinks:\n  - type: webhook\n"},
		{"sqlite without path", "sinks:\n  - type: sqlite\n"},
		{"unknown sink", "sinks:\n  - type: kafka\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, tc.yaml)); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}
