// Package config handles canvaswatch daemon configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Capture  CaptureConfig  `yaml:"capture"`
	Encoding EncodingConfig `yaml:"encoding"`
	Clock    ClockConfig    `yaml:"clock"`
	Sinks    []SinkConfig   `yaml:"sinks"`
	Control  ControlConfig  `yaml:"control"`
	Browser  BrowserConfig  `yaml:"browser"`
}

// CaptureConfig selects the capture strategy.
type CaptureConfig struct {
	// Enabled gates the whole recorder. Default: true.
	Enabled *bool `yaml:"enabled"`
	// Mode is "exhaustive" (draw-call interception) or "sampled"
	// (fixed-rate full-frame sampling). The two are mutually exclusive
	// and immutable once the recorder is constructed.
	Mode string `yaml:"mode"`
	// SampleFPS is the sampling rate for mode "sampled".
	SampleFPS int `yaml:"sample_fps"`
	// ClearCachesOnReset makes Reset also purge the dedup caches, so a
	// fresh session re-emits images known to a prior one.
	ClearCachesOnReset bool `yaml:"clear_caches_on_reset"`
}

// EncodingConfig controls the bitmap encoder.
type EncodingConfig struct {
	Format  string  `yaml:"format"`  // png | jpeg
	Quality float64 `yaml:"quality"` // 0..1, jpeg only
	MaxDim  int     `yaml:"max_dim"` // downscale bound; 0 = unbounded
}

// ClockConfig tunes the rendering-cycle cadence.
type ClockConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | sqlite | callback
	URL  string `yaml:"url"`  // for webhook
	Path string `yaml:"path"` // for sqlite
}

// ControlConfig exposes the lifecycle operations over HTTP.
type ControlConfig struct {
	Addr string `yaml:"addr"` // empty = control API disabled
}

// BrowserConfig points the rodcapture adapter at a page.
type BrowserConfig struct {
	URL     string `yaml:"url"`     // page to attach to; empty = no browser
	Remote  string `yaml:"remote"`  // devtools websocket URL; empty = launch
	Stealth bool   `yaml:"stealth"` // apply stealth evasions to the page
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Capture.Enabled == nil {
		enabled := true
		c.Capture.Enabled = &enabled
	}
	if c.Capture.Mode == "" {
		c.Capture.Mode = "sampled"
	}
	if c.Capture.SampleFPS <= 0 {
		c.Capture.SampleFPS = 2
	}
	if c.Encoding.Format == "" {
		c.Encoding.Format = "png"
	}
	if c.Encoding.Quality <= 0 || c.Encoding.Quality > 1 {
		c.Encoding.Quality = 0.92
	}
	if c.Clock.Interval <= 0 {
		c.Clock.Interval = 16 * time.Millisecond
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
}

// Validate rejects configurations the recorder cannot honour.
func (c *Config) Validate() error {
	switch c.Capture.Mode {
	case "exhaustive", "sampled":
	default:
		return fmt.Errorf("config: unknown capture mode %q", c.Capture.Mode)
	}
	switch c.Encoding.Format {
	case "png", "jpeg":
	default:
		return fmt.Errorf("config: unknown encoding format %q", c.Encoding.Format)
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: webhook sink requires url")
			}
		case "sqlite":
			if s.Path == "" {
				return fmt.Errorf("config: sqlite sink requires path")
			}
		default:
			return fmt.Errorf("config: unknown sink type %q", s.Type)
		}
	}
	return nil
}
