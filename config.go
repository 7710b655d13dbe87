package canvaswatch

import (
	"time"

	"github.com/hazyhaar/canvaswatch/idgen"
	"github.com/hazyhaar/canvaswatch/internal/config"
	"github.com/hazyhaar/canvaswatch/surface"
)

// Mode selects the capture strategy. Exactly one of the two variants is
// chosen at construction and is immutable thereafter.
type Mode struct {
	sampled bool
	fps     int
}

// Exhaustive captures every intercepted draw call, coalesced per rendering
// cycle.
func Exhaustive() Mode { return Mode{} }

// Sampled captures full-frame snapshots at the given rate. fps must be
// positive.
func Sampled(fps int) Mode { return Mode{sampled: true, fps: fps} }

// IsSampled reports whether this is the sampling variant.
func (m Mode) IsSampled() bool { return m.sampled }

// FPS returns the sampling rate; 0 for the exhaustive variant.
func (m Mode) FPS() int {
	if !m.sampled {
		return 0
	}
	return m.fps
}

// Config is the recorder configuration, fixed at construction.
type Config struct {
	// Mode is the capture strategy.
	Mode Mode
	// Disabled turns the recorder into a no-op: Start returns
	// immediately and nothing is ever emitted.
	Disabled bool

	// Registry resolves surface handles to recording ids. Required.
	Registry surface.Registry
	// Lister enumerates eligible surfaces. Required for Sampled mode.
	Lister surface.Lister
	// Encoder produces encoded bitmaps. Required for Sampled mode.
	Encoder surface.Encoder
	// Encoding selects the image representation.
	Encoding surface.EncodeOptions

	// FrameInterval is the rendering-cycle cadence of the owned clock.
	// Zero uses the 60 Hz default. Ignored when a clock is injected.
	FrameInterval time.Duration

	// ClearCachesOnReset makes Reset also purge the dedup caches, so a
	// fresh session re-emits images known to a prior one. Default false:
	// the caches survive Reset and suppress re-emission of content the
	// downstream already holds.
	ClearCachesOnReset bool

	// NewID mints the session id. Default: UUIDv7.
	NewID idgen.Generator
}

// FileConfig is the daemon YAML configuration. Re-exported from internal.
type FileConfig = config.Config

// LoadConfigFile reads a YAML configuration file with defaults applied.
func LoadConfigFile(path string) (*FileConfig, error) {
	return config.LoadFile(path)
}

// ModeFromFile converts the YAML capture section into a Mode.
func ModeFromFile(fc *FileConfig) Mode {
	if fc.Capture.Mode == "exhaustive" {
		return Exhaustive()
	}
	return Sampled(fc.Capture.SampleFPS)
}
