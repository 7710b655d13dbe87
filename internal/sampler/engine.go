// Package sampler implements the fixed-rate snapshot engine: at most fps
// full-frame encodes per second per surface, with content-based
// deduplication so unchanged and initially-blank frames emit nothing.
package sampler

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/canvaswatch/internal/dedupe"
	"github.com/hazyhaar/canvaswatch/internal/frameclock"
	"github.com/hazyhaar/canvaswatch/mutation"
	"github.com/hazyhaar/canvaswatch/surface"
)

// EmitFunc receives one synthetic redraw event per changed surface.
type EmitFunc func(ev mutation.Event)

// Config for creating an Engine.
type Config struct {
	FPS      int
	Registry surface.Registry
	Lister   surface.Lister
	Encoder  surface.Encoder
	Options  surface.EncodeOptions
	Images   *dedupe.ImageCache
	Blanks   *dedupe.BlankCache
	Emit     EmitFunc
	// Suppressed gates emission (frozen or locked). Sampling continues
	// while suppressed, but neither the event nor the fingerprint is
	// recorded, so the change emits on the first cycle after release.
	Suppressed func() bool
	Logger     *slog.Logger
}

// Engine runs the sampling loop. One per-cycle task measures elapsed time
// and frame-skips below the target rate; an accepted cycle samples all
// eligible surfaces sequentially (one encode in flight per pass).
type Engine struct {
	cfg      Config
	interval time.Duration

	task   *frameclock.Task
	ctx    context.Context
	cancel context.CancelFunc

	lastAccepted time.Time   // touched only by the clock task
	passing      atomic.Bool // a sampling pass is running

	mu       sync.Mutex
	inFlight map[int64]bool // re-entrancy guard keyed by recording id
}

// New creates an Engine. It does nothing until Start.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Suppressed == nil {
		cfg.Suppressed = func() bool { return false }
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 2
	}
	return &Engine{
		cfg:      cfg,
		interval: time.Second / time.Duration(cfg.FPS),
		inFlight: make(map[int64]bool),
	}
}

// Start schedules the sampling task on the clock.
func (e *Engine) Start(clock frameclock.Clock) {
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.task = clock.Schedule(e.onCycle)
}

// Stop cancels the task and the context of any in-progress pass. An
// in-flight encode is not forcibly aborted; its completion is discarded
// harmlessly because the in-flight mark clears on every exit path.
func (e *Engine) Stop() {
	if e.task != nil {
		e.task.Stop()
	}
	if e.cancel != nil {
		e.cancel()
	}
}

// Idle reports whether no sampling pass is currently running.
func (e *Engine) Idle() bool { return !e.passing.Load() }

// onCycle runs once per rendering cycle. Frame-skipping, not frame-queuing:
// below the target interval, or while a previous pass is still encoding,
// the cycle reschedules without sampling.
func (e *Engine) onCycle(now time.Time) {
	if now.Sub(e.lastAccepted) < e.interval {
		return
	}
	if !e.passing.CompareAndSwap(false, true) {
		return
	}
	e.lastAccepted = now

	go e.pass(e.ctx)
}

// pass samples every eligible surface in sequence, awaiting each encode
// before moving on. Bounds peak resource use at the cost of per-surface
// latency when many surfaces exist.
func (e *Engine) pass(ctx context.Context) {
	defer e.passing.Store(false)

	for _, s := range e.cfg.Lister.Eligible(ctx) {
		if ctx.Err() != nil {
			return
		}
		e.sample(ctx, s)
	}
}

func (e *Engine) sample(ctx context.Context, s surface.Surface) {
	id, ok := e.cfg.Registry.ResolveID(s)
	if !ok {
		return
	}

	width, height := s.Size()
	if width == 0 || height == 0 {
		return
	}

	if !e.markInFlight(id) {
		return
	}
	defer e.clearInFlight(id)

	// A 3D context without a persistent drawing buffer may return stale or
	// undefined content on read. Clearing the color buffer immediately
	// before encoding yields deterministic content, at the cost of possibly
	// blanking the surface.
	if gl, ok := s.(surface.GLSurface); ok && !gl.PreservesDrawingBuffer() {
		gl.ClearColorBuffer()
	}

	img, err := e.cfg.Encoder.Encode(ctx, s, e.cfg.Options)
	if err != nil {
		e.cfg.Logger.Warn("sampler: encode failed", "id", id, "error", err)
		return
	}

	fp := mutation.Fingerprint(img)

	last, seen := e.cfg.Images.Last(id)
	if !seen {
		// First observation: a fully blank surface is "no content yet",
		// not a mutation.
		blankFP, err := e.blankFingerprint(ctx, width, height)
		if err != nil {
			e.cfg.Logger.Warn("sampler: blank fingerprint failed", "error", err)
		} else if fp == blankFP {
			e.cfg.Images.Record(id, fp)
			return
		}
	} else if fp == last {
		return
	}

	if e.cfg.Suppressed() {
		// Do not record the fingerprint either: the change must still
		// emit once the gate opens.
		return
	}

	e.cfg.Images.Record(id, fp)
	e.cfg.Emit(mutation.Event{
		ID:       id,
		Type:     s.API(),
		Commands: mutation.SnapshotCommands(width, height, e.dataURL(img)),
	})
}

func (e *Engine) blankFingerprint(ctx context.Context, width, height int) (string, error) {
	return e.cfg.Blanks.Fingerprint(dedupe.Size{Width: width, Height: height}, func() (string, error) {
		blank, err := e.cfg.Encoder.EncodeBlank(ctx, width, height, e.cfg.Options)
		if err != nil {
			return "", err
		}
		return mutation.Fingerprint(blank), nil
	})
}

func (e *Engine) dataURL(img []byte) string {
	mime := "image/png"
	if e.cfg.Options.Format == "jpeg" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img)
}

func (e *Engine) markInFlight(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[id] {
		return false
	}
	e.inFlight[id] = true
	return true
}

func (e *Engine) clearInFlight(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, id)
}
