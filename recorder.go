// Package canvaswatch captures visual state changes of drawable surfaces
// and converts them into a compact, replayable event stream.
//
// canvaswatch observes, it does not interpret. Two capture strategies feed
// one uniform emission contract: exhaustive interception coalesces every
// draw call at rendering-cycle boundaries, while fixed-rate sampling
// encodes full frames and deduplicates them by content fingerprint. Either
// way the downstream sinks receive events of a single shape.
package canvaswatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/canvaswatch/idgen"
	"github.com/hazyhaar/canvaswatch/internal/coalesce"
	"github.com/hazyhaar/canvaswatch/internal/dedupe"
	"github.com/hazyhaar/canvaswatch/internal/frameclock"
	"github.com/hazyhaar/canvaswatch/internal/sampler"
	"github.com/hazyhaar/canvaswatch/internal/sink"
	"github.com/hazyhaar/canvaswatch/mutation"
	"github.com/hazyhaar/canvaswatch/surface"
)

// Recorder is the outward-facing lifecycle controller. It owns the dedup
// caches, the session flags, and the wiring between the active capture
// engine and the sinks. Create one per recording session.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	clock      frameclock.Clock
	ownedClock *frameclock.Ticker

	router *sink.Router

	images *dedupe.ImageCache
	blanks *dedupe.BlankCache

	sessionID string
	seq       atomic.Uint64

	frozen atomic.Bool
	locked atomic.Bool

	mu      sync.Mutex
	started bool
	samp    *sampler.Engine

	// events feeds the dispatch goroutine. Created on first Start and
	// never replaced, so emit reads it without synchronization; it
	// outlives Reset so a late encode still delivers its event.
	events       chan mutation.Event
	emitCancel   context.CancelFunc
	dispatchDone chan struct{}

	// coal is read lock-free on the hot interception path.
	coal atomic.Pointer[coalesce.Coalescer]
}

// emitQueueSize bounds the queue between the capture engines and the sink
// dispatcher. A full queue drops events instead of stalling the frame
// clock.
const emitQueueSize = 256

// New creates a Recorder from configuration. The capture mode is fixed for
// the recorder's lifetime.
func New(cfg Config, logger *slog.Logger, sinks ...Sink) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Registry == nil {
		return nil, errors.New("canvaswatch: config requires a Registry")
	}
	if cfg.Mode.IsSampled() {
		if cfg.Mode.FPS() <= 0 {
			return nil, errors.New("canvaswatch: sampled mode requires a positive fps")
		}
		if cfg.Lister == nil || cfg.Encoder == nil {
			return nil, errors.New("canvaswatch: sampled mode requires a Lister and an Encoder")
		}
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Default
	}

	return &Recorder{
		cfg:       cfg,
		logger:    logger,
		router:    sink.NewRouter(logger, sinks...),
		images:    dedupe.NewImageCache(),
		blanks:    dedupe.NewBlankCache(),
		sessionID: cfg.NewID(),
	}, nil
}

// SessionID returns the id minted for this recording session.
func (r *Recorder) SessionID() string { return r.sessionID }

// Start wires the configured capture engine to the frame clock and begins
// capturing. Re-callable after Reset.
func (r *Recorder) Start() error {
	if r.cfg.Disabled {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	if r.clock == nil {
		r.ownedClock = frameclock.NewTicker(r.cfg.FrameInterval)
		r.ownedClock.Start()
		r.clock = r.ownedClock
	}

	if r.events == nil {
		r.events = make(chan mutation.Event, emitQueueSize)
		r.dispatchDone = make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())
		r.emitCancel = cancel
		go r.dispatch(ctx, r.events, r.dispatchDone)
	}

	if r.cfg.Mode.IsSampled() {
		r.samp = sampler.New(sampler.Config{
			FPS:        r.cfg.Mode.FPS(),
			Registry:   r.cfg.Registry,
			Lister:     r.cfg.Lister,
			Encoder:    r.cfg.Encoder,
			Options:    r.cfg.Encoding,
			Images:     r.images,
			Blanks:     r.blanks,
			Emit:       r.emit,
			Suppressed: r.suppressed,
			Logger:     r.logger,
		})
		r.samp.Start(r.clock)
		r.logger.Info("canvaswatch: sampling started",
			"session", r.sessionID, "fps", r.cfg.Mode.FPS())
	} else {
		coal := coalesce.New(coalesce.Config{
			Registry:   r.cfg.Registry,
			Emit:       r.emit,
			Suppressed: r.suppressed,
			Logger:     r.logger,
		})
		coal.Start(r.clock)
		r.coal.Store(coal)
		r.logger.Info("canvaswatch: interception started", "session", r.sessionID)
	}

	r.started = true
	return nil
}

// Stop tears down the capture engine, the owned clock, the dispatcher, and
// the sinks. Events still queued at this point are abandoned.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.teardownLocked()
	if r.ownedClock != nil {
		r.ownedClock.Stop()
		r.ownedClock = nil
		r.clock = nil
	}
	if r.emitCancel != nil {
		r.emitCancel()
		<-r.dispatchDone
		r.emitCancel = nil
	}
	r.mu.Unlock()

	r.router.Close()
	r.logger.Info("canvaswatch: stopped", "session", r.sessionID)
}

// Reset clears all pending interception records and tears down the active
// capture engine. The dedup caches intentionally survive unless
// ClearCachesOnReset is set: re-enabling capture then does not re-emit
// images the downstream already holds. Call Start to capture again.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.teardownLocked()
	r.mu.Unlock()

	if r.cfg.ClearCachesOnReset {
		r.PurgeCaches()
	}
	r.logger.Info("canvaswatch: reset", "session", r.sessionID)
}

// teardownLocked stops the active engine and discards pending records.
// The dispatcher stays up: an encode completing after teardown still
// delivers its event.
func (r *Recorder) teardownLocked() {
	if !r.started {
		return
	}
	if coal := r.coal.Swap(nil); coal != nil {
		coal.Stop()
		coal.Reset()
	}
	if r.samp != nil {
		r.samp.Stop()
		r.samp = nil
	}
	r.started = false
}

// PurgeCaches clears the dedup caches: the next sample of every surface is
// treated as a first observation.
func (r *Recorder) PurgeCaches() {
	r.images.Purge()
	r.blanks.Purge()
}

// Freeze suppresses all outgoing emission while buffering and sampling
// continue. Queued records accumulate and drain after Unfreeze.
func (r *Recorder) Freeze() { r.frozen.Store(true) }

// Unfreeze releases the freeze gate.
func (r *Recorder) Unfreeze() { r.frozen.Store(false) }

// Frozen reports the freeze flag.
func (r *Recorder) Frozen() bool { return r.frozen.Load() }

// Lock suppresses emission like Freeze but on a separate flag, intended for
// short-lived suppression windows where the recorder itself must not
// perturb in-progress work. Both flags gate emission independently.
func (r *Recorder) Lock() { r.locked.Store(true) }

// Unlock releases the lock gate.
func (r *Recorder) Unlock() { r.locked.Store(false) }

// Locked reports the lock flag.
func (r *Recorder) Locked() bool { return r.locked.Load() }

func (r *Recorder) suppressed() bool {
	return r.frozen.Load() || r.locked.Load()
}

// ProcessMutation is the synchronous entry point for the raw-mutation
// source in exhaustive mode. It never blocks and never drops a record. In
// sampled mode, or before Start, calls are ignored.
func (r *Recorder) ProcessMutation(s surface.Surface, rec mutation.Record) {
	coal := r.coal.Load()
	if coal == nil {
		return
	}
	coal.ProcessMutation(s, rec)
}

// emit stamps the session envelope onto ev and hands it to the dispatcher.
// Fire and forget: sink errors are logged by the router, and a full queue
// drops the event rather than blocking the capture path. Called from the
// clock and sampler goroutines; touches only immutable or atomic state.
func (r *Recorder) emit(ev mutation.Event) {
	ev.Seq = r.seq.Add(1)
	ev.SessionID = r.sessionID
	ev.Timestamp = time.Now().UnixMilli()

	select {
	case r.events <- ev:
	default:
		r.logger.Warn("canvaswatch: emit queue full, event dropped",
			"id", ev.ID, "seq", ev.Seq)
	}
}

// dispatch forwards queued events to the sinks on its own goroutine, so an
// unresponsive sink delays delivery but never the frame clock.
func (r *Recorder) dispatch(ctx context.Context, events <-chan mutation.Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			_ = r.router.Send(ctx, ev)
		}
	}
}
