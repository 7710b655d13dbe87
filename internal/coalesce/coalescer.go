package coalesce

import (
	"log/slog"
	"time"

	"github.com/hazyhaar/canvaswatch/internal/frameclock"
	"github.com/hazyhaar/canvaswatch/mutation"
	"github.com/hazyhaar/canvaswatch/surface"
)

// EmitFunc receives one batched event per surface per cycle.
type EmitFunc func(ev mutation.Event)

// Config for creating a Coalescer.
type Config struct {
	Registry surface.Registry
	Emit     EmitFunc
	// Suppressed reports whether emission is currently gated off
	// (frozen or locked). While it returns true, drains are skipped and
	// records accumulate; they are never dropped.
	Suppressed func() bool
	Logger     *slog.Logger
}

// Coalescer consumes records pushed synchronously by the raw-mutation
// source, groups them by rendering cycle, and drains the buffer once per
// cycle. Two per-cycle tasks drive it: one stamps the cycle clock, one
// drains the buffer.
type Coalescer struct {
	buf      *Buffer
	stamps   RafStamps
	registry surface.Registry
	emit     EmitFunc
	gate     func() bool
	logger   *slog.Logger

	stampTask *frameclock.Task
	drainTask *frameclock.Task
}

// New creates a Coalescer. It does nothing until Start.
func New(cfg Config) *Coalescer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Suppressed == nil {
		cfg.Suppressed = func() bool { return false }
	}
	return &Coalescer{
		buf:      NewBuffer(),
		registry: cfg.Registry,
		emit:     cfg.Emit,
		gate:     cfg.Suppressed,
		logger:   cfg.Logger,
	}
}

// Start schedules the stamp and drain tasks on the clock.
func (c *Coalescer) Start(clock frameclock.Clock) {
	c.stampTask = clock.Schedule(c.stamps.MarkCycle)
	c.drainTask = clock.Schedule(c.drainCycle)
}

// Stop cancels both tasks. Queued records stay in the buffer; Reset clears
// them.
func (c *Coalescer) Stop() {
	if c.stampTask != nil {
		c.stampTask.Stop()
	}
	if c.drainTask != nil {
		c.drainTask.Stop()
	}
}

// Reset discards all pending records.
func (c *Coalescer) Reset() {
	c.buf.Clear()
}

// Pending returns the number of queued records for s. Test and diagnostics
// hook.
func (c *Coalescer) Pending(s surface.Surface) int {
	return c.buf.Len(s)
}

// ProcessMutation is the synchronous entry point for the raw-mutation
// source. It may be called arbitrarily often per cycle; it never blocks on
// emission and never drops a record.
func (c *Coalescer) ProcessMutation(s surface.Surface, rec mutation.Record) {
	c.stamps.NoteMutation()
	c.buf.Push(s, rec)
}

// drainCycle runs once per rendering cycle. For every surface with queued
// records: skip the whole drain while suppressed (records accumulate),
// discard silently when the registry does not know the surface, otherwise
// emit one batched event preserving record order.
func (c *Coalescer) drainCycle(_ time.Time) {
	if c.gate() {
		return
	}

	for _, s := range c.buf.Surfaces() {
		id, ok := c.registry.ResolveID(s)
		if !ok {
			// No id, nothing to emit. Accepted loss.
			n := len(c.buf.Drain(s))
			c.logger.Debug("coalesce: discarded records for unknown surface", "records", n)
			continue
		}

		recs := c.buf.Drain(s)
		if len(recs) == 0 {
			continue
		}

		// All records for one surface in one drain carry the same API
		// tag; interception never mixes families between drains.
		commands := make([]mutation.Command, len(recs))
		for i, r := range recs {
			commands[i] = r.Command
		}

		c.emit(mutation.Event{
			ID:       id,
			Type:     recs[0].Type,
			Commands: commands,
		})
	}
}
