// Package frameclock provides the "next rendering cycle" scheduling
// primitive. A Clock invokes every scheduled task once per cycle, on a
// single goroutine, in registration order. No two tasks ever run
// simultaneously, so ordering between producers and drains is determined
// entirely by cycle boundaries.
package frameclock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Func is one per-cycle callback. now is the timestamp of the current cycle.
type Func func(now time.Time)

// Clock schedules repeating per-cycle tasks.
type Clock interface {
	// Schedule registers fn to run once per cycle until its Task is stopped.
	Schedule(fn Func) *Task
}

// Task is a cancellable repeating per-cycle callback. Stop takes effect at
// the top of the next cycle: the token is checked before each invocation.
type Task struct {
	fn      Func
	stopped atomic.Bool
}

// Stop cancels the task. Safe to call from any goroutine and more than once.
func (t *Task) Stop() { t.stopped.Store(true) }

// Stopped reports whether the task has been cancelled.
func (t *Task) Stopped() bool { return t.stopped.Load() }

// taskSet holds scheduled tasks shared by the clock implementations.
// Stopped tasks are pruned lazily at cycle time.
type taskSet struct {
	mu    sync.Mutex
	tasks []*Task
}

func (s *taskSet) add(fn Func) *Task {
	t := &Task{fn: fn}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return t
}

// cycle runs every live task once with the given timestamp.
func (s *taskSet) cycle(now time.Time) {
	s.mu.Lock()
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.Stopped() {
			live = append(live, t)
		}
	}
	s.tasks = live
	snapshot := make([]*Task, len(live))
	copy(snapshot, live)
	s.mu.Unlock()

	for _, t := range snapshot {
		if t.Stopped() {
			continue
		}
		t.fn(now)
	}
}

// Ticker is the production clock: one cycle per tick of a time.Ticker.
// The default interval approximates a 60 Hz display cadence.
type Ticker struct {
	taskSet
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
}

// DefaultInterval approximates one display refresh at 60 Hz.
const DefaultInterval = 16 * time.Millisecond

// NewTicker creates a ticker-backed clock. interval <= 0 uses DefaultInterval.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the cycle loop. Idempotent.
func (c *Ticker) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.loop()
}

func (c *Ticker) loop() {
	defer close(c.done)
	tick := time.NewTicker(c.interval)
	defer tick.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-tick.C:
			c.cycle(now)
		}
	}
}

// Stop halts the cycle loop and waits for the in-progress cycle to finish.
func (c *Ticker) Stop() {
	if !c.started.Load() {
		return
	}
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	<-c.done
}

// Schedule implements Clock.
func (c *Ticker) Schedule(fn Func) *Task { return c.add(fn) }

// Manual is a test clock: cycles run only when Cycle is called, with a
// deterministic timestamp advancing by step each cycle.
type Manual struct {
	taskSet
	now  time.Time
	step time.Duration
}

// NewManual creates a manual clock starting at start, advancing by step.
func NewManual(start time.Time, step time.Duration) *Manual {
	return &Manual{now: start, step: step}
}

// Schedule implements Clock.
func (c *Manual) Schedule(fn Func) *Task { return c.add(fn) }

// Cycle advances the clock by one step and runs all live tasks.
func (c *Manual) Cycle() {
	c.now = c.now.Add(c.step)
	c.cycle(c.now)
}

// CycleN runs n cycles.
func (c *Manual) CycleN(n int) {
	for i := 0; i < n; i++ {
		c.Cycle()
	}
}

// Now returns the timestamp of the most recent cycle.
func (c *Manual) Now() time.Time { return c.now }
