package coalesce

import (
	"testing"
	"time"

	"github.com/hazyhaar/canvaswatch/internal/frameclock"
	"github.com/hazyhaar/canvaswatch/mutation"
	"github.com/hazyhaar/canvaswatch/surface"
)

type fakeSurface struct {
	w, h int
	api  mutation.API
}

func (f *fakeSurface) Size() (int, int)  { return f.w, f.h }
func (f *fakeSurface) API() mutation.API { return f.api }

func rec(prop string) mutation.Record {
	return mutation.Record{Type: mutation.API2D, Command: mutation.Command{Property: prop}}
}

func newTestCoalescer(reg surface.Registry, gate func() bool) (*Coalescer, *[]mutation.Event, *frameclock.Manual) {
	var events []mutation.Event
	c := New(Config{
		Registry:   reg,
		Emit:       func(ev mutation.Event) { events = append(events, ev) },
		Suppressed: gate,
	})
	clock := frameclock.NewManual(time.Unix(0, 0), 16*time.Millisecond)
	c.Start(clock)
	return c, &events, clock
}

func TestThreeMutationsOneCycleOneEvent(t *testing.T) {
	reg := surface.NewSequentialRegistry()
	s := &fakeSurface{w: 100, h: 100, api: mutation.API2D}
	reg.Register(s)

	c, events, clock := newTestCoalescer(reg, nil)

	c.ProcessMutation(s, rec("moveTo"))
	c.ProcessMutation(s, rec("lineTo"))
	c.ProcessMutation(s, rec("stroke"))
	clock.Cycle()

	if len(*events) != 1 {
		t.Fatalf("events: got %d, want 1", len(*events))
	}
	ev := (*events)[0]
	if ev.Type != mutation.API2D {
		t.Errorf("Type: got %q, want 2d", ev.Type)
	}
	want := []string{"moveTo", "lineTo", "stroke"}
	if len(ev.Commands) != len(want) {
		t.Fatalf("commands: got %d, want %d", len(ev.Commands), len(want))
	}
	for i, w := range want {
		if ev.Commands[i].Property != w {
			t.Errorf("commands[%d]: got %q, want %q", i, ev.Commands[i].Property, w)
		}
	}

	// Nothing left: a second cycle emits nothing.
	clock.Cycle()
	if len(*events) != 1 {
		t.Errorf("events after idle cycle: got %d, want 1", len(*events))
	}
}

func TestSuppressedDrainAccumulates(t *testing.T) {
	reg := surface.NewSequentialRegistry()
	s := &fakeSurface{w: 10, h: 10, api: mutation.API2D}
	reg.Register(s)

	suppressed := true
	c, events, clock := newTestCoalescer(reg, func() bool { return suppressed })

	c.ProcessMutation(s, rec("a"))
	clock.Cycle()
	c.ProcessMutation(s, rec("b"))
	clock.Cycle()
	c.ProcessMutation(s, rec("c"))
	clock.Cycle()

	if len(*events) != 0 {
		t.Fatalf("events while suppressed: got %d, want 0", len(*events))
	}
	if got := c.Pending(s); got != 3 {
		t.Fatalf("pending while suppressed: got %d, want 3", got)
	}

	suppressed = false
	clock.Cycle()

	if len(*events) != 1 {
		t.Fatalf("events after release: got %d, want 1", len(*events))
	}
	want := []string{"a", "b", "c"}
	got := (*events)[0].Commands
	if len(got) != len(want) {
		t.Fatalf("commands: got %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Property != w {
			t.Errorf("commands[%d]: got %q, want %q", i, got[i].Property, w)
		}
	}
}

func TestUnknownSurfaceDiscardedSilently(t *testing.T) {
	reg := surface.NewSequentialRegistry()
	s := &fakeSurface{w: 10, h: 10, api: mutation.API2D}
	// Never registered.

	c, events, clock := newTestCoalescer(reg, nil)

	c.ProcessMutation(s, rec("a"))
	c.ProcessMutation(s, rec("b"))
	clock.Cycle()

	if len(*events) != 0 {
		t.Errorf("events for unknown surface: got %d, want 0", len(*events))
	}
	if got := c.Pending(s); got != 0 {
		t.Errorf("pending after discard: got %d, want 0", got)
	}
}

func TestPerSurfaceBatching(t *testing.T) {
	reg := surface.NewSequentialRegistry()
	a := &fakeSurface{w: 10, h: 10, api: mutation.API2D}
	b := &fakeSurface{w: 20, h: 20, api: mutation.APIWebGL}
	idA := reg.Register(a)
	idB := reg.Register(b)

	c, events, clock := newTestCoalescer(reg, nil)

	c.ProcessMutation(a, rec("fillRect"))
	c.ProcessMutation(b, mutation.Record{Type: mutation.APIWebGL, Command: mutation.Command{Property: "drawArrays"}})
	c.ProcessMutation(a, rec("strokeRect"))
	clock.Cycle()

	if len(*events) != 2 {
		t.Fatalf("events: got %d, want 2", len(*events))
	}

	byID := map[int64]mutation.Event{}
	for _, ev := range *events {
		byID[ev.ID] = ev
	}
	if got := len(byID[idA].Commands); got != 2 {
		t.Errorf("surface a commands: got %d, want 2", got)
	}
	if byID[idB].Type != mutation.APIWebGL {
		t.Errorf("surface b type: got %q, want webgl", byID[idB].Type)
	}
}

func TestResetClearsPending(t *testing.T) {
	reg := surface.NewSequentialRegistry()
	s := &fakeSurface{w: 10, h: 10, api: mutation.API2D}
	reg.Register(s)

	suppressed := true
	c, events, clock := newTestCoalescer(reg, func() bool { return suppressed })

	c.ProcessMutation(s, rec("a"))
	c.Reset()
	suppressed = false
	clock.Cycle()

	if len(*events) != 0 {
		t.Errorf("events after reset: got %d, want 0", len(*events))
	}
}

func TestStopHaltsDraining(t *testing.T) {
	reg := surface.NewSequentialRegistry()
	s := &fakeSurface{w: 10, h: 10, api: mutation.API2D}
	reg.Register(s)

	c, events, clock := newTestCoalescer(reg, nil)

	c.Stop()
	c.ProcessMutation(s, rec("a"))
	clock.Cycle()

	if len(*events) != 0 {
		t.Errorf("events after stop: got %d, want 0", len(*events))
	}
	if got := c.Pending(s); got != 1 {
		t.Errorf("pending after stop: got %d, want 1", got)
	}
}

func TestRafStampsInvariant(t *testing.T) {
	var st RafStamps

	// invoke unset, mutation before any cycle.
	st.NoteMutation()
	if st.Invoke() != 0 || st.Latest() != 0 {
		t.Fatalf("pre-cycle stamps: invoke=%d latest=%d", st.Invoke(), st.Latest())
	}

	t1 := time.Unix(1, 0)
	st.MarkCycle(t1)
	st.NoteMutation()
	if st.Invoke() != t1.UnixNano() {
		t.Errorf("invoke: got %d, want %d", st.Invoke(), t1.UnixNano())
	}

	// Additional mutations within the same cycle do not move invoke.
	st.NoteMutation()
	if st.Invoke() != t1.UnixNano() {
		t.Errorf("invoke moved within cycle: got %d", st.Invoke())
	}

	t2 := time.Unix(2, 0)
	st.MarkCycle(t2)
	if st.Invoke() > st.Latest() {
		t.Errorf("invariant violated: invoke %d > latest %d", st.Invoke(), st.Latest())
	}
	st.NoteMutation()
	if st.Invoke() != t2.UnixNano() {
		t.Errorf("invoke after new cycle: got %d, want %d", st.Invoke(), t2.UnixNano())
	}
}
