package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/canvaswatch/internal/dedupe"
	"github.com/hazyhaar/canvaswatch/internal/frameclock"
	"github.com/hazyhaar/canvaswatch/mutation"
	"github.com/hazyhaar/canvaswatch/surface"
)

type fakeSurface struct {
	mu      sync.Mutex
	w, h    int
	api     mutation.API
	content string
}

func (f *fakeSurface) Size() (int, int)  { return f.w, f.h }
func (f *fakeSurface) API() mutation.API { return f.api }

func (f *fakeSurface) setContent(c string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = c
}

func (f *fakeSurface) getContent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content
}

// glSurface adds the non-persistent drawing buffer behaviour.
type glSurface struct {
	fakeSurface
	preserves bool
	cleared   int
}

func (g *glSurface) PreservesDrawingBuffer() bool { return g.preserves }
func (g *glSurface) ClearColorBuffer()            { g.cleared++; g.setContent("") }

// fakeEncoder renders a surface's content string as its encoded bytes.
// Empty content encodes identically to EncodeBlank for the same size.
type fakeEncoder struct {
	mu      sync.Mutex
	encodes int
	fail    bool
}

func (f *fakeEncoder) Encode(_ context.Context, s surface.Surface, _ surface.EncodeOptions) ([]byte, error) {
	f.mu.Lock()
	f.encodes++
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("encode failed")
	}
	w, h := s.Size()
	content := ""
	if fs, ok := s.(interface{ getContent() string }); ok {
		content = fs.getContent()
	}
	return blankBytes(w, h, content), nil
}

func (f *fakeEncoder) EncodeBlank(_ context.Context, w, h int, _ surface.EncodeOptions) ([]byte, error) {
	return blankBytes(w, h, ""), nil
}

func (f *fakeEncoder) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func blankBytes(w, h int, content string) []byte {
	return []byte(fmt.Sprintf("%dx%d:%s", w, h, content))
}

type harness struct {
	engine *Engine
	clock  *frameclock.Manual
	reg    *surface.SequentialRegistry
	enc    *fakeEncoder

	mu     sync.Mutex
	events []mutation.Event
}

func newHarness(t *testing.T, fps int, surfaces ...surface.Surface) *harness {
	t.Helper()
	h := &harness{
		clock: frameclock.NewManual(time.Unix(0, 0), 16*time.Millisecond),
		reg:   surface.NewSequentialRegistry(),
		enc:   &fakeEncoder{},
	}
	for _, s := range surfaces {
		h.reg.Register(s)
	}
	h.engine = New(Config{
		FPS:      fps,
		Registry: h.reg,
		Lister: surface.ListerFunc(func(context.Context) []surface.Surface {
			return surfaces
		}),
		Encoder: h.enc,
		Images:  dedupe.NewImageCache(),
		Blanks:  dedupe.NewBlankCache(),
		Emit: func(ev mutation.Event) {
			h.mu.Lock()
			h.events = append(h.events, ev)
			h.mu.Unlock()
		},
	})
	h.engine.Start(h.clock)
	t.Cleanup(h.engine.Stop)
	return h
}

// cycleAndSettle runs one clock cycle and waits for the sampling pass.
func (h *harness) cycleAndSettle(t *testing.T) {
	t.Helper()
	h.clock.Cycle()
	deadline := time.Now().Add(2 * time.Second)
	for !h.engine.Idle() {
		if time.Now().After(deadline) {
			t.Fatal("sampling pass never settled")
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *harness) lastEvent() mutation.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}

func TestUnchangedContentEmitsOnce(t *testing.T) {
	s := &fakeSurface{w: 64, h: 64, api: mutation.API2D, content: "painted"}
	h := newHarness(t, 2, s)

	h.cycleAndSettle(t)
	if h.eventCount() != 1 {
		t.Fatalf("first sample: got %d events, want 1", h.eventCount())
	}

	// Identical content: the second accepted sample emits nothing.
	h.clock.CycleN(60) // well past 1/fps
	h.cycleAndSettle(t)
	if h.eventCount() != 1 {
		t.Errorf("unchanged resample: got %d events, want 1", h.eventCount())
	}
}

func TestInitialBlankSuppressed(t *testing.T) {
	s := &fakeSurface{w: 32, h: 32, api: mutation.API2D, content: ""}
	h := newHarness(t, 2, s)

	h.cycleAndSettle(t)
	if h.eventCount() != 0 {
		t.Fatalf("initial blank sample: got %d events, want 0", h.eventCount())
	}

	s.setContent("drawn")
	h.clock.CycleN(60)
	h.cycleAndSettle(t)
	if h.eventCount() != 1 {
		t.Fatalf("first non-blank sample: got %d events, want 1", h.eventCount())
	}

	ev := h.lastEvent()
	if len(ev.Commands) != 2 {
		t.Fatalf("commands: got %d, want 2", len(ev.Commands))
	}
	if ev.Commands[0].Property != "clearRect" || ev.Commands[1].Property != "drawImage" {
		t.Errorf("command shape: got %q,%q", ev.Commands[0].Property, ev.Commands[1].Property)
	}
}

func TestFrameSkipBelowInterval(t *testing.T) {
	s := &fakeSurface{w: 8, h: 8, api: mutation.API2D, content: "x"}
	h := newHarness(t, 10, s) // 100ms interval, 16ms cycles

	h.cycleAndSettle(t)
	first := h.enc.encodeCount()

	// Six more 16ms cycles land within the 100ms window: no new encodes.
	for i := 0; i < 6; i++ {
		h.cycleAndSettle(t)
	}
	if got := h.enc.encodeCount(); got != first {
		t.Errorf("encodes within interval: got %d, want %d", got, first)
	}

	// The next cycle crosses 100ms elapsed and samples again.
	h.cycleAndSettle(t)
	if got := h.enc.encodeCount(); got != first+1 {
		t.Errorf("encodes after interval: got %d, want %d", got, first+1)
	}
}

func TestEncodeFailureSkipsAndRecovers(t *testing.T) {
	s := &fakeSurface{w: 8, h: 8, api: mutation.API2D, content: "x"}
	h := newHarness(t, 2, s)

	h.enc.setFail(true)
	h.cycleAndSettle(t)
	if h.eventCount() != 0 {
		t.Fatalf("failed encode: got %d events, want 0", h.eventCount())
	}

	// In-flight mark was released: the next accepted cycle samples again.
	h.enc.setFail(false)
	h.clock.CycleN(60)
	h.cycleAndSettle(t)
	if h.eventCount() != 1 {
		t.Errorf("recovery sample: got %d events, want 1", h.eventCount())
	}
}

func TestZeroDimensionSkipped(t *testing.T) {
	s := &fakeSurface{w: 0, h: 64, api: mutation.API2D, content: "x"}
	h := newHarness(t, 2, s)

	h.cycleAndSettle(t)
	if h.eventCount() != 0 {
		t.Errorf("zero-width surface: got %d events, want 0", h.eventCount())
	}
	if h.enc.encodeCount() != 0 {
		t.Errorf("zero-width surface encoded %d times, want 0", h.enc.encodeCount())
	}
}

func TestNonPersistentGLClearedBeforeEncode(t *testing.T) {
	g := &glSurface{fakeSurface: fakeSurface{w: 16, h: 16, api: mutation.APIWebGL, content: "stale"}}
	h := newHarness(t, 2, g)

	h.cycleAndSettle(t)
	if g.cleared != 1 {
		t.Errorf("color buffer clears: got %d, want 1", g.cleared)
	}
	// The clear blanked the surface, and a first blank observation emits
	// nothing.
	if h.eventCount() != 0 {
		t.Errorf("events: got %d, want 0", h.eventCount())
	}
}

func TestPersistentGLNotCleared(t *testing.T) {
	g := &glSurface{fakeSurface: fakeSurface{w: 16, h: 16, api: mutation.APIWebGL, content: "kept"}, preserves: true}
	h := newHarness(t, 2, g)

	h.cycleAndSettle(t)
	if g.cleared != 0 {
		t.Errorf("color buffer clears: got %d, want 0", g.cleared)
	}
	if h.eventCount() != 1 {
		t.Errorf("events: got %d, want 1", h.eventCount())
	}
}

func TestSuppressedSampleEmitsAfterRelease(t *testing.T) {
	s := &fakeSurface{w: 8, h: 8, api: mutation.API2D, content: "x"}

	suppressed := true
	var mu sync.Mutex
	gate := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return suppressed
	}

	h := &harness{
		clock: frameclock.NewManual(time.Unix(0, 0), 16*time.Millisecond),
		reg:   surface.NewSequentialRegistry(),
		enc:   &fakeEncoder{},
	}
	h.reg.Register(s)
	h.engine = New(Config{
		FPS:      2,
		Registry: h.reg,
		Lister:   surface.ListerFunc(func(context.Context) []surface.Surface { return []surface.Surface{s} }),
		Encoder:  h.enc,
		Images:   dedupe.NewImageCache(),
		Blanks:   dedupe.NewBlankCache(),
		Emit: func(ev mutation.Event) {
			h.mu.Lock()
			h.events = append(h.events, ev)
			h.mu.Unlock()
		},
		Suppressed: gate,
	})
	h.engine.Start(h.clock)
	defer h.engine.Stop()

	h.cycleAndSettle(t)
	if h.eventCount() != 0 {
		t.Fatalf("suppressed sample: got %d events, want 0", h.eventCount())
	}

	mu.Lock()
	suppressed = false
	mu.Unlock()

	h.clock.CycleN(60)
	h.cycleAndSettle(t)
	if h.eventCount() != 1 {
		t.Errorf("post-release sample: got %d events, want 1", h.eventCount())
	}
}

func (f *fakeEncoder) encodeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.encodes
}
