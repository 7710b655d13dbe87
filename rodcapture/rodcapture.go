// Package rodcapture adapts a live Chromium page (driven through go-rod)
// to the canvaswatch collaborator contracts: it enumerates the page's
// canvas elements as surfaces, assigns them stable recording ids, and
// encodes their contents via HTMLCanvasElement.toDataURL.
//
// rodcapture lives at the edge of the engine: the coalescer and sampler
// never know a browser is involved.
package rodcapture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/canvaswatch/mutation"
	"github.com/hazyhaar/canvaswatch/surface"
)

// enumerateJS tags every canvas on the page with a stable numeric marker
// and reports current geometry and context kind. Tag assignment is
// idempotent: an already-tagged canvas keeps its marker across calls.
const enumerateJS = `() => {
	if (!window.__canvaswatch_next) window.__canvaswatch_next = 1;
	const out = [];
	for (const el of document.querySelectorAll('canvas')) {
		if (!el.dataset.canvaswatchId) {
			el.dataset.canvaswatchId = String(window.__canvaswatch_next++);
		}
		let kind = '2d', preserves = true;
		const gl2 = el.getContext('webgl2');
		const gl = gl2 || el.getContext('webgl');
		if (gl2) kind = 'webgl2';
		else if (gl) kind = 'webgl';
		if (gl) {
			const attrs = gl.getContextAttributes();
			preserves = !!(attrs && attrs.preserveDrawingBuffer);
		}
		out.push({
			tag: Number(el.dataset.canvaswatchId),
			width: el.width,
			height: el.height,
			kind: kind,
			preserves: preserves,
		});
	}
	return JSON.stringify(out);
}`

// encodeJS reads one tagged canvas back as a data URL.
const encodeJS = `(tag, type, quality) => {
	const el = document.querySelector('canvas[data-canvaswatch-id="' + tag + '"]');
	if (!el) return '';
	return el.toDataURL(type, quality);
}`

// clearJS clears the color buffer of a tagged WebGL canvas.
const clearJS = `(tag) => {
	const el = document.querySelector('canvas[data-canvaswatch-id="' + tag + '"]');
	if (!el) return;
	const gl = el.getContext('webgl2') || el.getContext('webgl');
	if (gl) gl.clear(gl.COLOR_BUFFER_BIT);
}`

// blankJS encodes an offscreen blank canvas of the given size.
const blankJS = `(w, h, type, quality) => {
	const el = document.createElement('canvas');
	el.width = w;
	el.height = h;
	return el.toDataURL(type, quality);
}`

// Canvas is one canvas element observed on the page. Handles are stable:
// the same DOM element always maps to the same *Canvas, so registry and
// buffer keys stay consistent across enumerations.
type Canvas struct {
	src *Source
	tag int

	mu        sync.Mutex
	width     int
	height    int
	api       mutation.API
	preserves bool
}

// Size implements surface.Surface with the geometry from the most recent
// enumeration.
func (c *Canvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// API implements surface.Surface.
func (c *Canvas) API() mutation.API {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.api
}

// PreservesDrawingBuffer implements surface.GLSurface.
func (c *Canvas) PreservesDrawingBuffer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == mutation.API2D {
		return true
	}
	return c.preserves
}

// ClearColorBuffer implements surface.GLSurface.
func (c *Canvas) ClearColorBuffer() {
	_, err := c.src.page.Eval(clearJS, c.tag)
	if err != nil {
		c.src.logger.Warn("rodcapture: clear color buffer failed", "tag", c.tag, "error", err)
	}
}

func (c *Canvas) update(width, height int, api mutation.API, preserves bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width, c.height = width, height
	c.api = api
	c.preserves = preserves
}

// Source drives one page. It implements surface.Lister and surface.Encoder
// and owns the registry that assigns recording ids.
type Source struct {
	page     *rod.Page
	registry *surface.SequentialRegistry
	logger   *slog.Logger

	mu       sync.Mutex
	canvases map[int]*Canvas // keyed by in-page tag
}

// NewSource creates a Source over an attached page.
func NewSource(page *rod.Page, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		page:     page,
		registry: surface.NewSequentialRegistry(),
		logger:   logger,
	}
}

// Registry returns the registry resolving this source's canvases.
func (s *Source) Registry() surface.Registry { return s.registry }

// Eligible implements surface.Lister: it re-enumerates the page's canvases,
// refreshing geometry and registering newcomers.
func (s *Source) Eligible(ctx context.Context) []surface.Surface {
	res, err := s.page.Context(ctx).Eval(enumerateJS)
	if err != nil {
		s.logger.Warn("rodcapture: enumerate canvases failed", "error", err)
		return nil
	}

	var entries []struct {
		Tag       int    `json:"tag"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Kind      string `json:"kind"`
		Preserves bool   `json:"preserves"`
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &entries); err != nil {
		s.logger.Warn("rodcapture: parse enumeration", "error", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]surface.Surface, 0, len(entries))
	for _, e := range entries {
		c, ok := s.canvases[e.Tag]
		if !ok {
			c = &Canvas{src: s, tag: e.Tag}
			if s.canvases == nil {
				s.canvases = make(map[int]*Canvas)
			}
			s.canvases[e.Tag] = c
			s.registry.Register(c)
		}
		c.update(e.Width, e.Height, mutation.API(e.Kind), e.Preserves)
		out = append(out, c)
	}
	return out
}

// Encode implements surface.Encoder via toDataURL on the live element.
func (s *Source) Encode(ctx context.Context, sf surface.Surface, opts surface.EncodeOptions) ([]byte, error) {
	c, ok := sf.(*Canvas)
	if !ok {
		return nil, fmt.Errorf("rodcapture: surface %T is not a page canvas", sf)
	}

	res, err := s.page.Context(ctx).Eval(encodeJS, c.tag, mimeType(opts), quality(opts))
	if err != nil {
		return nil, fmt.Errorf("rodcapture: toDataURL: %w", err)
	}
	return decodeDataURL(res.Value.Str())
}

// EncodeBlank implements surface.Encoder using an offscreen canvas, so the
// blank baseline goes through the exact same browser encoder as real reads.
func (s *Source) EncodeBlank(ctx context.Context, width, height int, opts surface.EncodeOptions) ([]byte, error) {
	res, err := s.page.Context(ctx).Eval(blankJS, width, height, mimeType(opts), quality(opts))
	if err != nil {
		return nil, fmt.Errorf("rodcapture: blank toDataURL: %w", err)
	}
	return decodeDataURL(res.Value.Str())
}

func mimeType(opts surface.EncodeOptions) string {
	if opts.Format == "jpeg" {
		return "image/jpeg"
	}
	return "image/png"
}

func quality(opts surface.EncodeOptions) float64 {
	if opts.Quality <= 0 || opts.Quality > 1 {
		return 0.92
	}
	return opts.Quality
}

// decodeDataURL extracts the raw bytes from a base64 data URL.
func decodeDataURL(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("rodcapture: empty encode result")
	}
	_, b64, ok := strings.Cut(s, ";base64,")
	if !ok {
		return nil, fmt.Errorf("rodcapture: unexpected data URL shape")
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("rodcapture: decode data URL: %w", err)
	}
	return data, nil
}
