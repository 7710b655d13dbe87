// Package surface defines the contracts between the capture engine and its
// host environment: surface handles, the registry that assigns stable
// recording ids, the eligibility lister, and the bitmap encoder.
package surface

import (
	"context"

	"github.com/hazyhaar/canvaswatch/mutation"
)

// Surface is an opaque per-surface handle. It identifies one drawable area
// for the lifetime of the capture session. Handles are compared by identity,
// so implementations must be pointer-shaped or otherwise comparable.
type Surface interface {
	// Size returns the current drawing dimensions in pixels.
	Size() (width, height int)
	// API returns the drawing API family active on this surface.
	API() mutation.API
}

// GLSurface is an optional extension for hardware-accelerated 3D surfaces.
// When the drawing buffer is not preserved between frames, reading pixels may
// return stale or undefined content; the sampler forces a color-buffer clear
// immediately before encoding such surfaces.
type GLSurface interface {
	Surface
	PreservesDrawingBuffer() bool
	ClearColorBuffer()
}

// Registry resolves a surface handle to its stable recording id. The id is
// the emission key used downstream. ok is false while the surface has not
// been registered yet.
type Registry interface {
	ResolveID(s Surface) (id int64, ok bool)
}

// Lister enumerates the surfaces currently eligible for sampling. Applied
// once per sampling cycle; the blocking policy behind it is the host's.
type Lister interface {
	Eligible(ctx context.Context) []Surface
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc func(ctx context.Context) []Surface

func (f ListerFunc) Eligible(ctx context.Context) []Surface { return f(ctx) }

// EncodeOptions selects the image representation produced by an Encoder.
type EncodeOptions struct {
	Format  string  // "png" | "jpeg"
	Quality float64 // 0..1, jpeg only
	MaxDim  int     // downscale so neither dimension exceeds this; 0 = no limit
}

// Encoder turns a surface's current pixel contents into a portable encoded
// image. Encode is the engine's sole asynchronous boundary: it may suspend,
// it may fail, it must not panic. EncodeBlank produces the deterministic
// fully blank image for a size, used to seed the blank-fingerprint cache.
type Encoder interface {
	Encode(ctx context.Context, s Surface, opts EncodeOptions) ([]byte, error)
	EncodeBlank(ctx context.Context, width, height int, opts EncodeOptions) ([]byte, error)
}
