// Package encoder provides an in-process bitmap encoder for surfaces that
// expose their pixel contents as an image.Image. Hosts embedding the engine
// directly (rather than through a browser) plug this in as the
// surface.Encoder collaborator.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/hazyhaar/canvaswatch/surface"
)

// PixelSurface is a surface whose current contents can be read as an image.
type PixelSurface interface {
	surface.Surface
	Image() image.Image
}

// Bitmap encodes PixelSurface contents to PNG or JPEG, optionally
// downscaling so neither dimension exceeds EncodeOptions.MaxDim.
type Bitmap struct{}

// New creates a Bitmap encoder.
func New() *Bitmap { return &Bitmap{} }

// Encode implements surface.Encoder.
func (b *Bitmap) Encode(ctx context.Context, s surface.Surface, opts surface.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ps, ok := s.(PixelSurface)
	if !ok {
		return nil, fmt.Errorf("encoder: surface %T does not expose pixels", s)
	}

	img := ps.Image()
	if img == nil {
		return nil, fmt.Errorf("encoder: surface returned no image")
	}

	img = downscale(img, opts.MaxDim)
	return encodeImage(img, opts)
}

// EncodeBlank implements surface.Encoder: a fully transparent image of the
// exact requested size, deterministic per size.
func (b *Bitmap) EncodeBlank(ctx context.Context, width, height int, opts surface.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blank := image.NewRGBA(image.Rect(0, 0, width, height))
	return encodeImage(downscale(blank, opts.MaxDim), opts)
}

// downscale shrinks img so neither dimension exceeds maxDim, preserving
// aspect ratio. maxDim <= 0 means unbounded.
func downscale(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 {
		return img
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

func encodeImage(img image.Image, opts surface.EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	switch opts.Format {
	case "", "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoder: png: %w", err)
		}
	case "jpeg":
		quality := int(opts.Quality * 100)
		if quality <= 0 || quality > 100 {
			quality = 92
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encoder: jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("encoder: unknown format %q", opts.Format)
	}
	return buf.Bytes(), nil
}
