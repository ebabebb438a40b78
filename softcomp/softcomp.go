// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package softcomp is a software framebuffer path for the hwc composition
// planner.
//
// A [Renderer] draws the layers a [hwc.Composer] left to the framebuffer
// into a CPU-backed *image.RGBA, which then serves as the framebuffer target
// buffer. A [Mixer] plays the role of the display mixer: it blends the
// committed overlay stages of a pipe pool in zorder, so a plan can be
// inspected as a picture.
//
// Example:
//
//	r := softcomp.NewRenderer(width, height)
//	list.Target = r.Target(fbFD)
//	if err := composer.Prepare(list); err == nil {
//		_, _ = r.Render(list, composer)
//	}
package softcomp

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/hwc"
)

// Errors returned by the software path.
var (
	// ErrNoImage is returned when a layer to be drawn has no CPU contents.
	ErrNoImage = errors.New("softcomp: layer has no image")

	// ErrUnknownBuffer is returned by the mixer for a queued fd it cannot
	// resolve.
	ErrUnknownBuffer = errors.New("softcomp: unknown buffer")
)

// Compositions reports how each layer of the last prepared frame reaches the
// display. *hwc.Composer implements it.
type Compositions interface {
	Composition(i int) hwc.Composition
}

// Option configures a [Renderer] or a [Mixer].
type Option func(*options)

type options struct {
	interp draw.Interpolator
}

// WithInterpolator sets the scaler used for layers whose crop and
// destination differ. The default is draw.ApproxBiLinear.
func WithInterpolator(q draw.Interpolator) Option {
	return func(o *options) {
		if q != nil {
			o.interp = q
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{interp: draw.ApproxBiLinear}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Renderer draws framebuffer-composed layers into a CPU framebuffer.
type Renderer struct {
	img    *image.RGBA
	interp draw.Interpolator
}

// NewRenderer creates a renderer with a transparent width x height
// framebuffer.
func NewRenderer(width, height int, opts ...Option) *Renderer {
	o := buildOptions(opts)
	return &Renderer{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		interp: o.interp,
	}
}

// Image returns the framebuffer. The returned image shares memory with the
// renderer.
func (r *Renderer) Image() *image.RGBA {
	return r.img
}

// Target returns a full-screen framebuffer target layer backed by the
// renderer's image and identified by fd.
func (r *Renderer) Target(fd int) *hwc.Layer {
	b := r.img.Bounds()
	return &hwc.Layer{
		Buffer: &hwc.Buffer{
			FD:     fd,
			Width:  b.Dx(),
			Height: b.Dy(),
			Format: gputypes.TextureFormatRGBA8Unorm,
			Size:   len(r.img.Pix),
			Image:  r.img,
		},
		SourceCrop:   b,
		DisplayFrame: b,
		Blending:     gputypes.CompositeAlphaModePremultiplied,
		PlaneAlpha:   0xFF,
	}
}

// Render redraws the framebuffer for list when at least one layer is
// composed by the framebuffer path this frame. Cached and overlay layers
// leave the framebuffer untouched; the region under overlay layers stays
// transparent. Render reports whether it drew.
func (r *Renderer) Render(list *hwc.LayerList, comp Compositions) (bool, error) {
	redraw := false
	for i := range list.Layers {
		if comp.Composition(i) == hwc.CompositionFramebuffer {
			redraw = true
			break
		}
	}
	if !redraw {
		return false, nil
	}

	clear(r.img.Pix)
	for i := range list.Layers {
		if comp.Composition(i) != hwc.CompositionFramebuffer {
			continue
		}
		if err := r.drawLayer(&list.Layers[i]); err != nil {
			return true, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return true, nil
}

func (r *Renderer) drawLayer(l *hwc.Layer) error {
	if l.Buffer == nil || l.Buffer.Image == nil {
		return ErrNoImage
	}
	op := draw.Over
	if l.Blending == gputypes.CompositeAlphaModeOpaque && l.PlaneAlpha == 0xFF {
		op = draw.Src
	}
	drawImage(r.img, l.DisplayFrame, l.Buffer.Image, l.SourceCrop, l.Transform, l.PlaneAlpha, op, r.interp)
	return nil
}
