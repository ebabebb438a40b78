// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package softcomp

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/hwc"
	"github.com/gogpu/hwc/overlay"
)

var (
	red   = color.RGBA{R: 0xFF, A: 0xFF}
	green = color.RGBA{G: 0xFF, A: 0xFF}
	blue  = color.RGBA{B: 0xFF, A: 0xFF}
	transparent = color.RGBA{}
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func imageLayer(img image.Image, dst image.Rectangle) hwc.Layer {
	b := img.Bounds()
	return hwc.Layer{
		Buffer: &hwc.Buffer{
			Width:  b.Dx(),
			Height: b.Dy(),
			Format: gputypes.TextureFormatRGBA8Unorm,
			Image:  img,
		},
		SourceCrop:   b,
		DisplayFrame: dst,
		Blending:     gputypes.CompositeAlphaModeOpaque,
		PlaneAlpha:   0xFF,
	}
}

// fixedCompositions reports a fixed composition per layer.
type fixedCompositions []hwc.Composition

func (f fixedCompositions) Composition(i int) hwc.Composition { return f[i] }

func TestRotate(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(0, 0, red)
	src.SetRGBA(1, 0, green)

	tests := []struct {
		name string
		t    overlay.Transform
		size image.Point
		want []color.RGBA // row-major
	}{
		{"none", overlay.TransformNone, image.Pt(2, 1), []color.RGBA{red, green}},
		{"flipH", overlay.TransformFlipH, image.Pt(2, 1), []color.RGBA{green, red}},
		{"flipV", overlay.TransformFlipV, image.Pt(2, 1), []color.RGBA{red, green}},
		{"rot90", overlay.TransformRot90, image.Pt(1, 2), []color.RGBA{red, green}},
		{"rot180", overlay.TransformRot180, image.Pt(2, 1), []color.RGBA{green, red}},
		{"rot270", overlay.TransformRot270, image.Pt(1, 2), []color.RGBA{green, red}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Rotate(src, src.Bounds(), tt.t)
			if got := out.Bounds().Size(); got != tt.size {
				t.Fatalf("Rotate() size = %v, want %v", got, tt.size)
			}
			i := 0
			for y := 0; y < tt.size.Y; y++ {
				for x := 0; x < tt.size.X; x++ {
					if got := out.RGBAAt(x, y); got != tt.want[i] {
						t.Errorf("pixel (%d,%d) = %v, want %v", x, y, got, tt.want[i])
					}
					i++
				}
			}
		})
	}
}

func TestRotateCrop(t *testing.T) {
	src := solid(4, 4, blue)
	src.SetRGBA(2, 1, red)

	out := Rotate(src, image.Rect(2, 1, 4, 2), overlay.TransformRot90)
	if got := out.Bounds().Size(); got != image.Pt(1, 2) {
		t.Fatalf("Rotate() size = %v, want (1,2)", got)
	}
	if got := out.RGBAAt(0, 0); got != red {
		t.Errorf("pixel (0,0) = %v, want %v", got, red)
	}
	if got := out.RGBAAt(0, 1); got != blue {
		t.Errorf("pixel (0,1) = %v, want %v", got, blue)
	}
}

func TestRendererRender(t *testing.T) {
	r := NewRenderer(8, 8, WithInterpolator(draw.NearestNeighbor))
	list := &hwc.LayerList{
		Layers: []hwc.Layer{
			imageLayer(solid(8, 8, blue), image.Rect(0, 0, 8, 8)),
			imageLayer(solid(2, 2, red), image.Rect(0, 0, 4, 4)),
		},
		Target: r.Target(900),
	}

	drew, err := r.Render(list, fixedCompositions{hwc.CompositionOverlay, hwc.CompositionFramebuffer})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !drew {
		t.Fatal("Render() = false, want true")
	}
	img := r.Image()
	if got := img.RGBAAt(3, 3); got != red {
		t.Errorf("scaled layer pixel = %v, want %v", got, red)
	}
	if got := img.RGBAAt(6, 6); got != transparent {
		t.Errorf("overlay region pixel = %v, want transparent", got)
	}
}

func TestRendererCachedFrame(t *testing.T) {
	r := NewRenderer(4, 4)
	r.Image().SetRGBA(1, 1, green)
	list := &hwc.LayerList{Layers: []hwc.Layer{imageLayer(solid(4, 4, red), image.Rect(0, 0, 4, 4))}}

	drew, err := r.Render(list, fixedCompositions{hwc.CompositionCached})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if drew {
		t.Error("Render() of a cached frame = true, want false")
	}
	if got := r.Image().RGBAAt(1, 1); got != green {
		t.Errorf("cached pixel = %v, want %v", got, green)
	}
}

func TestRendererPlaneAlpha(t *testing.T) {
	r := NewRenderer(2, 2)
	l := imageLayer(solid(2, 2, red), image.Rect(0, 0, 2, 2))
	l.PlaneAlpha = 0x80
	list := &hwc.LayerList{Layers: []hwc.Layer{l}}

	if _, err := r.Render(list, fixedCompositions{hwc.CompositionFramebuffer}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := color.RGBA{R: 0x80, A: 0x80}
	if got := r.Image().RGBAAt(0, 0); got != want {
		t.Errorf("pixel = %v, want %v", got, want)
	}
}

func TestRendererNoImage(t *testing.T) {
	r := NewRenderer(2, 2)
	l := imageLayer(solid(2, 2, red), image.Rect(0, 0, 2, 2))
	l.Buffer.Image = nil
	list := &hwc.LayerList{Layers: []hwc.Layer{l}}

	_, err := r.Render(list, fixedCompositions{hwc.CompositionFramebuffer})
	if !errors.Is(err, ErrNoImage) {
		t.Errorf("Render() error = %v, want ErrNoImage", err)
	}
}

func TestRendererTarget(t *testing.T) {
	r := NewRenderer(16, 8)
	target := r.Target(42)
	if target.Buffer.FD != 42 {
		t.Errorf("FD = %d, want 42", target.Buffer.FD)
	}
	if target.Buffer.Image != r.Image() {
		t.Error("target image does not share the framebuffer")
	}
	if target.SourceCrop != image.Rect(0, 0, 16, 8) || target.DisplayFrame != target.SourceCrop {
		t.Errorf("target geometry = %v -> %v", target.SourceCrop, target.DisplayFrame)
	}
	if target.Buffer.Size != 16*8*4 {
		t.Errorf("Size = %d, want %d", target.Buffer.Size, 16*8*4)
	}
}

func TestMixer(t *testing.T) {
	images := map[int]image.Image{
		1: solid(8, 8, blue),
		2: solid(4, 4, red),
	}
	stages := []overlay.Stage{
		{Pipe: 0, FD: 1, Queued: true, Config: overlay.PipeConfig{
			Crop: image.Rect(0, 0, 8, 8), Position: image.Rect(0, 0, 8, 8), PlaneAlpha: 0xFF,
			Blending: gputypes.CompositeAlphaModeOpaque,
		}},
		{Pipe: 1, FD: 2, Queued: true, Config: overlay.PipeConfig{
			Crop: image.Rect(0, 0, 4, 4), Position: image.Rect(4, 4, 8, 8), ZOrder: 1, PlaneAlpha: 0xFF,
			Blending: gputypes.CompositeAlphaModeOpaque,
		}},
		{Pipe: 2, FD: 3, Queued: false, Config: overlay.PipeConfig{
			Crop: image.Rect(0, 0, 8, 8), Position: image.Rect(0, 0, 8, 8), ZOrder: 2, PlaneAlpha: 0xFF,
		}},
	}

	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	m := NewMixer()
	if err := m.Mix(dst, stages, func(fd int) image.Image { return images[fd] }); err != nil {
		t.Fatalf("Mix() error = %v", err)
	}

	tests := []struct {
		p    image.Point
		want color.RGBA
	}{
		{image.Pt(1, 1), blue},
		{image.Pt(5, 5), red},
		{image.Pt(9, 9), color.RGBA{A: 0xFF}},
	}
	for _, tt := range tests {
		if got := dst.RGBAAt(tt.p.X, tt.p.Y); got != tt.want {
			t.Errorf("pixel %v = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestMixerBaseAndUnknown(t *testing.T) {
	m := NewMixer()
	m.Border = green
	dst := solid(4, 4, red)

	base := []overlay.Stage{{FD: -1, Queued: true, Config: overlay.PipeConfig{Position: image.Rect(0, 0, 2, 2)}}}
	if err := m.Mix(dst, base, func(int) image.Image { return nil }); err != nil {
		t.Fatalf("Mix() error = %v", err)
	}
	if got := dst.RGBAAt(0, 0); got != green {
		t.Errorf("base pixel = %v, want %v", got, green)
	}

	unknown := []overlay.Stage{{Pipe: 3, FD: 7, Queued: true}}
	err := m.Mix(dst, unknown, func(int) image.Image { return nil })
	if !errors.Is(err, ErrUnknownBuffer) {
		t.Errorf("Mix() error = %v, want ErrUnknownBuffer", err)
	}
}

func TestComposerRoundTrip(t *testing.T) {
	const w, h = 64, 64
	pool := overlay.NewSimPool(2, 2, 1)
	c, err := hwc.NewComposer(hwc.DisplayAttributes{XRes: w, YRes: h, Stride: w * 4}, pool, hwc.WithIdleTimeout(-1))
	if err != nil {
		t.Fatalf("NewComposer() error = %v", err)
	}
	t.Cleanup(c.Close)

	r := NewRenderer(w, h)
	bg := imageLayer(solid(w, h, blue), image.Rect(0, 0, w, h))
	bg.Buffer.FD = 10
	bar := imageLayer(solid(w, 16, red), image.Rect(0, 0, w, 16))
	bar.Buffer.FD = 11
	list := &hwc.LayerList{Layers: []hwc.Layer{bg, bar}, Target: r.Target(900)}

	if err := c.Prepare(list); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, err := r.Render(list, c); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if err := c.Draw(list); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}

	images := map[int]image.Image{10: bg.Buffer.Image, 11: bar.Buffer.Image, 900: r.Image()}
	screen := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := NewMixer().Mix(screen, pool.Stages(overlay.DisplayPrimary), func(fd int) image.Image { return images[fd] }); err != nil {
		t.Fatalf("Mix() error = %v", err)
	}
	if got := screen.RGBAAt(10, 8); got != red {
		t.Errorf("bar pixel = %v, want %v", got, red)
	}
	if got := screen.RGBAAt(10, 40); got != blue {
		t.Errorf("background pixel = %v, want %v", got, blue)
	}
}

func TestFallbackRendersEveryLayer(t *testing.T) {
	const w, h = 32, 32
	c, err := hwc.NewComposer(hwc.DisplayAttributes{XRes: w, YRes: h, Stride: w * 4},
		overlay.NewSimPool(0, 0, 0), hwc.WithIdleTimeout(-1))
	if err != nil {
		t.Fatalf("NewComposer() error = %v", err)
	}
	t.Cleanup(c.Close)

	r := NewRenderer(w, h)
	list := &hwc.LayerList{
		Layers: []hwc.Layer{
			imageLayer(solid(w, h, blue), image.Rect(0, 0, w, h)),
			imageLayer(solid(w, 8, red), image.Rect(0, 0, w, 8)),
		},
		Target: r.Target(900),
	}
	if err := c.Prepare(list); !errors.Is(err, hwc.ErrFallback) {
		t.Fatalf("Prepare() error = %v, want ErrFallback", err)
	}
	drew, err := r.Render(list, c)
	if err != nil || !drew {
		t.Fatalf("Render() = %v, %v, want true, nil", drew, err)
	}
	if got := r.Image().RGBAAt(4, 4); got != red {
		t.Errorf("pixel (4,4) = %v, want %v", got, red)
	}
	if got := r.Image().RGBAAt(4, 20); got != blue {
		t.Errorf("pixel (4,20) = %v, want %v", got, blue)
	}
}
