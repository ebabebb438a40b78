package main

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/hwc"
	"github.com/gogpu/hwc/overlay"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
		ok   bool
	}{
		{"#ff0000", color.RGBA{R: 0xFF, A: 0xFF}, true},
		{"00ff00", color.RGBA{G: 0xFF, A: 0xFF}, true},
		{"#0000ff00", color.RGBA{}, true},
		{"#ffffff80", color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0x80}, true},
		{"", color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}, true},
		{"#fff", color.RGBA{}, false},
		{"#gg0000", color.RGBA{}, false},
	}
	for _, tt := range tests {
		got, err := parseColor(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("parseColor(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("parseColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTransform(t *testing.T) {
	tests := []struct {
		in   string
		want overlay.Transform
	}{
		{"", overlay.TransformNone},
		{"Rot90", overlay.TransformRot90},
		{"rot180", overlay.TransformRot180},
		{"rot270", overlay.TransformRot270},
		{"flipH", overlay.TransformFlipH},
	}
	for _, tt := range tests {
		got, err := parseTransform(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseTransform(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := parseTransform("skew"); err == nil {
		t.Error("parseTransform(skew) error = nil, want error")
	}
}

func TestResolve(t *testing.T) {
	sc := &Scenario{Pool: PoolSpec{VG: 1, RGB: 1, DMA: 1}}
	sc.Resolve(Flags{Width: 0, Height: 600, VG: -1, RGB: 3, DMA: 0, Rotators: -1})

	if sc.Display.Width != 480 || sc.Display.Height != 600 {
		t.Errorf("display = %dx%d, want 480x600", sc.Display.Width, sc.Display.Height)
	}
	if sc.Pool != (PoolSpec{VG: 1, RGB: 3, DMA: 0}) {
		t.Errorf("pool = %+v", sc.Pool)
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.json")
	data := `{
		"display": {"width": 320, "height": 240, "external": true},
		"pool": {"vg": 1, "rgb": 1},
		"hwc": {"capabilities": {"generation": "MDSS5"}},
		"frames": [{"layers": [{"dst": [0, 0, 320, 240]}]}]
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario() error = %v", err)
	}
	if got := sc.Attributes().ID; got != overlay.DisplayExternal {
		t.Errorf("display = %v, want %v", got, overlay.DisplayExternal)
	}
	cfg, err := sc.Config()
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}
	if cfg.Capabilities.Generation != hwc.GenerationMDSS5 {
		t.Errorf("Generation = %v, want %v", cfg.Capabilities.Generation, hwc.GenerationMDSS5)
	}
}

func TestBufferStoreSharesNamedBuffers(t *testing.T) {
	s := newBufferStore(10)
	f := &FrameSpec{Layers: []LayerSpec{
		{Buffer: "bg", Dst: []int{0, 0, 16, 16}},
		{Dst: []int{0, 0, 8, 8}, Video: true, Transform: "rot90", Size: []int{8, 4}},
	}}
	a, err := s.layerList(f, 0, nil)
	if err != nil {
		t.Fatalf("layerList() error = %v", err)
	}
	b, err := s.layerList(f, 1, nil)
	if err != nil {
		t.Fatalf("layerList() error = %v", err)
	}
	if a.Layers[0].Buffer != b.Layers[0].Buffer {
		t.Error("named buffer not shared across frames")
	}
	if a.Layers[1].Buffer == b.Layers[1].Buffer {
		t.Error("unnamed buffer shared across frames")
	}
	v := a.Layers[1]
	if !v.IsVideo() || v.SourceCrop != image.Rect(0, 0, 8, 4) || v.Transform != overlay.TransformRot90 {
		t.Errorf("video layer = %+v", v)
	}
	if _, ok := s.lookup(v.Buffer.FD).(*image.YCbCr); !ok {
		t.Errorf("video buffer image = %T, want *image.YCbCr", s.lookup(v.Buffer.FD))
	}
}

func TestLayerErrors(t *testing.T) {
	tests := []struct {
		name string
		spec LayerSpec
	}{
		{"no dst", LayerSpec{}},
		{"short dst", LayerSpec{Dst: []int{0, 0, 4}}},
		{"bad size", LayerSpec{Dst: []int{0, 0, 4, 4}, Size: []int{4}}},
		{"bad blending", LayerSpec{Dst: []int{0, 0, 4, 4}, Blending: "add"}},
		{"bad color", LayerSpec{Dst: []int{0, 0, 4, 4}, Color: "red"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newBufferStore(0)
			if _, err := s.layer(&tt.spec, 0, 0); err == nil {
				t.Error("layer() error = nil, want error")
			}
		})
	}
}

func TestDefaultScenario(t *testing.T) {
	sc := defaultScenario()
	sc.Resolve(Flags{VG: -1, RGB: -1, DMA: -1, Rotators: -1})

	var dump bytes.Buffer
	sim, err := newSimulator(sc, hwc.DefaultConfig(), &dump, nil)
	if err != nil {
		t.Fatalf("newSimulator() error = %v", err)
	}
	t.Cleanup(sim.close)

	dir := t.TempDir()
	for i := range sc.Frames {
		screen, err := sim.step(i)
		if err != nil {
			t.Fatalf("step(%d) error = %v", i, err)
		}
		if got := screen.Bounds(); got != image.Rect(0, 0, 480, 800) {
			t.Errorf("frame %d bounds = %v", i, got)
		}
		if err := saveImage(framePath(dir, "png", i), "png", screen); err != nil {
			t.Fatalf("saveImage() error = %v", err)
		}
	}
	if got := strings.Count(dump.String(), "HWC map for display"); got != len(sc.Frames) {
		t.Errorf("dump has %d frame maps, want %d", got, len(sc.Frames))
	}

	// The status bar is opaque black in every frame.
	last, _ := sim.step(0)
	if got := last.RGBAAt(470, 30); got.R > 0x10 || got.G > 0x10 || got.B > 0x10 {
		t.Errorf("status bar pixel = %v, want black", got)
	}
}

func TestSaveWebP(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(1, 1, color.RGBA{R: 0xFF, A: 0xFF})
	dir := t.TempDir()

	if err := saveImage(framePath(dir, "webp", 0), "webp", img); err != nil {
		t.Fatalf("saveImage(webp) error = %v", err)
	}
	if err := saveAnimation(filepath.Join(dir, "frames.webp"), []image.Image{img, img}); err != nil {
		t.Fatalf("saveAnimation() error = %v", err)
	}
	for _, name := range []string{"frame-000.webp", "frames.webp"} {
		st, err := os.Stat(filepath.Join(dir, name))
		if err != nil || st.Size() == 0 {
			t.Errorf("%s: %v", name, err)
		}
	}
	if err := saveImage(framePath(dir, "bmp", 1), "bmp", img); err == nil {
		t.Error("saveImage(bmp) error = nil, want error")
	}
}
