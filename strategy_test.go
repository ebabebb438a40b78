package hwc

import (
	"errors"
	"image"
	"math/rand"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/hwc/overlay"
)

// splitOf renders the framebuffer set of f as a pattern, F for framebuffer
// and H for hardware.
func splitOf(f *FrameSnapshot) string {
	b := make([]byte, f.LayerCount)
	for i := range f.LayerCount {
		b[i] = 'H'
		if f.fbComposed[i] {
			b[i] = 'F'
		}
	}
	return string(b)
}

// setSplit loads a pattern produced by splitOf into f.
func setSplit(f *FrameSnapshot, pattern string) {
	f.reset(len(pattern))
	for i := range len(pattern) {
		f.setFramebuffer(i, pattern[i] == 'F')
	}
}

func TestBatchLayers(t *testing.T) {
	tests := []struct {
		name        string
		split       string
		start, cnt  int
		want        string
		wantFBZ     int
		wantHWCount int
	}{
		{"all hardware", "HHH", -1, 0, "HHH", -1, 3},
		{"all framebuffer", "FFF", -1, 0, "FFF", 0, 0},
		{"longest run wins", "FHFF", -1, 0, "HHFF", 2, 2},
		{"lowest run on tie", "FHFH", -1, 0, "FHHH", 0, 3},
		{"run at bottom", "FFHF", -1, 0, "FFHH", 0, 2},
		{"seed beats longer run", "FFHFH", 3, 1, "HHHFH", 3, 4},
		{"seed grows downward", "FFFHF", 1, 2, "FFFHH", 0, 2},
		{"seed grows both ways", "HFFFH", 2, 1, "HFFFH", 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestComposer(t, primaryAttrs(), newTestPool())
			setSplit(&c.frame, tt.split)
			c.planner.batchLayers(tt.start, tt.cnt)

			if got := splitOf(&c.frame); got != tt.want {
				t.Errorf("batchLayers(%q) = %q, want %q", tt.split, got, tt.want)
			}
			if c.frame.FBZ != tt.wantFBZ {
				t.Errorf("FBZ = %d, want %d", c.frame.FBZ, tt.wantFBZ)
			}
			if c.frame.HWCount != tt.wantHWCount {
				t.Errorf("HWCount = %d, want %d", c.frame.HWCount, tt.wantHWCount)
			}
			if c.frame.HWCount+c.frame.FBCount != c.frame.LayerCount {
				t.Errorf("HWCount + FBCount = %d, want %d", c.frame.HWCount+c.frame.FBCount, c.frame.LayerCount)
			}
		})
	}
}

func TestUpdateNotSupported(t *testing.T) {
	c := newTestComposer(t, primaryAttrs(), newTestPool())

	layers := make([]Layer, 5)
	for i := range layers {
		layers[i] = opaqueLayer(image.Rect(0, i*100, testW, i*100+100))
	}
	layers[1].Flags = LayerSkip
	layers[3].Flags = LayerSkip
	list := newList(layers...)

	c.stats.update(list)
	c.frame.reset(len(layers))
	for i := range layers {
		c.frame.setFramebuffer(i, false)
	}
	start, count := c.planner.updateNotSupported(list)
	if start != 1 || count != 3 {
		t.Errorf("updateNotSupported() = (%d, %d), want (1, 3)", start, count)
	}
	if got := splitOf(&c.frame); got != "HFFFH" {
		t.Errorf("split = %q, want %q", got, "HFFFH")
	}

	// No unsupported layer: the seed is empty.
	list = newList(opaqueLayer(fullScreen()))
	c.stats.update(list)
	c.frame.reset(1)
	c.frame.setFramebuffer(0, false)
	if _, count := c.planner.updateNotSupported(list); count != 0 {
		t.Errorf("updateNotSupported() count = %d, want 0", count)
	}
}

func TestUpdateYUVWindow(t *testing.T) {
	// Three pipes, one kept for the framebuffer: only video in the bottom two
	// or top two positions may leave the framebuffer.
	pool := overlay.NewSimPool(2, 1, 0)
	c := newTestComposer(t, primaryAttrs(), pool)

	layers := make([]Layer, 5)
	for i := range layers {
		layers[i] = videoLayer(image.Rect(0, i*100, testW, i*100+100))
	}
	list := newList(layers...)
	c.stats.update(list)
	c.frame.reset(len(layers))
	c.alloc.beginFrame(false)
	c.planner.updateYUV(list)

	if got := splitOf(&c.frame); got != "HHFHH" {
		t.Errorf("updateYUV() split = %q, want %q", got, "HHFHH")
	}
}

func TestIsValidDimension(t *testing.T) {
	tests := []struct {
		name  string
		gen   Generation
		crop  image.Rectangle
		dst   image.Rectangle
		video bool
		want  bool
	}{
		{"unscaled", GenerationMDP41, image.Rect(0, 0, 100, 100), image.Rect(0, 0, 100, 100), false, true},
		{"crop too narrow", GenerationMDP41, image.Rect(0, 0, 4, 100), image.Rect(0, 0, 100, 100), false, false},
		{"crop at minimum", GenerationMDP41, image.Rect(0, 0, 5, 100), image.Rect(0, 0, 5, 100), false, true},
		{"rgb downscale unsupported", GenerationMDP41, image.Rect(0, 0, 200, 200), image.Rect(0, 0, 100, 100), false, false},
		{"video downscale", GenerationMDP41, image.Rect(0, 0, 200, 200), image.Rect(0, 0, 100, 100), true, true},
		{"rgb downscale supported", GenerationMDP42, image.Rect(0, 0, 200, 200), image.Rect(0, 0, 100, 100), false, true},
		{"downscale beyond limit", GenerationMDP42, image.Rect(0, 0, 450, 100), image.Rect(0, 0, 50, 100), false, false},
		{"downscale at limit", GenerationMDP42, image.Rect(0, 0, 400, 100), image.Rect(0, 0, 50, 100), false, true},
		{"upscale beyond limit", GenerationMDP41, image.Rect(0, 0, 10, 10), image.Rect(0, 0, 100, 100), false, false},
		{"empty destination", GenerationMDP41, image.Rect(0, 0, 10, 10), image.Rect(10, 10, 10, 10), false, false},
		{"clipped off screen", GenerationMDP41, image.Rect(0, 0, 100, 100), image.Rect(-90, 0, 10, 100), false, true},
		{"clipped below minimum crop", GenerationMDP41, image.Rect(0, 0, 100, 100), image.Rect(-97, 0, 3, 100), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestComposer(t, primaryAttrs(), newTestPool(), WithCapabilities(CapabilitiesFor(tt.gen)))
			l := opaqueLayer(tt.dst)
			if tt.video {
				l = videoLayer(tt.dst)
			}
			l.SourceCrop = tt.crop
			if got := c.planner.isValidDimension(&l); got != tt.want {
				t.Errorf("isValidDimension() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsEligible(t *testing.T) {
	alphaAbove := func(dst image.Rectangle) Layer {
		l := opaqueLayer(dst)
		l.Blending = gputypes.CompositeAlphaModePremultiplied
		return l
	}
	tests := []struct {
		name   string
		gen    Generation
		layers []Layer
		idx    int
		want   bool
	}{
		{"opaque ui", GenerationMDP41, []Layer{opaqueLayer(fullScreen())}, 0, true},
		{"plane alpha on mdp", GenerationMDP41, []Layer{func() Layer {
			l := opaqueLayer(fullScreen())
			l.PlaneAlpha = 0x80
			return l
		}()}, 0, true},
		{"plane alpha on mdss", GenerationMDSS5, []Layer{func() Layer {
			l := opaqueLayer(fullScreen())
			l.PlaneAlpha = 0x80
			return l
		}()}, 0, false},
		{"rotated ui without rotated blits", GenerationMDSS5, []Layer{func() Layer {
			l := opaqueLayer(image.Rect(0, 0, 100, 100))
			l.Transform = overlay.TransformRot90
			return l
		}()}, 0, false},
		{"video under contained alpha", GenerationMDP41, []Layer{
			videoLayer(image.Rect(0, 0, testW, 400)),
			alphaAbove(image.Rect(10, 10, 100, 100)),
		}, 0, true},
		{"video under straddling alpha", GenerationMDP41, []Layer{
			videoLayer(image.Rect(0, 0, testW, 400)),
			alphaAbove(image.Rect(0, 300, testW, 500)),
		}, 0, false},
		{"video under straddling opaque", GenerationMDP41, []Layer{
			videoLayer(image.Rect(0, 0, testW, 400)),
			opaqueLayer(image.Rect(0, 300, testW, 500)),
		}, 0, true},
		{"alpha downscale unsupported", GenerationMDP42, []Layer{func() Layer {
			l := alphaAbove(image.Rect(0, 0, 100, 100))
			l.SourceCrop = image.Rect(0, 0, 200, 200)
			return l
		}()}, 0, false},
		{"alpha downscale supported", GenerationMDSS5, []Layer{func() Layer {
			l := alphaAbove(image.Rect(0, 0, 100, 100))
			l.SourceCrop = image.Rect(0, 0, 200, 200)
			return l
		}()}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestComposer(t, primaryAttrs(), newTestPool(), WithCapabilities(CapabilitiesFor(tt.gen)))
			if got := c.planner.isEligible(newList(tt.layers...), tt.idx); got != tt.want {
				t.Errorf("isEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrepareRespectsMaxPipesPerMixer(t *testing.T) {
	c := newTestComposer(t, primaryAttrs(), overlay.NewSimPool(4, 4, 0), WithMaxPipesPerMixer(2))

	// Three changed layers never fit two stages, with or without a batch.
	err := c.Prepare(newList(threeLayers()...))
	if !errors.Is(err, ErrNoStrategy) {
		t.Errorf("Prepare() error = %v, want ErrNoStrategy", err)
	}

	// Two layers fit fully.
	c2 := newTestComposer(t, primaryAttrs(), overlay.NewSimPool(4, 4, 0), WithMaxPipesPerMixer(2))
	if err := c2.Prepare(newList(threeLayers()[:2]...)); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if got := c2.Strategy(); got != StrategyFull {
		t.Errorf("Strategy() = %v, want %v", got, StrategyFull)
	}
}

func TestPrepareIdleFallback(t *testing.T) {
	c := newTestComposer(t, primaryAttrs(), newTestPool())
	list := uiOverVideo(primaryAttrs())

	c.RequestIdleFallback()
	if err := c.Prepare(list); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if got := c.Strategy(); got != StrategyVideoOnly {
		t.Errorf("Strategy() on idle frame = %v, want %v", got, StrategyVideoOnly)
	}

	// The request is consumed by one frame.
	if err := c.Prepare(list); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if got := c.Strategy(); got != StrategyFull {
		t.Errorf("Strategy() after idle frame = %v, want %v", got, StrategyFull)
	}
}

// randomLayer returns a layer with random placement and properties. Some
// layers are ineligible on purpose.
func randomLayer(rng *rand.Rand) Layer {
	x := rng.Intn(testW - 10)
	y := rng.Intn(testH - 10)
	w := 5 + rng.Intn(testW-x)
	h := 5 + rng.Intn(testH-y)
	dst := image.Rect(x, y, min(x+w, testW+20), min(y+h, testH+20))

	var l Layer
	if rng.Intn(4) == 0 {
		l = videoLayer(dst)
	} else {
		l = opaqueLayer(dst)
	}
	switch rng.Intn(8) {
	case 0:
		l.Flags = LayerSkip
	case 1:
		l.PlaneAlpha = 0x80
	case 2:
		l.Blending = gputypes.CompositeAlphaModePremultiplied
	case 3:
		// Downscale.
		l.SourceCrop = image.Rect(0, 0, dst.Dx()*2, dst.Dy()*2)
	case 4:
		l.Transform = overlay.TransformFlipH
	}
	return l
}

func TestPrepareRandomFramesInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, gen := range []Generation{GenerationMDP41, GenerationMDP43, GenerationMDSS5} {
		pool := overlay.NewSimPool(2, 2, 2)
		c := newTestComposer(t, primaryAttrs(), pool, WithCapabilities(CapabilitiesFor(gen)))

		var layers []Layer
		for frame := range 300 {
			// Keep most layers from the previous frame so the cache matters.
			n := 1 + rng.Intn(6)
			if len(layers) != n || rng.Intn(5) == 0 {
				layers = layers[:0]
				for range n {
					layers = append(layers, randomLayer(rng))
				}
			} else {
				i := rng.Intn(n)
				layers[i].Buffer = uiBuffer(layers[i].SourceCrop.Dx(), layers[i].SourceCrop.Dy())
				if rng.Intn(2) == 0 {
					layers[i].Buffer.Type = BufferVideo
					layers[i].Buffer.Format = gputypes.TextureFormatR8Unorm
				}
			}
			list := newList(layers...)

			err := c.Prepare(list)
			if err != nil {
				if !errors.Is(err, ErrFallback) {
					t.Fatalf("%s frame %d: Prepare() error = %v, want ErrFallback", gen, frame, err)
				}
				if got := pool.InUse(overlay.DisplayPrimary); got != 0 {
					t.Fatalf("%s frame %d: InUse() after fallback = %d, want 0", gen, frame, got)
				}
				continue
			}
			checkFrameInvariants(t, c, list, pool)
			if t.Failed() {
				t.Fatalf("%s frame %d: strategy %s split %s", gen, frame, c.Strategy(), splitOf(&c.frame))
			}
			if err := c.Draw(list); err != nil {
				t.Fatalf("%s frame %d: Draw() error = %v", gen, frame, err)
			}
		}
	}
}

func checkFrameInvariants(t *testing.T, c *Composer, list *LayerList, pool *overlay.SimPool) {
	t.Helper()
	f := &c.frame

	if f.HWCount+f.FBCount != f.LayerCount {
		t.Errorf("HWCount + FBCount = %d, want %d", f.HWCount+f.FBCount, f.LayerCount)
	}

	// The framebuffer set is one contiguous run.
	first, last := -1, -1
	for i := range f.LayerCount {
		if f.fbComposed[i] {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first >= 0 && last-first+1 != f.FBCount {
		t.Errorf("framebuffer set %s is not contiguous", splitOf(f))
	}
	if f.FBCount == 0 && f.FBZ != -1 {
		t.Errorf("FBZ = %d without a framebuffer batch, want -1", f.FBZ)
	}

	// Layers that cannot use a pipe never get one.
	for i := range f.LayerCount {
		if !f.IsHardwareComposed(i) {
			continue
		}
		if !c.planner.isEligible(list, i) {
			t.Errorf("layer %d is hardware-composed but not eligible", i)
		}
		slot, ok := f.SlotOf(i)
		if !ok || !slot.Pipe.Valid() {
			t.Errorf("hardware layer %d has no pipe", i)
		}
	}

	stages := f.HWCount + btoi(f.BasePipe.Valid())
	if f.FBCount > 0 {
		stages += c.fb.Pipes()
	}
	if stages > c.cfg.MaxPipesPerMixer {
		t.Errorf("stages = %d, want at most %d", stages, c.cfg.MaxPipesPerMixer)
	}
	if got := pool.InUse(overlay.DisplayPrimary); got != stages {
		t.Errorf("InUse() = %d, want %d", got, stages)
	}
}

func TestStrategyString(t *testing.T) {
	tests := []struct {
		s    Strategy
		want string
	}{
		{StrategyNone, "none"},
		{StrategyFull, "full"},
		{StrategyPartial, "partial"},
		{StrategyVideoOnly, "video-only"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Strategy(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
