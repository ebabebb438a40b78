package main

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"golang.org/x/image/draw"

	"github.com/gogpu/hwc"
	"github.com/gogpu/hwc/overlay"
	"github.com/gogpu/hwc/softcomp"
)

// Buffer fd ranges of the simulator.
const (
	framebufferFD = 1
	rotatorFD     = 100
	firstLayerFD  = 1000
)

// simulator drives one composer through a scenario and renders what the
// display would show.
type simulator struct {
	sc       *Scenario
	attrs    hwc.DisplayAttributes
	pool     *overlay.SimPool
	rotators *overlay.SimRotators
	composer *hwc.Composer
	fb       *softcomp.Renderer
	target   *hwc.Layer
	mixer    *softcomp.Mixer
	rotated  *softcomp.RotationCache
	buffers  *bufferStore
	dump     io.Writer
	log      *slog.Logger
}

func newSimulator(sc *Scenario, cfg hwc.Config, dump io.Writer, log *slog.Logger) (*simulator, error) {
	s := &simulator{
		sc:       sc,
		attrs:    sc.Attributes(),
		pool:     overlay.NewSimPool(sc.Pool.VG, sc.Pool.RGB, sc.Pool.DMA),
		rotators: overlay.NewSimRotators(sc.Rotators, rotatorFD),
		fb:       softcomp.NewRenderer(sc.Display.Width, sc.Display.Height),
		mixer:    softcomp.NewMixer(softcomp.WithInterpolator(draw.CatmullRom)),
		rotated:  softcomp.NewRotationCache(4),
		buffers:  newBufferStore(firstLayerFD),
		dump:     dump,
		log:      log,
	}
	if sc.Pool.Reserved > 0 {
		// Pipes held by another display.
		s.pool.Reserve(s.attrs.ID, sc.Pool.Reserved)
	}
	s.target = s.fb.Target(framebufferFD)

	c, err := hwc.NewComposer(s.attrs, s.pool,
		hwc.WithConfig(cfg),
		hwc.WithIdleTimeout(-1),
		hwc.WithRotators(s.rotators),
		hwc.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	s.composer = c
	return s, nil
}

func (s *simulator) close() { s.composer.Close() }

// step runs frame i and returns the display contents.
func (s *simulator) step(i int) (*image.RGBA, error) {
	f := &s.sc.Frames[i]
	list, err := s.buffers.layerList(f, i, s.target)
	if err != nil {
		return nil, err
	}

	s.composer.SetSecuring(f.Securing)
	if f.Idle {
		s.composer.RequestIdleFallback()
	}

	perr := s.composer.Prepare(list)
	if perr != nil && !errors.Is(perr, hwc.ErrFallback) {
		return nil, perr
	}
	if _, err := s.fb.Render(list, s.composer); err != nil {
		return nil, fmt.Errorf("frame %d: %w", i, err)
	}
	if perr == nil {
		if perr = s.composer.Draw(list); perr != nil {
			// A failed queue drops the plan; redraw everything.
			if _, err := s.fb.Render(list, s.composer); err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
		}
	}

	fmt.Fprintf(s.dump, "frame %d: strategy %s\n", i, s.composer.Strategy())
	if perr != nil {
		fmt.Fprintf(s.dump, "  fallback: %v\n", perr)
	}
	s.composer.Dump(s.dump)

	screen := image.NewRGBA(image.Rect(0, 0, s.attrs.XRes, s.attrs.YRes))
	if perr != nil {
		draw.Draw(screen, screen.Bounds(), s.fb.Image(), image.Point{}, draw.Src)
		return screen, nil
	}
	if err := s.mixer.Mix(screen, s.pool.Stages(s.attrs.ID), s.lookup); err != nil {
		return nil, fmt.Errorf("frame %d: %w", i, err)
	}
	return screen, nil
}

// lookup resolves a queued fd: the framebuffer target, a rotator output
// or a layer buffer.
func (s *simulator) lookup(fd int) image.Image {
	if fd == framebufferFD {
		return s.fb.Image()
	}
	for _, r := range s.rotators.Rotators {
		if r.OutFD != fd {
			continue
		}
		src := s.buffers.lookup(r.InFD)
		if src == nil {
			return nil
		}
		return s.rotated.Rotate(r.InFD, src, src.Bounds(), r.Transform)
	}
	return s.buffers.lookup(fd)
}
