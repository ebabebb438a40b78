// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package softcomp

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/hwc/overlay"
)

// Mixer blends committed overlay stages into a display image.
type Mixer struct {
	interp draw.Interpolator

	// Border is the color of pixels no stage covers and of stages queued
	// without a buffer.
	Border color.Color
}

// NewMixer creates a mixer with a black border.
func NewMixer(opts ...Option) *Mixer {
	o := buildOptions(opts)
	return &Mixer{interp: o.interp, Border: color.Black}
}

// Mix fills dst with the border color, then blends stages bottom to top.
// Stages must be sorted by zorder, as [overlay.SimPool.Stages] returns them.
// lookup resolves the image of a queued fd; stages that were never queued
// are not scanned out.
func (m *Mixer) Mix(dst draw.Image, stages []overlay.Stage, lookup func(fd int) image.Image) error {
	border := image.NewUniform(m.Border)
	draw.Draw(dst, dst.Bounds(), border, image.Point{}, draw.Src)

	for _, st := range stages {
		if !st.Queued {
			continue
		}
		cfg := &st.Config
		if st.FD < 0 {
			draw.Draw(dst, cfg.Position, border, image.Point{}, draw.Src)
			continue
		}
		src := lookup(st.FD)
		if src == nil {
			return fmt.Errorf("%w: pipe %d fd %d", ErrUnknownBuffer, st.Pipe, st.FD)
		}
		drawImage(dst, cfg.Position, src, cfg.Crop, cfg.Transform, cfg.PlaneAlpha, stageOp(cfg), m.interp)
	}
	return nil
}

// stageOp returns the blend of a stage onto the stages below it.
func stageOp(cfg *overlay.PipeConfig) draw.Op {
	if cfg.Flags&overlay.FlagForeground != 0 && cfg.PlaneAlpha == 0xFF {
		return draw.Src
	}
	if cfg.Blending == gputypes.CompositeAlphaModeOpaque && cfg.PlaneAlpha == 0xFF {
		return draw.Src
	}
	return draw.Over
}
