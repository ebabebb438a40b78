package hwc

import (
	"fmt"

	"github.com/gogpu/hwc/overlay"
)

// Generation identifies a display controller hardware generation.
type Generation int

const (
	// GenerationMDP41 is MDP 4.1 (msm8660 class).
	GenerationMDP41 Generation = iota
	// GenerationMDP42 is MDP 4.2.
	GenerationMDP42
	// GenerationMDP43 is MDP 4.3.
	GenerationMDP43
	// GenerationMDSS5 is MDSS 5.x.
	GenerationMDSS5
)

// String returns the generation name.
func (g Generation) String() string {
	switch g {
	case GenerationMDP41:
		return "MDP4.1"
	case GenerationMDP42:
		return "MDP4.2"
	case GenerationMDP43:
		return "MDP4.3"
	case GenerationMDSS5:
		return "MDSS5"
	default:
		return fmt.Sprintf("Generation(%d)", int(g))
	}
}

// Capabilities describes what the overlay hardware can do. The planner never
// branches on Generation directly; it only reads these fields.
type Capabilities struct {
	Generation Generation `json:"generation"`

	// PlaneAlpha: pipes can blend with a non-opaque plane alpha.
	PlaneAlpha bool `json:"plane_alpha"`
	// AlphaDownscale: pipes can downscale layers that blend with per-pixel alpha.
	AlphaDownscale bool `json:"alpha_downscale"`
	// RotatedBlits: RGB pipes accept 90 degree rotations.
	RotatedBlits bool `json:"rotated_blits"`
	// DMAWithoutScale: DMA pipes may carry unscaled UI layers.
	DMAWithoutScale bool `json:"dma_without_scale"`
	// RGBDownscale: RGB pipes can downscale.
	RGBDownscale bool `json:"rgb_downscale"`
	// BaseLayerCoverage: the bottom mixer stage must cover the whole display,
	// otherwise an opaque base pipe is added.
	BaseLayerCoverage bool `json:"base_layer_coverage"`

	MaxDownscale  int `json:"max_downscale"`
	MaxUpscale    int `json:"max_upscale"`
	MinCropSize   int `json:"min_crop_size"`
	DMAPipes      int `json:"dma_pipes"`
	MaxMixerWidth int `json:"max_mixer_width"`
}

// CapabilitiesFor returns the capability preset of a hardware generation.
func CapabilitiesFor(g Generation) Capabilities {
	c := Capabilities{
		Generation:    g,
		PlaneAlpha:    true,
		MaxDownscale:  8,
		MaxUpscale:    8,
		MinCropSize:   5,
		DMAPipes:      1,
		MaxMixerWidth: 2048,
	}
	switch g {
	case GenerationMDP41:
		c.BaseLayerCoverage = true
	case GenerationMDP42, GenerationMDP43:
		c.RGBDownscale = true
	case GenerationMDSS5:
		c.PlaneAlpha = false
		c.AlphaDownscale = true
		c.DMAWithoutScale = true
		c.RGBDownscale = true
		c.MaxDownscale = 4
		c.MaxUpscale = 20
		c.DMAPipes = 2
		c.MaxMixerWidth = 2560
	}
	return c
}

// DisplayAttributes describes the display a composer plans for.
type DisplayAttributes struct {
	ID     overlay.Display
	XRes   int
	YRes   int
	Stride int
	// CommandMode marks a MIPI command-mode panel, which refreshes only on
	// demand and needs no idle invalidation.
	CommandMode bool
}

// bounds returns the display extent.
func (a DisplayAttributes) bounds() (w, h int) { return a.XRes, a.YRes }
