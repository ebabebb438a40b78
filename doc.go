// Package hwc plans hardware overlay composition for a display controller.
//
// # Overview
//
// Each frame, the window system hands a [Composer] the layers of one
// display. The composer decides which layers are scanned out directly by
// dedicated overlay pipes and which are rendered into the framebuffer by the
// GPU or software path, then programs the pipes it chose. The decision
// respects the per-mixer stage cap, the scaler and blending limits of the
// hardware generation, and reuses the previous framebuffer image for layers
// whose buffers did not change.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/hwc"
//	    "github.com/gogpu/hwc/overlay"
//	)
//
//	pool := overlay.NewSimPool(2, 2, 1) // or a real driver
//	c, err := hwc.NewComposer(hwc.DisplayAttributes{XRes: 1080, YRes: 1920}, pool)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	// Every frame:
//	if err := c.Prepare(list); err != nil {
//	    // errors.Is(err, hwc.ErrFallback): compose everything on the GPU.
//	}
//	// Render layers whose c.Composition(i) is CompositionFramebuffer,
//	// then queue the buffers:
//	err = c.Draw(list)
//
// # Strategies
//
// Three strategies are tried in order and the first that fits wins:
//   - full: every layer through a pipe, the framebuffer is bypassed
//   - partial: one contiguous batch of unchanged or unsupported layers
//     stays in the framebuffer, the rest go through pipes
//   - video-only: only video layers go through pipes
//
// When none fits, the frame falls back entirely to the framebuffer path.
// Fallback is scoped to one display and one frame.
//
// # Architecture
//
// The package is organized into:
//   - Public API: Composer, Layer, LayerList, Config, Capabilities
//   - Planning: eligibility, strategies, batching (planner)
//   - Resources: pipe allocation with type fallback (pipeAllocator)
//   - Programming: allocate, program and submit (dispatcher)
//   - Framebuffer scan-out: [FramebufferUpdater] variants
//   - Collaborators: the overlay package
//
// # Logging
//
// hwc is silent by default. See [SetLogger].
package hwc
