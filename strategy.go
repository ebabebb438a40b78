package hwc

import (
	"context"
	"log/slog"

	"github.com/gogpu/hwc/overlay"
)

// Strategy names the composition strategy that produced a frame's plan.
type Strategy int

const (
	// StrategyNone means the frame falls back to the framebuffer path.
	StrategyNone Strategy = iota
	// StrategyFull composes every layer through overlay pipes.
	StrategyFull
	// StrategyPartial keeps one contiguous batch of layers in the framebuffer.
	StrategyPartial
	// StrategyVideoOnly pulls only video layers out of the framebuffer.
	StrategyVideoOnly
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyFull:
		return "full"
	case StrategyPartial:
		return "partial"
	case StrategyVideoOnly:
		return "video-only"
	default:
		return "none"
	}
}

// planner decides the hardware/framebuffer split of a frame.
type planner struct {
	caps     Capabilities
	attrs    DisplayAttributes
	maxPipes int
	securing bool

	frame *FrameSnapshot
	cache *LayerCache
	stats *listStats
	alloc *pipeAllocator
	log   *slog.Logger
	// verbose caches whether debug logging is on for this frame so that
	// disabled logging costs no argument boxing.
	verbose bool
}

// plan runs the strategies in order and leaves the winning split in
// p.frame. idle and primary restrict which strategies may run.
func (p *planner) plan(list *LayerList, idle bool) Strategy {
	p.verbose = p.log.Enabled(context.Background(), slog.LevelDebug)
	n := p.stats.numAppLayers
	if !idle && p.attrs.ID == overlay.DisplayPrimary {
		p.frame.reset(n)
		if p.tryFull(list) {
			return StrategyFull
		}
		if p.tryPartial(list) {
			return StrategyPartial
		}
	} else {
		if p.verbose {
			p.log.Debug("full and partial skipped", "idle", idle)
		}
	}
	if p.tryVideoOnly(list) {
		return StrategyVideoOnly
	}
	p.frame.reset(n)
	return StrategyNone
}

// tryFull composes every layer through pipes.
func (p *planner) tryFull(list *LayerList) bool {
	if p.stats.skipPresent() {
		if p.verbose {
			p.log.Debug("full rejected", "reason", "skip present")
		}
		return false
	}
	if p.stats.planeAlpha && !p.caps.PlaneAlpha {
		if p.verbose {
			p.log.Debug("full rejected", "reason", "plane alpha unsupported")
		}
		return false
	}
	if p.stats.needsAlphaScale && !p.caps.AlphaDownscale {
		if p.verbose {
			p.log.Debug("full rejected", "reason", "alpha downscale unsupported")
		}
		return false
	}
	for i := range list.Layers {
		if !p.isEligible(list, i) {
			return false
		}
	}

	p.frame.setAllHardware()

	base := btoi(p.needsBasePipe(&list.Layers[0]))
	if demand := p.frame.HWCount + base; demand > p.maxPipes {
		if p.verbose {
			p.log.Debug("full rejected", "reason", "exceeds pipes per mixer", "demand", demand, "max", p.maxPipes)
		}
		p.frame.reset(p.frame.LayerCount)
		return false
	}
	needed := p.frame.HWCount + base
	if avail := p.alloc.available(0); needed > avail {
		if p.verbose {
			p.log.Debug("full rejected", "reason", "insufficient pipes", "needed", needed, "available", avail)
		}
		p.frame.reset(p.frame.LayerCount)
		return false
	}
	return true
}

// tryPartial keeps the longest run of unchanged layers in the framebuffer
// and sends the rest through pipes.
func (p *planner) tryPartial(list *LayerList) bool {
	p.frame.reset(p.stats.numAppLayers)
	p.updateLayerCache(list)
	p.updateYUV(list)
	start, count := p.updateNotSupported(list)
	p.batchLayers(start, count)
	return p.checkBatchedDemand(list, StrategyPartial)
}

// tryVideoOnly sends only eligible video layers through pipes.
func (p *planner) tryVideoOnly(list *LayerList) bool {
	if !p.stats.yuvPresent() {
		return false
	}
	p.frame.reset(p.stats.numAppLayers)
	p.updateYUV(list)
	start, count := p.updateNotSupported(list)
	p.batchLayers(start, count)
	return p.checkBatchedDemand(list, StrategyVideoOnly)
}

// checkBatchedDemand validates the pipe demand of a batched split. One pipe
// per mixer is reserved for the framebuffer.
func (p *planner) checkBatchedDemand(list *LayerList, s Strategy) bool {
	f := p.frame
	base := btoi(!f.fbComposed[0] && p.needsBasePipe(&list.Layers[0]))
	demand := f.HWCount + base
	if demand == 0 {
		if p.verbose {
			p.log.Debug("strategy rejected", "strategy", s, "reason", "no pipe used")
		}
		return false
	}
	if demand > p.maxPipes-1 {
		if p.verbose {
			p.log.Debug("strategy rejected", "strategy", s, "reason", "exceeds pipes per mixer", "demand", demand, "max", p.maxPipes-1)
		}
		return false
	}
	if avail := p.alloc.available(f.FBCount); demand > avail {
		if p.verbose {
			p.log.Debug("strategy rejected", "strategy", s, "reason", "insufficient pipes", "needed", demand, "available", avail)
		}
		return false
	}
	if base == 1 && f.FBCount > 0 {
		f.FBZ++
	}
	return true
}

// updateLayerCache marks layers framebuffer-composed when they are unchanged
// and already in the last framebuffer image. Every other layer starts out
// hardware-composed, including unchanged layers that were on a pipe.
func (p *planner) updateLayerCache(list *LayerList) {
	for i := range p.frame.LayerCount {
		p.frame.setFramebuffer(i, p.cache.isUnchanged(i, list) && p.cache.wasFramebuffer(i))
	}
	if p.verbose {
		p.log.Debug("layer cache", "fb", p.frame.FBCount)
	}
}

// updateYUV pulls video layers into the hardware set when they pass the video
// test and sit within the first or last `available` positions, which keeps
// pipes from fragmenting around the framebuffer batch. Other video layers go
// to the framebuffer.
func (p *planner) updateYUV(list *LayerList) {
	if !p.stats.yuvPresent() {
		return
	}
	avail := p.alloc.available(p.frame.FBCount)
	n := p.frame.LayerCount
	for _, i := range p.stats.yuvIndices {
		inWindow := i < avail || i >= n-avail
		p.frame.setFramebuffer(i, !(inWindow && p.isVideoEligible(&list.Layers[i])))
	}
	if p.verbose {
		p.log.Debug("video update", "fb", p.frame.FBCount)
	}
}

// updateNotSupported moves ineligible layers, and every layer between the
// lowest and highest of them, to the framebuffer. It returns that range as
// the batch seed; count is 0 when every layer is eligible.
func (p *planner) updateNotSupported(list *LayerList) (start, count int) {
	lo, hi := -1, -2
	for i := range p.frame.LayerCount {
		if p.isEligible(list, i) {
			continue
		}
		p.frame.setFramebuffer(i, true)
		if hi >= 0 {
			for j := i - 1; j > hi; j-- {
				p.frame.setFramebuffer(j, true)
			}
		}
		hi = i
		if lo < 0 {
			lo = i
		}
	}
	if p.verbose {
		p.log.Debug("not supported", "fb", p.frame.FBCount)
	}
	return lo, hi - lo + 1
}

// batchLayers collapses the framebuffer set into one contiguous range so it
// fits the single zorder slot of the framebuffer. A cached layer may be
// pushed to hardware; a layer that needs hardware is never pulled into the
// batch. The batch grows from the seed [start, start+count) while
// neighbours are framebuffer-composed; without a seed the longest existing
// run wins, the lowest one on ties. Sets FBZ.
func (p *planner) batchLayers(start, count int) {
	f := p.frame
	if f.FBCount == 0 {
		f.FBZ = -1
		return
	}
	if f.HWCount == 0 {
		f.FBZ = 0
		return
	}

	n := f.LayerCount
	if count > 0 {
		for i := start - 1; i >= 0 && f.fbComposed[i]; i-- {
			start--
			count++
		}
		for i := start + count; i < n && f.fbComposed[i]; i++ {
			count++
		}
	} else {
		for i := 0; i < n; {
			run := 0
			for i < n && f.fbComposed[i] {
				run++
				i++
			}
			if run > count {
				count = run
				start = i - run
			}
			if i < n {
				i++
			}
		}
	}

	for i := range n {
		f.setFramebuffer(i, i >= start && i < start+count)
	}
	f.FBZ = start
	if p.verbose {
		p.log.Debug("batched", "start", start, "count", count)
	}
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
