package hwc

import "github.com/gogpu/hwc/overlay"

// pipeAllocator hands out overlay pipes for one display and remembers what it
// handed out this frame so a discarded plan can give them back.
type pipeAllocator struct {
	pool     overlay.Pool
	dpy      overlay.Display
	caps     *Capabilities
	fbPipes  func() int
	acquired []overlay.Pipe

	// dmaInUse is set once a DMA pipe was handed out this frame. It is
	// reported to dma, the rotator pool, which shares the DMA engine.
	dmaInUse bool
	dma      overlay.DMAUser
	// needsRotator reserves the DMA pipes for the rotator this frame.
	needsRotator bool
}

// beginFrame starts a new frame. Pipes of the previous frame are reclaimed
// by the driver when it supports per-frame collection and released
// explicitly otherwise.
func (a *pipeAllocator) beginFrame(needsRotator bool) {
	if fs, ok := a.pool.(overlay.FrameScoped); ok {
		fs.BeginFrame(a.dpy)
		a.acquired = a.acquired[:0]
	} else {
		a.releaseAll()
	}
	a.setDMAInUse(false)
	a.needsRotator = needsRotator
}

// acquire returns a pipe of class t, walking the fallback chain
// DMA → RGB → VG from t's entry point. PipeAny enters at RGB so that DMA
// stays free for unscaled layers.
func (a *pipeAllocator) acquire(t overlay.PipeType) (overlay.Pipe, bool) {
	switch t {
	case overlay.PipeDMA:
		if p, ok := a.take(overlay.PipeDMA); ok {
			a.setDMAInUse(true)
			return p, true
		}
		fallthrough
	case overlay.PipeAny, overlay.PipeRGB:
		if p, ok := a.take(overlay.PipeRGB); ok {
			return p, true
		}
		if t == overlay.PipeRGB {
			return overlay.PipeInvalid, false
		}
		fallthrough
	case overlay.PipeVG:
		return a.take(overlay.PipeVG)
	}
	return overlay.PipeInvalid, false
}

func (a *pipeAllocator) take(t overlay.PipeType) (overlay.Pipe, bool) {
	p, ok := a.pool.NextPipe(t, a.dpy)
	if !ok || !p.Valid() {
		return overlay.PipeInvalid, false
	}
	a.acquired = append(a.acquired, p)
	return p, true
}

// available reports how many pipes the planner may still use, after the
// rotator's DMA reservation and, when a framebuffer batch exists, the
// framebuffer's own pipes.
func (a *pipeAllocator) available(fbCount int) int {
	n := a.pool.AvailablePipes(a.dpy)
	if a.needsRotator {
		n -= a.caps.DMAPipes
	}
	if fbCount > 0 {
		n -= a.fbPipes()
	}
	return n
}

// releaseAll returns every pipe acquired this frame to drivers that accept
// explicit release.
func (a *pipeAllocator) releaseAll() {
	if r, ok := a.pool.(overlay.Releaser); ok {
		for _, p := range a.acquired {
			r.Release(p)
		}
	}
	a.acquired = a.acquired[:0]
	a.setDMAInUse(false)
}

func (a *pipeAllocator) setDMAInUse(v bool) {
	if a.dmaInUse == v {
		return
	}
	a.dmaInUse = v
	if a.dma != nil {
		a.dma.SetDMAInUse(a.dpy, v)
	}
}
