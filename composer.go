package hwc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/gogpu/hwc/overlay"
)

// Composition is how a layer reaches the display this frame.
type Composition int

const (
	// CompositionFramebuffer: the layer is rendered into the framebuffer
	// target by the GPU or software path.
	CompositionFramebuffer Composition = iota
	// CompositionOverlay: the layer is scanned out by its own overlay pipe
	// and must not be rendered into the framebuffer.
	CompositionOverlay
	// CompositionCached: the layer is in the framebuffer batch, whose
	// previous contents are still valid; nothing needs to be rendered.
	CompositionCached
)

// String returns the composition name used in dumps.
func (c Composition) String() string {
	switch c {
	case CompositionOverlay:
		return "MDP"
	case CompositionCached:
		return "CACHE"
	default:
		return "GLES"
	}
}

// Composer plans and programs overlay composition for one display.
//
// A Composer is driven from a single display thread: Prepare then Draw, once
// per frame. Only the idle fallback request may arrive from another
// goroutine. Every display owns its own Composer; composers share nothing.
type Composer struct {
	cfg   Config
	attrs DisplayAttributes
	pool  overlay.Pool
	log   *slog.Logger

	frame   FrameSnapshot
	cache   LayerCache
	stats   listStats
	alloc   pipeAllocator
	planner planner
	disp    dispatcher

	rotators overlay.RotatorPool
	fb       FramebufferUpdater
	fbName   string

	idle         IdleWatchdog
	invalidate   func()
	onIdle       func()
	idleFallback atomic.Bool
	idleFrame    bool

	securing       bool
	extConfiguring bool

	strategy Strategy
	prepared bool
	closed   bool
}

// NewComposer creates a composer for the display described by attrs, taking
// pipes from pool.
func NewComposer(attrs DisplayAttributes, pool overlay.Pool, opts ...Option) (*Composer, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pipe pool", ErrInvalidConfig)
	}
	if attrs.XRes <= 0 || attrs.YRes <= 0 {
		return nil, fmt.Errorf("%w: display %dx%d", ErrInvalidConfig, attrs.XRes, attrs.YRes)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	log := o.logger
	if log == nil {
		log = Logger()
	}
	log = log.With("display", attrs.ID)

	c := &Composer{
		cfg:        o.cfg,
		attrs:      attrs,
		pool:       pool,
		log:        log,
		rotators:   o.rotators,
		invalidate: o.invalidate,
	}
	c.frame.reset(0)
	c.alloc = pipeAllocator{
		pool: pool,
		dpy:  attrs.ID,
		caps: &c.cfg.Capabilities,
	}
	c.alloc.dma, _ = o.rotators.(overlay.DMAUser)
	c.planner = planner{
		caps:     c.cfg.Capabilities,
		attrs:    attrs,
		maxPipes: c.cfg.MaxPipesPerMixer,
		frame:    &c.frame,
		cache:    &c.cache,
		stats:    &c.stats,
		alloc:    &c.alloc,
		log:      log,
	}
	c.disp = dispatcher{
		pool:        pool,
		rotators:    o.rotators,
		alloc:       &c.alloc,
		planner:     &c.planner,
		frame:       &c.frame,
		stats:       &c.stats,
		log:         log,
		actionSafeW: c.cfg.ActionSafeWidth,
		actionSafeH: c.cfg.ActionSafeHeight,
	}

	if o.fb != nil {
		c.fb, c.fbName = o.fb, "custom"
	} else {
		env := FramebufferEnv{
			Display:          attrs,
			Caps:             c.cfg.Capabilities,
			Pool:             pool,
			Acquire:          c.alloc.acquire,
			ActionSafeWidth:  c.cfg.ActionSafeWidth,
			ActionSafeHeight: c.cfg.ActionSafeHeight,
		}
		fb, name, err := selectFramebufferUpdater(c.cfg.FramebufferVariant, env)
		if err != nil {
			return nil, err
		}
		c.fb, c.fbName = fb, name
	}
	c.alloc.fbPipes = c.fb.Pipes

	// Command-mode panels refresh only on demand.
	if c.cfg.IdleTimeout >= 0 && !attrs.CommandMode {
		c.idle = o.idle
		if c.idle == nil {
			c.idle = NewIdleTimer()
		}
		c.onIdle = c.idleTimeout
	}

	log.Info("composer created",
		"generation", c.cfg.Capabilities.Generation,
		"resolution", fmt.Sprintf("%dx%d", attrs.XRes, attrs.YRes),
		"framebuffer", c.fbName,
		"max_pipes_per_mixer", c.cfg.MaxPipesPerMixer,
		"idle_watchdog", c.idle != nil,
		"enabled", c.cfg.Enabled)
	return c, nil
}

// Prepare plans the frame described by list and programs the overlay pipes.
//
// A nil error means the plan is in place: layers reported as
// [CompositionOverlay] by [Composer.Composition] are scanned out by pipes and
// the rest go through the framebuffer. Any error wraps [ErrFallback]: the
// whole display must be composed by the framebuffer path this frame.
func (c *Composer) Prepare(list *LayerList) error {
	idle := c.idleFallback.Swap(false)
	c.idleFrame = idle
	c.prepared = false
	c.strategy = StrategyNone
	c.disp.reset()
	c.fb.Reset()

	if err := c.frameDoable(list); err != nil {
		c.discard(list)
		return fallback(err)
	}

	c.stats.update(list)
	c.frame.reset(c.stats.numAppLayers)
	c.alloc.beginFrame(c.stats.needsRotator)
	if fs, ok := c.rotators.(overlay.FrameScoped); ok {
		fs.BeginFrame(c.attrs.ID)
	}

	c.planner.securing = c.securing
	s := c.planner.plan(list, idle)
	if s == StrategyNone {
		c.discard(list)
		return fallback(ErrNoStrategy)
	}
	c.frame.mapSlots()

	if c.frame.FBZ >= 0 {
		if err := c.fb.Prepare(list, c.frame.FBZ); err != nil {
			c.log.Warn("framebuffer configure failed", "strategy", s, "err", err)
			c.discard(list)
			return fallback(err)
		}
	}
	if err := c.disp.allocate(list); err != nil {
		if c.planner.verbose {
			c.log.Debug("pipe allocation failed", "strategy", s, "err", err)
		}
		c.discard(list)
		return fallback(err)
	}
	if err := c.disp.program(list); err != nil {
		c.log.Warn("pipe programming failed", "strategy", s, "err", err)
		c.discard(list)
		return fallback(err)
	}

	c.frame.NeedsRedraw = !c.cache.isSameFrame(&c.frame, list) ||
		list.GeometryChanged ||
		c.stats.skipPresent() ||
		c.attrs.ID != overlay.DisplayPrimary

	for i := range c.frame.LayerCount {
		c.frame.pending[i] = !c.frame.fbComposed[i]
	}
	c.cache.cacheAll(list)
	c.cache.updateCounts(&c.frame)
	c.strategy = s
	c.prepared = true

	if c.cfg.Debug && c.log.Enabled(context.Background(), slog.LevelDebug) {
		var b strings.Builder
		c.Dump(&b)
		c.log.Debug("frame plan", "strategy", s, "geometry_changed", list.GeometryChanged, "dump", b.String())
	}
	return nil
}

// frameDoable checks the conditions under which no strategy may run.
func (c *Composer) frameDoable(list *LayerList) error {
	switch {
	case c.closed:
		return ErrClosed
	case !c.cfg.Enabled:
		return ErrDisabled
	case list == nil:
		c.log.Warn("prepare called without a layer list")
		return ErrInvalidList
	case c.extConfiguring:
		return ErrExternalConfiguring
	case len(list.Layers) == 0:
		return ErrNoStrategy
	}
	return nil
}

// discard drops the frame: pipes acquired this frame go back to the pool
// and the cache records the list with every layer in the framebuffer, which
// is what the display shows once the caller falls back.
func (c *Composer) discard(list *LayerList) {
	c.alloc.releaseAll()
	c.fb.Reset()
	c.disp.reset()
	c.strategy = StrategyNone
	c.prepared = false
	if list == nil {
		c.frame.reset(0)
		c.cache.reset()
		return
	}
	c.frame.reset(len(list.Layers))
	c.cache.cacheAll(list)
	c.cache.updateCounts(&c.frame)
}

// Draw queues the buffers of the prepared frame: the base pipe, every
// hardware-composed layer and the framebuffer target. It must follow a
// successful Prepare for the same list. Calling Draw again in the same
// frame queues nothing that was already queued. Errors wrap [ErrFallback]
// and drop the frame as a failed Prepare does.
func (c *Composer) Draw(list *LayerList) error {
	if !c.cfg.Enabled || c.closed {
		return nil
	}
	if list == nil {
		return fallback(ErrInvalidList)
	}
	if !c.prepared {
		return fallback(ErrNotPrepared)
	}
	if c.disp.state == stateSubmitted {
		if err := c.disp.submit(list); err != nil {
			c.log.Warn("queue failed", "err", err)
			c.discard(list)
			return fallback(err)
		}
		return nil
	}

	if c.idle != nil && !c.idleFrame && c.frame.HWCount > 0 {
		c.idle.Arm(c.cfg.IdleTimeout, c.onIdle)
	}
	if c.frame.LayerCount == 0 {
		return nil
	}

	if err := c.disp.submit(list); err != nil {
		c.log.Warn("queue failed", "err", err)
		c.discard(list)
		return fallback(err)
	}
	if c.frame.FBZ >= 0 && list.Target != nil {
		if err := c.fb.Draw(list.Target.Buffer); err != nil {
			c.log.Warn("framebuffer queue failed", "err", err)
			c.discard(list)
			return fallback(err)
		}
	}
	return nil
}

// Composition reports how layer i of the last prepared frame reaches the
// display. After a failed Prepare every layer is [CompositionFramebuffer].
func (c *Composer) Composition(i int) Composition {
	if !c.prepared {
		return CompositionFramebuffer
	}
	if c.frame.IsHardwareComposed(i) {
		return CompositionOverlay
	}
	if !c.frame.NeedsRedraw && i >= 0 && i < c.frame.LayerCount {
		return CompositionCached
	}
	return CompositionFramebuffer
}

// Strategy returns the strategy of the last prepared frame.
func (c *Composer) Strategy() Strategy { return c.strategy }

// Frame returns a copy of the last frame snapshot.
func (c *Composer) Frame() FrameSnapshot { return c.frame.clone() }

// Display returns the attributes the composer was created with.
func (c *Composer) Display() DisplayAttributes { return c.attrs }

// Config returns the composer's configuration.
func (c *Composer) Config() Config { return c.cfg }

// FramebufferVariant returns the name of the framebuffer updater in use.
func (c *Composer) FramebufferVariant() string { return c.fbName }

// SetSecuring marks the start or end of a secure-path reconfiguration.
// While it is set, secure video layers are not hardware-composed.
func (c *Composer) SetSecuring(on bool) { c.securing = on }

// SetExternalConfiguring marks an external display connection in progress.
// While it is set, every frame falls back.
func (c *Composer) SetExternalConfiguring(on bool) { c.extConfiguring = on }

// RequestIdleFallback asks that the next frame skip the full and partial
// strategies. It is safe to call from any goroutine; the request is
// consumed by the next Prepare.
func (c *Composer) RequestIdleFallback() { c.idleFallback.Store(true) }

func (c *Composer) idleTimeout() {
	c.idleFallback.Store(true)
	c.log.Debug("idle timeout")
	if c.invalidate != nil {
		c.invalidate()
	}
}

// Close disarms the idle watchdog and returns every pipe the composer holds.
// A closed composer falls back on every Prepare.
func (c *Composer) Close() {
	if c.closed {
		return
	}
	if c.idle != nil {
		c.idle.Disarm()
	}
	c.discard(nil)
	c.closed = true
	c.log.Info("composer closed")
}
