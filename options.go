package hwc

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/hwc/overlay"
)

// Default configuration values.
const (
	DefaultMaxPipesPerMixer = 4
	DefaultIdleTimeout      = 70 * time.Millisecond
)

// Config is the static configuration of a [Composer]. It replaces process
// wide switches: every composer carries its own copy.
type Config struct {
	// Enabled turns overlay composition on. A disabled composer falls back
	// on every Prepare and its Draw is a no-op.
	Enabled bool `json:"enabled"`

	// MaxPipesPerMixer caps the stages one display may use, including the
	// framebuffer pipe.
	MaxPipesPerMixer int `json:"max_pipes_per_mixer"`

	// IdleTimeout is the quiet period after which the next frame is composed
	// by the framebuffer path. Negative disables the watchdog.
	IdleTimeout time.Duration `json:"-"`

	Capabilities Capabilities `json:"capabilities"`

	// FramebufferVariant names the framebuffer updater. Empty picks one from
	// the display width.
	FramebufferVariant string `json:"framebuffer_variant"`

	// ActionSafeWidth and ActionSafeHeight inset external display output by
	// the given percentages.
	ActionSafeWidth  int `json:"action_safe_width"`
	ActionSafeHeight int `json:"action_safe_height"`

	// Debug logs the plan dump of every frame at debug level.
	Debug bool `json:"debug"`
}

// DefaultConfig returns the configuration used when no option overrides it.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		MaxPipesPerMixer: DefaultMaxPipesPerMixer,
		IdleTimeout:      DefaultIdleTimeout,
		Capabilities:     CapabilitiesFor(GenerationMDP41),
	}
}

// Validate reports whether c can drive a composer.
func (c Config) Validate() error {
	switch {
	case c.MaxPipesPerMixer < 1:
		return fmt.Errorf("%w: max pipes per mixer %d", ErrInvalidConfig, c.MaxPipesPerMixer)
	case c.Capabilities.MaxDownscale < 1:
		return fmt.Errorf("%w: max downscale %d", ErrInvalidConfig, c.Capabilities.MaxDownscale)
	case c.Capabilities.MinCropSize < 0:
		return fmt.Errorf("%w: min crop size %d", ErrInvalidConfig, c.Capabilities.MinCropSize)
	case c.Capabilities.DMAPipes < 0:
		return fmt.Errorf("%w: dma pipes %d", ErrInvalidConfig, c.Capabilities.DMAPipes)
	case c.ActionSafeWidth < 0 || c.ActionSafeWidth >= 100 ||
		c.ActionSafeHeight < 0 || c.ActionSafeHeight >= 100:
		return fmt.Errorf("%w: action safe %dx%d%%", ErrInvalidConfig, c.ActionSafeWidth, c.ActionSafeHeight)
	}
	return nil
}

// Option configures a Composer during creation.
//
// Example:
//
//	c, err := hwc.NewComposer(attrs, pool,
//	    hwc.WithCapabilities(hwc.CapabilitiesFor(hwc.GenerationMDSS5)),
//	    hwc.WithRotators(rotators),
//	    hwc.WithInvalidate(requestRedraw),
//	)
type Option func(*options)

// options holds optional configuration for Composer creation.
type options struct {
	cfg        Config
	rotators   overlay.RotatorPool
	idle       IdleWatchdog
	invalidate func()
	fb         FramebufferUpdater
	logger     *slog.Logger
}

// defaultOptions returns the default composer options.
func defaultOptions() options {
	return options{
		cfg:  DefaultConfig(),
		idle: nil, // IdleTimer when the timeout is enabled
	}
}

// WithConfig replaces the whole configuration. Options applied after it
// still override individual fields.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithCapabilities sets the hardware capabilities.
func WithCapabilities(caps Capabilities) Option {
	return func(o *options) {
		o.cfg.Capabilities = caps
	}
}

// WithMaxPipesPerMixer sets the per-mixer stage cap.
func WithMaxPipesPerMixer(n int) Option {
	return func(o *options) {
		o.cfg.MaxPipesPerMixer = n
	}
}

// WithIdleTimeout sets the idle period. A negative duration disables the
// idle watchdog.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.cfg.IdleTimeout = d
	}
}

// WithFramebufferVariant selects a registered framebuffer updater by name.
func WithFramebufferVariant(name string) Option {
	return func(o *options) {
		o.cfg.FramebufferVariant = name
	}
}

// WithRotators sets the rotator pool used for rotated video layers. Without
// one, rotated video layers cannot be hardware-composed.
func WithRotators(r overlay.RotatorPool) Option {
	return func(o *options) {
		o.rotators = r
	}
}

// WithIdleWatchdog replaces the default [IdleTimer].
func WithIdleWatchdog(w IdleWatchdog) Option {
	return func(o *options) {
		o.idle = w
	}
}

// WithInvalidate sets the hook called when the idle watchdog fires. It
// should ask the window system for a new frame; it runs on the watchdog's
// goroutine.
func WithInvalidate(fn func()) Option {
	return func(o *options) {
		o.invalidate = fn
	}
}

// WithFramebufferUpdater injects a framebuffer updater instance, bypassing
// the variant registry.
func WithFramebufferUpdater(u FramebufferUpdater) Option {
	return func(o *options) {
		o.fb = u
	}
}

// WithLogger sets the logger of one composer. Without it the composer uses
// the package logger current at creation time, see [SetLogger].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
