package hwc

import (
	"fmt"
	"image"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/hwc/overlay"
)

// FramebufferUpdater scans the framebuffer target out through overlay pipes
// at the zorder of the framebuffer batch.
//
// Prepare is called once per frame, only when the plan keeps a framebuffer
// batch. Draw queues the rendered target. Reset forgets the pipes of the
// previous frame. Pipes reports how many pipes the updater consumes, which
// the planner reserves whenever a batch exists.
type FramebufferUpdater interface {
	Prepare(list *LayerList, z int) error
	Draw(target *Buffer) error
	Reset()
	Pipes() int
}

// FramebufferEnv is handed to a [FramebufferFactory] when a composer is
// created.
type FramebufferEnv struct {
	Display DisplayAttributes
	Caps    Capabilities
	Pool    overlay.Pool
	// Acquire reserves a pipe through the composer's allocator so that it is
	// returned with the rest of the frame on fallback.
	Acquire func(overlay.PipeType) (overlay.Pipe, bool)

	// ActionSafeWidth and ActionSafeHeight are the overscan insets, in
	// percent, applied on external displays.
	ActionSafeWidth  int
	ActionSafeHeight int
}

// FramebufferFactory builds a framebuffer updater for one display.
type FramebufferFactory func(env FramebufferEnv) FramebufferUpdater

// Framebuffer updater variant names.
const (
	FramebufferLowRes = "lowres"
	FramebufferSplit  = "split"
)

// framebufferUpdaters holds the updater variants. The variant is chosen once
// per composer, never per frame.
var framebufferUpdaters = gpucontext.NewRegistry[FramebufferFactory](
	gpucontext.WithPriority(FramebufferLowRes, FramebufferSplit),
)

func init() {
	framebufferUpdaters.Register(FramebufferLowRes, func() FramebufferFactory { return newLowResUpdater })
	framebufferUpdaters.Register(FramebufferSplit, func() FramebufferFactory { return newSplitUpdater })
}

// RegisterFramebufferUpdater adds or replaces a named updater variant.
// Registering a name that already exists replaces the previous factory.
func RegisterFramebufferUpdater(name string, f FramebufferFactory) {
	framebufferUpdaters.Register(name, func() FramebufferFactory { return f })
}

// FramebufferUpdaters returns the registered variant names.
func FramebufferUpdaters() []string {
	return framebufferUpdaters.Available()
}

// selectFramebufferUpdater picks the variant for a display. An empty name
// selects split for displays wider than one mixer and the preferred
// variant otherwise.
func selectFramebufferUpdater(name string, env FramebufferEnv) (FramebufferUpdater, string, error) {
	if name == "" {
		if env.Caps.MaxMixerWidth > 0 && env.Display.XRes > env.Caps.MaxMixerWidth &&
			framebufferUpdaters.Has(FramebufferSplit) {
			name = FramebufferSplit
		} else {
			name = framebufferUpdaters.BestName()
		}
	}
	if !framebufferUpdaters.Has(name) {
		return nil, "", fmt.Errorf("%w: unknown framebuffer updater %q", ErrInvalidConfig, name)
	}
	return framebufferUpdaters.Get(name)(env), name, nil
}

// lowResUpdater scans the target through a single pipe.
type lowResUpdater struct {
	env  FramebufferEnv
	dest overlay.Pipe
	on   bool
}

func newLowResUpdater(env FramebufferEnv) FramebufferUpdater {
	return &lowResUpdater{env: env, dest: overlay.PipeInvalid}
}

func (u *lowResUpdater) Pipes() int { return 1 }

func (u *lowResUpdater) Reset() {
	u.on = false
	u.dest = overlay.PipeInvalid
}

func (u *lowResUpdater) Prepare(list *LayerList, z int) error {
	u.Reset()
	target, err := framebufferTarget(list)
	if err != nil {
		return err
	}
	p, ok := u.env.Acquire(overlay.PipeAny)
	if !ok {
		return fmt.Errorf("%w: framebuffer", ErrNoPipes)
	}
	u.dest = p

	crop := framebufferCrop(list, target, z)
	pos := crop
	if u.env.Display.ID != overlay.DisplayPrimary {
		pos = actionSafe(pos, u.env.Display.XRes, u.env.Display.YRes,
			u.env.ActionSafeWidth, u.env.ActionSafeHeight)
	}
	if err := configureFramebufferPipe(u.env.Pool, p, target, crop, pos, z); err != nil {
		return err
	}
	u.on = true
	return nil
}

func (u *lowResUpdater) Draw(target *Buffer) error {
	if !u.on {
		return nil
	}
	if target == nil {
		return fmt.Errorf("%w: framebuffer target has no buffer", ErrInvalidList)
	}
	if err := u.env.Pool.QueueBuffer(u.dest, target.FD, target.Offset); err != nil {
		return &PipeError{Op: "queue", Layer: -1, Pipe: u.dest, Err: err}
	}
	return nil
}

// splitUpdater scans the target through two pipes, one per half of a
// display wider than a single mixer.
type splitUpdater struct {
	env  FramebufferEnv
	dest [2]overlay.Pipe
	on   bool
}

func newSplitUpdater(env FramebufferEnv) FramebufferUpdater {
	return &splitUpdater{env: env, dest: [2]overlay.Pipe{overlay.PipeInvalid, overlay.PipeInvalid}}
}

func (u *splitUpdater) Pipes() int { return 2 }

func (u *splitUpdater) Reset() {
	u.on = false
	u.dest = [2]overlay.Pipe{overlay.PipeInvalid, overlay.PipeInvalid}
}

func (u *splitUpdater) Prepare(list *LayerList, z int) error {
	u.Reset()
	target, err := framebufferTarget(list)
	if err != nil {
		return err
	}
	crop := framebufferCrop(list, target, z)
	mid := u.env.Display.XRes / 2
	halves := [2]image.Rectangle{
		crop.Intersect(image.Rect(crop.Min.X, crop.Min.Y, mid, crop.Max.Y)),
		crop.Intersect(image.Rect(mid, crop.Min.Y, crop.Max.X, crop.Max.Y)),
	}
	for k, half := range halves {
		if half.Empty() {
			continue
		}
		p, ok := u.env.Acquire(overlay.PipeAny)
		if !ok {
			return fmt.Errorf("%w: framebuffer half %d", ErrNoPipes, k)
		}
		u.dest[k] = p
		pos := half
		if u.env.Display.ID != overlay.DisplayPrimary {
			pos = actionSafe(pos, u.env.Display.XRes, u.env.Display.YRes,
				u.env.ActionSafeWidth, u.env.ActionSafeHeight)
		}
		if err := configureFramebufferPipe(u.env.Pool, p, target, half, pos, z); err != nil {
			return err
		}
	}
	u.on = true
	return nil
}

func (u *splitUpdater) Draw(target *Buffer) error {
	if !u.on {
		return nil
	}
	if target == nil {
		return fmt.Errorf("%w: framebuffer target has no buffer", ErrInvalidList)
	}
	for _, p := range u.dest {
		if !p.Valid() {
			continue
		}
		if err := u.env.Pool.QueueBuffer(p, target.FD, target.Offset); err != nil {
			return &PipeError{Op: "queue", Layer: -1, Pipe: p, Err: err}
		}
	}
	return nil
}

func framebufferTarget(list *LayerList) (*Layer, error) {
	if list.Target == nil || list.Target.Buffer == nil {
		return nil, fmt.Errorf("%w: no framebuffer target", ErrInvalidList)
	}
	return list.Target, nil
}

// framebufferCrop returns the part of the target to scan out. A batch at
// zorder 0 is the bottom of the mixer and covers the whole target; higher
// batches only scan the region app layers cover.
func framebufferCrop(list *LayerList, target *Layer, z int) image.Rectangle {
	if z == 0 {
		return target.SourceCrop
	}
	return nonWormholeRegion(list, target.SourceCrop)
}

func configureFramebufferPipe(pool overlay.Pool, p overlay.Pipe, target *Layer, crop, pos image.Rectangle, z int) error {
	blending := target.Blending
	if blending == gputypes.CompositeAlphaModeAuto {
		blending = gputypes.CompositeAlphaModePremultiplied
	}
	cfg := overlay.PipeConfig{
		Source:     target.Buffer.sourceInfo(),
		Crop:       crop,
		Position:   pos,
		Transform:  target.Transform,
		ZOrder:     z,
		PlaneAlpha: 0xFF,
		Blending:   blending,
		Flags:      overlay.FlagBlendPremult,
	}
	if err := pool.Configure(p, cfg); err != nil {
		return &PipeError{Op: "configure", Layer: -1, Pipe: p, Err: err}
	}
	if err := pool.Commit(p); err != nil {
		return &PipeError{Op: "commit", Layer: -1, Pipe: p, Err: err}
	}
	return nil
}
