package hwc

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/hwc/overlay"
)

// dispatchState is the position of the dispatcher in its per-frame cycle.
type dispatchState int

const (
	stateIdle dispatchState = iota
	statePipesAllocated
	stateProgrammed
	stateSubmitted
)

func (s dispatchState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case statePipesAllocated:
		return "pipes-allocated"
	case stateProgrammed:
		return "programmed"
	case stateSubmitted:
		return "submitted"
	default:
		return fmt.Sprintf("dispatchState(%d)", int(s))
	}
}

// dispatcher turns a finalized FrameSnapshot into pipe operations:
// allocate, program at Prepare time and submit at Draw time.
type dispatcher struct {
	state dispatchState

	pool     overlay.Pool
	rotators overlay.RotatorPool
	alloc    *pipeAllocator
	planner  *planner
	frame    *FrameSnapshot
	stats    *listStats
	log      *slog.Logger

	actionSafeW, actionSafeH int
}

// reset returns the dispatcher to idle without touching the pool.
func (d *dispatcher) reset() { d.state = stateIdle }

// allocate acquires a pipe for the base layer and every hardware slot.
// Video layers are served first so that UI layers cannot starve them of
// VG pipes.
func (d *dispatcher) allocate(list *LayerList) error {
	if d.state != stateIdle {
		return fmt.Errorf("hwc: allocate in state %s", d.state)
	}
	f := d.frame

	if !f.fbComposed[0] && d.planner.needsBasePipe(&list.Layers[0]) {
		p, ok := d.alloc.acquire(overlay.PipeAny)
		if !ok {
			return fmt.Errorf("%w: base pipe", ErrNoPipes)
		}
		f.BasePipe = p
	}

	for _, i := range d.stats.yuvIndices {
		if f.fbComposed[i] {
			continue
		}
		slot := &f.slots[f.layerToSlot[i]]
		p, ok := d.alloc.acquire(overlay.PipeVG)
		if !ok {
			return fmt.Errorf("%w: video layer %d", ErrNoPipes, i)
		}
		slot.Pipe = p
		if list.Layers[i].Transform.Has90() {
			if d.rotators == nil {
				return fmt.Errorf("%w: no rotator for layer %d", ErrNoPipes, i)
			}
			r, ok := d.rotators.Next()
			if !ok {
				return fmt.Errorf("%w: rotator for layer %d", ErrNoPipes, i)
			}
			slot.Rotator = r
		}
	}

	for i := range f.LayerCount {
		layer := &list.Layers[i]
		if f.fbComposed[i] || layer.IsVideo() {
			continue
		}
		t := overlay.PipeAny
		if !layer.needsScaling() && !d.stats.needsRotator && d.planner.caps.DMAWithoutScale {
			t = overlay.PipeDMA
		}
		p, ok := d.alloc.acquire(t)
		if !ok {
			return fmt.Errorf("%w: layer %d", ErrNoPipes, i)
		}
		f.slots[f.layerToSlot[i]].Pipe = p
	}

	d.state = statePipesAllocated
	return nil
}

// program assigns zorders and configures and commits every pipe. The base
// pipe takes zorder 0, the framebuffer batch takes one zorder at its
// position, and hardware layers take the rest in index order.
func (d *dispatcher) program(list *LayerList) error {
	if d.state != statePipesAllocated {
		return fmt.Errorf("hwc: program in state %s", d.state)
	}
	f := d.frame

	z := 0
	if f.BasePipe.Valid() {
		if err := d.programBase(f.BasePipe); err != nil {
			return err
		}
		z = 1
	}

	fbBatch := false
	for i := range f.LayerCount {
		if f.fbComposed[i] {
			if !fbBatch {
				z++
				fbBatch = true
			}
			continue
		}
		slot := &f.slots[f.layerToSlot[i]]
		slot.ZOrder = z
		z++
		if err := d.programLayer(i, &list.Layers[i], slot); err != nil {
			return err
		}
	}

	d.state = stateProgrammed
	return nil
}

// programBase fills the display with an opaque stage at zorder 0.
func (d *dispatcher) programBase(p overlay.Pipe) error {
	attrs := d.planner.attrs
	w, h := attrs.bounds()
	stride := attrs.Stride
	if stride == 0 {
		stride = w * 4
	}
	screen := image.Rect(0, 0, w, h)
	//nolint:gosec // G115: display extents are positive
	cfg := overlay.PipeConfig{
		Source: overlay.SourceInfo{
			Size:     gputypes.NewExtent2D(uint32(w), uint32(h)),
			Format:   gputypes.TextureFormatBGRA8Unorm,
			ByteSize: stride * h,
		},
		Crop:       screen,
		Position:   screen,
		ZOrder:     0,
		PlaneAlpha: 0xFF,
		Blending:   gputypes.CompositeAlphaModeOpaque,
		Flags:      overlay.FlagBlendPremult | overlay.FlagForeground,
	}
	if err := d.pool.Configure(p, cfg); err != nil {
		return &PipeError{Op: "configure", Layer: -1, Pipe: p, Err: err}
	}
	if err := d.pool.Commit(p); err != nil {
		return &PipeError{Op: "commit", Layer: -1, Pipe: p, Err: err}
	}
	return nil
}

// programLayer configures the pipe of layer i. A layer with a rotator is
// scanned from the rotator output, so the pipe sees an untransformed source.
func (d *dispatcher) programLayer(i int, layer *Layer, slot *PipeSlot) error {
	w, h := d.planner.attrs.bounds()
	screen := image.Rect(0, 0, w, h)
	crop, dst := layer.SourceCrop, layer.DisplayFrame
	if !dst.In(screen) {
		crop, dst = clipToScissor(crop, dst, screen, layer.Transform)
	}
	if d.planner.attrs.ID == overlay.DisplayExternal {
		dst = actionSafe(dst, w, h, d.actionSafeW, d.actionSafeH)
	}

	src := layer.Buffer.sourceInfo()
	transform := layer.Transform
	if slot.Rotator != nil {
		if err := slot.Rotator.Configure(src, transform); err != nil {
			return &PipeError{Op: "rotate", Layer: i, Pipe: slot.Pipe, Err: err}
		}
		crop = rotateRect(crop, layer.Buffer.Width, layer.Buffer.Height, transform)
		if transform.Has90() {
			src.Size.Width, src.Size.Height = src.Size.Height, src.Size.Width
		}
		transform = overlay.TransformNone
	}

	flags := overlay.FlagBackendComposition
	if slot.ZOrder == 0 {
		flags |= overlay.FlagForeground
	}
	if layer.Blending == gputypes.CompositeAlphaModePremultiplied {
		flags |= overlay.FlagBlendPremult
	}
	if layer.Buffer.Secure {
		flags |= overlay.FlagSecure
	}

	cfg := overlay.PipeConfig{
		Source:     src,
		Crop:       crop,
		Position:   dst,
		Transform:  transform,
		ZOrder:     slot.ZOrder,
		PlaneAlpha: layer.PlaneAlpha,
		Blending:   layer.Blending,
		Flags:      flags,
	}
	if err := d.pool.Configure(slot.Pipe, cfg); err != nil {
		return &PipeError{Op: "configure", Layer: i, Pipe: slot.Pipe, Err: err}
	}
	if err := d.pool.Commit(slot.Pipe); err != nil {
		return &PipeError{Op: "commit", Layer: i, Pipe: slot.Pipe, Err: err}
	}
	return nil
}

// submit queues the base pipe and every pending hardware layer in index
// order, redirecting rotated layers through their rotator's output. A
// second submit in the same frame only queues layers still pending.
func (d *dispatcher) submit(list *LayerList) error {
	if d.state != stateProgrammed && d.state != stateSubmitted {
		return ErrNotPrepared
	}
	f := d.frame

	if d.state == stateProgrammed && f.BasePipe.Valid() {
		if err := d.pool.QueueBuffer(f.BasePipe, -1, 0); err != nil {
			return &PipeError{Op: "queue", Layer: -1, Pipe: f.BasePipe, Err: err}
		}
	}

	for i := range f.LayerCount {
		if f.fbComposed[i] || !f.pending[i] {
			continue
		}
		buf := list.Layers[i].Buffer
		if buf == nil {
			return fmt.Errorf("%w: layer %d has no buffer", ErrInvalidList, i)
		}
		slot := &f.slots[f.layerToSlot[i]]
		if !slot.Pipe.Valid() {
			return fmt.Errorf("%w: layer %d has no pipe", ErrNoPipes, i)
		}

		fd, offset := buf.FD, buf.Offset
		if r := slot.Rotator; r != nil {
			if err := r.QueueBuffer(fd, offset); err != nil {
				return &PipeError{Op: "rotate", Layer: i, Pipe: slot.Pipe, Err: err}
			}
			fd, offset = r.OutputBuffer(), r.OutputOffset()
		}
		if err := d.pool.QueueBuffer(slot.Pipe, fd, offset); err != nil {
			return &PipeError{Op: "queue", Layer: i, Pipe: slot.Pipe, Err: err}
		}
		f.pending[i] = false
		if d.planner.verbose {
			d.log.Debug("queued", "layer", i, "pipe", int(slot.Pipe), "fd", fd)
		}
	}

	d.state = stateSubmitted
	return nil
}

// rotateRect maps r, given in the coordinates of a w x h buffer, into the
// coordinates of that buffer after transform t. Flips apply before the 90
// degree clockwise rotation.
func rotateRect(r image.Rectangle, w, h int, t overlay.Transform) image.Rectangle {
	if t&overlay.TransformFlipH != 0 {
		r.Min.X, r.Max.X = w-r.Max.X, w-r.Min.X
	}
	if t&overlay.TransformFlipV != 0 {
		r.Min.Y, r.Max.Y = h-r.Max.Y, h-r.Min.Y
	}
	if t.Has90() {
		r = image.Rect(h-r.Max.Y, r.Min.X, h-r.Min.Y, r.Max.X)
	}
	return r
}
