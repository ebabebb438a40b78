package hwc

import "github.com/gogpu/hwc/overlay"

// PipeSlot is the pipe assignment of one hardware-composed layer.
type PipeSlot struct {
	// Layer is the app layer index this slot carries.
	Layer int
	// Pipe is the overlay pipe, overlay.PipeInvalid until allocated.
	Pipe overlay.Pipe
	// ZOrder is the mixer stage, -1 until programmed.
	ZOrder int
	// Rotator is borrowed from the rotator pool for this frame only.
	Rotator overlay.Rotator
}

// FrameSnapshot records the composition decision for one frame.
//
// The per-layer vectors are sized to LayerCount and reuse their capacity
// from frame to frame.
type FrameSnapshot struct {
	LayerCount int
	HWCount    int
	FBCount    int
	// FBZ is the zorder of the framebuffer batch, -1 when the framebuffer is
	// bypassed.
	FBZ         int
	NeedsRedraw bool
	BasePipe    overlay.Pipe

	fbComposed  []bool
	layerToSlot []int
	slots       []PipeSlot
	// pending marks hardware layers not yet queued by Draw this frame.
	pending []bool
}

// reset makes every layer framebuffer-composed.
func (f *FrameSnapshot) reset(n int) {
	f.LayerCount = n
	f.FBCount = n
	f.HWCount = 0
	f.FBZ = 0
	f.NeedsRedraw = true
	f.BasePipe = overlay.PipeInvalid

	f.fbComposed = resize(f.fbComposed, n)
	f.layerToSlot = resize(f.layerToSlot, n)
	f.pending = resize(f.pending, n)
	for i := range n {
		f.fbComposed[i] = true
		f.layerToSlot[i] = -1
		f.pending[i] = false
	}
	// Rotators are not ours; drop the references.
	clear(f.slots)
	f.slots = f.slots[:0]
}

// setAllHardware marks every layer hardware-composed.
func (f *FrameSnapshot) setAllHardware() {
	for i := range f.LayerCount {
		f.fbComposed[i] = false
	}
	f.HWCount = f.LayerCount
	f.FBCount = 0
	f.FBZ = -1
}

// setFramebuffer moves layer i between the two sets, keeping the counts.
func (f *FrameSnapshot) setFramebuffer(i int, fb bool) {
	if f.fbComposed[i] == fb {
		return
	}
	f.fbComposed[i] = fb
	if fb {
		f.FBCount++
	} else {
		f.FBCount--
	}
	f.HWCount = f.LayerCount - f.FBCount
}

// mapSlots builds the layer to pipe-slot tables from the final split.
func (f *FrameSnapshot) mapSlots() {
	f.slots = f.slots[:0]
	for i := range f.LayerCount {
		if f.fbComposed[i] {
			f.layerToSlot[i] = -1
			continue
		}
		f.layerToSlot[i] = len(f.slots)
		f.slots = append(f.slots, PipeSlot{Layer: i, Pipe: overlay.PipeInvalid, ZOrder: -1})
	}
}

// IsHardwareComposed reports whether layer i is scanned out by an overlay pipe.
func (f FrameSnapshot) IsHardwareComposed(i int) bool {
	return i >= 0 && i < f.LayerCount && !f.fbComposed[i]
}

// SlotOf returns the pipe slot of layer i, or false for framebuffer layers.
func (f FrameSnapshot) SlotOf(i int) (PipeSlot, bool) {
	if i < 0 || i >= f.LayerCount || f.layerToSlot[i] < 0 {
		return PipeSlot{}, false
	}
	return f.slots[f.layerToSlot[i]], true
}

// Slots returns a copy of the pipe assignment table in layer order.
func (f FrameSnapshot) Slots() []PipeSlot {
	return append([]PipeSlot(nil), f.slots...)
}

// clone returns a deep copy that shares no vectors with f.
func (f *FrameSnapshot) clone() FrameSnapshot {
	c := *f
	c.fbComposed = append([]bool(nil), f.fbComposed[:f.LayerCount]...)
	c.layerToSlot = append([]int(nil), f.layerToSlot[:f.LayerCount]...)
	c.pending = append([]bool(nil), f.pending[:f.LayerCount]...)
	c.slots = append([]PipeSlot(nil), f.slots...)
	return c
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}
