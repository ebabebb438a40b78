package hwc

// LayerCache remembers the previous frame's buffer handles and split so the
// planner can keep unchanged layers in the framebuffer batch.
//
// A handle equal to last frame's handle guarantees equal contents; the buffer
// allocator never reuses a handle for different pixels without reallocation.
type LayerCache struct {
	layerCount int
	handles    []*Buffer
	fbComposed []bool
}

// reset forgets everything; no layer is considered unchanged afterwards.
func (c *LayerCache) reset() {
	c.layerCount = 0
	clear(c.handles)
	c.handles = c.handles[:0]
	c.fbComposed = c.fbComposed[:0]
}

// cacheAll stores the handles of list.
func (c *LayerCache) cacheAll(list *LayerList) {
	n := len(list.Layers)
	c.handles = resize(c.handles, n)
	for i := range list.Layers {
		c.handles[i] = list.Layers[i].Buffer
	}
}

// updateCounts stores the split of frame.
func (c *LayerCache) updateCounts(frame *FrameSnapshot) {
	c.layerCount = frame.LayerCount
	c.fbComposed = resize(c.fbComposed, frame.LayerCount)
	copy(c.fbComposed, frame.fbComposed[:frame.LayerCount])
}

// isUnchanged reports whether layer i holds the same buffer as last frame.
func (c *LayerCache) isUnchanged(i int, list *LayerList) bool {
	if c.layerCount != len(list.Layers) || i >= len(c.handles) {
		return false
	}
	return c.handles[i] != nil && c.handles[i] == list.Layers[i].Buffer
}

// wasFramebuffer reports whether layer i was framebuffer-composed in the
// cached frame, that is whether its pixels are in the last framebuffer image.
func (c *LayerCache) wasFramebuffer(i int) bool {
	return i < c.layerCount && i < len(c.fbComposed) && c.fbComposed[i]
}

// isSameFrame reports whether frame has the cached split and every
// framebuffer-composed layer holds the cached buffer, in which case the last
// framebuffer image can be reused as is.
func (c *LayerCache) isSameFrame(frame *FrameSnapshot, list *LayerList) bool {
	if c.layerCount != frame.LayerCount || len(c.handles) < frame.LayerCount {
		return false
	}
	for i := range frame.LayerCount {
		if frame.fbComposed[i] != c.fbComposed[i] {
			return false
		}
		if frame.fbComposed[i] && c.handles[i] != list.Layers[i].Buffer {
			return false
		}
	}
	return true
}
