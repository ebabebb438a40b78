package hwc

import (
	"image"

	"github.com/gogpu/hwc/overlay"
)

// clipToScissor clips dst to scissor and trims crop by the same fractions,
// mapping each cut edge of dst back to the crop edge it came from under
// transform t.
func clipToScissor(crop, dst, scissor image.Rectangle, t overlay.Transform) (image.Rectangle, image.Rectangle) {
	dstW, dstH := dst.Dx(), dst.Dy()
	if dstW <= 0 || dstH <= 0 {
		return crop, dst
	}
	cropW, cropH := crop.Dx(), crop.Dy()

	var left, top, right, bottom float64
	if dst.Min.X < scissor.Min.X {
		left = float64(scissor.Min.X-dst.Min.X) / float64(dstW)
		dst.Min.X = scissor.Min.X
	}
	if dst.Max.X > scissor.Max.X {
		right = float64(dst.Max.X-scissor.Max.X) / float64(dstW)
		dst.Max.X = scissor.Max.X
	}
	if dst.Min.Y < scissor.Min.Y {
		top = float64(scissor.Min.Y-dst.Min.Y) / float64(dstH)
		dst.Min.Y = scissor.Min.Y
	}
	if dst.Max.Y > scissor.Max.Y {
		bottom = float64(dst.Max.Y-scissor.Max.Y) / float64(dstH)
		dst.Max.Y = scissor.Max.Y
	}

	// Destination edges to source edges.
	if t&overlay.TransformFlipH != 0 {
		left, right = right, left
	}
	if t&overlay.TransformFlipV != 0 {
		top, bottom = bottom, top
	}
	if t.Has90() {
		left, top, right, bottom = top, right, bottom, left
	}

	crop.Min.X += int(float64(cropW) * left)
	crop.Min.Y += int(float64(cropH) * top)
	crop.Max.X -= int(float64(cropW) * right)
	crop.Max.Y -= int(float64(cropH) * bottom)
	return crop, dst
}

// nonWormholeRegion returns the bounding rectangle of every app layer's
// destination, clipped to bounds. The framebuffer pipe only needs to scan
// this part of the target.
func nonWormholeRegion(list *LayerList, bounds image.Rectangle) image.Rectangle {
	var r image.Rectangle
	for i := range list.Layers {
		r = r.Union(list.Layers[i].DisplayFrame)
	}
	return r.Intersect(bounds)
}

// actionSafe shrinks pos by the given percentages of the display extent,
// centered, for TV outputs that overscan.
func actionSafe(pos image.Rectangle, w, h, pctW, pctH int) image.Rectangle {
	if (pctW <= 0 && pctH <= 0) || w <= 0 || h <= 0 {
		return pos
	}
	dx := w * pctW / 200
	dy := h * pctH / 200
	fx := float64(w-2*dx) / float64(w)
	fy := float64(h-2*dy) / float64(h)
	return image.Rect(
		dx+int(float64(pos.Min.X)*fx),
		dy+int(float64(pos.Min.Y)*fy),
		dx+int(float64(pos.Max.X)*fx),
		dy+int(float64(pos.Max.Y)*fy),
	)
}
