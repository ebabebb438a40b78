package hwc

import (
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/hwc/overlay"
)

// BufferType tags the content class of a buffer.
type BufferType uint8

const (
	// BufferUI is generic RGB user-interface content.
	BufferUI BufferType = iota
	// BufferVideo is YUV video content, subject to narrower overlay rules.
	BufferVideo
)

// Buffer is a graphics buffer handle. Handles are compared by identity:
// a buffer whose pointer is unchanged across frames has unchanged contents.
type Buffer struct {
	FD     int
	Offset uint32
	Width  int
	Height int
	Format gputypes.TextureFormat
	Type   BufferType
	Secure bool
	// Size is the buffer size in bytes.
	Size int

	// Image holds CPU-visible contents for the software path. May be nil.
	Image image.Image
}

// IsVideo reports whether b holds YUV content.
func (b *Buffer) IsVideo() bool { return b != nil && b.Type == BufferVideo }

// sourceInfo describes b for a pipe or rotator source.
func (b *Buffer) sourceInfo() overlay.SourceInfo {
	//nolint:gosec // G115: clamped to non-negative
	return overlay.SourceInfo{
		Size:     gputypes.NewExtent2D(uint32(max(b.Width, 0)), uint32(max(b.Height, 0))),
		Format:   b.Format,
		ByteSize: b.Size,
		Video:    b.Type == BufferVideo,
	}
}

// LayerFlags are per-layer composition flags set by the window system.
type LayerFlags uint32

const (
	// LayerSkip marks a layer the composer must not touch; it is always drawn
	// by the framebuffer path.
	LayerSkip LayerFlags = 1 << iota
)

// Layer is one surface submitted for composition. The composer never
// modifies a Layer.
type Layer struct {
	Buffer       *Buffer
	SourceCrop   image.Rectangle
	DisplayFrame image.Rectangle
	Transform    overlay.Transform
	Blending     gputypes.CompositeAlphaMode
	PlaneAlpha   uint8
	Flags        LayerFlags
}

// IsSkip reports whether the layer is flagged skip-composition.
func (l *Layer) IsSkip() bool { return l.Flags&LayerSkip != 0 }

// IsVideo reports whether the layer carries a YUV buffer.
func (l *Layer) IsVideo() bool { return l.Buffer.IsVideo() }

// cropSize returns the crop extent in destination orientation.
func (l *Layer) cropSize() (w, h int) {
	if l.Transform.Has90() {
		return l.SourceCrop.Dy(), l.SourceCrop.Dx()
	}
	return l.SourceCrop.Dx(), l.SourceCrop.Dy()
}

// needsScaling reports whether crop and destination extents differ.
func (l *Layer) needsScaling() bool {
	w, h := l.cropSize()
	return w != l.DisplayFrame.Dx() || h != l.DisplayFrame.Dy()
}

// hasAlpha reports whether the layer blends with what is below it through
// per-pixel alpha.
func (l *Layer) hasAlpha() bool {
	if l.Blending == gputypes.CompositeAlphaModeOpaque || l.Buffer == nil {
		return false
	}
	return formatHasAlpha(l.Buffer.Format)
}

// isAlphaScaled reports whether the layer is downscaled while blending
// through per-pixel alpha.
func (l *Layer) isAlphaScaled() bool {
	if !l.hasAlpha() {
		return false
	}
	w, h := l.cropSize()
	return l.DisplayFrame.Dx() < w || l.DisplayFrame.Dy() < h
}

func formatHasAlpha(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatRGB10A2Unorm,
		gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatRGBA32Float:
		return true
	}
	return false
}

// LayerList is the set of layers submitted for one display and frame.
type LayerList struct {
	// Layers are the application layers, bottom-most first.
	Layers []Layer
	// Target is the framebuffer target the GPU path renders into.
	Target *Layer
	// GeometryChanged is set when any layer's geometry changed this frame.
	GeometryChanged bool
}

// listStats summarizes a layer list once per frame.
type listStats struct {
	numAppLayers    int
	skipCount       int
	planeAlpha      bool
	needsAlphaScale bool
	needsRotator    bool
	yuvIndices      []int
}

func (s *listStats) update(list *LayerList) {
	s.numAppLayers = len(list.Layers)
	s.skipCount = 0
	s.planeAlpha = false
	s.needsAlphaScale = false
	s.needsRotator = false
	s.yuvIndices = s.yuvIndices[:0]
	for i := range list.Layers {
		l := &list.Layers[i]
		if l.IsSkip() {
			s.skipCount++
		}
		if l.PlaneAlpha < 0xFF {
			s.planeAlpha = true
		}
		if l.isAlphaScaled() {
			s.needsAlphaScale = true
		}
		if l.IsVideo() {
			s.yuvIndices = append(s.yuvIndices, i)
			if l.Transform.Has90() {
				s.needsRotator = true
			}
		}
	}
}

func (s *listStats) skipPresent() bool { return s.skipCount > 0 }

func (s *listStats) yuvPresent() bool { return len(s.yuvIndices) > 0 }
