package main

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/hwc"
)

// bufferStore hands out buffer handles by name and remembers the image
// behind every fd it allocated.
type bufferStore struct {
	byName map[string]*hwc.Buffer
	byFD   map[int]image.Image
	nextFD int
}

func newBufferStore(firstFD int) *bufferStore {
	return &bufferStore{
		byName: make(map[string]*hwc.Buffer),
		byFD:   make(map[int]image.Image),
		nextFD: firstFD,
	}
}

// buffer returns the handle named name, creating it from the layer description on first use.
func (s *bufferStore) buffer(name string, spec *LayerSpec, size image.Point) (*hwc.Buffer, error) {
	if b, ok := s.byName[name]; ok {
		return b, nil
	}
	c, err := parseColor(spec.Color)
	if err != nil {
		return nil, err
	}

	b := &hwc.Buffer{FD: s.nextFD, Width: size.X, Height: size.Y}
	s.nextFD++
	if spec.Video {
		b.Type = hwc.BufferVideo
		b.Format = gputypes.TextureFormatR8Unorm
		b.Size = size.X * size.Y * 3 / 2
		b.Image = videoFrame(size, c)
	} else {
		b.Format = gputypes.TextureFormatRGBA8Unorm
		b.Size = size.X * size.Y * 4
		b.Image = uiFrame(size, c, spec.Label)
	}
	s.byName[name] = b
	s.byFD[b.FD] = b.Image
	return b, nil
}

// lookup returns the contents queued under fd, or nil.
func (s *bufferStore) lookup(fd int) image.Image {
	return s.byFD[fd]
}

// uiFrame returns a premultiplied RGBA buffer filled with c and labelled.
func uiFrame(size image.Point, c color.RGBA, label string) *image.RGBA {
	img := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	drawLabel(img, label, c)
	return img
}

// videoFrame returns a 4:2:0 YCbCr buffer filled with c.
func videoFrame(size image.Point, c color.RGBA) *image.YCbCr {
	img := image.NewYCbCr(image.Rectangle{Max: size}, image.YCbCrSubsampleRatio420)
	y, cb, cr := color.RGBToYCbCr(c.R, c.G, c.B)
	for i := range img.Y {
		img.Y[i] = y
	}
	for i := range img.Cb {
		img.Cb[i] = cb
		img.Cr[i] = cr
	}
	return img
}

// drawLabel writes label in the top-left corner of img in a color that
// contrasts with bg.
func drawLabel(img *image.RGBA, label string, bg color.RGBA) {
	if label == "" {
		return
	}
	fg := color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	if int(bg.R)*299+int(bg.G)*587+int(bg.B)*114 > 128*1000 {
		fg = color.RGBA{A: 0xFF}
	}
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(4, 4+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(label)
}

// layerList builds the composer input for frame f.
func (s *bufferStore) layerList(f *FrameSpec, frame int, target *hwc.Layer) (*hwc.LayerList, error) {
	list := &hwc.LayerList{
		Layers:          make([]hwc.Layer, 0, len(f.Layers)),
		Target:          target,
		GeometryChanged: f.GeometryChanged,
	}
	for i := range f.Layers {
		spec := &f.Layers[i]
		l, err := s.layer(spec, frame, i)
		if err != nil {
			return nil, fmt.Errorf("frame %d layer %d: %w", frame, i, err)
		}
		list.Layers = append(list.Layers, l)
	}
	return list, nil
}

func (s *bufferStore) layer(spec *LayerSpec, frame, index int) (hwc.Layer, error) {
	dst, err := parseRect(spec.Dst, image.Rectangle{})
	if err != nil {
		return hwc.Layer{}, fmt.Errorf("dst: %w", err)
	}
	if dst.Empty() {
		return hwc.Layer{}, fmt.Errorf("dst: empty rectangle")
	}
	t, err := parseTransform(spec.Transform)
	if err != nil {
		return hwc.Layer{}, err
	}
	blending, err := parseBlending(spec.Blending)
	if err != nil {
		return hwc.Layer{}, err
	}

	size := dst.Size()
	if t.Has90() {
		size = image.Pt(size.Y, size.X)
	}
	switch len(spec.Size) {
	case 0:
	case 2:
		size = image.Pt(spec.Size[0], spec.Size[1])
	default:
		return hwc.Layer{}, fmt.Errorf("size wants 2 values, got %d", len(spec.Size))
	}
	crop, err := parseRect(spec.Crop, image.Rectangle{Max: size})
	if err != nil {
		return hwc.Layer{}, fmt.Errorf("crop: %w", err)
	}

	name := spec.Buffer
	if name == "" {
		name = fmt.Sprintf("frame%d/layer%d", frame, index)
	}
	b, err := s.buffer(name, spec, size)
	if err != nil {
		return hwc.Layer{}, err
	}

	alpha := uint8(0xFF)
	if spec.PlaneAlpha != nil {
		alpha = uint8(min(max(*spec.PlaneAlpha, 0), 0xFF))
	}
	l := hwc.Layer{
		Buffer:       b,
		SourceCrop:   crop,
		DisplayFrame: dst,
		Transform:    t,
		Blending:     blending,
		PlaneAlpha:   alpha,
	}
	if spec.Skip {
		l.Flags |= hwc.LayerSkip
	}
	return l, nil
}
