package main

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/hwc"
	"github.com/gogpu/hwc/overlay"
)

// Scenario is a scripted run: one display, one pipe pool and a sequence of
// frames submitted to the composer.
type Scenario struct {
	Display  DisplaySpec     `json:"display"`
	Pool     PoolSpec        `json:"pool"`
	Rotators int             `json:"rotators"`
	HWC      json.RawMessage `json:"hwc"`
	Frames   []FrameSpec     `json:"frames"`
}

// DisplaySpec describes the simulated panel.
type DisplaySpec struct {
	Width       int  `json:"width"`
	Height      int  `json:"height"`
	External    bool `json:"external"`
	CommandMode bool `json:"command_mode"`
}

// PoolSpec sizes the simulated pipe pool. Reserved pipes are held by
// another display.
type PoolSpec struct {
	VG       int `json:"vg"`
	RGB      int `json:"rgb"`
	DMA      int `json:"dma"`
	Reserved int `json:"reserved"`
}

// FrameSpec is one frame of a scenario.
type FrameSpec struct {
	Layers          []LayerSpec `json:"layers"`
	GeometryChanged bool        `json:"geometry_changed"`
	// Idle requests an idle fallback before the frame is prepared.
	Idle     bool `json:"idle"`
	Securing bool `json:"securing"`
}

// LayerSpec describes one layer. Layers naming the same buffer share one
// handle, so a buffer name that repeats across frames is an unchanged
// layer.
type LayerSpec struct {
	Buffer     string `json:"buffer"`
	Label      string `json:"label"`
	Color      string `json:"color"`
	Video      bool   `json:"video"`
	Size       []int  `json:"size"`
	Crop       []int  `json:"crop"`
	Dst        []int  `json:"dst"`
	Transform  string `json:"transform"`
	Blending   string `json:"blending"`
	PlaneAlpha *int   `json:"plane_alpha"`
	Skip       bool   `json:"skip"`
}

// Flags holds CLI flag values that override scenario settings. Negative
// values leave the scenario unchanged.
type Flags struct {
	Width, Height int
	VG, RGB, DMA  int
	Rotators      int
}

// LoadScenario reads a JSON scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: parse %s: %w", path, err)
	}
	return &sc, nil
}

// Resolve applies flag overrides and fills in defaults.
func (s *Scenario) Resolve(flags Flags) {
	if flags.Width > 0 {
		s.Display.Width = flags.Width
	}
	if flags.Height > 0 {
		s.Display.Height = flags.Height
	}
	if flags.VG >= 0 {
		s.Pool.VG = flags.VG
	}
	if flags.RGB >= 0 {
		s.Pool.RGB = flags.RGB
	}
	if flags.DMA >= 0 {
		s.Pool.DMA = flags.DMA
	}
	if flags.Rotators >= 0 {
		s.Rotators = flags.Rotators
	}

	if s.Display.Width <= 0 {
		s.Display.Width = 480
	}
	if s.Display.Height <= 0 {
		s.Display.Height = 800
	}
}

// Attributes returns the composer's view of the display.
func (s *Scenario) Attributes() hwc.DisplayAttributes {
	id := overlay.DisplayPrimary
	if s.Display.External {
		id = overlay.DisplayExternal
	}
	return hwc.DisplayAttributes{
		ID:          id,
		XRes:        s.Display.Width,
		YRes:        s.Display.Height,
		Stride:      s.Display.Width * 4,
		CommandMode: s.Display.CommandMode,
	}
}

// Config returns the composer configuration embedded in the scenario.
func (s *Scenario) Config() (hwc.Config, error) {
	if len(s.HWC) == 0 {
		return hwc.DefaultConfig(), nil
	}
	return hwc.ParseConfig(s.HWC)
}

func parseRect(v []int, def image.Rectangle) (image.Rectangle, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 4:
		return image.Rect(v[0], v[1], v[2], v[3]), nil
	default:
		return image.Rectangle{}, fmt.Errorf("rectangle wants 4 values, got %d", len(v))
	}
}

func parseTransform(name string) (overlay.Transform, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return overlay.TransformNone, nil
	case "fliph":
		return overlay.TransformFlipH, nil
	case "flipv":
		return overlay.TransformFlipV, nil
	case "rot90":
		return overlay.TransformRot90, nil
	case "rot180":
		return overlay.TransformRot180, nil
	case "rot270":
		return overlay.TransformRot270, nil
	}
	return 0, fmt.Errorf("unknown transform %q", name)
}

func parseBlending(name string) (gputypes.CompositeAlphaMode, error) {
	switch strings.ToLower(name) {
	case "", "opaque":
		return gputypes.CompositeAlphaModeOpaque, nil
	case "premultiplied":
		return gputypes.CompositeAlphaModePremultiplied, nil
	case "coverage", "unpremultiplied":
		return gputypes.CompositeAlphaModeUnpremultiplied, nil
	}
	return 0, fmt.Errorf("unknown blending %q", name)
}

// parseColor accepts #rrggbb and #rrggbbaa. The result is premultiplied.
func parseColor(s string) (color.RGBA, error) {
	if s == "" {
		return color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("bad color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad color %q: %w", s, err)
	}
	c := color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
	return color.RGBAModel.Convert(c).(color.RGBA), nil
}

// defaultScenario is a short video playback session on a portrait panel:
// a UI over video, a UI update while the status bar stays put, an idle
// frame and a rotated video.
func defaultScenario() *Scenario {
	wallpaper := LayerSpec{Buffer: "wallpaper", Label: "wallpaper", Color: "#203040", Dst: []int{0, 0, 480, 800}}
	video := LayerSpec{Buffer: "video-1", Label: "video", Color: "#c04020", Video: true, Size: []int{480, 270}, Dst: []int{0, 200, 480, 470}}
	controls := LayerSpec{Buffer: "controls-1", Label: "controls", Color: "#10101080", Blending: "premultiplied", Dst: []int{0, 600, 480, 760}}
	status := LayerSpec{Buffer: "status", Label: "status bar", Color: "#000000", Dst: []int{0, 0, 480, 40}}

	video2 := video
	video2.Buffer = "video-2"
	controls2 := controls
	controls2.Buffer = "controls-2"
	rotated := video
	rotated.Buffer = "video-3"
	rotated.Size = []int{270, 480}
	rotated.Transform = "rot90"

	return &Scenario{
		Display:  DisplaySpec{Width: 480, Height: 800},
		Pool:     PoolSpec{VG: 2, RGB: 2, DMA: 1},
		Rotators: 1,
		Frames: []FrameSpec{
			{Layers: []LayerSpec{wallpaper, video, controls, status}, GeometryChanged: true},
			{Layers: []LayerSpec{wallpaper, video2, controls2, status}},
			{Layers: []LayerSpec{wallpaper, video, controls2, status}, Idle: true},
			{Layers: []LayerSpec{wallpaper, rotated, controls2, status}, GeometryChanged: true},
		},
	}
}
