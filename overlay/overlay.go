// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package overlay defines the hardware overlay vocabulary shared by the
// composition planner and the display driver: pipes, pipe types, transforms,
// source descriptions and the pool and rotator interfaces the planner drives.
//
// The planner never talks to hardware directly. A driver implements [Pool]
// (and optionally [Releaser] and [FrameScoped]); [SimPool] is an in-memory
// implementation used by tests and the simulator.
package overlay

import (
	"image"

	"github.com/gogpu/gputypes"
)

// Display identifies a physical or virtual display.
type Display int

const (
	// DisplayPrimary is the built-in panel.
	DisplayPrimary Display = iota
	// DisplayExternal is an HDMI or similar external output.
	DisplayExternal
	// DisplayVirtual is a virtual (wifi/writeback) display.
	DisplayVirtual
)

// String returns the display name used in dumps.
func (d Display) String() string {
	switch d {
	case DisplayPrimary:
		return "PRIMARY"
	case DisplayExternal:
		return "EXTERNAL"
	case DisplayVirtual:
		return "VIRTUAL"
	default:
		return "UNKNOWN"
	}
}

// PipeType selects the class of overlay pipe requested from a [Pool].
type PipeType int

const (
	// PipeAny accepts an RGB pipe, then a VG pipe.
	PipeAny PipeType = iota
	// PipeDMA requests a scale-free DMA pipe, falling back to RGB, then VG.
	PipeDMA
	// PipeRGB requests an RGB pipe only.
	PipeRGB
	// PipeVG requests a video-capable VG pipe only.
	PipeVG
)

// String returns the pipe type name.
func (t PipeType) String() string {
	switch t {
	case PipeAny:
		return "ANY"
	case PipeDMA:
		return "DMA"
	case PipeRGB:
		return "RGB"
	case PipeVG:
		return "VG"
	default:
		return "UNKNOWN"
	}
}

// Pipe is an opaque pipe identifier handed out by a [Pool].
type Pipe int

// PipeInvalid is the "no pipe" sentinel.
const PipeInvalid Pipe = -1

// Valid reports whether p names a pipe.
func (p Pipe) Valid() bool { return p != PipeInvalid }

// Transform is a layer transform bitmask. The bit layout matches the
// composer HAL: FlipH=1, FlipV=2, Rot90=4.
type Transform uint8

const (
	TransformNone   Transform = 0
	TransformFlipH  Transform = 1
	TransformFlipV  Transform = 2
	TransformRot90  Transform = 4
	TransformRot180 Transform = TransformFlipH | TransformFlipV
	TransformRot270 Transform = TransformRot180 | TransformRot90
)

// Has90 reports whether t contains a 90 degree class rotation.
func (t Transform) Has90() bool { return t&TransformRot90 != 0 }

// SourceInfo describes the buffer scanned by a pipe.
type SourceInfo struct {
	Size   gputypes.Extent3D
	Format gputypes.TextureFormat
	// ByteSize is the buffer size in bytes.
	ByteSize int
	// Video marks YUV content.
	Video bool
}

// Flags are per-pipe mixer flags.
type Flags uint32

const (
	// FlagBlendPremult blends the pipe as premultiplied foreground.
	FlagBlendPremult Flags = 1 << iota
	// FlagBackendComposition marks a pipe programmed by the composition planner.
	FlagBackendComposition
	// FlagForeground marks the bottom-most stage of the mixer.
	FlagForeground
	// FlagSecure marks protected content.
	FlagSecure
)

// PipeConfig is the full configuration applied to a pipe before commit.
type PipeConfig struct {
	Source     SourceInfo
	Crop       image.Rectangle
	Position   image.Rectangle
	Transform  Transform
	ZOrder     int
	PlaneAlpha uint8
	Blending   gputypes.CompositeAlphaMode
	Flags      Flags
}

// Pool is the overlay driver's pipe pool for one or more displays.
//
// NextPipe returns false when no pipe of the requested class is free.
// Exhaustion is a planning signal, not an error.
type Pool interface {
	// NextPipe reserves a free pipe of class t (PipeDMA, PipeRGB or PipeVG)
	// for display dpy. Fallback between classes is resolved by the caller.
	NextPipe(t PipeType, dpy Display) (Pipe, bool)

	// AvailablePipes reports how many pipes are still free for dpy.
	AvailablePipes(dpy Display) int

	// Configure stages cfg on pipe p.
	Configure(p Pipe, cfg PipeConfig) error

	// Commit applies the staged configuration of p to hardware.
	Commit(p Pipe) error

	// QueueBuffer queues the buffer at fd/offset for scan-out on p.
	QueueBuffer(p Pipe, fd int, offset uint32) error
}

// Releaser is implemented by pools that accept explicit release of a pipe
// reserved this frame. Pools without it reclaim pipes on their own schedule.
type Releaser interface {
	Release(p Pipe)
}

// FrameScoped is implemented by pools that garbage-collect a display's pipes
// at the start of each frame.
type FrameScoped interface {
	BeginFrame(dpy Display)
}

// Rotator is a rotator session borrowed for one frame.
type Rotator interface {
	// Configure prepares the rotator for src rotated by t.
	Configure(src SourceInfo, t Transform) error
	// QueueBuffer rotates the buffer at fd/offset.
	QueueBuffer(fd int, offset uint32) error
	// OutputBuffer returns the fd of the rotated output.
	OutputBuffer() int
	// OutputOffset returns the offset of the rotated output.
	OutputOffset() uint32
}

// RotatorPool hands out rotator sessions.
type RotatorPool interface {
	Next() (Rotator, bool)
}

// DMAUser is implemented by rotator pools whose rotator runs on the DMA
// engine that also feeds the DMA pipes. Composers report whether their
// display holds a DMA pipe after every change.
type DMAUser interface {
	SetDMAInUse(dpy Display, inUse bool)
}
