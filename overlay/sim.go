// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package overlay

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownPipe is returned by SimPool for a pipe it never handed out.
var ErrUnknownPipe = errors.New("overlay: unknown pipe")

// ErrNotConfigured is returned by SimPool when a pipe is committed before
// Configure or queued before Commit.
var ErrNotConfigured = errors.New("overlay: pipe not configured")

// ErrInjected is returned by SimPool operations listed in its failure set.
var ErrInjected = errors.New("overlay: injected failure")

// simPipe is one hardware pipe slot in SimPool.
type simPipe struct {
	typ     PipeType
	owner   Display
	inUse   bool
	cfg     PipeConfig
	staged  bool
	commits int
	fd      int
	offset  uint32
	queued  bool
}

// SimPool is an in-memory overlay driver.
//
// Pipes are reserved per display and reclaimed either explicitly (Release)
// or at the start of the display's next frame (BeginFrame), matching the
// generation based reuse of the real driver. Failures can be injected per
// operation for tests.
type SimPool struct {
	pipes []simPipe
	// reserved pipes per display that AvailablePipes hides, e.g. writeback.
	reserved map[Display]int

	failConfigure map[Pipe]bool
	failCommit    map[Pipe]bool
	failQueue     map[Pipe]bool
}

// NewSimPool creates a pool with the given number of pipes of each class.
// Pipe identifiers are assigned VG first, then RGB, then DMA.
func NewSimPool(vg, rgb, dma int) *SimPool {
	p := &SimPool{
		reserved:      make(map[Display]int),
		failConfigure: make(map[Pipe]bool),
		failCommit:    make(map[Pipe]bool),
		failQueue:     make(map[Pipe]bool),
	}
	for range vg {
		p.pipes = append(p.pipes, simPipe{typ: PipeVG, fd: -1})
	}
	for range rgb {
		p.pipes = append(p.pipes, simPipe{typ: PipeRGB, fd: -1})
	}
	for range dma {
		p.pipes = append(p.pipes, simPipe{typ: PipeDMA, fd: -1})
	}
	return p
}

// Reserve hides n free pipes from AvailablePipes for dpy.
func (p *SimPool) Reserve(dpy Display, n int) {
	p.reserved[dpy] = n
}

// FailConfigure makes Configure fail for pipe id.
func (p *SimPool) FailConfigure(id Pipe) { p.failConfigure[id] = true }

// FailCommit makes Commit fail for pipe id.
func (p *SimPool) FailCommit(id Pipe) { p.failCommit[id] = true }

// FailQueue makes QueueBuffer fail for pipe id.
func (p *SimPool) FailQueue(id Pipe) { p.failQueue[id] = true }

// ClearFailures removes every injected failure.
func (p *SimPool) ClearFailures() {
	clear(p.failConfigure)
	clear(p.failCommit)
	clear(p.failQueue)
}

// NextPipe implements Pool.
func (p *SimPool) NextPipe(t PipeType, dpy Display) (Pipe, bool) {
	for i := range p.pipes {
		sp := &p.pipes[i]
		if sp.inUse || sp.typ != t {
			continue
		}
		*sp = simPipe{typ: sp.typ, owner: dpy, inUse: true, fd: -1}
		return Pipe(i), true
	}
	return PipeInvalid, false
}

// AvailablePipes implements Pool.
func (p *SimPool) AvailablePipes(dpy Display) int {
	n := 0
	for i := range p.pipes {
		if !p.pipes[i].inUse {
			n++
		}
	}
	n -= p.reserved[dpy]
	return max(n, 0)
}

func (p *SimPool) pipe(id Pipe) (*simPipe, error) {
	if id < 0 || int(id) >= len(p.pipes) || !p.pipes[id].inUse {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPipe, id)
	}
	return &p.pipes[id], nil
}

// Configure implements Pool.
func (p *SimPool) Configure(id Pipe, cfg PipeConfig) error {
	sp, err := p.pipe(id)
	if err != nil {
		return err
	}
	if p.failConfigure[id] {
		return ErrInjected
	}
	sp.cfg = cfg
	sp.staged = true
	return nil
}

// Commit implements Pool.
func (p *SimPool) Commit(id Pipe) error {
	sp, err := p.pipe(id)
	if err != nil {
		return err
	}
	if p.failCommit[id] {
		return ErrInjected
	}
	if !sp.staged {
		return ErrNotConfigured
	}
	sp.commits++
	return nil
}

// QueueBuffer implements Pool.
func (p *SimPool) QueueBuffer(id Pipe, fd int, offset uint32) error {
	sp, err := p.pipe(id)
	if err != nil {
		return err
	}
	if p.failQueue[id] {
		return ErrInjected
	}
	if sp.commits == 0 {
		return ErrNotConfigured
	}
	sp.fd = fd
	sp.offset = offset
	sp.queued = true
	return nil
}

// Release implements Releaser.
func (p *SimPool) Release(id Pipe) {
	if id >= 0 && int(id) < len(p.pipes) {
		p.pipes[id] = simPipe{typ: p.pipes[id].typ, fd: -1}
	}
}

// BeginFrame implements FrameScoped. Every pipe owned by dpy is reclaimed.
func (p *SimPool) BeginFrame(dpy Display) {
	for i := range p.pipes {
		if p.pipes[i].inUse && p.pipes[i].owner == dpy {
			p.pipes[i] = simPipe{typ: p.pipes[i].typ, fd: -1}
		}
	}
}

// Type returns the class of pipe id.
func (p *SimPool) Type(id Pipe) PipeType {
	if id < 0 || int(id) >= len(p.pipes) {
		return PipeAny
	}
	return p.pipes[id].typ
}

// Stage is the committed state of one pipe as seen by the mixer.
type Stage struct {
	Pipe   Pipe
	Type   PipeType
	Config PipeConfig
	FD     int
	Offset uint32
	Queued bool
}

// Stages returns the committed pipes of dpy in ascending zorder.
func (p *SimPool) Stages(dpy Display) []Stage {
	var out []Stage
	for i := range p.pipes {
		sp := &p.pipes[i]
		if !sp.inUse || sp.owner != dpy || sp.commits == 0 {
			continue
		}
		out = append(out, Stage{
			Pipe:   Pipe(i),
			Type:   sp.typ,
			Config: sp.cfg,
			FD:     sp.fd,
			Offset: sp.offset,
			Queued: sp.queued,
		})
	}
	slices.SortFunc(out, func(a, b Stage) int { return a.Config.ZOrder - b.Config.ZOrder })
	return out
}

// InUse reports how many pipes dpy currently holds.
func (p *SimPool) InUse(dpy Display) int {
	n := 0
	for i := range p.pipes {
		if p.pipes[i].inUse && p.pipes[i].owner == dpy {
			n++
		}
	}
	return n
}

// SimRotator is a rotator session that records what it was asked to do.
// Its output buffer is a fixed fd/offset pair.
type SimRotator struct {
	OutFD     int
	OutOffset uint32

	Source    SourceInfo
	Transform Transform
	InFD      int
	InOffset  uint32
	Fail      bool
}

// Configure implements Rotator.
func (r *SimRotator) Configure(src SourceInfo, t Transform) error {
	if r.Fail {
		return ErrInjected
	}
	r.Source = src
	r.Transform = t
	return nil
}

// QueueBuffer implements Rotator.
func (r *SimRotator) QueueBuffer(fd int, offset uint32) error {
	if r.Fail {
		return ErrInjected
	}
	r.InFD = fd
	r.InOffset = offset
	return nil
}

// OutputBuffer implements Rotator.
func (r *SimRotator) OutputBuffer() int { return r.OutFD }

// OutputOffset implements Rotator.
func (r *SimRotator) OutputOffset() uint32 { return r.OutOffset }

// SimRotators is a fixed set of rotator sessions handed out in order
// until Reset.
//
// When SharesDMA is set, Next refuses while any display holds a DMA pipe.
type SimRotators struct {
	Rotators  []*SimRotator
	SharesDMA bool

	next     int
	dmaInUse map[Display]bool
}

// NewSimRotators creates n rotators whose output fds start at baseFD.
func NewSimRotators(n, baseFD int) *SimRotators {
	rs := &SimRotators{}
	for i := range n {
		rs.Rotators = append(rs.Rotators, &SimRotator{OutFD: baseFD + i})
	}
	return rs
}

// Next implements RotatorPool.
func (rs *SimRotators) Next() (Rotator, bool) {
	if rs.next >= len(rs.Rotators) || rs.SharesDMA && rs.DMABusy() {
		return nil, false
	}
	r := rs.Rotators[rs.next]
	rs.next++
	return r, true
}

// SetDMAInUse implements DMAUser.
func (rs *SimRotators) SetDMAInUse(dpy Display, inUse bool) {
	if rs.dmaInUse == nil {
		rs.dmaInUse = make(map[Display]bool)
	}
	rs.dmaInUse[dpy] = inUse
}

// DMABusy reports whether any display holds a DMA pipe.
func (rs *SimRotators) DMABusy() bool {
	for _, v := range rs.dmaInUse {
		if v {
			return true
		}
	}
	return false
}

// Reset makes every rotator available again.
func (rs *SimRotators) Reset() { rs.next = 0 }

// BeginFrame implements FrameScoped. Rotator sessions live for one frame.
func (rs *SimRotators) BeginFrame(Display) { rs.Reset() }

var (
	_ Pool        = (*SimPool)(nil)
	_ Releaser    = (*SimPool)(nil)
	_ FrameScoped = (*SimPool)(nil)
	_ RotatorPool = (*SimRotators)(nil)
	_ FrameScoped = (*SimRotators)(nil)
	_ DMAUser     = (*SimRotators)(nil)
	_ Rotator     = (*SimRotator)(nil)
)
