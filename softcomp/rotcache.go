// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package softcomp

import (
	"image"
	"sync"

	"github.com/gogpu/hwc/overlay"
)

// rotationKey identifies one rotator output: the same buffer contents
// rotated the same way.
type rotationKey struct {
	fd int
	t  overlay.Transform
	sr image.Rectangle
}

type rotationEntry struct {
	key        rotationKey
	img        *image.RGBA
	prev, next *rotationEntry
}

// RotationCache keeps the most recently used rotator outputs so a video
// frame shown for several display frames is rotated once.
//
// RotationCache is safe for concurrent use.
type RotationCache struct {
	mu       sync.Mutex
	entries  map[rotationKey]*rotationEntry
	head     *rotationEntry // most recently used
	tail     *rotationEntry
	capacity int

	hits, misses uint64
}

// NewRotationCache creates a cache holding up to capacity outputs.
// A capacity below 1 is treated as 1.
func NewRotationCache(capacity int) *RotationCache {
	return &RotationCache{
		entries:  make(map[rotationKey]*rotationEntry),
		capacity: max(capacity, 1),
	}
}

// Rotate returns the sr part of the buffer queued as fd rotated by t,
// reusing a cached output when there is one.
func (c *RotationCache) Rotate(fd int, src image.Image, sr image.Rectangle, t overlay.Transform) *image.RGBA {
	key := rotationKey{fd: fd, t: t, sr: sr}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.hits++
		c.unlink(e)
		c.pushFront(e)
		return e.img
	}

	c.misses++
	e := &rotationEntry{key: key, img: Rotate(src, sr, t)}
	c.entries[key] = e
	c.pushFront(e)
	for len(c.entries) > c.capacity {
		old := c.tail
		c.unlink(old)
		delete(c.entries, old.key)
	}
	return e.img
}

// Invalidate drops every output rotated from fd. Call it when the buffer
// behind fd is rewritten.
func (c *RotationCache) Invalidate(fd int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if key.fd == fd {
			c.unlink(e)
			delete(c.entries, key)
		}
	}
}

// Len returns the number of cached outputs.
func (c *RotationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counts.
func (c *RotationCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Caller must hold c.mu.
func (c *RotationCache) pushFront(e *rotationEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

// Caller must hold c.mu.
func (c *RotationCache) unlink(e *rotationEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}
