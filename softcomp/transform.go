// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package softcomp

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/gogpu/hwc/overlay"
)

// mul returns the transform that applies n, then m.
func mul(m, n f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		m[0]*n[0] + m[1]*n[3],
		m[0]*n[1] + m[1]*n[4],
		m[0]*n[2] + m[1]*n[5] + m[2],
		m[3]*n[0] + m[4]*n[3],
		m[3]*n[1] + m[4]*n[4],
		m[3]*n[2] + m[4]*n[5] + m[5],
	}
}

// sourceToDest maps the source rectangle sr onto the destination rectangle
// dr after applying t. Flips are applied before the clockwise 90 degree
// rotation, so TransformRot270 is a 180 degree turn followed by Rot90.
func sourceToDest(t overlay.Transform, sr, dr image.Rectangle) f64.Aff3 {
	w, h := float64(sr.Dx()), float64(sr.Dy())
	m := f64.Aff3{1, 0, -float64(sr.Min.X), 0, 1, -float64(sr.Min.Y)}

	if t&overlay.TransformFlipH != 0 {
		m = mul(f64.Aff3{-1, 0, w, 0, 1, 0}, m)
	}
	if t&overlay.TransformFlipV != 0 {
		m = mul(f64.Aff3{1, 0, 0, 0, -1, h}, m)
	}
	if t.Has90() {
		m = mul(f64.Aff3{0, -1, h, 1, 0, 0}, m)
		w, h = h, w
	}

	sx, sy := float64(dr.Dx())/w, float64(dr.Dy())/h
	return mul(f64.Aff3{sx, 0, float64(dr.Min.X), 0, sy, float64(dr.Min.Y)}, m)
}

// destSize returns the extent of sr after t.
func destSize(t overlay.Transform, sr image.Rectangle) image.Point {
	if t.Has90() {
		return image.Pt(sr.Dy(), sr.Dx())
	}
	return sr.Size()
}

// drawImage composes sr of src onto dr of dst under t, scaling with q and
// attenuating by the plane alpha.
func drawImage(dst draw.Image, dr image.Rectangle, src image.Image, sr image.Rectangle,
	t overlay.Transform, planeAlpha uint8, op draw.Op, q draw.Interpolator) {
	var opts *draw.Options
	if planeAlpha < 0xFF {
		opts = &draw.Options{SrcMask: image.NewUniform(color.Alpha{A: planeAlpha})}
	}
	if t == overlay.TransformNone {
		if sr.Size() == dr.Size() {
			draw.Copy(dst, dr.Min, src, sr, op, opts)
			return
		}
		q.Scale(dst, dr, src, sr, op, opts)
		return
	}
	q.Transform(dst, sourceToDest(t, sr, dr), src, sr, op, opts)
}

// Rotate returns the sr part of src with t applied, the way a rotator
// session produces its output buffer.
func Rotate(src image.Image, sr image.Rectangle, t overlay.Transform) *image.RGBA {
	out := image.NewRGBA(image.Rectangle{Max: destSize(t, sr)})
	drawImage(out, out.Bounds(), src, sr, t, 0xFF, draw.Src, draw.NearestNeighbor)
	return out
}
