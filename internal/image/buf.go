// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package image provides the floating-point RGBA surfaces the downsampler
// reads and writes, plus conversion to and from standard library images.
package image

import (
	"errors"
	"fmt"
	"math"
)

// Common errors for image operations.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("image: invalid dimensions")

	// ErrDataTooSmall is returned when provided data is smaller than required.
	ErrDataTooSmall = errors.New("image: data buffer too small")

	// ErrOutOfBounds is returned when pixel coordinates are outside image bounds.
	ErrOutOfBounds = errors.New("image: coordinates out of bounds")
)

// Channels is the number of float32 components per texel.
const Channels = 4

// Texel is one RGBA value.
type Texel [Channels]float32

// Average is the 2×2 box filter shared by every producer of mip levels:
// ((a+b)+(c+d))*0.25 per component, evaluated in float32 in that order.
func Average(a, b, c, d Texel) Texel {
	var r Texel
	for i := range r {
		r[i] = ((a[i] + b[i]) + (c[i] + d[i])) * 0.25
	}
	return r
}

// Buf is a tightly packed RGBA float32 surface, row-major, non-premultiplied.
//
// Thread safety: concurrent reads are safe. Concurrent writes to distinct
// texels are safe; anything else requires external synchronization.
type Buf struct {
	pix    []float32
	width  int
	height int
}

// NewBuf creates a zeroed width×height surface.
func NewBuf(width, height int) (*Buf, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return &Buf{
		pix:    make([]float32, width*height*Channels),
		width:  width,
		height: height,
	}, nil
}

// FromPix wraps existing texel data without copying.
func FromPix(pix []float32, width, height int) (*Buf, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if n := width * height * Channels; len(pix) < n {
		return nil, fmt.Errorf("%w: %d floats for %dx%d", ErrDataTooSmall, len(pix), width, height)
	}
	return &Buf{pix: pix[:width*height*Channels], width: width, height: height}, nil
}

// Width returns the width in texels.
func (b *Buf) Width() int { return b.width }

// Height returns the height in texels.
func (b *Buf) Height() int { return b.height }

// Bounds returns the width and height.
func (b *Buf) Bounds() (int, int) { return b.width, b.height }

// Pix returns the underlying texel data.
func (b *Buf) Pix() []float32 { return b.pix }

// IsEmpty reports whether the buffer holds no texels.
func (b *Buf) IsEmpty() bool {
	return b == nil || len(b.pix) == 0
}

// Row returns the texel data of row y.
func (b *Buf) Row(y int) []float32 {
	n := b.width * Channels
	return b.pix[y*n : (y+1)*n]
}

// At returns the texel at (x, y). Out-of-range coordinates return zero.
func (b *Buf) At(x, y int) Texel {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return Texel{}
	}
	i := (y*b.width + x) * Channels
	return Texel(b.pix[i : i+Channels])
}

// AtClamped returns the texel at (x, y) with both coordinates clamped to
// the surface.
func (b *Buf) AtClamped(x, y int) Texel {
	return b.At(min(max(x, 0), b.width-1), min(max(y, 0), b.height-1))
}

// Set writes the texel at (x, y).
func (b *Buf) Set(x, y int, t Texel) error {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return ErrOutOfBounds
	}
	i := (y*b.width + x) * Channels
	copy(b.pix[i:i+Channels], t[:])
	return nil
}

// Fill sets every texel to t.
func (b *Buf) Fill(t Texel) {
	for i := 0; i < len(b.pix); i += Channels {
		copy(b.pix[i:i+Channels], t[:])
	}
}

// Clear zeroes every texel.
func (b *Buf) Clear() {
	clear(b.pix)
}

// Clone returns a deep copy.
func (b *Buf) Clone() *Buf {
	return &Buf{pix: append([]float32(nil), b.pix...), width: b.width, height: b.height}
}

// Equal reports whether b and o have the same size and bit-identical texels.
func (b *Buf) Equal(o *Buf) bool {
	if b.width != o.width || b.height != o.height {
		return false
	}
	for i, v := range b.pix {
		if math.Float32bits(v) != math.Float32bits(o.pix[i]) {
			return false
		}
	}
	return true
}

// FirstDifference returns the first texel at which b and o differ.
// ok is false when the buffers are equal or differ in size.
func (b *Buf) FirstDifference(o *Buf) (x, y int, ok bool) {
	if b.width != o.width || b.height != o.height {
		return 0, 0, false
	}
	for i, v := range b.pix {
		if math.Float32bits(v) != math.Float32bits(o.pix[i]) {
			t := i / Channels
			return t % b.width, t / b.width, true
		}
	}
	return 0, 0, false
}
