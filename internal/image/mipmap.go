// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import "math"

// MipChain holds the downsampled levels of a source surface.
//
// Level 0 is the first downsample: max(1, W>>1) × max(1, H>>1). Every further
// level halves the previous one with floor semantics. The source itself is
// not part of the chain.
type MipChain struct {
	levels []*Buf
}

// NewMipChain allocates a zeroed chain of mipCount levels for a
// width×height source.
func NewMipChain(width, height, mipCount int) *MipChain {
	chain := &MipChain{levels: make([]*Buf, mipCount)}
	for i := range chain.levels {
		w, h := LevelSize(width, height, i)
		chain.levels[i] = GetFromDefault(w, h)
	}
	return chain
}

// ChainOf wraps already populated levels.
func ChainOf(levels []*Buf) *MipChain {
	return &MipChain{levels: levels}
}

// LevelSize returns the dimensions of level i of a width×height source.
func LevelSize(width, height, level int) (int, int) {
	return max(1, width>>(level+1)), max(1, height>>(level+1))
}

// GenerateMipChain computes mipCount levels of src on the calling goroutine.
// It is the reference every parallel engine must match bit for bit.
//
// Returns nil if src is nil or empty.
func GenerateMipChain(src *Buf, mipCount int) *MipChain {
	if src.IsEmpty() || mipCount <= 0 {
		return nil
	}

	chain := NewMipChain(src.width, src.height, mipCount)
	in := src
	for _, out := range chain.levels {
		downsample(in, out)
		in = out
	}
	return chain
}

// downsample fills dst from src with the 2×2 box filter. Taps past the
// last row or column of src are clamped to it.
func downsample(src, dst *Buf) {
	srcW, srcH := src.Bounds()
	for dy := range dst.height {
		for dx := range dst.width {
			sx, sy := dx*2, dy*2
			sx1, sy1 := min(sx+1, srcW-1), min(sy+1, srcH-1)

			_ = dst.Set(dx, dy, Average(
				src.At(sx, sy),
				src.At(sx1, sy),
				src.At(sx, sy1),
				src.At(sx1, sy1),
			))
		}
	}
}

// Level returns level n, or nil if n is out of range.
func (m *MipChain) Level(n int) *Buf {
	if m == nil || n < 0 || n >= len(m.levels) {
		return nil
	}
	return m.levels[n]
}

// NumLevels returns the number of levels in the chain.
func (m *MipChain) NumLevels() int {
	if m == nil {
		return 0
	}
	return len(m.levels)
}

// Width returns the width of level n, or 0 if n is out of range.
func (m *MipChain) Width(n int) int {
	if l := m.Level(n); l != nil {
		return l.Width()
	}
	return 0
}

// Height returns the height of level n, or 0 if n is out of range.
func (m *MipChain) Height(n int) int {
	if l := m.Level(n); l != nil {
		return l.Height()
	}
	return 0
}

// LevelForScale returns the level closest to a display scale relative to
// the source: 0.5 selects level 0, 0.25 level 1, and so on. The result is
// clamped to the chain.
func (m *MipChain) LevelForScale(scale float64) *Buf {
	if m == nil || len(m.levels) == 0 {
		return nil
	}
	if scale >= 0.5 {
		return m.levels[0]
	}

	level := int(math.Floor(-math.Log2(scale))) - 1
	level = min(max(level, 0), len(m.levels)-1)
	return m.levels[level]
}

// Equal reports whether both chains have bit-identical levels.
func (m *MipChain) Equal(o *MipChain) bool {
	if m.NumLevels() != o.NumLevels() {
		return false
	}
	for i, l := range m.levels {
		if !l.Equal(o.levels[i]) {
			return false
		}
	}
	return true
}

// Release returns every level to the pool. The chain must not be used
// afterwards.
func (m *MipChain) Release() {
	if m == nil {
		return
	}
	for i, l := range m.levels {
		PutToDefault(l)
		m.levels[i] = nil
	}
}
