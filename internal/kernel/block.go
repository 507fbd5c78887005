// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"sync"

	"github.com/gogpu/spd/internal/device"
	"github.com/gogpu/spd/internal/image"
)

// block is the square region of one level a workgroup holds in registers
// or shared memory.
type block struct {
	x0, y0 int // origin in level coordinates, a multiple of n
	n      int
	w, h   int // dimensions of the whole level
	px     []image.Texel
}

// valid reports whether the level texel (x, y) exists.
func (b *block) valid(x, y int) bool {
	return x < b.w && y < b.h
}

// at returns the level texel (x, y) clamped to the level. The clamped
// coordinate must fall inside the block.
func (b *block) at(x, y int) image.Texel {
	cx := min(x, b.w-1) - b.x0
	cy := min(y, b.h-1) - b.y0
	return b.px[cy*b.n+cx]
}

// load fills the block from s. Texels outside s are left untouched and
// never read, so a block never touches data another group owns.
func (b *block) load(s device.Surface) {
	for j := range b.n {
		y := b.y0 + j
		if y >= b.h {
			break
		}
		for i := range b.n {
			x := b.x0 + i
			if x >= b.w {
				break
			}
			b.px[j*b.n+i] = s.Load(x, y)
		}
	}
}

// publish stores every existing texel of the block into l.
func (b *block) publish(l *device.Level) {
	for j := range b.n {
		y := b.y0 + j
		if y >= b.h {
			break
		}
		for i := range b.n {
			x := b.x0 + i
			if x >= b.w {
				break
			}
			l.Store(x, y, b.px[j*b.n+i])
		}
	}
}

// next returns the geometry of the half-size block of the following level,
// backed by px.
func (b *block) next(px []image.Texel) block {
	n := b.n / 2
	return block{
		x0: b.x0 / 2,
		y0: b.y0 / 2,
		n:  n,
		w:  max(1, b.w>>1),
		h:  max(1, b.h>>1),
		px: px[:n*n],
	}
}

// scratch holds the two ping-pong buffers of a workgroup.
type scratch struct {
	a, b []image.Texel
}

var scratchPool = sync.Pool{
	New: func() any {
		return &scratch{
			a: make([]image.Texel, 64*64),
			b: make([]image.Texel, 32*32),
		}
	},
}
