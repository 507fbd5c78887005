// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernel holds the host implementations of the downsampling
// kernels, one per recording.Kernel.
//
// A kernel is called once per workgroup with the flat workgroup index.
// Single-pass kernels swizzle the index through the tile remapper, reduce
// their own block, then take part in the rendezvous: the last group to
// arrive at a counter continues with the next coarser stage on data the
// other groups have published.
package kernel

import (
	"fmt"

	"github.com/gogpu/spd/internal/device"
	"github.com/gogpu/spd/internal/image"
	"github.com/gogpu/spd/internal/params"
	"github.com/gogpu/spd/internal/remap"
	"github.com/gogpu/spd/internal/rendezvous"
	"github.com/gogpu/spd/internal/schedule"
	"github.com/gogpu/spd/recording"
)

// Swizzle tile edges, in workgroups, for the two shapes. The narrow tile
// matches the coarse tile of the rendezvous counters.
const (
	narrowSwizzle = rendezvous.CoarseTile
	wideSwizzle   = 8
)

// Bindings are the resources of one dispatch.
type Bindings struct {
	Params params.Constants

	// Input is the source image or the level the dispatch reads.
	Input device.Surface

	// Output is the mip chain; the dispatch writes from level FirstMip.
	Output   *device.Texture
	FirstMip int

	// Counters is required by single-pass kernels.
	Counters *device.CounterBuffer

	// OnElect, if set, is called when a group wins a rendezvous.
	OnElect func(counter int)
}

// Func runs one workgroup.
type Func func(b *Bindings, group uint32)

// Lookup returns the host implementation of k.
func Lookup(k recording.Kernel) (Func, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("kernel: unknown kernel %d", uint8(k))
	}
	var red reducer = laneReducer{}
	if k.Fallback() {
		red = sharedReducer{}
	}
	if k.SinglePass() {
		return singlePass(red, k.Wide()), nil
	}
	return multiPass(red, k.Wide()), nil
}

// reduceChain reduces first count times, publishing level firstLevel+i
// after step i.
func reduceChain(red reducer, first *block, s *scratch, out *device.Texture, firstLevel, count int) {
	in := *first
	bufs := [2][]image.Texel{s.b, s.a}
	for i := range count {
		next := in.next(bufs[i%2])
		red.reduce(&in, &next)
		next.publish(out.Level(firstLevel + i))
		in = next
	}
}

// multiPass returns the kernel writing one batch of up to K levels.
func multiPass(red reducer, wide bool) Func {
	f := int(schedule.Footprint(wide))
	k := schedule.LevelsPerPass(wide)

	return func(b *Bindings, group uint32) {
		gw := b.Params.ThreadGroupDim[0]
		gx, gy := int(group%gw), int(group/gw)

		s := scratchPool.Get().(*scratch)
		defer scratchPool.Put(s)

		w, h := b.Input.Bounds()
		src := block{x0: gx * f, y0: gy * f, n: f, w: w, h: h, px: s.a[:f*f]}
		src.load(b.Input)

		reduceChain(red, &src, s, b.Output, b.FirstMip, min(k, int(b.Params.Mips)))
	}
}

// stage is one rendezvous continuation: the elected group reads a
// published level and produces the next levels.
type stage struct {
	inputLevel int
	n          int // block edge read from inputLevel
}

// singlePass returns the kernel completing the whole chain.
func singlePass(red reducer, wide bool) Func {
	f := int(schedule.Footprint(wide))
	k := schedule.LevelsPerPass(wide)

	return func(b *Bindings, group uint32) {
		mips := int(b.Params.Mips)
		gw, gh := b.Params.ThreadGroupDim[0], b.Params.ThreadGroupDim[1]

		swizzle := uint32(narrowSwizzle)
		if wide {
			swizzle = wideSwizzle
		}
		x, y := remap.ThreadGroup(gw, gh, swizzle, swizzle, group)

		s := scratchPool.Get().(*scratch)
		defer scratchPool.Put(s)

		w, h := b.Input.Bounds()
		src := block{x0: int(x) * f, y0: int(y) * f, n: f, w: w, h: h, px: s.a[:f*f]}
		src.load(b.Input)
		reduceChain(red, &src, s, b.Output, 0, min(k, mips))
		if mips <= k {
			return
		}

		if wide {
			if !b.Counters.Arrive(0, b.Params.NumWorkGroups) {
				return
			}
			b.elect(0)
			b.continueFrom(red, s, stage{inputLevel: k - 1, n: f}, 0, 0, mips)
			return
		}

		coarse := rendezvous.CoarseIndex(x, y)
		if !b.Counters.Arrive(coarse, rendezvous.NarrowTarget) {
			return
		}
		b.elect(coarse)
		tx, ty := int(x/rendezvous.CoarseTile), int(y/rendezvous.CoarseTile)
		b.continueFrom(red, s, stage{inputLevel: k - 1, n: rendezvous.CoarseTile}, tx, ty, mips)
		if mips <= 2*k {
			return
		}

		if !b.Counters.Arrive(rendezvous.TailIndex, rendezvous.NarrowTarget) {
			return
		}
		b.elect(rendezvous.TailIndex)
		b.continueFrom(red, s, stage{inputLevel: 2*k - 1, n: rendezvous.CoarseTile}, 0, 0, mips)
	}
}

func (b *Bindings) elect(counter int) {
	if b.OnElect != nil {
		b.OnElect(counter)
	}
}

// continueFrom loads the st.n × st.n block at tile (tx, ty) of the published
// level st.inputLevel and produces the following levels up to mips.
func (b *Bindings) continueFrom(red reducer, s *scratch, st stage, tx, ty, mips int) {
	lvl := b.Output.Level(st.inputLevel)
	w, h := lvl.Bounds()
	in := block{x0: tx * st.n, y0: ty * st.n, n: st.n, w: w, h: h, px: s.a[:st.n*st.n]}
	in.load(lvl)

	count := 0
	for e := st.n; e > 1 && st.inputLevel+1+count < mips; e /= 2 {
		count++
	}
	reduceChain(red, &in, s, b.Output, st.inputLevel+1, count)
}
