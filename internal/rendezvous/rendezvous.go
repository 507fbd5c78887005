// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rendezvous implements the cross-workgroup "last one out" barrier
// of the single-pass downsampler.
//
// Every counter is seeded so that it reaches its target exactly when the
// last contributing workgroup increments it. That workgroup is elected and
// continues the reduction on data the other contributors have published.
//
// Narrow dispatches use one counter per coarse tile of 16×16 workgroups plus
// a tail counter shared by the elected coarse-tile groups. Wide dispatches use
// a single counter for the whole dispatch.
package rendezvous

import (
	"fmt"
	"sync/atomic"
)

const (
	// CoarseTile is the edge, in workgroups, of the region one narrow
	// counter covers.
	CoarseTile = 16

	// CoarseTilesPerAxis is the number of coarse tiles per dispatch axis.
	CoarseTilesPerAxis = 16

	// TailIndex is the index of the narrow tail counter.
	TailIndex = CoarseTilesPerAxis * CoarseTilesPerAxis

	// NumCounters is the size of the counter buffer for either shape.
	NumCounters = TailIndex + 1

	// NarrowTarget is the value every narrow counter must reach.
	NarrowTarget = CoarseTile * CoarseTile
)

// Seed is the initial state of one counter.
type Seed struct {
	// Contributors is the number of workgroups that increment the counter.
	Contributors uint32

	// Start is the value written before the dispatch.
	Start uint32

	// Target is the post-increment value that elects a workgroup.
	Target uint32
}

// CoarseIndex returns the narrow counter index of the group at (x, y).
func CoarseIndex(x, y uint32) int {
	return int(y/CoarseTile)*CoarseTilesPerAxis + int(x/CoarseTile)
}

// span returns how many of the n items starting at start fall below limit.
func span(start, n, limit uint32) uint32 {
	if start >= limit {
		return 0
	}
	return min(n, limit-start)
}

// SeedNarrow returns the NumCounters seeds of a narrow dispatch of
// dispatchX×dispatchY workgroups.
//
// A coarse tile fully inside the dispatch has 256 contributors; tiles
// clipped by the dispatch edge have fewer and tiles outside it have none.
// The tail counter is incremented once per non-empty coarse tile.
func SeedNarrow(dispatchX, dispatchY uint32) []Seed {
	seeds := make([]Seed, NumCounters)
	for ty := range uint32(CoarseTilesPerAxis) {
		for tx := range uint32(CoarseTilesPerAxis) {
			n := span(tx*CoarseTile, CoarseTile, dispatchX) * span(ty*CoarseTile, CoarseTile, dispatchY)
			seeds[ty*CoarseTilesPerAxis+tx] = Seed{
				Contributors: n,
				Start:        NarrowTarget - n,
				Target:       NarrowTarget,
			}
		}
	}

	tilesX := (dispatchX + CoarseTile - 1) / CoarseTile
	tilesY := (dispatchY + CoarseTile - 1) / CoarseTile
	n := tilesX * tilesY
	seeds[TailIndex] = Seed{Contributors: n, Start: NarrowTarget - n, Target: NarrowTarget}
	return seeds
}

// SeedWide returns the single seed of a wide dispatch: every workgroup
// contributes and the counter starts at zero.
func SeedWide(dispatchX, dispatchY uint32) []Seed {
	n := dispatchX * dispatchY
	return []Seed{{Contributors: n, Start: 0, Target: n}}
}

// StartValues returns the values to upload to the counter buffer.
func StartValues(seeds []Seed) []uint32 {
	v := make([]uint32, len(seeds))
	for i, s := range seeds {
		v[i] = s.Start
	}
	return v
}

// Counters is a device-resident array of rendezvous counters.
//
// Arrive is the increment-and-compare step. The atomic add releases the
// arriving group's published writes and the group that observes the target
// acquires all of them.
type Counters struct {
	slots []atomic.Uint32
}

// NewCounters allocates n zeroed counters.
func NewCounters(n int) *Counters {
	return &Counters{slots: make([]atomic.Uint32, n)}
}

// Len returns the number of counters.
func (c *Counters) Len() int {
	return len(c.slots)
}

// Store seeds the counters. Extra slots are zeroed.
func (c *Counters) Store(values []uint32) error {
	if len(values) > len(c.slots) {
		return fmt.Errorf("rendezvous: %d seed values for %d counters", len(values), len(c.slots))
	}
	for i := range c.slots {
		var v uint32
		if i < len(values) {
			v = values[i]
		}
		c.slots[i].Store(v)
	}
	return nil
}

// Load returns the current value of counter i.
func (c *Counters) Load(i int) uint32 {
	return c.slots[i].Load()
}

// Arrive increments counter i and reports whether the caller is the
// workgroup that brought it to target.
func (c *Counters) Arrive(i int, target uint32) bool {
	return c.slots[i].Add(1) == target
}
