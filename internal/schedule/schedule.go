// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package schedule computes dispatch geometry and pass batching for the
// mip-chain downsampler.
//
// A multi-pass run is partitioned into consecutive batches of at most
// LevelsPerPass levels. A single-pass run is one dispatch whose geometry
// covers the whole source.
package schedule

import (
	"errors"
	"fmt"
	"math/bits"

	"golang.org/x/exp/constraints"
)

// MaxMipLevels is the deepest chain a single-pass dispatch can complete.
const MaxMipLevels = 12

// Footprints and per-pass level counts for the two workgroup shapes.
const (
	NarrowFootprint     = 16
	WideFootprint       = 64
	NarrowLevelsPerPass = 4
	WideLevelsPerPass   = 6

	// NarrowMaxGroups is the largest narrow single-pass dispatch per axis:
	// 16 coarse tiles of 16 groups each.
	NarrowMaxGroups = 256

	// WideMaxGroups is the largest wide single-pass dispatch per axis: the
	// tail group reads level 5 as one 64×64 block.
	WideMaxGroups = 64
)

// Errors returned by the scheduler.
var (
	// ErrInvalidMipCount is returned when the requested level count is zero,
	// exceeds MaxMipLevels or exceeds what the source resolution supports.
	ErrInvalidMipCount = errors.New("spd: invalid mip count")

	// ErrInvalidDimensions is returned for a zero-sized source.
	ErrInvalidDimensions = errors.New("spd: invalid dimensions")

	// ErrDispatchTooLarge is returned when a dispatch exceeds the device
	// limit or the rendezvous counter capacity.
	ErrDispatchTooLarge = errors.New("spd: dispatch too large")
)

// Limits describes the device limits the scheduler checks against.
type Limits struct {
	// MaxDispatch is the maximum workgroup count per dispatch axis.
	MaxDispatch [3]uint32
}

// DefaultLimits returns the WebGPU baseline limits.
func DefaultLimits() Limits {
	return Limits{MaxDispatch: [3]uint32{65535, 65535, 65535}}
}

// Geometry is a three-axis workgroup count.
type Geometry struct {
	X, Y, Z uint32
}

// Groups returns the total number of workgroups.
func (g Geometry) Groups() uint32 {
	return g.X * g.Y * g.Z
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%dx%d", g.X, g.Y, g.Z)
}

// Pass is one dispatch of a run.
type Pass struct {
	// Index is the position of the pass in the run.
	Index int

	// InputLevel is the level read by the pass, or -1 for the source.
	InputLevel int

	// FirstMip is the first level written.
	FirstMip int

	// MipCount is the number of levels written, starting at FirstMip.
	MipCount int

	// Width and Height are the dimensions of the input.
	Width, Height uint32

	// Geometry is the workgroup count of the dispatch.
	Geometry Geometry
}

// ceilDiv returns a/b rounded up.
func ceilDiv[T constraints.Unsigned](a, b T) T {
	return (a + b - 1) / b
}

// Footprint returns the edge of the source block one workgroup covers.
func Footprint(wide bool) uint32 {
	if wide {
		return WideFootprint
	}
	return NarrowFootprint
}

// LevelsPerPass returns K, the number of levels one workgroup produces
// from its own block.
func LevelsPerPass(wide bool) int {
	if wide {
		return WideLevelsPerPass
	}
	return NarrowLevelsPerPass
}

// GeometryFor returns the dispatch geometry covering a width×height input.
func GeometryFor(width, height uint32, wide bool) Geometry {
	f := Footprint(wide)
	return Geometry{X: ceilDiv(width, f), Y: ceilDiv(height, f), Z: 1}
}

// LevelSize returns the dimensions of output level i of a width×height
// source: max(1, width>>(i+1)) × max(1, height>>(i+1)).
func LevelSize(width, height uint32, level int) (uint32, uint32) {
	return max(1, width>>(level+1)), max(1, height>>(level+1))
}

// MaxLevels returns the number of levels a width×height source supports,
// capped at MaxMipLevels.
func MaxLevels(width, height uint32) int {
	n := bits.Len32(max(width, height)) - 1
	return min(max(n, 0), MaxMipLevels)
}

// CheckSize validates a source size and level count.
func CheckSize(width, height uint32, mipCount int) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if mipCount < 1 || mipCount > MaxMipLevels {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidMipCount, mipCount, MaxMipLevels)
	}
	if n := MaxLevels(width, height); mipCount > n {
		return fmt.Errorf("%w: %d levels requested, %dx%d supports %d",
			ErrInvalidMipCount, mipCount, width, height, n)
	}
	return nil
}

func checkLimits(g Geometry, lim Limits) error {
	if g.X > lim.MaxDispatch[0] || g.Y > lim.MaxDispatch[1] || g.Z > lim.MaxDispatch[2] {
		return fmt.Errorf("%w: %s exceeds device limit %v", ErrDispatchTooLarge, g, lim.MaxDispatch)
	}
	return nil
}

// MultiPass partitions [0, mipCount) into batches of at most K levels.
//
// Batch b starting at level m reads level m-1 (the source when m is 0) and
// writes levels [m, m+n). The working resolution is shifted by n after each
// batch.
func MultiPass(width, height uint32, mipCount int, wide bool, lim Limits) ([]Pass, error) {
	if err := CheckSize(width, height, mipCount); err != nil {
		return nil, err
	}

	k := LevelsPerPass(wide)
	passes := make([]Pass, 0, ceilDiv(uint(mipCount), uint(k)))
	curW, curH := width, height

	for m := 0; m < mipCount; {
		n := min(mipCount-m, k)
		p := Pass{
			Index:      len(passes),
			InputLevel: m - 1,
			FirstMip:   m,
			MipCount:   n,
			Width:      curW,
			Height:     curH,
			Geometry:   GeometryFor(curW, curH, wide),
		}
		if err := checkLimits(p.Geometry, lim); err != nil {
			return nil, fmt.Errorf("pass %d: %w", p.Index, err)
		}
		passes = append(passes, p)

		m += n
		curW, curH = max(1, curW>>n), max(1, curH>>n)
	}
	return passes, nil
}

// SinglePass returns the one dispatch that produces every level.
func SinglePass(width, height uint32, mipCount int, wide bool, lim Limits) (Pass, error) {
	if err := CheckSize(width, height, mipCount); err != nil {
		return Pass{}, err
	}

	p := Pass{
		InputLevel: -1,
		MipCount:   mipCount,
		Width:      width,
		Height:     height,
		Geometry:   GeometryFor(width, height, wide),
	}

	maxGroups := uint32(NarrowMaxGroups)
	if wide {
		maxGroups = WideMaxGroups
	}
	if mipCount > LevelsPerPass(wide) && (p.Geometry.X > maxGroups || p.Geometry.Y > maxGroups) {
		return Pass{}, fmt.Errorf("%w: %s exceeds %d groups per axis for a %d-level chain",
			ErrDispatchTooLarge, p.Geometry, maxGroups, mipCount)
	}
	if err := checkLimits(p.Geometry, lim); err != nil {
		return Pass{}, err
	}
	return p, nil
}
