// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package params packs the per-dispatch uniform block of the downsampler
// kernels and hands out scratch space for it.
package params

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"structs"
)

// Size is the byte size of a packed Constants block.
const Size = 32

// Alignment is the uniform offset alignment of every Ring block.
const Alignment = 256

// DefaultRingCapacity holds one block per dispatch of the longest frame
// with room to spare.
const DefaultRingCapacity = 16 * Alignment

// Constants is the uniform block read by every kernel.
//
//	offset  0: Mips            u32
//	offset  4: NumWorkGroups   u32
//	offset  8: InvInputSize    vec2<f32>
//	offset 16: ThreadGroupDim  vec4<u32>
type Constants struct {
	_ structs.HostLayout

	// Mips is the number of levels the dispatch produces.
	Mips uint32

	// NumWorkGroups is the total workgroup count of the dispatch.
	NumWorkGroups uint32

	// InvInputSize is the reciprocal of the input resolution.
	InvInputSize [2]float32

	// ThreadGroupDim holds the dispatch geometry in x, y, z.
	ThreadGroupDim [4]uint32
}

// Pack builds the uniform block of a dispatch of groupsX×groupsY×groupsZ
// workgroups producing mipCount levels from a width×height input.
func Pack(mipCount int, groupsX, groupsY, groupsZ, width, height uint32) Constants {
	return Constants{
		Mips:           uint32(mipCount),
		NumWorkGroups:  groupsX * groupsY * groupsZ,
		InvInputSize:   [2]float32{1 / float32(width), 1 / float32(height)},
		ThreadGroupDim: [4]uint32{groupsX, groupsY, groupsZ, 0},
	}
}

// Put writes c into dst, which must hold at least Size bytes.
func (c Constants) Put(dst []byte) {
	le := binary.LittleEndian
	le.PutUint32(dst[0:], c.Mips)
	le.PutUint32(dst[4:], c.NumWorkGroups)
	le.PutUint32(dst[8:], math.Float32bits(c.InvInputSize[0]))
	le.PutUint32(dst[12:], math.Float32bits(c.InvInputSize[1]))
	for i, v := range c.ThreadGroupDim {
		le.PutUint32(dst[16+4*i:], v)
	}
}

// Bytes returns the packed little-endian block.
func (c Constants) Bytes() []byte {
	b := make([]byte, Size)
	c.Put(b)
	return b
}

// Unpack decodes a packed block.
func Unpack(b []byte) (Constants, error) {
	if len(b) < Size {
		return Constants{}, fmt.Errorf("params: block is %d bytes, want %d", len(b), Size)
	}
	le := binary.LittleEndian
	c := Constants{
		Mips:          le.Uint32(b[0:]),
		NumWorkGroups: le.Uint32(b[4:]),
		InvInputSize: [2]float32{
			math.Float32frombits(le.Uint32(b[8:])),
			math.Float32frombits(le.Uint32(b[12:])),
		},
	}
	for i := range c.ThreadGroupDim {
		c.ThreadGroupDim[i] = le.Uint32(b[16+4*i:])
	}
	return c, nil
}

// ErrRingFull is returned when a frame allocates more scratch than the ring holds.
var ErrRingFull = errors.New("params: uniform ring full")

// Block is a scratch allocation. Data aliases the ring memory and stays valid
// until the frame that allocated it is retired.
type Block struct {
	Offset uint64
	Data   []byte
}

// Ring is the per-frame uniform scratch allocator.
//
// Blocks are handed out front to back and recycled only by Retire, which
// the owner calls once the device has consumed the frame. Ring is not safe
// for concurrent use.
type Ring struct {
	buf  []byte
	head int
	peak int
}

// NewRing creates a ring of capacity bytes.
func NewRing(capacity int) *Ring {
	return &Ring{buf: make([]byte, capacity)}
}

// Alloc returns a zeroed block of size bytes at an Alignment-aligned offset.
func (r *Ring) Alloc(size int) (Block, error) {
	off := (r.head + Alignment - 1) &^ (Alignment - 1)
	if off+size > len(r.buf) {
		return Block{}, fmt.Errorf("%w: %d bytes at offset %d, capacity %d", ErrRingFull, size, off, len(r.buf))
	}
	data := r.buf[off : off+size : off+size]
	clear(data)
	r.head = off + size
	r.peak = max(r.peak, r.head)
	return Block{Offset: uint64(off), Data: data}, nil
}

// Retire releases every block of the current frame.
func (r *Ring) Retire() {
	r.head = 0
}

// Capacity returns the ring size in bytes.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Used returns the bytes allocated since the last Retire.
func (r *Ring) Used() int {
	return r.head
}

// Peak returns the largest frame allocated so far.
func (r *Ring) Peak() int {
	return r.peak
}
