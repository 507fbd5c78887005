// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package recording

import "strings"

// Kernel selects one of the statically built downsampling kernels.
//
// The set is closed: every combination of engine, workgroup shape and
// intra-group reduction has exactly one kernel.
type Kernel uint8

const (
	// KernelSinglePass completes the whole chain in one dispatch through
	// the rendezvous counters. Without it the kernel writes one batch.
	KernelSinglePass Kernel = 1 << iota

	// KernelWide uses 64×64 blocks and 256 threads instead of 16×16 and 64.
	KernelWide

	// KernelFallback reduces 2×2 quads through shared memory instead of
	// lane exchange.
	KernelFallback

	kernelMask = KernelSinglePass | KernelWide | KernelFallback
)

// KernelFor returns the kernel for a configuration.
func KernelFor(singlePass, wide, fallback bool) Kernel {
	var k Kernel
	if singlePass {
		k |= KernelSinglePass
	}
	if wide {
		k |= KernelWide
	}
	if fallback {
		k |= KernelFallback
	}
	return k
}

// Kernels returns every kernel.
func Kernels() []Kernel {
	out := make([]Kernel, 0, kernelMask+1)
	for k := Kernel(0); k <= kernelMask; k++ {
		out = append(out, k)
	}
	return out
}

// Valid reports whether k is one of the defined kernels.
func (k Kernel) Valid() bool { return k&^kernelMask == 0 }

// SinglePass reports whether the kernel runs the rendezvous.
func (k Kernel) SinglePass() bool { return k&KernelSinglePass != 0 }

// Wide reports whether the kernel uses the 64×64 footprint.
func (k Kernel) Wide() bool { return k&KernelWide != 0 }

// Fallback reports whether the kernel reduces through shared memory.
func (k Kernel) Fallback() bool { return k&KernelFallback != 0 }

// String returns a name such as "single-wide-shared".
func (k Kernel) String() string {
	if !k.Valid() {
		return "invalid"
	}
	var b strings.Builder
	if k.SinglePass() {
		b.WriteString("single")
	} else {
		b.WriteString("multi")
	}
	if k.Wide() {
		b.WriteString("-wide")
	} else {
		b.WriteString("-narrow")
	}
	if k.Fallback() {
		b.WriteString("-shared")
	} else {
		b.WriteString("-lane")
	}
	return b.String()
}
