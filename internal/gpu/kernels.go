// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/gogpu/naga"

	"github.com/gogpu/spd/recording"
)

// =============================================================================
// Embedded WGSL Kernel Sources
// =============================================================================

//go:embed shaders/spd_common.wgsl
var kernelCommon string

//go:embed shaders/spd_multi_narrow.wgsl
var kernelMultiNarrow string

//go:embed shaders/spd_multi_wide.wgsl
var kernelMultiWide string

//go:embed shaders/spd_single_narrow.wgsl
var kernelSingleNarrow string

//go:embed shaders/spd_single_wide.wgsl
var kernelSingleWide string

// ErrKernelUnavailable is returned for kernels without a WGSL variant.
// WGSL has no portable quad lane exchange, so only the shared-memory
// reduction is provided.
var ErrKernelUnavailable = errors.New("gpu: kernel not available")

// Binding indices of the kernel bind group.
const (
	bindingConstants = iota
	bindingLayout
	bindingPass
	bindingSource
	bindingChain
	bindingCounters
)

// KernelSource returns the complete WGSL source of k.
func KernelSource(k recording.Kernel) (string, error) {
	if !k.Valid() || !k.Fallback() {
		return "", fmt.Errorf("%w: %s", ErrKernelUnavailable, k)
	}
	var body string
	switch {
	case k.SinglePass() && k.Wide():
		body = kernelSingleWide
	case k.SinglePass():
		body = kernelSingleNarrow
	case k.Wide():
		body = kernelMultiWide
	default:
		body = kernelMultiNarrow
	}
	return kernelCommon + "\n" + body, nil
}

// CompileKernel compiles k to SPIR-V words.
func CompileKernel(k recording.Kernel) ([]uint32, error) {
	src, err := KernelSource(k)
	if err != nil {
		return nil, err
	}
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile %s: %w", k, err)
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}
