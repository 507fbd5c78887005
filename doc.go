// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package spd generates image mip chains on a compute device with as few
// dispatches as possible.
//
// # Overview
//
// Every output level is the 2×2 box average of the level before it, with
// the first level taken from the source image:
//
//	level i is max(1, W>>(i+1)) × max(1, H>>(i+1))
//	texel   = ((a + b) + (c + d)) * 0.25
//
// Taps past the right or bottom edge are clamped. Both engines and the
// Reference chain evaluate exactly this expression, so their results are
// bit-identical.
//
// # Engines
//
// The multi-pass engine (MultiPass) writes at most 4 levels per dispatch
// (6 with wide workgroups) and reads the last level of the previous batch.
//
// The single-pass engine (SinglePass) completes up to 12 levels in one
// dispatch. Workgroups reduce their own block, then count themselves on a
// device counter; the last group to arrive continues with the levels that
// need the whole region. Narrow workgroups rendezvous twice (per 16×16
// groups, then once globally), wide workgroups once.
//
// # Quick Start
//
//	import "github.com/gogpu/spd"
//
//	d, err := spd.New(spd.WithEngine(spd.SinglePass))
//	if err != nil {
//	    return err
//	}
//	defer d.Close()
//
//	src, _ := spd.LoadImage("input.png")
//	if err := d.Resize(src.Width(), src.Height(), spd.MaxLevels(src.Width(), src.Height())); err != nil {
//	    return err
//	}
//	chain, err := d.Generate(ctx, src)
//
// # Backends
//
// A Downsampler plays its command stream back on a recording.Backend. The
// "cpu" backend is always available and runs workgroups concurrently on a
// worker pool. Importing recording/backends/gpu registers "gpu", which
// runs WGSL kernels on a Vulkan device:
//
//	import _ "github.com/gogpu/spd/recording/backends/gpu"
//
//	d, err := spd.New(spd.WithBackend("gpu"), spd.WithFallbackReduction(true))
//
// # Logging
//
// spd is silent by default. SetLogger enables log/slog output for the
// package and every open Downsampler's backend.
package spd
