// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package recording captures one downsampler invocation as a typed command
// stream and plays it back onto a device backend.
//
// # Architecture
//
// The system follows a Command Pattern with three main components:
//
//   - Recorder: captures counter uploads, state transitions and dispatches
//   - Recording: the immutable stream, replayable any number of times
//   - Backend: executes the stream on a device
//
// Commands are plain structs so a stream can be inspected, printed and
// checked in tests without a device.
//
// # State transitions
//
// Every output level rests in StateShaderRead. A multi-pass stream moves all
// levels to StateUnorderedAccess up front and returns each batch's levels to
// StateShaderRead right after the dispatch that wrote them, so the next
// dispatch samples published data only. A single-pass stream moves the
// counter buffer to StateCopyDest around the seed upload and keeps every
// level in StateUnorderedAccess for the one dispatch.
//
// # Backends
//
// Backends register by name, like database/sql drivers:
//
//	import _ "github.com/gogpu/spd/recording/backends/cpu"
//
//	backend, err := recording.NewBackend("cpu")
//
// Available backends:
//   - cpu: concurrent workgroups on goroutines, with an optional
//     validation layer (recording/backends/cpu)
//   - gpu: WGSL kernels on a wgpu HAL device (recording/backends/gpu)
package recording
