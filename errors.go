// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package spd

import (
	"errors"

	"github.com/gogpu/spd/internal/schedule"
)

// Configuration and sizing errors. They are returned by New and Resize
// before anything is dispatched.
var (
	// ErrInvalidMipCount is returned when the level count is zero, above
	// 12, or above what the source resolution supports.
	ErrInvalidMipCount = schedule.ErrInvalidMipCount

	// ErrInvalidDimensions is returned for a zero-sized source.
	ErrInvalidDimensions = schedule.ErrInvalidDimensions

	// ErrDispatchTooLarge is returned when a dispatch exceeds the device
	// limits or the rendezvous counter capacity.
	ErrDispatchTooLarge = schedule.ErrDispatchTooLarge

	// ErrWideGroupUnsupported is returned when wide workgroups are
	// requested from a backend without them.
	ErrWideGroupUnsupported = errors.New("spd: backend does not support wide workgroups")

	// ErrLaneReduceUnsupported is returned when lane reduction is requested
	// from a backend without it. Use WithFallbackReduction(true).
	ErrLaneReduceUnsupported = errors.New("spd: backend does not support lane reduction")
)

// Usage errors.
var (
	// ErrNotConfigured is returned by Generate before Resize.
	ErrNotConfigured = errors.New("spd: downsampler not configured")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("spd: downsampler closed")

	// ErrNilSource is returned when Generate is given no image.
	ErrNilSource = errors.New("spd: nil source image")

	// ErrSourceMismatch is returned when the source does not have the
	// resolution passed to Resize.
	ErrSourceMismatch = errors.New("spd: source does not match configured size")
)
