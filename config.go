// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package spd

import (
	"fmt"

	"github.com/gogpu/spd/internal/schedule"
	"github.com/gogpu/spd/recording"
)

// Engine selects how the chain is scheduled.
type Engine uint8

const (
	// SinglePass completes the chain in one dispatch through the
	// rendezvous counters.
	SinglePass Engine = iota

	// MultiPass writes a batch of levels per dispatch.
	MultiPass
)

// String returns the engine name.
func (e Engine) String() string {
	switch e {
	case SinglePass:
		return "single-pass"
	case MultiPass:
		return "multi-pass"
	default:
		return fmt.Sprintf("Engine(%d)", uint8(e))
	}
}

// Limits describes the device limits dispatches are checked against.
type Limits = schedule.Limits

// DefaultLimits returns the WebGPU baseline limits.
func DefaultLimits() Limits {
	return schedule.DefaultLimits()
}

// Capabilities reports the optional features of a backend.
type Capabilities = recording.Capabilities

// Config is the resolved configuration of a Downsampler.
type Config struct {
	Engine Engine

	// Wide selects 64×64 blocks per 256-thread workgroup instead of 16×16
	// per 64 threads.
	Wide bool

	// Fallback reduces 2×2 quads through shared memory instead of lane
	// exchange.
	Fallback bool

	Limits Limits
}

// Validate checks the configuration against the capabilities of a backend.
func (c Config) Validate(caps Capabilities) error {
	if c.Engine != SinglePass && c.Engine != MultiPass {
		return fmt.Errorf("spd: unknown engine %d", uint8(c.Engine))
	}
	if c.Wide && !caps.WideGroup {
		return ErrWideGroupUnsupported
	}
	if !c.Fallback && !caps.LaneReduce {
		return ErrLaneReduceUnsupported
	}
	for i, n := range c.Limits.MaxDispatch {
		if n == 0 {
			return fmt.Errorf("spd: dispatch limit on axis %d is zero", i)
		}
	}
	return nil
}

// Kernel returns the kernel the configuration dispatches.
func (c Config) Kernel() recording.Kernel {
	return recording.KernelFor(c.Engine == SinglePass, c.Wide, c.Fallback)
}

// LevelsPerPass returns how many levels one multi-pass dispatch writes.
func (c Config) LevelsPerPass() int {
	return schedule.LevelsPerPass(c.Wide)
}

func (c Config) String() string {
	return fmt.Sprintf("%s %s", c.Engine, c.Kernel())
}
