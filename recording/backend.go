// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package recording

import "fmt"

// Surface is a tightly packed RGBA float32 image, row-major.
type Surface struct {
	Width, Height int
	Pix           []float32
}

// Desc describes the resources a backend allocates in Configure.
type Desc struct {
	// Width and Height are the source resolution.
	Width, Height int

	// MipCount is the number of output levels.
	MipCount int
}

// LevelSize returns the dimensions of output level i.
func (d Desc) LevelSize(i int) (int, int) {
	return max(1, d.Width>>(i+1)), max(1, d.Height>>(i+1))
}

func (d Desc) String() string {
	return fmt.Sprintf("%dx%d mips=%d", d.Width, d.Height, d.MipCount)
}

// Capabilities reports the optional features of a backend.
type Capabilities struct {
	// WideGroup is true if 256-thread workgroups are supported.
	WideGroup bool

	// LaneReduce is true if lane-exchange quad reduction is supported.
	LaneReduce bool

	// MaxDispatch is the maximum workgroup count per dispatch axis.
	MaxDispatch [3]uint32
}

// Backend is the device a Recording plays back onto.
//
// A Backend owns the output mip chain and the counter buffer. Configure
// (re)creates them for a source resolution; Begin, the command methods and
// End then run one invocation. Levels rest in StateShaderRead between
// invocations, the counter buffer rests in StateUnorderedAccess.
//
// Backends are created via the registry using NewBackend(name) and
// registered via Register() in their init() functions:
//
//	func init() {
//	    recording.Register("cpu", func() (recording.Backend, error) {
//	        return New(), nil
//	    })
//	}
type Backend interface {
	// Name returns the registry name of the backend.
	Name() string

	// Capabilities reports what kernels the backend can run.
	Capabilities() Capabilities

	// Configure destroys any previous resources and creates the output
	// chain and counter buffer for desc.
	Configure(desc Desc) error

	// Begin starts an invocation reading src, which must match the
	// configured resolution. src is read-only for the whole invocation.
	Begin(src Surface) error

	// SeedCounters uploads counter start values.
	SeedCounters(cmd SeedCountersCommand) error

	// Transition changes the state of a resource or level.
	Transition(cmd TransitionCommand) error

	// Dispatch runs a kernel.
	Dispatch(cmd DispatchCommand) error

	// End completes the invocation and waits until every dispatch retired.
	End() error

	// Reset abandons an invocation after Begin and returns every resource
	// to its resting state.
	Reset() error

	// ReadLevel copies output level i to host memory.
	ReadLevel(level int) (Surface, error)

	// Close releases every resource.
	Close() error
}
