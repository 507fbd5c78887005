// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package recording

import "fmt"

// CommandType identifies the type of a command.
type CommandType uint8

const (
	CmdSeedCounters CommandType = iota // Upload rendezvous counter start values
	CmdTransition                      // Change the access state of a resource
	CmdDispatch                        // Run a downsampling kernel
)

var commandTypeNames = [...]string{
	CmdSeedCounters: "SeedCounters",
	CmdTransition:   "Transition",
	CmdDispatch:     "Dispatch",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is the interface implemented by all command types.
type Command interface {
	// Type returns the CommandType for this command.
	Type() CommandType
}

// Resource names a device resource owned by the downsampler.
type Resource uint8

const (
	// ResourceOutput is the mip chain texture, addressed per level.
	ResourceOutput Resource = iota

	// ResourceCounters is the rendezvous counter buffer.
	ResourceCounters
)

func (r Resource) String() string {
	switch r {
	case ResourceOutput:
		return "output"
	case ResourceCounters:
		return "counters"
	default:
		return fmt.Sprintf("Resource(%d)", uint8(r))
	}
}

// State is the access state of a resource or level.
//
// A level in StateUnorderedAccess is being written and must not be sampled
// by another dispatch; a level in StateShaderRead is published.
type State uint8

const (
	// StateShaderRead is the resting state of every output level.
	StateShaderRead State = iota

	// StateUnorderedAccess allows kernels to write, and to read back what
	// other workgroups of the same dispatch have published.
	StateUnorderedAccess

	// StateCopyDest allows host uploads.
	StateCopyDest
)

func (s State) String() string {
	switch s {
	case StateShaderRead:
		return "ShaderRead"
	case StateUnorderedAccess:
		return "UnorderedAccess"
	case StateCopyDest:
		return "CopyDest"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

const (
	// AllLevels addresses every level of a resource in a transition.
	AllLevels = -1

	// SourceLevel is the Input of a dispatch that reads the source image.
	SourceLevel = -1
)

// SeedCountersCommand uploads counter start values.
// The counter buffer must be in StateCopyDest.
type SeedCountersCommand struct {
	Values []uint32
}

// Type implements Command.
func (SeedCountersCommand) Type() CommandType { return CmdSeedCounters }

// TransitionCommand moves a resource, or one level of it, between states.
type TransitionCommand struct {
	Resource Resource
	Level    int
	Before   State
	After    State
}

// Type implements Command.
func (TransitionCommand) Type() CommandType { return CmdTransition }

func (c TransitionCommand) String() string {
	lvl := "all"
	if c.Level != AllLevels {
		lvl = fmt.Sprint(c.Level)
	}
	return fmt.Sprintf("%s[%s] %s->%s", c.Resource, lvl, c.Before, c.After)
}

// Uniform is a packed uniform block and its offset in the scratch ring.
type Uniform struct {
	Offset uint64
	Data   []byte
}

// DispatchCommand runs a kernel over Groups workgroups.
//
// The kernel reads Input (SourceLevel for the source image) and writes
// levels [FirstMip, FirstMip+MipCount). A single-pass kernel also reads
// back levels it has written through the rendezvous.
type DispatchCommand struct {
	Kernel   Kernel
	Groups   [3]uint32
	Input    int
	FirstMip int
	MipCount int
	Uniform  Uniform
}

// Type implements Command.
func (DispatchCommand) Type() CommandType { return CmdDispatch }

func (c DispatchCommand) String() string {
	return fmt.Sprintf("%s %dx%dx%d in=%d mips=[%d,+%d)",
		c.Kernel, c.Groups[0], c.Groups[1], c.Groups[2], c.Input, c.FirstMip, c.MipCount)
}
