// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package recording

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Recorder captures the commands of one downsampler invocation.
// Use FinishRecording to obtain an immutable Recording that can be
// replayed to any Backend.
//
// Example:
//
//	rec := recording.NewRecorder(desc)
//	rec.TransitionLevels(0, desc.MipCount, recording.StateShaderRead, recording.StateUnorderedAccess)
//	rec.Dispatch(cmd)
//	r := rec.FinishRecording()
//	err := r.Playback(ctx, backend, src)
//
// The Recorder is not safe for concurrent use.
type Recorder struct {
	desc     Desc
	commands []Command
}

// NewRecorder creates a Recorder for resources configured with desc.
func NewRecorder(desc Desc) *Recorder {
	return &Recorder{
		desc:     desc,
		commands: make([]Command, 0, 32),
	}
}

// SeedCounters records a counter upload. values is copied.
func (r *Recorder) SeedCounters(values []uint32) {
	r.commands = append(r.commands, SeedCountersCommand{Values: slices.Clone(values)})
}

// Transition records a state change of a resource or one of its levels.
func (r *Recorder) Transition(res Resource, level int, before, after State) {
	r.commands = append(r.commands, TransitionCommand{
		Resource: res,
		Level:    level,
		Before:   before,
		After:    after,
	})
}

// TransitionLevels records one transition per output level in
// [first, first+count).
func (r *Recorder) TransitionLevels(first, count int, before, after State) {
	for l := first; l < first+count; l++ {
		r.Transition(ResourceOutput, l, before, after)
	}
}

// Dispatch records a kernel dispatch.
func (r *Recorder) Dispatch(cmd DispatchCommand) {
	r.commands = append(r.commands, cmd)
}

// Len returns the number of recorded commands.
func (r *Recorder) Len() int {
	return len(r.commands)
}

// FinishRecording returns an immutable Recording containing all recorded
// commands. The Recorder should not be used afterwards.
func (r *Recorder) FinishRecording() *Recording {
	return &Recording{desc: r.desc, commands: r.commands}
}

// Recording is an immutable command stream.
type Recording struct {
	desc     Desc
	commands []Command
}

// Desc returns the resource description the recording was made for.
func (r *Recording) Desc() Desc {
	return r.desc
}

// Commands returns the recorded commands.
func (r *Recording) Commands() []Command {
	return r.commands
}

// Dispatches returns the number of dispatch commands.
func (r *Recording) Dispatches() int {
	n := 0
	for _, c := range r.commands {
		if c.Type() == CmdDispatch {
			n++
		}
	}
	return n
}

// Playback replays the recording onto backend with src as the source.
//
// ctx is checked before every dispatch; a dispatch already handed to the
// backend always completes. On cancellation or error the backend is reset
// and the invocation is abandoned.
func (r *Recording) Playback(ctx context.Context, backend Backend, src Surface) error {
	if err := backend.Begin(src); err != nil {
		return fmt.Errorf("recording: begin: %w", err)
	}

	for i, cmd := range r.commands {
		var err error
		switch c := cmd.(type) {
		case SeedCountersCommand:
			err = backend.SeedCounters(c)
		case TransitionCommand:
			err = backend.Transition(c)
		case DispatchCommand:
			if err = ctx.Err(); err != nil {
				return errors.Join(err, backend.Reset())
			}
			err = backend.Dispatch(c)
		default:
			err = fmt.Errorf("unknown command %T", cmd)
		}
		if err != nil {
			err = fmt.Errorf("recording: command %d (%s): %w", i, cmd.Type(), err)
			return errors.Join(err, backend.Reset())
		}
	}

	if err := backend.End(); err != nil {
		return errors.Join(fmt.Errorf("recording: end: %w", err), backend.Reset())
	}
	return nil
}
