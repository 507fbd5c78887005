// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package plan turns a downsampler configuration into a recording: the
// counter seeding, the state transitions and the dispatches with their
// packed uniform blocks.
package plan

import (
	"fmt"

	"github.com/gogpu/spd/internal/params"
	"github.com/gogpu/spd/internal/rendezvous"
	"github.com/gogpu/spd/internal/schedule"
	"github.com/gogpu/spd/recording"
)

// Options selects the kernel family and the limits to schedule against.
type Options struct {
	SinglePass bool
	Wide       bool
	Fallback   bool
	Limits     schedule.Limits

	// Ring, if set, backs the uniform blocks. Otherwise each block is a
	// fresh heap allocation at offset 0.
	Ring *params.Ring
}

// Kernel returns the kernel every dispatch of the plan uses.
func (o Options) Kernel() recording.Kernel {
	return recording.KernelFor(o.SinglePass, o.Wide, o.Fallback)
}

// Record builds the command stream for one invocation over desc.
func Record(desc recording.Desc, o Options) (*recording.Recording, error) {
	w, h := uint32(max(desc.Width, 0)), uint32(max(desc.Height, 0))
	if err := schedule.CheckSize(w, h, desc.MipCount); err != nil {
		return nil, err
	}
	rec := recording.NewRecorder(desc)
	var err error
	if o.SinglePass {
		err = recordSinglePass(rec, w, h, desc.MipCount, o)
	} else {
		err = recordMultiPass(rec, w, h, desc.MipCount, o)
	}
	if err != nil {
		return nil, err
	}
	return rec.FinishRecording(), nil
}

// recordSinglePass seeds the counters and records the one dispatch that
// completes the chain.
func recordSinglePass(rec *recording.Recorder, w, h uint32, mips int, o Options) error {
	pass, err := schedule.SinglePass(w, h, mips, o.Wide, o.Limits)
	if err != nil {
		return err
	}
	g := pass.Geometry

	seeds := rendezvous.SeedNarrow(g.X, g.Y)
	if o.Wide {
		seeds = rendezvous.SeedWide(g.X, g.Y)
	}
	rec.Transition(recording.ResourceCounters, recording.AllLevels,
		recording.StateUnorderedAccess, recording.StateCopyDest)
	rec.SeedCounters(rendezvous.StartValues(seeds))
	rec.Transition(recording.ResourceCounters, recording.AllLevels,
		recording.StateCopyDest, recording.StateUnorderedAccess)

	u, err := uniform(o.Ring, params.Pack(mips, g.X, g.Y, g.Z, w, h))
	if err != nil {
		return err
	}
	rec.TransitionLevels(0, mips, recording.StateShaderRead, recording.StateUnorderedAccess)
	rec.Dispatch(recording.DispatchCommand{
		Kernel:   o.Kernel(),
		Groups:   [3]uint32{g.X, g.Y, g.Z},
		Input:    recording.SourceLevel,
		FirstMip: 0,
		MipCount: mips,
		Uniform:  u,
	})
	rec.TransitionLevels(0, mips, recording.StateUnorderedAccess, recording.StateShaderRead)
	return nil
}

// recordMultiPass records one dispatch per batch. Every level enters
// StateUnorderedAccess up front; a batch returns its levels to
// StateShaderRead once written so the next batch can read the last one.
func recordMultiPass(rec *recording.Recorder, w, h uint32, mips int, o Options) error {
	passes, err := schedule.MultiPass(w, h, mips, o.Wide, o.Limits)
	if err != nil {
		return err
	}

	rec.TransitionLevels(0, mips, recording.StateShaderRead, recording.StateUnorderedAccess)
	for _, p := range passes {
		g := p.Geometry
		u, err := uniform(o.Ring, params.Pack(p.MipCount, g.X, g.Y, g.Z, p.Width, p.Height))
		if err != nil {
			return fmt.Errorf("plan: pass %d: %w", p.Index, err)
		}
		rec.Dispatch(recording.DispatchCommand{
			Kernel:   o.Kernel(),
			Groups:   [3]uint32{g.X, g.Y, g.Z},
			Input:    p.InputLevel,
			FirstMip: p.FirstMip,
			MipCount: p.MipCount,
			Uniform:  u,
		})
		rec.TransitionLevels(p.FirstMip, p.MipCount, recording.StateUnorderedAccess, recording.StateShaderRead)
	}
	return nil
}

func uniform(ring *params.Ring, c params.Constants) (recording.Uniform, error) {
	if ring == nil {
		return recording.Uniform{Data: c.Bytes()}, nil
	}
	blk, err := ring.Alloc(params.Size)
	if err != nil {
		return recording.Uniform{}, err
	}
	c.Put(blk.Data)
	return recording.Uniform{Offset: blk.Offset, Data: blk.Data[:params.Size]}, nil
}
