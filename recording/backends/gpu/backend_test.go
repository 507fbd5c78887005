// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/spd/internal/device"
	igpu "github.com/gogpu/spd/internal/gpu"
	"github.com/gogpu/spd/internal/image"
	"github.com/gogpu/spd/internal/plan"
	"github.com/gogpu/spd/internal/schedule"
	"github.com/gogpu/spd/recording"
)

// newNoopBackend creates a backend on a noop HAL device.
func newNoopBackend(t *testing.T) *Backend {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	d, err := igpu.New(openDev.Device, openDev.Queue)
	if err != nil {
		t.Fatal(err)
	}
	b := New(d)
	t.Cleanup(func() {
		_ = b.Close()
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return b
}

func surface(w, h int) recording.Surface {
	return recording.Surface{Width: w, Height: h, Pix: make([]float32, w*h*image.Channels)}
}

func record(t *testing.T, desc recording.Desc, single, wide bool) *recording.Recording {
	t.Helper()
	r, err := plan.Record(desc, plan.Options{
		SinglePass: single,
		Wide:       wide,
		Fallback:   true,
		Limits:     schedule.DefaultLimits(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// encode feeds every command of r to b without ending the invocation.
func encode(t *testing.T, b *Backend, r *recording.Recording) {
	t.Helper()
	for i, cmd := range r.Commands() {
		var err error
		switch c := cmd.(type) {
		case recording.SeedCountersCommand:
			err = b.SeedCounters(c)
		case recording.TransitionCommand:
			err = b.Transition(c)
		case recording.DispatchCommand:
			err = b.Dispatch(c)
		}
		if err != nil {
			t.Fatalf("command %d (%s): %v", i, cmd.Type(), err)
		}
	}
}

// =============================================================================
// Backend Tests (noop device)
// =============================================================================

func TestBackend_Capabilities(t *testing.T) {
	b := newNoopBackend(t)
	if b.Name() != Name {
		t.Errorf("Name() = %q", b.Name())
	}
	caps := b.Capabilities()
	if caps.LaneReduce {
		t.Error("LaneReduce reported without a lane kernel")
	}
	if !caps.WideGroup {
		t.Error("WideGroup not reported")
	}
}

func TestBackend_EncodeAllFallbackKernels(t *testing.T) {
	desc := recording.Desc{Width: 300, Height: 200, MipCount: 8}
	tests := []struct {
		name         string
		single, wide bool
	}{
		{"multi-narrow", false, false},
		{"multi-wide", false, true},
		{"single-narrow", true, false},
		{"single-wide", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newNoopBackend(t)
			if err := b.Configure(desc); err != nil {
				t.Fatal(err)
			}
			if err := b.Begin(surface(300, 200)); err != nil {
				t.Fatal(err)
			}
			encode(t, b, record(t, desc, tt.single, tt.wide))
			if err := b.Reset(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestBackend_LaneKernelUnsupported(t *testing.T) {
	b := newNoopBackend(t)
	desc := recording.Desc{Width: 64, Height: 64, MipCount: 4}
	if err := b.Configure(desc); err != nil {
		t.Fatal(err)
	}
	if err := b.Begin(surface(64, 64)); err != nil {
		t.Fatal(err)
	}
	defer b.Reset()

	err := b.Dispatch(recording.DispatchCommand{
		Kernel:   recording.KernelFor(false, false, false),
		Groups:   [3]uint32{4, 4, 1},
		Input:    recording.SourceLevel,
		MipCount: 4,
	})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Dispatch() = %v, want ErrUnsupported", err)
	}
}

func TestBackend_StateChecks(t *testing.T) {
	b := newNoopBackend(t)
	desc := recording.Desc{Width: 64, Height: 64, MipCount: 4}

	if err := b.Begin(surface(64, 64)); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Begin() before Configure = %v, want ErrNotConfigured", err)
	}
	if err := b.Dispatch(recording.DispatchCommand{}); !errors.Is(err, ErrNotActive) {
		t.Errorf("Dispatch() outside an invocation = %v, want ErrNotActive", err)
	}
	if err := b.Configure(desc); err != nil {
		t.Fatal(err)
	}
	if err := b.Begin(surface(32, 64)); err == nil {
		t.Error("Begin() with a mismatched source succeeded")
	}
	if err := b.Begin(surface(64, 64)); err != nil {
		t.Fatal(err)
	}

	// Levels are still at rest.
	err := b.Dispatch(recording.DispatchCommand{
		Kernel:   recording.KernelFor(false, false, true),
		Groups:   [3]uint32{4, 4, 1},
		Input:    recording.SourceLevel,
		MipCount: 4,
	})
	if !errors.Is(err, device.ErrStateMismatch) {
		t.Errorf("Dispatch() on resting levels = %v, want ErrStateMismatch", err)
	}

	// Ending with levels in the wrong state fails before submission.
	if err := b.Transition(recording.TransitionCommand{
		Resource: recording.ResourceOutput, Level: recording.AllLevels,
		Before: recording.StateShaderRead, After: recording.StateUnorderedAccess,
	}); err != nil {
		t.Fatal(err)
	}
	if err := b.End(); !errors.Is(err, device.ErrStateMismatch) {
		t.Errorf("End() = %v, want ErrStateMismatch", err)
	}
	if s := b.tex.State(0); s != recording.StateShaderRead {
		t.Errorf("level 0 is %s after a failed End, want ShaderRead", s)
	}
}

func TestBackend_ConfigureInvalid(t *testing.T) {
	b := newNoopBackend(t)
	err := b.Configure(recording.Desc{Width: 16, Height: 16, MipCount: 9})
	if !errors.Is(err, schedule.ErrInvalidMipCount) {
		t.Errorf("Configure() = %v, want ErrInvalidMipCount", err)
	}
}

func TestBackend_Close(t *testing.T) {
	b := newNoopBackend(t)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if err := b.Configure(recording.Desc{Width: 16, Height: 16, MipCount: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Configure() after Close = %v, want ErrClosed", err)
	}
}

func TestBackendRegistration(t *testing.T) {
	if !recording.IsRegistered(Name) {
		t.Fatal("gpu backend not registered")
	}
}
