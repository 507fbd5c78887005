// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu provides a WebGPU backend for the recording system.
//
// Recordings are encoded onto a gogpu/wgpu HAL device: every dispatch
// becomes a compute pass running one of the embedded WGSL kernels, and End
// submits the invocation, waits for it and reads the chain back into a
// host mirror. Transitions are tracked on the host; on the device they
// fall on compute pass boundaries.
//
// Only the shared-memory reduction kernels are available, so Capabilities
// reports LaneReduce false and callers select the fallback kernels.
//
// # Example
//
//	// Import to register the backend
//	import _ "github.com/gogpu/spd/recording/backends/gpu"
//
//	// Create via registry; opens the first Vulkan adapter
//	backend, err := recording.NewBackend("gpu")
//
//	// Or share an existing device
//	d, _ := igpu.NewFromProvider(provider)
//	backend := gpu.New(d)
package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/spd/internal/device"
	igpu "github.com/gogpu/spd/internal/gpu"
	"github.com/gogpu/spd/internal/params"
	"github.com/gogpu/spd/internal/rendezvous"
	"github.com/gogpu/spd/internal/schedule"
	"github.com/gogpu/spd/recording"
)

// Name is the registry name of the backend.
const Name = "gpu"

func init() {
	recording.Register(Name, func() (recording.Backend, error) {
		d, err := igpu.Open()
		if err != nil {
			return nil, err
		}
		return New(d), nil
	})
}

// Backend errors.
var (
	// ErrNotConfigured is returned when Begin is called before Configure.
	ErrNotConfigured = errors.New("gpu: backend not configured")

	// ErrNotActive is returned for commands outside Begin/End.
	ErrNotActive = errors.New("gpu: no invocation in progress")

	// ErrUnsupported is returned for a kernel the device cannot run.
	ErrUnsupported = errors.New("gpu: kernel not supported")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("gpu: backend closed")
)

// Option configures a Backend.
type Option func(*Backend)

// WithUniformCapacity sets the size of the device uniform ring. It must
// be at least the capacity of the params.Ring the recordings are packed in.
func WithUniformCapacity(n int) Option {
	return func(b *Backend) {
		b.uniformCap = n
	}
}

// Backend plays recordings back on a GPU.
//
// A Backend is not safe for concurrent use; one invocation runs at a time.
type Backend struct {
	d          *igpu.Dispatcher
	uniformCap int

	desc     recording.Desc
	tex      *device.Texture
	counters *device.CounterBuffer
	frame    *igpu.Frame

	closed bool
}

var _ recording.Backend = (*Backend)(nil)

// New creates a backend on d. The backend owns d and closes it.
func New(d *igpu.Dispatcher, opts ...Option) *Backend {
	b := &Backend{d: d, uniformCap: params.DefaultRingCapacity}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetLogger sets the logger of the GPU layer. nil disables logging.
func (b *Backend) SetLogger(l *slog.Logger) {
	igpu.SetLogger(l)
}

// Name implements recording.Backend.
func (b *Backend) Name() string { return Name }

// Capabilities implements recording.Backend.
func (b *Backend) Capabilities() recording.Capabilities { return b.d.Capabilities() }

// Configure implements recording.Backend.
func (b *Backend) Configure(desc recording.Desc) error {
	if b.closed {
		return ErrClosed
	}
	if b.frame != nil {
		return fmt.Errorf("gpu: configure during an invocation")
	}
	if err := schedule.CheckSize(uint32(max(desc.Width, 0)), uint32(max(desc.Height, 0)), desc.MipCount); err != nil {
		return err
	}
	tex, err := device.NewTexture(desc, nil)
	if err != nil {
		return err
	}
	if err := b.d.Configure(desc, b.uniformCap); err != nil {
		return err
	}
	b.desc = desc
	b.tex = tex
	b.counters = device.NewCounterBuffer(rendezvous.NumCounters)
	return nil
}

// Begin implements recording.Backend.
func (b *Backend) Begin(src recording.Surface) error {
	switch {
	case b.closed:
		return ErrClosed
	case b.tex == nil:
		return ErrNotConfigured
	case b.frame != nil:
		return fmt.Errorf("gpu: invocation already in progress")
	}
	if src.Width != b.desc.Width || src.Height != b.desc.Height {
		return fmt.Errorf("gpu: source is %dx%d, configured for %dx%d",
			src.Width, src.Height, b.desc.Width, b.desc.Height)
	}
	f, err := b.d.Begin(src.Pix)
	if err != nil {
		return err
	}
	b.frame = f
	return nil
}

// SeedCounters implements recording.Backend.
func (b *Backend) SeedCounters(cmd recording.SeedCountersCommand) error {
	if b.frame == nil {
		return ErrNotActive
	}
	if err := b.counters.Upload(cmd.Values); err != nil {
		return err
	}
	b.frame.Seed(cmd.Values)
	return nil
}

// Transition implements recording.Backend.
func (b *Backend) Transition(cmd recording.TransitionCommand) error {
	if b.frame == nil {
		return ErrNotActive
	}
	switch cmd.Resource {
	case recording.ResourceOutput:
		return b.tex.Transition(cmd.Level, cmd.Before, cmd.After)
	case recording.ResourceCounters:
		return b.counters.Transition(cmd.Before, cmd.After)
	default:
		return fmt.Errorf("gpu: unknown resource %d", cmd.Resource)
	}
}

// Dispatch implements recording.Backend.
func (b *Backend) Dispatch(cmd recording.DispatchCommand) error {
	if b.frame == nil {
		return ErrNotActive
	}
	if err := b.check(cmd); err != nil {
		return err
	}
	return b.frame.Dispatch(cmd)
}

// check validates the kernel and the states of the bound resources.
func (b *Backend) check(cmd recording.DispatchCommand) error {
	k := cmd.Kernel
	caps := b.Capabilities()
	switch {
	case !k.Valid():
		return fmt.Errorf("%w: %d", ErrUnsupported, uint8(k))
	case k.Wide() && !caps.WideGroup:
		return fmt.Errorf("%w: %s needs wide workgroups", ErrUnsupported, k)
	case !k.Fallback() && !caps.LaneReduce:
		return fmt.Errorf("%w: %s needs lane reduction", ErrUnsupported, k)
	}
	for i, n := range cmd.Groups {
		if n == 0 || n > caps.MaxDispatch[i] {
			return fmt.Errorf("%w: %v exceeds %v", schedule.ErrDispatchTooLarge, cmd.Groups, caps.MaxDispatch)
		}
	}

	if err := b.tex.Require(cmd.FirstMip, cmd.MipCount, recording.StateUnorderedAccess); err != nil {
		return err
	}
	if k.SinglePass() {
		if s := b.counters.State(); s != recording.StateUnorderedAccess {
			return fmt.Errorf("%w: counters are %s, dispatch needs %s",
				device.ErrStateMismatch, s, recording.StateUnorderedAccess)
		}
		return nil
	}
	if cmd.Input == recording.SourceLevel {
		return nil
	}
	if cmd.Input >= cmd.FirstMip {
		return fmt.Errorf("gpu: dispatch reads level %d it writes", cmd.Input)
	}
	return b.tex.Require(cmd.Input, 1, recording.StateShaderRead)
}

// End implements recording.Backend.
func (b *Backend) End() error {
	if b.frame == nil {
		return ErrNotActive
	}
	f := b.frame
	b.frame = nil

	var errs []error
	errs = append(errs, b.tex.EndFrame())
	if s := b.counters.State(); s != recording.StateUnorderedAccess {
		errs = append(errs, fmt.Errorf("%w: counters left in %s", device.ErrStateMismatch, s))
	}
	if err := errors.Join(errs...); err != nil {
		f.Abandon()
		b.tex.ResetStates()
		b.counters.ResetState()
		return err
	}

	texels, err := f.Finish()
	if err != nil {
		return err
	}
	return b.unpack(texels)
}

// unpack copies the read back chain into the host mirror.
func (b *Backend) unpack(texels []float32) error {
	for i, span := range b.d.Layout() {
		pix := b.tex.Level(i).Buf().Pix()
		off := int(span.Offset) * 4
		if off+len(pix) > len(texels) {
			return fmt.Errorf("gpu: readback has %d floats, level %d ends at %d", len(texels), i, off+len(pix))
		}
		copy(pix, texels[off:off+len(pix)])
	}
	return nil
}

// Reset implements recording.Backend.
func (b *Backend) Reset() error {
	if b.tex == nil {
		return nil
	}
	if b.frame != nil {
		b.frame.Abandon()
		b.frame = nil
	}
	b.tex.ResetStates()
	b.counters.ResetState()
	return nil
}

// ReadLevel implements recording.Backend.
func (b *Backend) ReadLevel(level int) (recording.Surface, error) {
	if b.tex == nil {
		return recording.Surface{}, ErrNotConfigured
	}
	if level < 0 || level >= b.tex.NumLevels() {
		return recording.Surface{}, fmt.Errorf("gpu: level %d out of range [0,%d)", level, b.tex.NumLevels())
	}
	buf := b.tex.Level(level).Buf()
	w, h := buf.Bounds()
	return recording.Surface{Width: w, Height: h, Pix: slices.Clone(buf.Pix())}, nil
}

// Close implements recording.Backend.
func (b *Backend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if b.frame != nil {
		b.frame.Abandon()
		b.frame = nil
	}
	b.d.Close()
	b.tex = nil
	b.counters = nil
	return nil
}
