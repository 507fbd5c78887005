// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cpu provides a host backend for the recording system.
// It runs every workgroup of a dispatch on a worker pool, with the mip
// chain and the rendezvous counters held in host memory.
//
// The cpu backend serves multiple purposes:
//   - Reference implementation for other backends
//   - Bit-exact comparison testing against the scalar mip chain
//   - Hazard detection with validation enabled
//
// # Validation
//
// WithValidation(true) tracks which texels have been published in the
// current invocation. Reading a texel before it is published, publishing
// it twice, binding a level in the wrong state, or ending an invocation
// with unwritten texels makes End (or the offending Dispatch) fail.
//
// # Example
//
//	// Import to register the backend
//	import _ "github.com/gogpu/spd/recording/backends/cpu"
//
//	// Create via registry
//	backend, _ := recording.NewBackend("cpu")
//
//	// Or create directly
//	backend := cpu.New(cpu.WithWorkers(4), cpu.WithValidation(true))
package cpu

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync/atomic"

	"github.com/gogpu/spd/internal/device"
	"github.com/gogpu/spd/internal/image"
	"github.com/gogpu/spd/internal/kernel"
	"github.com/gogpu/spd/internal/parallel"
	"github.com/gogpu/spd/internal/params"
	"github.com/gogpu/spd/internal/rendezvous"
	"github.com/gogpu/spd/internal/schedule"
	"github.com/gogpu/spd/recording"
)

// Name is the registry name of the backend.
const Name = "cpu"

func init() {
	recording.Register(Name, func() (recording.Backend, error) {
		return New(), nil
	})
}

// Backend errors.
var (
	// ErrNotConfigured is returned when Begin is called before Configure.
	ErrNotConfigured = errors.New("cpu: backend not configured")

	// ErrNotActive is returned for commands outside Begin/End.
	ErrNotActive = errors.New("cpu: no invocation in progress")

	// ErrUnsupported is returned for a kernel the capabilities exclude.
	ErrUnsupported = errors.New("cpu: kernel not supported")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cpu: backend closed")
)

// Option configures a Backend.
type Option func(*Backend)

// WithWorkers sets the worker pool size. Values <= 0 use GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(b *Backend) {
		b.workers = n
	}
}

// WithValidation enables hazard and state tracking.
func WithValidation(on bool) Option {
	return func(b *Backend) {
		b.validate = on
	}
}

// WithCapabilities overrides the reported capabilities. Used to exercise
// capability fallbacks.
func WithCapabilities(c recording.Capabilities) Option {
	return func(b *Backend) {
		b.caps = c
	}
}

// Backend executes recordings on the host.
//
// A Backend is not safe for concurrent use; one invocation runs at a time.
type Backend struct {
	workers  int
	validate bool
	caps     recording.Capabilities
	log      atomic.Pointer[slog.Logger]

	pool      *parallel.WorkerPool
	desc      recording.Desc
	tex       *device.Texture
	counters  *device.CounterBuffer
	validator *device.Validator

	src       device.Source
	active    bool
	closed    bool
	elections atomic.Int64
}

var _ recording.Backend = (*Backend)(nil)

// New creates a cpu backend. Configure must be called before Begin.
func New(opts ...Option) *Backend {
	b := &Backend{
		caps: recording.Capabilities{
			WideGroup:   true,
			LaneReduce:  true,
			MaxDispatch: schedule.DefaultLimits().MaxDispatch,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.workers <= 0 {
		b.workers = runtime.GOMAXPROCS(0)
	}
	b.log.Store(slog.New(slog.DiscardHandler))
	b.pool = parallel.NewWorkerPool(b.workers)
	return b
}

// SetLogger sets the logger used for dispatch diagnostics. nil disables
// logging.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	b.log.Store(l)
}

func (b *Backend) logger() *slog.Logger { return b.log.Load() }

// Name implements recording.Backend.
func (b *Backend) Name() string { return Name }

// Capabilities implements recording.Backend.
func (b *Backend) Capabilities() recording.Capabilities { return b.caps }

// Validating reports whether hazard tracking is enabled.
func (b *Backend) Validating() bool { return b.validate }

// Elections returns how many rendezvous a group won during the last
// invocation.
func (b *Backend) Elections() int { return int(b.elections.Load()) }

// Configure implements recording.Backend.
func (b *Backend) Configure(desc recording.Desc) error {
	if b.closed {
		return ErrClosed
	}
	if b.active {
		return fmt.Errorf("cpu: configure during an invocation")
	}
	if err := schedule.CheckSize(uint32(max(desc.Width, 0)), uint32(max(desc.Height, 0)), desc.MipCount); err != nil {
		return err
	}

	var v *device.Validator
	if b.validate {
		v = &device.Validator{}
	}
	tex, err := device.NewTexture(desc, v)
	if err != nil {
		return err
	}
	b.desc = desc
	b.tex = tex
	b.validator = v
	b.counters = device.NewCounterBuffer(rendezvous.NumCounters)

	b.logger().Debug("cpu: configured", "desc", desc.String(), "validate", b.validate, "workers", b.workers)
	return nil
}

// Begin implements recording.Backend.
func (b *Backend) Begin(src recording.Surface) error {
	switch {
	case b.closed:
		return ErrClosed
	case b.tex == nil:
		return ErrNotConfigured
	case b.active:
		return fmt.Errorf("cpu: invocation already in progress")
	}
	if src.Width != b.desc.Width || src.Height != b.desc.Height {
		return fmt.Errorf("cpu: source is %dx%d, configured for %dx%d",
			src.Width, src.Height, b.desc.Width, b.desc.Height)
	}
	buf, err := image.FromPix(src.Pix, src.Width, src.Height)
	if err != nil {
		return fmt.Errorf("cpu: source: %w", err)
	}

	b.src = device.Source{Buf: buf}
	b.elections.Store(0)
	if b.validator != nil {
		b.validator.Reset()
		b.tex.BeginFrame()
	}
	b.active = true
	return nil
}

// SeedCounters implements recording.Backend.
func (b *Backend) SeedCounters(cmd recording.SeedCountersCommand) error {
	if !b.active {
		return ErrNotActive
	}
	return b.counters.Upload(cmd.Values)
}

// Transition implements recording.Backend.
func (b *Backend) Transition(cmd recording.TransitionCommand) error {
	if !b.active {
		return ErrNotActive
	}
	switch cmd.Resource {
	case recording.ResourceOutput:
		return b.tex.Transition(cmd.Level, cmd.Before, cmd.After)
	case recording.ResourceCounters:
		return b.counters.Transition(cmd.Before, cmd.After)
	default:
		return fmt.Errorf("cpu: unknown resource %d", cmd.Resource)
	}
}

// Dispatch implements recording.Backend.
func (b *Backend) Dispatch(cmd recording.DispatchCommand) error {
	if !b.active {
		return ErrNotActive
	}
	if err := b.checkKernel(cmd); err != nil {
		return err
	}
	bind, err := b.bind(cmd)
	if err != nil {
		return err
	}
	fn, err := kernel.Lookup(cmd.Kernel)
	if err != nil {
		return err
	}

	groups := cmd.Groups[0] * cmd.Groups[1] * cmd.Groups[2]
	b.logger().Debug("cpu: dispatch", "cmd", cmd.String(), "groups", groups)

	if err := b.pool.Dispatch(groups, 0, func(g uint32) { fn(bind, g) }); err != nil {
		return err
	}
	if b.validator != nil {
		return b.validator.Err()
	}
	return nil
}

func (b *Backend) checkKernel(cmd recording.DispatchCommand) error {
	k := cmd.Kernel
	if !k.Valid() {
		return fmt.Errorf("%w: %d", ErrUnsupported, uint8(k))
	}
	if k.Wide() && !b.caps.WideGroup {
		return fmt.Errorf("%w: %s needs wide workgroups", ErrUnsupported, k)
	}
	if !k.Fallback() && !b.caps.LaneReduce {
		return fmt.Errorf("%w: %s needs lane reduction", ErrUnsupported, k)
	}
	for i, n := range cmd.Groups {
		if n == 0 || n > b.caps.MaxDispatch[i] {
			return fmt.Errorf("%w: %v exceeds %v", schedule.ErrDispatchTooLarge, cmd.Groups, b.caps.MaxDispatch)
		}
	}
	return nil
}

// bind resolves the resources of cmd and checks their states.
func (b *Backend) bind(cmd recording.DispatchCommand) (*kernel.Bindings, error) {
	c, err := params.Unpack(cmd.Uniform.Data)
	if err != nil {
		return nil, err
	}
	if c.ThreadGroupDim[0] != cmd.Groups[0] || c.ThreadGroupDim[1] != cmd.Groups[1] ||
		int(c.Mips) != cmd.MipCount {
		return nil, fmt.Errorf("cpu: uniform block %+v does not match %s", c, cmd)
	}

	bind := &kernel.Bindings{
		Params:   c,
		Output:   b.tex,
		FirstMip: cmd.FirstMip,
	}
	if err := b.tex.Require(cmd.FirstMip, cmd.MipCount, recording.StateUnorderedAccess); err != nil {
		return nil, err
	}

	if cmd.Kernel.SinglePass() {
		if cmd.FirstMip != 0 || cmd.Input != recording.SourceLevel {
			return nil, fmt.Errorf("cpu: single-pass dispatch must read the source and write from level 0")
		}
		if s := b.counters.State(); s != recording.StateUnorderedAccess {
			return nil, fmt.Errorf("%w: counters are %s, dispatch needs %s",
				device.ErrStateMismatch, s, recording.StateUnorderedAccess)
		}
		bind.Input = b.src
		bind.Counters = b.counters
		bind.OnElect = func(int) { b.elections.Add(1) }
		return bind, nil
	}

	switch {
	case cmd.Input == recording.SourceLevel:
		bind.Input = b.src
	case cmd.Input >= cmd.FirstMip:
		return nil, fmt.Errorf("cpu: dispatch reads level %d it writes", cmd.Input)
	default:
		if err := b.tex.Require(cmd.Input, 1, recording.StateShaderRead); err != nil {
			return nil, err
		}
		bind.Input = b.tex.Level(cmd.Input)
	}
	return bind, nil
}

// End implements recording.Backend.
func (b *Backend) End() error {
	if !b.active {
		return ErrNotActive
	}
	b.active = false
	b.src = device.Source{}

	var errs []error
	if b.validator != nil {
		errs = append(errs, b.validator.Err())
	}
	errs = append(errs, b.tex.EndFrame())
	if s := b.counters.State(); s != recording.StateUnorderedAccess {
		errs = append(errs, fmt.Errorf("%w: counters left in %s", device.ErrStateMismatch, s))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	b.logger().Debug("cpu: invocation complete", "elections", b.Elections())
	return nil
}

// Reset implements recording.Backend.
func (b *Backend) Reset() error {
	if b.tex == nil {
		return nil
	}
	b.active = false
	b.src = device.Source{}
	b.tex.ResetStates()
	b.counters.ResetState()
	if b.validator != nil {
		b.validator.Reset()
	}
	b.logger().Warn("cpu: invocation abandoned", "desc", b.desc.String())
	return nil
}

// ReadLevel implements recording.Backend.
func (b *Backend) ReadLevel(level int) (recording.Surface, error) {
	if b.tex == nil {
		return recording.Surface{}, ErrNotConfigured
	}
	if level < 0 || level >= b.tex.NumLevels() {
		return recording.Surface{}, fmt.Errorf("cpu: level %d out of range [0,%d)", level, b.tex.NumLevels())
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
	b.pool.Close()
	b.tex = nil
	b.counters = nil
	return nil
}
