// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package spd

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/gogpu/spd/internal/image"
	"github.com/gogpu/spd/internal/params"
	"github.com/gogpu/spd/internal/plan"
	"github.com/gogpu/spd/recording"
	"github.com/gogpu/spd/recording/backends/cpu"
)

// Downsampler generates mip chains for one source resolution at a time.
//
// Resize allocates the output chain and the counter buffer; Generate then
// records and plays back one invocation per call. One invocation is in
// flight at a time: concurrent Generate calls wait for each other.
//
// A Downsampler is safe for concurrent use.
type Downsampler struct {
	cfg     Config
	backend recording.Backend
	owned   bool

	// sem admits one invocation or Resize at a time.
	sem  *semaphore.Weighted
	ring *params.Ring

	mu     sync.Mutex
	desc   recording.Desc
	ready  bool
	closed bool
}

// New creates a Downsampler. The backend is created (or taken from
// WithBackendInstance) and the configuration is validated against it.
func New(opts ...Option) (*Downsampler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	backend, owned := o.backend, false
	if backend == nil {
		var err error
		backend, err = newBackend(o)
		if err != nil {
			return nil, err
		}
		owned = true
	}

	if err := o.cfg.Validate(backend.Capabilities()); err != nil {
		if owned {
			_ = backend.Close()
		}
		return nil, err
	}

	d := &Downsampler{
		cfg:     o.cfg,
		backend: backend,
		owned:   owned,
		sem:     semaphore.NewWeighted(1),
		ring:    params.NewRing(params.DefaultRingCapacity),
	}

	l := Logger()
	propagateLogger(backend, l)
	liveMu.Lock()
	live[d] = struct{}{}
	liveMu.Unlock()

	l.Info("spd: downsampler created", "backend", backend.Name(), "config", o.cfg.String())
	return d, nil
}

func newBackend(o options) (recording.Backend, error) {
	if o.backendName == cpu.Name {
		return cpu.New(cpu.WithWorkers(o.workers), cpu.WithValidation(o.validate)), nil
	}
	return recording.NewBackend(o.backendName)
}

// Config returns the configuration.
func (d *Downsampler) Config() Config { return d.cfg }

// Backend returns the backend invocations are played back on.
func (d *Downsampler) Backend() recording.Backend { return d.backend }

// Resize creates the output chain and counter buffer for a width×height
// source with mipCount levels, replacing the previous ones. It waits for
// an in-flight Generate to finish.
func (d *Downsampler) Resize(width, height, mipCount int) error {
	desc := recording.Desc{Width: width, Height: height, MipCount: mipCount}

	// Fail on an impossible schedule before touching the backend.
	if _, err := plan.Record(desc, d.planOptions(nil)); err != nil {
		return err
	}

	if err := d.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer d.sem.Release(1)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.ready = false
	if err := d.backend.Configure(desc); err != nil {
		return fmt.Errorf("spd: configure %s: %w", desc, err)
	}
	d.desc = desc
	d.ready = true

	Logger().Debug("spd: resized", "desc", desc.String())
	return nil
}

// Desc returns the configured resolution and level count.
func (d *Downsampler) Desc() (width, height, mipCount int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.desc.Width, d.desc.Height, d.desc.MipCount
}

func (d *Downsampler) planOptions(ring *params.Ring) plan.Options {
	return plan.Options{
		SinglePass: d.cfg.Engine == SinglePass,
		Wide:       d.cfg.Wide,
		Fallback:   d.cfg.Fallback,
		Limits:     d.cfg.Limits,
		Ring:       ring,
	}
}

// Record returns the command stream of one invocation at the configured
// resolution, without running it.
func (d *Downsampler) Record() (*recording.Recording, error) {
	d.mu.Lock()
	desc, ready := d.desc, d.ready
	d.mu.Unlock()
	if !ready {
		return nil, ErrNotConfigured
	}
	return plan.Record(desc, d.planOptions(nil))
}

// Generate computes the mip chain of src. src must have the resolution
// passed to Resize and is not modified.
//
// ctx bounds the wait for a previous invocation and is checked before
// every dispatch; a dispatch already started always completes.
func (d *Downsampler) Generate(ctx context.Context, src *Image) (*MipChain, error) {
	if src == nil || src.IsEmpty() {
		return nil, ErrNilSource
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)

	d.mu.Lock()
	desc, ready, closed := d.desc, d.ready, d.closed
	d.mu.Unlock()
	switch {
	case closed:
		return nil, ErrClosed
	case !ready:
		return nil, ErrNotConfigured
	}
	if w, h := src.Bounds(); w != desc.Width || h != desc.Height {
		return nil, fmt.Errorf("%w: %dx%d, configured for %dx%d", ErrSourceMismatch, w, h, desc.Width, desc.Height)
	}

	rec, err := plan.Record(desc, d.planOptions(d.ring))
	defer d.ring.Retire()
	if err != nil {
		return nil, err
	}

	l := Logger()
	l.Debug("spd: generate", "desc", desc.String(), "kernel", d.cfg.Kernel().String(),
		"dispatches", rec.Dispatches(), "uniform_bytes", d.ring.Used())

	surface := recording.Surface{Width: desc.Width, Height: desc.Height, Pix: src.Pix()}
	if err := rec.Playback(ctx, d.backend, surface); err != nil {
		return nil, err
	}
	return d.readChain(desc)
}

// readChain copies every level out of the backend.
func (d *Downsampler) readChain(desc recording.Desc) (*MipChain, error) {
	levels := make([]*image.Buf, desc.MipCount)
	for i := range levels {
		s, err := d.backend.ReadLevel(i)
		if err != nil {
			return nil, fmt.Errorf("spd: read level %d: %w", i, err)
		}
		buf, err := image.FromPix(s.Pix, s.Width, s.Height)
		if err != nil {
			return nil, fmt.Errorf("spd: read level %d: %w", i, err)
		}
		levels[i] = buf
	}
	return image.ChainOf(levels), nil
}

// Close releases the backend if the Downsampler created it. Close waits
// for an in-flight Generate.
func (d *Downsampler) Close() error {
	if err := d.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer d.sem.Release(1)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.ready = false

	liveMu.Lock()
	delete(live, d)
	liveMu.Unlock()

	if d.owned {
		return d.backend.Close()
	}
	return nil
}
