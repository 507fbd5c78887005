// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package spd

import "github.com/gogpu/spd/recording"

// Option configures a Downsampler during creation.
//
// Example:
//
//	// Default: single-pass, narrow workgroups, cpu backend
//	d, _ := spd.New()
//
//	// Multi-pass with 64×64 blocks on the GPU
//	d, _ := spd.New(
//	    spd.WithEngine(spd.MultiPass),
//	    spd.WithWideGroup(true),
//	    spd.WithBackend("gpu"),
//	    spd.WithFallbackReduction(true),
//	)
type Option func(*options)

// options holds optional configuration for Downsampler creation.
type options struct {
	cfg         Config
	backendName string
	backend     recording.Backend
	workers     int
	validate    bool
}

// defaultOptions returns the default downsampler options.
func defaultOptions() options {
	return options{
		cfg: Config{
			Engine: SinglePass,
			Limits: DefaultLimits(),
		},
		backendName: "cpu",
	}
}

// WithEngine selects the single-pass or multi-pass engine.
func WithEngine(e Engine) Option {
	return func(o *options) {
		o.cfg.Engine = e
	}
}

// WithWideGroup selects 64×64 blocks and 256-thread workgroups.
func WithWideGroup(on bool) Option {
	return func(o *options) {
		o.cfg.Wide = on
	}
}

// WithFallbackReduction selects the shared-memory quad reduction, for
// devices without lane exchange.
func WithFallbackReduction(on bool) Option {
	return func(o *options) {
		o.cfg.Fallback = on
	}
}

// WithLimits sets the device limits dispatches are checked against.
func WithLimits(l Limits) Option {
	return func(o *options) {
		o.cfg.Limits = l
	}
}

// WithBackend selects a registered backend by name. The backend is
// created by New and closed by Close.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backendName = name
		o.backend = nil
	}
}

// WithBackendInstance uses an existing backend. The caller keeps
// ownership; Close does not close it.
func WithBackendInstance(b recording.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithWorkers sets the worker count of the cpu backend. Values <= 0 use
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithValidation enables hazard and state tracking in the cpu backend.
func WithValidation(on bool) Option {
	return func(o *options) {
		o.validate = on
	}
}
