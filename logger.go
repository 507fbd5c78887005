// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package spd

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// live holds every open Downsampler so SetLogger can reach its backend.
var (
	liveMu sync.Mutex
	live   = make(map[*Downsampler]struct{})
)

// SetLogger configures the logger for spd and the backends of all open
// Downsamplers. By default, spd produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to disable logging.
//
// Log levels used by spd:
//   - [slog.LevelDebug]: per-invocation diagnostics (geometry, dispatches, elections)
//   - [slog.LevelInfo]: lifecycle events (backend created, GPU adapter selected)
//   - [slog.LevelWarn]: non-fatal issues (abandoned invocations, naga fallback)
//
// Example:
//
//	spd.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	liveMu.Lock()
	defer liveMu.Unlock()
	for d := range live {
		propagateLogger(d.backend, l)
	}
}

// Logger returns the current logger used by spd.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a backend if it implements
// loggerSetter.
func propagateLogger(b any, l *slog.Logger) {
	if ls, ok := b.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
