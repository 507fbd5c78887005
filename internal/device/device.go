// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package device models the resources of a compute device in host memory:
// a mip chain texture whose levels carry an access state, and the
// rendezvous counter buffer.
//
// With validation enabled every texel records whether it has been
// published in the current frame. Reading an unpublished texel, publishing
// a texel twice, or binding a level in the wrong state is reported instead
// of silently producing wrong data.
package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/spd/internal/image"
	"github.com/gogpu/spd/internal/rendezvous"
	"github.com/gogpu/spd/recording"
)

// Validation errors.
var (
	// ErrStateMismatch is returned when a transition or binding does not
	// match the current state of a resource.
	ErrStateMismatch = errors.New("device: resource state mismatch")

	// ErrHazard is reported when a kernel reads a texel nobody has
	// published yet, or publishes a texel twice.
	ErrHazard = errors.New("device: memory hazard")

	// ErrIncomplete is reported when a frame ends with unpublished texels.
	ErrIncomplete = errors.New("device: level not fully written")
)

// maxReports bounds the errors a Validator keeps per frame.
const maxReports = 8

// Validator collects validation failures of one frame. Safe for
// concurrent use.
type Validator struct {
	mu      sync.Mutex
	errs    []error
	dropped int
}

func (v *Validator) report(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.errs) < maxReports {
		v.errs = append(v.errs, err)
	} else {
		v.dropped++
	}
}

// Err returns the failures reported since the last Reset, or nil.
func (v *Validator) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.errs) == 0 {
		return nil
	}
	errs := v.errs
	if v.dropped > 0 {
		errs = append(errs[:len(errs):len(errs)], fmt.Errorf("device: %d more failures", v.dropped))
	}
	return errors.Join(errs...)
}

// Reset forgets every failure.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs = nil
	v.dropped = 0
}

// Surface is a readable 2D texel array bound to a kernel.
type Surface interface {
	Bounds() (int, int)
	Load(x, y int) image.Texel
}

// Source is the read-only source image binding.
type Source struct {
	Buf *image.Buf
}

// Bounds implements Surface.
func (s Source) Bounds() (int, int) { return s.Buf.Bounds() }

// Load implements Surface.
func (s Source) Load(x, y int) image.Texel { return s.Buf.At(x, y) }

// Level is one mip level of a Texture.
type Level struct {
	buf   *image.Buf
	index int
	state recording.State

	// written has one flag per texel when validation is on.
	written []atomic.Bool
	v       *Validator
}

// Index returns the level number.
func (l *Level) Index() int { return l.index }

// Buf returns the level storage.
func (l *Level) Buf() *image.Buf { return l.buf }

// Bounds implements Surface.
func (l *Level) Bounds() (int, int) { return l.buf.Bounds() }

// Load implements Surface.
func (l *Level) Load(x, y int) image.Texel {
	if l.written != nil {
		w, h := l.buf.Bounds()
		if x < 0 || y < 0 || x >= w || y >= h {
			l.v.report(fmt.Errorf("%w: level %d read (%d,%d) outside %dx%d", ErrHazard, l.index, x, y, w, h))
			return image.Texel{}
		}
		if !l.written[y*w+x].Load() {
			l.v.report(fmt.Errorf("%w: level %d (%d,%d) read before it was published", ErrHazard, l.index, x, y))
		}
	}
	return l.buf.At(x, y)
}

// Store publishes a texel.
func (l *Level) Store(x, y int, t image.Texel) {
	if err := l.buf.Set(x, y, t); err != nil {
		if l.v != nil {
			l.v.report(fmt.Errorf("%w: level %d write (%d,%d): %v", ErrHazard, l.index, x, y, err))
		}
		return
	}
	if l.written != nil && l.written[y*l.buf.Width()+x].Swap(true) {
		l.v.report(fmt.Errorf("%w: level %d (%d,%d) published twice", ErrHazard, l.index, x, y))
	}
}

// Texture is a mip chain of RGBA float32 levels.
type Texture struct {
	desc      recording.Desc
	levels    []*Level
	validator *Validator
}

// NewTexture allocates the output chain for desc. validator may be nil.
func NewTexture(desc recording.Desc, validator *Validator) (*Texture, error) {
	if desc.MipCount <= 0 {
		return nil, fmt.Errorf("device: texture needs at least one level, got %d", desc.MipCount)
	}
	t := &Texture{desc: desc, levels: make([]*Level, desc.MipCount), validator: validator}
	for i := range t.levels {
		w, h := desc.LevelSize(i)
		buf, err := image.NewBuf(w, h)
		if err != nil {
			return nil, fmt.Errorf("device: level %d: %w", i, err)
		}
		l := &Level{buf: buf, index: i, state: recording.StateShaderRead, v: validator}
		if validator != nil {
			l.written = make([]atomic.Bool, w*h)
		}
		t.levels[i] = l
	}
	return t, nil
}

// Desc returns the description the texture was created with.
func (t *Texture) Desc() recording.Desc { return t.desc }

// NumLevels returns the number of levels.
func (t *Texture) NumLevels() int { return len(t.levels) }

// Level returns level i.
func (t *Texture) Level(i int) *Level { return t.levels[i] }

// State returns the current state of level i.
func (t *Texture) State(i int) recording.State { return t.levels[i].state }

func (t *Texture) levelRange(level int) ([]*Level, error) {
	if level == recording.AllLevels {
		return t.levels, nil
	}
	if level < 0 || level >= len(t.levels) {
		return nil, fmt.Errorf("device: level %d out of range [0,%d)", level, len(t.levels))
	}
	return t.levels[level : level+1], nil
}

// Transition moves a level, or every level, from before to after.
func (t *Texture) Transition(level int, before, after recording.State) error {
	ls, err := t.levelRange(level)
	if err != nil {
		return err
	}
	for _, l := range ls {
		if l.state != before {
			return fmt.Errorf("%w: level %d is %s, transition expects %s",
				ErrStateMismatch, l.index, l.state, before)
		}
	}
	for _, l := range ls {
		l.state = after
	}
	return nil
}

// Require checks that levels [first, first+count) are in state s.
func (t *Texture) Require(first, count int, s recording.State) error {
	if first < 0 || first+count > len(t.levels) {
		return fmt.Errorf("device: levels [%d,+%d) out of range [0,%d)", first, count, len(t.levels))
	}
	for _, l := range t.levels[first : first+count] {
		if l.state != s {
			return fmt.Errorf("%w: level %d is %s, binding needs %s", ErrStateMismatch, l.index, l.state, s)
		}
	}
	return nil
}

// BeginFrame forgets which texels have been published.
func (t *Texture) BeginFrame() {
	for _, l := range t.levels {
		for i := range l.written {
			l.written[i].Store(false)
		}
	}
}

// EndFrame checks that every level is back at rest and, with validation,
// fully published.
func (t *Texture) EndFrame() error {
	var errs []error
	for _, l := range t.levels {
		if l.state != recording.StateShaderRead {
			errs = append(errs, fmt.Errorf("%w: level %d left in %s", ErrStateMismatch, l.index, l.state))
		}
		missing := 0
		for i := range l.written {
			if !l.written[i].Load() {
				missing++
			}
		}
		if missing > 0 {
			errs = append(errs, fmt.Errorf("%w: level %d has %d unpublished texels", ErrIncomplete, l.index, missing))
		}
	}
	return errors.Join(errs...)
}

// ResetStates returns every level to StateShaderRead.
func (t *Texture) ResetStates() {
	for _, l := range t.levels {
		l.state = recording.StateShaderRead
	}
}

// CounterBuffer is the device-resident rendezvous counter array.
type CounterBuffer struct {
	*rendezvous.Counters
	state recording.State
}

// NewCounterBuffer allocates n counters resting in StateUnorderedAccess.
func NewCounterBuffer(n int) *CounterBuffer {
	return &CounterBuffer{Counters: rendezvous.NewCounters(n), state: recording.StateUnorderedAccess}
}

// State returns the current state of the buffer.
func (c *CounterBuffer) State() recording.State { return c.state }

// Transition moves the buffer from before to after.
func (c *CounterBuffer) Transition(before, after recording.State) error {
	if c.state != before {
		return fmt.Errorf("%w: counters are %s, transition expects %s", ErrStateMismatch, c.state, before)
	}
	c.state = after
	return nil
}

// Upload seeds the counters. The buffer must be in StateCopyDest.
func (c *CounterBuffer) Upload(values []uint32) error {
	if c.state != recording.StateCopyDest {
		return fmt.Errorf("%w: counter upload while %s", ErrStateMismatch, c.state)
	}
	return c.Store(values)
}

// ResetState returns the buffer to StateUnorderedAccess.
func (c *CounterBuffer) ResetState() {
	c.state = recording.StateUnorderedAccess
}
