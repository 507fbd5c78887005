// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import "sync"

// Pool is a thread-safe pool for reusing Buf instances.
//
// Pool groups buffers by their dimensions so mip chains of a fixed
// resolution can be regenerated every frame without allocating.
//
// Thread safety: All methods are safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	buckets map[poolKey][]*Buf
	maxSize int // max buffers per bucket
}

type poolKey struct {
	width  int
	height int
}

// NewPool creates a pool retaining at most maxPerBucket buffers of each size.
// A maxPerBucket of 0 means unlimited.
func NewPool(maxPerBucket int) *Pool {
	return &Pool{
		buckets: make(map[poolKey][]*Buf),
		maxSize: maxPerBucket,
	}
}

// Get retrieves a zeroed buffer from the pool or creates a new one.
// It returns nil for invalid dimensions.
func (p *Pool) Get(width, height int) *Buf {
	key := poolKey{width: width, height: height}

	p.mu.Lock()
	bucket := p.buckets[key]
	if len(bucket) > 0 {
		buf := bucket[len(bucket)-1]
		p.buckets[key] = bucket[:len(bucket)-1]
		p.mu.Unlock()

		buf.Clear()
		return buf
	}
	p.mu.Unlock()

	buf, err := NewBuf(width, height)
	if err != nil {
		return nil
	}
	return buf
}

// Put returns a buffer to the pool. Nil buffers and buffers beyond the
// bucket capacity are discarded.
func (p *Pool) Put(buf *Buf) {
	if buf == nil {
		return
	}

	key := poolKey{width: buf.width, height: buf.height}

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, buf)
}

// Len returns the number of pooled buffers of the given size.
func (p *Pool) Len(width, height int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets[poolKey{width: width, height: height}])
}

var defaultPool = NewPool(8)

// GetFromDefault retrieves a buffer from the package-level pool.
func GetFromDefault(width, height int) *Buf {
	return defaultPool.Get(width, height)
}

// PutToDefault returns a buffer to the package-level pool.
func PutToDefault(buf *Buf) {
	defaultPool.Put(buf)
}
