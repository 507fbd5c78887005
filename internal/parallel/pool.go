// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package parallel runs the workgroups of a compute dispatch on a fixed set
// of goroutines.
package parallel

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrWorkgroupPanic is returned by Dispatch when a workgroup panics.
var ErrWorkgroupPanic = errors.New("parallel: workgroup panicked")

// WorkerPool is a pool of goroutines standing in for the compute units of a
// device.
//
// Every worker owns a queue and steals from the others when its own queue
// is empty, so the order in which workgroups of one dispatch execute is
// unspecified, as on hardware.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return

		case work := <-myQueue:
			work()

		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				work()
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal takes one item from another worker's queue, or returns nil.
func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll runs every work item and waits for all of them.
// If the pool is closed, the items run on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var completion sync.WaitGroup
	completion.Add(len(work))
	for i, fn := range work {
		wrapped := func() {
			defer completion.Done()
			fn()
		}
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}
	completion.Wait()
}

// Dispatch runs fn for every workgroup index in [0, groups) and returns
// once all of them have finished. Indices are handed out in batches of
// batch consecutive groups; a batch of 0 picks one from the pool size.
//
// A panicking workgroup does not stop the others. Dispatch returns the
// first panic as an error wrapping ErrWorkgroupPanic.
func (p *WorkerPool) Dispatch(groups uint32, batch uint32, fn func(group uint32)) error {
	if groups == 0 {
		return nil
	}
	if batch == 0 {
		batch = max(1, groups/uint32(p.workers*8))
	}

	var (
		once     sync.Once
		panicErr error
	)
	run := func(first, last uint32) func() {
		return func() {
			defer func() {
				if r := recover(); r != nil {
					once.Do(func() {
						panicErr = fmt.Errorf("%w: group in [%d,%d): %v", ErrWorkgroupPanic, first, last, r)
					})
				}
			}()
			for g := first; g < last; g++ {
				fn(g)
			}
		}
	}

	work := make([]func(), 0, (groups+batch-1)/batch)
	for first := uint32(0); first < groups; first += batch {
		work = append(work, run(first, min(first+batch, groups)))
	}
	p.ExecuteAll(work)
	return panicErr
}

// Close stops the workers after the queued work has run.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork returns the approximate number of queued work items.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.workQueues {
		total += len(q)
	}
	return total
}
