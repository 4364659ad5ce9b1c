/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package gopool is a small bounded worker pool for running many short-lived
// closures without paying a fresh goroutine's stack cost for each one. The
// stressharness package uses it to drive concurrent allocate/free/reallocate
// load against a single heap.Allocator from a fixed-size crew of workers
// instead of spawning one goroutine per task.
package gopool

import (
	"context"
	"log"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// Option configures a Pool.
type Option struct {
	// MaxWorkers bounds how many goroutines the pool keeps running at once.
	// Workers created over this budget drain whatever is queued right now
	// and exit instead of parking to wait for more work.
	MaxWorkers int

	// IdleTimeout bounds how long a worker waits for its next task before
	// retiring. Zero means DefaultOption's value.
	IdleTimeout time.Duration

	// TaskChanBuffer sizes the task queue. When it's full, Go/CtxGo fall
	// back to a bare `go` statement rather than blocking the caller.
	TaskChanBuffer int
}

// DefaultOption returns the default values of Option.
func DefaultOption() *Option {
	return &Option{
		MaxWorkers:     1000,
		IdleTimeout:    time.Minute,
		TaskChanBuffer: 1000,
	}
}

type task struct {
	ctx context.Context
	f   func()
}

// Pool is a bounded worker pool for background tasks. Workers are created
// lazily as tasks queue up and retire themselves after sitting idle past
// IdleTimeout.
type Pool struct {
	name string

	workers     int32
	maxWorkers  int32
	idleTimeout time.Duration

	panicHandler func(ctx context.Context, r interface{})

	tasks chan task
}

// New creates a Pool identified by name, used only for log lines from the
// default panic handler.
func New(name string, o *Option) *Pool {
	if o == nil {
		o = DefaultOption()
	}
	idleTimeout := o.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = DefaultOption().IdleTimeout
	}
	return &Pool{
		name:        name,
		tasks:       make(chan task, o.TaskChanBuffer),
		maxWorkers:  int32(o.MaxWorkers),
		idleTimeout: idleTimeout,
	}
}

// Go runs f in the pool, with no context passed to a panic handler.
func (p *Pool) Go(f func()) {
	p.CtxGo(context.Background(), f)
}

// CtxGo runs f in the pool and passes ctx to the panic handler, if one is
// set, should f panic.
func (p *Pool) CtxGo(ctx context.Context, f func()) {
	select {
	case p.tasks <- task{ctx: ctx, f: f}:
	default:
		// queue full: fall back to a bare goroutine rather than blocking
		go p.runTask(ctx, f)
		return
	}
	if len(p.tasks) == 0 {
		return
	}
	// queue is backing up; bring another worker online
	go p.runWorker()
}

// SetPanicHandler installs f to run whenever a pooled task panics. ctx is
// whatever was passed to CtxGo (or context.Background() for Go), and r is
// recover()'s return value. Without a handler, panics are logged with
// log.Printf and otherwise swallowed.
func (p *Pool) SetPanicHandler(f func(ctx context.Context, r interface{})) {
	p.panicHandler = f
}

func (p *Pool) runTask(ctx context.Context, f func()) {
	defer func(p *Pool, ctx context.Context) {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(ctx, r)
			} else {
				log.Printf("gopool: panic in pool %s: %v: %s", p.name, r, debug.Stack())
			}
		}
	}(p, ctx)
	f()
}

// CurrentWorkers reports how many workers are currently alive.
func (p *Pool) CurrentWorkers() int {
	return int(atomic.LoadInt32(&p.workers))
}

func (p *Pool) runWorker() {
	id := atomic.AddInt32(&p.workers, 1)
	defer atomic.AddInt32(&p.workers, -1)

	if id > p.maxWorkers {
		// over budget: drain whatever is queued right now and exit
		for {
			select {
			case t := <-p.tasks:
				p.runTask(t.ctx, t.f)
			default:
				return
			}
		}
	}

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()
	for {
		select {
		case t := <-p.tasks:
			p.runTask(t.ctx, t.f)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(p.idleTimeout)
		case <-idle.C:
			return
		}
	}
}
