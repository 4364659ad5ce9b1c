// Package stressharness drives randomized allocate/free/reallocate traffic
// against a single heap.Allocator from many goroutines. The allocator itself
// is single-threaded and holds no lock of its own, so the harness serializes
// every call through a sync.Mutex and hands work out through a bounded
// worker pool rather than spawning one goroutine per operation.
package stressharness

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/Jinwooooo/malloc-lab/arena"
	"github.com/Jinwooooo/malloc-lab/concurrency/gopool"
	"github.com/Jinwooooo/malloc-lab/heap"
)

// Config controls a Run.
type Config struct {
	// ArenaSize is the byte capacity of the backing arena.
	ArenaSize int

	// Workers is the worker budget of the underlying pool (its MaxWorkers):
	// at most this many workers stay alive waiting for tasks. Workers the
	// pool starts beyond the budget while the queue backs up drain the
	// queue and exit, so more goroutines than Workers may run at once.
	Workers int

	// Operations is the total number of allocate/free/reallocate calls to
	// issue across all workers.
	Operations int

	// MaxAllocSize bounds the size passed to Allocate/Reallocate.
	MaxAllocSize int

	// Seed seeds the random sequence of operations. Two runs with the same
	// Config and Seed issue the same sequence of requests (modulo
	// goroutine scheduling order, which does not affect correctness since
	// every call is serialized).
	Seed int64
}

// DefaultConfig returns reasonable values for a quick smoke run.
func DefaultConfig() Config {
	return Config{
		ArenaSize:    1 << 20,
		Workers:      8,
		Operations:   5000,
		MaxAllocSize: 512,
		Seed:         1,
	}
}

// Report summarizes a completed Run.
type Report struct {
	Operations   int
	Allocations  int
	Frees        int
	Reallocs     int
	FailedAllocs int // Allocate/Reallocate calls that returned nil (arena exhausted)
	Panics       int
	Stats        heap.AllocStats
	Elapsed      time.Duration
}

// live tracks blocks a Run has allocated and not yet freed, so workers can
// occasionally free or reallocate something actually owned instead of only
// ever growing the live set. Scoped per Run so concurrent Runs (each with
// its own Allocator) never mix up each other's blocks.
type live struct {
	mu     sync.Mutex
	blocks [][]byte
}

func (l *live) add(b []byte) {
	l.mu.Lock()
	l.blocks = append(l.blocks, b)
	l.mu.Unlock()
}

func (l *live) takeRandom(rng *rand.Rand) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.blocks) == 0 {
		return nil, false
	}
	i := rng.Intn(len(l.blocks))
	b := l.blocks[i]
	last := len(l.blocks) - 1
	l.blocks[i] = l.blocks[last]
	l.blocks = l.blocks[:last]
	return b, true
}

// Run issues cfg.Operations randomized operations against a fresh allocator
// from a worker pool with a budget of cfg.Workers, then calls Verify once every
// operation has completed. It returns the first invariant violation Verify
// finds, if any, alongside a Report describing what happened. A non-nil
// error means the allocator's internal invariants broke at some point
// during the run; it does not by itself identify which operation caused it.
func Run(cfg Config) (Report, error) {
	start := time.Now()

	ar, err := arena.New(cfg.ArenaSize)
	if err != nil {
		return Report{}, fmt.Errorf("stressharness: arena.New: %w", err)
	}
	a, err := heap.New(ar)
	if err != nil {
		return Report{}, fmt.Errorf("stressharness: heap.New: %w", err)
	}

	var mu sync.Mutex
	var rep Report
	lv := &live{}

	pool := gopool.New("stressharness", &gopool.Option{
		MaxWorkers:     cfg.Workers,
		IdleTimeout:    time.Second,
		TaskChanBuffer: cfg.Operations,
	})
	pool.SetPanicHandler(func(_ context.Context, r interface{}) {
		mu.Lock()
		rep.Panics++
		mu.Unlock()
		log.Printf("stressharness: recovered panic: %v", r)
	})

	var wg sync.WaitGroup
	wg.Add(cfg.Operations)
	for i := 0; i < cfg.Operations; i++ {
		rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
		pool.Go(func() {
			defer wg.Done()
			runOne(a, &mu, &rep, lv, rng, cfg.MaxAllocSize)
		})
	}
	wg.Wait()

	mu.Lock()
	rep.Stats = a.Stats()
	mu.Unlock()

	rep.Operations = cfg.Operations
	rep.Elapsed = time.Since(start)

	log.Printf("stressharness: %d ops (%d alloc, %d free, %d realloc, %d failed) in %s; %d live blocks, %d free",
		rep.Operations, rep.Allocations, rep.Frees, rep.Reallocs, rep.FailedAllocs, rep.Elapsed,
		rep.Stats.AllocatedBlocks, rep.Stats.FreeBlocks)

	if err := a.Verify(); err != nil {
		return rep, err
	}
	return rep, nil
}

func runOne(a *heap.Allocator, mu *sync.Mutex, rep *Report, lv *live, rng *rand.Rand, maxSize int) {
	size := 1 + rng.Intn(maxSize)

	switch rng.Intn(3) {
	case 0: // allocate
		mu.Lock()
		b := a.Allocate(size)
		mu.Unlock()
		if b == nil {
			bump(mu, &rep.FailedAllocs)
			return
		}
		fillAndCheck(b)
		lv.add(b)
		bump(mu, &rep.Allocations)

	case 1: // free an owned block, if any, else allocate
		b, ok := lv.takeRandom(rng)
		if !ok {
			mu.Lock()
			nb := a.Allocate(size)
			mu.Unlock()
			if nb == nil {
				bump(mu, &rep.FailedAllocs)
				return
			}
			fillAndCheck(nb)
			lv.add(nb)
			bump(mu, &rep.Allocations)
			return
		}
		mu.Lock()
		a.Free(b)
		mu.Unlock()
		bump(mu, &rep.Frees)

	default: // reallocate an owned block, if any, else allocate
		b, ok := lv.takeRandom(rng)
		if !ok {
			mu.Lock()
			nb := a.Allocate(size)
			mu.Unlock()
			if nb == nil {
				bump(mu, &rep.FailedAllocs)
				return
			}
			fillAndCheck(nb)
			lv.add(nb)
			bump(mu, &rep.Allocations)
			return
		}
		mu.Lock()
		nb := a.Reallocate(b, size)
		mu.Unlock()
		if nb == nil {
			bump(mu, &rep.FailedAllocs)
			return
		}
		fillAndCheck(nb)
		lv.add(nb)
		bump(mu, &rep.Reallocs)
	}
}

// fillAndCheck stamps a pattern into b and reads it straight back, panicking
// if any byte changed in between (e.g. another worker writing into an
// overlapping block at the same moment). The pattern is not re-checked
// later, so an overlap that is not written to during this window goes
// unnoticed.
func fillAndCheck(b []byte) {
	for i := range b {
		b[i] = byte(i)
	}
	for i := range b {
		if b[i] != byte(i) {
			panic(fmt.Sprintf("stressharness: block corrupted at offset %d", i))
		}
	}
}

func bump(mu *sync.Mutex, counter *int) {
	mu.Lock()
	*counter++
	mu.Unlock()
}
