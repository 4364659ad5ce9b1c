// Package heap implements a first-fit, boundary-tag memory allocator over a
// single growable arena. It partitions the arena into header/footer-delimited
// blocks, threads an explicit doubly linked free list through the payload of
// free blocks, and reuses freed space before asking the arena to grow.
//
// The design traces back to a CS:APP-style malloc lab (team "Lost Ark" in
// the original coursework); this package keeps the same block layout and
// placement policy but drops the single global heap in favor of an
// *Allocator* value so more than one heap can exist in a process.
package heap

import (
	"fmt"
	"unsafe"

	"github.com/Jinwooooo/malloc-lab/arena"
)

const (
	wordSize      = 4
	dwordSize     = 8
	minBlockSize  = 16
	initArenaSize = 24
)

// Allocator is a single-threaded, non-reentrant heap over one arena.Arena.
// Every exported method must run to completion before returning; none may be
// called concurrently without an external mutex (see the stressharness
// package for the serialization pattern this implies).
type Allocator struct {
	arena    arena.Arena
	base     unsafe.Pointer
	baseAddr uintptr

	// head is the payload offset (relative to baseAddr) of the first free
	// block, or 0 if the free list is empty. 0 is never a valid payload
	// offset (the smallest is 8, just past the prologue/header cells),
	// so it doubles safely as the null sentinel.
	head int
}

// New creates an Allocator over ar and performs the equivalent of the
// classic mm_init: it carves the arena's first 24 bytes into a prologue, one
// minimum-size free block, and an epilogue, then makes that free block the
// sole member of the free list. It fails only if the arena refuses the
// initial extend.
func New(ar arena.Arena) (*Allocator, error) {
	a := &Allocator{
		arena:    ar,
		base:     ar.BasePointer(),
		baseAddr: ar.Base(),
	}
	if err := a.init(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Allocator) init() error {
	old, err := a.arena.Extend(initArenaSize)
	if err != nil {
		return fmt.Errorf("heap: init: %w", err)
	}
	base := a.offsetOf(old)

	a.putCell(base+0, pack(minBlockSize, 1))  // prologue: left sentinel
	a.putCell(base+4, pack(minBlockSize, 0))  // header of the initial free block
	a.putLink(base+8, 0)                      // free-list next
	a.putLink(base+12, 0)                     // free-list prev
	a.putCell(base+16, pack(minBlockSize, 0)) // footer of the initial free block
	a.putCell(base+20, pack(0, 1))            // epilogue: right sentinel

	a.head = base + 8
	return nil
}

// Allocate returns a slice of at least size usable bytes carved from the
// arena, or nil if size is 0 or the arena cannot grow to satisfy the
// request. The returned slice's length is exactly size; its capacity may be
// larger, reflecting internal fragmentation within the chosen block.
func (a *Allocator) Allocate(size int) []byte {
	if size <= 0 {
		return nil
	}
	want := alignedBlockSize(size)

	if p := a.findFit(want); p != 0 {
		return a.payloadSlice(a.place(p, want), size)
	}

	words := want / wordSize
	if words < minBlockSize/wordSize {
		words = minBlockSize / wordSize
	}
	p, err := a.extendHeap(words)
	if err != nil {
		return nil
	}
	return a.payloadSlice(a.place(p, want), size)
}

// Free returns block to the allocator. block MUST be a slice previously
// returned by Allocate or Reallocate, unmodified in its start and capacity
// (reslicing off the front before calling Free corrupts the offset
// recovered from it). Freeing the same block twice, or a slice this
// allocator never produced, is undefined behavior -- it is not detected.
func (a *Allocator) Free(block []byte) {
	if cap(block) == 0 {
		return
	}
	payload := a.payloadOffsetOf(block)
	size := a.blockSize(payload)
	a.writeHeaderFooter(payload, size, 0)
	a.coalesce(payload)
}

// Reallocate resizes block to size bytes, preferring in-place shrink or
// growth (absorbing a free right neighbor) before falling back to
// allocate-copy-free. A nil block behaves like Allocate; a size of 0 behaves
// like Free and returns nil. Returns nil, leaving block intact, only when
// the allocate-copy-free path is taken (for growth, or for a shrink that
// cannot be done in place) and its allocation fails.
func (a *Allocator) Reallocate(block []byte, size int) []byte {
	if block == nil {
		return a.Allocate(size)
	}
	if size == 0 {
		a.Free(block)
		return nil
	}

	want := alignedBlockSize(size)
	payload := a.payloadOffsetOf(block)
	current := a.blockSize(payload)

	if want == current {
		return block
	}

	if want < current {
		if shrunk := a.shrinkInPlace(payload, current, want); shrunk {
			return a.payloadSlice(payload, size)
		}
	} else if grown := a.growInPlace(payload, current, want); grown {
		return a.payloadSlice(payload, size)
	}

	newBlock := a.Allocate(size)
	if newBlock == nil {
		return nil
	}
	copyLen := current - dwordSize
	if usable := want - dwordSize; usable < copyLen {
		copyLen = usable
	}
	if len(block) < copyLen {
		copyLen = len(block)
	}
	copy(newBlock, block[:copyLen])
	a.Free(block)
	return newBlock
}

// shrinkInPlace rewrites payload's block to want bytes and turns the
// leftover into a free block, only when the leftover is itself a valid
// block (>= minBlockSize) and the shrunk block stays above the floor --
// otherwise it leaves the block untouched and reports false so the caller
// falls through to the copy path.
func (a *Allocator) shrinkInPlace(payload, current, want int) bool {
	remainder := current - want
	if remainder < minBlockSize || want <= minBlockSize {
		return false
	}
	a.writeHeaderFooter(payload, want, 1)
	rem := payload + want
	a.writeHeaderFooter(rem, remainder, 0)
	a.coalesce(rem)
	return true
}

// growInPlace absorbs a free right neighbor to satisfy want without a copy.
// It only takes the fast path when the neighbor is free and large enough,
// and when any leftover sliver is itself a valid block size -- a leftover
// smaller than minBlockSize would violate the allocator's own invariants,
// so that case falls through to the copy path instead.
func (a *Allocator) growInPlace(payload, current, want int) bool {
	next := payload + current
	nextCell := a.getCell(next - wordSize)
	if allocOf(nextCell) != 0 {
		return false
	}
	nextSize := sizeOf(nextCell)
	if current+nextSize < want {
		return false
	}
	remainder := current + nextSize - want
	if remainder != 0 && remainder < minBlockSize {
		return false
	}

	a.unlink(next)
	a.writeHeaderFooter(payload, want, 1)
	if remainder > 0 {
		rem := payload + want
		a.writeHeaderFooter(rem, remainder, 0)
		a.coalesce(rem)
	}
	return true
}

// alignedBlockSize computes the total block size (header + payload +
// footer) needed to satisfy a request of n bytes: 8-byte alignment plus
// boundary-tag overhead, floored at minBlockSize.
func alignedBlockSize(n int) int {
	size := align8(n) + dwordSize
	if size < minBlockSize {
		return minBlockSize
	}
	return size
}

func align8(n int) int {
	return (n + 7) &^ 7
}
