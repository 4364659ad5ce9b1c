package heap

import "fmt"

// coalesce merges the block at payload with any free neighbor, inserts the
// resulting block at the free-list head, and returns its (possibly new)
// payload offset.
//
// The left-edge case needs no special code: the prologue sentinel is
// written once, at offset 0, with its allocation bit set, and that is
// exactly the cell coalesce reads as "the footer of the block to the left"
// for the arena's very first real block. Reading it back always reports
// allocated, so leftward merging stops there on its own.
func (a *Allocator) coalesce(payload int) int {
	size := a.blockSize(payload)
	prevCell := a.getCell(payload - dwordSize)
	next := payload + size
	nextCell := a.getCell(next - wordSize)

	prevAlloc := allocOf(prevCell)
	nextAlloc := allocOf(nextCell)

	switch {
	case prevAlloc == 1 && nextAlloc == 1:
		// no merge

	case prevAlloc == 1 && nextAlloc == 0:
		a.unlink(next)
		size += sizeOf(nextCell)
		a.writeHeaderFooter(payload, size, 0)

	case prevAlloc == 0 && nextAlloc == 1:
		prev := payload - sizeOf(prevCell)
		a.unlink(prev)
		size += sizeOf(prevCell)
		payload = prev
		a.writeHeaderFooter(payload, size, 0)

	default: // both free
		prev := payload - sizeOf(prevCell)
		a.unlink(prev)
		a.unlink(next)
		size += sizeOf(prevCell) + sizeOf(nextCell)
		payload = prev
		a.writeHeaderFooter(payload, size, 0)
	}

	a.insertHead(payload)
	return payload
}

// extendHeap grows the arena by enough words to cover at least minBlockSize
// bytes, rounding up to an even word count to preserve 8-byte alignment,
// installs a new free block over the grown space, re-terminates the arena
// with a fresh epilogue, and coalesces the result with whatever used to be
// the rightmost block.
//
// arena.Extend's old-end address is also one word past the old epilogue
// cell, i.e. exactly where header(payload) = payload - wordSize expects the
// new block's header to land -- using it directly as payload overwrites the
// stale epilogue with the new block's header, rather than stranding it as a
// permanent break in the prologue-to-epilogue walk.
func (a *Allocator) extendHeap(words int) (int, error) {
	if words%2 != 0 {
		words++
	}
	size := words * wordSize
	if size < minBlockSize {
		size = minBlockSize
	}

	old, err := a.arena.Extend(size)
	if err != nil {
		return 0, fmt.Errorf("heap: extend: %w", err)
	}

	payload := a.offsetOf(old)
	a.writeHeaderFooter(payload, size, 0)
	a.putCell(payload+size-wordSize, pack(0, 1)) // new epilogue

	return a.coalesce(payload), nil
}

// place finishes an allocation into a free block big enough to hold want
// bytes: it splits off the leftover as a new free block when the leftover
// is itself a valid block size, or hands over the whole block otherwise.
func (a *Allocator) place(payload, want int) int {
	free := a.blockSize(payload)
	a.unlink(payload)

	if free-want >= minBlockSize {
		a.writeHeaderFooter(payload, want, 1)
		rem := payload + want
		a.writeHeaderFooter(rem, free-want, 0)
		a.coalesce(rem)
		return payload
	}

	a.writeHeaderFooter(payload, free, 1)
	return payload
}
