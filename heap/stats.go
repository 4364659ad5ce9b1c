package heap

import "fmt"

// AllocStats summarizes the current partition of the arena between
// allocated and free space. It is produced by Stats and is purely
// diagnostic -- nothing in the allocator consults it.
type AllocStats struct {
	TotalBlocks     int64 // blocks walked between prologue and epilogue
	AllocatedBlocks int64
	FreeBlocks      int64
	AllocatedBytes  int64 // payload bytes available to callers, not incl. tags
	FreeBytes       int64
	FreeListLength  int64 // blocks reachable by walking the free list itself
}

// Stats walks the arena once and reports AllocStats. It never mutates
// allocator state.
func (a *Allocator) Stats() AllocStats {
	var s AllocStats
	a.walkBlocks(func(payload, size, allocBit int) {
		s.TotalBlocks++
		if allocBit == 1 {
			s.AllocatedBlocks++
			s.AllocatedBytes += int64(size - dwordSize)
		} else {
			s.FreeBlocks++
			s.FreeBytes += int64(size - dwordSize)
		}
	})
	for p := a.head; p != 0; p = a.getLink(p) {
		s.FreeListLength++
	}
	return s
}

// walkBlocks calls fn once per real block (excluding the prologue and
// epilogue sentinels) from the arena's left edge to its right edge.
func (a *Allocator) walkBlocks(fn func(payload, size, allocBit int)) {
	const firstPayload = dwordSize // offset 8: right after the prologue+header cells
	for p := firstPayload; ; {
		cell := a.getCell(p - wordSize)
		size := sizeOf(cell)
		if size == 0 { // epilogue
			return
		}
		fn(p, size, allocOf(cell))
		p += size
	}
}

// Verify re-checks the quantified invariants the allocator is supposed to
// maintain between public operations: matching header/footer pairs, no two
// adjacent free blocks, free-list membership exactly matching the set of
// free blocks found by walking the arena, and a consistent doubly linked
// structure. It returns the first violation found, or nil. Verify never
// mutates state, so it is safe to call from tests at any point.
func (a *Allocator) Verify() error {
	freeByWalk := make(map[int]bool)
	prevWasFree := false

	var walkErr error
	a.walkBlocks(func(payload, size, allocBit int) {
		if walkErr != nil {
			return
		}
		header := a.getCell(payload - wordSize)
		footer := a.getCell(payload + size - dwordSize)
		if header != footer {
			walkErr = fmt.Errorf("heap: verify: block at payload %d has mismatched header/footer (%#x != %#x)", payload, header, footer)
			return
		}
		isFree := allocBit == 0
		if isFree && prevWasFree {
			walkErr = fmt.Errorf("heap: verify: two adjacent free blocks ending at payload %d", payload)
			return
		}
		prevWasFree = isFree
		if isFree {
			freeByWalk[payload] = true
		}
	})
	if walkErr != nil {
		return walkErr
	}

	seen := make(map[int]bool)
	prev := 0
	for p := a.head; p != 0; p = a.getLink(p) {
		if seen[p] {
			return fmt.Errorf("heap: verify: free list has a cycle at payload %d", p)
		}
		seen[p] = true

		if !freeByWalk[p] {
			return fmt.Errorf("heap: verify: free list references payload %d, which the arena walk found allocated or nonexistent", p)
		}
		if gotPrev := a.getLink(p + wordSize); gotPrev != prev {
			return fmt.Errorf("heap: verify: payload %d has prev link %d, want %d", p, gotPrev, prev)
		}
		prev = p
	}

	if len(seen) != len(freeByWalk) {
		return fmt.Errorf("heap: verify: free list has %d entries but the arena walk found %d free blocks", len(seen), len(freeByWalk))
	}
	for p := range freeByWalk {
		if !seen[p] {
			return fmt.Errorf("heap: verify: free block at payload %d is missing from the free list", p)
		}
	}

	return nil
}
