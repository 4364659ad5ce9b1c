package heap

// The free list is a doubly linked list threaded through the free blocks
// themselves: the first word of a free block's payload holds the offset of
// the next free block, the second word holds the offset of the previous
// one. 0 is the null offset -- no real payload can start at offset 0,
// since the arena's first four bytes are the prologue sentinel.
//
// Insertion is always LIFO at the head: every path that frees space (Free,
// the split remainder in place, extendHeap, the in-place realloc
// remainder) calls insertHead, concentrating recently freed blocks near the
// search start.

// insertHead links b in as the new free-list head.
func (a *Allocator) insertHead(b int) {
	a.putLink(b, a.head)
	if a.head != 0 {
		a.putLink(a.head+wordSize, b)
	}
	a.putLink(b+wordSize, 0)
	a.head = b
}

// unlink removes b from the free list. b must currently be free; once
// unlinked, its link words are no longer read or maintained.
func (a *Allocator) unlink(b int) {
	prev := a.getLink(b + wordSize)
	next := a.getLink(b)
	if prev != 0 {
		a.putLink(prev, next)
	} else {
		a.head = next
	}
	if next != 0 {
		a.putLink(next+wordSize, prev)
	}
}

// findFit returns the first free block whose size is at least want, or 0 if
// none is large enough. Search order follows the free list (LIFO-biased
// toward recently freed blocks), not address order.
func (a *Allocator) findFit(want int) int {
	for p := a.head; p != 0; p = a.getLink(p) {
		if a.blockSize(p) >= want {
			return p
		}
	}
	return 0
}
