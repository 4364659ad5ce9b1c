package heap

import "unsafe"

// This file is the raw byte-arithmetic layer: the only place that reads or
// writes arena memory directly. Everything above it works in terms of
// payload offsets and block sizes.
//
// Block layout, all offsets relative to the arena base:
//
//	[header: 4B size|alloc][payload >= 8B][footer: 4B size|alloc]
//
// header(payload) = payload - 4
// footer(payload) = payload + size(header(payload)) - 8
// next(payload)   = payload + size(header(payload))
// prev(payload)   = payload - size(cell at payload-8)
//
// Free-list links live in the first two words of a free block's payload and
// are only valid while the block is free; an allocated block's payload may
// have overwritten them with caller data.

// pack combines a block size and allocation bit into a header/footer cell.
// size must already be 8-byte aligned; its low 3 bits are free for alloc.
func pack(size, allocBit int) uint32 {
	return uint32(size) | uint32(allocBit&1)
}

func sizeOf(cell uint32) int {
	return int(cell &^ 0x7)
}

func allocOf(cell uint32) int {
	return int(cell & 0x1)
}

func (a *Allocator) cellPtr(offset int) *uint32 {
	return (*uint32)(unsafe.Add(a.base, offset))
}

func (a *Allocator) getCell(offset int) uint32 {
	return *a.cellPtr(offset)
}

func (a *Allocator) putCell(offset int, v uint32) {
	*a.cellPtr(offset) = v
}

func (a *Allocator) getLink(offset int) int {
	return int(int32(a.getCell(offset)))
}

func (a *Allocator) putLink(offset int, v int) {
	a.putCell(offset, uint32(int32(v)))
}

// blockSize returns the total size (header+payload+footer) of the block
// whose payload starts at offset.
func (a *Allocator) blockSize(payload int) int {
	return sizeOf(a.getCell(payload - wordSize))
}

// writeHeaderFooter stamps both boundary tags of the block at payload with
// the same cell, header first and then footer, so they agree once it
// returns.
func (a *Allocator) writeHeaderFooter(payload, size, allocBit int) {
	cell := pack(size, allocBit)
	a.putCell(payload-wordSize, cell)
	a.putCell(payload+size-dwordSize, cell)
}

// offsetOf converts an absolute address (as returned by arena.Arena.Extend)
// into a base-relative offset.
func (a *Allocator) offsetOf(addr uintptr) int {
	return int(addr - a.baseAddr)
}

// payloadSlice builds the caller-visible slice for the block at payload:
// length bytes wide, capped at the block's usable payload capacity so
// cap(slice) reveals how much internal fragmentation a caller could still
// grow into without a copy.
func (a *Allocator) payloadSlice(payload, length int) []byte {
	usable := a.blockSize(payload) - dwordSize
	return unsafe.Slice((*byte)(unsafe.Add(a.base, payload)), usable)[:length]
}

// payloadOffsetOf recovers the base-relative payload offset of a slice
// previously returned by payloadSlice. It reads the slice's data pointer
// directly (rather than &block[0]) so it works even for a zero-length
// slice.
func (a *Allocator) payloadOffsetOf(block []byte) int {
	dataPtr := *(*uintptr)(unsafe.Pointer(&block))
	return int(dataPtr - a.baseAddr)
}
