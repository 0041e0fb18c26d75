// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package slidebuf implements a growable byte buffer with independent read and
// write cursors.
//
// A Buffer is laid out as:
//
//	[0, R)   consumed data, reusable only after Shift or Grow.
//	[R, W)   unread data, returned by ReadableRegion.
//	[W, Cap) free space, returned by WritableRegion.
//
// Unlike a ring buffer, a Buffer never wraps. Unread data is instead relocated
// to the front of the store when room is needed, so the readable region is
// always a single contiguous slice that a parser can operate on directly.
//
// Slices returned by ReadableRegion and WritableRegion reference the Buffer's
// backing store. They are invalidated by any call to Consume, Shift, or Grow,
// and must not be retained across those calls.
package slidebuf

import (
	"fmt"
)

// Buffer is a sliding byte buffer.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	data []byte

	// r is the read cursor. Bytes before r have been consumed.
	r int
	// w is the write cursor. Bytes in [r, w) are valid.
	w int
}

// New returns a Buffer with the specified initial capacity.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{
		data: make([]byte, capacity),
	}
}

// Wrap returns an empty Buffer that uses store as its backing store. Its
// capacity is len(store).
func Wrap(store []byte) *Buffer {
	return &Buffer{data: store[:len(store):len(store)]}
}

// Cap returns the capacity of the backing store.
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the number of unread bytes in the buffer.
func (b *Buffer) Len() int { return b.w - b.r }

// Space returns the number of bytes that can be written before the buffer must
// be shifted or grown.
func (b *Buffer) Space() int { return len(b.data) - b.w }

// Offset returns the size of the consumed prefix that has not yet been
// reclaimed by a relocation.
func (b *Buffer) Offset() int { return b.r }

// WritableRegion returns the free space at the end of the buffer.
//
// After writing into the returned slice, the caller must call MarkWritten
// with the number of bytes written.
func (b *Buffer) WritableRegion() []byte { return b.data[b.w:] }

// MarkWritten advances the write cursor by n bytes.
//
// MarkWritten panics if n is negative or exceeds Space.
func (b *Buffer) MarkWritten(n int) {
	if n < 0 || n > b.Space() {
		panic(fmt.Errorf("slidebuf: marked %d bytes written, only %d available", n, b.Space()))
	}
	b.w += n
}

// ReadableRegion returns the unread data in the buffer.
func (b *Buffer) ReadableRegion() []byte { return b.data[b.r:b.w] }

// Consume advances the read cursor by n bytes.
//
// If this consumes all unread data, both cursors are reset to the front of
// the buffer, since there are no bytes to relocate.
//
// Consume panics if n is negative or exceeds Len.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.Len() {
		panic(fmt.Errorf("slidebuf: consumed %d bytes, only %d available", n, b.Len()))
	}
	b.r += n
	if b.r == b.w {
		b.r, b.w = 0, 0
	}
}

// Shift relocates unread data to the front of the backing store, reclaiming
// the consumed prefix as writable space.
//
// Shift does not allocate.
func (b *Buffer) Shift() {
	if b.r == 0 {
		return
	}
	n := copy(b.data, b.data[b.r:b.w])
	b.r, b.w = 0, n
}

// Grow reallocates the backing store to capacity bytes, relocating unread
// data to its front.
//
// If capacity does not exceed the current capacity, Grow does nothing.
func (b *Buffer) Grow(capacity int) {
	if capacity <= len(b.data) {
		return
	}

	data := make([]byte, capacity)
	n := copy(data, b.data[b.r:b.w])
	b.data, b.r, b.w = data, 0, n
}

// Reset discards all data in the buffer, retaining its backing store.
func (b *Buffer) Reset() { b.r, b.w = 0, 0 }

// Release detaches and returns the backing store. The Buffer has zero
// capacity afterwards.
func (b *Buffer) Release() []byte {
	data := b.data
	b.data, b.r, b.w = nil, 0, 0
	return data
}

func (b *Buffer) String() string {
	return fmt.Sprintf("slidebuf{r=%d, w=%d, cap=%d}", b.r, b.w, len(b.data))
}
