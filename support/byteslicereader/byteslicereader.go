// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package byteslicereader offers R, a slice-backed reader with zero-copy
// options.
//
// Standard io.Reader methods require that data be copied into a target buffer.
// The zero-copy methods, Peek and Next, instead return sub-slices of R's
// Buffer. Holding one of those slices means that the Buffer must not be
// modified or recycled while the slice is in use.
//
// R is intended to be layered over a borrowed window of a larger buffer, so
// that a parser can walk a candidate record without allocating, and decide
// for itself when (and whether) to copy.
package byteslicereader

import (
	"io"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned by Skip when fewer bytes remain than were
// requested.
var ErrShortBuffer = errors.New("short buffer")

// R is an io.Reader-inspired type that exposes operations returning sections
// of a byte slice, instead of filling a caller-supplied one.
//
// R can act like an io.Reader and io.ByteReader, allowing it to interface
// with decoders that expect them, at the expense of copying.
//
// R can be copied, creating a snapshot of its current position.
type R struct {
	// Buffer is the backing buffer for this reader.
	Buffer []byte

	// AlwaysCopy, if true, causes zero-copy methods to return copies of their
	// backing data instead of direct references.
	AlwaysCopy bool

	pos int
}

var _ interface {
	io.Reader
	io.ByteReader
} = (*R)(nil)

func (r *R) remainingSlice() []byte {
	if r.pos >= len(r.Buffer) {
		return nil
	}
	return r.Buffer[r.pos:]
}

// Remaining returns the number of unread bytes.
func (r *R) Remaining() int { return len(r.remainingSlice()) }

// Offset returns the number of bytes that have been read from Buffer.
func (r *R) Offset() int { return r.pos }

// Read implements io.Reader.
//
// Read returns io.EOF once Buffer has been exhausted.
func (r *R) Read(b []byte) (int, error) {
	remaining := r.remainingSlice()
	if len(remaining) == 0 && len(b) > 0 {
		return 0, io.EOF
	}

	amt := copy(b, remaining)
	r.pos += amt
	return amt, nil
}

// ReadByte implements io.ByteReader.
func (r *R) ReadByte() (byte, error) {
	if r.pos >= len(r.Buffer) {
		return 0, io.EOF
	}

	b := r.Buffer[r.pos]
	r.pos++
	return b, nil
}

// Peek returns up to n bytes without advancing.
//
// Peek is a zero-copy method unless AlwaysCopy is set.
func (r *R) Peek(n int) []byte {
	v := r.remainingSlice()
	if n < len(v) {
		v = v[:n]
	}
	return r.maybeCopy(v)
}

// Next returns the next n bytes, advancing past them.
//
// Next is a zero-copy method unless AlwaysCopy is set.
//
// If fewer than n bytes remain, Next returns all of them along with io.EOF.
func (r *R) Next(n int) (v []byte, err error) {
	v = r.remainingSlice()
	if n < len(v) {
		v = v[:n]
	} else if n > len(v) {
		err = io.EOF
	}

	r.pos += len(v)
	return r.maybeCopy(v), err
}

// Skip advances past n bytes without returning them.
//
// If fewer than n bytes remain, Skip does not advance and returns
// ErrShortBuffer.
func (r *R) Skip(n int) error {
	if n > r.Remaining() {
		return ErrShortBuffer
	}
	r.pos += n
	return nil
}

func (r *R) maybeCopy(v []byte) []byte {
	if r.AlwaysCopy && v != nil {
		v = append([]byte(nil), v...)
	}
	return v
}
