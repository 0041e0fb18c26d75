// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dataio

import (
	"bufio"
	"io"
)

// Reader represents a Reader that can read both individual bytes and
// sequences of bytes.
type Reader interface {
	io.Reader
	io.ByteReader
}

// MakeReader returns a Reader for the specified Reader.
//
// If r does not already implement Reader, it will be wrapped in a
// bufio.Reader, which may read ahead of what its consumer has requested.
func MakeReader(r io.Reader) Reader {
	if dr, ok := r.(Reader); ok {
		return dr
	}
	return bufio.NewReader(r)
}

// CountingReader is a Reader that counts the bytes that are read through it.
type CountingReader struct {
	R io.Reader

	// Count is the total number of bytes that have been read.
	Count int64
}

// NewCountingReader returns a CountingReader that reads from r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{R: r}
}

// Read implements io.Reader.
func (cr *CountingReader) Read(b []byte) (int, error) {
	n, err := cr.R.Read(b)
	cr.Count += int64(n)
	return n, err
}

// ReadByte implements io.ByteReader.
//
// If R is not an io.ByteReader, each ReadByte call is a single-byte Read.
func (cr *CountingReader) ReadByte() (byte, error) {
	if br, ok := cr.R.(io.ByteReader); ok {
		v, err := br.ReadByte()
		if err == nil {
			cr.Count++
		}
		return v, err
	}

	var d [1]byte
	if _, err := io.ReadFull(cr, d[:]); err != nil {
		return 0, err
	}
	return d[0], nil
}
