// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package demux

import (
	"io"

	"github.com/danjacques/goflv/support/slidebuf"

	"github.com/pkg/errors"
)

// Filler reads from a byte source directly into a Buffer's writable region.
type Filler struct {
	// Source is the byte source.
	Source io.Reader
	// Buffer is the buffer being filled.
	Buffer *slidebuf.Buffer
}

// Fill performs a single Read from Source into Buffer, marking the bytes that
// were obtained as written.
//
// Fill returns the number of bytes obtained. Any count, including a short
// one, is a success. A count of 0 with a nil error indicates that the source
// has no more data.
//
// If Buffer has no writable space, Fill returns ErrNoSpace without reading.
// If Source returns an error other than io.EOF, Fill returns it after marking
// any bytes from the same read as written.
func (f *Filler) Fill() (int, error) {
	region := f.Buffer.WritableRegion()
	if len(region) == 0 {
		return 0, ErrNoSpace
	}

	n, err := f.Source.Read(region)
	if n < 0 || n > len(region) {
		return 0, errors.Errorf("source returned invalid count %d for a %d-byte read", n, len(region))
	}
	f.Buffer.MarkWritten(n)

	if err != nil && err != io.EOF {
		return n, errors.Wrap(err, "reading from source")
	}
	return n, nil
}
