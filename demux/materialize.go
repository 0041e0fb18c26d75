// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package demux

import (
	"github.com/danjacques/goflv/flv"
)

// Materializer copies borrowed tags into storage that it owns, so that they
// survive subsequent modification of the buffer they were parsed from.
//
// Small payloads are carved out of shared blocks, reducing the number of
// allocations for streams with many small tags. A block is never reused.
// Each carved payload has its capacity capped, so appending to one record's
// payload can never overwrite another's. A block remains in memory while any
// record carved from it is still referenced.
//
// Materializer is not safe for concurrent use.
type Materializer struct {
	// BlockSize is the size of the shared blocks. Payloads larger than a
	// quarter of BlockSize are allocated individually. If BlockSize <= 0,
	// every payload is allocated individually.
	BlockSize int

	block []byte
}

// Materialize returns an owned deep copy of tag.
//
// tag and its payload slices may reference a parse buffer; the returned Tag
// references none of them.
func (m *Materializer) Materialize(tag *flv.Tag) *flv.Tag {
	return tag.WithData(m.own(tag.Data))
}

func (m *Materializer) own(data []byte) []byte {
	switch {
	case data == nil:
		return nil
	case len(data) == 0:
		return []byte{}
	case m.BlockSize <= 0 || len(data) > m.BlockSize/4:
		v := make([]byte, len(data))
		copy(v, data)
		return v
	}

	if len(m.block) < len(data) {
		m.block = make([]byte, m.BlockSize)
	}
	v := m.block[:len(data):len(data)]
	copy(v, data)
	m.block = m.block[len(data):]
	return v
}
