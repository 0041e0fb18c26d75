// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package protostream reads and writes streams of size-prefixed protobuf
// messages.
package protostream

import (
	"io"

	"github.com/danjacques/goflv/support/dataio"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

// The maximum varint size, in bytes. This is the total number of bytes needed
// to encode the largest uint64 using proto.EncodeVarint.
const maxVarintSizeU64 = 10

// DefaultMaxMessageSize is the default limit on a single message's size.
const DefaultMaxMessageSize = 16 * 1024 * 1024

// Decoder reads a stream of messages written by an Encoder from R.
type Decoder struct {
	R dataio.Reader

	// MaxSize is the largest message that will be decoded. If <= 0,
	// DefaultMaxMessageSize will be used.
	MaxSize int

	// BytesRead is the total number of bytes read from R.
	BytesRead int64

	sizeBuf [maxVarintSizeU64]byte
	dataBuf []byte
}

// NewDecoder returns a Decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{R: dataio.MakeReader(r)}
}

// Decode reads the next message from the stream into pb.
//
// If the stream ends cleanly between messages, Decode returns io.EOF. If it
// ends partway through a message, Decode returns io.ErrUnexpectedEOF.
func (d *Decoder) Decode(pb proto.Message) error {
	size, err := d.readSize()
	if err != nil {
		return err
	}

	maxSize := d.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if size > uint64(maxSize) {
		return errors.Errorf("message size %d exceeds maximum %d", size, maxSize)
	}

	if uint64(cap(d.dataBuf)) < size {
		d.dataBuf = make([]byte, size)
	}
	data := d.dataBuf[:size]
	n, err := io.ReadFull(d.R, data)
	d.BytesRead += int64(n)
	switch err {
	case nil:
	case io.EOF:
		return io.ErrUnexpectedEOF
	default:
		return err
	}

	return errors.Wrap(proto.Unmarshal(data, pb), "unmarshalling message")
}

// readSize reads the varint size prefix of the next message.
func (d *Decoder) readSize() (uint64, error) {
	// The varint continues until a byte without its most significant bit set.
	sizeBuf := d.sizeBuf[:0]
	for len(sizeBuf) < maxVarintSizeU64 {
		b, err := d.R.ReadByte()
		if err != nil {
			if err == io.EOF && len(sizeBuf) > 0 {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		d.BytesRead++

		sizeBuf = append(sizeBuf, b)
		if (b & 0x80) == 0 {
			size, amt := proto.DecodeVarint(sizeBuf)
			if amt != len(sizeBuf) {
				panic("incompatible proto varint encoding")
			}
			return size, nil
		}
	}
	return 0, errors.New("size prefix is not a valid varint")
}
