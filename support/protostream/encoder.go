// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protostream

import (
	"io"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

// Encoder writes a stream of size-prefixed protobuf messages to W.
//
// Each message is written as a single Write call: a varint holding the
// message's encoded size, followed by the encoded message.
type Encoder struct {
	W io.Writer

	// BytesWritten is the total number of bytes written to W.
	BytesWritten int64

	buf []byte
}

// Encode writes pb to the stream, returning the number of bytes written.
func (e *Encoder) Encode(pb proto.Message) (int, error) {
	data, err := proto.Marshal(pb)
	if err != nil {
		return 0, errors.Wrap(err, "marshalling message")
	}

	e.buf = append(e.buf[:0], proto.EncodeVarint(uint64(len(data)))...)
	e.buf = append(e.buf, data...)

	n, err := e.W.Write(e.buf)
	e.BytesWritten += int64(n)
	if err != nil {
		return n, errors.Wrap(err, "writing message")
	}
	return n, nil
}
