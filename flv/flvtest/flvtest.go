// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package flvtest builds synthetic FLV streams for tests.
package flvtest

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/danjacques/goflv/flv"
)

// TagSpec describes a tag to encode.
type TagSpec struct {
	Type      flv.TagType
	Timestamp uint32
	StreamID  uint32
	Data      []byte

	// BadFooter, if true, writes a previous tag size that does not match the
	// tag's size.
	BadFooter bool
}

// Header returns an FLV file header (with its trailing zero previous tag
// size) declaring audio and video.
func Header() []byte {
	return HeaderWithOffset(flv.HeaderSize)
}

// HeaderWithOffset returns an FLV file header with the specified header
// length. Any bytes beyond the standard 9 are zero-filled.
func HeaderWithOffset(offset uint32) []byte {
	buf := make([]byte, int(offset)+flv.PreviousTagSizeLen)
	copy(buf, flv.Signature)
	buf[3] = 1
	buf[4] = 0x05
	binary.BigEndian.PutUint32(buf[5:], offset)
	return buf
}

// Tag returns the encoded form of ts, including its trailing previous tag
// size.
func Tag(ts TagSpec) []byte {
	var buf bytes.Buffer
	size := uint32(len(ts.Data))

	buf.WriteByte(byte(ts.Type))
	buf.Write(uint24(size))
	buf.Write(uint24(ts.Timestamp & 0xFFFFFF))
	buf.WriteByte(byte(ts.Timestamp >> 24))
	buf.Write(uint24(ts.StreamID))
	buf.Write(ts.Data)

	footer := size + flv.TagHeaderSize
	if ts.BadFooter {
		footer++
	}
	var fb [4]byte
	binary.BigEndian.PutUint32(fb[:], footer)
	buf.Write(fb[:])
	return buf.Bytes()
}

// Stream returns a full stream: a header followed by each tag.
func Stream(tags ...TagSpec) []byte {
	parts := [][]byte{Header()}
	for _, ts := range tags {
		parts = append(parts, Tag(ts))
	}
	return bytes.Join(parts, nil)
}

// AudioTag returns a TagSpec for an AAC audio tag carrying body.
func AudioTag(timestamp uint32, body []byte) TagSpec {
	return TagSpec{
		Type:      flv.TagAudio,
		Timestamp: timestamp,
		Data:      append([]byte{0xAF}, body...), // AAC, 44kHz, 16-bit, stereo
	}
}

// VideoTag returns a TagSpec for an H.264 key frame video tag carrying body.
func VideoTag(timestamp uint32, body []byte) TagSpec {
	return TagSpec{
		Type:      flv.TagVideo,
		Timestamp: timestamp,
		Data:      append([]byte{0x17}, body...), // Key frame, H.264
	}
}

// Payload returns n bytes of deterministic, non-constant data.
func Payload(n int, seed byte) []byte {
	v := make([]byte, n)
	for i := range v {
		v[i] = seed + byte(i*7)
	}
	return v
}

// ChunkReader is an io.Reader that returns at most Size bytes per Read.
type ChunkReader struct {
	R    io.Reader
	Size int

	// Reads is the number of Read calls made.
	Reads int
}

// Read implements io.Reader.
func (cr *ChunkReader) Read(b []byte) (int, error) {
	cr.Reads++
	if len(b) > cr.Size {
		b = b[:cr.Size]
	}
	return cr.R.Read(b)
}

// ErrorReader is an io.Reader that yields Data, then fails with Err.
type ErrorReader struct {
	Data []byte
	Err  error
}

// Read implements io.Reader.
func (er *ErrorReader) Read(b []byte) (int, error) {
	if len(er.Data) == 0 {
		return 0, er.Err
	}
	n := copy(b, er.Data)
	er.Data = er.Data[n:]
	return n, nil
}

func uint24(v uint32) []byte {
	return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
}
