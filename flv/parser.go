// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package flv

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/danjacques/goflv/support/byteslicereader"
	"github.com/danjacques/goflv/support/fmtutil"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	// HeaderSize is the minimum size of a file header.
	HeaderSize = 9
	// MaxHeaderSize is the largest file header length that will be accepted.
	MaxHeaderSize = 64*1024 - PreviousTagSizeLen
	// TagHeaderSize is the size of a tag header.
	TagHeaderSize = 11
	// PreviousTagSizeLen is the size of the previous tag size field that
	// follows the file header and every tag.
	PreviousTagSizeLen = 4

	// MaxDataSize is the largest payload a tag can declare.
	MaxDataSize = 1<<24 - 1
	// MaxTagSpan is the largest number of bytes a single tag can occupy.
	MaxTagSpan = TagHeaderSize + MaxDataSize + PreviousTagSizeLen
)

// Signature is the magic that begins every FLV file.
var Signature = []byte("FLV")

const (
	flagAudio = 0x04
	flagVideo = 0x01
)

// ErrIncomplete is returned by the Parser when its window holds a prefix of
// a header or tag, but not all of it.
var ErrIncomplete = errors.New("incomplete data")

// SyntaxError is returned by the Parser when its window violates the FLV
// grammar.
type SyntaxError struct {
	// Offset is the offset within the window of the offending field.
	Offset int
	// Reason describes the violation.
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at window offset %d: %s", e.Offset, e.Reason)
}

func syntaxErrorf(offset int, format string, args ...interface{}) error {
	return &SyntaxError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// wireHeader is the on-the-wire layout of a file header.
type wireHeader struct {
	Signature  []byte `struc:"[3]uint8"`
	Version    uint8
	Flags      uint8
	DataOffset uint32
}

// wireTagHeader is the on-the-wire layout of a tag header.
type wireTagHeader struct {
	Type              uint8
	DataSize          []byte `struc:"[3]uint8"`
	Timestamp         []byte `struc:"[3]uint8"`
	TimestampExtended uint8
	StreamID          []byte `struc:"[3]uint8"`
}

// Parser parses FLV headers and tags from byte windows.
//
// Parser holds no state between calls: the same window always produces the
// same result.
type Parser struct {
	// SkipFooterCheck, if true, disables verification of the previous tag size
	// fields. Otherwise, the field following the header must be 0, and the
	// field following each tag must equal that tag's size.
	SkipFooterCheck bool
}

// ParseHeader parses the file header, including the previous tag size field
// that follows it, from the beginning of window.
//
// On success, ParseHeader returns the number of bytes the header spans. If
// window is too short, ParseHeader returns ErrIncomplete. If window is not an
// FLV header, ParseHeader returns a *SyntaxError.
func (p *Parser) ParseHeader(window []byte) (Header, int, error) {
	// Reject a bad signature as soon as we can see any of it.
	if n := len(window); n < len(Signature) {
		if !bytes.Equal(window, Signature[:n]) {
			return Header{}, 0, badSignature(window)
		}
		return Header{}, 0, ErrIncomplete
	}
	if !bytes.Equal(window[:len(Signature)], Signature) {
		return Header{}, 0, badSignature(window[:len(Signature)])
	}
	if len(window) < HeaderSize {
		return Header{}, 0, ErrIncomplete
	}

	var wh wireHeader
	if err := struc.Unpack(&byteslicereader.R{Buffer: window[:HeaderSize]}, &wh); err != nil {
		return Header{}, 0, errors.Wrap(err, "unpacking header")
	}
	if wh.DataOffset < HeaderSize {
		return Header{}, 0, syntaxErrorf(5, "header length %d is smaller than %d", wh.DataOffset, HeaderSize)
	}
	if wh.DataOffset > MaxHeaderSize {
		return Header{}, 0, syntaxErrorf(5, "header length %d exceeds %d", wh.DataOffset, MaxHeaderSize)
	}

	span := int(wh.DataOffset) + PreviousTagSizeLen
	if len(window) < span {
		return Header{}, 0, ErrIncomplete
	}
	if prev := binary.BigEndian.Uint32(window[wh.DataOffset:]); prev != 0 && !p.SkipFooterCheck {
		return Header{}, 0, syntaxErrorf(int(wh.DataOffset), "first previous tag size is %d, expected 0", prev)
	}

	return Header{
		Version:    wh.Version,
		Audio:      wh.Flags&flagAudio != 0,
		Video:      wh.Flags&flagVideo != 0,
		DataOffset: wh.DataOffset,
	}, span, nil
}

func badSignature(v []byte) error {
	return syntaxErrorf(0, "bad signature %s", fmtutil.HexSlice(v))
}

// ParseTag parses a single tag, including its trailing previous tag size, from
// the beginning of window into tag.
//
// On success, ParseTag returns the number of bytes the tag spans. The byte
// slices in tag reference window; they must be copied (see Tag.Clone) before
// window is modified.
//
// If window is too short, ParseTag returns ErrIncomplete and leaves tag
// unmodified. If window does not begin with a valid tag, ParseTag returns a
// *SyntaxError.
func (p *Parser) ParseTag(window []byte, tag *Tag) (int, error) {
	if len(window) == 0 {
		return 0, ErrIncomplete
	}
	if tt := TagType(window[0]); !tt.Valid() {
		return 0, syntaxErrorf(0, "unknown tag type %d", uint8(tt))
	}
	if len(window) < TagHeaderSize {
		return 0, ErrIncomplete
	}

	r := byteslicereader.R{Buffer: window}
	var wth wireTagHeader
	if err := struc.Unpack(&r, &wth); err != nil {
		return 0, errors.Wrap(err, "unpacking tag header")
	}

	th := TagHeader{
		Type:      TagType(wth.Type),
		DataSize:  uint24(wth.DataSize),
		Timestamp: uint32(wth.TimestampExtended)<<24 | uint24(wth.Timestamp),
		StreamID:  uint24(wth.StreamID),
	}
	span := th.Span()
	if len(window) < span {
		return 0, ErrIncomplete
	}

	data, err := r.Next(int(th.DataSize))
	if err != nil {
		// We have already verified the length of window.
		panic(errors.Wrap(err, "reading tag data"))
	}

	footerOffset := TagHeaderSize + int(th.DataSize)
	if prev := binary.BigEndian.Uint32(window[footerOffset:]); !p.SkipFooterCheck && prev != th.DataSize+TagHeaderSize {
		return 0, syntaxErrorf(footerOffset, "previous tag size is %d, expected %d", prev, th.DataSize+TagHeaderSize)
	}

	*tag = Tag{
		Header: th,
		Data:   data,
	}
	switch th.Type {
	case TagAudio:
		tag.Audio = decodeAudio(data)
	case TagVideo:
		tag.Video = decodeVideo(data)
	case TagScript:
		tag.Script = &ScriptData{Data: data}
	}
	return span, nil
}

func decodeAudio(data []byte) *AudioData {
	var ad AudioData
	if len(data) > 0 {
		b := data[0]
		ad.SoundFormat = SoundFormat(b >> 4)
		ad.SoundRate = SoundRate((b >> 2) & 0x03)
		ad.SoundSize = SoundSize((b >> 1) & 0x01)
		ad.SoundType = SoundType(b & 0x01)
	}
	ad.SoundData = descriptorBody(data)
	return &ad
}

func decodeVideo(data []byte) *VideoData {
	var vd VideoData
	if len(data) > 0 {
		b := data[0]
		vd.FrameType = FrameType(b >> 4)
		vd.CodecID = CodecID(b & 0x0F)
	}
	vd.VideoData = descriptorBody(data)
	return &vd
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
