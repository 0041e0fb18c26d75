// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package tagindex reads and writes an index of the tags in an FLV stream.
//
// An index is a protostream of structpb.Struct messages, one per tag, in
// stream order. Each message holds the tag's absolute stream offset and the
// fields of its header. Video tags additionally record whether they are key
// frames, so that an index can be used to find seek points.
package tagindex

import (
	"io"
	"math"

	"github.com/danjacques/goflv/flv"
	"github.com/danjacques/goflv/support/protostream"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names used in index messages.
const (
	fieldOffset    = "offset"
	fieldType      = "type"
	fieldSize      = "size"
	fieldTimestamp = "timestamp"
	fieldStreamID  = "stream_id"
	fieldKeyframe  = "keyframe"
)

// maxExactFloat is the largest integer that a float64 holds exactly.
const maxExactFloat = 1 << 53

// Entry describes a single tag.
type Entry struct {
	// Offset is the absolute stream offset of the tag's header.
	Offset    int64
	Type      flv.TagType
	DataSize  uint32
	Timestamp uint32
	StreamID  uint32

	// Keyframe is true if the tag is a video key frame.
	Keyframe bool
}

// EntryFor returns the Entry for tag, which begins at offset.
func EntryFor(offset int64, tag *flv.Tag) Entry {
	e := Entry{
		Offset:    offset,
		Type:      tag.Header.Type,
		DataSize:  tag.Header.DataSize,
		Timestamp: tag.Header.Timestamp,
		StreamID:  tag.Header.StreamID,
	}
	if tag.Video != nil {
		e.Keyframe = tag.Video.FrameType == flv.FrameKey
	}
	return e
}

// Span returns the number of stream bytes that the entry's tag occupies.
func (e *Entry) Span() int {
	th := flv.TagHeader{DataSize: e.DataSize}
	return th.Span()
}

func (e *Entry) toStruct() *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldOffset:    structpb.NewNumberValue(float64(e.Offset)),
		fieldType:      structpb.NewNumberValue(float64(e.Type)),
		fieldSize:      structpb.NewNumberValue(float64(e.DataSize)),
		fieldTimestamp: structpb.NewNumberValue(float64(e.Timestamp)),
		fieldStreamID:  structpb.NewNumberValue(float64(e.StreamID)),
	}
	if e.Type == flv.TagVideo {
		fields[fieldKeyframe] = structpb.NewBoolValue(e.Keyframe)
	}
	return &structpb.Struct{Fields: fields}
}

func (e *Entry) fromStruct(s *structpb.Struct) error {
	var (
		offset uint64
		v      uint64
		err    error
	)
	if offset, err = numberField(s, fieldOffset, maxExactFloat); err != nil {
		return err
	}
	e.Offset = int64(offset)

	if v, err = numberField(s, fieldType, math.MaxUint8); err != nil {
		return err
	}
	e.Type = flv.TagType(v)

	if v, err = numberField(s, fieldSize, flv.MaxDataSize); err != nil {
		return err
	}
	e.DataSize = uint32(v)

	if v, err = numberField(s, fieldTimestamp, math.MaxUint32); err != nil {
		return err
	}
	e.Timestamp = uint32(v)

	if v, err = numberField(s, fieldStreamID, flv.MaxDataSize); err != nil {
		return err
	}
	e.StreamID = uint32(v)

	e.Keyframe = false
	if kf, ok := s.Fields[fieldKeyframe]; ok {
		bv, ok := kf.Kind.(*structpb.Value_BoolValue)
		if !ok {
			return errors.Errorf("field %q is not a bool", fieldKeyframe)
		}
		e.Keyframe = bv.BoolValue
	}
	return nil
}

// numberField returns the value of a required non-negative integer field of
// s, which must not exceed limit.
func numberField(s *structpb.Struct, name string, limit uint64) (uint64, error) {
	v, ok := s.Fields[name]
	if !ok {
		return 0, errors.Errorf("missing field %q", name)
	}
	nv, ok := v.Kind.(*structpb.Value_NumberValue)
	if !ok {
		return 0, errors.Errorf("field %q is not a number", name)
	}

	f := nv.NumberValue
	if f < 0 || f > float64(limit) || f != math.Trunc(f) {
		return 0, errors.Errorf("field %q has invalid value %v", name, f)
	}
	return uint64(f), nil
}

// Writer writes index entries to an underlying io.Writer.
type Writer struct {
	enc   protostream.Encoder
	count int64
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: protostream.Encoder{W: w}}
}

// Add writes the entry for tag, which begins at offset.
func (w *Writer) Add(offset int64, tag *flv.Tag) error {
	return w.Write(EntryFor(offset, tag))
}

// Write writes e.
func (w *Writer) Write(e Entry) error {
	if _, err := w.enc.Encode(e.toStruct()); err != nil {
		return errors.Wrapf(err, "writing index entry #%d", w.count)
	}
	w.count++
	return nil
}

// Count returns the number of entries that have been written.
func (w *Writer) Count() int64 { return w.count }

// Size returns the number of bytes that have been written.
func (w *Writer) Size() int64 { return w.enc.BytesWritten }

// Reader reads index entries written by a Writer.
type Reader struct {
	dec   *protostream.Decoder
	count int64
}

// NewReader returns a Reader that reads from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: protostream.NewDecoder(r)}
}

// Next returns the next entry in the index, or io.EOF if there are no more.
func (r *Reader) Next() (Entry, error) {
	var (
		s structpb.Struct
		e Entry
	)
	switch err := r.dec.Decode(&s); err {
	case nil:
	case io.EOF:
		return e, err
	default:
		return e, errors.Wrapf(err, "reading index entry #%d", r.count)
	}

	if err := e.fromStruct(&s); err != nil {
		return e, errors.Wrapf(err, "decoding index entry #%d", r.count)
	}
	r.count++
	return e, nil
}

// ReadAll reads every entry from r.
func ReadAll(r io.Reader) ([]Entry, error) {
	ir := NewReader(r)

	var entries []Entry
	for {
		e, err := ir.Next()
		switch err {
		case nil:
			entries = append(entries, e)
		case io.EOF:
			return entries, nil
		default:
			return entries, err
		}
	}
}
