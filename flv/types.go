// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package flv

import (
	"fmt"
)

// TagType is the type of a tag, identifying its payload.
type TagType uint8

const (
	// TagAudio is an audio tag.
	TagAudio TagType = 8
	// TagVideo is a video tag.
	TagVideo TagType = 9
	// TagScript is a script data (metadata) tag.
	TagScript TagType = 18
)

// Valid returns true if t is a known tag type.
func (t TagType) Valid() bool {
	switch t {
	case TagAudio, TagVideo, TagScript:
		return true
	default:
		return false
	}
}

func (t TagType) String() string {
	switch t {
	case TagAudio:
		return "audio"
	case TagVideo:
		return "video"
	case TagScript:
		return "script"
	default:
		return fmt.Sprintf("TagType(%d)", uint8(t))
	}
}

// SoundFormat is the audio codec of an audio tag.
type SoundFormat uint8

// Sound formats, from the FLV specification.
const (
	SoundPCMNativeEndian SoundFormat = iota
	SoundADPCM
	SoundMP3
	SoundPCMLittleEndian
	SoundNellymoser16kHzMono
	SoundNellymoser8kHzMono
	SoundNellymoser
	SoundG711ALaw
	SoundG711MuLaw
	_
	SoundAAC
	SoundSpeex
	_
	_
	SoundMP38kHz
	SoundDeviceSpecific
)

var soundFormatNames = map[SoundFormat]string{
	SoundPCMNativeEndian:     "PCM_NE",
	SoundADPCM:               "ADPCM",
	SoundMP3:                 "MP3",
	SoundPCMLittleEndian:     "PCM_LE",
	SoundNellymoser16kHzMono: "NELLYMOSER_16KHZ_MONO",
	SoundNellymoser8kHzMono:  "NELLYMOSER_8KHZ_MONO",
	SoundNellymoser:          "NELLYMOSER",
	SoundG711ALaw:            "PCM_ALAW",
	SoundG711MuLaw:           "PCM_ULAW",
	SoundAAC:                 "AAC",
	SoundSpeex:               "SPEEX",
	SoundMP38kHz:             "MP3_8KHZ",
	SoundDeviceSpecific:      "DEVICE_SPECIFIC",
}

func (f SoundFormat) String() string {
	if v, ok := soundFormatNames[f]; ok {
		return v
	}
	return fmt.Sprintf("SoundFormat(%d)", uint8(f))
}

// SoundRate is the sampling rate of an audio tag.
type SoundRate uint8

// Sound rates.
const (
	SoundRate5512 SoundRate = iota
	SoundRate11025
	SoundRate22050
	SoundRate44100
)

// Hz returns the sampling rate in Hertz.
func (r SoundRate) Hz() int {
	switch r {
	case SoundRate5512:
		return 5512
	case SoundRate11025:
		return 11025
	case SoundRate22050:
		return 22050
	default:
		return 44100
	}
}

func (r SoundRate) String() string { return fmt.Sprintf("%dHz", r.Hz()) }

// SoundSize is the sample size of an audio tag.
type SoundSize uint8

// Sound sizes.
const (
	SoundSize8Bit SoundSize = iota
	SoundSize16Bit
)

func (s SoundSize) String() string {
	if s == SoundSize8Bit {
		return "8-bit"
	}
	return "16-bit"
}

// SoundType is the channel layout of an audio tag.
type SoundType uint8

// Sound types.
const (
	SoundMono SoundType = iota
	SoundStereo
)

func (t SoundType) String() string {
	if t == SoundMono {
		return "mono"
	}
	return "stereo"
}

// FrameType is the frame type of a video tag.
type FrameType uint8

// Frame types.
const (
	FrameKey FrameType = iota + 1
	FrameInter
	FrameDisposableInter
	FrameGeneratedKey
	FrameCommand
)

var frameTypeNames = map[FrameType]string{
	FrameKey:             "key",
	FrameInter:           "inter",
	FrameDisposableInter: "disposable-inter",
	FrameGeneratedKey:    "generated-key",
	FrameCommand:         "command",
}

func (t FrameType) String() string {
	if v, ok := frameTypeNames[t]; ok {
		return v
	}
	return fmt.Sprintf("FrameType(%d)", uint8(t))
}

// CodecID is the video codec of a video tag.
type CodecID uint8

// Codec IDs.
const (
	CodecJPEG CodecID = iota + 1
	CodecSorensonH263
	CodecScreenVideo
	CodecVP6
	CodecVP6Alpha
	CodecScreenVideo2
	CodecH264
)

var codecIDNames = map[CodecID]string{
	CodecJPEG:         "JPEG",
	CodecSorensonH263: "SORENSON_H263",
	CodecScreenVideo:  "SCREEN",
	CodecVP6:          "VP6",
	CodecVP6Alpha:     "VP6A",
	CodecScreenVideo2: "SCREEN2",
	CodecH264:         "H264",
}

func (c CodecID) String() string {
	if v, ok := codecIDNames[c]; ok {
		return v
	}
	return fmt.Sprintf("CodecID(%d)", uint8(c))
}

// Header is a decoded FLV file header.
type Header struct {
	// Version is the FLV version. It is 1 for all known files.
	Version uint8
	// Audio is true if the header declares audio tags to be present.
	Audio bool
	// Video is true if the header declares video tags to be present.
	Video bool
	// DataOffset is the size of the header, in bytes. The first tag's
	// previous tag size begins at this offset.
	DataOffset uint32
}

// TagHeader is the fixed-size header preceding each tag's payload.
type TagHeader struct {
	Type TagType
	// DataSize is the size of the tag's payload, in bytes.
	DataSize uint32
	// Timestamp is the tag's timestamp in milliseconds, including the
	// extension byte as its most significant 8 bits.
	Timestamp uint32
	// StreamID is always 0 in conforming files.
	StreamID uint32
}

// Span returns the total number of bytes the tag occupies in the stream,
// including its header and trailing previous tag size.
func (th *TagHeader) Span() int {
	return TagHeaderSize + int(th.DataSize) + PreviousTagSizeLen
}

// AudioData is the decoded prefix of an audio tag's payload.
type AudioData struct {
	SoundFormat SoundFormat
	SoundRate   SoundRate
	SoundSize   SoundSize
	SoundType   SoundType

	// SoundData is the payload following the audio descriptor byte.
	SoundData []byte
}

// VideoData is the decoded prefix of a video tag's payload.
type VideoData struct {
	FrameType FrameType
	CodecID   CodecID

	// VideoData is the payload following the video descriptor byte.
	VideoData []byte
}

// ScriptData is a script tag's payload. It is AMF0-encoded and is not
// decoded further.
type ScriptData struct {
	Data []byte
}

// Tag is a single decoded FLV tag.
//
// Exactly one of Audio, Video, or Script is populated, according to the
// header's Type.
type Tag struct {
	Header TagHeader

	// Data is the tag's full payload. Its length equals Header.DataSize.
	Data []byte

	Audio  *AudioData
	Video  *VideoData
	Script *ScriptData
}

// Clone returns a deep copy of t whose byte slices are independent of the
// data that t was parsed from.
func (t *Tag) Clone() *Tag {
	var data []byte
	if t.Data != nil {
		data = make([]byte, len(t.Data))
		copy(data, t.Data)
	}
	return t.WithData(data)
}

// WithData returns a shallow copy of t whose payload slices all reference
// data instead of t.Data.
//
// data must hold the same bytes as t.Data. It is typically a copy of t.Data
// made into storage that the caller owns.
func (t *Tag) WithData(data []byte) *Tag {
	if len(data) != len(t.Data) {
		panic(fmt.Errorf("flv: rebasing %d-byte payload onto %d bytes", len(t.Data), len(data)))
	}

	c := Tag{
		Header: t.Header,
		Data:   data,
	}
	switch {
	case t.Audio != nil:
		a := *t.Audio
		a.SoundData = descriptorBody(data)
		c.Audio = &a
	case t.Video != nil:
		v := *t.Video
		v.VideoData = descriptorBody(data)
		c.Video = &v
	case t.Script != nil:
		c.Script = &ScriptData{Data: data}
	}
	return &c
}

func (t *Tag) String() string {
	h := &t.Header
	base := fmt.Sprintf("%s tag (size=%d, ts=%d, stream=%d)", h.Type, h.DataSize, h.Timestamp, h.StreamID)
	switch {
	case t.Audio != nil:
		a := t.Audio
		return fmt.Sprintf("%s: %s %s %s %s", base, a.SoundFormat, a.SoundRate, a.SoundSize, a.SoundType)
	case t.Video != nil:
		return fmt.Sprintf("%s: %s %s", base, t.Video.CodecID, t.Video.FrameType)
	default:
		return base
	}
}

// descriptorBody returns the portion of an audio or video payload following
// its one-byte descriptor.
func descriptorBody(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return data[1:]
}
