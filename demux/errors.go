// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package demux

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Next after the Session has been closed.
var ErrClosed = errors.New("session closed")

// ErrNoSpace is returned by Filler.Fill when its Buffer has no writable space.
var ErrNoSpace = errors.New("buffer has no writable space")

// Kind classifies a fatal session error.
type Kind int

const (
	// KindSourceRead means the byte source reported an I/O failure.
	KindSourceRead Kind = iota + 1
	// KindMalformed means the stream violated the FLV grammar.
	KindMalformed
	// KindCapacity means a record would not fit in the buffer without
	// exceeding the configured capacity limit.
	KindCapacity
	// KindTruncated means the source ended partway through the header, or
	// partway through a record in strict mode.
	KindTruncated
)

func (k Kind) String() string {
	switch k {
	case KindSourceRead:
		return "source_read"
	case KindMalformed:
		return "malformed"
	case KindCapacity:
		return "capacity"
	case KindTruncated:
		return "truncated"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Phase identifies what the session was doing when an error occurred.
type Phase int

const (
	// PhaseHeader is the parsing of the file header.
	PhaseHeader Phase = iota + 1
	// PhaseRecord is the parsing of a tag.
	PhaseRecord
	// PhaseRead is a read from the byte source.
	PhaseRead
)

func (p Phase) String() string {
	switch p {
	case PhaseHeader:
		return "header"
	case PhaseRecord:
		return "record"
	case PhaseRead:
		return "read"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Error is a fatal session error.
type Error struct {
	Kind  Kind
	Phase Phase

	// Offset is the absolute stream offset at which the error occurred.
	Offset int64

	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMalformed:
		return fmt.Sprintf("malformed %s at offset %d: %s", e.Phase, e.Offset, e.Err)
	case KindTruncated:
		return fmt.Sprintf("truncated %s at offset %d: %s", e.Phase, e.Offset, e.Err)
	case KindCapacity:
		return fmt.Sprintf("%s at offset %d does not fit in buffer: %s", e.Phase, e.Offset, e.Err)
	default:
		return fmt.Sprintf("%s failure at offset %d: %s", e.Phase, e.Offset, e.Err)
	}
}

// Cause implements the github.com/pkg/errors causer interface.
func (e *Error) Cause() error { return e.Err }

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// IsKind returns true if err is, or wraps, an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// AsError returns the *Error that err is or wraps, or nil if there is none.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
