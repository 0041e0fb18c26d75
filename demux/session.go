// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package demux

import (
	"fmt"
	"io"

	"github.com/danjacques/goflv/flv"
	"github.com/danjacques/goflv/support/bufferpool"
	"github.com/danjacques/goflv/support/fmtutil"
	"github.com/danjacques/goflv/support/logging"
	"github.com/danjacques/goflv/support/slidebuf"

	"github.com/pkg/errors"
)

// hexDumpSize is the number of window bytes included in debug dumps.
const hexDumpSize = 128

// Framer extracts the file header and individual tags from a window of
// buffered stream data.
//
// Both methods return flv.ErrIncomplete, consuming nothing, if the window
// holds only a prefix of what they are looking for. Any other error means the
// window is malformed. On success, they return the exact number of bytes
// that were parsed.
//
// flv.Parser is the standard Framer.
type Framer interface {
	ParseHeader(window []byte) (flv.Header, int, error)

	// ParseTag parses a tag into tag. tag's slices may reference window.
	ParseTag(window []byte, tag *flv.Tag) (int, error)
}

// State is the state of a Session.
type State int

const (
	// StateFilling means the session needs to read more data from its source.
	StateFilling State = iota
	// StateParsing means the session will attempt to parse its buffered data.
	StateParsing
	// StateEmitting means the session has just returned a record from Next.
	StateEmitting
	// StateDone is a terminal state: the stream has been fully drained.
	StateDone
	// StateFailed is a terminal state: the session encountered a fatal error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StateParsing:
		return "parsing"
	case StateEmitting:
		return "emitting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session demultiplexes a single FLV stream, one tag at a time.
//
// A Session reads its source incrementally into a sliding buffer, growing the
// buffer only when a single record does not fit. Each tag returned by Next is
// owned by the caller, and remains valid regardless of what the Session does
// afterwards.
//
// Session is not safe for concurrent use.
type Session struct {
	source io.Reader
	buf    *slidebuf.Buffer
	pool   *bufferpool.Pool
	filler Filler
	framer Framer
	mat    Materializer
	logger logging.L

	maxCapacity int
	strictEOF   bool

	state State
	// eof is true once the source has reported that it has no more data.
	eof bool
	err error

	header *flv.Header
	// scratch receives borrowed tags from the Framer.
	scratch flv.Tag

	consumed  int64
	count     int64
	truncated int

	closed bool
}

// New creates a Session that reads the stream from r.
//
// If cfg is nil, a default configuration will be used. If r is an io.Closer,
// the Session takes ownership of it and closes it on Close.
func New(r io.Reader, cfg *Config) *Session {
	if cfg == nil {
		cfg = &Config{}
	}

	s := Session{
		source:      r,
		pool:        cfg.BufferPool,
		framer:      cfg.framer(),
		logger:      logging.Must(cfg.Logger),
		maxCapacity: cfg.maxCapacity(),
		strictEOF:   cfg.StrictEOF,
		state:       StateFilling,
	}
	if s.pool != nil {
		s.buf = slidebuf.Wrap(s.pool.Get())
	}
	if s.buf == nil || s.buf.Cap() == 0 {
		// A pool without a size hands out empty stores.
		s.buf = slidebuf.New(cfg.initialCapacity())
	}
	s.filler = Filler{Source: r, Buffer: s.buf}
	s.mat.BlockSize = cfg.payloadBlockSize()

	sessionsActiveGauge.Inc()
	return &s
}

// State returns the Session's current state.
func (s *Session) State() State { return s.state }

// Header returns the stream's file header, or nil if it has not been parsed
// yet.
func (s *Session) Header() *flv.Header { return s.header }

// Count returns the number of records emitted so far.
//
// Count remains valid after the session has failed, reporting the records
// that were emitted before the failure.
func (s *Session) Count() int64 { return s.count }

// Consumed returns the number of stream bytes that have been fully parsed,
// including the file header.
func (s *Session) Consumed() int64 { return s.consumed }

// Truncated returns the size of the partial record that was dropped at the
// end of the stream, or 0 if there was none.
func (s *Session) Truncated() int { return s.truncated }

// Err returns the error that the session failed with, or nil if it has not
// failed.
func (s *Session) Err() error { return s.err }

// Next returns the next record in the stream.
//
// When the stream has been drained, Next returns io.EOF. If the session
// fails, Next returns an *Error describing the failure. Both conditions are
// terminal: all subsequent calls return the same result.
func (s *Session) Next() (*flv.Tag, error) {
	for {
		switch s.state {
		case StateFilling:
			s.fill()

		case StateParsing:
			if tag := s.parse(); tag != nil {
				s.state = StateEmitting
				return tag, nil
			}

		case StateEmitting:
			// Resume against the current window first; it may already hold the
			// next record.
			s.state = StateParsing

		case StateDone:
			return nil, io.EOF

		case StateFailed:
			return nil, s.err

		default:
			panic(errors.Errorf("unknown state %v", s.state))
		}
	}
}

func (s *Session) fill() {
	n, err := s.filler.Fill()
	if err != nil {
		s.fail(&Error{
			Kind:   KindSourceRead,
			Phase:  PhaseRead,
			Offset: s.consumed + int64(s.buf.Len()),
			Err:    err,
		})
		return
	}

	s.logger.Debugf("Filled %d byte(s); %s buffered.", n, fmtutil.ByteSize(s.buf.Len()))
	if n == 0 {
		s.eof = true
		if s.buf.Len() == 0 && s.header != nil {
			s.finish()
			return
		}
	}

	// Even at end of stream, the buffer may already hold a complete record.
	s.state = StateParsing
}

// parse makes one attempt to extract the header or a tag from the buffer.
//
// If a tag was extracted, parse returns an owned copy of it. Otherwise, parse
// has transitioned the session to its next state.
func (s *Session) parse() *flv.Tag {
	window := s.buf.ReadableRegion()
	s.logger.Debugf("Parsing window (%d bytes, consumed %d):\n%s",
		len(window), s.consumed, fmtutil.HexHead(window, hexDumpSize))

	if s.header == nil {
		h, n, err := s.framer.ParseHeader(window)
		switch err {
		case nil:
			s.header = &h
			s.advance(n)
			s.logger.Infow("Parsed FLV header.",
				"version", h.Version, "audio", h.Audio, "video", h.Video, "size", n)
		case flv.ErrIncomplete:
			s.needMore(PhaseHeader)
		default:
			s.failMalformed(PhaseHeader, err)
		}
		return nil
	}

	n, err := s.framer.ParseTag(window, &s.scratch)
	switch err {
	case nil:
		// The scratch tag borrows window. It must be materialized before the
		// buffer is consumed.
		tag := s.mat.Materialize(&s.scratch)
		s.scratch = flv.Tag{}
		s.advance(n)

		s.count++
		emittedRecords.WithLabelValues(tag.Header.Type.String()).Inc()
		s.logger.Debugf("Parsed record #%d: %s", s.count, tag)
		return tag

	case flv.ErrIncomplete:
		s.needMore(PhaseRecord)
		return nil

	default:
		s.failMalformed(PhaseRecord, err)
		return nil
	}
}

func (s *Session) advance(n int) {
	s.buf.Consume(n)
	s.consumed += int64(n)
	consumedBytes.Add(float64(n))
}

// needMore handles an incomplete parse. The session transitions to StateFilling,
// unless the stream has ended.
func (s *Session) needMore(phase Phase) {
	if s.eof {
		s.truncated = s.buf.Len()
		switch {
		case s.truncated == 0 && phase == PhaseRecord:
			s.finish()

		case phase == PhaseHeader:
			s.fail(&Error{
				Kind:   KindTruncated,
				Phase:  phase,
				Offset: s.consumed,
				Err:    errors.Errorf("stream ended after %d byte(s) of header", s.truncated),
			})

		case s.strictEOF:
			s.fail(&Error{
				Kind:   KindTruncated,
				Phase:  phase,
				Offset: s.consumed,
				Err:    errors.Errorf("stream ended after %d byte(s) of record", s.truncated),
			})

		default:
			truncatedRecords.Inc()
			s.logger.Warnw("Dropping truncated record at end of stream.",
				"offset", s.consumed, "size", s.truncated)
			s.finish()
		}
		return
	}

	if s.buf.Space() == 0 && !s.makeRoom(phase) {
		return
	}
	s.state = StateFilling
}

// makeRoom frees writable space in a full buffer, shifting its unread data to
// the front if that reclaims enough, or growing it otherwise. A buffer at its
// capacity limit is shifted whenever it has consumed bytes to reclaim.
//
// If the buffer can neither shift nor grow, makeRoom fails the session and
// returns false.
func (s *Session) makeRoom(phase Phase) bool {
	b := s.buf
	limited := s.maxCapacity > 0 && b.Cap() >= s.maxCapacity
	if b.Offset() > 0 && (limited || b.Len() <= b.Cap()/2) {
		b.Shift()
		bufferShifts.Inc()
		s.logger.Debugw("Shifted buffer.", "buffered", b.Len(), "capacity", b.Cap())
		return true
	}

	if limited {
		s.fail(&Error{
			Kind:   KindCapacity,
			Phase:  phase,
			Offset: s.consumed,
			Err: errors.Errorf("%s buffered without a complete %s, limit is %s",
				fmtutil.ByteSize(b.Len()), phase, fmtutil.ByteSize(s.maxCapacity)),
		})
		return false
	}

	capacity := b.Cap() * 2
	if capacity == 0 {
		capacity = 1
	}
	if s.maxCapacity > 0 && capacity > s.maxCapacity {
		capacity = s.maxCapacity
	}

	b.Grow(capacity)
	bufferGrows.Inc()
	s.logger.Debugw("Grew buffer.", "buffered", b.Len(), "capacity", b.Cap())
	return true
}

func (s *Session) failMalformed(phase Phase, err error) {
	offset := s.consumed
	if se, ok := errors.Cause(err).(*flv.SyntaxError); ok {
		offset += int64(se.Offset)
	}
	s.fail(&Error{
		Kind:   KindMalformed,
		Phase:  phase,
		Offset: offset,
		Err:    err,
	})
}

func (s *Session) fail(err *Error) {
	s.state, s.err = StateFailed, err
	sessionErrors.WithLabelValues(err.Kind.String(), err.Phase.String()).Inc()
	s.logger.Errorf("Demux session failed after %d record(s): %s", s.count, err)
}

func (s *Session) finish() {
	s.state = StateDone
	s.logger.Infow("Reached end of stream.", "records", s.count, "consumed", s.consumed)
}

// Close releases the Session's buffer and closes its source, if the source is
// an io.Closer.
//
// If the session has not reached a terminal state, subsequent Next calls
// return ErrClosed. Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.state != StateDone && s.state != StateFailed {
		s.state, s.err = StateFailed, ErrClosed
	}

	bufferCapacity.Observe(float64(s.buf.Cap()))
	if store := s.buf.Release(); s.pool != nil {
		// Grown stores are not the pool's size, and are dropped.
		s.pool.Put(store)
	}
	s.scratch = flv.Tag{}
	sessionsActiveGauge.Dec()

	if c, ok := s.source.(io.Closer); ok {
		return errors.Wrap(c.Close(), "closing source")
	}
	return nil
}
