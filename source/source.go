// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package source opens optionally-compressed files for demuxing, and
// creates optionally-compressed output files.
package source

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"os"

	"github.com/danjacques/goflv/support/dataio"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

const (
	// Buffer size used for reading and writing files.
	fileBufferSize = 1024 * 256
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	// snappyMagic is the snappy framing format's stream identifier chunk.
	snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")
)

// File is a decompressing reader over an open file.
//
// Closing a File closes the underlying file.
type File struct {
	io.Reader

	// Compression is the compression of the file's contents. If the file was
	// opened with CompressionAuto, this is the detected compression.
	Compression Compression

	raw   *dataio.CountingReader
	file  *os.File
	gzipR *gzip.Reader
}

// Open opens the file at path for reading, decompressing it according to
// comp.
func Open(path string, comp Compression) (*File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening file")
	}

	f, err := NewFile(fd, comp)
	if err != nil {
		_ = fd.Close()
		return nil, err
	}
	f.file = fd
	return f, nil
}

// NewFile returns a File that decompresses r according to comp.
//
// Closing the returned File does not close r.
func NewFile(r io.Reader, comp Compression) (*File, error) {
	raw := dataio.NewCountingReader(r)
	br := bufio.NewReaderSize(raw, fileBufferSize)
	if comp == CompressionAuto {
		comp = detect(br)
	}

	f := File{Compression: comp, raw: raw}
	switch comp {
	case CompressionNone:
		f.Reader = br

	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "creating gzip reader")
		}
		f.gzipR = gz
		f.Reader = gz

	case CompressionSnappy:
		f.Reader = snappy.NewReader(br)

	default:
		return nil, errors.Errorf("unknown compression: %s", comp)
	}
	return &f, nil
}

// detect identifies compression from the leading bytes of br.
func detect(br *bufio.Reader) Compression {
	// Peek returns fewer bytes for short files; those simply won't match.
	head, _ := br.Peek(len(snappyMagic))
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(head, snappyMagic):
		return CompressionSnappy
	default:
		return CompressionNone
	}
}

// RawBytes returns the number of bytes that have been read from the underlying
// file. Reads are buffered, so this may exceed what the File's consumer has
// read, and for compressed files it counts compressed bytes.
func (f *File) RawBytes() int64 { return f.raw.Count }

// Close closes the File's decompressor and its underlying file.
func (f *File) Close() (err error) {
	if f.file != nil {
		defer func() {
			closeErr := f.file.Close()
			if err == nil {
				err = errors.Wrap(closeErr, "closing file")
			}
		}()
	}

	if f.gzipR != nil {
		if err = f.gzipR.Close(); err != nil {
			return errors.Wrap(err, "closing gzip reader")
		}
	}
	return nil
}

// Writer is a compressing writer over a file.
type Writer struct {
	io.Writer

	closer  io.Closer
	bw      *bufio.Writer
	snappyW *snappy.Writer
	gzipW   *gzip.Writer
}

// Create creates the file at path, compressing data written to it according
// to comp.
func Create(path string, comp Compression) (*Writer, error) {
	fd, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating file")
	}

	w, err := NewWriter(fd, comp)
	if err != nil {
		_ = fd.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter returns a Writer that compresses to base according to comp.
//
// Closing the Writer flushes it, then closes base.
func NewWriter(base io.WriteCloser, comp Compression) (*Writer, error) {
	w := Writer{
		bw:     bufio.NewWriterSize(base, fileBufferSize),
		closer: base,
	}

	switch comp {
	case CompressionNone:
		w.Writer = w.bw

	case CompressionGzip:
		w.gzipW = gzip.NewWriter(w.bw)
		w.Writer = w.gzipW

	case CompressionSnappy:
		w.snappyW = snappy.NewBufferedWriter(w.bw)
		w.Writer = w.snappyW

	default:
		return nil, errors.Errorf("cannot write with compression: %s", comp)
	}
	return &w, nil
}

// Close flushes all buffered data and closes the underlying writer.
func (w *Writer) Close() (err error) {
	// Always close our underlying base.
	defer func() {
		closeErr := w.closer.Close()
		if err == nil {
			err = closeErr
		}
	}()

	if w.snappyW != nil {
		if err = w.snappyW.Close(); err != nil {
			return
		}
	}
	if w.gzipW != nil {
		if err = w.gzipW.Close(); err != nil {
			return
		}
	}

	err = w.bw.Flush()
	return
}
