// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package demux

import (
	"bytes"
	"io"
	"io/ioutil"

	"github.com/danjacques/goflv/flv"
	"github.com/danjacques/goflv/support/bufferpool"
	"github.com/danjacques/goflv/support/logging"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultInitialCapacity is the default initial buffer capacity.
	DefaultInitialCapacity = 64 * 1024
	// DefaultMaxCapacity is the default buffer capacity limit. It is large
	// enough to hold the largest tag that FLV can express.
	DefaultMaxCapacity = 32 * 1024 * 1024
	// DefaultPayloadBlockSize is the default Materializer block size.
	DefaultPayloadBlockSize = 64 * 1024
)

// Config is a Session configuration. The zero value is a valid configuration.
type Config struct {
	// InitialCapacity is the initial size of the buffer. If <= 0,
	// DefaultInitialCapacity will be used.
	InitialCapacity int `yaml:"initial_capacity"`

	// MaxCapacity is the size beyond which the buffer will not grow. If 0,
	// DefaultMaxCapacity will be used. If < 0, the buffer may grow without
	// limit.
	MaxCapacity int `yaml:"max_capacity"`

	// PayloadBlockSize is the size of the blocks that the Materializer carves
	// small payloads from. If 0, DefaultPayloadBlockSize will be used. If < 0,
	// every payload receives its own allocation.
	PayloadBlockSize int `yaml:"payload_block_size"`

	// StrictEOF, if true, causes the session to fail if the source ends
	// partway through a tag. Otherwise, the partial tag is dropped with a
	// warning, and the session finishes normally.
	StrictEOF bool `yaml:"strict_eof"`

	// SkipFooterCheck disables verification of previous tag size fields.
	SkipFooterCheck bool `yaml:"skip_footer_check"`

	// Framer, if not nil, is the grammar used to extract the header and tags.
	// If nil, a flv.Parser configured by SkipFooterCheck will be used.
	Framer Framer `yaml:"-"`

	// BufferPool, if not nil, supplies the session's initial buffer, and
	// receives it back when the session is closed. InitialCapacity is ignored.
	//
	// Tags returned by a session never reference its buffer, so they remain
	// valid after the buffer has been reused by another session.
	BufferPool *bufferpool.Pool `yaml:"-"`

	// Logger is the logger instance to use. If nil, no logging will be
	// performed.
	Logger logging.L `yaml:"-"`
}

func (cfg *Config) maxCapacity() int {
	switch {
	case cfg.MaxCapacity == 0:
		return DefaultMaxCapacity
	case cfg.MaxCapacity < 0:
		return 0
	default:
		return cfg.MaxCapacity
	}
}

func (cfg *Config) initialCapacity() int {
	v := cfg.InitialCapacity
	if v <= 0 {
		v = DefaultInitialCapacity
	}
	if limit := cfg.maxCapacity(); limit > 0 && v > limit {
		v = limit
	}
	return v
}

func (cfg *Config) payloadBlockSize() int {
	switch {
	case cfg.PayloadBlockSize == 0:
		return DefaultPayloadBlockSize
	case cfg.PayloadBlockSize < 0:
		return 0
	default:
		return cfg.PayloadBlockSize
	}
}

func (cfg *Config) framer() Framer {
	if cfg.Framer != nil {
		return cfg.Framer
	}
	return &flv.Parser{SkipFooterCheck: cfg.SkipFooterCheck}
}

// LoadConfig loads a YAML-encoded Config from path.
//
// Unknown fields are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "parsing config file %q", path)
	}
	return &cfg, nil
}
