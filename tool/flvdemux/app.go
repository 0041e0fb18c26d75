// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package flvdemux defines the logic for the "flvdemux" tool.
//
// flvdemux demultiplexes a single FLV file, optionally compressed, and prints
// the number of tags that it contains. It can also print each tag, write a
// tag index, and export the demuxer's metrics.
package flvdemux

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/danjacques/goflv/demux"
	"github.com/danjacques/goflv/flv"
	"github.com/danjacques/goflv/source"
	"github.com/danjacques/goflv/support/stagingdir"
	"github.com/danjacques/goflv/tagindex"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes.
const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

type options struct {
	configPath      string
	compression     source.CompressionFlag
	indexPath       string
	indexComp       source.CompressionFlag
	metricsTextfile string
	logLevel        string
	printTags       bool

	strict          bool
	skipFooterCheck bool
	initialCapacity int
	maxCapacity     int
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	o.indexComp = source.CompressionFlag(source.CompressionNone)

	fs.StringVar(&o.configPath, "config", "",
		"Path to a YAML demuxer configuration. Flags override its values.")
	fs.Var(&o.compression, "compression",
		"Compression of the input file. One of: "+source.CompressionFlagValues()+".")
	fs.StringVar(&o.indexPath, "index", "",
		"If set, write a tag index to this path.")
	fs.Var(&o.indexComp, "index-compression",
		"Compression of the tag index.")
	fs.StringVar(&o.metricsTextfile, "metrics-textfile", "",
		"If set, write demuxer metrics to this path in the Prometheus text format.")
	fs.StringVar(&o.logLevel, "log-level", "warn",
		"Log level (debug, info, warn, error).")
	fs.BoolVar(&o.printTags, "print-tags", false,
		"Print every tag.")

	fs.BoolVar(&o.strict, "strict", false,
		"Fail if the file ends partway through a tag.")
	fs.BoolVar(&o.skipFooterCheck, "skip-footer-check", false,
		"Do not verify previous tag size fields.")
	fs.IntVar(&o.initialCapacity, "initial-capacity", demux.DefaultInitialCapacity,
		"Initial buffer capacity, in bytes.")
	fs.IntVar(&o.maxCapacity, "max-capacity", demux.DefaultMaxCapacity,
		"Buffer capacity limit, in bytes. If < 0, the buffer is unlimited.")
}

// config loads the demuxer configuration, applying any flags that were
// explicitly set on top of it.
func (o *options) config(fs *pflag.FlagSet) (*demux.Config, error) {
	cfg := &demux.Config{}
	if o.configPath != "" {
		var err error
		if cfg, err = demux.LoadConfig(o.configPath); err != nil {
			return nil, err
		}
	}

	if fs.Changed("strict") {
		cfg.StrictEOF = o.strict
	}
	if fs.Changed("skip-footer-check") {
		cfg.SkipFooterCheck = o.skipFooterCheck
	}
	if fs.Changed("initial-capacity") {
		cfg.InitialCapacity = o.initialCapacity
	}
	if fs.Changed("max-capacity") {
		cfg.MaxCapacity = o.maxCapacity
	}
	return cfg, nil
}

// Main is the main entry point.
func Main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("flvdemux", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: flvdemux [flags] <path>\n\n")
		fs.PrintDefaults()
	}

	var o options
	o.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}

	logger, err := newLogger(o.logLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "flvdemux: %s\n", err)
		return exitUsage
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := o.config(fs)
	if err != nil {
		fmt.Fprintf(stderr, "flvdemux: %s\n", err)
		return exitUsage
	}
	cfg.Logger = logger.Sugar()

	a := app{
		opts:   &o,
		cfg:    cfg,
		stdout: stdout,
		logger: logger.Sugar(),
	}
	if err := a.demux(context.Background(), fs.Arg(0)); err != nil {
		fmt.Fprintf(stderr, "flvdemux: %s\n", describe(err))
		return exitFailure
	}
	return exitSuccess
}

func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(lvl))
	return zap.New(core), nil
}

// describe renders err for the user. Session errors name the phase and
// offset at which the stream failed.
func describe(err error) string {
	e := demux.AsError(err)
	if e == nil {
		return err.Error()
	}
	return fmt.Sprintf("failed in %s phase at offset %d (%s): %s", e.Phase, e.Offset, e.Kind, e.Err)
}

type app struct {
	opts   *options
	cfg    *demux.Config
	stdout io.Writer
	logger *zap.SugaredLogger
}

func (a *app) demux(c context.Context, path string) (err error) {
	reg := prometheus.NewRegistry()
	demux.RegisterMonitoring(reg)
	if a.opts.metricsTextfile != "" {
		defer func() {
			if werr := prometheus.WriteToTextfile(a.opts.metricsTextfile, reg); werr != nil && err == nil {
				err = errors.Wrap(werr, "writing metrics")
			}
		}()
	}

	f, err := source.Open(path, a.opts.compression.Value())
	if err != nil {
		return err
	}
	a.logger.Infow("Opened input.", "path", path, "compression", f.Compression)

	s := demux.New(f, a.cfg)
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var iw *tagindex.Writer
	if a.opts.indexPath != "" {
		sd, serr := stagingdir.New(a.opts.indexPath)
		if serr != nil {
			return errors.Wrap(serr, "staging index")
		}
		w, cerr := source.Create(sd.Path(), a.opts.indexComp.Value())
		if cerr != nil {
			_ = sd.Destroy()
			return errors.Wrap(cerr, "creating index")
		}

		// The index only replaces its destination if the whole file demuxed.
		defer func() {
			if cerr := w.Close(); cerr != nil && err == nil {
				err = errors.Wrap(cerr, "closing index")
			}
			if err == nil {
				err = sd.Commit()
			} else {
				_ = sd.Destroy()
			}
		}()
		iw = tagindex.NewWriter(w)
	}

	// The header is set before the first tag is handed off, and never changes
	// afterwards.
	offset := int64(-1)
	err = demux.Run(c, s, func(tag *flv.Tag) error {
		if offset < 0 {
			offset = int64(s.Header().DataOffset) + flv.PreviousTagSizeLen
		}
		if a.opts.printTags {
			fmt.Fprintf(a.stdout, "@%d %s\n", offset, tag)
		}
		if iw != nil {
			if err := iw.Add(offset, tag); err != nil {
				return err
			}
		}
		offset += int64(tag.Header.Span())
		return nil
	})
	if err != nil {
		return err
	}

	if n := s.Truncated(); n > 0 {
		a.logger.Warnf("Dropped a truncated %d-byte tag at the end of the file.", n)
	}
	a.logger.Infow("Finished demuxing.",
		"tags", s.Count(), "consumed", s.Consumed(), "raw_bytes", f.RawBytes())
	fmt.Fprintf(a.stdout, "parsed %d FLV tags\n", s.Count())
	return nil
}
