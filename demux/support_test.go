// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package demux

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/danjacques/goflv/flv"
	"github.com/danjacques/goflv/flv/flvtest"
	"github.com/danjacques/goflv/support/slidebuf"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Filler", func() {
	It("appends each read to the buffer", func() {
		buf := slidebuf.New(8)
		f := Filler{
			Source: &flvtest.ChunkReader{R: bytes.NewReader([]byte("0123456789")), Size: 3},
			Buffer: buf,
		}

		for _, want := range []int{3, 3, 2} {
			Expect(f.Fill()).To(Equal(want))
		}
		Expect(buf.ReadableRegion()).To(Equal([]byte("01234567")))

		By("refusing to read into a full buffer")
		n, err := f.Fill()
		Expect(n).To(Equal(0))
		Expect(err).To(Equal(ErrNoSpace))
		Expect(f.Source.(*flvtest.ChunkReader).Reads).To(Equal(3))

		By("reporting end of stream as zero bytes")
		buf.Consume(8)
		Expect(f.Fill()).To(Equal(2))
		Expect(f.Fill()).To(Equal(0))
		Expect(buf.ReadableRegion()).To(Equal([]byte("89")))
	})

	It("keeps bytes delivered alongside an error", func() {
		failure := errors.New("boom")
		buf := slidebuf.New(16)
		f := Filler{
			Source: readerFunc(func(b []byte) (int, error) {
				return copy(b, "abc"), failure
			}),
			Buffer: buf,
		}

		n, err := f.Fill()
		Expect(n).To(Equal(3))
		Expect(errors.Cause(err)).To(Equal(failure))
		Expect(buf.ReadableRegion()).To(Equal([]byte("abc")))
	})

	It("rejects an impossible read count", func() {
		buf := slidebuf.New(4)
		f := Filler{
			Source: readerFunc(func(b []byte) (int, error) { return len(b) + 1, nil }),
			Buffer: buf,
		}

		_, err := f.Fill()
		Expect(err).To(HaveOccurred())
		Expect(buf.Len()).To(Equal(0))
	})
})

var _ = Describe("Materializer", func() {
	window := flvtest.Stream(
		flvtest.AudioTag(1, []byte{1, 2, 3}),
		flvtest.VideoTag(2, []byte{4, 5, 6, 7}),
	)[len(flvtest.Header()):]

	parse := func(w []byte) (*flv.Tag, int) {
		var (
			p   flv.Parser
			tag flv.Tag
		)
		n, err := p.ParseTag(w, &tag)
		Expect(err).ToNot(HaveOccurred())
		return &tag, n
	}

	It("copies tags out of the window", func() {
		w := append([]byte(nil), window...)
		borrowed, _ := parse(w)

		m := Materializer{BlockSize: 64}
		owned := m.Materialize(borrowed)
		for i := range w {
			w[i] = 0
		}

		Expect(owned.Header).To(Equal(flv.TagHeader{Type: flv.TagAudio, DataSize: 4, Timestamp: 1}))
		Expect(owned.Data).To(Equal([]byte{0xAF, 1, 2, 3}))
		Expect(owned.Audio.SoundData).To(Equal([]byte{1, 2, 3}))
	})

	It("carves small payloads from a shared block, capping each one", func() {
		w := append([]byte(nil), window...)
		first, n := parse(w)
		second, _ := parse(w[n:])

		m := Materializer{BlockSize: 64}
		a := m.Materialize(first)
		b := m.Materialize(second)

		Expect(cap(a.Data)).To(Equal(len(a.Data)))
		Expect(cap(b.Data)).To(Equal(len(b.Data)))
		Expect(m.block).To(HaveLen(64 - len(a.Data) - len(b.Data)))

		By("appending to one payload without disturbing the other")
		grown := append(a.Data, 0xEE)
		Expect(grown).To(HaveLen(5))
		Expect(b.Data).To(Equal([]byte{0x17, 4, 5, 6, 7}))
	})

	It("allocates large payloads individually", func() {
		w := flvtest.Tag(flvtest.AudioTag(0, flvtest.Payload(32, 1)))
		tag, _ := parse(w)

		m := Materializer{BlockSize: 64}
		owned := m.Materialize(tag)
		Expect(owned.Data).To(Equal(tag.Data))
		Expect(m.block).To(BeNil())
	})

	It("preserves empty payloads", func() {
		w := flvtest.Tag(flvtest.TagSpec{Type: flv.TagScript, Data: []byte{}})
		tag, _ := parse(w)

		var m Materializer
		owned := m.Materialize(tag)
		Expect(owned.Header.DataSize).To(Equal(uint32(0)))
		Expect(owned.Data).To(HaveLen(0))
	})
})

var _ = Describe("Run", func() {
	var specs []flvtest.TagSpec
	for i := 0; i < 20; i++ {
		specs = append(specs, flvtest.AudioTag(uint32(i*10), flvtest.Payload(i, byte(i))))
	}
	stream := flvtest.Stream(specs...)

	It("delivers every record in order", func() {
		s := newChunkedSession(stream, 11, nil)
		defer s.Close()

		var timestamps []uint32
		Expect(Run(context.Background(), s, func(tag *flv.Tag) error {
			timestamps = append(timestamps, tag.Header.Timestamp)
			return nil
		})).To(Succeed())

		Expect(timestamps).To(HaveLen(len(specs)))
		for i, ts := range timestamps {
			Expect(ts).To(Equal(uint32(i * 10)))
		}
		Expect(s.State()).To(Equal(StateDone))
	})

	It("stops when the callback fails", func() {
		s := New(bytes.NewReader(stream), nil)
		defer s.Close()

		stop := errors.New("stop")
		calls := 0
		err := Run(context.Background(), s, func(*flv.Tag) error {
			calls++
			if calls == 3 {
				return stop
			}
			return nil
		})
		Expect(err).To(Equal(stop))
		Expect(calls).To(Equal(3))
		Expect(s.Count()).To(BeNumerically("<=", 5))
	})

	It("returns the session's error", func() {
		corrupt := append([]byte(nil), stream...)
		corrupt[1] = 'X'
		s := New(bytes.NewReader(corrupt), nil)
		defer s.Close()

		err := Run(context.Background(), s, func(*flv.Tag) error { return nil })
		Expect(IsKind(err, KindMalformed)).To(BeTrue())
	})

	It("returns the context's error when cancelled", func() {
		s := New(bytes.NewReader(stream), nil)
		defer s.Close()

		c, cancel := context.WithCancel(context.Background())
		cancel()

		err := Run(c, s, func(*flv.Tag) error { return nil })
		Expect(err).To(Equal(context.Canceled))
	})
})

var _ = Describe("Config", func() {
	var tdir string

	BeforeEach(func() {
		var err error
		tdir, err = ioutil.TempDir("", "demux_config_test")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tdir)).To(Succeed())
	})

	writeConfig := func(content string) string {
		path := filepath.Join(tdir, "config.yaml")
		Expect(ioutil.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	It("resolves defaults for the zero value", func() {
		var cfg Config
		Expect(cfg.initialCapacity()).To(Equal(DefaultInitialCapacity))
		Expect(cfg.maxCapacity()).To(Equal(DefaultMaxCapacity))
		Expect(cfg.payloadBlockSize()).To(Equal(DefaultPayloadBlockSize))
		Expect(cfg.framer()).To(Equal(&flv.Parser{}))
	})

	It("clamps the initial capacity to the limit", func() {
		cfg := Config{InitialCapacity: 1024, MaxCapacity: 100}
		Expect(cfg.initialCapacity()).To(Equal(100))

		cfg.MaxCapacity = -1
		Expect(cfg.maxCapacity()).To(Equal(0))
		Expect(cfg.initialCapacity()).To(Equal(1024))
	})

	It("loads a YAML file", func() {
		cfg, err := LoadConfig(writeConfig(
			"initial_capacity: 4096\nmax_capacity: 1048576\nstrict_eof: true\nskip_footer_check: true\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.InitialCapacity).To(Equal(4096))
		Expect(cfg.MaxCapacity).To(Equal(1048576))
		Expect(cfg.StrictEOF).To(BeTrue())
		Expect(cfg.framer()).To(Equal(&flv.Parser{SkipFooterCheck: true}))
	})

	It("loads an empty file as the zero value", func() {
		cfg, err := LoadConfig(writeConfig(""))
		Expect(err).ToNot(HaveOccurred())
		Expect(*cfg).To(Equal(Config{}))
	})

	It("rejects unknown fields", func() {
		_, err := LoadConfig(writeConfig("initial_capacity: 10\nbogus: 1\n"))
		Expect(err).To(HaveOccurred())
	})

	It("fails on a missing file", func() {
		_, err := LoadConfig(filepath.Join(tdir, "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})
})

type readerFunc func([]byte) (int, error)

func (fn readerFunc) Read(b []byte) (int, error) { return fn(b) }
