// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package demux

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/danjacques/goflv/flv"
	"github.com/danjacques/goflv/flv/flvtest"
	"github.com/danjacques/goflv/support/bufferpool"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Session", func() {
	audio := flvtest.AudioTag(0, flvtest.Payload(10, 1))
	video := flvtest.VideoTag(0x01000028, flvtest.Payload(25, 2))
	video.StreamID = 0x000102
	stream := flvtest.Stream(audio, video)

	expectTwoRecords := func(tags []*flv.Tag) {
		Expect(tags).To(HaveLen(2))

		Expect(tags[0].Header).To(Equal(flv.TagHeader{
			Type:      flv.TagAudio,
			DataSize:  11,
			Timestamp: 0,
			StreamID:  0,
		}))
		Expect(tags[0].Data).To(Equal(audio.Data))
		Expect(tags[0].Audio).ToNot(BeNil())
		Expect(tags[0].Audio.SoundFormat).To(Equal(flv.SoundAAC))

		Expect(tags[1].Header).To(Equal(flv.TagHeader{
			Type:      flv.TagVideo,
			DataSize:  26,
			Timestamp: 0x01000028,
			StreamID:  0x000102,
		}))
		Expect(tags[1].Data).To(Equal(video.Data))
		Expect(tags[1].Video).ToNot(BeNil())
		Expect(tags[1].Video.CodecID).To(Equal(flv.CodecH264))
	}

	Context("with a well-formed two-record stream", func() {
		It("emits both records in order, then finishes", func() {
			s := New(bytes.NewReader(stream), nil)
			defer s.Close()

			var tags []*flv.Tag
			for i := 0; i < 2; i++ {
				tag, err := s.Next()
				Expect(err).ToNot(HaveOccurred())
				Expect(s.State()).To(Equal(StateEmitting))
				tags = append(tags, tag)
			}
			expectTwoRecords(tags)

			By("finishing with a count of 2")
			_, err := s.Next()
			Expect(err).To(Equal(io.EOF))
			Expect(s.State()).To(Equal(StateDone))
			Expect(s.Count()).To(Equal(int64(2)))
			Expect(s.Consumed()).To(Equal(int64(len(stream))))
			Expect(s.Truncated()).To(Equal(0))
			Expect(s.Err()).ToNot(HaveOccurred())

			By("remaining done on subsequent calls")
			for i := 0; i < 3; i++ {
				_, err := s.Next()
				Expect(err).To(Equal(io.EOF))
			}
		})

		It("decodes the file header", func() {
			s := New(bytes.NewReader(stream), nil)
			defer s.Close()
			Expect(s.Header()).To(BeNil())

			_, err := s.Next()
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Header()).To(Equal(&flv.Header{Version: 1, Audio: true, Video: true, DataOffset: 9}))
		})

		It("parses buffered records before reading again", func() {
			cr := &flvtest.ChunkReader{R: bytes.NewReader(stream), Size: len(stream)}
			s := New(cr, nil)
			defer s.Close()

			tags, err := drain(s)
			Expect(err).ToNot(HaveOccurred())
			expectTwoRecords(tags)

			// One read for the whole stream, one to observe its end.
			Expect(cr.Reads).To(Equal(2))
		})

		DescribeTable("produces identical results regardless of read and buffer sizes",
			func(chunk, capacity int) {
				s := newChunkedSession(stream, chunk, &Config{InitialCapacity: capacity})
				defer s.Close()

				tags, err := drain(s)
				Expect(err).ToNot(HaveOccurred())
				expectTwoRecords(tags)
				Expect(s.Consumed()).To(Equal(int64(len(stream))))
				Expect(s.Count()).To(Equal(int64(2)))
			},
			Entry("byte-at-a-time, tiny buffer", 1, 1),
			Entry("byte-at-a-time, default buffer", 1, 0),
			Entry("odd chunks, small buffer", 7, 5),
			Entry("chunks larger than the buffer", 64, 8),
			Entry("buffer exactly one header", 3, flv.HeaderSize+flv.PreviousTagSizeLen),
		)
	})

	Context("with many records and a small buffer", func() {
		var (
			specs  []flvtest.TagSpec
			stream []byte
		)

		BeforeEach(func() {
			specs = nil
			for i := 0; i < 200; i++ {
				if i%2 == 0 {
					specs = append(specs, flvtest.AudioTag(uint32(i), flvtest.Payload(1+i%17, byte(i))))
				} else {
					specs = append(specs, flvtest.VideoTag(uint32(i), flvtest.Payload(3+i%29, byte(i))))
				}
			}
			stream = flvtest.Stream(specs...)
		})

		It("accounts for every byte and keeps the buffer bounded", func() {
			s := newChunkedSession(stream, 13, &Config{InitialCapacity: 64})
			defer s.Close()

			// The header is consumed along with the first record.
			prev := int64(len(flvtest.Header()))
			for {
				tag, err := s.Next()
				if err == io.EOF {
					break
				}
				Expect(err).ToNot(HaveOccurred())
				Expect(s.Consumed() - prev).To(Equal(int64(tag.Header.Span())))
				prev = s.Consumed()

				// The largest tag spans 11+32+4 bytes; a 64-byte buffer may need to
				// double once, but never more.
				Expect(s.buf.Cap()).To(BeNumerically("<=", 128))
			}

			Expect(prev).To(Equal(int64(len(stream))))
			Expect(s.Count()).To(Equal(int64(len(specs))))
		})

		It("returns records that are unaffected by later buffer reuse", func() {
			s := newChunkedSession(stream, 5, &Config{InitialCapacity: 16})
			defer s.Close()

			tags, err := drain(s)
			Expect(err).ToNot(HaveOccurred())
			Expect(tags).To(HaveLen(len(specs)))
			for i, tag := range tags {
				Expect(tag.Data).To(Equal(specs[i].Data), "record #%d", i)
				Expect(tag.Header.Timestamp).To(Equal(uint32(i)))
			}
		})
	})

	It("materialized records survive mutation and growth of the buffer", func() {
		s := New(bytes.NewReader(stream), &Config{InitialCapacity: 256})
		defer s.Close()

		tag, err := s.Next()
		Expect(err).ToNot(HaveOccurred())

		// Scribble over the entire backing store, then reallocate it.
		s.buf.Shift()
		for _, region := range [][]byte{s.buf.ReadableRegion(), s.buf.WritableRegion()} {
			for i := range region {
				region[i] = 0xFF
			}
		}
		s.buf.Grow(s.buf.Cap() * 2)

		Expect(tag.Data).To(Equal(audio.Data))
		Expect(tag.Audio.SoundData).To(Equal(audio.Data[1:]))
	})

	It("returns records that survive reuse of a pooled buffer", func() {
		pool := bufferpool.Pool{Size: 512}

		s := New(bytes.NewReader(stream), &Config{BufferPool: &pool})
		first, err := drain(s)
		Expect(err).ToNot(HaveOccurred())
		Expect(s.buf.Cap()).To(Equal(512))
		Expect(s.Close()).To(Succeed())

		other := flvtest.Stream(
			flvtest.AudioTag(7, flvtest.Payload(10, 0xC0)),
			flvtest.VideoTag(8, flvtest.Payload(25, 0xD0)),
		)
		s = New(bytes.NewReader(other), &Config{BufferPool: &pool})
		defer s.Close()
		second, err := drain(s)
		Expect(err).ToNot(HaveOccurred())
		Expect(second).To(HaveLen(2))

		expectTwoRecords(first)
		gets, _ := pool.Stats()
		Expect(gets).To(Equal(int64(2)))
	})

	Context("when the final record is truncated", func() {
		// Drop the final footer and the last payload byte.
		truncated := stream[:len(stream)-flv.PreviousTagSizeLen-1]
		partialSize := flv.TagHeaderSize + len(video.Data) - 1

		It("drops the truncated record and reports the prior count", func() {
			framer := &countingFramer{}
			s := newChunkedSession(truncated, 4, &Config{Framer: framer})
			defer s.Close()

			tags, err := drain(s)
			Expect(err).ToNot(HaveOccurred())
			Expect(tags).To(HaveLen(1))
			Expect(tags[0].Header.Type).To(Equal(flv.TagAudio))

			Expect(s.State()).To(Equal(StateDone))
			Expect(s.Count()).To(Equal(int64(1)))
			Expect(s.Truncated()).To(Equal(partialSize))
			Expect(framer.incomplete).To(BeNumerically(">", 1))
		})

		It("fails in strict mode, still reporting the prior count", func() {
			s := New(bytes.NewReader(truncated), &Config{StrictEOF: true})
			defer s.Close()

			tags, err := drain(s)
			Expect(tags).To(HaveLen(1))
			Expect(IsKind(err, KindTruncated)).To(BeTrue())
			Expect(AsError(err).Phase).To(Equal(PhaseRecord))
			Expect(AsError(err).Offset).To(Equal(int64(len(flvtest.Header()) + len(flvtest.Tag(audio)))))
			Expect(s.Count()).To(Equal(int64(1)))
		})
	})

	Context("with a malformed header", func() {
		corrupt := append([]byte(nil), stream...)
		corrupt[0] = 'X'

		It("fails immediately with zero records", func() {
			s := New(bytes.NewReader(corrupt), nil)
			defer s.Close()

			_, err := s.Next()
			Expect(IsKind(err, KindMalformed)).To(BeTrue())

			e := AsError(err)
			Expect(e.Phase).To(Equal(PhaseHeader))
			Expect(e.Offset).To(Equal(int64(0)))
			Expect(errors.Cause(err)).To(BeAssignableToTypeOf(&flv.SyntaxError{}))
			Expect(s.Count()).To(Equal(int64(0)))
			Expect(s.State()).To(Equal(StateFailed))

			By("returning the same error on subsequent calls")
			_, again := s.Next()
			Expect(again).To(BeIdenticalTo(err))
		})
	})

	It("fails on a malformed record, reporting its stream offset", func() {
		bad := flvtest.Tag(flvtest.TagSpec{Type: flv.TagType(7), Data: []byte{1}})
		first := flvtest.Tag(audio)
		input := bytes.Join([][]byte{flvtest.Header(), first, bad}, nil)

		s := newChunkedSession(input, 3, nil)
		defer s.Close()

		tags, err := drain(s)
		Expect(tags).To(HaveLen(1))
		Expect(IsKind(err, KindMalformed)).To(BeTrue())
		Expect(AsError(err).Phase).To(Equal(PhaseRecord))
		Expect(AsError(err).Offset).To(Equal(int64(len(flvtest.Header()) + len(first))))
		Expect(s.Count()).To(Equal(int64(1)))
	})

	It("fails on a mismatched footer unless footer checks are skipped", func() {
		spec := flvtest.AudioTag(0, []byte{1, 2})
		spec.BadFooter = true
		input := flvtest.Stream(spec)

		s := New(bytes.NewReader(input), nil)
		_, err := s.Next()
		Expect(IsKind(err, KindMalformed)).To(BeTrue())
		Expect(AsError(err).Offset).To(Equal(int64(len(flvtest.Header()) + flv.TagHeaderSize + 3)))
		Expect(s.Close()).To(Succeed())

		s = New(bytes.NewReader(input), &Config{SkipFooterCheck: true})
		defer s.Close()
		tags, err := drain(s)
		Expect(err).ToNot(HaveOccurred())
		Expect(tags).To(HaveLen(1))
	})

	It("fails when the source fails, keeping the prior count", func() {
		failure := errors.New("disk on fire")
		r := &flvtest.ErrorReader{
			Data: flvtest.Stream(audio),
			Err:  failure,
		}
		s := New(r, nil)
		defer s.Close()

		tags, err := drain(s)
		Expect(tags).To(HaveLen(1))
		Expect(IsKind(err, KindSourceRead)).To(BeTrue())
		Expect(AsError(err).Phase).To(Equal(PhaseRead))
		Expect(errors.Cause(err)).To(Equal(failure))
		Expect(s.Count()).To(Equal(int64(1)))
	})

	It("fails when a record exceeds the capacity limit", func() {
		input := flvtest.Stream(flvtest.AudioTag(0, flvtest.Payload(64, 0)))
		s := New(bytes.NewReader(input), &Config{InitialCapacity: 16, MaxCapacity: 32})
		defer s.Close()

		_, err := s.Next()
		Expect(IsKind(err, KindCapacity)).To(BeTrue())
		Expect(AsError(err).Phase).To(Equal(PhaseRecord))
		Expect(s.buf.Cap()).To(Equal(32))
	})

	DescribeTable("reclaims consumed space in a buffer at its capacity limit",
		func(chunk int) {
			// 13 header bytes plus a 60-byte record overflow a 64-byte buffer
			// unless the header is shifted out.
			input := flvtest.Stream(flvtest.AudioTag(0, flvtest.Payload(44, 0)))
			s := newChunkedSession(input, chunk, &Config{InitialCapacity: 64, MaxCapacity: 64})
			defer s.Close()

			tags, err := drain(s)
			Expect(err).ToNot(HaveOccurred())
			Expect(tags).To(HaveLen(1))
			Expect(tags[0].Header.Span()).To(Equal(60))
			Expect(s.Consumed()).To(Equal(int64(len(input))))
			Expect(s.buf.Cap()).To(Equal(64))
		},
		Entry("single read", len(flvtest.Header())+60),
		Entry("small reads", 7),
	)

	It("allocates its own buffer when the pool hands out empty stores", func() {
		pool := bufferpool.Pool{}
		s := New(bytes.NewReader(stream), &Config{BufferPool: &pool})
		defer s.Close()
		Expect(s.buf.Cap()).To(Equal(DefaultInitialCapacity))

		tags, err := drain(s)
		Expect(err).ToNot(HaveOccurred())
		expectTwoRecords(tags)
		Expect(s.State()).To(Equal(StateDone))
	})

	It("fails on an oversized header length, reporting the length field", func() {
		input := append([]byte(nil), stream...)
		binary.BigEndian.PutUint32(input[5:9], 0xFFFFFFFF)
		s := New(bytes.NewReader(input), nil)
		defer s.Close()

		_, err := s.Next()
		Expect(IsKind(err, KindMalformed)).To(BeTrue())
		Expect(AsError(err).Phase).To(Equal(PhaseHeader))
		Expect(AsError(err).Offset).To(Equal(int64(5)))
		Expect(s.Consumed()).To(Equal(int64(0)))
	})

	It("grows without limit when MaxCapacity is negative", func() {
		input := flvtest.Stream(flvtest.AudioTag(0, flvtest.Payload(300, 0)))
		s := New(bytes.NewReader(input), &Config{InitialCapacity: 16, MaxCapacity: -1})
		defer s.Close()

		tags, err := drain(s)
		Expect(err).ToNot(HaveOccurred())
		Expect(tags).To(HaveLen(1))
		Expect(s.buf.Cap()).To(Equal(512))
	})

	It("fails on an empty source", func() {
		s := New(bytes.NewReader(nil), nil)
		defer s.Close()

		_, err := s.Next()
		Expect(IsKind(err, KindTruncated)).To(BeTrue())
		Expect(AsError(err).Phase).To(Equal(PhaseHeader))
	})

	It("finishes with zero records for a header-only stream", func() {
		s := New(bytes.NewReader(flvtest.Header()), nil)
		defer s.Close()

		_, err := s.Next()
		Expect(err).To(Equal(io.EOF))
		Expect(s.Count()).To(Equal(int64(0)))
		Expect(s.Header()).ToNot(BeNil())
	})

	Context("Close", func() {
		It("closes the source once, and fails subsequent calls", func() {
			ct := &closeTracker{Reader: bytes.NewReader(stream)}
			s := New(ct, nil)

			_, err := s.Next()
			Expect(err).ToNot(HaveOccurred())

			Expect(s.Close()).To(Succeed())
			Expect(s.Close()).To(Succeed())
			Expect(ct.closed).To(Equal(1))

			_, err = s.Next()
			Expect(err).To(Equal(ErrClosed))
			Expect(s.Count()).To(Equal(int64(1)))
		})

		It("preserves a terminal result", func() {
			s := New(bytes.NewReader(stream), nil)
			_, err := drain(s)
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Close()).To(Succeed())

			_, err = s.Next()
			Expect(err).To(Equal(io.EOF))
		})
	})
})
