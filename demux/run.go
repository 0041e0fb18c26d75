// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package demux

import (
	"context"
	"io"

	"github.com/danjacques/goflv/flv"

	"golang.org/x/sync/errgroup"
)

// Run drains s on a producer goroutine, handing each record to fn on a
// consumer goroutine.
//
// Records are passed through an unbuffered channel, so the producer does not
// read further than one record ahead of fn. fn is called sequentially, in
// stream order.
//
// Run returns nil once the stream has been drained. Otherwise, it returns the
// first of: the session's error, an error returned by fn, or c's error. Run
// does not close s.
func Run(c context.Context, s *Session, fn func(*flv.Tag) error) error {
	eg, c := errgroup.WithContext(c)
	tagC := make(chan *flv.Tag)

	eg.Go(func() error {
		defer close(tagC)

		for {
			if err := c.Err(); err != nil {
				return err
			}

			tag, err := s.Next()
			switch err {
			case nil:
			case io.EOF:
				return nil
			default:
				return err
			}

			select {
			case tagC <- tag:
			case <-c.Done():
				return c.Err()
			}
		}
	})

	eg.Go(func() error {
		for tag := range tagC {
			if err := fn(tag); err != nil {
				return err
			}
		}
		return nil
	})

	return eg.Wait()
}
