// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package demux incrementally demultiplexes an FLV stream.
//
// A Session pulls bytes from an io.Reader of unknown length into a sliding
// buffer, and repeatedly offers the buffer's unread window to a Framer. The
// Framer parses directly out of the window, without copying. When it finds a
// complete tag, the Session materializes the tag into storage of its own,
// consumes its bytes from the buffer, and returns it to the caller. When the
// window holds only part of a tag, the Session reads more data, relocating or
// growing its buffer only when the buffer is full.
//
// A Session is driven by calls to Next:
//
//	s := demux.New(r, nil)
//	defer s.Close()
//	for {
//		tag, err := s.Next()
//		if err == io.EOF {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		...
//	}
//
// Alternatively, Run drives a Session on its own goroutine and hands each tag
// to a callback.
package demux
