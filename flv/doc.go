// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package flv decodes the FLV container format.
//
// An FLV stream consists of a file header followed by a sequence of tags:
//
//	Header:  "FLV" | version (1) | flags (1) | header length (4, BE)
//	         previous tag size (4, BE, always 0)
//	Tag:     type (1) | data size (3, BE) | timestamp (3, BE)
//	         timestamp extension (1) | stream ID (3, BE)
//	         data (data size bytes)
//	         previous tag size (4, BE, data size + 11)
//
// The Parser operates on a window of bytes that may hold less than a full
// header or tag. When it does, the Parser returns ErrIncomplete and consumes
// nothing; the caller is expected to obtain more bytes and retry with a
// larger window.
//
// Tags produced by the Parser borrow the window that they were parsed from.
// A Tag must be cloned (Tag.Clone) before that window is modified.
package flv
