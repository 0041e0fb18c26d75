// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package fmtutil contains formatting helpers.
package fmtutil

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex is a byte slice that renders as a hex-dumped string.
//
// It can be passed to a logger for lazy hex dumping; the dump is only built
// if the log line is actually emitted.
type Hex []byte

func (h Hex) String() string { return hex.Dump([]byte(h)) }

// HexHead returns a Hex covering at most the first n bytes of b.
func HexHead(b []byte, n int) Hex {
	if len(b) > n {
		b = b[:n]
	}
	return Hex(b)
}

// HexSlice is a byte slice that renders as a sequence of hex bytes, instead of
// the default decimal bytes.
//
// Output as: "[3]byte{0x46, 0x4C, 0x56}"
type HexSlice []byte

func (hs HexSlice) String() string {
	var sb strings.Builder
	sb.Grow((6 * len(hs)) + 16)
	fmt.Fprintf(&sb, "[%d]byte{", len(hs))
	for i, b := range hs {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "0x%02X", b)
	}
	sb.WriteString("}")
	return sb.String()
}

// ByteSize renders a byte count with a binary unit suffix.
type ByteSize int64

func (bs ByteSize) String() string {
	const unit = 1024
	v := int64(bs)
	if v < unit {
		return fmt.Sprintf("%dB", v)
	}

	div, exp := int64(unit), 0
	for n := v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(v)/float64(div), "KMGTPE"[exp])
}
