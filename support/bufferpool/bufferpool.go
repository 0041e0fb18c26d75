// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package bufferpool maintains pools of fixed-size byte slices.
package bufferpool

import (
	"sync"
	"sync/atomic"
)

// Pool maintains a pool of byte slices, all Size bytes long. It offers a new
// slice when one is unavailable.
//
// Pool is safe for concurrent use.
type Pool struct {
	// Size is the size of the slices in this pool.
	Size int

	base sync.Pool

	gets   int64
	allocs int64
}

// Get returns a slice of Size bytes, allocating one if none is available.
//
// The contents of the returned slice are undefined.
func (bp *Pool) Get() []byte {
	atomic.AddInt64(&bp.gets, 1)
	if v, ok := bp.base.Get().(*[]byte); ok {
		return *v
	}

	atomic.AddInt64(&bp.allocs, 1)
	return make([]byte, bp.Size)
}

// Put returns b to the pool for reuse.
//
// Slices that are not Size bytes long are not retained, and Put returns
// false. The caller must not use b after a successful Put.
func (bp *Pool) Put(b []byte) bool {
	if len(b) != bp.Size || bp.Size == 0 {
		return false
	}
	b = b[:bp.Size:bp.Size]
	bp.base.Put(&b)
	return true
}

// Stats returns the total number of Get calls, and the number of those that
// required an allocation.
func (bp *Pool) Stats() (gets, allocs int64) {
	return atomic.LoadInt64(&bp.gets), atomic.LoadInt64(&bp.allocs)
}
