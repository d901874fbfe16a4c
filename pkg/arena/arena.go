// Copyright 2024 BINARY Members
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package arena implements the thread-local bump allocator described in
// spec.md §4.D: "a thread-local arena may back small requests ... a bump
// allocator per thread with a per-block growth factor". It is the Go
// analog of original_source/lib/memory.c's pool/block allocator
// (allocPool/addBlockToPool/getMemoryFromPool), restructured around
// sync.Pool size classes the way the teacher's pkg/bufferpool reuses
// *bytes.Buffer, plus a bounded LRU of those size-class pools so an
// arena that sees many distinct allocation sizes does not retain one
// pool per size forever.
package arena

import (
	"strconv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

const minClass = 64

// Arena is a bump allocator. Each worker gets its own, torn down when
// the worker exits; the runtime's default arena is shared by every
// caller of Runtime.Atomically. Alloc and Free are safe for concurrent
// use.
type Arena struct {
	blockSize int
	growth    int

	mu    sync.Mutex
	block []byte
	off   int

	pools     *lru.Cache
	growGroup singleflight.Group

	allocated atomic.Int64
}

// New creates an arena with the given initial block size and per-block
// growth factor (lib/memory.c's initBlockCapacity and blockGrowthFactor).
func New(blockSize, growthFactor int) *Arena {
	if blockSize <= 0 {
		blockSize = 64 * 1024
	}
	if growthFactor <= 1 {
		growthFactor = 2
	}
	pools, err := lru.New(64)
	if err != nil {
		panic(err)
	}
	return &Arena{blockSize: blockSize, growth: growthFactor, pools: pools}
}

// Allocated reports the number of bytes currently handed out and not yet
// returned via Free, used by Scenario S4-style tests to verify that
// repeated alloc/abort cycles do not leak.
func (a *Arena) Allocated() int64 {
	return a.allocated.Load()
}

// Alloc returns a byte slice of length n backed by this arena. The slice
// may come from a freed block's size-class pool or from a fresh bump
// allocation.
func (a *Arena) Alloc(n int) []byte {
	if n <= 0 {
		return nil
	}
	class := sizeClass(n)

	if pool := a.poolFor(class); pool != nil {
		if v := pool.Get(); v != nil {
			buf := v.([]byte)
			a.allocated.Add(int64(n))
			return buf[:n]
		}
	}

	// Pool miss: bump-allocate from the current block, growing it first
	// if there isn't enough room left.
	for {
		if buf, ok := a.tryBump(class); ok {
			a.allocated.Add(int64(n))
			return buf[:n]
		}
		a.ensureRoom(class)
	}
}

// tryBump hands out the next class bytes of the current block, or
// reports false if the block doesn't have room.
func (a *Arena) tryBump(class int) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.block == nil || len(a.block)-a.off < class {
		return nil, false
	}
	buf := a.block[a.off : a.off+class : a.off+class]
	a.off += class
	return buf, true
}

// ensureRoom grows the current block so it has at least class bytes free.
// Concurrent callers racing to grow for the same size class coalesce into
// a single make(), matching lib/memory.c's addBlockToPool being called
// once per exhaustion rather than once per allocation.
func (a *Arena) ensureRoom(class int) {
	_, _, _ = a.growGroup.Do(strconv.Itoa(class), func() (any, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.block != nil && len(a.block)-a.off >= class {
			// another goroutine already grew the block while we waited
			// for the singleflight slot.
			return nil, nil
		}
		size := a.blockSize
		for size < class {
			size *= a.growth
		}
		a.block = make([]byte, size)
		a.off = 0
		return nil, nil
	})
}

// Free returns a slice previously obtained from Alloc to its size-class
// pool for reuse. It never shrinks the arena's underlying blocks.
func (a *Arena) Free(buf []byte) {
	if buf == nil {
		return
	}
	a.allocated.Add(-int64(len(buf)))
	class := cap(buf)
	if pool := a.poolFor(class); pool != nil {
		pool.Put(buf[:0:class])
	}
}

func (a *Arena) poolFor(class int) *sync.Pool {
	if v, ok := a.pools.Get(class); ok {
		return v.(*sync.Pool)
	}
	p := new(sync.Pool)
	a.pools.Add(class, p)
	return p
}

func sizeClass(n int) int {
	c := minClass
	for c < n {
		c *= 2
	}
	return c
}
