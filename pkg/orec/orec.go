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

// Package orec implements the TL2-style ownership records that back the
// STM engine: a fixed-size, process-wide table of versioned locks and the
// single global version clock transactions sample at begin and publish to
// at commit.
//
// An Orec packs a 63-bit version counter and a 1-bit lock flag into a
// single uint64 so every operation is a single atomic load/CAS. The table
// is striped: many cell ids hash to the same Orec, so conflicts are
// detected conservatively at stripe granularity, never at finer
// granularity than one word.
package orec

import (
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

const lockedBit = uint64(1) << 63

const versionMask = lockedBit - 1

// Orec is a versioned write lock: bit 63 is the locked flag, bits 0-62 are
// the version at which the covered stripe was last published.
type Orec struct {
	word atomic.Uint64
}

// Load returns whether the orec is currently locked and its version.
func (o *Orec) Load() (locked bool, version uint64) {
	v := o.word.Load()
	return v&lockedBit != 0, v & versionMask
}

// TryLock attempts to acquire the orec via CAS, failing if it is already
// locked by another transaction. The version is left untouched.
func (o *Orec) TryLock() bool {
	v := o.word.Load()
	if v&lockedBit != 0 {
		return false
	}
	return o.word.CompareAndSwap(v, v|lockedBit)
}

// Unlock releases the orec and publishes a new version, as commit does
// after writing the guarded word.
func (o *Orec) Unlock(version uint64) {
	v := o.word.Load()
	if v&lockedBit == 0 {
		panic("orec: unlock of unlocked orec")
	}
	o.word.Store(version & versionMask)
}

// UnlockKeepVersion releases the orec without changing its version, used
// when a commit attempt aborts after acquiring some locks.
func (o *Orec) UnlockKeepVersion() {
	_, version := o.Load()
	o.word.Store(version)
}

// Table is the process-wide, fixed-size array of orecs. Many cell ids map
// to the same orec (a stripe); the table never grows, matching spec.md's
// "fixed-size array of orecs indexed by the high bits of the address".
type Table struct {
	orecs []Orec
	mask  uint64
}

// NewTable allocates a table with size slots, rounded up to the next power
// of two so stripe selection is a mask instead of a modulo.
func NewTable(size int) *Table {
	if size <= 0 {
		size = 1 << 20
	}
	n := 1
	for n < size {
		n <<= 1
	}
	return &Table{
		orecs: make([]Orec, n),
		mask:  uint64(n - 1),
	}
}

// Size returns the number of stripes in the table.
func (t *Table) Size() int {
	return len(t.orecs)
}

// Of returns the orec covering the stripe for id, a cell's stable handle.
func (t *Table) Of(id uint64) *Orec {
	return &t.orecs[id&t.mask]
}

// StripeHash hashes an arbitrary byte key into a stripe id with murmur3,
// for callers that need a deterministic, user-independent id for keys
// that do not otherwise have one. No package in this module calls it;
// pkg/hashtable's DefaultHash calls murmur3.Sum64 directly.
func StripeHash(key []byte) uint64 {
	return murmur3.Sum64(key)
}

// Clock is the single global version clock: rv is sampled at begin, wv is
// assigned by fetch-and-increment at commit.
type Clock struct {
	v atomic.Uint64
}

// Load returns the current clock value without advancing it (used as rv).
func (c *Clock) Load() uint64 {
	return c.v.Load()
}

// IncrementAndLoad advances the clock and returns the new value (used to
// assign wv at commit). The returned value is unique across all callers.
func (c *Clock) IncrementAndLoad() uint64 {
	return c.v.Add(1)
}
