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

// Package tvector is the growable-array container (spec.md §4.K):
// doubling growth, elements addressed by index. TmPushBack is the one
// container operation in this tree that grows through the
// transactional allocator (Txn.Alloc/Txn.Free) instead of a plain
// make(): growth allocates a replacement arena-backed slot through the
// enclosing transaction, copies the live elements across, and defers
// the old slot to the transaction's free log exactly as spec.md §4.K
// describes for tm_alloc-backed growth.
package tvector

import "github.com/stamprt/stamp/pkg/cell"

// elemStride is the notional per-element byte reservation requested
// from the arena on growth. Go elements are any, not raw bytes, so
// this does not back real storage (that lives in vecData.elems); it
// sizes the arena request so growth still exercises size-class
// accounting the way every other arena consumer does.
const elemStride = 16

// Vector is the sequential growable array.
type Vector struct {
	elems []any
}

// New creates an empty vector.
func New() *Vector { return &Vector{} }

// Len returns the number of elements.
func (v *Vector) Len() int { return len(v.elems) }

// At returns the element at index i.
func (v *Vector) At(i int) any { return v.elems[i] }

// Set overwrites the element at index i.
func (v *Vector) Set(i int, val any) { v.elems[i] = val }

// PushBack appends val, growing the backing array if necessary.
func (v *Vector) PushBack(val any) { v.elems = append(v.elems, val) }

// PopBack removes and returns the last element, or false if empty.
func (v *Vector) PopBack() (any, bool) {
	n := len(v.elems)
	if n == 0 {
		return nil, false
	}
	val := v.elems[n-1]
	v.elems = v.elems[:n-1]
	return val, true
}

// vecData is the transactional vector's payload: the live elements
// plus a handle to the arena-backed cell currently reserved for this
// capacity, kept only so growth can hand it to Txn.Free.
type vecData struct {
	elems []any
	raw   *cell.Cell
}

// txn is the minimal surface TmVector needs from *stamp.Txn.
type txn interface {
	Read(c *cell.Cell) any
	Write(c *cell.Cell, v any)
	Alloc(n int) *cell.Cell
	Free(c *cell.Cell)
}

// TmVector is the transactional growable array.
type TmVector struct {
	data *cell.Cell // holds *vecData
}

// NewTm creates an empty transactional vector.
func NewTm() *TmVector {
	return &TmVector{data: cell.New(&vecData{})}
}

// TmLen is TM_SIZE.
func (v *TmVector) TmLen(tx txn) int {
	return len(tx.Read(v.data).(*vecData).elems)
}

// TmAt is TM_AT.
func (v *TmVector) TmAt(tx txn, i int) any {
	return tx.Read(v.data).(*vecData).elems[i]
}

// TmSet is TM_SET: overwrites the element at index i. The elements are
// copied into a fresh slice with index i replaced and published through
// Write, so the change is visible only at commit; the arena slot is
// kept as it is.
func (v *TmVector) TmSet(tx txn, i int, val any) {
	d := tx.Read(v.data).(*vecData)
	next := make([]any, len(d.elems))
	copy(next, d.elems)
	next[i] = val
	tx.Write(v.data, &vecData{elems: next, raw: d.raw})
}

// TmPushBack is TM_PUSH_BACK. When the current slot is full, it
// allocates a doubled replacement through Txn.Alloc, copies the live
// elements across, and defers the old slot to the transaction's free
// log via Txn.Free; the append and the growth publish together in one
// Write so a retried attempt never observes a partially grown vector.
func (v *TmVector) TmPushBack(tx txn, val any) {
	d := tx.Read(v.data).(*vecData)
	n := len(d.elems)
	capNow := cap(d.elems)

	raw, capNext := d.raw, capNow
	if n == capNow {
		capNext = capNow * 2
		if capNext == 0 {
			capNext = 4
		}
		newRaw := tx.Alloc(capNext * elemStride)
		if d.raw != nil {
			tx.Free(d.raw)
		}
		raw = newRaw
	}

	// Always publish a freshly built slice rather than appending onto
	// d.elems in place: d is the value currently visible to any other
	// transaction that has already read this cell, and mutating its
	// backing array would leak this attempt's effects before commit.
	next := make([]any, n+1, capNext)
	copy(next, d.elems)
	next[n] = val

	tx.Write(v.data, &vecData{elems: next, raw: raw})
}

// TmPopBack is TM_POP_BACK.
func (v *TmVector) TmPopBack(tx txn) (any, bool) {
	d := tx.Read(v.data).(*vecData)
	n := len(d.elems)
	if n == 0 {
		return nil, false
	}
	val := d.elems[n-1]
	next := &vecData{elems: d.elems[:n-1], raw: d.raw}
	tx.Write(v.data, next)
	return val, true
}
