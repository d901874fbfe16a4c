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

package pheap

import "github.com/stamprt/stamp/pkg/cell"

// txn is the minimal surface TmHeap needs from *stamp.Txn.
type txn interface {
	Read(c *cell.Cell) any
	Write(c *cell.Cell, v any)
}

// TmHeap is the transactional priority heap: a fixed-capacity array of
// *cell.Cell slots, each one its own cell, so conflicts on slots are
// tracked per slot rather than for the whole array (distinct cells can
// still share an orec stripe, and every push and pop reads and writes
// the shared size cell). Sift-up/down swap the stored values between two slots
// rather than swapping cell identities, keeping every slot's stripe
// assignment stable for the heap's lifetime.
type TmHeap struct {
	cmp   Cmp
	slots []*cell.Cell // holds any; unused slots hold nil
	size  *cell.Cell   // holds int
}

// NewTm creates an empty transactional heap with room for up to
// capacity elements, ordered by cmp.
func NewTm(capacity int, cmp Cmp) *TmHeap {
	slots := make([]*cell.Cell, capacity)
	for i := range slots {
		slots[i] = cell.New(nil)
	}
	return &TmHeap{cmp: cmp, slots: slots, size: cell.New(0)}
}

// TmLen is TM_SIZE.
func (h *TmHeap) TmLen(tx txn) int {
	return tx.Read(h.size).(int)
}

// TmPush is TM_PUSH. It reports false if the heap is already at
// capacity instead of growing, since every slot's cell identity (and
// therefore its orec stripe) is fixed at construction.
func (h *TmHeap) TmPush(tx txn, v any) bool {
	n := tx.Read(h.size).(int)
	if n >= len(h.slots) {
		return false
	}
	tx.Write(h.slots[n], v)
	tx.Write(h.size, n+1)
	h.siftUp(tx, n)
	return true
}

// TmPop is TM_POP: removes and returns the minimum element.
func (h *TmHeap) TmPop(tx txn) (any, bool) {
	n := tx.Read(h.size).(int)
	if n == 0 {
		return nil, false
	}
	top := tx.Read(h.slots[0])
	last := tx.Read(h.slots[n-1])
	tx.Write(h.slots[0], last)
	tx.Write(h.slots[n-1], nil)
	tx.Write(h.size, n-1)
	if n > 1 {
		h.siftDown(tx, 0, n-1)
	}
	return top, true
}

// TmPeek is TM_PEEK.
func (h *TmHeap) TmPeek(tx txn) (any, bool) {
	if tx.Read(h.size).(int) == 0 {
		return nil, false
	}
	return tx.Read(h.slots[0]), true
}

func (h *TmHeap) less(tx txn, i, j int) bool {
	return h.cmp(tx.Read(h.slots[i]), tx.Read(h.slots[j])) < 0
}

func (h *TmHeap) swap(tx txn, i, j int) {
	vi := tx.Read(h.slots[i])
	vj := tx.Read(h.slots[j])
	tx.Write(h.slots[i], vj)
	tx.Write(h.slots[j], vi)
}

func (h *TmHeap) siftUp(tx txn, i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(tx, i, parent) {
			break
		}
		h.swap(tx, i, parent)
		i = parent
	}
}

func (h *TmHeap) siftDown(tx txn, i, n int) {
	for {
		left := 2*i + 1
		right := 2*i + 2
		smallest := i
		if left < n && h.less(tx, left, smallest) {
			smallest = left
		}
		if right < n && h.less(tx, right, smallest) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.swap(tx, i, smallest)
		i = smallest
	}
}
