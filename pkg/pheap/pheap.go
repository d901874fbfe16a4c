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

// Package pheap is the priority heap container (spec.md §4.H): an
// array-backed binary heap ordered by a user comparator, the way the
// teacher hand-rolls container/heap.Interface twice already
// (pkg/kway.Heap for k-way merge, pkg/watermark.lowHeap for its mark
// tracker) instead of reaching for a generic heap package. This one
// generalizes that shape to an arbitrary Cmp instead of a hardcoded
// key compare.
package pheap

import "container/heap"

// Cmp reports a negative, zero, or positive value as a orders before,
// the same as, or after b.
type Cmp func(a, b any) int

type slice struct {
	cmp  Cmp
	data []any
}

func (s *slice) Len() int            { return len(s.data) }
func (s *slice) Less(i, j int) bool  { return s.cmp(s.data[i], s.data[j]) < 0 }
func (s *slice) Swap(i, j int)       { s.data[i], s.data[j] = s.data[j], s.data[i] }
func (s *slice) Push(x any)          { s.data = append(s.data, x) }
func (s *slice) Pop() any {
	curr := s.data
	n := len(curr)
	e := curr[n-1]
	s.data = curr[:n-1]
	return e
}

// Heap is the sequential (non-transactional) priority heap, built on
// container/heap the way the teacher's two hand-rolled Interface
// satisfiers are ordinarily driven.
type Heap struct {
	s *slice
}

// New creates an empty heap ordered by cmp.
func New(cmp Cmp) *Heap {
	return &Heap{s: &slice{cmp: cmp}}
}

// Len returns the number of elements in the heap.
func (h *Heap) Len() int { return h.s.Len() }

// Push inserts v.
func (h *Heap) Push(v any) { heap.Push(h.s, v) }

// Pop removes and returns the minimum element, or false if the heap is
// empty.
func (h *Heap) Pop() (any, bool) {
	if h.s.Len() == 0 {
		return nil, false
	}
	return heap.Pop(h.s), true
}

// Peek returns the minimum element without removing it.
func (h *Heap) Peek() (any, bool) {
	if h.s.Len() == 0 {
		return nil, false
	}
	return h.s.data[0], true
}
