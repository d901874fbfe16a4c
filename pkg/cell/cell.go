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

// Package cell provides the stable, GC-managed handle that stands in for
// a raw shared-memory address in this STM runtime. The original STAMP
// sources pass pointers into TM_SHARED_READ_P/TM_SHARED_WRITE_P freely;
// a memory-safe target replaces the pointer with an arena-backed index or
// stable handle (see SPEC_FULL.md's Design Notes section), which is
// exactly what Cell is: every container field that must participate in
// conflict detection is a *Cell, never a bare Go pointer or value.
package cell

import "sync/atomic"

var nextID atomic.Uint64

// Cell is one transactionally-addressable word. Its Id selects the orec
// stripe that guards it; its current committed value lives in an
// atomic.Value so sequential (non-transactional) readers and the engine's
// post-commit publish step both observe it safely.
type Cell struct {
	id    uint64
	value atomic.Value

	// referenced and garbage implement the "isGarbage"/"isReferenced"
	// discipline from yada/element.c and labyrinth/grid.c: a container
	// may logically unlink a node while a concurrent transaction still
	// holds a reference to it, so the node is flagged rather than
	// actually freed until the allocator's free log releases it.
	referenced atomic.Int32
	garbage    atomic.Bool
}

// New allocates a fresh cell with an initial committed value.
func New(initial any) *Cell {
	c := &Cell{id: nextID.Add(1)}
	c.value.Store(box{v: initial})
	return c
}

// box wraps the payload so a nil initial value can still be stored in an
// atomic.Value, which otherwise panics on a nil interface.
type box struct {
	v any
}

// ID returns the cell's stable handle, used to select its orec stripe.
func (c *Cell) ID() uint64 {
	return c.id
}

// Load returns the cell's current committed value directly, bypassing the
// STM engine. Containers use this for their sequential (non-tm_) variants,
// matching spec.md's "sequential & transactional" duality in §4.F-§4.K.
func (c *Cell) Load() any {
	return c.value.Load().(box).v
}

// Store overwrites the cell's committed value directly. Only the engine's
// commit-publish step and sequential container operations call this; a
// transactional write must go through a write-set buffer instead.
func (c *Cell) Store(v any) {
	c.value.Store(box{v: v})
}

// MarkReferenced records that a transaction currently holds a reference
// to this cell, deferring its reclamation even after Retire.
func (c *Cell) MarkReferenced() {
	c.referenced.Add(1)
}

// Unreference releases a previously recorded reference.
func (c *Cell) Unreference() {
	c.referenced.Add(-1)
}

// Retire flags the cell as logically removed. It is safe to reclaim once
// Reclaimable reports true.
func (c *Cell) Retire() {
	c.garbage.Store(true)
}

// IsGarbage reports whether Retire has been called.
func (c *Cell) IsGarbage() bool {
	return c.garbage.Load()
}

// Reclaimable reports whether the cell is garbage and no transaction
// currently references it, i.e. it is safe to drop for real.
func (c *Cell) Reclaimable() bool {
	return c.garbage.Load() && c.referenced.Load() <= 0
}
