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

// Package tlist is the sorted singly-linked list container (spec.md
// §4.J): nodes ordered by a user comparator, the transactional variant
// threading every next pointer through a *cell.Cell so a traversal
// started mid-transaction is conflict-detected against any concurrent
// mutation of the chain it actually walked.
package tlist

import "github.com/stamprt/stamp/pkg/cell"

// Less reports whether a orders strictly before b.
type Less func(a, b any) bool

type node struct {
	value any
	next  *node
}

// List is the sequential sorted singly-linked list.
type List struct {
	less Less
	head *node
	size int
}

// New creates an empty list ordered by less.
func New(less Less) *List {
	return &List{less: less}
}

// Size returns the number of elements.
func (l *List) Size() int { return l.size }

// Insert adds v at its sorted position.
func (l *List) Insert(v any) {
	l.head = insert(l.less, l.head, v)
	l.size++
}

func insert(less Less, head *node, v any) *node {
	if head == nil || less(v, head.value) {
		return &node{value: v, next: head}
	}
	head.next = insert(less, head.next, v)
	return head
}

// Remove deletes the first element equal to v under neither less(v,
// x) nor less(x, v), reporting whether it was found.
func (l *List) Remove(v any) bool {
	newHead, removed := remove(l.less, l.head, v)
	if !removed {
		return false
	}
	l.head = newHead
	l.size--
	return true
}

func remove(less Less, head *node, v any) (*node, bool) {
	if head == nil {
		return nil, false
	}
	if !less(head.value, v) && !less(v, head.value) {
		return head.next, true
	}
	rest, removed := remove(less, head.next, v)
	head.next = rest
	return head, removed
}

// Contains reports whether v is present.
func (l *List) Contains(v any) bool {
	for n := l.head; n != nil; n = n.next {
		if !l.less(n.value, v) && !l.less(v, n.value) {
			return true
		}
	}
	return false
}

// All returns every element in ascending order.
func (l *List) All() []any {
	out := make([]any, 0, l.size)
	for n := l.head; n != nil; n = n.next {
		out = append(out, n.value)
	}
	return out
}

// cellNode is the transactional list node: value and next both live
// behind their own cell so a rebuild of one node never forces a
// rebuild of the ones after it. Wrapping value in its own cell (rather
// than storing it inline) gives TmRemove something to Retire when it
// unlinks a node, matching the isGarbage discipline pkg/avltree's
// value field follows.
type cellNode struct {
	value *cell.Cell // holds any
	next  *cell.Cell // holds *cellNode or nil
}

// txn is the minimal surface TmList needs from *stamp.Txn.
type txn interface {
	Read(c *cell.Cell) any
	Write(c *cell.Cell, v any)
}

// TmList is the transactional sorted singly-linked list.
type TmList struct {
	less Less
	head *cell.Cell // holds *cellNode or nil
}

// NewTm creates an empty transactional list ordered by less.
func NewTm(less Less) *TmList {
	return &TmList{less: less, head: cell.New((*cellNode)(nil))}
}

func loadNode(tx txn, c *cell.Cell) *cellNode {
	v := tx.Read(c)
	if v == nil {
		return nil
	}
	return v.(*cellNode)
}

func loadValue(tx txn, n *cellNode) any {
	return tx.Read(n.value)
}

// TmInsert is TM_INSERT. It splices the new node in by rewriting only
// the one cell whose value must change — the predecessor's next
// pointer (or head, for a new first element) — leaving every other
// node's cell untouched and still shared with whatever else is
// reading it.
func (l *TmList) TmInsert(tx txn, v any) {
	slot := l.head
	for {
		n := loadNode(tx, slot)
		if n == nil || l.less(v, loadValue(tx, n)) {
			tx.Write(slot, &cellNode{value: cell.New(v), next: cell.New(n)})
			return
		}
		slot = n.next
	}
}

// TmRemove is TM_REMOVE. Like TmInsert, it rewrites only the
// predecessor's next cell, unlinking the matched node without
// disturbing any other node's cell. The unlinked node's value cell is
// retired, same as pkg/avltree's deleteTm, since a concurrent reader
// may still hold a reference to it.
func (l *TmList) TmRemove(tx txn, v any) bool {
	slot := l.head
	for {
		n := loadNode(tx, slot)
		if n == nil {
			return false
		}
		nv := loadValue(tx, n)
		if !l.less(nv, v) && !l.less(v, nv) {
			n.value.Retire()
			tx.Write(slot, loadNode(tx, n.next))
			return true
		}
		slot = n.next
	}
}

// TmContains is TM_CONTAINS.
func (l *TmList) TmContains(tx txn, v any) bool {
	for n := loadNode(tx, l.head); n != nil; n = loadNode(tx, n.next) {
		nv := loadValue(tx, n)
		if !l.less(nv, v) && !l.less(v, nv) {
			return true
		}
	}
	return false
}

// Iterator walks a TmList transactionally: every Next call reads the
// current node's next pointer through the enclosing transaction, so
// the traversal participates in that transaction's read set exactly
// like any other container access.
type Iterator struct {
	tx  txn
	cur *cellNode
}

// TmIter returns an iterator positioned before the first element.
func (l *TmList) TmIter(tx txn) *Iterator {
	return &Iterator{tx: tx, cur: &cellNode{next: l.head}}
}

// Next advances the iterator and reports whether a value was found.
func (it *Iterator) Next() (any, bool) {
	n := loadNode(it.tx, it.cur.next)
	if n == nil {
		return nil, false
	}
	it.cur = n
	return loadValue(it.tx, n), true
}
