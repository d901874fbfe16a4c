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

// Package avltree is the ordered-map container: a height-balanced
// binary search tree with a deterministic O(log n) height bound, the
// way original_source/lib/avltree.c's jsw_avlinsert/jsw_avlerase keep
// every node within one level of its sibling subtree. Unlike a skip
// list's expected height, an AVL tree's height is always within a
// constant factor of log2(n+1), which is what lets a caller reason
// about worst-case traversal cost.
//
// Every tree also exposes a Tm-prefixed transactional surface, where
// every child link and balance factor lives in a *cell.Cell routed
// through an active *stamp.Txn instead of a bare struct field.
package avltree

import "github.com/stamprt/stamp/pkg/cell"

// Less reports whether a orders before b.
type Less func(a, b any) bool

// Element is one key/value pair stored in the tree.
type Element struct {
	Key   any
	Value any
}

type node struct {
	elem        Element
	left, right *node
	height      int8
}

// Tree is the sequential (non-transactional) AVL tree, used the way the
// teacher's skiplist.go is used directly outside of a running
// transaction: test setup, warm-up, single-threaded batch loads.
type Tree struct {
	less Less
	root *node
	size int
}

// New creates an empty tree ordered by less.
func New(less Less) *Tree {
	return &Tree{less: less}
}

// Size returns the number of elements in the tree.
func (t *Tree) Size() int {
	return t.size
}

// Height returns the tree's current height, 0 for an empty tree.
func (t *Tree) Height() int {
	return int(height(t.root))
}

func height(n *node) int8 {
	if n == nil {
		return 0
	}
	return n.height
}

func balanceFactor(n *node) int8 {
	return height(n.left) - height(n.right)
}

func updateHeight(n *node) {
	l, r := height(n.left), height(n.right)
	if l > r {
		n.height = l + 1
	} else {
		n.height = r + 1
	}
}

// rotateRight is jsw_avlinsert's single right rotation: promotes n's
// left child above n.
func rotateRight(n *node) *node {
	p := n.left
	n.left = p.right
	p.right = n
	updateHeight(n)
	updateHeight(p)
	return p
}

// rotateLeft is jsw_avlinsert's single left rotation: promotes n's
// right child above n.
func rotateLeft(n *node) *node {
	p := n.right
	n.right = p.left
	p.left = n
	updateHeight(n)
	updateHeight(p)
	return p
}

func rebalance(n *node) *node {
	updateHeight(n)
	switch bf := balanceFactor(n); {
	case bf > 1:
		if balanceFactor(n.left) < 0 {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	case bf < -1:
		if balanceFactor(n.right) > 0 {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	default:
		return n
	}
}

// Set inserts key/value, or overwrites value if key is already present.
func (t *Tree) Set(key, value any) {
	var inserted bool
	t.root, inserted = t.insert(t.root, key, value)
	if inserted {
		t.size++
	}
}

func (t *Tree) insert(n *node, key, value any) (*node, bool) {
	if n == nil {
		return &node{elem: Element{Key: key, Value: value}, height: 1}, true
	}
	switch {
	case t.less(key, n.elem.Key):
		var ok bool
		n.left, ok = t.insert(n.left, key, value)
		return rebalance(n), ok
	case t.less(n.elem.Key, key):
		var ok bool
		n.right, ok = t.insert(n.right, key, value)
		return rebalance(n), ok
	default:
		n.elem.Value = value
		return n, false
	}
}

// Get returns the value stored under key, or false if absent.
func (t *Tree) Get(key any) (any, bool) {
	n := t.root
	for n != nil {
		switch {
		case t.less(key, n.elem.Key):
			n = n.left
		case t.less(n.elem.Key, key):
			n = n.right
		default:
			return n.elem.Value, true
		}
	}
	return nil, false
}

// Contains reports whether key is present in the tree.
func (t *Tree) Contains(key any) bool {
	_, ok := t.Get(key)
	return ok
}

// Delete removes key, reporting whether it was present.
func (t *Tree) Delete(key any) bool {
	var removed bool
	t.root, removed = t.delete(t.root, key)
	if removed {
		t.size--
	}
	return removed
}

func (t *Tree) delete(n *node, key any) (*node, bool) {
	if n == nil {
		return nil, false
	}
	switch {
	case t.less(key, n.elem.Key):
		var ok bool
		n.left, ok = t.delete(n.left, key)
		return rebalance(n), ok
	case t.less(n.elem.Key, key):
		var ok bool
		n.right, ok = t.delete(n.right, key)
		return rebalance(n), ok
	default:
		if n.left == nil {
			return n.right, true
		}
		if n.right == nil {
			return n.left, true
		}
		succ := n.right
		for succ.left != nil {
			succ = succ.left
		}
		n.elem = succ.elem
		n.right, _ = t.delete(n.right, succ.elem.Key)
		return rebalance(n), true
	}
}

// All returns every element in ascending key order.
func (t *Tree) All() []Element {
	all := make([]Element, 0, t.size)
	var walk func(*node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		walk(n.left)
		all = append(all, n.elem)
		walk(n.right)
	}
	walk(t.root)
	return all
}

// cellNode is the transactional counterpart to node: every link and
// value lives behind a *cell.Cell so the engine's Read/Write see and
// guard every field a concurrent transaction could otherwise race on.
// height is tracked on the node itself (not behind a cell) since it is
// only ever recomputed by the single in-flight writer that is already
// rewriting this node's links this attempt.
type cellNode struct {
	key    any
	value  *cell.Cell // holds any
	left   *cell.Cell // holds *cellNode or nil
	right  *cell.Cell // holds *cellNode or nil
	height int8
}

func tmHeight(n *cellNode) int8 {
	if n == nil {
		return 0
	}
	return n.height
}

func tmBalanceFactor(tx txn, n *cellNode) int8 {
	return tmHeight(loadNode(tx, n.left)) - tmHeight(loadNode(tx, n.right))
}

func tmUpdateHeight(tx txn, n *cellNode) {
	l := tmHeight(loadNode(tx, n.left))
	r := tmHeight(loadNode(tx, n.right))
	if l > r {
		n.height = l + 1
	} else {
		n.height = r + 1
	}
}

// rotateRightTm and rotateLeftTm mirror rotateRight/rotateLeft, but
// publish every link they touch through tx.Write instead of assigning
// to a bare struct field, so the rotation participates in conflict
// detection like any other structural edit.
func rotateRightTm(tx txn, n *cellNode) *cellNode {
	p := loadNode(tx, n.left)
	tx.Write(n.left, loadNode(tx, p.right))
	tx.Write(p.right, n)
	tmUpdateHeight(tx, n)
	tmUpdateHeight(tx, p)
	return p
}

func rotateLeftTm(tx txn, n *cellNode) *cellNode {
	p := loadNode(tx, n.right)
	tx.Write(n.right, loadNode(tx, p.left))
	tx.Write(p.left, n)
	tmUpdateHeight(tx, n)
	tmUpdateHeight(tx, p)
	return p
}

func rebalanceTm(tx txn, n *cellNode) *cellNode {
	tmUpdateHeight(tx, n)
	switch bf := tmBalanceFactor(tx, n); {
	case bf > 1:
		if tmBalanceFactor(tx, loadNode(tx, n.left)) < 0 {
			tx.Write(n.left, rotateLeftTm(tx, loadNode(tx, n.left)))
		}
		return rotateRightTm(tx, n)
	case bf < -1:
		if tmBalanceFactor(tx, loadNode(tx, n.right)) > 0 {
			tx.Write(n.right, rotateRightTm(tx, loadNode(tx, n.right)))
		}
		return rotateLeftTm(tx, n)
	default:
		return n
	}
}

// TmTree is the transactional ordered map (spec.md §4.F). Structural
// mutation always goes through a *stamp.Txn; there is no way to touch a
// TmTree's nodes outside of one.
type TmTree struct {
	less Less
	root *cell.Cell // holds *cellNode or nil
}

// txn is the minimal surface TmTree needs from *stamp.Txn. Declaring it
// locally instead of importing the root package avoids an import cycle
// (the root package will in turn import container packages in its own
// tests and examples).
type txn interface {
	Read(c *cell.Cell) any
	Write(c *cell.Cell, v any)
}

// NewTm creates an empty transactional tree ordered by less.
func NewTm(less Less) *TmTree {
	return &TmTree{less: less, root: cell.New((*cellNode)(nil))}
}

func loadNode(tx txn, c *cell.Cell) *cellNode {
	v := tx.Read(c)
	if v == nil {
		return nil
	}
	return v.(*cellNode)
}

// TmGet is TM_GET: an optimistic, conflict-tracked lookup.
func (t *TmTree) TmGet(tx txn, key any) (any, bool) {
	n := loadNode(tx, t.root)
	for n != nil {
		switch {
		case t.less(key, n.key):
			n = loadNode(tx, n.left)
		case t.less(n.key, key):
			n = loadNode(tx, n.right)
		default:
			return tx.Read(n.value), true
		}
	}
	return nil, false
}

// TmContains is TM_CONTAINS.
func (t *TmTree) TmContains(tx txn, key any) bool {
	_, ok := t.TmGet(tx, key)
	return ok
}

// TmInsert is TM_INSERT: it rebuilds the path from the root down to the
// insertion point, publishing every rewritten node as a buffered write
// so only the stripes actually touched by this edit participate in
// commit-time validation.
func (t *TmTree) TmInsert(tx txn, key, value any) {
	tx.Write(t.root, t.insertTm(tx, loadNode(tx, t.root), key, value))
}

// insertTm mirrors insert, but every node it touches is re-published
// through Write instead of mutated in place, and the link it returns is
// threaded back up by the caller via Write on the parent's cell.
func (t *TmTree) insertTm(tx txn, n *cellNode, key, value any) *cellNode {
	if n == nil {
		return &cellNode{
			key:    key,
			value:  cell.New(value),
			left:   cell.New((*cellNode)(nil)),
			right:  cell.New((*cellNode)(nil)),
			height: 1,
		}
	}
	switch {
	case t.less(key, n.key):
		tx.Write(n.left, t.insertTm(tx, loadNode(tx, n.left), key, value))
	case t.less(n.key, key):
		tx.Write(n.right, t.insertTm(tx, loadNode(tx, n.right), key, value))
	default:
		tx.Write(n.value, value)
		return n
	}
	return rebalanceTm(tx, n)
}

// TmDelete is TM_DELETE: it locates key and, for an interior node,
// splices in its in-order successor exactly as the sequential Delete
// does. A removed node's value cell is retired rather than discarded
// outright, per the isGarbage/isReferenced discipline in pkg/cell: a
// concurrent reader may still hold it. Returns whether key was present.
func (t *TmTree) TmDelete(tx txn, key any) bool {
	newRoot, removed := t.deleteTm(tx, loadNode(tx, t.root), key)
	tx.Write(t.root, newRoot)
	return removed
}

func (t *TmTree) deleteTm(tx txn, n *cellNode, key any) (*cellNode, bool) {
	if n == nil {
		return nil, false
	}
	switch {
	case t.less(key, n.key):
		child, removed := t.deleteTm(tx, loadNode(tx, n.left), key)
		tx.Write(n.left, child)
		if !removed {
			return n, false
		}
		return rebalanceTm(tx, n), true
	case t.less(n.key, key):
		child, removed := t.deleteTm(tx, loadNode(tx, n.right), key)
		tx.Write(n.right, child)
		if !removed {
			return n, false
		}
		return rebalanceTm(tx, n), true
	default:
		left := loadNode(tx, n.left)
		right := loadNode(tx, n.right)
		if left == nil {
			n.value.Retire()
			return right, true
		}
		if right == nil {
			n.value.Retire()
			return left, true
		}
		succ := right
		for loadNode(tx, succ.left) != nil {
			succ = loadNode(tx, succ.left)
		}
		// n's key is never rewritten in place: a replacement node carries
		// succ's key and reuses n's cells, and the caller links it in.
		repl := &cellNode{key: succ.key, value: n.value, left: n.left, right: n.right, height: n.height}
		tx.Write(repl.value, tx.Read(succ.value))
		newRight, _ := t.deleteTm(tx, right, succ.key)
		tx.Write(repl.right, newRight)
		return rebalanceTm(tx, repl), true
	}
}
