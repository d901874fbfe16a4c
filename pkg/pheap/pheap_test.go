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

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stamprt/stamp/pkg/cell"
)

func intCmp(a, b any) int { return a.(int) - b.(int) }

type stubTxn struct{}

func (stubTxn) Read(c *cell.Cell) any      { return c.Load() }
func (stubTxn) Write(c *cell.Cell, v any) { c.Store(v) }

func TestHeapPopsInAscendingOrder(t *testing.T) {
	h := New(intCmp)
	for _, v := range []int{5, 3, 8, 1, 9, 2} {
		h.Push(v)
	}

	var got []int
	for h.Len() > 0 {
		v, ok := h.Pop()
		require.True(t, ok)
		got = append(got, v.(int))
	}
	assert.True(t, sort.IntsAreSorted(got))
}

func TestHeapPopOnEmptyReportsFalse(t *testing.T) {
	h := New(intCmp)
	_, ok := h.Pop()
	assert.False(t, ok)
}

func TestHeapPeekDoesNotRemove(t *testing.T) {
	h := New(intCmp)
	h.Push(4)
	h.Push(1)

	v, ok := h.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, h.Len())
}

func TestTmHeapPushPopOrdersByComparator(t *testing.T) {
	h := NewTm(16, intCmp)
	tx := stubTxn{}

	for _, v := range []int{5, 3, 8, 1, 9, 2, 7} {
		require.True(t, h.TmPush(tx, v))
	}
	assert.Equal(t, 7, h.TmLen(tx))

	var got []int
	for h.TmLen(tx) > 0 {
		v, ok := h.TmPop(tx)
		require.True(t, ok)
		got = append(got, v.(int))
	}
	assert.True(t, sort.IntsAreSorted(got))
}

func TestTmHeapPushFailsAtCapacity(t *testing.T) {
	h := NewTm(2, intCmp)
	tx := stubTxn{}

	assert.True(t, h.TmPush(tx, 1))
	assert.True(t, h.TmPush(tx, 2))
	assert.False(t, h.TmPush(tx, 3))
}

func TestTmHeapPeekDoesNotRemove(t *testing.T) {
	h := NewTm(4, intCmp)
	tx := stubTxn{}

	h.TmPush(tx, 4)
	h.TmPush(tx, 1)

	v, ok := h.TmPeek(tx)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, h.TmLen(tx))
}

func TestTmHeapPopOnEmptyReportsFalse(t *testing.T) {
	h := NewTm(4, intCmp)
	tx := stubTxn{}
	_, ok := h.TmPop(tx)
	assert.False(t, ok)
}

func TestTmHeapStaysOrderedUnderRandomPushPop(t *testing.T) {
	h := NewTm(256, intCmp)
	tx := stubTxn{}
	r := rand.New(rand.NewSource(3))

	for _, v := range r.Perm(200) {
		require.True(t, h.TmPush(tx, v))
	}

	var got []int
	for h.TmLen(tx) > 0 {
		v, ok := h.TmPop(tx)
		require.True(t, ok)
		got = append(got, v.(int))
	}
	assert.True(t, sort.IntsAreSorted(got))
}
