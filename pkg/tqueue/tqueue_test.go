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

package tqueue

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stamprt/stamp/pkg/cell"
)

type stubTxn struct{}

func (stubTxn) Read(c *cell.Cell) any      { return c.Load() }
func (stubTxn) Write(c *cell.Cell, v any) { c.Store(v) }

func TestPushPopPreservesFIFOOrder(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.True(t, q.IsEmpty())
}

func TestPopOnEmptyReportsFalse(t *testing.T) {
	q := New()
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestPushGrowsBeyondInitialCapacity(t *testing.T) {
	q := New()
	const n = 100
	for i := 0; i < n; i++ {
		q.Push(i)
	}
	assert.Equal(t, n, q.Len())
	for i := 0; i < n; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestPushPopWrapsAroundBuffer(t *testing.T) {
	q := New()
	for i := 0; i < minCapacity; i++ {
		q.Push(i)
	}
	for i := 0; i < minCapacity/2; i++ {
		q.Pop()
	}
	for i := minCapacity; i < minCapacity+minCapacity/2; i++ {
		q.Push(i)
	}
	assert.Equal(t, minCapacity, q.Len())
}

func TestClearResetsQueue(t *testing.T) {
	q := New()
	q.Push(1)
	q.Push(2)
	q.Clear()
	assert.True(t, q.IsEmpty())
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestShufflePreservesElementsAndCount(t *testing.T) {
	q := New()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	q.Shuffle(rand.New(rand.NewSource(1)))

	assert.Equal(t, 10, q.Len())
	seen := make(map[int]bool)
	for !q.IsEmpty() {
		v, _ := q.Pop()
		seen[v.(int)] = true
	}
	assert.Len(t, seen, 10)
}

func TestTmPushPopPreservesFIFOOrder(t *testing.T) {
	q := NewTm()
	tx := stubTxn{}
	for i := 0; i < 5; i++ {
		q.TmPush(tx, i)
	}
	for i := 0; i < 5; i++ {
		v, ok := q.TmPop(tx)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.True(t, q.TmIsEmpty(tx))
}

func TestTmPopOnEmptyReportsFalse(t *testing.T) {
	q := NewTm()
	tx := stubTxn{}
	_, ok := q.TmPop(tx)
	assert.False(t, ok)
}

func TestTmPushGrowsBeyondInitialCapacity(t *testing.T) {
	q := NewTm()
	tx := stubTxn{}
	const n = 100
	for i := 0; i < n; i++ {
		q.TmPush(tx, i)
	}
	assert.Equal(t, n, q.TmLen(tx))
	for i := 0; i < n; i++ {
		v, ok := q.TmPop(tx)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestTmPushPopInterleavedWrapsCorrectly(t *testing.T) {
	q := NewTm()
	tx := stubTxn{}

	for i := 0; i < minCapacity; i++ {
		q.TmPush(tx, i)
	}
	for i := 0; i < minCapacity/2; i++ {
		v, ok := q.TmPop(tx)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	for i := minCapacity; i < minCapacity+minCapacity/2; i++ {
		q.TmPush(tx, i)
	}
	assert.Equal(t, minCapacity, q.TmLen(tx))

	for i := minCapacity / 2; i < minCapacity+minCapacity/2; i++ {
		v, ok := q.TmPop(tx)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}
