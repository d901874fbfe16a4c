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

package avltree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stamprt/stamp/pkg/cell"
)

func intLess(a, b any) bool { return a.(int) < b.(int) }

// stubTxn applies every Read/Write directly against the cell, enough to
// exercise TmTree's structural algorithm in isolation. The engine's own
// conflict detection and commit/abort semantics are covered by the
// root package's container integration tests, not here.
type stubTxn struct{}

func (stubTxn) Read(c *cell.Cell) any      { return c.Load() }
func (stubTxn) Write(c *cell.Cell, v any) { c.Store(v) }

func TestSetAndGet(t *testing.T) {
	tr := New(intLess)
	tr.Set(5, "five")
	tr.Set(2, "two")
	tr.Set(8, "eight")

	v, ok := tr.Get(5)
	require.True(t, ok)
	assert.Equal(t, "five", v)

	_, ok = tr.Get(99)
	assert.False(t, ok)
	assert.Equal(t, 3, tr.Size())
}

func TestSetOverwritesExistingKey(t *testing.T) {
	tr := New(intLess)
	tr.Set(1, "a")
	tr.Set(1, "b")

	v, ok := tr.Get(1)
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 1, tr.Size())
}

func TestDeleteRemovesKey(t *testing.T) {
	tr := New(intLess)
	tr.Set(1, "a")
	tr.Set(2, "b")

	assert.True(t, tr.Delete(1))
	assert.False(t, tr.Contains(1))
	assert.False(t, tr.Delete(1))
	assert.Equal(t, 1, tr.Size())
}

func TestAllReturnsAscendingOrder(t *testing.T) {
	tr := New(intLess)
	for _, k := range []int{5, 3, 8, 1, 4, 7, 9} {
		tr.Set(k, k*10)
	}

	all := tr.All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Key.(int), all[i].Key.(int))
	}
}

func TestHeightStaysLogarithmicUnderSequentialInsertion(t *testing.T) {
	tr := New(intLess)
	const n = 1000
	for i := 0; i < n; i++ {
		tr.Set(i, i)
	}

	bound := 2 * math.Log2(float64(n+1))
	assert.LessOrEqual(t, float64(tr.Height()), bound)
}

func TestHeightStaysLogarithmicUnderRandomInsertionAndDeletion(t *testing.T) {
	tr := New(intLess)
	r := rand.New(rand.NewSource(7))
	const n = 2000

	keys := r.Perm(n)
	for _, k := range keys {
		tr.Set(k, k)
	}
	for i, k := range keys {
		if i%3 == 0 {
			tr.Delete(k)
		}
	}

	bound := 2*math.Log2(float64(tr.Size()+1)) + 2
	assert.LessOrEqual(t, float64(tr.Height()), bound)
}

func TestTmInsertAndGet(t *testing.T) {
	tr := NewTm(intLess)
	tx := stubTxn{}

	tr.TmInsert(tx, 5, "five")
	tr.TmInsert(tx, 2, "two")
	tr.TmInsert(tx, 8, "eight")

	v, ok := tr.TmGet(tx, 5)
	require.True(t, ok)
	assert.Equal(t, "five", v)

	_, ok = tr.TmGet(tx, 99)
	assert.False(t, ok)
}

func TestTmDeleteRemovesKey(t *testing.T) {
	tr := NewTm(intLess)
	tx := stubTxn{}

	tr.TmInsert(tx, 1, "a")
	tr.TmInsert(tx, 2, "b")

	assert.True(t, tr.TmDelete(tx, 1))
	assert.False(t, tr.TmContains(tx, 1))
	assert.False(t, tr.TmDelete(tx, 1))
}

func TestTmTreeStaysBalancedUnderRandomOps(t *testing.T) {
	tr := NewTm(intLess)
	tx := stubTxn{}
	r := rand.New(rand.NewSource(11))

	const n = 500
	keys := r.Perm(n)
	for _, k := range keys {
		tr.TmInsert(tx, k, k)
	}
	for i, k := range keys {
		if i%4 == 0 {
			tr.TmDelete(tx, k)
		}
	}

	root := loadNode(tx, tr.root)
	bound := 2*math.Log2(float64(n+1)) + 2
	assert.LessOrEqual(t, float64(tmHeight(root)), bound)
}
