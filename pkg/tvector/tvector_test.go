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

package tvector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stamprt/stamp/pkg/cell"
)

type stubTxn struct {
	allocs, frees int
}

func (*stubTxn) Read(c *cell.Cell) any      { return c.Load() }
func (*stubTxn) Write(c *cell.Cell, v any) { c.Store(v) }

func (s *stubTxn) Alloc(n int) *cell.Cell {
	s.allocs++
	return cell.New(make([]byte, n))
}

func (s *stubTxn) Free(c *cell.Cell) {
	s.frees++
	c.Retire()
}

func TestPushBackAndAt(t *testing.T) {
	v := New()
	for i := 0; i < 10; i++ {
		v.PushBack(i)
	}
	assert.Equal(t, 10, v.Len())
	assert.Equal(t, 5, v.At(5))
}

func TestPopBackReturnsLastElement(t *testing.T) {
	v := New()
	v.PushBack(1)
	v.PushBack(2)

	val, ok := v.PopBack()
	require.True(t, ok)
	assert.Equal(t, 2, val)
	assert.Equal(t, 1, v.Len())
}

func TestPopBackOnEmptyReportsFalse(t *testing.T) {
	v := New()
	_, ok := v.PopBack()
	assert.False(t, ok)
}

func TestTmPushBackAndAt(t *testing.T) {
	vec := NewTm()
	tx := &stubTxn{}
	for i := 0; i < 50; i++ {
		vec.TmPushBack(tx, i)
	}

	assert.Equal(t, 50, vec.TmLen(tx))
	for i := 0; i < 50; i++ {
		assert.Equal(t, i, vec.TmAt(tx, i))
	}
	assert.Greater(t, tx.allocs, 0)
}

func TestTmPushBackGrowthDeferstOldSlotToFree(t *testing.T) {
	vec := NewTm()
	tx := &stubTxn{}
	for i := 0; i < 20; i++ {
		vec.TmPushBack(tx, i)
	}

	assert.Greater(t, tx.allocs, 1)
	assert.Equal(t, tx.allocs-1, tx.frees)
}

func TestTmSetOverwritesElement(t *testing.T) {
	vec := NewTm()
	tx := &stubTxn{}
	vec.TmPushBack(tx, "a")
	vec.TmPushBack(tx, "b")

	vec.TmSet(tx, 1, "z")
	assert.Equal(t, "z", vec.TmAt(tx, 1))
}

func TestTmPopBackReturnsLastElement(t *testing.T) {
	vec := NewTm()
	tx := &stubTxn{}
	vec.TmPushBack(tx, 1)
	vec.TmPushBack(tx, 2)

	val, ok := vec.TmPopBack(tx)
	require.True(t, ok)
	assert.Equal(t, 2, val)
	assert.Equal(t, 1, vec.TmLen(tx))
}

func TestTmPopBackOnEmptyReportsFalse(t *testing.T) {
	vec := NewTm()
	tx := &stubTxn{}
	_, ok := vec.TmPopBack(tx)
	assert.False(t, ok)
}
