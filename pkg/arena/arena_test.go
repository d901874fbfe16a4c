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

package arena

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocReturnsRequestedLength(t *testing.T) {
	a := New(1024, 2)
	buf := a.Alloc(100)
	require.Len(t, buf, 100)
	assert.EqualValues(t, 100, a.Allocated())
}

func TestFreeReusesSameClassBuffer(t *testing.T) {
	a := New(1024, 2)
	buf := a.Alloc(50)
	for i := range buf {
		buf[i] = 0xAB
	}
	a.Free(buf)
	assert.EqualValues(t, 0, a.Allocated())

	reused := a.Alloc(50)
	require.Len(t, reused, 50)
	// reused capacity should come from the freed pool, i.e. still carry
	// the old backing array's capacity bucket.
	assert.Equal(t, cap(buf), cap(reused))
}

func TestAllocGrowsAcrossBlocks(t *testing.T) {
	a := New(64, 2)
	var bufs [][]byte
	for i := 0; i < 100; i++ {
		bufs = append(bufs, a.Alloc(70))
	}
	assert.EqualValues(t, 70*100, a.Allocated())
}

func TestAllocConcurrentSameClassCoalesces(t *testing.T) {
	a := New(64, 2)
	var wg sync.WaitGroup
	results := make([][]byte, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.Alloc(40)
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		require.Len(t, r, 40)
	}
}
