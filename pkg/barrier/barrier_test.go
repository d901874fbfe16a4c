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

package barrier

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBarrierReleasesAllPartiesTogether(t *testing.T) {
	const n = 8
	b := New(n)

	var before, after atomic.Int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			before.Add(1)
			b.Wait()
			// by the time any worker resumes, all n must have arrived
			assert.EqualValues(t, n, before.Load())
			after.Add(1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, n, after.Load())
}

func TestBarrierSupportsMultiplePhases(t *testing.T) {
	const n = 4
	const phases = 50
	b := New(n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			for p := 0; p < phases; p++ {
				b.Wait()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("barrier did not complete all phases")
	}
}
