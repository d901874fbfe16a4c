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

// Package barrier implements the cyclic phase barrier spec.md §4.E calls
// for: thread_barrier_wait blocks every worker until all N have arrived,
// then releases them all with release/acquire semantics so that "after
// wait returns, all prior writes by all workers are visible" (spec.md
// §5). It is built the way the teacher's pkg/watermark builds its mark
// tracker: one goroutine owns all mutable state and is driven by a
// channel of arrival events, rather than a lock shared by every worker.
package barrier

// Barrier is a reusable (multi-phase) barrier for exactly n parties. All
// mutable state belongs to the goroutine started by New; Wait only ever
// sends on and receives from channels, so there is nothing for concurrent
// callers to race on.
type Barrier struct {
	n       int
	arriveC chan chan struct{}
}

// New creates a barrier for n parties and starts its owning goroutine.
func New(n int) *Barrier {
	if n <= 0 {
		n = 1
	}
	b := &Barrier{
		n:       n,
		arriveC: make(chan chan struct{}),
	}
	go b.run()
	return b
}

// Wait blocks until all n parties have called Wait for the current phase,
// then returns for all of them together.
func (b *Barrier) Wait() {
	done := make(chan struct{})
	b.arriveC <- done
	<-done
}

func (b *Barrier) run() {
	for {
		arrived := make([]chan struct{}, 0, b.n)
		for i := 0; i < b.n; i++ {
			arrived = append(arrived, <-b.arriveC)
		}
		for _, done := range arrived {
			close(done)
		}
	}
}
