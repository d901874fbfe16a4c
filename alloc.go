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

package stamp

import "github.com/stamprt/stamp/pkg/cell"

// Alloc is TM_MALLOC: it hands back a fresh cell backed by n bytes drawn
// from the transaction's arena. If the enclosing transaction aborts, the
// storage is released automatically (spec.md §4.D); callers never call
// this under a panic/recover of their own.
func (t *Txn) Alloc(n int) *cell.Cell {
	t.requireActive()
	a := t.arenaFor()
	buf := a.Alloc(n)
	c := cell.New(buf)

	if t.fallback {
		return c
	}
	t.allocLog = append(t.allocLog, func() {
		a.Free(buf)
	})
	return c
}

// Free is TM_FREE: it defers releasing c's backing storage until the
// enclosing transaction commits. An aborted transaction leaves c exactly
// as it was, since the free never took effect.
//
// A retired cell is not necessarily safe to hand back to an arena the
// instant the retiring transaction commits: an older transaction may
// still be mid-flight with a Read-recorded reference to it. The actual
// arena release waits for Cell.Reclaimable (no outstanding reference)
// and for the epoch watermark to pass this commit's version, queuing on
// Runtime's reclaim backlog when it is not yet safe (spec.md §4.D).
func (t *Txn) Free(c *cell.Cell) {
	t.requireActive()
	a := t.arenaFor()

	release := func() {
		c.Retire()
		buf, ok := c.Load().([]byte)
		if !ok {
			return
		}
		free := func() { a.Free(buf) }
		// A write-free commit never assigns wv (commit returns early
		// before the clock bumps), so fall back to rv: every concurrent
		// transaction that could still hold a reference to c began no
		// later than rv.
		version := t.wv
		if version == 0 {
			version = t.rv
		}
		if version <= t.rt.epoch.DoneUntil() && c.Reclaimable() {
			free()
			return
		}
		t.rt.deferReclaim(version, c, free)
	}

	if t.fallback {
		release()
		return
	}
	t.freeLog = append(t.freeLog, release)
}
