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

import (
	"math/rand"
	"sort"
	"time"

	"github.com/stamprt/stamp/pkg/arena"
	"github.com/stamprt/stamp/pkg/cell"
	"github.com/stamprt/stamp/pkg/orec"
)

type txnState int32

const (
	txnIdle txnState = iota
	txnActive
	txnCommitting
)

// restartSignal is the panic value TM_RESTART / an internal validation
// failure raises. runAtomically is the only place that recovers it; a
// restartSignal escaping that boundary would be a programming error.
type restartSignal struct{}

type readEntry struct {
	o       *orec.Orec
	version uint64
}

// Txn is a transaction descriptor: the read/write sets, the allocation
// bookkeeping and the version stamps TL2 needs to validate and publish a
// transaction (spec.md §3 Data Model). Containers never construct one
// directly; they receive it as an argument inside an Atomically callback.
type Txn struct {
	rt    *Runtime
	arena *arena.Arena

	rv uint64
	wv uint64

	readIdx map[*orec.Orec]struct{}
	readSet []readEntry

	writeIdx   map[*cell.Cell]int
	writeOrder []*cell.Cell
	writeVals  []any

	// refs is every cell this attempt took a live reference to via Read.
	// Each entry is matched by exactly one Unreference call when the
	// attempt concludes, win or lose, so a concurrent Free sees an
	// accurate Cell.Reclaimable even while this attempt is still
	// validating.
	refs []*cell.Cell

	// allocLog runs only on abort: it releases storage this transaction
	// obtained speculatively, so the allocator does not leak it.
	allocLog []func()
	// freeLog runs only on commit: deferred frees only take effect once
	// the transaction that requested them is known to have survived.
	freeLog []func()

	state             txnState
	nestLevel         int
	consecutiveAborts int
	fallback          bool
}

// Nested runs fn as a nested transaction sharing the enclosing
// transaction's read/write sets and version stamps (spec.md §4.B "flat
// nesting": only the outermost Atomically commits or aborts; a nested
// call that wants to restart restarts the whole top-level transaction).
func (t *Txn) Nested(fn func(*Txn) error) error {
	t.nestLevel++
	defer func() { t.nestLevel-- }()
	return fn(t)
}

// Abort voluntarily raises TM_RESTART: the enclosing Atomically discards
// all speculative state and retries the transaction from scratch. It
// never returns.
func (t *Txn) Abort() {
	panic(restartSignal{})
}

// Read is TM_READ: it returns c's buffered write if this transaction has
// already written it, otherwise an optimistically-consistent snapshot of
// c, recording the orec version observed so commit-time validation can
// detect a conflicting writer.
func (t *Txn) Read(c *cell.Cell) any {
	t.requireActive()
	if idx, ok := t.writeIdx[c]; ok {
		return t.writeVals[idx]
	}
	if t.fallback {
		return c.Load()
	}

	o := t.rt.orecs.Of(c.ID())

	locked, v1 := o.Load()
	if locked {
		t.Abort()
	}
	val := c.Load()
	locked2, v2 := o.Load()
	if locked2 || v2 != v1 || v1 > t.rv {
		t.Abort()
	}

	t.recordRead(o, v1)
	c.MarkReferenced()
	t.refs = append(t.refs, c)
	return val
}

// releaseRefs drops every reference this attempt took via Read. It runs
// on every attempt's conclusion, whether it committed or aborted, so
// Cell.Reclaimable never sees a stale hold from a finished attempt.
func (t *Txn) releaseRefs() {
	for _, c := range t.refs {
		c.Unreference()
	}
	t.refs = t.refs[:0]
}

func (t *Txn) recordRead(o *orec.Orec, version uint64) {
	if t.readIdx == nil {
		t.readIdx = make(map[*orec.Orec]struct{})
	}
	if _, ok := t.readIdx[o]; ok {
		return
	}
	t.readIdx[o] = struct{}{}
	t.readSet = append(t.readSet, readEntry{o: o, version: version})
}

// Write is TM_WRITE: it buffers v against c in the transaction's write
// set. Nothing becomes visible to other transactions until commit
// publishes the write set under its held locks.
func (t *Txn) Write(c *cell.Cell, v any) {
	t.requireActive()
	if t.fallback {
		c.Store(v)
		return
	}
	if t.writeIdx == nil {
		t.writeIdx = make(map[*cell.Cell]int)
	}
	if idx, ok := t.writeIdx[c]; ok {
		t.writeVals[idx] = v
		return
	}
	t.writeIdx[c] = len(t.writeOrder)
	t.writeOrder = append(t.writeOrder, c)
	t.writeVals = append(t.writeVals, v)
}

func (t *Txn) requireActive() {
	if t.state != txnActive {
		t.rt.logger.Panicf("stamp: transaction descriptor used outside an active transaction")
	}
}

func (t *Txn) arenaFor() *arena.Arena {
	if t.arena != nil {
		return t.arena
	}
	return t.rt.defaultArena()
}

// Atomically runs fn as a transaction nested inside t. It exists so
// library code that only has a *Txn in hand (not the *Runtime or
// *Worker that created it) can still compose nested transactions.
func (t *Txn) Atomically(fn func(*Txn) error) error {
	return t.Nested(fn)
}

// Atomically runs fn as a new top-level transaction against the
// runtime's default arena. Prefer Worker.Atomically inside a
// StartWorkers callback so allocations land in that worker's own arena.
func (rt *Runtime) Atomically(fn func(*Txn) error) error {
	return rt.runAtomically(nil, rt.defaultArena(), fn)
}

func (rt *Runtime) runAtomically(parent *Txn, a *arena.Arena, fn func(*Txn) error) error {
	if parent != nil {
		return parent.Nested(fn)
	}
	if rt.closed.Load() {
		return ErrClosed
	}

	tx := &Txn{rt: rt, arena: a, nestLevel: 1}
	for {
		tx.begin(rt)

		rt.fallback.RLock()
		retry, err := rt.runBody(tx, fn)
		committed := false
		if err == nil && !retry {
			committed = rt.commit(tx)
		}
		rt.fallback.RUnlock()
		rt.epoch.Done(tx.rv)
		rt.drainReclaim()

		if err != nil {
			tx.abortCleanup()
			tx.state = txnIdle
			return err
		}
		if committed {
			return nil
		}

		tx.abortCleanup()
		tx.consecutiveAborts++
		if tx.consecutiveAborts >= rt.cfg.MaxAttempts {
			return rt.fallbackCommit(tx, fn)
		}
		rt.backoff(tx.consecutiveAborts)
	}
}

func (t *Txn) begin(rt *Runtime) {
	t.rv = rt.clock.Load()
	t.wv = 0
	rt.epoch.Begin(t.rv)
	t.readIdx = nil
	t.readSet = t.readSet[:0]
	t.writeIdx = nil
	t.writeOrder = t.writeOrder[:0]
	t.writeVals = t.writeVals[:0]
	t.refs = t.refs[:0]
	t.allocLog = t.allocLog[:0]
	t.freeLog = t.freeLog[:0]
	t.state = txnActive
}

// runBody executes fn, converting a recovered restartSignal into the
// retry=true return used by runAtomically's retry loop. Any other panic
// propagates unchanged: it is a real bug, not a conflict.
func (rt *Runtime) runBody(tx *Txn, fn func(*Txn) error) (retry bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(restartSignal); ok {
				retry = true
				return
			}
			panic(r)
		}
	}()
	err = fn(tx)
	return false, err
}

// commit implements the TL2 commit protocol (spec.md §4.C): acquire the
// write set's orecs in a deterministic order, bump the global clock,
// validate the read set against that new version, publish the buffered
// writes, then release the locks at the new version.
func (rt *Runtime) commit(tx *Txn) bool {
	if len(tx.writeOrder) == 0 {
		tx.releaseFreeLog()
		tx.releaseRefs()
		tx.state = txnIdle
		return true
	}

	order := append([]*cell.Cell(nil), tx.writeOrder...)
	sort.Slice(order, func(i, j int) bool { return order[i].ID() < order[j].ID() })

	acquired := make([]*orec.Orec, 0, len(order))
	acquiredSet := make(map[*orec.Orec]struct{}, len(order))
	for _, c := range order {
		o := rt.orecs.Of(c.ID())
		if _, already := acquiredSet[o]; already {
			continue
		}
		if !o.TryLock() {
			for _, held := range acquired {
				held.UnlockKeepVersion()
			}
			return false
		}
		acquired = append(acquired, o)
		acquiredSet[o] = struct{}{}
	}

	wv := rt.clock.IncrementAndLoad()

	if wv != tx.rv+1 {
		for _, re := range tx.readSet {
			locked, v := re.o.Load()
			if _, own := acquiredSet[re.o]; own {
				// Locked by this commit: only the version still matters.
				locked = false
			}
			if locked || v > tx.rv {
				for _, held := range acquired {
					held.UnlockKeepVersion()
				}
				return false
			}
		}
	}

	for i, c := range tx.writeOrder {
		c.Store(tx.writeVals[i])
	}
	for _, o := range acquired {
		o.Unlock(wv)
	}

	tx.wv = wv
	tx.releaseFreeLog()
	tx.releaseRefs()
	tx.state = txnIdle
	return true
}

// abortCleanup implements spec.md §4.C's Abort procedure: release
// anything this attempt allocated, discard the deferred free log
// untouched, and let the next begin() reset the read/write sets.
func (t *Txn) abortCleanup() {
	for _, release := range t.allocLog {
		release()
	}
	t.allocLog = t.allocLog[:0]
	t.freeLog = t.freeLog[:0]
	t.releaseRefs()
	t.state = txnIdle
}

func (t *Txn) releaseFreeLog() {
	for _, release := range t.freeLog {
		release()
	}
	t.freeLog = t.freeLog[:0]
}

// backoff is the exponential-random contention backoff named in spec.md
// §6: it sleeps a random duration up to 2^attempts * BackoffBase, capped
// at 2^BackoffCap.
func (rt *Runtime) backoff(attempts int) {
	k := attempts
	if k > rt.cfg.BackoffCap {
		k = rt.cfg.BackoffCap
	}
	max := int64(1) << uint(k)
	n := rand.Int63n(max + 1)
	time.Sleep(time.Duration(n) * rt.cfg.BackoffBase)
}

// fallbackCommit is the escalation path: after MaxAttempts consecutive
// aborts, the transaction takes the runtime's fallback lock exclusively
// and runs once more with no speculation at all, guaranteed to make
// progress since it now excludes every other transaction (spec.md §5).
func (rt *Runtime) fallbackCommit(tx *Txn, fn func(*Txn) error) error {
	rt.logger.Infof("stamp: escalating to fallback lock after %d consecutive aborts", tx.consecutiveAborts)

	rt.fallback.Lock()
	defer rt.fallback.Unlock()

	tx.fallback = true
	tx.state = txnActive
	tx.consecutiveAborts = 0
	tx.writeIdx = nil
	tx.writeOrder = tx.writeOrder[:0]
	tx.writeVals = tx.writeVals[:0]
	err := fn(tx)
	tx.fallback = false
	tx.state = txnIdle
	return err
}
