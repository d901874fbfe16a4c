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

// Package stamp implements the concurrency substrate of the STAMP
// benchmark suite: a TL2-style software transactional memory engine, a
// rollback-aware allocator, a worker pool with phase barriers, and a
// family of transactional container types built on top of them.
//
// There are no package-level globals. Every operation hangs off an
// explicit *Runtime, matching Design Notes §9's "encapsulate behind an
// explicit runtime context; do not use ambient globals".
package stamp

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/stamprt/stamp/pkg/arena"
	"github.com/stamprt/stamp/pkg/barrier"
	"github.com/stamprt/stamp/pkg/cell"
	"github.com/stamprt/stamp/pkg/logger"
	"github.com/stamprt/stamp/pkg/orec"
	"github.com/stamprt/stamp/pkg/watermark"
	"golang.org/x/sync/errgroup"
)

// Runtime bundles the process-wide transactional state: the ownership
// record table, the global version clock, the fallback lock, and the
// per-worker arenas. It is the sole shared resource; everything else is
// thread-local (spec.md §5 "Shared-resource policy").
type Runtime struct {
	cfg    Config
	logger logger.Logger

	orecs *orec.Table
	clock orec.Clock

	// epoch tracks the lowest read version still held by any in-flight
	// transaction. It is the teacher's commit watermark repurposed as a
	// reclamation epoch: a retired cell's storage is only safe to return
	// to an arena once epoch.DoneUntil() has passed the version at which
	// it was retired, since an older transaction may still validate
	// against it.
	epoch *watermark.WaterMark

	// fallback is the escalation lock from spec.md §5: every
	// speculatively-committing transaction holds it for read during its
	// attempt; an escalated transaction takes it for write and runs
	// alone, non-speculatively.
	fallback sync.RWMutex

	arenaMu sync.Mutex
	arenas  map[int]*arena.Arena

	defaultArenaOnce sync.Once
	defaultArenaPtr  *arena.Arena

	// reclaimMu and reclaim back Txn.Free's deferred arena release: a
	// retired cell's storage waits here until epoch.DoneUntil has passed
	// the version it was retired at and nothing still references it.
	reclaimMu sync.Mutex
	reclaim   []reclaimEntry

	closed atomic.Bool
}

// reclaimEntry is one cell waiting for the reclamation epoch to clear it
// before its backing buffer is handed back to an arena.
type reclaimEntry struct {
	version uint64
	c       *cell.Cell
	free    func()
}

// deferReclaim queues free to run once the epoch watermark has passed
// version and c is no longer referenced by any in-flight transaction.
func (rt *Runtime) deferReclaim(version uint64, c *cell.Cell, free func()) {
	rt.reclaimMu.Lock()
	rt.reclaim = append(rt.reclaim, reclaimEntry{version: version, c: c, free: free})
	rt.reclaimMu.Unlock()
}

// drainReclaim actually returns every retired cell the epoch watermark
// has cleared to its arena. runAtomically calls it opportunistically
// after every attempt; Quiesce calls it after waiting so a caller that
// blocks on Quiesce sees the backlog drained before it returns.
func (rt *Runtime) drainReclaim() {
	done := rt.epoch.DoneUntil()

	rt.reclaimMu.Lock()
	defer rt.reclaimMu.Unlock()
	if len(rt.reclaim) == 0 {
		return
	}

	kept := rt.reclaim[:0]
	for _, e := range rt.reclaim {
		if e.version <= done && e.c.Reclaimable() {
			e.free()
			continue
		}
		kept = append(kept, e)
	}
	rt.reclaim = kept
}

// Open initializes a runtime. Orec table allocation failure and other
// startup misconfiguration (spec.md §7) are the only errors it returns;
// everything else in Config is clamped to a default by validate().
func Open(cfg Config) (*Runtime, error) {
	cfg.validate()
	if cfg.OrecTableSize > maxOrecTableSize {
		return nil, ErrOrecTableAlloc
	}
	rt := &Runtime{
		cfg:    cfg,
		logger: logger.GetLogger(),
		orecs:  orec.NewTable(cfg.OrecTableSize),
		arenas: make(map[int]*arena.Arena),
		epoch:  watermark.New(),
	}
	return rt, nil
}

// Close tears the runtime down. It does not join any workers started via
// StartWorkers; callers are expected to have already done so.
func (rt *Runtime) Close() {
	rt.closed.Store(true)
	rt.epoch.Stop()
}

// Quiesce blocks until every transaction that had already begun by the
// time Quiesce was called has committed, aborted for good, or escalated.
// Background reclamation and container compaction use this to find a
// point at which every retired cell is truly unreferenced.
func (rt *Runtime) Quiesce(ctx context.Context) error {
	// Mark the current clock value begun and done so the watermark can
	// reach it even when no later transaction begins at that version.
	ts := rt.clock.Load()
	rt.epoch.Begin(ts)
	rt.epoch.Done(ts)
	if err := rt.epoch.WaitForMark(ctx, ts); err != nil {
		return err
	}
	rt.drainReclaim()
	return nil
}

func (rt *Runtime) defaultArena() *arena.Arena {
	rt.defaultArenaOnce.Do(func() {
		rt.defaultArenaPtr = arena.New(rt.cfg.ArenaBlockSize, rt.cfg.ArenaGrowthFactor)
	})
	return rt.defaultArenaPtr
}

// Worker is the argument thread_start hands to the forked function: it
// carries the worker's id, the total worker count, its own allocation
// arena, and the phase barrier shared by the whole pool.
type Worker struct {
	id int
	n  int

	rt      *Runtime
	arena   *arena.Arena
	barrier *barrier.Barrier
}

// ID is thread_getId().
func (w *Worker) ID() int { return w.id }

// NumWorkers is thread_getNumThread().
func (w *Worker) NumWorkers() int { return w.n }

// BarrierWait is thread_barrier_wait(): blocks until every worker in the
// pool has called it for the current phase.
func (w *Worker) BarrierWait() { w.barrier.Wait() }

// Atomically runs fn as a top-level transaction using this worker's own
// arena for any TM_MALLOC calls inside it.
func (w *Worker) Atomically(fn func(*Txn) error) error {
	return w.rt.runAtomically(nil, w.arena, fn)
}

// StartWorkers is thread_startup + thread_start + thread_shutdown rolled
// into one call: it forks fn across n workers with ids 0..n-1, gives each
// its own arena and a shared barrier, and blocks until all of them
// return, exactly as spec.md §4.E describes. The first non-nil error
// returned by any worker is propagated; the others are left to finish.
func (rt *Runtime) StartWorkers(n int, fn func(*Worker) error) error {
	if n <= 0 {
		return ErrZeroWorkers
	}

	b := barrier.New(n)
	g := new(errgroup.Group)

	workers := make([]*Worker, n)
	for id := 0; id < n; id++ {
		a := arena.New(rt.cfg.ArenaBlockSize, rt.cfg.ArenaGrowthFactor)
		rt.registerArena(id, a)
		workers[id] = &Worker{id: id, n: n, rt: rt, arena: a, barrier: b}
	}

	for _, w := range workers {
		w := w
		g.Go(func() error { return fn(w) })
	}

	err := g.Wait()
	rt.clearArenas()
	return err
}

func (rt *Runtime) registerArena(id int, a *arena.Arena) {
	rt.arenaMu.Lock()
	defer rt.arenaMu.Unlock()
	rt.arenas[id] = a
}

func (rt *Runtime) clearArenas() {
	rt.arenaMu.Lock()
	defer rt.arenaMu.Unlock()
	rt.arenas = make(map[int]*arena.Arena)
}
