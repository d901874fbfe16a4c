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

// Package hashtable is the fixed-bucket-count hash table container
// (spec.md §4.G): no rehashing, each bucket a transactional singly
// linked chain. The bucket count is fixed at construction and rounded
// up to a power of two so bucket selection is a mask, the same trick
// pkg/orec uses for stripe selection.
package hashtable

import (
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/stamprt/stamp/pkg/bufferpool"
	"github.com/stamprt/stamp/pkg/cell"
	"github.com/stamprt/stamp/pkg/filter"
)

// HashFunc maps a key to a 64-bit hash. DefaultHash uses murmur3, the
// same hash pkg/orec's StripeHash uses.
type HashFunc func(key any) uint64

// EqualFunc reports whether two keys are equal.
type EqualFunc func(a, b any) bool

// DefaultHash hashes a key's string form with murmur3. Callers with a
// cheaper natural hash (ints, fixed-size structs) should supply their
// own HashFunc instead.
func DefaultHash(key any) uint64 {
	switch k := key.(type) {
	case string:
		return murmur3.Sum64([]byte(k))
	case []byte:
		return murmur3.Sum64(k)
	default:
		return murmur3.Sum64([]byte(stringify(key)))
	}
}

// stringify produces a best-effort string form for a key that is
// neither a string nor a []byte, used only to spread DefaultHash's
// bucket assignment for such keys; it is never relied on for equality.
// The scratch buffer comes from pkg/bufferpool, the teacher's pool for
// short-lived formatting buffers.
func stringify(key any) string {
	type stringer interface{ String() string }
	if s, ok := key.(stringer); ok {
		return s.String()
	}
	buf := bufferpool.Pool.Get()
	defer bufferpool.Pool.Put(buf)
	fmt.Fprintf(buf, "%v", key)
	return buf.String()
}

type entry struct {
	key   any
	value any
	next  *entry
}

// Table is the transactional hash table. Buckets are *cell.Cell heads
// of a singly linked chain of entries; every lookup, insert and delete
// walks the chain through the engine's Read/Write so concurrent access
// to the same bucket is conflict-detected at bucket granularity.
type Table struct {
	hash    HashFunc
	equal   EqualFunc
	buckets []*cell.Cell // each holds *entry or nil
	mask    uint64

	// reject is an optional bloom filter prefilter: a miss there proves
	// the key cannot be present without walking any chain at all. It is
	// rebuilt by Reindex, not maintained incrementally, since a stale
	// false negative would be a correctness bug.
	reject *filter.Filter
}

// txn is the minimal surface Table needs from *stamp.Txn.
type txn interface {
	Read(c *cell.Cell) any
	Write(c *cell.Cell, v any)
}

// New creates a table with at least nBuckets buckets (rounded up to a
// power of two) using hash/equal for key comparison.
func New(nBuckets int, hash HashFunc, equal EqualFunc) *Table {
	if nBuckets <= 0 {
		nBuckets = 16
	}
	n := 1
	for n < nBuckets {
		n <<= 1
	}
	buckets := make([]*cell.Cell, n)
	for i := range buckets {
		buckets[i] = cell.New((*entry)(nil))
	}
	return &Table{hash: hash, equal: equal, buckets: buckets, mask: uint64(n - 1)}
}

func (t *Table) bucketFor(key any) *cell.Cell {
	return t.buckets[t.hash(key)&t.mask]
}

func loadEntry(tx txn, c *cell.Cell) *entry {
	v := tx.Read(c)
	if v == nil {
		return nil
	}
	return v.(*entry)
}

// TmGet is TM_GET. When the table carries a bloom-filter prefilter
// (built by Reindex) and key is a string, a filter miss skips the
// bucket walk entirely; any other key type always walks the chain,
// since the filter's false-negative guarantee only holds for the
// exact byte representation it was built from.
func (t *Table) TmGet(tx txn, key any) (any, bool) {
	if t.reject != nil {
		if s, ok := key.(string); ok && !t.reject.Contains(s) {
			return nil, false
		}
	}
	for e := loadEntry(tx, t.bucketFor(key)); e != nil; e = e.next {
		if t.equal(e.key, key) {
			return e.value, true
		}
	}
	return nil, false
}

// TmContains is TM_CONTAINS.
func (t *Table) TmContains(tx txn, key any) bool {
	_, ok := t.TmGet(tx, key)
	return ok
}

// TmPut is TM_PUT: inserts key/value, or overwrites the value of an
// existing entry found in the bucket chain. The whole chain up to the
// insertion point is rebuilt and republished, the same pattern
// pkg/avltree uses for its rebalance path.
func (t *Table) TmPut(tx txn, key, value any) {
	bucket := t.bucketFor(key)
	head := loadEntry(tx, bucket)

	for e := head; e != nil; e = e.next {
		if t.equal(e.key, key) {
			tx.Write(bucket, rebuildWithValue(head, e, value))
			return
		}
	}
	tx.Write(bucket, &entry{key: key, value: value, next: head})
}

// rebuildWithValue returns a new chain identical to head except the
// node matching target carries value instead of its old payload. It
// never mutates an existing *entry in place, matching every other
// container's copy-on-write discipline under an active transaction.
func rebuildWithValue(head, target *entry, value any) *entry {
	if head == target {
		return &entry{key: head.key, value: value, next: head.next}
	}
	return &entry{key: head.key, value: head.value, next: rebuildWithValue(head.next, target, value)}
}

// TmDelete is TM_DELETE.
func (t *Table) TmDelete(tx txn, key any) bool {
	bucket := t.bucketFor(key)
	head := loadEntry(tx, bucket)

	newHead, removed := removeKey(t.equal, head, key)
	if !removed {
		return false
	}
	tx.Write(bucket, newHead)
	return true
}

func removeKey(equal EqualFunc, head *entry, key any) (*entry, bool) {
	if head == nil {
		return nil, false
	}
	if equal(head.key, key) {
		return head.next, true
	}
	rest, removed := removeKey(equal, head.next, key)
	if !removed {
		return head, false
	}
	return &entry{key: head.key, value: head.value, next: rest}, true
}

// Reindex rebuilds the bloom-filter prefilter from keys, used after a
// bulk load performed outside any transaction. A table with no
// prefilter (the default) always walks the bucket chain directly.
func (t *Table) Reindex(keys []string) {
	t.reject = filter.Build(keys)
}
