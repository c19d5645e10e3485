package index

import (
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/btree"

	"github.com/nexusdb/nexus/internal/value"
)

// propEntry is one (value, ids) node in a property B-tree, ordered by
// value.Compare. Grounded on spec §4.6: "(label_id, key_id) → ordered map
// value → set of ids".
type propEntry struct {
	key value.Value
	ids *roaring64.Bitmap
}

func (e *propEntry) Less(than btree.Item) bool {
	o := than.(*propEntry)
	return compareKeys(e.key, o.key) < 0
}

// compareKeys orders first by type (so the tree has a single total
// order across a mixed-type property), then by value.Compare within a
// type family.
func compareKeys(a, b value.Value) int {
	if a.Type() != b.Type() {
		if a.Type() < b.Type() {
			return -1
		}
		return 1
	}
	return value.Compare(a, b)
}

// PropIndex is a single (label_id, key_id) exact/range/prefix index.
type PropIndex struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func NewPropIndex() *PropIndex {
	return &PropIndex{tree: btree.New(32)}
}

// Set adds id under key, creating the key's bucket if absent.
func (pi *PropIndex) Set(key value.Value, id uint64) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	probe := &propEntry{key: key}
	if existing := pi.tree.Get(probe); existing != nil {
		existing.(*propEntry).ids.Add(id)
		return
	}
	probe.ids = roaring64.New()
	probe.ids.Add(id)
	pi.tree.ReplaceOrInsert(probe)
}

// Unset removes id from key's bucket, pruning the bucket if it becomes
// empty.
func (pi *PropIndex) Unset(key value.Value, id uint64) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	probe := &propEntry{key: key}
	existing := pi.tree.Get(probe)
	if existing == nil {
		return
	}
	e := existing.(*propEntry)
	e.ids.Remove(id)
	if e.ids.IsEmpty() {
		pi.tree.Delete(probe)
	}
}

// Exact returns the ids whose property value equals key.
func (pi *PropIndex) Exact(key value.Value) *roaring64.Bitmap {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	if item := pi.tree.Get(&propEntry{key: key}); item != nil {
		return item.(*propEntry).ids.Clone()
	}
	return roaring64.New()
}

// Range returns the ids whose property value lies in [lo, hi] (inclusive
// on both ends when provided; pass value.Null for an unbounded side).
func (pi *PropIndex) Range(lo, hi value.Value) *roaring64.Bitmap {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	result := roaring64.New()
	visit := func(item btree.Item) bool {
		e := item.(*propEntry)
		if !hi.IsNull() && compareKeys(e.key, hi) > 0 {
			return false
		}
		result.Or(e.ids)
		return true
	}
	if lo.IsNull() {
		pi.tree.Ascend(visit)
	} else {
		pi.tree.AscendGreaterOrEqual(&propEntry{key: lo}, visit)
	}
	return result
}

// Prefix returns the ids of string-typed keys that start with prefix,
// scanning the ordered string range [prefix, prefix+0xff) supported by
// the tree's total order over strings.
func (pi *PropIndex) Prefix(prefix string) *roaring64.Bitmap {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	result := roaring64.New()
	start := &propEntry{key: value.String(prefix)}
	pi.tree.AscendGreaterOrEqual(start, func(item btree.Item) bool {
		e := item.(*propEntry)
		if e.key.Type() != value.TypeString {
			return false
		}
		if !strings.HasPrefix(e.key.Str(), prefix) {
			return false
		}
		result.Or(e.ids)
		return true
	})
	return result
}

// Cardinality returns the number of distinct keys currently indexed.
func (pi *PropIndex) Cardinality() int {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	return pi.tree.Len()
}
