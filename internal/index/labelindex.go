// Package index implements the four index kinds from spec §4.6: a
// compressed label bitmap index, an ordered property index for
// exact/range/prefix lookups, a hand-rolled HNSW vector index, and a
// hand-rolled BM25 full-text index. The write operators update them
// through Manager.Apply as each write executes, not at commit.
package index

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// LabelIndex maps a label id to the compressed bitmap of node ids
// currently carrying that label (spec §4.6 "label_id → bitmap of
// node_ids"). Grounded on the compressed-bitmap usage surfaced in the
// erigon go.mod within the pack: roaring is exactly the union/
// intersection structure the specification calls for. The 64-bit variant
// is used because node ids are not bounded to 32 bits.
type LabelIndex struct {
	mu   sync.RWMutex
	byID map[uint32]*roaring64.Bitmap
}

func NewLabelIndex() *LabelIndex {
	return &LabelIndex{byID: make(map[uint32]*roaring64.Bitmap)}
}

func (li *LabelIndex) bitmap(label uint32) *roaring64.Bitmap {
	b, ok := li.byID[label]
	if !ok {
		b = roaring64.New()
		li.byID[label] = b
	}
	return b
}

// Add marks nodeID as carrying label.
func (li *LabelIndex) Add(label uint32, nodeID uint64) {
	li.mu.Lock()
	defer li.mu.Unlock()
	li.bitmap(label).Add(nodeID)
}

// Remove unmarks nodeID for label.
func (li *LabelIndex) Remove(label uint32, nodeID uint64) {
	li.mu.Lock()
	defer li.mu.Unlock()
	if b, ok := li.byID[label]; ok {
		b.Remove(nodeID)
	}
}

// NodesWithLabel returns the set of node ids carrying label.
func (li *LabelIndex) NodesWithLabel(label uint32) *roaring64.Bitmap {
	li.mu.RLock()
	defer li.mu.RUnlock()
	if b, ok := li.byID[label]; ok {
		return b.Clone()
	}
	return roaring64.New()
}

// Intersect returns the bitmap of node ids carrying every label in labels
// (used for `(n:A:B)` multi-label patterns).
func (li *LabelIndex) Intersect(labels []uint32) *roaring64.Bitmap {
	li.mu.RLock()
	defer li.mu.RUnlock()
	if len(labels) == 0 {
		return roaring64.New()
	}
	result := li.bitmapLocked(labels[0]).Clone()
	for _, l := range labels[1:] {
		result.And(li.bitmapLocked(l))
	}
	return result
}

func (li *LabelIndex) bitmapLocked(label uint32) *roaring64.Bitmap {
	if b, ok := li.byID[label]; ok {
		return b
	}
	return roaring64.New()
}

// Union returns the bitmap of node ids carrying any label in labels.
func (li *LabelIndex) Union(labels []uint32) *roaring64.Bitmap {
	li.mu.RLock()
	defer li.mu.RUnlock()
	result := roaring64.New()
	for _, l := range labels {
		result.Or(li.bitmapLocked(l))
	}
	return result
}

// Cardinality returns the number of nodes carrying label, used by the
// planner's heuristic cost model to prefer the smaller-cardinality side
// of a join.
func (li *LabelIndex) Cardinality(label uint32) uint64 {
	li.mu.RLock()
	defer li.mu.RUnlock()
	if b, ok := li.byID[label]; ok {
		return b.GetCardinality()
	}
	return 0
}
