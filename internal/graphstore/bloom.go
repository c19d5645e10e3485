package graphstore

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/holiman/bloomfilter/v2"
)

// Direction is an edge traversal direction.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

const bloomFalsePositiveRate = 0.01

type bloomKey struct {
	relType uint32
	dir     Direction
	node    uint64
}

// edgeBloom tracks, per (type, direction, node), a bloom filter over the
// other endpoint's id so has_edge can fast-reject before falling back to
// a verified skip-list lookup (spec §4.7). Each filter is sized for 64
// members at a 1% false-positive rate; a key with more than 64 members
// keeps the same filter, so its false-positive rate rises above 1%.
// Grounded on the erigon go.mod's holiman/bloomfilter/v2 usage for
// existence checks.
type edgeBloom struct {
	mu      sync.Mutex
	filters map[bloomKey]*bloomfilter.Filter
	// capacity counts the Adds per key. filterFor sizes a new filter from
	// it (64 when it is zero); a filter is created only at a key's first
	// Add or after Reset, which clears both maps, so the count is zero
	// at that point.
	capacity map[bloomKey]uint64
}

func newEdgeBloom() *edgeBloom {
	return &edgeBloom{
		filters:  make(map[bloomKey]*bloomfilter.Filter),
		capacity: make(map[bloomKey]uint64),
	}
}

func hashEdgeMember(other uint64) uint64 {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(other >> (8 * i))
	}
	return xxhash.Sum64(buf[:])
}

func (eb *edgeBloom) filterFor(k bloomKey) *bloomfilter.Filter {
	f, ok := eb.filters[k]
	if ok {
		return f
	}
	n := eb.capacity[k]
	if n == 0 {
		n = 64
	}
	f, err := bloomfilter.NewOptimal(n, bloomFalsePositiveRate)
	if err != nil {
		// NewOptimal only fails on n == 0 or an invalid probability; both
		// are unreachable given the defaults above.
		panic(err)
	}
	eb.filters[k] = f
	return f
}

// Add records that an edge to/from other exists for (relType, dir, node).
func (eb *edgeBloom) Add(relType uint32, dir Direction, node, other uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	k := bloomKey{relType, dir, node}
	f := eb.filterFor(k)
	eb.capacity[k]++
	f.Add(hashEdgeMember(other))
}

// MaybeContains returns false if other is definitely not present, true if
// it might be (a verified lookup must follow).
func (eb *edgeBloom) MaybeContains(relType uint32, dir Direction, node, other uint64) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	k := bloomKey{relType, dir, node}
	f, ok := eb.filters[k]
	if !ok {
		return false
	}
	return f.Contains(hashEdgeMember(other))
}

// Reset drops the filter for (relType, dir, node), e.g. after edges are
// physically compacted away, so a fresh filter is built at the next Add.
func (eb *edgeBloom) Reset(relType uint32, dir Direction, node uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	k := bloomKey{relType, dir, node}
	delete(eb.filters, k)
	delete(eb.capacity, k)
}
