// Package graphstore implements the adjacency-index accelerator from
// spec §4.7: type-segmented sorted neighbor sets, a bloom filter per
// (type, direction, node) for O(1) has-edge rejection, and skip lists for
// O(log n) point/range lookups. The record store's relationship linked
// lists remain authoritative; this index is a query-time accelerator,
// rebuildable from them.
package graphstore

import "sync"

type typeNodeKey struct {
	relType uint32
	node    uint64
}

// Store is the adjacency-index accelerator for one database: outgoing
// and incoming sorted sets per relationship type, plus bloom filters and
// running edge counters.
type Store struct {
	mu sync.RWMutex

	outgoing map[typeNodeKey]*AdjacencySet
	incoming map[typeNodeKey]*AdjacencySet
	bloom    *edgeBloom

	outCount map[typeNodeKey]int
	inCount  map[typeNodeKey]int
}

func NewStore() *Store {
	return &Store{
		outgoing: make(map[typeNodeKey]*AdjacencySet),
		incoming: make(map[typeNodeKey]*AdjacencySet),
		bloom:    newEdgeBloom(),
		outCount: make(map[typeNodeKey]int),
		inCount:  make(map[typeNodeKey]int),
	}
}

func (s *Store) setFor(m map[typeNodeKey]*AdjacencySet, k typeNodeKey) *AdjacencySet {
	a, ok := m[k]
	if !ok {
		a = NewAdjacencySet()
		m[k] = a
	}
	return a
}

// AddEdge records a src->dst edge of relType in both directions'
// adjacency sets, amortized O(log n) via the underlying skip lists.
func (s *Store) AddEdge(src, dst uint64, relType uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outKey := typeNodeKey{relType, src}
	if s.setFor(s.outgoing, outKey).Add(dst) {
		s.outCount[outKey]++
	}
	inKey := typeNodeKey{relType, dst}
	if s.setFor(s.incoming, inKey).Add(src) {
		s.inCount[inKey]++
	}
	s.bloom.Add(relType, Outgoing, src, dst)
	s.bloom.Add(relType, Incoming, dst, src)
}

// RemoveEdge removes a src->dst edge of relType from both directions.
func (s *Store) RemoveEdge(src, dst uint64, relType uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outKey := typeNodeKey{relType, src}
	if set, ok := s.outgoing[outKey]; ok && set.Remove(dst) {
		s.outCount[outKey]--
	}
	inKey := typeNodeKey{relType, dst}
	if set, ok := s.incoming[inKey]; ok && set.Remove(src) {
		s.inCount[inKey]--
	}
	// Bloom filters support no true deletion; a stale positive just costs
	// a verified lookup that then correctly reports absence.
}

// Direction selects which adjacency map a query walks.
func (s *Store) adjacencyFor(dir Direction) map[typeNodeKey]*AdjacencySet {
	if dir == Incoming {
		return s.incoming
	}
	return s.outgoing
}

// Neighbors returns every neighbor of node reachable via relType in dir,
// monotonic by id (spec §4.7 "iterator<node_id>, monotonic by id"). A
// zero relType of 0 with matchAnyType=true merges every registered type.
func (s *Store) Neighbors(node uint64, relType uint32, matchAnyType bool, dir Direction) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.adjacencyFor(dir)
	if !matchAnyType {
		set, ok := m[typeNodeKey{relType, node}]
		if !ok {
			return nil
		}
		return set.Slice()
	}

	merged := NewSkipList()
	for k, set := range m {
		if k.node != node {
			continue
		}
		set.Ascend(func(id uint64) bool {
			merged.Insert(id)
			return true
		})
	}
	return merged.Slice()
}

// HasEdge reports whether a src->dst edge of relType exists, bloom-
// rejecting in O(1) before falling back to a verified skip-list lookup
// (spec §4.7).
func (s *Store) HasEdge(src, dst uint64, relType uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.bloom.MaybeContains(relType, Outgoing, src, dst) {
		return false
	}
	set, ok := s.outgoing[typeNodeKey{relType, src}]
	if !ok {
		return false
	}
	return set.Contains(dst)
}

// CountEdges returns the number of edges of relType incident to node in
// dir, O(1) via the maintained counters.
func (s *Store) CountEdges(node uint64, relType uint32, dir Direction) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := typeNodeKey{relType, node}
	if dir == Incoming {
		return s.inCount[k]
	}
	return s.outCount[k]
}

// Rebuild discards all adjacency state, for use when crash recovery finds
// no durable adjacency snapshot and must reconstruct from the record
// store's relationship chains (spec §4.7 "on crash, recovery
// reconstructs... from a full scan if the adjacency snapshot is
// missing"). Callers re-populate via AddEdge after calling Rebuild.
func (s *Store) Rebuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outgoing = make(map[typeNodeKey]*AdjacencySet)
	s.incoming = make(map[typeNodeKey]*AdjacencySet)
	s.bloom = newEdgeBloom()
	s.outCount = make(map[typeNodeKey]int)
	s.inCount = make(map[typeNodeKey]int)
}
