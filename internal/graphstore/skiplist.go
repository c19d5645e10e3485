package graphstore

import "math/rand"

const maxSkipListLevel = 16

// skipListNode is one node in the sorted set's skip list, keyed by dst
// (or src) id.
type skipListNode struct {
	key  uint64
	next []*skipListNode
}

// SkipList is a sorted set of uint64 ids with O(log n) insert/remove/
// contains/range, layered over each relationship type's adjacency set
// (spec §4.7 "skip lists over sorted sets for O(log n) range and point
// lookups"). No ecosystem skip-list library appears anywhere in the
// retrieved pack, so this is hand-rolled and justified in DESIGN.md.
type SkipList struct {
	head  *skipListNode
	level int
	size  int
	rng   *rand.Rand
}

func NewSkipList() *SkipList {
	return &SkipList{
		head:  &skipListNode{next: make([]*skipListNode, maxSkipListLevel)},
		level: 1,
		rng:   rand.New(rand.NewSource(1)),
	}
}

func (s *SkipList) randomLevel() int {
	level := 1
	for s.rng.Float64() < 0.5 && level < maxSkipListLevel {
		level++
	}
	return level
}

// Insert adds key if absent; returns true if it was newly inserted.
func (s *SkipList) Insert(key uint64) bool {
	update := make([]*skipListNode, maxSkipListLevel)
	cur := s.head
	for l := s.level - 1; l >= 0; l-- {
		for cur.next[l] != nil && cur.next[l].key < key {
			cur = cur.next[l]
		}
		update[l] = cur
	}
	if cur.next[0] != nil && cur.next[0].key == key {
		return false
	}
	level := s.randomLevel()
	if level > s.level {
		for l := s.level; l < level; l++ {
			update[l] = s.head
		}
		s.level = level
	}
	node := &skipListNode{key: key, next: make([]*skipListNode, level)}
	for l := 0; l < level; l++ {
		node.next[l] = update[l].next[l]
		update[l].next[l] = node
	}
	s.size++
	return true
}

// Remove deletes key if present; returns true if it was removed.
func (s *SkipList) Remove(key uint64) bool {
	update := make([]*skipListNode, maxSkipListLevel)
	cur := s.head
	for l := s.level - 1; l >= 0; l-- {
		for cur.next[l] != nil && cur.next[l].key < key {
			cur = cur.next[l]
		}
		update[l] = cur
	}
	target := cur.next[0]
	if target == nil || target.key != key {
		return false
	}
	for l := 0; l < s.level; l++ {
		if update[l].next[l] != target {
			continue
		}
		update[l].next[l] = target.next[l]
	}
	for s.level > 1 && s.head.next[s.level-1] == nil {
		s.level--
	}
	s.size--
	return true
}

// Contains reports whether key is present.
func (s *SkipList) Contains(key uint64) bool {
	cur := s.head
	for l := s.level - 1; l >= 0; l-- {
		for cur.next[l] != nil && cur.next[l].key < key {
			cur = cur.next[l]
		}
	}
	cur = cur.next[0]
	return cur != nil && cur.key == key
}

// Len returns the number of elements.
func (s *SkipList) Len() int { return s.size }

// Ascend visits every key in ascending order, stopping early if visit
// returns false.
func (s *SkipList) Ascend(visit func(uint64) bool) {
	for cur := s.head.next[0]; cur != nil; cur = cur.next[0] {
		if !visit(cur.key) {
			return
		}
	}
}

// Range visits keys in [lo, hi] ascending order.
func (s *SkipList) Range(lo, hi uint64, visit func(uint64) bool) {
	cur := s.head
	for l := s.level - 1; l >= 0; l-- {
		for cur.next[l] != nil && cur.next[l].key < lo {
			cur = cur.next[l]
		}
	}
	for cur = cur.next[0]; cur != nil && cur.key <= hi; cur = cur.next[0] {
		if !visit(cur.key) {
			return
		}
	}
}

// Slice returns every key in ascending order as a plain slice.
func (s *SkipList) Slice() []uint64 {
	out := make([]uint64, 0, s.size)
	s.Ascend(func(k uint64) bool {
		out = append(out, k)
		return true
	})
	return out
}
