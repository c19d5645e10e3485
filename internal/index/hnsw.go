package index

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

// Metric selects the distance function an HNSW index scores by.
type Metric int

const (
	MetricCosine Metric = iota
	MetricEuclidean
)

// HNSWParams are the build/search parameters from spec §4.6: dimension
// bound, metric, and the standard HNSW construction knobs.
type HNSWParams struct {
	Dimension      int
	Metric         Metric
	M              int // max neighbors per node per layer
	EfConstruction int
	EfSearch       int
}

const maxDimension = 4096

func (p *HNSWParams) validate() error {
	if p.Dimension <= 0 || p.Dimension > maxDimension {
		return nexuserr.New(nexuserr.KindValidation, 400, "index: vector dimension %d exceeds bound %d", p.Dimension, maxDimension)
	}
	if p.M <= 0 {
		p.M = 16
	}
	if p.EfConstruction <= 0 {
		p.EfConstruction = 200
	}
	return nil
}

type hnswNode struct {
	id        uint64
	vec       []float32
	layer     int
	neighbors [][]uint64 // neighbors[l] = neighbor node ids at layer l
}

// HNSW is a hand-rolled approximate nearest-neighbor index: no ecosystem
// HNSW library appears anywhere in the retrieved pack (justified in
// DESIGN.md), so construction and search are implemented directly
// against the multi-layer proximity-graph algorithm.
type HNSW struct {
	mu     sync.RWMutex
	params HNSWParams
	rng    *rand.Rand

	nodes      map[uint64]*hnswNode
	entryPoint uint64
	hasEntry   bool
	maxLayer   int
	levelMult  float64
}

func NewHNSW(params HNSWParams) (*HNSW, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &HNSW{
		params:    params,
		rng:       rand.New(rand.NewSource(1)),
		nodes:     make(map[uint64]*hnswNode),
		levelMult: 1 / math.Log(float64(maxInt(params.M, 2))),
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (h *HNSW) distance(a, b []float32) float64 {
	switch h.params.Metric {
	case MetricEuclidean:
		return euclidean(a, b)
	default:
		return cosineDistance(a, b)
	}
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (h *HNSW) randomLevel() int {
	level := 0
	for h.rng.Float64() < 1.0/math.E && level < 32 {
		level++
	}
	return level
}

// Insert adds or replaces vec under id.
func (h *HNSW) Insert(id uint64, vec []float32) error {
	if len(vec) != h.params.Dimension {
		return nexuserr.New(nexuserr.KindValidation, 400, "index: vector dimension mismatch: got %d want %d", len(vec), h.params.Dimension)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	level := h.randomLevel()
	node := &hnswNode{id: id, vec: vec, layer: level, neighbors: make([][]uint64, level+1)}
	h.nodes[id] = node

	if !h.hasEntry {
		h.entryPoint = id
		h.hasEntry = true
		h.maxLayer = level
		return nil
	}

	cur := h.entryPoint
	for l := h.maxLayer; l > level; l-- {
		cur = h.greedyClosest(cur, vec, l)
	}
	for l := minInt(level, h.maxLayer); l >= 0; l-- {
		candidates := h.searchLayer(vec, cur, h.params.EfConstruction, l)
		neighbors := selectNeighbors(candidates, h.params.M)
		node.neighbors[l] = neighbors
		for _, n := range neighbors {
			h.link(n, id, l)
		}
		if len(candidates) > 0 {
			cur = candidates[0].id
		}
	}
	if level > h.maxLayer {
		h.maxLayer = level
		h.entryPoint = id
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// link adds to's id as a neighbor of fromID at layer l, pruning down to M
// neighbors by distance if the cap is exceeded.
func (h *HNSW) link(fromID, to uint64, l int) {
	from, ok := h.nodes[fromID]
	if !ok || l >= len(from.neighbors) {
		return
	}
	from.neighbors[l] = append(from.neighbors[l], to)
	if len(from.neighbors[l]) <= h.params.M {
		return
	}
	type scored struct {
		id   uint64
		dist float64
	}
	scoredList := make([]scored, 0, len(from.neighbors[l]))
	for _, nid := range from.neighbors[l] {
		if n, ok := h.nodes[nid]; ok {
			scoredList = append(scoredList, scored{nid, h.distance(from.vec, n.vec)})
		}
	}
	sortByDist(scoredList)
	kept := make([]uint64, 0, h.params.M)
	for i := 0; i < len(scoredList) && i < h.params.M; i++ {
		kept = append(kept, scoredList[i].id)
	}
	from.neighbors[l] = kept
}

func sortByDist(s []struct {
	id   uint64
	dist float64
}) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].dist < s[j-1].dist; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func (h *HNSW) greedyClosest(from uint64, target []float32, layer int) uint64 {
	best := from
	bestDist := h.distance(h.nodes[from].vec, target)
	improved := true
	for improved {
		improved = false
		node := h.nodes[best]
		if layer >= len(node.neighbors) {
			break
		}
		for _, nid := range node.neighbors[layer] {
			n, ok := h.nodes[nid]
			if !ok {
				continue
			}
			d := h.distance(n.vec, target)
			if d < bestDist {
				bestDist = d
				best = nid
				improved = true
			}
		}
	}
	return best
}

type candidate struct {
	id   uint64
	dist float64
}

// searchLayer runs a greedy beam search at layer, returning up to ef
// candidates sorted by ascending distance.
func (h *HNSW) searchLayer(target []float32, entry uint64, ef int, layer int) []candidate {
	visited := map[uint64]bool{entry: true}
	entryDist := h.distance(h.nodes[entry].vec, target)

	cand := &maxHeap{{entry, -entryDist}}
	result := &maxHeap{{entry, entryDist}}
	heap.Init(cand)
	heap.Init(result)

	for cand.Len() > 0 {
		c := heap.Pop(cand).(candidate)
		c.dist = -c.dist
		if result.Len() >= ef {
			worst := (*result)[0]
			if c.dist > worst.dist {
				break
			}
		}
		node, ok := h.nodes[c.id]
		if !ok || layer >= len(node.neighbors) {
			continue
		}
		for _, nid := range node.neighbors[layer] {
			if visited[nid] {
				continue
			}
			visited[nid] = true
			n, ok := h.nodes[nid]
			if !ok {
				continue
			}
			d := h.distance(n.vec, target)
			if result.Len() < ef || d < (*result)[0].dist {
				heap.Push(cand, candidate{nid, -d})
				heap.Push(result, candidate{nid, d})
				if result.Len() > ef {
					heap.Pop(result)
				}
			}
		}
	}
	out := make([]candidate, result.Len())
	copy(out, *result)
	sortCandidatesAsc(out)
	return out
}

func sortCandidatesAsc(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && (c[j].dist < c[j-1].dist || (c[j].dist == c[j-1].dist && c[j].id < c[j-1].id)); j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// selectNeighbors picks up to m closest candidates' ids, already sorted
// ascending by distance.
func selectNeighbors(candidates []candidate, m int) []uint64 {
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	ids := make([]uint64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids
}

// maxHeap is a binary max-heap by distance. In searchLayer it backs the
// bounded result set, where the *worst* (largest distance) candidate is
// evicted once it exceeds ef, and also the candidate frontier, which
// stores negated distances so that Pop yields the closest candidate first.
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Result is one scored neighbor from a KNN search.
type Result struct {
	ID    uint64
	Score float64
}

// Search returns the k nearest neighbors to query, sorted score-ascending
// (ties broken by id, per spec §4.6).
func (h *HNSW) Search(query []float32, k int) ([]Result, error) {
	if len(query) != h.params.Dimension {
		return nil, nexuserr.New(nexuserr.KindValidation, 400, "index: query dimension mismatch: got %d want %d", len(query), h.params.Dimension)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.hasEntry {
		return nil, nil
	}
	ef := h.params.EfSearch
	if ef < k {
		ef = k
	}
	if ef <= 0 {
		ef = 10
	}

	cur := h.entryPoint
	for l := h.maxLayer; l > 0; l-- {
		cur = h.greedyClosest(cur, query, l)
	}
	candidates := h.searchLayer(query, cur, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{ID: c.id, Score: c.dist}
	}
	return out, nil
}

// Remove deletes id from the index. Neighbors referencing it are left in
// place and filtered lazily on search/greedy walk (cheap tombstoning,
// matching the record store's own deferred-compaction approach for
// relationship chains).
func (h *HNSW) Remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.nodes, id)
	if h.entryPoint == id {
		h.hasEntry = false
		for otherID := range h.nodes {
			h.entryPoint = otherID
			h.hasEntry = true
			break
		}
	}
}
