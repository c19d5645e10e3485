package executor

import (
	"github.com/nexusdb/nexus/internal/graphstore"
	"github.com/nexusdb/nexus/internal/planner"
)

// shortestPathIterator implements the shortestPath()/allShortestPaths()
// pattern function: a breadth-first search from From that stops at the
// first depth containing To (spec §4.9's ShortestPath operator).
type shortestPathIterator struct {
	c       *ctx
	input   Iterator
	n       planner.ShortestPath
	typeIDs []uint32
	anyType bool

	cur     Row
	results []Path
	ri      int
}

func newShortestPath(c *ctx, n planner.ShortestPath, input Iterator) (Iterator, error) {
	typeIDs, anyType, err := resolveTypes(c, n.Types)
	if err != nil {
		return nil, err
	}
	return &shortestPathIterator{c: c, input: input, n: n, typeIDs: typeIDs, anyType: anyType}, nil
}

func (it *shortestPathIterator) Next() (Row, bool, error) {
	for {
		if it.ri < len(it.results) {
			p := it.results[it.ri]
			it.ri++
			out := it.cur.Clone()
			if it.n.PathVar != "" {
				out[it.n.PathVar] = PathBinding(p)
			}
			return out, true, nil
		}
		row, ok, err := it.input.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		if err := it.c.checkDeadline(); err != nil {
			return nil, false, err
		}
		it.cur = row
		fromB, fok := row[it.n.From]
		toB, tok := row[it.n.To]
		if !fok || !tok || !fromB.IsNode() || !toB.IsNode() {
			it.results = nil
			it.ri = 0
			continue
		}
		it.results = bfsShortestPaths(it.c, fromB.NodeID(), toB.NodeID(), it.typeIDs, it.anyType, it.n.Dir, it.n.AnyDir, it.n.All)
		it.ri = 0
	}
}

// bfsShortestPaths runs an unweighted BFS from src, stopping at the first
// depth where dst is reached. With all=false only the first path found at
// that depth is returned; with all=true every path of that minimal length
// is collected.
func bfsShortestPaths(c *ctx, src, dst uint64, typeIDs []uint32, anyType bool, dir graphstore.Direction, anyDir, all bool) []Path {
	if src == dst {
		return []Path{{Nodes: []uint64{src}}}
	}
	type frame struct {
		node  uint64
		nodes []uint64
		rels  []uint64
	}
	frontier := []frame{{node: src, nodes: []uint64{src}}}
	visited := map[uint64]int{src: 0} // node -> BFS depth first reached
	var found []Path
	for depth := 1; len(frontier) > 0 && found == nil; depth++ {
		var next []frame
		for _, f := range frontier {
			neighbors, rels := c.neighborsWithRel(f.node, typeIDs, anyType, dir, anyDir)
			for i, nb := range neighbors {
				if nb == dst {
					nodes := append(append([]uint64{}, f.nodes...), nb)
					relChain := append(append([]uint64{}, f.rels...), rels[i])
					found = append(found, Path{Nodes: nodes, Rels: relChain})
					if !all {
						return found
					}
					continue
				}
				// with all, a node first reached at this depth may be
				// reached again through another predecessor at the same depth
				if d, seen := visited[nb]; seen && !(all && d == depth) {
					continue
				}
				visited[nb] = depth
				next = append(next, frame{
					node:  nb,
					nodes: append(append([]uint64{}, f.nodes...), nb),
					rels:  append(append([]uint64{}, f.rels...), rels[i]),
				})
			}
		}
		frontier = next
	}
	return found
}

func (it *shortestPathIterator) Close() { it.input.Close() }
