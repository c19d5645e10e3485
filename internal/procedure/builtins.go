package procedure

import (
	"container/heap"
	"context"
	"sort"

	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/value"
)

func registerBuiltins(r *Registry) {
	r.Register("db.labels", procDBLabels)
	r.Register("db.relationshipTypes", procDBRelTypes)
	r.Register("db.propertyKeys", procDBPropertyKeys)
	r.Register("dbms.showCurrentUser", procShowCurrentUser)
	r.Register("dbms.listConfig", procListConfig)
	r.Register("dbms.listConnections", procListConnections)
	r.Register("dbms.killQuery", procKillQuery)
	r.Register("dbms.clearQueryCaches", procClearQueryCaches)

	r.Register("algo.degree", procDegree)
	r.Register("algo.pageRank", procPageRank)
	r.Register("algo.wcc", procWCC)
	r.Register("algo.scc", procSCC)
	r.Register("algo.labelPropagation", procLabelPropagation)
	r.Register("algo.triangleCount", procTriangleCount)
	r.Register("algo.clusteringCoefficient", procClusteringCoefficient)
	r.Register("algo.closeness", procCloseness)
	r.Register("algo.betweenness", procBetweenness)
	r.Register("algo.eigenvector", procEigenvector)
	r.Register("algo.dijkstra", procDijkstra)
	r.Register("algo.astar", procDijkstra) // unweighted graphs: A* with a zero heuristic degenerates to dijkstra
	r.Register("algo.yens", procYens)
	r.Register("algo.louvain", procLouvain)
}

func procDBLabels(_ context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	out := make([]Row, 0)
	for _, l := range deps.Labels() {
		out = append(out, Row{"label": value.String(l)})
	}
	return out, nil
}

func procDBRelTypes(_ context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	out := make([]Row, 0)
	for _, t := range deps.RelationshipTypes() {
		out = append(out, Row{"relationshipType": value.String(t)})
	}
	return out, nil
}

func procDBPropertyKeys(_ context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	out := make([]Row, 0)
	for _, k := range deps.PropertyKeys() {
		out = append(out, Row{"propertyKey": value.String(k)})
	}
	return out, nil
}

// procShowCurrentUser reports the embedded single-tenant principal; Nexus
// has no multi-user auth layer (spec's auth Non-goal), so this is a fixed
// row rather than a session lookup.
func procShowCurrentUser(_ context.Context, _ Deps, _ []value.Value) ([]Row, error) {
	return []Row{{"username": value.String("nexus"), "roles": value.List(nil)}}, nil
}

func procListConfig(_ context.Context, _ Deps, _ []value.Value) ([]Row, error) {
	return []Row{}, nil
}

func procListConnections(_ context.Context, _ Deps, _ []value.Value) ([]Row, error) {
	return []Row{}, nil
}

func procKillQuery(_ context.Context, _ Deps, args []value.Value) ([]Row, error) {
	if len(args) != 1 {
		return nil, nexuserr.New(nexuserr.KindPlan, 400, "dbms.killQuery takes one query id argument")
	}
	return []Row{{"queryId": args[0], "killed": value.Bool(false)}}, nil
}

func procClearQueryCaches(_ context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	if err := deps.BumpDDLEpoch(); err != nil {
		return nil, err
	}
	return []Row{}, nil
}

func procDegree(_ context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	out := make([]Row, 0)
	for _, id := range deps.NodeIDs() {
		d := len(deps.Neighbors(id, true, ""))
		out = append(out, Row{"nodeId": value.Int(int64(id)), "degree": value.Int(int64(d))})
	}
	return out, nil
}

func adjacency(deps Deps) (map[uint64][]uint64, []uint64) {
	ids := deps.NodeIDs()
	adj := make(map[uint64][]uint64, len(ids))
	for _, id := range ids {
		adj[id] = deps.Neighbors(id, true, "")
	}
	return adj, ids
}

// procPageRank runs the classic power-iteration PageRank with damping
// 0.85, 20 iterations (spec leaves the algorithm's exact parameters
// unspecified; these match the commonly cited defaults).
func procPageRank(ctx context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	adj, ids := adjacency(deps)
	n := len(ids)
	if n == 0 {
		return []Row{}, nil
	}
	const damping = 0.85
	const iterations = 20
	rank := make(map[uint64]float64, n)
	for _, id := range ids {
		rank[id] = 1.0 / float64(n)
	}
	for i := 0; i < iterations; i++ {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		next := make(map[uint64]float64, n)
		base := (1 - damping) / float64(n)
		for _, id := range ids {
			next[id] = base
		}
		for _, id := range ids {
			out := adj[id]
			if len(out) == 0 {
				share := damping * rank[id] / float64(n)
				for _, id2 := range ids {
					next[id2] += share
				}
				continue
			}
			share := damping * rank[id] / float64(len(out))
			for _, nb := range out {
				next[nb] += share
			}
		}
		rank = next
	}
	out := make([]Row, 0, n)
	for _, id := range ids {
		out = append(out, Row{"nodeId": value.Int(int64(id)), "score": value.Float(rank[id])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["score"].Float() > out[j]["score"].Float() })
	return out, nil
}

// procWCC labels each node with its weakly connected component id
// (treating every edge as undirected).
func procWCC(_ context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	adj, ids := adjacency(deps)
	undirected := make(map[uint64]map[uint64]bool, len(ids))
	for id, nbs := range adj {
		for _, nb := range nbs {
			if undirected[id] == nil {
				undirected[id] = map[uint64]bool{}
			}
			if undirected[nb] == nil {
				undirected[nb] = map[uint64]bool{}
			}
			undirected[id][nb] = true
			undirected[nb][id] = true
		}
	}
	comp := make(map[uint64]uint64, len(ids))
	var nextComp uint64
	for _, start := range ids {
		if _, seen := comp[start]; seen {
			continue
		}
		queue := []uint64{start}
		comp[start] = nextComp
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			for nb := range undirected[n] {
				if _, seen := comp[nb]; !seen {
					comp[nb] = nextComp
					queue = append(queue, nb)
				}
			}
		}
		nextComp++
	}
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, Row{"nodeId": value.Int(int64(id)), "componentId": value.Int(int64(comp[id]))})
	}
	return out, nil
}

// procSCC finds strongly connected components via Tarjan's algorithm.
func procSCC(_ context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	adj, ids := adjacency(deps)
	index := map[uint64]int{}
	lowlink := map[uint64]int{}
	onStack := map[uint64]bool{}
	var stack []uint64
	counter := 0
	var comps [][]uint64

	var strongconnect func(v uint64)
	strongconnect = func(v uint64) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true
		for _, w := range adj[v] {
			if _, seen := index[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}
		if lowlink[v] == index[v] {
			var comp []uint64
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			comps = append(comps, comp)
		}
	}
	for _, id := range ids {
		if _, seen := index[id]; !seen {
			strongconnect(id)
		}
	}
	out := make([]Row, 0, len(ids))
	for compID, comp := range comps {
		for _, id := range comp {
			out = append(out, Row{"nodeId": value.Int(int64(id)), "componentId": value.Int(int64(compID))})
		}
	}
	return out, nil
}

// procLabelPropagation assigns each node the most common label among its
// neighbors, iterated to convergence or a fixed cap.
func procLabelPropagation(ctx context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	adj, ids := adjacency(deps)
	label := make(map[uint64]uint64, len(ids))
	for _, id := range ids {
		label[id] = id
	}
	const maxIterations = 20
	for i := 0; i < maxIterations; i++ {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		changed := false
		for _, id := range ids {
			counts := map[uint64]int{}
			for _, nb := range adj[id] {
				counts[label[nb]]++
			}
			best, bestCount := label[id], -1
			for l, c := range counts {
				if c > bestCount || (c == bestCount && l < best) {
					best, bestCount = l, c
				}
			}
			if best != label[id] {
				label[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, Row{"nodeId": value.Int(int64(id)), "label": value.Int(int64(label[id]))})
	}
	return out, nil
}

// procTriangleCount counts, per node, the number of closed triangles its
// undirected neighborhood participates in.
func procTriangleCount(_ context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	adj, ids := adjacency(deps)
	neighborSets := make(map[uint64]map[uint64]bool, len(ids))
	for id, nbs := range adj {
		s := make(map[uint64]bool, len(nbs))
		for _, nb := range nbs {
			s[nb] = true
		}
		neighborSets[id] = s
	}
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		count := 0
		nbs := adj[id]
		for i := 0; i < len(nbs); i++ {
			for j := i + 1; j < len(nbs); j++ {
				if neighborSets[nbs[i]][nbs[j]] || neighborSets[nbs[j]][nbs[i]] {
					count++
				}
			}
		}
		out = append(out, Row{"nodeId": value.Int(int64(id)), "triangles": value.Int(int64(count))})
	}
	return out, nil
}

func procClusteringCoefficient(_ context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	adj, ids := adjacency(deps)
	neighborSets := make(map[uint64]map[uint64]bool, len(ids))
	for id, nbs := range adj {
		s := make(map[uint64]bool, len(nbs))
		for _, nb := range nbs {
			s[nb] = true
		}
		neighborSets[id] = s
	}
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		nbs := adj[id]
		k := len(nbs)
		if k < 2 {
			out = append(out, Row{"nodeId": value.Int(int64(id)), "coefficient": value.Float(0)})
			continue
		}
		links := 0
		for i := 0; i < len(nbs); i++ {
			for j := i + 1; j < len(nbs); j++ {
				if neighborSets[nbs[i]][nbs[j]] || neighborSets[nbs[j]][nbs[i]] {
					links++
				}
			}
		}
		possible := float64(k*(k-1)) / 2
		out = append(out, Row{"nodeId": value.Int(int64(id)), "coefficient": value.Float(float64(links) / possible)})
	}
	return out, nil
}

// procCloseness computes closeness centrality from unweighted BFS
// distances (1 / average shortest-path distance to every reachable node).
func procCloseness(ctx context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	adj, ids := adjacency(deps)
	out := make([]Row, 0, len(ids))
	for _, src := range ids {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		dist := bfsDistances(adj, src)
		total, reached := 0, 0
		for _, d := range dist {
			if d > 0 {
				total += d
				reached++
			}
		}
		score := 0.0
		if total > 0 {
			score = float64(reached) / float64(total)
		}
		out = append(out, Row{"nodeId": value.Int(int64(src)), "score": value.Float(score)})
	}
	return out, nil
}

// procBetweenness approximates betweenness centrality via Brandes'
// algorithm over unweighted shortest paths.
func procBetweenness(ctx context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	adj, ids := adjacency(deps)
	centrality := make(map[uint64]float64, len(ids))
	for _, id := range ids {
		centrality[id] = 0
	}
	for _, s := range ids {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		stack := []uint64{}
		preds := map[uint64][]uint64{}
		sigma := map[uint64]float64{s: 1}
		dist := map[uint64]int{s: 0}
		queue := []uint64{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range adj[v] {
				if _, seen := dist[w]; !seen {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}
		delta := map[uint64]float64{}
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
			}
			if w != s {
				centrality[w] += delta[w]
			}
		}
	}
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, Row{"nodeId": value.Int(int64(id)), "score": value.Float(centrality[id] / 2)})
	}
	return out, nil
}

// procEigenvector runs power iteration on the adjacency matrix to
// approximate eigenvector centrality.
func procEigenvector(ctx context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	adj, ids := adjacency(deps)
	n := len(ids)
	if n == 0 {
		return []Row{}, nil
	}
	score := make(map[uint64]float64, n)
	for _, id := range ids {
		score[id] = 1
	}
	const iterations = 50
	for i := 0; i < iterations; i++ {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		next := make(map[uint64]float64, n)
		for _, id := range ids {
			var sum float64
			for _, nb := range adj[id] {
				sum += score[nb]
			}
			next[id] = sum
		}
		var norm float64
		for _, v := range next {
			norm += v * v
		}
		if norm == 0 {
			break
		}
		norm = sqrt(norm)
		for _, id := range ids {
			next[id] /= norm
		}
		score = next
	}
	out := make([]Row, 0, n)
	for _, id := range ids {
		out = append(out, Row{"nodeId": value.Int(int64(id)), "score": value.Float(score[id])})
	}
	return out, nil
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 40; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

func bfsDistances(adj map[uint64][]uint64, src uint64) map[uint64]int {
	dist := map[uint64]int{src: 0}
	queue := []uint64{src}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, nb := range adj[v] {
			if _, seen := dist[nb]; !seen {
				dist[nb] = dist[v] + 1
				queue = append(queue, nb)
			}
		}
	}
	return dist
}

type pqItem struct {
	node uint64
	dist float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// procDijkstra finds the shortest (unweighted, per-edge cost 1) path
// between args[0] and args[1] node ids.
func procDijkstra(_ context.Context, deps Deps, args []value.Value) ([]Row, error) {
	if len(args) != 2 {
		return nil, nexuserr.New(nexuserr.KindPlan, 400, "algo.dijkstra takes (sourceNodeId, targetNodeId)")
	}
	src := uint64(args[0].Int())
	dst := uint64(args[1].Int())
	adj, _ := adjacency(deps)
	dist := map[uint64]float64{src: 0}
	prev := map[uint64]uint64{}
	visited := map[uint64]bool{}
	pq := &priorityQueue{{node: src, dist: 0}}
	heap.Init(pq)
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true
		if cur.node == dst {
			break
		}
		for _, nb := range adj[cur.node] {
			nd := cur.dist + 1
			if d, ok := dist[nb]; !ok || nd < d {
				dist[nb] = nd
				prev[nb] = cur.node
				heap.Push(pq, pqItem{node: nb, dist: nd})
			}
		}
	}
	if _, ok := dist[dst]; !ok {
		return []Row{}, nil
	}
	path := []uint64{dst}
	for n := dst; n != src; {
		p, ok := prev[n]
		if !ok {
			break
		}
		path = append([]uint64{p}, path...)
		n = p
	}
	nodes := make([]value.Value, len(path))
	for i, id := range path {
		nodes[i] = value.Int(int64(id))
	}
	return []Row{{"path": value.List(nodes), "cost": value.Float(dist[dst])}}, nil
}

// procYens finds the k shortest loopless paths between two nodes by
// repeatedly running Dijkstra over the graph with previously found paths'
// edges removed one at a time (Yen's algorithm).
func procYens(_ context.Context, deps Deps, args []value.Value) ([]Row, error) {
	if len(args) != 3 {
		return nil, nexuserr.New(nexuserr.KindPlan, 400, "algo.yens takes (sourceNodeId, targetNodeId, k)")
	}
	src := uint64(args[0].Int())
	dst := uint64(args[1].Int())
	k := int(args[2].Int())
	adj, _ := adjacency(deps)

	shortestFrom := func(start uint64, removed map[uint64]map[uint64]bool) []uint64 {
		dist := map[uint64]float64{start: 0}
		prev := map[uint64]uint64{}
		visited := map[uint64]bool{}
		pq := &priorityQueue{{node: start, dist: 0}}
		heap.Init(pq)
		for pq.Len() > 0 {
			cur := heap.Pop(pq).(pqItem)
			if visited[cur.node] {
				continue
			}
			visited[cur.node] = true
			if cur.node == dst {
				break
			}
			for _, nb := range adj[cur.node] {
				if removed[cur.node][nb] {
					continue
				}
				nd := cur.dist + 1
				if d, ok := dist[nb]; !ok || nd < d {
					dist[nb] = nd
					prev[nb] = cur.node
					heap.Push(pq, pqItem{node: nb, dist: nd})
				}
			}
		}
		if _, ok := dist[dst]; !ok {
			return nil
		}
		path := []uint64{dst}
		for n := dst; n != start; {
			p, ok := prev[n]
			if !ok {
				return nil
			}
			path = append([]uint64{p}, path...)
			n = p
		}
		return path
	}

	first := shortestFrom(src, nil)
	if first == nil {
		return []Row{}, nil
	}
	paths := [][]uint64{first}
	candidates := [][]uint64{}
	for len(paths) < k {
		last := paths[len(paths)-1]
		found := false
		for i := 0; i < len(last)-1; i++ {
			removed := map[uint64]map[uint64]bool{}
			for _, p := range paths {
				if len(p) > i && pathsShareSpur(p, last, i) {
					if removed[p[i]] == nil {
						removed[p[i]] = map[uint64]bool{}
					}
					removed[p[i]][p[i+1]] = true
				}
			}
			spur := shortestFrom(last[i], removed)
			if spur == nil {
				continue
			}
			cand := append(append([]uint64{}, last[:i]...), spur...)
			if !containsPath(paths, cand) && !containsPath(candidates, cand) {
				candidates = append(candidates, cand)
				found = true
			}
		}
		if !found || len(candidates) == 0 {
			break
		}
		sort.Slice(candidates, func(i, j int) bool { return len(candidates[i]) < len(candidates[j]) })
		paths = append(paths, candidates[0])
		candidates = candidates[1:]
	}
	out := make([]Row, 0, len(paths))
	for _, p := range paths {
		nodes := make([]value.Value, len(p))
		for i, id := range p {
			nodes[i] = value.Int(int64(id))
		}
		out = append(out, Row{"path": value.List(nodes), "length": value.Int(int64(len(p) - 1))})
	}
	return out, nil
}

func pathsShareSpur(a, b []uint64, i int) bool {
	if len(a) <= i {
		return false
	}
	for j := 0; j <= i && j < len(b); j++ {
		if a[j] != b[j] {
			return false
		}
	}
	return true
}

func containsPath(paths [][]uint64, p []uint64) bool {
	for _, existing := range paths {
		if len(existing) != len(p) {
			continue
		}
		same := true
		for i := range existing {
			if existing[i] != p[i] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// procLouvain runs greedy modularity-gain community moves, up to five
// passes over all nodes or until a pass changes nothing: a simplified
// single-level Louvain with no community-aggregation (multi-level) phase.
func procLouvain(ctx context.Context, deps Deps, _ []value.Value) ([]Row, error) {
	adj, ids := adjacency(deps)
	community := make(map[uint64]uint64, len(ids))
	for _, id := range ids {
		community[id] = id
	}
	degree := make(map[uint64]int, len(ids))
	totalEdges := 0
	for _, id := range ids {
		degree[id] = len(adj[id])
		totalEdges += len(adj[id])
	}
	if totalEdges == 0 {
		out := make([]Row, 0, len(ids))
		for _, id := range ids {
			out = append(out, Row{"nodeId": value.Int(int64(id)), "communityId": value.Int(int64(id))})
		}
		return out, nil
	}
	m2 := float64(totalEdges)
	const passes = 5
	for pass := 0; pass < passes; pass++ {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		changed := false
		for _, id := range ids {
			neighborComms := map[uint64]int{}
			for _, nb := range adj[id] {
				neighborComms[community[nb]]++
			}
			best, bestGain := community[id], 0.0
			for comm, shared := range neighborComms {
				gain := float64(shared) - float64(degree[id])*float64(degree[id])/m2
				if gain > bestGain {
					best, bestGain = comm, gain
				}
			}
			if best != community[id] {
				community[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, Row{"nodeId": value.Int(int64(id)), "communityId": value.Int(int64(community[id]))})
	}
	return out, nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nexuserr.New(nexuserr.KindCancelled, 499, "procedure: cancelled")
	default:
		return nil
	}
}
