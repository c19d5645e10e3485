package executor

import (
	"context"
	"sort"

	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/cypher"
	"github.com/nexusdb/nexus/internal/graphstore"
	"github.com/nexusdb/nexus/internal/planner"
	"github.com/nexusdb/nexus/internal/txn"
	"github.com/nexusdb/nexus/internal/value"
)

// ctx bundles everything an Iterator needs to pull rows: the active
// transaction (for the MVCC snapshot epoch and deadline checks), the
// storage handle, the query's bound parameters, and the Go context
// carrying cancellation through to long-running procedures (CALL).
type ctx struct {
	goCtx  context.Context
	tx     *txn.Tx
	graph  *Graph
	params map[string]value.Value
}

func (c *ctx) eval(e cypher.Expr, row Row) (Binding, error) {
	return eval(e, &evalCtx{row: row, graph: c.graph, epoch: c.tx.Snapshot(), params: c.params})
}

// checkDeadline is the shared pull-boundary check that the scan, expand,
// filter, project, aggregate, knn, shortest-path, CALL/FOREACH and write
// operators call from Next; distinct, sort,
// skip, limit, unwind, union and cartesian do not call it themselves
// (spec §4.5 timeout rule: operators observe a cancelled
// deadline at well-defined points, not mid-evaluation).
func (c *ctx) checkDeadline() error { return c.tx.CheckDeadline() }

// scanIterator drives AllNodesScan/NodeByLabelScan/NodeByLabelProperty.
type scanIterator struct {
	c      *ctx
	v      string
	ids    []uint64
	pos    int
}

func (it *scanIterator) Next() (Row, bool, error) {
	if err := it.c.checkDeadline(); err != nil {
		return nil, false, err
	}
	for it.pos < len(it.ids) {
		id := it.ids[it.pos]
		it.pos++
		rec, visible, err := it.c.graph.LoadNode(id, it.c.tx.Snapshot())
		if err != nil {
			return nil, false, err
		}
		if !visible {
			continue
		}
		return Row{it.v: NodeBinding(id)}, true, nil
	}
	return nil, false, nil
}

func (it *scanIterator) Close() {}

func newAllNodesScan(c *ctx, n planner.AllNodesScan) (Iterator, error) {
	ids, err := c.graph.AllNodeIDs()
	if err != nil {
		return nil, err
	}
	return &scanIterator{c: c, v: n.Var, ids: ids}, nil
}

func newNodeByLabelScan(c *ctx, n planner.NodeByLabelScan) (Iterator, error) {
	labelID, ok := c.graph.Catalog.LookupID(catalog.DictLabel, n.Label)
	if !ok {
		return &scanIterator{c: c, v: n.Var}, nil
	}
	return &scanIterator{c: c, v: n.Var, ids: c.graph.NodesWithLabel(labelID)}, nil
}

func newNodeByLabelProperty(c *ctx, n planner.NodeByLabelProperty) (Iterator, error) {
	labelID, ok := c.graph.Catalog.LookupID(catalog.DictLabel, n.Label)
	if !ok {
		return &scanIterator{c: c, v: n.Var}, nil
	}
	keyID, ok := c.graph.Catalog.LookupID(catalog.DictPropKey, n.Key)
	if !ok {
		return &scanIterator{c: c, v: n.Var}, nil
	}
	idx, ok := c.graph.Indexes.PropIndexFor(labelID, keyID)
	if !ok {
		return &scanIterator{c: c, v: n.Var, ids: c.graph.NodesWithLabel(labelID)}, nil
	}
	val, err := c.eval(n.Value, nil)
	if err != nil {
		return nil, err
	}
	var bitmap []uint64
	switch n.Op {
	case "=":
		bitmap = idx.Exact(val.Scalar()).ToArray()
	case "RANGE":
		hi, err := c.eval(n.Hi, nil)
		if err != nil {
			return nil, err
		}
		bitmap = idx.Range(val.Scalar(), hi.Scalar()).ToArray()
	case "<", "<=":
		bitmap = idx.Range(value.Value{}, val.Scalar()).ToArray()
	case ">", ">=":
		bitmap = idx.Range(val.Scalar(), value.Value{}).ToArray()
	case "STARTS WITH":
		bitmap = idx.Prefix(val.Scalar().Str()).ToArray()
	default:
		bitmap = c.graph.NodesWithLabel(labelID)
	}
	return &scanIterator{c: c, v: n.Var, ids: bitmap}, nil
}

// expandIterator walks one input row's bound node out through Types in
// Dir, producing one output row per reachable neighbor within
// [MinHops, MaxHops].
type expandIterator struct {
	c      *ctx
	input  Iterator
	n      planner.Expand
	typeIDs []uint32
	anyType bool

	cur     Row
	results []hop
	ri      int
}

type hop struct {
	node uint64
	rel  uint64
	path Path
}

func newExpand(c *ctx, n planner.Expand, input Iterator) (Iterator, error) {
	typeIDs, anyType, err := resolveTypes(c, n.Types)
	if err != nil {
		return nil, err
	}
	return &expandIterator{c: c, input: input, n: n, typeIDs: typeIDs, anyType: anyType}, nil
}

func resolveTypes(c *ctx, names []string) ([]uint32, bool, error) {
	if len(names) == 0 {
		return nil, true, nil
	}
	ids := make([]uint32, 0, len(names))
	for _, name := range names {
		id, ok := c.graph.Catalog.LookupID(catalog.DictRelType, name)
		if !ok {
			continue
		}
		ids = append(ids, id)
	}
	return ids, false, nil
}

func (it *expandIterator) Next() (Row, bool, error) {
	for {
		if it.ri < len(it.results) {
			h := it.results[it.ri]
			it.ri++
			out := it.cur.Clone()
			out[it.n.To] = NodeBinding(h.node)
			if it.n.RelVar != "" {
				out[it.n.RelVar] = RelBinding(h.rel)
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
		from, ok := row[it.n.From]
		if !ok || !from.IsNode() {
			continue
		}
		it.cur = row
		it.results = it.c.hopsFrom(from.NodeID(), it.typeIDs, it.anyType, it.n.Dir, it.n.AnyDir, it.n.MinHops, it.n.MaxHops)
		it.ri = 0
	}
}

func (it *expandIterator) Close() { it.input.Close() }

// hopsFrom does a bounded BFS from start, collecting every node reached
// between minHops and maxHops (maxHops == -1 means unbounded, capped at
// a generous depth to guarantee termination on cyclic graphs).
func (c *ctx) hopsFrom(start uint64, typeIDs []uint32, anyType bool, dir graphstore.Direction, anyDir bool, minHops, maxHops int) []hop {
	const unboundedCap = 64
	if maxHops < 0 {
		maxHops = unboundedCap
	}
	type frontierEntry struct {
		node uint64
		rel  uint64
	}
	visited := map[uint64]bool{start: true}
	frontier := []frontierEntry{{node: start}}
	var out []hop

	for depth := 1; depth <= maxHops && len(frontier) > 0; depth++ {
		var next []frontierEntry
		for _, f := range frontier {
			neighbors, rels := c.neighborsWithRel(f.node, typeIDs, anyType, dir, anyDir)
			for i, nb := range neighbors {
				if visited[nb] && dir != graphstore.Outgoing {
					// allow revisiting via a different relationship when undirected,
					// but still avoid infinite loops by bounding on depth.
				}
				if depth >= minHops {
					out = append(out, hop{node: nb, rel: rels[i]})
				}
				if !visited[nb] {
					visited[nb] = true
					next = append(next, frontierEntry{node: nb, rel: rels[i]})
				}
			}
		}
		frontier = next
	}
	return out
}

// neighborsWithRel returns every (neighbor, relationship id) pair reachable
// in one hop from node, honoring type/direction filters.
func (c *ctx) neighborsWithRel(node uint64, typeIDs []uint32, anyType bool, dir graphstore.Direction, anyDir bool) ([]uint64, []uint64) {
	dirs := []graphstore.Direction{dir}
	if anyDir {
		dirs = []graphstore.Direction{graphstore.Outgoing, graphstore.Incoming}
	}
	var nodes, rels []uint64
	maxID, err := c.graph.Rels.MaxID()
	if err != nil {
		return nil, nil
	}
	types := typeIDs
	if anyType {
		types = []uint32{0}
	}
	for _, d := range dirs {
		for _, t := range types {
			neigh := c.graph.Neighbors(node, t, anyType, d)
			for _, nb := range neigh {
				nodes = append(nodes, nb)
				rels = append(rels, findRelID(c, node, nb, maxID, d))
			}
		}
	}
	return nodes, rels
}

// findRelID recovers the relationship id joining a and b by scanning the
// allocated id space. neighborsWithRel calls it for every neighbor, since
// the adjacency store returns neighbor node ids only. It returns the
// lowest visible id joining a and b in direction dir, whatever its type,
// or 0 if none is found.
func findRelID(c *ctx, a, b uint64, maxID uint64, dir graphstore.Direction) uint64 {
	for id := uint64(0); id < maxID; id++ {
		rec, visible, err := c.graph.LoadRel(id, c.tx.Snapshot())
		if err != nil || !visible {
			continue
		}
		if dir == graphstore.Outgoing && rec.Src == a && rec.Dst == b {
			return id
		}
		if dir == graphstore.Incoming && rec.Dst == a && rec.Src == b {
			return id
		}
	}
	return 0
}

// optionalExpandIterator behaves like expandIterator but emits one
// null-bound row per input row that has no matching hop, instead of
// dropping it (OPTIONAL MATCH semantics).
type optionalExpandIterator struct {
	inner   *expandIterator
	matched bool
}

func newOptionalExpand(c *ctx, n planner.OptionalExpand, input Iterator) (Iterator, error) {
	exp, err := newExpand(c, n.Expand, input)
	if err != nil {
		return nil, err
	}
	return &optionalExpandIterator{inner: exp.(*expandIterator)}, nil
}

func (it *optionalExpandIterator) Next() (Row, bool, error) {
	it2 := it.inner
	for {
		if it2.ri < len(it2.results) {
			it.matched = true
			return it2.Next()
		}
		row, ok, err := it2.input.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		if err := it2.c.checkDeadline(); err != nil {
			return nil, false, err
		}
		from, fromOk := row[it2.n.From]
		var results []hop
		if fromOk && from.IsNode() {
			results = it2.c.hopsFrom(from.NodeID(), it2.typeIDs, it2.anyType, it2.n.Dir, it2.n.AnyDir, it2.n.MinHops, it2.n.MaxHops)
		}
		if len(results) == 0 {
			out := row.Clone()
			out[it2.n.To] = NullBinding()
			if it2.n.RelVar != "" {
				out[it2.n.RelVar] = NullBinding()
			}
			return out, true, nil
		}
		it2.cur = row
		it2.results = results
		it2.ri = 0
	}
}

func (it *optionalExpandIterator) Close() { it.inner.Close() }

// filterIterator drops rows whose predicate is not definitively true.
type filterIterator struct {
	c     *ctx
	input Iterator
	pred  cypher.Expr
}

func (it *filterIterator) Next() (Row, bool, error) {
	for {
		row, ok, err := it.input.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		if err := it.c.checkDeadline(); err != nil {
			return nil, false, err
		}
		b, err := it.c.eval(it.pred, row)
		if err != nil {
			return nil, false, err
		}
		if b.IsScalar() && b.Scalar().Type() == value.TypeBool && b.Scalar().Bool() {
			return row, true, nil
		}
	}
}

func (it *filterIterator) Close() { it.input.Close() }

// projectIterator evaluates Items over each input row, replacing its
// bindings with exactly the projected columns (splicing every existing
// binding through for a Star item).
type projectIterator struct {
	c     *ctx
	input Iterator
	items []planner.ProjectItem
}

func (it *projectIterator) Next() (Row, bool, error) {
	row, ok, err := it.input.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	if err := it.c.checkDeadline(); err != nil {
		return nil, false, err
	}
	out := Row{}
	for _, item := range it.items {
		if item.Star {
			for k, v := range row {
				out[k] = v
			}
			continue
		}
		b, err := it.c.eval(item.Expr, row)
		if err != nil {
			return nil, false, err
		}
		out[item.As] = b
	}
	return out, true, nil
}

func (it *projectIterator) Close() { it.input.Close() }

// distinctIterator suppresses rows whose rowSignature (the string form of
// every bound column) matches one already emitted, buffering the set of
// seen row signatures.
type distinctIterator struct {
	c     *ctx
	input Iterator
	seen  map[string]bool
}

func (it *distinctIterator) Next() (Row, bool, error) {
	if it.seen == nil {
		it.seen = map[string]bool{}
	}
	for {
		row, ok, err := it.input.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		sig := rowSignature(row)
		if it.seen[sig] {
			continue
		}
		it.seen[sig] = true
		return row, true, nil
	}
}

func (it *distinctIterator) Close() { it.input.Close() }

func rowSignature(row Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += k + "=" + bindingSignature(row[k]) + "|"
	}
	return s
}

func bindingSignature(b Binding) string {
	switch {
	case b.IsNull():
		return "null"
	case b.IsNode():
		return "node:" + itoa(b.NodeID())
	case b.IsRel():
		return "rel:" + itoa(b.RelID())
	case b.IsScalar():
		return b.Scalar().String()
	case b.IsList():
		s := "["
		for _, e := range b.List() {
			s += bindingSignature(e) + ","
		}
		return s + "]"
	default:
		return "?"
	}
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// sortIterator buffers its entire input and reorders by Items, stable
// across ties so secondary ORDER BY semantics are preserved.
type sortIterator struct {
	c     *ctx
	input Iterator
	items []planner.SortItem

	rows []Row
	pos  int
	done bool
}

func (it *sortIterator) fill() error {
	for {
		row, ok, err := it.input.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		it.rows = append(it.rows, row)
	}
	sort.SliceStable(it.rows, func(i, j int) bool {
		for _, si := range it.items {
			a, _ := it.c.eval(si.Expr, it.rows[i])
			b, _ := it.c.eval(si.Expr, it.rows[j])
			cmp := value.Compare(a.Scalar(), b.Scalar())
			if cmp == 0 {
				continue
			}
			if si.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	it.done = true
	return nil
}

func (it *sortIterator) Next() (Row, bool, error) {
	if !it.done {
		if err := it.fill(); err != nil {
			return nil, false, err
		}
	}
	if it.pos >= len(it.rows) {
		return nil, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}

func (it *sortIterator) Close() { it.input.Close() }

// skipIterator discards the first N rows.
type skipIterator struct {
	c      *ctx
	input  Iterator
	n      cypher.Expr
	resolved bool
	remaining int64
}

func (it *skipIterator) Next() (Row, bool, error) {
	if !it.resolved {
		b, err := it.c.eval(it.n, nil)
		if err != nil {
			return nil, false, err
		}
		it.remaining = b.Scalar().Int()
		it.resolved = true
	}
	for it.remaining > 0 {
		_, ok, err := it.input.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		it.remaining--
	}
	return it.input.Next()
}

func (it *skipIterator) Close() { it.input.Close() }

// limitIterator caps output at N rows.
type limitIterator struct {
	c        *ctx
	input    Iterator
	n        cypher.Expr
	resolved bool
	limit    int64
	emitted  int64
}

func (it *limitIterator) Next() (Row, bool, error) {
	if !it.resolved {
		b, err := it.c.eval(it.n, nil)
		if err != nil {
			return nil, false, err
		}
		it.limit = b.Scalar().Int()
		it.resolved = true
	}
	if it.emitted >= it.limit {
		return nil, false, nil
	}
	row, ok, err := it.input.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	it.emitted++
	return row, true, nil
}

func (it *limitIterator) Close() { it.input.Close() }

// unwindIterator expands a list expression into one row per element,
// joined against its input row.
type unwindIterator struct {
	c     *ctx
	input Iterator
	n     planner.Unwind

	cur   Row
	items []Binding
	pos   int
}

func (it *unwindIterator) Next() (Row, bool, error) {
	for {
		if it.pos < len(it.items) {
			out := it.cur.Clone()
			out[it.n.As] = it.items[it.pos]
			it.pos++
			return out, true, nil
		}
		row, ok, err := it.input.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		b, err := it.c.eval(it.n.List, row)
		if err != nil {
			return nil, false, err
		}
		it.cur = row
		if b.IsList() {
			it.items = b.List()
		} else if !b.IsNull() {
			it.items = []Binding{b}
		} else {
			it.items = nil
		}
		it.pos = 0
	}
}

func (it *unwindIterator) Close() { it.input.Close() }

// unionIterator concatenates Left then Right, de-duplicating like
// Distinct when All is false.
type unionIterator struct {
	left, right Iterator
	all         bool
	seen        map[string]bool
	onLeft      bool
}

func (it *unionIterator) Next() (Row, bool, error) {
	if it.seen == nil && !it.all {
		it.seen = map[string]bool{}
	}
	if !it.onLeft {
		it.onLeft = true
	}
	for {
		var row Row
		var ok bool
		var err error
		if it.left != nil {
			row, ok, err = it.left.Next()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				it.left = nil
			}
		}
		if it.left == nil {
			if it.right == nil {
				return nil, false, nil
			}
			row, ok, err = it.right.Next()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				it.right = nil
				return nil, false, nil
			}
		}
		if it.all {
			return row, true, nil
		}
		sig := rowSignature(row)
		if it.seen[sig] {
			continue
		}
		it.seen[sig] = true
		return row, true, nil
	}
}

func (it *unionIterator) Close() {
	if it.left != nil {
		it.left.Close()
	}
	if it.right != nil {
		it.right.Close()
	}
}

// cartesianIterator pairs every row of Left with every row of Right.
type cartesianIterator struct {
	c      *ctx
	left   Iterator
	rightFn func() (Iterator, error)
	right  Iterator
	cur    Row
}

func (it *cartesianIterator) Next() (Row, bool, error) {
	for {
		if it.right != nil {
			row, ok, err := it.right.Next()
			if err != nil {
				return nil, false, err
			}
			if ok {
				out := it.cur.Clone()
				for k, v := range row {
					out[k] = v
				}
				return out, true, nil
			}
			it.right.Close()
			it.right = nil
		}
		row, ok, err := it.left.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		it.cur = row
		r, err := it.rightFn()
		if err != nil {
			return nil, false, err
		}
		it.right = r
	}
}

func (it *cartesianIterator) Close() {
	it.left.Close()
	if it.right != nil {
		it.right.Close()
	}
}
