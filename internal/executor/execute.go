package executor

import (
	"context"

	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/cypher"
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/planner"
	"github.com/nexusdb/nexus/internal/procedure"
	"github.com/nexusdb/nexus/internal/txn"
	"github.com/nexusdb/nexus/internal/value"
)

// ResultSet is the materialized output of a query: Columns gives the
// output order, Rows holds one map per result row with entity bindings
// expanded to plain values (spec §6's driver-facing row shape).
type ResultSet struct {
	Columns []string
	Rows    []map[string]interface{}
}

// NodeView is a materialized node binding: its id, current label names,
// and current properties by name.
type NodeView struct {
	ID         uint64
	Labels     []string
	Properties map[string]value.Value
}

// RelView is a materialized relationship binding.
type RelView struct {
	ID         uint64
	Type       string
	Properties map[string]value.Value
}

// PathView is a materialized path binding, alternating nodes and
// relationships.
type PathView struct {
	Nodes []NodeView
	Rels  []RelView
}

// Execute runs plan to completion over tx's snapshot and returns every
// result row, materialized for external consumption. registry resolves
// CALL procedure names; it may be nil for plans with no Call/CallSubquery
// node.
func Execute(goCtx context.Context, tx *txn.Tx, graph *Graph, registry *procedure.Registry, plan *planner.Plan, params map[string]value.Value) (*ResultSet, error) {
	c := &ctx{goCtx: goCtx, tx: tx, graph: graph, params: params}
	it, err := build(c, registry, plan.Root)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	rs := &ResultSet{Columns: plan.Columns}
	for {
		if err := tx.CheckDeadline(); err != nil {
			return nil, err
		}
		row, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out, err := materializeRow(c, row, rs.Columns)
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, out)
	}
	return rs, nil
}

func materializeRow(c *ctx, row Row, columns []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(row))
	keys := columns
	if len(keys) == 0 {
		for k := range row {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		b, ok := row[k]
		if !ok {
			continue
		}
		v, err := materializeBinding(c, b)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func materializeBinding(c *ctx, b Binding) (interface{}, error) {
	switch {
	case b.IsNull():
		return nil, nil
	case b.IsScalar():
		return b.Scalar(), nil
	case b.IsNode():
		return materializeNode(c, b.NodeID())
	case b.IsRel():
		return materializeRel(c, b.RelID())
	case b.IsPath():
		return materializePath(c, b.PathVal())
	case b.IsList():
		items := b.List()
		out := make([]interface{}, len(items))
		for i, item := range items {
			v, err := materializeBinding(c, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, nil
	}
}

func materializeNode(c *ctx, id uint64) (NodeView, error) {
	rec, _, err := c.graph.LoadNode(id, c.tx.Snapshot())
	if err != nil {
		return NodeView{}, err
	}
	labelIDs := NodeLabels(rec)
	labels := make([]string, 0, len(labelIDs))
	for _, lid := range labelIDs {
		if name, ok := c.graph.Catalog.LookupName(catalog.DictLabel, lid); ok {
			labels = append(labels, name)
		}
	}
	byID, err := c.graph.NodeProperties(rec)
	if err != nil {
		return NodeView{}, err
	}
	props := make(map[string]value.Value, len(byID))
	for kid, v := range byID {
		if name, ok := c.graph.Catalog.LookupName(catalog.DictPropKey, kid); ok {
			props[name] = v
		}
	}
	return NodeView{ID: id, Labels: labels, Properties: props}, nil
}

func materializeRel(c *ctx, id uint64) (RelView, error) {
	rec, _, err := c.graph.LoadRel(id, c.tx.Snapshot())
	if err != nil {
		return RelView{}, err
	}
	typeName, _ := c.graph.Catalog.LookupName(catalog.DictRelType, rec.TypeID)
	byID, err := c.graph.RelProperties(rec)
	if err != nil {
		return RelView{}, err
	}
	props := make(map[string]value.Value, len(byID))
	for kid, v := range byID {
		if name, ok := c.graph.Catalog.LookupName(catalog.DictPropKey, kid); ok {
			props[name] = v
		}
	}
	return RelView{ID: id, Type: typeName, Properties: props}, nil
}

func materializePath(c *ctx, p Path) (PathView, error) {
	var pv PathView
	for _, nid := range p.Nodes {
		nv, err := materializeNode(c, nid)
		if err != nil {
			return PathView{}, err
		}
		pv.Nodes = append(pv.Nodes, nv)
	}
	for _, rid := range p.Rels {
		rv, err := materializeRel(c, rid)
		if err != nil {
			return PathView{}, err
		}
		pv.Rels = append(pv.Rels, rv)
	}
	return pv, nil
}

// build walks a physical plan tree bottom-up into a pull-based Iterator
// (spec §4.10's next_row()-per-operator execution model).
func build(c *ctx, registry *procedure.Registry, node planner.Node) (Iterator, error) {
	switch n := node.(type) {
	case nil:
		// A query with no preceding MATCH (e.g. "RETURN 1") starts from
		// a single synthetic empty row rather than a scan.
		return &constRowIterator{row: Row{}}, nil
	case planner.AllNodesScan:
		return newAllNodesScan(c, n)
	case planner.NodeByLabelScan:
		return newNodeByLabelScan(c, n)
	case planner.NodeByLabelProperty:
		return newNodeByLabelProperty(c, n)
	case planner.Expand:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return newExpand(c, n, input)
	case planner.OptionalExpand:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return newOptionalExpand(c, n, input)
	case planner.ShortestPath:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return newShortestPath(c, n, input)
	case planner.Filter:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return &filterIterator{c: c, input: input, pred: n.Pred}, nil
	case planner.Project:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return &projectIterator{c: c, input: input, items: n.Items}, nil
	case planner.Aggregate:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return newAggregate(c, n, input), nil
	case planner.Distinct:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return &distinctIterator{c: c, input: input}, nil
	case planner.Sort:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return &sortIterator{c: c, input: input, items: n.Items}, nil
	case planner.Skip:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return &skipIterator{c: c, input: input, n: n.N}, nil
	case planner.Limit:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return &limitIterator{c: c, input: input, n: n.N}, nil
	case planner.Unwind:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return &unwindIterator{c: c, input: input, n: n}, nil
	case planner.Union:
		left, err := build(c, registry, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := build(c, registry, n.Right)
		if err != nil {
			return nil, err
		}
		return &unionIterator{left: left, right: right, all: n.All}, nil
	case planner.CartesianProduct:
		left, err := build(c, registry, n.Left)
		if err != nil {
			return nil, err
		}
		right := n.Right
		return &cartesianIterator{c: c, left: left, rightFn: func() (Iterator, error) { return build(c, registry, right) }}, nil
	case planner.Create:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return newCreate(c, n, input), nil
	case planner.Merge:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return newMerge(c, n, input), nil
	case planner.SetProperty:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return newSetProperty(c, n, input), nil
	case planner.RemoveProperty:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return newRemoveProperty(c, n, input), nil
	case planner.Delete:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return newDelete(c, n, input), nil
	case planner.KnnSearch:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return newKnnSearch(c, n, input), nil
	case planner.Call:
		if registry == nil {
			return nil, nexuserr.New(nexuserr.KindPlan, 500, "executor: CALL requires a procedure registry")
		}
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		return newCall(c, n, registry, input), nil
	case planner.CallSubquery:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		sub := n.Sub
		return newCallSubquery(c, input, func(c *ctx, seed Iterator) (Iterator, error) {
			return buildWithSeed(c, registry, sub, seed)
		}), nil
	case planner.Foreach:
		input, err := build(c, registry, n.Input)
		if err != nil {
			return nil, err
		}
		body := n.Body
		return newForeach(c, n, func(c *ctx, seed Iterator) (Iterator, error) {
			return buildWithSeed(c, registry, body, seed)
		}, input), nil
	default:
		return nil, nexuserr.New(nexuserr.KindPlan, 500, "executor: unknown plan node %T", node)
	}
}


// buildWithSeed builds node's tree but substitutes seed for node's
// deepest Input (a leaf scan's implicit source), used by CALL{}/FOREACH
// to splice the outer row's bindings into an inner plan that was built
// assuming it starts fresh. Leaf scan nodes (AllNodesScan et al.) cannot
// carry a seed themselves, so CallSubquery/Foreach bodies are required to
// begin from a Unwind/Project/Filter-style single-input chain in the
// planner; seed stands in for that chain's missing root input.
func buildWithSeed(c *ctx, registry *procedure.Registry, node planner.Node, seed Iterator) (Iterator, error) {
	switch n := node.(type) {
	case planner.Filter:
		input, err := buildWithSeedOrBuild(c, registry, n.Input, seed)
		if err != nil {
			return nil, err
		}
		return &filterIterator{c: c, input: input, pred: n.Pred}, nil
	case planner.Project:
		input, err := buildWithSeedOrBuild(c, registry, n.Input, seed)
		if err != nil {
			return nil, err
		}
		return &projectIterator{c: c, input: input, items: n.Items}, nil
	case planner.Unwind:
		input, err := buildWithSeedOrBuild(c, registry, n.Input, seed)
		if err != nil {
			return nil, err
		}
		return &unwindIterator{c: c, input: input, n: n}, nil
	case planner.Expand:
		input, err := buildWithSeedOrBuild(c, registry, n.Input, seed)
		if err != nil {
			return nil, err
		}
		return newExpand(c, n, input)
	case planner.Create:
		input, err := buildWithSeedOrBuild(c, registry, n.Input, seed)
		if err != nil {
			return nil, err
		}
		return newCreate(c, n, input), nil
	case planner.Merge:
		input, err := buildWithSeedOrBuild(c, registry, n.Input, seed)
		if err != nil {
			return nil, err
		}
		return newMerge(c, n, input), nil
	case planner.SetProperty:
		input, err := buildWithSeedOrBuild(c, registry, n.Input, seed)
		if err != nil {
			return nil, err
		}
		return newSetProperty(c, n, input), nil
	case planner.RemoveProperty:
		input, err := buildWithSeedOrBuild(c, registry, n.Input, seed)
		if err != nil {
			return nil, err
		}
		return newRemoveProperty(c, n, input), nil
	case planner.Delete:
		input, err := buildWithSeedOrBuild(c, registry, n.Input, seed)
		if err != nil {
			return nil, err
		}
		return newDelete(c, n, input), nil
	case nil:
		return seed, nil
	default:
		return build(c, registry, node)
	}
}

func buildWithSeedOrBuild(c *ctx, registry *procedure.Registry, input planner.Node, seed Iterator) (Iterator, error) {
	if input == nil {
		return seed, nil
	}
	return buildWithSeed(c, registry, input, seed)
}

// ParseAndPlan is a convenience wrapper gluing the lexer/parser and
// planner stages together: parse query text, then compile it against an
// IndexChecker backed by the live index manager so an inline `{k: v}`
// equality on an indexed property uses NodeByLabelProperty instead of a
// full label scan. WHERE predicates are not rewritten.
func ParseAndPlan(graph *Graph, query string) (*planner.Plan, error) {
	q, err := cypher.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	indexed := func(label, key string) bool {
		labelID, ok := graph.Catalog.LookupID(catalog.DictLabel, label)
		if !ok {
			return false
		}
		keyID, ok := graph.Catalog.LookupID(catalog.DictPropKey, key)
		if !ok {
			return false
		}
		_, ok = graph.Indexes.PropIndexFor(labelID, keyID)
		return ok
	}
	return planner.Build(q, indexed)
}
