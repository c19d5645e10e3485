package executor

import (
	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/graphstore"
	"github.com/nexusdb/nexus/internal/planner"
	"github.com/nexusdb/nexus/internal/procedure"
	"github.com/nexusdb/nexus/internal/value"
)

// graphDeps adapts *ctx to procedure.Deps, the narrow read surface a
// built-in procedure gets. It lives here rather than in internal/procedure
// so that package keeps depending on nothing executor-shaped.
type graphDeps struct{ c *ctx }

func (d graphDeps) Labels() []string             { return d.c.graph.Catalog.Names(catalog.DictLabel) }
func (d graphDeps) RelationshipTypes() []string  { return d.c.graph.Catalog.Names(catalog.DictRelType) }
func (d graphDeps) PropertyKeys() []string       { return d.c.graph.Catalog.Names(catalog.DictPropKey) }

func (d graphDeps) NodeIDs() []uint64 {
	ids, err := d.c.graph.AllNodeIDs()
	if err != nil {
		return nil
	}
	epoch := d.c.tx.Snapshot()
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, visible, err := d.c.graph.LoadNode(id, epoch); err == nil && visible {
			out = append(out, id)
		}
	}
	return out
}

func (d graphDeps) NodeLabelIDs(id uint64) []uint32 {
	rec, visible, err := d.c.graph.LoadNode(id, d.c.tx.Snapshot())
	if err != nil || !visible {
		return nil
	}
	return NodeLabels(rec)
}

func (d graphDeps) NodeProps(id uint64) (map[string]value.Value, error) {
	rec, visible, err := d.c.graph.LoadNode(id, d.c.tx.Snapshot())
	if err != nil || !visible {
		return nil, err
	}
	byID, err := d.c.graph.NodeProperties(rec)
	if err != nil {
		return nil, err
	}
	out := make(map[string]value.Value, len(byID))
	for keyID, v := range byID {
		if name, ok := d.c.graph.Catalog.LookupName(catalog.DictPropKey, keyID); ok {
			out[name] = v
		}
	}
	return out, nil
}

// Neighbors returns node ids reachable from id by any edge touching it
// (both directions merged), optionally restricted to typeName. Built-in
// graph algorithms reason about the graph as undirected, matching how
// the teacher's own traversal helpers treat adjacency as symmetric for
// analytics purposes.
func (d graphDeps) Neighbors(id uint64, anyType bool, typeName string) []uint64 {
	var typeID uint32
	if !anyType {
		tid, ok := d.c.graph.Catalog.LookupID(catalog.DictRelType, typeName)
		if !ok {
			return nil
		}
		typeID = tid
	}
	out := append([]uint64{}, d.c.graph.Neighbors(id, typeID, anyType, graphstore.Outgoing)...)
	out = append(out, d.c.graph.Neighbors(id, typeID, anyType, graphstore.Incoming)...)
	seen := make(map[uint64]bool, len(out))
	dedup := out[:0]
	for _, n := range out {
		if !seen[n] {
			seen[n] = true
			dedup = append(dedup, n)
		}
	}
	return dedup
}

func (d graphDeps) BumpDDLEpoch() error { return d.c.graph.Catalog.BumpDDLEpoch() }

// callIterator runs CALL proc(...) YIELD ... (spec §4.9/§4.11).
type callIterator struct {
	c        *ctx
	input    Iterator
	n        planner.Call
	registry *procedure.Registry

	cur     Row
	results []procedure.Row
	ri      int
}

func newCall(c *ctx, n planner.Call, registry *procedure.Registry, input Iterator) Iterator {
	return &callIterator{c: c, input: input, n: n, registry: registry}
}

func (it *callIterator) Next() (Row, bool, error) {
	for {
		if it.ri < len(it.results) {
			r := it.results[it.ri]
			it.ri++
			out := it.cur.Clone()
			bindProcedureRow(out, it.n.Yield, r)
			return out, true, nil
		}
		row, ok, err := it.pull()
		if err != nil || !ok {
			return nil, false, err
		}
		if err := it.c.checkDeadline(); err != nil {
			return nil, false, err
		}
		it.cur = row
		args := make([]value.Value, len(it.n.Args))
		for i, a := range it.n.Args {
			b, err := it.c.eval(a, row)
			if err != nil {
				return nil, false, err
			}
			args[i] = b.Scalar()
		}
		results, err := it.registry.Call(it.c.goCtx, graphDeps{it.c}, it.n.Name, args)
		if err != nil {
			return nil, false, err
		}
		it.results = results
		it.ri = 0
	}
}

// bindProcedureRow copies a procedure result row's columns into out,
// restricted to yield when non-empty.
func bindProcedureRow(out Row, yield []string, r procedure.Row) {
	if len(yield) == 0 {
		for k, v := range r {
			out[k] = ScalarBinding(v)
		}
		return
	}
	for _, name := range yield {
		if v, ok := r[name]; ok {
			out[name] = ScalarBinding(v)
		}
	}
}

func (it *callIterator) pull() (Row, bool, error) {
	if it.input == nil {
		return Row{}, true, nil
	}
	return it.input.Next()
}

func (it *callIterator) Close() {
	if it.input != nil {
		it.input.Close()
	}
}

// callSubqueryIterator runs CALL { ... } once per Input row, with Input's
// bindings visible to Sub, concatenating Sub's rows back onto the input
// row (spec §4.9).
type callSubqueryIterator struct {
	c       *ctx
	input   Iterator
	buildOp func(c *ctx, input Iterator) (Iterator, error)

	sub Iterator
	cur Row
}

func newCallSubquery(c *ctx, input Iterator, buildSub func(c *ctx, input Iterator) (Iterator, error)) Iterator {
	return &callSubqueryIterator{c: c, input: input, buildOp: buildSub}
}

func (it *callSubqueryIterator) Next() (Row, bool, error) {
	for {
		if it.sub != nil {
			row, ok, err := it.sub.Next()
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
			it.sub.Close()
			it.sub = nil
		}
		row, ok, err := it.input.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		if err := it.c.checkDeadline(); err != nil {
			return nil, false, err
		}
		it.cur = row
		singleRow := &constRowIterator{row: row, emitted: false}
		sub, err := it.buildOp(it.c, singleRow)
		if err != nil {
			return nil, false, err
		}
		it.sub = sub
	}
}

func (it *callSubqueryIterator) Close() {
	if it.sub != nil {
		it.sub.Close()
	}
	it.input.Close()
}

// constRowIterator yields exactly one pre-built row, used to seed a
// CALL subquery's inner plan with the outer row's bindings.
type constRowIterator struct {
	row     Row
	emitted bool
}

func (it *constRowIterator) Next() (Row, bool, error) {
	if it.emitted {
		return nil, false, nil
	}
	it.emitted = true
	return it.row.Clone(), true, nil
}

func (it *constRowIterator) Close() {}

// foreachIterator runs Body once per element of List, for write side
// effects only; the row stream passes through unchanged (spec §4.9).
type foreachIterator struct {
	c       *ctx
	input   Iterator
	n       planner.Foreach
	buildOp func(c *ctx, input Iterator) (Iterator, error)
}

func newForeach(c *ctx, n planner.Foreach, buildBody func(c *ctx, input Iterator) (Iterator, error), input Iterator) Iterator {
	return &foreachIterator{c: c, input: input, n: n, buildOp: buildBody}
}

func (it *foreachIterator) Next() (Row, bool, error) {
	row, ok, err := it.input.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	if err := it.c.checkDeadline(); err != nil {
		return nil, false, err
	}
	listB, err := it.c.eval(it.n.List, row)
	if err != nil {
		return nil, false, err
	}
	var items []Binding
	if listB.IsList() {
		items = listB.List()
	}
	for _, item := range items {
		elemRow := row.Clone()
		elemRow[it.n.Variable] = item
		body, err := it.buildOp(it.c, &constRowIterator{row: elemRow})
		if err != nil {
			return nil, false, err
		}
		for {
			_, more, err := body.Next()
			if err != nil {
				body.Close()
				return nil, false, err
			}
			if !more {
				break
			}
		}
		body.Close()
	}
	return row, true, nil
}

func (it *foreachIterator) Close() { it.input.Close() }
