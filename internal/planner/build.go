package planner

import (
	"fmt"
	"strings"

	"github.com/nexusdb/nexus/internal/cypher"
	"github.com/nexusdb/nexus/internal/graphstore"
)

// IndexChecker reports whether a usable index exists for a given
// label+property key, letting Build choose NodeByLabelProperty over a
// label scan followed by a Filter (spec §4.9's index rewrite rule).
type IndexChecker func(label, key string) bool

// Plan is a compiled, directly executable operator tree plus the
// ordered output column names RETURN/WITH produced last.
type Plan struct {
	Root     Node
	Columns  []string
	Write    bool // true if any clause mutates the graph
}

type builder struct {
	indexed IndexChecker
	bound   map[string]bool
}

// Build compiles a parsed query into a physical plan. indexed may be nil
// (no rewrite, every label scan is a full NodeByLabelScan + Filter).
func Build(q *cypher.Query, indexed IndexChecker) (*Plan, error) {
	if indexed == nil {
		indexed = func(string, string) bool { return false }
	}
	if len(q.Parts) == 1 {
		return buildSingle(q.Parts[0], indexed)
	}

	first, err := buildSingle(q.Parts[0], indexed)
	if err != nil {
		return nil, err
	}
	root := first.Root
	cols := first.Columns
	write := first.Write
	for i, u := range q.Unions {
		next, err := buildSingle(q.Parts[i+1], indexed)
		if err != nil {
			return nil, err
		}
		root = Union{Left: root, Right: next.Root, All: u.All}
		write = write || next.Write
	}
	return &Plan{Root: root, Columns: cols, Write: write}, nil
}

func buildSingle(sq cypher.SingleQuery, indexed IndexChecker) (*Plan, error) {
	b := &builder{indexed: indexed, bound: map[string]bool{}}
	root, columns, write, err := b.buildClauses(nil, sq.Clauses)
	if err != nil {
		return nil, err
	}
	return &Plan{Root: root, Columns: columns, Write: write}, nil
}

// buildClauses folds a clause list onto root, used both for a top-level
// SingleQuery and for a FOREACH/CALL{} subquery's nested clause list
// (which shares the enclosing builder's variable bindings).
func (b *builder) buildClauses(root Node, clauses []cypher.Clause) (Node, []string, bool, error) {
	var columns []string
	write := false

	for _, clause := range clauses {
		switch c := clause.(type) {
		case cypher.MatchClause:
			root = b.addMatch(root, c)
		case cypher.WithClause:
			root, columns = b.addProjection(root, c.Items, c.Distinct, c.Where, c.OrderBy, c.Skip, c.Limit, true)
		case cypher.ReturnClause:
			root, columns = b.addProjection(root, c.Items, c.Distinct, nil, c.OrderBy, c.Skip, c.Limit, false)
		case cypher.UnwindClause:
			root = Unwind{Input: root, List: c.List, As: c.As}
			b.bound[c.As] = true
		case cypher.CreateClause:
			root = b.addCreate(root, c.Pattern)
			write = true
		case cypher.MergeClause:
			root = b.addMerge(root, c)
			write = true
		case cypher.SetClause:
			for _, item := range c.Items {
				root = SetProperty{Input: root, Variable: item.Variable, Property: item.Property, Label: item.Label, Value: item.Value}
			}
			write = true
		case cypher.RemoveClause:
			for _, item := range c.Items {
				root = RemoveProperty{Input: root, Variable: item.Variable, Property: item.Property, Label: item.Label}
			}
			write = true
		case cypher.DeleteClause:
			var vars []string
			for _, e := range c.Items {
				if id, ok := e.(cypher.Identifier); ok {
					vars = append(vars, id.Name)
				}
			}
			root = Delete{Input: root, Vars: vars, Detach: c.Detach}
			write = true
		case cypher.CallProcedureClause:
			if knn, ok := buildKnnSearch(root, c); ok {
				root = knn
				if knn.Var != "" {
					b.bound[knn.Var] = true
				}
				if knn.Score != "" {
					b.bound[knn.Score] = true
				}
				continue
			}
			root = Call{Input: root, Name: c.Name, Args: c.Args, Yield: c.Yield}
			for _, y := range c.Yield {
				b.bound[y] = true
			}
		case cypher.CallSubqueryClause:
			subRoot, _, subWrite, err := b.buildClauses(nil, flattenParts(c.Query))
			if err != nil {
				return nil, nil, false, err
			}
			root = CallSubquery{Input: root, Sub: subRoot}
			write = write || subWrite
		case cypher.ForeachClause:
			b.bound[c.Variable] = true
			bodyRoot, _, bodyWrite, err := b.buildClauses(nil, c.Clauses)
			if err != nil {
				return nil, nil, false, err
			}
			root = Foreach{Input: root, Variable: c.Variable, List: c.List, Body: bodyRoot}
			write = write || bodyWrite
		case cypher.UseClause:
			// database selection has no effect on the row-producing plan tree.
		default:
			return nil, nil, false, fmt.Errorf("planner: unsupported clause %T", clause)
		}
	}
	return root, columns, write, nil
}

// buildKnnSearch recognizes CALL vector.knn(label, queryVec, k) YIELD
// node[, score] (spec §4.10's "KNN + graph hybrid" contract) and builds a
// dedicated KnnSearch operator instead of routing through the generic
// procedure Call, since label and k must be known at plan time (Label is
// a plain string, not a row-evaluated expression) while the query vector
// stays a per-row expression so parameters/property lookups work. Any
// other CALL, including one literally named vector.knn with a shape that
// doesn't match this signature, falls back to the generic Call path and
// is rejected by the procedure registry at execution time.
func buildKnnSearch(root Node, c cypher.CallProcedureClause) (KnnSearch, bool) {
	if !strings.EqualFold(c.Name, "vector.knn") || len(c.Args) != 3 || len(c.Yield) == 0 {
		return KnnSearch{}, false
	}
	label, ok := c.Args[0].(cypher.LiteralString)
	if !ok {
		return KnnSearch{}, false
	}
	k, ok := c.Args[2].(cypher.LiteralInt)
	if !ok {
		return KnnSearch{}, false
	}
	n := KnnSearch{Input: root, Label: label.Value, Query: c.Args[1], K: int(k.Value), Var: c.Yield[0]}
	if len(c.Yield) > 1 {
		n.Score = c.Yield[1]
	}
	return n, true
}

// flattenParts concatenates every SingleQuery's clauses in a CALL {}
// subquery, deferring UNION handling inside a subquery to a future pass
// (subqueries in this grammar practically never themselves union).
func flattenParts(q *cypher.Query) []cypher.Clause {
	var out []cypher.Clause
	for _, part := range q.Parts {
		out = append(out, part.Clauses...)
	}
	return out
}

// addMatch folds one MATCH/OPTIONAL MATCH clause's patterns onto root.
// Inline {k: v} properties of named nodes in a non-optional MATCH become
// equality Filters, except a start node's single property that an index
// scan already serves; inline properties on anonymous nodes, on
// relationships, and in OPTIONAL MATCH are not applied.
func (b *builder) addMatch(root Node, c cypher.MatchClause) Node {
	for _, path := range c.Pattern {
		start := path.Nodes[0]
		served := !b.bound[start.Variable] && len(start.Labels) > 0 && len(start.Properties) == 1
		root = b.addPattern(root, path, c.Optional)
		for i, np := range path.Nodes {
			for key, val := range np.Properties {
				if np.Variable == "" || c.Optional || (i == 0 && served && b.indexed(np.Labels[0], key)) {
					continue
				}
				eq := cypher.BinaryOp{Op: "=", Left: cypher.PropertyAccess{Target: cypher.Identifier{Name: np.Variable}, Name: key}, Right: val}
				root = Filter{Input: root, Pred: eq}
			}
		}
	}
	if c.Where != nil {
		root = Filter{Input: root, Pred: c.Where}
	}
	return root
}

func (b *builder) addPattern(root Node, path cypher.PatternPath, optional bool) Node {
	startVar := path.Nodes[0].Variable
	var chain Node
	if !b.bound[startVar] {
		chain = b.scanFor(path.Nodes[0])
		b.bound[startVar] = true
		if root == nil {
			root = chain
		} else {
			root = CartesianProduct{Left: root, Right: chain}
		}
	}

	prevVar := startVar
	for i, rel := range path.Rels {
		nextNode := path.Nodes[i+1]
		dir, anyDir := relDirection(rel.Direction)
		if rel.Shortest || rel.AllShortest {
			root = ShortestPath{
				Input: root, From: prevVar, To: nextNode.Variable, PathVar: path.Variable,
				Types: rel.Types, Dir: dir, AnyDir: anyDir, All: rel.AllShortest,
			}
			b.bound[nextNode.Variable] = true
			prevVar = nextNode.Variable
			continue
		}
		minHops, maxHops := 1, 1
		if rel.VarLength {
			minHops = rel.MinHops
			if minHops < 0 {
				minHops = 1
			}
			maxHops = rel.MaxHops
		}
		expand := Expand{
			Input: root, From: prevVar, To: nextNode.Variable, RelVar: rel.Variable,
			Types: rel.Types, Dir: dir, AnyDir: anyDir, MinHops: minHops, MaxHops: maxHops,
		}
		if optional {
			root = OptionalExpand{Expand: expand}
		} else {
			root = expand
		}
		if rel.Variable != "" {
			b.bound[rel.Variable] = true
		}
		b.bound[nextNode.Variable] = true
		prevVar = nextNode.Variable
	}
	return root
}

func relDirection(d cypher.RelDirection) (dir graphstore.Direction, any bool) {
	switch d {
	case cypher.DirOut:
		return graphstore.Outgoing, false
	case cypher.DirIn:
		return graphstore.Incoming, false
	default:
		return graphstore.Outgoing, true
	}
}

// scanFor picks AllNodesScan, NodeByLabelScan, or NodeByLabelProperty
// for a node pattern that introduces a fresh variable, applying inline
// property-equality predicates from the pattern's {k: v} map as the
// index rewrite target when an index is known to exist.
func (b *builder) scanFor(np cypher.NodePattern) Node {
	if len(np.Labels) == 0 {
		return AllNodesScan{Var: np.Variable}
	}
	label := np.Labels[0]
	for key, expr := range np.Properties {
		if b.indexed(label, key) {
			return NodeByLabelProperty{Var: np.Variable, Label: label, Key: key, Op: "=", Value: expr}
		}
	}
	return NodeByLabelScan{Var: np.Variable, Label: label}
}

func (b *builder) addCreate(root Node, paths []cypher.PatternPath) Node {
	var elements []PatternElement
	for _, path := range paths {
		elements = append(elements, PatternElement{Var: path.Nodes[0].Variable, Labels: path.Nodes[0].Labels, Properties: path.Nodes[0].Properties})
		b.bound[path.Nodes[0].Variable] = true
		prevVar := path.Nodes[0].Variable
		for i, rel := range path.Rels {
			dir, _ := relDirection(rel.Direction)
			nextNode := path.Nodes[i+1]
			elements = append(elements, PatternElement{IsRel: true, Var: rel.Variable, Types: rel.Types, Properties: rel.Properties, FromVar: prevVar, ToVar: nextNode.Variable, Dir: dir})
			elements = append(elements, PatternElement{Var: nextNode.Variable, Labels: nextNode.Labels, Properties: nextNode.Properties})
			if rel.Variable != "" {
				b.bound[rel.Variable] = true
			}
			b.bound[nextNode.Variable] = true
			prevVar = nextNode.Variable
		}
	}
	return Create{Input: root, Elements: elements}
}

func (b *builder) addMerge(root Node, c cypher.MergeClause) Node {
	path := c.Pattern
	pattern := PatternElement{Var: path.Nodes[0].Variable, Labels: path.Nodes[0].Labels, Properties: path.Nodes[0].Properties}
	var extra []PatternElement
	prevVar := path.Nodes[0].Variable
	for i, rel := range path.Rels {
		dir, _ := relDirection(rel.Direction)
		nextNode := path.Nodes[i+1]
		extra = append(extra, PatternElement{IsRel: true, Var: rel.Variable, Types: rel.Types, Properties: rel.Properties, FromVar: prevVar, ToVar: nextNode.Variable, Dir: dir})
		extra = append(extra, PatternElement{Var: nextNode.Variable, Labels: nextNode.Labels, Properties: nextNode.Properties})
		prevVar = nextNode.Variable
	}
	b.bound[path.Nodes[0].Variable] = true
	for _, e := range extra {
		if e.Var != "" {
			b.bound[e.Var] = true
		}
	}

	var onCreate, onMatch []MergeAction
	for _, item := range c.OnCreate {
		onCreate = append(onCreate, MergeAction{Variable: item.Variable, Property: item.Property, Label: item.Label, Value: item.Value})
	}
	for _, item := range c.OnMatch {
		onMatch = append(onMatch, MergeAction{Variable: item.Variable, Property: item.Property, Label: item.Label, Value: item.Value})
	}
	return Merge{Input: root, Pattern: pattern, NodeExtra: extra, OnCreate: onCreate, OnMatch: onMatch}
}

// addProjection folds a WITH/RETURN clause's items (and its trailing
// WHERE/ORDER BY/SKIP/LIMIT) onto root, inserting an Aggregate stage
// when any item calls an aggregate function.
func (b *builder) addProjection(root Node, items []cypher.ProjectionItem, distinct bool, where cypher.Expr,
	order []cypher.SortItem, skip, limit cypher.Expr, rebind bool) (Node, []string) {

	hasAgg := false
	for _, it := range items {
		if containsAggregate(it.Expr) {
			hasAgg = true
			break
		}
	}

	var columns []string
	if hasAgg {
		var groupBy []ProjectItem
		var aggs []AggregateItem
		for _, it := range items {
			name := projectionName(it)
			columns = append(columns, name)
			if fn, ok := it.Expr.(cypher.FunctionCall); ok && AggregateFunctionName(fn.Name) {
				var arg cypher.Expr
				if len(fn.Args) == 1 {
					if id, ok := fn.Args[0].(cypher.Identifier); !ok || id.Name != "*" {
						arg = fn.Args[0]
					}
				}
				aggs = append(aggs, AggregateItem{Func: strings.ToLower(fn.Name), Arg: arg, Distinct: fn.Distinct, As: name})
			} else {
				groupBy = append(groupBy, ProjectItem{Expr: it.Expr, As: name, Star: it.Star})
			}
		}
		root = Aggregate{Input: root, GroupBy: groupBy, Aggregates: aggs}
	} else {
		var projItems []ProjectItem
		for _, it := range items {
			if it.Star {
				projItems = append(projItems, ProjectItem{Star: true})
				continue
			}
			name := projectionName(it)
			columns = append(columns, name)
			projItems = append(projItems, ProjectItem{Expr: it.Expr, As: name})
		}
		root = Project{Input: root, Items: projItems}
	}

	if rebind {
		b.bound = map[string]bool{}
		for _, name := range columns {
			b.bound[name] = true
		}
	}

	if where != nil {
		root = Filter{Input: root, Pred: where}
	}
	if distinct {
		root = Distinct{Input: root}
	}
	if len(order) > 0 {
		var items []SortItem
		for _, o := range order {
			items = append(items, SortItem{Expr: o.Expr, Descending: o.Descending})
		}
		root = Sort{Input: root, Items: items}
	}
	if skip != nil {
		root = Skip{Input: root, N: skip}
	}
	if limit != nil {
		root = Limit{Input: root, N: limit}
	}
	return root, columns
}

func projectionName(it cypher.ProjectionItem) string {
	if it.Alias != "" {
		return it.Alias
	}
	if id, ok := it.Expr.(cypher.Identifier); ok {
		return id.Name
	}
	if pa, ok := it.Expr.(cypher.PropertyAccess); ok {
		if id, ok := pa.Target.(cypher.Identifier); ok {
			return id.Name + "." + pa.Name
		}
	}
	return fmt.Sprintf("col%p", it.Expr)
}

// AggregateFunctionName reports whether name (case-insensitive) is one of
// the spec's aggregate functions.
func AggregateFunctionName(name string) bool {
	switch strings.ToLower(name) {
	case "count", "sum", "avg", "min", "max", "collect":
		return true
	}
	return false
}

func containsAggregate(e cypher.Expr) bool {
	switch n := e.(type) {
	case cypher.FunctionCall:
		if AggregateFunctionName(n.Name) {
			return true
		}
		for _, a := range n.Args {
			if containsAggregate(a) {
				return true
			}
		}
	case cypher.BinaryOp:
		return containsAggregate(n.Left) || containsAggregate(n.Right)
	case cypher.UnaryOp:
		return containsAggregate(n.Operand)
	case cypher.PropertyAccess:
		return containsAggregate(n.Target)
	}
	return false
}
