// Package planner turns a parsed internal/cypher.Query into a physical
// operator tree (spec §4.9's logical->physical plan), applying one index
// rewrite (an inline `{k: v}` equality on a node pattern whose label and
// key have a registered property index becomes a NodeByLabelProperty
// lookup instead of a label scan + filter; WHERE predicates are not
// rewritten) and caching compiled plans keyed by normalized query text (spec §4.9's
// plan cache, invalidated on catalog.BumpDDLEpoch).
package planner

import (
	"github.com/nexusdb/nexus/internal/cypher"
	"github.com/nexusdb/nexus/internal/graphstore"
)

// Node is the marker interface every physical operator implements. The
// tree is pure data; internal/executor walks it to build Iterators.
type Node interface{ planNode() }

// AllNodesScan emits every visible node bound to Var (spec §4.9).
type AllNodesScan struct {
	Var string
}

// NodeByLabelScan emits every visible node carrying Label, bound to Var.
type NodeByLabelScan struct {
	Var   string
	Label string
}

// NodeByLabelProperty emits nodes carrying Label whose Key property
// satisfies an equality/range/prefix predicate served by the B-tree
// property index, avoiding NodeByLabelScan + Filter.
type NodeByLabelProperty struct {
	Var   string
	Label string
	Key   string
	Op    string // "=", "<", "<=", ">", ">=", "STARTS WITH"
	Value cypher.Expr
	Hi    cypher.Expr // populated for a closed-range rewrite (Op == "RANGE")
}

// Expand walks relationships of Types (any type if empty) from node
// variable From, binding the traversed relationship to RelVar (if
// non-empty) and the far node to To.
type Expand struct {
	Input   Node
	From    string
	To      string
	RelVar  string
	Types   []string
	Dir     graphstore.Direction
	AnyDir  bool
	MinHops int
	MaxHops int // -1 = unbounded
}

// OptionalExpand behaves like Expand but emits a null-bound row instead
// of dropping the input row when no matching relationship exists (spec
// §4.9 OPTIONAL MATCH semantics).
type OptionalExpand struct {
	Expand
}

// ShortestPath binds PathVar to the shortest (or every shortest, if All)
// path between From and To via Types in direction Dir.
type ShortestPath struct {
	Input   Node
	From    string
	To      string
	PathVar string
	Types   []string
	Dir     graphstore.Direction
	AnyDir  bool
	All     bool
}

// Filter drops rows for which Pred does not evaluate to true (three-
// valued logic: null and false both drop the row, spec §4.10).
type Filter struct {
	Input Node
	Pred  cypher.Expr
}

// ProjectItem is one output column: Expr evaluated and bound to As, or
// Star to splice every current binding through unchanged.
type ProjectItem struct {
	Expr cypher.Expr
	As   string
	Star bool
}

// Project evaluates Items over each input row, replacing the row's
// bindings with exactly those columns.
type Project struct {
	Input Node
	Items []ProjectItem
}

// AggregateItem is one aggregate output column (spec §4.10's count, sum,
// avg, min, max, collect).
type AggregateItem struct {
	Func     string
	Arg      cypher.Expr // nil for count(*)
	Distinct bool
	As       string
}

// Aggregate groups rows by GroupBy (evaluated once per row) and computes
// Aggregates per group; empty input still yields one row when GroupBy is
// empty (spec §4.10's empty-input aggregation semantics: count returns
// 0, sum returns 0, avg/min/max/collect return null/empty).
type Aggregate struct {
	Input      Node
	GroupBy    []ProjectItem
	Aggregates []AggregateItem
}

// Distinct suppresses rows whose bound columns encode to the same
// signature string (the executor's rowSignature) as one already emitted.
type Distinct struct {
	Input Node
}

// SortItem is one ORDER BY term.
type SortItem struct {
	Expr       cypher.Expr
	Descending bool
}

// Sort buffers and reorders its input by Items.
type Sort struct {
	Input Node
	Items []SortItem
}

// Skip discards the first N rows.
type Skip struct {
	Input Node
	N     cypher.Expr
}

// Limit caps output at N rows.
type Limit struct {
	Input Node
	N     cypher.Expr
}

// Unwind expands a list-valued expression into one row per element,
// joined against Input.
type Unwind struct {
	Input Node
	List  cypher.Expr
	As    string
}

// Union concatenates the rows of two plans; All preserves duplicates,
// otherwise the executor de-duplicates as it would for Distinct.
type Union struct {
	Left, Right Node
	All         bool
}

// CartesianProduct pairs every row of Left with every row of Right, used
// for comma-separated MATCH patterns that share no variable.
type CartesianProduct struct {
	Left, Right Node
}

// PatternElement describes one (possibly labeled/typed) node or
// relationship to materialize for CREATE/MERGE.
type PatternElement struct {
	IsRel      bool
	Var        string
	Labels     []string // node labels
	Types      []string // rel types (len 1 expected for CREATE)
	Properties map[string]cypher.Expr
	FromVar    string // rel endpoints, referencing already-bound or just-created vars
	ToVar      string
	Dir        graphstore.Direction
}

// Create materializes a fresh pattern (spec §4.9 Create operator),
// chaining off Input so CREATE can follow a preceding MATCH.
type Create struct {
	Input    Node
	Elements []PatternElement
}

// MergeAction is one ON CREATE | ON MATCH SET item.
type MergeAction struct {
	Variable string
	Property string
	Label    string
	Value    cypher.Expr
}

// Merge matches Pattern if possible, else creates it, applying the
// matching action list exactly once (spec §4.9).
type Merge struct {
	Input     Node
	Pattern   PatternElement
	NodeExtra []PatternElement // additional chained elements (rel + far node)
	OnCreate  []MergeAction
	OnMatch   []MergeAction
}

// SetProperty applies one `var.prop = expr` or `var:Label` mutation per
// input row.
type SetProperty struct {
	Input    Node
	Variable string
	Property string
	Label    string
	Value    cypher.Expr
}

// RemoveProperty removes one property or label per input row.
type RemoveProperty struct {
	Input    Node
	Variable string
	Property string
	Label    string
}

// Delete removes the bound nodes/relationships named by Vars. Detach
// additionally removes a node's incident relationships first.
type Delete struct {
	Input  Node
	Vars   []string
	Detach bool
}

// KnnSearch runs a vector-index nearest-neighbor search, binding Var to
// each matched node and Score to its distance from the query vector
// (lower is closer).
type KnnSearch struct {
	Input Node
	Var   string
	Score string
	Label string
	Key   string
	Query cypher.Expr
	K     int
}

// Call invokes a registered procedure, binding Yield names to its output
// columns.
type Call struct {
	Input Node
	Name  string
	Args  []cypher.Expr
	Yield []string
}

// CallSubquery runs Sub once per Input row with Input's bindings visible
// to it, concatenating Sub's output rows back onto the corresponding
// input row (CALL { ... } per spec §4.9).
type CallSubquery struct {
	Input Node
	Sub   Node
}

// Foreach runs Body once per element of List (bound to Variable) for
// every Input row, for its write side effects only; it does not change
// the row stream itself.
type Foreach struct {
	Input    Node
	Variable string
	List     cypher.Expr
	Body     Node
}

func (AllNodesScan) planNode()        {}
func (NodeByLabelScan) planNode()     {}
func (NodeByLabelProperty) planNode() {}
func (Expand) planNode()              {}
func (OptionalExpand) planNode()      {}
func (ShortestPath) planNode()        {}
func (Filter) planNode()              {}
func (Project) planNode()             {}
func (Aggregate) planNode()           {}
func (Distinct) planNode()            {}
func (Sort) planNode()                {}
func (Skip) planNode()                {}
func (Limit) planNode()               {}
func (Unwind) planNode()              {}
func (Union) planNode()               {}
func (CartesianProduct) planNode()    {}
func (Create) planNode()              {}
func (Merge) planNode()               {}
func (SetProperty) planNode()         {}
func (RemoveProperty) planNode()      {}
func (Delete) planNode()              {}
func (KnnSearch) planNode()           {}
func (Call) planNode()                {}
func (CallSubquery) planNode()        {}
func (Foreach) planNode()             {}
