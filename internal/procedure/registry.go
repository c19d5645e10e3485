// Package procedure implements the built-in procedure registry invoked
// from a Cypher CALL clause (spec §4.11/§6): db.* introspection
// procedures, dbms.* administrative procedures, and the built-in graph
// algorithm library. CALL vector.knn is not registered here; the planner
// turns it into a KnnSearch operator. User-defined procedures register
// through the same Registry, grounded on how the teacher repo's command
// registry (cmd/bd's cobra command tree) keeps name->handler lookups in
// one map rather than a type switch per call site.
package procedure

import (
	"context"
	"sort"
	"sync"

	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/value"
)

// Row is one output row from a procedure call, keyed by YIELD column
// name.
type Row map[string]value.Value

// Func implements one registered procedure. args are positional, already
// evaluated to values; ctx carries cancellation for long-running
// algorithms (PageRank, Louvain, ...).
type Func func(ctx context.Context, deps Deps, args []value.Value) ([]Row, error)

// Deps is the subset of engine state a built-in procedure needs. It is an
// interface so internal/procedure never imports internal/executor
// (executor depends on procedure, not the reverse).
type Deps interface {
	Labels() []string
	RelationshipTypes() []string
	PropertyKeys() []string
	NodeIDs() []uint64
	NodeLabelIDs(id uint64) []uint32
	NodeProps(id uint64) (map[string]value.Value, error)
	Neighbors(id uint64, anyType bool, typeName string) []uint64
	BumpDDLEpoch() error
}

// Registry is the name -> Func lookup CALL resolves against.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	registerBuiltins(r)
	return r
}

// Register adds or replaces a procedure under name (case-sensitive,
// dotted per Cypher convention: "db.labels", "algo.pageRank").
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the registered Func for name, if any.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns every registered procedure name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Call resolves and runs name, wrapping an unknown name in the standard
// error taxonomy.
func (r *Registry) Call(ctx context.Context, deps Deps, name string, args []value.Value) ([]Row, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, nexuserr.New(nexuserr.KindPlan, 400, "procedure: unknown procedure %q", name)
	}
	return fn(ctx, deps, args)
}
