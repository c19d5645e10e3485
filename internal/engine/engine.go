// Package engine wires the storage and query layers into a single
// embeddable handle: catalog, page cache, record stores, the
// write-ahead log, the transaction manager, the adjacency and index
// layers, and the procedure registry behind one Open/Close/Begin*
// surface (spec §5/§6).
//
// Grounded on other_examples/bobboyms-storage-engine's StorageEngine,
// which owns its table metadata, WAL, and issues BeginWriteTransaction
// off of itself rather than exposing its component stores directly; and
// on the teacher's top-level beads.go, which re-exports a handful of
// constructor functions as the package's only public surface.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/cypher"
	"github.com/nexusdb/nexus/internal/executor"
	"github.com/nexusdb/nexus/internal/graphstore"
	"github.com/nexusdb/nexus/internal/index"
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/pagecache"
	"github.com/nexusdb/nexus/internal/procedure"
	"github.com/nexusdb/nexus/internal/recordstore"
	"github.com/nexusdb/nexus/internal/txn"
	"github.com/nexusdb/nexus/internal/value"
	"github.com/nexusdb/nexus/internal/wal"
)

// Options configures Open. Zero value is a usable default.
type Options struct {
	// PageCacheMB bounds the page cache's resident working set
	// (spec §4.2). Zero uses DefaultPageCacheMB.
	PageCacheMB int
	// WAL configures segment rolling; zero fields fall back to the WAL
	// package's own defaults.
	WAL wal.Options
}

// DefaultPageCacheMB is used when Options.PageCacheMB is unset.
const DefaultPageCacheMB = 64

// Engine is one open database: a directory on disk holding the catalog,
// record-store files, and WAL segments, plus the in-memory adjacency
// accelerator and label index rebuilt from them at Open time; property,
// vector and full-text indexes are not rebuilt by Open (spec §4.7's "adjacency
// and property indexes are accelerators, not sources of truth").
type Engine struct {
	dataDir string

	cache   *pagecache.Cache
	catalog *catalog.Catalog
	nodes   *recordstore.NodeStore
	rels    *recordstore.RelStore
	strings *recordstore.StringStore
	props   *recordstore.PropStore
	log     *wal.Log
	txns    *txn.Manager

	graph    *executor.Graph
	registry *procedure.Registry

	closeOnce sync.Once
}

// Open opens (creating if necessary) a Nexus database rooted at dataDir.
func Open(dataDir string, opts Options) (*Engine, error) {
	if opts.PageCacheMB <= 0 {
		opts.PageCacheMB = DefaultPageCacheMB
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, nexuserr.Storage(nexuserr.StorageIoError, err, "engine: create data dir %s", dataDir)
	}

	cache, err := pagecache.Open(dataDir, opts.PageCacheMB)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(dataDir)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	strs, err := recordstore.OpenStringStore(filepath.Join(dataDir, "strings.log"))
	if err != nil {
		_ = cache.Close()
		_ = cat.Close()
		return nil, err
	}
	props, err := recordstore.OpenPropStore(filepath.Join(dataDir, "props.log"), strs)
	if err != nil {
		_ = cache.Close()
		_ = cat.Close()
		_ = strs.Close()
		return nil, err
	}

	log, err := wal.Open(dataDir, opts.WAL)
	if err != nil {
		_ = cache.Close()
		_ = cat.Close()
		_ = strs.Close()
		_ = props.Close()
		return nil, err
	}

	nodes := recordstore.NewNodeStore(cache)
	rels := recordstore.NewRelStore(cache)
	adjacency := graphstore.NewStore()
	indexes := index.NewManager()

	e := &Engine{
		dataDir: dataDir,
		cache:   cache,
		catalog: cat,
		nodes:   nodes,
		rels:    rels,
		strings: strs,
		props:   props,
		log:     log,
		graph: &executor.Graph{
			Catalog:   cat,
			Nodes:     nodes,
			Rels:      rels,
			Props:     props,
			Adjacency: adjacency,
			Indexes:   indexes,
		},
		registry: procedure.NewRegistry(),
	}

	if err := e.rebuildMemoryIndexes(); err != nil {
		_ = e.Close()
		return nil, err
	}

	e.txns = txn.NewManager(log, cat.CurrentEpoch())
	return e, nil
}

// rebuildMemoryIndexes reconstructs the adjacency accelerator and label
// bitmap index from a full record-store scan. Both are in-memory only
// (spec §4.7); they are never themselves journaled to the WAL, so every
// Open pays the cost of rebuilding them from the durable source of
// truth (the node/relationship record stores) rather than trusting a
// stale snapshot.
//
// This is a deliberate Open Question resolution: a point-in-time
// snapshot of the adjacency set would make large databases open faster,
// but nothing in the pack models an adjacency snapshot format, and the
// record stores are already the durable source of truth, so a full
// rebuild on Open is correct even if not the fastest possible path. WAL
// replay is not used to repopulate the record stores themselves: a
// committed transaction's node/relationship/property writes are applied
// to the record store synchronously by the write operators while the
// statement executes, before Tx.Commit is called (see
// internal/executor/write.go), so by the time a commit is durable
// the record store already reflects it. The WAL's role here is the
// durable audit trail spec §4.4 requires, not a deferred-apply queue.
func (e *Engine) rebuildMemoryIndexes() error {
	e.graph.Adjacency.Rebuild()

	maxNode, err := e.nodes.MaxID()
	if err != nil {
		return err
	}
	if err := scanIDRange(maxNode, func(id uint64) error {
		rec, err := e.nodes.Read(id)
		if err != nil {
			return err
		}
		if rec.Deleted() {
			return nil
		}
		for _, labelID := range executor.NodeLabels(rec) {
			e.graph.Indexes.Labels().Add(labelID, id)
		}
		return nil
	}); err != nil {
		return err
	}

	maxRel, err := e.rels.MaxID()
	if err != nil {
		return err
	}
	return scanIDRange(maxRel, func(id uint64) error {
		rec, err := e.rels.Read(id)
		if err != nil {
			return err
		}
		if rec.Deleted() {
			return nil
		}
		e.graph.Adjacency.AddEdge(rec.Src, rec.Dst, rec.TypeID)
		return nil
	})
}

// scanIDRange walks [0, n) by handing contiguous, non-overlapping shards
// to GOMAXPROCS goroutines, rather than a single sequential loop over the
// whole record store: Open's full-store rescan is pure CPU-plus-mmap-page-
// fault work with no cross-id ordering requirement, and every mutation a
// shard makes (Labels().Add, Adjacency.AddEdge) already goes through that
// index's own lock, so concurrent shards cannot race each other. The
// first shard error cancels the rest via the errgroup's shared context.
func scanIDRange(n uint64, fn func(id uint64) error) error {
	if n == 0 {
		return nil
	}
	shards := runtime.GOMAXPROCS(0)
	if uint64(shards) > n {
		shards = int(n)
	}
	if shards < 1 {
		shards = 1
	}
	chunk := n / uint64(shards)

	g, gctx := errgroup.WithContext(context.Background())
	for s := 0; s < shards; s++ {
		start := uint64(s) * chunk
		end := start + chunk
		if s == shards-1 {
			end = n
		}
		g.Go(func() error {
			for id := start; id < end; id++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := fn(id); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Close flushes and closes every underlying store. Safe to call once;
// subsequent calls are no-ops.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.log != nil {
			err = firstErr(err, e.log.Close())
		}
		if e.props != nil {
			err = firstErr(err, e.props.Close())
		}
		if e.strings != nil {
			err = firstErr(err, e.strings.Close())
		}
		if e.catalog != nil {
			err = firstErr(err, e.catalog.Close())
		}
		if e.cache != nil {
			err = firstErr(err, e.cache.Close())
		}
	})
	return err
}

func firstErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}

// Catalog exposes the label/rel-type/prop-key dictionary, needed by
// callers that intern names ahead of a query (e.g. a bulk loader).
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Registry exposes the procedure registry so callers can register
// user-defined procedures alongside the built-ins.
func (e *Engine) Registry() *procedure.Registry { return e.registry }

// Stats reports basic engine-wide counters for `nexus admin stats`
// (spec §6.3): node/relationship id upper bounds (see the Stats method),
// the current epoch, and the
// page cache's hit/miss/eviction/dirty counters (spec §4.2).
type Stats struct {
	NodeCount         uint64
	RelationshipCount uint64
	CurrentEpoch      uint64
	Cache             pagecache.Stats
}

// Stats gathers an engine-wide snapshot. NodeCount/RelationshipCount are
// the exclusive upper bounds of ids ever allocated (spec §4.3's
// MaxID), not a live-visible count with tombstones subtracted — callers
// wanting exact live counts should query `MATCH (n) RETURN count(n)`.
func (e *Engine) Stats() (Stats, error) {
	maxNode, err := e.nodes.MaxID()
	if err != nil {
		return Stats{}, err
	}
	maxRel, err := e.rels.MaxID()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		NodeCount:         maxNode,
		RelationshipCount: maxRel,
		CurrentEpoch:      e.txns.CurrentEpoch(),
		Cache:             e.cache.Stats(),
	}, nil
}

// Checkpoint flushes every dirty page of the page cache, then records a
// WAL checkpoint at the current epoch so replay on the next Open can
// skip everything already durable (spec §4.4).
func (e *Engine) Checkpoint(ctx context.Context) error {
	if err := e.cache.FlushAll(); err != nil {
		return err
	}
	return e.log.Checkpoint(ctx, e.txns.CurrentEpoch(), 0)
}

// Tx wraps a transaction snapshot together with the engine it was opened
// against, so callers have one handle to pass to Query/Commit/Abort
// without threading the Engine and *txn.Tx separately.
type Tx struct {
	engine *Engine
	inner  *txn.Tx
}

// BeginRead opens a read-only transaction pinned to the current epoch.
func (e *Engine) BeginRead(ctx context.Context) *Tx {
	return &Tx{engine: e, inner: e.txns.BeginRead(ctx)}
}

// BeginWrite acquires the single-writer lock and opens a read-write
// transaction. The caller must Commit or Abort exactly once.
func (e *Engine) BeginWrite(ctx context.Context) *Tx {
	return &Tx{engine: e, inner: e.txns.BeginWrite(ctx)}
}

// Commit commits the transaction through the transaction manager and
// records the new epoch in the catalog. It applies nothing to the
// record stores, adjacency or index layers itself: the write operators
// already wrote those synchronously (see internal/executor/write.go).
func (tx *Tx) Commit(ctx context.Context) error {
	return tx.inner.Commit(ctx, func(epoch uint64, nodeIDs, relIDs []uint64, propCount int) error {
		return tx.engine.catalog.AdvanceEpoch(epoch)
	})
}

// Abort discards the transaction's write-set overlay.
func (tx *Tx) Abort() error { return tx.inner.Abort() }

// EndRead releases a read transaction's snapshot pin. Must be called
// exactly once on a transaction returned by BeginRead.
func (tx *Tx) EndRead() { tx.inner.EndRead() }

// Query parses, plans, and executes a single Cypher-subset statement
// against tx's snapshot (spec §4.8-§4.10).
func (e *Engine) Query(ctx context.Context, tx *Tx, queryText string, params map[string]value.Value) (*executor.ResultSet, error) {
	plan, err := executor.ParseAndPlan(e.graph, queryText)
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, tx.inner, e.graph, e.registry, plan, params)
}

// Run is a convenience wrapper that opens the right kind of transaction
// for queryText (inferred from the parsed plan's Write flag), executes
// it, and commits or ends the read, in one call. Most callers (the CLI,
// tests) want this; multi-statement transactions should use
// BeginRead/BeginWrite directly.
func (e *Engine) Run(ctx context.Context, queryText string, params map[string]value.Value) (*executor.ResultSet, error) {
	plan, err := executor.ParseAndPlan(e.graph, queryText)
	if err != nil {
		return nil, err
	}
	if plan.Write {
		tx := e.BeginWrite(ctx)
		rs, err := executor.Execute(ctx, tx.inner, e.graph, e.registry, plan, params)
		if err != nil {
			_ = tx.Abort()
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return rs, nil
	}
	tx := e.BeginRead(ctx)
	defer tx.EndRead()
	return executor.Execute(ctx, tx.inner, e.graph, e.registry, plan, params)
}

// ParseQuery exposes the Cypher-subset parser directly for callers that
// want to validate a query without executing it (e.g. an editor's
// syntax-check-as-you-type feature).
func ParseQuery(queryText string) (*cypher.Query, error) {
	return cypher.ParseQuery(queryText)
}
