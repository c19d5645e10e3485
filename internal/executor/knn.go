package executor

import (
	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/index"
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/planner"
	"github.com/nexusdb/nexus/internal/value"
)

// knnIterator runs a vector-index nearest-neighbor search per input row
// (spec §4.6's HNSW-backed KnnSearch operator), binding Var to each
// matched node and Score to its distance from the query vector (lower is
// closer; results come in ascending distance order).
type knnIterator struct {
	c     *ctx
	input Iterator
	n     planner.KnnSearch

	cur     Row
	results []resultRow
	ri      int
}

type resultRow struct {
	node  uint64
	score float64
}

func newKnnSearch(c *ctx, n planner.KnnSearch, input Iterator) Iterator {
	return &knnIterator{c: c, input: input, n: n}
}

func (it *knnIterator) Next() (Row, bool, error) {
	for {
		if it.ri < len(it.results) {
			r := it.results[it.ri]
			it.ri++
			out := it.cur.Clone()
			if it.n.Var != "" {
				out[it.n.Var] = NodeBinding(r.node)
			}
			if it.n.Score != "" {
				out[it.n.Score] = ScalarBinding(value.Float(r.score))
			}
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
		results, err := it.search(row)
		if err != nil {
			return nil, false, err
		}
		it.results = results
		it.ri = 0
	}
}

func (it *knnIterator) pull() (Row, bool, error) {
	if it.input == nil {
		return Row{}, true, nil
	}
	return it.input.Next()
}

func (it *knnIterator) search(row Row) ([]resultRow, error) {
	labelID, ok := it.c.graph.Catalog.LookupID(catalog.DictLabel, it.n.Label)
	if !ok {
		return nil, nil
	}
	idx, ok := it.vectorIndex(labelID)
	if !ok {
		return nil, nexuserr.New(nexuserr.KindPlan, 400, "executor: no vector index on label %s", it.n.Label)
	}
	qb, err := it.c.eval(it.n.Query, row)
	if err != nil {
		return nil, err
	}
	q := qb.Scalar()
	if q.Type() != value.TypeVector {
		return nil, nexuserr.New(nexuserr.KindPlan, 400, "executor: KNN query expression must be a vector")
	}
	hits, err := idx.Search(q.Vec(), it.n.K)
	if err != nil {
		return nil, err
	}
	out := make([]resultRow, 0, len(hits))
	for _, h := range hits {
		rec, visible, err := it.c.graph.LoadNode(h.ID, it.c.tx.Snapshot())
		if err != nil {
			return nil, err
		}
		if !visible || !HasLabel(rec, labelID) {
			continue
		}
		out = append(out, resultRow{node: h.ID, score: h.Score})
	}
	return out, nil
}

// vectorIndex resolves the vector index CALL vector.knn(label, vec, k)
// should search. The 3-argument call carries no property-key argument, so
// it looks up whichever vector index is registered for label. If n.Key
// is set, the key-qualified lookup is used instead, for a call shape that
// names the key explicitly.
func (it *knnIterator) vectorIndex(labelID uint32) (*index.HNSW, bool) {
	if it.n.Key != "" {
		keyID, ok := it.c.graph.Catalog.LookupID(catalog.DictPropKey, it.n.Key)
		if !ok {
			return nil, false
		}
		return it.c.graph.Indexes.VectorIndexFor(labelID, keyID)
	}
	_, idx, ok := it.c.graph.Indexes.VectorIndexForLabel(labelID)
	return idx, ok
}

func (it *knnIterator) Close() {
	if it.input != nil {
		it.input.Close()
	}
}
