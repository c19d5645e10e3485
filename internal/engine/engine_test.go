package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/index"
	"github.com/nexusdb/nexus/internal/value"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngineCreateAndMatch(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	_, err := e.Run(ctx, `CREATE (n:Person {name: "Alice", age: 30})`, nil)
	require.NoError(t, err)
	_, err = e.Run(ctx, `CREATE (n:Person {name: "Bob", age: 25})`, nil)
	require.NoError(t, err)

	rs, err := e.Run(ctx, `MATCH (n:Person) WHERE n.age > 26 RETURN n.name AS name`, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	require.Equal(t, "Alice", rs.Rows[0]["name"].(value.Value).String())
}

func TestEngineCreateRelationshipAndExpand(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	_, err := e.Run(ctx, `CREATE (:Person {name: "Alice"})-[:KNOWS]->(:Person {name: "Bob"})`, nil)
	require.NoError(t, err)

	rs, err := e.Run(ctx, `MATCH (a:Person {name: "Alice"})-[:KNOWS]->(b:Person) RETURN b.name AS name`, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	require.Equal(t, "Bob", rs.Rows[0]["name"].(value.Value).String())
}

func TestEngineQueryParams(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	_, err := e.Run(ctx, `CREATE (:Person {name: "Alice"})`, nil)
	require.NoError(t, err)

	rs, err := e.Run(ctx, `MATCH (n:Person {name: $name}) RETURN n.name AS name`,
		map[string]value.Value{"name": value.String("Alice")})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
}

func TestEngineCallBuiltinProcedure(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	_, err := e.Run(ctx, `CREATE (:Person)`, nil)
	require.NoError(t, err)

	rs, err := e.Run(ctx, `CALL db.labels() YIELD label RETURN label`, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	require.Equal(t, "Person", rs.Rows[0]["label"].(value.Value).String())
}

func TestEngineStats(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	_, err := e.Run(ctx, `CREATE (:Person)-[:KNOWS]->(:Person)`, nil)
	require.NoError(t, err)

	stats, err := e.Stats()
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.NodeCount)
	require.Equal(t, uint64(1), stats.RelationshipCount)
}

func TestEngineCheckpoint(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.Checkpoint(context.Background()))
}

func TestEngineReopenRebuildsAdjacencyAndLabels(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e1, err := Open(dir, Options{})
	require.NoError(t, err)
	_, err = e1.Run(ctx, `CREATE (:Person {name: "Alice"})-[:KNOWS]->(:Person {name: "Bob"})`, nil)
	require.NoError(t, err)
	require.NoError(t, e1.Close())

	e2, err := Open(dir, Options{})
	require.NoError(t, err)
	defer e2.Close()

	rs, err := e2.Run(ctx, `MATCH (a:Person {name: "Alice"})-[:KNOWS]->(b:Person) RETURN b.name AS name`, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	require.Equal(t, "Bob", rs.Rows[0]["name"].(value.Value).String())
}

func TestEngineAggregateCount(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	_, err := e.Run(ctx, `CREATE (n:Person {name: "Alice"})`, nil)
	require.NoError(t, err)
	_, err = e.Run(ctx, `CREATE (n:Person {name: "Bob"})`, nil)
	require.NoError(t, err)

	rs, err := e.Run(ctx, `MATCH (n:Person) RETURN count(n) AS total`, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	require.Equal(t, int64(2), rs.Rows[0]["total"].(value.Value).Int())
}

func TestEngineShortestPath(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	_, err := e.Run(ctx, `CREATE (a:Person {name: "Alice"})-[:KNOWS]->(b:Person {name: "Bob"})-[:KNOWS]->(c:Person {name: "Carl"})`, nil)
	require.NoError(t, err)

	rs, err := e.Run(ctx, `MATCH (a:Person {name: "Alice"}), (c:Person {name: "Carl"}) MATCH p = shortestPath((a)-[:KNOWS*]-(c)) RETURN p`, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
}

func TestEngineDeleteWithLiveRelFailsWithoutDetach(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	_, err := e.Run(ctx, `CREATE (:Person {name: "Alice"})-[:KNOWS]->(:Person {name: "Bob"})`, nil)
	require.NoError(t, err)

	_, err = e.Run(ctx, `MATCH (n:Person {name: "Alice"}) DELETE n`, nil)
	require.Error(t, err)
}

// seedAliceBobAcme builds the Alice/Bob/Acme dataset scenarios S1-S4 share.
func seedAliceBobAcme(t *testing.T, e *Engine, ctx context.Context) {
	t.Helper()
	_, err := e.Run(ctx, `CREATE (a:Person {name: "Alice", age: 30}), (b:Person {name: "Bob", age: 25}), (c:Company {name: "Acme"})
CREATE (a)-[:KNOWS {since: 2020}]->(b)
CREATE (a)-[:WORKS_AT {since: 2015}]->(c)`, nil)
	require.NoError(t, err)
}

func TestEngineS1MatchByPropertyReturnsSingleRow(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	seedAliceBobAcme(t, e, ctx)

	rs, err := e.Run(ctx, `MATCH (p:Person {name: 'Alice'}) RETURN p.name, p.age`, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	require.Equal(t, "Alice", rs.Rows[0]["p.name"].(value.Value).String())
	require.Equal(t, int64(30), rs.Rows[0]["p.age"].(value.Value).Int())
}

func TestEngineS2UndirectedKnowsCountsEachEndpoint(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	seedAliceBobAcme(t, e, ctx)

	rs, err := e.Run(ctx, `MATCH (a)-[r:KNOWS]-(b) RETURN count(r)`, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	require.Len(t, rs.Columns, 1)
	require.Equal(t, int64(2), rs.Rows[0][rs.Columns[0]].(value.Value).Int())
}

func TestEngineS3AggregateOverMissingLabelYieldsIdentityRow(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	seedAliceBobAcme(t, e, ctx)

	rs, err := e.Run(ctx, `MATCH (n:DoesNotExist) RETURN sum(n.age) AS total, collect(n.name) AS names, min(n.age) AS m, count(*) AS c`, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	row := rs.Rows[0]
	require.Equal(t, int64(0), row["total"].(value.Value).Int())
	require.Empty(t, row["names"].([]interface{}))
	require.Nil(t, row["m"])
	require.Equal(t, int64(0), row["c"].(value.Value).Int())
}

func TestEngineS4GroupByCityOrderedAndLimited(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	cities := map[string]int{"NYC": 3, "SF": 2, "LA": 1}
	for city, n := range cities {
		for i := 0; i < n; i++ {
			_, err := e.Run(ctx, `CREATE (:Person {city: $city})`, map[string]value.Value{"city": value.String(city)})
			require.NoError(t, err)
		}
	}

	rs, err := e.Run(ctx, `MATCH (n:Person) RETURN n.city AS c, count(n) AS k ORDER BY k DESC LIMIT 2`, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 2)
	require.Equal(t, "NYC", rs.Rows[0]["c"].(value.Value).String())
	require.Equal(t, int64(3), rs.Rows[0]["k"].(value.Value).Int())
	require.Equal(t, "SF", rs.Rows[1]["c"].(value.Value).String())
	require.Equal(t, int64(2), rs.Rows[1]["k"].(value.Value).Int())
}

// TestEngineS5VectorKnnHybridQuery exercises CALL vector.knn(...) YIELD
// node, score through the full parser/planner/executor pipeline, joined
// to a graph pattern and sorted by score (spec §4.10/§4.11's hybrid KNN
// contract). There is no Cypher-level syntax that produces a vector-typed
// property value and no executing path for CREATE INDEX yet (see
// DESIGN.md's acknowledged AdminClause gap), so the index and its
// vector-valued nodes are set up directly against the engine's storage
// layer, mirroring internal/index's own white-box index tests; only the
// CALL/MATCH/ORDER BY query itself runs through e.Run.
func TestEngineS5VectorKnnHybridQuery(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	docLabel, err := e.graph.Catalog.GetOrCreate(catalog.DictLabel, "Doc")
	require.NoError(t, err)
	embeddingKey, err := e.graph.Catalog.GetOrCreate(catalog.DictPropKey, "embedding")
	require.NoError(t, err)
	_, err = e.graph.Indexes.CreateVectorIndex(docLabel, embeddingKey, index.HNSWParams{Dimension: 3})
	require.NoError(t, err)

	vectors := [][3]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}, {0, 0, 1}, {0.8, 0.2, 0}}
	for i, vec := range vectors {
		rs, err := e.Run(ctx, `CREATE (d:Doc {i: $i})-[:WORKS_AT]->(t:Topic {name: "Databases"}) RETURN id(d) AS id`,
			map[string]value.Value{"i": value.Int(int64(i))})
		require.NoError(t, err)
		require.Len(t, rs.Rows, 1)
		nodeID := uint64(rs.Rows[0]["id"].(value.Value).Int())
		require.NoError(t, e.graph.Indexes.Apply(index.Mutation{
			NodeID: nodeID, Label: docLabel, KeyID: embeddingKey,
			OldValue: value.Null, NewValue: value.Vector(vec[:]),
		}))
	}

	rs, err := e.Run(ctx,
		`CALL vector.knn('Doc', [1.0, 0.0, 0.0], 3) YIELD node, score
MATCH (node)-[:WORKS_AT]->(t:Topic) RETURN t.name, score ORDER BY score`, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 3)
	var prev float64
	for i, row := range rs.Rows {
		require.Equal(t, "Databases", row["t.name"].(value.Value).String())
		score := row["score"].(value.Value).Float()
		if i > 0 {
			require.GreaterOrEqual(t, score, prev)
		}
		prev = score
	}
}

// TestEngineS6ReopenAfterUncleanShutdownRecoversCommittedState simulates a
// crash by abandoning an engine handle without calling Close (so no final
// checkpoint/flush happens beyond each transaction's own WAL fsync) and
// reopening from the same directory; only effects of transactions that
// completed Commit before the simulated crash must survive.
func TestEngineS6ReopenAfterUncleanShutdownRecoversCommittedState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e1, err := Open(dir, Options{})
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		_, err := e1.Run(ctx, `CREATE (:Counter {i: $i})`, map[string]value.Value{"i": value.Int(int64(i))})
		require.NoError(t, err)
	}
	_, err = e1.Run(ctx, `MATCH (n:Counter {i: 0}) SET n.i = 1000`, nil)
	require.NoError(t, err)
	_, err = e1.Run(ctx, `MATCH (n:Counter {i: 5}) DETACH DELETE n`, nil)
	require.NoError(t, err)

	e2, err := Open(dir, Options{})
	require.NoError(t, err)
	defer e2.Close()

	rs, err := e2.Run(ctx, `MATCH (n:Counter) RETURN count(n) AS total`, nil)
	require.NoError(t, err)
	require.Equal(t, int64(24), rs.Rows[0]["total"].(value.Value).Int())

	rs, err = e2.Run(ctx, `MATCH (n:Counter {i: 1000}) RETURN n.i AS i`, nil)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)

	rs, err = e2.Run(ctx, `MATCH (n:Counter {i: 5}) RETURN n`, nil)
	require.NoError(t, err)
	require.Empty(t, rs.Rows)
}
