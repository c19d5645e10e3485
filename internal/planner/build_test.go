package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/cypher"
	"github.com/nexusdb/nexus/internal/graphstore"
)

func parse(t *testing.T, q string) *cypher.Query {
	t.Helper()
	query, err := cypher.ParseQuery(q)
	require.NoError(t, err)
	return query
}

func TestBuildAllNodesScanAndFilter(t *testing.T) {
	q := parse(t, `MATCH (n) WHERE n.age > 10 RETURN n.name`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"n.name"}, plan.Columns)

	proj, ok := plan.Root.(Project)
	require.True(t, ok)
	filter, ok := proj.Input.(Filter)
	require.True(t, ok)
	_, ok = filter.Input.(AllNodesScan)
	require.True(t, ok)
}

func TestBuildNodeByLabelScan(t *testing.T) {
	q := parse(t, `MATCH (n:Person) RETURN n`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	proj := plan.Root.(Project)
	scan, ok := proj.Input.(NodeByLabelScan)
	require.True(t, ok)
	require.Equal(t, "Person", scan.Label)
}

func TestBuildNodeByLabelPropertyRewrite(t *testing.T) {
	q := parse(t, `MATCH (n:Person {name: "Alice"}) RETURN n`)
	indexed := func(label, key string) bool { return label == "Person" && key == "name" }
	plan, err := Build(q, indexed)
	require.NoError(t, err)
	proj := plan.Root.(Project)
	scan, ok := proj.Input.(NodeByLabelProperty)
	require.True(t, ok)
	require.Equal(t, "Person", scan.Label)
	require.Equal(t, "name", scan.Key)
	require.Equal(t, "=", scan.Op)
}

func TestBuildExpandChain(t *testing.T) {
	q := parse(t, `MATCH (a:Person)-[r:KNOWS]->(b:Person) RETURN a, b`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	proj := plan.Root.(Project)
	expand, ok := proj.Input.(Expand)
	require.True(t, ok)
	require.Equal(t, "a", expand.From)
	require.Equal(t, "b", expand.To)
	require.Equal(t, "r", expand.RelVar)
	require.Equal(t, []string{"KNOWS"}, expand.Types)
	require.Equal(t, graphstore.Outgoing, expand.Dir)
	require.False(t, expand.AnyDir)
	_, ok = expand.Input.(NodeByLabelScan)
	require.True(t, ok)
}

func TestBuildOptionalMatchProducesOptionalExpand(t *testing.T) {
	q := parse(t, `MATCH (a) OPTIONAL MATCH (a)-[:KNOWS]->(b) RETURN a, b`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	proj := plan.Root.(Project)
	_, ok := proj.Input.(OptionalExpand)
	require.True(t, ok)
}

func TestBuildVarLengthPath(t *testing.T) {
	q := parse(t, `MATCH (a)-[:LINKS*1..3]->(b) RETURN b`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	proj := plan.Root.(Project)
	expand := proj.Input.(Expand)
	require.Equal(t, 1, expand.MinHops)
	require.Equal(t, 3, expand.MaxHops)
}

func TestBuildAggregateRoutesCountAndGroupKey(t *testing.T) {
	q := parse(t, `MATCH (n:Person) RETURN n.city, count(n) AS total`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"n.city", "total"}, plan.Columns)

	agg, ok := plan.Root.(Aggregate)
	require.True(t, ok)
	require.Len(t, agg.GroupBy, 1)
	require.Equal(t, "n.city", agg.GroupBy[0].As)
	require.Len(t, agg.Aggregates, 1)
	require.Equal(t, "count", agg.Aggregates[0].Func)
	require.Equal(t, "total", agg.Aggregates[0].As)
}

func TestBuildCountStarHasNilArg(t *testing.T) {
	q := parse(t, `MATCH (n) RETURN count(*) AS total`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	agg := plan.Root.(Aggregate)
	require.Nil(t, agg.Aggregates[0].Arg)
}

func TestBuildWithThenMatchChain(t *testing.T) {
	q := parse(t, `MATCH (n:Person) WITH n ORDER BY n.age LIMIT 5 MATCH (n)-[:KNOWS]->(m) RETURN m`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	proj := plan.Root.(Project)
	expand := proj.Input.(Expand)
	require.Equal(t, "n", expand.From)
	require.Equal(t, "m", expand.To)

	limit, ok := expand.Input.(Limit)
	require.True(t, ok)
	sort, ok := limit.Input.(Sort)
	require.True(t, ok)
	withProj, ok := sort.Input.(Project)
	require.True(t, ok)
	_, ok = withProj.Input.(NodeByLabelScan)
	require.True(t, ok)
}

func TestBuildCreatePattern(t *testing.T) {
	q := parse(t, `CREATE (a:Person {name: "Bob"})-[:KNOWS]->(b:Person {name: "Sue"})`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	require.True(t, plan.Write)
	create, ok := plan.Root.(Create)
	require.True(t, ok)
	require.Len(t, create.Elements, 3)
	require.Equal(t, "a", create.Elements[0].Var)
	require.True(t, create.Elements[1].IsRel)
	require.Equal(t, []string{"KNOWS"}, create.Elements[1].Types)
	require.Equal(t, "b", create.Elements[2].Var)
}

func TestBuildMergeWithOnCreateOnMatch(t *testing.T) {
	q := parse(t, `MERGE (n:Person {name: "Al"}) ON CREATE SET n.created = true ON MATCH SET n.seen = true`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	require.True(t, plan.Write)
	merge, ok := plan.Root.(Merge)
	require.True(t, ok)
	require.Equal(t, "n", merge.Pattern.Var)
	require.Len(t, merge.OnCreate, 1)
	require.Len(t, merge.OnMatch, 1)
}

func TestBuildDetachDelete(t *testing.T) {
	q := parse(t, `MATCH (n:Person) DETACH DELETE n`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	del, ok := plan.Root.(Delete)
	require.True(t, ok)
	require.True(t, del.Detach)
	require.Equal(t, []string{"n"}, del.Vars)
}

func TestBuildUnionAll(t *testing.T) {
	q := parse(t, `MATCH (n:Person) RETURN n.name UNION ALL MATCH (n:Company) RETURN n.name`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	u, ok := plan.Root.(Union)
	require.True(t, ok)
	require.True(t, u.All)
}

func TestBuildCartesianProductForUnrelatedPatterns(t *testing.T) {
	q := parse(t, `MATCH (a:Person), (b:Company) RETURN a, b`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	proj := plan.Root.(Project)
	_, ok := proj.Input.(CartesianProduct)
	require.True(t, ok)
}

func TestBuildDistinctAndSkip(t *testing.T) {
	q := parse(t, `MATCH (n:Person) RETURN DISTINCT n.city SKIP 5 LIMIT 10`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	limit, ok := plan.Root.(Limit)
	require.True(t, ok)
	skip, ok := limit.Input.(Skip)
	require.True(t, ok)
	_, ok = skip.Input.(Distinct)
	require.True(t, ok)
}

func TestBuildUnwind(t *testing.T) {
	q := parse(t, `UNWIND [1, 2, 3] AS x RETURN x`)
	plan, err := Build(q, nil)
	require.NoError(t, err)
	proj := plan.Root.(Project)
	unwind, ok := proj.Input.(Unwind)
	require.True(t, ok)
	require.Equal(t, "x", unwind.As)
}
