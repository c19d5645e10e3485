package cypher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleMatchReturn(t *testing.T) {
	q, err := ParseQuery(`MATCH (n:Person) WHERE n.age > 30 RETURN n.name, n.age ORDER BY n.age DESC LIMIT 10`)
	require.NoError(t, err)
	require.Len(t, q.Parts, 1)
	require.Len(t, q.Parts[0].Clauses, 2)

	m, ok := q.Parts[0].Clauses[0].(MatchClause)
	require.True(t, ok)
	require.False(t, m.Optional)
	require.Len(t, m.Pattern, 1)
	require.Equal(t, "n", m.Pattern[0].Nodes[0].Variable)
	require.Equal(t, []string{"Person"}, m.Pattern[0].Nodes[0].Labels)
	require.NotNil(t, m.Where)

	ret, ok := q.Parts[0].Clauses[1].(ReturnClause)
	require.True(t, ok)
	require.Len(t, ret.Items, 2)
	require.Len(t, ret.OrderBy, 1)
	require.True(t, ret.OrderBy[0].Descending)
	require.NotNil(t, ret.Limit)
}

func TestParseOptionalMatch(t *testing.T) {
	q, err := ParseQuery(`OPTIONAL MATCH (a)-[:KNOWS]->(b) RETURN a, b`)
	require.NoError(t, err)
	m := q.Parts[0].Clauses[0].(MatchClause)
	require.True(t, m.Optional)
	require.Equal(t, []string{"KNOWS"}, m.Pattern[0].Rels[0].Types)
	require.Equal(t, DirOut, m.Pattern[0].Rels[0].Direction)
}

func TestParseRelationshipDirectionIn(t *testing.T) {
	q, err := ParseQuery(`MATCH (a)<-[:FOLLOWS]-(b) RETURN a`)
	require.NoError(t, err)
	m := q.Parts[0].Clauses[0].(MatchClause)
	require.Equal(t, DirIn, m.Pattern[0].Rels[0].Direction)
}

func TestParseVariableLengthPath(t *testing.T) {
	q, err := ParseQuery(`MATCH (a)-[:LINKS*1..3]->(b) RETURN b`)
	require.NoError(t, err)
	m := q.Parts[0].Clauses[0].(MatchClause)
	rel := m.Pattern[0].Rels[0]
	require.True(t, rel.VarLength)
	require.Equal(t, 1, rel.MinHops)
	require.Equal(t, 3, rel.MaxHops)
}

func TestParseCreateAndSet(t *testing.T) {
	q, err := ParseQuery(`CREATE (n:Person {name: "Ada"}) SET n.age = 30, n:Famous`)
	require.NoError(t, err)
	require.IsType(t, CreateClause{}, q.Parts[0].Clauses[0])
	setClause := q.Parts[0].Clauses[1].(SetClause)
	require.Len(t, setClause.Items, 2)
	require.Equal(t, "age", setClause.Items[0].Property)
	require.Equal(t, "Famous", setClause.Items[1].Label)
}

func TestParseMergeWithOnCreateOnMatch(t *testing.T) {
	q, err := ParseQuery(`MERGE (n:Person {id: 1}) ON CREATE SET n.created = true ON MATCH SET n.seen = true`)
	require.NoError(t, err)
	merge := q.Parts[0].Clauses[0].(MergeClause)
	require.Len(t, merge.OnCreate, 1)
	require.Len(t, merge.OnMatch, 1)
}

func TestParseDetachDelete(t *testing.T) {
	q, err := ParseQuery(`MATCH (n) DETACH DELETE n`)
	require.NoError(t, err)
	del := q.Parts[0].Clauses[1].(DeleteClause)
	require.True(t, del.Detach)
}

func TestParseUnionAll(t *testing.T) {
	q, err := ParseQuery(`MATCH (n:A) RETURN n.id UNION ALL MATCH (n:B) RETURN n.id`)
	require.NoError(t, err)
	require.Len(t, q.Parts, 2)
	require.Len(t, q.Unions, 1)
	require.True(t, q.Unions[0].All)
}

func TestParseWithUnwind(t *testing.T) {
	q, err := ParseQuery(`UNWIND [1, 2, 3] AS x RETURN x`)
	require.NoError(t, err)
	uw := q.Parts[0].Clauses[0].(UnwindClause)
	require.Equal(t, "x", uw.As)
	list, ok := uw.List.(LiteralList)
	require.True(t, ok)
	require.Len(t, list.Items, 3)
}

func TestParseIsNotNull(t *testing.T) {
	q, err := ParseQuery(`MATCH (n) WHERE n.email IS NOT NULL RETURN n`)
	require.NoError(t, err)
	m := q.Parts[0].Clauses[0].(MatchClause)
	isNull, ok := m.Where.(IsNullTest)
	require.True(t, ok)
	require.True(t, isNull.Negate)
}

func TestParseStartsWithEndsWithContains(t *testing.T) {
	q, err := ParseQuery(`MATCH (n) WHERE n.name STARTS WITH 'A' AND n.name ENDS WITH 'z' OR n.name CONTAINS 'mid' RETURN n`)
	require.NoError(t, err)
	m := q.Parts[0].Clauses[0].(MatchClause)
	or, ok := m.Where.(BinaryOp)
	require.True(t, ok)
	require.Equal(t, "OR", or.Op)
}

func TestParseArithmeticPrecedence(t *testing.T) {
	q, err := ParseQuery(`RETURN 2 + 3 * 4 ^ 2`)
	require.NoError(t, err)
	ret := q.Parts[0].Clauses[0].(ReturnClause)
	top := ret.Items[0].Expr.(BinaryOp)
	require.Equal(t, "+", top.Op)
	require.IsType(t, LiteralInt{}, top.Left)
	mul := top.Right.(BinaryOp)
	require.Equal(t, "*", mul.Op)
	pow := mul.Right.(BinaryOp)
	require.Equal(t, "^", pow.Op)
}

func TestParseCaseExpression(t *testing.T) {
	q, err := ParseQuery(`RETURN CASE WHEN n.age < 18 THEN 'minor' ELSE 'adult' END`)
	require.NoError(t, err)
	ret := q.Parts[0].Clauses[0].(ReturnClause)
	ce := ret.Items[0].Expr.(CaseExpr)
	require.Len(t, ce.Whens, 1)
	require.NotNil(t, ce.Else)
}

func TestParseListComprehension(t *testing.T) {
	q, err := ParseQuery(`RETURN [x IN range(1, 10) WHERE x % 2 = 0 | x * x]`)
	require.NoError(t, err)
	ret := q.Parts[0].Clauses[0].(ReturnClause)
	comp := ret.Items[0].Expr.(ListComprehension)
	require.Equal(t, "x", comp.Variable)
	require.NotNil(t, comp.Where)
	require.NotNil(t, comp.Project)
}

func TestParseFunctionCallDistinctCount(t *testing.T) {
	q, err := ParseQuery(`RETURN count(DISTINCT n.name)`)
	require.NoError(t, err)
	ret := q.Parts[0].Clauses[0].(ReturnClause)
	fn := ret.Items[0].Expr.(FunctionCall)
	require.Equal(t, "count", fn.Name)
	require.True(t, fn.Distinct)
}

func TestParseCallProcedureYield(t *testing.T) {
	q, err := ParseQuery(`CALL db.labels() YIELD label RETURN label`)
	require.NoError(t, err)
	call := q.Parts[0].Clauses[0].(CallProcedureClause)
	require.Equal(t, "db.labels", call.Name)
	require.Equal(t, []string{"label"}, call.Yield)
}

func TestParseCreateIndexAdmin(t *testing.T) {
	q, err := ParseQuery(`CREATE INDEX Person_name`)
	require.NoError(t, err)
	admin := q.Parts[0].Clauses[0].(AdminClause)
	require.Equal(t, AdminCreateIndex, admin.Kind)
	require.Equal(t, []string{"Person_name"}, admin.Args)
}

func TestParseShortestPathExpression(t *testing.T) {
	q, err := ParseQuery(`MATCH p = shortestPath((a)-[:LINKS*]-(b)) RETURN p`)
	require.NoError(t, err)
	m := q.Parts[0].Clauses[0].(MatchClause)
	require.Len(t, m.Pattern, 1)
}

func TestParseUnexpectedTokenErrors(t *testing.T) {
	_, err := ParseQuery(`RETURN )`)
	require.Error(t, err)
}

func TestParseWithThenMatchThenReturn(t *testing.T) {
	q, err := ParseQuery(`MATCH (n) WITH n, count(n) AS c WHERE c > 1 MATCH (n)-[:R]->(m) RETURN m`)
	require.NoError(t, err)
	require.Len(t, q.Parts[0].Clauses, 4)
	require.IsType(t, MatchClause{}, q.Parts[0].Clauses[0])
	require.IsType(t, WithClause{}, q.Parts[0].Clauses[1])
	require.IsType(t, MatchClause{}, q.Parts[0].Clauses[2])
	require.IsType(t, ReturnClause{}, q.Parts[0].Clauses[3])
}
