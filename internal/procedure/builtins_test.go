package procedure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/value"
)

// fakeDeps is an in-memory graph used only to exercise the built-in
// procedures against a known adjacency shape, without pulling in
// internal/executor (which would invert the package's dependency
// direction).
type fakeDeps struct {
	labels    []string
	relTypes  []string
	propKeys  []string
	neighbors map[uint64][]uint64
	props     map[uint64]map[string]value.Value
	ddlBumps  int
}

func (d *fakeDeps) Labels() []string            { return d.labels }
func (d *fakeDeps) RelationshipTypes() []string { return d.relTypes }
func (d *fakeDeps) PropertyKeys() []string      { return d.propKeys }

func (d *fakeDeps) NodeIDs() []uint64 {
	ids := make([]uint64, 0, len(d.neighbors))
	for id := range d.neighbors {
		ids = append(ids, id)
	}
	return ids
}

func (d *fakeDeps) NodeLabelIDs(id uint64) []uint32 { return nil }

func (d *fakeDeps) NodeProps(id uint64) (map[string]value.Value, error) {
	return d.props[id], nil
}

func (d *fakeDeps) Neighbors(id uint64, anyType bool, typeName string) []uint64 {
	return d.neighbors[id]
}

func (d *fakeDeps) BumpDDLEpoch() error {
	d.ddlBumps++
	return nil
}

// triangleDeps is a 4-node graph: 1-2, 2-3, 1-3 (a triangle) plus a
// pendant edge 3-4 hanging off the triangle.
func triangleDeps() *fakeDeps {
	return &fakeDeps{
		neighbors: map[uint64][]uint64{
			1: {2, 3},
			2: {1, 3},
			3: {1, 2, 4},
			4: {3},
		},
	}
}

func TestRegistryCallUnknownProcedure(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(context.Background(), triangleDeps(), "no.such.proc", nil)
	require.Error(t, err)
}

func TestProcDegree(t *testing.T) {
	r := NewRegistry()
	rows, err := r.Call(context.Background(), triangleDeps(), "algo.degree", nil)
	require.NoError(t, err)
	degrees := map[int64]int64{}
	for _, row := range rows {
		degrees[row["nodeId"].Int()] = row["degree"].Int()
	}
	require.Equal(t, int64(2), degrees[1])
	require.Equal(t, int64(3), degrees[3])
	require.Equal(t, int64(1), degrees[4])
}

func TestProcWCCSingleComponent(t *testing.T) {
	r := NewRegistry()
	rows, err := r.Call(context.Background(), triangleDeps(), "algo.wcc", nil)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	first := rows[0]["componentId"]
	for _, row := range rows {
		require.True(t, value.Equal(first, row["componentId"]))
	}
}

func TestProcWCCTwoComponents(t *testing.T) {
	r := NewRegistry()
	deps := &fakeDeps{neighbors: map[uint64][]uint64{
		1: {2}, 2: {1},
		3: {4}, 4: {3},
	}}
	rows, err := r.Call(context.Background(), deps, "algo.wcc", nil)
	require.NoError(t, err)
	components := map[int64]bool{}
	for _, row := range rows {
		components[row["componentId"].Int()] = true
	}
	require.Len(t, components, 2)
}

func TestProcTriangleCount(t *testing.T) {
	r := NewRegistry()
	rows, err := r.Call(context.Background(), triangleDeps(), "algo.triangleCount", nil)
	require.NoError(t, err)
	counts := map[int64]int64{}
	for _, row := range rows {
		counts[row["nodeId"].Int()] = row["triangles"].Int()
	}
	require.Equal(t, int64(1), counts[1])
	require.Equal(t, int64(1), counts[2])
	require.Equal(t, int64(1), counts[3])
	require.Equal(t, int64(0), counts[4])
}

func TestProcDijkstraFindsPath(t *testing.T) {
	r := NewRegistry()
	deps := &fakeDeps{neighbors: map[uint64][]uint64{
		1: {2}, 2: {1, 3}, 3: {2},
	}}
	rows, err := r.Call(context.Background(), deps, "algo.dijkstra", []value.Value{value.Int(1), value.Int(3)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	path := rows[0]["path"].List()
	require.Equal(t, value.Int(1), path[0])
	require.Equal(t, value.Int(3), path[len(path)-1])
	require.Equal(t, float64(2), rows[0]["cost"].Float())
}

func TestProcDijkstraUnreachableReturnsNoRows(t *testing.T) {
	r := NewRegistry()
	deps := &fakeDeps{neighbors: map[uint64][]uint64{
		1: {2}, 2: {1},
		3: {},
	}}
	rows, err := r.Call(context.Background(), deps, "algo.dijkstra", []value.Value{value.Int(1), value.Int(3)})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestProcAStarAliasesDijkstra(t *testing.T) {
	r := NewRegistry()
	deps := &fakeDeps{neighbors: map[uint64][]uint64{
		1: {2}, 2: {1, 3}, 3: {2},
	}}
	dijkstra, err := r.Call(context.Background(), deps, "algo.dijkstra", []value.Value{value.Int(1), value.Int(3)})
	require.NoError(t, err)
	astar, err := r.Call(context.Background(), deps, "algo.astar", []value.Value{value.Int(1), value.Int(3)})
	require.NoError(t, err)
	require.Equal(t, dijkstra, astar)
}

func TestProcDBIntrospection(t *testing.T) {
	r := NewRegistry()
	deps := &fakeDeps{labels: []string{"Person", "Movie"}}
	rows, err := r.Call(context.Background(), deps, "db.labels", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestProcClearQueryCachesBumpsEpoch(t *testing.T) {
	r := NewRegistry()
	deps := &fakeDeps{}
	_, err := r.Call(context.Background(), deps, "dbms.clearQueryCaches", nil)
	require.NoError(t, err)
	require.Equal(t, 1, deps.ddlBumps)
}

func TestProcKillQueryRequiresOneArg(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(context.Background(), &fakeDeps{}, "dbms.killQuery", nil)
	require.Error(t, err)
}

func TestProcCancelledContext(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Call(ctx, triangleDeps(), "algo.pageRank", nil)
	require.Error(t, err)
}
