package recordstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/pagecache"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	cache, err := pagecache.Open(dir, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return Open(cache)
}

func TestAllocateNodeAssignsDistinctIDs(t *testing.T) {
	st := openTestStore(t)

	id1, err := st.Nodes.Allocate(1)
	require.NoError(t, err)
	id2, err := st.Nodes.Allocate(1)
	require.NoError(t, err)

	require.NotEqual(t, id1, id2)
}

func TestNodeVisibility(t *testing.T) {
	st := openTestStore(t)
	id, err := st.Nodes.Allocate(5)
	require.NoError(t, err)

	rec, err := st.Nodes.Read(id)
	require.NoError(t, err)
	require.False(t, rec.Visible(4))
	require.True(t, rec.Visible(5))
	require.True(t, rec.Visible(100))

	require.NoError(t, st.Nodes.Tombstone(id, 10))
	rec, err = st.Nodes.Read(id)
	require.NoError(t, err)
	require.True(t, rec.Deleted())
	require.True(t, rec.Visible(9))
	require.False(t, rec.Visible(10))
}

func TestTombstonedNodeSlotIsReused(t *testing.T) {
	st := openTestStore(t)
	id, err := st.Nodes.Allocate(1)
	require.NoError(t, err)
	require.NoError(t, st.Nodes.Tombstone(id, 2))

	next, err := st.Nodes.Allocate(3)
	require.NoError(t, err)
	require.Equal(t, id, next)
}

func TestCreateEdgeSplicesBothChains(t *testing.T) {
	st := openTestStore(t)
	a, err := st.Nodes.Allocate(1)
	require.NoError(t, err)
	b, err := st.Nodes.Allocate(1)
	require.NoError(t, err)

	rel1, err := st.CreateEdge(a, b, 7, 2)
	require.NoError(t, err)
	rel2, err := st.CreateEdge(a, b, 7, 3)
	require.NoError(t, err)

	aNode, err := st.Nodes.Read(a)
	require.NoError(t, err)
	require.Equal(t, rel2, aNode.FirstRelPtr)

	bNode, err := st.Nodes.Read(b)
	require.NoError(t, err)
	require.Equal(t, rel2, bNode.FirstRelPtr)

	r2, err := st.Rels.Read(rel2)
	require.NoError(t, err)
	require.Equal(t, rel1, r2.NextSrcRel)
	require.Equal(t, rel1, r2.NextDstRel)

	r1, err := st.Rels.Read(rel1)
	require.NoError(t, err)
	require.Equal(t, nilPtr48, r1.NextSrcRel)
	require.Equal(t, nilPtr48, r1.NextDstRel)
}

func TestCreateEdgeSelfLoop(t *testing.T) {
	st := openTestStore(t)
	a, err := st.Nodes.Allocate(1)
	require.NoError(t, err)

	relID, err := st.CreateEdge(a, a, 1, 1)
	require.NoError(t, err)

	rec, err := st.Rels.Read(relID)
	require.NoError(t, err)
	require.Equal(t, a, rec.Src)
	require.Equal(t, a, rec.Dst)
	require.Equal(t, nilPtr48, rec.NextSrcRel)
	require.Equal(t, nilPtr48, rec.NextDstRel)
}

func TestDeleteEdgeTombstonesWithoutUnlinking(t *testing.T) {
	st := openTestStore(t)
	a, err := st.Nodes.Allocate(1)
	require.NoError(t, err)
	b, err := st.Nodes.Allocate(1)
	require.NoError(t, err)
	relID, err := st.CreateEdge(a, b, 1, 1)
	require.NoError(t, err)

	require.NoError(t, st.DeleteEdge(relID, 5))

	rec, err := st.Rels.Read(relID)
	require.NoError(t, err)
	require.True(t, rec.Deleted())
	require.True(t, rec.Visible(4))
	require.False(t, rec.Visible(5))
}

func TestRecordsDoNotSpanPageBoundary(t *testing.T) {
	// Relationship records (48B) do not divide PageSize (8192) evenly;
	// verify many consecutive allocations still round-trip correctly,
	// which would fail if any record straddled a page.
	st := openTestStore(t)
	a, err := st.Nodes.Allocate(1)
	require.NoError(t, err)
	b, err := st.Nodes.Allocate(1)
	require.NoError(t, err)

	var ids []uint64
	for i := 0; i < 500; i++ {
		id, err := st.CreateEdge(a, b, uint32(i), 1)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i, id := range ids {
		rec, err := st.Rels.Read(id)
		require.NoError(t, err)
		require.Equal(t, uint32(i), rec.TypeID)
	}
}
