package graphstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdjacencySetAddRemoveContains(t *testing.T) {
	a := NewAdjacencySet()
	require.True(t, a.Add(10))
	require.True(t, a.Add(20))
	require.False(t, a.Add(10))
	require.True(t, a.Contains(10))
	require.Equal(t, 2, a.Len())

	require.True(t, a.Remove(10))
	require.False(t, a.Contains(10))
	require.Equal(t, 1, a.Len())
}

func TestAdjacencySetSnapshotRoundTrip(t *testing.T) {
	a := NewAdjacencySet()
	ids := []uint64{1, 2, 5, 100, 101, 500, 100000}
	for _, id := range ids {
		a.Add(id)
	}

	snap, err := a.Snapshot()
	require.NoError(t, err)

	loaded, err := LoadSnapshot(snap)
	require.NoError(t, err)
	require.Equal(t, ids, loaded.Slice())
}

func TestAdjacencySetSnapshotEmpty(t *testing.T) {
	a := NewAdjacencySet()
	snap, err := a.Snapshot()
	require.NoError(t, err)

	loaded, err := LoadSnapshot(snap)
	require.NoError(t, err)
	require.Empty(t, loaded.Slice())
}
