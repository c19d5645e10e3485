package graphstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreAddEdgeNeighborsBothDirections(t *testing.T) {
	s := NewStore()
	s.AddEdge(1, 2, 10)
	s.AddEdge(1, 3, 10)

	require.Equal(t, []uint64{2, 3}, s.Neighbors(1, 10, false, Outgoing))
	require.Equal(t, []uint64{1}, s.Neighbors(2, 10, false, Incoming))
}

func TestStoreHasEdge(t *testing.T) {
	s := NewStore()
	s.AddEdge(1, 2, 10)
	require.True(t, s.HasEdge(1, 2, 10))
	require.False(t, s.HasEdge(1, 3, 10))
	require.False(t, s.HasEdge(2, 1, 10)) // wrong direction
}

func TestStoreCountEdges(t *testing.T) {
	s := NewStore()
	s.AddEdge(1, 2, 10)
	s.AddEdge(1, 3, 10)
	s.AddEdge(1, 4, 20)

	require.Equal(t, 2, s.CountEdges(1, 10, Outgoing))
	require.Equal(t, 1, s.CountEdges(1, 20, Outgoing))
	require.Equal(t, 0, s.CountEdges(1, 30, Outgoing))
}

func TestStoreRemoveEdgeUpdatesCountsAndNeighbors(t *testing.T) {
	s := NewStore()
	s.AddEdge(1, 2, 10)
	s.AddEdge(1, 3, 10)
	s.RemoveEdge(1, 2, 10)

	require.Equal(t, []uint64{3}, s.Neighbors(1, 10, false, Outgoing))
	require.Equal(t, 1, s.CountEdges(1, 10, Outgoing))
	require.False(t, s.HasEdge(1, 2, 10))
}

func TestStoreNeighborsMatchAnyTypeMerges(t *testing.T) {
	s := NewStore()
	s.AddEdge(1, 2, 10)
	s.AddEdge(1, 3, 20)

	got := s.Neighbors(1, 0, true, Outgoing)
	require.Equal(t, []uint64{2, 3}, got)
}

func TestStoreRebuildClearsState(t *testing.T) {
	s := NewStore()
	s.AddEdge(1, 2, 10)
	s.Rebuild()

	require.Empty(t, s.Neighbors(1, 10, false, Outgoing))
	require.Equal(t, 0, s.CountEdges(1, 10, Outgoing))
	require.False(t, s.HasEdge(1, 2, 10))
}
