package index

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLabelIndexAddRemove(t *testing.T) {
	li := NewLabelIndex()
	li.Add(1, 10)
	li.Add(1, 11)
	require.True(t, li.NodesWithLabel(1).Contains(10))
	require.Equal(t, uint64(2), li.Cardinality(1))

	li.Remove(1, 10)
	require.False(t, li.NodesWithLabel(1).Contains(10))
	require.Equal(t, uint64(1), li.Cardinality(1))
}

func TestLabelIndexIntersectAndUnion(t *testing.T) {
	li := NewLabelIndex()
	li.Add(1, 10)
	li.Add(1, 11)
	li.Add(2, 11)
	li.Add(2, 12)

	inter := li.Intersect([]uint32{1, 2})
	require.Equal(t, uint64(1), inter.GetCardinality())
	require.True(t, inter.Contains(11))

	union := li.Union([]uint32{1, 2})
	require.Equal(t, uint64(3), union.GetCardinality())
}

func TestLabelIndexUnknownLabelIsEmpty(t *testing.T) {
	li := NewLabelIndex()
	require.Equal(t, uint64(0), li.Cardinality(99))
	require.True(t, li.NodesWithLabel(99).IsEmpty())
}
