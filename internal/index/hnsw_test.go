package index

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHNSWSearchReturnsNearestFirst(t *testing.T) {
	h, err := NewHNSW(HNSWParams{Dimension: 2, Metric: MetricEuclidean, M: 8, EfConstruction: 32, EfSearch: 16})
	require.NoError(t, err)

	require.NoError(t, h.Insert(1, []float32{0, 0}))
	require.NoError(t, h.Insert(2, []float32{10, 10}))
	require.NoError(t, h.Insert(3, []float32{0.1, 0.1}))
	require.NoError(t, h.Insert(4, []float32{20, 20}))

	results, err := h.Search([]float32{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, uint64(1), results[0].ID)
	require.Equal(t, uint64(3), results[1].ID)
}

func TestHNSWDimensionMismatchErrors(t *testing.T) {
	h, err := NewHNSW(HNSWParams{Dimension: 3, Metric: MetricCosine})
	require.NoError(t, err)
	require.Error(t, h.Insert(1, []float32{1, 2}))

	require.NoError(t, h.Insert(2, []float32{1, 2, 3}))
	_, err = h.Search([]float32{1, 2}, 1)
	require.Error(t, err)
}

func TestHNSWDimensionBoundRejected(t *testing.T) {
	_, err := NewHNSW(HNSWParams{Dimension: maxDimension + 1})
	require.Error(t, err)
}

func TestHNSWEmptyIndexSearchReturnsNothing(t *testing.T) {
	h, err := NewHNSW(HNSWParams{Dimension: 2})
	require.NoError(t, err)
	results, err := h.Search([]float32{0, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestHNSWRemove(t *testing.T) {
	h, err := NewHNSW(HNSWParams{Dimension: 2, EfConstruction: 16})
	require.NoError(t, err)
	require.NoError(t, h.Insert(1, []float32{0, 0}))
	require.NoError(t, h.Insert(2, []float32{1, 1}))
	h.Remove(1)

	results, err := h.Search([]float32{0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, uint64(1), r.ID)
	}
}
