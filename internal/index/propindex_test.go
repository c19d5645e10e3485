package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/value"
)

func TestPropIndexExactLookup(t *testing.T) {
	pi := NewPropIndex()
	pi.Set(value.Int(30), 1)
	pi.Set(value.Int(30), 2)
	pi.Set(value.Int(40), 3)

	got := pi.Exact(value.Int(30))
	require.Equal(t, uint64(2), got.GetCardinality())
	require.True(t, got.Contains(1))
	require.True(t, got.Contains(2))
}

func TestPropIndexUnsetPrunesEmptyBucket(t *testing.T) {
	pi := NewPropIndex()
	pi.Set(value.Int(30), 1)
	pi.Unset(value.Int(30), 1)
	require.Equal(t, 0, pi.Cardinality())
	require.True(t, pi.Exact(value.Int(30)).IsEmpty())
}

func TestPropIndexRange(t *testing.T) {
	pi := NewPropIndex()
	pi.Set(value.Int(10), 1)
	pi.Set(value.Int(20), 2)
	pi.Set(value.Int(30), 3)
	pi.Set(value.Int(40), 4)

	got := pi.Range(value.Int(20), value.Int(30))
	require.Equal(t, uint64(2), got.GetCardinality())
	require.True(t, got.Contains(2))
	require.True(t, got.Contains(3))

	unboundedAbove := pi.Range(value.Int(30), value.Null)
	require.Equal(t, uint64(2), unboundedAbove.GetCardinality())
}

func TestPropIndexPrefix(t *testing.T) {
	pi := NewPropIndex()
	pi.Set(value.String("alice"), 1)
	pi.Set(value.String("alicia"), 2)
	pi.Set(value.String("bob"), 3)

	got := pi.Prefix("ali")
	require.Equal(t, uint64(2), got.GetCardinality())
	require.True(t, got.Contains(1))
	require.True(t, got.Contains(2))
	require.False(t, got.Contains(3))
}
