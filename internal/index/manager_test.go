package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/value"
)

func TestManagerApplyAddLabelMutation(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Apply(Mutation{NodeID: 1, Label: 5, AddLabel: true}))
	require.True(t, m.Labels().NodesWithLabel(5).Contains(1))
}

func TestManagerCreatePropIndexTwiceErrors(t *testing.T) {
	m := NewManager()
	_, err := m.CreatePropIndex(1, 2)
	require.NoError(t, err)
	_, err = m.CreatePropIndex(1, 2)
	require.Error(t, err)
}

func TestManagerApplyPropMutationUpdatesRegisteredIndex(t *testing.T) {
	m := NewManager()
	_, err := m.CreatePropIndex(1, 2)
	require.NoError(t, err)

	require.NoError(t, m.Apply(Mutation{NodeID: 10, Label: 1, KeyID: 2, NewValue: value.Int(99)}))
	idx, ok := m.PropIndexFor(1, 2)
	require.True(t, ok)
	require.True(t, idx.Exact(value.Int(99)).Contains(10))

	require.NoError(t, m.Apply(Mutation{NodeID: 10, Label: 1, KeyID: 2, OldValue: value.Int(99), NewValue: value.Int(100)}))
	require.True(t, idx.Exact(value.Int(99)).IsEmpty())
	require.True(t, idx.Exact(value.Int(100)).Contains(10))
}

func TestManagerApplyWithNoRegisteredIndexIsNoop(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Apply(Mutation{NodeID: 1, Label: 1, KeyID: 2, NewValue: value.Int(5)}))
}

func TestManagerVectorAndFullTextMutations(t *testing.T) {
	m := NewManager()
	_, err := m.CreateVectorIndex(1, 3, HNSWParams{Dimension: 2})
	require.NoError(t, err)
	_, err = m.CreateFullTextIndex(1, 4)
	require.NoError(t, err)

	require.NoError(t, m.Apply(Mutation{NodeID: 1, Label: 1, KeyID: 3, NewValue: value.Vector([]float32{1, 2})}))
	require.NoError(t, m.Apply(Mutation{NodeID: 1, Label: 1, KeyID: 4, NewValue: value.String("graph traversal")}))

	vidx, _ := m.VectorIndexFor(1, 3)
	results, err := vidx.Search([]float32{1, 2}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	ftidx, _ := m.FullTextIndexFor(1, 4)
	require.NotEmpty(t, ftidx.Search("graph"))
}
