package index

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFullTextIndexRanksByRelevance(t *testing.T) {
	fi := NewFullTextIndex()
	fi.Index(1, "the quick brown fox jumps over the lazy dog")
	fi.Index(2, "lorem ipsum dolor sit amet")
	fi.Index(3, "quick quick quick fox")

	results := fi.Search("quick fox")
	require.NotEmpty(t, results)
	require.Equal(t, uint64(3), results[0].ID)
	for _, r := range results {
		require.NotEqual(t, uint64(2), r.ID)
	}
}

func TestFullTextIndexRemove(t *testing.T) {
	fi := NewFullTextIndex()
	fi.Index(1, "graph database engine")
	fi.Remove(1)
	require.Empty(t, fi.Search("graph"))
}

func TestFullTextIndexReindexReplaces(t *testing.T) {
	fi := NewFullTextIndex()
	fi.Index(1, "alpha beta")
	fi.Index(1, "gamma delta")
	require.Empty(t, fi.Search("alpha"))
	require.NotEmpty(t, fi.Search("gamma"))
}

func TestTokenizeLowercasesAndSplits(t *testing.T) {
	require.Equal(t, []string{"hello", "world"}, tokenize("Hello, World!"))
}
