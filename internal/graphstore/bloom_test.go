package graphstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEdgeBloomAddAndMaybeContains(t *testing.T) {
	eb := newEdgeBloom()
	eb.Add(1, Outgoing, 10, 20)
	require.True(t, eb.MaybeContains(1, Outgoing, 10, 20))
}

func TestEdgeBloomUnknownKeyIsDefinitelyAbsent(t *testing.T) {
	eb := newEdgeBloom()
	require.False(t, eb.MaybeContains(1, Outgoing, 99, 100))
}

func TestEdgeBloomResetClearsFilter(t *testing.T) {
	eb := newEdgeBloom()
	eb.Add(1, Outgoing, 10, 20)
	eb.Reset(1, Outgoing, 10)
	require.False(t, eb.MaybeContains(1, Outgoing, 10, 20))
}
