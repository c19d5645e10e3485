package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/cypher"
)

func TestRegexMatchFullStringAnchored(t *testing.T) {
	ctx := &evalCtx{row: Row{}}
	n := cypher.BinaryOp{
		Op:    "=~",
		Left:  cypher.LiteralString{Value: "hello123"},
		Right: cypher.LiteralString{Value: "[a-z]+[0-9]+"},
	}
	out, err := evalBinary(n, ctx)
	require.NoError(t, err)
	require.True(t, out.Scalar().Bool())
}

func TestRegexMatchRejectsPartialMatch(t *testing.T) {
	ctx := &evalCtx{row: Row{}}
	n := cypher.BinaryOp{
		Op:    "=~",
		Left:  cypher.LiteralString{Value: "xhello"},
		Right: cypher.LiteralString{Value: "hello"},
	}
	out, err := evalBinary(n, ctx)
	require.NoError(t, err)
	require.False(t, out.Scalar().Bool())
}

func TestRegexMatchNullOperandPropagatesNull(t *testing.T) {
	ctx := &evalCtx{row: Row{}}
	n := cypher.BinaryOp{
		Op:    "=~",
		Left:  cypher.LiteralNull{},
		Right: cypher.LiteralString{Value: "x"},
	}
	out, err := evalBinary(n, ctx)
	require.NoError(t, err)
	require.True(t, out.IsNull())
}

func TestRegexMatchInvalidPatternErrors(t *testing.T) {
	ctx := &evalCtx{row: Row{}}
	n := cypher.BinaryOp{
		Op:    "=~",
		Left:  cypher.LiteralString{Value: "abc"},
		Right: cypher.LiteralString{Value: "("},
	}
	_, err := evalBinary(n, ctx)
	require.Error(t, err)
}
