package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/value"
)

func TestAccumulateCount(t *testing.T) {
	a := accumulator{fn: "count", seen: map[string]bool{}}
	require.NoError(t, accumulate(&a, ScalarBinding(value.Int(1)), true))
	require.NoError(t, accumulate(&a, NullBinding(), true))
	require.NoError(t, accumulate(&a, ScalarBinding(value.Int(2)), true))
	require.Equal(t, value.Int(2), finalize(a).Scalar())
}

func TestAccumulateSumKeepsIntegerWhenAllArgsAreInt(t *testing.T) {
	a := accumulator{fn: "sum", seen: map[string]bool{}}
	require.NoError(t, accumulate(&a, ScalarBinding(value.Int(3)), true))
	require.NoError(t, accumulate(&a, ScalarBinding(value.Int(4)), true))
	out := finalize(a).Scalar()
	require.Equal(t, value.TypeInt64, out.Type())
	require.Equal(t, int64(7), out.Int())
}

func TestAccumulateSumFallsBackToFloatOnMixedTypes(t *testing.T) {
	a := accumulator{fn: "sum", seen: map[string]bool{}}
	require.NoError(t, accumulate(&a, ScalarBinding(value.Int(3)), true))
	require.NoError(t, accumulate(&a, ScalarBinding(value.Float(1.5)), true))
	out := finalize(a).Scalar()
	require.Equal(t, value.TypeFloat64, out.Type())
	require.Equal(t, 4.5, out.Float())
}

func TestAccumulateAvg(t *testing.T) {
	a := accumulator{fn: "avg", seen: map[string]bool{}}
	require.NoError(t, accumulate(&a, ScalarBinding(value.Int(2)), true))
	require.NoError(t, accumulate(&a, ScalarBinding(value.Int(4)), true))
	out := finalize(a)
	require.Equal(t, 3.0, out.Scalar().Float())
}

func TestAccumulateAvgOfNoRowsIsNull(t *testing.T) {
	a := accumulator{fn: "avg", seen: map[string]bool{}}
	require.True(t, finalize(a).IsNull())
}

func TestAccumulateMinMax(t *testing.T) {
	min := accumulator{fn: "min", seen: map[string]bool{}}
	max := accumulator{fn: "max", seen: map[string]bool{}}
	for _, v := range []int64{5, 1, 9, 3} {
		require.NoError(t, accumulate(&min, ScalarBinding(value.Int(v)), true))
		require.NoError(t, accumulate(&max, ScalarBinding(value.Int(v)), true))
	}
	require.Equal(t, int64(1), finalize(min).Scalar().Int())
	require.Equal(t, int64(9), finalize(max).Scalar().Int())
}

func TestAccumulateDistinctDropsRepeats(t *testing.T) {
	a := accumulator{fn: "count", distinct: true, seen: map[string]bool{}}
	require.NoError(t, accumulate(&a, ScalarBinding(value.Int(1)), true))
	require.NoError(t, accumulate(&a, ScalarBinding(value.Int(1)), true))
	require.NoError(t, accumulate(&a, ScalarBinding(value.Int(2)), true))
	require.Equal(t, int64(2), a.count)
}

func TestAccumulateCollect(t *testing.T) {
	a := accumulator{fn: "collect", seen: map[string]bool{}}
	require.NoError(t, accumulate(&a, ScalarBinding(value.Int(1)), true))
	require.NoError(t, accumulate(&a, NullBinding(), true))
	require.NoError(t, accumulate(&a, ScalarBinding(value.Int(2)), true))
	out := finalize(a).List()
	require.Len(t, out, 2)
}

func TestAccumulateUnknownFunctionErrors(t *testing.T) {
	a := accumulator{fn: "bogus", seen: map[string]bool{}}
	err := accumulate(&a, ScalarBinding(value.Int(1)), true)
	require.Error(t, err)
}
