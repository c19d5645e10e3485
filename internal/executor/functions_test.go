package executor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/value"
)

func TestToIntegerFromFloat(t *testing.T) {
	out, err := toInteger([]Binding{ScalarBinding(value.Float(3.9))})
	require.NoError(t, err)
	require.Equal(t, int64(3), out.Scalar().Int())
}

func TestToIntegerFromString(t *testing.T) {
	out, err := toInteger([]Binding{ScalarBinding(value.String(" 42 "))})
	require.NoError(t, err)
	require.Equal(t, int64(42), out.Scalar().Int())
}

func TestToIntegerFromUnparseableStringIsNull(t *testing.T) {
	out, err := toInteger([]Binding{ScalarBinding(value.String("not a number"))})
	require.NoError(t, err)
	require.True(t, out.IsNull())
}

func TestToIntegerWrongArgCountErrors(t *testing.T) {
	_, err := toInteger(nil)
	require.Error(t, err)
}

func TestToFloatFromInt(t *testing.T) {
	out, err := toFloat([]Binding{ScalarBinding(value.Int(5))})
	require.NoError(t, err)
	require.Equal(t, 5.0, out.Scalar().Float())
}

func TestToFloatFromString(t *testing.T) {
	out, err := toFloat([]Binding{ScalarBinding(value.String("3.5"))})
	require.NoError(t, err)
	require.Equal(t, 3.5, out.Scalar().Float())
}

func TestEvalRangeAscending(t *testing.T) {
	out, err := evalRange([]Binding{ScalarBinding(value.Int(1)), ScalarBinding(value.Int(5))})
	require.NoError(t, err)
	require.Len(t, out.List(), 5)
	require.Equal(t, int64(1), out.List()[0].Scalar().Int())
	require.Equal(t, int64(5), out.List()[4].Scalar().Int())
}

func TestEvalRangeWithStep(t *testing.T) {
	out, err := evalRange([]Binding{ScalarBinding(value.Int(0)), ScalarBinding(value.Int(10)), ScalarBinding(value.Int(2))})
	require.NoError(t, err)
	require.Len(t, out.List(), 6)
}

func TestEvalRangeDescendingStep(t *testing.T) {
	out, err := evalRange([]Binding{ScalarBinding(value.Int(5)), ScalarBinding(value.Int(1)), ScalarBinding(value.Int(-1))})
	require.NoError(t, err)
	require.Len(t, out.List(), 5)
}

func TestEvalRangeZeroStepErrors(t *testing.T) {
	_, err := evalRange([]Binding{ScalarBinding(value.Int(0)), ScalarBinding(value.Int(10)), ScalarBinding(value.Int(0))})
	require.Error(t, err)
}

func TestMathUnaryAbsKeepsIntegerType(t *testing.T) {
	out, err := mathUnary([]Binding{ScalarBinding(value.Int(-7))}, absFloat, absInt)
	require.NoError(t, err)
	require.Equal(t, value.TypeInt64, out.Scalar().Type())
	require.Equal(t, int64(7), out.Scalar().Int())
}

func TestMathFloatUnarySqrt(t *testing.T) {
	out, err := mathFloatUnary([]Binding{ScalarBinding(value.Int(9))}, math.Sqrt)
	require.NoError(t, err)
	require.Equal(t, 3.0, out.Scalar().Float())
}

func TestMathUnaryOnNullIsNull(t *testing.T) {
	out, err := mathUnary([]Binding{NullBinding()}, absFloat, absInt)
	require.NoError(t, err)
	require.True(t, out.IsNull())
}

func TestSubstringPositiveStartAndLen(t *testing.T) {
	out, err := evalSubstring([]Binding{ScalarBinding(value.String("hello world")), ScalarBinding(value.Int(6)), ScalarBinding(value.Int(5))})
	require.NoError(t, err)
	require.Equal(t, "world", out.Scalar().Str())
}

func TestSubstringNegativeStartClampsFromEnd(t *testing.T) {
	out, err := evalSubstring([]Binding{ScalarBinding(value.String("hello")), ScalarBinding(value.Int(-3))})
	require.NoError(t, err)
	require.Equal(t, "llo", out.Scalar().Str())
}

func TestSubstringStartBeyondLengthIsEmpty(t *testing.T) {
	out, err := evalSubstring([]Binding{ScalarBinding(value.String("hi")), ScalarBinding(value.Int(10))})
	require.NoError(t, err)
	require.Equal(t, "", out.Scalar().Str())
}

func TestSubstringLenExtendsPastEndClampsToLength(t *testing.T) {
	out, err := evalSubstring([]Binding{ScalarBinding(value.String("hi")), ScalarBinding(value.Int(0)), ScalarBinding(value.Int(50))})
	require.NoError(t, err)
	require.Equal(t, "hi", out.Scalar().Str())
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func absInt(i int64) int64 {
	if i < 0 {
		return -i
	}
	return i
}

