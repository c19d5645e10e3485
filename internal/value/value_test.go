package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEqualCrossTypeNumericPromotion(t *testing.T) {
	require.True(t, Equal(Int(3), Float(3.0)))
	require.False(t, Equal(Int(3), Float(3.1)))
	require.False(t, Equal(String("3"), Int(3)))
}

func TestEqualNaNNeverEqual(t *testing.T) {
	nan := Float(nanFloat())
	require.False(t, Equal(nan, nan))
}

func TestEqualListsAndMaps(t *testing.T) {
	a := List([]Value{Int(1), String("x")})
	b := List([]Value{Int(1), String("x")})
	c := List([]Value{Int(1), String("y")})
	require.True(t, Equal(a, b))
	require.False(t, Equal(a, c))

	m1 := Map(map[string]Value{"a": Int(1)})
	m2 := Map(map[string]Value{"a": Int(1)})
	m3 := Map(map[string]Value{"a": Int(2)})
	require.True(t, Equal(m1, m2))
	require.False(t, Equal(m1, m3))
}

func TestCompareNumericPromotion(t *testing.T) {
	require.Equal(t, -1, Compare(Int(1), Float(2.0)))
	require.Equal(t, 1, Compare(Float(5.0), Int(2)))
	require.Equal(t, 0, Compare(Int(2), Float(2.0)))
}

func TestCompareStringsAndBools(t *testing.T) {
	require.Equal(t, -1, Compare(String("a"), String("b")))
	require.Equal(t, 1, Compare(Bool(true), Bool(false)))
}

func TestSortValuesAscendingAndDescending(t *testing.T) {
	vs := []Value{Int(3), Int(1), Int(2)}
	SortValues(vs, false)
	require.Equal(t, []int64{1, 2, 3}, toInts(vs))

	SortValues(vs, true)
	require.Equal(t, []int64{3, 2, 1}, toInts(vs))
}

func TestAsFloat64(t *testing.T) {
	f, ok := Int(7).AsFloat64()
	require.True(t, ok)
	require.Equal(t, 7.0, f)

	_, ok = String("x").AsFloat64()
	require.False(t, ok)
}

func TestDateTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	v := Time(now)
	require.Equal(t, TypeDateTime, v.Type())
	require.True(t, v.DateTime().Equal(now))
}

func TestVectorValue(t *testing.T) {
	v := Vector([]float32{1, 2, 3})
	require.Equal(t, TypeVector, v.Type())
	require.Equal(t, []float32{1, 2, 3}, v.Vec())
}

func TestStringRepresentation(t *testing.T) {
	require.Equal(t, "null", Null.String())
	require.Equal(t, "true", Bool(true).String())
	require.Equal(t, "42", Int(42).String())
	require.Equal(t, "hello", String("hello").String())
}

func toInts(vs []Value) []int64 {
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = v.Int()
	}
	return out
}

func nanFloat() float64 {
	var zero float64
	return zero / zero
}
