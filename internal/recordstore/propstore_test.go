package recordstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/value"
)

func openTestPropStore(t *testing.T) (*StringStore, *PropStore) {
	t.Helper()
	dir := t.TempDir()
	ss, err := OpenStringStore(dir + "/strings.store")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	ps, err := OpenPropStore(dir+"/props.store", ss)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })
	return ss, ps
}

func TestStringStoreInternAndRead(t *testing.T) {
	ss, _ := openTestPropStore(t)
	off, err := ss.Intern("hello world")
	require.NoError(t, err)

	s, err := ss.Read(off)
	require.NoError(t, err)
	require.Equal(t, "hello world", s)
}

func TestPropStoreScalarRoundTrip(t *testing.T) {
	_, ps := openTestPropStore(t)

	fixedTime := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	cases := []value.Value{
		value.Null,
		value.Bool(true),
		value.Int(-42),
		value.Float(3.5),
		value.String("age"),
		value.Time(fixedTime),
		value.Vector([]float32{0.1, 0.2, 0.3}),
		value.PointVal(value.Point{X: 1, Y: 2, SRID: 4326}),
	}
	for _, v := range cases {
		off, err := ps.Append(1, v, NilPropPtr)
		require.NoError(t, err)
		entry, err := ps.Read(off)
		require.NoError(t, err)
		require.True(t, value.Equal(v, entry.Value), "type %v", v.Type())
	}
}

func TestPropStoreChainWalk(t *testing.T) {
	_, ps := openTestPropStore(t)

	off1, err := ps.Append(1, value.Int(1), NilPropPtr)
	require.NoError(t, err)
	off2, err := ps.Append(2, value.Int(2), off1)
	require.NoError(t, err)
	off3, err := ps.Append(3, value.Int(3), off2)
	require.NoError(t, err)

	chain, err := ps.ReadChain(off3)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, uint32(3), chain[0].KeyID)
	require.Equal(t, uint32(2), chain[1].KeyID)
	require.Equal(t, uint32(1), chain[2].KeyID)
}

func TestPropStoreEmptyChain(t *testing.T) {
	_, ps := openTestPropStore(t)
	chain, err := ps.ReadChain(NilPropPtr)
	require.NoError(t, err)
	require.Empty(t, chain)
}

func TestPropStoreListAndMap(t *testing.T) {
	_, ps := openTestPropStore(t)

	list := value.List([]value.Value{value.Int(1), value.String("x"), value.Bool(false)})
	off, err := ps.Append(1, list, NilPropPtr)
	require.NoError(t, err)
	entry, err := ps.Read(off)
	require.NoError(t, err)
	require.True(t, value.Equal(list, entry.Value))

	m := value.Map(map[string]value.Value{"a": value.Int(1), "b": value.String("y")})
	off2, err := ps.Append(2, m, NilPropPtr)
	require.NoError(t, err)
	entry2, err := ps.Read(off2)
	require.NoError(t, err)
	require.True(t, value.Equal(m, entry2.Value))
}

func TestStringStoreDeduplicatesNothingButRoundTripsMultiple(t *testing.T) {
	ss, _ := openTestPropStore(t)
	off1, err := ss.Intern("alpha")
	require.NoError(t, err)
	off2, err := ss.Intern("beta")
	require.NoError(t, err)
	require.NotEqual(t, off1, off2)

	s1, err := ss.Read(off1)
	require.NoError(t, err)
	s2, err := ss.Read(off2)
	require.NoError(t, err)
	require.Equal(t, "alpha", s1)
	require.Equal(t, "beta", s2)
}
