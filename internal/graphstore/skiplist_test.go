package graphstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSkipListInsertContainsRemove(t *testing.T) {
	sl := NewSkipList()
	require.True(t, sl.Insert(5))
	require.True(t, sl.Insert(3))
	require.True(t, sl.Insert(9))
	require.False(t, sl.Insert(5)) // duplicate
	require.Equal(t, 3, sl.Len())

	require.True(t, sl.Contains(3))
	require.False(t, sl.Contains(4))

	require.True(t, sl.Remove(3))
	require.False(t, sl.Remove(3))
	require.Equal(t, 2, sl.Len())
}

func TestSkipListAscendIsSorted(t *testing.T) {
	sl := NewSkipList()
	for _, v := range []uint64{50, 10, 30, 20, 40} {
		sl.Insert(v)
	}
	require.Equal(t, []uint64{10, 20, 30, 40, 50}, sl.Slice())
}

func TestSkipListRange(t *testing.T) {
	sl := NewSkipList()
	for _, v := range []uint64{1, 5, 10, 15, 20} {
		sl.Insert(v)
	}
	var got []uint64
	sl.Range(5, 15, func(k uint64) bool {
		got = append(got, k)
		return true
	})
	require.Equal(t, []uint64{5, 10, 15}, got)
}

func TestSkipListManyInsertsStayConsistent(t *testing.T) {
	sl := NewSkipList()
	for i := uint64(0); i < 500; i++ {
		sl.Insert((i * 37) % 500)
	}
	require.Equal(t, 500, sl.Len())
	slice := sl.Slice()
	for i := 1; i < len(slice); i++ {
		require.Less(t, slice[i-1], slice[i])
	}
}
