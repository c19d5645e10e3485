package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetOrCreateIdempotent(t *testing.T) {
	c := openTestCatalog(t)

	id1, err := c.GetOrCreate(DictLabel, "Person")
	require.NoError(t, err)

	id2, err := c.GetOrCreate(DictLabel, "Person")
	require.NoError(t, err)

	require.Equal(t, id1, id2)
}

func TestGetOrCreateDistinctDictionaries(t *testing.T) {
	c := openTestCatalog(t)

	labelID, err := c.GetOrCreate(DictLabel, "KNOWS")
	require.NoError(t, err)
	relID, err := c.GetOrCreate(DictRelType, "KNOWS")
	require.NoError(t, err)

	// Same name in different dictionaries need not share an id space entry.
	name, ok := c.LookupName(DictLabel, labelID)
	require.True(t, ok)
	require.Equal(t, "KNOWS", name)

	name, ok = c.LookupName(DictRelType, relID)
	require.True(t, ok)
	require.Equal(t, "KNOWS", name)
}

func TestLookupNameUnknownID(t *testing.T) {
	c := openTestCatalog(t)
	_, ok := c.LookupName(DictLabel, 9999)
	require.False(t, ok)
}

func TestNameTooLong(t *testing.T) {
	c := openTestCatalog(t)
	long := make([]byte, MaxNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := c.GetOrCreate(DictLabel, string(long))
	require.Error(t, err)
}

func TestStatsIncrement(t *testing.T) {
	c := openTestCatalog(t)
	id, err := c.GetOrCreate(DictLabel, "Person")
	require.NoError(t, err)

	require.NoError(t, c.StatsIncrement(DictLabel, id, 3))
	require.NoError(t, c.StatsIncrement(DictLabel, id, -1))
	require.Equal(t, int64(2), c.Stat(DictLabel, id))
}

func TestEpochPersistence(t *testing.T) {
	c := openTestCatalog(t)
	require.Equal(t, uint64(0), c.CurrentEpoch())
	require.NoError(t, c.AdvanceEpoch(42))
	require.Equal(t, uint64(42), c.CurrentEpoch())
}

func TestDDLEpochBump(t *testing.T) {
	c := openTestCatalog(t)
	require.Equal(t, uint64(0), c.DDLEpoch())
	require.NoError(t, c.BumpDDLEpoch())
	require.Equal(t, uint64(1), c.DDLEpoch())
}

func TestWarmCacheSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	labelID, err := c.GetOrCreate(DictLabel, "Person")
	require.NoError(t, err)
	relID, err := c.GetOrCreate(DictRelType, "KNOWS")
	require.NoError(t, err)
	propID, err := c.GetOrCreate(DictPropKey, "name")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c2, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = c2.Close() }()

	// Every dictionary's cache must be warmed on reopen, not just the
	// first one visited.
	id, ok := c2.LookupID(DictLabel, "Person")
	require.True(t, ok)
	require.Equal(t, labelID, id)

	id, ok = c2.LookupID(DictRelType, "KNOWS")
	require.True(t, ok)
	require.Equal(t, relID, id)

	id, ok = c2.LookupID(DictPropKey, "name")
	require.True(t, ok)
	require.Equal(t, propID, id)
}
