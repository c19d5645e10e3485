package pagecache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	af, err := OpenAppendFile(dir + "/log")
	require.NoError(t, err)
	defer func() { _ = af.Close() }()

	off1, err := af.Append([]byte("hello"))
	require.NoError(t, err)
	off2, err := af.Append([]byte("world!"))
	require.NoError(t, err)
	require.NotEqual(t, off1, off2)

	buf1 := make([]byte, 5)
	require.NoError(t, af.ReadAt(off1, buf1))
	require.Equal(t, "hello", string(buf1))

	buf2 := make([]byte, 6)
	require.NoError(t, af.ReadAt(off2, buf2))
	require.Equal(t, "world!", string(buf2))
}

func TestAppendFileTailSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	af, err := OpenAppendFile(dir + "/log")
	require.NoError(t, err)

	_, err = af.Append([]byte("alpha"))
	require.NoError(t, err)
	off2, err := af.Append([]byte("beta"))
	require.NoError(t, err)
	require.NoError(t, af.Sync())
	require.NoError(t, af.Close())

	af2, err := OpenAppendFile(dir + "/log")
	require.NoError(t, err)
	defer func() { _ = af2.Close() }()

	// A fresh append after reopen must not overwrite prior entries.
	off3, err := af2.Append([]byte("gamma"))
	require.NoError(t, err)
	require.NotEqual(t, off2, off3)

	buf := make([]byte, 4)
	require.NoError(t, af2.ReadAt(off2, buf))
	require.Equal(t, "beta", string(buf))
}
