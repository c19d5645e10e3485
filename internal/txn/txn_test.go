package txn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/wal"
)

func openTestLog(t *testing.T) *wal.Log {
	t.Helper()
	dir := t.TempDir()
	l, err := wal.Open(dir, wal.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestBeginReadPinsCurrentEpoch(t *testing.T) {
	mgr := NewManager(openTestLog(t), 0)
	tx := mgr.BeginRead(context.Background())
	require.Equal(t, uint64(0), tx.Snapshot())
	require.Equal(t, uint64(0), mgr.MinActiveSnapshot())
	tx.EndRead()
}

func TestCommitAdvancesEpochAndInvokesApply(t *testing.T) {
	mgr := NewManager(openTestLog(t), 0)
	tx := mgr.BeginWrite(context.Background())
	require.NoError(t, tx.RecordCreateNode(1, []uint32{7}))

	var gotEpoch uint64
	var gotNodes []uint64
	err := tx.Commit(context.Background(), func(epoch uint64, nodes []uint64, rels []uint64, props int) error {
		gotEpoch = epoch
		gotNodes = nodes
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), gotEpoch)
	require.Equal(t, []uint64{1}, gotNodes)
	require.Equal(t, uint64(1), mgr.CurrentEpoch())
}

func TestAbortDoesNotAdvanceEpoch(t *testing.T) {
	mgr := NewManager(openTestLog(t), 5)
	tx := mgr.BeginWrite(context.Background())
	require.NoError(t, tx.RecordCreateNode(1, nil))
	require.NoError(t, tx.Abort())
	require.Equal(t, uint64(5), mgr.CurrentEpoch())
}

func TestWriterLockSerializesWriters(t *testing.T) {
	mgr := NewManager(openTestLog(t), 0)
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	tx1 := mgr.BeginWrite(context.Background())

	wg.Add(1)
	go func() {
		defer wg.Done()
		tx2 := mgr.BeginWrite(context.Background()) // blocks until tx1 commits
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		require.NoError(t, tx2.Abort())
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	require.NoError(t, tx1.Commit(context.Background(), nil))

	wg.Wait()
	require.Equal(t, []int{1, 2}, order)
}

func TestCommitOnReadOnlyTxErrors(t *testing.T) {
	mgr := NewManager(openTestLog(t), 0)
	tx := mgr.BeginRead(context.Background())
	defer tx.EndRead()
	err := tx.Commit(context.Background(), nil)
	require.Error(t, err)
}

func TestCheckDeadlineHonoursContextDeadline(t *testing.T) {
	mgr := NewManager(openTestLog(t), 0)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	tx := mgr.BeginRead(ctx)
	defer tx.EndRead()
	require.Error(t, tx.CheckDeadline())
}

func TestCheckDeadlineNoDeadlineAlwaysOK(t *testing.T) {
	mgr := NewManager(openTestLog(t), 0)
	tx := mgr.BeginRead(context.Background())
	defer tx.EndRead()
	require.NoError(t, tx.CheckDeadline())
}

func TestVisibility(t *testing.T) {
	require.True(t, Visible(2, 0, 5))   // created before snapshot, never deleted
	require.False(t, Visible(6, 0, 5))  // created after snapshot
	require.True(t, Visible(2, 8, 5))   // deleted after snapshot, still visible
	require.False(t, Visible(2, 4, 5))  // deleted before snapshot
	require.True(t, Visible(5, 0, 5))   // created exactly at snapshot epoch
	require.False(t, Visible(2, 5, 5))  // deleted exactly at snapshot epoch
}

func TestMinActiveSnapshotTracksMultipleReaders(t *testing.T) {
	mgr := NewManager(openTestLog(t), 0)
	tx1 := mgr.BeginRead(context.Background())

	require.NoError(t, mgr.BeginWrite(context.Background()).Commit(context.Background(), nil))
	tx2 := mgr.BeginRead(context.Background())

	require.Equal(t, uint64(0), mgr.MinActiveSnapshot())
	tx1.EndRead()
	require.Equal(t, uint64(1), mgr.MinActiveSnapshot())
	tx2.EndRead()
}
