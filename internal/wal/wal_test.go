package wal

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendFlushAndReplay(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{})
	require.NoError(t, err)

	require.NoError(t, l.Append(Entry{Epoch: 1, TxID: 1, Type: EntryBeginTx}))
	require.NoError(t, l.Append(Entry{Epoch: 1, TxID: 1, Type: EntryCreateNode, Payload: EncodeCreateNode(CreateNodePayload{NodeID: 5, Labels: []uint32{1, 2}})}))
	require.NoError(t, l.Append(Entry{Epoch: 1, TxID: 1, Type: EntryCommitTx}))
	require.NoError(t, l.Flush(context.Background()))
	require.NoError(t, l.Close())

	var applied []Entry
	err = Replay(dir, func(e Entry) error {
		applied = append(applied, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, applied, 2) // CreateNode + CommitTx; BeginTx is skipped
	require.Equal(t, EntryCreateNode, applied[0].Type)
	require.Equal(t, EntryCommitTx, applied[1].Type)

	decoded := DecodeCreateNode(applied[0].Payload)
	require.Equal(t, uint64(5), decoded.NodeID)
	require.Equal(t, []uint32{1, 2}, decoded.Labels)
}

func TestReplayDiscardsUncommittedTransaction(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{})
	require.NoError(t, err)

	require.NoError(t, l.Append(Entry{Epoch: 1, TxID: 1, Type: EntryBeginTx}))
	require.NoError(t, l.Append(Entry{Epoch: 1, TxID: 1, Type: EntryCreateNode, Payload: EncodeCreateNode(CreateNodePayload{NodeID: 1})}))
	// No CommitTx for tx 1: simulates a crash before commit.
	require.NoError(t, l.Flush(context.Background()))
	require.NoError(t, l.Close())

	var applied []Entry
	err = Replay(dir, func(e Entry) error {
		applied = append(applied, e)
		return nil
	})
	require.NoError(t, err)
	require.Empty(t, applied)
}

func TestCheckpointSkipsPriorEntries(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{})
	require.NoError(t, err)

	require.NoError(t, l.Append(Entry{Epoch: 1, TxID: 1, Type: EntryCreateNode, Payload: EncodeCreateNode(CreateNodePayload{NodeID: 1})}))
	require.NoError(t, l.Append(Entry{Epoch: 1, TxID: 1, Type: EntryCommitTx}))
	require.NoError(t, l.Checkpoint(context.Background(), 1, 0))
	require.NoError(t, l.Append(Entry{Epoch: 2, TxID: 2, Type: EntryCreateNode, Payload: EncodeCreateNode(CreateNodePayload{NodeID: 2})}))
	require.NoError(t, l.Append(Entry{Epoch: 2, TxID: 2, Type: EntryCommitTx}))
	require.NoError(t, l.Flush(context.Background()))
	require.NoError(t, l.Close())

	var applied []Entry
	err = Replay(dir, func(e Entry) error {
		applied = append(applied, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, applied, 2)
	decoded := DecodeCreateNode(applied[0].Payload)
	require.Equal(t, uint64(2), decoded.NodeID)
}

func TestSegmentRollsOnSizeThreshold(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{MaxSegmentBytes: 64})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Append(Entry{Epoch: uint64(i), TxID: uint64(i), Type: EntryCreateNode, Payload: EncodeCreateNode(CreateNodePayload{NodeID: uint64(i)})}))
		require.NoError(t, l.Append(Entry{Epoch: uint64(i), TxID: uint64(i), Type: EntryCommitTx}))
		require.NoError(t, l.Flush(context.Background()))
	}
	require.NoError(t, l.Close())

	segments, err := listSegments(dir + "/wal")
	require.NoError(t, err)
	require.Greater(t, len(segments), 1)
}

func TestCheckpointArchivesSealedSegments(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{MaxSegmentBytes: 64})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Append(Entry{Epoch: uint64(i), TxID: uint64(i), Type: EntryCreateNode, Payload: EncodeCreateNode(CreateNodePayload{NodeID: uint64(i)})}))
		require.NoError(t, l.Append(Entry{Epoch: uint64(i), TxID: uint64(i), Type: EntryCommitTx}))
		require.NoError(t, l.Flush(context.Background()))
	}
	segmentsBeforeCheckpoint, err := listSegments(dir + "/wal")
	require.NoError(t, err)
	require.Greater(t, len(segmentsBeforeCheckpoint), 1, "test needs at least one sealed segment before the active one")
	sealedID := segmentsBeforeCheckpoint[0]

	require.NoError(t, l.Checkpoint(context.Background(), 9, 0))
	require.NoError(t, l.Close())

	walDir := dir + "/wal"
	_, err = os.Stat(segmentPath(walDir, sealedID))
	require.True(t, os.IsNotExist(err), "sealed segment should be removed once archived")
	_, err = os.Stat(segmentPath(walDir, sealedID) + archiveSuffix)
	require.NoError(t, err, "sealed segment should have a .snappy sibling")

	segmentsAfterCheckpoint, err := listSegments(walDir)
	require.NoError(t, err)
	require.Equal(t, segmentsBeforeCheckpoint, segmentsAfterCheckpoint, "archiving must not change the visible segment id set")

	var applied []Entry
	err = Replay(dir, func(e Entry) error {
		applied = append(applied, e)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, applied)
	last := applied[len(applied)-1]
	require.Equal(t, EntryCommitTx, last.Type)
	require.Equal(t, uint64(9), last.TxID)
}

func TestSetPropertyPayloadRoundTrip(t *testing.T) {
	p := SetPropertyPayload{EntityID: 42, IsRel: true, KeyID: 3, ValueEnc: []byte{1, 2, 3, 4}}
	enc := EncodeSetProperty(p)
	got := DecodeSetProperty(enc)
	require.Equal(t, p, got)
}
