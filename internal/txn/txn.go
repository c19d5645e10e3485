// Package txn implements the epoch-based MVCC transaction manager (spec
// §4.5): a monotonic epoch counter, snapshot-pinned readers, a
// single-writer lock, and per-transaction write-set overlays that journal
// to the WAL before being applied to the record store and indexes.
//
// Grounded on other_examples/thistonyuncle-etcd/mvcc/kvstore.go's
// revision-indexed MVCC shape: Nexus's epoch plays the same role as
// etcd's monotonically increasing revision.
package txn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/value"
	"github.com/nexusdb/nexus/internal/wal"
)

// Mode selects a read-only or read-write transaction.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// propWrite is one buffered SET/REMOVE in a transaction's write-set
// overlay, applied to the record store at commit.
type propWrite struct {
	entityID uint64
	isRel    bool
	keyID    uint32
	value    value.Value
	remove   bool
}

type nodeWrite struct {
	id     uint64
	labels []uint32
	create bool
	delete bool
}

type relWrite struct {
	id        uint64
	src, dst  uint64
	typeID    uint32
	create    bool
	delete    bool
}

// Tx is a single transaction, either a read snapshot or an active writer.
// Readers observe the record store directly at their pinned epoch; a
// writer additionally buffers a write-set overlay so it can see its own
// uncommitted changes (spec §4.5 "writers see their own uncommitted
// changes through a transaction-local overlay") before they are visible
// to any other snapshot.
type Tx struct {
	mgr      *Manager
	mode     Mode
	id       uint64
	snapshot uint64 // pinned epoch for reads
	deadline time.Time

	mu         sync.Mutex
	nodeWrites []nodeWrite
	relWrites  []relWrite
	propWrites []propWrite
	done       bool
}

// ID returns the transaction's unique id (used as the WAL tx_id).
func (tx *Tx) ID() uint64 { return tx.id }

// Snapshot returns the epoch this transaction's reads are pinned to. For
// a writer, uncommitted writes in its own overlay are always visible
// regardless of this value.
func (tx *Tx) Snapshot() uint64 { return tx.snapshot }

// CheckDeadline returns Timeout if the transaction's deadline (if any) has
// passed. Executor operators call this between output rows (spec §4.5
// "operators must observe it at well-defined pull boundaries").
func (tx *Tx) CheckDeadline() error {
	if tx.deadline.IsZero() {
		return nil
	}
	if time.Now().After(tx.deadline) {
		return nexuserr.New(nexuserr.KindTimeout, 408, "txn: deadline exceeded")
	}
	return nil
}

// RecordCreateNode buffers a node creation in the write-set overlay and
// journals it to the WAL. Must be called only on a ReadWrite transaction.
func (tx *Tx) RecordCreateNode(id uint64, labels []uint32) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.nodeWrites = append(tx.nodeWrites, nodeWrite{id: id, labels: labels, create: true})
	return tx.mgr.log.Append(wal.Entry{
		Epoch: tx.snapshot, TxID: tx.id, Type: wal.EntryCreateNode,
		Payload: wal.EncodeCreateNode(wal.CreateNodePayload{NodeID: id, Labels: labels}),
	})
}

// RecordCreateRel buffers a relationship creation.
func (tx *Tx) RecordCreateRel(id, src, dst uint64, typeID uint32) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.relWrites = append(tx.relWrites, relWrite{id: id, src: src, dst: dst, typeID: typeID, create: true})
	return tx.mgr.log.Append(wal.Entry{
		Epoch: tx.snapshot, TxID: tx.id, Type: wal.EntryCreateRel,
		Payload: wal.EncodeCreateRel(wal.CreateRelPayload{RelID: id, Src: src, Dst: dst, TypeID: typeID}),
	})
}

// RecordSetProperty buffers a property write.
func (tx *Tx) RecordSetProperty(entityID uint64, isRel bool, keyID uint32, v value.Value, encoded []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.propWrites = append(tx.propWrites, propWrite{entityID: entityID, isRel: isRel, keyID: keyID, value: v})
	return tx.mgr.log.Append(wal.Entry{
		Epoch: tx.snapshot, TxID: tx.id, Type: wal.EntrySetProperty,
		Payload: wal.EncodeSetProperty(wal.SetPropertyPayload{EntityID: entityID, IsRel: isRel, KeyID: keyID, ValueEnc: encoded}),
	})
}

// RecordDeleteNode buffers a node tombstone.
func (tx *Tx) RecordDeleteNode(id uint64) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.nodeWrites = append(tx.nodeWrites, nodeWrite{id: id, delete: true})
	return tx.mgr.log.Append(wal.Entry{
		Epoch: tx.snapshot, TxID: tx.id, Type: wal.EntryDeleteNode,
		Payload: wal.EncodeDelete(wal.DeletePayload{EntityID: id}),
	})
}

// RecordDeleteRel buffers a relationship tombstone.
func (tx *Tx) RecordDeleteRel(id uint64) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.relWrites = append(tx.relWrites, relWrite{id: id, delete: true})
	return tx.mgr.log.Append(wal.Entry{
		Epoch: tx.snapshot, TxID: tx.id, Type: wal.EntryDeleteRel,
		Payload: wal.EncodeDelete(wal.DeletePayload{EntityID: id}),
	})
}

// PendingNodeCreates returns the ids (not the labels) of the nodes this
// transaction has recorded for creation.
func (tx *Tx) PendingNodeCreates() []uint64 {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	var ids []uint64
	for _, w := range tx.nodeWrites {
		if w.create {
			ids = append(ids, w.id)
		}
	}
	return ids
}

// Manager is the engine-wide transaction manager: one epoch counter, one
// single-writer mutex, and a registry of active read snapshots for GC
// purposes (spec §4.5 "garbage collector must not reclaim anything with
// deleted_epoch > min(active_snapshot_epoch)").
type Manager struct {
	log *wal.Log

	epoch      atomic.Uint64
	writerLock sync.Mutex
	nextTxID   atomic.Uint64

	snapMu    sync.Mutex
	snapshots map[uint64]int // epoch -> count of active readers pinned there
}

// NewManager creates a transaction manager bound to log, starting at
// startEpoch (recovered by the caller from the catalog/WAL replay).
func NewManager(log *wal.Log, startEpoch uint64) *Manager {
	m := &Manager{log: log, snapshots: make(map[uint64]int)}
	m.epoch.Store(startEpoch)
	return m
}

// CurrentEpoch returns the last published commit epoch.
func (m *Manager) CurrentEpoch() uint64 { return m.epoch.Load() }

// BeginRead pins the current epoch and returns a read-only Tx.
func (m *Manager) BeginRead(ctx context.Context) *Tx {
	epoch := m.epoch.Load()
	m.pinSnapshot(epoch)
	return &Tx{mgr: m, mode: ReadOnly, id: m.nextTxID.Add(1), snapshot: epoch, deadline: deadlineFromContext(ctx)}
}

// BeginWrite acquires the single-writer lock and returns a ReadWrite Tx.
// The caller must eventually call Commit or Abort.
func (m *Manager) BeginWrite(ctx context.Context) *Tx {
	m.writerLock.Lock()
	epoch := m.epoch.Load()
	tx := &Tx{mgr: m, mode: ReadWrite, id: m.nextTxID.Add(1), snapshot: epoch, deadline: deadlineFromContext(ctx)}
	_ = m.log.Append(wal.Entry{Epoch: epoch, TxID: tx.id, Type: wal.EntryBeginTx})
	return tx
}

func deadlineFromContext(ctx context.Context) time.Time {
	if ctx == nil {
		return time.Time{}
	}
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}

// ApplyFunc is invoked at commit time with the transaction's buffered
// write-set, responsible for applying it to the record store, graph
// store, and indexes under the new epoch.
type ApplyFunc func(epoch uint64, nodes []uint64, rels []uint64, props int) error

// Commit flushes the WAL through CommitTx, invokes apply to push the
// write-set into storage, and publishes the new epoch. Only valid on a
// ReadWrite transaction; releases the writer lock on return (success or
// error).
func (tx *Tx) Commit(ctx context.Context, apply ApplyFunc) error {
	if tx.mode != ReadWrite {
		return nexuserr.New(nexuserr.KindInternal, 500, "txn: commit on read-only transaction")
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return nexuserr.New(nexuserr.KindInternal, 500, "txn: commit on finished transaction")
	}
	defer func() {
		tx.done = true
		tx.mgr.writerLock.Unlock()
	}()

	newEpoch := tx.mgr.epoch.Load() + 1
	if err := tx.mgr.log.Append(wal.Entry{Epoch: newEpoch, TxID: tx.id, Type: wal.EntryCommitTx}); err != nil {
		return err
	}
	if err := tx.mgr.log.Flush(ctx); err != nil {
		return err
	}

	var nodeIDs, relIDs []uint64
	for _, w := range tx.nodeWrites {
		nodeIDs = append(nodeIDs, w.id)
	}
	for _, w := range tx.relWrites {
		relIDs = append(relIDs, w.id)
	}
	if apply != nil {
		if err := apply(newEpoch, nodeIDs, relIDs, len(tx.propWrites)); err != nil {
			return err
		}
	}
	tx.mgr.epoch.Store(newEpoch)
	return nil
}

// Abort discards the write-set and journals AbortTx.
func (tx *Tx) Abort() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.mode != ReadWrite {
		return nil
	}
	if tx.done {
		return nil
	}
	tx.done = true
	defer tx.mgr.writerLock.Unlock()
	tx.nodeWrites = nil
	tx.relWrites = nil
	tx.propWrites = nil
	return tx.mgr.log.Append(wal.Entry{Epoch: tx.snapshot, TxID: tx.id, Type: wal.EntryAbortTx})
}

// EndRead releases a read snapshot's epoch pin. Must be called exactly
// once per BeginRead.
func (tx *Tx) EndRead() {
	if tx.mode != ReadOnly {
		return
	}
	tx.mgr.unpinSnapshot(tx.snapshot)
}

func (m *Manager) pinSnapshot(epoch uint64) {
	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	m.snapshots[epoch]++
}

func (m *Manager) unpinSnapshot(epoch uint64) {
	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	m.snapshots[epoch]--
	if m.snapshots[epoch] <= 0 {
		delete(m.snapshots, epoch)
	}
}

// MinActiveSnapshot returns the lowest epoch any live reader is pinned
// to, or the current epoch if there are no active readers. Compaction
// must never reclaim a version with deleted_epoch greater than this.
func (m *Manager) MinActiveSnapshot() uint64 {
	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	min := m.epoch.Load()
	for e := range m.snapshots {
		if e < min {
			min = e
		}
	}
	return min
}

// Visible reports whether an entity with the given created/deleted epoch
// is visible to a snapshot at epoch e (spec §3/§4.5).
func Visible(created, deleted, e uint64) bool {
	return created <= e && (deleted == 0 || e < deleted)
}
