// Package wal implements the append-only, crash-recoverable write-ahead
// log described in spec §4.4: every mutation is framed and fsynced before
// the page cache is allowed to consider it durable, and replay after a
// crash restores exactly the last committed state.
//
// Grounded on the teacher's retry idiom for flaky I/O
// (internal/storage/dolt's backoff-wrapped operations) for fsync retry,
// and on spec §4.4's literal framing and entry taxonomy.
package wal

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/snappy"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

// EntryType is the closed set of WAL entry kinds (spec §4.4).
type EntryType uint8

const (
	EntryBeginTx EntryType = iota
	EntryCommitTx
	EntryAbortTx
	EntryCreateNode
	EntryCreateRel
	EntrySetProperty
	EntryDeleteNode
	EntryDeleteRel
	EntryCheckpoint
)

func (t EntryType) String() string {
	switch t {
	case EntryBeginTx:
		return "BeginTx"
	case EntryCommitTx:
		return "CommitTx"
	case EntryAbortTx:
		return "AbortTx"
	case EntryCreateNode:
		return "CreateNode"
	case EntryCreateRel:
		return "CreateRel"
	case EntrySetProperty:
		return "SetProperty"
	case EntryDeleteNode:
		return "DeleteNode"
	case EntryDeleteRel:
		return "DeleteRel"
	case EntryCheckpoint:
		return "Checkpoint"
	default:
		return "Unknown"
	}
}

// Entry is one framed WAL record: epoch(8) | tx_id(8) | type(1) |
// payload_len(4) | payload | crc32(4).
type Entry struct {
	Epoch   uint64
	TxID    uint64
	Type    EntryType
	Payload []byte
}

const (
	headerSize   = 8 + 8 + 1 + 4
	maxSegmentBytesDefault = 1 << 30
	rollIntervalDefault    = 5 * time.Minute
)

func encodeEntry(e Entry) []byte {
	buf := make([]byte, headerSize+len(e.Payload)+4)
	binary.BigEndian.PutUint64(buf[0:8], e.Epoch)
	binary.BigEndian.PutUint64(buf[8:16], e.TxID)
	buf[16] = byte(e.Type)
	binary.BigEndian.PutUint32(buf[17:21], uint32(len(e.Payload)))
	copy(buf[21:21+len(e.Payload)], e.Payload)
	sum := crc32.ChecksumIEEE(buf[:21+len(e.Payload)])
	binary.BigEndian.PutUint32(buf[21+len(e.Payload):], sum)
	return buf
}

// readEntry reads one framed entry from r. io.EOF (clean) or io.ErrUnexpectedEOF
// (partial trailing write, per spec "partial final-record writes are
// tolerated") both signal "no more entries"; any other error or a CRC
// mismatch is a WAL corruption boundary and also means "stop here".
func readEntry(r io.Reader) (Entry, bool, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Entry{}, false, nil
	}
	payloadLen := binary.BigEndian.Uint32(header[17:21])
	rest := make([]byte, int(payloadLen)+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Entry{}, false, nil
	}
	payload := rest[:payloadLen]
	wantSum := binary.BigEndian.Uint32(rest[payloadLen:])
	full := append(append([]byte{}, header...), payload...)
	if crc32.ChecksumIEEE(full) != wantSum {
		return Entry{}, false, nil
	}
	e := Entry{
		Epoch:   binary.BigEndian.Uint64(header[0:8]),
		TxID:    binary.BigEndian.Uint64(header[8:16]),
		Type:    EntryType(header[16]),
		Payload: payload,
	}
	return e, true, nil
}

// Log is the append-only, segmented WAL.
type Log struct {
	mu               sync.Mutex
	dir              string
	maxSegmentBytes  int64
	rollInterval     time.Duration
	f                *os.File
	w                *bufio.Writer
	segmentID        uint64
	segmentBytes     int64
	segmentOpenedAt  time.Time
	lastCommitEpoch  uint64
}

// Options configures segment rolling.
type Options struct {
	MaxSegmentBytes int64
	RollInterval    time.Duration
}

// Open opens (creating if necessary) the wal/ directory under dataDir and
// opens or creates the active segment for appending.
func Open(dataDir string, opts Options) (*Log, error) {
	if opts.MaxSegmentBytes <= 0 {
		opts.MaxSegmentBytes = maxSegmentBytesDefault
	}
	if opts.RollInterval <= 0 {
		opts.RollInterval = rollIntervalDefault
	}
	dir := filepath.Join(dataDir, "wal")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nexuserr.Storage(nexuserr.StorageIoError, err, "wal: mkdir %s", dir)
	}
	l := &Log{dir: dir, maxSegmentBytes: opts.MaxSegmentBytes, rollInterval: opts.RollInterval}

	segments, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	segID := uint64(0)
	if len(segments) > 0 {
		segID = segments[len(segments)-1]
	}
	if err := l.openSegment(segID); err != nil {
		return nil, err
	}
	return l, nil
}

func segmentPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("segment.%04d", id))
}

// archiveSuffix marks a segment that has been compressed and sealed by
// archiveSegment. listSegments folds "segment.NNNN" and "segment.NNNN.snappy"
// into the same id so callers never see a segment twice.
const archiveSuffix = ".snappy"

func listSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nexuserr.Storage(nexuserr.StorageIoError, err, "wal: list %s", dir)
	}
	seen := map[uint64]bool{}
	var ids []uint64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "segment.") {
			continue
		}
		name = strings.TrimSuffix(name, archiveSuffix)
		n, err := strconv.ParseUint(strings.TrimPrefix(name, "segment."), 10, 64)
		if err != nil {
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		ids = append(ids, n)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// openSegmentForRead opens segment id for sequential reading, transparently
// decompressing it if it was archived by archiveSegment.
func openSegmentForRead(dir string, id uint64) (io.ReadCloser, error) {
	raw := segmentPath(dir, id)
	f, err := os.Open(raw)
	if err == nil {
		return f, nil
	}
	if !os.IsNotExist(err) {
		return nil, nexuserr.Storage(nexuserr.StorageIoError, err, "wal: open %s", raw)
	}
	archived := raw + archiveSuffix
	af, err := os.Open(archived)
	if err != nil {
		return nil, nexuserr.Storage(nexuserr.StorageIoError, err, "wal: open %s", archived)
	}
	return archivedSegment{Reader: snappy.NewReader(af), f: af}, nil
}

type archivedSegment struct {
	*snappy.Reader
	f *os.File
}

func (a archivedSegment) Close() error { return a.f.Close() }

// archiveSegment compresses a sealed segment file in place with
// snappy-framed streaming compression and removes the uncompressed
// original, reclaiming disk for cold WAL history. A no-op if the segment
// was already archived (or never existed, e.g. re-archiving at the next
// checkpoint).
func archiveSegment(dir string, id uint64) error {
	raw := segmentPath(dir, id)
	src, err := os.Open(raw)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return nexuserr.Storage(nexuserr.StorageIoError, err, "wal: open %s for archival", raw)
	}
	defer src.Close()

	archived := raw + archiveSuffix
	dst, err := os.OpenFile(archived, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nexuserr.Storage(nexuserr.StorageIoError, err, "wal: create %s", archived)
	}
	w := snappy.NewBufferedWriter(dst)
	if _, err := io.Copy(w, src); err != nil {
		_ = dst.Close()
		return nexuserr.Storage(nexuserr.StorageIoError, err, "wal: compress %s", raw)
	}
	if err := w.Close(); err != nil {
		_ = dst.Close()
		return nexuserr.Storage(nexuserr.StorageIoError, err, "wal: flush archive %s", archived)
	}
	if err := dst.Close(); err != nil {
		return nexuserr.Storage(nexuserr.StorageIoError, err, "wal: close archive %s", archived)
	}
	return os.Remove(raw)
}

func (l *Log) openSegment(id uint64) error {
	path := segmentPath(l.dir, id)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nexuserr.Storage(nexuserr.StorageIoError, err, "wal: open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nexuserr.Storage(nexuserr.StorageIoError, err, "wal: stat %s", path)
	}
	l.f = f
	l.w = bufio.NewWriter(f)
	l.segmentID = id
	l.segmentBytes = info.Size()
	l.segmentOpenedAt = time.Now()
	return nil
}

// Append buffers entry for the next Flush. Callers append CreateNode,
// SetProperty, etc. as they go, and a final CommitTx/AbortTx ends the
// transaction.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	buf := encodeEntry(e)
	if _, err := l.w.Write(buf); err != nil {
		return nexuserr.Storage(nexuserr.StorageIoError, err, "wal: buffer append")
	}
	l.segmentBytes += int64(len(buf))
	if e.Type == EntryCommitTx {
		l.lastCommitEpoch = e.Epoch
	}
	return nil
}

// Flush fsyncs everything buffered so far, making the most recent
// CommitTx durable. Retries transient I/O errors with bounded backoff
// (spec §4.4 implementation note, mirroring the teacher's backoff usage).
func (l *Log) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked(ctx)
}

func (l *Log) flushLocked(ctx context.Context) error {
	if err := l.w.Flush(); err != nil {
		return nexuserr.Storage(nexuserr.StorageIoError, err, "wal: flush buffer")
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	err := backoff.Retry(func() error {
		return l.f.Sync()
	}, bo)
	if err != nil {
		return nexuserr.Storage(nexuserr.StorageIoError, err, "wal: fsync")
	}
	return l.maybeRoll()
}

// maybeRoll starts a new segment if the active one exceeds the size
// threshold or has been open longer than the roll interval. Caller holds
// l.mu.
func (l *Log) maybeRoll() error {
	if l.segmentBytes < l.maxSegmentBytes && time.Since(l.segmentOpenedAt) < l.rollInterval {
		return nil
	}
	if err := l.f.Close(); err != nil {
		return nexuserr.Storage(nexuserr.StorageIoError, err, "wal: close segment")
	}
	return l.openSegment(l.segmentID + 1)
}

// Checkpoint appends and flushes a Checkpoint entry recording the epoch
// and highest page id known flushed, letting recovery skip everything
// before it, then archives every sealed segment older than the active one
// (spec §6.4's "wal/segment.NNNN" files are framed per §4.4; once a
// checkpoint makes them irrelevant to recovery they are compressed rather
// than deleted outright, since an operator may still want them for audit).
func (l *Log) Checkpoint(ctx context.Context, epoch uint64, maxFlushedPageID uint64) error {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, maxFlushedPageID)
	if err := l.Append(Entry{Epoch: epoch, Type: EntryCheckpoint, Payload: payload}); err != nil {
		return err
	}
	if err := l.Flush(ctx); err != nil {
		return err
	}
	return l.archiveSealedSegments()
}

// archiveSealedSegments compresses every segment strictly older than the
// currently active (still-being-appended-to) one.
func (l *Log) archiveSealedSegments() error {
	l.mu.Lock()
	dir, activeID := l.dir, l.segmentID
	l.mu.Unlock()

	segments, err := listSegments(dir)
	if err != nil {
		return err
	}
	for _, id := range segments {
		if id >= activeID {
			continue
		}
		if err := archiveSegment(dir, id); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the active segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.flushLocked(context.Background()); err != nil {
		return err
	}
	return l.f.Close()
}

// Replay walks every segment from the last durable Checkpoint forward,
// invoking apply for each entry belonging to a transaction whose CommitTx
// was also durably present. Entries for transactions with no matching
// CommitTx (or truncated by a CRC mismatch / partial write) are discarded,
// satisfying spec §4.4's recovery contract.
func Replay(dataDir string, apply func(Entry) error) error {
	dir := filepath.Join(dataDir, "wal")
	segments, err := listSegments(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(segments) == 0 {
		return nil
	}

	// Pass 1: collect every entry across all segments, tracking the last
	// checkpoint and the set of committed tx ids.
	var all []Entry
	lastCheckpoint := -1
	committed := map[uint64]bool{}
	for _, id := range segments {
		f, err := openSegmentForRead(dir, id)
		if err != nil {
			return err
		}
		r := bufio.NewReader(f)
		for {
			e, ok, err := readEntry(r)
			if err != nil {
				_ = f.Close()
				return err
			}
			if !ok {
				break
			}
			if e.Type == EntryCheckpoint {
				lastCheckpoint = len(all)
			}
			if e.Type == EntryCommitTx {
				committed[e.TxID] = true
			}
			all = append(all, e)
		}
		_ = f.Close()
	}

	start := 0
	if lastCheckpoint >= 0 {
		start = lastCheckpoint
	}
	for _, e := range all[start:] {
		switch e.Type {
		case EntryBeginTx, EntryAbortTx, EntryCheckpoint:
			continue
		case EntryCommitTx:
			if err := apply(e); err != nil {
				return err
			}
		default:
			if committed[e.TxID] {
				if err := apply(e); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// LastCommitEpoch returns the epoch of the most recently appended
// CommitTx entry observed by this Log instance (not persisted state from
// prior runs; callers recover the durable epoch via Replay/catalog).
func (l *Log) LastCommitEpoch() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastCommitEpoch
}
