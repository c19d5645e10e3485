package pagecache

import (
	"encoding/binary"
	"sync"
)

// appendFileHeaderSize reserves the first 8 bytes of an append file for
// the persisted tail cursor, so a reopened store resumes appending after
// its last entry instead of overwriting it.
const appendFileHeaderSize = 8

// AppendFile is a growable memory-mapped append log, used by
// internal/recordstore for the variable-length property records and
// interned strings store (spec §4.3: "append-then-unlink", "append-only
// until compaction"). It reuses mappedFile's growth policy but is not
// paged/pinned/evicted — callers read and write at arbitrary byte offsets
// directly against the mapping, matching the append-log access pattern
// rather than the fixed-slot random access nodes/rels need. Offsets
// returned by Append/passed to ReadAt are logical offsets into the data
// region; the header is not addressable by callers.
type AppendFile struct {
	mu   sync.Mutex
	mf   *mappedFile
	tail int64 // next free logical (post-header) byte offset
}

// OpenAppendFile opens or creates path, restoring tail from the
// persisted header (0 if the file is new).
func OpenAppendFile(path string) (*AppendFile, error) {
	mf, err := openMappedFile(path)
	if err != nil {
		return nil, err
	}
	af := &AppendFile{mf: mf}
	if len(mf.m) >= appendFileHeaderSize {
		af.tail = int64(binary.LittleEndian.Uint64(mf.m[:appendFileHeaderSize]))
	}
	return af, nil
}

// Tail returns the next free logical byte offset (i.e. the append cursor).
func (af *AppendFile) Tail() int64 {
	af.mu.Lock()
	defer af.mu.Unlock()
	return af.tail
}

// Append writes data at the current tail and returns its logical offset.
func (af *AppendFile) Append(data []byte) (int64, error) {
	af.mu.Lock()
	defer af.mu.Unlock()
	off := af.tail
	absEnd := appendFileHeaderSize + off + int64(len(data))
	if err := af.mf.ensureSize(absEnd); err != nil {
		return 0, err
	}
	copy(af.mf.m[appendFileHeaderSize+off:absEnd], data)
	af.tail = off + int64(len(data))
	binary.LittleEndian.PutUint64(af.mf.m[:appendFileHeaderSize], uint64(af.tail))
	return off, nil
}

// ReadAt copies len(dst) bytes starting at off into dst.
func (af *AppendFile) ReadAt(off int64, dst []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()
	absOff := appendFileHeaderSize + off
	if absOff+int64(len(dst)) > int64(len(af.mf.m)) {
		return errShortRead
	}
	copy(dst, af.mf.m[absOff:absOff+int64(len(dst))])
	return nil
}

// Sync flushes the mapping and fsyncs the file.
func (af *AppendFile) Sync() error {
	af.mu.Lock()
	defer af.mu.Unlock()
	return af.mf.sync()
}

// Close unmaps and closes the file.
func (af *AppendFile) Close() error {
	af.mu.Lock()
	defer af.mu.Unlock()
	return af.mf.close()
}

var errShortRead = shortReadError{}

type shortReadError struct{}

func (shortReadError) Error() string { return "pagecache: read past end of append file" }
