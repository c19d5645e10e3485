package pagecache

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

// PageSize is the fixed page size (spec §4.2): 8 KiB.
const PageSize = 8192

// initialFileBytes / growth policy mirror spec §4.3 "File growth: initial
// 1 MiB, double until 1 GiB, then grow by 1 GiB."
const (
	initialFileBytes = 1 << 20
	doublingCeiling  = 1 << 30
	linearGrowthStep = 1 << 30
)

// mappedFile owns one memory-mapped store file (nodes.store, rels.store,
// ...). Growth follows spec §4.3; all access goes through the page cache,
// which is the only code that dereferences the mapping directly.
type mappedFile struct {
	f    *os.File
	m    mmap.MMap
	path string
}

func openMappedFile(path string) (*mappedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, nexuserr.Storage(nexuserr.StorageIoError, err, "pagecache: open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nexuserr.Storage(nexuserr.StorageIoError, err, "pagecache: stat %s", path)
	}
	size := info.Size()
	if size == 0 {
		size = initialFileBytes
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return nil, nexuserr.Storage(nexuserr.StorageIoError, err, "pagecache: truncate %s", path)
		}
	}
	mf := &mappedFile{f: f, path: path}
	if err := mf.remap(size); err != nil {
		_ = f.Close()
		return nil, err
	}
	return mf, nil
}

func (mf *mappedFile) remap(size int64) error {
	if mf.m != nil {
		if err := mf.m.Unmap(); err != nil {
			return nexuserr.Storage(nexuserr.StorageIoError, err, "pagecache: unmap %s", mf.path)
		}
	}
	m, err := mmap.MapRegion(mf.f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		return nexuserr.Storage(nexuserr.StorageIoError, err, "pagecache: mmap %s", mf.path)
	}
	mf.m = m
	return nil
}

// ensureSize grows the file, doubling up to 1 GiB then by 1 GiB steps,
// until it covers at least minBytes.
func (mf *mappedFile) ensureSize(minBytes int64) error {
	cur := int64(len(mf.m))
	if cur >= minBytes {
		return nil
	}
	next := cur
	for next < minBytes {
		if next < doublingCeiling {
			next *= 2
		} else {
			next += linearGrowthStep
		}
	}
	if err := mf.f.Truncate(next); err != nil {
		return nexuserr.Storage(nexuserr.StorageOutOfSpace, err, "pagecache: grow %s to %d", mf.path, next)
	}
	return mf.remap(next)
}

// readPage copies PageSize bytes at the given page offset into dst.
func (mf *mappedFile) readPage(pageID uint64, dst []byte) error {
	off := int64(pageID) * PageSize
	if off+PageSize > int64(len(mf.m)) {
		if err := mf.ensureSize(off + PageSize); err != nil {
			return err
		}
	}
	copy(dst, mf.m[off:off+PageSize])
	return nil
}

// writePage copies src into the mapping at the given page offset. The
// caller is responsible for requesting a subsequent msync/fsync via Flush.
func (mf *mappedFile) writePage(pageID uint64, src []byte) error {
	off := int64(pageID) * PageSize
	if off+PageSize > int64(len(mf.m)) {
		if err := mf.ensureSize(off + PageSize); err != nil {
			return err
		}
	}
	copy(mf.m[off:off+PageSize], src)
	return nil
}

func (mf *mappedFile) sync() error {
	if err := mf.m.Flush(); err != nil {
		return nexuserr.Storage(nexuserr.StorageIoError, err, "pagecache: flush %s", mf.path)
	}
	if err := mf.f.Sync(); err != nil {
		return nexuserr.Storage(nexuserr.StorageIoError, err, "pagecache: fsync %s", mf.path)
	}
	return nil
}

func (mf *mappedFile) close() error {
	if mf.m != nil {
		if err := mf.m.Unmap(); err != nil {
			return fmt.Errorf("pagecache: unmap %s: %w", mf.path, err)
		}
	}
	return mf.f.Close()
}
