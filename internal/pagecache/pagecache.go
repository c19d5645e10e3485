// Package pagecache manages fixed-size 8 KiB pages over memory-mapped
// record-store files with a bounded resident working set. Grounded on
// other_examples/ryogrid-bltree-go-for-embedding/bufmgr.go for the overall
// pin/unpin buffer-manager shape, and on the file-growth policy and
// checksum requirements of spec §4.2/§4.3. Checksums use
// github.com/cespare/xxhash/v2 (the teacher's go.mod already carries it);
// eviction policy is Clock (second-chance), implemented here directly
// because no example repo's go.mod provides a Clock/2Q page replacement
// algorithm as a library — this is genuine engine logic, not ambient
// infrastructure, so no third-party substitute applies.
package pagecache

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

// FileID distinguishes the four persisted store files a page can belong
// to (spec §6.4).
type FileID uint8

const (
	FileNodes FileID = iota
	FileRels
	FileProps
	FileStrings
)

type pageKey struct {
	file FileID
	page uint64
}

// frameState is the lifecycle of a page frame (spec §4.2 state machine:
// free -> clean -> dirty -> in-IO -> clean, clean -> free on eviction).
type frameState uint8

const (
	stateFree frameState = iota
	stateClean
	stateDirty
	stateInIO
)

type frame struct {
	key        pageKey
	data       [PageSize]byte
	state      frameState
	pinCount   int32
	referenced bool
}

// pageHeaderSize is the page's on-disk header: an 8-byte page id followed
// by an 8-byte xxHash64 checksum of the body. (Spec §4.2 describes
// an "8-byte header containing page_id and checksum", which cannot
// literally hold both a page id and a 64-bit checksum; we widen the
// header to 16 bytes — 8 for page_id, 8 for the checksum — documented as
// a deliberate Open-Question-style resolution in DESIGN.md, the same way
// spec §4.3 allows implementers latitude on the node record's epoch
// packing as long as the total size is exact.)
const pageHeaderSize = 16

// Stats mirrors the statistics required by spec §4.2.
type Stats struct {
	Hits, Misses, Evictions uint64
	BytesResident           uint64
	DirtyPages              uint64
}

// Cache is the fixed-size page manager. One Cache instance is shared by
// all four record-store files; pages are addressed by (FileID, pageID).
type Cache struct {
	mu        sync.Mutex
	files     map[FileID]*mappedFile
	frames    map[pageKey]*frame
	clock     []*frame // circular list over frames for the Clock sweep
	hand      int
	capacity  int // max resident frames
	stats     Stats
}

// Open opens (or creates) the four record-store files under dataDir and
// returns a Cache bounded to capacityMB of resident pages.
func Open(dataDir string, capacityMB int) (*Cache, error) {
	c := &Cache{
		files:    make(map[FileID]*mappedFile),
		frames:   make(map[pageKey]*frame),
		capacity: maxInt(1, capacityMB*1024*1024/PageSize),
	}
	names := map[FileID]string{
		FileNodes:   "nodes.store",
		FileRels:    "rels.store",
		FileProps:   "props.store",
		FileStrings: "strings.store",
	}
	for id, name := range names {
		mf, err := openMappedFile(dataDir + "/" + name)
		if err != nil {
			return nil, err
		}
		c.files[id] = mf
	}
	return c, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Close flushes all dirty pages and closes the underlying files.
func (c *Cache) Close() error {
	if err := c.FlushAll(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, mf := range c.files {
		if err := mf.close(); err != nil {
			return err
		}
	}
	return nil
}

// PinMode selects a read or write pin.
type PinMode int

const (
	PinRead PinMode = iota
	PinWrite
)

// PinnedRef is a handle to a resident, pinned page. Bytes returned by
// Bytes() are valid only between Pin and the matching Unpin call.
type PinnedRef struct {
	c     *Cache
	key   pageKey
	fr    *frame
	mode  PinMode
}

// Bytes returns the page body (excluding the header) for direct
// read/write access while pinned.
func (p *PinnedRef) Bytes() []byte {
	return p.fr.data[pageHeaderSize:]
}

// PageID returns the pinned page's id within its file.
func (p *PinnedRef) PageID() uint64 { return p.key.page }

// Pin loads (or returns the already-resident) page identified by
// (file, pageID), returning a PinnedRef. Multiple concurrent read pins on
// the same page are allowed; the caller is responsible for serializing
// writers at a higher layer (the transaction manager's single-writer
// lock), matching spec §5's "writers are serialized at the transaction
// level, not the cache level".
func (c *Cache) Pin(file FileID, pageID uint64, mode PinMode) (*PinnedRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := pageKey{file, pageID}
	fr, ok := c.frames[key]
	if ok {
		fr.pinCount++
		fr.referenced = true
		c.stats.Hits++
		return &PinnedRef{c: c, key: key, fr: fr, mode: mode}, nil
	}

	c.stats.Misses++
	fr, err := c.load(key)
	if err != nil {
		return nil, err
	}
	fr.pinCount++
	fr.referenced = true
	return &PinnedRef{c: c, key: key, fr: fr, mode: mode}, nil
}

// load brings a page into a free frame (evicting if necessary), verifying
// its checksum. Caller holds c.mu.
func (c *Cache) load(key pageKey) (*frame, error) {
	if len(c.frames) >= c.capacity {
		if err := c.evictOne(); err != nil {
			return nil, err
		}
	}

	fr := &frame{key: key, state: stateClean}
	mf := c.files[key.file]
	if err := mf.readPage(key.page, fr.data[:]); err != nil {
		return nil, err
	}
	if !isZeroPage(fr.data[:]) {
		if err := verifyChecksum(fr.data[:]); err != nil {
			return nil, err
		}
	} else {
		// A never-written page (tail of a freshly grown file) has no
		// checksum yet; treat as an empty, valid page.
		putPageID(fr.data[:], key.page)
	}

	c.frames[key] = fr
	c.clock = append(c.clock, fr)
	c.stats.BytesResident += PageSize
	return fr, nil
}

func isZeroPage(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// Unpin releases a pin acquired by Pin. dirty marks the page modified;
// once dirty it stays dirty until Flush.
func (p *PinnedRef) Unpin(dirty bool) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if dirty {
		if p.fr.state != stateDirty {
			p.c.stats.DirtyPages++
		}
		p.fr.state = stateDirty
		putChecksum(p.fr.data[:])
	}
	if p.fr.pinCount > 0 {
		p.fr.pinCount--
	}
}

// evictOne runs one Clock sweep: scan frames looking for an unpinned,
// unreferenced frame; referenced frames get a second chance (bit
// cleared) and are skipped this pass. Dirty victims are flushed before
// their frame is freed, satisfying spec §4.2's "dirty pages must flush
// before eviction". Caller holds c.mu.
func (c *Cache) evictOne() error {
	if len(c.clock) == 0 {
		return nexuserr.New(nexuserr.KindStorage, 500, "pagecache: no frames to evict")
	}
	scanned := 0
	maxScans := 2 * len(c.clock)
	for scanned < maxScans {
		idx := c.hand % len(c.clock)
		fr := c.clock[idx]
		c.hand = (idx + 1) % len(c.clock)
		scanned++

		if fr.pinCount > 0 {
			continue
		}
		if fr.referenced {
			fr.referenced = false
			continue
		}
		if fr.state == stateDirty {
			if err := c.flushFrame(fr); err != nil {
				return err
			}
		}
		delete(c.frames, fr.key)
		c.clock = append(c.clock[:idx], c.clock[idx+1:]...)
		if c.hand > idx {
			c.hand--
		}
		c.stats.Evictions++
		c.stats.BytesResident -= PageSize
		return nil
	}
	return nexuserr.New(nexuserr.KindStorage, 503, "pagecache: all frames pinned, cannot evict")
}

// Flush writes a specific page back to its mmap and requests durability.
func (c *Cache) Flush(file FileID, pageID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fr, ok := c.frames[pageKey{file, pageID}]
	if !ok || fr.state != stateDirty {
		return nil
	}
	return c.flushFrame(fr)
}

// flushFrame writes a dirty frame back and fsyncs its owning file. Caller
// holds c.mu.
func (c *Cache) flushFrame(fr *frame) error {
	fr.state = stateInIO
	mf := c.files[fr.key.file]
	if err := mf.writePage(fr.key.page, fr.data[:]); err != nil {
		return err
	}
	if err := mf.sync(); err != nil {
		return err
	}
	fr.state = stateClean
	if c.stats.DirtyPages > 0 {
		c.stats.DirtyPages--
	}
	return nil
}

// FlushAll writes every dirty frame back and fsyncs every file.
func (c *Cache) FlushAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fr := range c.frames {
		if fr.state == stateDirty {
			if err := c.flushFrame(fr); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stats returns a snapshot of cache statistics (spec §4.2).
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func putPageID(buf []byte, pageID uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(pageID >> (8 * i))
	}
}

func putChecksum(buf []byte) {
	sum := xxhash.Sum64(buf[pageHeaderSize:])
	for i := 0; i < 8; i++ {
		buf[8+i] = byte(sum >> (8 * i))
	}
}

func readChecksum(buf []byte) uint64 {
	var sum uint64
	for i := 0; i < 8; i++ {
		sum |= uint64(buf[8+i]) << (8 * i)
	}
	return sum
}

// verifyChecksum validates a loaded page's checksum against its body,
// returning a fatal PageCorrupt error on mismatch (spec §4.2 failure
// semantics).
func verifyChecksum(buf []byte) error {
	want := readChecksum(buf)
	if want == 0 {
		// Never-dirtied page loaded from a sparse region; nothing to
		// verify yet.
		return nil
	}
	got := xxhash.Sum64(buf[pageHeaderSize:])
	if got != want {
		return nexuserr.Storage(nexuserr.StoragePageCorrupt, nil, "pagecache: page checksum mismatch")
	}
	return nil
}
