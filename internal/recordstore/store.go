package recordstore

import (
	"encoding/binary"
	"sync"

	"github.com/nexusdb/nexus/internal/pagecache"
)

// slotStore gives fixed-size records page-slotted random access over a
// pagecache.Cache file: page 0 of the file is reserved as a header page
// (next-id counter + free-list head), and every other page is sliced into
// recordsPerPage equal slots, sized so no record ever spans a page
// boundary (spec §4.2's page abstraction assumes whole records fit in a
// page; NodeRecordSize divides PageSize evenly, RelRecordSize does not, so
// relationship pages carry a few wasted trailing bytes rather than letting
// a record straddle two pages).
type slotStore struct {
	mu             sync.Mutex
	cache          *pagecache.Cache
	file           pagecache.FileID
	recordSize     int
	recordsPerPage int
}

const (
	headerOffsetNextID   = 0
	headerOffsetFreeHead = 8
	headerPage           = uint64(0)
	firstDataPage        = uint64(1)
)

func newSlotStore(cache *pagecache.Cache, file pagecache.FileID, recordSize int) *slotStore {
	return &slotStore{
		cache:          cache,
		file:           file,
		recordSize:     recordSize,
		recordsPerPage: pagecache.PageSize / recordSize,
	}
}

func (s *slotStore) header() (nextID, freeHead uint64, err error) {
	ref, err := s.cache.Pin(s.file, headerPage, pagecache.PinRead)
	if err != nil {
		return 0, 0, err
	}
	defer ref.Unpin(false)
	b := ref.Bytes()
	nextID = binary.LittleEndian.Uint64(b[headerOffsetNextID : headerOffsetNextID+8])
	freeHead = binary.LittleEndian.Uint64(b[headerOffsetFreeHead : headerOffsetFreeHead+8])
	if nextID == 0 && freeHead == 0 {
		// Freshly created file: an empty free list is nilPtr64, not 0.
		freeHead = nilPtr64
	}
	return nextID, freeHead, nil
}

func (s *slotStore) setHeader(nextID, freeHead uint64) error {
	ref, err := s.cache.Pin(s.file, headerPage, pagecache.PinWrite)
	if err != nil {
		return err
	}
	b := ref.Bytes()
	binary.LittleEndian.PutUint64(b[headerOffsetNextID:headerOffsetNextID+8], nextID)
	binary.LittleEndian.PutUint64(b[headerOffsetFreeHead:headerOffsetFreeHead+8], freeHead)
	ref.Unpin(true)
	return nil
}

func (s *slotStore) locate(id uint64) (page uint64, offset int) {
	page = firstDataPage + id/uint64(s.recordsPerPage)
	offset = int(id%uint64(s.recordsPerPage)) * s.recordSize
	return page, offset
}

func (s *slotStore) readRaw(id uint64) ([]byte, error) {
	page, offset := s.locate(id)
	ref, err := s.cache.Pin(s.file, page, pagecache.PinRead)
	if err != nil {
		return nil, err
	}
	defer ref.Unpin(false)
	buf := make([]byte, s.recordSize)
	copy(buf, ref.Bytes()[offset:offset+s.recordSize])
	return buf, nil
}

func (s *slotStore) writeRaw(id uint64, data []byte) error {
	page, offset := s.locate(id)
	ref, err := s.cache.Pin(s.file, page, pagecache.PinWrite)
	if err != nil {
		return err
	}
	copy(ref.Bytes()[offset:offset+s.recordSize], data)
	ref.Unpin(true)
	return nil
}

// allocate returns a slot id, preferring a tombstoned slot's vacated id
// over growing the store (spec §4.3 free-list reuse).
func (s *slotStore) allocate() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextID, freeHead, err := s.header()
	if err != nil {
		return 0, err
	}
	if freeHead != nilPtr64 {
		buf, err := s.readRaw(freeHead)
		if err != nil {
			return 0, err
		}
		newHead := binary.LittleEndian.Uint64(buf[0:8])
		id := freeHead
		if err := s.setHeader(nextID, newHead); err != nil {
			return 0, err
		}
		return id, nil
	}
	id := nextID
	if err := s.setHeader(nextID+1, freeHead); err != nil {
		return 0, err
	}
	return id, nil
}

// free pushes id onto the head of the free list, threading the list
// through the first 8 bytes of the tombstoned slot.
func (s *slotStore) free(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextID, freeHead, err := s.header()
	if err != nil {
		return err
	}
	var link [8]byte
	binary.LittleEndian.PutUint64(link[:], freeHead)
	page, offset := s.locate(id)
	ref, err := s.cache.Pin(s.file, page, pagecache.PinWrite)
	if err != nil {
		return err
	}
	copy(ref.Bytes()[offset:offset+8], link[:])
	ref.Unpin(true)
	return s.setHeader(nextID, id)
}

// NodeStore provides page-slotted allocate/read/write/tombstone access to
// fixed-size node records (spec §4.3).
type NodeStore struct {
	s *slotStore
}

// NewNodeStore wraps cache's node file with slot-addressed record access.
func NewNodeStore(cache *pagecache.Cache) *NodeStore {
	return &NodeStore{s: newSlotStore(cache, pagecache.FileNodes, NodeRecordSize)}
}

// Allocate reserves a node id and writes an empty, visible-from-epoch
// record into it.
func (ns *NodeStore) Allocate(epoch uint64) (uint64, error) {
	id, err := ns.s.allocate()
	if err != nil {
		return 0, err
	}
	rec := NodeRecord{
		FirstRelPtr:  nilPtr64,
		FirstPropPtr: nilPtr64,
		CreatedEpoch: truncEpoch(epoch),
		DeletedEpoch: epochLive,
	}
	buf := encodeNode(rec)
	if err := ns.s.writeRaw(id, buf[:]); err != nil {
		return 0, err
	}
	return id, nil
}

// Read decodes the node record stored at id.
func (ns *NodeStore) Read(id uint64) (NodeRecord, error) {
	buf, err := ns.s.readRaw(id)
	if err != nil {
		return NodeRecord{}, err
	}
	return decodeNode(buf), nil
}

// Write overwrites the node record stored at id.
func (ns *NodeStore) Write(id uint64, rec NodeRecord) error {
	buf := encodeNode(rec)
	return ns.s.writeRaw(id, buf[:])
}

// MaxID returns the exclusive upper bound of node ids ever allocated,
// letting a full scan (AllNodesScan) iterate [0, MaxID) and skip
// tombstoned/invisible slots by record flags rather than needing a
// separate live-id index.
func (ns *NodeStore) MaxID() (uint64, error) {
	nextID, _, err := ns.s.header()
	return nextID, err
}

// Tombstone marks a node deleted as of epoch and returns its slot to the
// free list for reuse by a future Allocate.
func (ns *NodeStore) Tombstone(id uint64, epoch uint64) error {
	rec, err := ns.Read(id)
	if err != nil {
		return err
	}
	rec.Flags |= NodeFlagDeleted
	rec.DeletedEpoch = truncEpoch(epoch)
	if err := ns.Write(id, rec); err != nil {
		return err
	}
	return ns.s.free(id)
}

// RelStore provides page-slotted allocate/read/write/tombstone access to
// fixed-size relationship records (spec §4.3).
type RelStore struct {
	s *slotStore
}

// NewRelStore wraps cache's relationship file with slot-addressed record
// access.
func NewRelStore(cache *pagecache.Cache) *RelStore {
	return &RelStore{s: newSlotStore(cache, pagecache.FileRels, RelRecordSize)}
}

// MaxID returns the exclusive upper bound of relationship ids ever
// allocated (see NodeStore.MaxID).
func (rs *RelStore) MaxID() (uint64, error) {
	nextID, _, err := rs.s.header()
	return nextID, err
}

// Read decodes the relationship record stored at id.
func (rs *RelStore) Read(id uint64) (RelRecord, error) {
	buf, err := rs.s.readRaw(id)
	if err != nil {
		return RelRecord{}, err
	}
	return decodeRel(buf), nil
}

// Write overwrites the relationship record stored at id.
func (rs *RelStore) Write(id uint64, rec RelRecord) error {
	buf := encodeRel(rec)
	return rs.s.writeRaw(id, buf[:])
}

// Tombstone marks a relationship deleted as of epoch, unlinks it from
// neither chain (callers splice chains separately — see Store.DeleteEdge)
// and returns its slot to the free list.
func (rs *RelStore) Tombstone(id uint64, epoch uint64) error {
	rec, err := rs.Read(id)
	if err != nil {
		return err
	}
	rec.Flags |= RelFlagDeleted
	rec.DeletedEpoch = truncEpoch(epoch)
	if err := rs.Write(id, rec); err != nil {
		return err
	}
	return rs.s.free(id)
}

// Store is the façade over the node and relationship record stores,
// responsible for keeping the per-node singly-linked relationship chains
// consistent (spec §4.6's adjacency invariant: "every relationship must
// appear in exactly one src chain and one dst chain").
type Store struct {
	Nodes *NodeStore
	Rels  *RelStore
}

// Open opens the node and relationship stores against an already-open
// page cache.
func Open(cache *pagecache.Cache) *Store {
	return &Store{
		Nodes: NewNodeStore(cache),
		Rels:  NewRelStore(cache),
	}
}

// CreateEdge allocates a relationship record linking src to dst and
// splices it into the head of both nodes' relationship chains. Callers
// (internal/txn) are responsible for serializing writers; this method
// performs no locking of its own beyond the slot stores' allocation
// locks.
func (st *Store) CreateEdge(src, dst uint64, typeID uint32, epoch uint64) (uint64, error) {
	srcNode, err := st.Nodes.Read(src)
	if err != nil {
		return 0, err
	}
	dstNode, err := st.Nodes.Read(dst)
	if err != nil {
		return 0, err
	}

	relID, err := st.Rels.s.allocate()
	if err != nil {
		return 0, err
	}
	rec := RelRecord{
		Src:          src,
		Dst:          dst,
		TypeID:       typeID,
		NextSrcRel:   srcNode.FirstRelPtr,
		NextDstRel:   dstNode.FirstRelPtr,
		FirstPropPtr: nilPtr48,
		CreatedEpoch: truncEpoch(epoch),
		DeletedEpoch: epochLive,
	}
	if src == dst {
		// Self-loop: both chain pointers originate from the same node
		// head; re-read after the first link would double count, so
		// thread NextDstRel through the just-computed NextSrcRel value.
		rec.NextDstRel = srcNode.FirstRelPtr
	}
	if err := st.Rels.Write(relID, rec); err != nil {
		return 0, err
	}

	srcNode.FirstRelPtr = relID
	if err := st.Nodes.Write(src, srcNode); err != nil {
		return 0, err
	}
	if src != dst {
		dstNode.FirstRelPtr = relID
		if err := st.Nodes.Write(dst, dstNode); err != nil {
			return 0, err
		}
	}
	return relID, nil
}

// DeleteEdge tombstones a relationship. The chain pointers threading
// through it are left intact and skipped over by traversal (readers check
// Visible/Deleted per record, per spec §3's MVCC model); they are
// physically unlinked only during compaction.
func (st *Store) DeleteEdge(relID uint64, epoch uint64) error {
	return st.Rels.Tombstone(relID, epoch)
}
