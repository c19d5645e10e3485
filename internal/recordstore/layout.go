// Package recordstore implements the fixed-size node/relationship records,
// variable-length property chains, and the interned string store described
// in spec §4.3, over the mmap'd files managed by internal/pagecache.
//
// Node and relationship records are fixed-size and benefit from the page
// cache's pin/checksum/eviction machinery, so they are read and written a
// page at a time through internal/pagecache. Property records and interned
// strings are variable-length, append-mostly logs (spec: "append-then-
// unlink", "append-only until compaction") for which the fixed-page-pin
// abstraction does not fit naturally; those two stores instead mmap their
// own file directly via github.com/edsrzf/mmap-go; each entry carries a
// fixed 4-byte little-endian length and its own 8-byte XXH64 checksum
// rather than relying on a whole-page checksum.
package recordstore

import (
	"encoding/binary"
)

// NodeRecordSize and RelRecordSize are the bit-exact on-disk sizes
// required by spec §4.3.
const (
	NodeRecordSize = 32
	RelRecordSize  = 48
)

// nilPtr48/nilPtr64 are the sentinel "no pointer" values for 48-bit and
// 64-bit chain pointers respectively.
const (
	nilPtr48 = uint64(1)<<48 - 1
	nilPtr64 = ^uint64(0)
)

// NilPropPtr is the "no first property" pointer sentinel for NodeRecord's
// 64-bit first_prop_ptr field.
const NilPropPtr = nilPtr64

// NilRelPtr is the "no pointer" sentinel for RelRecord's 48-bit
// next_src_rel/next_dst_rel/first_prop_ptr fields. A 64-bit nilPtr64
// written into one of these truncates to this value on encode, so chain
// walkers over RelRecord links must compare against NilRelPtr rather than
// NilPropPtr.
const NilRelPtr = nilPtr48

// NodeFlags bits.
const (
	NodeFlagDeleted uint8 = 1 << 0
)

// RelFlags bits.
const (
	RelFlagDeleted uint8 = 1 << 0
)

// epochLive is the deleted-epoch sentinel meaning "not deleted" (∞ in
// spec §3's visibility formula).
const epochLive = uint32(0xFFFFFFFF)

// NodeRecord is the decoded form of spec §4.3's 32-byte node record.
//
// On-disk layout (32 bytes total — spec requires the exact total size but
// leaves the internal split to the implementer, "what matters is a total
// of exactly 32B"): the inline label bitmap is narrowed from the spec's
// illustrative 16 bytes to 4 bytes (32 inline label ids; label ids 32
// and above are not stored in the record at all, only in the label
// index, so decoding the bitmap does not return them) to make room for explicit
// created/deleted epoch fields that §3's essential-attributes table
// requires but the illustrative §4.3 split does not account for:
//
//	label_bits      4B  (u32 inline bitmap, bit i = label id i present)
//	first_rel_ptr   8B  (u64, nilPtr64 = none)
//	first_prop_ptr  8B  (u64, nilPtr64 = none)
//	flags           1B
//	created_epoch   4B  (u32)
//	deleted_epoch   4B  (u32, epochLive = not deleted)
//	reserved        3B
type NodeRecord struct {
	LabelBits     uint32
	FirstRelPtr   uint64
	FirstPropPtr  uint64
	Flags         uint8
	CreatedEpoch  uint32
	DeletedEpoch  uint32
}

// Deleted reports whether the node is tombstoned.
func (n NodeRecord) Deleted() bool { return n.Flags&NodeFlagDeleted != 0 }

// Visible reports whether the node is visible to a snapshot at epoch e,
// per spec §3: created ≤ e < deleted.
func (n NodeRecord) Visible(epoch uint64) bool {
	e32 := truncEpoch(epoch)
	return n.CreatedEpoch <= e32 && (n.DeletedEpoch == epochLive || e32 < n.DeletedEpoch)
}

func truncEpoch(e uint64) uint32 { return uint32(e) }

func encodeNode(n NodeRecord) [NodeRecordSize]byte {
	var buf [NodeRecordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], n.LabelBits)
	binary.LittleEndian.PutUint64(buf[4:12], n.FirstRelPtr)
	binary.LittleEndian.PutUint64(buf[12:20], n.FirstPropPtr)
	buf[20] = n.Flags
	binary.LittleEndian.PutUint32(buf[21:25], n.CreatedEpoch)
	binary.LittleEndian.PutUint32(buf[25:29], n.DeletedEpoch)
	// buf[29:32] reserved, left zero.
	return buf
}

func decodeNode(buf []byte) NodeRecord {
	return NodeRecord{
		LabelBits:    binary.LittleEndian.Uint32(buf[0:4]),
		FirstRelPtr:  binary.LittleEndian.Uint64(buf[4:12]),
		FirstPropPtr: binary.LittleEndian.Uint64(buf[12:20]),
		Flags:        buf[20],
		CreatedEpoch: binary.LittleEndian.Uint32(buf[21:25]),
		DeletedEpoch: binary.LittleEndian.Uint32(buf[25:29]),
	}
}

// RelRecord is the decoded form of spec §4.3's 48-byte relationship
// record.
//
// On-disk layout (48 bytes total): next-pointers are narrowed from 64-bit
// to 48-bit offsets (2^48 records is far beyond any realistic database,
// the same kind of pointer-width trick real storage engines use) to make
// room for the created/deleted epoch fields §3 requires:
//
//	src             8B  (u64 node id)
//	dst             8B  (u64 node id)
//	type_id         4B  (u32)
//	next_src_rel    6B  (u48, nilPtr48 = none)
//	next_dst_rel    6B  (u48, nilPtr48 = none)
//	first_prop_ptr  6B  (u48, nilPtr48 = none)
//	flags           1B
//	created_epoch   4B  (u32)
//	deleted_epoch   4B  (u32, epochLive = not deleted)
//	reserved        1B
type RelRecord struct {
	Src, Dst       uint64
	TypeID         uint32
	NextSrcRel     uint64
	NextDstRel     uint64
	FirstPropPtr   uint64
	Flags          uint8
	CreatedEpoch   uint32
	DeletedEpoch   uint32
}

func (r RelRecord) Deleted() bool { return r.Flags&RelFlagDeleted != 0 }

func (r RelRecord) Visible(epoch uint64) bool {
	e32 := truncEpoch(epoch)
	return r.CreatedEpoch <= e32 && (r.DeletedEpoch == epochLive || e32 < r.DeletedEpoch)
}

func encodeRel(r RelRecord) [RelRecordSize]byte {
	var buf [RelRecordSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], r.Src)
	binary.LittleEndian.PutUint64(buf[8:16], r.Dst)
	binary.LittleEndian.PutUint32(buf[16:20], r.TypeID)
	putUint48(buf[20:26], r.NextSrcRel)
	putUint48(buf[26:32], r.NextDstRel)
	putUint48(buf[32:38], r.FirstPropPtr)
	buf[38] = r.Flags
	binary.LittleEndian.PutUint32(buf[39:43], r.CreatedEpoch)
	binary.LittleEndian.PutUint32(buf[43:47], r.DeletedEpoch)
	// buf[47] reserved.
	return buf
}

func decodeRel(buf []byte) RelRecord {
	return RelRecord{
		Src:          binary.LittleEndian.Uint64(buf[0:8]),
		Dst:          binary.LittleEndian.Uint64(buf[8:16]),
		TypeID:       binary.LittleEndian.Uint32(buf[16:20]),
		NextSrcRel:   getUint48(buf[20:26]),
		NextDstRel:   getUint48(buf[26:32]),
		FirstPropPtr: getUint48(buf[32:38]),
		Flags:        buf[38],
		CreatedEpoch: binary.LittleEndian.Uint32(buf[39:43]),
		DeletedEpoch: binary.LittleEndian.Uint32(buf[43:47]),
	}
}

func putUint48(b []byte, v uint64) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
}

func getUint48(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 |
		uint64(b[3])<<24 | uint64(b[4])<<32 | uint64(b[5])<<40
}
