package graphstore

import (
	"encoding/binary"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

// AdjacencySet is the sorted set of neighbor ids for one (node, type,
// direction) triple: a skip list for hot point/range lookups, with a
// delta+LZ4-compressed cold snapshot for flushed segments (spec §4.7:
// "compressed via delta + run-length encoding"; lz4 is used here instead
// of a hand-rolled RLE pass because the ids are already delta-encoded —
// small deltas compress well under lz4's LZ77 matching without a second
// custom encoding step).
type AdjacencySet struct {
	mu   sync.RWMutex
	hot  *SkipList
}

func NewAdjacencySet() *AdjacencySet {
	return &AdjacencySet{hot: NewSkipList()}
}

// Add inserts id; returns true if newly added.
func (a *AdjacencySet) Add(id uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hot.Insert(id)
}

// Remove deletes id; returns true if it was present.
func (a *AdjacencySet) Remove(id uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hot.Remove(id)
}

// Contains reports whether id is a member (verified, not bloom-gated).
func (a *AdjacencySet) Contains(id uint64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.hot.Contains(id)
}

// Len returns the member count, backing count_edges' O(1) contract when
// the caller maintains its own running counters (see Store).
func (a *AdjacencySet) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.hot.Len()
}

// Ascend visits every member ascending, monotonic by id (spec §4.7
// "neighbors(...) -> iterator<node_id>, monotonic by id").
func (a *AdjacencySet) Ascend(visit func(uint64) bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	a.hot.Ascend(visit)
}

// Slice returns every member in ascending order as a plain slice.
func (a *AdjacencySet) Slice() []uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.hot.Slice()
}

// Snapshot wire format: format_tag(1) | count(8) | [raw_len(8) if
// compressed] | payload. formatRaw stores the delta-varint stream
// uncompressed (used whenever lz4 reports nothing would be saved);
// formatLZ4 stores it LZ4-block-compressed.
const (
	formatRaw  = byte(0)
	formatLZ4  = byte(1)
)

// Snapshot delta-encodes the sorted member set as varints and LZ4-block-
// compresses the result, producing the cold, flush-ready representation
// of this adjacency set.
func (a *AdjacencySet) Snapshot() ([]byte, error) {
	a.mu.RLock()
	ids := a.hot.Slice()
	a.mu.RUnlock()

	raw := make([]byte, 0, len(ids)*2)
	var buf [binary.MaxVarintLen64]byte
	var prev uint64
	for _, id := range ids {
		delta := id - prev
		n := binary.PutUvarint(buf[:], delta)
		raw = append(raw, buf[:n]...)
		prev = id
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	var c lz4.Compressor
	n, err := c.CompressBlock(raw, compressed)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, 500, err, "graphstore: compress adjacency snapshot")
	}
	if n == 0 {
		// Incompressible or empty input: lz4 signals this by writing
		// nothing; fall back to storing the raw delta stream verbatim.
		out := make([]byte, 1+8+len(raw))
		out[0] = formatRaw
		binary.LittleEndian.PutUint64(out[1:9], uint64(len(ids)))
		copy(out[9:], raw)
		return out, nil
	}

	out := make([]byte, 1+8+8+n)
	out[0] = formatLZ4
	binary.LittleEndian.PutUint64(out[1:9], uint64(len(ids)))
	binary.LittleEndian.PutUint64(out[9:17], uint64(len(raw)))
	copy(out[17:], compressed[:n])
	return out, nil
}

// LoadSnapshot replaces the set's contents with the decoded snapshot
// produced by Snapshot.
func LoadSnapshot(data []byte) (*AdjacencySet, error) {
	a := NewAdjacencySet()
	if len(data) < 9 {
		return a, nil
	}
	format := data[0]
	count := binary.LittleEndian.Uint64(data[1:9])

	var raw []byte
	switch format {
	case formatRaw:
		raw = data[9:]
	case formatLZ4:
		if len(data) < 17 {
			return nil, nexuserr.New(nexuserr.KindStorage, 500, "graphstore: truncated adjacency snapshot")
		}
		rawLen := binary.LittleEndian.Uint64(data[9:17])
		decompressed := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(data[17:], decompressed)
		if err != nil || uint64(n) != rawLen {
			return nil, nexuserr.New(nexuserr.KindStorage, 500, "graphstore: corrupt compressed adjacency snapshot")
		}
		raw = decompressed[:n]
	default:
		return nil, nexuserr.New(nexuserr.KindStorage, 500, "graphstore: unknown adjacency snapshot format %d", format)
	}

	var prev uint64
	off := 0
	for i := uint64(0); i < count && off < len(raw); i++ {
		delta, n := binary.Uvarint(raw[off:])
		if n <= 0 {
			return nil, nexuserr.New(nexuserr.KindStorage, 500, "graphstore: corrupt adjacency snapshot")
		}
		off += n
		prev += delta
		a.hot.Insert(prev)
	}
	return a, nil
}
