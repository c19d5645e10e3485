// Package executor implements the pull-based physical operator tree that
// runs plans built by internal/planner over a transaction's snapshot,
// grounded on spec §4.10's next_row()-per-operator execution model.
package executor

import (
	"math/bits"

	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/graphstore"
	"github.com/nexusdb/nexus/internal/index"
	"github.com/nexusdb/nexus/internal/recordstore"
	"github.com/nexusdb/nexus/internal/value"
)

// Graph is the read/write façade operators use to reach the storage
// layers, tying together the catalog, the fixed-size record stores, the
// property chains, the adjacency accelerator, and the index manager
// behind one seam so operators never import those packages directly.
type Graph struct {
	Catalog   *catalog.Catalog
	Nodes     *recordstore.NodeStore
	Rels      *recordstore.RelStore
	Props     *recordstore.PropStore
	Adjacency *graphstore.Store
	Indexes   *index.Manager
}

// NodeLabels decodes the inline label bitmap on a node record into the
// label ids it carries (spec §4.3's 32 inline label slots).
func NodeLabels(rec recordstore.NodeRecord) []uint32 {
	var out []uint32
	bitmap := rec.LabelBits
	for bitmap != 0 {
		i := bits.TrailingZeros32(bitmap)
		out = append(out, uint32(i))
		bitmap &^= 1 << uint(i)
	}
	return out
}

// HasLabel reports whether rec's inline bitmap carries labelID.
func HasLabel(rec recordstore.NodeRecord, labelID uint32) bool {
	if labelID >= 32 {
		return false
	}
	return rec.LabelBits&(1<<labelID) != 0
}

// LoadNode reads the node record at id and reports whether it is visible
// at the given snapshot epoch (not deleted, not tombstoned).
func (g *Graph) LoadNode(id uint64, epoch uint64) (recordstore.NodeRecord, bool, error) {
	rec, err := g.Nodes.Read(id)
	if err != nil {
		return recordstore.NodeRecord{}, false, err
	}
	if rec.Deleted() || !rec.Visible(epoch) {
		return rec, false, nil
	}
	return rec, true, nil
}

// LoadRel reads the relationship record at id and reports its visibility.
func (g *Graph) LoadRel(id uint64, epoch uint64) (recordstore.RelRecord, bool, error) {
	rec, err := g.Rels.Read(id)
	if err != nil {
		return recordstore.RelRecord{}, false, err
	}
	if rec.Deleted() || !rec.Visible(epoch) {
		return rec, false, nil
	}
	return rec, true, nil
}

// NodeProperty returns the value bound to keyID on the node's property
// chain, or (Null, false) if unset. The chain is walked head-first (most
// recent entry first, spec §4.3's "append-then-unlink"), so the first
// matching keyID is the live value; a live entry holding Null means the
// key was REMOVEd and reads as absent.
func (g *Graph) NodeProperty(rec recordstore.NodeRecord, keyID uint32) (value.Value, bool, error) {
	entries, err := g.Props.ReadChain(rec.FirstPropPtr)
	if err != nil {
		return value.Null, false, err
	}
	for _, e := range entries {
		if e.KeyID == keyID {
			if e.Value.IsNull() {
				return value.Null, false, nil
			}
			return e.Value, true, nil
		}
	}
	return value.Null, false, nil
}

// NodeProperties returns every property on the node's chain, keyed by
// property key id. Only the newest entry per key is kept, and a REMOVEd
// (Null) entry omits the key entirely.
func (g *Graph) NodeProperties(rec recordstore.NodeRecord) (map[uint32]value.Value, error) {
	entries, err := g.Props.ReadChain(rec.FirstPropPtr)
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]value.Value, len(entries))
	seen := make(map[uint32]bool, len(entries))
	for _, e := range entries {
		if seen[e.KeyID] {
			continue
		}
		seen[e.KeyID] = true
		if e.Value.IsNull() {
			continue
		}
		out[e.KeyID] = e.Value
	}
	return out, nil
}

// RelProperty mirrors NodeProperty for relationship property chains.
func (g *Graph) RelProperty(rec recordstore.RelRecord, keyID uint32) (value.Value, bool, error) {
	entries, err := g.Props.ReadChain(rec.FirstPropPtr)
	if err != nil {
		return value.Null, false, err
	}
	for _, e := range entries {
		if e.KeyID == keyID {
			if e.Value.IsNull() {
				return value.Null, false, nil
			}
			return e.Value, true, nil
		}
	}
	return value.Null, false, nil
}

// RelProperties mirrors NodeProperties for relationships.
func (g *Graph) RelProperties(rec recordstore.RelRecord) (map[uint32]value.Value, error) {
	entries, err := g.Props.ReadChain(rec.FirstPropPtr)
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]value.Value, len(entries))
	seen := make(map[uint32]bool, len(entries))
	for _, e := range entries {
		if seen[e.KeyID] {
			continue
		}
		seen[e.KeyID] = true
		if e.Value.IsNull() {
			continue
		}
		out[e.KeyID] = e.Value
	}
	return out, nil
}

// AllNodeIDs returns every node id ever allocated, up to the store's
// current high-water mark; callers filter for visibility themselves
// (AllNodesScan does this per spec §4.9's AllNodesScan operator).
func (g *Graph) AllNodeIDs() ([]uint64, error) {
	max, err := g.Nodes.MaxID()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, max)
	for i := range ids {
		ids[i] = uint64(i)
	}
	return ids, nil
}

// NodesWithLabel returns the set of node ids carrying labelID, from the
// label bitmap index (spec §4.6).
func (g *Graph) NodesWithLabel(labelID uint32) []uint64 {
	bm := g.Indexes.Labels().NodesWithLabel(labelID)
	return bm.ToArray()
}

// Neighbors returns the node ids reachable from node via relType in the
// given direction (spec §4.7's adjacency accelerator).
func (g *Graph) Neighbors(node uint64, relType uint32, anyType bool, dir graphstore.Direction) []uint64 {
	return g.Adjacency.Neighbors(node, relType, anyType, dir)
}
