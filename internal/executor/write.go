package executor

import (
	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/cypher"
	"github.com/nexusdb/nexus/internal/graphstore"
	"github.com/nexusdb/nexus/internal/index"
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/planner"
	"github.com/nexusdb/nexus/internal/recordstore"
	"github.com/nexusdb/nexus/internal/value"
)

// edgeStore builds the recordstore.Store façade needed for CreateEdge's
// chain-splicing logic out of the stores Graph already holds, instead of
// threading a second handle through the whole package.
func edgeStore(g *Graph) *recordstore.Store {
	return &recordstore.Store{Nodes: g.Nodes, Rels: g.Rels}
}

func resolveLabel(c *ctx, name string) (uint32, error) {
	return c.graph.Catalog.GetOrCreate(catalog.DictLabel, name)
}

func resolveRelType(c *ctx, name string) (uint32, error) {
	return c.graph.Catalog.GetOrCreate(catalog.DictRelType, name)
}

func resolvePropKey(c *ctx, name string) (uint32, error) {
	return c.graph.Catalog.GetOrCreate(catalog.DictPropKey, name)
}

// nodeLabelIDs resolves every label on a node record (used to know which
// property indexes a SET/REMOVE on that node must touch).
func nodeLabelIDs(rec recordstore.NodeRecord) []uint32 {
	return NodeLabels(rec)
}

// setNodeProperty appends a new chain entry for keyID on node id and
// updates every index registered for (label, keyID) across the node's
// labels, journaling the write to the WAL.
func setNodeProperty(c *ctx, id uint64, keyID uint32, v value.Value) error {
	rec, err := c.graph.Nodes.Read(id)
	if err != nil {
		return err
	}
	old, hadOld, err := c.graph.NodeProperty(rec, keyID)
	if err != nil {
		return err
	}
	if !hadOld {
		old = value.Null
	}
	encoded, err := c.graph.Props.EncodeValue(v)
	if err != nil {
		return err
	}
	off, err := c.graph.Props.Append(keyID, v, rec.FirstPropPtr)
	if err != nil {
		return err
	}
	rec.FirstPropPtr = off
	if err := c.graph.Nodes.Write(id, rec); err != nil {
		return err
	}
	if err := c.tx.RecordSetProperty(id, false, keyID, v, encoded); err != nil {
		return err
	}
	for _, lbl := range nodeLabelIDs(rec) {
		if err := c.graph.Indexes.Apply(index.Mutation{NodeID: id, Label: lbl, KeyID: keyID, OldValue: old, NewValue: v}); err != nil {
			return err
		}
	}
	return nil
}

// removeNodeProperty appends a Null tombstone entry for keyID (spec
// §4.3's append-then-unlink: the old value is superseded, not rewritten
// in place) and unsets it from every index touching the node's labels.
func removeNodeProperty(c *ctx, id uint64, keyID uint32) error {
	rec, err := c.graph.Nodes.Read(id)
	if err != nil {
		return err
	}
	old, hadOld, err := c.graph.NodeProperty(rec, keyID)
	if err != nil {
		return err
	}
	if !hadOld {
		return nil
	}
	encoded, err := c.graph.Props.EncodeValue(value.Null)
	if err != nil {
		return err
	}
	off, err := c.graph.Props.Append(keyID, value.Null, rec.FirstPropPtr)
	if err != nil {
		return err
	}
	rec.FirstPropPtr = off
	if err := c.graph.Nodes.Write(id, rec); err != nil {
		return err
	}
	if err := c.tx.RecordSetProperty(id, false, keyID, value.Null, encoded); err != nil {
		return err
	}
	for _, lbl := range nodeLabelIDs(rec) {
		if err := c.graph.Indexes.Apply(index.Mutation{NodeID: id, Label: lbl, KeyID: keyID, OldValue: old}); err != nil {
			return err
		}
	}
	return nil
}

func setRelProperty(c *ctx, id uint64, keyID uint32, v value.Value) error {
	rec, err := c.graph.Rels.Read(id)
	if err != nil {
		return err
	}
	encoded, err := c.graph.Props.EncodeValue(v)
	if err != nil {
		return err
	}
	off, err := c.graph.Props.Append(keyID, v, rec.FirstPropPtr)
	if err != nil {
		return err
	}
	rec.FirstPropPtr = off
	if err := c.graph.Rels.Write(id, rec); err != nil {
		return err
	}
	return c.tx.RecordSetProperty(id, true, keyID, v, encoded)
}

func removeRelProperty(c *ctx, id uint64, keyID uint32) error {
	rec, err := c.graph.Rels.Read(id)
	if err != nil {
		return err
	}
	encoded, err := c.graph.Props.EncodeValue(value.Null)
	if err != nil {
		return err
	}
	off, err := c.graph.Props.Append(keyID, value.Null, rec.FirstPropPtr)
	if err != nil {
		return err
	}
	rec.FirstPropPtr = off
	if err := c.graph.Rels.Write(id, rec); err != nil {
		return err
	}
	return c.tx.RecordSetProperty(id, true, keyID, value.Null, encoded)
}

func addNodeLabel(c *ctx, id uint64, labelID uint32) error {
	rec, err := c.graph.Nodes.Read(id)
	if err != nil {
		return err
	}
	if labelID < 32 && rec.LabelBits&(1<<labelID) != 0 {
		return nil
	}
	if labelID < 32 {
		rec.LabelBits |= 1 << labelID
	}
	if err := c.graph.Nodes.Write(id, rec); err != nil {
		return err
	}
	return c.graph.Indexes.Apply(index.Mutation{NodeID: id, Label: labelID, AddLabel: true})
}

func removeNodeLabel(c *ctx, id uint64, labelID uint32) error {
	rec, err := c.graph.Nodes.Read(id)
	if err != nil {
		return err
	}
	if labelID < 32 {
		rec.LabelBits &^= 1 << labelID
	}
	if err := c.graph.Nodes.Write(id, rec); err != nil {
		return err
	}
	return c.graph.Indexes.Apply(index.Mutation{NodeID: id, Label: labelID, DropLabel: true})
}

// createNode allocates a node, applies its labels and evaluated
// properties, and returns its id.
func createNode(c *ctx, el planner.PatternElement, row Row) (uint64, error) {
	id, err := c.graph.Nodes.Allocate(c.tx.Snapshot())
	if err != nil {
		return 0, err
	}
	labelIDs := make([]uint32, 0, len(el.Labels))
	for _, name := range el.Labels {
		lid, err := resolveLabel(c, name)
		if err != nil {
			return 0, err
		}
		labelIDs = append(labelIDs, lid)
	}
	if err := c.tx.RecordCreateNode(id, labelIDs); err != nil {
		return 0, err
	}
	for _, lid := range labelIDs {
		if err := addNodeLabel(c, id, lid); err != nil {
			return 0, err
		}
	}
	if err := writePatternProperties(c, id, false, el, row); err != nil {
		return 0, err
	}
	return id, nil
}

// createRel allocates a relationship between two already-bound node
// endpoints, splicing it into both adjacency chains and the accelerator
// index.
func createRel(c *ctx, el planner.PatternElement, row Row) (uint64, error) {
	from, ok := row[el.FromVar]
	to, ok2 := row[el.ToVar]
	if !ok || !ok2 || !from.IsNode() || !to.IsNode() {
		return 0, nexuserr.New(nexuserr.KindPlan, 400, "executor: relationship endpoints %q/%q not bound", el.FromVar, el.ToVar)
	}
	if len(el.Types) != 1 {
		return 0, nexuserr.New(nexuserr.KindPlan, 400, "executor: created relationship must have exactly one type")
	}
	typeID, err := resolveRelType(c, el.Types[0])
	if err != nil {
		return 0, err
	}
	src, dst := from.NodeID(), to.NodeID()
	if el.Dir == graphstore.Incoming {
		src, dst = dst, src
	}
	relID, err := edgeStore(c.graph).CreateEdge(src, dst, typeID, c.tx.Snapshot())
	if err != nil {
		return 0, err
	}
	c.graph.Adjacency.AddEdge(src, dst, typeID)
	if err := c.tx.RecordCreateRel(relID, src, dst, typeID); err != nil {
		return 0, err
	}
	if err := writePatternProperties(c, relID, true, el, row); err != nil {
		return 0, err
	}
	return relID, nil
}

func writePatternProperties(c *ctx, id uint64, isRel bool, el planner.PatternElement, row Row) error {
	for name, expr := range el.Properties {
		keyID, err := resolvePropKey(c, name)
		if err != nil {
			return err
		}
		b, err := c.eval(expr, row)
		if err != nil {
			return err
		}
		if isRel {
			if err := setRelProperty(c, id, keyID, b.Scalar()); err != nil {
				return err
			}
		} else {
			if err := setNodeProperty(c, id, keyID, b.Scalar()); err != nil {
				return err
			}
		}
	}
	return nil
}

// createIterator materializes a CREATE clause's pattern elements once per
// input row, chaining node/relationship creation in Elements order so a
// relationship element can reference a node var introduced earlier in the
// same CREATE.
type createIterator struct {
	c        *ctx
	input    Iterator
	elements []planner.PatternElement
	seeded   bool
}

func newCreate(c *ctx, n planner.Create, input Iterator) Iterator {
	return &createIterator{c: c, input: input, elements: n.Elements}
}

func (it *createIterator) Next() (Row, bool, error) {
	row, ok, err := it.pull()
	if err != nil || !ok {
		return nil, false, err
	}
	if err := it.c.checkDeadline(); err != nil {
		return nil, false, err
	}
	out := row.Clone()
	for _, el := range it.elements {
		if el.IsRel {
			relID, err := createRel(it.c, el, out)
			if err != nil {
				return nil, false, err
			}
			if el.Var != "" {
				out[el.Var] = RelBinding(relID)
			}
			continue
		}
		nodeID, err := createNode(it.c, el, out)
		if err != nil {
			return nil, false, err
		}
		if el.Var != "" {
			out[el.Var] = NodeBinding(nodeID)
		}
	}
	return out, true, nil
}

func (it *createIterator) pull() (Row, bool, error) {
	if it.input == nil {
		if it.seeded {
			return nil, false, nil
		}
		it.seeded = true
		return Row{}, true, nil
	}
	return it.input.Next()
}

func (it *createIterator) Close() {
	if it.input != nil {
		it.input.Close()
	}
}

// mergeIterator implements MERGE: find an existing match for Pattern (and
// its chained NodeExtra elements), or create it if none exists, applying
// OnMatch/OnCreate exactly once per input row (spec §4.9).
type mergeIterator struct {
	c      *ctx
	input  Iterator
	n      planner.Merge
	seeded bool
}

func newMerge(c *ctx, n planner.Merge, input Iterator) Iterator {
	return &mergeIterator{c: c, input: input, n: n}
}

func (it *mergeIterator) Next() (Row, bool, error) {
	row, ok, err := it.pull()
	if err != nil || !ok {
		return nil, false, err
	}
	if err := it.c.checkDeadline(); err != nil {
		return nil, false, err
	}
	out := row.Clone()
	created, err := it.merge(out)
	if err != nil {
		return nil, false, err
	}
	actions := it.n.OnMatch
	if created {
		actions = it.n.OnCreate
	}
	for _, a := range actions {
		if err := it.applyAction(out, a); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

// merge resolves the anchor node (matching an existing one or creating a
// fresh one) and then each chained NodeExtra rel+node pair, reusing an
// existing edge/node when one already connects the current frontier.
func (it *mergeIterator) merge(row Row) (bool, error) {
	anyCreated := false
	anchor, found, err := matchNode(it.c, it.n.Pattern, row)
	if err != nil {
		return false, err
	}
	if !found {
		id, err := createNode(it.c, it.n.Pattern, row)
		if err != nil {
			return false, err
		}
		anchor = id
		anyCreated = true
	}
	if it.n.Pattern.Var != "" {
		row[it.n.Pattern.Var] = NodeBinding(anchor)
	}
	cur := anchor
	for i := 0; i+1 < len(it.n.NodeExtra); i += 2 {
		relEl := it.n.NodeExtra[i]
		nodeEl := it.n.NodeExtra[i+1]
		next, matched, err := matchChainedNode(it.c, cur, relEl, nodeEl, row)
		if err != nil {
			return false, err
		}
		if !matched {
			far, found, err := matchNode(it.c, nodeEl, row)
			if err != nil {
				return false, err
			}
			if !found {
				far, err = createNode(it.c, nodeEl, row)
				if err != nil {
					return false, err
				}
			}
			// createRel reads its endpoints from el.FromVar/ToVar and
			// applies el.Dir itself, so bind cur/far under synthetic
			// names in pattern order (cur = FromVar's node, far =
			// ToVar's node) and let it do the direction swap.
			bound := row.Clone()
			bound["__merge_from"] = NodeBinding(cur)
			bound["__merge_to"] = NodeBinding(far)
			el := relEl
			el.FromVar, el.ToVar = "__merge_from", "__merge_to"
			if _, err := createRel(it.c, el, bound); err != nil {
				return false, err
			}
			next = far
			anyCreated = true
		}
		if nodeEl.Var != "" {
			row[nodeEl.Var] = NodeBinding(next)
		}
		cur = next
	}
	return anyCreated, nil
}

func (it *mergeIterator) applyAction(row Row, a planner.MergeAction) error {
	b, ok := row[a.Variable]
	if !ok {
		return nil
	}
	if a.Label != "" {
		if !b.IsNode() {
			return nil
		}
		lid, err := resolveLabel(it.c, a.Label)
		if err != nil {
			return err
		}
		return addNodeLabel(it.c, b.NodeID(), lid)
	}
	keyID, err := resolvePropKey(it.c, a.Property)
	if err != nil {
		return err
	}
	val, err := it.c.eval(a.Value, row)
	if err != nil {
		return err
	}
	if b.IsRel() {
		return setRelProperty(it.c, b.RelID(), keyID, val.Scalar())
	}
	return setNodeProperty(it.c, b.NodeID(), keyID, val.Scalar())
}

func (it *mergeIterator) pull() (Row, bool, error) {
	if it.input == nil {
		if it.seeded {
			return nil, false, nil
		}
		it.seeded = true
		return Row{}, true, nil
	}
	return it.input.Next()
}

func (it *mergeIterator) Close() {
	if it.input != nil {
		it.input.Close()
	}
}

// matchNode returns one existing node satisfying el's labels and inline
// property equalities, or found=false if none exists. Unregistered label
// or property-key names can never match anything, so they short-circuit
// to "not found" rather than creating them (creation only happens via
// createNode/GetOrCreate on the miss path).
func matchNode(c *ctx, el planner.PatternElement, row Row) (uint64, bool, error) {
	var candidates []uint64
	labelIDs := make([]uint32, 0, len(el.Labels))
	for _, name := range el.Labels {
		lid, ok := c.graph.Catalog.LookupID(catalog.DictLabel, name)
		if !ok {
			return 0, false, nil
		}
		labelIDs = append(labelIDs, lid)
	}
	switch {
	case len(labelIDs) == 0:
		ids, err := c.graph.AllNodeIDs()
		if err != nil {
			return 0, false, err
		}
		candidates = ids
	case len(labelIDs) == 1:
		candidates = c.graph.NodesWithLabel(labelIDs[0])
	default:
		bm := c.graph.Indexes.Labels().Intersect(labelIDs)
		candidates = bm.ToArray()
	}
	for _, id := range candidates {
		rec, visible, err := c.graph.LoadNode(id, c.tx.Snapshot())
		if err != nil {
			return 0, false, err
		}
		if !visible {
			continue
		}
		ok, err := nodeMatchesProperties(c, rec, el.Properties, row)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func nodeMatchesProperties(c *ctx, rec recordstore.NodeRecord, props map[string]cypher.Expr, row Row) (bool, error) {
	for name, expr := range props {
		keyID, ok := c.graph.Catalog.LookupID(catalog.DictPropKey, name)
		if !ok {
			return false, nil
		}
		want, err := c.eval(expr, row)
		if err != nil {
			return false, err
		}
		got, hasGot, err := c.graph.NodeProperty(rec, keyID)
		if err != nil {
			return false, err
		}
		if !hasGot || !value.Equal(got, want.Scalar()) {
			return false, nil
		}
	}
	return true, nil
}

// matchChainedNode looks for an existing edge of relEl's type/direction
// from cur to some node matching nodeEl, returning that far node.
func matchChainedNode(c *ctx, cur uint64, relEl, nodeEl planner.PatternElement, row Row) (uint64, bool, error) {
	if len(relEl.Types) != 1 {
		return 0, false, nil
	}
	typeID, ok := c.graph.Catalog.LookupID(catalog.DictRelType, relEl.Types[0])
	if !ok {
		return 0, false, nil
	}
	dir := graphstore.Outgoing
	if relEl.Dir == graphstore.Incoming {
		dir = graphstore.Incoming
	}
	for _, far := range c.graph.Neighbors(cur, typeID, false, dir) {
		rec, visible, err := c.graph.LoadNode(far, c.tx.Snapshot())
		if err != nil {
			return 0, false, err
		}
		if !visible {
			continue
		}
		ok, err := nodeMatchesProperties(c, rec, nodeEl.Properties, row)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return far, true, nil
		}
	}
	return 0, false, nil
}

// setPropertyIterator applies one SET item (a.prop = expr, or a:Label)
// per input row, passing the row through unchanged.
type setPropertyIterator struct {
	c     *ctx
	input Iterator
	n     planner.SetProperty
}

func newSetProperty(c *ctx, n planner.SetProperty, input Iterator) Iterator {
	return &setPropertyIterator{c: c, input: input, n: n}
}

func (it *setPropertyIterator) Next() (Row, bool, error) {
	row, ok, err := it.input.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	if err := it.c.checkDeadline(); err != nil {
		return nil, false, err
	}
	b, bound := row[it.n.Variable]
	if !bound {
		return row, true, nil
	}
	if it.n.Label != "" {
		if b.IsNode() {
			lid, err := resolveLabel(it.c, it.n.Label)
			if err != nil {
				return nil, false, err
			}
			if err := addNodeLabel(it.c, b.NodeID(), lid); err != nil {
				return nil, false, err
			}
		}
		return row, true, nil
	}
	keyID, err := resolvePropKey(it.c, it.n.Property)
	if err != nil {
		return nil, false, err
	}
	val, err := it.c.eval(it.n.Value, row)
	if err != nil {
		return nil, false, err
	}
	if b.IsRel() {
		err = setRelProperty(it.c, b.RelID(), keyID, val.Scalar())
	} else if b.IsNode() {
		err = setNodeProperty(it.c, b.NodeID(), keyID, val.Scalar())
	}
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func (it *setPropertyIterator) Close() { it.input.Close() }

// removePropertyIterator applies one REMOVE item per input row.
type removePropertyIterator struct {
	c     *ctx
	input Iterator
	n     planner.RemoveProperty
}

func newRemoveProperty(c *ctx, n planner.RemoveProperty, input Iterator) Iterator {
	return &removePropertyIterator{c: c, input: input, n: n}
}

func (it *removePropertyIterator) Next() (Row, bool, error) {
	row, ok, err := it.input.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	if err := it.c.checkDeadline(); err != nil {
		return nil, false, err
	}
	b, bound := row[it.n.Variable]
	if !bound {
		return row, true, nil
	}
	if it.n.Label != "" {
		if b.IsNode() {
			lid, ok := it.c.graph.Catalog.LookupID(catalog.DictLabel, it.n.Label)
			if ok {
				if err := removeNodeLabel(it.c, b.NodeID(), lid); err != nil {
					return nil, false, err
				}
			}
		}
		return row, true, nil
	}
	keyID, ok := it.c.graph.Catalog.LookupID(catalog.DictPropKey, it.n.Property)
	if !ok {
		return row, true, nil
	}
	var err2 error
	if b.IsRel() {
		err2 = removeRelProperty(it.c, b.RelID(), keyID)
	} else if b.IsNode() {
		err2 = removeNodeProperty(it.c, b.NodeID(), keyID)
	}
	if err2 != nil {
		return nil, false, err2
	}
	return row, true, nil
}

func (it *removePropertyIterator) Close() { it.input.Close() }

// deleteIterator tombstones every bound node/relationship named by Vars
// (spec §4.9). Detach additionally tombstones a node's incident
// relationships; deleting a node that still has relationships without
// Detach is a runtime error (spec's "cannot delete a node still attached
// to a relationship" invariant).
type deleteIterator struct {
	c     *ctx
	input Iterator
	n     planner.Delete
}

func newDelete(c *ctx, n planner.Delete, input Iterator) Iterator {
	return &deleteIterator{c: c, input: input, n: n}
}

func (it *deleteIterator) Next() (Row, bool, error) {
	row, ok, err := it.input.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	if err := it.c.checkDeadline(); err != nil {
		return nil, false, err
	}
	for _, v := range it.n.Vars {
		b, bound := row[v]
		if !bound {
			continue
		}
		if b.IsRel() {
			if err := deleteRel(it.c, b.RelID()); err != nil {
				return nil, false, err
			}
			continue
		}
		if !b.IsNode() {
			continue
		}
		if err := deleteNode(it.c, b.NodeID(), it.n.Detach); err != nil {
			return nil, false, err
		}
	}
	return row, true, nil
}

func (it *deleteIterator) Close() { it.input.Close() }

func deleteRel(c *ctx, id uint64) error {
	if err := edgeStore(c.graph).DeleteEdge(id, c.tx.Snapshot()); err != nil {
		return err
	}
	rec, err := c.graph.Rels.Read(id)
	if err != nil {
		return err
	}
	c.graph.Adjacency.RemoveEdge(rec.Src, rec.Dst, rec.TypeID)
	return c.tx.RecordDeleteRel(id)
}

func deleteNode(c *ctx, id uint64, detach bool) error {
	rec, err := c.graph.Nodes.Read(id)
	if err != nil {
		return err
	}
	incident := incidentRelIDs(c, id, rec)
	if len(incident) > 0 && !detach {
		return nexuserr.New(nexuserr.KindConstraintViolated, 409, "executor: node %d still has relationships, use DETACH DELETE", id)
	}
	for _, relID := range incident {
		if err := deleteRel(c, relID); err != nil {
			return err
		}
	}
	for _, lbl := range nodeLabelIDs(rec) {
		if err := c.graph.Indexes.Apply(index.Mutation{NodeID: id, Label: lbl, DropLabel: true}); err != nil {
			return err
		}
	}
	if err := c.graph.Nodes.Tombstone(id, c.tx.Snapshot()); err != nil {
		return err
	}
	return c.tx.RecordDeleteNode(id)
}

// incidentRelIDs walks the node's own relationship chain (both as src and
// dst), so it only ever visits edges actually touching this node rather
// than scanning every relationship ever allocated.
func incidentRelIDs(c *ctx, node uint64, rec recordstore.NodeRecord) []uint64 {
	var out []uint64
	seen := map[uint64]bool{}
	ptr := rec.FirstRelPtr
	for ptr != recordstore.NilPropPtr && ptr != recordstore.NilRelPtr {
		relRec, err := c.graph.Rels.Read(ptr)
		if err != nil {
			break
		}
		if !relRec.Deleted() && relRec.Visible(c.tx.Snapshot()) && !seen[ptr] {
			out = append(out, ptr)
		}
		seen[ptr] = true
		if relRec.Src == node {
			ptr = relRec.NextSrcRel
		} else {
			ptr = relRec.NextDstRel
		}
	}
	return out
}
