package index

import (
	"fmt"
	"sync"

	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/value"
)

// propKey identifies one (label_id, key_id) property index.
type propKey struct {
	label uint32
	key   uint32
}

// Manager owns every index instance for the engine: one label index, and
// a registry of property/vector/full-text indexes keyed by (label, key)
// created on demand via CREATE INDEX (spec §4.6, §4.11).
type Manager struct {
	mu     sync.RWMutex
	labels *LabelIndex

	props    map[propKey]*PropIndex
	vectors  map[propKey]*HNSW
	fullText map[propKey]*FullTextIndex
}

func NewManager() *Manager {
	return &Manager{
		labels:   NewLabelIndex(),
		props:    make(map[propKey]*PropIndex),
		vectors:  make(map[propKey]*HNSW),
		fullText: make(map[propKey]*FullTextIndex),
	}
}

func (m *Manager) Labels() *LabelIndex { return m.labels }

// CreatePropIndex registers a property index for (label, key); a runtime
// DDL error if one already exists.
func (m *Manager) CreatePropIndex(label, key uint32) (*PropIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := propKey{label, key}
	if _, ok := m.props[pk]; ok {
		return nil, nexuserr.New(nexuserr.KindConstraintViolated, 409, "index: property index already exists for this label and key")
	}
	idx := NewPropIndex()
	m.props[pk] = idx
	return idx, nil
}

// PropIndexFor returns the registered property index for (label, key), if
// any.
func (m *Manager) PropIndexFor(label, key uint32) (*PropIndex, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.props[propKey{label, key}]
	return idx, ok
}

// DropPropIndex removes a property index.
func (m *Manager) DropPropIndex(label, key uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.props, propKey{label, key})
}

// CreateVectorIndex registers an HNSW index for (label, key).
func (m *Manager) CreateVectorIndex(label, key uint32, params HNSWParams) (*HNSW, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := propKey{label, key}
	if _, ok := m.vectors[pk]; ok {
		return nil, nexuserr.New(nexuserr.KindConstraintViolated, 409, "index: vector index already exists for this label and key")
	}
	idx, err := NewHNSW(params)
	if err != nil {
		return nil, err
	}
	m.vectors[pk] = idx
	return idx, nil
}

// VectorIndexFor returns the registered HNSW index for (label, key).
func (m *Manager) VectorIndexFor(label, key uint32) (*HNSW, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.vectors[propKey{label, key}]
	return idx, ok
}

// VectorIndexForLabel returns the vector index registered for label
// without the caller needing to name the property key, for CALL
// vector.knn(label, vec, k)'s 3-argument signature (spec §4.10), which
// carries no key argument. Assumes at most one vector index per label;
// a label with more than one vector-typed property needing its own
// index is out of scope for that 3-argument call shape.
func (m *Manager) VectorIndexForLabel(label uint32) (key uint32, idx *HNSW, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for pk, v := range m.vectors {
		if pk.label == label {
			return pk.key, v, true
		}
	}
	return 0, nil, false
}

// DropVectorIndex removes a vector index.
func (m *Manager) DropVectorIndex(label, key uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors, propKey{label, key})
}

// CreateFullTextIndex registers a BM25 index for (label, key).
func (m *Manager) CreateFullTextIndex(label, key uint32) (*FullTextIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := propKey{label, key}
	if _, ok := m.fullText[pk]; ok {
		return nil, nexuserr.New(nexuserr.KindConstraintViolated, 409, "index: full-text index already exists for this label and key")
	}
	idx := NewFullTextIndex()
	m.fullText[pk] = idx
	return idx, nil
}

// FullTextIndexFor returns the registered full-text index for (label, key).
func (m *Manager) FullTextIndexFor(label, key uint32) (*FullTextIndex, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.fullText[propKey{label, key}]
	return idx, ok
}

// DropFullTextIndex removes a full-text index.
func (m *Manager) DropFullTextIndex(label, key uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fullText, propKey{label, key})
}

// Mutation is one index-affecting change, handed to Apply by the write
// operators as the write executes. It is not buffered in a transaction's
// write set.
type Mutation struct {
	NodeID    uint64
	Label     uint32
	KeyID     uint32
	OldValue  value.Value
	NewValue  value.Value
	AddLabel  bool
	DropLabel bool
}

// Apply applies one mutation to every index kind registered for its
// (label, key) pair, immediately. The write operators call it directly
// while the statement executes, before commit; nothing undoes it if the
// transaction aborts.
func (m *Manager) Apply(mut Mutation) error {
	if mut.AddLabel {
		m.labels.Add(mut.Label, mut.NodeID)
		return nil
	}
	if mut.DropLabel {
		m.labels.Remove(mut.Label, mut.NodeID)
		return nil
	}
	if idx, ok := m.PropIndexFor(mut.Label, mut.KeyID); ok {
		if !mut.OldValue.IsNull() {
			idx.Unset(mut.OldValue, mut.NodeID)
		}
		if !mut.NewValue.IsNull() {
			idx.Set(mut.NewValue, mut.NodeID)
		}
	}
	if idx, ok := m.VectorIndexFor(mut.Label, mut.KeyID); ok && mut.NewValue.Type() == value.TypeVector {
		if err := idx.Insert(mut.NodeID, mut.NewValue.Vec()); err != nil {
			return fmt.Errorf("index: vector mutation for node %d: %w", mut.NodeID, err)
		}
	}
	if idx, ok := m.FullTextIndexFor(mut.Label, mut.KeyID); ok && mut.NewValue.Type() == value.TypeString {
		idx.Index(mut.NodeID, mut.NewValue.Str())
	}
	return nil
}
