// Package catalog implements the bidirectional name<->id dictionaries for
// labels, relationship types, and property keys, plus database-level
// metadata (format version, current epoch, page size, per-label/per-type
// counters). Spec §4.1 calls for "an embedded ACID key-value store
// (LMDB-class)"; this is grounded on pkg/storage/boltdb.go from the
// cuemby-warren example (bbolt buckets, db.Update/db.View closures) —
// bbolt's single-writer mmap B+tree is exactly that class of store.
package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

var (
	bucketLabelsFwd   = []byte("labels_by_name")
	bucketLabelsRev   = []byte("labels_by_id")
	bucketRelTypesFwd = []byte("reltypes_by_name")
	bucketRelTypesRev = []byte("reltypes_by_id")
	bucketPropKeysFwd = []byte("propkeys_by_name")
	bucketPropKeysRev = []byte("propkeys_by_id")
	bucketMeta        = []byte("meta")
	bucketStats       = []byte("stats")

	keyFormatVersion = []byte("format_version")
	keyCurrentEpoch  = []byte("current_epoch")
	keyPageSize      = []byte("page_size")
	keyDDLEpoch      = []byte("ddl_epoch")
)

const (
	// FormatVersion is the on-disk catalog schema version.
	FormatVersion = 1
	// MaxNameLen bounds interned dictionary names (spec §4.1 NameTooLong).
	MaxNameLen = 255
	// PageSize is the fixed page size used by the page cache (spec §4.2).
	PageSize = 8192
)

// Dictionary identifies which of the three name<->id mappings an operation
// targets.
type Dictionary int

const (
	DictLabel Dictionary = iota
	DictRelType
	DictPropKey
)

func (d Dictionary) buckets() (fwd, rev []byte) {
	switch d {
	case DictLabel:
		return bucketLabelsFwd, bucketLabelsRev
	case DictRelType:
		return bucketRelTypesFwd, bucketRelTypesRev
	case DictPropKey:
		return bucketPropKeysFwd, bucketPropKeysRev
	default:
		panic("catalog: unknown dictionary")
	}
}

// Catalog is the persistent, transactional name<->id store. A single
// Catalog instance owns one bbolt database file; readers see a
// lock-free, snapshot-consistent view via bbolt's own MVCC, writers share
// the engine's single-writer lock (spec §5).
type Catalog struct {
	db *bolt.DB

	mu    sync.RWMutex
	cache map[Dictionary]map[string]uint32 // in-memory mirror for zero-copy name->id reads
}

// Open opens (creating if necessary) the catalog database at
// dataDir/catalog.lmdb (spec §6.4 persisted layout).
func Open(dataDir string) (*Catalog, error) {
	path := filepath.Join(dataDir, "catalog.lmdb")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, nexuserr.Storage(nexuserr.StorageIoError, err, "catalog: open %s", path)
	}

	c := &Catalog{db: db, cache: map[Dictionary]map[string]uint32{
		DictLabel:   {},
		DictRelType: {},
		DictPropKey: {},
	}}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketLabelsFwd, bucketLabelsRev,
			bucketRelTypesFwd, bucketRelTypesRev,
			bucketPropKeysFwd, bucketPropKeysRev,
			bucketMeta, bucketStats,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if meta.Get(keyFormatVersion) == nil {
			if err := meta.Put(keyFormatVersion, encodeU32(FormatVersion)); err != nil {
				return err
			}
			if err := meta.Put(keyPageSize, encodeU32(PageSize)); err != nil {
				return err
			}
			if err := meta.Put(keyCurrentEpoch, encodeU64(0)); err != nil {
				return err
			}
			if err := meta.Put(keyDDLEpoch, encodeU64(0)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, nexuserr.Storage(nexuserr.StorageCatalogCorrupt, err, "catalog: init buckets")
	}

	if err := c.warmCache(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) warmCache() error {
	return c.db.View(func(tx *bolt.Tx) error {
		for _, d := range []Dictionary{DictLabel, DictRelType, DictPropKey} {
			fwd, _ := d.buckets()
			b := tx.Bucket(fwd)
			m := c.cache[d]
			err := b.ForEach(func(k, v []byte) error {
				m[string(k)] = decodeU32(v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying bbolt database.
func (c *Catalog) Close() error { return c.db.Close() }

// GetOrCreate resolves (creating if absent) a label/rel-type/prop-key
// name to its dense u32 id. Idempotent: concurrent callers for the same
// name observe the same id (spec §4.1).
func (c *Catalog) GetOrCreate(d Dictionary, name string) (uint32, error) {
	if len(name) == 0 {
		return 0, nexuserr.New(nexuserr.KindValidation, 400, "catalog: empty name")
	}
	if len(name) > MaxNameLen {
		return 0, nexuserr.New(nexuserr.KindValidation, 400, "catalog: name too long (%d > %d)", len(name), MaxNameLen)
	}

	c.mu.RLock()
	if id, ok := c.cache[d][name]; ok {
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.cache[d][name]; ok {
		return id, nil
	}

	var id uint32
	err := c.db.Update(func(tx *bolt.Tx) error {
		fwd, rev := d.buckets()
		fb := tx.Bucket(fwd)
		if existing := fb.Get([]byte(name)); existing != nil {
			id = decodeU32(existing)
			return nil
		}
		seq, err := fb.NextSequence()
		if err != nil {
			return err
		}
		if seq > 0xFFFFFFFF {
			return errors.New("id space exhausted")
		}
		id = uint32(seq)
		if err := fb.Put([]byte(name), encodeU32(id)); err != nil {
			return err
		}
		return tx.Bucket(rev).Put(encodeU32(id), []byte(name))
	})
	if err != nil {
		if err.Error() == "id space exhausted" {
			return 0, nexuserr.New(nexuserr.KindValidation, 400, "catalog: id space exhausted for dictionary %d", d)
		}
		return 0, nexuserr.Storage(nexuserr.StorageCatalogCorrupt, err, "catalog: get-or-create %q", name)
	}
	c.cache[d][name] = id
	return id, nil
}

// LookupName returns the name bound to id, or ("", false) if undefined.
// Spec §3 invariant: "every id referenced by a record store decodes to a
// defined name; undefined ids surface as a fatal-corruption error" — that
// check is the caller's responsibility (recordstore/graphstore callers
// turn a false return into nexuserr.Storage(StorageCatalogCorrupt, ...)).
func (c *Catalog) LookupName(d Dictionary, id uint32) (string, bool) {
	var name string
	var found bool
	_ = c.db.View(func(tx *bolt.Tx) error {
		_, rev := d.buckets()
		v := tx.Bucket(rev).Get(encodeU32(id))
		if v != nil {
			name = string(v)
			found = true
		}
		return nil
	})
	return name, found
}

// LookupID returns the id bound to name without creating it.
func (c *Catalog) LookupID(d Dictionary, name string) (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.cache[d][name]
	return id, ok
}

// Names returns every interned name in dictionary d, order unspecified.
// Used by db.labels/db.relationshipTypes/db.propertyKeys introspection.
func (c *Catalog) Names(d Dictionary) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.cache[d]))
	for name := range c.cache[d] {
		out = append(out, name)
	}
	return out
}

// StatsIncrement bumps the live-entity counter for a label or rel-type by
// delta. Each call commits in its own bbolt update transaction; it is not
// part of the caller's record-store write and is not rolled back with it.
func (c *Catalog) StatsIncrement(d Dictionary, id uint32, delta int64) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		key := statsKey(d, id)
		var cur int64
		if v := b.Get(key); v != nil {
			cur = int64(decodeU64(v))
		}
		cur += delta
		return b.Put(key, encodeU64(uint64(cur)))
	})
}

// Stat returns the current live-entity counter for a label or rel-type.
func (c *Catalog) Stat(d Dictionary, id uint32) int64 {
	var cur int64
	_ = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		if v := b.Get(statsKey(d, id)); v != nil {
			cur = int64(decodeU64(v))
		}
		return nil
	})
	return cur
}

func statsKey(d Dictionary, id uint32) []byte {
	key := make([]byte, 5)
	key[0] = byte(d)
	binary.BigEndian.PutUint32(key[1:], id)
	return key
}

// CurrentEpoch returns the last-published commit epoch (spec §4.5).
func (c *Catalog) CurrentEpoch() uint64 {
	var e uint64
	_ = c.db.View(func(tx *bolt.Tx) error {
		e = decodeU64(tx.Bucket(bucketMeta).Get(keyCurrentEpoch))
		return nil
	})
	return e
}

// AdvanceEpoch publishes a new current epoch at commit time. Must be
// called under the transaction manager's single-writer lock.
func (c *Catalog) AdvanceEpoch(epoch uint64) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyCurrentEpoch, encodeU64(epoch))
	})
}

// DDLEpoch returns the counter bumped on every CREATE/DROP INDEX|CONSTRAINT
// so the plan cache (spec §4.9) can invalidate cheaply.
func (c *Catalog) DDLEpoch() uint64 {
	var e uint64
	_ = c.db.View(func(tx *bolt.Tx) error {
		e = decodeU64(tx.Bucket(bucketMeta).Get(keyDDLEpoch))
		return nil
	})
	return e
}

// BumpDDLEpoch invalidates the plan cache by incrementing the DDL epoch.
func (c *Catalog) BumpDDLEpoch() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		next := decodeU64(b.Get(keyDDLEpoch)) + 1
		return b.Put(keyDDLEpoch, encodeU64(next))
	})
}

func encodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func decodeU32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
