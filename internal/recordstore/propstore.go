package recordstore

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/pagecache"
	"github.com/nexusdb/nexus/internal/value"
)

// StringStore is the append-only string log described in spec §4.3:
// strings are referenced by offset from property entries. Intern does not
// deduplicate; every call appends a new copy, even of a string already
// stored. Framing is a 4-byte little-endian length, the bytes, then an
// 8-byte XXH64 checksum (the same hash the page cache uses for page
// checksums).
type StringStore struct {
	af *pagecache.AppendFile
}

// OpenStringStore opens (or creates) the interned-string file at path.
func OpenStringStore(path string) (*StringStore, error) {
	af, err := pagecache.OpenAppendFile(path)
	if err != nil {
		return nil, err
	}
	return &StringStore{af: af}, nil
}

// Intern appends s and returns its offset; callers persist the returned
// offset and len(s) to later retrieve it via Read.
func (ss *StringStore) Intern(s string) (uint64, error) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	sum := xxhash.Sum64String(s)
	var sumBuf [8]byte
	binary.LittleEndian.PutUint64(sumBuf[:], sum)

	buf := make([]byte, 0, 4+len(s)+8)
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	buf = append(buf, sumBuf[:]...)

	off, err := ss.af.Append(buf)
	if err != nil {
		return 0, err
	}
	return uint64(off), nil
}

// Read retrieves the string written at off.
func (ss *StringStore) Read(off uint64) (string, error) {
	var lenBuf [4]byte
	if err := ss.af.ReadAt(int64(off), lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	payload := make([]byte, n+8)
	if err := ss.af.ReadAt(int64(off)+4, payload); err != nil {
		return "", err
	}
	s := string(payload[:n])
	wantSum := binary.LittleEndian.Uint64(payload[n : n+8])
	if xxhash.Sum64String(s) != wantSum {
		return "", nexuserr.Storage(nexuserr.StorageIoError, nil, "recordstore: interned string at %d failed checksum", off)
	}
	return s, nil
}

func (ss *StringStore) Sync() error  { return ss.af.Sync() }
func (ss *StringStore) Close() error { return ss.af.Close() }

// PropEntry is one link in a node or relationship's property chain (spec
// §4.3: "properties are a singly linked list of (key_id, type, value,
// next) records").
type PropEntry struct {
	KeyID   uint32
	Value   value.Value
	NextPtr uint64 // NilPropPtr if this is the chain tail
}

// PropStore is the append-only log of property chain entries. Property
// values containing strings reference a StringStore for their payload
// (spec §4.3's "property string values are interned"); every other value
// type is inlined.
type PropStore struct {
	af  *pagecache.AppendFile
	str *StringStore
}

// OpenPropStore opens (or creates) the property-chain file at path,
// referencing str for interning string-typed property values.
func OpenPropStore(path string, str *StringStore) (*PropStore, error) {
	af, err := pagecache.OpenAppendFile(path)
	if err != nil {
		return nil, err
	}
	return &PropStore{af: af, str: str}, nil
}

// Append writes a new property entry and returns its offset, which the
// caller threads onto a node/relationship record's first_prop_ptr or onto
// the previous entry's next pointer.
func (ps *PropStore) Append(keyID uint32, v value.Value, nextPtr uint64) (uint64, error) {
	payload, err := ps.encodeValue(v)
	if err != nil {
		return 0, err
	}

	header := make([]byte, 0, 4+1+8+4)
	var kb [4]byte
	binary.LittleEndian.PutUint32(kb[:], keyID)
	header = append(header, kb[:]...)
	header = append(header, byte(v.Type()))
	var np [8]byte
	binary.LittleEndian.PutUint64(np[:], nextPtr)
	header = append(header, np[:]...)
	var plen [4]byte
	binary.LittleEndian.PutUint32(plen[:], uint32(len(payload)))
	header = append(header, plen[:]...)

	full := append(header, payload...)
	sum := xxhash.Sum64(full)
	var sumBuf [8]byte
	binary.LittleEndian.PutUint64(sumBuf[:], sum)
	full = append(full, sumBuf[:]...)

	off, err := ps.af.Append(full)
	if err != nil {
		return 0, err
	}
	return uint64(off), nil
}

// Read decodes the property entry stored at off.
func (ps *PropStore) Read(off uint64) (PropEntry, error) {
	fixed := make([]byte, 4+1+8+4)
	if err := ps.af.ReadAt(int64(off), fixed); err != nil {
		return PropEntry{}, err
	}
	keyID := binary.LittleEndian.Uint32(fixed[0:4])
	typ := value.Type(fixed[4])
	nextPtr := binary.LittleEndian.Uint64(fixed[5:13])
	plen := binary.LittleEndian.Uint32(fixed[13:17])

	rest := make([]byte, int(plen)+8)
	if err := ps.af.ReadAt(int64(off)+int64(len(fixed)), rest); err != nil {
		return PropEntry{}, err
	}
	payload := rest[:plen]
	wantSum := binary.LittleEndian.Uint64(rest[plen : plen+8])
	full := append(append([]byte{}, fixed...), payload...)
	if xxhash.Sum64(full) != wantSum {
		return PropEntry{}, nexuserr.Storage(nexuserr.StoragePageCorrupt, nil, "recordstore: property entry at %d failed checksum", off)
	}

	v, err := ps.decodeValue(typ, payload)
	if err != nil {
		return PropEntry{}, err
	}
	return PropEntry{KeyID: keyID, Value: v, NextPtr: nextPtr}, nil
}

// ReadChain walks a property chain starting at head, returning entries in
// chain order. head == NilPropPtr (a NodeRecord chain) or NilRelPtr (a
// RelRecord chain, truncated to 48 bits on disk) returns an empty chain.
func (ps *PropStore) ReadChain(head uint64) ([]PropEntry, error) {
	var out []PropEntry
	ptr := head
	for ptr != NilPropPtr && ptr != NilRelPtr {
		e, err := ps.Read(ptr)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		ptr = e.NextPtr
	}
	return out, nil
}

func (ps *PropStore) Sync() error  { return ps.af.Sync() }
func (ps *PropStore) Close() error { return ps.af.Close() }

// EncodeValue exposes the chain entry's payload encoding for callers that
// need to journal a property write to the WAL before it reaches Append
// (internal/txn.Tx.RecordSetProperty wants the same bytes that will end up
// on disk).
func (ps *PropStore) EncodeValue(v value.Value) ([]byte, error) {
	return ps.encodeValue(v)
}

// encodeValue serializes v's payload (the type tag is carried outside, in
// the entry header). Lists and maps recurse, each element framed with its
// own type tag and length so decodeValue can walk back out symmetrically.
func (ps *PropStore) encodeValue(v value.Value) ([]byte, error) {
	switch v.Type() {
	case value.TypeNull:
		return nil, nil
	case value.TypeBool:
		if v.Bool() {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case value.TypeInt64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.Int()))
		return b[:], nil
	case value.TypeFloat64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], mathFloatBits(v.Float()))
		return b[:], nil
	case value.TypeString:
		off, err := ps.str.Intern(v.Str())
		if err != nil {
			return nil, err
		}
		var b [12]byte
		binary.LittleEndian.PutUint64(b[0:8], off)
		binary.LittleEndian.PutUint32(b[8:12], uint32(len(v.Str())))
		return b[:], nil
	case value.TypePoint:
		p := v.Point()
		var b [20]byte
		binary.LittleEndian.PutUint64(b[0:8], mathFloatBits(p.X))
		binary.LittleEndian.PutUint64(b[8:16], mathFloatBits(p.Y))
		binary.LittleEndian.PutUint32(b[16:20], p.SRID)
		return b[:], nil
	case value.TypeDateTime:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.DateTime().UnixNano()))
		return b[:], nil
	case value.TypeVector:
		vec := v.Vec()
		b := make([]byte, 4+4*len(vec))
		binary.LittleEndian.PutUint32(b[0:4], uint32(len(vec)))
		for i, f := range vec {
			binary.LittleEndian.PutUint32(b[4+4*i:8+4*i], mathFloat32Bits(f))
		}
		return b, nil
	case value.TypeList:
		items := v.List()
		var b []byte
		var count [4]byte
		binary.LittleEndian.PutUint32(count[:], uint32(len(items)))
		b = append(b, count[:]...)
		for _, item := range items {
			enc, err := ps.encodeValue(item)
			if err != nil {
				return nil, err
			}
			var tag [1]byte
			tag[0] = byte(item.Type())
			var l [4]byte
			binary.LittleEndian.PutUint32(l[:], uint32(len(enc)))
			b = append(b, tag[:]...)
			b = append(b, l[:]...)
			b = append(b, enc...)
		}
		return b, nil
	case value.TypeMap:
		m := v.Map()
		var b []byte
		var count [4]byte
		binary.LittleEndian.PutUint32(count[:], uint32(len(m)))
		b = append(b, count[:]...)
		for k, item := range m {
			koff, err := ps.str.Intern(k)
			if err != nil {
				return nil, err
			}
			var kb [12]byte
			binary.LittleEndian.PutUint64(kb[0:8], koff)
			binary.LittleEndian.PutUint32(kb[8:12], uint32(len(k)))
			b = append(b, kb[:]...)

			enc, err := ps.encodeValue(item)
			if err != nil {
				return nil, err
			}
			var tag [1]byte
			tag[0] = byte(item.Type())
			var l [4]byte
			binary.LittleEndian.PutUint32(l[:], uint32(len(enc)))
			b = append(b, tag[:]...)
			b = append(b, l[:]...)
			b = append(b, enc...)
		}
		return b, nil
	default:
		return nil, nexuserr.New(nexuserr.KindInternal, 500, "recordstore: unknown value type %v", v.Type())
	}
}

func (ps *PropStore) decodeValue(typ value.Type, b []byte) (value.Value, error) {
	switch typ {
	case value.TypeNull:
		return value.Null, nil
	case value.TypeBool:
		return value.Bool(b[0] != 0), nil
	case value.TypeInt64:
		return value.Int(int64(binary.LittleEndian.Uint64(b))), nil
	case value.TypeFloat64:
		return value.Float(mathFloatFromBits(binary.LittleEndian.Uint64(b))), nil
	case value.TypeString:
		off := binary.LittleEndian.Uint64(b[0:8])
		n := binary.LittleEndian.Uint32(b[8:12])
		s, err := ps.str.Read(off)
		if err != nil {
			return value.Value{}, err
		}
		if uint32(len(s)) != n {
			return value.Value{}, fmt.Errorf("recordstore: interned string length mismatch at %d", off)
		}
		return value.String(s), nil
	case value.TypePoint:
		x := mathFloatFromBits(binary.LittleEndian.Uint64(b[0:8]))
		y := mathFloatFromBits(binary.LittleEndian.Uint64(b[8:16]))
		srid := binary.LittleEndian.Uint32(b[16:20])
		return value.PointVal(value.Point{X: x, Y: y, SRID: srid}), nil
	case value.TypeDateTime:
		ns := int64(binary.LittleEndian.Uint64(b))
		return value.Time(timeFromUnixNano(ns)), nil
	case value.TypeVector:
		n := binary.LittleEndian.Uint32(b[0:4])
		vec := make([]float32, n)
		for i := range vec {
			vec[i] = mathFloat32FromBits(binary.LittleEndian.Uint32(b[4+4*i : 8+4*i]))
		}
		return value.Vector(vec), nil
	case value.TypeList:
		n := binary.LittleEndian.Uint32(b[0:4])
		items := make([]value.Value, 0, n)
		pos := 4
		for i := uint32(0); i < n; i++ {
			itemTyp := value.Type(b[pos])
			l := binary.LittleEndian.Uint32(b[pos+1 : pos+5])
			pos += 5
			item, err := ps.decodeValue(itemTyp, b[pos:pos+int(l)])
			if err != nil {
				return value.Value{}, err
			}
			items = append(items, item)
			pos += int(l)
		}
		return value.List(items), nil
	case value.TypeMap:
		n := binary.LittleEndian.Uint32(b[0:4])
		m := make(map[string]value.Value, n)
		pos := 4
		for i := uint32(0); i < n; i++ {
			koff := binary.LittleEndian.Uint64(b[pos : pos+8])
			klen := binary.LittleEndian.Uint32(b[pos+8 : pos+12])
			pos += 12
			k, err := ps.str.Read(koff)
			if err != nil {
				return value.Value{}, err
			}
			if uint32(len(k)) != klen {
				return value.Value{}, fmt.Errorf("recordstore: interned map key length mismatch at %d", koff)
			}
			itemTyp := value.Type(b[pos])
			l := binary.LittleEndian.Uint32(b[pos+1 : pos+5])
			pos += 5
			item, err := ps.decodeValue(itemTyp, b[pos:pos+int(l)])
			if err != nil {
				return value.Value{}, err
			}
			m[k] = item
			pos += int(l)
		}
		return value.Map(m), nil
	default:
		return value.Value{}, nexuserr.New(nexuserr.KindInternal, 500, "recordstore: unknown value type tag %d", typ)
	}
}
