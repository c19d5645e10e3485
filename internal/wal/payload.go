package wal

import "encoding/binary"

// The payload encodings below are internal to the engine (only WAL
// writers/readers in internal/txn need them); they are deliberately
// simple fixed-width layouts rather than a general serialization
// library, since the entry taxonomy is closed and small (spec §4.4).

// CreateNodePayload is the decoded form of a CreateNode entry's payload:
// node id followed by its label ids at creation time.
type CreateNodePayload struct {
	NodeID uint64
	Labels []uint32
}

func EncodeCreateNode(p CreateNodePayload) []byte {
	buf := make([]byte, 8+4+4*len(p.Labels))
	binary.BigEndian.PutUint64(buf[0:8], p.NodeID)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(p.Labels)))
	for i, l := range p.Labels {
		binary.BigEndian.PutUint32(buf[12+4*i:16+4*i], l)
	}
	return buf
}

func DecodeCreateNode(b []byte) CreateNodePayload {
	id := binary.BigEndian.Uint64(b[0:8])
	n := binary.BigEndian.Uint32(b[8:12])
	labels := make([]uint32, n)
	for i := range labels {
		labels[i] = binary.BigEndian.Uint32(b[12+4*i : 16+4*i])
	}
	return CreateNodePayload{NodeID: id, Labels: labels}
}

// CreateRelPayload is the decoded form of a CreateRel entry's payload.
type CreateRelPayload struct {
	RelID  uint64
	Src    uint64
	Dst    uint64
	TypeID uint32
}

func EncodeCreateRel(p CreateRelPayload) []byte {
	buf := make([]byte, 8+8+8+4)
	binary.BigEndian.PutUint64(buf[0:8], p.RelID)
	binary.BigEndian.PutUint64(buf[8:16], p.Src)
	binary.BigEndian.PutUint64(buf[16:24], p.Dst)
	binary.BigEndian.PutUint32(buf[24:28], p.TypeID)
	return buf
}

func DecodeCreateRel(b []byte) CreateRelPayload {
	return CreateRelPayload{
		RelID:  binary.BigEndian.Uint64(b[0:8]),
		Src:    binary.BigEndian.Uint64(b[8:16]),
		Dst:    binary.BigEndian.Uint64(b[16:24]),
		TypeID: binary.BigEndian.Uint32(b[24:28]),
	}
}

// SetPropertyPayload is the decoded form of a SetProperty entry's
// payload. The property value itself is opaque bytes encoded by
// internal/recordstore's property codec, kept uninterpreted here since
// the WAL has no need to understand value shapes, only to replay them.
type SetPropertyPayload struct {
	EntityID  uint64
	IsRel     bool
	KeyID     uint32
	ValueEnc  []byte
}

func EncodeSetProperty(p SetPropertyPayload) []byte {
	buf := make([]byte, 8+1+4+4+len(p.ValueEnc))
	binary.BigEndian.PutUint64(buf[0:8], p.EntityID)
	if p.IsRel {
		buf[8] = 1
	}
	binary.BigEndian.PutUint32(buf[9:13], p.KeyID)
	binary.BigEndian.PutUint32(buf[13:17], uint32(len(p.ValueEnc)))
	copy(buf[17:], p.ValueEnc)
	return buf
}

func DecodeSetProperty(b []byte) SetPropertyPayload {
	entityID := binary.BigEndian.Uint64(b[0:8])
	isRel := b[8] != 0
	keyID := binary.BigEndian.Uint32(b[9:13])
	n := binary.BigEndian.Uint32(b[13:17])
	val := append([]byte{}, b[17:17+n]...)
	return SetPropertyPayload{EntityID: entityID, IsRel: isRel, KeyID: keyID, ValueEnc: val}
}

// DeletePayload covers both DeleteNode and DeleteRel, which share a shape.
type DeletePayload struct {
	EntityID uint64
}

func EncodeDelete(p DeletePayload) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, p.EntityID)
	return buf
}

func DecodeDelete(b []byte) DeletePayload {
	return DeletePayload{EntityID: binary.BigEndian.Uint64(b)}
}
