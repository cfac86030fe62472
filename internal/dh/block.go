package dh

import "encoding/binary"

// blockHeaderSize is the fixed prefix of every DH_BLOCK:
// used_bytes followed by the forward link to the next overflow group.
const blockHeaderSize = 10

// recordHeaderSize is the fixed prefix of every packed DH_RECORD:
// next-offset, id length, flags, and a data-length-or-big-rec-start
// field wide enough to hold either an inline length or an overflow block
// number.
const recordHeaderSize = 14

// Record flag bits (DH_RECORD.flags).
const (
	RecBigRec uint16 = 1 << iota
)

// block is the decoded, in-memory form of one DH_BLOCK (a hash group or
// overflow group). UsedBytes is at most len(Records-region); Next is the
// forward link to the next block in this group's overflow chain, 0 if none
type block struct {
	UsedBytes uint16
	Next      int64
	raw       []byte // full block-sized buffer, including header
}

func newBlock(size int) *block {
	b := &block{raw: make([]byte, size), UsedBytes: blockHeaderSize}
	return b
}

func decodeBlock(raw []byte) *block {
	le := binary.LittleEndian
	return &block{
		UsedBytes: le.Uint16(raw[0:2]),
		Next:      int64(le.Uint64(raw[2:10])),
		raw:       raw,
	}
}

func (b *block) encode() []byte {
	le := binary.LittleEndian
	le.PutUint16(b.raw[0:2], b.UsedBytes)
	le.PutUint64(b.raw[2:10], uint64(b.Next))
	return b.raw
}

// record is the decoded view of one packed DH_RECORD within a block.
type record struct {
	NextOffset uint16 // offset, relative to this record, of the next record
	IDLen      uint16
	Flags      uint16
	DataLen    int64 // inline data length, or (if RecBigRec set) the first big-rec block number
	ID         []byte
	Data       []byte // inline data; empty when RecBigRec is set
}

// encodedSize returns the on-disk byte footprint of r.
func (r *record) encodedSize() int {
	n := recordHeaderSize + len(r.ID)
	if r.Flags&RecBigRec == 0 {
		n += len(r.Data)
	}
	return n
}

func encodeRecord(r *record, into []byte) {
	le := binary.LittleEndian
	le.PutUint16(into[0:2], r.NextOffset)
	le.PutUint16(into[2:4], r.IDLen)
	le.PutUint16(into[4:6], r.Flags)
	le.PutUint64(into[6:14], uint64(r.DataLen))
	copy(into[recordHeaderSize:], r.ID)
	if r.Flags&RecBigRec == 0 {
		copy(into[recordHeaderSize+len(r.ID):], r.Data)
	}
}

func decodeRecordAt(raw []byte, offset int) *record {
	le := binary.LittleEndian
	r := &record{
		NextOffset: le.Uint16(raw[offset : offset+2]),
		IDLen:      le.Uint16(raw[offset+2 : offset+4]),
		Flags:      le.Uint16(raw[offset+4 : offset+6]),
		DataLen:    int64(le.Uint64(raw[offset+6 : offset+14])),
	}
	idStart := offset + recordHeaderSize
	r.ID = raw[idStart : idStart+int(r.IDLen)]
	if r.Flags&RecBigRec == 0 {
		dataStart := idStart + int(r.IDLen)
		r.Data = raw[dataStart : dataStart+int(r.DataLen)]
	}
	return r
}

// walkRecords invokes fn(offset, rec) for every packed record in b, in
// on-disk order, stopping early if fn returns false. Walking record headers
// from offsetof(DH_BLOCK, record) by successive next offsets must reach
// exactly used_bytes.
func (b *block) walkRecords(fn func(offset int, r *record) bool) {
	off := blockHeaderSize
	for off < int(b.UsedBytes) {
		r := decodeRecordAt(b.raw, off)
		if !fn(off, r) {
			return
		}
		if r.NextOffset == 0 {
			break
		}
		off += int(r.NextOffset)
	}
}

// bigBlockHeaderSize is the fixed prefix of a DH_BIG_BLOCK: total data
// length (first block only) and the forward link.
const bigBlockHeaderSize = 16

type bigBlock struct {
	DataLen int64 // only meaningful in the first block of the chain
	Next    int64
	raw     []byte
}

func decodeBigBlock(raw []byte) *bigBlock {
	le := binary.LittleEndian
	return &bigBlock{
		DataLen: int64(le.Uint64(raw[0:8])),
		Next:    int64(le.Uint64(raw[8:16])),
		raw:     raw,
	}
}

func (b *bigBlock) encode() []byte {
	le := binary.LittleEndian
	le.PutUint64(b.raw[0:8], uint64(b.DataLen))
	le.PutUint64(b.raw[8:16], uint64(b.Next))
	return b.raw
}

func (b *bigBlock) dataCap() int {
	return len(b.raw) - bigBlockHeaderSize
}

func (b *bigBlock) dataRegion() []byte {
	return b.raw[bigBlockHeaderSize:]
}
