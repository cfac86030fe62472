package dh

import (
	"bytes"

	"github.com/scarletdme/qmcore/internal/descriptor"
)

// Read implements dh_read: hash the id to its primary group,
// walk the group's overflow chain comparing ids (case-insensitively if
// DHF_NOCASE is set), and materialize the matched record's data —
// following the large-record chain when the record is flagged big.
//
// Grounded verbatim on gplsrc/dh_read.c's scan loop and DH_BIG_REC
// handling; cache lookups and group locking are the caller's
// responsibility (reccache/lockmgr sit above this package in the call
// chain: consult the record cache, acquire a group read-lock, read the
// group, release the lock).
func (f *File) Read(id []byte) (data *descriptor.Chunk, actualID []byte, err error) {
	f.mu.Lock()
	nocase := f.header.Flags&FlagNoCase != 0
	groupBytes := f.groupBytes
	f.mu.Unlock()

	group := f.header.Params.HashGroup(id)
	subfileKind := PrimarySubfile
	grp := group

	for {
		raw, rerr := f.readGroupRaw(subfileKind, grp, groupBytes)
		if rerr != nil {
			return nil, nil, rerr
		}
		b := decodeBlock(raw)
		if int(b.UsedBytes) > groupBytes || b.UsedBytes < blockHeaderSize {
			return nil, nil, wrapErr("dh_read", ErrPointerError)
		}

		var found *record
		b.walkRecords(func(_ int, r *record) bool {
			if int(r.IDLen) != len(id) {
				return true
			}
			if idsMatch(r.ID, id, nocase) {
				found = r
				return false
			}
			return true
		})

		if found != nil {
			actual := append([]byte(nil), found.ID...)
			data, err := f.materializeRecord(found, groupBytes)
			return data, actual, err
		}

		if b.Next == 0 {
			return nil, nil, wrapErr("dh_read", ErrRecordNotFound)
		}
		subfileKind = OverflowSubfile
		grp = b.Next
	}
}

func idsMatch(a, b []byte, nocase bool) bool {
	if !nocase {
		return bytes.Equal(a, b)
	}
	return bytes.EqualFold(a, b)
}

// materializeRecord implements dh_read_record: copy inline data, or follow
// the big-record chain in the overflow subfile gathering chunks.
func (f *File) materializeRecord(r *record, groupBytes int) (*descriptor.Chunk, error) {
	if r.Flags&RecBigRec == 0 {
		if len(r.Data) == 0 {
			return nil, nil
		}
		return descriptor.NewFromBytes(r.Data), nil
	}

	var head, tail *descriptor.Chunk
	grp := r.DataLen // first big-rec block number, stored in the inline slot
	remaining := int64(-1)
	for grp != 0 {
		raw, err := f.readGroupRaw(OverflowSubfile, grp, groupBytes)
		if err != nil {
			return nil, err
		}
		bb := decodeBigBlock(raw)
		if remaining < 0 {
			remaining = bb.DataLen
		}
		n := bb.dataCap()
		if int64(n) > remaining {
			n = int(remaining)
		}
		remaining -= int64(n)
		chunk := descriptor.NewFromBytes(append([]byte(nil), bb.dataRegion()[:n]...))
		if head == nil {
			head = chunk
			tail = chunk
		} else {
			tail = appendChunkChain(head, tail, chunk)
		}
		grp = bb.Next
	}
	return head, nil
}

// appendChunkChain splices chunk onto the tail of an already-built chain,
// fixing up the head's TotalLen, and returns the new tail. descriptor's own
// Append always defensively copies, which would be wasteful when the
// caller already owns freshly allocated chunks from a sequential read, so
// the splice is done directly here.
func appendChunkChain(head, tail, chunk *descriptor.Chunk) *descriptor.Chunk {
	head.TotalLen += descriptor.Len(chunk)
	tail.Next = chunk
	return chunk
}

// readGroupRaw reads one block-sized buffer from the given subfile kind at
// 1-origin group number grp.
func (f *File) readGroupRaw(kind int, grp int64, groupBytes int) ([]byte, error) {
	var sf *subfile
	var hdrBytes int64
	if kind == PrimarySubfile {
		sf = f.primary
		hdrBytes = f.header.HeaderBytesOnDisk()
	} else {
		sf = f.overflow
		hdrBytes = f.header.HeaderBytesOnDisk()
	}
	off := hdrBytes + (grp-1)*int64(groupBytes)
	raw, err := sf.readAt(off, groupBytes)
	if err != nil {
		return nil, wrapErr("dh_read", ErrReadError)
	}
	return raw, nil
}
