package dh

// writeGroupRaw writes one block-sized buffer to the given subfile kind at
// 1-origin group number grp, growing the subfile if grp is beyond its
// current extent.
func (f *File) writeGroupRaw(kind int, grp int64, raw []byte) error {
	var sf *subfile
	hdrBytes := f.header.HeaderBytesOnDisk()
	if kind == PrimarySubfile {
		sf = f.primary
	} else {
		sf = f.overflow
	}
	off := hdrBytes + (grp-1)*int64(f.groupBytes)
	if err := sf.writeAt(off, raw); err != nil {
		return wrapErr("dh_write", ErrWriteError)
	}
	return nil
}

// allocateOverflowBlock returns a 1-origin overflow-subfile block number
// ready to receive a block's worth of data, reusing the head of
// params.free_chain when non-empty
// and otherwise extending the overflow subfile by one block.
func (f *File) allocateOverflowBlock() (int64, error) {
	if f.header.Params.FreeChain != 0 {
		grp := f.header.Params.FreeChain
		raw, err := f.readGroupRaw(OverflowSubfile, grp, f.groupBytes)
		if err != nil {
			return 0, err
		}
		b := decodeBlock(raw)
		f.header.Params.FreeChain = b.Next
		return grp, nil
	}
	hdrBytes := f.header.HeaderBytesOnDisk()
	return f.overflow.growByOneGroup(hdrBytes, f.groupBytes)
}

// freeOverflowBlock pushes grp onto the head of the free chain so a later
// allocateOverflowBlock call reuses it, rather than leaving the overflow
// subfile to grow without bound across repeated rewrites.
func (f *File) freeOverflowBlock(grp int64) error {
	b := newBlock(f.groupBytes)
	b.Next = f.header.Params.FreeChain
	b.UsedBytes = blockHeaderSize
	if err := f.writeGroupRaw(OverflowSubfile, grp, b.encode()); err != nil {
		return err
	}
	f.header.Params.FreeChain = grp
	return nil
}

// writeBigRecord chunks data across freshly (or free-chain-)allocated
// overflow blocks, the first of which carries the total length: a
// big-record block chains through the overflow subfile and stores the
// total data length in its first block. Returns the first
// block's number, which the caller stores in the record's inline
// DataLen-or-big-start slot.
func (f *File) writeBigRecord(data []byte) (int64, error) {
	capacity := f.groupBytes - bigBlockHeaderSize
	if capacity <= 0 {
		return 0, wrapErr("dh_write", ErrWriteError)
	}
	var blocks []int64
	for off := 0; off < len(data) || len(blocks) == 0; off += capacity {
		grp, err := f.allocateOverflowBlock()
		if err != nil {
			return 0, err
		}
		blocks = append(blocks, grp)
		if off+capacity >= len(data) {
			break
		}
	}

	for i, grp := range blocks {
		raw := make([]byte, f.groupBytes)
		bb := decodeBigBlock(raw)
		start := i * capacity
		end := start + capacity
		if end > len(data) {
			end = len(data)
		}
		if i == 0 {
			bb.DataLen = int64(len(data))
		}
		if i+1 < len(blocks) {
			bb.Next = blocks[i+1]
		} else {
			bb.Next = 0
		}
		copy(bb.dataRegion(), data[start:end])
		if err := f.writeGroupRaw(OverflowSubfile, grp, bb.encode()); err != nil {
			return 0, err
		}
	}
	return blocks[0], nil
}

// freeBigRecord releases every block in a big-record chain back to the
// free list, used when a record is replaced or deleted: replacing a record
// must reclaim the old record's space, including its big-record chain.
func (f *File) freeBigRecord(startGrp int64) error {
	grp := startGrp
	for grp != 0 {
		raw, err := f.readGroupRaw(OverflowSubfile, grp, f.groupBytes)
		if err != nil {
			return err
		}
		bb := decodeBigBlock(raw)
		next := bb.Next
		if err := f.freeOverflowBlock(grp); err != nil {
			return err
		}
		grp = next
	}
	return nil
}
