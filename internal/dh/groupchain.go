package dh

// chainBlockRef names one physical block in a group's overflow chain.
type chainBlockRef struct {
	kind int
	grp  int64
}

// readGroupChain walks the full overflow chain rooted at primary group
// headGroup, returning every packed record (deep-copied, since the
// underlying buffers are read fresh each call) plus the ordered list of
// physical blocks the chain currently occupies.
func (f *File) readGroupChain(headGroup int64) ([]*record, []chainBlockRef, error) {
	var recs []*record
	var blocks []chainBlockRef

	kind := PrimarySubfile
	grp := headGroup
	for {
		raw, err := f.readGroupRaw(kind, grp, f.groupBytes)
		if err != nil {
			return nil, nil, err
		}
		b := decodeBlock(raw)
		if int(b.UsedBytes) > f.groupBytes || b.UsedBytes < blockHeaderSize {
			return nil, nil, wrapErr("dh_write", ErrPointerError)
		}
		blocks = append(blocks, chainBlockRef{kind, grp})

		b.walkRecords(func(_ int, r *record) bool {
			recs = append(recs, &record{
				IDLen:   r.IDLen,
				Flags:   r.Flags,
				DataLen: r.DataLen,
				ID:      append([]byte(nil), r.ID...),
				Data:    append([]byte(nil), r.Data...),
			})
			return true
		})

		if b.Next == 0 {
			break
		}
		kind = OverflowSubfile
		grp = b.Next
	}
	return recs, blocks, nil
}

// writeGroupChain repacks recs into existing blocks (reused in order),
// allocating additional overflow blocks when recs no longer fit and
// releasing any existing blocks left over when recs now takes fewer. It
// returns the (possibly changed) physical blocks the chain now occupies.
func (f *File) writeGroupChain(headGroup int64, existing []chainBlockRef, recs []*record) ([]chainBlockRef, error) {
	capacity := f.groupBytes - blockHeaderSize

	var used []chainBlockRef
	blockIdx := 0
	nextBlockRef := func() (chainBlockRef, error) {
		if blockIdx < len(existing) {
			ref := existing[blockIdx]
			blockIdx++
			return ref, nil
		}
		grp, err := f.allocateOverflowBlock()
		if err != nil {
			return chainBlockRef{}, err
		}
		return chainBlockRef{OverflowSubfile, grp}, nil
	}

	type pending struct {
		ref  chainBlockRef
		recs []*record
	}
	var groups []pending

	cur, err := nextBlockRef()
	if err != nil {
		return nil, err
	}
	curRecs := []*record{}
	curBytes := 0
	for _, r := range recs {
		sz := r.encodedSize()
		if curBytes+sz > capacity && len(curRecs) > 0 {
			groups = append(groups, pending{cur, curRecs})
			cur, err = nextBlockRef()
			if err != nil {
				return nil, err
			}
			curRecs = nil
			curBytes = 0
		}
		curRecs = append(curRecs, r)
		curBytes += sz
	}
	groups = append(groups, pending{cur, curRecs}) // always at least the (possibly empty) final block

	for i, g := range groups {
		b := newBlock(f.groupBytes)
		off := blockHeaderSize
		for j, r := range g.recs {
			sz := r.encodedSize()
			r.NextOffset = uint16(sz)
			if j == len(g.recs)-1 {
				r.NextOffset = 0
			}
			encodeRecord(r, b.raw[off:off+sz])
			off += sz
		}
		b.UsedBytes = uint16(off)
		if i+1 < len(groups) {
			b.Next = groups[i+1].ref.grp
		} else {
			b.Next = 0
		}
		if err := f.writeGroupRaw(g.ref.kind, g.ref.grp, b.encode()); err != nil {
			return nil, err
		}
		used = append(used, g.ref)
	}

	// Release any existing blocks no longer part of the chain.
	for ; blockIdx < len(existing); blockIdx++ {
		if existing[blockIdx].kind == OverflowSubfile {
			if err := f.freeOverflowBlock(existing[blockIdx].grp); err != nil {
				return nil, err
			}
		}
	}

	return used, nil
}
