package dh

import (
	"github.com/scarletdme/qmcore/internal/descriptor"
)

// Write implements dh_write: locate the record's group,
// reclaim any old copy's space (including its big-record chain), store the
// new data inline or via the big-record chain depending on big_rec_size,
// repack the group's overflow chain, and bump record_count on insert.
// akKeys holds this record's freshly evaluated I-type key per AK index
// (nil entries are treated as "no change to that AK") so the new record's
// I-type can be re-evaluated against each AK index.
func (f *File) Write(id []byte, data *descriptor.Chunk, akKeys map[int]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	nocase := f.header.Flags&FlagNoCase != 0
	group := f.header.Params.HashGroup(id)

	recs, blocks, err := f.readGroupChain(group)
	if err != nil {
		return err
	}

	payload := descriptor.Bytes(data)
	isBig := int32(len(payload)) > f.header.Params.BigRecSize && f.header.Params.BigRecSize > 0

	newRec := &record{IDLen: uint16(len(id)), ID: append([]byte(nil), id...)}
	if isBig {
		start, err := f.writeBigRecord(payload)
		if err != nil {
			return err
		}
		newRec.Flags = RecBigRec
		newRec.DataLen = start
	} else {
		newRec.Data = append([]byte(nil), payload...)
		newRec.DataLen = int64(len(payload))
	}

	isInsert := true
	for i, r := range recs {
		if int(r.IDLen) == len(id) && idsMatch(r.ID, id, nocase) {
			isInsert = false
			if r.Flags&RecBigRec != 0 {
				if err := f.freeBigRecord(r.DataLen); err != nil {
					return err
				}
			}
			recs[i] = newRec
			break
		}
	}
	if isInsert {
		recs = append(recs, newRec)
	}

	if _, err := f.writeGroupChain(group, blocks, recs); err != nil {
		return err
	}

	if isInsert {
		f.header.RecordCount++
	}
	if len(id) > int(f.header.Params.LongestID) {
		f.header.Params.LongestID = int16(len(id))
	}
	f.header.Flags |= FlagFSync

	if len(f.aks) > 0 && akKeys != nil {
		if err := f.akUpdate(string(id), nil, akKeys); err != nil {
			return err
		}
	}

	f.maybeSplit()
	return nil
}

// maybeSplit checks the load-control thresholds and, if crossed, performs
// one step of linear-hash growth: the split bucket's records are rehashed
// across the old and newly created group.
func (f *File) maybeSplit() {
	f.header.Params.LoadBytes += int64(blockHeaderSize) // coarse load accounting
	if f.header.Params.SplitLoad <= 0 || !f.header.Params.ShouldSplit() {
		return
	}
	oldGroup, newGroup := f.header.Params.AdvanceSplit()

	recs, blocks, err := f.readGroupChain(oldGroup)
	if err != nil {
		return // load-control is best-effort; a failed split is not fatal
	}

	var keep, move []*record
	for _, r := range recs {
		g := GroupForHash(hashID(r.ID), f.header.Params.MinModulus, f.header.Params.ModValue)
		if g == oldGroup {
			keep = append(keep, r)
		} else {
			move = append(move, r)
		}
	}

	if _, err := f.writeGroupChain(oldGroup, blocks, keep); err != nil {
		return
	}
	newBlocks := []chainBlockRef{{PrimarySubfile, newGroup}}
	_, _ = f.writeGroupChain(newGroup, newBlocks, move)
}
