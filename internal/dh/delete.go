package dh

// Delete implements dh_delete: symmetric to Write — locate the
// record's group, reclaim its space (and big-record chain if any), and
// repack the chain without it. akKeys supplies the record's former I-type
// key per AK index so the matching (key, id) pairs can be removed.
func (f *File) Delete(id []byte, akKeys map[int]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	nocase := f.header.Flags&FlagNoCase != 0
	group := f.header.Params.HashGroup(id)

	recs, blocks, err := f.readGroupChain(group)
	if err != nil {
		return err
	}

	idx := -1
	for i, r := range recs {
		if int(r.IDLen) == len(id) && idsMatch(r.ID, id, nocase) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return wrapErr("dh_delete", ErrRecordNotFound)
	}

	if recs[idx].Flags&RecBigRec != 0 {
		if err := f.freeBigRecord(recs[idx].DataLen); err != nil {
			return err
		}
	}
	recs = append(recs[:idx], recs[idx+1:]...)

	if _, err := f.writeGroupChain(group, blocks, recs); err != nil {
		return err
	}

	if f.header.RecordCount > 0 {
		f.header.RecordCount--
	}
	f.header.Flags |= FlagFSync

	if len(f.aks) > 0 && akKeys != nil {
		if err := f.akUpdate(string(id), akKeys, nil); err != nil {
			return err
		}
	}

	f.maybeMerge()
	return nil
}

// maybeMerge is the symmetric counterpart to maybeSplit: the highest group is
// folded back into its sibling and linear-hash growth retreats one step.
func (f *File) maybeMerge() {
	if f.header.Params.MergeLoad <= 0 || !f.header.Params.ShouldMerge() {
		return
	}
	surviving, retiring := f.header.Params.RetreatMerge()

	survivingRecs, survivingBlocks, err := f.readGroupChain(surviving)
	if err != nil {
		return
	}
	retiringRecs, retiringBlocks, err := f.readGroupChain(retiring)
	if err != nil {
		return
	}

	merged := append(survivingRecs, retiringRecs...)
	if _, err := f.writeGroupChain(surviving, survivingBlocks, merged); err != nil {
		return
	}
	for _, ref := range retiringBlocks {
		if ref.kind == OverflowSubfile {
			_ = f.freeOverflowBlock(ref.grp)
		}
	}
}
