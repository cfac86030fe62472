// Package mvstring implements the mark-delimited string algorithms that
// operate on dynamic arrays: locate, extract, replace, insert, delete,
// template match and the multi-value fold pipeline. All
// functions here treat a dynamic array as a plain []byte and return new
// []byte values; the refcounted chunk-chain form lives in
// internal/descriptor, and descriptor.Bytes and descriptor.NewFromBytes
// convert between the two.
package mvstring

import "github.com/scarletdme/qmcore/internal/descriptor"

// Position is a 1-origin (field, value, subvalue) coordinate.
type Position struct {
	Field, Value, Subvalue int32
}

// normalizePos fills in zero components the way the engine does before
// walking the string: <n,0,0> targets the start of a field, <n,n,0> the
// start of a value (the "(1,1,1) special case" generalizes to any
// coordinate with a zero tail).
func normalizePos(pos Position) Position {
	out := pos
	if out.Field == 0 {
		out.Field = 1
	}
	if out.Value == 0 {
		out.Value = 1
	}
	if out.Subvalue == 0 {
		out.Subvalue = 1
	}
	return out
}

// FindItem locates the first byte of the item at pos within s, returning
// its byte offset and whether the item exists. Ported from find_item() in
// gplsrc/op_str2.c. Position (1,1,1) is special-cased for empty strings.
//
// hint, when non-nil, is consulted and updated the way the head chunk's
// (field, offset) hint accelerates repeated positional access; callers
// that don't need the optimization may pass nil.
func FindItem(s []byte, pos Position, hint *Hint) (offset int, found bool) {
	pos = normalizePos(pos)
	field, value, subvalue := pos.Field, pos.Value, pos.Subvalue

	if field == 1 && value == 1 && subvalue == 1 {
		if hint != nil {
			hint.Field = 1
			hint.Offset = 0
			hint.Valid = true
		}
		return 0, true
	}
	if len(s) == 0 {
		return 0, false
	}

	start := 0
	f := int32(1)
	if hint != nil && hint.Valid && hint.Field != 0 && hint.Field <= field {
		f = hint.Field
		start = int(hint.Offset)
		if start > len(s) {
			return 0, false
		}
	}

	p := start
	v := int32(1)
	sv := int32(1)

	if f < field {
		for p < len(s) {
			if s[p] == descriptor.FieldMark {
				f++
				p++
				if f == field {
					break
				}
				continue
			}
			p++
		}
		if f != field {
			return 0, false
		}
	}

	newHintOffset := p
	if value == v && subvalue == 1 {
		if hint != nil {
			hint.Field = field
			hint.Offset = int32(newHintOffset)
			hint.Valid = true
		}
		return p, true
	}

	for p < len(s) {
		c := s[p]
		switch c {
		case descriptor.FieldMark:
			return 0, false
		case descriptor.ValueMark:
			v++
			sv = 1
			if v > value {
				return 0, false
			}
		case descriptor.SubvalueMark:
			sv++
		}
		p++
		if v == value && sv == subvalue {
			if hint != nil {
				hint.Field = field
				hint.Offset = int32(newHintOffset)
				hint.Valid = true
			}
			return p, true
		}
	}
	return 0, false
}

// Hint mirrors the head chunk's (field, offset) positional-access
// accelerator.
type Hint struct {
	Field  int32
	Offset int32
	Valid  bool
}

// itemEnd returns the offset one past the end of the item starting at
// start, and the rank of the mark that terminated it (-1 if the item runs
// to the end of s). endLevel bounds how coarse a mark may terminate the
// item: 3 for field-level extraction, 2 for value-level, 1 for
// subvalue-level.
func itemEnd(s []byte, start int, endLevel int) (end int, markRank int) {
	for i := start; i < len(s); i++ {
		if descriptor.IsMark(s[i]) {
			rank := descriptor.MarkRank(s[i])
			if rank >= endLevel || s[i] == descriptor.FieldMark {
				return i, rank
			}
		}
	}
	return len(s), -1
}

// Extract returns the bytes of the item at pos, and whether it exists
// (EXTRACT).
func Extract(s []byte, pos Position) ([]byte, bool) {
	start, found := FindItem(s, pos, nil)
	if !found {
		return nil, false
	}
	level := levelOf(pos)
	end, _ := itemEnd(s, start, level)
	return s[start:end], true
}

func levelOf(pos Position) int {
	switch {
	case pos.Value == 0:
		return 3
	case pos.Subvalue == 0:
		return 2
	default:
		return 1
	}
}

// Field implements FIELD(s, delim, n, [count]): splits s on a (possibly
// multi-byte) delimiter string and returns the n-th component (1-origin).
func Field(s []byte, delim []byte, n int, count int) []byte {
	if n < 1 || len(delim) == 0 {
		return nil
	}
	if count < 1 {
		count = 1
	}
	parts := splitAll(s, delim)
	start := n - 1
	end := start + count
	if start < 0 || start >= len(parts) {
		return nil
	}
	if end > len(parts) {
		end = len(parts)
	}
	out := parts[start]
	for i := start + 1; i < end; i++ {
		out = append(append(append([]byte{}, out...), delim...), parts[i]...)
	}
	return out
}

func splitAll(s, delim []byte) [][]byte {
	var parts [][]byte
	for {
		idx := indexBytes(s, delim)
		if idx < 0 {
			parts = append(parts, s)
			return parts
		}
		parts = append(parts, s[:idx])
		s = s[idx+len(delim):]
	}
}

func indexBytes(s, sub []byte) int {
	if len(sub) == 0 || len(sub) > len(s) {
		return -1
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Count counts the delimiter-separated components of s at the given mark
// level (COUNT counts fields bounded by fieldMark-equivalent delimiters;
// DCOUNT additionally treats an empty string as zero components). delim is
// matched literally (COUNT(s, delim) form); with an empty delim a non-empty
// s counts as one component.
func Count(s []byte, delim []byte, dcount bool) int {
	if len(s) == 0 {
		if dcount {
			return 0
		}
		return 1
	}
	if len(delim) == 0 {
		return 1
	}
	n := 1
	for i := 0; i+len(delim) <= len(s); i++ {
		match := true
		for j := range delim {
			if s[i+j] != delim[j] {
				match = false
				break
			}
		}
		if match {
			n++
			i += len(delim) - 1
		}
	}
	return n
}

// DCount is Count with the dcount=true semantics applied directly to a
// mark-delimited field (used by the DCOUNT opcode against VALUE_MARK /
// SUBVALUE_MARK boundaries).
func DCount(s []byte, mark byte) int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, c := range s {
		if c == mark {
			n++
		}
	}
	return n
}

// Index implements INDEX(s, substring, occurrence): 1-origin byte offset of
// the n-th occurrence of substring in s, or 0 if not found.
func Index(s, substr []byte, occurrence int) int {
	if occurrence < 1 || len(substr) == 0 {
		return 0
	}
	pos := 0
	found := 0
	for {
		idx := indexBytes(s[pos:], substr)
		if idx < 0 {
			return 0
		}
		found++
		abs := pos + idx
		if found == occurrence {
			return abs + 1
		}
		pos = abs + 1
	}
}
