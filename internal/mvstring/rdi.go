package mvstring

import (
	"bytes"

	"github.com/scarletdme/qmcore/internal/descriptor"
)

// Mode selects which of replace/delete/insert Rdi performs.
type Mode int

const (
	ModeReplace Mode = iota
	ModeDelete
	ModeInsert
)

// level returns the mark-rank boundary for pos: 3 (field), 2 (value) or 1
// (subvalue), matching the <n,0,0>/<n,n,0>/<n,n,n> cases of gplsrc's rdi().
func level(pos Position) int {
	switch {
	case pos.Value == 0:
		return 3
	case pos.Subvalue == 0:
		return 2
	default:
		return 1
	}
}

func markForLevel(lvl int) byte {
	switch lvl {
	case 3:
		return descriptor.FieldMark
	case 2:
		return descriptor.ValueMark
	default:
		return descriptor.SubvalueMark
	}
}

// Rdi is the single logical operation driving REPLACE, DELETE and INSERT
// against a dynamic array,
// grounded on rdi() in gplsrc/op_str2.c. A negative Field, Value or
// Subvalue in pos means "append a new field/value/subvalue" (spec:
// "Field-negative, value-negative, and subvalue-negative arguments mean
// 'append'"); compatible selects the $MODE COMPATIBLE.APPEND mark
// suppression.
func Rdi(src []byte, pos Position, mode Mode, newData []byte, compatible bool) []byte {
	lvl := level(pos)
	mark := markForLevel(lvl)

	if pos.Field < 0 || pos.Value < 0 || pos.Subvalue < 0 {
		return rdiAppend(src, pos, lvl, mark, mode, newData, compatible)
	}

	start, found := FindItem(src, normalizePos(pos), nil)
	if !found {
		return rdiInsertPadded(src, pos, lvl, mode, newData)
	}

	end, _ := itemEnd(src, start, lvl)

	switch mode {
	case ModeInsert:
		var out bytes.Buffer
		out.Write(src[:start])
		out.Write(newData)
		if start < len(src) && (!descriptor.IsMark(src[start]) || src[start] <= mark) {
			out.WriteByte(mark)
		}
		out.Write(src[start:])
		return out.Bytes()

	case ModeReplace:
		var out bytes.Buffer
		out.Write(src[:start])
		out.Write(newData)
		out.Write(src[end:])
		return out.Bytes()

	case ModeDelete:
		return deleteRange(src, start, end)

	default:
		return src
	}
}

// deleteRange removes src[start:end] plus one adjacent mark, preferring the
// preceding mark so an empty slot isn't left behind.
func deleteRange(src []byte, start, end int) []byte {
	if start > 0 && descriptor.IsMark(src[start-1]) {
		start--
	} else if end < len(src) && descriptor.IsMark(src[end]) {
		end++
	}
	out := make([]byte, 0, len(src)-(end-start))
	out = append(out, src[:start]...)
	out = append(out, src[end:]...)
	return out
}

// rdiInsertPadded handles REPLACE/INSERT at a position that does not yet
// exist in src: marks are synthesized to reach the target depth (spec:
// "if the source doesn't yet reach it, emit the appropriate mark").
func rdiInsertPadded(src []byte, pos Position, lvl int, mode Mode, newData []byte) []byte {
	if mode == ModeDelete {
		return src // nothing to delete
	}

	f, v, sv := countDepth(src)
	target := normalizePos(pos)

	var out bytes.Buffer
	out.Write(src)
	for f < target.Field {
		out.WriteByte(descriptor.FieldMark)
		f++
		v, sv = 1, 1
	}
	for v < target.Value {
		out.WriteByte(descriptor.ValueMark)
		v++
		sv = 1
	}
	for sv < target.Subvalue {
		out.WriteByte(descriptor.SubvalueMark)
		sv++
	}
	_ = lvl
	out.Write(newData)
	return out.Bytes()
}

// countDepth returns the (field, value, subvalue) count reached by the end
// of src, i.e. how many of each mark have been seen plus one.
func countDepth(src []byte) (f, v, sv int32) {
	f, v, sv = 1, 1, 1
	for _, c := range src {
		switch c {
		case descriptor.FieldMark:
			f++
			v, sv = 1, 1
		case descriptor.ValueMark:
			v++
			sv = 1
		case descriptor.SubvalueMark:
			sv++
		}
	}
	return
}

// rdiAppend implements the negative-coordinate "append a new
// field/value/subvalue" forms, honoring compatible-append mark suppression
func rdiAppend(src []byte, pos Position, lvl int, mark byte, mode Mode, newData []byte, compatible bool) []byte {
	if mode == ModeDelete {
		return src
	}

	lastChar := byte(0)
	if len(src) > 0 {
		lastChar = src[len(src)-1]
	}

	needMark := len(src) > 0
	if compatible && needMark {
		switch {
		case pos.Field < 0:
			needMark = lastChar != descriptor.FieldMark
		case pos.Value < 0:
			needMark = !(lastChar == descriptor.FieldMark || lastChar == descriptor.ValueMark)
		case pos.Subvalue < 0:
			needMark = !descriptor.IsMark(lastChar)
		}
	} else if needMark {
		switch {
		case pos.Field < 0:
			needMark = lastChar != descriptor.FieldMark
		case pos.Value < 0:
			needMark = lastChar != descriptor.FieldMark && lastChar != descriptor.ValueMark
		case pos.Subvalue < 0:
			needMark = !descriptor.IsMark(lastChar)
		}
	}

	var out bytes.Buffer
	out.Write(src)
	if needMark {
		out.WriteByte(mark)
	}
	out.Write(newData)
	return out.Bytes()
}
