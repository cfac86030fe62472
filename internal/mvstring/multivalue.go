package mvstring

import "github.com/scarletdme/qmcore/internal/descriptor"

// Element is one parallel slice of a multi-value fold: the raw bytes up to
// (but not including) the mark that ended it, and that mark's rank (-1 if
// the element ran to the end of the operand with no terminating mark).
type Element struct {
	Data     []byte
	MarkRank int
}

// cursor walks one operand's marks left to right, yielding elements.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) done() bool { return c.pos >= len(c.data) }

func (c *cursor) next() Element {
	start := c.pos
	for c.pos < len(c.data) {
		if descriptor.IsMark(c.data[c.pos]) {
			el := Element{Data: c.data[start:c.pos], MarkRank: descriptor.MarkRank(c.data[c.pos])}
			c.pos++
			return el
		}
		c.pos++
	}
	return Element{Data: c.data[start:c.pos], MarkRank: -1}
}

// Fold drives a scalar binary/unary op once per parallel element across one
// or more mark-partitioned operands (MVD/MVDD/MVDS/MVDSS/MVDSSS/IFS,
// "multi-value fold"), grounded on op_mvfun.c's multivalue dispatch.
//
// op is applied to the per-iteration scalar slices (one per operand,
// matching len(operands)); reuse[i] selects DF_REUSE semantics for operand
// i (its last value repeats when that operand runs out before the others;
// when false, a default stands in once the operand is exhausted). The
// result delimiter emitted after each iteration is the minimum-rank
// (lowest-precedence) ending mark across all operands that still had data
// this round; trailing marks are omitted after the final iteration.
func Fold(operands [][]byte, reuse []bool, def []byte, op func(vals [][]byte) []byte) []byte {
	n := len(operands)
	cursors := make([]*cursor, n)
	last := make([][]byte, n)
	exhausted := make([]bool, n)
	for i, o := range operands {
		cursors[i] = &cursor{data: o}
		last[i] = def
	}

	var out []byte
	first := true
	for {
		allDone := true
		for i := range cursors {
			if !cursors[i].done() {
				allDone = false
			}
		}
		if allDone {
			break
		}

		vals := make([][]byte, n)
		minRank := -2
		any := false
		for i, c := range cursors {
			if c.done() {
				if reuse[i] {
					vals[i] = last[i]
				} else {
					vals[i] = def
				}
				continue
			}
			el := c.next()
			vals[i] = el.Data
			last[i] = el.Data
			any = true
			if minRank == -2 || (el.MarkRank >= 0 && el.MarkRank < minRank) || minRank < 0 {
				if el.MarkRank >= 0 {
					minRank = el.MarkRank
				}
			}
		}
		if !any {
			break
		}

		if !first {
			// Delimiter was appended after the previous element; nothing
			// to do here, kept for clarity of the fold structure.
		}
		first = false

		result := op(vals)
		out = append(out, result...)

		stillMore := false
		for _, c := range cursors {
			if !c.done() {
				stillMore = true
			}
		}
		if stillMore {
			out = append(out, markForRank(minRank))
		}
	}
	return out
}

func markForRank(rank int) byte {
	switch rank {
	case 3:
		return descriptor.FieldMark
	case 2:
		return descriptor.ValueMark
	case 1:
		return descriptor.SubvalueMark
	default:
		return descriptor.ValueMark
	}
}

// MVD folds a binary scalar op across the values of a single dynamic array
// (MVD form: one multi-valued operand, one scalar).
func MVD(a []byte, b []byte, reuseB bool, op func(x, y []byte) []byte) []byte {
	return Fold([][]byte{a, b}, []bool{false, reuseB}, nil, func(vals [][]byte) []byte {
		return op(vals[0], vals[1])
	})
}

// MVDD folds a binary scalar op across both operands' values in parallel
// (MVDD form: two multi-valued operands).
func MVDD(a, b []byte, reuseA, reuseB bool, op func(x, y []byte) []byte) []byte {
	return Fold([][]byte{a, b}, []bool{reuseA, reuseB}, nil, func(vals [][]byte) []byte {
		return op(vals[0], vals[1])
	})
}
