package mvstring

import "github.com/scarletdme/qmcore/internal/descriptor"

// Order selects LOCATE's ordering code: ascending or
// descending, left- or right-justified. An empty Order means unordered
// (linear) search.
type Order string

const (
	OrderNone       Order = ""
	AscendingLeft   Order = "AL"
	AscendingRight  Order = "AR"
	DescendingLeft  Order = "DL"
	DescendingRight Order = "DR"
)

// Depth selects which mark level LOCATE walks: fields, values within a
// field, or subvalues within a value.
type Depth int

const (
	DepthField Depth = iota
	DepthValue
	DepthSubvalue
)

// LocateResult is the outcome of Locate: Position is 1-origin (the slot
// where the item was found, or where it should be inserted to preserve
// order for an ordered search).
type LocateResult struct {
	Found    bool
	Position int32
}

// Locate searches s for needle within the chosen depth, starting at
// startPos (the (field[,value]) coordinate scoping the search — e.g. for
// DepthValue, startPos.Field selects which field's values are scanned).
// Grounded on locate() in gplsrc/op_locat.c.
func Locate(s []byte, needle []byte, depth Depth, startPos Position, order Order, fltDiff float64, nocase bool) LocateResult {
	items := splitAtDepth(s, depth, startPos)

	if order == OrderNone {
		for i, it := range items {
			if bytesEqual(it, needle, nocase) {
				return LocateResult{Found: true, Position: int32(i + 1)}
			}
		}
		return LocateResult{Found: false, Position: int32(len(items) + 1)}
	}

	descending := order == DescendingLeft || order == DescendingRight
	right := order == AscendingRight || order == DescendingRight

	for i, it := range items {
		cmp := compareOrdered(it, needle, right, fltDiff, nocase)
		if cmp == 0 {
			return LocateResult{Found: true, Position: int32(i + 1)}
		}
		// Ascending: stop once the sequence has passed needle (it > needle).
		// Descending: stop once the sequence has dropped below needle.
		if (!descending && cmp > 0) || (descending && cmp < 0) {
			return LocateResult{Found: false, Position: int32(i + 1)}
		}
	}
	return LocateResult{Found: false, Position: int32(len(items) + 1)}
}

func bytesEqual(a, b []byte, nocase bool) bool {
	if !nocase {
		return string(a) == string(b)
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'a' <= ca && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if 'a' <= cb && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// compareOrdered compares item to needle under LOCATE's AR/AL rules:
// right-justified ordering triggers numeric comparison when both operands
// parse as numbers, otherwise pads the shorter operand with leading spaces
func compareOrdered(item, needle []byte, right bool, fltDiff float64, nocase bool) int {
	if right {
		ni, iok := descriptor.ParseNumber(string(item))
		nn, nok := descriptor.ParseNumber(string(needle))
		if iok && nok {
			return descriptor.NumericCompare(ni, nn, fltDiff)
		}
		return compareBytesPadded(item, needle, nocase)
	}
	return compareBytesPlain(item, needle, nocase)
}

func compareBytesPadded(a, b []byte, nocase bool) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	pa := padLeft(a, n)
	pb := padLeft(b, n)
	return compareBytesPlain(pa, pb, nocase)
}

func padLeft(s []byte, n int) []byte {
	if len(s) >= n {
		return s
	}
	out := make([]byte, n-len(s), n)
	for i := range out {
		out[i] = ' '
	}
	return append(out, s...)
}

func compareBytesPlain(a, b []byte, nocase bool) int {
	x, y := a, b
	if nocase {
		x = toUpperBytes(a)
		y = toUpperBytes(b)
	}
	for i := 0; i < len(x) && i < len(y); i++ {
		if x[i] != y[i] {
			if x[i] < y[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(x) < len(y):
		return -1
	case len(x) > len(y):
		return 1
	default:
		return 0
	}
}

func toUpperBytes(s []byte) []byte {
	out := make([]byte, len(s))
	for i, c := range s {
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

// splitAtDepth returns the list of items at the requested depth, scoped by
// startPos the way op_locat.c narrows the scan to a single field (for
// DepthValue/DepthSubvalue) before walking.
func splitAtDepth(s []byte, depth Depth, startPos Position) [][]byte {
	switch depth {
	case DepthField:
		return splitByMark(s, descriptor.FieldMark)
	case DepthValue:
		field, ok := fieldSlice(s, startPos.Field)
		if !ok {
			return nil
		}
		return splitByMark(field, descriptor.ValueMark)
	default: // DepthSubvalue
		field, ok := fieldSlice(s, startPos.Field)
		if !ok {
			return nil
		}
		values := splitByMark(field, descriptor.ValueMark)
		idx := int(startPos.Value) - 1
		if idx < 0 || idx >= len(values) {
			return nil
		}
		return splitByMark(values[idx], descriptor.SubvalueMark)
	}
}

func fieldSlice(s []byte, n int32) ([]byte, bool) {
	fields := splitByMark(s, descriptor.FieldMark)
	idx := int(n) - 1
	if n < 1 || idx >= len(fields) {
		return nil, false
	}
	return fields[idx], true
}

func splitByMark(s []byte, mark byte) [][]byte {
	var parts [][]byte
	start := 0
	for i, c := range s {
		if c == mark {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
