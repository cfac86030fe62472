// Package descriptor implements the tagged-value and string-chunk runtime
// that all storage-layer I/O in qmcore serializes to and from.
package descriptor

// Mark bytes partition a dynamic array. Ordering is FieldMark > ValueMark >
// SubvalueMark > TextMark; only the ordering and disjointness from data
// bytes matter.
const (
	FieldMark    byte = 0xFE
	ValueMark    byte = 0xFD
	SubvalueMark byte = 0xFC
	TextMark     byte = 0xFB
)

// IsMark reports whether b is a reserved delimiter byte: any byte at or
// above TextMark, which covers the four marks and 0xFF.
func IsMark(b byte) bool {
	return b >= TextMark
}

// MarkRank orders marks so that a higher rank means a higher-precedence
// (coarser) delimiter: FieldMark(3) > ValueMark(2) > SubvalueMark(1) >
// TextMark(0). Returns -1 for a non-mark byte.
func MarkRank(b byte) int {
	switch b {
	case FieldMark:
		return 3
	case ValueMark:
		return 2
	case SubvalueMark:
		return 1
	case TextMark:
		return 0
	default:
		return -1
	}
}
