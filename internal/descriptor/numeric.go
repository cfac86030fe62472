package descriptor

import (
	"math"
	"strconv"
	"strings"
)

// Number is the result of a coercion or arithmetic op: exactly one of IsInt
// or !IsInt (float) holds, mirroring the INTEGER/FLOATNUM promotion rule.
type Number struct {
	IsInt bool
	Int   int32
	Flt   float64
}

func IntNumber(v int32) Number  { return Number{IsInt: true, Int: v} }
func FltNumber(v float64) Number { return Number{IsInt: false, Flt: v} }

// Float returns n as a float64 regardless of representation.
func (n Number) Float() float64 {
	if n.IsInt {
		return float64(n.Int)
	}
	return n.Flt
}

// AddInt32 adds a and b, promoting to float on signed overflow exactly as
// op_add() does in gplsrc/op_arith.c: overflow is detected by operand-sign
// equality combined with a result-sign flip.
func AddInt32(a, b int32) Number {
	sum := a + b
	if ((a ^ b) >= 0) && ((a ^ sum) < 0) {
		return FltNumber(float64(a) + float64(b))
	}
	return IntNumber(sum)
}

// SubInt32 subtracts b from a with the same overflow-promotion discipline.
func SubInt32(a, b int32) Number {
	diff := a - b
	if ((a ^ b) < 0) && ((a ^ diff) < 0) {
		return FltNumber(float64(a) - float64(b))
	}
	return IntNumber(diff)
}

// MulInt32 multiplies a and b, promoting to float on overflow, detected by
// the reverse-division check.
func MulInt32(a, b int32) Number {
	if a == 0 || b == 0 {
		return IntNumber(0)
	}
	product := a * b
	if product/b != a {
		return FltNumber(float64(a) * float64(b))
	}
	return IntNumber(product)
}

// DecInt32 decrements a, promoting to float on underflow past math.MinInt32
func DecInt32(a int32) Number {
	if a == math.MinInt32 {
		return FltNumber(float64(math.MinInt32) - 1)
	}
	return IntNumber(a - 1)
}

// IncInt32 increments a, promoting to float on overflow past math.MaxInt32.
func IncInt32(a int32) Number {
	if a == math.MaxInt32 {
		return FltNumber(float64(math.MaxInt32) + 1)
	}
	return IntNumber(a + 1)
}

// FloatToInt converts f to an int32 using the configured integer precision:
// f is moved 0.5*10^-n away from zero, where n is intprec (0..14), then
// truncated toward zero and clamped to the int32 range.
func FloatToInt(f float64, intprec int) int32 {
	if intprec >= 0 && intprec <= 14 {
		rounding := 0.5
		for i := 0; i < intprec; i++ {
			rounding /= 10
		}
		if f >= 0 {
			f += rounding
		} else {
			f -= rounding
		}
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int32(f)
}

// FloatToString converts a number to its display form using intprec digits
// of precision, stripping trailing zeros and a trailing decimal point
func FloatToString(f float64, intprec int) string {
	s := strconv.FormatFloat(f, 'f', intprec, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-" {
		s = "0"
	}
	return s
}

// IntToString converts an integer to its display form (no rounding needed).
func IntToString(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}

// NumberToString renders a Number the way the interpreter stringifies a
// numeric descriptor: integers print exactly, floats use
// intprec and strip trailing zeros/point.
func NumberToString(n Number, intprec int) string {
	if n.IsInt {
		return IntToString(n.Int)
	}
	return FloatToString(n.Flt, intprec)
}

// ParseNumber is the hand-rolled scanner matching gplsrc's
// k_str_to_num: accepts optional sign, decimal point, and leading/trailing
// (but not embedded) spaces; multiple adjacent signs are rejected. Silently
// promotes to float on 32-bit overflow. ok is false for non-numeric input.
func ParseNumber(s string) (n Number, ok bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Number{}, false
	}
	// Reject embedded whitespace (leading/trailing already trimmed).
	if strings.ContainsAny(trimmed, " \t\n\r") {
		return Number{}, false
	}

	i := 0
	if trimmed[i] == '+' || trimmed[i] == '-' {
		i++
		// Multiple adjacent signs are rejected.
		if i < len(trimmed) && (trimmed[i] == '+' || trimmed[i] == '-') {
			return Number{}, false
		}
	}
	if i >= len(trimmed) {
		return Number{}, false
	}

	digitsSeen := false
	dotSeen := false
	for _, c := range trimmed[i:] {
		switch {
		case c >= '0' && c <= '9':
			digitsSeen = true
		case c == '.' && !dotSeen:
			dotSeen = true
		default:
			return Number{}, false
		}
	}
	if !digitsSeen {
		return Number{}, false
	}

	if !dotSeen {
		iv, err := strconv.ParseInt(trimmed, 10, 64)
		if err == nil && iv >= math.MinInt32 && iv <= math.MaxInt32 {
			return IntNumber(int32(iv)), true
		}
		// 32-bit overflow: silently promote to float.
		fv, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return Number{}, false
		}
		return FltNumber(fv), true
	}

	fv, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return Number{}, false
	}
	return FltNumber(fv), true
}

// IsNum tests s for numeric validity without mutating anything (k_is_num).
func IsNum(s string) bool {
	_, ok := ParseNumber(s)
	return ok
}

const defaultFltDiff = 2.91e-11

// NumericEqual compares two numbers within fltdiff tolerance.
func NumericEqual(a, b Number, fltDiff float64) bool {
	if fltDiff <= 0 {
		fltDiff = defaultFltDiff
	}
	if a.IsInt && b.IsInt {
		return a.Int == b.Int
	}
	af, bf := a.Float(), b.Float()
	diff := af - bf
	if diff < 0 {
		diff = -diff
	}
	denom := af
	if denom < 0 {
		denom = -denom
	}
	if denom < 1 {
		denom = 1
	}
	return diff/denom <= fltDiff
}

// NumericCompare returns -1, 0, 1 comparing a to b within fltdiff tolerance.
func NumericCompare(a, b Number, fltDiff float64) int {
	if NumericEqual(a, b, fltDiff) {
		return 0
	}
	if a.Float() < b.Float() {
		return -1
	}
	return 1
}

// CompareValues compares two string operands. If both parse as numbers,
// compares numerically within fltdiff tolerance; otherwise compares as
// bytes, case-insensitively if nocase is set.
func CompareValues(a, b string, fltDiff float64, nocase bool) int {
	na, aok := ParseNumber(a)
	nb, bok := ParseNumber(b)
	if aok && bok {
		return NumericCompare(na, nb, fltDiff)
	}
	x, y := a, b
	if nocase {
		x, y = strings.ToUpper(x), strings.ToUpper(y)
	}
	return strings.Compare(x, y)
}
