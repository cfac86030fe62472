package mvstring

import "github.com/scarletdme/qmcore/internal/descriptor"

// tokenKind classifies one parsed template component, grounded on op_str2.c's match_template state machine.
type tokenKind int

const (
	tokLiteral tokenKind = iota
	tokAlpha             // nA
	tokNumeric           // nN
	tokAny               // nX, "..."
)

type token struct {
	kind       tokenKind
	min, max   int  // both -1 means "exactly min" when min==max; max<0 means unbounded
	complement bool // "~" prefix: complement of the class
	literal    []byte
}

// Match tests src against a VALUE_MARK-delimited set of alternative
// templates, each composed per parseTemplate. Returns true if src matches
// any alternative.
func Match(src []byte, template []byte) bool {
	for _, alt := range splitByMark(template, descriptor.ValueMark) {
		toks := parseTemplate(alt)
		if matchTokens(src, toks) {
			return true
		}
	}
	return false
}

// MatchField returns the k-th (1-origin) captured component of the first
// matching alternative, or (nil, false) if no alternative matches.
func MatchField(src []byte, template []byte, k int) ([]byte, bool) {
	for _, alt := range splitByMark(template, descriptor.ValueMark) {
		toks := parseTemplate(alt)
		if caps, ok := captureTokens(src, toks); ok {
			idx := k - 1
			if idx < 0 || idx >= len(caps) {
				return nil, false
			}
			return caps[idx], true
		}
	}
	return nil, false
}

// parseTemplate tokenizes one template alternative: literal runs, nA/nN/nX,
// n-mX ranges, "~" complement prefix and "..." as an alias for 0X, and
// single- or double-quoted literals.
func parseTemplate(s []byte) []token {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			q := c
			j := i + 1
			for j < len(s) && s[j] != q {
				j++
			}
			toks = append(toks, token{kind: tokLiteral, literal: append([]byte{}, s[i+1:j]...)})
			i = j + 1

		case c == '.' && i+2 < len(s) && s[i+1] == '.' && s[i+2] == '.':
			toks = append(toks, token{kind: tokAny, min: 0, max: -1})
			i += 3

		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			lo := atoiBytes(s[i:j])
			hi := lo
			hasRange := false
			if j < len(s) && s[j] == '-' {
				j++
				k := j
				for k < len(s) && s[k] >= '0' && s[k] <= '9' {
					k++
				}
				hi = atoiBytes(s[j:k])
				j = k
				hasRange = true
			}
			complement := false
			if j < len(s) && s[j] == '~' {
				complement = true
				j++
			}
			if j >= len(s) {
				toks = append(toks, token{kind: tokLiteral, literal: append([]byte{}, s[i:j]...)})
				i = j
				continue
			}
			kind := tokAny
			switch s[j] {
			case 'A', 'a':
				kind = tokAlpha
			case 'N', 'n':
				kind = tokNumeric
			case 'X', 'x':
				kind = tokAny
			default:
				toks = append(toks, token{kind: tokLiteral, literal: append([]byte{}, s[i:j+1]...)})
				i = j + 1
				continue
			}
			switch {
			case !hasRange && lo == 0:
				// "0N" etc: zero or more, greedy with backtracking.
				toks = append(toks, token{kind: kind, min: 0, max: -1, complement: complement})
			case !hasRange:
				toks = append(toks, token{kind: kind, min: lo, max: lo, complement: complement})
			default:
				toks = append(toks, token{kind: kind, min: lo, max: hi, complement: complement})
			}
			i = j + 1

		default:
			j := i
			for j < len(s) && !isTemplateSpecial(s[j]) {
				j++
			}
			if j == i {
				j++
			}
			toks = append(toks, token{kind: tokLiteral, literal: append([]byte{}, s[i:j]...)})
			i = j
		}
	}
	return toks
}

func isTemplateSpecial(c byte) bool {
	return (c >= '0' && c <= '9') || c == '\'' || c == '"' || c == '.'
}

func atoiBytes(b []byte) int {
	n := 0
	for _, c := range b {
		n = n*10 + int(c-'0')
	}
	return n
}

func classOf(t token) func(byte) bool {
	var base func(byte) bool
	switch t.kind {
	case tokAlpha:
		base = isAlpha
	case tokNumeric:
		base = isDigit
	default:
		base = func(byte) bool { return true }
	}
	if !t.complement {
		return base
	}
	return func(b byte) bool { return !base(b) }
}

func isAlpha(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// matchTokens drives the greedy-with-backtracking template matcher: for
// a variable-count token (min==0 or min!=max) try the maximal match first,
// decrementing on failure of the remainder.
func matchTokens(s []byte, toks []token) bool {
	_, ok := matchFrom(s, toks, nil)
	return ok
}

func captureTokens(s []byte, toks []token) ([][]byte, bool) {
	return matchFrom(s, toks, [][]byte{})
}

func matchFrom(s []byte, toks []token, caps [][]byte) ([][]byte, bool) {
	if len(toks) == 0 {
		if len(s) == 0 {
			return caps, true
		}
		return nil, false
	}
	t := toks[0]
	rest := toks[1:]

	if t.kind == tokLiteral {
		if len(s) < len(t.literal) {
			return nil, false
		}
		for i, c := range t.literal {
			if s[i] != c {
				return nil, false
			}
		}
		nc := appendCap(caps, t.literal)
		return matchFrom(s[len(t.literal):], rest, nc)
	}

	max := t.max
	if max < 0 || max > len(s) {
		max = len(s)
	}
	min := t.min

	cls := classOf(t)
	// Determine the longest class-run available.
	longest := 0
	for longest < max && cls(s[longest]) {
		longest++
	}
	if longest < min {
		return nil, false
	}

	for n := longest; n >= min; n-- {
		nc := appendCap(caps, s[:n])
		if out, ok := matchFrom(s[n:], rest, nc); ok {
			return out, true
		}
	}
	return nil, false
}

func appendCap(caps [][]byte, b []byte) [][]byte {
	if caps == nil {
		return nil
	}
	out := make([][]byte, len(caps), len(caps)+1)
	copy(out, caps)
	return append(out, b)
}
