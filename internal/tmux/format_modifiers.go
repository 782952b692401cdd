package tmux

import "strings"

// formatModifier is one parsed ';'-separated modifier of a #{...} body.
type formatModifier struct {
	op   string
	argv []string
}

// argHas reports whether argument idx exists and contains any of chars.
func (fm *formatModifier) argHas(idx int, chars string) bool {
	return idx < len(fm.argv) && strings.ContainsAny(fm.argv[idx], chars)
}

const (
	bareModifiers     = "labcdnwETSWPL<>"
	argumentModifiers = "mCNst=peq"
)

var twoCharModifiers = []string{"||", "&&", "!=", "==", "<=", ">="}

func isModifierEnd(s string, i int) bool {
	return i < len(s) && (s[i] == ';' || s[i] == ':')
}

// isPunct matches ispunct(3) in the C locale.
func isPunct(c byte) bool {
	return c > ' ' && c < 0x7f &&
		!(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z')
}

// buildModifiers parses the modifier prefix of a placeholder body up to and
// including the ':' that ends it. Arguments are expanded as they are
// captured. ok is false when s has no well-formed modifier prefix, in which
// case the body is treated as a plain key.
func (es *expandState) buildModifiers(s string) (list []formatModifier, rest string, ok bool) {
	cp := 0
	for cp < len(s) && s[cp] != ':' {
		if s[cp] == ';' {
			cp++
			if cp >= len(s) {
				break
			}
		}

		if strings.IndexByte(bareModifiers, s[cp]) != -1 && isModifierEnd(s, cp+1) {
			list = append(list, formatModifier{op: s[cp : cp+1]})
			cp++
			continue
		}

		if cp+2 <= len(s) && isModifierEnd(s, cp+2) && isTwoCharModifier(s[cp:cp+2]) {
			list = append(list, formatModifier{op: s[cp : cp+2]})
			cp += 2
			continue
		}

		if strings.IndexByte(argumentModifiers, s[cp]) == -1 {
			break
		}
		op := s[cp : cp+1]

		if isModifierEnd(s, cp+1) {
			list = append(list, formatModifier{op: op})
			cp++
			continue
		}
		if cp+1 >= len(s) {
			break
		}

		// Single argument with no wrapper character.
		if !isPunct(s[cp+1]) || s[cp+1] == '-' {
			end := formatSkip(s[cp+1:], ":;")
			if end == -1 {
				break
			}
			end += cp + 1
			list = append(list, formatModifier{op: op, argv: []string{es.expand1(s[cp+1 : end])}})
			cp = end
			continue
		}

		// Multiple arguments separated by a wrapper character.
		last := s[cp+1]
		cp++
		var argv []string
		for {
			if s[cp] == last && isModifierEnd(s, cp+1) {
				cp++
				break
			}
			end := formatSkip(s[cp+1:], string(last)+";:")
			if end == -1 {
				break
			}
			end += cp + 1
			argv = append(argv, es.expand1(s[cp+1:end]))
			cp = end
			if isModifierEnd(s, cp) {
				break
			}
		}
		list = append(list, formatModifier{op: op, argv: argv})
	}
	if cp >= len(s) || s[cp] != ':' {
		return nil, s, false
	}
	return list, s[cp+1:], true
}

func isTwoCharModifier(s string) bool {
	for _, m := range twoCharModifiers {
		if s == m {
			return true
		}
	}
	return false
}
