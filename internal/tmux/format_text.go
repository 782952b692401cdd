package tmux

import (
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/gobwas/glob"
)

// formatEscapable are the characters a '#' escapes inside templates.
const formatEscapable = ",#{}:"

// formatShellSpecial are the characters the q modifier backslash-escapes.
const formatShellSpecial = "|&;<>()$`\\\"'*?[# =%"

func isEscapable(c byte) bool {
	return strings.IndexByte(formatEscapable, c) != -1
}

// formatSkip returns the index of the first byte of s in ends that is outside
// any nested #{...}, or -1. '#'-escaped characters are skipped.
func formatSkip(s string, ends string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && i+1 < len(s) && s[i+1] == '{' {
			depth++
		}
		if s[i] == '#' && i+1 < len(s) && isEscapable(s[i+1]) {
			i++
			continue
		}
		if s[i] == '}' {
			depth--
		}
		if depth == 0 && strings.IndexByte(ends, s[i]) != -1 {
			return i
		}
	}
	return -1
}

// formatUnescape removes the '#' from escapes outside nested #{...}.
func formatUnescape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && i+1 < len(s) && s[i+1] == '{' {
			depth++
		}
		if depth == 0 && s[i] == '#' && i+1 < len(s) && isEscapable(s[i+1]) {
			i++
			b.WriteByte(s[i])
			continue
		}
		if s[i] == '}' {
			depth--
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// formatStrip drops escaped characters outside nested #{...} and keeps them
// verbatim inside.
func formatStrip(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && i+1 < len(s) && s[i+1] == '{' {
			depth++
		}
		if s[i] == '#' && i+1 < len(s) && isEscapable(s[i+1]) {
			if depth != 0 {
				b.WriteByte(s[i])
			}
			continue
		}
		if s[i] == '}' {
			depth--
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// formatTrue reports template truthiness: non-empty and not "0".
func formatTrue(s string) bool {
	return s != "" && s != "0"
}

func quoteShell(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(formatShellSpecial, s[i]) != -1 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func quoteStyle(s string) string {
	return strings.ReplaceAll(s, "#", "##")
}

// displayWidth is the terminal column width of s.
func displayWidth(s string) int {
	return runewidth.StringWidth(s)
}

// trimLeft keeps the first limit columns of s.
func trimLeft(s string, limit int) string {
	if displayWidth(s) <= limit {
		return s
	}
	return runewidth.Truncate(s, limit, "")
}

// trimRight keeps the last limit columns of s.
func trimRight(s string, limit int) string {
	width := displayWidth(s)
	if width <= limit {
		return s
	}
	skip := width - limit
	cols := 0
	for i, r := range s {
		if cols >= skip {
			return s[i:]
		}
		cols += runewidth.RuneWidth(r)
	}
	return ""
}

// padLeft right-aligns s in width columns.
func padLeft(s string, width int) string {
	return runewidth.FillLeft(s, width)
}

// padRight left-aligns s in width columns.
func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// globMatch is fnmatch(3) without flags: * ? [...] [!...] and backslash
// escapes, no special case for '/'. casefold lowers both sides.
func globMatch(pattern, text string, casefold bool) bool {
	if casefold {
		pattern, text = strings.ToLower(pattern), strings.ToLower(text)
	}
	g, err := glob.Compile(fnmatchPattern(pattern))
	if err != nil {
		// An unterminated class matches literally, as fnmatch does.
		g, err = glob.Compile(glob.QuoteMeta(pattern))
		if err != nil {
			return pattern == text
		}
	}
	return g.Match(text)
}

// fnmatchPattern rewrites an fnmatch pattern into glob syntax: braces are
// literal outside classes and [^...] negates like [!...].
func fnmatchPattern(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 4)
	inClass := false
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch {
		case ch == '\\' && i+1 < len(pattern):
			b.WriteByte(ch)
			b.WriteByte(pattern[i+1])
			i++
			continue
		case inClass:
			if ch == ']' {
				inClass = false
			}
		case ch == '[':
			inClass = true
			b.WriteByte(ch)
			if i+1 < len(pattern) && pattern[i+1] == '^' {
				b.WriteByte('!')
				i++
			}
			continue
		case ch == '{' || ch == '}':
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// compileRegex compiles an extended regular expression, optionally
// case-insensitive.
func compileRegex(pattern string, icase bool) (*regexp.Regexp, error) {
	if icase {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

// regsub replaces every match of pattern in text with with, expanding \0-\9
// back-references. ok is false when the pattern does not compile.
func regsub(pattern, with, text string, icase bool) (string, bool) {
	re, err := compileRegex(pattern, icase)
	if err != nil {
		return "", false
	}
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, true
	}
	var b strings.Builder
	last := 0
	for _, loc := range matches {
		b.WriteString(text[last:loc[0]])
		expandBackrefs(&b, with, text, loc)
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String(), true
}

func expandBackrefs(b *strings.Builder, with, text string, loc []int) {
	for i := 0; i < len(with); i++ {
		if with[i] == '\\' && i+1 < len(with) && with[i+1] >= '0' && with[i+1] <= '9' {
			n := int(with[i+1] - '0')
			if 2*n+1 < len(loc) && loc[2*n] >= 0 {
				b.WriteString(text[loc[2*n]:loc[2*n+1]])
			}
			i++
			continue
		}
		b.WriteByte(with[i])
	}
}
