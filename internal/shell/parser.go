// Package shell splits tmux-style command text (config files, startup
// commands, `run`) into argument vectors.
package shell

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUnterminatedQuote is returned when a quoted word has no closing quote.
var ErrUnterminatedQuote = errors.New("missing closing quote")

// Command is one parsed command and the line it started on.
type Command struct {
	Line int
	Argv []string
}

// LookupFunc resolves $NAME and ${NAME} references. A nil LookupFunc
// leaves references as written.
type LookupFunc func(name string) (string, bool)

type parser struct {
	src    string
	pos    int
	line   int
	lookup LookupFunc

	cmds []Command
	argv []string
	// start is the line the pending command began on.
	start int
}

// Parse splits src into commands. Commands end at a newline or an unquoted
// ";" word; "\;" is a literal semicolon. A "#" at the start of a word,
// unless it opens "#{", comments out the rest of the line. A backslash
// before a newline joins lines. Single quotes are literal; double quotes
// allow \" \\ \$ and variable references.
func Parse(src string, lookup LookupFunc) ([]Command, error) {
	p := &parser{src: src, line: 1, lookup: lookup}
	if err := p.run(); err != nil {
		return nil, err
	}
	slog.Debug("[DEBUG-SHELL] parsed command text", "commands", len(p.cmds), "lines", p.line)
	return p.cmds, nil
}

// ParseLine parses a single command line and returns the argument vectors of
// its ";"-separated commands.
func ParseLine(line string) ([][]string, error) {
	cmds, err := Parse(line, nil)
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Argv)
	}
	return out, nil
}

func (p *parser) flush() {
	if len(p.argv) > 0 {
		p.cmds = append(p.cmds, Command{Line: p.start, Argv: p.argv})
	}
	p.argv = nil
}

func (p *parser) peek(off int) byte {
	if p.pos+off >= len(p.src) {
		return 0
	}
	return p.src[p.pos+off]
}

func (p *parser) run() error {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '\n':
			p.flush()
			p.line++
			p.pos++
		case c == ' ' || c == '\t' || c == '\r':
			p.pos++
		case c == '\\' && p.peek(1) == '\n':
			p.line++
			p.pos += 2
		case c == '#' && p.peek(1) != '{':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		case c == ';':
			p.flush()
			p.pos++
		default:
			if len(p.argv) == 0 {
				p.start = p.line
			}
			word, end, err := p.word()
			if err != nil {
				return err
			}
			p.argv = append(p.argv, word)
			if end {
				p.flush()
			}
		}
	}
	p.flush()
	return nil
}

// word reads one word. end reports a trailing unescaped ";" that finishes
// the command.
func (p *parser) word() (string, bool, error) {
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			return b.String(), false, nil
		case c == ';' && (p.peek(1) == 0 || isSpace(p.peek(1))):
			p.pos++
			return b.String(), true, nil
		case c == '\\':
			switch next := p.peek(1); next {
			case 0:
				p.pos++
			case '\n':
				p.line++
				p.pos += 2
			default:
				b.WriteByte(next)
				p.pos += 2
			}
		case c == '\'':
			if err := p.single(&b); err != nil {
				return "", false, err
			}
		case c == '"':
			if err := p.double(&b); err != nil {
				return "", false, err
			}
		case c == '$':
			p.variable(&b)
		case c == '~' && b.Len() == 0:
			p.pos++
			if v, ok := p.resolve("HOME"); ok && (p.pos == len(p.src) || p.src[p.pos] == '/' || isSpace(p.src[p.pos])) {
				b.WriteString(v)
			} else {
				b.WriteByte('~')
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return b.String(), false, nil
}

func (p *parser) single(b *strings.Builder) error {
	line := p.line
	p.pos++
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		if c == '\'' {
			return nil
		}
		if c == '\n' {
			p.line++
		}
		b.WriteByte(c)
	}
	return fmt.Errorf("line %d: %w", line, ErrUnterminatedQuote)
}

func (p *parser) double(b *strings.Builder) error {
	line := p.line
	p.pos++
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '"':
			p.pos++
			return nil
		case c == '\\' && strings.IndexByte(`"\$`, p.peek(1)) != -1:
			b.WriteByte(p.peek(1))
			p.pos += 2
		case c == '\\' && p.peek(1) == '\n':
			p.line++
			p.pos += 2
		case c == '$':
			p.variable(b)
		default:
			if c == '\n' {
				p.line++
			}
			b.WriteByte(c)
			p.pos++
		}
	}
	return fmt.Errorf("line %d: %w", line, ErrUnterminatedQuote)
}

// variable expands $NAME or ${NAME} at p.pos. Unknown names expand to "".
func (p *parser) variable(b *strings.Builder) {
	start := p.pos
	p.pos++
	var name string
	if p.peek(0) == '{' {
		end := strings.IndexByte(p.src[p.pos:], '}')
		if end == -1 {
			b.WriteString(p.src[start:])
			p.pos = len(p.src)
			return
		}
		name = p.src[p.pos+1 : p.pos+end]
		p.pos += end + 1
	} else {
		n := p.pos
		for n < len(p.src) && isNameByte(p.src[n], n == p.pos) {
			n++
		}
		name = p.src[p.pos:n]
		p.pos = n
	}
	if name == "" || p.lookup == nil {
		b.WriteString(p.src[start:p.pos])
		return
	}
	v, _ := p.lookup(name)
	b.WriteString(v)
}

func (p *parser) resolve(name string) (string, bool) {
	if p.lookup == nil {
		return "", false
	}
	return p.lookup(name)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// isNameByte checks [A-Za-z_][A-Za-z0-9_]*.
func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

// Quote renders argv so that Parse reads it back unchanged.
func Quote(argv []string) string {
	parts := make([]string, 0, len(argv))
	for _, arg := range argv {
		if arg != "" && !strings.ContainsAny(arg, " \t\r\n'\"\\;#$~") {
			parts = append(parts, arg)
			continue
		}
		parts = append(parts, "'"+strings.ReplaceAll(arg, "'", `'\''`)+"'")
	}
	return strings.Join(parts, " ")
}
