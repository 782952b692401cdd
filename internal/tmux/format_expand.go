package tmux

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go-tmux/internal/options"
)

type expandFlags int

const (
	expandTime expandFlags = 1 << iota
	expandNoJobs
)

// expandRun is shared by every expandState of one top-level expansion: the
// recursion depth and the lazily fixed time used by strftime expansion.
type expandRun struct {
	depth   int
	now     time.Time
	timeSet bool
}

type expandState struct {
	ft    *FormatTree
	run   *expandRun
	flags expandFlags
}

// next returns a state for a nested expansion over ft with extra flags.
func (es *expandState) next(ft *FormatTree, add expandFlags) *expandState {
	return &expandState{ft: ft, run: es.run, flags: es.flags | add}
}

// Single-letter aliases, valid outside #[...] style spans.
var formatAliases = map[byte]string{
	'D': "pane_id",
	'F': "window_flags",
	'H': "host",
	'I': "window_index",
	'P': "pane_index",
	'S': "session_name",
	'T': "pane_title",
	'W': "window_name",
	'h': "host_short",
}

// modifierFlags collect the flag-like modifiers of one placeholder.
type modifierFlags int

const (
	modLiteral modifierFlags = 1 << iota
	modCharacter
	modColour
	modBasename
	modDirname
	modLength
	modWidth
	modTimeString
	modPretty
	modQuoteShell
	modQuoteStyle
	modExpand
	modExpandTime
	modWindowName
	modSessionName
	modSessions
	modWindows
	modPanes
	modClients
)

// placeholder is the parsed modifier state of one #{...} body.
type placeholder struct {
	flags      modifierFlags
	cmp        *formatModifier
	search     *formatModifier
	mexp       *formatModifier
	subs       []*formatModifier
	limit      int
	marker     string
	width      int
	timeFormat string
}

func (es *expandState) expand1(template string) string {
	if template == "" {
		return ""
	}
	run := es.run
	if run.depth == formatLoopLimit {
		es.log("reached loop limit (%d)", formatLoopLimit)
		return ""
	}
	run.depth++
	defer func() { run.depth-- }()

	es.log("expanding format: %s", template)

	if es.flags&expandTime != 0 && strings.IndexByte(template, '%') != -1 {
		if !run.timeSet {
			run.now = es.ft.m.now()
			run.timeSet = true
		}
		expanded := formatStrftime(template, run.now)
		if expanded != template {
			es.log("after time expanded: %s", expanded)
		}
		template = expanded
	}

	var b strings.Builder
	b.Grow(len(template))
	styleEnd := -1
	i := 0
scan:
	for i < len(template) {
		if template[i] != '#' {
			b.WriteByte(template[i])
			i++
			continue
		}
		if i+1 >= len(template) {
			b.WriteByte('#')
			break
		}
		ch := template[i+1]
		start := i
		i += 2

		switch ch {
		case '(':
			depth := 1
			end := i
			for ; end < len(template); end++ {
				if template[end] == '(' {
					depth++
				}
				if template[end] == ')' {
					depth--
					if depth == 0 {
						break
					}
				}
			}
			if end >= len(template) {
				es.log("unterminated #(: %s", template[i:])
				break scan
			}
			cmd := template[i:end]
			es.log("found #(): %s", cmd)
			if es.ft.flags&FormatNoJobs != 0 || es.flags&expandNoJobs != 0 {
				es.log("#() is disabled")
			} else {
				out := es.jobGet(cmd)
				es.log("#() result: %s", out)
				b.WriteString(out)
			}
			i = end + 1

		case '{':
			end := formatSkip(template[start:], "}")
			if end == -1 {
				es.log("unterminated #{: %s", template[i:])
				break scan
			}
			end += start
			body := template[i:end]
			es.log("found #{}: %s", body)
			es.replace(&b, body)
			i = end + 1

		case '[', '#':
			// A run of two or more '#' before '[' is a style and is left
			// for the renderer along with its brackets.
			p, n := i, 2
			if ch == '[' {
				p, n = i-1, 1
			}
			for p < len(template) && template[p] == '#' {
				p++
				n++
			}
			if p < len(template) && template[p] == '[' {
				styleEnd = -1
				if se := formatSkip(template[start:], "]"); se != -1 {
					styleEnd = start + se
				}
				es.log("found #*%d[", n)
				b.WriteString(template[start : start+n+1])
				i = p + 1
				continue
			}
			es.log("found #%c", ch)
			b.WriteByte(ch)

		case '}', ',':
			es.log("found #%c", ch)
			b.WriteByte(ch)

		default:
			key := ""
			if i > styleEnd {
				key = formatAliases[ch]
			}
			if key == "" {
				b.WriteByte('#')
				b.WriteByte(ch)
				continue
			}
			es.log("found #%c: %s", ch, key)
			es.replace(&b, key)
		}
	}

	out := b.String()
	es.log("result is: %s", out)
	return out
}

// replace resolves one placeholder body into b. A failed placeholder
// contributes nothing.
func (es *expandState) replace(b *strings.Builder, key string) {
	value, ok := es.resolve(key)
	if !ok {
		es.log("failed %s", key)
		return
	}
	es.log("replaced '%s' with '%s'", key, value)
	b.WriteString(value)
}

func (es *expandState) parsePlaceholder(list []formatModifier) placeholder {
	var ph placeholder
	for i := range list {
		fm := &list[i]
		if es.logging() {
			es.log("modifier %d is %s", i, fm.op)
			for j, arg := range fm.argv {
				es.log("modifier %d argument %d: %s", i, j, arg)
			}
		}
		if len(fm.op) == 2 {
			ph.cmp = fm
			continue
		}
		argc := len(fm.argv)
		switch fm.op[0] {
		case 'm', '<', '>':
			ph.cmp = fm
		case 'C':
			ph.search = fm
		case 's':
			if argc >= 2 {
				ph.subs = append(ph.subs, fm)
			}
		case '=':
			if argc >= 1 {
				ph.limit, _ = strtonum(fm.argv[0])
				if argc >= 2 {
					ph.marker = fm.argv[1]
				}
			}
		case 'p':
			if argc >= 1 {
				ph.width, _ = strtonum(fm.argv[0])
				if ph.width > formatMaxPad || ph.width < -formatMaxPad {
					es.log("padding width %d capped at %d", ph.width, formatMaxPad)
					ph.width = max(min(ph.width, formatMaxPad), -formatMaxPad)
				}
			}
		case 'w':
			ph.flags |= modWidth
		case 'e':
			if argc >= 1 && argc <= 3 {
				ph.mexp = fm
			}
		case 'l':
			ph.flags |= modLiteral
		case 'a':
			ph.flags |= modCharacter
		case 'b':
			ph.flags |= modBasename
		case 'c':
			ph.flags |= modColour
		case 'd':
			ph.flags |= modDirname
		case 'n':
			ph.flags |= modLength
		case 't':
			ph.flags |= modTimeString
			if fm.argHas(0, "p") {
				ph.flags |= modPretty
			} else if argc >= 2 && fm.argHas(0, "f") {
				ph.timeFormat = formatStrip(fm.argv[1])
			}
		case 'q':
			if argc == 0 {
				ph.flags |= modQuoteShell
			} else if fm.argHas(0, "eh") {
				ph.flags |= modQuoteStyle
			}
		case 'E':
			ph.flags |= modExpand
		case 'T':
			ph.flags |= modExpandTime
		case 'N':
			if argc == 0 || fm.argHas(0, "w") {
				ph.flags |= modWindowName
			} else if fm.argHas(0, "s") {
				ph.flags |= modSessionName
			}
		case 'S':
			ph.flags |= modSessions
		case 'W':
			ph.flags |= modWindows
		case 'P':
			ph.flags |= modPanes
		case 'L':
			ph.flags |= modClients
		}
	}
	return ph
}

// resolve runs the placeholder pipeline: modifiers, the value branch, then
// post-processing.
func (es *expandState) resolve(key string) (string, bool) {
	list, body, ok := es.buildModifiers(key)
	if !ok {
		body = key
	}
	ph := es.parsePlaceholder(list)

	value, ok := es.resolveValue(&ph, body)
	if !ok {
		return "", false
	}

	if ph.flags&modExpand != 0 {
		value = es.expand1(value)
	} else if ph.flags&modExpandTime != 0 {
		value = es.next(es.ft, expandTime).expand1(value)
	}

	for _, fm := range ph.subs {
		pattern := es.expand1(fm.argv[0])
		with := es.expand1(fm.argv[1])
		if out, ok := regsub(pattern, with, value, fm.argHas(2, "i")); ok {
			value = out
		}
		es.log("substitute '%s' to '%s': %s", pattern, with, value)
	}

	if ph.limit > 0 {
		trimmed := trimLeft(value, ph.limit)
		if ph.marker != "" && trimmed != value {
			trimmed += ph.marker
		}
		value = trimmed
		es.log("applied length limit %d: %s", ph.limit, value)
	} else if ph.limit < 0 {
		trimmed := trimRight(value, -ph.limit)
		if ph.marker != "" && trimmed != value {
			trimmed = ph.marker + trimmed
		}
		value = trimmed
		es.log("applied length limit %d: %s", ph.limit, value)
	}

	if ph.width > 0 {
		value = padLeft(value, ph.width)
		es.log("applied padding width %d: %s", ph.width, value)
	} else if ph.width < 0 {
		value = padRight(value, -ph.width)
		es.log("applied padding width %d: %s", ph.width, value)
	}

	if ph.flags&modLength != 0 {
		value = strconv.Itoa(len(value))
		es.log("replacing with length: %s", value)
	}
	if ph.flags&modWidth != 0 {
		value = strconv.Itoa(formatWidth(value))
		es.log("replacing with width: %s", value)
	}
	return value, true
}

// resolveValue produces the unprocessed value of a placeholder body.
func (es *expandState) resolveValue(ph *placeholder, body string) (string, bool) {
	switch {
	case ph.flags&modLiteral != 0:
		es.log("literal string is '%s'", body)
		return formatUnescape(body), true

	case ph.flags&modCharacter != 0:
		n, ok := strtonum(es.expand1(body))
		if !ok || n < 32 || n > 126 {
			return "", true
		}
		return string(rune(n)), true

	case ph.flags&modColour != 0:
		rgb, ok := colourToRGB(es.expand1(body))
		if !ok {
			return "", true
		}
		return fmt.Sprintf("%06x", rgb&0xffffff), true

	case ph.flags&modSessions != 0:
		return es.loopSessions(body)
	case ph.flags&modWindows != 0:
		return es.loopWindows(body)
	case ph.flags&modPanes != 0:
		return es.loopPanes(body)
	case ph.flags&modClients != 0:
		return es.loopClients(body)
	case ph.flags&modWindowName != 0:
		return es.windowNameExists(body)
	case ph.flags&modSessionName != 0:
		return es.sessionNameExists(body)

	case ph.search != nil:
		text := es.expand1(body)
		if es.ft.wp == nil {
			es.log("search '%s' but no pane", text)
			return "0", true
		}
		es.log("search '%s' pane %s", text, es.ft.wp.IDString())
		return strconv.Itoa(paneSearch(es.ft.wp, text, ph.search.argHas(0, "r"), ph.search.argHas(0, "i"))), true

	case ph.cmp != nil:
		return es.compare(ph.cmp, body)

	case strings.HasPrefix(body, "?"):
		return es.conditional(ph, body[1:])

	case ph.mexp != nil:
		value, ok := es.expression(ph.mexp, body)
		if !ok {
			return "", true
		}
		return value, true

	case strings.Contains(body, "#{"):
		es.log("expanding inner format '%s'", body)
		return es.expand1(body), true
	}

	value, ok := es.find(body, ph.flags, ph.timeFormat)
	if !ok {
		es.log("format '%s' not found", body)
		return "", true
	}
	es.log("format '%s' found: %s", body, value)
	return value, true
}

func (es *expandState) compare(cmp *formatModifier, body string) (string, bool) {
	left, right, ok := es.choose(body, true)
	if !ok {
		es.log("compare %s syntax error: %s", cmp.op, body)
		return "", false
	}
	es.log("compare %s left is: %s", cmp.op, left)
	es.log("compare %s right is: %s", cmp.op, right)

	var result bool
	switch cmp.op {
	case "||":
		result = formatTrue(left) || formatTrue(right)
	case "&&":
		result = formatTrue(left) && formatTrue(right)
	case "==":
		result = left == right
	case "!=":
		result = left != right
	case "<":
		result = left < right
	case ">":
		result = left > right
	case "<=":
		result = left <= right
	case ">=":
		result = left >= right
	case "m":
		result = formatMatch(cmp, left, right)
	}
	if result {
		return "1", true
	}
	return "0", true
}

// formatMatch matches text against pattern: a glob by default, a regular
// expression with the r flag, case-insensitively with the i flag.
func formatMatch(fm *formatModifier, pattern, text string) bool {
	icase := fm.argHas(0, "i")
	if !fm.argHas(0, "r") {
		return globMatch(pattern, text, icase)
	}
	re, err := compileRegex(pattern, icase)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

func (es *expandState) conditional(ph *placeholder, rest string) (string, bool) {
	cp := formatSkip(rest, ",")
	if cp == -1 {
		es.log("condition syntax error: %s", rest)
		return "", false
	}
	condition := rest[:cp]
	es.log("condition is: %s", condition)

	found, ok := es.find(condition, ph.flags, ph.timeFormat)
	if !ok {
		found = es.expand1(condition)
		if found == condition {
			found = ""
			es.log("condition '%s' not found; assuming false", condition)
		}
	} else {
		es.log("condition '%s' found: %s", condition, found)
	}

	left, right, ok := es.choose(rest[cp+1:], false)
	if !ok {
		es.log("condition '%s' syntax error: %s", condition, rest[cp+1:])
		return "", false
	}
	if formatTrue(found) {
		es.log("condition '%s' is true", condition)
		return es.expand1(left), true
	}
	es.log("condition '%s' is false", condition)
	return es.expand1(right), true
}

// choose splits s on its first top-level comma, optionally expanding both
// sides.
func (es *expandState) choose(s string, expand bool) (left, right string, ok bool) {
	cp := formatSkip(s, ",")
	if cp == -1 {
		return "", "", false
	}
	left, right = s[:cp], s[cp+1:]
	if expand {
		left, right = es.expand1(left), es.expand1(right)
	}
	return left, right, true
}

// find resolves a variable name: tree entries, then the lookup table, then
// options, then the environment. Time values are rendered per the t
// modifier, then basename, dirname and quoting apply in that order.
func (es *expandState) find(key string, flags modifierFlags, timeFormat string) (string, bool) {
	ft := es.ft
	var (
		found  string
		t      time.Time
		isTime bool
		ok     bool
	)

	if v, exists := ft.lookupEntry(key); exists {
		found, t, isTime, ok = v.s, v.t, v.isTime, true
	} else if fte := findFormatTable(key); fte != nil {
		v, exists := fte.get(ft)
		if !exists {
			return "", false
		}
		found, t, isTime, ok = v.s, v.t, v.isTime, true
	} else if e, idx, exists := es.findOption(key); exists {
		found, ok = e.String(idx, true), true
	} else if flags&modTimeString == 0 {
		found, ok = ft.m.lookupEnvLocked(ft.s, key)
	}
	if !ok {
		return "", false
	}

	if flags&modTimeString != 0 {
		if !isTime && found != "" {
			if n := parseTimeString(found); n != 0 {
				t, isTime = time.Unix(n, 0), true
			}
		}
		if !isTime || t.IsZero() {
			return "", false
		}
		switch {
		case flags&modPretty != 0:
			return formatPrettyTime(t, ft.m.now()), true
		case timeFormat != "":
			return formatStrftime(timeFormat, t), true
		default:
			return formatCtime(t), true
		}
	}

	if isTime {
		found = strconv.FormatInt(t.Unix(), 10)
	}
	if flags&modBasename != 0 {
		found = filepath.Base(found)
	}
	if flags&modDirname != 0 {
		found = filepath.Dir(found)
	}
	if flags&modQuoteShell != 0 {
		found = quoteShell(found)
	}
	if flags&modQuoteStyle != 0 {
		found = quoteStyle(found)
	}
	return found, true
}

// findOption walks server, pane, window, global window, session and global
// session options.
func (es *expandState) findOption(key string) (*options.Entry, int, bool) {
	ft, m := es.ft, es.ft.m
	chain := []*options.Options{m.globalOptions}
	if ft.wp != nil {
		chain = append(chain, ft.wp.Options)
	}
	if ft.w != nil {
		chain = append(chain, ft.w.Options)
	}
	chain = append(chain, m.globalWOptions)
	if ft.s != nil {
		chain = append(chain, ft.s.Options)
	}
	chain = append(chain, m.globalSOptions)
	for _, o := range chain {
		if e, idx, ok := options.ParseGet(o, key); ok {
			return e, idx, true
		}
	}
	return nil, 0, false
}

func (es *expandState) logging() bool {
	return es.ft.flags&FormatVerbose != 0 || debugEnabled()
}

// strtonum parses a base-10 integer in the int32 range.
func strtonum(s string) (int, bool) {
	n, err := strconv.ParseInt(strings.TrimLeft(s, " \t\n\v\f\r"), 10, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

// formatWidth is the display width of s, skipping #[...] style spans.
func formatWidth(s string) int {
	width := 0
	for {
		i := strings.Index(s, "#[")
		if i == -1 {
			break
		}
		width += displayWidth(s[:i])
		end := strings.IndexByte(s[i:], ']')
		if end == -1 {
			return width
		}
		s = s[i+end+1:]
	}
	return width + displayWidth(s)
}

// paneSearch returns the 1-based visible line of wp matching text, or 0.
// Plain searches match text as a substring.
func paneSearch(wp *TmuxPane, text string, regex, icase bool) int {
	if regex {
		re, err := compileRegex(text, icase)
		if err != nil {
			return 0
		}
		return searchPane(wp, re.MatchString)
	}
	pattern := "*" + text + "*"
	return searchPane(wp, func(line string) bool {
		return globMatch(pattern, line, icase)
	})
}
