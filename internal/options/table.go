package options

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Type is the value type of a table option.
type Type int

const (
	TypeString Type = iota
	TypeNumber
	TypeFlag
	TypeChoice
	TypeColour
	TypeStyle
)

// Scope is a bitmask of the option sets an option may live in.
type Scope int

const (
	ScopeServer Scope = 1 << iota
	ScopeSession
	ScopeWindow
	ScopePane
)

// Definition describes one option known to the server.
type Definition struct {
	Name       string
	Type       Type
	Scope      Scope
	Default    string
	DefaultNum int64
	Minimum    int64
	Maximum    int64
	Choices    []string
	Array      bool
	Separator  string
}

func (d *Definition) separator() string {
	if d.Separator == "" {
		return " "
	}
	return d.Separator
}

func (d *Definition) defaultEntry() *Entry {
	e := &Entry{Name: d.Name, def: d, str: d.Default, num: d.DefaultNum}
	if d.Array {
		e.array = map[int]string{}
		if d.Default != "" {
			for i, part := range strings.Split(d.Default, d.separator()) {
				e.array[i] = part
			}
		}
	}
	return e
}

func (d *Definition) parseInto(e *Entry, value string) error {
	switch d.Type {
	case TypeNumber:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s expects a number: %q", ErrInvalidValue, d.Name, value)
		}
		if n < d.Minimum || (d.Maximum != 0 && n > d.Maximum) {
			return fmt.Errorf("%w: %s out of range [%d,%d]: %d", ErrInvalidValue, d.Name, d.Minimum, d.Maximum, n)
		}
		e.num = n
	case TypeFlag:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "":
			if e.num == 0 {
				e.num = 1
			} else {
				e.num = 0
			}
		case "on", "yes", "1":
			e.num = 1
		case "off", "no", "0":
			e.num = 0
		default:
			return fmt.Errorf("%w: %s expects on or off: %q", ErrInvalidValue, d.Name, value)
		}
	case TypeChoice:
		for i, choice := range d.Choices {
			if choice == value {
				e.num = int64(i)
				return nil
			}
		}
		return fmt.Errorf("%w: %s expects one of %s: %q", ErrInvalidValue, d.Name, strings.Join(d.Choices, ","), value)
	default:
		e.str = value
	}
	return nil
}

// Find returns the table definition for name.
func Find(name string) (*Definition, bool) {
	i := sort.Search(len(table), func(i int) bool { return table[i].Name >= name })
	if i < len(table) && table[i].Name == name {
		return &table[i], true
	}
	return nil, false
}

// Names returns every table option name in sorted order.
func Names() []string {
	out := make([]string, len(table))
	for i := range table {
		out[i] = table[i].Name
	}
	return out
}

// DefaultAutomaticRenameFormat is the default automatic-rename-format.
const DefaultAutomaticRenameFormat = "#{?pane_in_mode,[tmux],#{pane_current_command}}#{?pane_dead,[dead],}"

// DefaultWindowStatusFormat is the default window-status-format and
// window-status-current-format.
const DefaultWindowStatusFormat = "#I:#W#{?window_flags,#{window_flags}, }"

// table is kept sorted by name; Find relies on it.
var table = []Definition{
	{Name: "aggressive-resize", Type: TypeFlag, Scope: ScopeWindow},
	{Name: "allow-rename", Type: TypeFlag, Scope: ScopeWindow | ScopePane},
	{Name: "alternate-screen", Type: TypeFlag, Scope: ScopeWindow | ScopePane, DefaultNum: 1},
	{Name: "automatic-rename", Type: TypeFlag, Scope: ScopeWindow, DefaultNum: 1},
	{Name: "automatic-rename-format", Type: TypeString, Scope: ScopeWindow, Default: DefaultAutomaticRenameFormat},
	{Name: "base-index", Type: TypeNumber, Scope: ScopeSession, Maximum: 1 << 31},
	{Name: "buffer-limit", Type: TypeNumber, Scope: ScopeServer, DefaultNum: 50, Minimum: 1, Maximum: 1 << 31},
	{Name: "default-command", Type: TypeString, Scope: ScopeSession},
	{Name: "default-shell", Type: TypeString, Scope: ScopeSession, Default: "/bin/sh"},
	{Name: "default-terminal", Type: TypeString, Scope: ScopeServer, Default: "tmux-256color"},
	{Name: "destroy-unattached", Type: TypeFlag, Scope: ScopeSession},
	{Name: "display-time", Type: TypeNumber, Scope: ScopeSession, DefaultNum: 750, Maximum: 1 << 31},
	{Name: "escape-time", Type: TypeNumber, Scope: ScopeServer, DefaultNum: 500, Maximum: 1 << 31},
	{Name: "exit-empty", Type: TypeFlag, Scope: ScopeServer, DefaultNum: 1},
	{Name: "focus-events", Type: TypeFlag, Scope: ScopeServer},
	{Name: "history-limit", Type: TypeNumber, Scope: ScopeSession, DefaultNum: 2000, Maximum: 1 << 31},
	{Name: "main-pane-height", Type: TypeNumber, Scope: ScopeWindow, DefaultNum: 24, Minimum: 1, Maximum: 1 << 15},
	{Name: "message-limit", Type: TypeNumber, Scope: ScopeServer, DefaultNum: 1000, Maximum: 1 << 31},
	{Name: "mode-keys", Type: TypeChoice, Scope: ScopeWindow, Choices: []string{"emacs", "vi"}},
	{Name: "monitor-activity", Type: TypeFlag, Scope: ScopeWindow},
	{Name: "monitor-bell", Type: TypeFlag, Scope: ScopeWindow, DefaultNum: 1},
	{Name: "monitor-silence", Type: TypeNumber, Scope: ScopeWindow, Maximum: 1 << 31},
	{Name: "mouse", Type: TypeFlag, Scope: ScopeSession},
	{Name: "pane-base-index", Type: TypeNumber, Scope: ScopeWindow, Maximum: 1 << 15},
	{Name: "prefix", Type: TypeString, Scope: ScopeSession, Default: "C-b"},
	{Name: "remain-on-exit", Type: TypeChoice, Scope: ScopeWindow | ScopePane, Choices: []string{"off", "on", "failed"}},
	{Name: "renumber-windows", Type: TypeFlag, Scope: ScopeSession},
	{Name: "set-titles", Type: TypeFlag, Scope: ScopeSession},
	{Name: "set-titles-string", Type: TypeString, Scope: ScopeSession, Default: "#S:#I:#W - \"#T\" #{session_alerts}"},
	{Name: "status", Type: TypeChoice, Scope: ScopeSession, DefaultNum: 1, Choices: []string{"off", "on", "2", "3", "4", "5"}},
	{Name: "status-interval", Type: TypeNumber, Scope: ScopeSession, DefaultNum: 15, Maximum: 1 << 31},
	{Name: "status-justify", Type: TypeChoice, Scope: ScopeSession, Choices: []string{"left", "centre", "right", "absolute-centre"}},
	{Name: "status-keys", Type: TypeChoice, Scope: ScopeSession, Choices: []string{"emacs", "vi"}},
	{Name: "status-left", Type: TypeString, Scope: ScopeSession, Default: "[#{session_name}] "},
	{Name: "status-left-length", Type: TypeNumber, Scope: ScopeSession, DefaultNum: 10, Maximum: 1 << 15},
	{Name: "status-left-style", Type: TypeStyle, Scope: ScopeSession, Default: "default"},
	{Name: "status-position", Type: TypeChoice, Scope: ScopeSession, DefaultNum: 1, Choices: []string{"top", "bottom"}},
	{Name: "status-right", Type: TypeString, Scope: ScopeSession, Default: "\"#{=21:pane_title}\" %H:%M %d-%b-%y"},
	{Name: "status-right-length", Type: TypeNumber, Scope: ScopeSession, DefaultNum: 40, Maximum: 1 << 15},
	{Name: "status-right-style", Type: TypeStyle, Scope: ScopeSession, Default: "default"},
	{Name: "status-style", Type: TypeStyle, Scope: ScopeSession, Default: "bg=green,fg=black"},
	{Name: "synchronize-panes", Type: TypeFlag, Scope: ScopeWindow | ScopePane},
	{Name: "update-environment", Type: TypeString, Scope: ScopeSession, Array: true,
		Default: "DISPLAY KRB5CCNAME SSH_ASKPASS SSH_AUTH_SOCK SSH_AGENT_PID SSH_CONNECTION WINDOWID XAUTHORITY"},
	{Name: "visual-activity", Type: TypeChoice, Scope: ScopeSession, Choices: []string{"off", "on", "both"}},
	{Name: "window-status-current-format", Type: TypeString, Scope: ScopeWindow, Default: DefaultWindowStatusFormat},
	{Name: "window-status-current-style", Type: TypeStyle, Scope: ScopeWindow, Default: "default"},
	{Name: "window-status-format", Type: TypeString, Scope: ScopeWindow, Default: DefaultWindowStatusFormat},
	{Name: "window-status-separator", Type: TypeString, Scope: ScopeWindow, Default: " "},
	{Name: "window-status-style", Type: TypeStyle, Scope: ScopeWindow, Default: "default"},
	{Name: "window-style", Type: TypeStyle, Scope: ScopeWindow | ScopePane, Default: "default"},
	{Name: "word-separators", Type: TypeString, Scope: ScopeSession, Default: " "},
}
