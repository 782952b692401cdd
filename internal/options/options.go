// Package options implements the hierarchical option store shared by the
// server, sessions, windows and panes.
//
// Lookups walk the parent chain (pane -> window -> global window,
// session -> global session). The store itself is not synchronized; callers
// own the locking (the session manager holds its mutex around every access).
package options

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownOption is returned when setting a name that is neither in the
// option table nor a user option ("@name").
var ErrUnknownOption = errors.New("unknown option")

// ErrInvalidValue is returned when a value cannot be parsed for the option type.
var ErrInvalidValue = errors.New("invalid option value")

// Entry is one option value stored in an Options set.
type Entry struct {
	Name string
	def  *Definition

	str   string
	num   int64
	array map[int]string
}

// Definition returns the table definition, or nil for user options.
func (e *Entry) Definition() *Definition {
	return e.def
}

// IsArray reports whether the entry holds indexed values.
func (e *Entry) IsArray() bool {
	return e.def != nil && e.def.Array
}

// Number returns the numeric value for number, flag and choice options.
func (e *Entry) Number() int64 {
	return e.num
}

// Str returns the string value for string, colour and style options.
func (e *Entry) Str() string {
	return e.str
}

// Indexes returns the sorted indexes of an array option.
func (e *Entry) Indexes() []int {
	out := make([]int, 0, len(e.array))
	for idx := range e.array {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// String renders the value. idx selects an array element; -1 renders the whole
// array joined by the definition separator. With numeric set, flags render as
// 1/0 and choices as their index.
func (e *Entry) String(idx int, numeric bool) string {
	if e.IsArray() {
		if idx == -1 {
			parts := make([]string, 0, len(e.array))
			for _, i := range e.Indexes() {
				parts = append(parts, e.array[i])
			}
			return strings.Join(parts, e.def.separator())
		}
		return e.array[idx]
	}
	if e.def == nil {
		return e.str
	}
	switch e.def.Type {
	case TypeNumber:
		return strconv.FormatInt(e.num, 10)
	case TypeFlag:
		if numeric {
			return strconv.FormatInt(e.num, 10)
		}
		if e.num != 0 {
			return "on"
		}
		return "off"
	case TypeChoice:
		if numeric {
			return strconv.FormatInt(e.num, 10)
		}
		if e.num >= 0 && int(e.num) < len(e.def.Choices) {
			return e.def.Choices[e.num]
		}
		return ""
	default:
		return e.str
	}
}

func (e *Entry) clone() *Entry {
	cp := *e
	if e.array != nil {
		cp.array = make(map[int]string, len(e.array))
		for k, v := range e.array {
			cp.array[k] = v
		}
	}
	return &cp
}

// Options is one scope of option values with an optional parent.
type Options struct {
	parent  *Options
	scope   Scope
	entries map[string]*Entry
}

// New creates an empty option set whose lookups fall back to parent.
func New(parent *Options, scope Scope) *Options {
	return &Options{
		parent:  parent,
		scope:   scope,
		entries: map[string]*Entry{},
	}
}

// NewGlobal creates a parentless option set populated with the table defaults
// for scope.
func NewGlobal(scope Scope) *Options {
	o := New(nil, scope)
	for i := range table {
		def := &table[i]
		if def.Scope&scope == 0 {
			continue
		}
		o.entries[def.Name] = def.defaultEntry()
	}
	return o
}

// Parent returns the fallback option set.
func (o *Options) Parent() *Options {
	return o.parent
}

// SetParent replaces the fallback option set (used when a pane moves windows).
func (o *Options) SetParent(parent *Options) {
	o.parent = parent
}

// Scope reports the scope the set was created for.
func (o *Options) Scope() Scope {
	return o.scope
}

// GetOnly returns the entry stored directly in o.
func (o *Options) GetOnly(name string) (*Entry, bool) {
	if o == nil {
		return nil, false
	}
	e, ok := o.entries[name]
	return e, ok
}

// Get returns the entry for name, walking the parent chain.
func (o *Options) Get(name string) (*Entry, bool) {
	for cur := o; cur != nil; cur = cur.parent {
		if e, ok := cur.entries[name]; ok {
			return e, true
		}
	}
	return nil, false
}

// GetString returns the rendered string value of name, or "" when unset.
func (o *Options) GetString(name string) string {
	e, ok := o.Get(name)
	if !ok {
		return ""
	}
	return e.String(-1, false)
}

// GetNumber returns the numeric value of name, or 0 when unset.
func (o *Options) GetNumber(name string) int64 {
	e, ok := o.Get(name)
	if !ok {
		return 0
	}
	return e.num
}

// Set parses value according to the option type and stores it in o.
// Names may carry an array index ("update-environment[2]"). A flag option
// given an empty value is toggled.
func (o *Options) Set(name, value string) error {
	base, idx, hasIdx, err := ParseName(name)
	if err != nil {
		return err
	}

	if strings.HasPrefix(base, "@") {
		if hasIdx {
			return fmt.Errorf("%w: user option %s cannot be indexed", ErrInvalidValue, base)
		}
		o.entries[base] = &Entry{Name: base, str: value}
		return nil
	}

	def, ok := Find(base)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOption, base)
	}
	if hasIdx && !def.Array {
		return fmt.Errorf("%w: %s is not an array option", ErrInvalidValue, base)
	}

	entry, exists := o.entries[base]
	if exists {
		entry = entry.clone()
	} else if inherited, found := o.Get(base); found {
		entry = inherited.clone()
	} else {
		entry = def.defaultEntry()
	}

	if def.Array {
		if !hasIdx {
			entry.array = map[int]string{}
			for i, part := range strings.Fields(value) {
				entry.array[i] = part
			}
		} else {
			if entry.array == nil {
				entry.array = map[int]string{}
			}
			entry.array[idx] = value
		}
		o.entries[base] = entry
		return nil
	}

	if err := def.parseInto(entry, value); err != nil {
		return err
	}
	o.entries[base] = entry
	return nil
}

// Unset removes name (or one array element) from o so lookups fall back to
// the parent.
func (o *Options) Unset(name string) error {
	base, idx, hasIdx, err := ParseName(name)
	if err != nil {
		return err
	}
	if !hasIdx {
		delete(o.entries, base)
		return nil
	}
	entry, ok := o.entries[base]
	if !ok || !entry.IsArray() {
		return nil
	}
	entry = entry.clone()
	delete(entry.array, idx)
	o.entries[base] = entry
	return nil
}

// Reset restores a table option in o to its default value.
func (o *Options) Reset(name string) error {
	def, ok := Find(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOption, name)
	}
	o.entries[name] = def.defaultEntry()
	return nil
}

// Each visits the entries stored directly in o in name order.
func (o *Options) Each(fn func(e *Entry)) {
	names := make([]string, 0, len(o.entries))
	for name := range o.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fn(o.entries[name])
	}
}

// ParseName splits "name[idx]" into its parts.
func ParseName(name string) (base string, idx int, hasIdx bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", 0, false, fmt.Errorf("%w: empty name", ErrUnknownOption)
	}
	open := strings.IndexByte(name, '[')
	if open == -1 {
		return name, -1, false, nil
	}
	if !strings.HasSuffix(name, "]") || open == 0 {
		return "", 0, false, fmt.Errorf("%w: bad index in %q", ErrInvalidValue, name)
	}
	n, convErr := strconv.Atoi(name[open+1 : len(name)-1])
	if convErr != nil || n < 0 {
		return "", 0, false, fmt.Errorf("%w: bad index in %q", ErrInvalidValue, name)
	}
	return name[:open], n, true, nil
}

// ParseGet resolves "name" or "name[idx]" against o (walking parents). It is
// the option step of format variable lookup. idx is -1 for whole values.
func ParseGet(o *Options, name string) (*Entry, int, bool) {
	if o == nil {
		return nil, 0, false
	}
	base, idx, _, err := ParseName(name)
	if err != nil {
		return nil, 0, false
	}
	e, ok := o.Get(base)
	if !ok {
		return nil, 0, false
	}
	return e, idx, true
}
