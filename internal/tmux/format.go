package tmux

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"
)

// FormatFlags control how a FormatTree expands.
type FormatFlags int

const (
	// FormatStatus marks expansions for a status line; job updates redraw
	// the owning client.
	FormatStatus FormatFlags = 1 << iota
	// FormatForce restarts #() jobs on every expansion.
	FormatForce
	// FormatNoJobs turns #() into the empty string.
	FormatNoJobs
	// FormatVerbose echoes each expansion step to the tree's print sink.
	FormatVerbose
)

// Tags scope #() jobs. Window and pane tags carry the object id in the low
// bits.
const (
	FormatNone      uint32 = 0
	FormatPaneTag   uint32 = 0x80000000
	FormatWindowTag uint32 = 0x40000000
)

// FormatType is the scope a tree's defaults resolved to.
type FormatType int

const (
	FormatTypeUnknown FormatType = iota
	FormatTypeSession
	FormatTypeWindow
	FormatTypePane
)

func (t FormatType) String() string {
	switch t {
	case FormatTypeSession:
		return "session"
	case FormatTypeWindow:
		return "window"
	case FormatTypePane:
		return "pane"
	default:
		return "unknown"
	}
}

// formatLoopLimit bounds recursive expansion depth.
const formatLoopLimit = 100

// formatMaxPad bounds the p modifier width in columns. Wider requests are
// clamped so a template cannot ask for gigabytes of padding.
const formatMaxPad = 10000

// FormatCallback computes a tree entry on first read.
type FormatCallback func(ft *FormatTree) string

type formatEntryKind int

const (
	formatEntryString formatEntryKind = iota
	formatEntryTime
	formatEntryCallback
)

// formatEntry is one caller-supplied variable. A callback entry caches its
// result after the first read.
type formatEntry struct {
	kind     formatEntryKind
	value    string
	t        time.Time
	cb       FormatCallback
	resolved bool
}

// FormatTree is one expansion context: the scope handles, flags and tag plus
// the caller's variable overrides. It must only be used while the owning
// SessionManager's lock is held.
type FormatTree struct {
	m   *SessionManager
	typ FormatType

	// client owns the tree's jobs; c is the client in scope.
	client *TmuxClient
	c      *TmuxClient
	s      *TmuxSession
	wl     *TmuxWinlink
	w      *TmuxWindow
	wp     *TmuxPane
	pb     *PasteBuffer

	tag   uint32
	flags FormatFlags

	entries map[string]*formatEntry
	print   func(string)
}

// NewFormatTree creates an expansion context owned by client (nil for the
// global scope). REQUIRES: m's lock must be held while the tree is in use.
func (m *SessionManager) NewFormatTree(client *TmuxClient, tag uint32, flags FormatFlags) *FormatTree {
	return &FormatTree{
		m:       m,
		client:  client,
		tag:     tag,
		flags:   flags,
		entries: map[string]*formatEntry{},
	}
}

// SetPrint installs the sink verbose expansions are echoed to.
func (ft *FormatTree) SetPrint(print func(string)) {
	ft.print = print
}

// Type returns the scope resolved by Defaults.
func (ft *FormatTree) Type() FormatType {
	return ft.typ
}

// Add sets a literal variable.
func (ft *FormatTree) Add(key, value string) {
	ft.entries[key] = &formatEntry{kind: formatEntryString, value: value, resolved: true}
}

// Addf sets a variable from a format string.
func (ft *FormatTree) Addf(key, format string, args ...any) {
	ft.Add(key, fmt.Sprintf(format, args...))
}

// AddTime sets a timestamp variable. A zero time is ignored.
func (ft *FormatTree) AddTime(key string, t time.Time) {
	if t.IsZero() {
		return
	}
	ft.entries[key] = &formatEntry{kind: formatEntryTime, t: t, resolved: true}
}

// AddCallback sets a variable computed on first read.
func (ft *FormatTree) AddCallback(key string, cb FormatCallback) {
	ft.entries[key] = &formatEntry{kind: formatEntryCallback, cb: cb}
}

// Merge copies every entry of src that already has a string value.
func (ft *FormatTree) Merge(src *FormatTree) {
	for key, fe := range src.entries {
		if fe.kind != formatEntryTime && fe.resolved {
			ft.Add(key, fe.value)
		}
	}
}

// lookupEntry returns a tree entry, resolving callbacks once.
func (ft *FormatTree) lookupEntry(key string) (formatValue, bool) {
	fe, ok := ft.entries[key]
	if !ok {
		return formatValue{}, false
	}
	switch fe.kind {
	case formatEntryTime:
		return formatValue{t: fe.t, isTime: true}, true
	case formatEntryCallback:
		if !fe.resolved {
			fe.value = fe.cb(ft)
			fe.resolved = true
		}
	}
	return formatValue{s: fe.value}, true
}

// Each visits every table variable that applies in this scope, then every
// tree entry. Times render as decimal Unix seconds.
func (ft *FormatTree) Each(fn func(key, value string)) {
	for i := range formatTable {
		fte := &formatTable[i]
		v, ok := fte.get(ft)
		if !ok {
			continue
		}
		fn(fte.key, v.plain())
	}
	for _, key := range slices.Sorted(maps.Keys(ft.entries)) {
		v, _ := ft.lookupEntry(key)
		fn(key, v.plain())
	}
}

// Defaults fills the scope from whichever handles are non-nil, deriving the
// rest: client -> session -> current winlink -> active pane.
func (ft *FormatTree) Defaults(c *TmuxClient, s *TmuxSession, wl *TmuxWinlink, wp *TmuxPane) {
	switch {
	case wp != nil:
		ft.typ = FormatTypePane
	case wl != nil:
		ft.typ = FormatTypeWindow
	case s != nil:
		ft.typ = FormatTypeSession
	default:
		ft.typ = FormatTypeUnknown
	}

	if s == nil && c != nil {
		s = c.Session
	}
	if wl == nil && s != nil {
		wl = s.Current
	}
	if wp == nil && wl != nil {
		wp = wl.Window.Active
	}

	if c != nil {
		ft.c = c
	}
	if s != nil {
		ft.s = s
	} else if ft.s == nil && ft.c != nil {
		ft.s = ft.c.Session
	}
	if wl != nil {
		if ft.w == nil {
			ft.w = wl.Window
		}
		ft.wl = wl
	}
	if wp != nil {
		if ft.w == nil {
			ft.w = wp.Window
		}
		ft.wp = wp
	}
	if pb := ft.m.topBufferLocked(); pb != nil {
		ft.pb = pb
	}
}

// DefaultsPane fills the scope from a pane, using the first session that
// links its window.
func (ft *FormatTree) DefaultsPane(wp *TmuxPane) {
	t := ft.m.targetForPaneLocked(wp)
	ft.Defaults(nil, t.Session, t.Winlink, wp)
}

// DefaultsBuffer puts a paste buffer in scope.
func (ft *FormatTree) DefaultsBuffer(pb *PasteBuffer) {
	ft.pb = pb
}

// Expand expands template.
func (ft *FormatTree) Expand(template string) string {
	return ft.expand(template, 0)
}

// ExpandTime expands template after applying strftime to it.
func (ft *FormatTree) ExpandTime(template string) string {
	return ft.expand(template, expandTime)
}

func (ft *FormatTree) expand(template string, flags expandFlags) string {
	es := &expandState{ft: ft, run: &expandRun{}, flags: flags}
	return es.expand1(template)
}

// Single expands template in a fresh context built from the given scope.
// REQUIRES: m's lock must be held by the caller.
func (m *SessionManager) Single(c *TmuxClient, s *TmuxSession, wl *TmuxWinlink, wp *TmuxPane, template string) string {
	ft := m.NewFormatTree(c, FormatNone, 0)
	ft.Defaults(c, s, wl, wp)
	return ft.Expand(template)
}

// log records one expansion step at debug level and, for verbose trees,
// echoes it indented by depth to the print sink.
func (es *expandState) log(format string, args ...any) {
	if !es.logging() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	slog.Debug("[DEBUG-FORMAT] "+msg, "depth", es.run.depth)
	ft := es.ft
	if ft.flags&FormatVerbose == 0 || ft.print == nil {
		return
	}
	ft.print("#" + strings.Repeat(" ", es.run.depth) + msg)
}

func debugEnabled() bool {
	return slog.Default().Enabled(context.Background(), slog.LevelDebug)
}
