package tmux

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"go-tmux/internal/options"
)

// NewWindowOptions configures NewWindow.
type NewWindowOptions struct {
	Name     string
	Cwd      string
	Command  string
	Detached bool
	// Index is the requested winlink index; -1 picks the first free one.
	Index int
}

// NewWindow creates a window in the target session.
func (m *SessionManager) NewWindow(target string, opts NewWindowOptions) (*TmuxWinlink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(parseSessionName(target)+":", -1)
	if err != nil {
		return nil, err
	}
	if t.Session == nil {
		return nil, fmt.Errorf("session not found: %s", target)
	}
	width, height := DefaultTerminalCols, DefaultTerminalRows
	if t.Winlink != nil {
		width, height = t.Winlink.Window.Width, t.Winlink.Window.Height
	}
	wl, err := m.newWindowLocked(t.Session, opts.Index, opts.Name, opts.Cwd, opts.Command, width, height)
	if err != nil {
		return nil, err
	}
	if !opts.Detached {
		m.setCurrentLocked(t.Session, wl)
	}
	return wl, nil
}

// newWindowLocked creates a window with one pane and links it into s.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) newWindowLocked(s *TmuxSession, index int, name, cwd, command string, width, height int) (*TmuxWinlink, error) {
	if index < 0 {
		index = m.freeIndexLocked(s)
	} else if _, err := findWinlinkLocked(s, fmt.Sprint(index)); err == nil {
		return nil, fmt.Errorf("index in use: %d", index)
	}

	w := &TmuxWindow{
		ID:       m.nextWindowID,
		Width:    width,
		Height:   height,
		Options:  options.New(m.globalWOptions, options.ScopeWindow),
		Activity: m.now(),
	}
	m.nextWindowID++
	m.windows[w.ID] = w

	if cwd == "" {
		cwd = s.Path
	}
	pane, err := m.newPaneLocked(w, s, cwd, command)
	if err != nil {
		delete(m.windows, w.ID)
		return nil, err
	}
	w.Layout = newLeafLayout(pane.ID)
	m.applyLayoutLocked(w)

	if name != "" {
		w.Name = name
		_ = w.Options.Set("automatic-rename", "off")
	} else {
		w.Name = DefaultWindowName(pane)
	}

	wl := m.linkLocked(s, w, index)
	slog.Debug("[DEBUG-WINDOW] created", "session", s.Name, "window", w.IDString(), "index", wl.Index)
	return wl, nil
}

// freeIndexLocked returns the first unused index at or above base-index.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) freeIndexLocked(s *TmuxSession) int {
	idx := int(s.Options.GetNumber("base-index"))
	for {
		if _, err := findWinlinkLocked(s, fmt.Sprint(idx)); err != nil {
			return idx
		}
		idx++
	}
}

// linkLocked creates a winlink for w in s at index.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) linkLocked(s *TmuxSession, w *TmuxWindow, index int) *TmuxWinlink {
	wl := &TmuxWinlink{Index: index, Session: s, Window: w}
	s.Windows = append(s.Windows, wl)
	sort.Slice(s.Windows, func(i, j int) bool { return s.Windows[i].Index < s.Windows[j].Index })
	w.Links = append(w.Links, wl)
	return wl
}

// unlinkWindowLocked removes wl from its session. The window is destroyed
// when this was its last link.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) unlinkWindowLocked(wl *TmuxWinlink) {
	s, w := wl.Session, wl.Window
	s.Windows = slices.DeleteFunc(s.Windows, func(x *TmuxWinlink) bool { return x == wl })
	s.LastStack = slices.DeleteFunc(s.LastStack, func(x *TmuxWinlink) bool { return x == wl })
	w.Links = slices.DeleteFunc(w.Links, func(x *TmuxWinlink) bool { return x == wl })

	if s.Current == wl {
		s.Current = nil
		switch {
		case len(s.LastStack) > 0:
			s.Current = s.LastStack[0]
			s.LastStack = s.LastStack[1:]
		case len(s.Windows) > 0:
			s.Current = s.Windows[0]
		}
	}
	if len(w.Links) == 0 {
		m.destroyWindowLocked(w)
	}
	if s.Options.GetNumber("renumber-windows") != 0 {
		base := int(s.Options.GetNumber("base-index"))
		for i, other := range s.Windows {
			other.Index = base + i
		}
	}
}

// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) destroyWindowLocked(w *TmuxWindow) {
	for _, p := range w.Panes {
		m.destroyPaneLocked(p)
	}
	w.Panes = nil
	w.Active, w.LastPane = nil, nil
	delete(m.windows, w.ID)
	slog.Debug("[DEBUG-WINDOW] destroyed", "window", w.IDString())
}

// setCurrentLocked makes wl current in s, pushing the previous current onto
// the last stack.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) setCurrentLocked(s *TmuxSession, wl *TmuxWinlink) {
	if s.Current == wl {
		return
	}
	s.LastStack = slices.DeleteFunc(s.LastStack, func(x *TmuxWinlink) bool { return x == wl })
	if s.Current != nil {
		s.LastStack = append([]*TmuxWinlink{s.Current}, s.LastStack...)
	}
	s.Current = wl
	wl.Flags &^= winlinkAlertFlags
}

// LinkWindow links the source window into the destination session.
// dst may carry an index ("sess:5"); otherwise the first free index is used.
func (m *SessionManager) LinkWindow(src, dst string, detached bool) (*TmuxWinlink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.resolveTargetLocked(src, -1)
	if err != nil {
		return nil, err
	}
	if st.Winlink == nil {
		return nil, fmt.Errorf("window not found: %s", src)
	}
	sessionPart, indexPart, _ := strings.Cut(dst, ":")
	s, err := m.findSessionLocked(sessionPart)
	if err != nil {
		return nil, err
	}
	for _, wl := range s.Windows {
		if wl.Window == st.Winlink.Window {
			return nil, fmt.Errorf("window %s already linked to %s", wl.Window.IDString(), s.Name)
		}
	}
	index := -1
	if indexPart != "" {
		if _, scanErr := fmt.Sscan(indexPart, &index); scanErr != nil {
			return nil, fmt.Errorf("invalid window index: %s", indexPart)
		}
		if _, err := findWinlinkLocked(s, indexPart); err == nil {
			return nil, fmt.Errorf("index in use: %d", index)
		}
	} else {
		index = m.freeIndexLocked(s)
	}
	wl := m.linkLocked(s, st.Winlink.Window, index)
	if !detached {
		m.setCurrentLocked(s, wl)
	}
	return wl, nil
}

// SelectWindow makes the target window current in its session.
func (m *SessionManager) SelectWindow(target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(target, -1)
	if err != nil {
		return err
	}
	if t.Winlink == nil {
		return fmt.Errorf("window not found: %s", target)
	}
	m.setCurrentLocked(t.Session, t.Winlink)
	return nil
}

// LastWindow selects the most recently current window.
func (m *SessionManager) LastWindow(target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(parseSessionName(target)+":", -1)
	if err != nil {
		return err
	}
	if t.Session == nil || len(t.Session.LastStack) == 0 {
		return errors.New("no last window")
	}
	m.setCurrentLocked(t.Session, t.Session.LastStack[0])
	return nil
}

// RenameWindow renames the target window and turns automatic-rename off.
func (m *SessionManager) RenameWindow(target, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(target, -1)
	if err != nil {
		return err
	}
	if t.Winlink == nil {
		return fmt.Errorf("window not found: %s", target)
	}
	t.Winlink.Window.Name = name
	return t.Winlink.Window.Options.Set("automatic-rename", "off")
}

// KillWindow unlinks the target window from every session and destroys it.
func (m *SessionManager) KillWindow(target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(target, -1)
	if err != nil {
		return err
	}
	if t.Winlink == nil {
		return fmt.Errorf("window not found: %s", target)
	}
	for _, wl := range append([]*TmuxWinlink(nil), t.Winlink.Window.Links...) {
		m.unlinkWindowLocked(wl)
	}
	m.reapEmptySessionsLocked()
	return nil
}

// SelectLayout rebuilds the target window's layout from a preset.
func (m *SessionManager) SelectLayout(target, preset string) error {
	p, ok := ParseLayoutPreset(preset)
	if !ok {
		return fmt.Errorf("unknown layout: %s", preset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(target, -1)
	if err != nil {
		return err
	}
	if t.Winlink == nil {
		return fmt.Errorf("window not found: %s", target)
	}
	w := t.Winlink.Window
	ids := make([]int, 0, len(w.Panes))
	for _, pane := range w.Panes {
		ids = append(ids, pane.ID)
	}
	w.Layout = BuildPresetLayout(p, ids)
	w.Zoomed = false
	m.applyLayoutLocked(w)
	return nil
}

// ResizeWindow sets the window size and reflows its panes.
func (m *SessionManager) ResizeWindow(target string, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid size: %dx%d", width, height)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(target, -1)
	if err != nil {
		return err
	}
	if t.Winlink == nil {
		return fmt.Errorf("window not found: %s", target)
	}
	w := t.Winlink.Window
	w.Width, w.Height = width, height
	m.applyLayoutLocked(w)
	return nil
}

// SetWinlinkAlert raises an alert flag on every non-current link of the
// target window.
func (m *SessionManager) SetWinlinkAlert(target string, flag WinlinkFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(target, -1)
	if err != nil {
		return err
	}
	if t.Winlink == nil {
		return fmt.Errorf("window not found: %s", target)
	}
	for _, wl := range t.Winlink.Window.Links {
		if wl.Session.Current != wl {
			wl.Flags |= flag & winlinkAlertFlags
		}
	}
	return nil
}

// reapEmptySessionsLocked destroys sessions left without windows.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) reapEmptySessionsLocked() {
	for _, s := range m.sessionsSortedLocked() {
		if len(s.Windows) == 0 {
			m.destroySessionLocked(s)
		}
	}
}

// rawFlagsLocked renders window_raw_flags for wl.
func rawFlagsLocked(wl *TmuxWinlink) string {
	var b strings.Builder
	if wl.Flags&WinlinkActivity != 0 {
		b.WriteByte('#')
	}
	if wl.Flags&WinlinkBell != 0 {
		b.WriteByte('!')
	}
	if wl.Flags&WinlinkSilence != 0 {
		b.WriteByte('~')
	}
	if wl == wl.Session.Current {
		b.WriteByte('*')
	}
	if len(wl.Session.LastStack) > 0 && wl == wl.Session.LastStack[0] {
		b.WriteByte('-')
	}
	if wl.Window.Active != nil && wl.Window.Active.Marked {
		b.WriteByte('M')
	}
	if wl.Window.Zoomed {
		b.WriteByte('Z')
	}
	return b.String()
}
