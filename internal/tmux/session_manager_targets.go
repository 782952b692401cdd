package tmux

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Target is a resolved command target. Any field may be nil when the target
// string does not reach that far.
type Target struct {
	Session *TmuxSession
	Winlink *TmuxWinlink
	Pane    *TmuxPane
}

// resolveTargetLocked parses tmux target syntax: "", "$N", "@N", "%N",
// "session", "session:", "session:window", "session:window.pane", ":window",
// "window.pane". A window may be an index, "@N" or a window name; a session
// may be a name, a unique name prefix or "$N". callerPaneID (-1 for none)
// supplies the default context.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) resolveTargetLocked(target string, callerPaneID int) (Target, error) {
	target = strings.TrimSpace(target)
	base, err := m.defaultTargetLocked(callerPaneID)
	if target == "" {
		return base, err
	}

	switch target[0] {
	case '%':
		id, err := parsePaneID(target)
		if err != nil {
			return Target{}, err
		}
		pane, ok := m.panes[id]
		if !ok {
			return Target{}, fmt.Errorf("pane not found: %s", target)
		}
		return m.targetForPaneLocked(pane), nil
	case '@':
		w, err := m.findWindowByIDLocked(target)
		if err != nil {
			return Target{}, err
		}
		return m.targetForWindowLocked(w, base.Session), nil
	}

	sessionPart, rest, hasColon := strings.Cut(target, ":")
	if !hasColon {
		if s, err := m.findSessionLocked(target); err == nil {
			return sessionTarget(s), nil
		}
		// "window.pane" or "window" relative to the default session.
		if base.Session == nil {
			return Target{}, fmt.Errorf("session not found: %s", target)
		}
		return m.resolveWindowPartLocked(base.Session, target)
	}

	s := base.Session
	if sessionPart != "" {
		s, err = m.findSessionLocked(sessionPart)
		if err != nil {
			return Target{}, err
		}
	}
	if s == nil {
		return Target{}, errors.New("no current session")
	}
	if strings.TrimSpace(rest) == "" {
		return sessionTarget(s), nil
	}
	return m.resolveWindowPartLocked(s, rest)
}

func (m *SessionManager) resolveWindowPartLocked(s *TmuxSession, spec string) (Target, error) {
	windowPart, panePart, hasPane := strings.Cut(spec, ".")
	wl, err := findWinlinkLocked(s, windowPart)
	if err != nil {
		return Target{}, err
	}
	t := Target{Session: s, Winlink: wl, Pane: wl.Window.Active}
	if !hasPane || strings.TrimSpace(panePart) == "" {
		return t, nil
	}
	if strings.HasPrefix(panePart, "%") {
		id, err := parsePaneID(panePart)
		if err != nil {
			return Target{}, err
		}
		for _, p := range wl.Window.Panes {
			if p.ID == id {
				t.Pane = p
				return t, nil
			}
		}
		return Target{}, fmt.Errorf("pane not found: %s", panePart)
	}
	idx, err := strconv.Atoi(panePart)
	if err != nil {
		return Target{}, fmt.Errorf("invalid pane index: %s", panePart)
	}
	for _, p := range wl.Window.Panes {
		if p.Index() == idx {
			t.Pane = p
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("pane index out of range: %d", idx)
}

func findWinlinkLocked(s *TmuxSession, spec string) (*TmuxWinlink, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		if s.Current == nil {
			return nil, errors.New("session has no windows")
		}
		return s.Current, nil
	}
	if strings.HasPrefix(spec, "@") {
		for _, wl := range s.Windows {
			if wl.Window.IDString() == spec {
				return wl, nil
			}
		}
		return nil, fmt.Errorf("window not found: %s", spec)
	}
	if idx, err := strconv.Atoi(spec); err == nil {
		for _, wl := range s.Windows {
			if wl.Index == idx {
				return wl, nil
			}
		}
		return nil, fmt.Errorf("window index out of range: %d", idx)
	}
	for _, wl := range s.Windows {
		if wl.Window.Name == spec {
			return wl, nil
		}
	}
	return nil, fmt.Errorf("window not found: %s", spec)
}

// findSessionLocked matches "$N", an exact name or a unique name prefix.
func (m *SessionManager) findSessionLocked(spec string) (*TmuxSession, error) {
	if strings.HasPrefix(spec, "$") {
		id, err := strconv.Atoi(spec[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid session id: %s", spec)
		}
		for _, s := range m.sessions {
			if s.ID == id {
				return s, nil
			}
		}
		return nil, fmt.Errorf("session not found: %s", spec)
	}
	if s, ok := m.sessions[spec]; ok {
		return s, nil
	}
	var match *TmuxSession
	for _, s := range m.sessionsSortedLocked() {
		if strings.HasPrefix(s.Name, spec) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous session: %s", spec)
			}
			match = s
		}
	}
	if match == nil {
		return nil, fmt.Errorf("session not found: %s", spec)
	}
	return match, nil
}

func (m *SessionManager) findWindowByIDLocked(spec string) (*TmuxWindow, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(spec, "@"))
	if err != nil || id < 0 {
		return nil, fmt.Errorf("invalid window id: %s", spec)
	}
	w, ok := m.windows[id]
	if !ok {
		return nil, fmt.Errorf("window not found: %s", spec)
	}
	return w, nil
}

// defaultTargetLocked returns the caller pane's context, else the first
// session's current window.
func (m *SessionManager) defaultTargetLocked(callerPaneID int) (Target, error) {
	if callerPaneID >= 0 {
		if pane, ok := m.panes[callerPaneID]; ok {
			return m.targetForPaneLocked(pane), nil
		}
	}
	sessions := m.sessionsSortedLocked()
	if len(sessions) == 0 {
		return Target{}, errors.New("no sessions")
	}
	return sessionTarget(sessions[0]), nil
}

func sessionTarget(s *TmuxSession) Target {
	t := Target{Session: s, Winlink: s.Current}
	if s.Current != nil {
		t.Pane = s.Current.Window.Active
	}
	return t
}

// targetForPaneLocked picks the first session linking the pane's window.
func (m *SessionManager) targetForPaneLocked(p *TmuxPane) Target {
	t := Target{Pane: p}
	if p.Window != nil && len(p.Window.Links) > 0 {
		t.Winlink = p.Window.Links[0]
		t.Session = t.Winlink.Session
	}
	return t
}

// targetForWindowLocked prefers the link in the preferred session.
func (m *SessionManager) targetForWindowLocked(w *TmuxWindow, preferred *TmuxSession) Target {
	t := Target{Pane: w.Active}
	for _, wl := range w.Links {
		if wl.Session == preferred {
			t.Winlink, t.Session = wl, wl.Session
			return t
		}
	}
	if len(w.Links) > 0 {
		t.Winlink, t.Session = w.Links[0], w.Links[0].Session
	}
	return t
}

// ResolveTarget resolves a target string under the read lock. The returned
// pointers must only be dereferenced while the caller holds the lock.
func (m *SessionManager) ResolveTarget(target string, callerPaneID int) (Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolveTargetLocked(target, callerPaneID)
}

// ParseCallerPane parses a TMUX_PANE-like id string.
func ParseCallerPane(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return -1
	}
	id, err := parsePaneID(value)
	if err != nil {
		return -1
	}
	return id
}

func parsePaneID(value string) (int, error) {
	if !strings.HasPrefix(value, "%") {
		return -1, fmt.Errorf("invalid pane id: %s", value)
	}
	id, err := strconv.Atoi(strings.TrimPrefix(value, "%"))
	if err != nil || id < 0 {
		return -1, fmt.Errorf("invalid pane id: %s", value)
	}
	return id, nil
}
