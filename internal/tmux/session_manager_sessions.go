package tmux

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go-tmux/internal/options"
)

// NewSessionOptions configures CreateSession.
type NewSessionOptions struct {
	Name       string
	WindowName string
	Cwd        string
	Command    string
	Width      int
	Height     int
	Env        map[string]string
}

// ErrDuplicateSession is returned when a session name is already taken.
var ErrDuplicateSession = errors.New("duplicate session")

// CreateSession creates a session with one window and one pane.
func (m *SessionManager) CreateSession(opts NewSessionOptions) (*TmuxSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createSessionLocked(opts)
}

// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) createSessionLocked(opts NewSessionOptions) (*TmuxSession, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = fmt.Sprint(m.nextSessionID)
	}
	if err := validateSessionName(name); err != nil {
		return nil, err
	}
	if _, exists := m.sessions[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, name)
	}

	now := m.now()
	s := &TmuxSession{
		ID:       m.nextSessionID,
		Name:     name,
		Created:  now,
		Activity: now,
		Env:      NewEnviron(),
		Options:  options.New(m.globalSOptions, options.ScopeSession),
		Path:     opts.Cwd,
	}
	for k, v := range opts.Env {
		s.Env.Set(k, v, false)
	}
	m.nextSessionID++
	m.sessions[name] = s

	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = DefaultTerminalCols
	}
	if height <= 0 {
		height = DefaultTerminalRows
	}
	wl, err := m.newWindowLocked(s, -1, opts.WindowName, opts.Cwd, opts.Command, width, height)
	if err != nil {
		delete(m.sessions, name)
		return nil, err
	}
	m.setCurrentLocked(s, wl)
	slog.Debug("[DEBUG-SESSION] created", "session", s.Name, "id", s.IDString())
	return s, nil
}

func validateSessionName(name string) error {
	if strings.ContainsAny(name, ":.") {
		return fmt.Errorf("invalid session name: %s", name)
	}
	return nil
}

// RenameSession renames the target session.
func (m *SessionManager) RenameSession(target, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return errors.New("new session name is required")
	}
	if err := validateSessionName(newName); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(target, -1)
	if err != nil {
		return err
	}
	if t.Session == nil {
		return fmt.Errorf("session not found: %s", target)
	}
	if _, exists := m.sessions[newName]; exists && newName != t.Session.Name {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, newName)
	}
	delete(m.sessions, t.Session.Name)
	t.Session.Name = newName
	m.sessions[newName] = t.Session
	return nil
}

// HasSession reports whether target names an existing session.
func (m *SessionManager) HasSession(target string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.findSessionLocked(parseSessionName(target))
	return err == nil
}

// KillSession destroys the session and every window only it links.
func (m *SessionManager) KillSession(target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(target, -1)
	if err != nil {
		return err
	}
	if t.Session == nil {
		return fmt.Errorf("session not found: %s", target)
	}
	m.destroySessionLocked(t.Session)
	return nil
}

// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) destroySessionLocked(s *TmuxSession) {
	for _, wl := range append([]*TmuxWinlink(nil), s.Windows...) {
		m.unlinkWindowLocked(wl)
	}
	delete(m.sessions, s.Name)
	for _, c := range m.clients {
		if c.LastSession == s {
			c.LastSession = nil
		}
		if c.Session == s {
			c.Session = nil
		}
	}
	slog.Debug("[DEBUG-SESSION] destroyed", "session", s.Name, "id", s.IDString())
}

// SessionNames returns session names in id order.
func (m *SessionManager) SessionNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := m.sessionsSortedLocked()
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Name)
	}
	return out
}

// alertsLocked renders session_alerts: each alerted winlink index followed by
// its # ! ~ markers, comma separated.
func alertsLocked(s *TmuxSession) string {
	var parts []string
	for _, wl := range s.Windows {
		if wl.Flags&winlinkAlertFlags == 0 {
			continue
		}
		part := fmt.Sprint(wl.Index)
		if wl.Flags&WinlinkActivity != 0 {
			part += "#"
		}
		if wl.Flags&WinlinkBell != 0 {
			part += "!"
		}
		if wl.Flags&WinlinkSilence != 0 {
			part += "~"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ",")
}

// stackLocked renders session_stack: the current index then the last stack.
func stackLocked(s *TmuxSession) string {
	var parts []string
	if s.Current != nil {
		parts = append(parts, fmt.Sprint(s.Current.Index))
	}
	for _, wl := range s.LastStack {
		parts = append(parts, fmt.Sprint(wl.Index))
	}
	return strings.Join(parts, ",")
}
