package tmux

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// EnvEntry is one environment variable. A nil Value marks the variable as
// removed: it hides any global value of the same name.
type EnvEntry struct {
	Name   string
	Value  *string
	Hidden bool
}

// Environ is a set of environment variables. It is not synchronized; the
// session manager's mutex guards every Environ it owns.
type Environ struct {
	entries map[string]*EnvEntry
}

// NewEnviron returns an empty environment.
func NewEnviron() *Environ {
	return &Environ{entries: map[string]*EnvEntry{}}
}

// Find returns the named entry, including removed markers.
func (e *Environ) Find(name string) (*EnvEntry, bool) {
	if e == nil {
		return nil, false
	}
	entry, ok := e.entries[name]
	return entry, ok
}

// Set stores name=value.
func (e *Environ) Set(name, value string, hidden bool) {
	v := value
	e.entries[name] = &EnvEntry{Name: name, Value: &v, Hidden: hidden}
}

// Clear marks name as removed without deleting the entry.
func (e *Environ) Clear(name string) {
	e.entries[name] = &EnvEntry{Name: name}
}

// Unset deletes the entry entirely.
func (e *Environ) Unset(name string) {
	delete(e.entries, name)
}

// Each visits entries in name order.
func (e *Environ) Each(fn func(entry *EnvEntry)) {
	if e == nil {
		return
	}
	for _, name := range slices.Sorted(maps.Keys(e.entries)) {
		fn(e.entries[name])
	}
}

// Pairs renders the set (non-removed) entries as NAME=VALUE.
func (e *Environ) Pairs() []string {
	out := []string{}
	e.Each(func(entry *EnvEntry) {
		if entry.Value != nil {
			out = append(out, entry.Name+"="+*entry.Value)
		}
	})
	return out
}

// lookupEnvLocked resolves name in the session environment, falling back to
// the global one when the session has no entry (removed markers included).
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) lookupEnvLocked(s *TmuxSession, name string) (string, bool) {
	var entry *EnvEntry
	var ok bool
	if s != nil {
		entry, ok = s.Env.Find(name)
	}
	if !ok {
		entry, ok = m.globalEnv.Find(name)
	}
	if !ok || entry.Value == nil {
		return "", false
	}
	return *entry.Value, true
}

// envForLocked picks the session environment, or the global one when s is nil.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) envForLocked(s *TmuxSession) *Environ {
	if s == nil {
		return m.globalEnv
	}
	return s.Env
}

// SetEnvironment sets, clears or unsets a variable. session "" targets the
// global environment.
func (m *SessionManager) SetEnvironment(session, name, value string, clear, unset, hidden bool) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty variable name")
	}
	if strings.Contains(name, "=") {
		return fmt.Errorf("invalid variable name: %s", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	env := m.globalEnv
	if session != "" {
		s, err := m.getSessionByNameLocked(session)
		if err != nil {
			return err
		}
		env = s.Env
	}
	switch {
	case unset:
		env.Unset(name)
	case clear:
		env.Clear(name)
	default:
		env.Set(name, value, hidden)
	}
	return nil
}

// ShowEnvironment renders one environment as tmux show-environment does.
func (m *SessionManager) ShowEnvironment(session, name string, hidden bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	env := m.globalEnv
	if session != "" {
		s, err := m.getSessionByNameLocked(session)
		if err != nil {
			return nil, err
		}
		env = s.Env
	}
	render := func(entry *EnvEntry) string {
		if entry.Value == nil {
			return "-" + entry.Name
		}
		return entry.Name + "=" + *entry.Value
	}
	if name != "" {
		entry, ok := env.Find(name)
		if !ok {
			return nil, fmt.Errorf("unknown variable: %s", name)
		}
		return []string{render(entry)}, nil
	}
	var out []string
	env.Each(func(entry *EnvEntry) {
		if entry.Hidden == hidden {
			out = append(out, render(entry))
		}
	})
	return out, nil
}

// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) getSessionByNameLocked(name string) (*TmuxSession, error) {
	sessionName := parseSessionName(name)
	if sessionName == "" {
		return nil, fmt.Errorf("session name is required")
	}
	session, ok := m.sessions[sessionName]
	if !ok || session == nil {
		return nil, fmt.Errorf("session not found: %s", sessionName)
	}
	return session, nil
}

// parseSessionName extracts the session name from a target string.
// "mysession:0" -> "mysession".
func parseSessionName(name string) string {
	sessionName, _, _ := strings.Cut(strings.TrimSpace(name), ":")
	return sessionName
}
