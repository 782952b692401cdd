package tmux

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ClientOptions configures AttachClient.
type ClientOptions struct {
	Name     string
	TTY      string
	Pid      int
	Target   string
	Width    int
	Height   int
	TermName string
	User     string
	UID      int
	Cwd      string
	Readonly bool
	Control  bool
}

// AttachClient registers a client attached to the target session.
func (m *SessionManager) AttachClient(opts ClientOptions) (*TmuxClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(opts.Target, -1)
	if err != nil {
		return nil, err
	}
	if t.Session == nil {
		return nil, errors.New("no session to attach to")
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = opts.TTY
	}
	if name == "" {
		name = fmt.Sprintf("client-%d", len(m.clients))
	}
	if m.findClientLocked(name) != nil {
		return nil, fmt.Errorf("client already attached: %s", name)
	}

	now := m.now()
	c := &TmuxClient{
		ID:       uuid.NewString(),
		Name:     name,
		TTY:      opts.TTY,
		Pid:      opts.Pid,
		Session:  t.Session,
		Width:    opts.Width,
		Height:   opts.Height,
		TermName: opts.TermName,
		KeyTable: "root",
		Flags:    ClientAttached | ClientUTF8,
		Created:  now,
		Activity: now,
		User:     opts.User,
		UID:      opts.UID,
		Cwd:      opts.Cwd,
	}
	if c.Width <= 0 {
		c.Width = DefaultTerminalCols
	}
	if c.Height <= 0 {
		c.Height = DefaultTerminalRows
	}
	if c.TermName == "" {
		c.TermName = "xterm-256color"
	}
	if opts.Readonly {
		c.Flags |= ClientReadonly
	}
	if opts.Control {
		c.Flags |= ClientControl
	}
	t.Session.LastAttached = now
	m.clients = append(m.clients, c)
	slog.Debug("[DEBUG-CLIENT] attached", "client", c.Name, "id", c.ID, "session", t.Session.Name)
	return c, nil
}

// DetachClient removes the named client, drops its cached #() jobs and
// returns its id.
func (m *SessionManager) DetachClient(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.findClientLocked(name)
	if c == nil {
		return "", fmt.Errorf("client not found: %s", name)
	}
	m.clients = slices.DeleteFunc(m.clients, func(x *TmuxClient) bool { return x == c })
	if m.jobs != nil {
		m.jobs.LostClient(c.ID)
	}
	slog.Debug("[DEBUG-CLIENT] detached", "client", c.Name, "id", c.ID)
	return c.ID, nil
}

// SwitchClient moves the named client to the target session.
func (m *SessionManager) SwitchClient(name, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.findClientLocked(name)
	if c == nil {
		return fmt.Errorf("client not found: %s", name)
	}
	t, err := m.resolveTargetLocked(target, -1)
	if err != nil {
		return err
	}
	if t.Session == nil {
		return fmt.Errorf("session not found: %s", target)
	}
	if t.Session != c.Session {
		c.LastSession = c.Session
		c.Session = t.Session
		t.Session.LastAttached = m.now()
	}
	if t.Winlink != nil {
		m.setCurrentLocked(t.Session, t.Winlink)
	}
	return nil
}

// ResizeClient records a new client size.
func (m *SessionManager) ResizeClient(name string, width, height int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.findClientLocked(name)
	if c == nil {
		return fmt.Errorf("client not found: %s", name)
	}
	if width > 0 {
		c.Width = width
	}
	if height > 0 {
		c.Height = height
	}
	c.Activity = m.now()
	return nil
}

// ClientNames returns attached client names in attach order.
func (m *SessionManager) ClientNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c.Name)
	}
	return out
}

// clientIDs returns the ids of attached clients.
func (m *SessionManager) clientIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c.ID)
	}
	return out
}

// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) findClientLocked(name string) *TmuxClient {
	for _, c := range m.clients {
		if c.Name == name || c.ID == name || (c.TTY != "" && c.TTY == name) {
			return c
		}
	}
	return nil
}

// clientFlagsString renders client_flags.
func clientFlagsString(c *TmuxClient) string {
	var parts []string
	if c.Flags&ClientAttached != 0 {
		parts = append(parts, "attached")
	}
	if c.Flags&ClientControl != 0 {
		parts = append(parts, "control-mode")
	}
	if c.Flags&ClientFocused != 0 {
		parts = append(parts, "focused")
	}
	if c.Flags&ClientReadonly != 0 {
		parts = append(parts, "read-only")
	}
	if c.Flags&ClientUTF8 != 0 {
		parts = append(parts, "UTF-8")
	}
	return strings.Join(parts, ",")
}

// SetBuffer stores a paste buffer. An empty name allocates "bufferN" and
// evicts the oldest automatic buffers beyond buffer-limit.
func (m *SessionManager) SetBuffer(name, data string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	automatic := name == ""
	if automatic {
		name = fmt.Sprintf("buffer%04d", m.nextBuffer)
	}
	m.nextBuffer++
	m.buffers[name] = &PasteBuffer{
		Name:    name,
		Data:    data,
		Created: m.now(),
		order:   m.nextBuffer,
	}
	if automatic {
		m.evictBuffersLocked()
	}
	return name, nil
}

// DeleteBuffer removes a paste buffer.
func (m *SessionManager) DeleteBuffer(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buffers[name]; !ok {
		return fmt.Errorf("no buffer %s", name)
	}
	delete(m.buffers, name)
	return nil
}

// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) evictBuffersLocked() {
	limit := int(m.globalOptions.GetNumber("buffer-limit"))
	var auto []*PasteBuffer
	for _, pb := range m.buffers {
		if strings.HasPrefix(pb.Name, "buffer") {
			auto = append(auto, pb)
		}
	}
	if len(auto) <= limit {
		return
	}
	slices.SortFunc(auto, func(a, b *PasteBuffer) int { return a.order - b.order })
	for _, pb := range auto[:len(auto)-limit] {
		delete(m.buffers, pb.Name)
	}
}

// buffersNewestFirstLocked returns buffers newest first.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) buffersNewestFirstLocked() []*PasteBuffer {
	out := make([]*PasteBuffer, 0, len(m.buffers))
	for _, pb := range m.buffers {
		out = append(out, pb)
	}
	slices.SortFunc(out, func(a, b *PasteBuffer) int { return b.order - a.order })
	return out
}
