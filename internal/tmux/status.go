package tmux

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-tmux/internal/workerutil"
)

// StatusLine is one client's rendered status line.
type StatusLine struct {
	Client  string
	Off     bool
	Left    string
	Windows string
	Right   string
}

// RenderStatus expands the status line of the named client.
func (m *SessionManager) RenderStatus(clientName string) (StatusLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.findClientLocked(clientName)
	if c == nil {
		return StatusLine{}, fmt.Errorf("client not found: %s", clientName)
	}
	return m.renderStatusLocked(c), nil
}

// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) renderStatusLocked(c *TmuxClient) StatusLine {
	line := StatusLine{Client: c.Name}
	s := c.Session
	if s == nil || s.Options.GetNumber("status") == 0 {
		line.Off = true
		return line
	}
	m.metrics.RecordExpansion(context.Background(), "status")

	line.Left = m.statusSideLocked(c, "status-left", "status-left-length")
	line.Right = m.statusSideLocked(c, "status-right", "status-right-length")

	var windows []string
	sep := ""
	for _, wl := range s.Windows {
		template := wl.Window.Options.GetString("window-status-format")
		if wl == s.Current {
			template = wl.Window.Options.GetString("window-status-current-format")
		}
		ft := m.NewFormatTree(c, FormatWindowTag|uint32(wl.Window.ID), FormatStatus)
		ft.Defaults(c, s, wl, nil)
		text := ft.ExpandTime(template)
		if text == "" {
			continue
		}
		windows = append(windows, text)
		sep = wl.Window.Options.GetString("window-status-separator")
	}
	line.Windows = strings.Join(windows, sep)
	return line
}

// statusSideLocked expands one side of the status line and trims it to the
// configured length.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) statusSideLocked(c *TmuxClient, name, lengthName string) string {
	ft := m.NewFormatTree(c, FormatNone, FormatStatus)
	ft.Defaults(c, nil, nil, nil)
	text := ft.ExpandTime(c.Session.Options.GetString(name))
	if limit := int(c.Session.Options.GetNumber(lengthName)); limit >= 0 && formatWidth(text) > limit {
		text = trimLeft(text, limit)
	}
	return text
}

// StatusClients returns the names of attached clients whose status line is
// on, in attach order.
func (m *SessionManager) StatusClients() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, c := range m.clients {
		if c.Session != nil && c.Session.Options.GetNumber("status") != 0 {
			out = append(out, c.Name)
		}
	}
	return out
}

// StatusInterval returns the named client's status-interval in seconds, or
// 0 when the client is unknown.
func (m *SessionManager) StatusInterval(clientName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.findClientLocked(clientName)
	if c == nil || c.Session == nil {
		return 0
	}
	return int(c.Session.Options.GetNumber("status-interval"))
}

// StatusTimer redraws each attached client whose status line is on once
// its status-interval has elapsed. A status-interval of 0 disables the
// periodic redraw for that client.
type StatusTimer struct {
	m        *SessionManager
	redrawer StatusRedrawer
	last     map[string]time.Time // client id -> last periodic redraw
}

// NewStatusTimer creates a timer for m.
func NewStatusTimer(m *SessionManager, redrawer StatusRedrawer) *StatusTimer {
	return &StatusTimer{m: m, redrawer: redrawer, last: map[string]time.Time{}}
}

// Tick redraws the clients that are due at now and returns their ids.
func (st *StatusTimer) Tick(now time.Time) []string {
	type due struct {
		id       string
		interval time.Duration
	}
	st.m.mu.RLock()
	candidates := make([]due, 0, len(st.m.clients))
	for _, c := range st.m.clients {
		if c.Session == nil || c.Session.Options.GetNumber("status") == 0 {
			continue
		}
		secs := c.Session.Options.GetNumber("status-interval")
		if secs <= 0 {
			continue
		}
		candidates = append(candidates, due{id: c.ID, interval: time.Duration(secs) * time.Second})
	}
	st.m.mu.RUnlock()

	seen := make(map[string]bool, len(candidates))
	var redrawn []string
	for _, c := range candidates {
		seen[c.id] = true
		last, ok := st.last[c.id]
		if ok && now.Sub(last) < c.interval {
			continue
		}
		st.last[c.id] = now
		if !ok {
			// First sighting only starts the clock; attach already drew it.
			continue
		}
		redrawn = append(redrawn, c.id)
	}
	for id := range st.last {
		if !seen[id] {
			delete(st.last, id)
		}
	}
	if st.redrawer != nil {
		for _, id := range redrawn {
			st.redrawer.RedrawStatus(id)
		}
	}
	return redrawn
}

// Run ticks every second until ctx is done.
func (st *StatusTimer) Run(ctx context.Context, wg *sync.WaitGroup) {
	workerutil.RunTicker(ctx, "status-timer", wg, time.Second, func(context.Context) {
		st.Tick(st.m.now())
	})
}
