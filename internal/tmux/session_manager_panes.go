package tmux

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"go-tmux/internal/job"
	"go-tmux/internal/options"
)

// SplitOptions configures SplitWindow.
type SplitOptions struct {
	// Horizontal places the new pane to the right instead of below.
	Horizontal bool
	Cwd        string
	Command    string
	Detached   bool
}

// newPaneLocked creates a pane in w and starts its command when a pane
// runner is configured.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) newPaneLocked(w *TmuxWindow, s *TmuxSession, cwd, command string) (*TmuxPane, error) {
	shell := m.defaultShell
	if s != nil {
		if v := s.Options.GetString("default-shell"); v != "" {
			shell = v
		}
		if command == "" {
			command = s.Options.GetString("default-command")
		}
	}
	p := &TmuxPane{
		ID:           m.nextPaneID,
		Window:       w,
		Fd:           -1,
		StartCommand: command,
		StartPath:    cwd,
		Shell:        shell,
		Width:        w.Width,
		Height:       w.Height,
		Options:      options.New(w.Options, options.ScopePane),
		changed:      true,
	}
	if host, err := os.Hostname(); err == nil {
		p.Title = host
	}
	m.nextPaneID++

	if m.paneRunner != nil {
		if err := m.startPaneLocked(p, s); err != nil {
			return nil, err
		}
	}

	m.panes[p.ID] = p
	w.Panes = append(w.Panes, p)
	if w.Active == nil {
		w.Active = p
	}
	return p, nil
}

// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) startPaneLocked(p *TmuxPane, s *TmuxSession) error {
	command := p.StartCommand
	if command == "" {
		command = "exec " + p.Shell
	}
	env := append(os.Environ(), m.globalEnv.Pairs()...)
	sessionID := -1
	if s != nil {
		env = append(env, s.Env.Pairs()...)
		sessionID = s.ID
	}
	env = append(env, "TMUX_PANE="+p.IDString(), fmt.Sprintf("TMUX=%s,%d,%d", m.socketPath, os.Getpid(), sessionID))

	paneID := p.ID
	proc, err := m.paneRunner.Run(job.Spec{
		Command:    command,
		Dir:        p.StartPath,
		Env:        env,
		OnUpdate:   func(j *job.Job) { m.paneOutput(paneID, j) },
		OnComplete: func(j *job.Job) { m.paneExited(paneID, j) },
	})
	if err != nil {
		return fmt.Errorf("start pane %s: %w", p.IDString(), err)
	}
	p.proc = proc
	p.Pid = proc.Pid()
	p.TTY = proc.TTY()
	p.Fd = proc.Fd()
	return nil
}

// paneOutput moves complete lines from the pane process into its history.
func (m *SessionManager) paneOutput(paneID int, j *job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.panes[paneID]
	if !ok {
		return
	}
	for {
		line, ok := j.ReadLine()
		if !ok {
			break
		}
		m.appendLineLocked(p, line)
	}
	p.changed = true
	if p.Window != nil {
		m.windowActivityLocked(p.Window)
	}
}

// paneExited marks the pane dead, or removes it unless remain-on-exit says
// otherwise.
func (m *SessionManager) paneExited(paneID int, j *job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.panes[paneID]
	if !ok {
		return
	}
	if rest := j.Remaining(); rest != "" {
		for _, line := range strings.Split(strings.TrimRight(rest, "\n"), "\n") {
			m.appendLineLocked(p, strings.TrimRight(line, "\r"))
		}
	}
	p.Dead = true
	p.DeadStatus = j.ExitCode()
	p.DeadTime = m.now()
	p.changed = true
	p.proc = nil

	remain := p.Options.GetNumber("remain-on-exit")
	if remain == 1 || (remain == 2 && p.DeadStatus != 0) {
		slog.Debug("[DEBUG-PANE] exited, remaining", "pane", p.IDString(), "status", p.DeadStatus)
		return
	}
	m.removePaneLocked(p)
}

// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) appendLineLocked(p *TmuxPane, line string) {
	p.History = append(p.History, line)
	limit := 2000
	if len(p.Window.Links) > 0 {
		limit = int(p.Window.Links[0].Session.Options.GetNumber("history-limit"))
	}
	if over := len(p.History) - (limit + p.Height); over > 0 {
		p.History = slices.Delete(p.History, 0, over)
	}
	p.CursorY = min(len(p.History), p.Height-1)
}

// AppendPaneLines appends screen lines to a pane, as if its program had
// printed them.
func (m *SessionManager) AppendPaneLines(paneID int, lines ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.panes[paneID]
	if !ok {
		return fmt.Errorf("pane not found: %%%d", paneID)
	}
	for _, line := range lines {
		m.appendLineLocked(p, line)
	}
	p.changed = true
	return nil
}

// SplitWindow splits the target pane.
func (m *SessionManager) SplitWindow(target string, callerPaneID int, opts SplitOptions) (*TmuxPane, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(target, callerPaneID)
	if err != nil {
		return nil, err
	}
	if t.Pane == nil || t.Pane.Window == nil {
		return nil, fmt.Errorf("pane not found: %s", target)
	}
	w := t.Pane.Window
	cwd := opts.Cwd
	if cwd == "" {
		cwd = t.Pane.StartPath
	}
	p, err := m.newPaneLocked(w, t.Session, cwd, opts.Command)
	if err != nil {
		return nil, err
	}
	dir := SplitVertical
	if opts.Horizontal {
		dir = SplitHorizontal
	}
	next, ok := splitLayout(w.Layout, t.Pane.ID, dir, p.ID)
	if !ok {
		slog.Warn("[WARN-LAYOUT] split target missing from layout, rebuilding", "pane", t.Pane.IDString())
		ids := make([]int, 0, len(w.Panes))
		for _, wp := range w.Panes {
			ids = append(ids, wp.ID)
		}
		next = BuildPresetLayout(PresetTiled, ids)
	}
	w.Layout = next
	w.Zoomed = false
	m.applyLayoutLocked(w)
	if !opts.Detached {
		m.setActivePaneLocked(w, p)
	}
	return p, nil
}

// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) setActivePaneLocked(w *TmuxWindow, p *TmuxPane) {
	if w.Active == p {
		return
	}
	w.LastPane = w.Active
	w.Active = p
	p.changed = true
}

// SelectPane makes the target pane active. A non-empty title also sets the
// pane title.
func (m *SessionManager) SelectPane(target string, callerPaneID int, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(target, callerPaneID)
	if err != nil {
		return err
	}
	if t.Pane == nil {
		return fmt.Errorf("pane not found: %s", target)
	}
	if title != "" {
		t.Pane.Title = title
	}
	m.setActivePaneLocked(t.Pane.Window, t.Pane)
	if t.Session != nil && t.Winlink != nil {
		m.setCurrentLocked(t.Session, t.Winlink)
	}
	return nil
}

// SetPaneMarked toggles the marked flag on the target pane.
func (m *SessionManager) SetPaneMarked(target string, marked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(target, -1)
	if err != nil {
		return err
	}
	if t.Pane == nil {
		return fmt.Errorf("pane not found: %s", target)
	}
	if marked {
		for _, p := range m.panes {
			p.Marked = false
		}
	}
	t.Pane.Marked = marked
	return nil
}

// KillPane destroys the target pane; its window goes with it when empty.
func (m *SessionManager) KillPane(target string, callerPaneID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.resolveTargetLocked(target, callerPaneID)
	if err != nil {
		return err
	}
	if t.Pane == nil {
		return fmt.Errorf("pane not found: %s", target)
	}
	m.removePaneLocked(t.Pane)
	return nil
}

// removePaneLocked detaches p from its window, destroying the window (and
// emptied sessions) when p was the last pane.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) removePaneLocked(p *TmuxPane) {
	w := p.Window
	m.destroyPaneLocked(p)
	if w == nil {
		return
	}
	w.Panes = slices.DeleteFunc(w.Panes, func(x *TmuxPane) bool { return x == p })
	if w.LastPane == p {
		w.LastPane = nil
	}
	if w.Active == p {
		w.Active = w.LastPane
		if w.Active == nil && len(w.Panes) > 0 {
			w.Active = w.Panes[0]
		}
		w.LastPane = nil
	}
	if len(w.Panes) == 0 {
		for _, wl := range append([]*TmuxWinlink(nil), w.Links...) {
			m.unlinkWindowLocked(wl)
		}
		m.reapEmptySessionsLocked()
		return
	}
	w.Layout, _ = removePaneFromLayout(w.Layout, p.ID)
	m.applyLayoutLocked(w)
}

// destroyPaneLocked kills the pane process and forgets the pane.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) destroyPaneLocked(p *TmuxPane) {
	if p.proc != nil {
		p.proc.Kill()
		p.proc = nil
	}
	delete(m.panes, p.ID)
	slog.Debug("[DEBUG-PANE] destroyed", "pane", p.IDString())
}

// searchPane returns the 1-based line of the first visible line matching
// match, or 0.
func searchPane(p *TmuxPane, match func(line string) bool) int {
	for i, line := range p.visibleLines() {
		if match(strings.TrimRight(line, " \t")) {
			return i + 1
		}
	}
	return 0
}
