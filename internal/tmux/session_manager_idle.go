package tmux

import (
	"log/slog"
	"time"
)

// windowActivityLocked records output in w. Links to w that are not current
// get the activity alert when monitor-activity is on.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) windowActivityLocked(w *TmuxWindow) {
	now := m.now()
	w.Activity = now
	w.silent = false
	monitored := w.Options.GetNumber("monitor-activity") != 0
	for _, wl := range w.Links {
		wl.Session.Activity = now
		wl.Flags &^= WinlinkSilence
		if monitored && wl.Session.Current != wl {
			wl.Flags |= WinlinkActivity
		}
	}
}

// CheckSilence sets the silence alert on windows that have produced no
// output for monitor-silence seconds. It returns true when any flag changed.
func (m *SessionManager) CheckSilence() bool {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	for _, w := range m.windows {
		interval := w.Options.GetNumber("monitor-silence")
		if interval <= 0 || w.silent {
			continue
		}
		if now.Sub(w.Activity) < time.Duration(interval)*time.Second {
			continue
		}
		w.silent = true
		for _, wl := range w.Links {
			if wl.Session.Current != wl {
				wl.Flags |= WinlinkSilence
			}
		}
		changed = true
		if debugEnabled() {
			slog.Debug("[DEBUG-WINDOW] silence alert", "window", w.ID, "seconds", interval)
		}
	}
	return changed
}
