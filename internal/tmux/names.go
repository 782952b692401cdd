package tmux

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"go-tmux/internal/workerutil"
)

// nameInterval is the minimum time between automatic-rename evaluations of
// one window.
const nameInterval = 500 * time.Millisecond

// ParseWindowName turns a command line into a window name: the first word,
// without quotes, an exec prefix, leading dashes or a directory.
func ParseWindowName(cmd string) string {
	name := strings.TrimPrefix(cmd, `"`)
	if i := strings.IndexByte(name, '"'); i != -1 {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "exec ")
	name = strings.TrimLeft(name, " -")
	if i := strings.IndexByte(name, ' '); i != -1 {
		name = name[:i]
	}
	for len(name) > 1 {
		c := name[len(name)-1]
		if isAlnum(c) || isPunct(c) {
			break
		}
		name = name[:len(name)-1]
	}
	if strings.HasPrefix(name, "/") {
		name = path.Base(name)
	}
	return name
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// DefaultWindowName names a new window after its pane's start command, or
// its shell when there is none.
func DefaultWindowName(p *TmuxPane) string {
	if p == nil {
		return ""
	}
	if p.StartCommand != "" {
		return ParseWindowName(p.StartCommand)
	}
	return ParseWindowName(p.Shell)
}

// CheckWindowNames applies automatic-rename to every window whose active
// pane changed, and returns the windows that got a new name.
func (m *SessionManager) CheckWindowNames() []*TmuxWindow {
	m.mu.Lock()
	defer m.mu.Unlock()

	var renamed []*TmuxWindow
	now := m.now()
	for _, w := range m.windowsSortedLocked() {
		if m.checkWindowNameLocked(w, now) {
			renamed = append(renamed, w)
		}
	}
	return renamed
}

// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) checkWindowNameLocked(w *TmuxWindow, now time.Time) bool {
	if w.Active == nil || w.Options.GetNumber("automatic-rename") == 0 {
		return false
	}
	if !w.Active.changed {
		return false
	}
	if !w.nameCheck.IsZero() && now.Sub(w.nameCheck) < nameInterval {
		slog.Debug("[DEBUG-NAMES] rename check deferred", "window", w.IDString(), "left", nameInterval-now.Sub(w.nameCheck))
		return false
	}
	w.nameCheck = now
	w.Active.changed = false

	name := m.formatWindowNameLocked(w)
	if name == w.Name {
		slog.Debug("[DEBUG-NAMES] name unchanged", "window", w.IDString(), "name", name)
		return false
	}
	slog.Debug("[DEBUG-NAMES] renamed", "window", w.IDString(), "name", name, "was", w.Name)
	w.Name = name
	return true
}

// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) formatWindowNameLocked(w *TmuxWindow) string {
	ft := m.NewFormatTree(nil, FormatWindowTag|uint32(w.ID), 0)
	t := m.targetForWindowLocked(w, nil)
	ft.Defaults(nil, t.Session, t.Winlink, w.Active)
	return ft.Expand(w.Options.GetString("automatic-rename-format"))
}

// RunNameChecks runs CheckWindowNames every interval until ctx is done and
// passes any renamed windows to onRename.
func (m *SessionManager) RunNameChecks(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, onRename func([]*TmuxWindow)) {
	workerutil.RunTicker(ctx, "automatic-rename", wg, interval, func(context.Context) {
		renamed := m.CheckWindowNames()
		if len(renamed) > 0 && onRename != nil {
			onRename(renamed)
		}
	})
}
