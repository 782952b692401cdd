package tmux

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go-tmux/internal/job"
	"go-tmux/internal/metrics"
	"go-tmux/internal/options"
	"go-tmux/internal/osdep"
	"go-tmux/internal/userutil"
)

// Version is reported by the version format variable.
const Version = "3.5-go"

// DefaultTerminalCols is the default window width when no explicit size is provided.
const DefaultTerminalCols = 80

// DefaultTerminalRows is the default window height when no explicit size is provided.
const DefaultTerminalRows = 24

// WinlinkFlags are the per-link alert flags.
type WinlinkFlags int

const (
	WinlinkBell WinlinkFlags = 1 << iota
	WinlinkActivity
	WinlinkSilence
)

const winlinkAlertFlags = WinlinkBell | WinlinkActivity | WinlinkSilence

// TmuxSession models a tmux-like session.
type TmuxSession struct {
	ID   int
	Name string
	// Windows is kept sorted by winlink index.
	Windows []*TmuxWinlink
	Current *TmuxWinlink
	// LastStack holds previously current winlinks, most recent first.
	LastStack []*TmuxWinlink

	Created      time.Time
	Activity     time.Time
	LastAttached time.Time

	Env     *Environ
	Options *options.Options
	Path    string
	Group   string
}

// IDString returns the "$N" form of the session id.
func (s *TmuxSession) IDString() string {
	return fmt.Sprintf("$%d", s.ID)
}

// TmuxWinlink binds a window into one session at an index.
type TmuxWinlink struct {
	Index   int
	Session *TmuxSession
	Window  *TmuxWindow
	Flags   WinlinkFlags
}

// TmuxWindow models a tmux-like window. A window may be linked into several
// sessions.
type TmuxWindow struct {
	ID       int
	Name     string
	Links    []*TmuxWinlink
	Panes    []*TmuxPane
	Active   *TmuxPane
	LastPane *TmuxPane
	Width    int
	Height   int
	Layout   *LayoutNode
	Options  *options.Options
	Activity time.Time
	Zoomed   bool

	// silent is set once the monitor-silence alert fired for this window.
	silent bool
	// nameCheck is when automatic-rename last evaluated this window.
	nameCheck time.Time
}

// IDString returns the "@N" form of the window id.
func (w *TmuxWindow) IDString() string {
	return fmt.Sprintf("@%d", w.ID)
}

// TmuxPane models a tmux-like pane.
type TmuxPane struct {
	ID     int
	Window *TmuxWindow
	Title  string

	Width  int
	Height int
	Xoff   int
	Yoff   int

	Pid          int
	TTY          string
	Fd           int
	StartCommand string
	StartPath    string
	Shell        string

	Dead       bool
	DeadStatus int
	DeadTime   time.Time

	CursorX int
	CursorY int
	// History holds scrolled-off lines followed by the visible screen lines.
	History  []string
	InMode   bool
	InputOff bool
	Marked   bool

	Options *options.Options
	// changed is set when the pane's foreground process may have changed
	// since the last automatic-rename check.
	changed bool
	proc    *job.Job
}

// IDString returns the "%N" form of the pane id.
func (p *TmuxPane) IDString() string {
	return fmt.Sprintf("%%%d", p.ID)
}

// Index returns the pane's position in its window plus pane-base-index.
func (p *TmuxPane) Index() int {
	if p.Window == nil {
		return 0
	}
	base := int(p.Window.Options.GetNumber("pane-base-index"))
	for i, wp := range p.Window.Panes {
		if wp == p {
			return i + base
		}
	}
	return base
}

// visibleLines returns the lines currently on screen.
func (p *TmuxPane) visibleLines() []string {
	if len(p.History) <= p.Height || p.Height <= 0 {
		return p.History
	}
	return p.History[len(p.History)-p.Height:]
}

// historySize is the number of scrolled-off lines.
func (p *TmuxPane) historySize() int {
	if p.Height <= 0 || len(p.History) <= p.Height {
		return 0
	}
	return len(p.History) - p.Height
}

// ClientFlags describe an attached client.
type ClientFlags int

const (
	ClientAttached ClientFlags = 1 << iota
	ClientControl
	ClientReadonly
	ClientFocused
	ClientUTF8
)

// TmuxClient is one attached viewer.
type TmuxClient struct {
	// ID is stable across reconnects and scopes the client's cached jobs.
	ID          string
	Name        string
	TTY         string
	Pid         int
	Session     *TmuxSession
	LastSession *TmuxSession
	Width       int
	Height      int
	TermName    string
	KeyTable    string
	Flags       ClientFlags
	Created     time.Time
	Activity    time.Time
	User        string
	UID         int
	Cwd         string
}

// PasteBuffer is one stored paste buffer.
type PasteBuffer struct {
	Name    string
	Data    string
	Created time.Time
	order   int
}

// SessionManagerOptions configures a SessionManager.
type SessionManagerOptions struct {
	DefaultShell string
	SocketPath   string
	ConfigFiles  []string
	// Jobs is the #() cache. Nil disables job expansion.
	Jobs *FormatJobs
	// PaneRunner starts pane commands. Nil creates panes without processes.
	PaneRunner *job.Runner
	// ProcessInfo resolves pane foreground processes. Nil uses osdep.Default.
	ProcessInfo osdep.ProcessInfo
	Metrics     *metrics.Metrics
}

// SessionManager owns session/window/pane/client state.
type SessionManager struct {
	sessions map[string]*TmuxSession
	windows  map[int]*TmuxWindow
	panes    map[int]*TmuxPane
	clients  []*TmuxClient
	buffers  map[string]*PasteBuffer

	nextSessionID int
	nextWindowID  int
	nextPaneID    int
	nextBuffer    int

	globalOptions  *options.Options
	globalSOptions *options.Options
	globalWOptions *options.Options
	globalEnv      *Environ

	startTime    time.Time
	socketPath   string
	configFiles  []string
	defaultShell string

	jobs       *FormatJobs
	paneRunner *job.Runner
	procInfo   osdep.ProcessInfo
	metrics    *metrics.Metrics
	now        func() time.Time

	mu sync.RWMutex
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	shell := opts.DefaultShell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	socket := opts.SocketPath
	if socket == "" {
		socket = filepath.Join(os.TempDir(), "go-tmux-"+userutil.SanitizeUsername(userutil.Current()), "default")
	}
	m := &SessionManager{
		sessions:       map[string]*TmuxSession{},
		windows:        map[int]*TmuxWindow{},
		panes:          map[int]*TmuxPane{},
		buffers:        map[string]*PasteBuffer{},
		globalOptions:  options.NewGlobal(options.ScopeServer),
		globalSOptions: options.NewGlobal(options.ScopeSession),
		globalWOptions: options.NewGlobal(options.ScopeWindow | options.ScopePane),
		globalEnv:      NewEnviron(),
		socketPath:     socket,
		configFiles:    append([]string(nil), opts.ConfigFiles...),
		defaultShell:   shell,
		jobs:           opts.Jobs,
		paneRunner:     opts.PaneRunner,
		procInfo:       opts.ProcessInfo,
		metrics:        opts.Metrics,
		now:            time.Now,
	}
	if m.procInfo == nil {
		m.procInfo = osdep.Default
	}
	m.startTime = m.now()
	_ = m.globalSOptions.Set("default-shell", shell)
	return m
}

// Jobs returns the #() cache, or nil.
func (m *SessionManager) Jobs() *FormatJobs {
	return m.jobs
}

// RLock acquires the state read lock. Format trees must only be built and
// expanded while it (or the write lock) is held.
func (m *SessionManager) RLock() {
	m.mu.RLock()
}

// RUnlock releases the state read lock.
func (m *SessionManager) RUnlock() {
	m.mu.RUnlock()
}

// sessionsSortedLocked returns sessions in id order.
func (m *SessionManager) sessionsSortedLocked() []*TmuxSession {
	out := make([]*TmuxSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *SessionManager) windowsSortedLocked() []*TmuxWindow {
	out := make([]*TmuxWindow, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// topBufferLocked returns the most recently added paste buffer.
func (m *SessionManager) topBufferLocked() *PasteBuffer {
	var top *PasteBuffer
	for _, pb := range m.buffers {
		if top == nil || pb.order > top.order {
			top = pb
		}
	}
	return top
}

func (m *SessionManager) attachedCountLocked(s *TmuxSession) int {
	n := 0
	for _, c := range m.clients {
		if c.Session == s {
			n++
		}
	}
	return n
}
