package tmux

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go-tmux/internal/userutil"
)

// formatValue is a resolved variable: a string or a timestamp.
type formatValue struct {
	s      string
	t      time.Time
	isTime bool
}

// plain renders the value without time formatting; times become decimal
// Unix seconds.
func (v formatValue) plain() string {
	if v.isTime {
		return strconv.FormatInt(v.t.Unix(), 10)
	}
	return v.s
}

type formatTableEntry struct {
	key string
	get func(ft *FormatTree) (formatValue, bool)
}

func fvString(s string) (formatValue, bool) { return formatValue{s: s}, true }

func fvInt(n int) (formatValue, bool) { return formatValue{s: strconv.Itoa(n)}, true }

func fvBool(b bool) (formatValue, bool) {
	if b {
		return formatValue{s: "1"}, true
	}
	return formatValue{s: "0"}, true
}

func fvTime(t time.Time) (formatValue, bool) {
	if t.IsZero() {
		return formatValue{}, false
	}
	return formatValue{t: t, isTime: true}, true
}

// Scoped accessor builders: each reports "not found" when its scope is absent.

func clientVar(fn func(ft *FormatTree, c *TmuxClient) (formatValue, bool)) func(*FormatTree) (formatValue, bool) {
	return func(ft *FormatTree) (formatValue, bool) {
		if ft.c == nil {
			return formatValue{}, false
		}
		return fn(ft, ft.c)
	}
}

func sessionVar(fn func(ft *FormatTree, s *TmuxSession) (formatValue, bool)) func(*FormatTree) (formatValue, bool) {
	return func(ft *FormatTree) (formatValue, bool) {
		if ft.s == nil {
			return formatValue{}, false
		}
		return fn(ft, ft.s)
	}
}

func windowVar(fn func(ft *FormatTree, w *TmuxWindow) (formatValue, bool)) func(*FormatTree) (formatValue, bool) {
	return func(ft *FormatTree) (formatValue, bool) {
		if ft.w == nil {
			return formatValue{}, false
		}
		return fn(ft, ft.w)
	}
}

func winlinkVar(fn func(ft *FormatTree, wl *TmuxWinlink) (formatValue, bool)) func(*FormatTree) (formatValue, bool) {
	return func(ft *FormatTree) (formatValue, bool) {
		if ft.wl == nil {
			return formatValue{}, false
		}
		return fn(ft, ft.wl)
	}
}

func paneVar(fn func(ft *FormatTree, wp *TmuxPane) (formatValue, bool)) func(*FormatTree) (formatValue, bool) {
	return func(ft *FormatTree) (formatValue, bool) {
		if ft.wp == nil {
			return formatValue{}, false
		}
		return fn(ft, ft.wp)
	}
}

func bufferVar(fn func(pb *PasteBuffer) (formatValue, bool)) func(*FormatTree) (formatValue, bool) {
	return func(ft *FormatTree) (formatValue, bool) {
		if ft.pb == nil {
			return formatValue{}, false
		}
		return fn(ft.pb)
	}
}

// formatTable is sorted by key; findFormatTable binary searches it.
var formatTable = []formatTableEntry{
	{"active_window_index", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) {
		if s.Current == nil {
			return formatValue{}, false
		}
		return fvInt(s.Current.Index)
	})},
	{"alternate_on", paneVar(func(*FormatTree, *TmuxPane) (formatValue, bool) { return fvBool(false) })},
	{"buffer_created", bufferVar(func(pb *PasteBuffer) (formatValue, bool) { return fvTime(pb.Created) })},
	{"buffer_name", bufferVar(func(pb *PasteBuffer) (formatValue, bool) { return fvString(pb.Name) })},
	{"buffer_sample", bufferVar(func(pb *PasteBuffer) (formatValue, bool) { return fvString(bufferSample(pb.Data, 200)) })},
	{"buffer_size", bufferVar(func(pb *PasteBuffer) (formatValue, bool) { return fvInt(len(pb.Data)) })},
	{"client_activity", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvTime(c.Activity) })},
	{"client_control_mode", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvBool(c.Flags&ClientControl != 0) })},
	{"client_created", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvTime(c.Created) })},
	{"client_flags", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvString(clientFlagsString(c)) })},
	{"client_height", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvInt(c.Height) })},
	{"client_key_table", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvString(c.KeyTable) })},
	{"client_last_session", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) {
		if c.LastSession == nil {
			return formatValue{}, false
		}
		return fvString(c.LastSession.Name)
	})},
	{"client_name", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvString(c.Name) })},
	{"client_pid", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvInt(c.Pid) })},
	{"client_readonly", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvBool(c.Flags&ClientReadonly != 0) })},
	{"client_session", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) {
		if c.Session == nil {
			return formatValue{}, false
		}
		return fvString(c.Session.Name)
	})},
	{"client_termname", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvString(c.TermName) })},
	{"client_tty", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvString(c.TTY) })},
	{"client_uid", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvInt(c.UID) })},
	{"client_user", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) {
		if c.User != "" {
			return fvString(c.User)
		}
		if name := userutil.NameForUID(c.UID); name != "" {
			return fvString(name)
		}
		return formatValue{}, false
	})},
	{"client_width", clientVar(func(_ *FormatTree, c *TmuxClient) (formatValue, bool) { return fvInt(c.Width) })},
	{"config_files", func(ft *FormatTree) (formatValue, bool) { return fvString(strings.Join(ft.m.configFiles, ",")) }},
	{"cursor_x", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvInt(wp.CursorX) })},
	{"cursor_y", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvInt(wp.CursorY) })},
	{"history_bytes", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) {
		n := 0
		for _, line := range wp.History {
			n += len(line) + 1
		}
		return fvInt(n)
	})},
	{"history_limit", paneVar(func(ft *FormatTree, _ *TmuxPane) (formatValue, bool) {
		if ft.s == nil {
			return fvInt(int(ft.m.globalSOptions.GetNumber("history-limit")))
		}
		return fvInt(int(ft.s.Options.GetNumber("history-limit")))
	})},
	{"history_size", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvInt(wp.historySize()) })},
	{"host", func(*FormatTree) (formatValue, bool) { return fvString(hostname()) }},
	{"host_short", func(*FormatTree) (formatValue, bool) {
		host, _, _ := strings.Cut(hostname(), ".")
		return fvString(host)
	}},
	{"last_window_index", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) {
		if len(s.Windows) == 0 {
			return formatValue{}, false
		}
		return fvInt(s.Windows[len(s.Windows)-1].Index)
	})},
	{"next_session_id", func(ft *FormatTree) (formatValue, bool) { return fvString("$" + strconv.Itoa(ft.m.nextSessionID)) }},
	{"pane_active", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvBool(wp.Window != nil && wp.Window.Active == wp) })},
	{"pane_at_bottom", paneVar(func(ft *FormatTree, wp *TmuxPane) (formatValue, bool) {
		return fvBool(wp.Window != nil && wp.Yoff+wp.Height >= wp.Window.Height)
	})},
	{"pane_at_left", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvBool(wp.Xoff == 0) })},
	{"pane_at_right", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) {
		return fvBool(wp.Window != nil && wp.Xoff+wp.Width >= wp.Window.Width)
	})},
	{"pane_at_top", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvBool(wp.Yoff == 0) })},
	{"pane_bottom", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvInt(wp.Yoff + wp.Height - 1) })},
	{"pane_current_command", paneVar(func(ft *FormatTree, wp *TmuxPane) (formatValue, bool) {
		if wp.Shell == "" {
			return formatValue{}, false
		}
		cmd := ft.m.procInfo.Name(wp.Fd, wp.Pid)
		if cmd == "" {
			cmd = wp.StartCommand
		}
		if cmd == "" {
			cmd = wp.Shell
		}
		return fvString(ParseWindowName(cmd))
	})},
	{"pane_current_path", paneVar(func(ft *FormatTree, wp *TmuxPane) (formatValue, bool) {
		cwd := ft.m.procInfo.Cwd(wp.Fd, wp.Pid)
		if cwd == "" {
			return formatValue{}, false
		}
		return fvString(cwd)
	})},
	{"pane_dead", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvBool(wp.Dead) })},
	{"pane_dead_status", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) {
		if !wp.Dead {
			return formatValue{}, false
		}
		return fvInt(wp.DeadStatus)
	})},
	{"pane_dead_time", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) {
		if !wp.Dead {
			return formatValue{}, false
		}
		return fvTime(wp.DeadTime)
	})},
	{"pane_height", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvInt(wp.Height) })},
	{"pane_id", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvString(wp.IDString()) })},
	{"pane_in_mode", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvBool(wp.InMode) })},
	{"pane_index", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvInt(wp.Index()) })},
	{"pane_input_off", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvBool(wp.InputOff) })},
	{"pane_last", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvBool(wp.Window != nil && wp.Window.LastPane == wp) })},
	{"pane_left", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvInt(wp.Xoff) })},
	{"pane_marked", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvBool(wp.Marked) })},
	{"pane_path", paneVar(func(*FormatTree, *TmuxPane) (formatValue, bool) { return fvString("") })},
	{"pane_pid", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvInt(wp.Pid) })},
	{"pane_right", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvInt(wp.Xoff + wp.Width - 1) })},
	{"pane_start_command", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvString(wp.StartCommand) })},
	{"pane_start_path", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvString(wp.StartPath) })},
	{"pane_title", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvString(wp.Title) })},
	{"pane_top", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvInt(wp.Yoff) })},
	{"pane_tty", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvString(wp.TTY) })},
	{"pane_width", paneVar(func(_ *FormatTree, wp *TmuxPane) (formatValue, bool) { return fvInt(wp.Width) })},
	{"pid", func(*FormatTree) (formatValue, bool) { return fvInt(os.Getpid()) }},
	{"server_sessions", func(ft *FormatTree) (formatValue, bool) { return fvInt(len(ft.m.sessions)) }},
	{"session_activity", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) { return fvTime(s.Activity) })},
	{"session_alerts", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) { return fvString(alertsLocked(s)) })},
	{"session_attached", sessionVar(func(ft *FormatTree, s *TmuxSession) (formatValue, bool) { return fvInt(ft.m.attachedCountLocked(s)) })},
	{"session_attached_list", sessionVar(func(ft *FormatTree, s *TmuxSession) (formatValue, bool) {
		var names []string
		for _, c := range ft.m.clients {
			if c.Session == s {
				names = append(names, c.Name)
			}
		}
		if len(names) == 0 {
			return formatValue{}, false
		}
		return fvString(strings.Join(names, ","))
	})},
	{"session_created", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) { return fvTime(s.Created) })},
	{"session_group", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) {
		if s.Group == "" {
			return formatValue{}, false
		}
		return fvString(s.Group)
	})},
	{"session_grouped", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) { return fvBool(s.Group != "") })},
	{"session_id", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) { return fvString(s.IDString()) })},
	{"session_last_attached", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) { return fvTime(s.LastAttached) })},
	{"session_many_attached", sessionVar(func(ft *FormatTree, s *TmuxSession) (formatValue, bool) { return fvBool(ft.m.attachedCountLocked(s) > 1) })},
	{"session_name", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) { return fvString(s.Name) })},
	{"session_path", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) { return fvString(s.Path) })},
	{"session_stack", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) { return fvString(stackLocked(s)) })},
	{"session_windows", sessionVar(func(_ *FormatTree, s *TmuxSession) (formatValue, bool) { return fvInt(len(s.Windows)) })},
	{"socket_path", func(ft *FormatTree) (formatValue, bool) { return fvString(ft.m.socketPath) }},
	{"start_time", func(ft *FormatTree) (formatValue, bool) { return fvTime(ft.m.startTime) }},
	{"uid", func(*FormatTree) (formatValue, bool) { return fvInt(os.Getuid()) }},
	{"user", func(*FormatTree) (formatValue, bool) {
		name := userutil.Current()
		if name == "" {
			return formatValue{}, false
		}
		return fvString(name)
	}},
	{"version", func(*FormatTree) (formatValue, bool) { return fvString(Version) }},
	{"window_active", winlinkVar(func(_ *FormatTree, wl *TmuxWinlink) (formatValue, bool) { return fvBool(wl.Session.Current == wl) })},
	{"window_active_clients", windowVar(func(ft *FormatTree, w *TmuxWindow) (formatValue, bool) {
		n := 0
		for _, c := range ft.m.clients {
			if c.Session != nil && c.Session.Current != nil && c.Session.Current.Window == w {
				n++
			}
		}
		return fvInt(n)
	})},
	{"window_active_sessions", windowVar(func(_ *FormatTree, w *TmuxWindow) (formatValue, bool) {
		n := 0
		for _, wl := range w.Links {
			if wl.Session.Current == wl {
				n++
			}
		}
		return fvInt(n)
	})},
	{"window_activity", windowVar(func(_ *FormatTree, w *TmuxWindow) (formatValue, bool) { return fvTime(w.Activity) })},
	{"window_activity_flag", winlinkVar(func(_ *FormatTree, wl *TmuxWinlink) (formatValue, bool) { return fvBool(wl.Flags&WinlinkActivity != 0) })},
	{"window_bell_flag", winlinkVar(func(_ *FormatTree, wl *TmuxWinlink) (formatValue, bool) { return fvBool(wl.Flags&WinlinkBell != 0) })},
	{"window_end_flag", winlinkVar(func(_ *FormatTree, wl *TmuxWinlink) (formatValue, bool) {
		ws := wl.Session.Windows
		return fvBool(len(ws) > 0 && ws[len(ws)-1] == wl)
	})},
	{"window_flags", winlinkVar(func(_ *FormatTree, wl *TmuxWinlink) (formatValue, bool) {
		return fvString(strings.ReplaceAll(rawFlagsLocked(wl), "#", "##"))
	})},
	{"window_height", windowVar(func(_ *FormatTree, w *TmuxWindow) (formatValue, bool) { return fvInt(w.Height) })},
	{"window_id", windowVar(func(_ *FormatTree, w *TmuxWindow) (formatValue, bool) { return fvString(w.IDString()) })},
	{"window_index", winlinkVar(func(_ *FormatTree, wl *TmuxWinlink) (formatValue, bool) { return fvInt(wl.Index) })},
	{"window_last_flag", winlinkVar(func(_ *FormatTree, wl *TmuxWinlink) (formatValue, bool) {
		last := wl.Session.LastStack
		return fvBool(len(last) > 0 && last[0] == wl)
	})},
	{"window_layout", windowVar(func(_ *FormatTree, w *TmuxWindow) (formatValue, bool) {
		if w.Layout == nil {
			return formatValue{}, false
		}
		return fvString(layoutString(w.Layout))
	})},
	{"window_linked", windowVar(func(_ *FormatTree, w *TmuxWindow) (formatValue, bool) { return fvBool(len(w.Links) > 1) })},
	{"window_linked_sessions", windowVar(func(_ *FormatTree, w *TmuxWindow) (formatValue, bool) { return fvInt(len(w.Links)) })},
	{"window_marked_flag", winlinkVar(func(_ *FormatTree, wl *TmuxWinlink) (formatValue, bool) {
		for _, wp := range wl.Window.Panes {
			if wp.Marked {
				return fvBool(true)
			}
		}
		return fvBool(false)
	})},
	{"window_name", windowVar(func(_ *FormatTree, w *TmuxWindow) (formatValue, bool) { return fvString(w.Name) })},
	{"window_panes", windowVar(func(_ *FormatTree, w *TmuxWindow) (formatValue, bool) { return fvInt(len(w.Panes)) })},
	{"window_raw_flags", winlinkVar(func(_ *FormatTree, wl *TmuxWinlink) (formatValue, bool) { return fvString(rawFlagsLocked(wl)) })},
	{"window_silence_flag", winlinkVar(func(_ *FormatTree, wl *TmuxWinlink) (formatValue, bool) { return fvBool(wl.Flags&WinlinkSilence != 0) })},
	{"window_stack_index", winlinkVar(func(_ *FormatTree, wl *TmuxWinlink) (formatValue, bool) {
		for i, other := range wl.Session.LastStack {
			if other == wl {
				return fvInt(i + 1)
			}
		}
		return fvInt(0)
	})},
	{"window_start_flag", winlinkVar(func(_ *FormatTree, wl *TmuxWinlink) (formatValue, bool) {
		ws := wl.Session.Windows
		return fvBool(len(ws) > 0 && ws[0] == wl)
	})},
	{"window_width", windowVar(func(_ *FormatTree, w *TmuxWindow) (formatValue, bool) { return fvInt(w.Width) })},
	{"window_zoomed_flag", windowVar(func(_ *FormatTree, w *TmuxWindow) (formatValue, bool) { return fvBool(w.Zoomed) })},
}

// findFormatTable binary searches the sorted table.
func findFormatTable(key string) *formatTableEntry {
	i := sort.Search(len(formatTable), func(i int) bool { return formatTable[i].key >= key })
	if i < len(formatTable) && formatTable[i].key == key {
		return &formatTable[i]
	}
	return nil
}

// hostnameFn is replaced in tests.
var hostnameFn = os.Hostname

func hostname() string {
	host, err := hostnameFn()
	if err != nil {
		return ""
	}
	return host
}

// bufferSample renders up to width bytes of data with control characters
// escaped, adding "..." when truncated.
func bufferSample(data string, width int) string {
	var b strings.Builder
	for _, r := range data {
		if b.Len() >= width {
			b.WriteString("...")
			break
		}
		switch {
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\\':
			b.WriteString(`\\`)
		case r < 0x20 || r == 0x7f:
			b.WriteString(`\` + strconv.FormatInt(int64(r), 8))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
