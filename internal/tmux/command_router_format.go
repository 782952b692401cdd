package tmux

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-tmux/internal/ipc"
	"go-tmux/internal/shell"
)

// Default templates, as tmux prints them.
const (
	displayMessageTemplate = "[#{session_name}] #{window_index}:#{window_name}, " +
		"current pane #{pane_index} - (%H:%M %d-%b-%y)"
	listSessionsTemplate = "#{session_name}: #{session_windows} windows " +
		"(created #{t:session_created})" +
		"#{?session_grouped, (group ,}#{session_group}#{?session_grouped,),}" +
		"#{?session_attached, (attached),}"
	listWindowsTemplate = "#{window_index}: #{window_name}#{window_raw_flags} " +
		"(#{window_panes} panes) [#{window_width}x#{window_height}] " +
		"[layout #{window_layout}] #{window_id}#{?window_active, (active),}"
	listPanesTemplate = "#{pane_index}: [#{pane_width}x#{pane_height}] " +
		"[history #{history_size}/#{history_limit}, #{history_bytes} bytes] " +
		"#{pane_id}#{?pane_active, (active),}#{?pane_dead, (dead),}"
	listClientsTemplate = "#{client_name}: #{session_name} " +
		"[#{client_width}x#{client_height} #{client_termname}]" +
		"#{?client_flags, (,}#{client_flags}#{?client_flags,),}"
	listCommandsTemplate = "#{command_list_name}" +
		"#{?command_list_alias, (#{command_list_alias}),} #{command_list_usage}"

	listBuffersTemplate = "#{buffer_name}: #{buffer_size} bytes: \"#{buffer_sample}\""
	newSessionTemplate  = "#{session_name}:"
	newWindowTemplate   = "#{session_name}:#{window_index}"
	splitWindowTemplate = "#{session_name}:#{window_index}.#{pane_index}"
)

func templateFor(req ipc.TmuxRequest, def string) string {
	if f := req.FlagString("-F"); f != "" {
		return f
	}
	return def
}

func (r *CommandRouter) handleDisplayMessage(req ipc.TmuxRequest) ipc.TmuxResponse {
	template := req.FlagString("-F")
	if len(req.Args) > 0 {
		if template != "" {
			return errResp(errors.New("only one of -F or argument must be given"))
		}
		template = req.Args[0]
	}
	if template == "" {
		template = displayMessageTemplate
	}

	m := r.sessions
	m.mu.RLock()
	c, t, err := r.commandContextLocked(req)
	if err != nil {
		m.mu.RUnlock()
		return errResp(err)
	}

	flags := FormatFlags(0)
	if req.FlagBool("-v") {
		flags |= FormatVerbose
	}
	ft := m.NewFormatTree(c, FormatNone, flags)
	ft.Defaults(c, t.Session, t.Winlink, t.Pane)

	var out strings.Builder
	ft.SetPrint(func(line string) {
		out.WriteString(line)
		out.WriteByte('\n')
	})
	if req.FlagBool("-a") {
		ft.Each(func(key, value string) {
			fmt.Fprintf(&out, "%s=%s\n", key, value)
		})
		m.mu.RUnlock()
		return okResp(out.String())
	}

	r.recordExpansion("display")
	msg := ft.ExpandTime(template)
	var clientID string
	if c != nil {
		clientID = c.ID
	}
	m.mu.RUnlock()

	if req.FlagBool("-p") || c == nil {
		out.WriteString(msg)
		out.WriteByte('\n')
		return okResp(out.String())
	}
	r.opts.Messages.AddText(fmt.Sprintf("%s message: %s", clientNameFor(req), msg))
	if r.opts.Redrawer != nil {
		r.opts.Redrawer.RedrawStatus(clientID)
	}
	return okResp(out.String())
}

// listLocked expands template once per item and collects the lines.
// REQUIRES: m.mu must be held by the caller.
func (r *CommandRouter) listLocked(c *TmuxClient, template string, n int, scope func(i int, ft *FormatTree)) []string {
	r.recordExpansion("list")
	lines := make([]string, 0, n)
	for i := range n {
		ft := r.sessions.NewFormatTree(c, FormatNone, 0)
		scope(i, ft)
		lines = append(lines, ft.Expand(template))
	}
	return lines
}

func (r *CommandRouter) handleListSessions(req ipc.TmuxRequest) ipc.TmuxResponse {
	m := r.sessions
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.findClientLocked(req.Client)
	sessions := m.sessionsSortedLocked()
	return linesResp(r.listLocked(c, templateFor(req, listSessionsTemplate), len(sessions), func(i int, ft *FormatTree) {
		ft.Defaults(nil, sessions[i], nil, nil)
	}))
}

func (r *CommandRouter) handleListWindows(req ipc.TmuxRequest) ipc.TmuxResponse {
	m := r.sessions
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, t, err := r.commandContextLocked(req)
	if err != nil {
		return errResp(err)
	}
	template := listWindowsTemplate
	var links []*TmuxWinlink
	if req.FlagBool("-a") {
		template = "#{session_name}:" + template
		for _, s := range m.sessionsSortedLocked() {
			links = append(links, s.Windows...)
		}
	} else {
		if t.Session == nil {
			return errResp(errors.New("no current session"))
		}
		links = t.Session.Windows
	}
	return linesResp(r.listLocked(c, templateFor(req, template), len(links), func(i int, ft *FormatTree) {
		ft.Defaults(nil, links[i].Session, links[i], nil)
	}))
}

func (r *CommandRouter) handleListPanes(req ipc.TmuxRequest) ipc.TmuxResponse {
	m := r.sessions
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, t, err := r.commandContextLocked(req)
	if err != nil {
		return errResp(err)
	}
	type paneRef struct {
		wl *TmuxWinlink
		wp *TmuxPane
	}
	var refs []paneRef
	addWindow := func(wl *TmuxWinlink) {
		for _, wp := range wl.Window.Panes {
			refs = append(refs, paneRef{wl, wp})
		}
	}

	template := listPanesTemplate
	switch {
	case req.FlagBool("-a"):
		template = "#{session_name}:#{window_index}." + template
		for _, s := range m.sessionsSortedLocked() {
			for _, wl := range s.Windows {
				addWindow(wl)
			}
		}
	case req.FlagBool("-s"):
		if t.Session == nil {
			return errResp(errors.New("no current session"))
		}
		template = "#{window_index}." + template
		for _, wl := range t.Session.Windows {
			addWindow(wl)
		}
	default:
		if t.Winlink == nil {
			return errResp(errors.New("no current window"))
		}
		addWindow(t.Winlink)
	}
	return linesResp(r.listLocked(c, templateFor(req, template), len(refs), func(i int, ft *FormatTree) {
		ft.Defaults(nil, refs[i].wl.Session, refs[i].wl, refs[i].wp)
	}))
}

func (r *CommandRouter) handleListClients(req ipc.TmuxRequest) ipc.TmuxResponse {
	m := r.sessions
	m.mu.RLock()
	defer m.mu.RUnlock()

	var only *TmuxSession
	if target := req.FlagString("-t"); target != "" {
		t, err := m.resolveTargetLocked(target, ParseCallerPane(req.CallerPane))
		if err != nil {
			return errResp(err)
		}
		only = t.Session
	}
	var clients []*TmuxClient
	for _, c := range m.clients {
		if only == nil || c.Session == only {
			clients = append(clients, c)
		}
	}
	owner := m.findClientLocked(req.Client)
	return linesResp(r.listLocked(owner, templateFor(req, listClientsTemplate), len(clients), func(i int, ft *FormatTree) {
		ft.Defaults(clients[i], nil, nil, nil)
	}))
}

func (r *CommandRouter) handleListBuffers(req ipc.TmuxRequest) ipc.TmuxResponse {
	m := r.sessions
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.findClientLocked(req.Client)
	buffers := m.buffersNewestFirstLocked()
	return linesResp(r.listLocked(c, templateFor(req, listBuffersTemplate), len(buffers), func(i int, ft *FormatTree) {
		ft.Defaults(nil, nil, nil, nil)
		ft.DefaultsBuffer(buffers[i])
	}))
}

func (r *CommandRouter) handleListCommands(req ipc.TmuxRequest) ipc.TmuxResponse {
	names := ipc.CommandNames()
	if len(req.Args) > 0 {
		info, ok := ipc.LookupCommand(req.Args[0])
		if !ok {
			return errResp(fmt.Errorf("unknown command: %s", req.Args[0]))
		}
		names = []string{info.Name}
	}

	m := r.sessions
	m.mu.RLock()
	defer m.mu.RUnlock()
	return linesResp(r.listLocked(nil, templateFor(req, listCommandsTemplate), len(names), func(i int, ft *FormatTree) {
		info, _ := ipc.LookupCommand(names[i])
		ft.Add("command_list_name", info.Name)
		ft.Add("command_list_alias", info.Alias)
		ft.Add("command_list_usage", info.Usage)
	}))
}

// printCreated expands a -P template for a just-created object.
func (r *CommandRouter) printCreated(req ipc.TmuxRequest, def string, scope func(ft *FormatTree)) ipc.TmuxResponse {
	if !req.FlagBool("-P") {
		return okResp("")
	}
	m := r.sessions
	m.mu.RLock()
	defer m.mu.RUnlock()
	ft := m.NewFormatTree(m.findClientLocked(req.Client), FormatNone, 0)
	scope(ft)
	return okResp(ft.Expand(templateFor(req, def)) + "\n")
}

// ifShell supports format conditions only (-F): the condition is expanded
// in the target's context and the chosen command line is run.
func (r *CommandRouter) ifShell(req ipc.TmuxRequest, depth int) ipc.TmuxResponse {
	if len(req.Args) < 2 {
		return errResp(errors.New("usage: if-shell [-F] [-t target-pane] condition command [command]"))
	}
	if !req.FlagBool("-F") {
		return errResp(errors.New("if-shell: shell conditions are not supported, use -F"))
	}
	m := r.sessions
	m.mu.RLock()
	c, t, err := r.commandContextLocked(req)
	if err != nil {
		m.mu.RUnlock()
		return errResp(err)
	}
	ft := m.NewFormatTree(c, FormatNone, 0)
	ft.Defaults(c, t.Session, t.Winlink, t.Pane)
	cond := ft.Expand(req.Args[0])
	m.mu.RUnlock()

	line := ""
	switch {
	case formatTrue(cond):
		line = req.Args[1]
	case len(req.Args) > 2:
		line = req.Args[2]
	default:
		return okResp("")
	}
	return r.executeLine(line, req, depth)
}

func (r *CommandRouter) handleShowMessages(ipc.TmuxRequest) ipc.TmuxResponse {
	var lines []string
	for _, msg := range r.opts.Messages.Snapshot() {
		lines = append(lines, formatCtime(msg.Time)+": "+msg.Text)
	}
	return linesResp(lines)
}

func (r *CommandRouter) handleShowMetrics(ipc.TmuxRequest) ipc.TmuxResponse {
	samples, err := r.opts.MetricsProvider.Collect(context.Background())
	if err != nil {
		return errResp(err)
	}
	lines := make([]string, 0, len(samples))
	for _, s := range samples {
		lines = append(lines, fmt.Sprintf("%s %d", s.Name, s.Value))
	}
	return linesResp(lines)
}

// parseCommandLine splits one command line into argument vectors.
func parseCommandLine(line string) ([][]string, error) {
	argvs, err := shell.ParseLine(line)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", line, err)
	}
	return argvs, nil
}
