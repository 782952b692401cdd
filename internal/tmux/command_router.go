package tmux

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go-tmux/internal/ipc"
	"go-tmux/internal/metrics"
	"go-tmux/internal/sessionlog"
)

// RouterOptions configures a CommandRouter.
type RouterOptions struct {
	// Messages backs show-messages and client messages. Nil creates a
	// private log.
	Messages *sessionlog.Messages
	// Redrawer receives refresh-client -S and option-change redraws.
	Redrawer StatusRedrawer
	// MetricsProvider backs show-metrics. Nil reports no counters.
	MetricsProvider *metrics.Provider
}

// CommandRouter dispatches tmux-compatible commands against a SessionManager.
type CommandRouter struct {
	sessions *SessionManager
	opts     RouterOptions
	handlers map[string]func(ipc.TmuxRequest) ipc.TmuxResponse
}

// maxCommandDepth bounds if-shell nesting.
const maxCommandDepth = 16

// NewCommandRouter builds a router for sessions.
func NewCommandRouter(sessions *SessionManager, opts RouterOptions) *CommandRouter {
	if opts.Messages == nil {
		opts.Messages = sessionlog.NewMessages(int(sessions.globalOptions.GetNumber("message-limit")))
	}
	r := &CommandRouter{
		sessions: sessions,
		opts:     opts,
	}
	r.handlers = map[string]func(ipc.TmuxRequest) ipc.TmuxResponse{
		"display-message":  r.handleDisplayMessage,
		"list-sessions":    r.handleListSessions,
		"list-windows":     r.handleListWindows,
		"list-panes":       r.handleListPanes,
		"list-clients":     r.handleListClients,
		"list-buffers":     r.handleListBuffers,
		"list-commands":    r.handleListCommands,
		"new-session":      r.handleNewSession,
		"new-window":       r.handleNewWindow,
		"split-window":     r.handleSplitWindow,
		"link-window":      r.handleLinkWindow,
		"select-window":    r.handleSelectWindow,
		"last-window":      r.handleLastWindow,
		"select-pane":      r.handleSelectPane,
		"select-layout":    r.handleSelectLayout,
		"resize-window":    r.handleResizeWindow,
		"rename-window":    r.handleRenameWindow,
		"rename-session":   r.handleRenameSession,
		"kill-session":     r.handleKillSession,
		"kill-window":      r.handleKillWindow,
		"kill-pane":        r.handleKillPane,
		"has-session":      r.handleHasSession,
		"switch-client":    r.handleSwitchClient,
		"set-option":       r.handleSetOption,
		"show-options":     r.handleShowOptions,
		"set-environment":  r.handleSetEnvironment,
		"show-environment": r.handleShowEnvironment,
		"set-buffer":       r.handleSetBuffer,
		"delete-buffer":    r.handleDeleteBuffer,
		"refresh-client":   r.handleRefreshClient,
		"show-messages":    r.handleShowMessages,
		"show-metrics":     r.handleShowMetrics,
	}
	return r
}

// Messages returns the server message log.
func (r *CommandRouter) Messages() *sessionlog.Messages {
	return r.opts.Messages
}

// SetRedrawer installs the status redraw target once the hub exists.
func (r *CommandRouter) SetRedrawer(redrawer StatusRedrawer) {
	r.opts.Redrawer = redrawer
}

// Execute handles one tmux request.
func (r *CommandRouter) Execute(req ipc.TmuxRequest) ipc.TmuxResponse {
	return r.execute(req, 0)
}

func (r *CommandRouter) execute(req ipc.TmuxRequest, depth int) (resp ipc.TmuxResponse) {
	req.Command = strings.TrimSpace(req.Command)
	if req.Flags == nil {
		req.Flags = map[string]any{}
	}
	if req.Env == nil {
		req.Env = map[string]string{}
	}
	if depth > maxCommandDepth {
		return errResp(fmt.Errorf("%s: too many nested commands", req.Command))
	}

	if debugEnabled() {
		slog.Debug("[DEBUG-ROUTER] execute",
			"command", req.Command,
			"flags", fmt.Sprintf("%v", req.Flags),
			"args", req.Args,
			"client", req.Client,
			"callerPane", req.CallerPane,
		)
	}

	var handler func(ipc.TmuxRequest) ipc.TmuxResponse
	if req.Command == "if-shell" {
		handler = func(req ipc.TmuxRequest) ipc.TmuxResponse { return r.ifShell(req, depth) }
	} else if h, ok := r.handlers[req.Command]; ok {
		handler = h
	} else {
		return errResp(fmt.Errorf("unknown command: %s", req.Command))
	}

	defer func() {
		if rec := recover(); rec != nil {
			resp = recoveredResponse(req.Command, rec)
		}
	}()
	return handler(req)
}

// ExecuteLine parses and runs a tmux command line (as found in
// startup_commands), stopping at the first failing command.
func (r *CommandRouter) ExecuteLine(line string) ipc.TmuxResponse {
	return r.executeLine(line, ipc.TmuxRequest{}, 0)
}

func (r *CommandRouter) executeLine(line string, parent ipc.TmuxRequest, depth int) ipc.TmuxResponse {
	argvs, err := parseCommandLine(line)
	if err != nil {
		return errResp(err)
	}
	var out ipc.TmuxResponse
	for _, argv := range argvs {
		req, err := ipc.ParseCommand(argv)
		if err != nil {
			return mergeResp(out, errResp(err))
		}
		req.Client = parent.Client
		req.CallerPane = parent.CallerPane
		out = mergeResp(out, r.execute(req, depth+1))
		if out.ExitCode != 0 {
			return out
		}
	}
	return out
}

// clientNameFor is -c when given, else the requesting client.
func clientNameFor(req ipc.TmuxRequest) string {
	if c := req.FlagString("-c"); c != "" {
		return c
	}
	return req.Client
}

// commandContextLocked resolves the client and target of a request. An
// empty -t with no sessions yields an empty target rather than an error.
// REQUIRES: m.mu must be held by the caller.
func (r *CommandRouter) commandContextLocked(req ipc.TmuxRequest) (*TmuxClient, Target, error) {
	m := r.sessions
	c := m.findClientLocked(clientNameFor(req))
	if req.HasFlag("-c") && c == nil {
		return nil, Target{}, fmt.Errorf("can't find client: %s", req.FlagString("-c"))
	}
	target := req.FlagString("-t")
	if target == "" && c != nil && c.Session != nil {
		return c, sessionTarget(c.Session), nil
	}
	t, err := m.resolveTargetLocked(target, ParseCallerPane(req.CallerPane))
	if err != nil && target != "" {
		return nil, Target{}, err
	}
	return c, t, nil
}

func (r *CommandRouter) recordExpansion(caller string) {
	r.sessions.metrics.RecordExpansion(context.Background(), caller)
}

func (r *CommandRouter) redrawAll() {
	if r.opts.Redrawer == nil {
		return
	}
	for _, id := range r.sessions.clientIDs() {
		r.opts.Redrawer.RedrawStatus(id)
	}
}

func okResp(stdout string) ipc.TmuxResponse {
	return ipc.TmuxResponse{Stdout: stdout}
}

func errResp(err error) ipc.TmuxResponse {
	return ipc.TmuxResponse{
		ExitCode: 1,
		Stderr:   fmt.Sprintf("%v\n", err),
	}
}

func linesResp(lines []string) ipc.TmuxResponse {
	if len(lines) == 0 {
		return okResp("")
	}
	return okResp(strings.Join(lines, "\n") + "\n")
}

// mergeResp appends b's output to a; b's exit code wins.
func mergeResp(a, b ipc.TmuxResponse) ipc.TmuxResponse {
	return ipc.TmuxResponse{
		ExitCode: b.ExitCode,
		Stdout:   a.Stdout + b.Stdout,
		Stderr:   a.Stderr + b.Stderr,
	}
}
