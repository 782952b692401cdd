package tmux

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go-tmux/internal/ipc"
)

// targetArg is -t, or the requesting client's session when -t is absent.
func (r *CommandRouter) targetArg(req ipc.TmuxRequest) string {
	if t := req.FlagString("-t"); t != "" {
		return t
	}
	m := r.sessions
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c := m.findClientLocked(clientNameFor(req)); c != nil && c.Session != nil {
		return fmt.Sprintf("$%d", c.Session.ID)
	}
	return ""
}

func (r *CommandRouter) handleNewSession(req ipc.TmuxRequest) ipc.TmuxResponse {
	s, err := r.sessions.CreateSession(NewSessionOptions{
		Name:       req.FlagString("-s"),
		WindowName: req.FlagString("-n"),
		Cwd:        req.FlagString("-c"),
		Command:    strings.Join(req.Args, " "),
		Width:      req.FlagInt("-x", 0),
		Height:     req.FlagInt("-y", 0),
		Env:        req.Env,
	})
	if err != nil {
		return errResp(err)
	}
	if !req.FlagBool("-d") && req.Client != "" {
		if err := r.sessions.SwitchClient(req.Client, fmt.Sprintf("$%d", s.ID)); err != nil {
			return errResp(err)
		}
		r.redrawClient(req.Client)
	}
	return r.printCreated(req, newSessionTemplate, func(ft *FormatTree) {
		ft.Defaults(nil, s, s.Current, nil)
	})
}

// windowIndexOf returns the index in a "session:index" target, or -1.
func windowIndexOf(target string) (int, error) {
	_, window, ok := strings.Cut(target, ":")
	if !ok || window == "" {
		return -1, nil
	}
	idx, err := strconv.Atoi(window)
	if err != nil || idx < 0 {
		return -1, fmt.Errorf("invalid window index: %s", window)
	}
	return idx, nil
}

func (r *CommandRouter) handleNewWindow(req ipc.TmuxRequest) ipc.TmuxResponse {
	target := r.targetArg(req)
	idx, err := windowIndexOf(target)
	if err != nil {
		return errResp(err)
	}
	wl, err := r.sessions.NewWindow(target, NewWindowOptions{
		Name:     req.FlagString("-n"),
		Cwd:      req.FlagString("-c"),
		Command:  strings.Join(req.Args, " "),
		Detached: req.FlagBool("-d"),
		Index:    idx,
	})
	if err != nil {
		return errResp(err)
	}
	r.redrawAll()
	return r.printCreated(req, newWindowTemplate, func(ft *FormatTree) {
		ft.Defaults(nil, wl.Session, wl, nil)
	})
}

func (r *CommandRouter) handleSplitWindow(req ipc.TmuxRequest) ipc.TmuxResponse {
	wp, err := r.sessions.SplitWindow(r.targetArg(req), ParseCallerPane(req.CallerPane), SplitOptions{
		Horizontal: req.FlagBool("-h"),
		Cwd:        req.FlagString("-c"),
		Command:    strings.Join(req.Args, " "),
		Detached:   req.FlagBool("-d"),
	})
	if err != nil {
		return errResp(err)
	}
	return r.printCreated(req, splitWindowTemplate, func(ft *FormatTree) {
		t := r.sessions.targetForPaneLocked(wp)
		ft.Defaults(nil, t.Session, t.Winlink, wp)
	})
}

func (r *CommandRouter) handleLinkWindow(req ipc.TmuxRequest) ipc.TmuxResponse {
	src := req.FlagString("-s")
	if src == "" {
		return errResp(errors.New("link-window: source window required (-s)"))
	}
	if _, err := r.sessions.LinkWindow(src, r.targetArg(req), req.FlagBool("-d")); err != nil {
		return errResp(err)
	}
	r.redrawAll()
	return okResp("")
}

// simple runs fn against the request's target and redraws every client.
func (r *CommandRouter) simple(req ipc.TmuxRequest, fn func(target string) error) ipc.TmuxResponse {
	if err := fn(r.targetArg(req)); err != nil {
		return errResp(err)
	}
	r.redrawAll()
	return okResp("")
}

func (r *CommandRouter) handleSelectWindow(req ipc.TmuxRequest) ipc.TmuxResponse {
	return r.simple(req, r.sessions.SelectWindow)
}

func (r *CommandRouter) handleLastWindow(req ipc.TmuxRequest) ipc.TmuxResponse {
	return r.simple(req, r.sessions.LastWindow)
}

func (r *CommandRouter) handleSelectPane(req ipc.TmuxRequest) ipc.TmuxResponse {
	target := req.FlagString("-t")
	caller := ParseCallerPane(req.CallerPane)
	switch {
	case req.FlagBool("-m"), req.FlagBool("-M"):
		if target == "" && caller >= 0 {
			target = fmt.Sprintf("%%%d", caller)
		}
		if err := r.sessions.SetPaneMarked(target, req.FlagBool("-m")); err != nil {
			return errResp(err)
		}
	default:
		if target == "" && caller < 0 {
			target = r.targetArg(req)
		}
		if err := r.sessions.SelectPane(target, caller, req.FlagString("-T")); err != nil {
			return errResp(err)
		}
	}
	r.redrawAll()
	return okResp("")
}

func (r *CommandRouter) handleSelectLayout(req ipc.TmuxRequest) ipc.TmuxResponse {
	preset := ""
	if len(req.Args) > 0 {
		preset = req.Args[0]
	}
	return r.simple(req, func(target string) error {
		return r.sessions.SelectLayout(target, preset)
	})
}

func (r *CommandRouter) handleResizeWindow(req ipc.TmuxRequest) ipc.TmuxResponse {
	width, height := req.FlagInt("-x", 0), req.FlagInt("-y", 0)
	if width <= 0 && height <= 0 {
		return errResp(errors.New("resize-window: -x or -y required"))
	}
	return r.simple(req, func(target string) error {
		return r.sessions.ResizeWindow(target, width, height)
	})
}

func (r *CommandRouter) handleRenameWindow(req ipc.TmuxRequest) ipc.TmuxResponse {
	return r.simple(req, func(target string) error {
		return r.sessions.RenameWindow(target, req.Args[0])
	})
}

func (r *CommandRouter) handleRenameSession(req ipc.TmuxRequest) ipc.TmuxResponse {
	return r.simple(req, func(target string) error {
		return r.sessions.RenameSession(target, req.Args[0])
	})
}

func (r *CommandRouter) handleKillSession(req ipc.TmuxRequest) ipc.TmuxResponse {
	return r.simple(req, r.sessions.KillSession)
}

func (r *CommandRouter) handleKillWindow(req ipc.TmuxRequest) ipc.TmuxResponse {
	return r.simple(req, r.sessions.KillWindow)
}

func (r *CommandRouter) handleKillPane(req ipc.TmuxRequest) ipc.TmuxResponse {
	if err := r.sessions.KillPane(req.FlagString("-t"), ParseCallerPane(req.CallerPane)); err != nil {
		return errResp(err)
	}
	r.redrawAll()
	return okResp("")
}

func (r *CommandRouter) handleHasSession(req ipc.TmuxRequest) ipc.TmuxResponse {
	target := r.targetArg(req)
	if !r.sessions.HasSession(target) {
		return errResp(fmt.Errorf("can't find session: %s", target))
	}
	return okResp("")
}

func (r *CommandRouter) handleSwitchClient(req ipc.TmuxRequest) ipc.TmuxResponse {
	name := clientNameFor(req)
	if name == "" {
		return errResp(errors.New("switch-client: no current client"))
	}
	if err := r.sessions.SwitchClient(name, req.FlagString("-t")); err != nil {
		return errResp(err)
	}
	r.redrawClient(name)
	return okResp("")
}

// redrawClient redraws one client's status line by name.
func (r *CommandRouter) redrawClient(name string) {
	if r.opts.Redrawer == nil {
		return
	}
	m := r.sessions
	m.mu.RLock()
	c := m.findClientLocked(name)
	var id string
	if c != nil {
		id = c.ID
	}
	m.mu.RUnlock()
	if id != "" {
		r.opts.Redrawer.RedrawStatus(id)
	}
}
