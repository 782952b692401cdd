package tmux

import (
	"errors"
	"strconv"

	"go-tmux/internal/ipc"
	"go-tmux/internal/options"
)

func optionTargetFor(req ipc.TmuxRequest) OptionTarget {
	return OptionTarget{
		Target:     req.FlagString("-t"),
		CallerPane: ParseCallerPane(req.CallerPane),
		Global:     req.FlagBool("-g"),
		Server:     req.FlagBool("-s"),
		Window:     req.FlagBool("-w"),
		Pane:       req.FlagBool("-p"),
	}
}

func (r *CommandRouter) handleSetOption(req ipc.TmuxRequest) ipc.TmuxResponse {
	sel := optionTargetFor(req)
	if sel.Target == "" && !sel.Global {
		sel.Target = r.targetArg(req)
	}
	value := ""
	if len(req.Args) > 1 {
		value = req.Args[1]
	}
	err := r.sessions.SetOption(SetOptionRequest{
		OptionTarget: sel,
		Name:         req.Args[0],
		Value:        value,
		Unset:        req.FlagBool("-u"),
		OnlyIfUnset:  req.FlagBool("-o"),
	})
	if err != nil {
		if req.FlagBool("-q") && errors.Is(err, options.ErrUnknownOption) {
			return okResp("")
		}
		return errResp(err)
	}

	if name, _, _, _ := options.ParseName(req.Args[0]); name == "message-limit" {
		n, _ := strconv.Atoi(r.sessions.GlobalOption("message-limit"))
		r.opts.Messages.SetLimit(n)
	}
	r.redrawAll()
	return okResp("")
}

func (r *CommandRouter) handleShowOptions(req ipc.TmuxRequest) ipc.TmuxResponse {
	sel := optionTargetFor(req)
	if sel.Target == "" && !sel.Global {
		sel.Target = r.targetArg(req)
	}
	name := ""
	if len(req.Args) > 0 {
		name = req.Args[0]
	}
	lines, err := r.sessions.ShowOptions(sel, name, req.FlagBool("-v"))
	if err != nil {
		return errResp(err)
	}
	return linesResp(lines)
}

// environmentSession returns the session name a set/show-environment call
// works on, or "" for the global environment.
func (r *CommandRouter) environmentSession(req ipc.TmuxRequest) (string, error) {
	if req.FlagBool("-g") {
		return "", nil
	}
	m := r.sessions
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, t, err := r.commandContextLocked(req)
	if err != nil {
		return "", err
	}
	if t.Session == nil {
		return "", errors.New("no current session")
	}
	return t.Session.Name, nil
}

func (r *CommandRouter) handleSetEnvironment(req ipc.TmuxRequest) ipc.TmuxResponse {
	session, err := r.environmentSession(req)
	if err != nil {
		return errResp(err)
	}
	value := ""
	if len(req.Args) > 1 {
		value = req.Args[1]
	}
	if err := r.sessions.SetEnvironment(session, req.Args[0], value,
		req.FlagBool("-r"), req.FlagBool("-u"), req.FlagBool("-h")); err != nil {
		return errResp(err)
	}
	return okResp("")
}

func (r *CommandRouter) handleShowEnvironment(req ipc.TmuxRequest) ipc.TmuxResponse {
	session, err := r.environmentSession(req)
	if err != nil {
		return errResp(err)
	}
	name := ""
	if len(req.Args) > 0 {
		name = req.Args[0]
	}
	lines, err := r.sessions.ShowEnvironment(session, name, req.FlagBool("-h"))
	if err != nil {
		return errResp(err)
	}
	return linesResp(lines)
}

func (r *CommandRouter) handleSetBuffer(req ipc.TmuxRequest) ipc.TmuxResponse {
	if _, err := r.sessions.SetBuffer(req.FlagString("-b"), req.Args[0]); err != nil {
		return errResp(err)
	}
	return okResp("")
}

func (r *CommandRouter) handleDeleteBuffer(req ipc.TmuxRequest) ipc.TmuxResponse {
	name := req.FlagString("-b")
	if name == "" {
		m := r.sessions
		m.mu.RLock()
		if buffers := m.buffersNewestFirstLocked(); len(buffers) > 0 {
			name = buffers[0].Name
		}
		m.mu.RUnlock()
		if name == "" {
			return errResp(errors.New("no buffers"))
		}
	}
	if err := r.sessions.DeleteBuffer(name); err != nil {
		return errResp(err)
	}
	return okResp("")
}

// handleRefreshClient redraws a client's status line. Only -S is meaningful
// without a terminal to repaint.
func (r *CommandRouter) handleRefreshClient(req ipc.TmuxRequest) ipc.TmuxResponse {
	name := clientNameFor(req)
	m := r.sessions
	m.mu.RLock()
	c := m.findClientLocked(name)
	m.mu.RUnlock()
	if c == nil {
		return errResp(errors.New("can't find client: " + name))
	}
	r.redrawClient(name)
	return okResp("")
}
