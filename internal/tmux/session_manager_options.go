package tmux

import (
	"fmt"
	"strings"

	"go-tmux/internal/options"
)

// OptionTarget selects the option set a set-option or show-options call
// works on.
type OptionTarget struct {
	Target string
	// CallerPane is the %N id commands default to, or -1.
	CallerPane int
	Global     bool
	Server     bool
	Window     bool
	Pane       bool
}

// optionScopeFor picks the scope from explicit flags, then the option table.
// User options default to session scope.
func optionScopeFor(name string, sel OptionTarget) options.Scope {
	switch {
	case sel.Server:
		return options.ScopeServer
	case sel.Pane:
		return options.ScopePane
	case sel.Window:
		return options.ScopeWindow
	}
	base, _, _, err := options.ParseName(name)
	if err == nil {
		if def, ok := options.Find(base); ok {
			switch {
			case def.Scope&options.ScopeServer != 0:
				return options.ScopeServer
			case def.Scope&options.ScopeSession != 0:
				return options.ScopeSession
			case def.Scope&options.ScopeWindow != 0:
				return options.ScopeWindow
			default:
				return options.ScopePane
			}
		}
	}
	return options.ScopeSession
}

// optionSetLocked resolves the option set for scope.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) optionSetLocked(scope options.Scope, sel OptionTarget) (*options.Options, error) {
	if scope == options.ScopeServer {
		return m.globalOptions, nil
	}
	if sel.Global {
		if scope == options.ScopeSession {
			return m.globalSOptions, nil
		}
		return m.globalWOptions, nil
	}
	t, err := m.resolveTargetLocked(sel.Target, sel.CallerPane)
	if err != nil {
		return nil, err
	}
	switch scope {
	case options.ScopeSession:
		if t.Session == nil {
			return nil, fmt.Errorf("no such session: %s", sel.Target)
		}
		return t.Session.Options, nil
	case options.ScopeWindow:
		if t.Winlink == nil {
			return nil, fmt.Errorf("no such window: %s", sel.Target)
		}
		return t.Winlink.Window.Options, nil
	default:
		if t.Pane == nil {
			return nil, fmt.Errorf("no such pane: %s", sel.Target)
		}
		return t.Pane.Options, nil
	}
}

// SetOptionRequest is one set-option call.
type SetOptionRequest struct {
	OptionTarget
	Name  string
	Value string
	Unset bool
	// OnlyIfUnset skips options already set in the chosen set (-o).
	OnlyIfUnset bool
}

// SetOption sets or unsets an option.
func (m *SessionManager) SetOption(req SetOptionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope := optionScopeFor(req.Name, req.OptionTarget)
	o, err := m.optionSetLocked(scope, req.OptionTarget)
	if err != nil {
		return err
	}
	base, _, _, err := options.ParseName(req.Name)
	if err != nil {
		return err
	}
	if req.Unset {
		// Global table options return to their default rather than vanish.
		if o.Parent() == nil && !strings.HasPrefix(base, "@") {
			return o.Reset(base)
		}
		return o.Unset(req.Name)
	}
	if req.OnlyIfUnset {
		if _, exists := o.GetOnly(base); exists {
			return fmt.Errorf("already set: %s", base)
		}
	}
	return o.Set(req.Name, req.Value)
}

// ShowOptions renders "name value" lines for the chosen set. With a name only
// that option is shown; valueOnly drops the name.
func (m *SessionManager) ShowOptions(sel OptionTarget, name string, valueOnly bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scope := options.ScopeSession
	if name != "" || sel.Server || sel.Window || sel.Pane {
		scope = optionScopeFor(name, sel)
	}
	o, err := m.optionSetLocked(scope, sel)
	if err != nil {
		return nil, err
	}

	render := func(e *options.Entry) []string {
		if e.IsArray() {
			var out []string
			for _, idx := range e.Indexes() {
				out = append(out, optionLine(fmt.Sprintf("%s[%d]", e.Name, idx), e.String(idx, false), valueOnly))
			}
			return out
		}
		return []string{optionLine(e.Name, e.String(-1, false), valueOnly)}
	}

	if name != "" {
		base, idx, hasIdx, err := options.ParseName(name)
		if err != nil {
			return nil, err
		}
		e, ok := o.GetOnly(base)
		if !ok {
			if _, known := options.Find(base); !known && !strings.HasPrefix(base, "@") {
				return nil, fmt.Errorf("%w: %s", options.ErrUnknownOption, base)
			}
			return nil, nil
		}
		if hasIdx {
			return []string{optionLine(name, e.String(idx, false), valueOnly)}, nil
		}
		return render(e), nil
	}
	var out []string
	o.Each(func(e *options.Entry) {
		out = append(out, render(e)...)
	})
	return out, nil
}

func optionLine(name, value string, valueOnly bool) string {
	if valueOnly {
		return value
	}
	return name + " " + quoteOptionValue(value)
}

// quoteOptionValue double-quotes values that would not survive a round trip
// through the command parser.
func quoteOptionValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\"'\\$;#~") {
		return v
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range v {
		if r == '"' || r == '\\' || r == '$' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// globalOptionLocked reads a server or global session/window option.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) globalOptionLocked(name string) string {
	for _, o := range []*options.Options{m.globalOptions, m.globalSOptions, m.globalWOptions} {
		if e, ok := o.GetOnly(name); ok {
			return e.String(-1, false)
		}
	}
	return ""
}

// GlobalOption returns a server or global session/window option value.
func (m *SessionManager) GlobalOption(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globalOptionLocked(name)
}
