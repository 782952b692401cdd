package ipc

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type flagKind int

const (
	flagBool flagKind = iota
	flagString
	flagInt
	flagEnv
)

type commandSpec struct {
	name  string
	alias string
	flags map[string]flagKind
	// minArgs and maxArgs bound positional arguments; maxArgs < 0 is
	// unbounded.
	minArgs int
	maxArgs int
	usage   string
}

func bools(names string) map[string]flagKind {
	out := map[string]flagKind{}
	for _, c := range names {
		out["-"+string(c)] = flagBool
	}
	return out
}

func with(flags map[string]flagKind, kind flagKind, names string) map[string]flagKind {
	for _, c := range names {
		flags["-"+string(c)] = kind
	}
	return flags
}

var commandSpecs = map[string]commandSpec{}

var commandAliases = map[string]string{}

func register(specs ...commandSpec) {
	for _, spec := range specs {
		commandSpecs[spec.name] = spec
		if spec.alias != "" {
			commandAliases[spec.alias] = spec.name
		}
	}
}

func init() {
	register(
		commandSpec{name: "display-message", alias: "display", flags: with(bools("apv"), flagString, "tcF"), maxArgs: 1,
			usage: "[-apv] [-c target-client] [-F format] [-t target-pane] [message]"},
		commandSpec{name: "list-sessions", alias: "ls", flags: with(bools(""), flagString, "F"), maxArgs: 0,
			usage: "[-F format]"},
		commandSpec{name: "list-windows", alias: "lsw", flags: with(bools("a"), flagString, "tF"), maxArgs: 0,
			usage: "[-a] [-F format] [-t target-session]"},
		commandSpec{name: "list-panes", alias: "lsp", flags: with(bools("as"), flagString, "tF"), maxArgs: 0,
			usage: "[-as] [-F format] [-t target-window]"},
		commandSpec{name: "list-clients", alias: "lsc", flags: with(bools(""), flagString, "tF"), maxArgs: 0,
			usage: "[-F format] [-t target-session]"},
		commandSpec{name: "list-buffers", alias: "lsb", flags: with(bools(""), flagString, "F"), maxArgs: 0,
			usage: "[-F format]"},
		commandSpec{name: "new-session", alias: "new", flags: with(with(with(bools("dP"), flagString, "scnF"), flagInt, "xy"), flagEnv, "e"), maxArgs: -1,
			usage: "[-dP] [-c start-directory] [-e environment] [-F format] [-n window-name] [-s session-name] [-x width] [-y height] [shell-command]"},
		commandSpec{name: "new-window", alias: "neww", flags: with(bools("dP"), flagString, "tncF"), maxArgs: -1,
			usage: "[-dP] [-c start-directory] [-F format] [-n window-name] [-t target-window] [shell-command]"},
		commandSpec{name: "split-window", alias: "splitw", flags: with(bools("hvdP"), flagString, "tcF"), maxArgs: -1,
			usage: "[-dhvP] [-c start-directory] [-F format] [-t target-pane] [shell-command]"},
		commandSpec{name: "link-window", alias: "linkw", flags: with(bools("d"), flagString, "st"), maxArgs: 0,
			usage: "[-d] [-s src-window] [-t dst-window]"},
		commandSpec{name: "select-window", alias: "selectw", flags: with(bools(""), flagString, "t"), maxArgs: 0,
			usage: "[-t target-window]"},
		commandSpec{name: "last-window", alias: "last", flags: with(bools(""), flagString, "t"), maxArgs: 0,
			usage: "[-t target-session]"},
		commandSpec{name: "select-pane", alias: "selectp", flags: with(bools("mM"), flagString, "tT"), maxArgs: 0,
			usage: "[-mM] [-T title] [-t target-pane]"},
		commandSpec{name: "select-layout", alias: "selectl", flags: with(bools(""), flagString, "t"), maxArgs: 1,
			usage: "[-t target-window] [layout-name]"},
		commandSpec{name: "resize-window", alias: "resizew", flags: with(with(bools(""), flagString, "t"), flagInt, "xy"), maxArgs: 0,
			usage: "[-t target-window] [-x width] [-y height]"},
		commandSpec{name: "rename-window", alias: "renamew", flags: with(bools(""), flagString, "t"), minArgs: 1, maxArgs: 1,
			usage: "[-t target-window] new-name"},
		commandSpec{name: "rename-session", alias: "rename", flags: with(bools(""), flagString, "t"), minArgs: 1, maxArgs: 1,
			usage: "[-t target-session] new-name"},
		commandSpec{name: "kill-session", flags: with(bools(""), flagString, "t"), maxArgs: 0,
			usage: "[-t target-session]"},
		commandSpec{name: "kill-window", alias: "killw", flags: with(bools(""), flagString, "t"), maxArgs: 0,
			usage: "[-t target-window]"},
		commandSpec{name: "kill-pane", alias: "killp", flags: with(bools(""), flagString, "t"), maxArgs: 0,
			usage: "[-t target-pane]"},
		commandSpec{name: "has-session", alias: "has", flags: with(bools(""), flagString, "t"), maxArgs: 0,
			usage: "[-t target-session]"},
		commandSpec{name: "switch-client", alias: "switchc", flags: with(bools(""), flagString, "ct"), maxArgs: 0,
			usage: "[-c target-client] [-t target-session]"},
		commandSpec{name: "set-option", alias: "set", flags: with(bools("gswpuqo"), flagString, "t"), minArgs: 1, maxArgs: 2,
			usage: "[-gopqsuw] [-t target] option [value]"},
		commandSpec{name: "show-options", alias: "show", flags: with(bools("gswpv"), flagString, "t"), maxArgs: 1,
			usage: "[-gpsvw] [-t target] [option]"},
		commandSpec{name: "set-environment", alias: "setenv", flags: with(bools("guhr"), flagString, "t"), minArgs: 1, maxArgs: 2,
			usage: "[-ghru] [-t target-session] name [value]"},
		commandSpec{name: "show-environment", alias: "showenv", flags: with(bools("gh"), flagString, "t"), maxArgs: 1,
			usage: "[-gh] [-t target-session] [name]"},
		commandSpec{name: "set-buffer", alias: "setb", flags: with(bools(""), flagString, "b"), minArgs: 1, maxArgs: 1,
			usage: "[-b buffer-name] data"},
		commandSpec{name: "delete-buffer", alias: "deleteb", flags: with(bools(""), flagString, "b"), maxArgs: 0,
			usage: "[-b buffer-name]"},
		commandSpec{name: "refresh-client", alias: "refresh", flags: with(bools("S"), flagString, "ct"), maxArgs: 0,
			usage: "[-S] [-c target-client]"},
		commandSpec{name: "show-messages", alias: "showmsgs", flags: bools(""), maxArgs: 0,
			usage: ""},
		commandSpec{name: "if-shell", alias: "if", flags: with(bools("F"), flagString, "t"), minArgs: 2, maxArgs: 3,
			usage: "[-F] [-t target-pane] condition command [command]"},
		commandSpec{name: "show-metrics", flags: bools(""), maxArgs: 0,
			usage: ""},
		commandSpec{name: "list-commands", alias: "lscm", flags: with(bools(""), flagString, "F"), maxArgs: 1,
			usage: "[command]"},
	)
}

// ErrUnknownCommand is returned by ParseCommand for a command it does not
// know.
var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand turns an argument vector into a request, resolving aliases
// and unique prefixes, splitting combined boolean flags (-dP) and checking
// argument counts.
func ParseCommand(args []string) (TmuxRequest, error) {
	if len(args) == 0 {
		return TmuxRequest{}, errors.New("no command")
	}
	name, err := resolveCommand(strings.TrimSpace(args[0]))
	if err != nil {
		return TmuxRequest{}, err
	}
	spec := commandSpecs[name]

	req := TmuxRequest{
		Command: name,
		Flags:   map[string]any{},
		Env:     map[string]string{},
	}

	i := 1
	for i < len(args) {
		arg := args[i]
		if arg == "--" {
			req.Args = append(req.Args, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			req.Args = append(req.Args, args[i:]...)
			break
		}

		kind, known := spec.flags[arg]
		if !known {
			n, err := parseCombinedFlags(spec, arg, args[i+1:], &req)
			if err != nil {
				return TmuxRequest{}, err
			}
			i += 1 + n
			continue
		}
		if kind == flagBool {
			req.Flags[arg] = true
			i++
			continue
		}
		if i+1 >= len(args) {
			return TmuxRequest{}, fmt.Errorf("%s: flag %s requires a value", name, arg)
		}
		if err := setFlagValue(&req, name, arg, kind, args[i+1]); err != nil {
			return TmuxRequest{}, err
		}
		i += 2
	}

	if len(req.Args) < spec.minArgs || (spec.maxArgs >= 0 && len(req.Args) > spec.maxArgs) {
		return TmuxRequest{}, fmt.Errorf("usage: %s %s", name, spec.usage)
	}
	return req, nil
}

func setFlagValue(req *TmuxRequest, command, flag string, kind flagKind, value string) error {
	switch kind {
	case flagString:
		req.Flags[flag] = value
	case flagInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: flag %s expects integer, got %q", command, flag, value)
		}
		req.Flags[flag] = n
	case flagEnv:
		key, v, ok := strings.Cut(value, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("%s: invalid environment: %s", command, value)
		}
		req.Env[key] = v
	default:
		return errors.New("unsupported flag parser")
	}
	return nil
}

// parseCombinedFlags handles "-dP" and "-dtmain" style arguments: boolean
// letters followed by at most one value flag, whose value is the rest of the
// argument or the next argument. It returns how many following arguments it
// consumed.
func parseCombinedFlags(spec commandSpec, arg string, rest []string, req *TmuxRequest) (int, error) {
	if len(arg) < 3 || arg[0] != '-' {
		return 0, fmt.Errorf("%s: unknown flag %s", spec.name, arg)
	}
	letters := arg[1:]
	for j := 0; j < len(letters); j++ {
		flag := "-" + letters[j:j+1]
		kind, known := spec.flags[flag]
		if !known {
			return 0, fmt.Errorf("%s: unknown flag %s", spec.name, flag)
		}
		if kind == flagBool {
			req.Flags[flag] = true
			continue
		}
		if value := letters[j+1:]; value != "" {
			return 0, setFlagValue(req, spec.name, flag, kind, value)
		}
		if len(rest) == 0 {
			return 0, fmt.Errorf("%s: flag %s requires a value", spec.name, flag)
		}
		return 1, setFlagValue(req, spec.name, flag, kind, rest[0])
	}
	return 0, nil
}

// resolveCommand maps an alias or unique prefix to a command name.
func resolveCommand(name string) (string, error) {
	if _, ok := commandSpecs[name]; ok {
		return name, nil
	}
	if full, ok := commandAliases[name]; ok {
		return full, nil
	}
	var matches []string
	for full := range commandSpecs {
		if strings.HasPrefix(full, name) {
			matches = append(matches, full)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	sort.Strings(matches)
	return "", fmt.Errorf("ambiguous command: %s, could be: %s", name, strings.Join(matches, ", "))
}

// CommandNames returns every known command name, sorted.
func CommandNames() []string {
	out := make([]string, 0, len(commandSpecs))
	for name := range commandSpecs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CommandInfo describes one command for list-commands.
type CommandInfo struct {
	Name  string
	Alias string
	Usage string
}

// LookupCommand returns the description of a full command name.
func LookupCommand(name string) (CommandInfo, bool) {
	spec, ok := commandSpecs[name]
	if !ok {
		return CommandInfo{}, false
	}
	return CommandInfo{Name: spec.name, Alias: spec.alias, Usage: spec.usage}, true
}

// CommandUsage returns "name (alias) usage" for list-commands.
func CommandUsage(name string) (string, bool) {
	info, ok := LookupCommand(name)
	if !ok {
		return "", false
	}
	line := info.Name
	if info.Alias != "" {
		line += " (" + info.Alias + ")"
	}
	if info.Usage != "" {
		line += " " + info.Usage
	}
	return line, true
}
