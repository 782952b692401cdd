package tmux

import (
	"slices"
	"strings"
	"testing"

	"go-tmux/internal/ipc"
	"go-tmux/internal/sessionlog"
)

func newTestRouter(t *testing.T) (*CommandRouter, *SessionManager, *recordingRedrawer) {
	t.Helper()
	m := newTestManager(t)
	redraw := &recordingRedrawer{}
	r := NewCommandRouter(m, RouterOptions{
		Messages: sessionlog.NewMessages(100),
		Redrawer: redraw,
	})
	return r, m, redraw
}

// run parses argv and executes it for client.
func run(t *testing.T, r *CommandRouter, client string, argv ...string) ipc.TmuxResponse {
	t.Helper()
	req, err := ipc.ParseCommand(argv)
	if err != nil {
		t.Fatalf("ParseCommand(%q) error = %v", argv, err)
	}
	req.Client = client
	return r.Execute(req)
}

func mustRun(t *testing.T, r *CommandRouter, client string, argv ...string) string {
	t.Helper()
	resp := run(t, r, client, argv...)
	if resp.ExitCode != 0 {
		t.Fatalf("%q exit %d: %s", argv, resp.ExitCode, resp.Stderr)
	}
	return resp.Stdout
}

func TestDisplayMessagePrint(t *testing.T) {
	r, _, _ := newTestRouter(t)

	tests := []struct {
		name string
		argv []string
		want string
	}{
		{name: "argument", argv: []string{"display-message", "-p", "#{session_name}:#{window_index}"}, want: "main:0\n"},
		{name: "format flag", argv: []string{"display", "-pF", "#{pane_id}"}, want: "%0\n"},
		{name: "target", argv: []string{"display-message", "-p", "-t", "%0", "#{window_name}"}, want: "sh\n"},
		{name: "strftime", argv: []string{"display-message", "-p", "%Y-#{session_name}"}, want: "2026-main\n"},
		{name: "default template", argv: []string{"display-message", "-p"}, want: "[main] 0:sh, current pane 0 - (" + formatStrftime("%H:%M %d-%b-%y", testNow) + ")\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustRun(t, r, "", tt.argv...); got != tt.want {
				t.Fatalf("stdout = %q, want %q", got, tt.want)
			}
		})
	}

	resp := run(t, r, "", "display-message", "-p", "-F", "x", "y")
	if resp.ExitCode != 1 || !strings.Contains(resp.Stderr, "only one of -F or argument") {
		t.Fatalf("-F with an argument = %+v", resp)
	}
}

func TestDisplayMessageAllAndVerbose(t *testing.T) {
	r, _, _ := newTestRouter(t)

	all := mustRun(t, r, "", "display-message", "-a")
	for _, want := range []string{"session_name=main\n", "window_index=0\n", "pane_id=%0\n"} {
		if !strings.Contains(all, want) {
			t.Fatalf("display-message -a missing %q", want)
		}
	}

	verbose := mustRun(t, r, "", "display-message", "-pv", "#{session_name}")
	if !strings.Contains(verbose, "# result is: main\n") || !strings.HasSuffix(verbose, "\nmain\n") {
		t.Fatalf("verbose output = %q", verbose)
	}
}

func TestDisplayMessageToClient(t *testing.T) {
	r, m, redraw := newTestRouter(t)
	c := attachTestClient(t, m, "c1")

	if out := mustRun(t, r, "c1", "display-message", "hello #{session_name}"); out != "" {
		t.Fatalf("stdout = %q, want the message routed to the log", out)
	}
	msgs := r.Messages().Snapshot()
	if len(msgs) != 1 || msgs[0].Text != "c1 message: hello main" {
		t.Fatalf("messages = %+v", msgs)
	}
	if calls := redraw.calls(); !slices.Equal(calls, []string{c.ID}) {
		t.Fatalf("redraws = %v, want the client's status", calls)
	}

	shown := mustRun(t, r, "", "show-messages")
	if !strings.HasSuffix(shown, ": c1 message: hello main\n") {
		t.Fatalf("show-messages = %q", shown)
	}

	resp := run(t, r, "", "display-message", "-c", "ghost", "x")
	if resp.ExitCode != 1 || resp.Stderr != "can't find client: ghost\n" {
		t.Fatalf("unknown -c = %+v", resp)
	}
}

func TestListCommands(t *testing.T) {
	r, m, _ := newTestRouter(t)
	attachTestClient(t, m, "c1")
	mustRun(t, r, "", "new-session", "-d", "-s", "aux")
	mustRun(t, r, "", "new-window", "-d", "-t", "main", "-n", "logs")
	mustRun(t, r, "", "set-buffer", "-b", "notes", "todo")

	tests := []struct {
		name string
		argv []string
		want string
	}{
		{name: "sessions", argv: []string{"ls", "-F", "#{session_name}:#{session_windows}:#{session_attached}"}, want: "main:2:1\naux:1:0\n"},
		{name: "windows", argv: []string{"lsw", "-t", "main", "-F", "#{window_index}:#{window_name}"}, want: "0:sh\n1:logs\n"},
		{name: "all windows", argv: []string{"lsw", "-a", "-F", "#{session_name}:#{window_index}"}, want: "main:0\nmain:1\naux:0\n"},
		{name: "panes", argv: []string{"lsp", "-s", "-t", "main", "-F", "#{pane_id}"}, want: "%0\n%2\n"},
		{name: "clients", argv: []string{"lsc", "-F", "#{client_name} #{session_name}"}, want: "c1 main\n"},
		{name: "clients of session", argv: []string{"lsc", "-t", "aux", "-F", "#{client_name}"}, want: ""},
		{name: "buffers", argv: []string{"lsb", "-F", "#{buffer_name}=#{buffer_sample}"}, want: "notes=todo\n"},
		{name: "commands", argv: []string{"lscm", "-F", "#{command_list_name} #{command_list_alias}", "has-session"}, want: "has-session has\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustRun(t, r, "", tt.argv...); got != tt.want {
				t.Fatalf("stdout = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreatePrintsTargets(t *testing.T) {
	r, _, _ := newTestRouter(t)

	if got := mustRun(t, r, "", "new-session", "-dP", "-s", "aux"); got != "aux:\n" {
		t.Fatalf("new-session -P = %q", got)
	}
	if got := mustRun(t, r, "", "new-window", "-dP", "-t", "aux:4"); got != "aux:4\n" {
		t.Fatalf("new-window -P = %q", got)
	}
	if got := mustRun(t, r, "", "split-window", "-P", "-t", "main:0", "-F", "#{pane_id}"); got != "%3\n" {
		t.Fatalf("split-window -P = %q", got)
	}
	if got := mustRun(t, r, "", "display-message", "-p", "-t", "main:0", "#{window_panes}"); got != "2\n" {
		t.Fatalf("window_panes = %q", got)
	}

	resp := run(t, r, "", "new-session", "-d", "-s", "aux")
	if resp.ExitCode != 1 {
		t.Fatalf("duplicate new-session = %+v", resp)
	}
}

func TestNewSessionSwitchesClient(t *testing.T) {
	r, m, redraw := newTestRouter(t)
	c := attachTestClient(t, m, "c1")

	mustRun(t, r, "c1", "new-session", "-s", "work")
	if got := mustRun(t, r, "c1", "display-message", "-p", "#{client_session}"); got != "work\n" {
		t.Fatalf("client_session = %q, want work", got)
	}
	if calls := redraw.calls(); !slices.Contains(calls, c.ID) {
		t.Fatalf("redraws = %v, want the switched client", calls)
	}
}

func TestHasSession(t *testing.T) {
	r, _, _ := newTestRouter(t)
	if resp := run(t, r, "", "has-session", "-t", "main"); resp.ExitCode != 0 {
		t.Fatalf("has-session main = %+v", resp)
	}
	resp := run(t, r, "", "has", "-t", "nope")
	if resp.ExitCode != 1 || resp.Stderr != "can't find session: nope\n" {
		t.Fatalf("has-session nope = %+v", resp)
	}
}

func TestWindowCommands(t *testing.T) {
	r, _, _ := newTestRouter(t)
	mustRun(t, r, "", "new-window", "-t", "main", "-n", "two")
	mustRun(t, r, "", "select-window", "-t", "main:0")
	mustRun(t, r, "", "rename-window", "-t", "main:1", "logs")
	mustRun(t, r, "", "resize-window", "-t", "main:0", "-x", "100", "-y", "30")

	got := mustRun(t, r, "", "lsw", "-t", "main", "-F", "#{window_index}#{window_flags}:#{window_name}:#{window_width}x#{window_height}")
	if got != "0*:sh:100x30\n1-:logs:80x24\n" {
		t.Fatalf("windows = %q", got)
	}

	mustRun(t, r, "", "last-window", "-t", "main")
	if got := mustRun(t, r, "", "display", "-p", "-t", "main", "#{window_index}"); got != "1\n" {
		t.Fatalf("after last-window = %q", got)
	}
	if resp := run(t, r, "", "resize-window", "-t", "main:0"); resp.ExitCode != 1 {
		t.Fatalf("resize-window without size = %+v", resp)
	}
	if resp := run(t, r, "", "select-layout", "-t", "main:0", "spiral"); resp.ExitCode != 1 {
		t.Fatalf("unknown layout = %+v", resp)
	}

	mustRun(t, r, "", "kill-window", "-t", "main:1")
	mustRun(t, r, "", "rename-session", "-t", "main", "home")
	if got := mustRun(t, r, "", "ls", "-F", "#{session_name}:#{session_windows}"); got != "home:1\n" {
		t.Fatalf("sessions = %q", got)
	}
}

func TestPaneCommands(t *testing.T) {
	r, _, _ := newTestRouter(t)
	mustRun(t, r, "", "split-window", "-h", "-t", "main:0")
	mustRun(t, r, "", "select-layout", "-t", "main:0", "even-horizontal")
	mustRun(t, r, "", "select-pane", "-t", "%0", "-T", "editor")
	mustRun(t, r, "", "select-pane", "-m", "-t", "%1")

	got := mustRun(t, r, "", "lsp", "-t", "main:0", "-F", "#{pane_id}:#{pane_active}:#{pane_marked}:#{pane_title}")
	if !strings.HasPrefix(got, "%0:1:0:editor\n%1:0:1:") {
		t.Fatalf("panes = %q", got)
	}

	mustRun(t, r, "", "kill-pane", "-t", "%0")
	if got := mustRun(t, r, "", "display", "-p", "-t", "main:0", "#{window_panes}:#{pane_id}"); got != "1:%1\n" {
		t.Fatalf("after kill-pane = %q", got)
	}
}

func TestLinkWindowCommand(t *testing.T) {
	r, _, _ := newTestRouter(t)
	mustRun(t, r, "", "new-session", "-d", "-s", "aux")
	if resp := run(t, r, "", "link-window", "-t", "aux"); resp.ExitCode != 1 {
		t.Fatalf("link-window without -s = %+v", resp)
	}
	mustRun(t, r, "", "link-window", "-d", "-s", "main:0", "-t", "aux:2")
	if got := mustRun(t, r, "", "lsw", "-t", "aux", "-F", "#{window_index}:#{window_linked}"); got != "0:0\n2:1\n" {
		t.Fatalf("aux windows = %q", got)
	}
}

func TestSetAndShowOptions(t *testing.T) {
	r, _, redraw := newTestRouter(t)

	mustRun(t, r, "", "set-option", "-g", "status-left", "left")
	if got := mustRun(t, r, "", "show-options", "-gv", "status-left"); got != "left\n" {
		t.Fatalf("show-options -gv = %q", got)
	}
	mustRun(t, r, "", "set", "@theme", "dark mode")
	if got := mustRun(t, r, "", "show", "-t", "main"); got != "@theme \"dark mode\"\n" {
		t.Fatalf("show-options = %q", got)
	}
	mustRun(t, r, "", "set-option", "-w", "-t", "main:0", "monitor-activity", "on")
	if got := mustRun(t, r, "", "show", "-w", "-t", "main:0"); got != "monitor-activity on\n" {
		t.Fatalf("window options = %q", got)
	}

	if resp := run(t, r, "", "set-option", "-g", "no-such-option", "x"); resp.ExitCode != 1 {
		t.Fatalf("unknown option = %+v", resp)
	}
	if resp := run(t, r, "", "set-option", "-gq", "no-such-option", "x"); resp.ExitCode != 0 {
		t.Fatalf("unknown option with -q = %+v", resp)
	}
	if resp := run(t, r, "", "set-option", "-g", "status-interval", "lots"); resp.ExitCode != 1 {
		t.Fatalf("invalid number = %+v", resp)
	}

	mustRun(t, r, "", "set-option", "-gu", "status-left")
	if got := mustRun(t, r, "", "show-options", "-gv", "status-left"); got != "[#{session_name}] \n" {
		t.Fatalf("after unset = %q", got)
	}
	if len(redraw.calls()) != 0 {
		t.Fatalf("redraws without clients = %v", redraw.calls())
	}
}

func TestMessageLimitOption(t *testing.T) {
	r, m, _ := newTestRouter(t)
	attachTestClient(t, m, "c1")
	mustRun(t, r, "", "set-option", "-g", "message-limit", "2")
	for _, text := range []string{"one", "two", "three"} {
		mustRun(t, r, "c1", "display-message", text)
	}
	msgs := r.Messages().Snapshot()
	if len(msgs) != 2 || msgs[0].Text != "c1 message: two" {
		t.Fatalf("messages = %+v, want the two newest", msgs)
	}
}

func TestEnvironmentCommands(t *testing.T) {
	r, _, _ := newTestRouter(t)
	mustRun(t, r, "", "set-environment", "-g", "EDITOR", "vi")
	mustRun(t, r, "", "setenv", "PROJECT", "go-tmux")
	mustRun(t, r, "", "setenv", "-h", "TOKEN", "s3cr3t")
	mustRun(t, r, "", "setenv", "-r", "EDITOR")

	tests := []struct {
		argv []string
		want string
	}{
		{argv: []string{"show-environment", "-g"}, want: "EDITOR=vi\n"},
		{argv: []string{"showenv"}, want: "-EDITOR\nPROJECT=go-tmux\n"},
		{argv: []string{"showenv", "-h"}, want: "TOKEN=s3cr3t\n"},
		{argv: []string{"showenv", "PROJECT"}, want: "PROJECT=go-tmux\n"},
	}
	for _, tt := range tests {
		if got := mustRun(t, r, "", tt.argv...); got != tt.want {
			t.Fatalf("%q = %q, want %q", tt.argv, got, tt.want)
		}
	}
	if got := mustRun(t, r, "", "display", "-p", "#{PROJECT}"); got != "go-tmux\n" {
		t.Fatalf("environment lookup in formats = %q", got)
	}
}

func TestBufferCommands(t *testing.T) {
	r, _, _ := newTestRouter(t)
	resp := run(t, r, "", "delete-buffer")
	if resp.ExitCode != 1 || resp.Stderr != "no buffers\n" {
		t.Fatalf("delete-buffer with no buffers = %+v", resp)
	}
	mustRun(t, r, "", "set-buffer", "first")
	mustRun(t, r, "", "set-buffer", "second")
	mustRun(t, r, "", "delete-buffer")
	if got := mustRun(t, r, "", "lsb", "-F", "#{buffer_sample}"); got != "first\n" {
		t.Fatalf("buffers = %q, want the newest deleted", got)
	}
}

func TestIfShell(t *testing.T) {
	r, _, _ := newTestRouter(t)

	tests := []struct {
		name string
		argv []string
		want string
	}{
		{name: "true branch", argv: []string{"if-shell", "-F", "#{==:#{session_name},main}", "display -p yes", "display -p no"}, want: "yes\n"},
		{name: "false branch", argv: []string{"if", "-F", "#{session_attached}", "display -p yes", "display -p no"}, want: "no\n"},
		{name: "false without else", argv: []string{"if", "-F", "", "display -p yes"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustRun(t, r, "", tt.argv...); got != tt.want {
				t.Fatalf("stdout = %q, want %q", got, tt.want)
			}
		})
	}

	resp := run(t, r, "", "if-shell", "true", "display -p yes")
	if resp.ExitCode != 1 || !strings.Contains(resp.Stderr, "use -F") {
		t.Fatalf("shell condition = %+v", resp)
	}
}

func TestIfShellNestingLimit(t *testing.T) {
	r, _, _ := newTestRouter(t)
	resp := r.ExecuteLine("if -F 1 'if -F 1 \"if -F 1 display\"'")
	if resp.ExitCode != 0 {
		t.Fatalf("shallow nesting = %+v", resp)
	}

	line := "display -p deep"
	for range maxCommandDepth + 1 {
		line = "if -F 1 " + quoteOptionValue(line)
	}
	resp = r.ExecuteLine(line)
	if resp.ExitCode != 1 || !strings.Contains(resp.Stderr, "too many nested commands") {
		t.Fatalf("deep nesting = %+v", resp)
	}
}

func TestExecuteLine(t *testing.T) {
	r, _, _ := newTestRouter(t)

	resp := r.ExecuteLine("new-window -d -n a ; new-window -d -n b ; lsw -F '#{window_name}'")
	if resp.ExitCode != 0 || resp.Stdout != "sh\na\nb\n" {
		t.Fatalf("chained commands = %+v", resp)
	}

	resp = r.ExecuteLine("has-session -t nope ; set-buffer never")
	if resp.ExitCode != 1 {
		t.Fatalf("failing chain = %+v", resp)
	}
	if got := mustRun(t, r, "", "lsb"); got != "" {
		t.Fatalf("commands after a failure ran: %q", got)
	}

	if resp := r.ExecuteLine("display -p 'unterminated"); resp.ExitCode != 1 {
		t.Fatalf("parse error = %+v", resp)
	}
	if resp := r.ExecuteLine("no-such-command"); resp.ExitCode != 1 {
		t.Fatalf("unknown command = %+v", resp)
	}
}

func TestRefreshClient(t *testing.T) {
	r, m, redraw := newTestRouter(t)
	c := attachTestClient(t, m, "c1")

	mustRun(t, r, "", "refresh-client", "-S", "-c", "c1")
	if calls := redraw.calls(); !slices.Equal(calls, []string{c.ID}) {
		t.Fatalf("redraws = %v", calls)
	}
	resp := run(t, r, "", "refresh-client", "-S", "-c", "ghost")
	if resp.ExitCode != 1 || resp.Stderr != "can't find client: ghost\n" {
		t.Fatalf("unknown client = %+v", resp)
	}
}

func TestSwitchClient(t *testing.T) {
	r, m, _ := newTestRouter(t)
	attachTestClient(t, m, "c1")
	mustRun(t, r, "", "new-session", "-d", "-s", "aux")

	if resp := run(t, r, "", "switch-client", "-t", "aux"); resp.ExitCode != 1 {
		t.Fatalf("switch-client without a client = %+v", resp)
	}
	mustRun(t, r, "c1", "switch-client", "-t", "aux")
	if got := mustRun(t, r, "c1", "display", "-p", "#{session_name}"); got != "aux\n" {
		t.Fatalf("session after switch = %q", got)
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	r, _, _ := newTestRouter(t)
	resp := r.Execute(ipc.TmuxRequest{Command: "bogus"})
	if resp.ExitCode != 1 || resp.Stderr != "unknown command: bogus\n" {
		t.Fatalf("Execute(bogus) = %+v", resp)
	}
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	r, _, _ := newTestRouter(t)
	r.handlers["explode"] = func(ipc.TmuxRequest) ipc.TmuxResponse {
		panic("boom")
	}
	resp := r.Execute(ipc.TmuxRequest{Command: "explode"})
	if resp.ExitCode != 1 || resp.Stderr != "explode: internal error: boom\n" {
		t.Fatalf("Execute(explode) = %+v", resp)
	}
	if got := mustRun(t, r, "", "display", "-p", "#{session_name}"); got != "main\n" {
		t.Fatalf("router after panic = %q", got)
	}
}

func TestShowMetricsWithoutProvider(t *testing.T) {
	r, _, _ := newTestRouter(t)
	if got := mustRun(t, r, "", "show-metrics"); got != "" {
		t.Fatalf("show-metrics = %q, want nothing without a provider", got)
	}
}
