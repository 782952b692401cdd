package tmux

import (
	"errors"
	"slices"
	"testing"
	"time"

	"go-tmux/internal/options"
)

func TestResolveTarget(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.NewWindow("main", NewWindowOptions{Name: "logs", Index: -1}); err != nil {
		t.Fatalf("NewWindow() error = %v", err)
	}
	if _, err := m.CreateSession(NewSessionOptions{Name: "aux"}); err != nil {
		t.Fatalf("CreateSession(aux) error = %v", err)
	}

	tests := []struct {
		name      string
		target    string
		caller    int
		session   string
		window    int
		pane      int
		wantError bool
	}{
		{name: "empty uses first session", target: "", caller: -1, session: "main", window: 1, pane: 1},
		{name: "caller pane", target: "", caller: 0, session: "main", window: 0, pane: 0},
		{name: "session name", target: "aux", caller: -1, session: "aux", window: 0, pane: 2},
		{name: "session prefix", target: "ma", caller: -1, session: "main", window: 1, pane: 1},
		{name: "session id", target: "$1", caller: -1, session: "aux", window: 0, pane: 2},
		{name: "window index", target: "main:0", caller: -1, session: "main", window: 0, pane: 0},
		{name: "window name", target: "main:logs", caller: -1, session: "main", window: 1, pane: 1},
		{name: "window id", target: "@1", caller: -1, session: "main", window: 1, pane: 1},
		{name: "pane id", target: "%2", caller: -1, session: "aux", window: 0, pane: 2},
		{name: "pane index", target: "main:0.0", caller: -1, session: "main", window: 0, pane: 0},
		{name: "relative window", target: ":0", caller: -1, session: "main", window: 0, pane: 0},
		{name: "missing session", target: "nope:", caller: -1, wantError: true},
		{name: "missing window", target: "main:9", caller: -1, wantError: true},
		{name: "missing pane", target: "%99", caller: -1, wantError: true},
		{name: "bad pane index", target: "main:0.x", caller: -1, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.mu.RLock()
			defer m.mu.RUnlock()
			got, err := m.resolveTargetLocked(tt.target, tt.caller)
			if tt.wantError {
				if err == nil {
					t.Fatalf("resolveTargetLocked(%q) succeeded, want error", tt.target)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveTargetLocked(%q) error = %v", tt.target, err)
			}
			if got.Session.Name != tt.session || got.Winlink.Index != tt.window || got.Pane.ID != tt.pane {
				t.Fatalf("resolveTargetLocked(%q) = %s:%d.%%%d, want %s:%d.%%%d", tt.target,
					got.Session.Name, got.Winlink.Index, got.Pane.ID, tt.session, tt.window, tt.pane)
			}
		})
	}
}

func TestAmbiguousSessionPrefix(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.CreateSession(NewSessionOptions{Name: "mail"}); err != nil {
		t.Fatalf("CreateSession(mail) error = %v", err)
	}
	if _, err := m.CreateSession(NewSessionOptions{Name: "work"}); err != nil {
		t.Fatalf("CreateSession(work) error = %v", err)
	}
	for _, name := range []string{"ma", "mai"} {
		if m.HasSession(name) {
			t.Fatalf("HasSession(%s) = true, want ambiguous prefix to fail", name)
		}
	}
	if !m.HasSession("wo") || !m.HasSession("main") || !m.HasSession("mail:3") {
		t.Fatal("HasSession should match a unique prefix or exact name and ignore the window part")
	}
}

func TestCreateSessionErrors(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.CreateSession(NewSessionOptions{Name: "main"}); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("duplicate CreateSession() error = %v, want ErrDuplicateSession", err)
	}
	if _, err := m.CreateSession(NewSessionOptions{Name: "a:b"}); err == nil {
		t.Fatal("CreateSession(a:b) should fail")
	}
	s, err := m.CreateSession(NewSessionOptions{Env: map[string]string{"FOO": "bar"}})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if s.Name != "1" {
		t.Fatalf("unnamed session = %q, want its id", s.Name)
	}
	lines, err := m.ShowEnvironment("1", "FOO", false)
	if err != nil || !slices.Equal(lines, []string{"FOO=bar"}) {
		t.Fatalf("ShowEnvironment(FOO) = %v, %v", lines, err)
	}
}

func TestWindowLifecycle(t *testing.T) {
	m := newTestManager(t)
	wl, err := m.NewWindow("main", NewWindowOptions{Name: "logs", Index: 5})
	if err != nil {
		t.Fatalf("NewWindow() error = %v", err)
	}
	if wl.Index != 5 {
		t.Fatalf("Index = %d, want 5", wl.Index)
	}
	if _, err := m.NewWindow("main", NewWindowOptions{Index: 5}); err == nil {
		t.Fatal("NewWindow at a used index should fail")
	}

	if got := expandIn(t, m, "main", "#{session_stack}"); got != "5,0" {
		t.Fatalf("session_stack = %q, want 5,0", got)
	}
	if err := m.LastWindow("main"); err != nil {
		t.Fatalf("LastWindow() error = %v", err)
	}
	if got := expandIn(t, m, "main", "#{window_index}"); got != "0" {
		t.Fatalf("window_index after last-window = %q, want 0", got)
	}
	if err := m.RenameWindow("main:5", "tail"); err != nil {
		t.Fatalf("RenameWindow() error = %v", err)
	}
	if got := expandIn(t, m, "main", "#{W:#{window_name}#{?automatic-rename,+,-} }"); got != "sh+ tail- " {
		t.Fatalf("windows = %q", got)
	}

	if err := m.KillWindow("main:0"); err != nil {
		t.Fatalf("KillWindow() error = %v", err)
	}
	if got := expandIn(t, m, "main", "#{session_windows}:#{window_name}"); got != "1:tail" {
		t.Fatalf("after kill = %q, want the remaining window current", got)
	}
	if err := m.KillWindow("main:5"); err != nil {
		t.Fatalf("KillWindow() error = %v", err)
	}
	if m.HasSession("main") {
		t.Fatal("session without windows should be destroyed")
	}
}

func TestRenumberWindows(t *testing.T) {
	m := newTestManager(t)
	mustSetOption(t, m, "renumber-windows", "on")
	for range 2 {
		if _, err := m.NewWindow("main", NewWindowOptions{Index: -1, Detached: true}); err != nil {
			t.Fatalf("NewWindow() error = %v", err)
		}
	}
	if err := m.KillWindow("main:1"); err != nil {
		t.Fatalf("KillWindow() error = %v", err)
	}
	if got := expandIn(t, m, "main", "#{W:#{window_index}#{window_id}#,}"); got != "0@0,1@2," {
		t.Fatalf("windows = %q, want renumbered", got)
	}
}

func TestLinkWindow(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.CreateSession(NewSessionOptions{Name: "aux"}); err != nil {
		t.Fatalf("CreateSession(aux) error = %v", err)
	}
	wl, err := m.LinkWindow("main:0", "aux:3", true)
	if err != nil {
		t.Fatalf("LinkWindow() error = %v", err)
	}
	if wl.Index != 3 || wl.Session.Name != "aux" {
		t.Fatalf("link = %s:%d, want aux:3", wl.Session.Name, wl.Index)
	}
	if _, err := m.LinkWindow("main:0", "aux", true); err == nil {
		t.Fatal("linking a window twice into one session should fail")
	}
	if got := expandIn(t, m, "aux", "#{W:#{window_index}#{?window_linked,L,}#,}"); got != "0,3L," {
		t.Fatalf("aux windows = %q", got)
	}
	if got := expandIn(t, m, "main", "#{window_linked_sessions}"); got != "2" {
		t.Fatalf("window_linked_sessions = %q", got)
	}

	if err := m.KillSession("main"); err != nil {
		t.Fatalf("KillSession() error = %v", err)
	}
	if got := expandIn(t, m, "aux", "#{session_windows}#{window_linked}"); got != "20" {
		t.Fatalf("after killing main = %q, want the shared window kept", got)
	}
}

func TestSetOptionScopes(t *testing.T) {
	m := newTestManager(t)

	set := func(req SetOptionRequest) {
		t.Helper()
		if err := m.SetOption(req); err != nil {
			t.Fatalf("SetOption(%+v) error = %v", req, err)
		}
	}
	set(SetOptionRequest{OptionTarget: OptionTarget{Global: true}, Name: "status-left", Value: "G"})
	set(SetOptionRequest{OptionTarget: OptionTarget{Target: "main"}, Name: "@tag", Value: "bar baz"})
	set(SetOptionRequest{OptionTarget: OptionTarget{Target: "main:0", Window: true}, Name: "monitor-silence", Value: "30"})
	set(SetOptionRequest{OptionTarget: OptionTarget{Server: true}, Name: "buffer-limit", Value: "3"})

	if got := expandIn(t, m, "main", "#{status-left}|#{@tag}|#{monitor-silence}|#{buffer-limit}"); got != "G|bar baz|30|3" {
		t.Fatalf("options = %q", got)
	}

	lines, err := m.ShowOptions(OptionTarget{Target: "main"}, "", false)
	if err != nil {
		t.Fatalf("ShowOptions() error = %v", err)
	}
	if !slices.Equal(lines, []string{`@tag "bar baz"`}) {
		t.Fatalf("ShowOptions(main) = %q", lines)
	}
	lines, err = m.ShowOptions(OptionTarget{Global: true}, "status-left", true)
	if err != nil || !slices.Equal(lines, []string{"G"}) {
		t.Fatalf("ShowOptions(-gv status-left) = %q, %v", lines, err)
	}
	if _, err := m.ShowOptions(OptionTarget{Global: true}, "no-such-option", false); !errors.Is(err, options.ErrUnknownOption) {
		t.Fatalf("ShowOptions(unknown) error = %v, want ErrUnknownOption", err)
	}

	set(SetOptionRequest{OptionTarget: OptionTarget{Global: true}, Name: "status-left", Unset: true})
	if got := m.GlobalOption("status-left"); got != "[#{session_name}] " {
		t.Fatalf("unset global status-left = %q, want the default", got)
	}
	set(SetOptionRequest{OptionTarget: OptionTarget{Target: "main"}, Name: "@tag", Unset: true})
	if got := expandIn(t, m, "main", "[#{@tag}]"); got != "[]" {
		t.Fatalf("unset @tag = %q", got)
	}

	set(SetOptionRequest{OptionTarget: OptionTarget{Target: "main"}, Name: "@once", Value: "a"})
	err = m.SetOption(SetOptionRequest{OptionTarget: OptionTarget{Target: "main"}, Name: "@once", Value: "b", OnlyIfUnset: true})
	if err == nil {
		t.Fatal("SetOption(-o) on a set option should fail")
	}
	if err := m.SetOption(SetOptionRequest{OptionTarget: OptionTarget{Global: true}, Name: "no-such", Value: "x"}); !errors.Is(err, options.ErrUnknownOption) {
		t.Fatalf("SetOption(unknown) error = %v", err)
	}
}

func TestEnvironment(t *testing.T) {
	m := newTestManager(t)
	if err := m.SetEnvironment("", "EDITOR", "vi", false, false, false); err != nil {
		t.Fatalf("SetEnvironment(global) error = %v", err)
	}
	if err := m.SetEnvironment("main", "SECRET", "x", false, false, true); err != nil {
		t.Fatalf("SetEnvironment(hidden) error = %v", err)
	}
	if err := m.SetEnvironment("main", "EDITOR", "", true, false, false); err != nil {
		t.Fatalf("SetEnvironment(clear) error = %v", err)
	}
	if err := m.SetEnvironment("main", "A=B", "x", false, false, false); err == nil {
		t.Fatal("SetEnvironment with '=' in the name should fail")
	}

	tests := []struct {
		session string
		hidden  bool
		want    []string
	}{
		{session: "", want: []string{"EDITOR=vi"}},
		{session: "main", want: []string{"-EDITOR"}},
		{session: "main", hidden: true, want: []string{"SECRET=x"}},
	}
	for _, tt := range tests {
		got, err := m.ShowEnvironment(tt.session, "", tt.hidden)
		if err != nil {
			t.Fatalf("ShowEnvironment(%q) error = %v", tt.session, err)
		}
		if !slices.Equal(got, tt.want) {
			t.Fatalf("ShowEnvironment(%q, hidden=%v) = %q, want %q", tt.session, tt.hidden, got, tt.want)
		}
	}

	if _, err := m.ShowEnvironment("main", "NOPE", false); err == nil {
		t.Fatal("ShowEnvironment of a missing variable should fail")
	}
	if err := m.SetEnvironment("main", "EDITOR", "", false, true, false); err != nil {
		t.Fatalf("SetEnvironment(unset) error = %v", err)
	}
	if got, _ := m.ShowEnvironment("main", "", false); len(got) != 0 {
		t.Fatalf("after unset = %q, want empty", got)
	}
}

func TestBuffers(t *testing.T) {
	m := newTestManager(t)
	if err := m.SetOption(SetOptionRequest{OptionTarget: OptionTarget{Server: true}, Name: "buffer-limit", Value: "2"}); err != nil {
		t.Fatalf("SetOption(buffer-limit) error = %v", err)
	}
	var names []string
	for _, data := range []string{"one", "two", "three"} {
		name, err := m.SetBuffer("", data)
		if err != nil {
			t.Fatalf("SetBuffer() error = %v", err)
		}
		names = append(names, name)
	}
	if names[0] != "buffer0000" || names[2] != "buffer0002" {
		t.Fatalf("automatic names = %v", names)
	}
	if _, err := m.SetBuffer("named", "kept"); err != nil {
		t.Fatalf("SetBuffer(named) error = %v", err)
	}

	m.mu.RLock()
	var got []string
	for _, pb := range m.buffersNewestFirstLocked() {
		got = append(got, pb.Name+"="+pb.Data)
	}
	m.mu.RUnlock()
	want := []string{"named=kept", "buffer0002=three", "buffer0001=two"}
	if !slices.Equal(got, want) {
		t.Fatalf("buffers = %v, want %v", got, want)
	}

	if err := m.DeleteBuffer("named"); err != nil {
		t.Fatalf("DeleteBuffer() error = %v", err)
	}
	if err := m.DeleteBuffer("named"); err == nil {
		t.Fatal("deleting a missing buffer should fail")
	}
}

func TestClients(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.CreateSession(NewSessionOptions{Name: "aux"}); err != nil {
		t.Fatalf("CreateSession(aux) error = %v", err)
	}
	c := attachTestClient(t, m, "c1")
	if c.ID == "" || c.Width != 120 || c.TermName != "xterm-256color" {
		t.Fatalf("client = %+v", c)
	}
	if _, err := m.AttachClient(ClientOptions{Name: "c1", Target: "main"}); err == nil {
		t.Fatal("attaching a duplicate client name should fail")
	}
	if _, err := m.AttachClient(ClientOptions{Name: "c2", Target: "nope"}); err == nil {
		t.Fatal("attaching to a missing session should fail")
	}

	if err := m.SwitchClient("c1", "aux"); err != nil {
		t.Fatalf("SwitchClient() error = %v", err)
	}
	m.mu.RLock()
	session, last := c.Session.Name, c.LastSession.Name
	m.mu.RUnlock()
	if session != "aux" || last != "main" {
		t.Fatalf("after switch session=%s last=%s", session, last)
	}
	if err := m.ResizeClient("c1", 100, 30); err != nil {
		t.Fatalf("ResizeClient() error = %v", err)
	}
	if got := m.ClientNames(); !slices.Equal(got, []string{"c1"}) {
		t.Fatalf("ClientNames() = %v", got)
	}

	if err := m.KillSession("aux"); err != nil {
		t.Fatalf("KillSession() error = %v", err)
	}
	line, err := m.RenderStatus("c1")
	if err != nil || !line.Off {
		t.Fatalf("status of a client without a session = %+v, %v", line, err)
	}

	id, err := m.DetachClient("c1")
	if err != nil || id != c.ID {
		t.Fatalf("DetachClient() = %q, %v", id, err)
	}
	if _, err := m.DetachClient("c1"); err == nil {
		t.Fatal("detaching twice should fail")
	}
}

func TestActivityAndSilenceAlerts(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.NewWindow("main", NewWindowOptions{Name: "bg", Index: -1, Detached: true}); err != nil {
		t.Fatalf("NewWindow() error = %v", err)
	}
	now := testNow
	m.now = func() time.Time { return now }

	m.mu.Lock()
	bg := m.windows[1]
	if err := bg.Options.Set("monitor-activity", "on"); err != nil {
		t.Fatalf("Set(monitor-activity) error = %v", err)
	}
	if err := bg.Options.Set("monitor-silence", "10"); err != nil {
		t.Fatalf("Set(monitor-silence) error = %v", err)
	}
	m.windowActivityLocked(bg)
	m.windowActivityLocked(m.windows[0])
	m.mu.Unlock()

	if got := expandIn(t, m, "main", "#{session_alerts}|#{W:#{window_raw_flags}#,}"); got != "1#|*,#," {
		t.Fatalf("after activity = %q", got)
	}

	now = now.Add(5 * time.Second)
	if m.CheckSilence() {
		t.Fatal("CheckSilence() before the interval should change nothing")
	}
	now = now.Add(10 * time.Second)
	if !m.CheckSilence() {
		t.Fatal("CheckSilence() after the interval should raise an alert")
	}
	if m.CheckSilence() {
		t.Fatal("CheckSilence() should alert once per silent period")
	}
	if got := expandIn(t, m, "main", "#{session_alerts}"); got != "1#~" {
		t.Fatalf("session_alerts = %q, want activity and silence", got)
	}

	if err := m.SelectWindow("main:1"); err != nil {
		t.Fatalf("SelectWindow() error = %v", err)
	}
	if got := expandIn(t, m, "main", "[#{session_alerts}]"); got != "[]" {
		t.Fatalf("alerts after selecting the window = %q, want cleared", got)
	}
}
