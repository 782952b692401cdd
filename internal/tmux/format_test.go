package tmux

import (
	"strings"
	"testing"
)

func TestFormatTableIsSorted(t *testing.T) {
	for i := 1; i < len(formatTable); i++ {
		if formatTable[i-1].key >= formatTable[i].key {
			t.Fatalf("format table out of order at %d: %q >= %q", i, formatTable[i-1].key, formatTable[i].key)
		}
	}
	for _, entry := range formatTable {
		if findFormatTable(entry.key) == nil {
			t.Fatalf("findFormatTable(%q) = nil", entry.key)
		}
	}
	if findFormatTable("no_such_variable") != nil {
		t.Fatal("findFormatTable(no_such_variable) found an entry")
	}
}

func TestExpandLiteralAndEscapes(t *testing.T) {
	m := newTestManager(t)
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{name: "plain text", template: "plain text", want: "plain text"},
		{name: "empty", template: "", want: ""},
		{name: "escaped hash", template: "a##b", want: "a#b"},
		{name: "escaped comma and braces", template: "#,#}", want: ",}"},
		{name: "trailing hash", template: "end#", want: "end#"},
		{name: "unknown alias kept", template: "#Z", want: "#Z"},
		{name: "literal modifier", template: "#{l:#{session_name}}", want: "#{session_name}"},
		{name: "style left alone", template: "#[fg=red]x#[default]", want: "#[fg=red]x#[default]"},
		{name: "unterminated placeholder stops", template: "ok#{session_name", want: "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandIn(t, m, "main", tt.template); got != tt.want {
				t.Fatalf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestExpandVariablesAndAliases(t *testing.T) {
	m := newTestManager(t)
	tests := []struct {
		template string
		want     string
	}{
		{"#{session_name}:#{window_index}.#{pane_index}", "main:0.0"},
		{"#S:#I:#W", "main:0:sh"},
		{"#D #{session_id} #{window_id}", "%0 $0 @0"},
		{"#{session_windows} #{window_panes}", "1 1"},
		{"#{session_attached}", "0"},
		{"#{window_active}#{pane_active}", "11"},
		{"#{pane_current_command}", "sh"},
		{"#{socket_path}", "/tmp/go-tmux-test/default"},
		{"a#{no_such_variable}b", "ab"},
	}
	for _, tt := range tests {
		if got := expandIn(t, m, "main", tt.template); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestExpandScopedVariablesAbsent(t *testing.T) {
	m := newTestManager(t)
	m.mu.RLock()
	defer m.mu.RUnlock()
	ft := m.NewFormatTree(nil, FormatNone, 0)
	if got := ft.Expand("[#{session_name}][#{pane_id}][#{client_name}]"); got != "[][][]" {
		t.Fatalf("Expand() without scope = %q, want empty placeholders", got)
	}
}

func TestExpandRecursionGuard(t *testing.T) {
	m := newTestManager(t)
	mustSetOption(t, m, "@loop", "#{E:@loop}")
	if got := expandIn(t, m, "main", "x#{E:@loop}y"); got != "xy" {
		t.Fatalf("self-referencing expansion = %q, want %q", got, "xy")
	}
}

func TestExpandSelfReferencingVariable(t *testing.T) {
	m := newTestManager(t)
	m.mu.RLock()
	defer m.mu.RUnlock()

	// A variable's value is not expanded again, so #{x} yields its text.
	ft := m.NewFormatTree(nil, FormatNone, 0)
	ft.Add("x", "#{x}")
	if got := ft.Expand("#{x}"); got != "#{x}" {
		t.Fatalf("Expand(#{x}) = %q, want the unexpanded value", got)
	}

	ft = m.NewFormatTree(nil, FormatNone, 0)
	ft.Add("x", "#{E:x}")
	if got := ft.Expand("a#{E:x}b"); got != "ab" {
		t.Fatalf("Expand(a#{E:x}b) = %q, want the depth guard to stop at %q", got, "ab")
	}
}

func TestExpandConditionals(t *testing.T) {
	m := newTestManager(t)
	mustSetOption(t, m, "@on", "1")
	mustSetOption(t, m, "@off", "0")
	tests := []struct {
		template string
		want     string
	}{
		{"#{?session_attached,yes,no}", "no"},
		{"#{?window_active,yes,no}", "yes"},
		{"#{?@on,on,off}", "on"},
		{"#{?@off,on,off}", "off"},
		{"#{?missing,yes,no}", "no"},
		{"#{?#{==:a,a},same,diff}", "same"},
		{"#{?@on,#{session_name},x}", "main"},
		{"#{?@on,a#,b,c}", "a,b"},
		{"#{?@on,only}", ""},
	}
	for _, tt := range tests {
		if got := expandIn(t, m, "main", tt.template); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestExpandComparisons(t *testing.T) {
	m := newTestManager(t)
	tests := []struct {
		template string
		want     string
	}{
		{"#{==:#{session_name},main}", "1"},
		{"#{!=:a,b}", "1"},
		{"#{<:a,b}", "1"},
		{"#{>=:a,b}", "0"},
		{"#{||:0,}", "0"},
		{"#{||:0,x}", "1"},
		{"#{&&:1,x}", "1"},
		{"#{&&:1,0}", "0"},
		{"#{m:*ai*,main}", "1"},
		{"#{m:*AI*,main}", "0"},
		{"#{m/i:*AI*,main}", "1"},
		{"#{m/r:^ma,main}", "1"},
		{"#{m/ri:^MA,main}", "1"},
		{"#{m/r:(,main}", "0"},
		{"#{m:[ab]*,apple}", "1"},
		{"#{m:[ab]*,cherry}", "0"},
		{"#{m:[!x]*,main}", "1"},
		{"#{m:[^m]*,main}", "0"},
		{"#{m:*[Vv]im*,nvim}", "1"},
		{"#{m:a/*,a/b/c}", "1"},
	}
	for _, tt := range tests {
		if got := expandIn(t, m, "main", tt.template); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestExpandArithmetic(t *testing.T) {
	m := newTestManager(t)
	tests := []struct {
		template string
		want     string
	}{
		{"#{e|+:1,2}", "3"},
		{"#{e|-:1,5}", "-4"},
		{"#{e|*:#{window_index},7}", "0"},
		{"#{e|/:7,2}", "3"},
		{"#{e|%:7,3}", "1"},
		{"#{e|m:7,3}", "1"},
		{"#{e|/|f:1,4}", "0.25"},
		{"#{e|*|f|3:2.5,2}", "5.000"},
		{"#{e|+:2.9,0}", "2"},
		{"#{e|<:1,2}", "1"},
		{"#{e|==:3,4}", "0"},
		{"#{e|/:1,0}", ""},
		{"#{e|^:1,2}", ""},
		{"#{e|+:x,1}", ""},
	}
	for _, tt := range tests {
		if got := expandIn(t, m, "main", tt.template); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestExpandTrimAndPad(t *testing.T) {
	m := newTestManager(t)
	mustSetOption(t, m, "@wide", "日本")
	tests := []struct {
		template string
		want     string
	}{
		{"#{=3:session_name}", "mai"},
		{"#{=-3:session_name}", "ain"},
		{"#{=10:session_name}", "main"},
		{"#{=/3/...:session_name}", "mai..."},
		{"#{=/-3/...:session_name}", "...ain"},
		{"#{=/10/...:session_name}", "main"},
		{"#{=2:@wide}", "日"},
		{"#{p6:session_name}|", "  main|"},
		{"#{p-6:session_name}|", "main  |"},
		{"#{w;p2147483647:session_name}", "10000"},
		{"#{w;p-99999999:session_name}", "10000"},
		{"#{n:session_name}", "4"},
		{"#{n:@wide}", "6"},
		{"#{w:@wide}", "4"},
	}
	for _, tt := range tests {
		if got := expandIn(t, m, "main", tt.template); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestExpandStringModifiers(t *testing.T) {
	m := newTestManager(t)
	mustSetOption(t, m, "@q", "a b;c")
	mustSetOption(t, m, "@hash", "#x")
	mustSetOption(t, m, "@fmt", "#{session_name}")
	tests := []struct {
		template string
		want     string
	}{
		{"#{b:session_path}", "work"},
		{"#{d:session_path}", "/home/user"},
		{"#{q:@q}", `a\ b\;c`},
		{"#{q/e:@hash}", "##x"},
		{"#{s/ai/AI/:session_name}", "mAIn"},
		{`#{s/(m)(a)/\2\1/:session_name}`, "amin"},
		{"#{s/MAIN/x/i:session_name}", "x"},
		{"#{s/MAIN/x/:session_name}", "main"},
		{"#{s/n/N/;=2:session_name}", "ma"},
		{"#{a:65}", "A"},
		{"#{a:7}", ""},
		{"#{@fmt}", "#{session_name}"},
		{"#{E:@fmt}", "main"},
		{"#{N:sh}", "1"},
		{"#{N/w:vim}", "0"},
		{"#{N/s:main}", "1"},
		{"#{N/s:other}", "0"},
	}
	for _, tt := range tests {
		if got := expandIn(t, m, "main", tt.template); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestExpandColour(t *testing.T) {
	m := newTestManager(t)
	tests := []struct {
		template string
		want     string
	}{
		{"#{c:red}", "800000"},
		{"#{c:brightred}", "ff0000"},
		{"#{c:#ff8000}", "ff8000"},
		{"#{c:colour196}", "ff0000"},
		{"#{c:colour244}", "808080"},
		{"#{c:colour232}", "080808"},
		{"#{c:colour67}", "5f87af"},
		{"#{c:colour255}", "eeeeee"},
		{"#{c:3}", "808000"},
		{"#{c:default}", ""},
		{"#{c:#12}", ""},
		{"#{c:nonsense}", ""},
	}
	for _, tt := range tests {
		if got := expandIn(t, m, "main", tt.template); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestExpandTimes(t *testing.T) {
	m := newTestManager(t)
	mustSetOption(t, m, "@epoch", "1773500966")
	mustSetOption(t, m, "@notime", "abc")
	mustSetOption(t, m, "@tfmt", "%Y")

	if got, want := expandIn(t, m, "main", "#{t:session_created}"), formatCtime(testNow); got != want {
		t.Errorf("t: = %q, want %q", got, want)
	}
	if got, want := expandIn(t, m, "main", "#{t/p:session_created}"), formatStrftime("%H:%M", testNow); got != want {
		t.Errorf("t/p: = %q, want %q", got, want)
	}
	if got := expandIn(t, m, "main", "#{t/f/%Y:session_created}"); got != "2026" {
		t.Errorf("t/f: = %q, want 2026", got)
	}
	if got := expandIn(t, m, "main", "#{session_created}"); got != "1773500966" {
		t.Errorf("raw time = %q, want Unix seconds", got)
	}
	if got, want := expandIn(t, m, "main", "#{t:@epoch}"), formatCtime(testNow); got != want {
		t.Errorf("t: on a numeric string = %q, want %q", got, want)
	}
	if got := expandIn(t, m, "main", "[#{t:@notime}]"); got != "[]" {
		t.Errorf("t: on a non-time string = %q, want empty", got)
	}
	if got := expandIn(t, m, "main", "#{T:@tfmt}"); got != "2026" {
		t.Errorf("T: = %q, want 2026", got)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ft := m.NewFormatTree(nil, FormatNone, 0)
	ft.Defaults(nil, m.sessions["main"], nil, nil)
	if got := ft.ExpandTime("%Y #{session_name}"); got != "2026 main" {
		t.Errorf("ExpandTime() = %q, want %q", got, "2026 main")
	}
	if got := ft.Expand("%Y"); got != "%Y" {
		t.Errorf("Expand() applied strftime: %q", got)
	}
}

func TestFormatPrettyTime(t *testing.T) {
	now := testNow
	tests := []struct {
		name string
		t    string
		want string
	}{
		{"same day", "2026-03-14T09:00:00Z", formatStrftime("%H:%M", mustTime(t, "2026-03-14T09:00:00Z"))},
		{"same month", "2026-03-02T09:00:00Z", formatStrftime("%a%d", mustTime(t, "2026-03-02T09:00:00Z"))},
		{"this year", "2026-01-10T09:00:00Z", formatStrftime("%d%b", mustTime(t, "2026-01-10T09:00:00Z"))},
		{"older", "2024-06-01T09:00:00Z", formatStrftime("%h%y", mustTime(t, "2024-06-01T09:00:00Z"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatPrettyTime(mustTime(t, tt.t), now); got != tt.want {
				t.Fatalf("formatPrettyTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandOverridePrecedence(t *testing.T) {
	m := newTestManager(t)
	mustSetOption(t, m, "@shared", "from-option")
	if err := m.SetEnvironment("", "GT_TEST_VAR", "from-env", false, false, false); err != nil {
		t.Fatalf("SetEnvironment() error = %v", err)
	}
	if err := m.SetEnvironment("", "session_name", "env-loses", false, false, false); err != nil {
		t.Fatalf("SetEnvironment() error = %v", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ft := m.NewFormatTree(nil, FormatNone, 0)
	ft.Defaults(nil, m.sessions["main"], nil, nil)

	if got := ft.Expand("#{session_name}"); got != "main" {
		t.Fatalf("table over environment = %q, want main", got)
	}
	if got := ft.Expand("#{GT_TEST_VAR}"); got != "from-env" {
		t.Fatalf("environment fallback = %q, want from-env", got)
	}
	ft.Add("session_name", "override")
	ft.Add("@shared", "from-tree")
	if got := ft.Expand("#{session_name} #{@shared}"); got != "override from-tree" {
		t.Fatalf("tree entries = %q, want overrides to win", got)
	}
	calls := 0
	ft.AddCallback("lazy", func(*FormatTree) string {
		calls++
		return "computed"
	})
	_ = ft.Expand("#{lazy}#{lazy}")
	if calls != 1 {
		t.Fatalf("callback ran %d times, want 1", calls)
	}
}

func TestExpandLoops(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.NewWindow("main", NewWindowOptions{Name: "logs", Detached: true, Index: -1}); err != nil {
		t.Fatalf("NewWindow() error = %v", err)
	}
	if _, err := m.SplitWindow("main:0", -1, SplitOptions{Detached: true}); err != nil {
		t.Fatalf("SplitWindow() error = %v", err)
	}
	if _, err := m.CreateSession(NewSessionOptions{Name: "aux"}); err != nil {
		t.Fatalf("CreateSession(aux) error = %v", err)
	}

	tests := []struct {
		template string
		want     string
	}{
		{"#{W:#{window_index}:#{window_name} }", "0:sh 1:logs "},
		{"#{W:#{window_index} ,[#{window_index}] }", "[0] 1 "},
		{"#{P:#{pane_id} ,(#{pane_id}) }", "(%0) %2 "},
		{"#{S:#{session_name},}", "main,aux,"},
		{"#{S:#{session_name}/#{W:#I}/}", "main/01/aux/0/"},
		{"#{L:#{client_name}}", ""},
	}
	for _, tt := range tests {
		if got := expandIn(t, m, "main", tt.template); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ft := m.NewFormatTree(nil, FormatNone, 0)
	if got := ft.Expand("[#{W:x}][#{P:y}]"); got != "[][]" {
		t.Fatalf("loops without a scope = %q, want empty", got)
	}
}

func TestExpandPaneSearch(t *testing.T) {
	m := newTestManager(t)
	if err := m.AppendPaneLines(0, "first line", "error: disk full   ", "last"); err != nil {
		t.Fatalf("AppendPaneLines() error = %v", err)
	}
	tests := []struct {
		template string
		want     string
	}{
		{"#{C:disk}", "2"},
		{"#{C:DISK}", "0"},
		{"#{C/i:DISK}", "2"},
		{"#{C/r:^l.st$}", "3"},
		{"#{C:absent}", "0"},
		{"#{C:[d]isk}", "2"},
		{"#{C:[!f]ull}", "0"},
		{"#{C:error?}", "2"},
	}
	for _, tt := range tests {
		if got := expandIn(t, m, "main", tt.template); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestEachListsScopeVariables(t *testing.T) {
	m := newTestManager(t)
	m.mu.RLock()
	defer m.mu.RUnlock()
	ft := m.NewFormatTree(nil, FormatNone, 0)
	ft.Defaults(nil, m.sessions["main"], nil, nil)
	ft.Add("custom", "value")

	got := map[string]string{}
	ft.Each(func(key, value string) { got[key] = value })
	want := map[string]string{
		"session_name":    "main",
		"session_created": "1773500966",
		"pane_id":         "%0",
		"custom":          "value",
	}
	for key, value := range want {
		if got[key] != value {
			t.Errorf("Each()[%s] = %q, want %q", key, got[key], value)
		}
	}
	if _, ok := got["client_name"]; ok {
		t.Error("Each() listed a client variable with no client in scope")
	}
}

func TestExpandVerbosePrintsSteps(t *testing.T) {
	m := newTestManager(t)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lines []string
	ft := m.NewFormatTree(nil, FormatNone, FormatVerbose)
	ft.Defaults(nil, m.sessions["main"], nil, nil)
	ft.SetPrint(func(line string) { lines = append(lines, line) })
	if got := ft.Expand("#{session_name}"); got != "main" {
		t.Fatalf("Expand() = %q, want main", got)
	}
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"# expanding format: #{session_name}", "# format 'session_name' found: main", "# result is: main"} {
		if !strings.Contains(joined, want) {
			t.Errorf("verbose output missing %q:\n%s", want, joined)
		}
	}
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern  string
		text     string
		casefold bool
		want     bool
	}{
		{pattern: "*", text: "", want: true},
		{pattern: "a?c", text: "abc", want: true},
		{pattern: "[a-c]x", text: "bx", want: true},
		{pattern: "[!a-c]x", text: "bx", want: false},
		{pattern: "[^a-c]x", text: "dx", want: true},
		{pattern: "*/bin/*", text: "/usr/bin/vim", want: true},
		{pattern: "{a,b}", text: "a", want: false},
		{pattern: "{a,b}", text: "{a,b}", want: true},
		{pattern: `\*`, text: "*", want: true},
		{pattern: `\*`, text: "x", want: false},
		{pattern: "[ab", text: "[ab", want: true},
		{pattern: "*VIM", text: "nvim", casefold: true, want: true},
	}
	for _, tt := range tests {
		if got := globMatch(tt.pattern, tt.text, tt.casefold); got != tt.want {
			t.Errorf("globMatch(%q, %q, %v) = %v, want %v", tt.pattern, tt.text, tt.casefold, got, tt.want)
		}
	}
}
