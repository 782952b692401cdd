package tmux

import (
	"sync"
	"testing"
	"time"
)

// testNow is the fixed clock of test managers.
var testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

// fakeProcInfo reports no foreground process, so pane commands fall back to
// the start command or shell.
type fakeProcInfo struct {
	names map[int]string
}

func (f fakeProcInfo) Name(_ int, pid int) string { return f.names[pid] }
func (f fakeProcInfo) Cwd(int, int) string         { return "" }

// newTestManager returns a manager with one session "main" (window 0 named
// "sh", pane %0) and a fixed clock.
func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	m := NewSessionManager(SessionManagerOptions{
		DefaultShell: "/bin/sh",
		SocketPath:   "/tmp/go-tmux-test/default",
		ProcessInfo:  fakeProcInfo{},
	})
	m.now = func() time.Time { return testNow }
	m.startTime = testNow
	if _, err := m.CreateSession(NewSessionOptions{Name: "main", Cwd: "/home/user/work"}); err != nil {
		t.Fatalf("CreateSession(main) error = %v", err)
	}
	return m
}

// expandIn expands template with the defaults of the named session.
func expandIn(t *testing.T, m *SessionManager, session, template string) string {
	t.Helper()
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.sessions[session]
	if s == nil {
		t.Fatalf("session %q does not exist", session)
	}
	ft := m.NewFormatTree(nil, FormatNone, 0)
	ft.Defaults(nil, s, nil, nil)
	return ft.Expand(template)
}

func mustSetOption(t *testing.T, m *SessionManager, name, value string) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sessions["main"].Options.Set(name, value); err != nil {
		t.Fatalf("Set(%s) error = %v", name, err)
	}
}

type fakeJob struct {
	mu     sync.Mutex
	killed bool
}

func (j *fakeJob) Kill() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.killed = true
}

func (j *fakeJob) Killed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.killed
}

type fakeStart struct {
	command  string
	dir      string
	update   func(string)
	complete func(string)
	job      *fakeJob
}

// fakeStarter records #() starts; the test drives their callbacks.
type fakeStarter struct {
	mu     sync.Mutex
	starts []*fakeStart
	err    error
}

func (f *fakeStarter) Start(command, dir string, update func(string), complete func(string)) (JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	st := &fakeStart{command: command, dir: dir, update: update, complete: complete, job: &fakeJob{}}
	f.starts = append(f.starts, st)
	return st.job, nil
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *fakeStarter) last() *fakeStart {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.starts) == 0 {
		return nil
	}
	return f.starts[len(f.starts)-1]
}

type recordingRedrawer struct {
	mu      sync.Mutex
	clients []string
}

func (r *recordingRedrawer) RedrawStatus(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, clientID)
}

func (r *recordingRedrawer) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.clients...)
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("time.Parse(%q) error = %v", value, err)
	}
	return parsed
}
