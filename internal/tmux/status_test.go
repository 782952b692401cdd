package tmux

import (
	"slices"
	"testing"
	"time"
)

func attachTestClient(t *testing.T, m *SessionManager, name string) *TmuxClient {
	t.Helper()
	c, err := m.AttachClient(ClientOptions{Name: name, Target: "main", Width: 120, Height: 40})
	if err != nil {
		t.Fatalf("AttachClient(%s) error = %v", name, err)
	}
	return c
}

func TestRenderStatus(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.NewWindow("main", NewWindowOptions{Name: "logs", Detached: true, Index: -1}); err != nil {
		t.Fatalf("NewWindow() error = %v", err)
	}
	attachTestClient(t, m, "c1")
	mustSetOption(t, m, "status-right", "#{client_name}|%Y")

	line, err := m.RenderStatus("c1")
	if err != nil {
		t.Fatalf("RenderStatus() error = %v", err)
	}
	want := StatusLine{Client: "c1", Left: "[main] ", Windows: "0:sh* 1:logs ", Right: "c1|2026"}
	if line != want {
		t.Fatalf("RenderStatus() = %+v, want %+v", line, want)
	}
}

func TestRenderStatusTrimsSides(t *testing.T) {
	m := newTestManager(t)
	attachTestClient(t, m, "c1")
	mustSetOption(t, m, "status-left", "#{l:abcdefghijklmnop}")

	line, err := m.RenderStatus("c1")
	if err != nil {
		t.Fatalf("RenderStatus() error = %v", err)
	}
	if line.Left != "abcdefghij" {
		t.Fatalf("Left = %q, want trimmed to status-left-length", line.Left)
	}
}

func TestRenderStatusOff(t *testing.T) {
	m := newTestManager(t)
	attachTestClient(t, m, "c1")
	mustSetOption(t, m, "status", "off")

	line, err := m.RenderStatus("c1")
	if err != nil {
		t.Fatalf("RenderStatus() error = %v", err)
	}
	if !line.Off || line.Left != "" {
		t.Fatalf("RenderStatus() = %+v, want status off", line)
	}
	if clients := m.StatusClients(); len(clients) != 0 {
		t.Fatalf("StatusClients() = %v, want none with status off", clients)
	}
}

func TestRenderStatusUnknownClient(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.RenderStatus("ghost"); err == nil {
		t.Fatal("RenderStatus(ghost) should fail")
	}
}

func TestStatusClientsAndInterval(t *testing.T) {
	m := newTestManager(t)
	attachTestClient(t, m, "c1")
	attachTestClient(t, m, "c2")
	mustSetOption(t, m, "status-interval", "5")

	if got := m.StatusClients(); !slices.Equal(got, []string{"c1", "c2"}) {
		t.Fatalf("StatusClients() = %v, want attach order", got)
	}
	if got := m.StatusInterval("c2"); got != 5 {
		t.Fatalf("StatusInterval(c2) = %d, want 5", got)
	}
	if got := m.StatusInterval("ghost"); got != 0 {
		t.Fatalf("StatusInterval(ghost) = %d, want 0", got)
	}
}

func TestStatusJobsRunPerClient(t *testing.T) {
	starter := &fakeStarter{}
	m := newTestManager(t)
	m.jobs, _ = newTestJobs(starter, nil)
	c1 := attachTestClient(t, m, "c1")
	attachTestClient(t, m, "c2")
	mustSetOption(t, m, "status-right", "#(uptime)")

	for _, name := range []string{"c1", "c2"} {
		if _, err := m.RenderStatus(name); err != nil {
			t.Fatalf("RenderStatus(%s) error = %v", name, err)
		}
	}
	if starter.count() != 2 {
		t.Fatalf("starts = %d, want one job per client", starter.count())
	}

	if _, err := m.DetachClient("c1"); err != nil {
		t.Fatalf("DetachClient() error = %v", err)
	}
	if n := m.jobs.LostClient(c1.ID); n != 0 {
		t.Fatalf("LostClient() after detach removed %d, want detach to have tidied", n)
	}
	if m.jobs.Len() != 1 {
		t.Fatalf("entries = %d, want only c2's job", m.jobs.Len())
	}
}

func TestStatusTimerTick(t *testing.T) {
	m := newTestManager(t)
	c1 := attachTestClient(t, m, "c1")
	redraw := &recordingRedrawer{}
	st := NewStatusTimer(m, redraw)

	if got := st.Tick(testNow); len(got) != 0 {
		t.Fatalf("first Tick() = %v, want the clock started only", got)
	}
	if got := st.Tick(testNow.Add(14 * time.Second)); len(got) != 0 {
		t.Fatalf("Tick() before status-interval = %v", got)
	}
	if got := st.Tick(testNow.Add(15 * time.Second)); !slices.Equal(got, []string{c1.ID}) {
		t.Fatalf("Tick() at status-interval = %v, want [%s]", got, c1.ID)
	}
	if calls := redraw.calls(); !slices.Equal(calls, []string{c1.ID}) {
		t.Fatalf("redraws = %v", calls)
	}

	mustSetOption(t, m, "status-interval", "0")
	if got := st.Tick(testNow.Add(time.Hour)); len(got) != 0 {
		t.Fatalf("Tick() with status-interval 0 = %v", got)
	}
	if len(st.last) != 0 {
		t.Fatalf("last = %v, want disabled clients forgotten", st.last)
	}

	mustSetOption(t, m, "status-interval", "1")
	if _, err := m.DetachClient("c1"); err != nil {
		t.Fatalf("DetachClient() error = %v", err)
	}
	if got := st.Tick(testNow.Add(2 * time.Hour)); len(got) != 0 {
		t.Fatalf("Tick() after detach = %v", got)
	}
}
