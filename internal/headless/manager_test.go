package headless

import (
	"os/exec"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/remotecli/relayd/internal/metrics"
)

func TestAppendOutputCarriesPartialLine(t *testing.T) {
	m := &Manager{scrollback: 100}
	s := &session{}

	m.appendOutput(s, []byte("hel"))
	if len(s.lines) != 0 || s.partial != "hel" {
		t.Fatalf("lines=%v partial=%q", s.lines, s.partial)
	}

	m.appendOutput(s, []byte("lo\nworld"))
	if !reflect.DeepEqual(s.lines, []string{"hello"}) || s.partial != "world" {
		t.Fatalf("lines=%v partial=%q", s.lines, s.partial)
	}
}

func TestAppendOutputKeepsFinalRepaint(t *testing.T) {
	m := &Manager{scrollback: 100}
	s := &session{}

	m.appendOutput(s, []byte("loading 10%\rloading 99%\rdone\n"))
	if !reflect.DeepEqual(s.lines, []string{"done"}) {
		t.Fatalf("lines=%v, want [done]", s.lines)
	}
}

func TestAppendOutputStripsEscapes(t *testing.T) {
	m := &Manager{scrollback: 100}
	s := &session{}

	m.appendOutput(s, []byte("\x1b[32mok\x1b[0m\n"))
	if !reflect.DeepEqual(s.lines, []string{"ok"}) {
		t.Fatalf("lines=%v, want [ok]", s.lines)
	}
}

func TestAppendOutputRingBuffer(t *testing.T) {
	m := &Manager{scrollback: 3}
	s := &session{}

	m.appendOutput(s, []byte("1\n2\n3\n4\n5\n"))
	if !reflect.DeepEqual(s.lines, []string{"3", "4", "5"}) {
		t.Fatalf("lines=%v, want last three", s.lines)
	}
}

func TestCaptureTail(t *testing.T) {
	m := &Manager{scrollback: 100, sessions: map[string]*session{}}
	s := &session{name: "web"}
	m.sessions["web"] = s
	m.appendOutput(s, []byte("a\nb\nc\n"))

	got, ok := m.Capture("web", 2)
	if !ok {
		t.Fatal("session not found")
	}
	if got != "b\nc" {
		t.Errorf("capture = %q, want b\\nc", got)
	}

	if _, ok := m.Capture("missing", 2); ok {
		t.Error("unknown session reported as found")
	}
}

func TestSessionGaugeTracksSelfExit(t *testing.T) {
	m, err := NewManager("true", t.TempDir(), 10)
	if err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	s := &session{name: "web", cmd: cmd, closed: make(chan struct{})}
	m.mu.Lock()
	m.sessions["web"] = s
	m.mu.Unlock()
	m.syncGauge()

	if v := testutil.ToFloat64(metrics.HeadlessSessions); v != 1 {
		t.Fatalf("gauge = %v, want 1", v)
	}

	m.waitForExit(s)

	if m.Exists("web") {
		t.Error("session still registered after its process exited")
	}
	if v := testutil.ToFloat64(metrics.HeadlessSessions); v != 0 {
		t.Errorf("gauge = %v, want 0 after exit", v)
	}
}

func TestSessionGaugeTracksKill(t *testing.T) {
	m, err := NewManager("true", t.TempDir(), 10)
	if err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	m.sessions["web"] = &session{name: "web", closed: make(chan struct{})}
	m.mu.Unlock()
	m.syncGauge()

	m.Kill("web")
	if v := testutil.ToFloat64(metrics.HeadlessSessions); v != 0 {
		t.Errorf("gauge = %v, want 0 after kill", v)
	}
}
