package mailbox

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/remotecli/relayd/internal/registry"
)

func newTestMailbox(t *testing.T) *Mailbox {
	t.Helper()
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestWritePendingRoundTrip(t *testing.T) {
	m := newTestMailbox(t)

	in := PendingPrompt{
		PromptID:       NewPromptID(),
		Kind:           KindQuestion,
		Workspace:      "web",
		TerminalHandle: "relayd-web",
		SessionKind:    registry.KindMultiplexer,
		Question:       "Which framework?",
		Header:         "Setup",
		Options:        []string{"react", "vue", "svelte"},
		MultiSelect:    true,
		Selected:       []bool{false, false, false},
		IsLast:         true,
	}
	if err := m.WritePending(in); err != nil {
		t.Fatalf("WritePending: %v", err)
	}

	out := m.ReadPending(in.PromptID)
	if out == nil {
		t.Fatal("ReadPending returned nil")
	}
	if out.CreatedAt == 0 {
		t.Error("createdAt not stamped")
	}
	if out.Workspace != in.Workspace || out.Question != in.Question || out.Header != in.Header {
		t.Errorf("fields lost: %+v", out)
	}
	if len(out.Options) != 3 || !out.MultiSelect || !out.IsLast {
		t.Errorf("option fields lost: %+v", out)
	}
	if out.SessionKind != registry.KindMultiplexer {
		t.Errorf("sessionKind = %q", out.SessionKind)
	}
}

func TestReadMissingOrCorrupt(t *testing.T) {
	m := newTestMailbox(t)

	if m.ReadPending("nope") != nil {
		t.Error("missing pending should read as nil")
	}
	if m.ReadResponse("nope") != nil {
		t.Error("missing response should read as nil")
	}

	if err := os.WriteFile(m.pendingPath("bad"), []byte("{garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	if m.ReadPending("bad") != nil {
		t.Error("corrupt pending should read as nil")
	}
}

func TestHasPendingForWorkspace(t *testing.T) {
	m := newTestMailbox(t)

	id := NewPromptID()
	if err := m.WritePending(PendingPrompt{PromptID: id, Kind: KindPermission, Workspace: "web"}); err != nil {
		t.Fatal(err)
	}

	if !m.HasPendingForWorkspace("web") {
		t.Error("expected pending for web")
	}
	if m.HasPendingForWorkspace("other") {
		t.Error("unexpected pending for other")
	}

	if err := m.WriteResponse(Response{PromptID: id, Action: ActionAllow}); err != nil {
		t.Fatal(err)
	}
	// Resolved even though the pending file still exists.
	if m.HasPendingForWorkspace("web") {
		t.Error("responded prompt still counts as pending")
	}
}

func TestCleanExpired(t *testing.T) {
	m := newTestMailbox(t)

	old := NewPromptID()
	fresh := NewPromptID()
	if err := m.WritePending(PendingPrompt{PromptID: old, Workspace: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePending(PendingPrompt{PromptID: fresh, Workspace: "b"}); err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(m.pendingPath(old), past, past); err != nil {
		t.Fatal(err)
	}
	recent := time.Now().Add(-time.Second)
	if err := os.Chtimes(m.pendingPath(fresh), recent, recent); err != nil {
		t.Fatal(err)
	}

	if n := m.CleanExpired(); n != 1 {
		t.Errorf("expired count = %d, want 1", n)
	}

	if m.ReadPending(old) != nil {
		t.Error("10-minute-old prompt survived cleanup")
	}
	if m.ReadPending(fresh) == nil {
		t.Error("1-second-old prompt was removed")
	}
}

func TestCleanExpiredCountsPendingOnly(t *testing.T) {
	m := newTestMailbox(t)

	id := NewPromptID()
	if err := m.WritePending(PendingPrompt{PromptID: id, Workspace: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteResponse(Response{PromptID: id, Action: ActionAllow}); err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-10 * time.Minute)
	for _, path := range []string{m.pendingPath(id), m.responsePath(id)} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatal(err)
		}
	}

	if n := m.CleanExpired(); n != 1 {
		t.Errorf("expired count = %d, want 1 (response files are not prompts)", n)
	}
	if m.ReadResponse(id) != nil {
		t.Error("stale response file survived cleanup")
	}
}

func TestUpdatePendingToggle(t *testing.T) {
	m := newTestMailbox(t)

	id := NewPromptID()
	if err := m.WritePending(PendingPrompt{
		PromptID: id,
		Kind:     KindQuestion,
		Options:  []string{"a", "b", "c"},
		Selected: []bool{false, false, false},
	}); err != nil {
		t.Fatal(err)
	}

	toggle := func() {
		if err := m.UpdatePending(id, func(p *PendingPrompt) {
			p.Selected[1] = !p.Selected[1]
		}); err != nil {
			t.Fatalf("UpdatePending: %v", err)
		}
	}

	toggle()
	if got := m.ReadPending(id).Selected; !got[1] {
		t.Errorf("after one toggle: %v", got)
	}
	toggle()
	if got := m.ReadPending(id).Selected; got[0] || got[1] || got[2] {
		t.Errorf("after two toggles: %v, want all false", got)
	}
}

func TestUpdatePendingMissingIsNoop(t *testing.T) {
	m := newTestMailbox(t)
	called := false
	if err := m.UpdatePending("gone", func(*PendingPrompt) { called = true }); err != nil {
		t.Fatalf("UpdatePending on missing: %v", err)
	}
	if called {
		t.Error("mutate ran for a missing prompt")
	}
}

func TestCleanPrompt(t *testing.T) {
	m := newTestMailbox(t)
	id := NewPromptID()
	m.WritePending(PendingPrompt{PromptID: id})
	m.WriteResponse(Response{PromptID: id, Action: ActionDeny})

	m.CleanPrompt(id)
	if m.ReadPending(id) != nil || m.ReadResponse(id) != nil {
		t.Error("files survived CleanPrompt")
	}
	// Repeat delete is harmless.
	m.CleanPrompt(id)
}

func TestAwaitResponse(t *testing.T) {
	m := newTestMailbox(t)
	id := NewPromptID()

	go func() {
		time.Sleep(30 * time.Millisecond)
		m.WriteResponse(Response{PromptID: id, Action: ActionAllow})
	}()

	resp, err := m.AwaitResponse(id, 10*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("AwaitResponse: %v", err)
	}
	if resp.Action != ActionAllow {
		t.Errorf("action = %q", resp.Action)
	}
	if resp.RespondedAt == 0 {
		t.Error("respondedAt not stamped")
	}
}

func TestAwaitResponseTimeout(t *testing.T) {
	m := newTestMailbox(t)
	_, err := m.AwaitResponse(NewPromptID(), 10*time.Millisecond, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestPendingIDs(t *testing.T) {
	m := newTestMailbox(t)
	a, b := NewPromptID(), NewPromptID()
	m.WritePending(PendingPrompt{PromptID: a})
	m.WritePending(PendingPrompt{PromptID: b})
	m.WriteResponse(Response{PromptID: a, Action: ActionAllow})

	ids := m.PendingIDs()
	if len(ids) != 2 {
		t.Fatalf("ids = %v, want 2 entries", ids)
	}
}
