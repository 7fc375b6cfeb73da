package registry

import (
	"testing"
	"time"
)

func newTestRegistry(t *testing.T, ttl time.Duration) *Registry {
	t.Helper()
	r, err := New(t.TempDir(), ttl, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNewTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		token := NewToken()
		if len(token) != 8 {
			t.Fatalf("token %q has length %d, want 8", token, len(token))
		}
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
	}
}

func TestUpsertSessionReusesToken(t *testing.T) {
	r := newTestRegistry(t, time.Hour)

	first, err := r.UpsertSession("/home/u/proj", "relayd-proj", "starting", KindMultiplexer)
	if err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	second, err := r.UpsertSession("/home/u/proj", "relayd-proj", "running", KindMultiplexer)
	if err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	if first.Token != second.Token {
		t.Errorf("tokens differ: %q vs %q", first.Token, second.Token)
	}
	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Errorf("createdAt not preserved")
	}
	if second.Status != "running" {
		t.Errorf("status = %q, want running", second.Status)
	}
	if got := len(r.ListActiveSessions()); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestUpsertSessionPreservesKind(t *testing.T) {
	r := newTestRegistry(t, time.Hour)

	first, _ := r.UpsertSession("/p/api", "api", "starting", KindHeadless)
	second, _ := r.UpsertSession("/p/api", "api", "running", "")

	if second.Token != first.Token {
		t.Fatalf("expected reuse, got new token")
	}
	if second.SessionKind != KindHeadless {
		t.Errorf("kind = %q, want %q", second.SessionKind, KindHeadless)
	}
}

func TestResolveWorkspace(t *testing.T) {
	r := newTestRegistry(t, time.Hour)
	if _, err := r.UpsertSession("/p/app-frontend", "relayd-app-frontend", "ok", KindMultiplexer); err != nil {
		t.Fatal(err)
	}
	if _, err := r.UpsertSession("/p/app-backend", "relayd-app-backend", "ok", KindMultiplexer); err != nil {
		t.Fatal(err)
	}

	res := r.ResolveWorkspace("app")
	if res.Kind != MatchAmbiguous {
		t.Fatalf("resolve(app) kind = %v, want ambiguous", res.Kind)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("candidates = %v, want both", res.Candidates)
	}

	res = r.ResolveWorkspace("app-front")
	if res.Kind != MatchPrefix {
		t.Fatalf("resolve(app-front) kind = %v, want prefix", res.Kind)
	}
	if res.Entry.WorkspaceName != "app-frontend" {
		t.Errorf("resolved %q, want app-frontend", res.Entry.WorkspaceName)
	}

	res = r.ResolveWorkspace("APP-BACKEND")
	if res.Kind != MatchExact {
		t.Fatalf("case-insensitive exact match failed: %v", res.Kind)
	}

	if res := r.ResolveWorkspace("nothing"); res.Kind != MatchNone {
		t.Errorf("resolve(nothing) kind = %v, want none", res.Kind)
	}
}

func TestResolveWorkspaceIdempotent(t *testing.T) {
	r := newTestRegistry(t, time.Hour)
	r.UpsertSession("/p/web", "web", "ok", KindMultiplexer)

	a := r.ResolveWorkspace("we")
	b := r.ResolveWorkspace("we")
	if a.Kind != b.Kind || a.Entry.Token != b.Entry.Token {
		t.Errorf("repeated resolution differs: %+v vs %+v", a, b)
	}
}

func TestPruneExpired(t *testing.T) {
	r := newTestRegistry(t, time.Millisecond)
	r.UpsertSession("/p/old", "old", "ok", KindMultiplexer)
	time.Sleep(5 * time.Millisecond)

	if removed := r.PruneExpired(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if removed := r.PruneExpired(); removed != 0 {
		t.Fatalf("second prune removed = %d, want 0", removed)
	}
}

func TestFormatAge(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{3 * time.Minute, "3m ago"},
		{2 * time.Hour, "2h ago"},
		{26 * time.Hour, "1d ago"},
	}
	for _, c := range cases {
		if got := formatAge(c.d); got != c.want {
			t.Errorf("formatAge(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestDefaultWorkspace(t *testing.T) {
	r := newTestRegistry(t, time.Hour)

	if got := r.DefaultWorkspace(); got != "" {
		t.Fatalf("initial default = %q, want empty", got)
	}
	if err := r.SetDefaultWorkspace("web"); err != nil {
		t.Fatal(err)
	}
	if got := r.DefaultWorkspace(); got != "web" {
		t.Fatalf("default = %q, want web", got)
	}
	r.ClearDefaultWorkspace()
	if got := r.DefaultWorkspace(); got != "" {
		t.Fatalf("default after clear = %q, want empty", got)
	}
}

func TestMessageIndex(t *testing.T) {
	r := newTestRegistry(t, time.Hour)

	r.RecordMessage(42, "web", "stopped")
	ref, ok := r.LookupMessage(42)
	if !ok {
		t.Fatal("message not found")
	}
	if ref.Workspace != "web" || ref.Kind != "stopped" {
		t.Errorf("ref = %+v", ref)
	}
	if ref.PromptID != "" {
		t.Errorf("plain message carries prompt id %q", ref.PromptID)
	}
	if _, ok := r.LookupMessage(99); ok {
		t.Error("unknown message id resolved")
	}

	r.RecordPromptMessage(43, "web", "question-freetext", "ab12cd34")
	ref, ok = r.LookupMessage(43)
	if !ok || ref.PromptID != "ab12cd34" {
		t.Errorf("prompt message ref = %+v ok=%v", ref, ok)
	}
}

func TestMessageIndexPrunesOldEntries(t *testing.T) {
	r := newTestRegistry(t, time.Hour)

	stale := map[int]MessageRef{
		1: {Workspace: "old", Kind: "stopped", Timestamp: time.Now().Add(-25 * time.Hour)},
	}
	if err := writeJSON(r.messageIndexPath(), stale); err != nil {
		t.Fatal(err)
	}

	if _, ok := r.LookupMessage(1); ok {
		t.Error("stale entry resolved")
	}

	r.RecordMessage(2, "new", "stopped")
	index := make(map[int]MessageRef)
	readJSON(r.messageIndexPath(), &index)
	if _, ok := index[1]; ok {
		t.Error("stale entry survived a write")
	}
}

func TestProjectHistoryCap(t *testing.T) {
	r := newTestRegistry(t, time.Hour)

	for i := 0; i < historyMax+10; i++ {
		r.RecordProjectUse(time.Now().Add(time.Duration(i)).String(), "/p")
	}
	history := make(map[string]ProjectRef)
	readJSON(r.historyPath(), &history)
	if len(history) > historyMax {
		t.Errorf("history has %d entries, cap is %d", len(history), historyMax)
	}
}

func TestRecentProjectsPinnedFirst(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, time.Hour, nil, []string{"pinned-proj"})
	if err != nil {
		t.Fatal(err)
	}

	r.RecordProjectUse("fresh", "/p/fresh")
	r.RecordProjectUse("pinned-proj", "/p/pinned-proj")

	projects := r.RecentProjects(10)
	if len(projects) != 2 {
		t.Fatalf("projects = %d, want 2", len(projects))
	}
	if projects[0].Name != "pinned-proj" {
		t.Errorf("first project = %q, want pinned-proj", projects[0].Name)
	}
}

func TestCorruptFilesTreatedAsEmpty(t *testing.T) {
	r := newTestRegistry(t, time.Hour)
	writeRaw := func(path string) {
		if err := writeJSON(path, "not a map"); err != nil {
			t.Fatal(err)
		}
	}
	writeRaw(r.sessionMapPath())

	if got := len(r.ListActiveSessions()); got != 0 {
		t.Errorf("sessions from corrupt file = %d, want 0", got)
	}
	if _, err := r.UpsertSession("/p/x", "x", "ok", KindMultiplexer); err != nil {
		t.Errorf("upsert after corruption: %v", err)
	}
}
