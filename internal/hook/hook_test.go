package hook

import (
	"testing"

	"github.com/remotecli/relayd/internal/config"
	"github.com/remotecli/relayd/internal/mailbox"
	"github.com/remotecli/relayd/internal/registry"
)

func TestParseQuestions(t *testing.T) {
	raw := []byte(`{
		"questions": [
			{
				"question": "Which database?",
				"header": "Storage",
				"multiSelect": false,
				"options": [{"label": "postgres"}, {"label": "sqlite"}]
			},
			{
				"question": "Which features?",
				"multiSelect": true,
				"options": [{"label": "auth"}, {"label": "billing"}, {"label": ""}]
			}
		]
	}`)

	qi := parseQuestions(raw)
	if qi == nil {
		t.Fatal("parseQuestions returned nil")
	}
	if len(qi.Questions) != 2 {
		t.Fatalf("questions = %d", len(qi.Questions))
	}
	if qi.Questions[0].Header != "Storage" || qi.Questions[0].MultiSelect {
		t.Errorf("first question = %+v", qi.Questions[0])
	}
	if !qi.Questions[1].MultiSelect {
		t.Error("second question should be multi-select")
	}
	if qi.Questions[0].Options[1].Label != "sqlite" {
		t.Errorf("options = %+v", qi.Questions[0].Options)
	}
}

func TestParseQuestionsEmpty(t *testing.T) {
	if parseQuestions(nil) != nil {
		t.Error("nil input should parse as nil")
	}
	if parseQuestions([]byte(`{"plan":"x"}`)) != nil {
		t.Error("payload without questions should parse as nil")
	}
	if parseQuestions([]byte(`{garbage`)) != nil {
		t.Error("corrupt payload should parse as nil")
	}
}

func TestStopNoticeSuppressedByPendingPrompt(t *testing.T) {
	box, err := mailbox.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	id := mailbox.NewPromptID()
	if err := box.WritePending(mailbox.PendingPrompt{PromptID: id, Kind: mailbox.KindPermission, Workspace: "web"}); err != nil {
		t.Fatal(err)
	}

	if got := stopNotice(box, "web", ""); got != "" {
		t.Errorf("notice = %q, want suppressed while a prompt is outstanding", got)
	}
	if got := stopNotice(box, "other", "all tests pass"); got != "✅ other: all tests pass" {
		t.Errorf("notice = %q", got)
	}

	if err := box.WriteResponse(mailbox.Response{PromptID: id, Action: mailbox.ActionAllow}); err != nil {
		t.Fatal(err)
	}
	if got := stopNotice(box, "web", ""); got != "✅ web finished" {
		t.Errorf("notice after response = %q", got)
	}
}

func TestSessionIdentityMultiplexer(t *testing.T) {
	r := &Runner{cfg: &config.Config{}}
	r.cfg.Tmux.SessionPrefix = "relayd-"

	workspace, handle, kind := r.sessionIdentity("/home/u/projects/web")
	if workspace != "web" {
		t.Errorf("workspace = %q", workspace)
	}
	if handle != "relayd-web" {
		t.Errorf("handle = %q", handle)
	}
	if kind != registry.KindMultiplexer {
		t.Errorf("kind = %q", kind)
	}
}

func TestSessionIdentityHeadless(t *testing.T) {
	t.Setenv("RELAYD_KIND", string(registry.KindHeadless))
	t.Setenv("RELAYD_SESSION", "web")

	r := &Runner{cfg: &config.Config{}}
	workspace, handle, kind := r.sessionIdentity("/home/u/projects/web")
	if workspace != "web" || handle != "web" || kind != registry.KindHeadless {
		t.Errorf("identity = (%q, %q, %q)", workspace, handle, kind)
	}
}
