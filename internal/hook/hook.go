// Package hook implements the short-lived processes the coding assistant
// invokes at interaction points. Each hook reads one JSON object from stdin,
// talks to the daemon through the mailbox and registry files, and exits.
// Hooks must never crash or hang the assistant: errors are swallowed,
// panics recovered, stdin reads bounded.
package hook

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/remotecli/relayd/internal/config"
	"github.com/remotecli/relayd/internal/mailbox"
	"github.com/remotecli/relayd/internal/registry"
)

const (
	stdinTimeout      = 2 * time.Second
	pollInterval      = 500 * time.Millisecond
	permissionTimeout = 90 * time.Second
	questionTimeout   = 120 * time.Second
)

// Input is the JSON object the assistant writes to a hook's stdin.
type Input struct {
	Cwd           string          `json:"cwd"`
	SessionID     string          `json:"session_id"`
	HookEventName string          `json:"hook_event_name"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
	Message       string          `json:"message"`
}

// questionInput is the tool_input shape of the assistant's question tool.
type questionInput struct {
	Questions []struct {
		Question    string `json:"question"`
		Header      string `json:"header"`
		MultiSelect bool   `json:"multiSelect"`
		Options     []struct {
			Label string `json:"label"`
		} `json:"options"`
	} `json:"questions"`
}

// planInput is the tool_input shape of the plan-approval tool.
type planInput struct {
	Plan string `json:"plan"`
}

// Runner carries the shared state every hook needs.
type Runner struct {
	cfg *config.Config
	reg *registry.Registry
	box *mailbox.Mailbox
}

// NewRunner loads config and opens the state stores. Any failure returns
// nil; the hook then exits without output and the assistant's own UI takes
// over.
func NewRunner(configPath string) *Runner {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil
	}
	reg, err := registry.New(cfg.Storage.StateDir, time.Duration(cfg.Sessions.TTLHours)*time.Hour, cfg.Projects.Roots, cfg.Projects.Pinned)
	if err != nil {
		return nil
	}
	box, err := mailbox.New(cfg.Storage.MailboxDir)
	if err != nil {
		return nil
	}
	return &Runner{cfg: cfg, reg: reg, box: box}
}

// readInput reads the hook payload from stdin with a hard timeout, so a
// misbehaving caller cannot leave the hook hanging.
func readInput() *Input {
	ch := make(chan []byte, 1)
	go func() {
		defer func() { recover() }()
		data, _ := io.ReadAll(os.Stdin)
		ch <- data
	}()

	var raw []byte
	select {
	case raw = <-ch:
	case <-time.After(stdinTimeout):
		return nil
	}
	if len(raw) == 0 {
		return nil
	}

	var input Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil
	}
	return &input
}

// sessionIdentity derives the workspace name and terminal handle for the
// session this hook was spawned inside. Headless sessions announce
// themselves through environment variables; anything else is assumed to be
// a multiplexer session named after the workspace.
func (r *Runner) sessionIdentity(cwd string) (workspace, handle string, kind registry.SessionKind) {
	workspace = filepath.Base(cwd)
	if os.Getenv("RELAYD_KIND") == string(registry.KindHeadless) {
		return workspace, os.Getenv("RELAYD_SESSION"), registry.KindHeadless
	}
	return workspace, r.cfg.Tmux.SessionPrefix + workspace, registry.KindMultiplexer
}

func (r *Runner) typingSignalPath(workspace string) string {
	return filepath.Join(r.cfg.Storage.StateDir, "typing-"+workspace)
}

// parseQuestions extracts the question list from a tool_input payload.
func parseQuestions(raw json.RawMessage) *questionInput {
	if len(raw) == 0 {
		return nil
	}
	var qi questionInput
	if err := json.Unmarshal(raw, &qi); err != nil || len(qi.Questions) == 0 {
		return nil
	}
	return &qi
}
