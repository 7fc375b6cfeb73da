package hook

import (
	"encoding/json"
	"os"
	"time"

	"github.com/remotecli/relayd/internal/mailbox"
)

// decision is the single JSON object a permission hook prints to stdout.
// The assistant parses it to learn whether the gated tool call may proceed.
type decision struct {
	HookSpecificOutput struct {
		HookEventName            string `json:"hookEventName"`
		PermissionDecision       string `json:"permissionDecision"`
		PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
	} `json:"hookSpecificOutput"`
}

func printDecision(action string, reason string) {
	var d decision
	d.HookSpecificOutput.HookEventName = "PreToolUse"
	d.HookSpecificOutput.PermissionDecision = action
	d.HookSpecificOutput.PermissionDecisionReason = reason
	_ = json.NewEncoder(os.Stdout).Encode(d)
}

// RunPermission gates one tool call: write a pending prompt, wait for the
// remote decision, print it. Timeout denies. Infrastructure failures print
// nothing, which hands control back to the assistant's own permission UI.
func RunPermission(configPath string) {
	defer func() { recover() }()

	input := readInput()
	if input == nil || input.ToolName == "" {
		return
	}
	r := NewRunner(configPath)
	if r == nil {
		return
	}

	workspace, handle, kind := r.sessionIdentity(input.Cwd)

	prompt := mailbox.PendingPrompt{
		PromptID:       mailbox.NewPromptID(),
		Kind:           mailbox.KindPermission,
		Workspace:      workspace,
		TerminalHandle: handle,
		SessionKind:    kind,
		ToolName:       input.ToolName,
		ToolInput:      input.ToolInput,
	}

	switch input.ToolName {
	case "ExitPlanMode":
		prompt.Kind = mailbox.KindPlan
		var pi planInput
		if json.Unmarshal(input.ToolInput, &pi) == nil {
			prompt.Question = pi.Plan
		}
	case "AskUserQuestion":
		// A question arriving through the permission gate: surface its
		// options directly so one button press both allows the tool and
		// answers the question.
		if qi := parseQuestions(input.ToolInput); qi != nil {
			q := qi.Questions[0]
			prompt.Question = q.Question
			prompt.Header = q.Header
			prompt.IsLast = len(qi.Questions) == 1
			for _, opt := range q.Options {
				if opt.Label != "" {
					prompt.Options = append(prompt.Options, opt.Label)
				}
			}
		}
	}

	if err := r.box.WritePending(prompt); err != nil {
		return
	}
	defer r.box.CleanPrompt(prompt.PromptID)

	resp, err := r.box.AwaitResponse(prompt.PromptID, pollInterval, permissionTimeout)
	if err != nil {
		printDecision("deny", "No remote decision within "+permissionTimeout.String())
		return
	}

	switch resp.Action {
	case mailbox.ActionAllow, mailbox.ActionAlwaysAllow:
		printDecision("allow", "Approved remotely")
	default:
		printDecision("deny", "Denied remotely")
	}
}

// RunQuestion surfaces a batch of interactive questions one at a time. It
// prints nothing so the assistant's own question UI stays active; answers
// arrive as replayed keystrokes and each prompt is consumed by the daemon.
func RunQuestion(configPath string) {
	defer func() { recover() }()

	input := readInput()
	if input == nil {
		return
	}
	qi := parseQuestions(input.ToolInput)
	if qi == nil {
		return
	}
	r := NewRunner(configPath)
	if r == nil {
		return
	}

	workspace, handle, kind := r.sessionIdentity(input.Cwd)

	for i, q := range qi.Questions {
		if q.Question == "" {
			continue
		}

		prompt := mailbox.PendingPrompt{
			PromptID:       mailbox.NewPromptID(),
			Kind:           mailbox.KindQuestion,
			Workspace:      workspace,
			TerminalHandle: handle,
			SessionKind:    kind,
			Question:       q.Question,
			Header:         q.Header,
			MultiSelect:    q.MultiSelect,
			IsLast:         i == len(qi.Questions)-1,
		}
		for _, opt := range q.Options {
			if opt.Label != "" {
				prompt.Options = append(prompt.Options, opt.Label)
			}
		}
		if len(prompt.Options) == 0 {
			prompt.Kind = mailbox.KindQuestionFreetext
		}
		if q.MultiSelect {
			prompt.Selected = make([]bool, len(prompt.Options))
		}

		if err := r.box.WritePending(prompt); err != nil {
			return
		}
		// The daemon deletes the pending file once the answer has been
		// replayed; move to the next question then.
		r.awaitConsumed(prompt.PromptID, questionTimeout)
		r.box.CleanPrompt(prompt.PromptID)
	}
}

// awaitConsumed polls until the prompt is answered or gone, or the timeout
// elapses.
func (r *Runner) awaitConsumed(id string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.box.ReadPending(id) == nil || r.box.ReadResponse(id) != nil {
			return
		}
		time.Sleep(pollInterval)
	}
}
