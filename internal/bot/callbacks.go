package bot

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/remotecli/relayd/internal/mailbox"
	"github.com/remotecli/relayd/internal/metrics"
	"github.com/remotecli/relayd/internal/telegram"
	"github.com/remotecli/relayd/internal/terminal"
)

// questionReplayDelay gives the interactive question UI time to render after
// an allow decision unblocks the hook, before option keys are replayed.
const questionReplayDelay = 500 * time.Millisecond

type callbackKind int

const (
	cbPermission callbackKind = iota
	cbPlan
	cbQuestionSelect
	cbQuestionToggle
	cbQuestionSubmit
	cbQuestionPermission
	cbNewSession
)

// callbackPayload is the parsed form of a button's opaque data string.
type callbackPayload struct {
	Kind     callbackKind
	PromptID string
	Action   mailbox.Action
	Index    int
	Name     string
}

// parseCallback decodes the button payload grammar:
//
//	perm:<id>:<action>   permission decision (allow, deny, always)
//	plan:<id>:<action>   plan approval (allow, deny)
//	q:<id>:<idx>         single-select answer
//	qt:<id>:<idx>        multi-select toggle
//	qs:<id>              multi-select submit
//	qp:<id>:<idx>        combined question+permission answer
//	new:<name>           start a session
//
// Unknown encodings are rejected, not silently dropped into a default branch.
func parseCallback(data string) (callbackPayload, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 {
		return callbackPayload{}, fmt.Errorf("malformed callback payload %q", data)
	}

	tag := parts[0]
	switch tag {
	case "new":
		return callbackPayload{Kind: cbNewSession, Name: strings.Join(parts[1:], ":")}, nil

	case "perm", "plan":
		if len(parts) != 3 {
			return callbackPayload{}, fmt.Errorf("malformed %s payload %q", tag, data)
		}
		p := callbackPayload{Kind: cbPermission, PromptID: parts[1]}
		if tag == "plan" {
			p.Kind = cbPlan
		}
		switch parts[2] {
		case "allow":
			p.Action = mailbox.ActionAllow
		case "deny":
			p.Action = mailbox.ActionDeny
		case "always":
			p.Action = mailbox.ActionAlwaysAllow
		default:
			return callbackPayload{}, fmt.Errorf("unknown action %q in payload %q", parts[2], data)
		}
		return p, nil

	case "qs":
		if len(parts) != 2 {
			return callbackPayload{}, fmt.Errorf("malformed submit payload %q", data)
		}
		return callbackPayload{Kind: cbQuestionSubmit, PromptID: parts[1]}, nil

	case "q", "qt", "qp":
		if len(parts) != 3 {
			return callbackPayload{}, fmt.Errorf("malformed %s payload %q", tag, data)
		}
		idx, err := strconv.Atoi(parts[2])
		if err != nil || idx < 0 {
			return callbackPayload{}, fmt.Errorf("bad option index in payload %q", data)
		}
		kind := cbQuestionSelect
		switch tag {
		case "qt":
			kind = cbQuestionToggle
		case "qp":
			kind = cbQuestionPermission
		}
		return callbackPayload{Kind: kind, PromptID: parts[1], Index: idx}, nil
	}

	return callbackPayload{}, fmt.Errorf("unknown callback tag %q", tag)
}

// HandleCallback dispatches one inbound button press.
func (b *Bot) HandleCallback(cb telegram.Callback) {
	metrics.UpdatesTotal.WithLabelValues("callback").Inc()

	payload, err := parseCallback(cb.Data)
	if err != nil {
		log.Printf("Rejected callback: %v", err)
		return
	}

	switch payload.Kind {
	case cbNewSession:
		b.createSession(payload.Name)
	case cbPermission, cbPlan:
		b.resolveDecision(cb.MessageID, payload)
	case cbQuestionSelect:
		b.answerSingleSelect(cb.MessageID, payload)
	case cbQuestionToggle:
		b.toggleOption(cb.MessageID, payload)
	case cbQuestionSubmit:
		b.submitMultiSelect(cb.MessageID, payload)
	case cbQuestionPermission:
		b.answerQuestionPermission(cb.MessageID, payload)
	}
}

// resolveDecision answers a permission or plan prompt: write the response for
// the polling hook and strip the buttons off the chat message.
func (b *Bot) resolveDecision(messageID int, p callbackPayload) {
	prompt := b.box.ReadPending(p.PromptID)
	if prompt == nil {
		b.markResolved(messageID, "⌛ Prompt expired")
		return
	}

	if err := b.box.WriteResponse(mailbox.Response{PromptID: p.PromptID, Action: p.Action}); err != nil {
		log.Printf("Failed to write response for %s: %v", p.PromptID, err)
		b.send("Failed to record the decision, the prompt will time out.")
		return
	}
	metrics.PromptsResolvedTotal.WithLabelValues(string(p.Action)).Inc()

	b.markResolved(messageID, decisionLabel(p))
	b.forgetSurfaced(p.PromptID)
}

func decisionLabel(p callbackPayload) string {
	switch {
	case p.Kind == cbPlan && p.Action == mailbox.ActionAllow:
		return "✅ Plan approved"
	case p.Kind == cbPlan:
		return "✏️ Keep planning"
	case p.Action == mailbox.ActionAllow:
		return "✅ Allowed"
	case p.Action == mailbox.ActionAlwaysAllow:
		return "✅ Always allowed"
	default:
		return "❌ Denied"
	}
}

// answerSingleSelect replays the option choice into the terminal: the first
// option is pre-highlighted, so index k means k Down presses and Enter.
func (b *Bot) answerSingleSelect(messageID int, p callbackPayload) {
	prompt := b.box.ReadPending(p.PromptID)
	if prompt == nil {
		b.markResolved(messageID, "⌛ Prompt expired")
		return
	}

	be, err := b.backendForPrompt(prompt)
	if err != nil {
		b.send(err.Error())
		return
	}
	if err := replaySingleSelect(be, p.Index, prompt.IsLast); err != nil {
		b.send(fmt.Sprintf("Failed to answer in %s: %v", prompt.Workspace, err))
		return
	}
	metrics.PromptsResolvedTotal.WithLabelValues(string(mailbox.ActionSelect)).Inc()

	label := fmt.Sprintf("option %d", p.Index+1)
	if p.Index < len(prompt.Options) {
		label = prompt.Options[p.Index]
	}
	b.markResolved(messageID, "✓ "+label)

	b.box.CleanPrompt(p.PromptID)
	b.forgetSurfaced(p.PromptID)
}

// toggleOption flips one multi-select checkbox and redraws the keyboard.
// The prompt stays pending until submit.
func (b *Bot) toggleOption(messageID int, p callbackPayload) {
	updated := false
	err := b.box.UpdatePending(p.PromptID, func(prompt *mailbox.PendingPrompt) {
		if len(prompt.Selected) != len(prompt.Options) {
			prompt.Selected = make([]bool, len(prompt.Options))
		}
		if p.Index < len(prompt.Selected) {
			prompt.Selected[p.Index] = !prompt.Selected[p.Index]
			updated = true
		}
	})
	if err != nil || !updated {
		return
	}

	prompt := b.box.ReadPending(p.PromptID)
	if prompt == nil {
		return
	}
	if err := b.tg.EditKeyboard(messageID, multiSelectKeyboard(prompt)); err != nil {
		log.Printf("Failed to redraw keyboard for %s: %v", p.PromptID, err)
	}
}

// submitMultiSelect replays the full multi-select answer sequence.
func (b *Bot) submitMultiSelect(messageID int, p callbackPayload) {
	prompt := b.box.ReadPending(p.PromptID)
	if prompt == nil {
		b.markResolved(messageID, "⌛ Prompt expired")
		return
	}

	be, err := b.backendForPrompt(prompt)
	if err != nil {
		b.send(err.Error())
		return
	}
	if err := replayMultiSelect(be, prompt.Selected, prompt.IsLast); err != nil {
		b.send(fmt.Sprintf("Failed to answer in %s: %v", prompt.Workspace, err))
		return
	}
	metrics.PromptsResolvedTotal.WithLabelValues(string(mailbox.ActionSelect)).Inc()

	var chosen []string
	for i, on := range prompt.Selected {
		if on && i < len(prompt.Options) {
			chosen = append(chosen, prompt.Options[i])
		}
	}
	if len(chosen) == 0 {
		b.markResolved(messageID, "✓ (nothing selected)")
	} else {
		b.markResolved(messageID, "✓ "+strings.Join(chosen, ", "))
	}

	b.box.CleanPrompt(p.PromptID)
	b.forgetSurfaced(p.PromptID)
}

// answerQuestionPermission handles a question asked through the permission
// gate: allow the tool call first so the hook unblocks and the question UI
// renders, then replay the option keys after a short delay.
func (b *Bot) answerQuestionPermission(messageID int, p callbackPayload) {
	prompt := b.box.ReadPending(p.PromptID)
	if prompt == nil {
		b.markResolved(messageID, "⌛ Prompt expired")
		return
	}

	if err := b.box.WriteResponse(mailbox.Response{PromptID: p.PromptID, Action: mailbox.ActionAllow}); err != nil {
		log.Printf("Failed to write response for %s: %v", p.PromptID, err)
		b.send("Failed to record the decision, the prompt will time out.")
		return
	}
	metrics.PromptsResolvedTotal.WithLabelValues(string(mailbox.ActionAllow)).Inc()

	label := fmt.Sprintf("option %d", p.Index+1)
	if p.Index < len(prompt.Options) {
		label = prompt.Options[p.Index]
	}
	b.markResolved(messageID, "✓ "+label)
	b.forgetSurfaced(p.PromptID)

	index := p.Index
	isLast := prompt.IsLast
	go func() {
		time.Sleep(questionReplayDelay)
		be, err := b.backendForPrompt(prompt)
		if err != nil {
			log.Printf("Question replay skipped for %s: %v", prompt.Workspace, err)
			return
		}
		if err := replaySingleSelect(be, index, isLast); err != nil {
			log.Printf("Question replay failed for %s: %v", prompt.Workspace, err)
		}
	}()
}

// markResolved appends the outcome to the prompt message and removes its
// buttons.
func (b *Bot) markResolved(messageID int, outcome string) {
	id := b.promptTextFor(messageID)
	text := outcome
	if id != "" {
		text = id + "\n\n" + outcome
	}
	if err := b.tg.EditMessage(messageID, text, nil); err != nil {
		log.Printf("Failed to edit message %d: %v", messageID, err)
	}
}

// promptTextFor recovers the original prompt text for a chat message, when
// the prompt is still tracked.
func (b *Bot) promptTextFor(messageID int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, mid := range b.surfaced {
		if mid == messageID {
			if prompt := b.box.ReadPending(id); prompt != nil {
				return promptText(prompt)
			}
		}
	}
	return ""
}

func (b *Bot) forgetSurfaced(promptID string) {
	b.mu.Lock()
	delete(b.surfaced, promptID)
	b.mu.Unlock()
}

// replaySingleSelect issues index Down presses and Enter. The trailing Enter
// on the last question of a batch dismisses the confirmation step.
func replaySingleSelect(be terminal.Backend, index int, isLast bool) error {
	for i := 0; i < index; i++ {
		if err := be.SendKey("Down"); err != nil {
			return err
		}
		time.Sleep(keyDelay)
	}
	if err := be.SendKey("Enter"); err != nil {
		return err
	}
	if isLast {
		time.Sleep(keyDelay)
		return be.SendKey("Enter")
	}
	return nil
}

// replayMultiSelect walks the option list top to bottom, pressing Space on
// each selected entry, then skips the auto-appended "other" row and submits.
func replayMultiSelect(be terminal.Backend, selected []bool, isLast bool) error {
	for _, on := range selected {
		if on {
			if err := be.SendKey("Space"); err != nil {
				return err
			}
			time.Sleep(keyDelay)
		}
		if err := be.SendKey("Down"); err != nil {
			return err
		}
		time.Sleep(keyDelay)
	}
	if err := be.SendKey("Down"); err != nil {
		return err
	}
	time.Sleep(keyDelay)
	if err := be.SendKey("Enter"); err != nil {
		return err
	}
	if isLast {
		time.Sleep(keyDelay)
		return be.SendKey("Enter")
	}
	return nil
}
