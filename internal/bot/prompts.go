package bot

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/remotecli/relayd/internal/mailbox"
	"github.com/remotecli/relayd/internal/metrics"
	"github.com/remotecli/relayd/internal/telegram"
)

// rescanInterval backs up the filesystem watcher: a pending file written
// while the watcher was re-establishing itself is still picked up.
const rescanInterval = 30 * time.Second

// watchMailbox turns pending prompt files written by hook processes into
// interactive chat messages. fsnotify delivers the fast path; a periodic
// rescan catches anything missed.
func (b *Bot) watchMailbox() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("Mailbox watcher unavailable, polling only: %v", err)
		watcher = nil
	} else {
		if err := watcher.Add(b.box.Dir()); err != nil {
			log.Printf("Failed to watch mailbox dir: %v", err)
			watcher.Close()
			watcher = nil
		}
	}
	if watcher != nil {
		defer watcher.Close()
	}

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	b.scanPending()

	for {
		var events chan fsnotify.Event
		var errs chan error
		if watcher != nil {
			events = watcher.Events
			errs = watcher.Errors
		}

		select {
		case <-b.stop:
			return
		case event := <-events:
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := event.Name
			if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
				name = name[idx+1:]
			}
			if strings.HasPrefix(name, "pending-") {
				b.surfacePrompt(strings.TrimPrefix(name, "pending-"))
			}
		case err := <-errs:
			log.Printf("Mailbox watcher error: %v", err)
		case <-ticker.C:
			if n := b.box.CleanExpired(); n > 0 {
				metrics.PromptsExpiredTotal.Add(float64(n))
			}
			b.scanPending()
		}
	}
}

func (b *Bot) scanPending() {
	onDisk := make(map[string]bool)
	for _, id := range b.box.PendingIDs() {
		onDisk[id] = true
		b.surfacePrompt(id)
	}

	// Drop tracking for prompts no longer on disk, whether they expired or
	// were consumed normally.
	b.mu.Lock()
	for id := range b.surfaced {
		if !onDisk[id] {
			delete(b.surfaced, id)
		}
	}
	b.mu.Unlock()
}

// surfacePrompt sends the chat message for a pending prompt, once.
func (b *Bot) surfacePrompt(id string) {
	b.mu.Lock()
	_, seen := b.surfaced[id]
	b.mu.Unlock()
	if seen {
		return
	}

	prompt := b.box.ReadPending(id)
	if prompt == nil || b.box.ReadResponse(id) != nil {
		return
	}

	text := promptText(prompt)
	rows := promptKeyboard(prompt)

	var msgID int
	var err error
	if rows == nil {
		msgID, err = b.tg.Send(text)
	} else {
		msgID, err = b.tg.SendWithKeyboard(text, rows)
	}
	if err != nil {
		metrics.SendErrorsTotal.Inc()
		log.Printf("Failed to surface prompt %s: %v", id, err)
		return
	}
	metrics.PromptsOpenedTotal.WithLabelValues(string(prompt.Kind)).Inc()

	b.mu.Lock()
	b.surfaced[id] = msgID
	b.mu.Unlock()

	b.reg.RecordPromptMessage(msgID, prompt.Workspace, string(prompt.Kind), id)
}

func promptText(prompt *mailbox.PendingPrompt) string {
	var sb strings.Builder

	switch prompt.Kind {
	case mailbox.KindPermission:
		fmt.Fprintf(&sb, "🔐 %s wants to run %s", prompt.Workspace, prompt.ToolName)
		if detail := toolInputSummary(prompt.ToolName, prompt.ToolInput); detail != "" {
			sb.WriteString("\n\n")
			sb.WriteString(detail)
		}
	case mailbox.KindPlan:
		fmt.Fprintf(&sb, "📋 %s has a plan ready", prompt.Workspace)
		if prompt.Question != "" {
			sb.WriteString("\n\n")
			sb.WriteString(prompt.Question)
		}
	case mailbox.KindQuestionFreetext:
		fmt.Fprintf(&sb, "❓ %s", prompt.Workspace)
		if prompt.Header != "" {
			fmt.Fprintf(&sb, " — %s", prompt.Header)
		}
		sb.WriteString("\n\n")
		sb.WriteString(prompt.Question)
		sb.WriteString("\n\nReply to this message with your answer.")
	default:
		fmt.Fprintf(&sb, "❓ %s", prompt.Workspace)
		if prompt.Header != "" {
			fmt.Fprintf(&sb, " — %s", prompt.Header)
		}
		sb.WriteString("\n\n")
		sb.WriteString(prompt.Question)
	}
	return sb.String()
}

func promptKeyboard(prompt *mailbox.PendingPrompt) [][]telegram.Button {
	id := prompt.PromptID
	switch prompt.Kind {
	case mailbox.KindPermission:
		// A question asked through the permission gate gets its options
		// directly; pressing one both allows the tool and answers it.
		if len(prompt.Options) > 0 {
			var rows [][]telegram.Button
			for i, opt := range prompt.Options {
				rows = append(rows, []telegram.Button{{Text: opt, Data: fmt.Sprintf("qp:%s:%d", id, i)}})
			}
			rows = append(rows, []telegram.Button{{Text: "❌ Deny", Data: "perm:" + id + ":deny"}})
			return rows
		}
		return [][]telegram.Button{
			{
				{Text: "✅ Allow", Data: "perm:" + id + ":allow"},
				{Text: "❌ Deny", Data: "perm:" + id + ":deny"},
			},
			{
				{Text: "✅ Always allow", Data: "perm:" + id + ":always"},
			},
		}
	case mailbox.KindPlan:
		return [][]telegram.Button{
			{
				{Text: "✅ Approve plan", Data: "plan:" + id + ":allow"},
				{Text: "✏️ Keep planning", Data: "plan:" + id + ":deny"},
			},
		}
	case mailbox.KindQuestionFreetext:
		return nil
	default:
		if prompt.MultiSelect {
			return multiSelectKeyboard(prompt)
		}
		var rows [][]telegram.Button
		for i, opt := range prompt.Options {
			rows = append(rows, []telegram.Button{{Text: opt, Data: fmt.Sprintf("q:%s:%d", id, i)}})
		}
		return rows
	}
}

// multiSelectKeyboard renders one checkbox row per option plus a submit row.
func multiSelectKeyboard(prompt *mailbox.PendingPrompt) [][]telegram.Button {
	rows := make([][]telegram.Button, 0, len(prompt.Options)+1)
	for i, opt := range prompt.Options {
		box := "☐"
		if i < len(prompt.Selected) && prompt.Selected[i] {
			box = "☑"
		}
		rows = append(rows, []telegram.Button{{
			Text: box + " " + opt,
			Data: fmt.Sprintf("qt:%s:%d", prompt.PromptID, i),
		}})
	}
	rows = append(rows, []telegram.Button{{
		Text: "Submit",
		Data: "qs:" + prompt.PromptID,
	}})
	return rows
}

// toolInputSummary renders the permission payload for humans: the command
// line for shell tools, the file path for edit tools, compact JSON otherwise.
func toolInputSummary(toolName string, input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}

	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err == nil {
		if cmd, ok := fields["command"].(string); ok && cmd != "" {
			return "$ " + cmd
		}
		if path, ok := fields["file_path"].(string); ok && path != "" {
			return path
		}
	}

	text := string(input)
	if len(text) > 500 {
		text = text[:500] + "…"
	}
	return text
}
