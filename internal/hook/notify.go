package hook

import (
	"fmt"
	"os"

	"github.com/remotecli/relayd/internal/mailbox"
	"github.com/remotecli/relayd/internal/telegram"
)

// RunNotification records a session start or status change in the registry.
func RunNotification(configPath string) {
	defer func() { recover() }()

	input := readInput()
	if input == nil || input.Cwd == "" {
		return
	}
	r := NewRunner(configPath)
	if r == nil {
		return
	}

	_, handle, kind := r.sessionIdentity(input.Cwd)
	status := input.Message
	if status == "" {
		status = "running"
	}
	_, _ = r.reg.UpsertSession(input.Cwd, handle, status, kind)
}

// RunStop handles the assistant finishing a turn: refresh the registry,
// clear the typing signal, and send a low-priority completion notice unless
// a richer interactive prompt is already waiting for this workspace.
func RunStop(configPath string) {
	defer func() { recover() }()

	input := readInput()
	if input == nil || input.Cwd == "" {
		return
	}
	r := NewRunner(configPath)
	if r == nil {
		return
	}

	workspace, handle, kind := r.sessionIdentity(input.Cwd)
	entry, err := r.reg.UpsertSession(input.Cwd, handle, "waiting - "+workspace, kind)
	if err != nil {
		return
	}
	_ = os.Remove(r.typingSignalPath(workspace))

	text := stopNotice(r.box, workspace, input.Message)
	if text == "" {
		return
	}

	tg, err := telegram.NewSender(r.cfg.Telegram.Token, r.cfg.Telegram.ChatID)
	if err != nil {
		return
	}
	msgID, err := tg.SendSilent(text)
	if err != nil {
		return
	}
	r.reg.RecordMessage(msgID, entry.WorkspaceName, "stopped")
}

// stopNotice composes the completion message for a finished turn, or returns
// empty when an interactive prompt is already outstanding for the workspace
// and the extra notice would be noise.
func stopNotice(box *mailbox.Mailbox, workspace, message string) string {
	if box.HasPendingForWorkspace(workspace) {
		return ""
	}
	if message != "" {
		return fmt.Sprintf("✅ %s: %s", workspace, message)
	}
	return fmt.Sprintf("✅ %s finished", workspace)
}
