package bot

import (
	"fmt"
	"strings"

	"github.com/remotecli/relayd/internal/mailbox"
	"github.com/remotecli/relayd/internal/metrics"
	"github.com/remotecli/relayd/internal/registry"
	"github.com/remotecli/relayd/internal/telegram"
)

const helpText = `Commands:
/list — active sessions and recent projects
/status [workspace] — session status with terminal tail
/stop [workspace] — interrupt the running command
/compact [workspace] — compact the assistant's context
/new <name> — start a session for a project
/use <name>|off — set or clear the default workspace
/t <token> <command> — send a command by session token
/<workspace> <command> — send a command to a workspace
/<workspace> — shorthand for status

Plain text goes to the replied-to workspace, or the default one.`

// HandleText dispatches one inbound chat message. Priority order: fixed
// admin commands, /<workspace> <command>, bare /<workspace>, then plain-text
// routing.
func (b *Bot) HandleText(msg telegram.Message) {
	metrics.UpdatesTotal.WithLabelValues("text").Inc()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if !strings.HasPrefix(text, "/") {
		b.routePlainText(msg, text)
		return
	}

	verb, rest := splitCommand(text)
	switch verb {
	case "help", "start":
		metrics.CommandsTotal.WithLabelValues("help").Inc()
		b.send(helpText)
	case "list":
		metrics.CommandsTotal.WithLabelValues("list").Inc()
		b.handleList()
	case "status":
		metrics.CommandsTotal.WithLabelValues("status").Inc()
		b.handleStatus(rest)
	case "stop":
		metrics.CommandsTotal.WithLabelValues("stop").Inc()
		b.handleStop(rest)
	case "compact":
		metrics.CommandsTotal.WithLabelValues("compact").Inc()
		b.handleCompact(rest)
	case "new":
		metrics.CommandsTotal.WithLabelValues("new").Inc()
		if rest == "" {
			b.send("Usage: /new <name>")
			return
		}
		b.createSession(rest)
	case "use":
		metrics.CommandsTotal.WithLabelValues("use").Inc()
		b.handleUse(rest)
	case "t":
		metrics.CommandsTotal.WithLabelValues("token").Inc()
		b.handleTokenCommand(rest)
	default:
		metrics.CommandsTotal.WithLabelValues("workspace").Inc()
		b.handleWorkspaceCommand(verb, rest)
	}
}

// splitCommand returns the bare verb (no slash) and the trimmed remainder.
// A bot mention suffix like /status@somebot is stripped.
func splitCommand(text string) (string, string) {
	verb := text[1:]
	rest := ""
	if idx := strings.IndexByte(verb, ' '); idx >= 0 {
		rest = strings.TrimSpace(verb[idx+1:])
		verb = verb[:idx]
	}
	if idx := strings.IndexByte(verb, '@'); idx >= 0 {
		verb = verb[:idx]
	}
	return verb, rest
}

func (b *Bot) handleList() {
	var sb strings.Builder

	sessions := b.reg.ListActiveSessions()
	if len(sessions) == 0 {
		sb.WriteString("No active sessions.\n")
	} else {
		sb.WriteString("Active sessions:\n")
		for _, s := range sessions {
			fmt.Fprintf(&sb, "• %s (%s, %s) — %s\n", s.WorkspaceName, s.Token, s.Age, s.Status)
		}
	}

	projects := b.reg.RecentProjects(8)
	if len(projects) == 0 {
		b.send(sb.String())
		return
	}

	sb.WriteString("\nRecent projects:")
	var rows [][]telegram.Button
	for _, p := range projects {
		rows = append(rows, []telegram.Button{{Text: p.Name, Data: "new:" + p.Name}})
	}
	if _, err := b.tg.SendWithKeyboard(sb.String(), rows); err != nil {
		metrics.SendErrorsTotal.Inc()
	}
}

// resolveOrReport resolves a workspace name, reporting None/Ambiguous
// outcomes to the chat. ok is false when no single session was found.
func (b *Bot) resolveOrReport(name string) (registry.SessionEntry, bool) {
	res := b.reg.ResolveWorkspace(name)
	switch res.Kind {
	case registry.MatchExact, registry.MatchPrefix:
		return res.Entry, true
	case registry.MatchAmbiguous:
		b.send(fmt.Sprintf("%q matches several workspaces: %s", name, strings.Join(res.Candidates, ", ")))
	default:
		b.send(fmt.Sprintf("No session for %q. /list shows active sessions, /new %s starts one.", name, name))
	}
	return registry.SessionEntry{}, false
}

// targetWorkspace picks the explicit name or falls back to the default
// workspace.
func (b *Bot) targetWorkspace(arg string) (registry.SessionEntry, bool) {
	name := arg
	if name == "" {
		name = b.reg.DefaultWorkspace()
		if name == "" {
			b.send("No workspace given and no default set. Try /use <name>.")
			return registry.SessionEntry{}, false
		}
	}
	return b.resolveOrReport(name)
}

func (b *Bot) handleStatus(arg string) {
	entry, ok := b.targetWorkspace(arg)
	if !ok {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\nkind: %s\nstatus: %s\ncwd: %s\n", entry.WorkspaceName, entry.Token, entry.SessionKind, entry.Status, entry.Cwd)

	be, err := b.backendFor(entry)
	if err == nil {
		if tail, cerr := be.Capture(20); cerr == nil && strings.TrimSpace(tail) != "" {
			sb.WriteString("\n")
			sb.WriteString(tail)
		}
	}
	b.send(sb.String())
}

func (b *Bot) handleStop(arg string) {
	entry, ok := b.targetWorkspace(arg)
	if !ok {
		return
	}
	be, err := b.backendFor(entry)
	if err != nil {
		b.send(err.Error())
		return
	}
	if err := be.Interrupt(); err != nil {
		b.send(fmt.Sprintf("Failed to interrupt %s: %v", entry.WorkspaceName, err))
		return
	}
	b.send(fmt.Sprintf("🛑 Interrupted %s", entry.WorkspaceName))
}

func (b *Bot) handleCompact(arg string) {
	entry, ok := b.targetWorkspace(arg)
	if !ok {
		return
	}
	if err := b.sendToSession(entry, "/compact"); err != nil {
		b.send(fmt.Sprintf("Failed to compact %s: %v", entry.WorkspaceName, err))
		return
	}
	b.send(fmt.Sprintf("🧹 Compacting %s", entry.WorkspaceName))
}

func (b *Bot) handleUse(arg string) {
	if arg == "" {
		current := b.reg.DefaultWorkspace()
		if current == "" {
			b.send("No default workspace set. /use <name> sets one.")
		} else {
			b.send("Default workspace: " + current)
		}
		return
	}
	if arg == "off" {
		b.reg.ClearDefaultWorkspace()
		b.send("Default workspace cleared")
		return
	}
	entry, ok := b.resolveOrReport(arg)
	if !ok {
		return
	}
	if err := b.reg.SetDefaultWorkspace(entry.WorkspaceName); err != nil {
		b.send(fmt.Sprintf("Failed to set default workspace: %v", err))
		return
	}
	b.send("Default workspace: " + entry.WorkspaceName)
}

// handleTokenCommand is the fallback route for workspaces with colliding
// names: /t <token> <command>.
func (b *Bot) handleTokenCommand(rest string) {
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) < 2 {
		b.send("Usage: /t <token> <command>")
		return
	}
	entry, ok := b.reg.Lookup(parts[0])
	if !ok {
		b.send(fmt.Sprintf("Unknown token %q", parts[0]))
		return
	}
	b.dispatchCommand(entry, strings.TrimSpace(parts[1]))
}

func (b *Bot) handleWorkspaceCommand(name, command string) {
	entry, ok := b.resolveOrReport(name)
	if !ok {
		return
	}
	if command == "" {
		// Bare /<workspace> is a status request.
		b.handleStatus(entry.WorkspaceName)
		return
	}
	b.dispatchCommand(entry, command)
}

// routePlainText handles messages without a leading slash: replies to a
// free-text question answer it, replies to any other tracked notification go
// to that workspace, otherwise the default workspace, otherwise a usage hint.
func (b *Bot) routePlainText(msg telegram.Message, text string) {
	if msg.ReplyTo != 0 {
		if ref, ok := b.reg.LookupMessage(msg.ReplyTo); ok {
			if ref.PromptID != "" && b.answerFreetext(msg.ReplyTo, ref.PromptID, text) {
				return
			}
			if entry, resolved := b.resolveOrReport(ref.Workspace); resolved {
				b.dispatchCommand(entry, text)
				return
			}
			return
		}
	}

	if def := b.reg.DefaultWorkspace(); def != "" {
		if entry, ok := b.resolveOrReport(def); ok {
			b.dispatchCommand(entry, text)
		}
		return
	}

	b.send("No default workspace. Use /<workspace> <command>, reply to a notification, or /use <name>.")
}

// answerFreetext types a reply into the terminal and consumes the free-text
// question prompt, so the hook polling for it moves on instead of running out
// its timeout. Returns false when the prompt is gone or not free-text, in
// which case the reply routes like any other plain message.
func (b *Bot) answerFreetext(messageID int, promptID, text string) bool {
	prompt := b.box.ReadPending(promptID)
	if prompt == nil || prompt.Kind != mailbox.KindQuestionFreetext {
		return false
	}

	be, err := b.backendForPrompt(prompt)
	if err != nil {
		b.send(err.Error())
		return true
	}
	if err := be.WriteCommand(text); err != nil {
		b.send(fmt.Sprintf("Failed to answer in %s: %v", prompt.Workspace, err))
		return true
	}
	metrics.PromptsResolvedTotal.WithLabelValues(string(mailbox.ActionSelect)).Inc()

	b.markResolved(messageID, "✓ "+text)
	b.box.CleanPrompt(promptID)
	b.forgetSurfaced(promptID)
	b.StartTyping(prompt.Workspace)
	return true
}

// dispatchCommand types a command into the session and starts the typing
// indicator for the workspace.
func (b *Bot) dispatchCommand(entry registry.SessionEntry, command string) {
	if err := b.sendToSession(entry, command); err != nil {
		b.send(fmt.Sprintf("Failed to reach %s: %v", entry.WorkspaceName, err))
		return
	}
	b.StartTyping(entry.WorkspaceName)
}

func (b *Bot) sendToSession(entry registry.SessionEntry, command string) error {
	be, err := b.backendFor(entry)
	if err != nil {
		return err
	}
	return be.WriteCommand(command)
}
