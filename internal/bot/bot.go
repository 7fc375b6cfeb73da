// Package bot is the orchestrator: it receives chat messages and button
// presses, resolves workspaces, drives terminal sessions, and turns mailbox
// prompts written by hook processes into interactive chat messages.
package bot

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/remotecli/relayd/internal/config"
	"github.com/remotecli/relayd/internal/headless"
	"github.com/remotecli/relayd/internal/mailbox"
	"github.com/remotecli/relayd/internal/metrics"
	"github.com/remotecli/relayd/internal/registry"
	"github.com/remotecli/relayd/internal/telegram"
	"github.com/remotecli/relayd/internal/terminal"
	"github.com/remotecli/relayd/internal/tmux"
)

// keyDelay separates replayed keystrokes so the terminal UI keeps up.
const keyDelay = 50 * time.Millisecond

// Transport is the slice of the chat client the orchestrator uses.
type Transport interface {
	Send(text string) (int, error)
	SendWithKeyboard(text string, rows [][]telegram.Button) (int, error)
	EditMessage(messageID int, text string, rows [][]telegram.Button) error
	EditKeyboard(messageID int, rows [][]telegram.Button) error
	Typing() error
}

type Bot struct {
	cfg      *config.Config
	reg      *registry.Registry
	box      *mailbox.Mailbox
	tg       Transport
	tmux     *tmux.Client
	headless *headless.Manager

	mu       sync.Mutex
	surfaced map[string]int // promptID -> chat message ID
	typing   map[string]struct{}

	stop chan struct{}
}

func New(cfg *config.Config, reg *registry.Registry, box *mailbox.Mailbox, tg Transport, tmuxClient *tmux.Client, mgr *headless.Manager) *Bot {
	return &Bot{
		cfg:      cfg,
		reg:      reg,
		box:      box,
		tg:       tg,
		tmux:     tmuxClient,
		headless: mgr,
		surfaced: make(map[string]int),
		typing:   make(map[string]struct{}),
		stop:     make(chan struct{}),
	}
}

// Start launches the background mailbox watcher. The inbound handlers are
// wired by the caller onto the transport.
func (b *Bot) Start() {
	go b.watchMailbox()
}

func (b *Bot) Stop() {
	close(b.stop)
}

// backendFor picks the terminal backend matching a session entry.
func (b *Bot) backendFor(entry registry.SessionEntry) (terminal.Backend, error) {
	return terminal.ForEntry(entry, b.tmux, b.headless)
}

// backendForPrompt builds a backend from the prompt's own handle, so a reply
// still lands even when the registry entry has expired underneath it.
func (b *Bot) backendForPrompt(prompt *mailbox.PendingPrompt) (terminal.Backend, error) {
	entry := registry.SessionEntry{
		TerminalHandle: prompt.TerminalHandle,
		SessionKind:    prompt.SessionKind,
	}
	return b.backendFor(entry)
}

func (b *Bot) send(text string) int {
	id, err := b.tg.Send(text)
	if err != nil {
		metrics.SendErrorsTotal.Inc()
		log.Printf("Failed to send message: %v", err)
	}
	return id
}

// createSession starts a fresh assistant session for name. Known projects
// reuse their recorded path; unknown names get a new directory under the
// first project root.
func (b *Bot) createSession(name string) {
	dir := ""
	for _, p := range b.reg.RecentProjects(0) {
		if p.Name == name {
			dir = p.Path
			break
		}
	}
	if dir == "" {
		if len(b.cfg.Projects.Roots) == 0 {
			b.send("No project roots configured")
			return
		}
		dir = filepath.Join(b.cfg.Projects.Roots[0], name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		b.send(fmt.Sprintf("Failed to create %s: %v", dir, err))
		return
	}

	var handle string
	var kind registry.SessionKind

	if b.cfg.Headless.Enabled && b.headless != nil {
		handle = name
		kind = registry.KindHeadless
		if err := b.headless.Spawn(name, dir, b.cfg.Headless.Args); err != nil {
			b.send(fmt.Sprintf("Failed to start headless session: %v", err))
			return
		}
	} else {
		handle = b.tmux.SessionName(name)
		kind = registry.KindMultiplexer
		if !b.tmux.HasSession(handle) {
			if err := b.tmux.NewSession(handle, dir); err != nil {
				b.send(fmt.Sprintf("Failed to start session: %v", err))
				return
			}
			// Launch the assistant inside the fresh session.
			if err := b.tmux.SendText(handle, b.cfg.Headless.Command); err != nil {
				log.Printf("Failed to launch assistant in %s: %v", handle, err)
			}
		}
	}

	entry, err := b.reg.UpsertSession(dir, handle, "starting", kind)
	if err != nil {
		log.Printf("Failed to register session for %s: %v", name, err)
	}
	_ = b.reg.SetDefaultWorkspace(entry.WorkspaceName)
	b.send(fmt.Sprintf("🚀 Started %s (%s)\nNow the default workspace.", entry.WorkspaceName, entry.Token))
}
