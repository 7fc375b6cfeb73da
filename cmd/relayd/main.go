package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/remotecli/relayd/internal/bot"
	"github.com/remotecli/relayd/internal/config"
	"github.com/remotecli/relayd/internal/console"
	"github.com/remotecli/relayd/internal/headless"
	"github.com/remotecli/relayd/internal/hook"
	"github.com/remotecli/relayd/internal/mailbox"
	"github.com/remotecli/relayd/internal/metrics"
	"github.com/remotecli/relayd/internal/registry"
	"github.com/remotecli/relayd/internal/telegram"
	"github.com/remotecli/relayd/internal/tmux"
)

const Version = "0.1.0"

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".relayd", "config.yaml")
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "status":
			runStatusCommand(os.Args[2:])
			return
		case "sessions":
			runSessionsCommand(os.Args[2:])
			return
		case "hook-permission":
			hook.RunPermission(hookConfigPath(os.Args[2:]))
			return
		case "hook-question":
			hook.RunQuestion(hookConfigPath(os.Args[2:]))
			return
		case "hook-stop":
			hook.RunStop(hookConfigPath(os.Args[2:]))
			return
		case "hook-notification":
			hook.RunNotification(hookConfigPath(os.Args[2:]))
			return
		case "version":
			fmt.Printf("relayd version %s\n", Version)
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}

	runDaemon()
}

func printHelp() {
	fmt.Printf(`relayd - remote control for interactive CLI coding sessions

Usage:
  relayd [command] [options]

Commands:
  (none)             Run as daemon (default)
  status             Show daemon status
  sessions           List registered sessions
  hook-permission    Permission gate hook (stdin JSON, stdout decision)
  hook-question      Interactive question hook (stdin JSON)
  hook-stop          Turn-finished hook (stdin JSON)
  hook-notification  Session status hook (stdin JSON)
  version            Show version information
  help               Show this help

Options:
  -config string  Path to config file (default %q)
  -json           Output in JSON format (status, sessions)
`, defaultConfigPath())
}

func hookConfigPath(args []string) string {
	fs := flag.NewFlagSet("hook", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", defaultConfigPath(), "Path to config file")
	_ = fs.Parse(args)
	return *configPath
}

func outputJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func runStatusCommand(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output in JSON format")
	configPath := fs.String("config", defaultConfigPath(), "Path to config file")
	fs.Parse(args)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if *jsonOutput {
			outputJSON(map[string]any{"error": err.Error()})
		} else {
			log.Fatalf("Failed to load config: %v", err)
		}
		return
	}

	tmuxClient := tmux.NewClient(&cfg.Tmux)
	sessions, tmuxErr := tmuxClient.ListSessions()

	box, _ := mailbox.New(cfg.Storage.MailboxDir)
	pending := 0
	if box != nil {
		pending = len(box.PendingIDs())
	}

	status := map[string]any{
		"version":          Version,
		"state_dir":        cfg.Storage.StateDir,
		"mailbox_dir":      cfg.Storage.MailboxDir,
		"tmux_connected":   tmuxErr == nil,
		"tmux_sessions":    len(sessions),
		"headless_enabled": cfg.Headless.Enabled,
		"pending_prompts":  pending,
		"chat_id":          cfg.Telegram.ChatID,
	}
	if tmuxErr != nil {
		status["tmux_error"] = tmuxErr.Error()
	}

	if *jsonOutput {
		outputJSON(status)
		return
	}
	fmt.Printf("Relayd Status\n")
	fmt.Printf("=============\n")
	fmt.Printf("Version:          %s\n", Version)
	fmt.Printf("State Dir:        %s\n", cfg.Storage.StateDir)
	fmt.Printf("Mailbox Dir:      %s\n", cfg.Storage.MailboxDir)
	fmt.Printf("Tmux Connected:   %v\n", tmuxErr == nil)
	if tmuxErr != nil {
		fmt.Printf("Tmux Error:       %s\n", tmuxErr.Error())
	}
	fmt.Printf("Tmux Sessions:    %d\n", len(sessions))
	fmt.Printf("Headless Enabled: %v\n", cfg.Headless.Enabled)
	fmt.Printf("Pending Prompts:  %d\n", pending)
}

func runSessionsCommand(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output in JSON format")
	configPath := fs.String("config", defaultConfigPath(), "Path to config file")
	fs.Parse(args)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if *jsonOutput {
			outputJSON(map[string]any{"error": err.Error()})
		} else {
			log.Fatalf("Failed to load config: %v", err)
		}
		return
	}

	reg, err := registry.New(cfg.Storage.StateDir, time.Duration(cfg.Sessions.TTLHours)*time.Hour, cfg.Projects.Roots, cfg.Projects.Pinned)
	if err != nil {
		log.Fatalf("Failed to open registry: %v", err)
	}

	sessions := reg.ListActiveSessions()
	if *jsonOutput {
		outputJSON(map[string]any{
			"sessions":    sessions,
			"total_count": len(sessions),
		})
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found")
		return
	}
	fmt.Printf("Sessions (%d total)\n", len(sessions))
	for _, s := range sessions {
		fmt.Printf("\n%s (%s)\n", s.WorkspaceName, s.Token)
		fmt.Printf("  Kind:    %s\n", s.SessionKind)
		fmt.Printf("  Handle:  %s\n", s.TerminalHandle)
		fmt.Printf("  CWD:     %s\n", s.Cwd)
		fmt.Printf("  Status:  %s\n", s.Status)
		fmt.Printf("  Started: %s\n", s.Age)
	}
}

func runDaemon() {
	configPath := flag.String("config", defaultConfigPath(), "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	reg, err := registry.New(cfg.Storage.StateDir, time.Duration(cfg.Sessions.TTLHours)*time.Hour, cfg.Projects.Roots, cfg.Projects.Pinned)
	if err != nil {
		log.Fatalf("Failed to open registry: %v", err)
	}
	if removed := reg.PruneExpired(); removed > 0 {
		log.Printf("Pruned %d expired sessions", removed)
	}

	box, err := mailbox.New(cfg.Storage.MailboxDir)
	if err != nil {
		log.Fatalf("Failed to open mailbox: %v", err)
	}
	box.CleanExpired()

	tmuxClient := tmux.NewClient(&cfg.Tmux)

	var mgr *headless.Manager
	if cfg.Headless.Enabled {
		mgr, err = headless.NewManager(cfg.Headless.Command, cfg.Storage.StateDir, cfg.Headless.ScrollbackLines)
		if err != nil {
			log.Printf("Headless mode unavailable: %v", err)
			mgr = nil
		}
	}

	metrics.Serve(cfg.Metrics.Listen)

	consoleSrv := console.NewServer(filepath.Join(cfg.Storage.StateDir, "terminals"))
	consoleSrv.Start(cfg.Console.Listen)

	tg, err := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.ChatID, time.Duration(cfg.Telegram.PollTimeoutMs)*time.Millisecond)
	if err != nil {
		log.Fatalf("Failed to connect to Telegram: %v", err)
	}

	b := bot.New(cfg, reg, box, tg, tmuxClient, mgr)
	tg.SetTextHandler(b.HandleText)
	tg.SetCallbackHandler(b.HandleCallback)
	b.Start()

	go tg.Start()
	log.Printf("relayd %s started: state=%s", Version, cfg.Storage.StateDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	tg.Stop()
	b.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	consoleSrv.Shutdown(ctx)
	cancel()
	if mgr != nil {
		mgr.Close()
	}
}
