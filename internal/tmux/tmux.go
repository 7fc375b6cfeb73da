// Package tmux adapts an external terminal multiplexer as a session backend.
package tmux

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/remotecli/relayd/internal/config"
)

type Client struct {
	cfg *config.Tmux
}

func NewClient(cfg *config.Tmux) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) args(base ...string) []string {
	if c.cfg.Socket != "" {
		return append([]string{"-S", c.cfg.Socket}, base...)
	}
	return base
}

func (c *Client) run(base ...string) error {
	return exec.Command(c.cfg.Bin, c.args(base...)...).Run()
}

// HasSession checks if a tmux session exists.
func (c *Client) HasSession(name string) bool {
	return c.run("has-session", "-t", name) == nil
}

// NewSession creates a detached session rooted at startDir with mouse
// scrolling enabled.
func (c *Client) NewSession(name, startDir string) error {
	if err := c.run("new-session", "-d", "-s", name, "-c", startDir); err != nil {
		return fmt.Errorf("failed to create tmux session: %w", err)
	}
	_ = c.run("set-option", "-t", name, "mouse", "on")
	return nil
}

// SendText types a command line into the session. The trailing Enter is sent
// twice with a short pause: the assistant's multi-line input box needs the
// second one to submit.
func (c *Client) SendText(name, text string) error {
	if err := c.run("send-keys", "-t", name, "-l", "--", text); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	if err := c.run("send-keys", "-t", name, "C-m"); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	return c.run("send-keys", "-t", name, "C-m")
}

// SendKey sends one named key (tmux key syntax, e.g. "Down", "C-c").
func (c *Client) SendKey(name, key string) error {
	return c.run("send-keys", "-t", name, key)
}

// SendInterrupt sends Ctrl-C to the session.
func (c *Client) SendInterrupt(name string) error {
	return c.SendKey(name, "C-c")
}

// CapturePane returns the last n lines of the session's visible pane.
func (c *Client) CapturePane(name string, n int) (string, error) {
	args := c.args("capture-pane", "-p", "-t", name, "-S", fmt.Sprintf("-%d", n))
	out, err := exec.Command(c.cfg.Bin, args...).Output()
	if err != nil {
		return "", fmt.Errorf("failed to capture pane: %w", err)
	}
	return trimToLastLines(string(out), n), nil
}

// KillSession terminates a session.
func (c *Client) KillSession(name string) error {
	return c.run("kill-session", "-t", name)
}

// ListSessions returns workspace names of sessions carrying the configured
// prefix.
func (c *Client) ListSessions() ([]string, error) {
	args := c.args("list-sessions", "-F", "#{session_name}")
	out, err := exec.Command(c.cfg.Bin, args...).Output()
	if err != nil {
		outStr := strings.ToLower(strings.TrimSpace(string(out)))
		// No tmux server running is not an error.
		if strings.Contains(outStr, "no server running") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		name := scanner.Text()
		if strings.HasPrefix(name, c.cfg.SessionPrefix) {
			names = append(names, strings.TrimPrefix(name, c.cfg.SessionPrefix))
		}
	}
	return names, scanner.Err()
}

// SessionName maps a workspace name to the prefixed tmux session name.
func (c *Client) SessionName(workspace string) string {
	return c.cfg.SessionPrefix + workspace
}

func trimToLastLines(text string, n int) string {
	if n <= 0 || text == "" {
		return text
	}
	trimmed := strings.TrimRight(text, "\n")
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= n {
		return trimmed
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
