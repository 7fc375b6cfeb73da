// Package terminal gives the dispatcher one uniform surface over both session
// backends: an external multiplexer session or a daemon-owned headless PTY.
package terminal

import (
	"errors"
	"fmt"
	"time"

	"github.com/remotecli/relayd/internal/headless"
	"github.com/remotecli/relayd/internal/registry"
	"github.com/remotecli/relayd/internal/tmux"
)

var ErrSessionNotFound = errors.New("terminal session not found")

// Backend is the capability surface every session kind must provide.
type Backend interface {
	Exists() bool
	WriteCommand(text string) error
	SendKey(key string) error
	Capture(lines int) (string, error)
	Interrupt() error
}

// ForEntry picks the backend variant for a registry entry. A headless entry
// on a host without PTY support resolves to an error, not a crash.
func ForEntry(entry registry.SessionEntry, tmuxClient *tmux.Client, mgr *headless.Manager) (Backend, error) {
	switch entry.SessionKind {
	case registry.KindHeadless:
		if mgr == nil {
			return nil, fmt.Errorf("headless mode unavailable on this host")
		}
		return &HeadlessSession{mgr: mgr, handle: entry.TerminalHandle}, nil
	default:
		return &MultiplexerSession{client: tmuxClient, handle: entry.TerminalHandle}, nil
	}
}

// MultiplexerSession drives a tmux session.
type MultiplexerSession struct {
	client *tmux.Client
	handle string
}

func NewMultiplexerSession(client *tmux.Client, handle string) *MultiplexerSession {
	return &MultiplexerSession{client: client, handle: handle}
}

func (s *MultiplexerSession) Exists() bool {
	return s.client.HasSession(s.handle)
}

func (s *MultiplexerSession) WriteCommand(text string) error {
	if !s.Exists() {
		return ErrSessionNotFound
	}
	return s.client.SendText(s.handle, text)
}

func (s *MultiplexerSession) SendKey(key string) error {
	return s.client.SendKey(s.handle, key)
}

func (s *MultiplexerSession) Capture(lines int) (string, error) {
	if !s.Exists() {
		return "", ErrSessionNotFound
	}
	return s.client.CapturePane(s.handle, lines)
}

func (s *MultiplexerSession) Interrupt() error {
	return s.client.SendInterrupt(s.handle)
}

// HeadlessSession drives a PTY session owned by the daemon.
type HeadlessSession struct {
	mgr    *headless.Manager
	handle string
}

func NewHeadlessSession(mgr *headless.Manager, handle string) *HeadlessSession {
	return &HeadlessSession{mgr: mgr, handle: handle}
}

func (s *HeadlessSession) Exists() bool {
	return s.mgr.Exists(s.handle)
}

func (s *HeadlessSession) WriteCommand(text string) error {
	if !s.Exists() {
		return ErrSessionNotFound
	}
	if err := s.mgr.Write(s.handle, []byte(text)); err != nil {
		return err
	}
	// Same double-Enter submit rule as the multiplexer backend.
	time.Sleep(50 * time.Millisecond)
	if err := s.mgr.SendKey(s.handle, "Enter"); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	return s.mgr.SendKey(s.handle, "Enter")
}

func (s *HeadlessSession) SendKey(key string) error {
	if !s.Exists() {
		return ErrSessionNotFound
	}
	return s.mgr.SendKey(s.handle, key)
}

func (s *HeadlessSession) Capture(lines int) (string, error) {
	text, ok := s.mgr.Capture(s.handle, lines)
	if !ok {
		return "", ErrSessionNotFound
	}
	return text, nil
}

func (s *HeadlessSession) Interrupt() error {
	if !s.Exists() {
		return ErrSessionNotFound
	}
	return s.mgr.Interrupt(s.handle)
}
