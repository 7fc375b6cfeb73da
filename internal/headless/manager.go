// Package headless drives interactive CLI sessions through pseudo-terminals
// owned entirely by the daemon, for hosts without a terminal multiplexer.
package headless

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/creack/pty"
	"github.com/remotecli/relayd/internal/metrics"
)

type Manager struct {
	command    string
	logDir     string
	scrollback int

	sessions map[string]*session
	mu       sync.RWMutex
}

// NewManager returns an error when the host cannot provide pseudo-terminals;
// the caller then runs without headless support instead of crashing.
func NewManager(command, stateDir string, scrollback int) (*Manager, error) {
	logDir := filepath.Join(stateDir, "terminals")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create terminal log dir: %w", err)
	}
	if scrollback <= 0 {
		scrollback = 100
	}
	return &Manager{
		command:    command,
		logDir:     logDir,
		scrollback: scrollback,
		sessions:   make(map[string]*session),
	}, nil
}

type session struct {
	name    string
	ptmx    *os.File
	cmd     *exec.Cmd
	logFile *os.File

	lines   []string
	partial string
	linesMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Spawn starts the assistant CLI under a fresh PTY for the workspace. Any
// existing session with the same name is killed first so no orphaned process
// survives a restart.
func (m *Manager) Spawn(name, cwd string, args []string) error {
	m.Kill(name)

	cmd := exec.Command(m.command, args...)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		// Hook processes spawned by the assistant read these to find
		// their way back to this session.
		"RELAYD_SESSION="+name,
		"RELAYD_KIND=headless-pty",
	)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("failed to start %s with PTY: %w", m.command, err)
	}
	_ = pty.Setsize(ptmx, &pty.Winsize{Rows: 40, Cols: 120})

	logFile, err := os.OpenFile(m.LogPath(name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		log.Printf("Failed to open terminal log for %s: %v", name, err)
	}

	s := &session{
		name:    name,
		ptmx:    ptmx,
		cmd:     cmd,
		logFile: logFile,
		closed:  make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[name] = s
	m.mu.Unlock()
	m.syncGauge()

	go m.readLoop(s)
	go m.waitForExit(s)

	log.Printf("Headless session started: name=%s pid=%d cwd=%s", name, cmd.Process.Pid, cwd)
	return nil
}

func (m *Manager) get(name string) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[name]
}

// Exists reports whether a live session is registered under name.
func (m *Manager) Exists(name string) bool {
	return m.get(name) != nil
}

// List returns the names of all live sessions.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	return names
}

// Write sends raw bytes to the session's PTY.
func (m *Manager) Write(name string, data []byte) error {
	s := m.get(name)
	if s == nil {
		return fmt.Errorf("headless session %q not found", name)
	}
	_, err := s.ptmx.Write(data)
	return err
}

// SendKey translates a named key into its control/escape byte sequence and
// writes it. Unrecognized names are passed through verbatim.
func (m *Manager) SendKey(name, key string) error {
	return m.Write(name, []byte(translateKey(key)))
}

// Interrupt sends the interrupt control byte (Ctrl-C).
func (m *Manager) Interrupt(name string) error {
	return m.SendKey(name, "C-c")
}

// Capture returns the last n decoded scrollback lines, or false when the
// session is unknown.
func (m *Manager) Capture(name string, n int) (string, bool) {
	s := m.get(name)
	if s == nil {
		return "", false
	}
	s.linesMu.Lock()
	defer s.linesMu.Unlock()

	lines := s.lines
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), true
}

// Kill terminates the session's process and drops all of its state.
func (m *Manager) Kill(name string) {
	m.mu.Lock()
	s := m.sessions[name]
	delete(m.sessions, name)
	m.mu.Unlock()
	m.syncGauge()

	if s != nil {
		s.close()
	}
}

// syncGauge keeps the exported session count in step with the live map, from
// every path that mutates it, including a PTY process exiting on its own.
func (m *Manager) syncGauge() {
	m.mu.RLock()
	n := len(m.sessions)
	m.mu.RUnlock()
	metrics.HeadlessSessions.Set(float64(n))
}

// Close shuts down every session.
func (m *Manager) Close() {
	for _, name := range m.List() {
		m.Kill(name)
	}
}

// LogPath is where a session's raw output is appended for diagnostics.
func (m *Manager) LogPath(name string) string {
	return filepath.Join(m.logDir, name+".log")
}

func (m *Manager) readLoop(s *session) {
	buf := make([]byte, 4096)

	for {
		select {
		case <-s.closed:
			return
		default:
		}

		n, err := s.ptmx.Read(buf)
		if n > 0 {
			if s.logFile != nil {
				_, _ = s.logFile.Write(buf[:n])
			}
			m.appendOutput(s, buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				select {
				case <-s.closed:
				default:
					log.Printf("PTY read error for %s: %v", s.name, err)
				}
			}
			return
		}
	}
}

func (m *Manager) appendOutput(s *session, chunk []byte) {
	s.linesMu.Lock()
	defer s.linesMu.Unlock()

	text := s.partial + StripControl(string(chunk))
	parts := strings.Split(text, "\n")
	s.partial = parts[len(parts)-1]

	for _, line := range parts[:len(parts)-1] {
		// A TUI repaints lines in place with carriage returns; keep only
		// the final paint.
		if idx := strings.LastIndexByte(line, '\r'); idx >= 0 {
			line = line[idx+1:]
		}
		s.lines = append(s.lines, line)
	}
	if len(s.lines) > m.scrollback {
		s.lines = s.lines[len(s.lines)-m.scrollback:]
	}
}

func (m *Manager) waitForExit(s *session) {
	if s.cmd == nil {
		return
	}
	err := s.cmd.Wait()

	select {
	case <-s.closed:
	default:
		if err != nil {
			log.Printf("Headless session %s exited: %v", s.name, err)
		} else {
			log.Printf("Headless session %s exited", s.name)
		}
	}

	m.mu.Lock()
	if m.sessions[s.name] == s {
		delete(m.sessions, s.name)
	}
	m.mu.Unlock()
	m.syncGauge()
	s.close()
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.ptmx != nil {
			_ = s.ptmx.Close()
		}
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		if s.logFile != nil {
			_ = s.logFile.Close()
		}
	})
}
