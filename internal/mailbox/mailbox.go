// Package mailbox implements the file-pair IPC protocol between short-lived
// hook processes and the long-running bot daemon. A hook writes pending-<id>,
// the daemon answers with response-<id>, and the hook discovers the answer by
// polling. Each file has exactly one writing process, so no locking is needed.
package mailbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/remotecli/relayd/internal/registry"
)

// PromptTTL is how long an unanswered prompt stays valid before expiry
// cleanup removes it.
const PromptTTL = 5 * time.Minute

type PromptKind string

const (
	KindPermission       PromptKind = "permission"
	KindPlan             PromptKind = "plan"
	KindQuestion         PromptKind = "question"
	KindQuestionFreetext PromptKind = "question-freetext"
)

// PendingPrompt is one outstanding interactive decision.
type PendingPrompt struct {
	PromptID       string               `json:"prompt_id"`
	Kind           PromptKind           `json:"kind"`
	Workspace      string               `json:"workspace"`
	TerminalHandle string               `json:"terminal_handle"`
	SessionKind    registry.SessionKind `json:"session_kind,omitempty"`
	ToolName       string               `json:"tool_name,omitempty"`
	ToolInput      json.RawMessage      `json:"tool_input,omitempty"`
	Question       string               `json:"question,omitempty"`
	Header         string               `json:"header,omitempty"`
	Options        []string             `json:"options,omitempty"`
	MultiSelect    bool                 `json:"multi_select,omitempty"`
	Selected       []bool               `json:"selected,omitempty"`
	IsLast         bool                 `json:"is_last,omitempty"`
	CreatedAt      int64                `json:"created_at"`
}

type Action string

const (
	ActionAllow       Action = "allow"
	ActionDeny        Action = "deny"
	ActionAlwaysAllow Action = "always-allow"
	ActionSelect      Action = "select"
)

// Response is written exactly once by the daemon when the remote user answers.
type Response struct {
	PromptID       string `json:"prompt_id"`
	Action         Action `json:"action"`
	SelectedOption string `json:"selected_option,omitempty"`
	RespondedAt    int64  `json:"responded_at"`
}

// ErrTimeout is returned by AwaitResponse when no answer arrived in time.
var ErrTimeout = errors.New("timed out waiting for response")

type Mailbox struct {
	dir string
}

func New(dir string) (*Mailbox, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mailbox dir: %w", err)
	}
	return &Mailbox{dir: dir}, nil
}

func (m *Mailbox) Dir() string { return m.dir }

// NewPromptID mints an 8-hex-char prompt identifier.
func NewPromptID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (m *Mailbox) pendingPath(id string) string {
	return filepath.Join(m.dir, "pending-"+id)
}

func (m *Mailbox) responsePath(id string) string {
	return filepath.Join(m.dir, "response-"+id)
}

// WritePending stores a new pending prompt, purging expired files first and
// stamping createdAt.
func (m *Mailbox) WritePending(prompt PendingPrompt) error {
	m.CleanExpired()
	prompt.CreatedAt = time.Now().UnixMilli()
	data, err := json.Marshal(prompt)
	if err != nil {
		return err
	}
	return os.WriteFile(m.pendingPath(prompt.PromptID), data, 0600)
}

// WriteResponse stores the answer for a prompt, stamping respondedAt.
func (m *Mailbox) WriteResponse(resp Response) error {
	resp.RespondedAt = time.Now().UnixMilli()
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return os.WriteFile(m.responsePath(resp.PromptID), data, 0600)
}

// ReadPending returns the pending prompt for id, or nil when the file is
// missing or corrupt.
func (m *Mailbox) ReadPending(id string) *PendingPrompt {
	data, err := os.ReadFile(m.pendingPath(id))
	if err != nil {
		return nil
	}
	var prompt PendingPrompt
	if err := json.Unmarshal(data, &prompt); err != nil {
		return nil
	}
	return &prompt
}

// ReadResponse returns the response for id, or nil when missing or corrupt.
func (m *Mailbox) ReadResponse(id string) *Response {
	data, err := os.ReadFile(m.responsePath(id))
	if err != nil {
		return nil
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil
	}
	return &resp
}

// UpdatePending merges mutate's changes onto the stored pending record. It is
// a no-op when the record is already gone. The only mutation the protocol
// allows is toggling multi-select option state.
func (m *Mailbox) UpdatePending(id string, mutate func(*PendingPrompt)) error {
	prompt := m.ReadPending(id)
	if prompt == nil {
		return nil
	}
	mutate(prompt)
	data, err := json.Marshal(prompt)
	if err != nil {
		return err
	}
	return os.WriteFile(m.pendingPath(id), data, 0600)
}

// CleanPrompt removes both files of a prompt, ignoring errors.
func (m *Mailbox) CleanPrompt(id string) {
	_ = os.Remove(m.pendingPath(id))
	_ = os.Remove(m.responsePath(id))
}

// CleanExpired deletes every mailbox file whose modification time is older
// than the prompt TTL. It returns how many pending prompts were removed, so
// the daemon can count prompts that genuinely expired unanswered.
func (m *Mailbox) CleanExpired() int {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-PromptTTL)
	expired := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "pending-") && !strings.HasPrefix(name, "response-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(m.dir, name)) == nil && strings.HasPrefix(name, "pending-") {
				expired++
			}
		}
	}
	return expired
}

// HasPendingForWorkspace reports whether an unanswered, non-expired prompt is
// outstanding for the workspace. A prompt with a response file already written
// counts as resolved even before cleanup removes it.
func (m *Mailbox) HasPendingForWorkspace(workspace string) bool {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return false
	}
	cutoff := time.Now().Add(-PromptTTL)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "pending-") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		id := strings.TrimPrefix(name, "pending-")
		prompt := m.ReadPending(id)
		if prompt == nil || prompt.Workspace != workspace {
			continue
		}
		if m.ReadResponse(id) == nil {
			return true
		}
	}
	return false
}

// PendingIDs lists the ids of all pending files currently on disk.
func (m *Mailbox) PendingIDs() []string {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil
	}
	var ids []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "pending-") {
			ids = append(ids, strings.TrimPrefix(entry.Name(), "pending-"))
		}
	}
	return ids
}

// AwaitResponse polls for the response file at the given interval until it
// appears or the timeout elapses. This is the hook-side half of the protocol;
// there is no push notification across processes.
func (m *Mailbox) AwaitResponse(id string, interval, timeout time.Duration) (*Response, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		if resp := m.ReadResponse(id); resp != nil {
			return resp, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		time.Sleep(interval)
	}
}
