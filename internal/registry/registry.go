// Package registry tracks live terminal sessions per workspace and the small
// JSON documents that survive daemon restarts: the session map, the default
// workspace, the outbound message index, and the project usage history.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionKind string

const (
	KindMultiplexer SessionKind = "external-multiplexer"
	KindHeadless    SessionKind = "headless-pty"
)

type SessionEntry struct {
	Token          string      `json:"token"`
	Cwd            string      `json:"cwd"`
	WorkspaceName  string      `json:"workspace_name"`
	TerminalHandle string      `json:"terminal_handle"`
	SessionKind    SessionKind `json:"session_kind"`
	CreatedAt      time.Time   `json:"created_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
	Status         string      `json:"status"`
}

func (e *SessionEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

type Registry struct {
	dir    string
	ttl    time.Duration
	roots  []string
	pinned []string
}

func New(stateDir string, ttl time.Duration, roots, pinned []string) (*Registry, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Registry{dir: stateDir, ttl: ttl, roots: roots, pinned: pinned}, nil
}

func (r *Registry) sessionMapPath() string {
	return filepath.Join(r.dir, "session-map.json")
}

func (r *Registry) loadSessions() map[string]SessionEntry {
	sessions := make(map[string]SessionEntry)
	readJSON(r.sessionMapPath(), &sessions)
	return sessions
}

func (r *Registry) saveSessions(sessions map[string]SessionEntry) error {
	return writeJSON(r.sessionMapPath(), sessions)
}

// NewToken mints an 8-character opaque session token.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// UpsertSession registers or refreshes the session for a (cwd, terminalHandle)
// pair. An existing non-expired entry for the same pair is reused: its token
// and createdAt survive, only expiry and status are refreshed. Passing an
// empty kind preserves the prior entry's kind.
func (r *Registry) UpsertSession(cwd, terminalHandle, status string, kind SessionKind) (SessionEntry, error) {
	now := time.Now()
	sessions := r.loadSessions()

	var entry SessionEntry
	found := false
	for _, existing := range sessions {
		if existing.Cwd == cwd && existing.TerminalHandle == terminalHandle && !existing.Expired(now) {
			entry = existing
			found = true
			break
		}
	}

	if !found {
		entry = SessionEntry{
			Token:          NewToken(),
			Cwd:            cwd,
			TerminalHandle: terminalHandle,
			WorkspaceName:  filepath.Base(cwd),
			CreatedAt:      now,
			SessionKind:    kind,
		}
	}
	if kind != "" {
		entry.SessionKind = kind
	}
	entry.ExpiresAt = now.Add(r.ttl)
	entry.Status = status

	sessions[entry.Token] = entry
	if err := r.saveSessions(sessions); err != nil {
		return entry, err
	}

	r.RecordProjectUse(entry.WorkspaceName, cwd)
	return entry, nil
}

// Lookup returns the session for a token, expired or not.
func (r *Registry) Lookup(token string) (SessionEntry, bool) {
	sessions := r.loadSessions()
	entry, ok := sessions[token]
	return entry, ok
}

// PruneExpired drops every expired entry and reports how many were removed.
// Safe to call at any time.
func (r *Registry) PruneExpired() int {
	now := time.Now()
	sessions := r.loadSessions()
	removed := 0
	for token, entry := range sessions {
		if entry.Expired(now) {
			delete(sessions, token)
			removed++
		}
	}
	if removed > 0 {
		_ = r.saveSessions(sessions)
	}
	return removed
}

// activeByWorkspace builds the deduplicated view used by resolution and
// listing: one entry per workspace name (case-insensitive), newest createdAt
// wins.
func (r *Registry) activeByWorkspace() map[string]SessionEntry {
	now := time.Now()
	view := make(map[string]SessionEntry)
	for _, entry := range r.loadSessions() {
		if entry.Expired(now) {
			continue
		}
		key := strings.ToLower(entry.WorkspaceName)
		if current, ok := view[key]; !ok || entry.CreatedAt.After(current.CreatedAt) {
			view[key] = entry
		}
	}
	return view
}

type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchPrefix
	MatchAmbiguous
)

type Resolution struct {
	Kind       MatchKind
	Entry      SessionEntry
	Candidates []string
}

// ResolveWorkspace maps a user-supplied name to a live session. Exact
// case-insensitive matches win; otherwise a unique prefix resolves, multiple
// prefix hits are ambiguous and the caller must ask the user to pick.
func (r *Registry) ResolveWorkspace(query string) Resolution {
	view := r.activeByWorkspace()
	lowered := strings.ToLower(strings.TrimSpace(query))

	if entry, ok := view[lowered]; ok {
		return Resolution{Kind: MatchExact, Entry: entry}
	}

	var hits []SessionEntry
	for key, entry := range view {
		if strings.HasPrefix(key, lowered) {
			hits = append(hits, entry)
		}
	}

	switch len(hits) {
	case 0:
		return Resolution{Kind: MatchNone}
	case 1:
		return Resolution{Kind: MatchPrefix, Entry: hits[0]}
	default:
		names := make([]string, 0, len(hits))
		for _, entry := range hits {
			names = append(names, entry.WorkspaceName)
		}
		sort.Strings(names)
		return Resolution{Kind: MatchAmbiguous, Candidates: names}
	}
}

type SessionView struct {
	SessionEntry
	Age string
}

// ListActiveSessions returns the deduplicated live sessions, newest first,
// each annotated with a human-readable age.
func (r *Registry) ListActiveSessions() []SessionView {
	view := r.activeByWorkspace()
	now := time.Now()

	list := make([]SessionView, 0, len(view))
	for _, entry := range view {
		list = append(list, SessionView{SessionEntry: entry, Age: formatAge(now.Sub(entry.CreatedAt))})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
