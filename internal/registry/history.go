package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	historyMax      = 50
	messageIndexTTL = 24 * time.Hour
)

// DefaultWorkspace routes plain chat messages that carry no workspace prefix.

type defaultWorkspaceDoc struct {
	Workspace string `json:"workspace"`
}

func (r *Registry) defaultWorkspacePath() string {
	return filepath.Join(r.dir, "default-workspace.json")
}

func (r *Registry) DefaultWorkspace() string {
	var doc defaultWorkspaceDoc
	readJSON(r.defaultWorkspacePath(), &doc)
	return doc.Workspace
}

func (r *Registry) SetDefaultWorkspace(name string) error {
	return writeJSON(r.defaultWorkspacePath(), defaultWorkspaceDoc{Workspace: name})
}

func (r *Registry) ClearDefaultWorkspace() {
	_ = os.Remove(r.defaultWorkspacePath())
}

// MessageRef remembers which workspace an outbound notification belonged to,
// so that a chat reply to that message can be routed back. PromptID is set
// when the message surfaced a mailbox prompt, letting a reply resolve the
// prompt itself rather than just reach its workspace.
type MessageRef struct {
	Workspace string    `json:"workspace"`
	Kind      string    `json:"kind"`
	PromptID  string    `json:"prompt_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *Registry) messageIndexPath() string {
	return filepath.Join(r.dir, "message-workspace-map.json")
}

func (r *Registry) RecordMessage(messageID int, workspace, kind string) {
	r.recordMessage(messageID, MessageRef{Workspace: workspace, Kind: kind})
}

// RecordPromptMessage links an outbound prompt message to its prompt id.
func (r *Registry) RecordPromptMessage(messageID int, workspace, kind, promptID string) {
	r.recordMessage(messageID, MessageRef{Workspace: workspace, Kind: kind, PromptID: promptID})
}

func (r *Registry) recordMessage(messageID int, ref MessageRef) {
	index := make(map[int]MessageRef)
	readJSON(r.messageIndexPath(), &index)

	now := time.Now()
	for id, old := range index {
		if now.Sub(old.Timestamp) > messageIndexTTL {
			delete(index, id)
		}
	}
	ref.Timestamp = now
	index[messageID] = ref
	_ = writeJSON(r.messageIndexPath(), index)
}

func (r *Registry) LookupMessage(messageID int) (MessageRef, bool) {
	index := make(map[int]MessageRef)
	readJSON(r.messageIndexPath(), &index)
	ref, ok := index[messageID]
	if !ok || time.Since(ref.Timestamp) > messageIndexTTL {
		return MessageRef{}, false
	}
	return ref, true
}

// ProjectRef is one entry of the persisted usage history.
type ProjectRef struct {
	Path       string    `json:"path"`
	LastUsedAt time.Time `json:"last_used_at"`
}

type Project struct {
	Name     string
	Path     string
	LastUsed time.Time
}

func (r *Registry) historyPath() string {
	return filepath.Join(r.dir, "project-history.json")
}

// RecordProjectUse stamps a project as just used, trimming the history to the
// most recent entries.
func (r *Registry) RecordProjectUse(name, path string) {
	history := make(map[string]ProjectRef)
	readJSON(r.historyPath(), &history)

	history[name] = ProjectRef{Path: path, LastUsedAt: time.Now()}

	if len(history) > historyMax {
		type aged struct {
			name string
			at   time.Time
		}
		entries := make([]aged, 0, len(history))
		for n, ref := range history {
			entries = append(entries, aged{n, ref.LastUsedAt})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
		for _, e := range entries[:len(history)-historyMax] {
			delete(history, e.name)
		}
	}

	_ = writeJSON(r.historyPath(), history)
}

// RecentProjects merges directories found under the configured project roots
// (filesystem mtime as recency) with the persisted history (the later
// timestamp wins), puts pinned names first in their configured order, sorts
// the rest by recency, and truncates to limit.
func (r *Registry) RecentProjects(limit int) []Project {
	merged := make(map[string]Project)

	for _, root := range r.roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			name := entry.Name()
			candidate := Project{Name: name, Path: filepath.Join(root, name), LastUsed: info.ModTime()}
			if existing, ok := merged[name]; !ok || candidate.LastUsed.After(existing.LastUsed) {
				merged[name] = candidate
			}
		}
	}

	history := make(map[string]ProjectRef)
	readJSON(r.historyPath(), &history)
	for name, ref := range history {
		candidate := Project{Name: name, Path: ref.Path, LastUsed: ref.LastUsedAt}
		if existing, ok := merged[name]; !ok || candidate.LastUsed.After(existing.LastUsed) {
			merged[name] = candidate
		}
	}

	var pinnedList, rest []Project
	for _, name := range r.pinned {
		if p, ok := merged[name]; ok {
			pinnedList = append(pinnedList, p)
			delete(merged, name)
		}
	}
	for _, p := range merged {
		rest = append(rest, p)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].LastUsed.After(rest[j].LastUsed) })

	result := append(pinnedList, rest...)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
