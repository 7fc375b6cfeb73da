package bot

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

const (
	typingCadence = 4 * time.Second
	typingCeiling = 90 * time.Second
)

func (b *Bot) typingSignalPath(workspace string) string {
	return filepath.Join(b.cfg.Storage.StateDir, "typing-"+workspace)
}

// StartTyping creates the per-workspace signal file and runs the indicator
// loop until the file disappears or the ceiling elapses. The stop hook
// removes the file when the assistant finishes.
func (b *Bot) StartTyping(workspace string) {
	b.mu.Lock()
	if _, running := b.typing[workspace]; running {
		b.mu.Unlock()
		return
	}
	b.typing[workspace] = struct{}{}
	b.mu.Unlock()

	path := b.typingSignalPath(workspace)
	if err := os.WriteFile(path, []byte(workspace), 0600); err != nil {
		log.Printf("Failed to write typing signal for %s: %v", workspace, err)
	}

	go b.typingLoop(workspace, path)
}

func (b *Bot) typingLoop(workspace, path string) {
	defer func() {
		b.mu.Lock()
		delete(b.typing, workspace)
		b.mu.Unlock()
	}()

	deadline := time.Now().Add(typingCeiling)
	ticker := time.NewTicker(typingCadence)
	defer ticker.Stop()

	_ = b.tg.Typing()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			// The signal file may have been removed while a send was in
			// flight; checking existence on every tick keeps a delayed
			// send from re-asserting a stale indicator.
			if _, err := os.Stat(path); err != nil {
				return
			}
			if time.Now().After(deadline) {
				_ = os.Remove(path)
				return
			}
			if err := b.tg.Typing(); err != nil {
				log.Printf("Typing indicator failed for %s: %v", workspace, err)
			}
		}
	}
}
