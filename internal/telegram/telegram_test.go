package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessageShortPassthrough(t *testing.T) {
	chunks := splitMessage("hello", 4000)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	text := strings.Repeat("line\n", 10)
	chunks := splitMessage(text, 12)
	for i, chunk := range chunks {
		if len(chunk) > 12 {
			t.Errorf("chunk %d too long: %q", i, chunk)
		}
		if strings.HasPrefix(chunk, "\n") || strings.HasSuffix(chunk, "\n") {
			t.Errorf("chunk %d has dangling newline: %q", i, chunk)
		}
	}
	joined := strings.Join(chunks, "\n") + "\n"
	if joined != text {
		t.Errorf("content lost: %q vs %q", joined, text)
	}
}

func TestSplitMessageHardCut(t *testing.T) {
	text := strings.Repeat("x", 25)
	chunks := splitMessage(text, 10)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	for i, chunk := range chunks[:2] {
		if len(chunk) != 10 {
			t.Errorf("chunk %d length = %d", i, len(chunk))
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("content lost on hard cut")
	}
}
