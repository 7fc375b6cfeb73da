package tmux

import (
	"testing"

	"github.com/remotecli/relayd/internal/config"
)

func TestTrimToLastLines(t *testing.T) {
	cases := []struct {
		text string
		n    int
		want string
	}{
		{"a\nb\nc\n", 2, "b\nc"},
		{"a\nb\nc", 5, "a\nb\nc"},
		{"only", 1, "only"},
		{"", 3, ""},
		{"a\nb", 0, "a\nb"},
	}
	for _, c := range cases {
		if got := trimToLastLines(c.text, c.n); got != c.want {
			t.Errorf("trimToLastLines(%q, %d) = %q, want %q", c.text, c.n, got, c.want)
		}
	}
}

func TestSessionName(t *testing.T) {
	c := NewClient(&config.Tmux{SessionPrefix: "relayd-"})
	if got := c.SessionName("web"); got != "relayd-web" {
		t.Errorf("SessionName = %q", got)
	}
}

func TestArgsThreadsSocket(t *testing.T) {
	c := NewClient(&config.Tmux{Bin: "tmux", Socket: "/tmp/relayd.sock"})
	args := c.args("has-session", "-t", "x")
	if args[0] != "-S" || args[1] != "/tmp/relayd.sock" {
		t.Errorf("args = %v, socket flag missing", args)
	}

	plain := NewClient(&config.Tmux{Bin: "tmux"})
	if got := plain.args("kill-server"); got[0] != "kill-server" {
		t.Errorf("args = %v, unexpected prefix", got)
	}
}
