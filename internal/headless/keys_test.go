package headless

import "testing"

func TestTranslateKey(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"Down", "\x1b[B"},
		{"Up", "\x1b[A"},
		{"Enter", "\r"},
		{"Space", " "},
		{"C-u", "\x15"},
		{"C-c", "\x03"},
		{"hello", "hello"},
	}
	for _, c := range cases {
		if got := translateKey(c.key); got != c.want {
			t.Errorf("translateKey(%q) = %q, want %q", c.key, got, c.want)
		}
	}
}

func TestStripControl(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"\x1b[31mred\x1b[0m", "red"},
		{"\x1b[2J\x1b[Hcleared", "cleared"},
		{"\x1b]0;title\x07after", "after"},
		{"keep\nnewline\rand cr", "keep\nnewline\rand cr"},
		{"bell\x07and\x08backspace", "bellandbackspace"},
		{"\x1b[?25lhidden cursor", "hidden cursor"},
	}
	for _, c := range cases {
		if got := StripControl(c.in); got != c.want {
			t.Errorf("StripControl(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
