package bot

import "testing"

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in       string
		verb     string
		rest     string
	}{
		{"/help", "help", ""},
		{"/status web", "status", "web"},
		{"/t ab12cd34 run the tests", "t", "ab12cd34 run the tests"},
		{"/status@relaybot web", "status", "web"},
		{"/web fix the failing test", "web", "fix the failing test"},
		{"/web", "web", ""},
		{"/new   my-project", "new", "my-project"},
	}
	for _, c := range cases {
		verb, rest := splitCommand(c.in)
		if verb != c.verb || rest != c.rest {
			t.Errorf("splitCommand(%q) = (%q, %q), want (%q, %q)", c.in, verb, rest, c.verb, c.rest)
		}
	}
}
