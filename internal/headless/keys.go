package headless

import "regexp"

// translateKey maps the small named-key vocabulary shared with the tmux
// backend onto raw byte sequences. Unknown names pass through unchanged.
func translateKey(key string) string {
	switch key {
	case "Down":
		return "\x1b[B"
	case "Up":
		return "\x1b[A"
	case "Enter":
		return "\r"
	case "Space":
		return " "
	case "C-u":
		return "\x15"
	case "C-c":
		return "\x03"
	}
	return key
}

var (
	csiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	oscPattern = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)
	escPattern = regexp.MustCompile(`\x1b[@-_]`)
	ctlPattern = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// StripControl removes terminal escape sequences and non-printable control
// bytes, keeping newlines and carriage returns for line reassembly.
func StripControl(text string) string {
	text = csiPattern.ReplaceAllString(text, "")
	text = oscPattern.ReplaceAllString(text, "")
	text = escPattern.ReplaceAllString(text, "")
	return ctlPattern.ReplaceAllString(text, "")
}
