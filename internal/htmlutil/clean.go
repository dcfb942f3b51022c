package htmlutil

import (
	"regexp"
	"strings"

	"github.com/k3a/html2text"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// ToText converts HTML to plain text. Entities are decoded and tags stripped.
func ToText(s string) string {
	return html2text.HTML2Text(s)
}

// PageText renders a full page as plain text with trailing spaces removed and
// runs of blank lines collapsed.
func PageText(s string) string {
	lines := strings.Split(strings.ReplaceAll(ToText(s), "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	text := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text) + "\n"
}
