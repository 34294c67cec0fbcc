package client

import "strings"

// Format turns raw model markdown into display text: rule, header and bold
// markers are removed, blank lines dropped, each line trimmed, and lines
// joined as paragraphs. It is pure and is re-run over the whole accumulated
// text on every update.
func Format(content string) string {
	s := strings.ReplaceAll(content, "---", "")
	s = strings.ReplaceAll(s, "###", "")
	s = strings.ReplaceAll(s, "**", "")

	lines := strings.Split(s, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		paragraphs = append(paragraphs, line)
	}
	return strings.Join(paragraphs, "\n\n")
}

// Paragraphs splits formatted text back into the blocks the page renders.
func Paragraphs(formatted string) []string {
	if formatted == "" {
		return nil
	}
	return strings.Split(formatted, "\n\n")
}

// ParseKeywords splits the comma separated form input, trimming each entry
// and dropping blanks.
func ParseKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
