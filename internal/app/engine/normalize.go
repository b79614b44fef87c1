package engine

import "strings"

// normalizeOutput canonicalizes program output for grading comparison: line
// terminators collapse to "\n", trailing whitespace on each line is dropped,
// and surrounding whitespace is trimmed. Content itself is never coerced, so
// "5" and "05" stay distinct.
func normalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
