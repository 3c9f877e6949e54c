// Package strings holds text helpers for single-line terminal output.
package strings

import (
	"strings"
	"unicode/utf8"
)

// DefaultSummaryLen is the longest summary shown next to an update notice.
const DefaultSummaryLen = 72

// MinTruncateLen is the smallest useful maxLen: one character plus "...".
const MinTruncateLen = 4

const ellipsis = "..."

// Summarize reduces multi-line text such as release notes to one line of at
// most maxLen runes. Only the first paragraph is kept, markdown list and
// heading markers at line starts are dropped, and whitespace is collapsed.
// A cut prefers the last word boundary and ends in "...".
func Summarize(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	para := strings.TrimSpace(s)
	if i := strings.Index(para, "\n\n"); i >= 0 {
		para = para[:i]
	}

	lines := strings.Split(para, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimLeft(strings.TrimSpace(line), "#*- ")
	}
	flat := strings.Join(strings.Fields(strings.Join(lines, " ")), " ")

	if utf8.RuneCountInString(flat) <= maxLen {
		return flat
	}
	runes := []rune(flat)
	cut := string(runes[:maxLen-len(ellipsis)])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + ellipsis
}
