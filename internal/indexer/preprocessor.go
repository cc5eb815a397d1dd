package indexer

import "strings"

// normalizeNewlines converts CRLF and CR line endings to LF.
func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// Preprocess normalizes filing text before storage: unified line endings, trailing
// whitespace removed from each line, surrounding blank lines trimmed. Paragraph breaks
// are kept because segmentation depends on them.
func Preprocess(text string) string {
	lines := strings.Split(normalizeNewlines(text), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\f\v")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}
