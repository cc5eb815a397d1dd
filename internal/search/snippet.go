package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultSnippetLength is the window size used when none is configured.
	DefaultSnippetLength = 200
	ellipsis             = "..."
	minFallbackWordLen   = 4
)

// GenerateSnippet returns a window of content of at most maxLength bytes around the
// first case-insensitive occurrence of query. If the query does not occur, the first
// query word of four or more letters is used instead, and failing that the start of
// the content. The window is narrowed to whole words where a space allows it without
// losing the match, and "..." marks each side where content was cut.
func GenerateSnippet(content, query string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultSnippetLength
	}
	pos, matchLen := locate(content, query)
	if pos < 0 {
		if len(content) <= maxLength {
			return strings.TrimSpace(content)
		}
		end := snapEnd(content, 1, maxLength)
		return strings.TrimSpace(content[:end]) + ellipsis
	}
	if matchLen > maxLength {
		matchLen = maxLength
	}

	half := maxLength / 2
	start := pos - half
	if start < 0 {
		start = 0
	}
	end := pos + half
	if end < pos+matchLen {
		end = pos + matchLen
	}
	if end-start > maxLength {
		start = end - maxLength
	}
	if end > len(content) {
		end = len(content)
	}

	start = snapStart(content, start, pos)
	end = snapEnd(content, pos+matchLen, end)

	snippet := strings.TrimSpace(content[start:end])
	if start > 0 {
		snippet = ellipsis + snippet
	}
	if end < len(content) {
		snippet += ellipsis
	}
	return snippet
}

// locate finds the query, then a significant query word, in content.
func locate(content, query string) (pos, length int) {
	query = strings.TrimSpace(query)
	if query == "" {
		return -1, 0
	}
	if i := indexFold(content, query); i >= 0 {
		return i, len(query)
	}
	for _, w := range strings.Fields(query) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if utf8.RuneCountInString(w) < minFallbackWordLen {
			continue
		}
		if i := indexFold(content, w); i >= 0 {
			return i, len(w)
		}
	}
	return -1, 0
}

// indexFold is a case-insensitive strings.Index that reports byte offsets into s.
func indexFold(s, sub string) int {
	n := len(sub)
	for i := 0; i+n <= len(s); i++ {
		if !utf8.RuneStart(s[i]) {
			continue
		}
		if strings.EqualFold(s[i:i+n], sub) {
			return i
		}
	}
	return -1
}

// snapStart moves start forward to just after a space, never past limit.
func snapStart(s string, start, limit int) int {
	if start == 0 || s[start-1] == ' ' {
		return start
	}
	if i := strings.IndexByte(s[start:limit], ' '); i >= 0 {
		return start + i + 1
	}
	for start < limit && !utf8.RuneStart(s[start]) {
		start++
	}
	return start
}

// snapEnd moves end back to a space, never before limit.
func snapEnd(s string, limit, end int) int {
	if end >= len(s) || s[end] == ' ' {
		return end
	}
	if i := strings.LastIndexByte(s[limit:end], ' '); i >= 0 {
		return limit + i
	}
	for end > limit && !utf8.RuneStart(s[end]) {
		end--
	}
	return end
}
