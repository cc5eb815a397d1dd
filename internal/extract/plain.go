package extract

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as string. Invalid UTF-8 sequences are replaced
// with the replacement character.
func extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), "\uFFFD"))
	}
	return string(content), nil
}

var (
	scriptBlock = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blockTag    = regexp.MustCompile(`(?i)</?(p|div|h[1-6]|tr|table|li|ul|ol|br|section)[^>]*>`)
	anyTag      = regexp.MustCompile(`<[^>]*>`)
	spaceRun    = regexp.MustCompile(`[ \t]+`)
	blankRun    = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)
)

// extractHTML strips markup from EDGAR-style HTML filings. Block-level tags become
// paragraph breaks.
func extractHTML(content []byte) (string, error) {
	s, _ := extractPlain(content)
	s = scriptBlock.ReplaceAllString(s, "")
	s = blockTag.ReplaceAllString(s, "\n\n")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spaceRun.ReplaceAllString(s, " ")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s), nil
}
