package indexer

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/hyperjump/marketiq/internal/models"
)

const (
	// DefaultSectionBudget is the character budget of one section.
	DefaultSectionBudget = 2000
	maxHeadingLength     = 100
	continuedSuffix      = " (continued)"
)

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// Segmenter splits filing text into titled sections for embedding.
type Segmenter struct {
	budget int
}

// NewSegmenter returns a segmenter with the given character budget per section.
func NewSegmenter(budget int) *Segmenter {
	if budget <= 0 {
		budget = DefaultSectionBudget
	}
	return &Segmenter{budget: budget}
}

// Segment splits text on blank lines. A heading paragraph starts a new section titled
// with the heading; otherwise paragraphs accumulate under the current title until adding
// the next one would exceed the budget, at which point the section is flushed and
// continues as "<title> (continued)". Sections without content are dropped.
func (s *Segmenter) Segment(text, title string) []models.Section {
	var (
		sections []models.Section
		curTitle = title
		content  strings.Builder
	)
	flush := func() {
		if content.Len() == 0 {
			return
		}
		sections = append(sections, models.Section{Index: len(sections), Title: curTitle, Content: content.String()})
		content.Reset()
	}

	for _, p := range blankLine.Split(normalizeNewlines(text), -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if isHeading(p) {
			flush()
			curTitle = p
			continue
		}
		if content.Len() > 0 && content.Len()+len(p) > s.budget {
			flush()
			if !strings.HasSuffix(curTitle, continuedSuffix) {
				curTitle += continuedSuffix
			}
		}
		if content.Len() > 0 {
			content.WriteString("\n\n")
		}
		content.WriteString(p)
	}
	flush()
	return sections
}

// Segment splits text with the given budget. See Segmenter.Segment.
func Segment(text, title string, budget int) []models.Section {
	return NewSegmenter(budget).Segment(text, title)
}

// isHeading reports whether p is all upper-case (with at least one cased letter)
// or a short line ending in a colon.
func isHeading(p string) bool {
	if len(p) < maxHeadingLength && strings.HasSuffix(p, ":") {
		return true
	}
	cased := false
	for _, r := range p {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}
