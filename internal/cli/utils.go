// Package cli provides output helpers for the marketiq command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/marketiq/internal/models"
	"github.com/hyperjump/marketiq/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is the search envelope as JSON, for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

const (
	textContentLength = 300
	compactWords      = 16
)

// WriteSearchEnvelope writes a search envelope to w in the given format.
// Unknown formats are treated as text.
func WriteSearchEnvelope(w io.Writer, env *models.SearchEnvelope, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, env)
	case OutputCompact:
		writeCompact(w, env)
		return nil
	default:
		writeText(w, env)
		return nil
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeText(w io.Writer, env *models.SearchEnvelope) {
	if !env.Success {
		fmt.Fprintf(w, "\nSearch failed: %s\n%s\n", env.Error, env.AnswerText)
		return
	}
	fmt.Fprintf(w, "\n%s\n", env.AnswerText)
	if env.Analysis != nil {
		WriteAnalysis(w, env.Analysis)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", env.TotalResults, env.QueryTime)
	for i, r := range env.Results {
		writeOneResult(w, i+1, r)
	}
}

func writeOneResult(w io.Writer, rank int, r *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%s] Rank: %d | Similarity: %.4f\n", r.Source, rank, r.Similarity)
	fmt.Fprintf(w, "%s %s %s | %s\n", r.Ticker, r.DocKind, r.FilingDate, r.DocTitle)
	if r.SectionTitle != "" {
		fmt.Fprintf(w, "Section: %s\n", r.SectionTitle)
	}
	fmt.Fprintf(w, "\n%s\n", utils.Truncate(r.SectionText, textContentLength))
	fmt.Fprintln(w)
}

func writeCompact(w io.Writer, env *models.SearchEnvelope) {
	if !env.Success {
		fmt.Fprintf(w, "error: %s\n", env.Error)
		return
	}
	for i, r := range env.Results {
		text := TruncateWords(strings.Join(strings.Fields(r.SectionText), " "), compactWords)
		fmt.Fprintf(w, "%d. [%.4f] %s %s %s | %s | %s\n",
			i+1, r.Similarity, r.Ticker, r.DocKind, r.FilingDate, r.SectionTitle, text)
	}
}

// WriteAnalysis writes the detected tickers, intent and concepts of q.
func WriteAnalysis(w io.Writer, q *models.StructuredQuery) {
	fmt.Fprintf(w, "Intent: %s\n", q.Intent)
	fmt.Fprintf(w, "Tickers: %s\n", orNone(q.Entities))
	fmt.Fprintf(w, "Concepts: %s\n", orNone(q.Concepts))
}

// WritePrompts writes a numbered list of prompts.
func WritePrompts(w io.Writer, prompts []string) {
	for i, p := range prompts {
		fmt.Fprintf(w, "%d. %s\n", i+1, p)
	}
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
