// Package answer turns a structured query into a short templated answer drawn from a
// per-company facts table. It is a rule table, not a language model.
package answer

import (
	"fmt"

	"github.com/hyperjump/marketiq/internal/config"
	"github.com/hyperjump/marketiq/internal/models"
)

// FallbackAnswer is returned when no rule matches.
const FallbackAnswer = "Based on the available data in the knowledge base, I can provide insights " +
	"about the companies and metrics you're asking about."

// Synthesizer answers queries from a fixed facts table. It is safe for concurrent use.
type Synthesizer struct {
	facts map[string]config.FinancialFacts
}

// New returns a synthesizer over a copy of knowledge, keyed by ticker.
func New(knowledge map[string]config.FinancialFacts) *Synthesizer {
	facts := make(map[string]config.FinancialFacts, len(knowledge))
	for k, v := range knowledge {
		facts[k] = v
	}
	return &Synthesizer{facts: facts}
}

type rule func(s *Synthesizer, q *models.StructuredQuery) (string, bool)

// rules are evaluated in order; the first match wins.
var rules = []rule{
	(*Synthesizer).revenueGrowth,
	(*Synthesizer).comparison,
	(*Synthesizer).profitability,
}

// Synthesize returns the answer of the first matching rule, or FallbackAnswer.
func (s *Synthesizer) Synthesize(q *models.StructuredQuery) string {
	if q == nil {
		return FallbackAnswer
	}
	for _, r := range rules {
		if text, ok := r(s, q); ok {
			return text
		}
	}
	return FallbackAnswer
}

// Facts returns the figures held for ticker.
func (s *Synthesizer) Facts(ticker string) (config.FinancialFacts, bool) {
	f, ok := s.facts[ticker]
	return f, ok
}

// known returns the detected entities that have facts, in detection order.
func (s *Synthesizer) known(q *models.StructuredQuery) []string {
	var out []string
	for _, e := range q.Entities {
		if _, ok := s.facts[e]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (s *Synthesizer) revenueGrowth(q *models.StructuredQuery) (string, bool) {
	known := s.known(q)
	if len(known) == 0 || !q.HasConcept("revenue") || !q.HasConcept("growth") {
		return "", false
	}
	t := known[0]
	return fmt.Sprintf("Based on the latest data, %s's revenue growth is approximately %s year-over-year.",
		t, pct(s.facts[t].RevenueGrowth)), true
}

func (s *Synthesizer) comparison(q *models.StructuredQuery) (string, bool) {
	known := s.known(q)
	if q.Intent != models.IntentComparison || len(known) < 2 {
		return "", false
	}
	a, b := known[0], known[1]
	fa, fb := s.facts[a], s.facts[b]

	growth, other := a, b
	if fb.RevenueGrowth > fa.RevenueGrowth {
		growth, other = b, a
	}
	growthClause := fmt.Sprintf("%s has higher revenue growth (%s vs %s)", growth,
		pct(s.facts[growth].RevenueGrowth), pct(s.facts[other].RevenueGrowth))

	margin, lower := a, b
	if fb.GrossMargin > fa.GrossMargin {
		margin, lower = b, a
	}
	marginClause := fmt.Sprintf("better profit margins (gross margin: %s vs %s)",
		pct(s.facts[margin].GrossMargin), pct(s.facts[lower].GrossMargin))

	if margin == growth {
		return fmt.Sprintf("Comparing %s and %s: %s and %s.", a, b, growthClause, marginClause), true
	}
	return fmt.Sprintf("Comparing %s and %s: %s, while %s has %s.", a, b, growthClause, margin, marginClause), true
}

func (s *Synthesizer) profitability(q *models.StructuredQuery) (string, bool) {
	known := s.known(q)
	if len(known) == 0 || !q.HasConcept("profit") {
		return "", false
	}
	t := known[0]
	f := s.facts[t]
	return fmt.Sprintf("%s's profitability metrics show a gross margin of %s, operating margin of %s, and net margin of %s.",
		t, pct(f.GrossMargin), pct(f.OperatingMargin), pct(f.NetMargin)), true
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
