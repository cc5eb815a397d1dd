// Package analyzer turns raw query text into a StructuredQuery: stemmed tokens,
// detected entity codes, a single intent and any number of concept tags.
package analyzer

import (
	"fmt"
	"strings"

	"github.com/hyperjump/marketiq/internal/models"
)

type compiledRule struct {
	intent models.Intent
	stems  map[string]bool
}

type compiledConcept struct {
	name  string
	stems map[string]bool
}

// Analyzer classifies queries against fixed tables. It is safe for concurrent use.
type Analyzer struct {
	entities []string
	rules    []compiledRule
	concepts []compiledConcept
	query    *pipeline
}

// New compiles tables into an Analyzer. Keywords are reduced with the same stemmer
// as query text so that inflected forms match.
func New(tables Tables) (*Analyzer, error) {
	var keywords []string
	for _, r := range tables.IntentRules {
		keywords = append(keywords, r.Keywords...)
	}
	for _, c := range tables.Concepts {
		keywords = append(keywords, c.Synonyms...)
	}
	for i, k := range keywords {
		keywords[i] = strings.ToLower(k)
	}

	query, err := newPipeline(true, keywords)
	if err != nil {
		return nil, fmt.Errorf("build query pipeline: %w", err)
	}
	// Keywords never go through stop-word removal.
	stemmer, err := newPipeline(false, nil)
	if err != nil {
		return nil, fmt.Errorf("build keyword pipeline: %w", err)
	}

	a := &Analyzer{
		entities: append([]string(nil), tables.KnownEntities...),
		query:    query,
	}
	for _, r := range tables.IntentRules {
		a.rules = append(a.rules, compiledRule{intent: r.Intent, stems: stemSet(stemmer, r.Keywords)})
	}
	for _, c := range tables.Concepts {
		a.concepts = append(a.concepts, compiledConcept{name: c.Name, stems: stemSet(stemmer, c.Synonyms)})
	}
	return a, nil
}

func stemSet(p *pipeline, words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		for _, t := range p.terms(w) {
			set[t] = true
		}
	}
	return set
}

// Analyze is a pure function of raw and the analyzer's tables.
func (a *Analyzer) Analyze(raw string) *models.StructuredQuery {
	tokens := a.query.terms(raw)
	present := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		present[t] = true
	}

	q := &models.StructuredQuery{
		Original: raw,
		Tokens:   tokens,
		Entities: []string{},
		Intent:   models.IntentGeneralInfo,
		Concepts: []string{},
	}
	// Codes are matched case-sensitively against the untouched text.
	for _, code := range a.entities {
		if code != "" && strings.Contains(raw, code) {
			q.Entities = append(q.Entities, code)
		}
	}
	for _, r := range a.rules {
		if intersects(present, r.stems) {
			q.Intent = r.intent
			break
		}
	}
	for _, c := range a.concepts {
		if intersects(present, c.stems) {
			q.Concepts = append(q.Concepts, c.name)
		}
	}
	return q
}

// KnownEntities returns the entity codes the analyzer detects, in reference order.
func (a *Analyzer) KnownEntities() []string {
	return append([]string(nil), a.entities...)
}

func intersects(tokens, keywords map[string]bool) bool {
	for k := range keywords {
		if tokens[k] {
			return true
		}
	}
	return false
}
