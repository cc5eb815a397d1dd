package analyzer

import "github.com/hyperjump/marketiq/internal/models"

// IntentRule maps a set of keywords to an intent. Rules are evaluated in order.
type IntentRule struct {
	Intent   models.Intent
	Keywords []string
}

// ConceptCategory is a concept tag and the words that signal it.
type ConceptCategory struct {
	Name     string
	Synonyms []string
}

// Tables are the fixed reference data the analyzer classifies against.
// They are built once at startup and never mutated afterwards.
type Tables struct {
	KnownEntities []string
	IntentRules   []IntentRule
	Concepts      []ConceptCategory
}

// DefaultTables returns the built-in entity codes, intent rules and concept categories.
func DefaultTables() Tables {
	return Tables{
		KnownEntities: []string{"TNET", "ADP", "PAYX", "NSP", "PYCR", "PCTY"},
		IntentRules: []IntentRule{
			{Intent: models.IntentComparison, Keywords: []string{"compare", "versus", "vs", "against", "difference"}},
			{Intent: models.IntentGrowth, Keywords: []string{"growth", "increase", "trend", "change"}},
			{Intent: models.IntentFinancialMetric, Keywords: []string{"revenue", "profit", "margin", "earnings"}},
			{Intent: models.IntentGeneralInfo, Keywords: []string{"what", "how", "when", "where", "why"}},
		},
		Concepts: []ConceptCategory{
			{Name: "revenue", Synonyms: []string{"revenue", "sales", "income", "earnings"}},
			{Name: "growth", Synonyms: []string{"growth", "increase", "expansion", "rise"}},
			{Name: "profit", Synonyms: []string{"profit", "margin", "profitability", "earnings"}},
			{Name: "comparison", Synonyms: []string{"compare", "versus", "vs", "against"}},
			{Name: "performance", Synonyms: []string{"performance", "metrics", "kpi", "indicators"}},
		},
	}
}

// WithEntities returns a copy of t using codes as the known entity list.
func (t Tables) WithEntities(codes []string) Tables {
	t.KnownEntities = append([]string(nil), codes...)
	return t
}
