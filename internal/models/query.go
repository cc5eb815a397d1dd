package models

import (
	"encoding/json"
	"errors"
	"strings"
)

// Intent is the single-label classification of a query.
type Intent string

const (
	IntentComparison      Intent = "comparison"
	IntentGrowth          Intent = "growth"
	IntentFinancialMetric Intent = "financial_metric"
	IntentGeneralInfo     Intent = "general_info"
)

// StructuredQuery is the analyzed form of a raw query. Entities follow the
// order of the known-entity list, not the order they appear in the text.
type StructuredQuery struct {
	Original string   `json:"original_query"`
	Tokens   []string `json:"tokens"`
	Entities []string `json:"tickers"`
	Intent   Intent   `json:"intent"`
	Concepts []string `json:"concepts"`
}

// HasEntity reports whether code was detected.
func (q *StructuredQuery) HasEntity(code string) bool {
	for _, e := range q.Entities {
		if e == code {
			return true
		}
	}
	return false
}

// HasConcept reports whether the concept tag was assigned.
func (q *StructuredQuery) HasConcept(name string) bool {
	for _, c := range q.Concepts {
		if c == name {
			return true
		}
	}
	return false
}

// SearchFilters are the filter values as sent by the presentation layer.
// Company and DocumentType carry UI labels ("TNET - TriNet Group", "10-K (Annual Report)");
// Ticker and DocTypes are the already-normalized forms.
type SearchFilters struct {
	Company      string   `json:"company,omitempty"`
	DocumentType string   `json:"document_type,omitempty"`
	Ticker       string   `json:"ticker,omitempty"`
	DocTypes     []string `json:"doc_types,omitempty"`
}

// UnmarshalJSON decodes filters leniently: a value of the wrong type, or a filters
// field that is not an object, means no filter instead of a decode error.
func (f *SearchFilters) UnmarshalJSON(data []byte) error {
	*f = SearchFilters{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	f.Company = stringValue(fields["company"])
	f.DocumentType = stringValue(fields["document_type"])
	f.Ticker = stringValue(fields["ticker"])
	f.DocTypes = stringValues(fields["doc_types"])
	return nil
}

func stringValue(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// stringValues keeps the string elements of a JSON array.
func stringValues(raw json.RawMessage) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

// SearchRequest is a search call from the web or CLI layer.
// A nil TopK means the configured default.
type SearchRequest struct {
	Query   string        `json:"query"`
	Filters SearchFilters `json:"filters"`
	TopK    *int          `json:"top_k,omitempty"`
}

// ErrEmptyQuery is returned when a search request has no query text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Validate trims the query and rejects empty ones.
func (r *SearchRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return ErrEmptyQuery
	}
	return nil
}

// EffectiveTopK resolves the requested result count: nil means def, values above
// max are capped, and negative values become 0.
func (r *SearchRequest) EffectiveTopK(def, max int) int {
	if r.TopK == nil {
		return def
	}
	k := *r.TopK
	if k < 0 {
		return 0
	}
	if max > 0 && k > max {
		return max
	}
	return k
}
