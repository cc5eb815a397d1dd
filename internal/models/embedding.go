package models

import "time"

// SourceKind names what an embedding record was computed from.
type SourceKind string

const (
	SourceSection        SourceKind = "section"
	SourceEntityOverview SourceKind = "entity-overview"
	SourceMetricFact     SourceKind = "metric-fact"
)

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceSection, SourceEntityOverview, SourceMetricFact:
		return true
	}
	return false
}

// EmbeddingRecord is one stored vector. Records are append-only.
// DocumentID is set for sections; Period and Value only for metric facts.
// Label holds the section title, the entity info type, or the metric name.
type EmbeddingRecord struct {
	ID         int64      `json:"id"`
	Kind       SourceKind `json:"source_kind"`
	SourceID   string     `json:"source_id"`
	Ticker     string     `json:"ticker"`
	DocumentID string     `json:"document_id,omitempty"`
	Label      string     `json:"label,omitempty"`
	Period     string     `json:"period,omitempty"`
	Value      string     `json:"value,omitempty"`
	Text       string     `json:"text"`
	Vector     []float32  `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SectionEmbedding is a section record joined with its owning document.
type SectionEmbedding struct {
	EmbeddingRecord
	DocumentKind  string `json:"doc_type"`
	DocumentTitle string `json:"doc_title"`
	FilingDate    string `json:"filing_date"`
}

// EmbeddingHit is a ranked entity-overview or metric-fact record.
type EmbeddingHit struct {
	EmbeddingRecord
	Similarity float64 `json:"similarity"`
}

// Filter restricts a search to one ticker and/or a set of document kinds.
// Zero values mean no restriction.
type Filter struct {
	Ticker   string   `json:"ticker,omitempty"`
	DocKinds []string `json:"doc_types,omitempty"`
}

// IsZero reports whether the filter restricts nothing.
func (f Filter) IsZero() bool {
	return f.Ticker == "" && len(f.DocKinds) == 0
}
