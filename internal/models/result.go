package models

// ResultSource says which branch of hybrid search produced a result.
type ResultSource string

const (
	SourceSemantic ResultSource = "semantic"
	SourceKeyword  ResultSource = "keyword"
)

// KeywordMatchTitle is the section title given to keyword-only hits.
const KeywordMatchTitle = "Keyword Match"

// SearchResult is one ranked section (or keyword snippet) of a filing.
type SearchResult struct {
	SourceID     string       `json:"source_id"`
	DocumentID   string       `json:"doc_id"`
	Ticker       string       `json:"ticker"`
	DocKind      string       `json:"doc_type"`
	DocTitle     string       `json:"title"`
	FilingDate   string       `json:"filing_date"`
	SectionTitle string       `json:"section_title"`
	SectionText  string       `json:"content"`
	Similarity   float64      `json:"similarity"`
	Source       ResultSource `json:"source"`
}

// SearchEnvelope is the response of the assistant search entry point.
// Results is never nil so that it always serializes as a JSON array.
type SearchEnvelope struct {
	Success      bool             `json:"success"`
	Query        string           `json:"query"`
	Error        string           `json:"error,omitempty"`
	AnswerText   string           `json:"ai_answer"`
	Analysis     *StructuredQuery `json:"analysis,omitempty"`
	Results      []*SearchResult  `json:"documents"`
	TotalResults int              `json:"total_results"`
	QueryTime    int64            `json:"query_time_ms"`
}
