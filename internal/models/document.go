// Package models defines core data structures for filings, companies, embeddings, queries, and search results.
package models

import "time"

// Document is an ingested filing or report. Documents are immutable once stored.
type Document struct {
	ID         string    `json:"id" db:"id"`
	Ticker     string    `json:"ticker" db:"ticker"`
	Kind       string    `json:"doc_type" db:"doc_type"`
	Title      string    `json:"title" db:"title"`
	Content    string    `json:"content" db:"content"`
	FilingDate string    `json:"filing_date" db:"filing_date"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for creating a document through the API.
type DocumentInput struct {
	ID         string `json:"id,omitempty"`
	Ticker     string `json:"ticker"`
	Kind       string `json:"doc_type"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content"`
	FilingDate string `json:"filing_date,omitempty"`
}

// Company is a tracked entity, keyed by ticker.
type Company struct {
	Ticker      string `json:"ticker" db:"ticker"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	Industry    string `json:"industry,omitempty" db:"industry"`
	Sector      string `json:"sector,omitempty" db:"sector"`
	MarketCap   string `json:"market_cap,omitempty" db:"market_cap"`
}

// Overview is the text embedded for an entity-overview record.
func (c *Company) Overview() string {
	return c.Name + " (" + c.Ticker + ") is a company in the " + c.Industry +
		" industry within the " + c.Sector + " sector. " + c.Description
}

// MetricFact is a single reported value for one company and period.
type MetricFact struct {
	ID         int64  `json:"id" db:"id"`
	Ticker     string `json:"ticker" db:"ticker"`
	MetricName string `json:"metric_name" db:"metric_name"`
	Period     string `json:"period" db:"period"`
	Value      string `json:"value" db:"value"`
}

// Text is the sentence embedded for a metric-fact record.
func (m *MetricFact) Text() string {
	return m.Ticker + " " + m.MetricName + " for " + m.Period + ": " + m.Value
}

// Section is a titled slice of a document produced by segmentation.
type Section struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Content string `json:"content"`
}
