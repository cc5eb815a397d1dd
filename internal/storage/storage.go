// Package storage defines the persistence interface for filings, companies, metrics, and embeddings.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/marketiq/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable wraps connection and query failures of the backing store.
	ErrUnavailable = errors.New("storage unavailable")
)

// Storage defines document, company, metric and embedding persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, filter models.Filter, offset, limit int) ([]*models.Document, error)
	KeywordSearch(ctx context.Context, query string, filter models.Filter, limit int) ([]*models.Document, error)

	// Company and metric operations
	UpsertCompany(ctx context.Context, c *models.Company) error
	GetCompany(ctx context.Context, ticker string) (*models.Company, error)
	ListCompanies(ctx context.Context) ([]*models.Company, error)
	CreateMetric(ctx context.Context, m *models.MetricFact) error
	ListMetrics(ctx context.Context, ticker string) ([]*models.MetricFact, error)

	EmbeddingRepository

	// Stats
	CountDocuments(ctx context.Context) (int64, error)

	Close() error
}

// EmbeddingRepository persists embedding records for the three source kinds.
type EmbeddingRepository interface {
	InitEmbeddingSchema(ctx context.Context) error
	InsertEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error
	SectionEmbeddings(ctx context.Context, filter models.Filter) ([]*models.SectionEmbedding, error)
	EntityEmbeddings(ctx context.Context, ticker string) ([]*models.EmbeddingRecord, error)
	MetricEmbeddings(ctx context.Context, ticker string) ([]*models.EmbeddingRecord, error)
	CountEmbeddings(ctx context.Context, kind models.SourceKind) (int64, error)
	EmbeddedDocumentIDs(ctx context.Context) (map[string]bool, error)
}
