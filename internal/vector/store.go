package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/marketiq/internal/embedding"
	"github.com/hyperjump/marketiq/internal/models"
	"github.com/hyperjump/marketiq/internal/storage"
)

// Store computes embeddings and persists them through an EmbeddingRepository.
// It keeps no vectors in memory: every read goes to the repository.
type Store struct {
	repo     storage.EmbeddingRepository
	embedder embedding.Embedder
	logger   *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore returns a Store over repo using embedder.
func NewStore(repo storage.EmbeddingRepository, embedder embedding.Embedder, opts ...StoreOption) *Store {
	s := &Store{repo: repo, embedder: embedder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize ensures the embedding tables exist. Safe to call on every startup.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.repo.InitEmbeddingSchema(ctx); err != nil {
		return fmt.Errorf("initialize embedding store: %w", err)
	}
	return nil
}

// Embedder returns the embedding function used by the store.
func (s *Store) Embedder() embedding.Embedder {
	return s.embedder
}

// EmbedQuery embeds text for ranking.
func (s *Store) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, wrapFailure(err)
	}
	return vec, nil
}

// EmbedAndStore computes the vector for rec.Text and appends rec. Empty text, a model
// error, or output of the wrong length fail with embedding.ErrEmbeddingFailure.
func (s *Store) EmbedAndStore(ctx context.Context, rec *models.EmbeddingRecord) error {
	if !rec.Kind.Valid() {
		return fmt.Errorf("embed and store: unknown source kind %q", rec.Kind)
	}
	if strings.TrimSpace(rec.Text) == "" {
		return fmt.Errorf("%s %s: %w: empty text", rec.Kind, rec.SourceID, embedding.ErrEmbeddingFailure)
	}
	vec, err := s.embedder.Embed(ctx, rec.Text)
	if err != nil {
		return fmt.Errorf("%s %s: %w", rec.Kind, rec.SourceID, wrapFailure(err))
	}
	if dims := s.embedder.Dimensions(); dims > 0 && len(vec) != dims {
		return fmt.Errorf("%s %s: %w: got %d dimensions, want %d",
			rec.Kind, rec.SourceID, embedding.ErrEmbeddingFailure, len(vec), dims)
	}
	rec.Vector = vec
	if err := s.repo.InsertEmbedding(ctx, rec); err != nil {
		return err
	}
	s.logger.Debug("embedding stored",
		zap.String("kind", string(rec.Kind)),
		zap.String("source_id", rec.SourceID),
		zap.String("ticker", rec.Ticker))
	return nil
}

// Sections returns section candidates restricted by filter.
func (s *Store) Sections(ctx context.Context, filter models.Filter) ([]*models.SectionEmbedding, error) {
	return s.repo.SectionEmbeddings(ctx, filter)
}

// Entities returns entity-overview candidates, optionally for one ticker.
func (s *Store) Entities(ctx context.Context, ticker string) ([]*models.EmbeddingRecord, error) {
	return s.repo.EntityEmbeddings(ctx, ticker)
}

// Metrics returns metric-fact candidates, optionally for one ticker.
func (s *Store) Metrics(ctx context.Context, ticker string) ([]*models.EmbeddingRecord, error) {
	return s.repo.MetricEmbeddings(ctx, ticker)
}

// Count returns the number of stored records of kind.
func (s *Store) Count(ctx context.Context, kind models.SourceKind) (int64, error) {
	return s.repo.CountEmbeddings(ctx, kind)
}

// EmbeddedDocuments returns the ids of documents that already have section embeddings.
func (s *Store) EmbeddedDocuments(ctx context.Context) (map[string]bool, error) {
	return s.repo.EmbeddedDocumentIDs(ctx)
}

// wrapFailure makes sure model errors carry ErrEmbeddingFailure. Context
// cancellation is passed through unchanged.
func wrapFailure(err error) error {
	if errors.Is(err, embedding.ErrEmbeddingFailure) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", embedding.ErrEmbeddingFailure, err)
}
