// Package search provides the hybrid (semantic + keyword) search coordinator over
// filing sections, plus semantic search over company overviews and metric facts.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/marketiq/internal/config"
	"github.com/hyperjump/marketiq/internal/models"
	"github.com/hyperjump/marketiq/internal/storage"
	"github.com/hyperjump/marketiq/internal/vector"
)

// DefaultKeywordScore is the similarity given to keyword-only hits.
const DefaultKeywordScore = 0.5

// Engine runs hybrid search. It holds no state between calls.
type Engine struct {
	storage       storage.Storage
	store         *vector.Store
	keywordScore  float64
	snippetLength int
	logger        *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine. cfg may be nil to use defaults.
func NewEngine(st storage.Storage, store *vector.Store, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		storage:       st,
		store:         store,
		keywordScore:  DefaultKeywordScore,
		snippetLength: DefaultSnippetLength,
		logger:        zap.NewNop(),
	}
	if cfg != nil {
		if cfg.KeywordScore > 0 {
			e.keywordScore = cfg.KeywordScore
		}
		if cfg.SnippetLength > 0 {
			e.snippetLength = cfg.SnippetLength
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns up to topK sections relevant to query within filter. The semantic
// branch and the keyword scan run concurrently, each fetching 2*topK candidates;
// see Merge for how they are combined. topK <= 0 returns an empty list without
// calling the embedder.
func (e *Engine) Search(ctx context.Context, query string, filter models.Filter, topK int) ([]*models.SearchResult, error) {
	if topK <= 0 {
		return []*models.SearchResult{}, nil
	}
	if strings.TrimSpace(query) == "" {
		return nil, models.ErrEmptyQuery
	}
	candidates := 2 * topK

	var (
		semanticResults []*models.SearchResult
		keywordResults  []*models.SearchResult
		errChan         = make(chan error, 2)
		wg              sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results, err := e.semantic(ctx, query, filter, candidates)
		if err != nil {
			errChan <- fmt.Errorf("semantic search failed: %w", err)
			return
		}
		semanticResults = results
	}()
	go func() {
		defer wg.Done()
		results, err := e.keyword(ctx, query, filter, candidates)
		if err != nil {
			errChan <- fmt.Errorf("keyword search failed: %w", err)
			return
		}
		keywordResults = results
	}()

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	merged := Merge(semanticResults, keywordResults, topK)
	e.logger.Debug("hybrid search",
		zap.String("query", query),
		zap.Int("semantic", len(semanticResults)),
		zap.Int("keyword", len(keywordResults)),
		zap.Int("returned", len(merged)))
	return merged, nil
}

func (e *Engine) semantic(ctx context.Context, query string, filter models.Filter, limit int) ([]*models.SearchResult, error) {
	vec, err := e.store.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	sections, err := e.store.Sections(ctx, filter)
	if err != nil {
		return nil, err
	}
	ranked := vector.Rank(vec, sections, func(s *models.SectionEmbedding) []float32 { return s.Vector }, limit)
	results := make([]*models.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		s := r.Item
		results = append(results, &models.SearchResult{
			SourceID:     s.SourceID,
			DocumentID:   s.DocumentID,
			Ticker:       s.Ticker,
			DocKind:      s.DocumentKind,
			DocTitle:     s.DocumentTitle,
			FilingDate:   s.FilingDate,
			SectionTitle: s.Label,
			SectionText:  s.Text,
			Similarity:   clampScore(r.Score),
			Source:       models.SourceSemantic,
		})
	}
	return results, nil
}

func (e *Engine) keyword(ctx context.Context, query string, filter models.Filter, limit int) ([]*models.SearchResult, error) {
	docs, err := e.storage.KeywordSearch(ctx, query, filter, limit)
	if err != nil {
		return nil, err
	}
	results := make([]*models.SearchResult, 0, len(docs))
	for _, d := range docs {
		results = append(results, &models.SearchResult{
			DocumentID:   d.ID,
			Ticker:       d.Ticker,
			DocKind:      d.Kind,
			DocTitle:     d.Title,
			FilingDate:   d.FilingDate,
			SectionTitle: models.KeywordMatchTitle,
			SectionText:  GenerateSnippet(d.Content, query, e.snippetLength),
			Similarity:   e.keywordScore,
			Source:       models.SourceKeyword,
		})
	}
	return results, nil
}

// SearchCompanies ranks company overview embeddings against query, optionally for one ticker.
func (e *Engine) SearchCompanies(ctx context.Context, query, ticker string, topK int) ([]*models.EmbeddingHit, error) {
	return e.rankRecords(ctx, query, topK, func(ctx context.Context) ([]*models.EmbeddingRecord, error) {
		return e.store.Entities(ctx, ticker)
	})
}

// SearchMetrics ranks metric fact embeddings against query, optionally for one ticker.
func (e *Engine) SearchMetrics(ctx context.Context, query, ticker string, topK int) ([]*models.EmbeddingHit, error) {
	return e.rankRecords(ctx, query, topK, func(ctx context.Context) ([]*models.EmbeddingRecord, error) {
		return e.store.Metrics(ctx, ticker)
	})
}

func (e *Engine) rankRecords(ctx context.Context, query string, topK int, load func(context.Context) ([]*models.EmbeddingRecord, error)) ([]*models.EmbeddingHit, error) {
	if topK <= 0 {
		return []*models.EmbeddingHit{}, nil
	}
	if strings.TrimSpace(query) == "" {
		return nil, models.ErrEmptyQuery
	}
	vec, err := e.store.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	records, err := load(ctx)
	if err != nil {
		return nil, err
	}
	ranked := vector.Rank(vec, records, func(r *models.EmbeddingRecord) []float32 { return r.Vector }, topK)
	hits := make([]*models.EmbeddingHit, 0, len(ranked))
	for _, r := range ranked {
		hits = append(hits, &models.EmbeddingHit{EmbeddingRecord: *r.Item, Similarity: clampScore(r.Score)})
	}
	return hits, nil
}
