package search

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/marketiq/internal/config"
	"github.com/hyperjump/marketiq/internal/embedding"
	"github.com/hyperjump/marketiq/internal/indexer"
	"github.com/hyperjump/marketiq/internal/models"
	"github.com/hyperjump/marketiq/internal/storage"
	"github.com/hyperjump/marketiq/internal/vector"
)

type countingEmbedder struct {
	*embedding.MockEmbedder
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.MockEmbedder.Embed(ctx, text)
}

type failingEmbedder struct {
	*embedding.MockEmbedder
}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model offline")
}

type fixture struct {
	db       *storage.SQLiteStorage
	store    *vector.Store
	embedder *countingEmbedder
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	emb := &countingEmbedder{MockEmbedder: embedding.NewMockEmbedder(256)}
	store := vector.NewStore(db, emb)
	require.NoError(t, store.Initialize(ctx))
	idx := indexer.NewIndexer(db, store, nil)

	for _, in := range []*models.DocumentInput{
		{ID: "d1", Ticker: "TNET", Kind: "10-K", FilingDate: "2023-02-10",
			Content: "RISK FACTORS\n\nCybersecurity incidents could disrupt payroll systems.\n\nLIQUIDITY\n\nCash flow remains strong."},
		{ID: "d2", Ticker: "ADP", Kind: "10-K", FilingDate: "2023-08-01",
			Content: "Cybersecurity program overview.\n\nADP invests in security."},
	} {
		_, _, err := idx.IndexDocument(ctx, in)
		require.NoError(t, err)
	}
	// Stored but never vectorized: only the keyword scan can find it.
	require.NoError(t, db.CreateDocument(ctx, &models.Document{
		ID: "d3", Ticker: "TNET", Kind: "10-Q", Title: "TNET Q2", FilingDate: "2023-07-28",
		Content: "Quarterly update: cybersecurity training expanded across staff.",
	}))
	emb.calls.Store(0)

	return &fixture{
		db:       db,
		store:    store,
		embedder: emb,
		engine:   NewEngine(db, store, &config.SearchConfig{KeywordScore: 0.5, SnippetLength: 200}),
	}
}

func assertSortedDesc(t *testing.T, results []*models.SearchResult) {
	t.Helper()
	assert.True(t, sort.SliceIsSorted(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	}), "results must be sorted by similarity")
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, 0.0)
		assert.LessOrEqual(t, r.Similarity, 1.0)
	}
}

func TestEngine_Search(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.engine.Search(ctx, "cybersecurity", models.Filter{}, 5)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 5)
	assertSortedDesc(t, results)
	assert.EqualValues(t, 1, f.embedder.calls.Load(), "query is embedded once")

	var keyword []*models.SearchResult
	for _, r := range results {
		if r.Source == models.SourceKeyword {
			keyword = append(keyword, r)
		}
	}
	require.Len(t, keyword, 1, "keyword hits for documents already found semantically are dropped")
	kw := keyword[0]
	assert.Equal(t, "d3", kw.DocumentID)
	assert.Equal(t, 0.5, kw.Similarity)
	assert.Equal(t, models.KeywordMatchTitle, kw.SectionTitle)
	assert.Equal(t, "10-Q", kw.DocKind)
	assert.Contains(t, strings.ToLower(kw.SectionText), "cybersecurity")

	var semanticDocs []string
	for _, r := range results {
		if r.Source == models.SourceSemantic {
			semanticDocs = append(semanticDocs, r.DocumentID)
			assert.NotEmpty(t, r.SourceID)
			assert.NotEmpty(t, r.FilingDate)
		}
	}
	assert.Contains(t, semanticDocs, "d1")
	assert.Contains(t, semanticDocs, "d2")
}

func TestEngine_SearchFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.engine.Search(ctx, "cybersecurity", models.Filter{Ticker: "ADP"}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "ADP", r.Ticker)
	}

	results, err = f.engine.Search(ctx, "cybersecurity", models.Filter{DocKinds: []string{"10-Q"}}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d3", results[0].DocumentID)
	assert.Equal(t, models.SourceKeyword, results[0].Source)
}

func TestEngine_SearchTopK(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.engine.Search(ctx, "cybersecurity", models.Filter{}, 0)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.EqualValues(t, 0, f.embedder.calls.Load(), "top_k=0 must not embed")

	results, err = f.engine.Search(ctx, "cybersecurity", models.Filter{}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	_, err = f.engine.Search(ctx, "   ", models.Filter{}, 5)
	assert.ErrorIs(t, err, models.ErrEmptyQuery)
}

func TestEngine_SearchErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	broken := NewEngine(f.db, vector.NewStore(f.db, failingEmbedder{embedding.NewMockEmbedder(256)}), nil)
	_, err := broken.Search(ctx, "cybersecurity", models.Filter{}, 5)
	assert.ErrorIs(t, err, embedding.ErrEmbeddingFailure)

	require.NoError(t, f.db.Close())
	_, err = f.engine.Search(ctx, "cybersecurity", models.Filter{}, 5)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestEngine_SearchCompaniesAndMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.UpsertCompany(ctx, &models.Company{Ticker: "TNET", Name: "TriNet",
		Industry: "Professional Services", Sector: "PEO", Description: "TriNet provides HR solutions for small businesses."}))
	require.NoError(t, f.db.UpsertCompany(ctx, &models.Company{Ticker: "ADP", Name: "ADP",
		Industry: "Software", Sector: "Payroll", Description: "ADP provides payroll software."}))
	require.NoError(t, f.db.CreateMetric(ctx, &models.MetricFact{Ticker: "TNET", MetricName: "Revenue", Period: "FY2023", Value: "$4.9B"}))
	require.NoError(t, f.db.CreateMetric(ctx, &models.MetricFact{Ticker: "ADP", MetricName: "Revenue", Period: "FY2023", Value: "$18B"}))
	_, err := indexer.NewIndexer(f.db, f.store, nil).VectorizeCompanies(ctx)
	require.NoError(t, err)

	hits, err := f.engine.SearchCompanies(ctx, "HR solutions for small businesses", "", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "TNET", hits[0].Ticker)
	assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)

	hits, err = f.engine.SearchMetrics(ctx, "revenue", "ADP", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "$18B", hits[0].Value)
	assert.Equal(t, "FY2023", hits[0].Period)

	hits, err = f.engine.SearchMetrics(ctx, "revenue", "", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
