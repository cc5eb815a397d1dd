package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/marketiq/internal/embedding"
	"github.com/hyperjump/marketiq/internal/extract"
	"github.com/hyperjump/marketiq/internal/models"
	"github.com/hyperjump/marketiq/internal/storage"
	"github.com/hyperjump/marketiq/internal/vector"
)

// poisonEmbedder refuses any text containing POISON.
type poisonEmbedder struct {
	*embedding.MockEmbedder
}

func (p poisonEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "POISON") {
		return nil, fmt.Errorf("%w: rejected", embedding.ErrEmbeddingFailure)
	}
	return p.MockEmbedder.Embed(ctx, text)
}

func testIndexer(t *testing.T, e embedding.Embedder) (*Indexer, *storage.SQLiteStorage, *vector.Store) {
	t.Helper()
	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	if e == nil {
		e = embedding.NewMockEmbedder(32)
	}
	store := vector.NewStore(db, e)
	require.NoError(t, store.Initialize(context.Background()))
	return NewIndexer(db, store, extract.NewExtractor(), WithWorkers(2)), db, store
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".PDF", []string{"pdf"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
		{".bin", nil, true},
	}
	for _, tt := range tests {
		if got := ExtensionAllowed(tt.ext, tt.allowed); got != tt.want {
			t.Errorf("ExtensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func TestParseFilingName(t *testing.T) {
	tests := []struct {
		path    string
		want    FilingMeta
		wantErr bool
	}{
		{"/in/TNET_10-K_2023-02-10_Annual_Report.pdf", FilingMeta{"TNET", "10-K", "2023-02-10", "Annual Report"}, false},
		{"adp_10-Q_2023-05-01.txt", FilingMeta{"ADP", "10-Q", "2023-05-01", ""}, false},
		{"notes.txt", FilingMeta{}, true},
		{"TNET_10-K_Feb2023.txt", FilingMeta{}, true},
		{"_10-K_2023-02-10.txt", FilingMeta{}, true},
	}
	for _, tt := range tests {
		got, err := ParseFilingName(tt.path)
		if tt.wantErr {
			assert.Error(t, err, tt.path)
			continue
		}
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestIndexer_IndexDocument(t *testing.T) {
	idx, db, store := testIndexer(t, nil)
	ctx := context.Background()

	doc, stats, err := idx.IndexDocument(ctx, &models.DocumentInput{
		Ticker:     "tnet",
		Kind:       "10-K",
		Content:    "RISK FACTORS\r\n\r\nCompetition is intense.\r\n\r\nLIQUIDITY\r\n\r\nCash is ample.",
		FilingDate: "2023-02-10",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "TNET", doc.Ticker)
	assert.Equal(t, "TNET 10-K 2023-02-10", doc.Title)
	assert.Equal(t, Stats{Documents: 1, Sections: 2}, stats)

	stored, err := db.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.Content, "\r")

	sections, err := store.Sections(ctx, models.Filter{})
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, doc.ID+"#0", sections[0].SourceID)
	assert.Equal(t, "RISK FACTORS", sections[0].Label)
	assert.Equal(t, "Cash is ample.", sections[1].Text)

	_, _, err = idx.IndexDocument(ctx, &models.DocumentInput{Kind: "10-K", Content: "x"})
	assert.True(t, errors.Is(err, ErrInvalidDocument))
}

func TestIndexer_ImportFile(t *testing.T) {
	idx, _, _ := testIndexer(t, nil)
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "TNET_10-K_2023-02-10_Annual_Report.txt", "Revenue grew.\n\nMargins held.")

	doc, created, err := idx.ImportFile(ctx, path, FilingMeta{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "TNET", doc.Ticker)
	assert.Equal(t, "10-K", doc.Kind)
	assert.Equal(t, "2023-02-10", doc.FilingDate)
	assert.Equal(t, "Annual Report", doc.Title)

	again, created, err := idx.ImportFile(ctx, path, FilingMeta{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, doc.ID, again.ID)

	other := writeFile(t, dir, "report.txt", "Body")
	_, _, err = idx.ImportFile(ctx, other, FilingMeta{})
	assert.Error(t, err, "name without metadata must be rejected")

	doc, created, err = idx.ImportFile(ctx, other, FilingMeta{Ticker: "ADP", Kind: "8-K"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ADP 8-K", doc.Title)

	_, _, err = idx.ImportFile(ctx, dir, FilingMeta{Ticker: "ADP", Kind: "8-K"})
	assert.Error(t, err, "directories are not files")
}

func TestIndexer_ImportDirectoryAndVectorize(t *testing.T) {
	idx, _, store := testIndexer(t, nil)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "q"), 0700))
	writeFile(t, dir, "TNET_10-K_2023-02-10.txt", "OVERVIEW\n\nTriNet serves SMBs.\n\nRISKS\n\nRegulation.")
	writeFile(t, filepath.Join(dir, "q"), "ADP_10-Q_2023-05-01.md", "Payroll revenue rose.")
	writeFile(t, dir, "notes.txt", "not a filing")
	writeFile(t, dir, "TNET_10-K_2023-02-10.bin", "ignored extension")

	docs, err := idx.ImportDirectory(ctx, dir, []string{".txt", ".md"})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	stats, err := idx.VectorizeDocuments(ctx, VectorizeOptions{OnlyNew: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 3, stats.Sections)
	n, err := store.Count(ctx, models.SourceSection)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	stats, err = idx.VectorizeDocuments(ctx, VectorizeOptions{OnlyNew: true})
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats, "already embedded documents are skipped")

	stats, err = idx.VectorizeDocuments(ctx, VectorizeOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)

	_, err = idx.ImportDirectory(ctx, filepath.Join(dir, "missing"), nil)
	assert.Error(t, err)
}

func TestIndexer_ImportAndVectorize(t *testing.T) {
	idx, _, store := testIndexer(t, nil)
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "PAYX_8-K_2024-01-05.txt", "PAYX announced a dividend.\n\nGUIDANCE\n\nRevenue outlook raised.")

	stats, err := idx.ImportAndVectorize(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 2, stats.Sections)

	stats, err = idx.ImportAndVectorize(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats, "re-import must not embed twice")
	n, err := store.Count(ctx, models.SourceSection)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestIndexer_VectorizeSkipsEmbeddingFailures(t *testing.T) {
	idx, _, _ := testIndexer(t, poisonEmbedder{embedding.NewMockEmbedder(32)})
	doc := &models.Document{ID: "d1", Ticker: "TNET", Kind: "10-K", Title: "T",
		Content: "Good para.\n\nINTRO:\n\nPOISON text here."}

	stats, err := idx.VectorizeDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, Stats{Documents: 1, Sections: 1, Skipped: 1}, stats)
}

func TestIndexer_VectorizePropagatesStorageErrors(t *testing.T) {
	idx, db, _ := testIndexer(t, nil)
	require.NoError(t, db.Close())
	doc := &models.Document{ID: "d1", Ticker: "TNET", Kind: "10-K", Title: "T", Content: "Body."}

	_, err := idx.VectorizeDocument(context.Background(), doc)
	assert.True(t, errors.Is(err, storage.ErrUnavailable), "got %v", err)
}

func writeWorkbook(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Companies"))
	rows := [][]interface{}{
		{"Ticker", "Name", "Industry", "Sector", "Description", "Market Cap"},
		{"tnet", "TriNet", "Staffing", "Industrials", "PEO for SMBs.", "$5B"},
		{"", "No ticker"},
	}
	for i, r := range rows {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Companies", cellRef, &r))
	}
	_, err := f.NewSheet("Metrics")
	require.NoError(t, err)
	metrics := [][]interface{}{
		{"ticker", "metric_name", "period", "value"},
		{"TNET", "Revenue", "FY2023", "$4.9B"},
		{"TNET", "Revenue", "FY2023", "$4.9B"},
		{"ADP", "Revenue", "FY2023", "$18B"},
		{"ADP", "Net Margin", "FY2023"},
	}
	for i, r := range metrics {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Metrics", cellRef, &r))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestIndexer_ImportWorkbookAndVectorizeCompanies(t *testing.T) {
	idx, db, store := testIndexer(t, nil)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "companies.xlsx")
	writeWorkbook(t, path)

	stats, err := idx.ImportWorkbook(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, WorkbookStats{Companies: 1, Metrics: 2}, stats)

	c, err := db.GetCompany(ctx, "TNET")
	require.NoError(t, err)
	assert.Equal(t, "TriNet", c.Name)
	assert.Equal(t, "$5B", c.MarketCap)

	stats, err = idx.ImportWorkbook(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, WorkbookStats{Companies: 1, Metrics: 0}, stats, "metrics are not duplicated")

	vs, err := idx.VectorizeCompanies(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Companies: 1, Metrics: 2}, vs)

	entities, err := store.Entities(ctx, "TNET")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Contains(t, entities[0].Text, "TriNet (TNET) is a company in the Staffing industry")

	vs, err = idx.VectorizeCompanies(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, vs)

	_, err = idx.ImportWorkbook(ctx, filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)
}
