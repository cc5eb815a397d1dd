// Package indexer imports filings and company data into storage and turns them into
// embedding records: document sections, entity overviews and metric facts.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/marketiq/internal/extract"
	"github.com/hyperjump/marketiq/internal/fileid"
	"github.com/hyperjump/marketiq/internal/models"
	"github.com/hyperjump/marketiq/internal/storage"
	"github.com/hyperjump/marketiq/internal/vector"
)

// ErrInvalidDocument is returned when a document lacks a ticker, kind, or content.
var ErrInvalidDocument = errors.New("invalid document")

// Indexer imports documents and vectorizes them.
type Indexer struct {
	storage   storage.Storage
	store     *vector.Store
	segmenter *Segmenter
	extractor *extract.Extractor
	workers   int
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for import and vectorization events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithWorkers sets the number of concurrent embedding workers.
func WithWorkers(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// WithSectionBudget sets the character budget of one section.
func WithSectionBudget(budget int) IndexerOption {
	return func(idx *Indexer) { idx.segmenter = NewSegmenter(budget) }
}

// NewIndexer creates an indexer. extractor may be nil; files are then read as plain text.
func NewIndexer(st storage.Storage, store *vector.Store, extractor *extract.Extractor, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		storage:   st,
		store:     store,
		segmenter: NewSegmenter(DefaultSectionBudget),
		extractor: extractor,
		workers:   4,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexDocument stores input as a new document and embeds its sections.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, Stats, error) {
	doc, err := idx.storeDocument(ctx, input)
	if err != nil {
		return nil, Stats{}, err
	}
	stats, err := idx.VectorizeDocument(ctx, doc)
	return doc, stats, err
}

func (idx *Indexer) storeDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	ticker := strings.ToUpper(strings.TrimSpace(input.Ticker))
	content := Preprocess(input.Content)
	if ticker == "" || strings.TrimSpace(input.Kind) == "" || content == "" {
		return nil, fmt.Errorf("%w: ticker, doc_type and content are required", ErrInvalidDocument)
	}
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	title := input.Title
	if title == "" {
		title = strings.TrimSpace(ticker + " " + input.Kind + " " + input.FilingDate)
	}
	doc := &models.Document{
		ID:         input.ID,
		Ticker:     ticker,
		Kind:       strings.TrimSpace(input.Kind),
		Title:      title,
		Content:    content,
		FilingDate: input.FilingDate,
	}
	if err := idx.storage.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	idx.logger.Debug("document stored",
		zap.String("id", doc.ID), zap.String("ticker", doc.Ticker), zap.String("doc_type", doc.Kind))
	return doc, nil
}

// FilingMeta is the metadata of a filing read from disk.
type FilingMeta struct {
	Ticker     string
	Kind       string
	FilingDate string
	Title      string
}

var filingDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseFilingName reads metadata from a file name of the form
// TICKER_KIND_YYYY-MM-DD[_Title].ext, e.g. "TNET_10-K_2023-02-10_Annual Report.pdf".
func ParseFilingName(path string) (FilingMeta, error) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.SplitN(base, "_", 4)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || !filingDate.MatchString(parts[2]) {
		return FilingMeta{}, fmt.Errorf("file name %q does not match TICKER_KIND_YYYY-MM-DD[_Title]", filepath.Base(path))
	}
	meta := FilingMeta{
		Ticker:     strings.ToUpper(parts[0]),
		Kind:       parts[1],
		FilingDate: parts[2],
	}
	if len(parts) == 4 {
		meta.Title = strings.ReplaceAll(parts[3], "_", " ")
	}
	return meta, nil
}

// ImportFile extracts the filing at path and stores it. Fields left empty in meta are
// read from the file name. Importing the same path twice returns the stored document
// and created=false.
func (idx *Indexer) ImportFile(ctx context.Context, path string, meta FilingMeta) (doc *models.Document, created bool, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, false, fmt.Errorf("not a regular file: %s", absPath)
	}
	if parsed, perr := ParseFilingName(absPath); perr == nil {
		meta = mergeMeta(meta, parsed)
	} else if meta.Ticker == "" || meta.Kind == "" {
		return nil, false, perr
	}

	docID := fileid.FilingDocID(meta.Ticker, meta.Kind, meta.FilingDate, absPath)
	if existing, gerr := idx.storage.GetDocument(ctx, docID); gerr == nil {
		idx.logger.Debug("filing already imported", zap.String("path", absPath), zap.String("doc_id", docID))
		return existing, false, nil
	} else if !errors.Is(gerr, storage.ErrNotFound) {
		return nil, false, gerr
	}

	text, err := idx.extractContent(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("extract content: %w", err)
	}
	doc, err = idx.storeDocument(ctx, &models.DocumentInput{
		ID:         docID,
		Ticker:     meta.Ticker,
		Kind:       meta.Kind,
		Title:      meta.Title,
		Content:    text,
		FilingDate: meta.FilingDate,
	})
	if err != nil {
		return nil, false, err
	}
	idx.logger.Info("filing imported", zap.String("path", absPath), zap.String("doc_id", docID))
	return doc, true, nil
}

// ImportAndVectorize imports the filing at path and embeds its sections. A filing that
// was imported before is left alone and yields zero stats.
func (idx *Indexer) ImportAndVectorize(ctx context.Context, path string) (Stats, error) {
	doc, created, err := idx.ImportFile(ctx, path, FilingMeta{})
	if err != nil {
		return Stats{}, err
	}
	if !created {
		return Stats{}, nil
	}
	return idx.VectorizeDocument(ctx, doc)
}

func mergeMeta(explicit, parsed FilingMeta) FilingMeta {
	if explicit.Ticker == "" {
		explicit.Ticker = parsed.Ticker
	}
	if explicit.Kind == "" {
		explicit.Kind = parsed.Kind
	}
	if explicit.FilingDate == "" {
		explicit.FilingDate = parsed.FilingDate
	}
	if explicit.Title == "" {
		explicit.Title = parsed.Title
	}
	return explicit
}

// ImportDirectory walks dir recursively and imports every file whose extension is in
// allowedExts (all files when empty) and whose name follows the filing convention.
// Files with other names are logged and skipped. Returns the documents newly stored.
func (idx *Indexer) ImportDirectory(ctx context.Context, dir string, allowedExts []string) ([]*models.Document, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	var imported []*models.Document
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !ExtensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		if _, perr := ParseFilingName(path); perr != nil {
			idx.logger.Warn("skipping file", zap.String("path", path), zap.Error(perr))
			return nil
		}
		doc, created, ierr := idx.ImportFile(ctx, path, FilingMeta{})
		if ierr != nil {
			return ierr
		}
		if created {
			imported = append(imported, doc)
		}
		return nil
	})
	return imported, err
}

func (idx *Indexer) extractContent(path string) (string, error) {
	if idx.extractor != nil {
		return idx.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and the leading dot.
// An empty allowed list accepts every extension.
func ExtensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
