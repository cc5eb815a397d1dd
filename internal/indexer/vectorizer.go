package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/marketiq/internal/embedding"
	"github.com/hyperjump/marketiq/internal/models"
)

// Stats counts the work done by a vectorization run.
type Stats struct {
	Documents int `json:"documents"`
	Sections  int `json:"sections"`
	Companies int `json:"companies"`
	Metrics   int `json:"metrics"`
	Skipped   int `json:"skipped"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Documents += o.Documents
	s.Sections += o.Sections
	s.Companies += o.Companies
	s.Metrics += o.Metrics
	s.Skipped += o.Skipped
}

// VectorizeOptions selects which stored documents to embed.
type VectorizeOptions struct {
	// Limit caps the number of documents processed; <= 0 means all.
	Limit int
	// OnlyNew skips documents that already have section embeddings.
	OnlyNew bool
}

// VectorizeDocuments segments and embeds stored documents, newest filing first.
// Records whose text cannot be embedded are logged and skipped; storage errors abort
// the run and are returned.
func (idx *Indexer) VectorizeDocuments(ctx context.Context, opts VectorizeOptions) (Stats, error) {
	docs, err := idx.storage.ListDocuments(ctx, models.Filter{}, 0, -1)
	if err != nil {
		return Stats{}, fmt.Errorf("list documents: %w", err)
	}
	if opts.OnlyNew {
		done, err := idx.store.EmbeddedDocuments(ctx)
		if err != nil {
			return Stats{}, fmt.Errorf("list embedded documents: %w", err)
		}
		pending := docs[:0]
		for _, d := range docs {
			if !done[d.ID] {
				pending = append(pending, d)
			}
		}
		docs = pending
	}
	if opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}

	jobs := make([]job, len(docs))
	for i, doc := range docs {
		jobs[i] = func(ctx context.Context) (Stats, error) { return idx.VectorizeDocument(ctx, doc) }
	}
	stats, err := idx.run(ctx, jobs)
	idx.logger.Info("documents vectorized",
		zap.Int("documents", stats.Documents),
		zap.Int("sections", stats.Sections),
		zap.Int("skipped", stats.Skipped))
	return stats, err
}

// VectorizeDocument segments doc and stores one section embedding per section.
// Section source ids are "<document id>#<section index>".
func (idx *Indexer) VectorizeDocument(ctx context.Context, doc *models.Document) (Stats, error) {
	var stats Stats
	for _, sec := range idx.segmenter.Segment(doc.Content, doc.Title) {
		rec := &models.EmbeddingRecord{
			Kind:       models.SourceSection,
			SourceID:   doc.ID + "#" + strconv.Itoa(sec.Index),
			Ticker:     doc.Ticker,
			DocumentID: doc.ID,
			Label:      sec.Title,
			Text:       sec.Content,
		}
		if skip, err := idx.embed(ctx, rec); err != nil {
			return stats, err
		} else if skip {
			stats.Skipped++
			continue
		}
		stats.Sections++
	}
	stats.Documents = 1
	return stats, nil
}

// VectorizeCompanies embeds an overview per company and a fact per metric. Companies
// and metrics that already have an embedding are left alone.
func (idx *Indexer) VectorizeCompanies(ctx context.Context) (Stats, error) {
	companies, err := idx.storage.ListCompanies(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list companies: %w", err)
	}
	metrics, err := idx.storage.ListMetrics(ctx, "")
	if err != nil {
		return Stats{}, fmt.Errorf("list metrics: %w", err)
	}
	seenEntities, err := idx.embeddedSources(ctx, idx.store.Entities)
	if err != nil {
		return Stats{}, err
	}
	seenMetrics, err := idx.embeddedSources(ctx, idx.store.Metrics)
	if err != nil {
		return Stats{}, err
	}

	var jobs []job
	for _, c := range companies {
		if seenEntities[c.Ticker] {
			continue
		}
		rec := &models.EmbeddingRecord{
			Kind:     models.SourceEntityOverview,
			SourceID: c.Ticker,
			Ticker:   c.Ticker,
			Label:    "overview",
			Text:     c.Overview(),
		}
		jobs = append(jobs, idx.recordJob(rec, Stats{Companies: 1}))
	}
	for _, m := range metrics {
		id := strconv.FormatInt(m.ID, 10)
		if seenMetrics[id] {
			continue
		}
		rec := &models.EmbeddingRecord{
			Kind:     models.SourceMetricFact,
			SourceID: id,
			Ticker:   m.Ticker,
			Label:    m.MetricName,
			Period:   m.Period,
			Value:    m.Value,
			Text:     m.Text(),
		}
		jobs = append(jobs, idx.recordJob(rec, Stats{Metrics: 1}))
	}
	stats, err := idx.run(ctx, jobs)
	idx.logger.Info("companies vectorized",
		zap.Int("companies", stats.Companies),
		zap.Int("metrics", stats.Metrics),
		zap.Int("skipped", stats.Skipped))
	return stats, err
}

func (idx *Indexer) embeddedSources(ctx context.Context, list func(context.Context, string) ([]*models.EmbeddingRecord, error)) (map[string]bool, error) {
	recs, err := list(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		seen[r.SourceID] = true
	}
	return seen, nil
}

func (idx *Indexer) recordJob(rec *models.EmbeddingRecord, onSuccess Stats) job {
	return func(ctx context.Context) (Stats, error) {
		skip, err := idx.embed(ctx, rec)
		if err != nil {
			return Stats{}, err
		}
		if skip {
			return Stats{Skipped: 1}, nil
		}
		return onSuccess, nil
	}
}

// embed stores rec. An embedding failure is logged and reported as skip.
func (idx *Indexer) embed(ctx context.Context, rec *models.EmbeddingRecord) (skip bool, err error) {
	err = idx.store.EmbedAndStore(ctx, rec)
	if errors.Is(err, embedding.ErrEmbeddingFailure) {
		idx.logger.Warn("skipping record", zap.String("kind", string(rec.Kind)),
			zap.String("source_id", rec.SourceID), zap.Error(err))
		return true, nil
	}
	return false, err
}

type job func(ctx context.Context) (Stats, error)

// run executes jobs on a bounded ants pool. The first error cancels the jobs that have
// not started yet and is returned with the stats gathered so far.
func (idx *Indexer) run(ctx context.Context, jobs []job) (Stats, error) {
	if len(jobs) == 0 {
		return Stats{}, nil
	}
	pool, err := ants.NewPool(idx.workers)
	if err != nil {
		return Stats{}, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		total    Stats
		firstErr error
	)
	record := func(s Stats, err error) {
		mu.Lock()
		defer mu.Unlock()
		total.Add(s)
		if err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	for _, j := range jobs {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			record(j(ctx))
		}); err != nil {
			wg.Done()
			record(Stats{}, fmt.Errorf("submit job: %w", err))
			break
		}
	}
	wg.Wait()
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return total, firstErr
}
