// Package assistant is the entry point used by the web and CLI layers. It ties query
// analysis, hybrid search and answer synthesis into a single search envelope, and
// exposes the company, metric and filing lookups the research screens need.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/marketiq/internal/analyzer"
	"github.com/hyperjump/marketiq/internal/answer"
	"github.com/hyperjump/marketiq/internal/config"
	"github.com/hyperjump/marketiq/internal/models"
	"github.com/hyperjump/marketiq/internal/search"
	"github.com/hyperjump/marketiq/internal/storage"
)

// ErrorAnswer is the answer text of a failed search.
const ErrorAnswer = "Sorry, I encountered an error processing your query."

// Filter labels meaning "no restriction".
const (
	AllCompanies = "All Companies"
	AllTypes     = "All Types"
)

const (
	defaultTopK        = 10
	maxTopK            = 100
	defaultRecentLimit = 10
)

// ErrNoTickers is returned by Compare when no usable ticker was given.
var ErrNoTickers = errors.New("at least one ticker is required")

// Assistant answers research queries. It holds no per-request state.
type Assistant struct {
	analyzer    *analyzer.Analyzer
	answers     *answer.Synthesizer
	engine      *search.Engine
	storage     storage.Storage
	defaultTopK int
	maxTopK     int
	logger      *zap.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithLogger sets the assistant logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// WithTopK sets the result count used when a request has none, and the cap applied
// to explicit values. Non-positive arguments keep the defaults.
func WithTopK(def, max int) Option {
	return func(a *Assistant) {
		if def > 0 {
			a.defaultTopK = def
		}
		if max > 0 {
			a.maxTopK = max
		}
	}
}

// New creates an assistant.
func New(an *analyzer.Analyzer, answers *answer.Synthesizer, engine *search.Engine, st storage.Storage, opts ...Option) *Assistant {
	a := &Assistant{
		analyzer:    an,
		answers:     answers,
		engine:      engine,
		storage:     st,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze returns the structured form of text.
func (a *Assistant) Analyze(text string) *models.StructuredQuery {
	return a.analyzer.Analyze(text)
}

// SuggestedPrompts returns the example queries shown to new users.
func (a *Assistant) SuggestedPrompts() []string {
	return answer.SuggestedPrompts()
}

// Search runs a full query and never returns an error: failures are reported in the
// envelope with Success false.
func (a *Assistant) Search(ctx context.Context, req *models.SearchRequest) *models.SearchEnvelope {
	start := time.Now()
	if req == nil {
		req = &models.SearchRequest{}
	}
	env := &models.SearchEnvelope{Query: req.Query, Results: []*models.SearchResult{}}
	defer func() { env.QueryTime = time.Since(start).Milliseconds() }()

	if err := req.Validate(); err != nil {
		return a.fail(env, err)
	}
	env.Query = req.Query

	q := a.analyzer.Analyze(req.Query)
	env.Analysis = q
	topK := req.EffectiveTopK(a.defaultTopK, a.maxTopK)
	filter := NormalizeFilters(req.Filters)

	results, err := a.engine.Search(ctx, req.Query, filter, topK)
	if err != nil {
		a.logger.Error("search failed",
			zap.String("query", req.Query),
			zap.String("ticker", filter.Ticker),
			zap.Strings("doc_types", filter.DocKinds),
			zap.Error(err))
		return a.fail(env, err)
	}
	if results != nil {
		env.Results = results
	}
	env.Success = true
	env.AnswerText = a.answers.Synthesize(q)
	env.TotalResults = len(env.Results)
	a.logger.Debug("search completed",
		zap.String("query", req.Query),
		zap.String("intent", string(q.Intent)),
		zap.Strings("tickers", q.Entities),
		zap.Int("top_k", topK),
		zap.Int("results", env.TotalResults))
	return env
}

func (a *Assistant) fail(env *models.SearchEnvelope, err error) *models.SearchEnvelope {
	env.Success = false
	env.Error = err.Error()
	env.AnswerText = ErrorAnswer
	env.Results = []*models.SearchResult{}
	env.TotalResults = 0
	return env
}

// NormalizeFilters maps presentation-layer filter values to a storage filter.
// "TNET - TriNet Group" becomes ticker TNET and "10-K (Annual Report)" becomes kind
// 10-K. The "All ..." labels and blank values mean no restriction. Ticker and
// DocTypes, when set, take precedence over the labels.
func NormalizeFilters(f models.SearchFilters) models.Filter {
	var out models.Filter

	if t := strings.TrimSpace(f.Ticker); t != "" {
		out.Ticker = strings.ToUpper(t)
	} else if c := strings.TrimSpace(f.Company); c != "" && c != AllCompanies {
		code, _, _ := strings.Cut(c, " - ")
		out.Ticker = strings.ToUpper(strings.TrimSpace(code))
	}

	for _, k := range f.DocTypes {
		if k = strings.TrimSpace(k); k != "" && k != AllTypes {
			out.DocKinds = append(out.DocKinds, k)
		}
	}
	if len(out.DocKinds) == 0 {
		if d := strings.TrimSpace(f.DocumentType); d != "" && d != AllTypes {
			kind, _, _ := strings.Cut(d, " (")
			if kind = strings.TrimSpace(kind); kind != "" {
				out.DocKinds = []string{kind}
			}
		}
	}
	return out
}

// CompanyProfile is one entry of a comparison.
type CompanyProfile struct {
	Company *models.Company        `json:"company,omitempty"`
	Metrics []*models.MetricFact   `json:"metrics"`
	Facts   *config.FinancialFacts `json:"facts,omitempty"`
}

// Compare gathers the stored profile, metrics and known figures of each ticker.
// Unknown tickers get an entry with no company. Returns ErrNoTickers when tickers
// holds nothing but blanks.
func (a *Assistant) Compare(ctx context.Context, tickers []string) (map[string]*CompanyProfile, error) {
	out := make(map[string]*CompanyProfile)
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, seen := out[t]; seen {
			continue
		}
		p := &CompanyProfile{Metrics: []*models.MetricFact{}}
		c, err := a.storage.GetCompany(ctx, t)
		switch {
		case err == nil:
			p.Company = c
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("compare %s: %w", t, err)
		}
		metrics, err := a.storage.ListMetrics(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("compare %s: %w", t, err)
		}
		if metrics != nil {
			p.Metrics = metrics
		}
		if f, ok := a.answers.Facts(t); ok {
			p.Facts = &f
		}
		out[t] = p
	}
	if len(out) == 0 {
		return nil, ErrNoTickers
	}
	return out, nil
}

// Companies returns every tracked company ordered by ticker.
func (a *Assistant) Companies(ctx context.Context) ([]*models.Company, error) {
	cs, err := a.storage.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		cs = []*models.Company{}
	}
	return cs, nil
}

// Metrics returns metric facts, restricted to ticker when it is not blank.
func (a *Assistant) Metrics(ctx context.Context, ticker string) ([]*models.MetricFact, error) {
	ms, err := a.storage.ListMetrics(ctx, strings.ToUpper(strings.TrimSpace(ticker)))
	if err != nil {
		return nil, err
	}
	if ms == nil {
		ms = []*models.MetricFact{}
	}
	return ms, nil
}

// SearchCompanies ranks company overviews against query.
func (a *Assistant) SearchCompanies(ctx context.Context, query, ticker string, topK int) ([]*models.EmbeddingHit, error) {
	return a.engine.SearchCompanies(ctx, query, strings.ToUpper(strings.TrimSpace(ticker)), a.clampTopK(topK))
}

// SearchMetrics ranks metric facts against query.
func (a *Assistant) SearchMetrics(ctx context.Context, query, ticker string, topK int) ([]*models.EmbeddingHit, error) {
	return a.engine.SearchMetrics(ctx, query, strings.ToUpper(strings.TrimSpace(ticker)), a.clampTopK(topK))
}

// clampTopK caps k like search requests do: non-positive counts return nothing.
func (a *Assistant) clampTopK(k int) int {
	if k <= 0 {
		return 0
	}
	if k > a.maxTopK {
		return a.maxTopK
	}
	return k
}

// Filing is a document listing entry without its content.
type Filing struct {
	ID         string `json:"id"`
	Ticker     string `json:"ticker"`
	Kind       string `json:"doc_type"`
	Title      string `json:"title"`
	FilingDate string `json:"filing_date"`
}

// RecentFilings returns up to limit filings, newest filing date first.
// A non-positive limit means 10.
func (a *Assistant) RecentFilings(ctx context.Context, limit int) ([]*Filing, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	docs, err := a.storage.ListDocuments(ctx, models.Filter{}, 0, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Filing, 0, len(docs))
	for _, d := range docs {
		out = append(out, &Filing{ID: d.ID, Ticker: d.Ticker, Kind: d.Kind, Title: d.Title, FilingDate: d.FilingDate})
	}
	return out, nil
}

// Status summarizes what the knowledge base holds.
type Status struct {
	Documents  int64                       `json:"documents"`
	Companies  int                         `json:"companies"`
	Embeddings map[models.SourceKind]int64 `json:"embeddings"`
}

// Status counts stored documents, companies and embedding records per kind.
func (a *Assistant) Status(ctx context.Context) (*Status, error) {
	docs, err := a.storage.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := a.storage.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{Documents: docs, Companies: len(cs), Embeddings: make(map[models.SourceKind]int64)}
	for _, k := range []models.SourceKind{models.SourceSection, models.SourceEntityOverview, models.SourceMetricFact} {
		n, err := a.storage.CountEmbeddings(ctx, k)
		if err != nil {
			return nil, err
		}
		st.Embeddings[k] = n
	}
	return st, nil
}
