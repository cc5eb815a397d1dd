// Package main is the marketiq CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/marketiq/internal/analyzer"
	"github.com/hyperjump/marketiq/internal/answer"
	"github.com/hyperjump/marketiq/internal/assistant"
	"github.com/hyperjump/marketiq/internal/cli"
	"github.com/hyperjump/marketiq/internal/config"
	"github.com/hyperjump/marketiq/internal/embedding"
	"github.com/hyperjump/marketiq/internal/extract"
	"github.com/hyperjump/marketiq/internal/indexer"
	"github.com/hyperjump/marketiq/internal/models"
	"github.com/hyperjump/marketiq/internal/search"
	"github.com/hyperjump/marketiq/internal/server"
	"github.com/hyperjump/marketiq/internal/storage"
	"github.com/hyperjump/marketiq/internal/vector"
	"github.com/hyperjump/marketiq/internal/watcher"
	"github.com/hyperjump/marketiq/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/marketiq/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present, and a missing default file yields the built-in
// defaults. Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "analyze":
		runAnalyze()
	case "vectorize":
		runVectorize()
	case "import":
		runImport()
	case "import-workbook":
		runImportWorkbook()
	case "watch":
		runWatch()
	case "init":
		runInit()
	case "prompts":
		cli.WritePrompts(os.Stdout, answer.SuggestedPrompts())
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("marketiq version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config, builds the logger and opens every component.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inboxDone := make(chan struct{})
	if len(cfg.Ingest.InboxDirectories) > 0 {
		inbox := newInbox(components, cfg.Ingest.InboxDirectories, cfg.Ingest.Extensions, logger)
		go func() {
			defer close(inboxDone)
			if err := inbox.Run(ctx); err != nil {
				logger.Error("inbox stopped", zap.Error(err))
			}
		}()
	} else {
		close(inboxDone)
	}

	srv := server.NewServer(components.Assistant, components.Indexer, components.Storage, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	<-inboxDone
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: marketiq search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  marketiq search TNET revenue growth
  marketiq search --company TNET --doc-type 10-K "cybersecurity risks"
  marketiq search --top-k 3 --output compact compare TNET vs ADP
  marketiq search --server http://localhost:5000 --output json margins
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseOutputFormat(s string) (cli.SearchOutputFormat, error) {
	switch s {
	case "text":
		return cli.OutputText, nil
	case "compact":
		return cli.OutputCompact, nil
	case "json":
		return cli.OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

// buildSearchRequest assembles a request; topK < 0 means the configured default.
func buildSearchRequest(query, company, docType string, topK int) *models.SearchRequest {
	req := &models.SearchRequest{
		Query:   query,
		Filters: models.SearchFilters{Company: company, DocumentType: docType},
	}
	if topK >= 0 {
		req.TopK = &topK
	}
	return req
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL; empty searches the database directly")
	topK := fs.Int("top-k", -1, "number of results (default from config)")
	company := fs.String("company", "", "restrict to a ticker, e.g. TNET or \"TNET - TriNet Group\"")
	docType := fs.String("doc-type", "", "restrict to a document type, e.g. 10-K")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req := buildSearchRequest(query, *company, *docType, *topK)

	var env *models.SearchEnvelope
	if *serverURL != "" {
		env, err = searchViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		env = components.Assistant.Search(context.Background(), req)
	}
	if err := cli.WriteSearchEnvelope(os.Stdout, env, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if !env.Success {
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, req *models.SearchRequest) (*models.SearchEnvelope, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimSuffix(serverURL, "/")+"/api/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var env models.SearchEnvelope
	if err := json.Unmarshal(b, &env); err != nil || (resp.StatusCode != http.StatusOK && env.Error == "") {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return &env, nil
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: marketiq analyze [flags] <query>")
		os.Exit(1)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	an, err := analyzer.New(analyzer.DefaultTables().WithEntities(cfg.Analysis.KnownEntities))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build analyzer: %v\n", err)
		os.Exit(1)
	}
	q := an.Analyze(query)
	if *outputFormat == "json" {
		_ = cli.WriteJSON(os.Stdout, q)
		return
	}
	cli.WriteAnalysis(os.Stdout, q)
	fmt.Printf("Tokens: %s\n", strings.Join(q.Tokens, " "))
	fmt.Printf("\n%s\n", answer.New(cfg.Knowledge).Synthesize(q))
}

func runVectorize() {
	fs := flag.NewFlagSet("vectorize", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 0, "maximum number of documents to embed (0 = all)")
	force := fs.Bool("force", false, "re-embed documents that already have section embeddings")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	stats, err := components.Indexer.VectorizeDocuments(ctx, indexer.VectorizeOptions{Limit: *limit, OnlyNew: !*force})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Vectorize documents failed: %v\n", err)
		os.Exit(1)
	}
	companyStats, err := components.Indexer.VectorizeCompanies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Vectorize companies failed: %v\n", err)
		os.Exit(1)
	}
	stats.Add(companyStats)
	fmt.Printf("Embedded %d sections from %d documents, %d company overviews and %d metrics (%d skipped) in %s\n",
		stats.Sections, stats.Documents, stats.Companies, stats.Metrics, stats.Skipped, time.Since(start).Round(time.Millisecond))
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	ticker := fs.String("ticker", "", "company ticker (default: parsed from file name)")
	kind := fs.String("type", "", "document type, e.g. 10-K (default: parsed from file name)")
	date := fs.String("date", "", "filing date YYYY-MM-DD (default: parsed from file name)")
	title := fs.String("title", "", "document title")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: marketiq import [flags] <file|directory>")
		fmt.Fprintln(os.Stderr, "File names follow TICKER_TYPE_YYYY-MM-DD[_Title].ext")
		os.Exit(1)
	}
	path := fs.Arg(0)
	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		docs, err := components.Indexer.ImportDirectory(ctx, path, cfg.Ingest.Extensions)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Imported %d filings from %s\n", len(docs), path)
		return
	}
	meta := indexer.FilingMeta{Ticker: *ticker, Kind: *kind, FilingDate: *date, Title: *title}
	doc, created, err := components.Indexer.ImportFile(ctx, path, meta)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	if !created {
		fmt.Printf("Already imported: %s\n", doc.ID)
		return
	}
	fmt.Printf("Imported: %s (%s %s %s)\n", doc.ID, doc.Ticker, doc.Kind, doc.FilingDate)
}

func runImportWorkbook() {
	fs := flag.NewFlagSet("import-workbook", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: marketiq import-workbook [flags] <workbook.xlsx>")
		os.Exit(1)
	}
	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	stats, err := components.Indexer.ImportWorkbook(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d companies and %d metrics\n", stats.Companies, stats.Metrics)
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	dirs := fs.Args()
	if len(dirs) == 0 {
		dirs = cfg.Ingest.InboxDirectories
	}
	if len(dirs) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: marketiq watch [flags] <directory>... (or set ingest.inbox_directories)")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newInbox(components, dirs, cfg.Ingest.Extensions, logger).Run(ctx); err != nil {
		logger.Fatal("Watch failed", zap.Error(err))
	}
}

func newInbox(c *Components, dirs, exts []string, logger *zap.Logger) *watcher.Inbox {
	return watcher.NewInbox(dirs, exts, func(ctx context.Context, path string) error {
		stats, err := c.Indexer.ImportAndVectorize(ctx, path)
		if err != nil {
			return err
		}
		if stats.Documents > 0 {
			logger.Info("filing indexed", zap.String("path", path),
				zap.Int("sections", stats.Sections), zap.Int("skipped", stats.Skipped))
		}
		return nil
	}, watcher.WithLogger(logger))
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	path := "config.yaml"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if err := writeDefaultConfig(path, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
}

// writeDefaultConfig saves the built-in configuration to path. An existing file is
// only replaced when force is set.
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return config.Save(path, cfg)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	status, err := components.Assistant.Status(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	switch *outputFormat {
	case "json":
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeStatusText(os.Stdout, status, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func writeStatusText(w io.Writer, status *assistant.Status, cfg *config.Config) {
	fmt.Fprintf(w, "documents:          %d\n", status.Documents)
	fmt.Fprintf(w, "companies:          %d\n", status.Companies)
	fmt.Fprintf(w, "section_vectors:    %d\n", status.Embeddings[models.SourceSection])
	fmt.Fprintf(w, "company_vectors:    %d\n", status.Embeddings[models.SourceEntityOverview])
	fmt.Fprintf(w, "metric_vectors:     %d\n", status.Embeddings[models.SourceMetricFact])
	if size, err := storage.DatabaseSizeBytes(cfg.Storage.DatabasePath); err == nil {
		fmt.Fprintf(w, "database_bytes:     %d\n", size)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	fmt.Fprintf(w, "database_path:      %s\n", cfg.Storage.DatabasePath)
	fmt.Fprintf(w, "embedding_provider: %s\n", cfg.Embedding.Provider)
	fmt.Fprintf(w, "embedding_dims:     %d\n", cfg.Embedding.Dimensions)
	fmt.Fprintf(w, "section_budget:     %d\n", cfg.Search.SectionCharBudget)
}

// Components holds initialized services.
type Components struct {
	Storage   *storage.SQLiteStorage
	Embedder  embedding.Embedder
	Store     *vector.Store
	Engine    *search.Engine
	Indexer   *indexer.Indexer
	Assistant *assistant.Assistant
}

// Close releases the database and the embedder.
func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	db, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: db}

	c.Embedder, err = embedding.New(&cfg.Embedding, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c.Store = vector.NewStore(db, c.Embedder, vector.WithLogger(logger))
	if err := c.Store.Initialize(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedding tables: %w", err)
	}

	an, err := analyzer.New(analyzer.DefaultTables().WithEntities(cfg.Analysis.KnownEntities))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize analyzer: %w", err)
	}

	c.Engine = search.NewEngine(db, c.Store, &cfg.Search, search.WithLogger(logger))
	c.Indexer = indexer.NewIndexer(db, c.Store, extract.NewExtractor(),
		indexer.WithLogger(logger),
		indexer.WithWorkers(cfg.Ingest.Workers),
		indexer.WithSectionBudget(cfg.Search.SectionCharBudget),
	)
	c.Assistant = assistant.New(an, answer.New(cfg.Knowledge), c.Engine, db,
		assistant.WithLogger(logger),
		assistant.WithTopK(cfg.Search.DefaultTopK, cfg.Search.MaxTopK),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`marketiq - financial research search over filings, companies and metrics

Usage:
  marketiq server [flags]                   Start the HTTP API (and inbox watcher, if configured)
  marketiq search [flags] <query>           Hybrid search with a synthesized answer
  marketiq analyze [flags] <query>          Show tickers, intent and concepts detected in a query
  marketiq vectorize [flags]                Embed stored filings, company overviews and metrics
  marketiq import [flags] <file|dir>        Import filings (TICKER_TYPE_YYYY-MM-DD[_Title].ext)
  marketiq import-workbook <file.xlsx>      Import the companies and metrics sheets of a workbook
  marketiq watch [flags] [dir...]           Import and embed filings dropped into inbox directories
  marketiq init [--force] [path]            Write a default config.yaml
  marketiq prompts                          List suggested queries
  marketiq status [flags]                   Show knowledge base counts
  marketiq version                          Show version
  marketiq help                             Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/marketiq/config.yaml, or ./config.yaml)
  --debug            Enable debug logging (server, vectorize, watch)

Search Flags:
  --server string    Server URL; empty (default) searches the database directly
  --top-k int        Number of results (default from config)
  --company string   Ticker or "TICKER - Name" label
  --doc-type string  Document type or "TYPE (Description)" label
  --output string    text, compact or json (default: text)

Vectorize Flags:
  --limit int        Maximum number of documents to embed (default: all)
  --force            Re-embed documents that already have section embeddings

Import Flags:
  --ticker, --type, --date, --title   Override values parsed from the file name

Examples:
  marketiq import ./filings
  marketiq import-workbook ./data/companies.xlsx
  marketiq vectorize
  marketiq search "What are TNET's cybersecurity risks?"
  marketiq search --output json compare TNET vs ADP
  marketiq analyze "Show ADP profit margins"
  marketiq status --output json`)
}
