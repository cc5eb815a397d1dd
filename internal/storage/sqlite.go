// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/marketiq/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. dbPath may be ":memory:".
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	memory := dbPath == ":memory:"
	if !memory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		doc_type TEXT NOT NULL,
		title TEXT,
		content TEXT NOT NULL,
		filing_date TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_ticker ON documents(ticker);
	CREATE INDEX IF NOT EXISTS idx_documents_filing_date ON documents(filing_date);

	CREATE TABLE IF NOT EXISTS companies (
		ticker TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		industry TEXT,
		sector TEXT,
		market_cap TEXT
	);

	CREATE TABLE IF NOT EXISTS metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		metric_name TEXT NOT NULL,
		period TEXT,
		value TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_ticker ON metrics(ticker);
	`
	_, err := db.Exec(schema)
	return err
}

// unavailable marks a driver error as a storage failure.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, ticker, doc_type, title, content, filing_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Ticker, doc.Kind, doc.Title, doc.Content, doc.FilingDate, doc.CreatedAt,
	)
	if err != nil {
		return unavailable("create document", err)
	}
	return nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, ticker, doc_type, title, content, filing_date, created_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Ticker, &doc.Kind, &doc.Title, &doc.Content, &doc.FilingDate, &doc.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get document", err)
	}
	return &doc, nil
}

// ListDocuments returns documents matching filter, newest filing first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, filter models.Filter, offset, limit int) ([]*models.Document, error) {
	where, args := filterClause(filter, "")
	query := `SELECT id, ticker, doc_type, title, content, filing_date, created_at FROM documents` +
		where + ` ORDER BY filing_date DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	return s.queryDocuments(ctx, "list documents", query, args...)
}

// KeywordSearch returns documents whose content contains query (case-insensitive for ASCII),
// scoped by filter, newest filing first, at most limit rows.
func (s *SQLiteStorage) KeywordSearch(ctx context.Context, query string, filter models.Filter, limit int) ([]*models.Document, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	where, args := filterClause(filter, "")
	if where == "" {
		where = " WHERE "
	} else {
		where += " AND "
	}
	q := `SELECT id, ticker, doc_type, title, content, filing_date, created_at FROM documents` +
		where + `content LIKE ? ESCAPE '\' ORDER BY filing_date DESC, id LIMIT ?`
	args = append(args, "%"+escapeLike(query)+"%", limit)
	return s.queryDocuments(ctx, "keyword search", q, args...)
}

func (s *SQLiteStorage) queryDocuments(ctx context.Context, op, query string, args ...interface{}) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Ticker, &doc.Kind, &doc.Title, &doc.Content, &doc.FilingDate, &doc.CreatedAt); err != nil {
			return nil, unavailable(op, err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return docs, nil
}

// filterClause builds a WHERE clause for a ticker / doc kind filter.
// prefix qualifies the column names (e.g. "d.").
func filterClause(filter models.Filter, prefix string) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if filter.Ticker != "" {
		conds = append(conds, prefix+"ticker = ?")
		args = append(args, filter.Ticker)
	}
	if len(filter.DocKinds) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filter.DocKinds)), ", ")
		conds = append(conds, prefix+"doc_type IN ("+placeholders+")")
		for _, k := range filter.DocKinds {
			args = append(args, k)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// UpsertCompany inserts or replaces a company keyed by ticker.
func (s *SQLiteStorage) UpsertCompany(ctx context.Context, c *models.Company) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (ticker, name, description, industry, sector, market_cap)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ticker) DO UPDATE SET
		   name = excluded.name, description = excluded.description, industry = excluded.industry,
		   sector = excluded.sector, market_cap = excluded.market_cap`,
		c.Ticker, c.Name, c.Description, c.Industry, c.Sector, c.MarketCap,
	)
	if err != nil {
		return unavailable("upsert company", err)
	}
	return nil
}

// GetCompany returns a company by ticker.
func (s *SQLiteStorage) GetCompany(ctx context.Context, ticker string) (*models.Company, error) {
	var c models.Company
	err := s.db.QueryRowContext(ctx,
		`SELECT ticker, name, COALESCE(description, ''), COALESCE(industry, ''), COALESCE(sector, ''), COALESCE(market_cap, '')
		 FROM companies WHERE ticker = ?`, ticker,
	).Scan(&c.Ticker, &c.Name, &c.Description, &c.Industry, &c.Sector, &c.MarketCap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("company %s: %w", ticker, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get company", err)
	}
	return &c, nil
}

// ListCompanies returns all companies ordered by ticker.
func (s *SQLiteStorage) ListCompanies(ctx context.Context) ([]*models.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker, name, COALESCE(description, ''), COALESCE(industry, ''), COALESCE(sector, ''), COALESCE(market_cap, '')
		 FROM companies ORDER BY ticker`)
	if err != nil {
		return nil, unavailable("list companies", err)
	}
	defer rows.Close()
	var out []*models.Company
	for rows.Next() {
		var c models.Company
		if err := rows.Scan(&c.Ticker, &c.Name, &c.Description, &c.Industry, &c.Sector, &c.MarketCap); err != nil {
			return nil, unavailable("list companies", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list companies", err)
	}
	return out, nil
}

// CreateMetric inserts a metric fact and sets its ID.
func (s *SQLiteStorage) CreateMetric(ctx context.Context, m *models.MetricFact) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics (ticker, metric_name, period, value) VALUES (?, ?, ?, ?)`,
		m.Ticker, m.MetricName, m.Period, m.Value,
	)
	if err != nil {
		return unavailable("create metric", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		m.ID = id
	}
	return nil
}

// ListMetrics returns metric facts, optionally restricted to ticker, in insertion order.
func (s *SQLiteStorage) ListMetrics(ctx context.Context, ticker string) ([]*models.MetricFact, error) {
	query := `SELECT id, ticker, metric_name, COALESCE(period, ''), COALESCE(value, '') FROM metrics`
	var args []interface{}
	if ticker != "" {
		query += ` WHERE ticker = ?`
		args = append(args, ticker)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list metrics", err)
	}
	defer rows.Close()
	var out []*models.MetricFact
	for rows.Next() {
		var m models.MetricFact
		if err := rows.Scan(&m.ID, &m.Ticker, &m.MetricName, &m.Period, &m.Value); err != nil {
			return nil, unavailable("list metrics", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list metrics", err)
	}
	return out, nil
}

// CountDocuments returns the number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, unavailable("count documents", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
