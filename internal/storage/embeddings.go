package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hyperjump/marketiq/internal/models"
)

const embeddingSchema = `
	CREATE TABLE IF NOT EXISTS section_embeddings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		section_title TEXT,
		section_content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_section_embeddings_ticker ON section_embeddings(ticker);
	CREATE INDEX IF NOT EXISTS idx_section_embeddings_source ON section_embeddings(source_id);

	CREATE TABLE IF NOT EXISTS entity_embeddings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		info_type TEXT,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_entity_embeddings_ticker ON entity_embeddings(ticker);
	CREATE INDEX IF NOT EXISTS idx_entity_embeddings_source ON entity_embeddings(source_id);

	CREATE TABLE IF NOT EXISTS metric_embeddings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		metric_name TEXT,
		period TEXT,
		value TEXT,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_metric_embeddings_ticker ON metric_embeddings(ticker);
	CREATE INDEX IF NOT EXISTS idx_metric_embeddings_source ON metric_embeddings(source_id);
	`

// InitEmbeddingSchema creates the three embedding tables and their indexes if missing.
func (s *SQLiteStorage) InitEmbeddingSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, embeddingSchema); err != nil {
		return unavailable("init embedding schema", err)
	}
	return nil
}

// InsertEmbedding appends rec to the table for its kind and sets rec.ID.
func (s *SQLiteStorage) InsertEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	blob := EncodeVector(rec.Vector)
	var (
		res sql.Result
		err error
	)
	switch rec.Kind {
	case models.SourceSection:
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO section_embeddings (source_id, doc_id, ticker, section_title, section_content, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.SourceID, rec.DocumentID, rec.Ticker, rec.Label, rec.Text, blob, rec.CreatedAt)
	case models.SourceEntityOverview:
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO entity_embeddings (source_id, ticker, info_type, content, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.SourceID, rec.Ticker, rec.Label, rec.Text, blob, rec.CreatedAt)
	case models.SourceMetricFact:
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO metric_embeddings (source_id, ticker, metric_name, period, value, content, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.SourceID, rec.Ticker, rec.Label, rec.Period, rec.Value, rec.Text, blob, rec.CreatedAt)
	default:
		return fmt.Errorf("insert embedding: unknown source kind %q", rec.Kind)
	}
	if err != nil {
		return unavailable("insert embedding", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// SectionEmbeddings returns section records joined with their documents, restricted by filter,
// in insertion order.
func (s *SQLiteStorage) SectionEmbeddings(ctx context.Context, filter models.Filter) ([]*models.SectionEmbedding, error) {
	where, args := filterClause(filter, "d.")
	query := `SELECT e.id, e.source_id, e.doc_id, e.ticker, COALESCE(e.section_title, ''), e.section_content,
		e.embedding, e.created_at, d.doc_type, COALESCE(d.title, ''), COALESCE(d.filing_date, '')
		FROM section_embeddings e JOIN documents d ON d.id = e.doc_id` + where + ` ORDER BY e.id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("section embeddings", err)
	}
	defer rows.Close()

	var out []*models.SectionEmbedding
	for rows.Next() {
		var rec models.SectionEmbedding
		var blob []byte
		if err := rows.Scan(&rec.ID, &rec.SourceID, &rec.DocumentID, &rec.Ticker, &rec.Label, &rec.Text,
			&blob, &rec.CreatedAt, &rec.DocumentKind, &rec.DocumentTitle, &rec.FilingDate); err != nil {
			return nil, unavailable("section embeddings", err)
		}
		if rec.Vector, err = DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("section embedding %d: %w", rec.ID, err)
		}
		rec.Kind = models.SourceSection
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("section embeddings", err)
	}
	return out, nil
}

// EntityEmbeddings returns entity-overview records, optionally for one ticker.
func (s *SQLiteStorage) EntityEmbeddings(ctx context.Context, ticker string) ([]*models.EmbeddingRecord, error) {
	query := `SELECT id, source_id, ticker, COALESCE(info_type, ''), content, embedding, created_at FROM entity_embeddings`
	var args []interface{}
	if ticker != "" {
		query += ` WHERE ticker = ?`
		args = append(args, ticker)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, unavailable("entity embeddings", err)
	}
	defer rows.Close()

	var out []*models.EmbeddingRecord
	for rows.Next() {
		rec := models.EmbeddingRecord{Kind: models.SourceEntityOverview}
		var blob []byte
		if err := rows.Scan(&rec.ID, &rec.SourceID, &rec.Ticker, &rec.Label, &rec.Text, &blob, &rec.CreatedAt); err != nil {
			return nil, unavailable("entity embeddings", err)
		}
		if rec.Vector, err = DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("entity embedding %d: %w", rec.ID, err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("entity embeddings", err)
	}
	return out, nil
}

// MetricEmbeddings returns metric-fact records, optionally for one ticker.
func (s *SQLiteStorage) MetricEmbeddings(ctx context.Context, ticker string) ([]*models.EmbeddingRecord, error) {
	query := `SELECT id, source_id, ticker, COALESCE(metric_name, ''), COALESCE(period, ''), COALESCE(value, ''),
		content, embedding, created_at FROM metric_embeddings`
	var args []interface{}
	if ticker != "" {
		query += ` WHERE ticker = ?`
		args = append(args, ticker)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, unavailable("metric embeddings", err)
	}
	defer rows.Close()

	var out []*models.EmbeddingRecord
	for rows.Next() {
		rec := models.EmbeddingRecord{Kind: models.SourceMetricFact}
		var blob []byte
		if err := rows.Scan(&rec.ID, &rec.SourceID, &rec.Ticker, &rec.Label, &rec.Period, &rec.Value,
			&rec.Text, &blob, &rec.CreatedAt); err != nil {
			return nil, unavailable("metric embeddings", err)
		}
		if rec.Vector, err = DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("metric embedding %d: %w", rec.ID, err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("metric embeddings", err)
	}
	return out, nil
}

var embeddingTables = map[models.SourceKind]string{
	models.SourceSection:        "section_embeddings",
	models.SourceEntityOverview: "entity_embeddings",
	models.SourceMetricFact:     "metric_embeddings",
}

// CountEmbeddings returns the number of stored records of kind.
func (s *SQLiteStorage) CountEmbeddings(ctx context.Context, kind models.SourceKind) (int64, error) {
	table, ok := embeddingTables[kind]
	if !ok {
		return 0, fmt.Errorf("count embeddings: unknown source kind %q", kind)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, unavailable("count embeddings", err)
	}
	return n, nil
}

// EmbeddedDocumentIDs returns the set of document ids that have at least one section embedding.
func (s *SQLiteStorage) EmbeddedDocumentIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT doc_id FROM section_embeddings`)
	if err != nil {
		return nil, unavailable("embedded document ids", err)
	}
	defer rows.Close()
	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("embedded document ids", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("embedded document ids", err)
	}
	return ids, nil
}
