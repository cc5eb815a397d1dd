package indexer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/marketiq/internal/extract"
	"github.com/hyperjump/marketiq/internal/models"
)

const (
	companiesSheet = "companies"
	metricsSheet   = "metrics"
)

// WorkbookStats counts rows imported from a workbook.
type WorkbookStats struct {
	Companies int `json:"companies"`
	Metrics   int `json:"metrics"`
}

// ImportWorkbook loads company profiles and metric facts from an .xlsx workbook.
//
// The "companies" sheet has a header row naming any of ticker, name, description,
// industry, sector and market_cap. The "metrics" sheet names ticker, metric_name,
// period and value. Sheet and column names are matched case-insensitively. Companies
// are upserted; a metric already stored for the same ticker, name and period is skipped.
func (idx *Indexer) ImportWorkbook(ctx context.Context, path string) (WorkbookStats, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return WorkbookStats{}, fmt.Errorf("read workbook: %w", err)
	}
	sheets, err := extract.ReadSheets(content)
	if err != nil {
		return WorkbookStats{}, err
	}

	var stats WorkbookStats
	for _, sheet := range sheets {
		switch strings.ToLower(strings.TrimSpace(sheet.Name)) {
		case companiesSheet:
			n, err := idx.importCompanies(ctx, sheet.Rows)
			stats.Companies += n
			if err != nil {
				return stats, err
			}
		case metricsSheet:
			n, err := idx.importMetrics(ctx, sheet.Rows)
			stats.Metrics += n
			if err != nil {
				return stats, err
			}
		default:
			idx.logger.Debug("ignoring sheet", zap.String("sheet", sheet.Name))
		}
	}
	idx.logger.Info("workbook imported", zap.String("path", path),
		zap.Int("companies", stats.Companies), zap.Int("metrics", stats.Metrics))
	return stats, nil
}

func (idx *Indexer) importCompanies(ctx context.Context, rows [][]string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := headerIndex(rows[0])
	n := 0
	for _, row := range rows[1:] {
		c := &models.Company{
			Ticker:      strings.ToUpper(cell(row, cols, "ticker")),
			Name:        cell(row, cols, "name"),
			Description: cell(row, cols, "description"),
			Industry:    cell(row, cols, "industry"),
			Sector:      cell(row, cols, "sector"),
			MarketCap:   cell(row, cols, "market_cap"),
		}
		if c.Ticker == "" {
			continue
		}
		if c.Name == "" {
			c.Name = c.Ticker
		}
		if err := idx.storage.UpsertCompany(ctx, c); err != nil {
			return n, fmt.Errorf("upsert company %s: %w", c.Ticker, err)
		}
		n++
	}
	return n, nil
}

func (idx *Indexer) importMetrics(ctx context.Context, rows [][]string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	existing, err := idx.storage.ListMetrics(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list metrics: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[metricKey(m)] = true
	}

	cols := headerIndex(rows[0])
	n := 0
	for _, row := range rows[1:] {
		m := &models.MetricFact{
			Ticker:     strings.ToUpper(cell(row, cols, "ticker")),
			MetricName: cell(row, cols, "metric_name"),
			Period:     cell(row, cols, "period"),
			Value:      cell(row, cols, "value"),
		}
		if m.Ticker == "" || m.MetricName == "" || m.Value == "" || seen[metricKey(m)] {
			continue
		}
		if err := idx.storage.CreateMetric(ctx, m); err != nil {
			return n, fmt.Errorf("create metric %s %s: %w", m.Ticker, m.MetricName, err)
		}
		seen[metricKey(m)] = true
		n++
	}
	return n, nil
}

func metricKey(m *models.MetricFact) string {
	return m.Ticker + "\x00" + strings.ToLower(m.MetricName) + "\x00" + m.Period
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return cols
}

func cell(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
