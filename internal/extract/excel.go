package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet of a workbook, rows in order.
type Sheet struct {
	Name string
	Rows [][]string
}

// ReadSheets returns every worksheet of an .xlsx workbook.
func ReadSheets(content []byte) ([]Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", name, err)
		}
		sheets = append(sheets, Sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}

// extractExcel renders each sheet as a paragraph of tab-separated rows.
func extractExcel(content []byte) (string, error) {
	sheets, err := ReadSheets(content)
	if err != nil {
		return "", err
	}
	var paragraphs []string
	for _, s := range sheets {
		var buf strings.Builder
		for _, row := range s.Rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
		}
		if p := strings.TrimSpace(buf.String()); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}
