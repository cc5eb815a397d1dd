// Package extract pulls plain text out of filing documents so they can be segmented.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SupportedExtensions lists the file types the extractor understands.
var SupportedExtensions = []string{".txt", ".md", ".htm", ".html", ".pdf", ".docx", ".odt", ".rtf", ".xlsx"}

// Extractor extracts plain text from filing documents.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
// Paragraph breaks are kept as blank lines where the format exposes them.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text from content based on ext, which includes the leading dot.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".odt", ".rtf":
		return extractCat(content)
	case ".xlsx":
		return extractExcel(content)
	case ".htm", ".html":
		return extractHTML(content)
	default:
		return extractPlain(content)
	}
}
