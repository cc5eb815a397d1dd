package extract

import (
	"fmt"
	"strings"

	"github.com/lu4p/cat"
)

// extractCat handles OpenDocument text and RTF filings.
func extractCat(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("extract document: %w", err)
	}
	return strings.TrimSpace(text), nil
}
