// Package fileid derives deterministic document ids for imported filings.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const hashLen = 12

// FilingDocID returns a stable id for a filing read from absolutePath. The id is
// readable ("tnet-10-k-2023-02-10-<hash>") and re-importing the same path yields
// the same id, so the import can detect it has already seen the file.
func FilingDocID(ticker, kind, filingDate, absolutePath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	parts := make([]string, 0, 4)
	for _, p := range []string{ticker, kind, filingDate} {
		if p = slug(p); p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, hex.EncodeToString(hash[:])[:hashLen])
	return strings.Join(parts, "-")
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
