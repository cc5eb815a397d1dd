package search

import (
	"sort"

	"github.com/hyperjump/marketiq/internal/models"
)

// Merge combines semantic and keyword results. Semantic results are kept as they are;
// a keyword hit is appended only if no earlier result refers to the same document.
// The combined list is stable-sorted by similarity, highest first, and cut to topK.
func Merge(semantic, keyword []*models.SearchResult, topK int) []*models.SearchResult {
	if topK <= 0 {
		return []*models.SearchResult{}
	}
	merged := make([]*models.SearchResult, 0, len(semantic)+len(keyword))
	seen := make(map[string]bool, len(semantic)+len(keyword))
	for _, r := range semantic {
		merged = append(merged, r)
		seen[r.DocumentID] = true
	}
	for _, r := range keyword {
		if seen[r.DocumentID] {
			continue
		}
		seen[r.DocumentID] = true
		merged = append(merged, r)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

// clampScore maps a cosine similarity into [0,1].
func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
