package vector

import "sort"

// Scored pairs a candidate with its cosine similarity to the query.
type Scored[T any] struct {
	Item  T
	Score float64
}

// Rank scores every candidate against query and returns the best topK, highest first.
// Candidates whose vector length differs from the query are skipped. Equal scores keep
// their input order. topK <= 0 returns nil.
func Rank[T any](query []float32, candidates []T, vectorOf func(T) []float32, topK int) []Scored[T] {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}
	scored := make([]Scored[T], 0, len(candidates))
	for _, c := range candidates {
		s, err := Cosine(query, vectorOf(c))
		if err != nil {
			continue
		}
		scored = append(scored, Scored[T]{Item: c, Score: s})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
