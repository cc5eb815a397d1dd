package vector

import (
	"testing"
)

type candidate struct {
	name string
	vec  []float32
}

func vecOf(c candidate) []float32 { return c.vec }

func names(scored []Scored[candidate]) []string {
	var out []string
	for _, s := range scored {
		out = append(out, s.Item.name)
	}
	return out
}

func TestRank_orderAndBound(t *testing.T) {
	query := []float32{1, 0}
	cands := []candidate{
		{"low", []float32{0, 1}},
		{"high", []float32{1, 0}},
		{"mid", []float32{1, 1}},
		{"neg", []float32{-1, 0}},
	}
	got := Rank(query, cands, vecOf, 3)
	want := []string{"high", "mid", "low"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", names(got), want)
	}
	for i := range want {
		if got[i].Item.name != want[i] {
			t.Errorf("got %v, want %v", names(got), want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("scores not descending: %v", got)
		}
	}

	if all := Rank(query, cands, vecOf, 10); len(all) != 4 {
		t.Errorf("topK above candidate count returned %d", len(all))
	}
}

func TestRank_stableForEqualScores(t *testing.T) {
	query := []float32{1, 0}
	cands := []candidate{
		{"a", []float32{1, 0}},
		{"b", []float32{1, 0}},
		{"c", []float32{0, 1}},
		{"d", []float32{1, 0}},
		{"e", []float32{1, 0}},
	}
	got := Rank(query, cands, vecOf, 5)
	want := []string{"a", "b", "d", "e", "c"}
	for i := range want {
		if got[i].Item.name != want[i] {
			t.Fatalf("equal scores reordered: got %v, want %v", names(got), want)
		}
	}
}

func TestRank_excludesMismatchedDimensions(t *testing.T) {
	query := []float32{1, 0}
	cands := []candidate{
		{"short", []float32{1}},
		{"ok", []float32{1, 0}},
		{"long", []float32{1, 0, 0}},
	}
	got := Rank(query, cands, vecOf, 5)
	if len(got) != 1 || got[0].Item.name != "ok" {
		t.Errorf("got %v, want [ok]", names(got))
	}
}

func TestRank_nonPositiveTopK(t *testing.T) {
	cands := []candidate{{"a", []float32{1}}}
	if got := Rank([]float32{1}, cands, vecOf, 0); len(got) != 0 {
		t.Errorf("topK=0 returned %v", names(got))
	}
	if got := Rank([]float32{1}, cands, vecOf, -1); len(got) != 0 {
		t.Errorf("topK=-1 returned %v", names(got))
	}
	if got := Rank[candidate]([]float32{1}, nil, vecOf, 3); len(got) != 0 {
		t.Errorf("no candidates returned %v", names(got))
	}
}
