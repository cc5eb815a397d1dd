package fileid

import (
	"strings"
	"testing"
)

func TestFilingDocID(t *testing.T) {
	id1 := FilingDocID("TNET", "10-K", "2023-02-10", "/filings/tnet.pdf")
	id2 := FilingDocID("TNET", "10-K", "2023-02-10", "/filings/tnet.pdf")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, "tnet-10-k-2023-02-10-") {
		t.Errorf("unexpected readable prefix: %q", id1)
	}
	if got := len(id1) - len("tnet-10-k-2023-02-10-"); got != hashLen {
		t.Errorf("hash suffix length = %d, want %d", got, hashLen)
	}
}

func TestFilingDocID_differentPaths(t *testing.T) {
	id1 := FilingDocID("TNET", "10-K", "2023-02-10", "/filings/a.pdf")
	id2 := FilingDocID("TNET", "10-K", "2023-02-10", "/filings/b.pdf")
	if id1 == id2 {
		t.Errorf("different paths should give different IDs: %q", id1)
	}
}

func TestFilingDocID_normalized(t *testing.T) {
	id1 := FilingDocID("ADP", "10-Q", "", "/foo/bar")
	id2 := FilingDocID("ADP", "10-Q", "", "/foo/./bar/")
	if id1 != id2 {
		t.Errorf("equivalent paths should match: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, "adp-10-q-") {
		t.Errorf("empty parts should be skipped: %q", id1)
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"10-K":             "10-k",
		" Annual  Report ": "annual-report",
		"DEF 14A!":         "def-14a",
		"--":               "",
	}
	for in, want := range tests {
		if got := slug(in); got != want {
			t.Errorf("slug(%q) = %q, want %q", in, got, want)
		}
	}
}
