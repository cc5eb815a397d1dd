package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/marketiq/internal/cli"
	"github.com/hyperjump/marketiq/internal/models"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"TNET revenue growth", "-top-k", "5"},
			expected: []string{"-top-k", "5", "TNET revenue growth"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-top-k", "5", "TNET revenue growth"},
			expected: []string{"-top-k", "5", "TNET revenue growth"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"TNET revenue growth"},
			expected: []string{"TNET revenue growth"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"compare", "ADP", "-company", "ADP"},
			expected: []string{"-company", "ADP", "compare", "ADP"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"margins"}, "margins"},
		{"multiple words", []string{"TNET", "margins"}, "TNET margins"},
		{"single quoted phrase", []string{"TNET margins"}, "TNET margins"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSearchQuery(tt.args); got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]cli.SearchOutputFormat{
		"text": cli.OutputText, "compact": cli.OutputCompact, "json": cli.OutputJSON,
	} {
		got, err := parseOutputFormat(in)
		if err != nil || got != want {
			t.Errorf("parseOutputFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := parseOutputFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestBuildSearchRequest(t *testing.T) {
	req := buildSearchRequest("risks", "TNET - TriNet Group", "10-K (Annual Report)", -1)
	if req.TopK != nil {
		t.Errorf("negative top-k should leave TopK unset, got %d", *req.TopK)
	}
	if req.Filters.Company != "TNET - TriNet Group" || req.Filters.DocumentType != "10-K (Annual Report)" {
		t.Errorf("filters = %+v", req.Filters)
	}
	req = buildSearchRequest("risks", "", "", 0)
	if req.TopK == nil || *req.TopK != 0 {
		t.Errorf("explicit zero must be kept, got %v", req.TopK)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_missingDefaultUsesBuiltins(t *testing.T) {
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if _, statErr := os.Stat(defaultConfigPath); statErr == nil {
		t.Skip("a config is installed at the default path")
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want empty for built-in defaults", resolved)
	}
	if cfg.Server.Port != 5000 || cfg.Search.DefaultTopK != 10 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}

	if _, _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("explicit missing path must fail")
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	require.NoError(t, writeDefaultConfig(path, false))

	cfg, resolved, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Contains(t, cfg.Knowledge, "TNET")

	assert.Error(t, writeDefaultConfig(path, false), "existing file is kept")
	assert.NoError(t, writeDefaultConfig(path, true))
}

func testConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./kb.db"
embedding:
  provider: mock
  dimensions: 64
analysis:
  known_entities: [ACME]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestInitializeComponents_endToEnd(t *testing.T) {
	cfg, _, err := loadConfig(testConfigPath(t))
	require.NoError(t, err)
	ctx := context.Background()

	c, err := initializeComponents(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "ACME_10-K_2024-03-01.txt")
	require.NoError(t, os.WriteFile(path, []byte("Risks:\n\nA cybersecurity breach could disrupt ACME."), 0600))

	inbox := newInbox(c, []string{dir}, cfg.Ingest.Extensions, zap.NewNop())
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- inbox.Run(runCtx) }()
	require.Eventually(t, func() bool {
		st, err := c.Assistant.Status(ctx)
		return err == nil && st.Embeddings[models.SourceSection] == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	env := c.Assistant.Search(ctx, &models.SearchRequest{Query: "ACME cybersecurity"})
	require.True(t, env.Success, env.Error)
	assert.Equal(t, []string{"ACME"}, env.Analysis.Entities)
	require.NotEmpty(t, env.Results)
	assert.Equal(t, "Risks:", env.Results[0].SectionTitle)

	var buf bytes.Buffer
	st, err := c.Assistant.Status(ctx)
	require.NoError(t, err)
	writeStatusText(&buf, st, cfg)
	assert.Contains(t, buf.String(), "documents:          1")
	assert.Contains(t, buf.String(), "section_vectors:    1")
}

func TestSearchViaHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			http.NotFound(w, r)
			return
		}
		var req models.SearchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if strings.Contains(req.Query, "boom") {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(models.SearchEnvelope{Query: req.Query, Error: "storage unavailable", Results: []*models.SearchResult{}})
			return
		}
		_ = json.NewEncoder(w).Encode(models.SearchEnvelope{Success: true, Query: req.Query, Results: []*models.SearchResult{}})
	}))
	defer ts.Close()

	env, err := searchViaHTTP(ts.URL+"/", buildSearchRequest("margins", "", "", 3))
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, "margins", env.Query)

	env, err = searchViaHTTP(ts.URL, buildSearchRequest("boom", "", "", -1))
	require.NoError(t, err, "failure envelopes are returned, not errors")
	assert.False(t, env.Success)
	assert.Equal(t, "storage unavailable", env.Error)

	_, err = searchViaHTTP(ts.URL+"/nope", buildSearchRequest("x", "", "", -1))
	assert.Error(t, err)
}
