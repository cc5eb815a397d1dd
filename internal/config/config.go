// Package config provides configuration loading and structs for the marketiq server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool                      `yaml:"debug"`
	Server    ServerConfig              `yaml:"server"`
	Storage   StorageConfig             `yaml:"storage"`
	Embedding EmbeddingConfig           `yaml:"embedding"`
	Search    SearchConfig              `yaml:"search"`
	Ingest    IngestConfig              `yaml:"ingest"`
	Analysis  AnalysisConfig            `yaml:"analysis"`
	Knowledge map[string]FinancialFacts `yaml:"knowledge"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the database location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig selects and configures the embedding function.
// Provider is one of "onnx", "openai" or "mock".
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	ModelPath         string  `yaml:"model_path"`
	Dimensions        int     `yaml:"dimensions"`
	MaxTokens         int     `yaml:"max_tokens"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"api_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// SearchConfig holds hybrid search settings.
type SearchConfig struct {
	DefaultTopK       int     `yaml:"default_top_k"`
	MaxTopK           int     `yaml:"max_top_k"`
	KeywordScore      float64 `yaml:"keyword_score"`
	SnippetLength     int     `yaml:"snippet_length"`
	SectionCharBudget int     `yaml:"section_char_budget"`
}

// IngestConfig holds import and vectorization settings.
type IngestConfig struct {
	Workers          int      `yaml:"workers"`
	Extensions       []string `yaml:"extensions"`
	InboxDirectories []string `yaml:"inbox_directories"`
}

// AnalysisConfig overrides the query analyzer's known entity codes.
type AnalysisConfig struct {
	KnownEntities []string `yaml:"known_entities"`
}

// FinancialFacts are the per-company figures the answer synthesizer quotes.
type FinancialFacts struct {
	RevenueGrowth   float64 `yaml:"revenue_growth" json:"revenue_growth"`
	GrossMargin     float64 `yaml:"gross_margin" json:"gross_margin"`
	OperatingMargin float64 `yaml:"operating_margin" json:"operating_margin"`
	NetMargin       float64 `yaml:"net_margin" json:"net_margin"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Ingest.InboxDirectories {
		cfg.Ingest.InboxDirectories[i] = expandPath(cfg.Ingest.InboxDirectories[i], configDir)
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. ":memory:" is left alone.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
