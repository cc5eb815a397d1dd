package config

// DefaultKnowledge returns the built-in financial facts table.
func DefaultKnowledge() map[string]FinancialFacts {
	return map[string]FinancialFacts{
		"TNET": {RevenueGrowth: 9.2, GrossMargin: 32.7, OperatingMargin: 11.2, NetMargin: 8.1},
		"ADP":  {RevenueGrowth: 6.2, GrossMargin: 45.0, OperatingMargin: 22.5, NetMargin: 17.3},
	}
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/marketiq/data/financial_kb.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/marketiq/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.KeywordScore == 0 {
		cfg.Search.KeywordScore = 0.5
	}
	if cfg.Search.SnippetLength == 0 {
		cfg.Search.SnippetLength = 200
	}
	if cfg.Search.SectionCharBudget == 0 {
		cfg.Search.SectionCharBudget = 2000
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".txt", ".md", ".htm", ".html", ".pdf", ".docx", ".odt", ".rtf"}
	}
	if cfg.Analysis.KnownEntities == nil {
		cfg.Analysis.KnownEntities = []string{"TNET", "ADP", "PAYX", "NSP", "PYCR", "PCTY"}
	}
	if cfg.Knowledge == nil {
		cfg.Knowledge = DefaultKnowledge()
	}
}
