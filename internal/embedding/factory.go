package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/marketiq/internal/config"
)

// New builds the embedder selected by cfg.Provider. When the ONNX model cannot be
// loaded it falls back to the mock embedder with a warning, so the server still starts.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "mock":
		e = NewMockEmbedder(cfg.Dimensions)
	case "openai":
		e, err = NewOpenAIEmbedder(OpenAIOptions{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			APIKey:     cfg.APIKey,
			Dimensions: cfg.Dimensions,
		}, logger)
		if err != nil {
			return nil, err
		}
	case "onnx", "":
		onnx, onnxErr := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if onnxErr != nil {
			logger.Warn("onnx embedder unavailable, falling back to mock embedder",
				zap.String("model_path", cfg.ModelPath), zap.Error(onnxErr))
			e = NewMockEmbedder(cfg.Dimensions)
		} else {
			e = onnx
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	logger.Info("embedder initialized",
		zap.String("provider", cfg.Provider),
		zap.Int("dimensions", e.Dimensions()),
		zap.Float64("requests_per_second", cfg.RequestsPerSecond))
	return NewRateLimited(e, cfg.RequestsPerSecond), nil
}
