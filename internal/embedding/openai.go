package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	embedder   embeddings.Embedder
	dimensions int
	logger     *zap.Logger
}

// OpenAIOptions configures NewOpenAIEmbedder.
type OpenAIOptions struct {
	BaseURL    string
	Model      string
	APIKey     string
	Dimensions int
}

// NewOpenAIEmbedder builds a langchaingo embedder. An empty APIKey is sent as "none"
// for local servers that do not authenticate.
func NewOpenAIEmbedder(opts OpenAIOptions, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	token := opts.APIKey
	if token == "" {
		token = "none"
	}
	clientOpts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(opts.Model),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}
	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &OpenAIEmbedder{
		embedder:   embedder,
		dimensions: opts.Dimensions,
		logger:     logger.With(zap.String("component", "openai-embedder")),
	}, nil
}

// Embed returns the embedding for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, failure("empty text")
	}
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Debug("embedding request failed", zap.Int("length", len(text)), zap.Error(err))
		return nil, failure("remote embedding: %v", err)
	}
	return vec, nil
}

// EmbedBatch embeds texts in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, failure("empty text at index %d", i)
		}
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Debug("batch embedding request failed", zap.Int("count", len(texts)), zap.Error(err))
		return nil, failure("remote embedding: %v", err)
	}
	if len(vecs) != len(texts) {
		return nil, failure("expected %d embeddings, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}

// Dimensions returns the configured output size of the remote model.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
