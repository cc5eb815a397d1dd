// Package embedding provides the text embedding function: a local ONNX model,
// an OpenAI-compatible remote API, or a deterministic hashing embedder for tests.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmbeddingFailure is returned when text is empty or the model call fails.
var ErrEmbeddingFailure = errors.New("embedding failure")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// failure wraps err as an ErrEmbeddingFailure.
func failure(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrEmbeddingFailure, fmt.Sprintf(format, args...))
}
