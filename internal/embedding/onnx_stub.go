//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// ONNXEmbedder is unavailable without cgo; the factory falls back to the mock embedder.
type ONNXEmbedder struct{}

func NewONNXEmbedder(_ string, _, _ int) (*ONNXEmbedder, error) {
	return nil, errors.New("sentence model needs cgo: build with CGO_ENABLED=1 and the onnxruntime library")
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, failure("sentence model not built in")
}

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, failure("sentence model not built in")
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Close() error { return nil }
