package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an inner Embedder. A batch counts as one call.
type RateLimited struct {
	Embedder
	limiter *rate.Limiter
}

// NewRateLimited wraps inner so that at most perSecond calls start each second.
// perSecond <= 0 returns inner unchanged.
func NewRateLimited(inner Embedder, perSecond float64) Embedder {
	if perSecond <= 0 {
		return inner
	}
	return &RateLimited{Embedder: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Embed waits for a token, then delegates.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Embedder.Embed(ctx, text)
}

// EmbedBatch waits for a token, then delegates.
func (r *RateLimited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Embedder.EmbedBatch(ctx, texts)
}
