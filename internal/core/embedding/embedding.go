// Package embedding wraps an embedding provider so callers never see its failures.
package embedding

import (
	"context"

	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/logger"
)

// Embedder returns nil instead of an error whenever the provider is unavailable.
type Embedder struct {
	provider core.EmbeddingProvider
	dim      int
	log      *logger.Logger
}

func New(provider core.EmbeddingProvider, dim int, log *logger.Logger) *Embedder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Embedder{provider: provider, dim: dim, log: log}
}

// Embed returns the vector for text, or nil when no vector could be produced.
func (e *Embedder) Embed(ctx context.Context, text string) []float32 {
	if e == nil || e.provider == nil {
		return nil
	}
	vec, err := e.provider.Embed(ctx, text)
	if err != nil {
		e.log.Warn("embedding unavailable", "error", err, "chars", len(text))
		return nil
	}
	if len(vec) == 0 {
		return nil
	}
	if e.dim > 0 && len(vec) != e.dim {
		// Kept as-is; such vectors score 0 against configured-dimension queries.
		e.log.Warn("embedding dimension mismatch", "want", e.dim, "got", len(vec))
	}
	return vec
}
