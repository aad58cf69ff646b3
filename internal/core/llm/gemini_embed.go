package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"github.com/markdave123-py/knowledgevault/internal/core"
)

const defaultGeminiEmbedModel = "gemini-embedding-001"

// GeminiEmbedder embeds text with a Gemini embedding model.
type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dim       int
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dim int) (*GeminiEmbedder, error) {
	cl, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = defaultGeminiEmbedModel
	}
	return &GeminiEmbedder{client: cl, modelName: modelName, dim: dim}, nil
}

func (g *GeminiEmbedder) Close() error {
	return g.client.Close()
}

// Embed returns the leading dim components of the model's embedding; the model's
// vectors stay meaningful under truncation and cosine scoring ignores magnitude.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.modelName)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, errors.New("gemini embed: empty embedding")
	}
	return truncate(resp.Embedding.Values, g.dim), nil
}

func truncate(v []float32, dim int) []float32 {
	if dim > 0 && len(v) > dim {
		return v[:dim]
	}
	return v
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)
