package llm

// GenerationParams are the sampling settings for chat completions.
type GenerationParams struct {
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// DefaultGenerationParams is 512 tokens at temperature 0.5, top-p 0.9.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{MaxTokens: 512, Temperature: 0.5, TopP: 0.9}
}
