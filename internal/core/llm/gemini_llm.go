package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/knowledgevault/internal/core"
)

const defaultGeminiChatModel = "gemini-1.5-flash"

// GeminiLLM answers chat prompts with a Gemini generative model.
type GeminiLLM struct {
	client *genai.Client
	model  string
	params GenerationParams
}

func newGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key required")
	}
	return genai.NewClient(ctx, option.WithAPIKey(apiKey))
}

func NewGeminiLLM(ctx context.Context, apiKey, model string, params GenerationParams) (*GeminiLLM, error) {
	cl, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = defaultGeminiChatModel
	}
	return &GeminiLLM{client: cl, model: model, params: params}, nil
}

func (g *GeminiLLM) Close() error {
	return g.client.Close()
}

func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.SetMaxOutputTokens(g.params.MaxTokens)
	m.SetTemperature(g.params.Temperature)
	m.SetTopP(g.params.TopP)
	if systemPrompt != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return replyText(resp)
}

// replyText joins the text parts of the first candidate. Blocked prompts and
// safety stops are errors rather than empty replies.
func replyText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini generate: nil response")
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("gemini generate: prompt blocked (%s)", fb.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("gemini generate: no candidates")
	}
	c := resp.Candidates[0]
	if c.FinishReason == genai.FinishReasonSafety {
		return "", errors.New("gemini generate: stopped by safety filter")
	}
	if c.Content == nil {
		return "", nil
	}

	parts := make([]string, 0, len(c.Content.Parts))
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ""), nil
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
