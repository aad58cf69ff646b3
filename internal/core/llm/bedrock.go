package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/markdave123-py/knowledgevault/internal/core"
)

// BedrockAPI is the subset of the Bedrock runtime client used here.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions"`
	Normalize  bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding []float32 `json:"embedding"`
}

// TitanEmbedder calls a Titan text embedding model with normalised output.
type TitanEmbedder struct {
	api     BedrockAPI
	modelID string
	dim     int
}

var _ core.EmbeddingProvider = (*TitanEmbedder)(nil)

func NewTitanEmbedder(api BedrockAPI, modelID string, dim int) *TitanEmbedder {
	if modelID == "" {
		modelID = "amazon.titan-embed-text-v2:0"
	}
	if dim <= 0 {
		dim = 256
	}
	return &TitanEmbedder{api: api, modelID: modelID, dim: dim}
}

func (e *TitanEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanRequest{InputText: text, Dimensions: e.dim, Normalize: true})
	if err != nil {
		return nil, err
	}
	out, err := e.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock embed: %w", err)
	}
	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("bedrock embed: empty embedding")
	}
	return resp.Embedding, nil
}

// BedrockLLM generates single-turn completions through the Converse API.
type BedrockLLM struct {
	api     BedrockAPI
	modelID string
	params  GenerationParams
}

var _ core.LLMProvider = (*BedrockLLM)(nil)

func NewBedrockLLM(api BedrockAPI, modelID string, params GenerationParams) *BedrockLLM {
	if modelID == "" {
		modelID = "amazon.nova-lite-v1:0"
	}
	return &BedrockLLM{api: api, modelID: modelID, params: params}
}

func (b *BedrockLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.modelID),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: userPrompt}},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(b.params.MaxTokens),
			Temperature: aws.Float32(b.params.Temperature),
			TopP:        aws.Float32(b.params.TopP),
		},
	}
	if systemPrompt != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: systemPrompt}}
	}

	out, err := b.api.Converse(ctx, in)
	if err != nil {
		return "", fmt.Errorf("bedrock converse: %w", err)
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("bedrock converse: no message in output")
	}

	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(t.Value)
		}
	}
	return sb.String(), nil
}
