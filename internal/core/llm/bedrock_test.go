package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBedrock struct {
	invokeIn  *bedrockruntime.InvokeModelInput
	invokeOut []byte
	converse  *bedrockruntime.ConverseInput
	reply     types.ConverseOutput
	err       error
}

func (f *fakeBedrock) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.invokeIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.invokeOut}, nil
}

func (f *fakeBedrock) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.converse = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.ConverseOutput{Output: f.reply}, nil
}

func TestTitanEmbedder_RequestBody(t *testing.T) {
	api := &fakeBedrock{invokeOut: []byte(`{"embedding":[0.1,0.2],"inputTextTokenCount":3}`)}
	e := NewTitanEmbedder(api, "", 256)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)

	assert.Equal(t, "amazon.titan-embed-text-v2:0", aws.ToString(api.invokeIn.ModelId))
	var body map[string]any
	require.NoError(t, json.Unmarshal(api.invokeIn.Body, &body))
	assert.Equal(t, "hello", body["inputText"])
	assert.Equal(t, float64(256), body["dimensions"])
	assert.Equal(t, true, body["normalize"])
}

func TestTitanEmbedder_Errors(t *testing.T) {
	_, err := NewTitanEmbedder(&fakeBedrock{err: errors.New("throttled")}, "", 256).Embed(context.Background(), "x")
	assert.Error(t, err)

	_, err = NewTitanEmbedder(&fakeBedrock{invokeOut: []byte(`{}`)}, "", 256).Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestBedrockLLM_Generate(t *testing.T) {
	api := &fakeBedrock{reply: &types.ConverseOutputMemberMessage{Value: types.Message{
		Role: types.ConversationRoleAssistant,
		Content: []types.ContentBlock{
			&types.ContentBlockMemberText{Value: "Hello "},
			&types.ContentBlockMemberText{Value: "there"},
		},
	}}}
	l := NewBedrockLLM(api, "", DefaultGenerationParams())

	out, err := l.Generate(context.Background(), "be brief", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)

	in := api.converse
	assert.Equal(t, "amazon.nova-lite-v1:0", aws.ToString(in.ModelId))
	assert.Equal(t, int32(512), aws.ToInt32(in.InferenceConfig.MaxTokens))
	assert.InDelta(t, 0.5, aws.ToFloat32(in.InferenceConfig.Temperature), 1e-6)
	assert.InDelta(t, 0.9, aws.ToFloat32(in.InferenceConfig.TopP), 1e-6)
	require.Len(t, in.System, 1)
	require.Len(t, in.Messages, 1)
	text, ok := in.Messages[0].Content[0].(*types.ContentBlockMemberText)
	require.True(t, ok)
	assert.Equal(t, "hi", text.Value)
}

func TestBedrockLLM_NoSystemPrompt(t *testing.T) {
	api := &fakeBedrock{reply: &types.ConverseOutputMemberMessage{}}
	_, err := NewBedrockLLM(api, "m", DefaultGenerationParams()).Generate(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Empty(t, api.converse.System)
}

func TestTruncate_ShortVectors(t *testing.T) {
	assert.Equal(t, []float32{1, 2}, truncate([]float32{1, 2, 3}, 2))
	assert.Equal(t, []float32{1}, truncate([]float32{1}, 4))
	assert.Equal(t, []float32{1, 2}, truncate([]float32{1, 2}, 0))
}
