package retrieval

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/knowledgevault/internal/core/embedding"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

type sliceStore struct {
	chunks map[string][]models.Chunk
	err    error
}

func (s *sliceStore) ReplaceChunks(context.Context, string, string, []models.Chunk) error { return nil }

func (s *sliceStore) DeleteDocument(context.Context, string, string) (int, error) { return 0, nil }

func (s *sliceStore) AllChunks(_ context.Context, userID string) ([]models.Chunk, error) {
	return s.chunks[userID], s.err
}

type mapEmbedder map[string][]float32

func (m mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := m[text]
	if !ok {
		return nil, errors.New("unavailable")
	}
	return v, nil
}

func chunk(file string, i int, text string, vec ...float32) models.Chunk {
	var emb []float32
	if len(vec) > 0 {
		emb = vec
	}
	return models.Chunk{UserID: "u1", DocKey: "u1/" + file, FileName: file, Index: i, Text: text, Embedding: emb}
}

func TestCosine(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-2, 0.5, 4}
	assert.InDelta(t, Cosine(a, b), Cosine(b, a), 1e-12)
	assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	assert.Zero(t, Cosine([]float32{0, 0, 0}, a))
	assert.Zero(t, Cosine(a, []float32{1, 2}))
	assert.Zero(t, Cosine(nil, nil))
	assert.False(t, math.IsNaN(Cosine([]float32{0}, []float32{0})))
}

func TestRetrieve_RanksAndFilters(t *testing.T) {
	store := &sliceStore{chunks: map[string][]models.Chunk{
		"u1": {
			chunk("a.txt", 0, "exact", 1, 0),
			chunk("a.txt", 1, "close", 0.9, 0.1),
			chunk("b.txt", 0, "orthogonal", 0, 1),
			chunk("b.txt", 1, "unembedded"),
			chunk("c.txt", 0, "wrong dim", 1, 0, 0),
		},
	}}
	e := NewEngine(store, embedding.New(mapEmbedder{"q": {1, 0}}, 2, nil), nil)

	got, err := e.Retrieve(context.Background(), "u1", "q", 5, 0.3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].Chunk.Text)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, "close", got[1].Chunk.Text)
}

func TestRetrieve_TopKAndStableTies(t *testing.T) {
	store := &sliceStore{chunks: map[string][]models.Chunk{
		"u1": {
			chunk("a.txt", 0, "first", 1, 1),
			chunk("a.txt", 1, "second", 1, 1),
			chunk("a.txt", 2, "third", 1, 1),
		},
	}}
	e := NewEngine(store, embedding.New(mapEmbedder{"q": {1, 1}}, 2, nil), nil)

	got, err := e.Retrieve(context.Background(), "u1", "q", 2, -1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Chunk.Text)
	assert.Equal(t, "second", got[1].Chunk.Text)
}

func TestRetrieve_NoQueryVectorMeansNoContext(t *testing.T) {
	store := &sliceStore{err: errors.New("must not be called")}
	e := NewEngine(store, embedding.New(mapEmbedder{}, 2, nil), nil)

	got, err := e.Retrieve(context.Background(), "u1", "unknown", 5, 0.3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieve_StoreError(t *testing.T) {
	store := &sliceStore{err: errors.New("throttled")}
	e := NewEngine(store, embedding.New(mapEmbedder{"q": {1}}, 1, nil), nil)

	_, err := e.Retrieve(context.Background(), "u1", "q", 5, 0.3)
	assert.ErrorContains(t, err, "throttled")
}

func TestRetrieve_UserWithoutChunks(t *testing.T) {
	e := NewEngine(&sliceStore{}, embedding.New(mapEmbedder{"q": {1}}, 1, nil), nil)
	got, err := e.Retrieve(context.Background(), "nobody", "q", 5, 0.3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuildPrompt_NoFragmentsReturnsMessage(t *testing.T) {
	assert.Equal(t, "what is in my notes?", BuildPrompt("what is in my notes?", nil, 4000))
}

func TestBuildPrompt_Format(t *testing.T) {
	frags := []models.RetrievedFragment{
		{Chunk: chunk("a.txt", 0, "  alpha  "), Score: 0.9},
		{Chunk: chunk("b.pdf", 3, "beta"), Score: 0.8},
	}
	got := BuildPrompt("question?", frags, 4000)

	want := "Use the following excerpts from the user's documents to help answer their question. " +
		"If the excerpts are not relevant, answer from your general knowledge instead.\n\n" +
		"CONTEXT:\n[Source: a.txt, chunk 0]\nalpha\n\n---\n\n[Source: b.pdf, chunk 3]\nbeta\n\n" +
		"USER QUESTION:\nquestion?"
	assert.Equal(t, want, got)
}

func TestBuildPrompt_StopsAtBudget(t *testing.T) {
	frags := []models.RetrievedFragment{
		{Chunk: chunk("a.txt", 0, strings.Repeat("a", 2500))},
		{Chunk: chunk("a.txt", 1, strings.Repeat("b", 2000))},
		{Chunk: chunk("a.txt", 2, "small")},
	}
	got := BuildPrompt("q", frags, 4000)

	assert.Contains(t, got, "[Source: a.txt, chunk 0]")
	assert.NotContains(t, got, "[Source: a.txt, chunk 1]")
	assert.NotContains(t, got, "[Source: a.txt, chunk 2]")
}
