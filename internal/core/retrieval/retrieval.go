// Package retrieval scores a user's stored chunks against a query and builds the grounded prompt.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/core/embedding"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

// DefaultContextBudget caps the characters of chunk text placed in a prompt.
const DefaultContextBudget = 4000

const (
	sourceSeparator = "\n\n---\n\n"
	promptPreamble  = "Use the following excerpts from the user's documents to help answer " +
		"their question. If the excerpts are not relevant, answer from your " +
		"general knowledge instead.\n\n"
)

// Engine is a brute-force retriever: every chunk of the user is scored on every query.
type Engine struct {
	store    core.ChunkStore
	embedder *embedding.Embedder
	log      *logger.Logger
}

func NewEngine(store core.ChunkStore, emb *embedding.Embedder, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{store: store, embedder: emb, log: log.With("component", "retrieval")}
}

// Retrieve returns at most topK fragments scoring at least threshold, best first.
// A query that cannot be embedded yields no fragments and no error.
func (e *Engine) Retrieve(ctx context.Context, userID, query string, topK int, threshold float64) ([]models.RetrievedFragment, error) {
	if e.store == nil || topK <= 0 {
		return nil, nil
	}
	qvec := e.embedder.Embed(ctx, query)
	if qvec == nil {
		e.log.Info("query not embedded, answering without context", "user_id", userID)
		return nil, nil
	}

	chunks, err := e.store.AllChunks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	scored := make([]models.RetrievedFragment, 0, len(chunks))
	for _, c := range chunks {
		if c.Embedding == nil {
			continue
		}
		s := Cosine(qvec, c.Embedding)
		if s < threshold {
			continue
		}
		scored = append(scored, models.RetrievedFragment{Chunk: c, Score: s})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	e.log.Debug("retrieval done", "user_id", userID, "chunks", len(chunks), "hits", len(scored))
	return scored, nil
}

// Cosine is the cosine similarity of a and b, or 0 when either is empty or zero,
// or when their dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// BuildPrompt wraps message with the fragments' text, in order, until the next fragment
// would take the total past budget characters. With no fragments, message is returned as is.
func BuildPrompt(message string, fragments []models.RetrievedFragment, budget int) string {
	if len(fragments) == 0 {
		return message
	}
	if budget <= 0 {
		budget = DefaultContextBudget
	}

	parts := make([]string, 0, len(fragments))
	total := 0
	for _, f := range fragments {
		text := strings.TrimSpace(f.Chunk.Text)
		n := utf8.RuneCountInString(text)
		if total+n > budget {
			break
		}
		parts = append(parts, fmt.Sprintf("[Source: %s, chunk %d]\n%s", f.Chunk.FileName, f.Chunk.Index, text))
		total += n
	}

	var sb strings.Builder
	sb.WriteString(promptPreamble)
	sb.WriteString("CONTEXT:\n")
	sb.WriteString(strings.Join(parts, sourceSeparator))
	sb.WriteString("\n\nUSER QUESTION:\n")
	sb.WriteString(message)
	return sb.String()
}
