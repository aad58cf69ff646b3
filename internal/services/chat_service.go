package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/knowledgevault/internal/config"
	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/core/quota"
	"github.com/markdave123-py/knowledgevault/internal/core/retrieval"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

// ChatConfig holds the retrieval and prompt settings of the chat path.
type ChatConfig struct {
	TopK           int
	ScoreThreshold float64
	ContextBudget  int
	MaxQueryLength int
	SystemPrompt   string
}

func NewChatConfig(cfg *config.Config) ChatConfig {
	return ChatConfig{
		TopK:           cfg.RetrievalTopK,
		ScoreThreshold: cfg.ScoreThreshold,
		ContextBudget:  cfg.ContextCharBudget,
		MaxQueryLength: cfg.MaxQueryLength,
		SystemPrompt:   cfg.SystemPrompt,
	}
}

// ChatService answers one message: quota, retrieval, prompt, generation.
type ChatService struct {
	quota     *quota.Enforcer
	retriever *retrieval.Engine
	llm       core.LLMProvider
	cfg       ChatConfig
	log       *logger.Logger
}

func NewChatService(q *quota.Enforcer, r *retrieval.Engine, llm core.LLMProvider, cfg ChatConfig, log *logger.Logger) *ChatService {
	if log == nil {
		log = logger.NewNop()
	}
	return &ChatService{quota: q, retriever: r, llm: llm, cfg: cfg, log: log.With("component", "chat")}
}

func (s *ChatService) Reply(ctx context.Context, id models.Identity, message string) (*models.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, invalid("No message provided")
	}
	if s.cfg.MaxQueryLength > 0 && utf8.RuneCountInString(message) > s.cfg.MaxQueryLength {
		return nil, invalid("Message exceeds %d characters.", s.cfg.MaxQueryLength)
	}

	ok, err := s.quota.CheckAndConsume(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &userError{kind: core.ErrQuotaExceeded, msg: "Daily message limit reached. Try again tomorrow."}
	}

	frags, err := s.retriever.Retrieve(ctx, id.Subject, message, s.cfg.TopK, s.cfg.ScoreThreshold)
	if err != nil {
		// Retrieval trouble degrades to an answer without context.
		s.log.Warn("retrieval failed", "user_id", id.Subject, "error", err)
		frags = nil
	}

	prompt := retrieval.BuildPrompt(message, frags, s.cfg.ContextBudget)
	answer, err := s.llm.Generate(ctx, s.cfg.SystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	reply := &models.ChatReply{Reply: answer}
	for _, f := range frags {
		reply.Sources = append(reply.Sources, models.Source{
			FileName:   f.Chunk.FileName,
			ChunkIndex: f.Chunk.Index,
			Score:      math.Round(f.Score*10000) / 10000,
		})
	}
	s.log.Info("chat answered", "user_id", id.Subject, "sources", len(reply.Sources))
	return reply, nil
}

// Usage reports today's message count for the caller without consuming quota.
func (s *ChatService) Usage(ctx context.Context, id models.Identity) (models.Usage, error) {
	return s.quota.Usage(ctx, id.Subject)
}
