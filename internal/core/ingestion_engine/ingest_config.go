package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/knowledgevault/internal/config"
	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/core/backoff"
	"github.com/markdave123-py/knowledgevault/internal/core/embedding"
	"github.com/markdave123-py/knowledgevault/internal/core/status"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

// IngestConfig tunes the pipeline.
//
// ChunkSize:    target characters per chunk (e.g., 500).
// ChunkOverlap: characters shared by consecutive chunks (e.g., 100).
// MaxFileSize:  objects larger than this are rejected before download.
// Workers:      concurrent objects per batch and reindex workers.
// QueueSize:    capacity of the in-process reindex queue.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	MaxFileSize  int64
	Allowed      []string
	Workers      int
	QueueSize    int
	OCRPoll      backoff.Policy
}

// NewIngestConfig derives the pipeline settings from the service configuration.
func NewIngestConfig(cfg *config.Config) IngestConfig {
	return IngestConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		MaxFileSize:  cfg.MaxFileSizeBytes,
		Allowed:      append([]string(nil), cfg.AllowedExtensions...),
		Workers:      cfg.IngestWorkers,
		QueueSize:    64,
		OCRPoll: backoff.Policy{
			MaxAttempts: cfg.OCRPollAttempts,
			Initial:     cfg.OCRPollInitial,
			Max:         cfg.OCRPollMax,
			Multiplier:  2,
		},
	}
}

func (c IngestConfig) allowed(ext string) bool {
	for _, e := range c.Allowed {
		if e == ext {
			return true
		}
	}
	return false
}

// TextChunk is one chunker output.
//
// Index:  zero-based position of the chunk inside the document.
// Text:   trimmed chunk content.
// Tokens: approximate token count, for logging.
type TextChunk struct {
	Index  int
	Text   string
	Tokens int
}

// Result statuses.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Result is the outcome of one object's pipeline run.
type Result struct {
	Key    string `json:"key"`
	Status string `json:"status"`
	Chunks int    `json:"chunks,omitempty"`
	Error  string `json:"error,omitempty"`
	Err    error  `json:"-"`
}

// DocumentIngestor orchestrates ingestion of uploaded objects:
//
// obj:       object storage (HEAD for the size guard).
// extractor: turns an object into text.
// embedder:  degrades to nil vectors when the provider fails.
// store:     chunk persistence.
// status:    best-effort document status.
// jobs:      in-memory reindex queue (no durability).
type DocumentIngestor struct {
	obj       core.ObjectClient
	extractor core.DocumentExtractor
	embedder  *embedding.Embedder
	store     core.ChunkStore
	status    *status.Tracker
	cfg       IngestConfig
	log       *logger.Logger
	now       func() time.Time
	jobs      chan models.ObjectRef
}
