package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/core/embedding"
	"github.com/markdave123-py/knowledgevault/internal/core/status"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

// ErrQueueFull is returned by Enqueue when the reindex queue has no room.
var ErrQueueFull = errors.New("ingest queue full")

// NewDocumentIngestor constructs the ingestor with a bounded reindex queue.
func NewDocumentIngestor(
	obj core.ObjectClient,
	extractor core.DocumentExtractor,
	emb *embedding.Embedder,
	store core.ChunkStore,
	tracker *status.Tracker,
	cfg IngestConfig,
	log *logger.Logger,
) *DocumentIngestor {
	if log == nil {
		log = logger.NewNop()
	}
	if tracker == nil {
		tracker = status.NewTracker(nil, log)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &DocumentIngestor{
		obj:       obj,
		extractor: extractor,
		embedder:  emb,
		store:     store,
		status:    tracker,
		cfg:       cfg,
		log:       log.With("component", "ingestor"),
		now:       time.Now,
		jobs:      make(chan models.ObjectRef, cfg.QueueSize),
	}
}

// Start runs numWorkers goroutines draining the reindex queue until ctx is done.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					i.log.Debug("ingest worker shutting down", "worker", w)
					return
				case ref := <-i.jobs:
					res := i.ProcessObject(ctx, ref)
					i.log.Info("reindex finished", "worker", w, "key", ref.Key, "status", res.Status, "chunks", res.Chunks)
				}
			}
		}(w)
	}
}

// Enqueue schedules an object for (re)ingestion without blocking.
func (i *DocumentIngestor) Enqueue(ref models.ObjectRef) error {
	select {
	case i.jobs <- ref:
		return nil
	default:
		return ErrQueueFull
	}
}

// ProcessBatch runs every object independently, at most cfg.Workers at a time.
// Results are positionally aligned with refs.
func (i *DocumentIngestor) ProcessBatch(ctx context.Context, refs []models.ObjectRef) []Result {
	runID := uuid.NewString()
	log := i.log.With("run_id", runID)
	log.Info("ingest batch started", "objects", len(refs))

	results := make([]Result, len(refs))
	var g errgroup.Group
	g.SetLimit(i.cfg.Workers)
	for idx, ref := range refs {
		g.Go(func() error {
			results[idx] = i.ProcessObject(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Status != ResultOK {
			failed++
		}
	}
	log.Info("ingest batch finished", "objects", len(refs), "failed", failed)
	return results
}

// ProcessObject runs the whole pipeline for one object. It never panics and never
// returns an error: every failure is folded into the Result and the document status.
func (i *DocumentIngestor) ProcessObject(ctx context.Context, ref models.ObjectRef) (res Result) {
	res = Result{Key: ref.Key}

	userID, filename, ok := SplitKey(ref.Key)
	if !ok {
		err := rejected(nil, fmt.Sprintf("Unexpected key format '%s'. Skipping.", ref.Key))
		i.log.Warn("skipping object", "key", ref.Key, "error", err)
		return fail(res, err)
	}
	log := i.log.With("user_id", userID, "key", ref.Key)

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic: %v", p)
			log.Error("ingest panicked", "error", err, "stack", string(debug.Stack()))
			i.setStatus(ctx, userID, ref.Key, filename, models.StatusError, nil, err.Error())
			res = fail(Result{Key: ref.Key}, err)
		}
	}()

	i.setStatus(ctx, userID, ref.Key, filename, models.StatusProcessing, nil, "")

	chunks, err := i.run(ctx, ref, filename, log)
	if err != nil {
		log.Warn("ingest failed", "error", err)
		i.setStatus(ctx, userID, ref.Key, filename, models.StatusError, nil, err.Error())
		return fail(res, err)
	}

	i.setStatus(ctx, userID, ref.Key, filename, models.StatusIndexed, status.Count(chunks), "")
	log.Info("document indexed", "chunks", chunks)
	res.Status = ResultOK
	res.Chunks = chunks
	return res
}

func (i *DocumentIngestor) run(ctx context.Context, ref models.ObjectRef, filename string, log *logger.Logger) (int, error) {
	ext := models.FileExtension(filename)
	if !i.cfg.allowed(ext) {
		return 0, rejected(core.ErrUnsupportedType, fmt.Sprintf(
			"Unsupported file type '.%s'. Allowed: %s.", ext, strings.Join(i.cfg.Allowed, ", ")))
	}

	info, err := i.obj.HeadObject(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return 0, fmt.Errorf("head object: %w", err)
	}
	if i.cfg.MaxFileSize > 0 && info.Size > i.cfg.MaxFileSize {
		return 0, rejected(nil, fmt.Sprintf("File exceeds %d MB limit (%.1f MB).",
			i.cfg.MaxFileSize/(1024*1024), float64(info.Size)/1024/1024))
	}

	text, err := i.extractor.Extract(ctx, ref)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, rejected(nil, fmt.Sprintf("No extractable text found in '%s'.", filename))
	}
	log.Debug("text extracted", "chars", len([]rune(text)), "approx_tokens", approxTokens(text))

	pieces := ChunkText(text, i.cfg.ChunkSize, i.cfg.ChunkOverlap)
	userID, _, _ := SplitKey(ref.Key)
	createdAt := i.now().UTC()

	chunks := make([]models.Chunk, 0, len(pieces))
	missing := 0
	for _, p := range pieces {
		vec := i.embedder.Embed(ctx, p.Text)
		if vec == nil {
			missing++
		}
		chunks = append(chunks, models.Chunk{
			UserID:    userID,
			DocKey:    ref.Key,
			Index:     p.Index,
			Text:      p.Text,
			Embedding: vec,
			FileName:  filename,
			CreatedAt: createdAt,
		})
	}
	if missing > 0 {
		log.Warn("chunks stored without embedding", "missing", missing, "chunks", len(chunks))
	}

	if err := i.store.ReplaceChunks(ctx, userID, ref.Key, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	return len(chunks), nil
}

// setStatus is best effort: failures are logged by the tracker and dropped here.
func (i *DocumentIngestor) setStatus(ctx context.Context, userID, key, filename, st string, count *int, msg string) {
	_ = i.status.Set(ctx, status.Update{
		UserID:     userID,
		DocKey:     key,
		FileName:   filename,
		Status:     st,
		ChunkCount: count,
		Error:      msg,
	})
}

func fail(res Result, err error) Result {
	res.Status = ResultError
	res.Error = err.Error()
	res.Err = err
	return res
}

// SplitKey splits "<user_id>/<filename>" on the first slash; both parts must be non-empty.
func SplitKey(key string) (userID, filename string, ok bool) {
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// guardError is a rejection before any expensive work; its message is user facing.
type guardError struct {
	cause error
	msg   string
}

func rejected(cause error, msg string) error {
	return &guardError{cause: cause, msg: msg}
}

func (e *guardError) Error() string { return e.msg }

func (e *guardError) Unwrap() error { return e.cause }

func (e *guardError) Is(target error) bool { return target == core.ErrGuardRejected }
