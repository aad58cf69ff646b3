package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/markdave123-py/knowledgevault/internal/config"
	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/core/ingestion_engine"
	"github.com/markdave123-py/knowledgevault/internal/core/status"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

// DocumentLimits are the upload rules enforced before a presigned URL is issued.
type DocumentLimits struct {
	MaxFiles    int
	MaxFileSize int64
	Allowed     []string
	PresignTTL  time.Duration
}

func NewDocumentLimits(cfg *config.Config) DocumentLimits {
	return DocumentLimits{
		MaxFiles:    cfg.MaxFilesPerUser,
		MaxFileSize: cfg.MaxFileSizeBytes,
		Allowed:     append([]string(nil), cfg.AllowedExtensions...),
		PresignTTL:  cfg.PresignTTL,
	}
}

// UploadRequest is the client's description of the file it is about to upload.
type UploadRequest struct {
	FileName string `json:"filename"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

type DocumentService struct {
	storage  core.ObjectClient
	chunks   core.ChunkStore
	status   *status.Tracker
	ingestor ingestion_engine.Ingestor
	bucket   string
	limits   DocumentLimits
	log      *logger.Logger
}

func NewDocumentService(
	storage core.ObjectClient,
	chunks core.ChunkStore,
	tracker *status.Tracker,
	ing ingestion_engine.Ingestor,
	bucket string,
	limits DocumentLimits,
	log *logger.Logger,
) *DocumentService {
	if log == nil {
		log = logger.NewNop()
	}
	if limits.PresignTTL <= 0 {
		limits.PresignTTL = 5 * time.Minute
	}
	return &DocumentService{
		storage:  storage,
		chunks:   chunks,
		status:   tracker,
		ingestor: ing,
		bucket:   bucket,
		limits:   limits,
		log:      log.With("component", "documents"),
	}
}

// List returns the user's files enriched with their indexing status.
// A failed status lookup leaves that entry "unknown".
func (s *DocumentService) List(ctx context.Context, userID string) ([]models.FileEntry, error) {
	objs, err := s.storage.ListObjects(ctx, s.bucket, userPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	files := make([]models.FileEntry, 0, len(objs))
	for _, o := range objs {
		entry := models.FileEntry{
			Name:         path.Base(o.Key),
			Size:         o.Size,
			LastModified: o.LastModified.UTC().Format(time.RFC3339),
			IndexStatus:  models.StatusUnknown,
		}
		st, err := s.status.Get(ctx, userID, o.Key)
		if err != nil {
			s.log.Warn("status lookup failed", "key", o.Key, "error", err)
		} else if st != nil {
			entry.IndexStatus = st.Status
			n := st.ChunkCount
			entry.ChunkCount = &n
			if !st.LastUpdated.IsZero() {
				entry.LastIndexed = st.LastUpdated.UTC().Format(time.RFC3339)
			}
			entry.IndexError = st.Error
		}
		files = append(files, entry)
	}
	return files, nil
}

// RequestUpload validates the upload and returns a short-lived URL for a direct PUT.
func (s *DocumentService) RequestUpload(ctx context.Context, userID string, req UploadRequest) (*models.UploadTicket, error) {
	if err := validFileName(req.FileName); err != nil {
		return nil, err
	}
	ext := models.FileExtension(req.FileName)
	if !s.allowed(ext) {
		return nil, invalid("File type .%s is not supported. Allowed: %s", ext, s.allowedList())
	}
	if s.limits.MaxFileSize > 0 && req.FileSize > s.limits.MaxFileSize {
		return nil, invalid("File exceeds %d MB size limit.", s.limits.MaxFileSize/(1024*1024))
	}

	existing, err := s.storage.ListObjects(ctx, s.bucket, userPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("count files: %w", err)
	}
	if s.limits.MaxFiles > 0 && len(existing) >= s.limits.MaxFiles {
		return nil, invalid("Maximum of %d files allowed. Delete a file to upload a new one.", s.limits.MaxFiles)
	}

	key := userPrefix(userID) + req.FileName
	url, err := s.storage.PresignUpload(ctx, s.bucket, key, req.FileType, s.limits.PresignTTL)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	s.log.Info("upload url issued", "user_id", userID, "key", key)
	return &models.UploadTicket{UploadURL: url, Key: key}, nil
}

// Delete removes the object, then purges its chunks and status. Only the object
// delete can fail the call.
func (s *DocumentService) Delete(ctx context.Context, userID, filename string) error {
	if filename == "" {
		return invalid("Filename required")
	}
	if err := validFileName(filename); err != nil {
		return err
	}
	key := userPrefix(userID) + filename

	if err := s.storage.DeleteFile(ctx, s.bucket, key); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	if s.chunks != nil {
		n, err := s.chunks.DeleteDocument(ctx, userID, key)
		if err != nil {
			s.log.Warn("chunk purge failed", "key", key, "error", err)
		} else {
			s.log.Info("chunks purged", "key", key, "chunks", n)
		}
	}
	if err := s.status.Delete(ctx, userID, key); err != nil {
		s.log.Warn("status delete failed", "key", key, "error", err)
	}
	return nil
}

// Reindex queues an existing object for another pipeline run and returns its key.
func (s *DocumentService) Reindex(ctx context.Context, userID, filename string) (string, error) {
	if filename == "" {
		return "", invalid("Filename required")
	}
	if err := validFileName(filename); err != nil {
		return "", err
	}
	key := userPrefix(userID) + filename

	if _, err := s.storage.HeadObject(ctx, s.bucket, key); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", core.ErrNotFound, filename)
		}
		return "", fmt.Errorf("head object: %w", err)
	}
	if err := s.ingestor.Enqueue(models.ObjectRef{Bucket: s.bucket, Key: key}); err != nil {
		return "", err
	}
	return key, nil
}

func (s *DocumentService) allowed(ext string) bool {
	for _, e := range s.limits.Allowed {
		if e == ext {
			return true
		}
	}
	return false
}

func (s *DocumentService) allowedList() string {
	out := append([]string(nil), s.limits.Allowed...)
	sort.Strings(out)
	return strings.Join(out, ", ")
}

func validFileName(name string) error {
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return invalid("Invalid filename")
	}
	return nil
}

func userPrefix(userID string) string {
	return userID + "/"
}
