package core

import (
	"context"
	"io"
	"time"

	"github.com/markdave123-py/knowledgevault/internal/models"
)

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	HeadObject(ctx context.Context, bucket, key string) (*models.ObjectInfo, error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]models.ObjectInfo, error)
	DeleteFile(ctx context.Context, bucket, key string) error
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	PresignUpload(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (url string, err error)
}

// ChunkStore owns every persisted chunk. A document's chunks are replaced as a whole:
// delete all, then insert all.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, userID, docKey string, chunks []models.Chunk) error
	DeleteDocument(ctx context.Context, userID, docKey string) (deleted int, err error)
	AllChunks(ctx context.Context, userID string) ([]models.Chunk, error)
}
