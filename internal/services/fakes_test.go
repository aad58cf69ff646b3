package services

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/core/ingestion_engine"
	"github.com/markdave123-py/knowledgevault/internal/core/kvstore"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

func openDB(t *testing.T) *kvstore.SQLiteDB {
	t.Helper()
	db, err := kvstore.OpenSQLite(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string]models.ObjectInfo
	deleteErr error
	listErr   error
	deleted   []string
	presigned []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string]models.ObjectInfo{}}
}

func (f *fakeStorage) add(key string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = models.ObjectInfo{Key: key, Size: size, LastModified: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func (f *fakeStorage) HeadObject(_ context.Context, _, key string) (*models.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &o, nil
}

func (f *fakeStorage) GetFile(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStorage) ListObjects(_ context.Context, _, prefix string) ([]models.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.ObjectInfo
	for k, o := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeStorage) DeleteFile(_ context.Context, _, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) UploadFile(context.Context, string, string, io.Reader, string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeStorage) PresignUpload(_ context.Context, bucket, key, _ string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presigned = append(f.presigned, key)
	return "https://" + bucket + ".example/" + key + "?ttl=" + ttl.String(), nil
}

type fakeChunks struct {
	err     error
	deleted []string
}

func (f *fakeChunks) ReplaceChunks(context.Context, string, string, []models.Chunk) error { return nil }

func (f *fakeChunks) DeleteDocument(_ context.Context, _, docKey string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.deleted = append(f.deleted, docKey)
	return 3, nil
}

func (f *fakeChunks) AllChunks(context.Context, string) ([]models.Chunk, error) { return nil, f.err }

type fakeIngestor struct {
	queued []models.ObjectRef
	err    error
}

func (f *fakeIngestor) Start(context.Context, int) {}

func (f *fakeIngestor) Enqueue(ref models.ObjectRef) error {
	if f.err != nil {
		return f.err
	}
	f.queued = append(f.queued, ref)
	return nil
}

func (f *fakeIngestor) ProcessObject(context.Context, models.ObjectRef) ingestion_engine.Result {
	return ingestion_engine.Result{}
}

func (f *fakeIngestor) ProcessBatch(context.Context, []models.ObjectRef) []ingestion_engine.Result {
	return nil
}
