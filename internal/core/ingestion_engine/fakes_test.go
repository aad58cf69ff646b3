package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/core/kvstore"
	"github.com/markdave123-py/knowledgevault/internal/core/status"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

// memObjects is an in-memory object store keyed by "bucket/key".
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
}

func (m *memObjects) HeadObject(_ context.Context, bucket, key string) (*models.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &models.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memObjects) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return data, nil
}

func (m *memObjects) ListObjects(context.Context, string, string) ([]models.ObjectInfo, error) {
	return nil, errors.New("not implemented")
}

func (m *memObjects) DeleteFile(context.Context, string, string) error {
	return errors.New("not implemented")
}

func (m *memObjects) UploadFile(context.Context, string, string, io.Reader, string) (string, error) {
	return "", errors.New("not implemented")
}

func (m *memObjects) PresignUpload(context.Context, string, string, string, time.Duration) (string, error) {
	return "", errors.New("not implemented")
}

// scriptedOCR plays back a fixed sequence of job states.
type scriptedOCR struct {
	syncLines []string
	syncErr   error
	states    []core.OCRJob
	polls     int
	started   int
}

func (s *scriptedOCR) DetectText(context.Context, models.ObjectRef) ([]string, error) {
	return s.syncLines, s.syncErr
}

func (s *scriptedOCR) StartTextDetection(_ context.Context, ref models.ObjectRef) (string, error) {
	s.started++
	return "job-" + ref.Key, nil
}

func (s *scriptedOCR) TextDetectionResult(context.Context, string) (*core.OCRJob, error) {
	i := s.polls
	s.polls++
	if i >= len(s.states) {
		return &core.OCRJob{Status: core.OCRJobInProgress}, nil
	}
	job := s.states[i]
	return &job, nil
}

// recordingSleeper captures requested delays without waiting.
type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

// hashEmbedder returns a deterministic vector, or fails for texts containing "FAIL".
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	for i := 0; i+4 <= len(text); i++ {
		if text[i:i+4] == "FAIL" {
			return nil, errors.New("model throttled")
		}
	}
	return []float32{float32(len(text)), 1}, nil
}

// panicExtractor blows up for one key.
type panicExtractor struct {
	core.DocumentExtractor
	key string
}

func (p panicExtractor) Extract(ctx context.Context, ref models.ObjectRef) (string, error) {
	if ref.Key == p.key {
		panic(fmt.Sprintf("corrupt object %s", ref.Key))
	}
	return p.DocumentExtractor.Extract(ctx, ref)
}

// statusLog records every status written through it, per document, in order.
type statusLog struct {
	kvstore.Table
	mu     sync.Mutex
	writes map[string][]string
}

func (l *statusLog) Put(ctx context.Context, item kvstore.Item) error {
	l.mu.Lock()
	if l.writes == nil {
		l.writes = map[string][]string{}
	}
	key := item.GetString(status.AttrDocKey)
	l.writes[key] = append(l.writes[key], item.GetString(status.AttrStatus))
	l.mu.Unlock()
	return l.Table.Put(ctx, item)
}

func (l *statusLog) history(docKey string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.writes[docKey]...)
}
