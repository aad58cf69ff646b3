package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/knowledgevault/internal/core/ingestion_engine"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

type batchRecorder struct {
	ingestion_engine.Ingestor
	refs []models.ObjectRef
}

func (b *batchRecorder) ProcessBatch(_ context.Context, refs []models.ObjectRef) []ingestion_engine.Result {
	b.refs = refs
	out := make([]ingestion_engine.Result, len(refs))
	for i, r := range refs {
		out[i] = ingestion_engine.Result{Key: r.Key, Status: ingestion_engine.ResultOK}
	}
	return out
}

func TestHandler_S3Event(t *testing.T) {
	rec := &batchRecorder{}
	raw := `{"Records":[{"eventSource":"aws:s3","eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"vault"},"object":{"key":"u1/a+b.txt"}}}]}`

	resp, err := handler(rec, logger.NewNop())(context.Background(), json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, []models.ObjectRef{{Bucket: "vault", Key: "u1/a b.txt"}}, rec.refs)
	require.Len(t, resp.Processed, 1)

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"processed":[{"key":"u1/a b.txt","status":"ok"}]}`, string(out))
}

func TestHandler_UnknownEvent(t *testing.T) {
	_, err := handler(&batchRecorder{}, logger.NewNop())(context.Background(), json.RawMessage(`{"Records":[{"eventSource":"aws:sns"}]}`))
	assert.ErrorIs(t, err, ingestion_engine.ErrUnknownEnvelope)
}
