package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/knowledgevault/internal/models"
)

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ref models.ObjectRef) error
	ProcessObject(ctx context.Context, ref models.ObjectRef) Result
	ProcessBatch(ctx context.Context, refs []models.ObjectRef) []Result
}

var _ Ingestor = (*DocumentIngestor)(nil)
