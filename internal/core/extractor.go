package core

import (
	"context"

	"github.com/markdave123-py/knowledgevault/internal/models"
)

// DocumentExtractor turns a stored object into plain text.
type DocumentExtractor interface {
	Extract(ctx context.Context, ref models.ObjectRef) (string, error)
}

// DocumentConverter converts in-memory office/markup documents to text without OCR.
type DocumentConverter interface {
	Convert(ctx context.Context, data []byte, contentType string) (string, error)
}

// OCRJobStatus is the state of an asynchronous OCR job.
type OCRJobStatus string

const (
	OCRJobInProgress OCRJobStatus = "IN_PROGRESS"
	OCRJobSucceeded  OCRJobStatus = "SUCCEEDED"
	OCRJobFailed     OCRJobStatus = "FAILED"
)

// OCRJob is a poll result; Lines holds every LINE across all result pages once the job succeeded.
type OCRJob struct {
	Status  OCRJobStatus
	Lines   []string
	Message string
}

// OCRClient is the text-detection service. DetectText returns ErrSyncUnsupported when the
// document has to go through the asynchronous workflow instead.
type OCRClient interface {
	DetectText(ctx context.Context, ref models.ObjectRef) ([]string, error)
	StartTextDetection(ctx context.Context, ref models.ObjectRef) (jobID string, err error)
	TextDetectionResult(ctx context.Context, jobID string) (*OCRJob, error)
}
