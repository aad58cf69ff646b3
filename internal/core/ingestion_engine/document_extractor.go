package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/core/backoff"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

var (
	plainExtensions = map[string]bool{"txt": true, "csv": true, "md": true}
	ocrExtensions   = map[string]bool{"pdf": true, "png": true, "jpg": true, "jpeg": true, "tiff": true, "docx": true}
	// convertTypes are decoded in-process by docconv when allowed.
	convertTypes = map[string]string{
		"html": "text/html",
		"htm":  "text/html",
		"odt":  "application/vnd.oasis.opendocument.text",
	}
)

// DocconvConverter implements core.DocumentConverter using sajari/docconv.
type DocconvConverter struct {
	useReadability bool
}

var _ core.DocumentConverter = (*DocconvConverter)(nil)

func NewDocconvConverter(useReadability bool) *DocconvConverter {
	return &DocconvConverter{useReadability: useReadability}
}

func (c *DocconvConverter) Convert(ctx context.Context, data []byte, contentType string) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), contentType, c.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv %s: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return res.Body, nil
}

// Extractor dispatches on the object's extension: plain decode, OCR (sync first,
// async with bounded polling when the service refuses sync mode) or docconv.
type Extractor struct {
	obj     core.ObjectClient
	ocr     core.OCRClient
	conv    core.DocumentConverter
	allowed func(ext string) bool
	poll    backoff.Policy
	sleep   backoff.Sleeper
	log     *logger.Logger
}

var _ core.DocumentExtractor = (*Extractor)(nil)

func NewExtractor(obj core.ObjectClient, ocr core.OCRClient, conv core.DocumentConverter, cfg IngestConfig, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Extractor{
		obj:     obj,
		ocr:     ocr,
		conv:    conv,
		allowed: cfg.allowed,
		poll:    cfg.OCRPoll,
		sleep:   backoff.Sleep,
		log:     log,
	}
}

func (e *Extractor) Extract(ctx context.Context, ref models.ObjectRef) (string, error) {
	ext := models.FileExtension(ref.Key)
	if !e.allowed(ext) {
		return "", fmt.Errorf("%w: '.%s'", core.ErrUnsupportedType, ext)
	}

	switch {
	case plainExtensions[ext]:
		return e.decode(ctx, ref)
	case ocrExtensions[ext]:
		return e.recognize(ctx, ref)
	case convertTypes[ext] != "":
		return e.convert(ctx, ref, convertTypes[ext])
	default:
		return e.decode(ctx, ref)
	}
}

// decode reads the object as UTF-8, replacing invalid sequences with U+FFFD.
func (e *Extractor) decode(ctx context.Context, ref models.ObjectRef) (string, error) {
	data, err := e.obj.GetFile(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

func (e *Extractor) convert(ctx context.Context, ref models.ObjectRef, contentType string) (string, error) {
	if e.conv == nil {
		return "", fmt.Errorf("%w: no converter configured", core.ErrExtractionFailed)
	}
	data, err := e.obj.GetFile(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
	}
	text, err := e.conv.Convert(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
	}
	return text, nil
}

func (e *Extractor) recognize(ctx context.Context, ref models.ObjectRef) (string, error) {
	if e.ocr == nil {
		return "", fmt.Errorf("%w: no ocr service configured", core.ErrExtractionFailed)
	}

	lines, err := e.ocr.DetectText(ctx, ref)
	if err == nil {
		return strings.Join(lines, "\n"), nil
	}
	if !errors.Is(err, core.ErrSyncUnsupported) {
		return "", fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
	}

	e.log.Info("falling back to async ocr", "key", ref.Key)
	return e.recognizeAsync(ctx, ref)
}

func (e *Extractor) recognizeAsync(ctx context.Context, ref models.ObjectRef) (string, error) {
	jobID, err := e.ocr.StartTextDetection(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
	}

	var lines []string
	err = backoff.Poll(ctx, e.poll, e.sleep, func(ctx context.Context, attempt int) (bool, error) {
		job, err := e.ocr.TextDetectionResult(ctx, jobID)
		if err != nil {
			return false, fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
		}
		switch job.Status {
		case core.OCRJobSucceeded:
			lines = job.Lines
			return true, nil
		case core.OCRJobFailed:
			return false, fmt.Errorf("%w: ocr job %s failed: %s", core.ErrExtractionFailed, jobID, job.Message)
		default:
			e.log.Debug("ocr job pending", "job_id", jobID, "attempt", attempt+1)
			return false, nil
		}
	})
	if errors.Is(err, backoff.ErrExhausted) {
		return "", fmt.Errorf("%w: ocr job %s did not complete after %d polls", core.ErrTimeout, jobID, e.poll.MaxAttempts)
	}
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}
