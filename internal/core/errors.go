package core

import "errors"

var (
	// ErrGuardRejected marks inputs refused before any expensive processing.
	ErrGuardRejected = errors.New("rejected")
	// ErrUnsupportedType is returned for extensions outside the allow-list.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrExtractionFailed wraps downstream extraction/OCR failures.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrTimeout is returned when asynchronous OCR does not finish within its polling budget.
	ErrTimeout = errors.New("timed out")
	// ErrSyncUnsupported signals that synchronous OCR cannot handle the document.
	ErrSyncUnsupported = errors.New("document not supported by synchronous ocr")
	// ErrQuotaExceeded is returned when the daily message limit has been reached.
	ErrQuotaExceeded = errors.New("daily message limit reached")
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is a generic sentinel for invalid caller input.
	ErrInvalidInput = errors.New("invalid input")
)
