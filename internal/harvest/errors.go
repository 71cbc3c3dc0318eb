package harvest

import (
	"context"
	"errors"
)

// Error taxonomy for the pipeline. Callers wrap these with fmt.Errorf("...: %w").
var (
	ErrFetch               = errors.New("fetch failure")
	ErrParse               = errors.New("parse failure")
	ErrStoreWrite          = errors.New("store write failure")
	ErrClassifierRetryable = errors.New("classifier retryable failure")
	ErrClassifierFatal     = errors.New("classifier fatal failure")
	ErrMalformedResponse   = errors.New("classifier malformed response")
	ErrNotFound            = errors.New("record not found")
	ErrArchive             = errors.New("archive failure")
)

// KindOf maps an error to a stable label for logs and metrics.
// Taxonomy sentinels take precedence over context errors they wrap.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStoreWrite):
		return "store_write"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrClassifierFatal):
		return "classifier_fatal"
	case errors.Is(err, ErrClassifierRetryable):
		return "classifier_retryable"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrArchive):
		return "archive"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}
