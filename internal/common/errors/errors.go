// Package errors provides the standardized error taxonomy of the collection
// pipeline and the job scheduler.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Candidate level
const (
	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	ErrCodeDownloadFailed    ErrorCode = "DOWNLOAD_FAILED"
	ErrCodeProcessingFailed  ErrorCode = "PROCESSING_FAILED"
	ErrCodeStorageFailed     ErrorCode = "STORAGE_FAILED"
)

// Item level
const (
	ErrCodeItemCollectionFailed ErrorCode = "ITEM_COLLECTION_FAILED"
	ErrCodeItemNotFound         ErrorCode = "ITEM_NOT_FOUND"
	ErrCodeItemBusy             ErrorCode = "ITEM_BUSY"
	ErrCodeNoPendingItems       ErrorCode = "NO_PENDING_ITEMS"
)

// Scheduler level
const (
	ErrCodeUnknownQueue   ErrorCode = "UNKNOWN_QUEUE"
	ErrCodeJobNotFound    ErrorCode = "JOB_NOT_FOUND"
	ErrCodeJobActive      ErrorCode = "JOB_ACTIVE"
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is comparisons. A *StandardError matches the sentinel
// that carries the same code.
var (
	ErrSourceUnavailable    = &StandardError{Code: ErrCodeSourceUnavailable}
	ErrDownloadFailed       = &StandardError{Code: ErrCodeDownloadFailed}
	ErrProcessingFailed     = &StandardError{Code: ErrCodeProcessingFailed}
	ErrStorageFailed        = &StandardError{Code: ErrCodeStorageFailed}
	ErrItemCollectionFailed = &StandardError{Code: ErrCodeItemCollectionFailed}
	ErrItemNotFound         = &StandardError{Code: ErrCodeItemNotFound}
	ErrItemBusy             = &StandardError{Code: ErrCodeItemBusy}
	ErrNoPendingItems       = &StandardError{Code: ErrCodeNoPendingItems}
	ErrUnknownQueue         = &StandardError{Code: ErrCodeUnknownQueue}
	ErrJobNotFound          = &StandardError{Code: ErrCodeJobNotFound}
	ErrJobActive            = &StandardError{Code: ErrCodeJobActive}
	ErrInvalidPayload       = &StandardError{Code: ErrCodeInvalidPayload}
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is reports code equality so that errors.Is(err, ErrDownloadFailed) works
// for any download failure.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns e after setting key on its metadata map.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewSourceUnavailableError marks a source as unusable for the rest of a run:
// missing credentials or a refused connection.
func NewSourceUnavailableError(source string, err error) *StandardError {
	return newError(ErrCodeSourceUnavailable,
		fmt.Sprintf("Image source '%s' unavailable", source), detailsOf(err), true, err).
		WithMetadata("source", source)
}

// NewDownloadFailedError covers network errors, timeouts, oversize bodies and
// non-image responses for a single candidate.
func NewDownloadFailedError(url string, err error) *StandardError {
	return newError(ErrCodeDownloadFailed, "Candidate download failed", detailsOf(err), true, err).
		WithMetadata("url", url)
}

// NewProcessingFailedError covers decoding, derivative generation and scoring.
func NewProcessingFailedError(stage string, err error) *StandardError {
	return newError(ErrCodeProcessingFailed,
		fmt.Sprintf("Image processing failed during %s", stage), detailsOf(err), true, err).
		WithMetadata("stage", stage)
}

func NewStorageFailedError(key string, err error) *StandardError {
	return newError(ErrCodeStorageFailed, "Blob storage write failed", detailsOf(err), true, err).
		WithMetadata("key", key)
}

// NewItemCollectionFailedError is the item-level failure surfaced to the
// scheduler. terminal marks it non-retryable.
func NewItemCollectionFailedError(item string, err error, terminal bool) *StandardError {
	msg := "Item collection failed"
	if terminal {
		msg = "Item collection failed after exhausting attempts"
	}
	return newError(ErrCodeItemCollectionFailed, msg, detailsOf(err), !terminal, err).
		WithMetadata("item", item)
}

func NewItemNotFoundError(item string) *StandardError {
	return newError(ErrCodeItemNotFound, "Item not found", fmt.Sprintf("item: %s", item), false, nil)
}

// NewItemBusyError is returned when another worker holds the item lock.
func NewItemBusyError(item string) *StandardError {
	return newError(ErrCodeItemBusy, "Item is being collected by another worker",
		fmt.Sprintf("item: %s", item), true, nil)
}

func NewNoPendingItemsError(category string, collectionActive bool) *StandardError {
	details := fmt.Sprintf("category: %s", category)
	if collectionActive {
		details += ", a collection is already active"
	}
	return newError(ErrCodeNoPendingItems, "No pending items to collect", details, false, nil).
		WithMetadata("collectionActive", collectionActive)
}

func NewUnknownQueueError(queue string) *StandardError {
	return newError(ErrCodeUnknownQueue, "Queue is not registered", fmt.Sprintf("queue: %s", queue), false, nil)
}

func NewJobNotFoundError(queue, jobID string) *StandardError {
	return newError(ErrCodeJobNotFound, "Job not found",
		fmt.Sprintf("queue: %s, jobId: %s", queue, jobID), false, nil)
}

func NewJobActiveError(queue, jobID string) *StandardError {
	return newError(ErrCodeJobActive, "Job is active and cannot be removed",
		fmt.Sprintf("queue: %s, jobId: %s", queue, jobID), false, nil)
}

func NewInvalidPayloadError(jobType, details string) *StandardError {
	return newError(ErrCodeInvalidPayload, "Job payload failed validation",
		fmt.Sprintf("jobType: %s, %s", jobType, details), false, nil)
}

// RetryLimit returns how many retries a code is worth regardless of the
// queue's attempt budget. ok is false for codes without a limit of their own.
func RetryLimit(code ErrorCode) (retries int, ok bool) {
	switch code {
	case ErrCodeItemCollectionFailed, ErrCodeStorageFailed:
		return 3, true
	case ErrCodeSourceUnavailable, ErrCodeDownloadFailed, ErrCodeProcessingFailed:
		return 2, true
	case ErrCodeItemBusy:
		return 1, true
	default:
		return 0, false
	}
}

// IsRetryable reports whether a failed job should be retried. Errors outside
// the taxonomy are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return true
}

// CodeOf returns the code of the first StandardError in err's chain, or
// INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SOURCE") || strings.Contains(codeStr, "DOWNLOAD"):
		return "SOURCE"
	case strings.Contains(codeStr, "PROCESSING"):
		return "PROCESSING"
	case strings.Contains(codeStr, "STORAGE"):
		return "STORAGE"
	case strings.Contains(codeStr, "ITEM"):
		return "ITEM"
	case strings.Contains(codeStr, "QUEUE") || strings.Contains(codeStr, "JOB"):
		return "SCHEDULER"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
