package errors

import (
	stderrors "errors"
	"time"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// JobRef identifies the failing job for logging.
type JobRef struct {
	Queue        string
	JobID        string
	JobType      string
	AttemptsMade int
	MaxAttempts  int
}

// Outcome is the handler's verdict for a failed job.
type Outcome struct {
	Err   *StandardError
	Retry bool
}

// ErrorHandler normalizes job failures and decides retry versus terminal
// failure.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError classifies err for job. A retry is only granted when the
// error is retryable, attempts remain and the code's RetryLimit is not spent.
func (h *ErrorHandler) HandleJobError(job JobRef, err error) Outcome {
	stdErr := Normalize(err)
	retry := stdErr.Retryable && job.AttemptsMade < job.MaxAttempts
	if limit, ok := RetryLimit(stdErr.Code); ok && job.AttemptsMade > limit {
		retry = false
	}

	fields := map[string]interface{}{
		"queue":         job.Queue,
		"jobId":         job.JobID,
		"jobType":       job.JobType,
		"attemptsMade":  job.AttemptsMade,
		"maxAttempts":   job.MaxAttempts,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	if h.logger != nil {
		if retry {
			h.logger.Warn("Job failed, will retry", fields)
		} else {
			h.logger.Error("Job failed permanently", fields)
		}
	}
	return Outcome{Err: stdErr, Retry: retry}
}

// Normalize ensures a StandardError. Unknown errors become retryable
// INTERNAL_ERROR values wrapping the cause.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   detailsOf(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}
