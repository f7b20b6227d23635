// internal/workers/collection/collect-item/handler.go
package collectitem

import (
	"context"
	"fmt"
	"time"

	"image-collector/internal/collector"
	"image-collector/internal/common/config"
	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/logger"
	"image-collector/internal/models"
	"image-collector/internal/planner"
	"image-collector/internal/scheduler"
)

const (
	TaskType = "collect-item"
)

type Collector interface {
	Collect(ctx context.Context, key models.ItemKey, opts collector.Options) (*collector.Result, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload models.JobPayload, opts scheduler.JobOptions) (scheduler.JobHandle, error)
}

type Handler struct {
	config    *Config
	collector Collector
	queue     Enqueuer
	logger    logger.Logger
	now       func() time.Time
}

func NewHandler(config *Config, c Collector, queue Enqueuer, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		collector: c,
		queue:     queue,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:       time.Now,
	}
}

func (h *Handler) Handle(ctx context.Context, job scheduler.Job, progress scheduler.ProgressFunc) (interface{}, error) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobId":   job.ID,
		"attempt": job.AttemptsMade + 1,
	})

	var input Input
	if err := job.Decode(&input); err != nil {
		return nil, apperrors.NewInvalidPayloadError(TaskType, fmt.Sprintf("parse input: %v", err))
	}

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	output, err := h.execute(ctx, &input, progress)
	if err != nil {
		h.logger.Error("job failed", map[string]interface{}{
			"jobId":     job.ID,
			"item":      input.Key().String(),
			"errorCode": string(apperrors.CodeOf(err)),
			"error":     err.Error(),
			"retryable": apperrors.IsRetryable(err),
		})
		return nil, err
	}
	return output, nil
}

func (h *Handler) execute(ctx context.Context, input *Input, progress scheduler.ProgressFunc) (*Output, error) {
	if progress != nil {
		progress(5)
	}
	key := input.Key()
	result, err := h.collector.Collect(ctx, key, collector.Options{
		TargetCount:     input.TargetCount,
		Sources:         input.Sources,
		MinQualityScore: input.MinQualityScore,
		UseAIGeneration: input.UseAIGeneration,
		MaxRetries:      input.MaxRetries,
		ForceRestart:    input.ForceRestart,
	})
	if err != nil {
		return nil, err
	}

	output := &Output{Result: *result}
	if h.config.Reschedule && !result.Skipped && result.Status == models.ItemStatusPending && result.NextAttempt != nil {
		output.FollowUpJobID = h.reschedule(ctx, input, result)
	}
	if progress != nil {
		progress(100)
	}

	h.logger.Info("item collection attempt finished", map[string]interface{}{
		"item":          key.String(),
		"status":        string(result.Status),
		"approvedCount": result.ApprovedCount,
		"targetCount":   result.TargetCount,
		"followUp":      output.FollowUpJobID,
	})
	return output, nil
}

// reschedule enqueues the next attempt at result.NextAttempt. Failures are
// logged only; the item stays pending and a later category run picks it up.
func (h *Handler) reschedule(ctx context.Context, input *Input, result *collector.Result) string {
	delay := result.NextAttempt.Sub(h.now())
	if delay < 0 {
		delay = 0
	}
	next := *input
	next.ForceRestart = false
	id := fmt.Sprintf("%s:attempt-%d", planner.ItemJobID(result.Key), result.SearchAttempts+1)

	handle, err := h.queue.Enqueue(context.WithoutCancel(ctx), config.QueueCollectItem, next, scheduler.JobOptions{JobID: id, Delay: delay})
	if err != nil {
		h.logger.Warn("failed to schedule follow-up attempt", map[string]interface{}{
			"item":  result.Key.String(),
			"error": err.Error(),
		})
		return ""
	}
	return handle.ID
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input, nil)
}
