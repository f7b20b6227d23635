// internal/workers/collection/collect-category/handler.go
package collectcategory

import (
	"context"
	"fmt"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/logger"
	"image-collector/internal/planner"
	"image-collector/internal/scheduler"
)

const (
	TaskType = "collect-category"
)

type Planner interface {
	Plan(ctx context.Context, req Input, parentJobID string) (*planner.BatchTicket, error)
	Run(ctx context.Context, ticket *planner.BatchTicket, progress scheduler.ProgressFunc) (*planner.Report, error)
}

type Handler struct {
	config  *Config
	planner Planner
	logger  logger.Logger
}

func NewHandler(config *Config, p Planner, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		planner: p,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
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

	output, err := h.execute(ctx, job.ID, &input, progress)
	if err != nil {
		h.logger.Error("job failed", map[string]interface{}{
			"jobId":     job.ID,
			"category":  input.Category,
			"errorCode": string(apperrors.CodeOf(err)),
			"error":     err.Error(),
		})
		return nil, err
	}
	return output, nil
}

func (h *Handler) execute(ctx context.Context, jobID string, input *Input, progress scheduler.ProgressFunc) (*Output, error) {
	ticket, err := h.planner.Plan(ctx, *input, jobID)
	if err != nil {
		return nil, err
	}
	if ticket.Total == 0 {
		return &Output{Category: input.Category}, nil
	}

	report, err := h.planner.Run(ctx, ticket, progress)
	if err != nil {
		return nil, fmt.Errorf("category %s stopped after %d of %d items: %w",
			input.Category, report.Processed, report.Total, err)
	}

	h.logger.Info("category collection finished", map[string]interface{}{
		"category":   input.Category,
		"total":      report.Total,
		"successful": report.Successful,
		"failed":     report.Failed,
	})
	return report, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, "", input, nil)
}
