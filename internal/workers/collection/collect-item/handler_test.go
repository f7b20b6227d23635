// internal/workers/collection/collect-item/handler_test.go
package collectitem

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"image-collector/internal/collector"
	"image-collector/internal/common/config"
	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/logger"
	"image-collector/internal/models"
	"image-collector/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeCollector struct {
	result  *collector.Result
	err     error
	gotKey  models.ItemKey
	gotOpts collector.Options
}

func (f *fakeCollector) Collect(ctx context.Context, key models.ItemKey, opts collector.Options) (*collector.Result, error) {
	f.gotKey = key
	f.gotOpts = opts
	return f.result, f.err
}

type enqueued struct {
	queue   string
	payload models.JobPayload
	opts    scheduler.JobOptions
}

type fakeQueue struct {
	calls []enqueued
	err   error
}

func (f *fakeQueue) Enqueue(ctx context.Context, queue string, payload models.JobPayload, opts scheduler.JobOptions) (scheduler.JobHandle, error) {
	if f.err != nil {
		return scheduler.JobHandle{}, f.err
	}
	f.calls = append(f.calls, enqueued{queue: queue, payload: payload, opts: opts})
	return scheduler.JobHandle{ID: opts.JobID, Queue: queue}, nil
}

func createTestJob(t *testing.T, input Input) scheduler.Job {
	t.Helper()
	raw, err := json.Marshal(input)
	require.NoError(t, err)
	return scheduler.Job{ID: "collect-item:" + input.Key().String(), Type: TaskType, Payload: raw}
}

func createTestHandler(t *testing.T, c Collector, q Enqueuer, now time.Time) *Handler {
	t.Helper()
	h := NewHandler(&Config{Reschedule: true}, c, q, logger.NewTestLogger(t))
	h.now = func() time.Time { return now }
	return h
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Handle_Completed(t *testing.T) {
	key := models.NewItemKey("fruits", "apple")
	c := &fakeCollector{result: &collector.Result{Key: key, Status: models.ItemStatusCompleted, ApprovedCount: 3, TargetCount: 3}}
	q := &fakeQueue{}
	h := createTestHandler(t, c, q, time.Now())

	minScore := 6.0
	input := Input{Category: "fruits", ItemName: "apple", ForceRestart: true,
		CollectOverrides: models.CollectOverrides{TargetCount: 3, MinQualityScore: &minScore, Sources: []string{"pixabay"}}}

	var progress []int
	out, err := h.Handle(context.Background(), createTestJob(t, input), func(p int) { progress = append(progress, p) })
	require.NoError(t, err)

	output := out.(*Output)
	assert.Equal(t, models.ItemStatusCompleted, output.Status)
	assert.Empty(t, output.FollowUpJobID)
	assert.Empty(t, q.calls)
	assert.Equal(t, []int{5, 100}, progress)

	assert.Equal(t, key, c.gotKey)
	assert.True(t, c.gotOpts.ForceRestart)
	assert.Equal(t, 3, c.gotOpts.TargetCount)
	assert.Equal(t, []string{"pixabay"}, c.gotOpts.Sources)
	require.NotNil(t, c.gotOpts.MinQualityScore)
	assert.Equal(t, 6.0, *c.gotOpts.MinQualityScore)
}

func TestHandler_Handle_PendingSchedulesFollowUp(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	next := now.Add(time.Hour)
	key := models.NewItemKey("fruits", "banana")
	c := &fakeCollector{result: &collector.Result{Key: key, Status: models.ItemStatusPending, SearchAttempts: 1, NextAttempt: &next}}
	q := &fakeQueue{}
	h := createTestHandler(t, c, q, now)

	out, err := h.Handle(context.Background(), createTestJob(t, Input{Category: "fruits", ItemName: "banana", ForceRestart: true}), nil)
	require.NoError(t, err)

	require.Len(t, q.calls, 1)
	call := q.calls[0]
	assert.Equal(t, "collect-item", call.queue)
	assert.Equal(t, "collect-item:fruits/B/banana:attempt-2", call.opts.JobID)
	assert.Equal(t, time.Hour, call.opts.Delay)
	assert.False(t, call.payload.(models.CollectItemPayload).ForceRestart)
	assert.Equal(t, call.opts.JobID, out.(*Output).FollowUpJobID)
}

func TestHandler_Handle_FollowUpFailureIsNotFatal(t *testing.T) {
	now := time.Now()
	next := now.Add(time.Minute)
	c := &fakeCollector{result: &collector.Result{Status: models.ItemStatusPending, NextAttempt: &next}}
	h := createTestHandler(t, c, &fakeQueue{err: errors.New("scheduler is shut down")}, now)

	out, err := h.Handle(context.Background(), createTestJob(t, Input{Category: "fruits", ItemName: "cherry"}), nil)
	require.NoError(t, err)
	assert.Empty(t, out.(*Output).FollowUpJobID)
}

func TestHandler_Handle_SkippedItemIsNotRescheduled(t *testing.T) {
	next := time.Now().Add(time.Minute)
	c := &fakeCollector{result: &collector.Result{Status: models.ItemStatusPending, NextAttempt: &next, Skipped: true}}
	q := &fakeQueue{}
	h := createTestHandler(t, c, q, time.Now())

	_, err := h.Handle(context.Background(), createTestJob(t, Input{Category: "fruits", ItemName: "date"}), nil)
	require.NoError(t, err)
	assert.Empty(t, q.calls)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Handle_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"terminal failure", apperrors.NewItemCollectionFailedError("fruits/E/egg", errors.New("0 of 3 approved"), true), false},
		{"retryable failure", apperrors.NewItemCollectionFailedError("fruits/E/egg", errors.New("panic"), false), true},
		{"item busy", apperrors.NewItemBusyError("fruits/E/egg"), true},
		{"item missing", apperrors.NewItemNotFoundError("fruits/E/egg"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCollector{err: tt.err}
			h := createTestHandler(t, c, &fakeQueue{}, time.Now())

			out, err := h.Handle(context.Background(), createTestJob(t, Input{Category: "fruits", ItemName: "egg"}), nil)
			assert.Nil(t, out)
			require.Error(t, err)
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
		})
	}
}

func TestHandler_Handle_InvalidPayload(t *testing.T) {
	h := createTestHandler(t, &fakeCollector{}, &fakeQueue{}, time.Now())

	_, err := h.Handle(context.Background(), scheduler.Job{ID: "x", Payload: []byte(`{"category":`)}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPayload))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestLoadConfig(t *testing.T) {
	cfg := LoadConfig(&config.Config{})
	assert.True(t, cfg.Reschedule)
	assert.Equal(t, time.Duration(0), cfg.Timeout)
}
