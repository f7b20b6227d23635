package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/logger"
	"image-collector/internal/common/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func (testPayload) JobType() string { return "test-job" }

func (p testPayload) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) listen(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *eventRecorder) terminalFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == EventFailed && e.Terminal {
			n++
		}
	}
	return n
}

func createTestScheduler(t *testing.T, queues ...QueueOptions) (*Scheduler, *eventRecorder) {
	t.Helper()
	s := New(logger.NewTestLogger(t), Options{PollInterval: 5 * time.Millisecond})
	rec := &eventRecorder{}
	s.Subscribe(rec.listen)
	for _, q := range queues {
		require.NoError(t, s.RegisterQueue(q))
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, rec
}

func fastQueue(name string, concurrency, attempts int) QueueOptions {
	return QueueOptions{
		Name:        name,
		Concurrency: concurrency,
		Retry:       RetryPolicy{Kind: BackoffFixed, BaseDelay: time.Millisecond, MaxAttempts: attempts},
	}
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRetryPolicy_Delay(t *testing.T) {
	fixed := RetryPolicy{Kind: BackoffFixed, BaseDelay: 5 * time.Second, MaxAttempts: 3}
	assert.Equal(t, 5*time.Second, fixed.Delay(1))
	assert.Equal(t, 5*time.Second, fixed.Delay(3))

	exp := RetryPolicy{Kind: BackoffExponential, BaseDelay: time.Second, MaxAttempts: 5}
	assert.Equal(t, time.Second, exp.Delay(0))
	assert.Equal(t, time.Second, exp.Delay(1))
	assert.Equal(t, 2*time.Second, exp.Delay(2))
	assert.Equal(t, 4*time.Second, exp.Delay(3))
}

func TestEnqueue_UnknownQueue(t *testing.T) {
	s, _ := createTestScheduler(t, fastQueue("known", 1, 1))
	_, err := s.Enqueue(context.Background(), "missing", testPayload{Name: "x"}, JobOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownQueue))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestEnqueue_InvalidPayload(t *testing.T) {
	s, _ := createTestScheduler(t, fastQueue("q", 1, 1))
	_, err := s.Enqueue(context.Background(), "q", testPayload{}, JobOptions{})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPayload))
}

func TestEnqueue_SchemaValidation(t *testing.T) {
	v := validation.NewSchemaValidator()
	require.NoError(t, v.Register("test-job", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"n": map[string]interface{}{"type": "integer", "minimum": 1},
		},
	}))
	s := New(logger.NewNoOpLogger(), Options{PollInterval: 5 * time.Millisecond, Validator: v})
	require.NoError(t, s.RegisterQueue(fastQueue("q", 1, 1)))

	_, err := s.Enqueue(context.Background(), "q", testPayload{Name: "a", N: 0}, JobOptions{})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPayload))

	_, err = s.Enqueue(context.Background(), "q", testPayload{Name: "a", N: 2}, JobOptions{})
	assert.NoError(t, err)
}

func TestJob_CompletesWithResult(t *testing.T) {
	s, rec := createTestScheduler(t, fastQueue("q", 1, 1))
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, progress ProgressFunc) (interface{}, error) {
		var p testPayload
		require.NoError(t, job.Decode(&p))
		progress(50)
		return map[string]string{"greeting": "hello " + p.Name}, nil
	})))
	require.NoError(t, s.Start(context.Background()))

	h, err := s.Enqueue(context.Background(), "q", testPayload{Name: "apple"}, JobOptions{})
	require.NoError(t, err)

	job, err := s.WaitFor(waitCtx(t), "q", h.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, job.State)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 1, job.AttemptsMade)
	assert.JSONEq(t, `{"greeting":"hello apple"}`, string(job.Result))

	assert.Equal(t, 1, rec.count(EventEnqueued))
	assert.Equal(t, 1, rec.count(EventStarted))
	assert.Equal(t, 1, rec.count(EventProgress))
	assert.Equal(t, 1, rec.count(EventCompleted))
}

func TestJob_RetriesThenSucceeds(t *testing.T) {
	s, rec := createTestScheduler(t, fastQueue("q", 1, 3))
	var calls atomic.Int32
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		if calls.Add(1) < 3 {
			return nil, fmt.Errorf("transient failure")
		}
		return "ok", nil
	})))
	require.NoError(t, s.Start(context.Background()))

	h, err := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{})
	require.NoError(t, err)

	job, err := s.WaitFor(waitCtx(t), "q", h.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, job.State)
	assert.Equal(t, 3, job.AttemptsMade)
	assert.Equal(t, 2, rec.count(EventRetrying))
	assert.Equal(t, 0, rec.terminalFailures())
}

func TestJob_FailsPermanentlyAfterMaxAttempts(t *testing.T) {
	s, rec := createTestScheduler(t, fastQueue("q", 1, 2))
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		return nil, fmt.Errorf("always broken")
	})))
	require.NoError(t, s.Start(context.Background()))

	h, _ := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{})
	job, err := s.WaitFor(waitCtx(t), "q", h.ID)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, 2, job.AttemptsMade)
	assert.Equal(t, "always broken", job.FailedReason)
	assert.Equal(t, string(apperrors.ErrCodeInternal), job.ErrorCode)
	assert.Equal(t, 1, rec.terminalFailures())
	assert.Equal(t, 1, rec.count(EventRetrying))
}

func TestJob_RetryLimitOfErrorCodeStopsEarly(t *testing.T) {
	s, rec := createTestScheduler(t, fastQueue("q", 1, 5))
	var calls atomic.Int32
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		calls.Add(1)
		return nil, apperrors.NewItemBusyError("fruits/A/apple")
	})))
	require.NoError(t, s.Start(context.Background()))

	h, _ := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{})
	job, err := s.WaitFor(waitCtx(t), "q", h.ID)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, 2, job.AttemptsMade)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, string(apperrors.ErrCodeItemBusy), job.ErrorCode)
	assert.Equal(t, 1, rec.count(EventRetrying))
}

func TestJob_NonRetryableErrorFailsImmediately(t *testing.T) {
	s, _ := createTestScheduler(t, fastQueue("q", 1, 5))
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		return nil, apperrors.NewItemNotFoundError("fruits/A/apple")
	})))
	require.NoError(t, s.Start(context.Background()))

	h, _ := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{})
	job, err := s.WaitFor(waitCtx(t), "q", h.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, 1, job.AttemptsMade)
	assert.Equal(t, string(apperrors.ErrCodeItemNotFound), job.ErrorCode)
}

func TestQueue_RespectsConcurrencyLimit(t *testing.T) {
	s, _ := createTestScheduler(t, fastQueue("q", 2, 1))
	var running, peak atomic.Int32
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	})))
	require.NoError(t, s.Start(context.Background()))

	var ids []string
	for i := 0; i < 6; i++ {
		h, err := s.Enqueue(context.Background(), "q", testPayload{Name: "a", N: i}, JobOptions{})
		require.NoError(t, err)
		ids = append(ids, h.ID)
	}
	for _, id := range ids {
		_, err := s.WaitFor(waitCtx(t), "q", id)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(2), peak.Load())
}

func TestQueue_PriorityOrderAndPause(t *testing.T) {
	s, rec := createTestScheduler(t, fastQueue("q", 1, 1))
	var mu sync.Mutex
	var order []string
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		var p testPayload
		_ = job.Decode(&p)
		mu.Lock()
		order = append(order, p.Name)
		mu.Unlock()
		return nil, nil
	})))
	require.NoError(t, s.Pause("q"))
	require.NoError(t, s.Start(context.Background()))

	var last string
	for _, spec := range []struct {
		name     string
		priority int
	}{{"low", 1}, {"high", 10}, {"mid", 5}, {"mid-later", 5}} {
		h, err := s.Enqueue(context.Background(), "q", testPayload{Name: spec.name}, JobOptions{Priority: spec.priority})
		require.NoError(t, err)
		last = h.ID
	}

	time.Sleep(30 * time.Millisecond)
	counts, err := s.Counts("q")
	require.NoError(t, err)
	assert.True(t, counts.Paused)
	assert.Equal(t, 4, counts.Waiting)
	assert.Equal(t, 0, counts.Completed)

	require.NoError(t, s.Resume("q"))
	_, err = s.WaitFor(waitCtx(t), "q", last)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		c, _ := s.Counts("q")
		return c.Completed == 4
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"high", "mid", "mid-later", "low"}, order)
	assert.Equal(t, 1, rec.count(EventPaused))
	assert.Equal(t, 1, rec.count(EventResumed))
}

func TestStall_PanicRequeuesOnce(t *testing.T) {
	s, rec := createTestScheduler(t, fastQueue("q", 1, 1))
	var calls atomic.Int32
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		if calls.Add(1) == 1 {
			panic("worker died")
		}
		return "recovered", nil
	})))
	require.NoError(t, s.Start(context.Background()))

	h, _ := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{})
	job, err := s.WaitFor(waitCtx(t), "q", h.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, job.State)
	assert.Equal(t, 1, job.StalledCount)
	assert.Equal(t, 1, rec.count(EventStalled))
}

func TestStall_SecondStallFailsJob(t *testing.T) {
	s, _ := createTestScheduler(t, fastQueue("q", 1, 3))
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		panic("worker died again")
	})))
	require.NoError(t, s.Start(context.Background()))

	h, _ := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{})
	job, err := s.WaitFor(waitCtx(t), "q", h.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, ErrorCodeStalled, job.ErrorCode)
	assert.Equal(t, 2, job.StalledCount)
}

func TestStall_SlowHealthyJobIsNotStalled(t *testing.T) {
	q := fastQueue("q", 1, 1)
	q.StallTimeout = 50 * time.Millisecond
	s, rec := createTestScheduler(t, q)

	var calls, running, peak atomic.Int32
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		calls.Add(1)
		n := running.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(200 * time.Millisecond)
		running.Add(-1)
		return "done", nil
	})))
	require.NoError(t, s.Start(context.Background()))

	h, _ := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{})
	job, err := s.WaitFor(waitCtx(t), "q", h.ID)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, job.State)
	assert.JSONEq(t, `"done"`, string(job.Result))
	assert.Zero(t, job.StalledCount)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), peak.Load())
	assert.Zero(t, rec.count(EventStalled))
}

func TestStall_HungJobPastTimeoutDiscardsStaleResult(t *testing.T) {
	q := fastQueue("q", 1, 1)
	q.StallTimeout = 20 * time.Millisecond
	q.Timeout = 30 * time.Millisecond
	s, rec := createTestScheduler(t, q)

	release := make(chan struct{})
	var calls atomic.Int32
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		if calls.Add(1) == 1 {
			// ignores ctx
			<-release
			return "stale", nil
		}
		return "fresh", nil
	})))
	require.NoError(t, s.Start(context.Background()))

	h, _ := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{})
	job, err := s.WaitFor(waitCtx(t), "q", h.ID)
	require.NoError(t, err)
	close(release)

	assert.Equal(t, StateCompleted, job.State)
	assert.JSONEq(t, `"fresh"`, string(job.Result))
	assert.Equal(t, 1, job.StalledCount)
	assert.Equal(t, 1, rec.count(EventStalled))

	time.Sleep(20 * time.Millisecond)
	again, err := s.GetJob("q", h.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `"fresh"`, string(again.Result))
}

func TestEnqueue_DuplicateJobIDReturnsExisting(t *testing.T) {
	s, _ := createTestScheduler(t, fastQueue("q", 1, 1))

	first, err := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{JobID: "item:fruits/A/apple"})
	require.NoError(t, err)
	assert.False(t, first.Existing)

	second, err := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{JobID: "item:fruits/A/apple"})
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Equal(t, first.ID, second.ID)

	counts, _ := s.Counts("q")
	assert.Equal(t, 1, counts.Waiting)
}

func TestRemove(t *testing.T) {
	s, _ := createTestScheduler(t, fastQueue("q", 1, 1))
	block := make(chan struct{})
	defer close(block)
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		<-block
		return nil, nil
	})))
	require.NoError(t, s.Start(context.Background()))

	active, _ := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{})
	require.Eventually(t, func() bool {
		j, _ := s.GetJob("q", active.ID)
		return j.State == StateActive
	}, time.Second, 2*time.Millisecond)
	waiting, _ := s.Enqueue(context.Background(), "q", testPayload{Name: "b"}, JobOptions{})

	assert.True(t, errors.Is(s.Remove("q", active.ID), apperrors.ErrJobActive))
	assert.NoError(t, s.Remove("q", waiting.ID))
	assert.True(t, errors.Is(s.Remove("q", waiting.ID), apperrors.ErrJobNotFound))

	_, err := s.GetJob("q", waiting.ID)
	assert.True(t, errors.Is(err, apperrors.ErrJobNotFound))

	actives, err := s.ActiveJobs("q")
	require.NoError(t, err)
	require.Len(t, actives, 1)
	assert.Equal(t, active.ID, actives[0].ID)
}

func TestCleanAndRetryFailed(t *testing.T) {
	s, _ := createTestScheduler(t, fastQueue("q", 2, 1))
	var fail atomic.Bool
	fail.Store(true)
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		var p testPayload
		_ = job.Decode(&p)
		if p.Name == "bad" && fail.Load() {
			return nil, fmt.Errorf("bad input")
		}
		return nil, nil
	})))
	require.NoError(t, s.Start(context.Background()))

	good, _ := s.Enqueue(context.Background(), "q", testPayload{Name: "good"}, JobOptions{})
	bad, _ := s.Enqueue(context.Background(), "q", testPayload{Name: "bad"}, JobOptions{})
	_, err := s.WaitFor(waitCtx(t), "q", good.ID)
	require.NoError(t, err)
	badJob, err := s.WaitFor(waitCtx(t), "q", bad.ID)
	require.NoError(t, err)
	require.Equal(t, StateFailed, badJob.State)

	fail.Store(false)
	n, err := s.RetryFailed("q")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	badJob, err = s.WaitFor(waitCtx(t), "q", bad.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, badJob.State)

	removed, err := s.Clean("q", 0, StateCompleted)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	counts, _ := s.Counts("q")
	assert.Equal(t, 0, counts.Completed)

	_, err = s.Clean("q", 0, StateActive)
	assert.Error(t, err)
}

func TestRemoveOnCompletePrunesHistory(t *testing.T) {
	q := fastQueue("q", 1, 1)
	q.RemoveOnComplete = 2
	s, _ := createTestScheduler(t, q)
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		return nil, nil
	})))
	require.NoError(t, s.Start(context.Background()))

	var first, last string
	for i := 0; i < 5; i++ {
		h, _ := s.Enqueue(context.Background(), "q", testPayload{Name: "a", N: i}, JobOptions{})
		if i == 0 {
			first = h.ID
		}
		last = h.ID
		_, err := s.WaitFor(waitCtx(t), "q", h.ID)
		require.NoError(t, err)
	}

	counts, _ := s.Counts("q")
	assert.Equal(t, 2, counts.Completed)
	_, err := s.GetJob("q", first)
	assert.True(t, errors.Is(err, apperrors.ErrJobNotFound))
	_, err = s.GetJob("q", last)
	assert.NoError(t, err)
}

func TestQueues_AreIndependent(t *testing.T) {
	s, _ := createTestScheduler(t, fastQueue("slow", 1, 1), fastQueue("fast", 1, 1))
	block := make(chan struct{})
	defer close(block)
	require.NoError(t, s.RegisterWorker("slow", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		<-block
		return nil, nil
	})))
	require.NoError(t, s.RegisterWorker("fast", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		return nil, nil
	})))
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Enqueue(context.Background(), "slow", testPayload{Name: "a"}, JobOptions{})
	require.NoError(t, err)
	h, err := s.Enqueue(context.Background(), "fast", testPayload{Name: "b"}, JobOptions{})
	require.NoError(t, err)

	job, err := s.WaitFor(waitCtx(t), "fast", h.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, job.State)
	assert.Equal(t, []string{"fast", "slow"}, s.QueueNames())
}

func TestEnqueue_DelayedJob(t *testing.T) {
	s, _ := createTestScheduler(t, fastQueue("q", 1, 1))
	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		return nil, nil
	})))
	require.NoError(t, s.Start(context.Background()))

	h, err := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{Delay: 40 * time.Millisecond})
	require.NoError(t, err)

	j, _ := s.GetJob("q", h.ID)
	assert.Equal(t, StateDelayed, j.State)

	j, err = s.WaitFor(waitCtx(t), "q", h.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, j.State)
	assert.False(t, j.ProcessedAt.Before(j.RunAt))
}

func TestStart_IsIdempotentAndShared(t *testing.T) {
	s, _ := createTestScheduler(t, fastQueue("q", 1, 1))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Start(context.Background())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	empty := New(logger.NewNoOpLogger(), Options{})
	first := empty.Start(context.Background())
	require.Error(t, first)
	assert.Equal(t, first, empty.Start(context.Background()))
}

func TestEnqueue_BeforeWorkerRegistered(t *testing.T) {
	s, _ := createTestScheduler(t, fastQueue("q", 1, 1))
	require.NoError(t, s.Start(context.Background()))

	h, err := s.Enqueue(context.Background(), "q", testPayload{Name: "a"}, JobOptions{})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	j, _ := s.GetJob("q", h.ID)
	assert.Equal(t, StateWaiting, j.State)

	require.NoError(t, s.RegisterWorker("q", 0, HandlerFunc(func(ctx context.Context, job Job, _ ProgressFunc) (interface{}, error) {
		return nil, nil
	})))
	j, err = s.WaitFor(waitCtx(t), "q", h.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, j.State)
}
