package scheduler

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/logger"
	"image-collector/internal/common/validation"
	"image-collector/internal/models"

	"github.com/google/uuid"
)

// ErrorCodeStalled marks jobs failed for exceeding the stall limit.
const ErrorCodeStalled = "JOB_STALLED"

// PayloadValidator checks an encoded payload against the schema registered
// for its job type.
type PayloadValidator interface {
	ValidateJSON(name string, document []byte) (*validation.ValidationResult, error)
}

type Options struct {
	// PollInterval bounds how late delayed jobs are promoted and how often
	// stalls are checked.
	PollInterval time.Duration
	Validator    PayloadValidator
	Now          func() time.Time
}

type queue struct {
	mu        sync.Mutex
	opts      QueueOptions
	handler   Handler
	jobs      map[string]*Job
	waiting   jobHeap
	delayed   map[string]*Job
	active    map[string]*Job
	completed []string
	failed    []string
	paused    bool
	wake      chan struct{}
	running   bool
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Scheduler runs independently configured named queues in-process.
type Scheduler struct {
	log          logger.Logger
	errHandler   *apperrors.ErrorHandler
	validator    PayloadValidator
	now          func() time.Time
	pollInterval time.Duration

	mu        sync.RWMutex
	queues    map[string]*queue
	listeners []Listener
	seq       atomic.Uint64
	closed    atomic.Bool

	startOnce sync.Once
	startErr  error
	started   atomic.Bool

	runCtx      context.Context
	stop        context.CancelFunc
	jobCtx      context.Context
	cancelJobs  context.CancelFunc
	dispatchers sync.WaitGroup
	workers     sync.WaitGroup
}

func New(log logger.Logger, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log = log.WithFields(map[string]interface{}{"component": "scheduler"})
	runCtx, stop := context.WithCancel(context.Background())
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	return &Scheduler{
		log:          log,
		errHandler:   apperrors.NewErrorHandler(log),
		validator:    opts.Validator,
		now:          opts.Now,
		pollInterval: opts.PollInterval,
		queues:       map[string]*queue{},
		runCtx:       runCtx,
		stop:         stop,
		jobCtx:       jobCtx,
		cancelJobs:   cancelJobs,
	}
}

// RegisterQueue declares a named queue. Jobs may be enqueued before a worker
// is registered; they wait until one is.
func (s *Scheduler) RegisterQueue(opts QueueOptions) error {
	if opts.Name == "" {
		return fmt.Errorf("queue name is required")
	}
	s.mu.Lock()
	if _, exists := s.queues[opts.Name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("queue %s already registered", opts.Name)
	}
	q := &queue{
		opts:    opts.withDefaults(),
		jobs:    map[string]*Job{},
		delayed: map[string]*Job{},
		active:  map[string]*Job{},
		wake:    make(chan struct{}, 1),
	}
	s.queues[opts.Name] = q
	s.mu.Unlock()

	if s.started.Load() {
		s.startDispatcher(q)
	}
	s.log.Info("Queue registered", map[string]interface{}{
		"queue":       opts.Name,
		"concurrency": q.opts.Concurrency,
		"maxAttempts": q.opts.Retry.MaxAttempts,
		"backoff":     string(q.opts.Retry.Kind),
	})
	return nil
}

// RegisterWorker attaches handler to queueName. A positive concurrency
// overrides the queue's configured limit.
func (s *Scheduler) RegisterWorker(queueName string, concurrency int, handler Handler) error {
	q, err := s.queue(queueName)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.handler = handler
	if concurrency > 0 {
		q.opts.Concurrency = concurrency
	}
	q.mu.Unlock()
	q.signal()
	return nil
}

// Subscribe adds a lifecycle event listener.
func (s *Scheduler) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Start launches the queue dispatchers. It is idempotent: concurrent and
// repeated callers share the outcome of the first call.
func (s *Scheduler) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		if err := ctx.Err(); err != nil {
			s.startErr = err
			return
		}
		s.mu.RLock()
		queues := make([]*queue, 0, len(s.queues))
		for _, q := range s.queues {
			queues = append(queues, q)
		}
		s.mu.RUnlock()
		if len(queues) == 0 {
			s.startErr = fmt.Errorf("scheduler has no registered queues")
			return
		}
		s.started.Store(true)
		for _, q := range queues {
			s.startDispatcher(q)
		}
		s.log.Info("Scheduler started", map[string]interface{}{"queues": len(queues)})
	})
	return s.startErr
}

func (s *Scheduler) startDispatcher(q *queue) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	s.dispatchers.Add(1)
	go s.dispatchLoop(q)
}

// Shutdown stops dispatching and waits for running jobs until ctx expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.closed.Store(true)
	s.stop()
	s.dispatchers.Wait()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelJobs()
		s.log.Info("Scheduler stopped", nil)
		return nil
	case <-ctx.Done():
		s.cancelJobs()
		s.log.Warn("Scheduler shutdown timed out with jobs still running", nil)
		return ctx.Err()
	}
}

// Enqueue validates payload and adds a job to queueName. When opts.JobID
// names a job that is still waiting, delayed or active, that job's handle is
// returned and nothing is enqueued.
func (s *Scheduler) Enqueue(ctx context.Context, queueName string, payload models.JobPayload, opts JobOptions) (JobHandle, error) {
	if err := ctx.Err(); err != nil {
		return JobHandle{}, err
	}
	if s.closed.Load() {
		return JobHandle{}, fmt.Errorf("scheduler is shut down")
	}
	q, err := s.queue(queueName)
	if err != nil {
		return JobHandle{}, err
	}

	jobType := payload.JobType()
	if err := payload.Validate(); err != nil {
		return JobHandle{}, apperrors.NewInvalidPayloadError(jobType, err.Error())
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return JobHandle{}, apperrors.NewInvalidPayloadError(jobType, err.Error())
	}
	if s.validator != nil {
		res, err := s.validator.ValidateJSON(jobType, raw)
		if err != nil {
			return JobHandle{}, apperrors.NewInvalidPayloadError(jobType, err.Error())
		}
		if !res.Valid {
			return JobHandle{}, apperrors.NewInvalidPayloadError(jobType, strings.Join(res.GetErrorMessages(), "; "))
		}
	}

	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()

	q.mu.Lock()
	if existing, ok := q.jobs[id]; ok {
		if !existing.terminal() {
			h := JobHandle{ID: id, Queue: queueName, Type: existing.Type, Existing: true}
			q.mu.Unlock()
			return h, nil
		}
		q.dropLocked(existing)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = q.opts.Retry.MaxAttempts
	}
	j := &Job{
		ID:          id,
		Queue:       queueName,
		Type:        jobType,
		Payload:     raw,
		Priority:    opts.Priority,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		RunAt:       now.Add(opts.Delay),
		seq:         s.seq.Add(1),
		done:        make(chan struct{}),
	}
	q.jobs[id] = j
	if opts.Delay > 0 {
		j.State = StateDelayed
		q.delayed[id] = j
	} else {
		j.State = StateWaiting
		heap.Push(&q.waiting, j)
	}
	q.mu.Unlock()

	s.log.Debug("Job enqueued", map[string]interface{}{
		"queue": queueName, "jobId": id, "jobType": jobType, "delay": opts.Delay.String(),
	})
	s.emit(Event{Type: EventEnqueued, Queue: queueName, JobID: id, JobType: jobType, Delay: opts.Delay, At: now})
	q.signal()
	return JobHandle{ID: id, Queue: queueName, Type: jobType}, nil
}

func (s *Scheduler) queue(name string) (*queue, error) {
	s.mu.RLock()
	q, ok := s.queues[name]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewUnknownQueueError(name)
	}
	return q, nil
}

func (s *Scheduler) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for _, e := range events {
		for _, l := range listeners {
			l(e)
		}
	}
}

func (s *Scheduler) dispatchLoop(q *queue) {
	defer s.dispatchers.Done()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		s.dispatch(q)
		select {
		case <-s.runCtx.Done():
			return
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

type launch struct {
	job     *Job
	token   uint64
	snap    Job
	handler Handler
	timeout time.Duration
}

// dispatch promotes due delayed jobs, detects stalls and starts waiting jobs
// up to the concurrency limit.
func (s *Scheduler) dispatch(q *queue) {
	now := s.now()
	var events []Event
	var launches []launch

	q.mu.Lock()
	for id, j := range q.delayed {
		if !j.RunAt.After(now) {
			delete(q.delayed, id)
			j.State = StateWaiting
			j.seq = s.seq.Add(1)
			heap.Push(&q.waiting, j)
		}
	}

	if q.opts.StallTimeout > 0 {
		for _, j := range q.active {
			if now.Sub(j.heartbeat) > q.opts.StallTimeout {
				events = append(events, s.stallLocked(q, j, now, "heartbeat lost")...)
			}
		}
	}

	if q.handler != nil && !q.paused {
		for len(q.active) < q.opts.Concurrency && q.waiting.Len() > 0 {
			j := heap.Pop(&q.waiting).(*Job)
			j.State = StateActive
			j.token++
			j.heartbeat = now
			j.Progress = 0
			started := now
			j.ProcessedAt = &started
			q.active[j.ID] = j
			launches = append(launches, launch{
				job: j, token: j.token, snap: j.snapshot(), handler: q.handler, timeout: q.opts.Timeout,
			})
			events = append(events, Event{
				Type: EventStarted, Queue: j.Queue, JobID: j.ID, JobType: j.Type, Attempt: j.AttemptsMade + 1, At: now,
			})
		}
	}
	q.mu.Unlock()

	s.emit(events...)
	for _, l := range launches {
		s.workers.Add(1)
		go s.run(q, l)
	}
}

func (s *Scheduler) run(q *queue, l launch) {
	defer s.workers.Done()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if l.timeout > 0 {
		ctx, cancel = context.WithTimeout(s.jobCtx, l.timeout)
	} else {
		ctx, cancel = context.WithCancel(s.jobCtx)
	}
	defer cancel()

	started := s.now()
	progress := func(percent int) { s.reportProgress(q, l.job, l.token, percent) }

	alive := make(chan struct{})
	defer close(alive)
	go s.keepAlive(q, l, alive)

	var (
		result   interface{}
		err      error
		panicVal interface{}
	)
	func() {
		defer func() { panicVal = recover() }()
		result, err = l.handler.Handle(ctx, l.snap, progress)
	}()

	if panicVal != nil {
		now := s.now()
		q.mu.Lock()
		var events []Event
		if l.job.token == l.token && l.job.State == StateActive {
			events = s.stallLocked(q, l.job, now, fmt.Sprintf("handler panic: %v", panicVal))
		}
		q.mu.Unlock()
		s.emit(events...)
		q.signal()
		return
	}
	s.finish(q, l, started, result, err)
}

// keepAlive refreshes the heartbeat of a running job until done closes. It
// stops once the queue timeout has passed, so a handler that ignores its
// context is still detected as stalled.
func (s *Scheduler) keepAlive(q *queue, l launch, done <-chan struct{}) {
	interval := q.opts.StallTimeout / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if l.timeout > 0 {
		timer := time.NewTimer(l.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-done:
			return
		case <-deadline:
			return
		case <-ticker.C:
			q.mu.Lock()
			if l.job.token != l.token || l.job.State != StateActive {
				q.mu.Unlock()
				return
			}
			l.job.heartbeat = s.now()
			q.mu.Unlock()
		}
	}
}

func (s *Scheduler) reportProgress(q *queue, j *Job, token uint64, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	now := s.now()
	q.mu.Lock()
	if j.token != token || j.State != StateActive {
		q.mu.Unlock()
		return
	}
	j.Progress = percent
	j.heartbeat = now
	e := Event{Type: EventProgress, Queue: j.Queue, JobID: j.ID, JobType: j.Type, Progress: percent, At: now}
	q.mu.Unlock()
	s.emit(e)
}

// stallLocked takes j out of the active set and invalidates its running
// result. The first stall requeues; exceeding MaxStalledCount fails the job.
func (s *Scheduler) stallLocked(q *queue, j *Job, now time.Time, reason string) []Event {
	delete(q.active, j.ID)
	j.token++
	j.StalledCount++

	s.log.Warn("Job stalled", map[string]interface{}{
		"queue": j.Queue, "jobId": j.ID, "stalledCount": j.StalledCount, "reason": reason,
	})
	events := []Event{{
		Type: EventStalled, Queue: j.Queue, JobID: j.ID, JobType: j.Type, Error: reason, Attempt: j.AttemptsMade + 1, At: now,
	}}
	if j.StalledCount > q.opts.MaxStalledCount {
		j.AttemptsMade++
		return append(events, s.failLocked(q, j, now, "job stalled more than allowable limit: "+reason, ErrorCodeStalled, 0))
	}
	j.State = StateWaiting
	j.seq = s.seq.Add(1)
	heap.Push(&q.waiting, j)
	return events
}

func (s *Scheduler) finish(q *queue, l launch, started time.Time, result interface{}, err error) {
	now := s.now()
	j := l.job
	var events []Event

	q.mu.Lock()
	if j.token != l.token || j.State != StateActive {
		q.mu.Unlock()
		s.log.Debug("Discarding result of superseded job run", map[string]interface{}{"queue": j.Queue, "jobId": j.ID})
		return
	}
	delete(q.active, j.ID)
	j.AttemptsMade++
	duration := now.Sub(started)

	if err == nil {
		raw, mErr := marshalResult(result)
		if mErr != nil {
			s.log.Warn("Job result is not JSON encodable", map[string]interface{}{"jobId": j.ID, "error": mErr.Error()})
		}
		finished := now
		j.State = StateCompleted
		j.Result = raw
		j.Progress = 100
		j.FinishedAt = &finished
		j.FailedReason, j.ErrorCode = "", ""
		q.completed = append(q.completed, j.ID)
		q.pruneLocked(&q.completed, q.opts.RemoveOnComplete)
		close(j.done)
		events = append(events, Event{
			Type: EventCompleted, Queue: j.Queue, JobID: j.ID, JobType: j.Type,
			Attempt: j.AttemptsMade, Duration: duration, Result: raw, At: now,
		})
	} else {
		outcome := s.errHandler.HandleJobError(apperrors.JobRef{
			Queue: j.Queue, JobID: j.ID, JobType: j.Type, AttemptsMade: j.AttemptsMade, MaxAttempts: j.MaxAttempts,
		}, err)
		code := string(outcome.Err.Code)
		if outcome.Retry {
			delay := q.opts.Retry.Delay(j.AttemptsMade)
			j.State = StateDelayed
			j.RunAt = now.Add(delay)
			j.FailedReason, j.ErrorCode = err.Error(), code
			q.delayed[j.ID] = j
			events = append(events,
				Event{Type: EventFailed, Queue: j.Queue, JobID: j.ID, JobType: j.Type, Attempt: j.AttemptsMade,
					Error: err.Error(), ErrorCode: code, Duration: duration, At: now},
				Event{Type: EventRetrying, Queue: j.Queue, JobID: j.ID, JobType: j.Type, Attempt: j.AttemptsMade,
					Delay: delay, At: now},
			)
		} else {
			events = append(events, s.failLocked(q, j, now, err.Error(), code, duration))
		}
	}
	q.mu.Unlock()

	if err == nil {
		s.log.Info("Job completed", map[string]interface{}{
			"queue": j.Queue, "jobId": j.ID, "jobType": j.Type, "duration": duration.String(),
		})
	}
	s.emit(events...)
	q.signal()
}

func (s *Scheduler) failLocked(q *queue, j *Job, now time.Time, reason, code string, duration time.Duration) Event {
	finished := now
	j.State = StateFailed
	j.FinishedAt = &finished
	j.FailedReason = reason
	j.ErrorCode = code
	q.failed = append(q.failed, j.ID)
	q.pruneLocked(&q.failed, q.opts.RemoveOnFail)
	close(j.done)
	return Event{
		Type: EventFailed, Queue: j.Queue, JobID: j.ID, JobType: j.Type, Attempt: j.AttemptsMade,
		Error: reason, ErrorCode: code, Terminal: true, Duration: duration, At: now,
	}
}

// pruneLocked keeps the most recent keep ids of list. keep <= 0 keeps all.
func (q *queue) pruneLocked(list *[]string, keep int) {
	if keep <= 0 || len(*list) <= keep {
		return
	}
	drop := (*list)[:len(*list)-keep]
	for _, id := range drop {
		if j, ok := q.jobs[id]; ok && j.terminal() {
			delete(q.jobs, id)
		}
	}
	*list = append([]string(nil), (*list)[len(*list)-keep:]...)
}

// dropLocked forgets j entirely.
func (q *queue) dropLocked(j *Job) {
	delete(q.jobs, j.ID)
	delete(q.delayed, j.ID)
	q.waiting.remove(j.ID)
	q.completed = removeID(q.completed, j.ID)
	q.failed = removeID(q.failed, j.ID)
}

func removeID(list []string, id string) []string {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func marshalResult(result interface{}) (json.RawMessage, error) {
	if result == nil {
		return nil, nil
	}
	if raw, ok := result.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return b, nil
}
