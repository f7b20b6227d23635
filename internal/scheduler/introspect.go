package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"time"

	apperrors "image-collector/internal/common/errors"
)

// Counts are per-state job counts of one queue.
type Counts struct {
	Waiting   int  `json:"waiting"`
	Active    int  `json:"active"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Delayed   int  `json:"delayed"`
	Paused    bool `json:"paused"`
}

func (s *Scheduler) QueueNames() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.queues))
	for name := range s.queues {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (s *Scheduler) Counts(queueName string) (Counts, error) {
	q, err := s.queue(queueName)
	if err != nil {
		return Counts{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return Counts{
		Waiting:   q.waiting.Len(),
		Active:    len(q.active),
		Completed: len(q.completed),
		Failed:    len(q.failed),
		Delayed:   len(q.delayed),
		Paused:    q.paused,
	}, nil
}

// AllCounts returns Counts for every registered queue.
func (s *Scheduler) AllCounts() map[string]Counts {
	out := map[string]Counts{}
	for _, name := range s.QueueNames() {
		if c, err := s.Counts(name); err == nil {
			out[name] = c
		}
	}
	return out
}

// Pause stops new jobs from starting. Queued jobs are kept and running jobs
// finish normally.
func (s *Scheduler) Pause(queueName string) error {
	return s.setPaused(queueName, true)
}

func (s *Scheduler) Resume(queueName string) error {
	return s.setPaused(queueName, false)
}

func (s *Scheduler) setPaused(queueName string, paused bool) error {
	q, err := s.queue(queueName)
	if err != nil {
		return err
	}
	q.mu.Lock()
	changed := q.paused != paused
	q.paused = paused
	q.mu.Unlock()
	if !changed {
		return nil
	}

	evt := EventResumed
	if paused {
		evt = EventPaused
	}
	s.log.Info("Queue "+string(evt), map[string]interface{}{"queue": queueName})
	s.emit(Event{Type: evt, Queue: queueName, At: s.now()})
	q.signal()
	return nil
}

// Clean removes completed or failed jobs that finished more than grace ago.
func (s *Scheduler) Clean(queueName string, grace time.Duration, state JobState) (int, error) {
	if state != StateCompleted && state != StateFailed {
		return 0, fmt.Errorf("clean supports completed and failed jobs, got %q", state)
	}
	q, err := s.queue(queueName)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-grace)

	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.completed
	if state == StateFailed {
		list = q.failed
	}
	removed := 0
	for _, id := range append([]string(nil), list...) {
		j, ok := q.jobs[id]
		if !ok || j.State != state || j.FinishedAt == nil || j.FinishedAt.After(cutoff) {
			continue
		}
		q.dropLocked(j)
		removed++
	}
	return removed, nil
}

// RetryFailed moves every failed job back to waiting with a fresh attempt
// budget.
func (s *Scheduler) RetryFailed(queueName string) (int, error) {
	q, err := s.queue(queueName)
	if err != nil {
		return 0, err
	}
	q.mu.Lock()
	n := 0
	for _, id := range q.failed {
		j, ok := q.jobs[id]
		if !ok || j.State != StateFailed {
			continue
		}
		j.State = StateWaiting
		j.AttemptsMade = 0
		j.StalledCount = 0
		j.FinishedAt = nil
		j.FailedReason, j.ErrorCode = "", ""
		j.done = make(chan struct{})
		j.seq = s.seq.Add(1)
		heap.Push(&q.waiting, j)
		n++
	}
	q.failed = nil
	q.mu.Unlock()

	if n > 0 {
		s.log.Info("Failed jobs requeued", map[string]interface{}{"queue": queueName, "count": n})
		q.signal()
	}
	return n, nil
}

// Remove deletes a job that is not running.
func (s *Scheduler) Remove(queueName, jobID string) error {
	q, err := s.queue(queueName)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return apperrors.NewJobNotFoundError(queueName, jobID)
	}
	if j.State == StateActive {
		return apperrors.NewJobActiveError(queueName, jobID)
	}
	q.dropLocked(j)
	if !j.terminal() {
		close(j.done)
	}
	return nil
}

func (s *Scheduler) GetJob(queueName, jobID string) (Job, error) {
	q, err := s.queue(queueName)
	if err != nil {
		return Job{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return Job{}, apperrors.NewJobNotFoundError(queueName, jobID)
	}
	return j.snapshot(), nil
}

// Jobs lists jobs in state, oldest first. An empty state lists all jobs;
// limit <= 0 means no limit.
func (s *Scheduler) Jobs(queueName string, state JobState, limit int) ([]Job, error) {
	q, err := s.queue(queueName)
	if err != nil {
		return nil, err
	}
	q.mu.Lock()
	out := make([]Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		if state == "" || j.State == state {
			out = append(out, j.snapshot())
		}
	}
	q.mu.Unlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].seq < out[b].seq
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Scheduler) ActiveJobs(queueName string) ([]Job, error) {
	return s.Jobs(queueName, StateActive, 0)
}

// WaitFor blocks until the job completes, fails permanently, or ctx ends.
func (s *Scheduler) WaitFor(ctx context.Context, queueName, jobID string) (Job, error) {
	q, err := s.queue(queueName)
	if err != nil {
		return Job{}, err
	}
	q.mu.Lock()
	j, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return Job{}, apperrors.NewJobNotFoundError(queueName, jobID)
	}
	done := j.done
	q.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	snap := j.snapshot()
	if !snap.terminal() {
		return snap, apperrors.NewJobNotFoundError(queueName, jobID)
	}
	return snap, nil
}
