package scheduler

import (
	"container/heap"
	"context"
	"encoding/json"
	"time"
)

type JobState string

const (
	StateWaiting   JobState = "waiting"
	StateDelayed   JobState = "delayed"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// Job is a snapshot of a queued unit of work.
type Job struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority"`
	AttemptsMade int             `json:"attemptsMade"`
	MaxAttempts  int             `json:"maxAttempts"`
	State        JobState        `json:"state"`
	Progress     int             `json:"progress"`
	Result       json.RawMessage `json:"result,omitempty"`
	FailedReason string          `json:"failedReason,omitempty"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	StalledCount int             `json:"stalledCount"`
	CreatedAt    time.Time       `json:"createdAt"`
	RunAt        time.Time       `json:"runAt"`
	ProcessedAt  *time.Time      `json:"processedAt,omitempty"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`

	seq       uint64
	token     uint64
	heartbeat time.Time
	done      chan struct{}
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

func (j *Job) snapshot() Job {
	cp := *j
	cp.done = nil
	return cp
}

func (j *Job) terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// JobOptions are per-enqueue settings. A zero MaxAttempts uses the queue
// policy.
type JobOptions struct {
	JobID       string
	Priority    int
	Delay       time.Duration
	MaxAttempts int
}

// JobHandle identifies an enqueued job. Existing is set when an active or
// waiting job with the same ID was returned instead of a new one.
type JobHandle struct {
	ID       string `json:"id"`
	Queue    string `json:"queue"`
	Type     string `json:"type"`
	Existing bool   `json:"existing"`
}

// ProgressFunc reports percent complete and doubles as a heartbeat.
type ProgressFunc func(percent int)

// Handler processes jobs of one queue. The returned value becomes the job
// result; an error triggers the retry policy.
type Handler interface {
	Handle(ctx context.Context, job Job, progress ProgressFunc) (interface{}, error)
}

type HandlerFunc func(ctx context.Context, job Job, progress ProgressFunc) (interface{}, error)

func (f HandlerFunc) Handle(ctx context.Context, job Job, progress ProgressFunc) (interface{}, error) {
	return f(ctx, job, progress)
}

// jobHeap orders waiting jobs by priority (higher first), then FIFO.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, k int) bool {
	if h[i].Priority != h[k].Priority {
		return h[i].Priority > h[k].Priority
	}
	return h[i].seq < h[k].seq
}

func (h jobHeap) Swap(i, k int) { h[i], h[k] = h[k], h[i] }

func (h *jobHeap) Push(x interface{}) { *h = append(*h, x.(*Job)) }

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}

func (h *jobHeap) remove(id string) bool {
	for i, j := range *h {
		if j.ID == id {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}
