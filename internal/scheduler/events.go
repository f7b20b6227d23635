package scheduler

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventEnqueued  EventType = "enqueued"
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventRetrying  EventType = "retrying"
	EventStalled   EventType = "stalled"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
)

// Event is a job lifecycle notification. Terminal is set on failed events
// that end the job.
type Event struct {
	Type      EventType       `json:"type"`
	Queue     string          `json:"queue"`
	JobID     string          `json:"jobId,omitempty"`
	JobType   string          `json:"jobType,omitempty"`
	Attempt   int             `json:"attempt,omitempty"`
	Progress  int             `json:"progress,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode string          `json:"errorCode,omitempty"`
	Terminal  bool            `json:"terminal,omitempty"`
	Delay     time.Duration   `json:"delay,omitempty"`
	Duration  time.Duration   `json:"duration,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	At        time.Time       `json:"at"`
}

// Listener receives events synchronously from the scheduler. Listeners must
// not block; slow consumers should buffer.
type Listener func(Event)
