package scheduler

import (
	"time"

	"image-collector/internal/common/config"
)

type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// RetryPolicy is shared by every queue. MaxAttempts counts the first run.
type RetryPolicy struct {
	Kind        BackoffKind
	BaseDelay   time.Duration
	MaxAttempts int
}

// Delay returns the wait before the next attempt once attemptsMade attempts
// have failed. Exponential backoff waits base*2^(attemptsMade-1).
func (p RetryPolicy) Delay(attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}
	if p.Kind != BackoffExponential {
		return p.BaseDelay
	}
	shift := attemptsMade - 1
	if shift > 20 {
		shift = 20
	}
	return p.BaseDelay * time.Duration(1<<uint(shift))
}

// RetryPolicyFromConfig maps a queue section onto a policy.
func RetryPolicyFromConfig(q config.QueueConfig) RetryPolicy {
	kind := BackoffFixed
	if q.Backoff == string(BackoffExponential) {
		kind = BackoffExponential
	}
	attempts := q.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return RetryPolicy{Kind: kind, BaseDelay: config.GetDuration(q.BackoffDelay), MaxAttempts: attempts}
}

// QueueOptions configure one named queue.
type QueueOptions struct {
	Name             string
	Concurrency      int
	Retry            RetryPolicy
	RemoveOnComplete int
	RemoveOnFail     int
	StallTimeout     time.Duration
	MaxStalledCount  int
	Timeout          time.Duration
}

// QueueOptionsFromConfig builds options for queue name from its config section.
func QueueOptionsFromConfig(name string, q config.QueueConfig) QueueOptions {
	return QueueOptions{
		Name:             name,
		Concurrency:      q.Concurrency,
		Retry:            RetryPolicyFromConfig(q),
		RemoveOnComplete: q.RemoveOnComplete,
		RemoveOnFail:     q.RemoveOnFail,
		StallTimeout:     config.GetDuration(q.StallTimeout),
		MaxStalledCount:  1,
		Timeout:          config.GetDuration(q.Timeout),
	}
}

func (o QueueOptions) withDefaults() QueueOptions {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.Retry.MaxAttempts < 1 {
		o.Retry.MaxAttempts = 1
	}
	if o.Retry.Kind == "" {
		o.Retry.Kind = BackoffFixed
	}
	if o.MaxStalledCount < 1 {
		o.MaxStalledCount = 1
	}
	return o
}
