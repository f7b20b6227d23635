// internal/workers/collection/collect-item/config.go
package collectitem

import (
	"time"

	"image-collector/internal/common/config"
)

type Config struct {
	// Timeout bounds one collection attempt. Zero leaves it to the queue.
	Timeout time.Duration
	// Reschedule enqueues a delayed follow-up when an item stays pending.
	Reschedule bool
}

func LoadConfig(cfg *config.Config) *Config {
	q := config.GetQueueConfig(cfg, config.QueueCollectItem)
	return &Config{
		Timeout:    config.GetDuration(q.Timeout),
		Reschedule: true,
	}
}
