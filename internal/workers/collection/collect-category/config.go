// internal/workers/collection/collect-category/config.go
package collectcategory

import (
	"time"

	"image-collector/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	q := config.GetQueueConfig(cfg, config.QueueCollectCategory)
	return &Config{
		Timeout: config.GetDuration(q.Timeout),
	}
}
