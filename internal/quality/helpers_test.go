package quality

import (
	"time"

	"image-collector/internal/common/config"
)

var fixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func floatPtr(v float64) *float64 { return &v }

func configQuality(auto, minScore float64) config.QualityConfig {
	return config.QualityConfig{AutoApprovalThreshold: auto, MinQualityThreshold: minScore}
}
