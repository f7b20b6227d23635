// internal/workers/collection/collect-item/models.go
package collectitem

import (
	"image-collector/internal/collector"
	"image-collector/internal/models"
)

type Input = models.CollectItemPayload

type Output struct {
	collector.Result
	FollowUpJobID string `json:"followUpJobId,omitempty"`
}
