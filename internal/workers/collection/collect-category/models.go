// internal/workers/collection/collect-category/models.go
package collectcategory

import (
	"image-collector/internal/models"
	"image-collector/internal/planner"
)

type Input = models.CollectCategoryPayload

type Output = planner.Report
