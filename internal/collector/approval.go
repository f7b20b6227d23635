package collector

import (
	"context"
	"fmt"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/models"
)

// ForceApprove approves a candidate regardless of its score, as a manual
// selection. The candidate becomes primary when the item has none, and an
// item reaching its target is completed.
func (o *Orchestrator) ForceApprove(ctx context.Context, key models.ItemKey, candidateID string) (*models.Item, error) {
	return o.mutate(ctx, key, candidateID, func(item *models.Item, c *models.ImageCandidate) error {
		now := o.now().UTC()
		score := 0.0
		if c.Score != nil {
			score = c.Score.Overall
		}
		c.Status = o.deps.Policy.Decide(score, true)
		c.ManuallyChosen = true
		c.RejectionReason = ""
		c.ApprovedAt = &now
		c.UpdatedAt = now

		p := item.Progress
		if p == nil {
			p = models.NewCollectionProgress(o.cfg.TargetCount)
			item.Progress = p
		}
		o.ensurePrimary(item)
		p.Recompute(item.Images)
		if p.ApprovedCount >= p.TargetCount && p.Status != models.ItemStatusCollecting {
			p.Status = models.ItemStatusCompleted
			p.CompletedAt = &now
			p.NextAttempt = nil
		}
		o.log.Info("Candidate force-approved", map[string]interface{}{
			"item":        key.String(),
			"candidateId": c.ID,
			"primary":     c.IsPrimary,
		})
		return nil
	})
}

// SetPrimary moves the primary flag to an approved candidate.
func (o *Orchestrator) SetPrimary(ctx context.Context, key models.ItemKey, candidateID string) (*models.Item, error) {
	return o.mutate(ctx, key, candidateID, func(item *models.Item, c *models.ImageCandidate) error {
		if c.Status != models.CandidateApproved {
			return apperrors.NewInvalidPayloadError("set-primary",
				fmt.Sprintf("candidate %s is %s, only approved candidates can be primary", c.ID, c.Status))
		}
		for i := range item.Images {
			item.Images[i].IsPrimary = false
		}
		c.IsPrimary = true
		c.UpdatedAt = o.now().UTC()
		return nil
	})
}

// mutate applies fn to one candidate under the item lock and saves the item.
func (o *Orchestrator) mutate(ctx context.Context, key models.ItemKey, candidateID string, fn func(*models.Item, *models.ImageCandidate) error) (*models.Item, error) {
	release, err := o.deps.Locker.Acquire(ctx, key, o.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			o.log.Warn("Failed to release item lock", map[string]interface{}{"item": key.String(), "candidateId": candidateID, "error": err.Error()})
		}
	}()

	item, err := o.deps.Store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	idx := item.ImageIndex(candidateID)
	if idx < 0 {
		return nil, apperrors.NewItemNotFoundError(key.String() + " candidate " + candidateID)
	}
	if err := fn(item, &item.Images[idx]); err != nil {
		return nil, err
	}
	if err := o.deps.Store.Save(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}
