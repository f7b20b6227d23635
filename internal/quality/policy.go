package quality

import (
	"errors"

	"image-collector/internal/common/config"
	"image-collector/internal/models"
)

const (
	DefaultAutoApprovalThreshold = 8.5
	DefaultMinQualityThreshold   = 5.0
)

var errInvalidDimensions = errors.New("image has no usable dimensions")

// DecisionPolicy maps an overall score onto a candidate status.
type DecisionPolicy struct {
	AutoApprovalThreshold float64
	MinQualityThreshold   float64
}

func DefaultPolicy() DecisionPolicy {
	return DecisionPolicy{AutoApprovalThreshold: DefaultAutoApprovalThreshold, MinQualityThreshold: DefaultMinQualityThreshold}
}

func PolicyFromConfig(cfg config.QualityConfig) DecisionPolicy {
	p := DefaultPolicy()
	if cfg.AutoApprovalThreshold > 0 {
		p.AutoApprovalThreshold = cfg.AutoApprovalThreshold
	}
	if cfg.MinQualityThreshold > 0 {
		p.MinQualityThreshold = cfg.MinQualityThreshold
	}
	return p
}

// WithMinQuality returns a copy using a per-request minimum score.
func (p DecisionPolicy) WithMinQuality(minScore *float64) DecisionPolicy {
	if minScore != nil {
		p.MinQualityThreshold = *minScore
	}
	return p
}

// Decide rejects below the minimum before considering approval, so raising
// the minimum never promotes a candidate.
func (p DecisionPolicy) Decide(score float64, manual bool) models.CandidateStatus {
	switch {
	case manual:
		return models.CandidateApproved
	case score < p.MinQualityThreshold:
		return models.CandidateRejected
	case score >= p.AutoApprovalThreshold:
		return models.CandidateApproved
	default:
		return models.CandidateManualReview
	}
}

type Bucket string

const (
	BucketLow    Bucket = "low"
	BucketReview Bucket = "review"
	BucketHigh   Bucket = "high"
)

// BucketOf groups scores for stats using the decision boundaries.
func BucketOf(score float64) Bucket {
	switch {
	case score < DefaultMinQualityThreshold:
		return BucketLow
	case score < DefaultAutoApprovalThreshold:
		return BucketReview
	default:
		return BucketHigh
	}
}
