package models

import "time"

type CandidateStatus string

const (
	CandidatePending      CandidateStatus = "pending"
	CandidateApproved     CandidateStatus = "approved"
	CandidateRejected     CandidateStatus = "rejected"
	CandidateManualReview CandidateStatus = "manual_review"
)

type DerivativeSize string

const (
	SizeThumbnail DerivativeSize = "thumbnail"
	SizeSmall     DerivativeSize = "small"
	SizeMedium    DerivativeSize = "medium"
	SizeLarge     DerivativeSize = "large"
	SizeOriginal  DerivativeSize = "original"
)

// StoredVariant is one persisted derivative of a candidate.
type StoredVariant struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	ETag        string `json:"etag,omitempty"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Bytes       int64  `json:"bytes"`
	ContentType string `json:"contentType"`
}

type License struct {
	Name        string `json:"name,omitempty"`
	URL         string `json:"url,omitempty"`
	Author      string `json:"author,omitempty"`
	AuthorURL   string `json:"authorUrl,omitempty"`
	Attribution string `json:"attribution,omitempty"`
}

func (l License) IsZero() bool {
	return l == License{}
}

type ImageCandidate struct {
	ID              string                           `json:"id"`
	Source          string                           `json:"source"`
	SourceID        string                           `json:"sourceId"`
	OriginURL       string                           `json:"originUrl"`
	PageURL         string                           `json:"pageUrl,omitempty"`
	Variants        map[DerivativeSize]StoredVariant `json:"variants,omitempty"`
	Width           int                              `json:"width"`
	Height          int                              `json:"height"`
	Bytes           int64                            `json:"bytes"`
	Format          string                           `json:"format"`
	Score           *QualityScore                    `json:"qualityScore,omitempty"`
	Status          CandidateStatus                  `json:"status"`
	IsPrimary       bool                             `json:"isPrimary"`
	License         License                          `json:"license"`
	PerceptualHash  uint64                           `json:"perceptualHash,omitempty"`
	Generated       bool                             `json:"generated,omitempty"`
	ManuallyChosen  bool                             `json:"manuallyChosen,omitempty"`
	RejectionReason string                           `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time                        `json:"createdAt"`
	UpdatedAt       time.Time                        `json:"updatedAt"`
	ApprovedAt      *time.Time                       `json:"approvedAt,omitempty"`
}

// OverallScore returns the overall score, or 0 when unscored.
func (c *ImageCandidate) OverallScore() float64 {
	if c.Score == nil {
		return 0
	}
	return c.Score.Overall
}

func (c ImageCandidate) Clone() ImageCandidate {
	cp := c
	if c.Variants != nil {
		cp.Variants = make(map[DerivativeSize]StoredVariant, len(c.Variants))
		for k, v := range c.Variants {
			cp.Variants[k] = v
		}
	}
	if c.Score != nil {
		s := *c.Score
		cp.Score = &s
	}
	if c.ApprovedAt != nil {
		t := *c.ApprovedAt
		cp.ApprovedAt = &t
	}
	return cp
}

// QualityScore is immutable once computed; re-analysis replaces it.
type QualityScore struct {
	Overall    float64        `json:"overall"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
	Weights    ScoreWeights   `json:"weights"`
	ComputedAt time.Time      `json:"computedAt"`
}

type ScoreBreakdown struct {
	Technical float64 `json:"technical"`
	Relevance float64 `json:"relevance"`
	Aesthetic float64 `json:"aesthetic"`
	Usability float64 `json:"usability"`
}

type ScoreWeights struct {
	Technical float64 `json:"technical"`
	Relevance float64 `json:"relevance"`
	Aesthetic float64 `json:"aesthetic"`
	Usability float64 `json:"usability"`
}

// DefaultScoreWeights sum to 1.0.
var DefaultScoreWeights = ScoreWeights{Technical: 0.35, Relevance: 0.25, Aesthetic: 0.20, Usability: 0.20}

func (w ScoreWeights) Sum() float64 {
	return w.Technical + w.Relevance + w.Aesthetic + w.Usability
}
