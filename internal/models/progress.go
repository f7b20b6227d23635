package models

import "time"

type SourceStats struct {
	Found        int        `json:"found"`
	Approved     int        `json:"approved"`
	LastSearched *time.Time `json:"lastSearched,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
}

type CollectionError struct {
	At      time.Time `json:"at"`
	Source  string    `json:"source,omitempty"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// CollectionProgress is the per-item collection state owned by the
// orchestrator.
type CollectionProgress struct {
	Status              ItemStatus             `json:"status"`
	TargetCount         int                    `json:"targetCount"`
	CollectedCount      int                    `json:"collectedCount"`
	ApprovedCount       int                    `json:"approvedCount"`
	RejectedCount       int                    `json:"rejectedCount"`
	ManualReviewCount   int                    `json:"manualReviewCount"`
	SearchAttempts      int                    `json:"searchAttempts"`
	SourceStats         map[string]SourceStats `json:"sourceStats"`
	Errors              []CollectionError      `json:"errors"`
	AverageQualityScore float64                `json:"averageQualityScore"`
	BestQualityScore    float64                `json:"bestQualityScore"`
	LastAttempt         *time.Time             `json:"lastAttempt,omitempty"`
	NextAttempt         *time.Time             `json:"nextAttempt,omitempty"`
	CompletedAt         *time.Time             `json:"completedAt,omitempty"`
}

func NewCollectionProgress(target int) *CollectionProgress {
	return &CollectionProgress{
		Status:      ItemStatusPending,
		TargetCount: target,
		SourceStats: map[string]SourceStats{},
	}
}

// RecordError appends e, keeping only the most recent limit entries.
func (p *CollectionProgress) RecordError(e CollectionError, limit int) {
	p.Errors = append(p.Errors, e)
	if limit > 0 && len(p.Errors) > limit {
		p.Errors = append([]CollectionError(nil), p.Errors[len(p.Errors)-limit:]...)
	}
}

// UpdateSource applies fn to the stats of source.
func (p *CollectionProgress) UpdateSource(source string, fn func(*SourceStats)) {
	if p.SourceStats == nil {
		p.SourceStats = map[string]SourceStats{}
	}
	s := p.SourceStats[source]
	fn(&s)
	p.SourceStats[source] = s
}

// Recompute derives the counters and score aggregates from images.
func (p *CollectionProgress) Recompute(images []ImageCandidate) {
	p.CollectedCount = len(images)
	p.ApprovedCount, p.RejectedCount, p.ManualReviewCount = 0, 0, 0
	p.AverageQualityScore, p.BestQualityScore = 0, 0

	scored := 0
	total := 0.0
	for i := range images {
		switch images[i].Status {
		case CandidateApproved:
			p.ApprovedCount++
		case CandidateRejected:
			p.RejectedCount++
		case CandidateManualReview:
			p.ManualReviewCount++
		}
		if images[i].Score != nil {
			s := images[i].Score.Overall
			total += s
			scored++
			if s > p.BestQualityScore {
				p.BestQualityScore = s
			}
		}
	}
	if scored > 0 {
		p.AverageQualityScore = total / float64(scored)
	}
}

func (p *CollectionProgress) Clone() *CollectionProgress {
	if p == nil {
		return nil
	}
	cp := *p
	if p.SourceStats != nil {
		cp.SourceStats = make(map[string]SourceStats, len(p.SourceStats))
		for k, v := range p.SourceStats {
			if v.LastSearched != nil {
				t := *v.LastSearched
				v.LastSearched = &t
			}
			cp.SourceStats[k] = v
		}
	}
	if p.Errors != nil {
		cp.Errors = append([]CollectionError(nil), p.Errors...)
	}
	cp.LastAttempt = cloneTime(p.LastAttempt)
	cp.NextAttempt = cloneTime(p.NextAttempt)
	cp.CompletedAt = cloneTime(p.CompletedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
