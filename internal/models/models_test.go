package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewItemKey(t *testing.T) {
	k := NewItemKey("fruits", " apple ")
	assert.Equal(t, ItemKey{Category: "fruits", Letter: "A", Name: "apple"}, k)
	assert.Equal(t, "fruits/A/apple", k.String())
	assert.NoError(t, k.Validate())

	parsed, err := ParseItemKey("fruits/A/apple")
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseItemKey("fruits/apple")
	assert.Error(t, err)
	_, err = ParseItemKey("fruits/AB/apple")
	assert.Error(t, err)
}

func TestCollectionProgress_RecordErrorKeepsMostRecent(t *testing.T) {
	p := NewCollectionProgress(3)
	for i := 0; i < 15; i++ {
		p.RecordError(CollectionError{Code: "DOWNLOAD_FAILED", Message: string(rune('a' + i))}, 10)
	}
	require.Len(t, p.Errors, 10)
	assert.Equal(t, "f", p.Errors[0].Message)
	assert.Equal(t, "o", p.Errors[9].Message)
}

func TestCollectionProgress_Recompute(t *testing.T) {
	images := []ImageCandidate{
		{Status: CandidateApproved, Score: &QualityScore{Overall: 9}},
		{Status: CandidateApproved, Score: &QualityScore{Overall: 8.6}},
		{Status: CandidateRejected, Score: &QualityScore{Overall: 3}},
		{Status: CandidateManualReview, Score: &QualityScore{Overall: 6.4}},
		{Status: CandidateApproved},
	}
	p := NewCollectionProgress(3)
	p.Recompute(images)

	assert.Equal(t, 5, p.CollectedCount)
	assert.Equal(t, 3, p.ApprovedCount)
	assert.Equal(t, 1, p.RejectedCount)
	assert.Equal(t, 1, p.ManualReviewCount)
	assert.Equal(t, 9.0, p.BestQualityScore)
	assert.InDelta(t, (9+8.6+3+6.4)/4, p.AverageQualityScore, 1e-9)
}

func TestItem_CloneIsDeep(t *testing.T) {
	now := time.Now()
	it := &Item{
		Key: NewItemKey("fruits", "apple"),
		Images: []ImageCandidate{{
			ID:       "1",
			Status:   CandidateApproved,
			Score:    &QualityScore{Overall: 9},
			Variants: map[DerivativeSize]StoredVariant{SizeSmall: {Path: "a"}},
		}},
		Progress: NewCollectionProgress(3),
	}
	it.Progress.LastAttempt = &now
	it.Progress.UpdateSource("unsplash", func(s *SourceStats) { s.Found = 2 })

	cp := it.Clone()
	cp.Images[0].Score.Overall = 1
	cp.Images[0].Variants[SizeSmall] = StoredVariant{Path: "b"}
	cp.Progress.UpdateSource("unsplash", func(s *SourceStats) { s.Found = 9 })
	cp.Progress.Status = ItemStatusFailed

	assert.Equal(t, 9.0, it.Images[0].Score.Overall)
	assert.Equal(t, "a", it.Images[0].Variants[SizeSmall].Path)
	assert.Equal(t, 2, it.Progress.SourceStats["unsplash"].Found)
	assert.Equal(t, ItemStatusPending, it.Status())
}

func TestItem_PrimaryIndex(t *testing.T) {
	it := &Item{Images: []ImageCandidate{
		{ID: "a", Status: CandidateManualReview, IsPrimary: true},
		{ID: "b", Status: CandidateApproved, IsPrimary: true},
	}}
	assert.Equal(t, 1, it.PrimaryIndex())
	assert.Equal(t, 0, it.ImageIndex("a"))
	assert.Equal(t, -1, it.ImageIndex("z"))
}

func TestDecodePayload(t *testing.T) {
	minScore := 6.0
	raw, err := json.Marshal(CollectItemPayload{
		Category: "fruits", ItemName: "apple",
		CollectOverrides: CollectOverrides{TargetCount: 4, MinQualityScore: &minScore},
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"targetCount":4`)

	p, err := DecodePayload("collect-item", raw)
	require.NoError(t, err)
	item := p.(CollectItemPayload)
	assert.Equal(t, "fruits/A/apple", item.Key().String())
	assert.Equal(t, 4, item.TargetCount)
	require.NotNil(t, item.MinQualityScore)
	assert.NoError(t, item.Validate())

	_, err = DecodePayload("resize", raw)
	assert.Error(t, err)
}

func TestCollectCategoryPayload_Validate(t *testing.T) {
	ok := CollectCategoryPayload{Category: "fruits", ItemKeys: []string{"fruits/A/apple", "fruits/B/banana"}}
	assert.NoError(t, ok.Validate())

	foreign := CollectCategoryPayload{Category: "fruits", ItemKeys: []string{"animals/C/cat"}}
	assert.Error(t, foreign.Validate())

	assert.Error(t, CollectCategoryPayload{}.Validate())
}
