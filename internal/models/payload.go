package models

import (
	"encoding/json"
	"fmt"
)

// JobPayload is the tagged union of job payloads. Each variant names the job
// type, and therefore the queue, it belongs to.
type JobPayload interface {
	JobType() string
	Validate() error
}

// CollectOverrides are per-run options overriding the configured defaults.
// Zero values mean "use the default".
type CollectOverrides struct {
	TargetCount     int      `json:"targetCount,omitempty"`
	Sources         []string `json:"sources,omitempty"`
	MinQualityScore *float64 `json:"minQualityScore,omitempty"`
	UseAIGeneration *bool    `json:"useAiGeneration,omitempty"`
	MaxRetries      int      `json:"maxRetries,omitempty"`
}

type CollectItemPayload struct {
	Category     string `json:"category"`
	Letter       string `json:"letter,omitempty"`
	ItemName     string `json:"itemName"`
	ForceRestart bool   `json:"forceRestart,omitempty"`
	CollectOverrides
}

func (CollectItemPayload) JobType() string { return "collect-item" }

func (p CollectItemPayload) Key() ItemKey {
	k := NewItemKey(p.Category, p.ItemName)
	if p.Letter != "" {
		k.Letter = p.Letter
	}
	return k
}

func (p CollectItemPayload) Validate() error {
	if err := p.Key().Validate(); err != nil {
		return err
	}
	if p.TargetCount < 0 || p.MaxRetries < 0 {
		return fmt.Errorf("targetCount and maxRetries must not be negative")
	}
	if p.MinQualityScore != nil && (*p.MinQualityScore < 0 || *p.MinQualityScore > 10) {
		return fmt.Errorf("minQualityScore must lie within [0, 10]")
	}
	return nil
}

type CollectCategoryPayload struct {
	Category     string           `json:"category"`
	ItemKeys     []string         `json:"itemKeys,omitempty"`
	BatchSize    int              `json:"batchSize,omitempty"`
	ForceRestart bool             `json:"forceRestart,omitempty"`
	Collect      CollectOverrides `json:"collect"`
}

func (CollectCategoryPayload) JobType() string { return "collect-category" }

func (p CollectCategoryPayload) Validate() error {
	if p.Category == "" {
		return fmt.Errorf("category is required")
	}
	for _, s := range p.ItemKeys {
		k, err := ParseItemKey(s)
		if err != nil {
			return err
		}
		if k.Category != p.Category {
			return fmt.Errorf("item %q does not belong to category %q", s, p.Category)
		}
	}
	return nil
}

// DecodePayload decodes data into the variant registered for jobType.
func DecodePayload(jobType string, data []byte) (JobPayload, error) {
	switch jobType {
	case CollectItemPayload{}.JobType():
		var p CollectItemPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case CollectCategoryPayload{}.JobType():
		var p CollectCategoryPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}
}
