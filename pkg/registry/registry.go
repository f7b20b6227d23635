package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"image-collector/internal/common/validation"
)

// Job type identifiers.
const (
	JobTypeCollectItem     = "collect-item"
	JobTypeCollectCategory = "collect-category"
)

func LoadRegistry(path string) (*JobRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg JobRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// LoadOrDefault reads path, falling back to Default when the file is absent.
func LoadOrDefault(path string) (*JobRegistry, error) {
	reg, err := LoadRegistry(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return reg, err
}

// Save writes reg to path as indented JSON, stamping LastUpdated.
func Save(path string, reg *JobRegistry) error {
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Lookup returns the job type with id.
func (r *JobRegistry) Lookup(id string) (JobType, bool) {
	for _, jt := range r.JobTypes {
		if jt.ID == id {
			return jt, true
		}
	}
	return JobType{}, false
}

// Validator compiles every input schema, keyed by job type.
func (r *JobRegistry) Validator() (*validation.SchemaValidator, error) {
	v := validation.NewSchemaValidator()
	for _, jt := range r.JobTypes {
		if len(jt.InputSchema) == 0 {
			continue
		}
		if err := v.Register(jt.ID, jt.InputSchema); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Default returns the built-in registry of collection job types.
func Default() *JobRegistry {
	return &JobRegistry{
		Version: "1.0.0",
		JobTypes: []JobType{
			{
				ID:          JobTypeCollectItem,
				DisplayName: "Collect item images",
				Description: "Searches sources, downloads, scores and stores images for one vocabulary item",
				Queue:       JobTypeCollectItem,
				Version:     "1.0.0",
				InputSchema: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"category":        map[string]interface{}{"type": "string", "minLength": 1},
						"letter":          map[string]interface{}{"type": "string", "maxLength": 1},
						"itemName":        map[string]interface{}{"type": "string", "minLength": 1},
						"targetCount":     map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 50},
						"sources":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
						"minQualityScore": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 10},
						"useAiGeneration": map[string]interface{}{"type": "boolean"},
						"maxRetries":      map[string]interface{}{"type": "integer", "minimum": 1},
						"forceRestart":    map[string]interface{}{"type": "boolean"},
					},
					"required": []interface{}{"category", "itemName"},
				},
				ErrorCodes: []string{"ITEM_COLLECTION_FAILED", "ITEM_NOT_FOUND", "ITEM_BUSY"},
				Timeout:    "15m",
				Retries:    3,
				Tags:       []string{"collection"},
			},
			{
				ID:          JobTypeCollectCategory,
				DisplayName: "Collect category images",
				Description: "Runs item collection for every pending item of a category in bounded batches",
				Queue:       JobTypeCollectCategory,
				Version:     "1.0.0",
				InputSchema: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"category":     map[string]interface{}{"type": "string", "minLength": 1},
						"itemKeys":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
						"batchSize":    map[string]interface{}{"type": "integer", "minimum": 1},
						"forceRestart": map[string]interface{}{"type": "boolean"},
						"collect":      map[string]interface{}{"type": "object"},
					},
					"required": []interface{}{"category"},
				},
				ErrorCodes: []string{"NO_PENDING_ITEMS"},
				Timeout:    "2h",
				Retries:    1,
				Tags:       []string{"collection", "batch"},
			},
		},
	}
}
