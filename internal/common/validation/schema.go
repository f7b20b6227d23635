package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SchemaValidator validates JSON documents against named JSON schemas.
// Schemas are compiled once on registration.
type SchemaValidator struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{schemas: map[string]*gojsonschema.Schema{}}
}

// Register compiles schema (a decoded JSON schema document) under name.
func (v *SchemaValidator) Register(name string, schema map[string]interface{}) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", name, err)
	}
	v.mu.Lock()
	v.schemas[name] = compiled
	v.mu.Unlock()
	return nil
}

// Has reports whether a schema is registered under name.
func (v *SchemaValidator) Has(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.schemas[name]
	return ok
}

// ValidateJSON validates raw JSON against the schema registered under name.
// Unknown names validate successfully.
func (v *SchemaValidator) ValidateJSON(name string, document []byte) (*ValidationResult, error) {
	v.mu.RLock()
	schema, ok := v.schemas[name]
	v.mu.RUnlock()
	if !ok {
		return &ValidationResult{Valid: true}, nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	return toResult(result), nil
}

func toResult(result *gojsonschema.Result) *ValidationResult {
	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}
