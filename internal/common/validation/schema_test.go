package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itemSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"category":    map[string]interface{}{"type": "string", "minLength": 1},
			"itemName":    map[string]interface{}{"type": "string", "minLength": 1},
			"targetCount": map[string]interface{}{"type": "integer", "minimum": 1},
		},
		"required": []interface{}{"category", "itemName"},
	}
}

func TestSchemaValidator_ValidDocument(t *testing.T) {
	v := NewSchemaValidator()
	require.NoError(t, v.Register("collect-item", itemSchema()))
	assert.True(t, v.Has("collect-item"))

	res, err := v.ValidateJSON("collect-item", []byte(`{"category":"fruits","itemName":"apple","targetCount":3}`))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestSchemaValidator_InvalidDocument(t *testing.T) {
	v := NewSchemaValidator()
	require.NoError(t, v.Register("collect-item", itemSchema()))

	res, err := v.ValidateJSON("collect-item", []byte(`{"category":"fruits","targetCount":0}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.GetErrorMessages())
	assert.True(t, res.HasErrors("targetCount"))
}

func TestSchemaValidator_UnknownSchemaPasses(t *testing.T) {
	v := NewSchemaValidator()
	res, err := v.ValidateJSON("missing", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestSchemaValidator_MalformedJSON(t *testing.T) {
	v := NewSchemaValidator()
	require.NoError(t, v.Register("collect-item", itemSchema()))
	_, err := v.ValidateJSON("collect-item", []byte(`{not json`))
	assert.Error(t, err)
}
