package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFieldSchemaRequiredMissing(t *testing.T) {
	errs := ValidateFieldSchema("entity", FieldSchema{Type: FieldString, Required: true}, map[string]any{})
	require.Len(t, errs, 1)
	assert.Equal(t, "entity", errs[0].Field)
}

func TestValidateFieldSchemaOptionalMissing(t *testing.T) {
	errs := ValidateFieldSchema("entity", FieldSchema{Type: FieldString, Required: false}, map[string]any{})
	assert.Empty(t, errs)
}

func TestValidateFieldSchemaWrongType(t *testing.T) {
	errs := ValidateFieldSchema("count", FieldSchema{Type: FieldInt}, map[string]any{"count": "not an int"})
	require.Len(t, errs, 1)
}

func TestValidateFieldSchemaChoices(t *testing.T) {
	schema := FieldSchema{Type: FieldString, Choices: []string{"domain", "shared"}}
	errs := ValidateFieldSchema("scope", schema, map[string]any{"scope": "domain"})
	assert.Empty(t, errs)

	errs = ValidateFieldSchema("scope", schema, map[string]any{"scope": "nope"})
	require.Len(t, errs, 1)
}

func TestValidateFieldSchemaBool(t *testing.T) {
	errs := ValidateFieldSchema("flag", FieldSchema{Type: FieldBool}, map[string]any{"flag": true})
	assert.Empty(t, errs)

	errs = ValidateFieldSchema("flag", FieldSchema{Type: FieldBool}, map[string]any{"flag": "true"})
	require.Len(t, errs, 1)
}

func TestValidateFieldSchemaPathMustExist(t *testing.T) {
	schema := FieldSchema{Type: FieldPath, Exists: true}

	errs := ValidateFieldSchema("schema_file", schema, map[string]any{"schema_file": "/nonexistent/path/does-not-exist.sql"})
	require.Len(t, errs, 1)

	errs = ValidateFieldSchema("schema_file", schema, map[string]any{"schema_file": t.TempDir()})
	assert.Empty(t, errs)
}

func TestValidateFieldSchemaPathExistsNotRequiredByDefault(t *testing.T) {
	schema := FieldSchema{Type: FieldPath}
	errs := ValidateFieldSchema("schema_file", schema, map[string]any{"schema_file": "/nonexistent/path/does-not-exist.sql"})
	assert.Empty(t, errs)
}

func TestRegistryGetMiss(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}
