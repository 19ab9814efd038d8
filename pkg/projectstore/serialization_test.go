package projectstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordToHash(t *testing.T) {
	hash, err := RecordToHash("ABC-123", map[string]json.RawMessage{
		"project": json.RawMessage(`{"key":"ABC-123"}`),
		"empty":   nil,
	}, 1700000000000)
	require.NoError(t, err)

	assert.Equal(t, "ABC-123", hash["project_key"])
	assert.Equal(t, int64(1700000000000), hash["updated_at_ms"])
	assert.Equal(t, `{"key":"ABC-123"}`, hash["data:project"])
	assert.Equal(t, "null", hash["data:empty"], "missing values are stored as JSON null")
	assert.NotContains(t, hash, "created_at_ms")
}

func TestRecordToHash_RejectsEmptyFieldName(t *testing.T) {
	_, err := RecordToHash("ABC-123", map[string]json.RawMessage{"": json.RawMessage(`1`)}, 1)
	assert.Error(t, err)
}

func TestHashToRecord(t *testing.T) {
	record, err := HashToRecord(map[string]string{
		"project_key":   "ABC-123",
		"created_at_ms": "10",
		"updated_at_ms": "20",
		"data:project":  `{"a":1}`,
		"unrelated":     "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "ABC-123", record.ProjectKey)
	assert.Equal(t, int64(10), record.CreatedAtMs)
	assert.Equal(t, int64(20), record.UpdatedAtMs)
	assert.Equal(t, []string{"project"}, record.FieldNames())
}

func TestHashToRecord_Errors(t *testing.T) {
	_, err := HashToRecord(map[string]string{"data:project": "{}"})
	assert.Error(t, err, "project_key is required")

	_, err = HashToRecord(map[string]string{"project_key": "A-1", "updated_at_ms": "soon"})
	assert.Error(t, err)
}

func TestSeenKey(t *testing.T) {
	assert.Equal(t, "projectId:ABC-123", SeenKey("ABC-123"))
	assert.Equal(t, "xray:prod:kv:projectId:ABC-123", KVKey("prod", SeenKey("ABC-123")))
	assert.Equal(t, "xray:prod:project:ABC-123", ProjectKey("prod", "ABC-123"))
	assert.Equal(t, "xray:prod:project_events", ProjectEventsChannel("prod"))
}

func TestValidateProjectKey(t *testing.T) {
	assert.NoError(t, ValidateProjectKey("ABC-123"))
	assert.Error(t, ValidateProjectKey("abc-123"))
	assert.Error(t, ValidateProjectKey("ABC123"))
	assert.Error(t, ValidateProjectKey(""))
}

func TestProjectReferenceValidate(t *testing.T) {
	valid := ProjectReference{CloudID: "1b2c3d4e-0000-4000-8000-00000000abcd", ProjectID: "ABC-123"}
	assert.NoError(t, valid.Validate())

	assert.Error(t, ProjectReference{CloudID: "abc", ProjectID: "ABC-123"}.Validate())
	assert.Error(t, ProjectReference{CloudID: valid.CloudID, ProjectID: "abc-1"}.Validate())
	assert.Equal(t, "ABC-123 (cloud 1b2c3d4e-0000-4000-8000-00000000abcd)", valid.String())
}
