package projectstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Serialization helpers for converting project records to and from Redis hashes.
//
// Each top-level GraphQL field is stored as its own hash field prefixed with
// "data:", so HSET naturally merges a later save onto an earlier one.

const dataFieldPrefix = "data:"

// RecordToHash converts a batch of GraphQL fields into the hash fields written by one save.
// created_at_ms is not included; callers set it with HSETNX so it survives later saves.
func RecordToHash(projectKey string, data map[string]json.RawMessage, savedAtMs int64) (map[string]interface{}, error) {
	hash := map[string]interface{}{
		"project_key":   projectKey,
		"updated_at_ms": savedAtMs,
	}

	for name, raw := range data {
		if name == "" {
			return nil, fmt.Errorf("field name cannot be empty")
		}
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("field %q is not valid JSON", name)
		}
		hash[dataFieldPrefix+name] = string(raw)
	}

	return hash, nil
}

// HashToRecord converts a Redis hash back into a ProjectRecord.
func HashToRecord(hash map[string]string) (*ProjectRecord, error) {
	record := &ProjectRecord{
		ProjectKey: hash["project_key"],
		Fields:     make(map[string]json.RawMessage),
	}

	if record.ProjectKey == "" {
		return nil, fmt.Errorf("missing project_key field")
	}

	var err error
	if v := hash["created_at_ms"]; v != "" {
		if record.CreatedAtMs, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid created_at_ms field: %w", err)
		}
	}
	if v := hash["updated_at_ms"]; v != "" {
		if record.UpdatedAtMs, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid updated_at_ms field: %w", err)
		}
	}

	for field, value := range hash {
		name, ok := strings.CutPrefix(field, dataFieldPrefix)
		if !ok {
			continue
		}
		record.Fields[name] = json.RawMessage(value)
	}

	return record, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
