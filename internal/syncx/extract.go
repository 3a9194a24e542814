package syncx

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Extracted holds the lifecycle columns every synchronized table carries
// (spec.md §3: id, created_at, updated_at, deleted_at), parsed out of a
// client-submitted row payload whose keys are lower-snake-case table
// columns exactly as emitted on pull (spec.md §4.4, §6).
type Extracted struct {
	ID          uuid.UUID
	CreatedAtMs int64
	UpdatedAtMs int64
	DeletedAtMs *int64
}

// GetString safely extracts a string value from a map.
func GetString(m map[string]any, k string) (string, bool) {
	if v, ok := m[k]; ok {
		if s, ok2 := v.(string); ok2 {
			return s, true
		}
	}
	return "", false
}

// GetMap safely extracts a nested map from a map.
// Handles both map[string]any and map[string]interface{} (the shape
// protobuf Struct.AsMap() returns).
func GetMap(m map[string]any, k string) (map[string]any, bool) {
	if v, ok := m[k]; ok {
		if mm, ok2 := v.(map[string]any); ok2 {
			return mm, true
		}
		if mm, ok2 := v.(map[string]interface{}); ok2 {
			converted := make(map[string]any, len(mm))
			for key, val := range mm {
				converted[key] = val
			}
			return converted, true
		}
	}
	return nil, false
}

// ParseUUID parses a UUID string.
func ParseUUID(s string) (uuid.UUID, bool) {
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	return id, err == nil
}

// ParseTimeToMs converts a timestamp value to Unix milliseconds.
// Accepts a JSON number (float64, already Unix ms), a numeric string, or
// an RFC3339 string, since clients may serialize int64 either way.
func ParseTimeToMs(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case string:
		if t == "" {
			return 0, false
		}
		if ms, err := strconv.ParseInt(t, 10, 64); err == nil {
			return ms, true
		}
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts.UTC().UnixMilli(), true
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts.UTC().UnixMilli(), true
		}
	}
	return 0, false
}

// ExtractLifecycle parses the lifecycle columns out of a row payload.
// id and updated_at are required; created_at falls back to updated_at
// when absent (e.g. on a row's first push); deleted_at is optional —
// an absent key or explicit null means the row is not deleted.
func ExtractLifecycle(row map[string]any) (Extracted, error) {
	var out Extracted

	idStr, _ := GetString(row, "id")
	id, ok := ParseUUID(idStr)
	if !ok {
		return out, errors.New("missing or invalid id")
	}
	out.ID = id

	rawUpd, ok := row["updated_at"]
	if !ok || rawUpd == nil {
		return out, errors.New("missing updated_at")
	}
	updMs, ok := ParseTimeToMs(rawUpd)
	if !ok {
		return out, errors.New("invalid updated_at")
	}
	out.UpdatedAtMs = updMs

	if rawCreated, ok := row["created_at"]; ok && rawCreated != nil {
		if createdMs, ok2 := ParseTimeToMs(rawCreated); ok2 {
			out.CreatedAtMs = createdMs
		} else {
			out.CreatedAtMs = updMs
		}
	} else {
		out.CreatedAtMs = updMs
	}

	if rawDeleted, ok := row["deleted_at"]; ok && rawDeleted != nil {
		if delMs, ok2 := ParseTimeToMs(rawDeleted); ok2 {
			out.DeletedAtMs = &delMs
		}
	}

	return out, nil
}
