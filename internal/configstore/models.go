package configstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Scope groups configuration items under a unique name.
type Scope struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Item is one configuration key/value inside a scope.
type Item struct {
	ID          string    `json:"id"`
	ScopeID     string    `json:"scope_id"`
	Key         string    `json:"key"`
	Value       any       `json:"value"`
	Description string    `json:"description,omitempty"`
	Version     int       `json:"version"`
	IsSecret    bool      `json:"is_secret"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HistoryEntry is a prior version of an item's value.
type HistoryEntry struct {
	ID        string    `json:"id"`
	ConfigID  string    `json:"config_id"`
	Value     any       `json:"value"`
	Version   int       `json:"version"`
	ChangedBy string    `json:"changed_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateScopeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type UpdateScopeRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type CreateItemRequest struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Description string `json:"description"`
	IsSecret    bool   `json:"is_secret"`
}

type UpdateItemRequest struct {
	Value       *json.RawMessage `json:"value"`
	Description *string          `json:"description"`
	IsSecret    *bool            `json:"is_secret"`
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	default:
		return false
	}
}

func asTime(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, val); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// decodeJSONValue parses a JSON column back into its Go value.
func decodeJSONValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		var out any
		if err := json.Unmarshal([]byte(val), &out); err != nil {
			return val
		}
		return out
	case []byte:
		var out any
		if err := json.Unmarshal(val, &out); err != nil {
			return string(val)
		}
		return out
	default:
		return val
	}
}

func scopeFromRow(row map[string]any) *Scope {
	return &Scope{
		ID:          asString(row["id"]),
		Name:        asString(row["name"]),
		Description: asString(row["description"]),
		CreatedAt:   asTime(row["created_at"]),
		UpdatedAt:   asTime(row["updated_at"]),
	}
}

func itemFromRow(row map[string]any) *Item {
	return &Item{
		ID:          asString(row["id"]),
		ScopeID:     asString(row["scope_id"]),
		Key:         asString(row["key"]),
		Value:       decodeJSONValue(row["value"]),
		Description: asString(row["description"]),
		Version:     asInt(row["version"]),
		IsSecret:    asBool(row["is_secret"]),
		CreatedAt:   asTime(row["created_at"]),
		UpdatedAt:   asTime(row["updated_at"]),
	}
}

func historyFromRow(row map[string]any) *HistoryEntry {
	return &HistoryEntry{
		ID:        asString(row["id"]),
		ConfigID:  asString(row["config_id"]),
		Value:     decodeJSONValue(row["value"]),
		Version:   asInt(row["version"]),
		ChangedBy: asString(row["changed_by"]),
		CreatedAt: asTime(row["created_at"]),
	}
}
