package flags

import (
	"encoding/json"
	"fmt"
	"time"
)

// Flag is a feature flag with optional targeting rules.
//
// Rules is a JSON object supporting:
//   - allowed_users:  list of user IDs that always get the flag
//   - allowed_groups: list of group IDs that always get the flag
//   - percentage:     0-100 rollout bucketed by a stable hash of user_id
//   - expression:     boolean expression evaluated against the context
type Flag struct {
	ID          string         `json:"id"`
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Enabled     bool           `json:"enabled"`
	Rules       map[string]any `json:"rules,omitempty"`
	Version     int            `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type CreateFlagRequest struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Enabled     bool           `json:"enabled"`
	Rules       map[string]any `json:"rules"`
}

type UpdateFlagRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Enabled     *bool           `json:"enabled"`
	Rules       *map[string]any `json:"rules"`
}

// EvalContext carries the identity attributes rules are evaluated against.
type EvalContext struct {
	UserID     string         `json:"user_id"`
	GroupID    string         `json:"group_id"`
	Attributes map[string]any `json:"attributes"`
}

// EvalResult is the response for a flag evaluation.
type EvalResult struct {
	Key     string `json:"key"`
	Enabled bool   `json:"enabled"`
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

func decodeRules(v any) map[string]any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return val
	case string:
		var m map[string]any
		if json.Unmarshal([]byte(val), &m) == nil {
			return m
		}
	case []byte:
		var m map[string]any
		if json.Unmarshal(val, &m) == nil {
			return m
		}
	}
	return nil
}

func flagFromRow(row map[string]any) *Flag {
	return &Flag{
		ID:          asString(row["id"]),
		Key:         asString(row["key"]),
		Name:        asString(row["name"]),
		Description: asString(row["description"]),
		Enabled:     asBool(row["enabled"]),
		Rules:       decodeRules(row["rules"]),
		Version:     asInt(row["version"]),
		CreatedAt:   asTime(row["created_at"]),
		UpdatedAt:   asTime(row["updated_at"]),
	}
}
