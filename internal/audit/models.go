package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Log is one immutable audit trail entry.
type Log struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id"`
	EventType    string         `json:"event_type"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       string         `json:"action"`
	OldValue     string         `json:"old_value,omitempty"`
	NewValue     string         `json:"new_value,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

type CreateLogRequest struct {
	ActorID      string         `json:"actor_id"`
	EventType    string         `json:"event_type"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       string         `json:"action"`
	OldValue     string         `json:"old_value"`
	NewValue     string         `json:"new_value"`
	Metadata     map[string]any `json:"metadata"`
	IPAddress    string         `json:"ip_address"`
}

// Filter narrows audit log listings. Zero values are ignored.
type Filter struct {
	ActorID      string
	EventType    string
	ResourceType string
	ResourceID   string
	Action       string
	Start        *time.Time
	End          *time.Time
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

func decodeMetadata(v any) map[string]any {
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

func logFromRow(row map[string]any) *Log {
	return &Log{
		ID:           asString(row["id"]),
		ActorID:      asString(row["actor_id"]),
		EventType:    asString(row["event_type"]),
		ResourceType: asString(row["resource_type"]),
		ResourceID:   asString(row["resource_id"]),
		Action:       asString(row["action"]),
		OldValue:     asString(row["old_value"]),
		NewValue:     asString(row["new_value"]),
		Metadata:     decodeMetadata(row["metadata"]),
		IPAddress:    asString(row["ip_address"]),
		CreatedAt:    asTime(row["created_at"]),
	}
}
