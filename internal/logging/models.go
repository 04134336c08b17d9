package logging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one structured log record ingested from another service.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Service   string         `json:"service"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	SpanID    string         `json:"span_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
}

type IngestRequest struct {
	Timestamp *time.Time     `json:"timestamp"`
	Level     string         `json:"level"`
	Service   string         `json:"service"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	TraceID   string         `json:"trace_id"`
	SpanID    string         `json:"span_id"`
	UserID    string         `json:"user_id"`
	IPAddress string         `json:"ip_address"`
}

// Filter narrows log queries. Zero values are ignored.
type Filter struct {
	Level   string
	Service string
	TraceID string
	UserID  string
	Start   *time.Time
	End     *time.Time
}

// Stats summarizes ingested logs.
type Stats struct {
	TotalCount int            `json:"total_count"`
	ByLevel    map[string]int `json:"by_level"`
	ByService  map[string]int `json:"by_service"`
}

// Export bundles a filtered set of entries for download.
type Export struct {
	ExportID   string    `json:"export_id"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Path       string    `json:"path,omitempty"`
	Entries    []*Entry  `json:"entries"`
}

var knownLevels = map[string]bool{
	"debug":    true,
	"info":     true,
	"warning":  true,
	"error":    true,
	"critical": true,
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

func decodeContext(v any) map[string]any {
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

func entryFromRow(row map[string]any) *Entry {
	return &Entry{
		ID:        asString(row["id"]),
		Timestamp: asTime(row["timestamp"]),
		Level:     asString(row["level"]),
		Service:   asString(row["service"]),
		Message:   asString(row["message"]),
		Context:   decodeContext(row["context"]),
		TraceID:   asString(row["trace_id"]),
		SpanID:    asString(row["span_id"]),
		UserID:    asString(row["user_id"]),
		IPAddress: asString(row["ip_address"]),
	}
}
