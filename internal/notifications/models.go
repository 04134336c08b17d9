package notifications

import (
	"encoding/json"
	"fmt"
	"time"
)

// Notification types.
const (
	TypeInfo    = "info"
	TypeWarning = "warning"
	TypeError   = "error"
	TypeSuccess = "success"
	TypeSystem  = "system"
)

// Priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Statuses.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

var knownTypes = map[string]bool{
	TypeInfo: true, TypeWarning: true, TypeError: true, TypeSuccess: true, TypeSystem: true,
}

var knownPriorities = map[string]bool{
	PriorityLow: true, PriorityMedium: true, PriorityHigh: true, PriorityCritical: true,
}

var knownStatuses = map[string]bool{
	StatusPending: true, StatusDelivered: true, StatusRead: true, StatusFailed: true,
}

// Notification is one message addressed to a recipient.
type Notification struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Type          string         `json:"notification_type"`
	Priority      string         `json:"priority"`
	Status        string         `json:"status"`
	RecipientID   string         `json:"recipient_id"`
	RecipientType string         `json:"recipient_type"`
	SenderID      string         `json:"sender_id,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	ActionURL     string         `json:"action_url,omitempty"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty"`
	ReadAt        *time.Time     `json:"read_at,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type CreateRequest struct {
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Type          string         `json:"notification_type"`
	Priority      string         `json:"priority"`
	RecipientID   string         `json:"recipient_id"`
	RecipientType string         `json:"recipient_type"`
	SenderID      string         `json:"sender_id"`
	Data          map[string]any `json:"data"`
	ActionURL     string         `json:"action_url"`
	ExpiresAt     *time.Time     `json:"expires_at"`
}

// BulkCreateRequest sends one message to many recipients.
type BulkCreateRequest struct {
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Type          string         `json:"notification_type"`
	Priority      string         `json:"priority"`
	RecipientIDs  []string       `json:"recipient_ids"`
	RecipientType string         `json:"recipient_type"`
	SenderID      string         `json:"sender_id"`
	Data          map[string]any `json:"data"`
	ActionURL     string         `json:"action_url"`
	ExpiresAt     *time.Time     `json:"expires_at"`
}

type UpdateRequest struct {
	Status    *string `json:"status"`
	ActionURL *string `json:"action_url"`
}

// Filter narrows notification listings.
type Filter struct {
	RecipientID    string
	Status         string
	Type           string
	Priority       string
	IncludeExpired bool
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

func asTimePtr(v any) *time.Time {
	if v == nil {
		return nil
	}
	t := asTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

func decodeData(v any) map[string]any {
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

func notificationFromRow(row map[string]any) *Notification {
	return &Notification{
		ID:            asString(row["id"]),
		Title:         asString(row["title"]),
		Message:       asString(row["message"]),
		Type:          asString(row["notification_type"]),
		Priority:      asString(row["priority"]),
		Status:        asString(row["status"]),
		RecipientID:   asString(row["recipient_id"]),
		RecipientType: asString(row["recipient_type"]),
		SenderID:      asString(row["sender_id"]),
		Data:          decodeData(row["data"]),
		ActionURL:     asString(row["action_url"]),
		DeliveredAt:   asTimePtr(row["delivered_at"]),
		ReadAt:        asTimePtr(row["read_at"]),
		ExpiresAt:     asTimePtr(row["expires_at"]),
		CreatedAt:     asTime(row["created_at"]),
		UpdatedAt:     asTime(row["updated_at"]),
	}
}
