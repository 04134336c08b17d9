package webhooks

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies an event the platform can fan out to webhook endpoints.
type EventType string

const (
	EventConfigCreated      EventType = "config.created"
	EventConfigUpdated      EventType = "config.updated"
	EventConfigDeleted      EventType = "config.deleted"
	EventFeatureFlagCreated EventType = "feature_flag.created"
	EventFeatureFlagUpdated EventType = "feature_flag.updated"
	EventFeatureFlagDeleted EventType = "feature_flag.deleted"
	EventAuditEvent         EventType = "audit.event"
	EventSystemAlert        EventType = "system.alert"
)

var knownEventTypes = map[EventType]bool{
	EventConfigCreated:      true,
	EventConfigUpdated:      true,
	EventConfigDeleted:      true,
	EventFeatureFlagCreated: true,
	EventFeatureFlagUpdated: true,
	EventFeatureFlagDeleted: true,
	EventAuditEvent:         true,
	EventSystemAlert:        true,
}

// IsValid reports whether e is one of the recognized event types.
func (e EventType) IsValid() bool {
	return knownEventTypes[e]
}

// Endpoint statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusFailed   = "failed"
)

// Endpoint is a registered third-party URL plus its delivery configuration.
type Endpoint struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Description    string            `json:"description,omitempty"`
	Secret         string            `json:"secret,omitempty"`
	Status         string            `json:"status"`
	CreatedBy      string            `json:"created_by,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	RetryCount     int               `json:"retry_count"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Subscription binds an endpoint to one event type, optionally filtered.
type Subscription struct {
	ID               string         `json:"id"`
	EndpointID       string         `json:"endpoint_id"`
	EventType        EventType      `json:"event_type"`
	FilterConditions map[string]any `json:"filter_conditions,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Delivery records one attempt (or series of attempts) to deliver an event
// payload to an endpoint.
type Delivery struct {
	ID             string            `json:"id"`
	EndpointID     string            `json:"endpoint_id"`
	EventType      EventType         `json:"event_type"`
	Payload        map[string]any    `json:"payload"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
	ResponseStatus *int              `json:"response_status,omitempty"`
	ResponseBody   string            `json:"response_body,omitempty"`
	Success        bool              `json:"success"`
	AttemptCount   int               `json:"attempt_count"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	NextRetryAt    *time.Time        `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// CreateEndpointRequest is the body for POST /webhooks/endpoints.
type CreateEndpointRequest struct {
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Description    string            `json:"description"`
	Secret         string            `json:"secret"`
	Headers        map[string]string `json:"headers"`
	RetryCount     *int              `json:"retry_count"`
	TimeoutSeconds *int              `json:"timeout_seconds"`
}

// UpdateEndpointRequest is the body for PUT /webhooks/endpoints/:id.
// Nil fields are left unchanged.
type UpdateEndpointRequest struct {
	Name           *string            `json:"name"`
	URL            *string            `json:"url"`
	Description    *string            `json:"description"`
	Secret         *string            `json:"secret"`
	Status         *string            `json:"status"`
	Headers        *map[string]string `json:"headers"`
	RetryCount     *int               `json:"retry_count"`
	TimeoutSeconds *int               `json:"timeout_seconds"`
}

// SubscribeRequest is the body for POST /webhooks/endpoints/:id/subscriptions.
type SubscribeRequest struct {
	EventType        EventType      `json:"event_type"`
	FilterConditions map[string]any `json:"filter_conditions"`
}

// TriggerResult is the response for POST /webhooks/trigger/:event_type.
type TriggerResult struct {
	EventType     EventType `json:"event_type"`
	DeliveryCount int       `json:"delivery_count"`
	DeliveryIDs   []string  `json:"delivery_ids"`
}

// Match is a joined endpoint/subscription pair returned by the matcher.
type Match struct {
	Endpoint     Endpoint
	Subscription Subscription
}

// --- Row decoding ---

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
	case json.Number:
		n, _ := val.Int64()
		return int(n)
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

func asIntPtr(v any) *int {
	if v == nil {
		return nil
	}
	n := asInt(v)
	return &n
}

// decodeStringMap parses a JSON object column into a string map.
func decodeStringMap(v any) map[string]string {
	raw := decodeAnyMap(v)
	if raw == nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		out[k] = asString(val)
	}
	return out
}

// decodeAnyMap parses a JSON object column into a generic map.
func decodeAnyMap(v any) map[string]any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return val
	case string:
		if val == "" {
			return nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(val), &m); err != nil {
			return nil
		}
		return m
	case []byte:
		var m map[string]any
		if err := json.Unmarshal(val, &m); err != nil {
			return nil
		}
		return m
	default:
		return nil
	}
}

func endpointFromRow(row map[string]any) *Endpoint {
	return &Endpoint{
		ID:             asString(row["id"]),
		Name:           asString(row["name"]),
		URL:            asString(row["url"]),
		Description:    asString(row["description"]),
		Secret:         asString(row["secret"]),
		Status:         asString(row["status"]),
		CreatedBy:      asString(row["created_by"]),
		Headers:        decodeStringMap(row["headers"]),
		RetryCount:     asInt(row["retry_count"]),
		TimeoutSeconds: asInt(row["timeout_seconds"]),
		CreatedAt:      asTime(row["created_at"]),
		UpdatedAt:      asTime(row["updated_at"]),
	}
}

func subscriptionFromRow(row map[string]any) *Subscription {
	return &Subscription{
		ID:               asString(row["id"]),
		EndpointID:       asString(row["endpoint_id"]),
		EventType:        EventType(asString(row["event_type"])),
		FilterConditions: decodeAnyMap(row["filter_conditions"]),
		CreatedAt:        asTime(row["created_at"]),
		UpdatedAt:        asTime(row["updated_at"]),
	}
}

func deliveryFromRow(row map[string]any) *Delivery {
	return &Delivery{
		ID:             asString(row["id"]),
		EndpointID:     asString(row["endpoint_id"]),
		EventType:      EventType(asString(row["event_type"])),
		Payload:        decodeAnyMap(row["payload"]),
		RequestHeaders: decodeStringMap(row["request_headers"]),
		ResponseStatus: asIntPtr(row["response_status"]),
		ResponseBody:   asString(row["response_body"]),
		Success:        asBool(row["success"]),
		AttemptCount:   asInt(row["attempt_count"]),
		CompletedAt:    asTimePtr(row["completed_at"]),
		NextRetryAt:    asTimePtr(row["next_retry_at"]),
		CreatedAt:      asTime(row["created_at"]),
		UpdatedAt:      asTime(row["updated_at"]),
	}
}
