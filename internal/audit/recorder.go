package audit

import (
	"context"
	"encoding/json"
	"log"
)

// Recorder writes audit entries on behalf of other modules. A nil Recorder
// is a no-op, and recording failures are logged rather than returned so
// callers never fail a request over its audit trail.
type Recorder struct {
	service *Service
}

func NewRecorder(svc *Service) *Recorder {
	return &Recorder{service: svc}
}

func (r *Recorder) record(ctx context.Context, actorID, eventType, resourceType, resourceID, action string, oldValue, newValue any) {
	if r == nil || r.service == nil {
		return
	}
	req := &CreateLogRequest{
		ActorID:      actorID,
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		OldValue:     encodeValue(oldValue),
		NewValue:     encodeValue(newValue),
	}
	if _, err := r.service.insert(ctx, req); err != nil {
		log.Printf("ERROR: audit record %s %s/%s: %v", action, resourceType, resourceID, err)
	}
}

// ConfigChange records a configuration scope or item mutation.
func (r *Recorder) ConfigChange(ctx context.Context, actorID, resourceType, resourceID, action string, oldValue, newValue any) {
	r.record(ctx, actorID, "config.change", "config_"+resourceType, resourceID, action, oldValue, newValue)
}

// FlagChange records a feature flag mutation.
func (r *Recorder) FlagChange(ctx context.Context, actorID, flagKey, action string, oldValue, newValue any) {
	r.record(ctx, actorID, "feature_flag.change", "feature_flag", flagKey, action, oldValue, newValue)
}

// WebhookChange records a webhook endpoint mutation.
func (r *Recorder) WebhookChange(ctx context.Context, actorID, endpointID, action string, oldValue, newValue any) {
	r.record(ctx, actorID, "webhook.change", "webhook_endpoint", endpointID, action, oldValue, newValue)
}

func encodeValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
