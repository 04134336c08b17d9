package webhooks

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"platform-core/internal/core"
)

func testApp(t *testing.T) *fiber.App {
	t.Helper()
	svc := testService(t, testStore(t))
	app := fiber.New(fiber.Config{ErrorHandler: core.ErrorHandler})
	RegisterRoutes(app.Group("/api/v1"), NewHandler(svc))
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestEndpointLifecycleOverHTTP(t *testing.T) {
	app := testApp(t)

	// Create
	resp := doRequest(t, app, "POST", "/api/v1/webhooks/endpoints", map[string]any{
		"name": "ci hook",
		"url":  "https://example.com/hook",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var ep Endpoint
	decodeBody(t, resp, &ep)
	if ep.ID == "" || ep.Status != StatusActive {
		t.Fatalf("unexpected endpoint: %+v", ep)
	}

	// Get
	resp = doRequest(t, app, "GET", "/api/v1/webhooks/endpoints/"+ep.ID, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Update
	resp = doRequest(t, app, "PUT", "/api/v1/webhooks/endpoints/"+ep.ID, map[string]any{
		"status": "inactive",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var updated Endpoint
	decodeBody(t, resp, &updated)
	if updated.Status != StatusInactive {
		t.Fatalf("expected inactive, got %s", updated.Status)
	}

	// Delete
	resp = doRequest(t, app, "DELETE", "/api/v1/webhooks/endpoints/"+ep.ID, nil)
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = doRequest(t, app, "GET", "/api/v1/webhooks/endpoints/"+ep.ID, nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestCreateEndpoint_ValidationErrorShape(t *testing.T) {
	app := testApp(t)

	resp := doRequest(t, app, "POST", "/api/v1/webhooks/endpoints", map[string]any{
		"url": "https://example.com",
	})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	var body struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	}
	decodeBody(t, resp, &body)
	if body.Code != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED, got %s", body.Code)
	}
	if body.Detail == "" {
		t.Fatal("expected detail message")
	}
}

func TestTriggerOverHTTP_Accepted(t *testing.T) {
	app := testApp(t)

	resp := doRequest(t, app, "POST", "/api/v1/webhooks/trigger/config.created", map[string]any{
		"scope": "app", "key": "theme",
	})
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var result TriggerResult
	decodeBody(t, resp, &result)
	if result.EventType != EventConfigCreated {
		t.Fatalf("expected event echoed, got %s", result.EventType)
	}
	if result.DeliveryCount != 0 {
		t.Fatalf("expected 0 deliveries without subscriptions, got %d", result.DeliveryCount)
	}

	// Unknown event type is rejected
	resp = doRequest(t, app, "POST", "/api/v1/webhooks/trigger/not.an.event", map[string]any{})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422 for unknown event, got %d", resp.StatusCode)
	}
}

func TestSubscriptionRoutes(t *testing.T) {
	app := testApp(t)

	resp := doRequest(t, app, "POST", "/api/v1/webhooks/endpoints", map[string]any{
		"name": "hook", "url": "https://example.com",
	})
	var ep Endpoint
	decodeBody(t, resp, &ep)

	resp = doRequest(t, app, "POST", "/api/v1/webhooks/endpoints/"+ep.ID+"/subscriptions", map[string]any{
		"event_type": "config.updated",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var sub Subscription
	decodeBody(t, resp, &sub)
	if sub.EventType != EventConfigUpdated {
		t.Fatalf("unexpected subscription: %+v", sub)
	}

	resp = doRequest(t, app, "GET", "/api/v1/webhooks/subscriptions?endpoint_id="+ep.ID, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var subs []Subscription
	decodeBody(t, resp, &subs)
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(subs))
	}

	resp = doRequest(t, app, "DELETE", "/api/v1/webhooks/subscriptions/"+sub.ID, nil)
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}

func TestDeliveryRoutes(t *testing.T) {
	app := testApp(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp := doRequest(t, app, "POST", "/api/v1/webhooks/endpoints", map[string]any{
		"name": "hook", "url": server.URL,
	})
	var ep Endpoint
	decodeBody(t, resp, &ep)

	resp = doRequest(t, app, "POST", "/api/v1/webhooks/endpoints/"+ep.ID+"/subscriptions", map[string]any{
		"event_type": "system.alert",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = doRequest(t, app, "POST", "/api/v1/webhooks/trigger/system.alert", map[string]any{
		"reason": "disk",
	})
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var result TriggerResult
	decodeBody(t, resp, &result)
	if result.DeliveryCount != 1 {
		t.Fatalf("expected 1 delivery, got %d", result.DeliveryCount)
	}

	resp = doRequest(t, app, "GET", "/api/v1/webhooks/deliveries?endpoint_id="+ep.ID, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var deliveries []Delivery
	decodeBody(t, resp, &deliveries)
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery listed, got %d", len(deliveries))
	}

	resp = doRequest(t, app, "GET", "/api/v1/webhooks/deliveries/"+result.DeliveryIDs[0], nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var delivery Delivery
	decodeBody(t, resp, &delivery)
	if delivery.ID != result.DeliveryIDs[0] || delivery.EndpointID != ep.ID {
		t.Fatalf("unexpected delivery: %+v", delivery)
	}
	if !delivery.Success || delivery.EventType != EventSystemAlert {
		t.Fatalf("expected successful system.alert delivery, got %+v", delivery)
	}

	resp = doRequest(t, app, "GET", "/api/v1/webhooks/deliveries/"+uuid.NewString(), nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 for unknown delivery, got %d", resp.StatusCode)
	}
}
