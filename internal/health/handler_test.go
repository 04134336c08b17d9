package health

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"platform-core/internal/config"
	"platform-core/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   t.TempDir(),
		Name:   "test",
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestHealth(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app, NewHandler(testStore(t), nil))

	req, _ := http.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Version == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestReady_RedisDisabled(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app, NewHandler(testStore(t), nil))

	req, _ := http.NewRequest("GET", "/health/ready", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	// Disabled redis does not fail readiness
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status     string `json:"status"`
		Components map[string]struct {
			Status string `json:"status"`
		} `json:"components"`
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Components["database"].Status != "ok" {
		t.Fatalf("expected database ok, got %+v", body.Components)
	}
	if body.Components["redis"].Status != "disabled" {
		t.Fatalf("expected redis disabled, got %+v", body.Components)
	}
}
