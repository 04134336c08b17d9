package logging

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"platform-core/internal/config"
	"platform-core/internal/core"
	"platform-core/internal/storage"
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
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func ingest(t *testing.T, svc *Service, level, service, message string, opts func(*IngestRequest)) *Entry {
	t.Helper()
	req := &IngestRequest{Level: level, Service: service, Message: message}
	if opts != nil {
		opts(req)
	}
	entry, err := svc.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return entry
}

func TestIngest_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(testStore(t), nil)

	cases := []*IngestRequest{
		{Level: "verbose", Service: "api", Message: "x"},
		{Level: "info", Service: "", Message: "x"},
		{Level: "info", Service: "api", Message: "  "},
	}
	for _, req := range cases {
		_, err := svc.Ingest(ctx, req)
		var appErr *core.AppError
		if !errors.As(err, &appErr) || appErr.Status != 422 {
			t.Fatalf("req %+v: expected 422, got %v", req, err)
		}
	}
}

func TestIngest_NormalizesLevelAndKeepsFields(t *testing.T) {
	svc := NewService(testStore(t), nil)

	entry := ingest(t, svc, "ERROR", "api", "boom", func(r *IngestRequest) {
		r.Context = map[string]any{"path": "/v1/x"}
		r.TraceID = "trace-1"
		r.UserID = "u1"
	})
	if entry.Level != "error" {
		t.Fatalf("expected level lowercased, got %s", entry.Level)
	}
	if entry.Context["path"] != "/v1/x" {
		t.Fatalf("expected context preserved, got %v", entry.Context)
	}
	if entry.TraceID != "trace-1" || entry.UserID != "u1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Timestamp.IsZero() {
		t.Fatal("expected server-assigned timestamp")
	}
}

func TestIngest_ClientTimestampKept(t *testing.T) {
	svc := NewService(testStore(t), nil)

	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	entry := ingest(t, svc, "info", "api", "old event", func(r *IngestRequest) {
		r.Timestamp = &ts
	})
	if !entry.Timestamp.Equal(ts) {
		t.Fatalf("expected timestamp %s, got %s", ts, entry.Timestamp)
	}
}

func TestQuery_Filters(t *testing.T) {
	ctx := context.Background()
	svc := NewService(testStore(t), nil)

	ingest(t, svc, "info", "api", "request handled", nil)
	ingest(t, svc, "error", "api", "request failed", func(r *IngestRequest) { r.TraceID = "t1" })
	ingest(t, svc, "error", "worker", "job failed", nil)

	page := core.Page{Limit: 100}

	errs, err := svc.Query(ctx, Filter{Level: "error"}, page)
	if err != nil {
		t.Fatalf("query by level: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 error entries, got %d", len(errs))
	}

	api, err := svc.Query(ctx, Filter{Service: "api"}, page)
	if err != nil {
		t.Fatalf("query by service: %v", err)
	}
	if len(api) != 2 {
		t.Fatalf("expected 2 api entries, got %d", len(api))
	}

	traced, err := svc.Query(ctx, Filter{TraceID: "t1"}, page)
	if err != nil {
		t.Fatalf("query by trace: %v", err)
	}
	if len(traced) != 1 || traced[0].Message != "request failed" {
		t.Fatalf("expected the traced entry, got %+v", traced)
	}

	both, err := svc.Query(ctx, Filter{Level: "error", Service: "worker"}, page)
	if err != nil {
		t.Fatalf("query combined: %v", err)
	}
	if len(both) != 1 || both[0].Message != "job failed" {
		t.Fatalf("expected worker failure, got %+v", both)
	}
}

func TestQuery_TimeWindow(t *testing.T) {
	ctx := context.Background()
	svc := NewService(testStore(t), nil)

	old := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	ingest(t, svc, "info", "api", "ancient", func(r *IngestRequest) { r.Timestamp = &old })
	ingest(t, svc, "info", "api", "recent", nil)

	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent, err := svc.Query(ctx, Filter{Start: &cutoff}, core.Page{Limit: 100})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recent) != 1 || recent[0].Message != "recent" {
		t.Fatalf("expected only the recent entry, got %+v", recent)
	}

	older, err := svc.Query(ctx, Filter{End: &cutoff}, core.Page{Limit: 100})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(older) != 1 || older[0].Message != "ancient" {
		t.Fatalf("expected only the ancient entry, got %+v", older)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc := NewService(testStore(t), nil)

	ingest(t, svc, "info", "api", "a", nil)
	ingest(t, svc, "info", "api", "b", nil)
	ingest(t, svc, "error", "worker", "c", nil)

	stats, err := svc.Stats(ctx, nil, nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalCount != 3 {
		t.Fatalf("expected total 3, got %d", stats.TotalCount)
	}
	if stats.ByLevel["info"] != 2 || stats.ByLevel["error"] != 1 {
		t.Fatalf("unexpected by_level: %v", stats.ByLevel)
	}
	if stats.ByService["api"] != 2 || stats.ByService["worker"] != 1 {
		t.Fatalf("unexpected by_service: %v", stats.ByService)
	}
}

func TestStats_Empty(t *testing.T) {
	svc := NewService(testStore(t), nil)

	stats, err := svc.Stats(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalCount != 0 {
		t.Fatalf("expected total 0, got %d", stats.TotalCount)
	}
	if len(stats.ByLevel) != 0 || len(stats.ByService) != 0 {
		t.Fatalf("expected empty maps, got %v / %v", stats.ByLevel, stats.ByService)
	}
}

func TestExportJSON_WritesArchiveFile(t *testing.T) {
	ctx := context.Background()
	archive := storage.NewArchive(t.TempDir())
	svc := NewService(testStore(t), archive)

	ingest(t, svc, "error", "api", "exported entry", nil)

	export, err := svc.ExportJSON(ctx, Filter{Level: "error"}, core.Page{Limit: 100})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if export.Count != 1 || len(export.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %+v", export)
	}
	if export.Path == "" {
		t.Fatal("expected archive path set")
	}

	blob, err := os.ReadFile(export.Path)
	if err != nil {
		t.Fatalf("read archived export: %v", err)
	}
	var onDisk Export
	if err := json.Unmarshal(blob, &onDisk); err != nil {
		t.Fatalf("decode archived export: %v", err)
	}
	if onDisk.ExportID != export.ExportID || onDisk.Count != 1 {
		t.Fatalf("archived document mismatch: %+v", onDisk)
	}
}

func TestExportJSON_NoArchive(t *testing.T) {
	svc := NewService(testStore(t), nil)

	ingest(t, svc, "info", "api", "x", nil)
	export, err := svc.ExportJSON(context.Background(), Filter{}, core.Page{Limit: 100})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if export.Path != "" {
		t.Fatal("expected no path without an archive")
	}
	if export.Count != 1 {
		t.Fatalf("expected count 1, got %d", export.Count)
	}
}
