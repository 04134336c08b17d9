package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"platform-core/internal/config"
	"platform-core/internal/core"
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

func testService(t *testing.T) *Service {
	t.Helper()
	return NewService(testStore(t), nil)
}

func create(t *testing.T, svc *Service, recipient string, opts func(*CreateRequest)) *Notification {
	t.Helper()
	req := &CreateRequest{
		Title:         "Deploy finished",
		Message:       "build 142 is live",
		RecipientID:   recipient,
		RecipientType: "user",
	}
	if opts != nil {
		opts(req)
	}
	n, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}
	return n
}

func TestCreate_DefaultsAndValidation(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	n := create(t, svc, "u1", nil)
	if n.Type != TypeInfo {
		t.Fatalf("expected default type info, got %s", n.Type)
	}
	if n.Priority != PriorityMedium {
		t.Fatalf("expected default priority medium, got %s", n.Priority)
	}
	if n.Status != StatusPending {
		t.Fatalf("expected status pending, got %s", n.Status)
	}

	bad := []*CreateRequest{
		{Message: "m", RecipientID: "u1", RecipientType: "user"},
		{Title: "t", RecipientID: "u1", RecipientType: "user"},
		{Title: "t", Message: "m", RecipientType: "user"},
		{Title: "t", Message: "m", RecipientID: "u1", RecipientType: "user", Type: "loud"},
		{Title: "t", Message: "m", RecipientID: "u1", RecipientType: "user", Priority: "urgent"},
	}
	for _, req := range bad {
		_, err := svc.Create(ctx, req)
		var appErr *core.AppError
		if !errors.As(err, &appErr) || appErr.Status != 422 {
			t.Fatalf("req %+v: expected 422, got %v", req, err)
		}
	}
}

func TestCreateBulk(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	created, err := svc.CreateBulk(ctx, &BulkCreateRequest{
		Title:         "Maintenance window",
		Message:       "Saturday 02:00 UTC",
		RecipientIDs:  []string{"u1", "u2", "u3"},
		RecipientType: "user",
	})
	if err != nil {
		t.Fatalf("create bulk: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(created))
	}

	_, err = svc.CreateBulk(ctx, &BulkCreateRequest{Title: "t", Message: "m", RecipientType: "user"})
	var appErr *core.AppError
	if !errors.As(err, &appErr) || appErr.Status != 422 {
		t.Fatalf("expected 422 for empty recipients, got %v", err)
	}
}

func TestMarkAsRead_StampsTimestamp(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	n := create(t, svc, "u1", nil)
	if n.ReadAt != nil {
		t.Fatal("fresh notification must not be read")
	}

	read, err := svc.MarkAsRead(ctx, n.ID)
	if err != nil {
		t.Fatalf("mark as read: %v", err)
	}
	if read.Status != StatusRead {
		t.Fatalf("expected status read, got %s", read.Status)
	}
	if read.ReadAt == nil {
		t.Fatal("expected read_at stamped")
	}

	// Marking again keeps the original timestamp
	again, err := svc.MarkAsRead(ctx, n.ID)
	if err != nil {
		t.Fatalf("mark as read twice: %v", err)
	}
	if again.ReadAt == nil || !again.ReadAt.Equal(*read.ReadAt) {
		t.Fatalf("expected read_at unchanged, got %v then %v", read.ReadAt, again.ReadAt)
	}
}

func TestUpdate_DeliveredStamp(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	n := create(t, svc, "u1", nil)
	status := StatusDelivered
	updated, err := svc.Update(ctx, n.ID, &UpdateRequest{Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DeliveredAt == nil {
		t.Fatal("expected delivered_at stamped")
	}

	bogus := "shouted"
	_, err = svc.Update(ctx, n.ID, &UpdateRequest{Status: &bogus})
	var appErr *core.AppError
	if !errors.As(err, &appErr) || appErr.Status != 422 {
		t.Fatalf("expected 422 for bad status, got %v", err)
	}
}

func TestUnreadCountAndMarkAllRead(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	create(t, svc, "u1", nil)
	create(t, svc, "u1", nil)
	create(t, svc, "u2", nil)

	count, err := svc.UnreadCount(ctx, "u1")
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 unread for u1, got %d", count)
	}

	marked, err := svc.MarkAllRead(ctx, "u1")
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if marked != 2 {
		t.Fatalf("expected 2 marked, got %d", marked)
	}

	count, err = svc.UnreadCount(ctx, "u1")
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 unread after mark all, got %d", count)
	}

	// u2 untouched
	count, err = svc.UnreadCount(ctx, "u2")
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 unread for u2, got %d", count)
	}
}

func TestList_ExcludesExpiredByDefault(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	past := time.Now().Add(-time.Hour).UTC()
	future := time.Now().Add(time.Hour).UTC()
	create(t, svc, "u1", func(r *CreateRequest) { r.ExpiresAt = &past })
	create(t, svc, "u1", func(r *CreateRequest) { r.ExpiresAt = &future })
	create(t, svc, "u1", nil)

	page := core.Page{Limit: 100}

	live, err := svc.List(ctx, Filter{RecipientID: "u1"}, page)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(live) != 2 {
		t.Fatalf("expected 2 unexpired notifications, got %d", len(live))
	}

	all, err := svc.List(ctx, Filter{RecipientID: "u1", IncludeExpired: true}, page)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 with expired included, got %d", len(all))
	}
}

func TestCleanExpired(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	past := time.Now().Add(-time.Hour).UTC()
	expired := create(t, svc, "u1", func(r *CreateRequest) { r.ExpiresAt = &past })
	kept := create(t, svc, "u1", nil)

	n, err := svc.CleanExpired(ctx)
	if err != nil {
		t.Fatalf("clean expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 cleaned, got %d", n)
	}
	if _, err := svc.Get(ctx, expired.ID); err == nil {
		t.Fatal("expected expired notification deleted")
	}
	if _, err := svc.Get(ctx, kept.ID); err != nil {
		t.Fatalf("expected unexpired notification kept: %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	n := create(t, svc, "u1", nil)
	if err := svc.Delete(ctx, n.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, n.ID); err == nil {
		t.Fatal("expected 404 deleting twice")
	}
}
