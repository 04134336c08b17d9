package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParamBuilder_Placeholders(t *testing.T) {
	pg := NewDialect("postgres").NewParamBuilder()
	if got := pg.Add("a"); got != "$1" {
		t.Fatalf("expected $1, got %s", got)
	}
	if got := pg.Add("b"); got != "$2" {
		t.Fatalf("expected $2, got %s", got)
	}
	if pg.Count() != 2 || len(pg.Params()) != 2 {
		t.Fatalf("expected 2 params, got %d", pg.Count())
	}

	sq := NewDialect("sqlite").NewParamBuilder()
	if got := sq.Add("a"); got != "?1" {
		t.Fatalf("expected ?1, got %s", got)
	}
	if got := sq.Add("b"); got != "?2" {
		t.Fatalf("expected ?2, got %s", got)
	}
}

func TestTimeParam(t *testing.T) {
	ts := time.Date(2024, 6, 15, 10, 30, 45, 123456789, time.FixedZone("X", 3600))

	pg := NewDialect("postgres").TimeParam(ts)
	pgTime, ok := pg.(time.Time)
	if !ok {
		t.Fatalf("expected time.Time from postgres dialect, got %T", pg)
	}
	if pgTime.Location() != time.UTC {
		t.Fatal("expected UTC normalization")
	}

	sq := NewDialect("sqlite").TimeParam(ts)
	s, ok := sq.(string)
	if !ok {
		t.Fatalf("expected string from sqlite dialect, got %T", sq)
	}
	// Shifted to UTC and formatted like datetime('now') output
	if s != "2024-06-15 09:30:45" {
		t.Fatalf("unexpected sqlite time encoding: %s", s)
	}
}

func TestSQLiteUniqueViolationMapped(t *testing.T) {
	ctx := context.Background()
	s := sqliteTestStore(t)

	pb := s.Dialect.NewParamBuilder()
	if _, err := Exec(ctx, s.DB,
		"INSERT INTO feature_flags (id, key, name) VALUES ("+pb.Add("id1")+", "+pb.Add("k")+", "+pb.Add("n")+")",
		pb.Params()...); err != nil {
		t.Fatalf("insert: %v", err)
	}

	pb = s.Dialect.NewParamBuilder()
	_, err := Exec(ctx, s.DB,
		"INSERT INTO feature_flags (id, key, name) VALUES ("+pb.Add("id2")+", "+pb.Add("k")+", "+pb.Add("n")+")",
		pb.Params()...)
	if err == nil {
		t.Fatal("expected unique violation")
	}
	if mapped := s.Dialect.MapError(err); !errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", mapped)
	}
}

func TestQueryRow_NotFound(t *testing.T) {
	ctx := context.Background()
	s := sqliteTestStore(t)

	_, err := QueryRow(ctx, s.DB, "SELECT * FROM feature_flags WHERE key = ?1", "missing")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBootstrap_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := sqliteTestStore(t)

	// Second bootstrap over existing tables must not fail
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("re-bootstrap: %v", err)
	}
	exists, err := s.Dialect.TableExists(ctx, s.DB, "webhook_deliveries")
	if err != nil || !exists {
		t.Fatalf("expected webhook_deliveries present, got exists=%v err=%v", exists, err)
	}
	exists, err = s.Dialect.TableExists(ctx, s.DB, "no_such_table")
	if err != nil || exists {
		t.Fatalf("expected no_such_table absent, got exists=%v err=%v", exists, err)
	}
}
