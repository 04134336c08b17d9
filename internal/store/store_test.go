package store

import (
	"context"
	"testing"
	"time"

	"platform-core/internal/config"
)

func sqliteTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New(ctx, config.DatabaseConfig{
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

func TestQueryRows_NormalizesTimestamps(t *testing.T) {
	ctx := context.Background()
	s := sqliteTestStore(t)

	pb := s.Dialect.NewParamBuilder()
	if _, err := Exec(ctx, s.DB,
		"INSERT INTO feature_flags (id, key, name) VALUES ("+pb.Add("id1")+", "+pb.Add("k")+", "+pb.Add("n")+")",
		pb.Params()...); err != nil {
		t.Fatalf("insert: %v", err)
	}

	row, err := QueryRow(ctx, s.DB, "SELECT created_at FROM feature_flags WHERE id = ?1", "id1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	// The driver hands TEXT columns back as string or []byte; after
	// normalization the value is a time.Time or a parseable string, never
	// raw bytes.
	switch v := row["created_at"].(type) {
	case time.Time:
		if v.IsZero() {
			t.Fatal("expected non-zero timestamp")
		}
	case string:
		if _, err := time.Parse("2006-01-02 15:04:05", v); err != nil {
			t.Fatalf("timestamp string not parseable: %q", v)
		}
	default:
		t.Fatalf("unexpected timestamp type %T", v)
	}
}

func TestExec_RowsAffected(t *testing.T) {
	ctx := context.Background()
	s := sqliteTestStore(t)

	pb := s.Dialect.NewParamBuilder()
	if _, err := Exec(ctx, s.DB,
		"INSERT INTO feature_flags (id, key, name) VALUES ("+pb.Add("id1")+", "+pb.Add("k")+", "+pb.Add("n")+")",
		pb.Params()...); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n, err := Exec(ctx, s.DB, "DELETE FROM feature_flags WHERE key = ?1", "k")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row affected, got %d", n)
	}
	n, err = Exec(ctx, s.DB, "DELETE FROM feature_flags WHERE key = ?1", "k")
	if err != nil {
		t.Fatalf("delete again: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 rows affected, got %d", n)
	}
}
