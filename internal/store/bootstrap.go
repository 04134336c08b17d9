package store

import (
	"context"
	"fmt"
	"log"
)

// Bootstrap creates the platform tables if they do not exist.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("create platform tables: %w", err)
	}

	exists, err := s.Dialect.TableExists(ctx, s.DB, "webhook_deliveries")
	if err != nil {
		return fmt.Errorf("verify platform tables: %w", err)
	}
	if !exists {
		return fmt.Errorf("platform tables missing after bootstrap")
	}

	log.Printf("Platform tables ready (%s)", s.Dialect.Name())
	return nil
}
