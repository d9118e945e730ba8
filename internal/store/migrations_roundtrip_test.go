package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("SRL_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("SRL_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	migrationsDir := filepath.Join("..", "..", "db", "migrations")

	applied, err := ApplyMigrations(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected migrations to be applied on an empty schema")
	}

	again, err := ApplyMigrations(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no pending migrations, got %v", again)
	}

	if err := RollbackMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}

	reapplied, err := ApplyMigrations(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
	if len(reapplied) != len(applied) {
		t.Fatalf("expected %d migrations after rollback, got %d", len(applied), len(reapplied))
	}
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}
