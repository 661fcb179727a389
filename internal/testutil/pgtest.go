// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// OpenTestDB connects to the database named by POSTGRES_URL, brings the
// schema up to date with goose, and registers teardown that truncates the
// assessment tables and closes the pool. Tests are skipped when
// POSTGRES_URL is unset, so the unit suite runs without a database.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: connect: %v", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: set dialect: %v", err)
	}
	if err := goose.UpContext(context.Background(), db, migrationsDir(t)); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: migrate: %v", err)
	}

	t.Cleanup(func() {
		// Truncated rather than dropped so a following test reuses the schema.
		_, _ = db.Exec("TRUNCATE risk_assessments")
		_ = db.Close()
	})
	return db
}

// migrationsDir walks up from the test's working directory until it finds
// the repository-level migrations directory.
func migrationsDir(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("pgtest: getwd: %v", err)
	}
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("pgtest: migrations directory not found above cwd")
		}
		dir = parent
	}
}
