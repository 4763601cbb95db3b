// Package testutil provides PostgreSQL fixtures for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizmatters/agent-builder/pages-builder/migrations"
)

// DatabaseURLEnv names the variable that enables database-backed tests.
const DatabaseURLEnv = "TEST_DATABASE_URL"

// TestDatabase is a migrated database whose tables are emptied per test.
type TestDatabase struct {
	Pool *pgxpool.Pool
}

// NewTestDatabase connects to $TEST_DATABASE_URL, applies the schema and
// empties the tables. The test is skipped when the variable is unset.
func NewTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()

	url := os.Getenv(DatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set; skipping database test", DatabaseURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := connect(ctx, url)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	db := &TestDatabase{Pool: pool}
	db.truncate(t)
	return db
}

func connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func (db *TestDatabase) truncate(t *testing.T) {
	t.Helper()
	if _, err := db.Pool.Exec(context.Background(), "TRUNCATE rounds, users"); err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
}
