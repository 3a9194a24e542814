// Package dbtest provides the integration-test harness shared by every
// package whose tests need a real Postgres connection: skip unless
// TEST_DATABASE_URL is set, run migrations once, truncate the tables
// under test between cases. Mirrors the teacher's
// httpapi.getTestDB helper, generalized past a single table.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enginerepair/engshopsync/internal/db"
	"github.com/enginerepair/engshopsync/internal/dbmigrate"
)

// Pool connects to TEST_DATABASE_URL, applies migrations, and returns
// a ready pool. Skips the calling test if the env var is unset.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := db.OpenURL(ctx, dbURL)
	if err != nil {
		t.Fatalf("dbtest: connect: %v", err)
	}

	if err := dbmigrate.Apply(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("dbtest: migrate: %v", err)
	}

	return pool
}

// Truncate empties the given tables, in the order given, resetting
// identity sequences (change_log.server_seq) so tests can assert
// exact sequence numbers.
func Truncate(t *testing.T, pool *pgxpool.Pool, tables ...string) {
	t.Helper()
	ctx := context.Background()
	for _, tbl := range tables {
		if _, err := pool.Exec(ctx, "TRUNCATE TABLE "+tbl+" RESTART IDENTITY CASCADE"); err != nil {
			t.Fatalf("dbtest: truncate %s: %v", tbl, err)
		}
	}
}
