// Package dbmigrate applies the server's fixed set of schema
// migrations at startup. There is no migration library in the
// dependency surface this module draws from, so migrations are plain
// `.sql` files embedded with `embed.FS` and applied in filename order
// inside a single transaction — the same direct-SQL-via-pgx style the
// rest of the persistence layer uses, just for DDL instead of DML.
package dbmigrate

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Apply runs every embedded migration file, in filename order, inside
// one transaction. Safe to call on every startup: each migration uses
// `IF NOT EXISTS` guards so re-application is a no-op.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("dbmigrate: read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("dbmigrate: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, name := range names {
		sqlBytes, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("dbmigrate: read %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("dbmigrate: apply %s: %w", name, err)
		}
		log.Ctx(ctx).Info().Str("migration", name).Msg("applied migration")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("dbmigrate: commit: %w", err)
	}
	return nil
}
