// Package ownership implements the row ownership registry (spec.md
// §4.2, C2): the first writer of a (table, row_id) claims ownership,
// consulted by the push handler to route direct writes vs.
// change-request enqueues.
package ownership

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enginerepair/engshopsync/internal/changelog"
	"github.com/enginerepair/engshopsync/internal/model"
)

// EnsureOwner idempotently claims ownership of (table, rowID) for
// userID. A second call for the same row is a no-op (spec.md
// invariant 5: set-once on first successful write, never mutated
// afterward except by explicit reassignment).
func EnsureOwner(ctx context.Context, tx pgx.Tx, table model.Table, rowID, userID, username string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO row_owner (id, table_name, row_id, owner_user_id, owner_username)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (table_name, row_id) DO NOTHING
	`, uuid.New().String(), string(table), rowID, userID, username)
	if err != nil {
		return fmt.Errorf("ownership: ensure owner: %w", err)
	}
	return nil
}

// LookupOwner returns the owner of (table, rowID), or (nil, nil) if
// the row has no recorded owner yet.
func LookupOwner(ctx context.Context, q Querier, table model.Table, rowID string) (*model.RowOwner, error) {
	var o model.RowOwner
	err := q.QueryRow(ctx, `
		SELECT id, table_name, row_id, owner_user_id, owner_username
		FROM row_owner
		WHERE table_name = $1 AND row_id = $2
	`, string(table), rowID).Scan(&o.ID, &o.TableName, &o.RowID, &o.OwnerUserID, &o.OwnerUsername)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ownership: lookup owner: %w", err)
	}
	return &o, nil
}

// Querier is the subset of pgxpool.Pool/pgx.Tx LookupOwner needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Reassign is the administrative operation spec.md §9 describes as
// intentionally outside the sync path: it updates row_owner directly
// and appends a regular changelog entry for the affected row so the
// reassignment is itself observable through the normal pull stream.
// Called only from the admin RPC surface, never from the push path.
func Reassign(ctx context.Context, pool *pgxpool.Pool, table model.Table, rowID, newOwnerID, newOwnerUsername string, currentPayload model.Payload) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ownership: reassign begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO row_owner (id, table_name, row_id, owner_user_id, owner_username)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (table_name, row_id)
		DO UPDATE SET owner_user_id = EXCLUDED.owner_user_id, owner_username = EXCLUDED.owner_username
	`, uuid.New().String(), string(table), rowID, newOwnerID, newOwnerUsername)
	if err != nil {
		return fmt.Errorf("ownership: reassign update: %w", err)
	}

	if _, err := changelog.Append(ctx, tx, table, rowID, model.OpUpsert, currentPayload.WithSyncStatus()); err != nil {
		return fmt.Errorf("ownership: reassign log entry: %w", err)
	}

	return tx.Commit(ctx)
}
