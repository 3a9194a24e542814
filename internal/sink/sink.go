// Package sink implements the Change Sink (spec.md §4.4, C4): the
// single idempotent write path every projection mutation goes
// through, whether it arrived directly from the push handler (C5) or
// via an applied change request (C6).
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enginerepair/engshopsync/internal/apperr"
	"github.com/enginerepair/engshopsync/internal/changelog"
	"github.com/enginerepair/engshopsync/internal/model"
	"github.com/enginerepair/engshopsync/internal/ownership"
	"github.com/enginerepair/engshopsync/internal/syncx"
)

// Actor identifies who is performing the write, for ownership
// assignment on first write (spec.md §4.4 step 4).
type Actor struct {
	UserID   string
	Username string
}

// Result reports what Apply did for a single row.
type Result struct {
	Table   model.Table
	RowID   string
	Applied bool // false when skipped as a stale write or a replay at the same updated_at
	Seq     int64
}

// Apply applies changes within tx: for each row, decides upsert vs.
// delete, merges into the projection table, appends a ChangeLog entry
// unless the write was a no-op (spec.md §4.4, §9, P4), and ensures
// ownership for rows not already routed through the change-request
// workflow.
//
// skipOwnership lets callers applying an already-approved change
// request (C6) skip re-touching row_owner, since ownership was
// already assigned when the row was first created.
func Apply(ctx context.Context, tx pgx.Tx, actor Actor, changes []model.RowChange, skipOwnership bool) (int, error) {
	applied := 0

	for _, change := range changes {
		for i, row := range change.Rows {
			res, err := applyRow(ctx, tx, actor, change.Table, row, skipOwnership, nil)
			if err != nil {
				return applied, fmt.Errorf("sink: row %d of table %s: %w", i, change.Table, err)
			}
			if res.Applied {
				applied++
			}
		}
	}

	return applied, nil
}

// ApplyAt is used by the change-request workflow (C6) when a reviewer
// approves a request: it forces updated_at (and the log entry's
// created_at) to atMs, so the write always wins under LWW and
// produces exactly one log entry whose created_at == decided_at
// (spec.md §4.6, invariant 6), even if the stored after_json's own
// updated_at is stale relative to the current projection row.
func ApplyAt(ctx context.Context, tx pgx.Tx, actor Actor, table model.Table, row model.Payload, atMs int64) (Result, error) {
	return applyRow(ctx, tx, actor, table, row, true, &atMs)
}

func applyRow(ctx context.Context, tx pgx.Tx, actor Actor, table model.Table, row model.Payload, skipOwnership bool, forceUpdatedAtMs *int64) (Result, error) {
	if !table.Valid() {
		return Result{}, apperr.Validation(fmt.Sprintf("unknown table %q", table))
	}

	lifecycle, err := syncx.ExtractLifecycle(row)
	if err != nil {
		return Result{}, apperr.Validation(fmt.Sprintf("invalid row: %v", err))
	}

	updatedAtMs := lifecycle.UpdatedAtMs
	if forceUpdatedAtMs != nil {
		updatedAtMs = *forceUpdatedAtMs
	}

	postImage := row.WithSyncStatus()
	postImage["updated_at"] = float64(updatedAtMs)
	buf, err := json.Marshal(postImage)
	if err != nil {
		return Result{}, fmt.Errorf("marshal post-image: %w", err)
	}

	// LWW conflict resolution: the guard uses strict '>' so a replay at
	// the exact same updated_at is a no-op (spec.md §4.5 idempotency,
	// P4) while a genuinely newer write always wins, satisfying
	// invariant 4 (updated_at monotonically non-decreasing per row).
	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, payload, created_at, updated_at, deleted_at, sync_status)
		VALUES ($1, $2, $3, $4, $5, 'synced')
		ON CONFLICT (id) DO UPDATE SET
			payload     = EXCLUDED.payload,
			updated_at  = EXCLUDED.updated_at,
			deleted_at  = EXCLUDED.deleted_at,
			sync_status = 'synced'
		WHERE EXCLUDED.updated_at > %s.updated_at
	`, table, table), lifecycle.ID.String(), buf, lifecycle.CreatedAtMs, updatedAtMs, lifecycle.DeletedAtMs)
	if err != nil {
		return Result{}, fmt.Errorf("projection write: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// No effective change: either a replay at the same updated_at
		// (whatever its payload) or a stale out-of-order write.
		// Invariant 2 requires the log to
		// mirror the live projection row, so no entry is appended.
		return Result{Table: table, RowID: lifecycle.ID.String(), Applied: false}, nil
	}

	op := model.OpUpsert
	if lifecycle.DeletedAtMs != nil {
		op = model.OpDelete
	}

	var seq int64
	if forceUpdatedAtMs != nil {
		seq, err = changelog.AppendAt(ctx, tx, table, lifecycle.ID.String(), op, postImage, *forceUpdatedAtMs)
	} else {
		seq, err = changelog.Append(ctx, tx, table, lifecycle.ID.String(), op, postImage)
	}
	if err != nil {
		return Result{}, err
	}

	if !skipOwnership {
		if err := ownership.EnsureOwner(ctx, tx, table, lifecycle.ID.String(), actor.UserID, actor.Username); err != nil {
			return Result{}, err
		}
	}

	return Result{Table: table, RowID: lifecycle.ID.String(), Applied: true, Seq: seq}, nil
}

// NewRowID generates a fresh row id for rows the caller is
// constructing synthetically (e.g. the admin RPC surface).
func NewRowID() string { return uuid.New().String() }
