// Package workflow implements the Change Request Workflow (spec.md
// §4.6, C6): the pre-approval queue for edits to foreign-owned rows.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enginerepair/engshopsync/internal/apperr"
	"github.com/enginerepair/engshopsync/internal/model"
	"github.com/enginerepair/engshopsync/internal/sink"
	"github.com/enginerepair/engshopsync/internal/syncx"
)

// Author/reviewer identity, mirroring the *_id/*_name column pairs
// spec.md §3 stores on ChangeRequest.
type Party struct {
	UserID   string
	Username string
}

// Create enqueues a pending change request for (table, rowID). Fails
// with apperr.Validation (dedup, spec.md §4.6) if a pending request
// for the same row already carries an identical after_json.
func Create(ctx context.Context, tx pgx.Tx, table model.Table, rowID string, before, after model.Payload, author, owner Party) (string, error) {
	afterBuf, err := json.Marshal(after)
	if err != nil {
		return "", fmt.Errorf("workflow: marshal after_json: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT after_json FROM change_request
		WHERE table_name = $1 AND row_id = $2 AND status = 'pending'
	`, string(table), rowID)
	if err != nil {
		return "", fmt.Errorf("workflow: dedup query: %w", err)
	}
	for rows.Next() {
		var existingBuf []byte
		if err := rows.Scan(&existingBuf); err != nil {
			rows.Close()
			return "", fmt.Errorf("workflow: dedup scan: %w", err)
		}
		if bytes.Equal(normalizeJSON(existingBuf), normalizeJSON(afterBuf)) {
			rows.Close()
			return "", apperr.Validation("a pending change request with identical content already exists")
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("workflow: dedup rows: %w", err)
	}

	var beforeBuf []byte
	if before != nil {
		beforeBuf, err = json.Marshal(before)
		if err != nil {
			return "", fmt.Errorf("workflow: marshal before_json: %w", err)
		}
	}

	id := uuid.New().String()
	_, err = tx.Exec(ctx, `
		INSERT INTO change_request (
			id, status, table_name, row_id, before_json, after_json,
			record_owner_id, record_owner_name, change_author_id, change_author_name,
			note, created_at
		) VALUES ($1, 'pending', $2, $3, $4, $5, $6, $7, $8, $9, '', $10)
	`, id, string(table), rowID, nullableJSON(beforeBuf), afterBuf,
		owner.UserID, owner.Username, author.UserID, author.Username, syncx.NowMs())
	if err != nil {
		return "", fmt.Errorf("workflow: insert: %w", err)
	}

	return id, nil
}

// normalizeJSON re-marshals arbitrary JSON through a generic value so
// that two semantically equal but differently-ordered byte strings
// compare equal.
func normalizeJSON(buf []byte) []byte {
	var v any
	if err := json.Unmarshal(buf, &v); err != nil {
		return buf
	}
	out, err := json.Marshal(v)
	if err != nil {
		return buf
	}
	return out
}

func nullableJSON(buf []byte) any {
	if buf == nil {
		return nil
	}
	return buf
}

// Get loads one change request, row-locking it FOR UPDATE so
// Apply/Reject are serialized per request id (spec.md §4.6, §5).
func Get(ctx context.Context, tx pgx.Tx, id string) (model.ChangeRequest, error) {
	var cr model.ChangeRequest
	var tableName string
	var beforeBuf, afterBuf []byte
	var rootEntityID, decidedByID, decidedByName *string
	var decidedAt *int64

	err := tx.QueryRow(ctx, `
		SELECT id, status, table_name, row_id, root_entity_id, before_json, after_json,
			record_owner_id, record_owner_name, change_author_id, change_author_name,
			note, created_at, decided_at, decided_by_id, decided_by_name
		FROM change_request WHERE id = $1 FOR UPDATE
	`, id).Scan(&cr.ID, &cr.Status, &tableName, &cr.RowID, &rootEntityID, &beforeBuf, &afterBuf,
		&cr.RecordOwnerID, &cr.RecordOwnerName, &cr.ChangeAuthorID, &cr.ChangeAuthorName,
		&cr.Note, &cr.CreatedAt, &decidedAt, &decidedByID, &decidedByName)
	if err == pgx.ErrNoRows {
		return model.ChangeRequest{}, apperr.NotFound("change request not found")
	}
	if err != nil {
		return model.ChangeRequest{}, fmt.Errorf("workflow: get: %w", err)
	}

	cr.TableName = model.Table(tableName)
	cr.RootEntityID = rootEntityID
	cr.DecidedAt = decidedAt
	cr.DecidedByID = decidedByID
	cr.DecidedByName = decidedByName
	if beforeBuf != nil {
		if err := json.Unmarshal(beforeBuf, &cr.BeforeJSON); err != nil {
			return model.ChangeRequest{}, fmt.Errorf("workflow: unmarshal before_json: %w", err)
		}
	}
	if err := json.Unmarshal(afterBuf, &cr.AfterJSON); err != nil {
		return model.ChangeRequest{}, fmt.Errorf("workflow: unmarshal after_json: %w", err)
	}

	return cr, nil
}

// Apply transitions a pending request to applied: it calls the Change
// Sink (C4) with the stored after_json and records decided_at/
// decided_by (spec.md §4.6). Single transaction, reusing C4 directly
// so the emitted log entry's created_at equals decided_at (invariant
// 6) — both are stamped from the same `now` value.
func Apply(ctx context.Context, pool *pgxpool.Pool, id string, reviewer Party) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("workflow: apply begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cr, err := Get(ctx, tx, id)
	if err != nil {
		return err
	}
	if cr.Status != model.ChangeRequestPending {
		return apperr.Validation(fmt.Sprintf("change request %s is not pending (status=%s)", id, cr.Status))
	}

	now := syncx.NowMs()

	_, err = sink.ApplyAt(ctx, tx, sink.Actor{UserID: cr.ChangeAuthorID, Username: cr.ChangeAuthorName}, cr.TableName, cr.AfterJSON, now)
	if err != nil {
		return fmt.Errorf("workflow: apply sink: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE change_request
		SET status = 'applied', decided_at = $2, decided_by_id = $3, decided_by_name = $4
		WHERE id = $1
	`, id, now, reviewer.UserID, reviewer.Username)
	if err != nil {
		return fmt.Errorf("workflow: mark applied: %w", err)
	}

	return tx.Commit(ctx)
}

// Reject transitions a pending request to rejected. No projection
// change.
func Reject(ctx context.Context, pool *pgxpool.Pool, id string, reviewer Party, note string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("workflow: reject begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cr, err := Get(ctx, tx, id)
	if err != nil {
		return err
	}
	if cr.Status != model.ChangeRequestPending {
		return apperr.Validation(fmt.Sprintf("change request %s is not pending (status=%s)", id, cr.Status))
	}

	now := syncx.NowMs()
	_, err = tx.Exec(ctx, `
		UPDATE change_request
		SET status = 'rejected', decided_at = $2, decided_by_id = $3, decided_by_name = $4, note = $5
		WHERE id = $1
	`, id, now, reviewer.UserID, reviewer.Username, note)
	if err != nil {
		return fmt.Errorf("workflow: mark rejected: %w", err)
	}

	return tx.Commit(ctx)
}
