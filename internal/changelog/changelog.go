// Package changelog implements the append-only, gap-free monotonic
// change log (spec.md §4.1, C1): the source of truth every pull reads
// from. Append only ever happens inside the caller's transaction that
// also writes the projection row, so a rolled-back write never leaves
// a visible log entry.
package changelog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/enginerepair/engshopsync/internal/model"
)

// Entry is one row read back from the log.
type Entry = model.ChangeLogEntry

// Append inserts one log entry inside tx and returns the server-
// assigned sequence number. The database, not the application,
// assigns seq (spec.md invariant 1): `INSERT ... RETURNING server_seq`
// lets Postgres serialize concurrent appends without the application
// holding any lock of its own.
func Append(ctx context.Context, tx pgx.Tx, table model.Table, rowID string, op model.Op, payload model.Payload) (int64, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("changelog: marshal payload: %w", err)
	}

	var seq int64
	err = tx.QueryRow(ctx, `
		INSERT INTO change_log (table_name, row_id, op, payload, created_at)
		VALUES ($1, $2, $3, $4, (extract(epoch from now()) * 1000)::bigint)
		RETURNING server_seq
	`, string(table), rowID, string(op), buf).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("changelog: append: %w", err)
	}
	return seq, nil
}

// AppendAt is Append with an explicit created_at, used by the
// change-request workflow (C6) which must record `created_at ==
// decided_at` on the log entry it produces (spec.md invariant 6).
func AppendAt(ctx context.Context, tx pgx.Tx, table model.Table, rowID string, op model.Op, payload model.Payload, createdAtMs int64) (int64, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("changelog: marshal payload: %w", err)
	}

	var seq int64
	err = tx.QueryRow(ctx, `
		INSERT INTO change_log (table_name, row_id, op, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING server_seq
	`, string(table), rowID, string(op), buf, createdAtMs).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("changelog: append at: %w", err)
	}
	return seq, nil
}

// Querier is the subset of pgxpool.Pool (or pgx.Tx) Range needs, so
// callers can pass either a pool or an in-flight transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Range reads up to limit entries with seq > afterSeq, ordered
// ascending (spec.md §4.1). Readers must treat the log as a stream
// and advance by the last observed seq, never by "expected next
// integer" (spec.md §9) — a rolled-back transaction's autoincrement
// gap is never visible here because it was never committed.
func Range(ctx context.Context, q Querier, afterSeq int64, limit int) ([]Entry, error) {
	rows, err := q.Query(ctx, `
		SELECT server_seq, table_name, row_id, op, payload, created_at
		FROM change_log
		WHERE server_seq > $1
		ORDER BY server_seq ASC
		LIMIT $2
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("changelog: range: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var tableName, rowID, op string
		var payloadBuf []byte
		if err := rows.Scan(&e.Seq, &tableName, &rowID, &op, &payloadBuf, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("changelog: scan: %w", err)
		}
		e.Table = model.Table(tableName)
		e.RowID = rowID
		e.Op = model.Op(op)
		if err := json.Unmarshal(payloadBuf, &e.Payload); err != nil {
			return nil, fmt.Errorf("changelog: unmarshal payload for seq %d: %w", e.Seq, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("changelog: range rows: %w", err)
	}
	return out, nil
}

// MaxSeq returns the current maximum committed server_seq, or 0 if the
// log is empty.
func MaxSeq(ctx context.Context, q Querier) (int64, error) {
	rows, err := q.Query(ctx, `SELECT COALESCE(MAX(server_seq), 0) FROM change_log`)
	if err != nil {
		return 0, fmt.Errorf("changelog: max seq: %w", err)
	}
	defer rows.Close()
	var max int64
	if rows.Next() {
		if err := rows.Scan(&max); err != nil {
			return 0, fmt.Errorf("changelog: scan max seq: %w", err)
		}
	}
	return max, rows.Err()
}
