// Package cursorstore implements the Client Cursor Store (spec.md
// §4.8, C8): per-client `(last_pulled_server_seq, last_pushed_at,
// last_pulled_at)`, keyed by a free-form client_id the first push or
// pull auto-creates.
package cursorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Cursor mirrors one sync_state row.
type Cursor struct {
	ClientID             string
	LastPulledServerSeq  int64
	LastPushedAt         *int64
	LastPulledAt         *int64
}

// Get returns the stored cursor for clientID, defaulting to seq 0 for
// a client that has never pulled (spec.md §4.7: "If since_seq is
// omitted, use C8's stored cursor for client_id (default 0 for new
// clients)").
func Get(ctx context.Context, pool *pgxpool.Pool, clientID string) (Cursor, error) {
	var c Cursor
	c.ClientID = clientID
	err := pool.QueryRow(ctx, `
		SELECT last_pulled_server_seq, last_pushed_at, last_pulled_at
		FROM sync_state WHERE client_id = $1
	`, clientID).Scan(&c.LastPulledServerSeq, &c.LastPushedAt, &c.LastPulledAt)
	if err == pgx.ErrNoRows {
		return Cursor{ClientID: clientID, LastPulledServerSeq: 0}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("cursorstore: get: %w", err)
	}
	return c, nil
}

// AdvancePulled upserts the cursor after a successful pull emission
// (spec.md §4.7 step 4): last_pulled_server_seq = nextSeq,
// last_pulled_at = atMs. Creates the row for a client seen for the
// first time; last_pushed_at stays NULL until that client pushes.
func AdvancePulled(ctx context.Context, pool *pgxpool.Pool, clientID string, nextSeq, atMs int64) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO sync_state (client_id, last_pulled_server_seq, last_pulled_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id) DO UPDATE SET
			last_pulled_server_seq = EXCLUDED.last_pulled_server_seq,
			last_pulled_at         = EXCLUDED.last_pulled_at
	`, clientID, nextSeq, atMs)
	if err != nil {
		return fmt.Errorf("cursorstore: advance pulled: %w", err)
	}
	return nil
}

// TouchPushed upserts the cursor after a successful push (spec.md
// §4.8: "Fields are updated on successful push (last_pushed_at)").
func TouchPushed(ctx context.Context, pool *pgxpool.Pool, clientID string, atMs int64) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO sync_state (client_id, last_pulled_server_seq, last_pushed_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (client_id) DO UPDATE SET last_pushed_at = EXCLUDED.last_pushed_at
	`, clientID, atMs)
	if err != nil {
		return fmt.Errorf("cursorstore: touch pushed: %w", err)
	}
	return nil
}
