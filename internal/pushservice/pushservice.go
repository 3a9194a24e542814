// Package pushservice implements the Push Handler (spec.md §4.5, C5):
// the permission gate and ownership router every client upsert/delete
// goes through before it reaches C4 (direct write) or C6 (pre-approval
// queue).
package pushservice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/enginerepair/engshopsync/internal/apperr"
	"github.com/enginerepair/engshopsync/internal/cursorstore"
	"github.com/enginerepair/engshopsync/internal/model"
	"github.com/enginerepair/engshopsync/internal/ownership"
	"github.com/enginerepair/engshopsync/internal/permissions"
	"github.com/enginerepair/engshopsync/internal/sink"
	"github.com/enginerepair/engshopsync/internal/syncx"
	"github.com/enginerepair/engshopsync/internal/workflow"
)

// Actor is the authenticated identity pushing a batch.
type Actor struct {
	UserID   string
	Username string
	Role     string
}

// RowOutcome is one row's result, exactly the shape the wire response
// groups into applied/queued/errors (spec.md §4.5 step 4, §6).
type RowOutcome struct {
	Table           model.Table
	RowID           string
	Applied         bool
	ChangeRequestID string
	Err             *apperr.Error
}

// Request mirrors the wire push body (spec.md §6).
type Request struct {
	ClientID string
	Upserts  []model.RowChange
	Deletes  []model.RowChange
}

// DefaultMaxBatch bounds a single push batch per table (spec.md §6
// push_max_batch) when the caller leaves Service.MaxBatch unset.
const DefaultMaxBatch = 1000

// Service wires C5 to the pool and the services it routes into.
// MaxBatch is the server-side ceiling on rows accepted per table per
// push call; zero means DefaultMaxBatch.
type Service struct {
	Pool     *pgxpool.Pool
	Log      zerolog.Logger
	MaxBatch int
}

func New(pool *pgxpool.Pool, log zerolog.Logger, maxBatch int) *Service {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Service{Pool: pool, Log: log.With().Str("component", "pushservice").Logger(), MaxBatch: maxBatch}
}

// Push processes a batch per spec.md §4.5. Each table's rows are
// applied in one transaction (atomic per table); a failure in one
// table's transaction does not roll back another table's — callers
// get independent outcomes per table by construction, since Push
// calls processTable once per RowChange.
func (s *Service) Push(ctx context.Context, actor Actor, req Request) ([]RowOutcome, error) {
	var outcomes []RowOutcome

	autoApprove, err := permissions.IsAutoApprove(ctx, s.Pool, actor.UserID, actor.Role)
	if err != nil {
		return nil, fmt.Errorf("pushservice: auto-approve lookup: %w", err)
	}

	for _, change := range req.Upserts {
		tableOutcomes, err := s.processTable(ctx, actor, change, autoApprove)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, tableOutcomes...)
	}
	for _, change := range req.Deletes {
		tableOutcomes, err := s.processTable(ctx, actor, change, autoApprove)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, tableOutcomes...)
	}

	if err := s.touchLastPushed(ctx, req.ClientID); err != nil {
		return outcomes, err
	}

	return outcomes, nil
}

// processTable runs every row of one table's RowChange inside a single
// transaction, per spec.md §4.5's "atomic per table" rule.
func (s *Service) processTable(ctx context.Context, actor Actor, change model.RowChange, autoApprove bool) ([]RowOutcome, error) {
	if !change.Table.Valid() {
		out := make([]RowOutcome, len(change.Rows))
		for i := range change.Rows {
			out[i] = RowOutcome{Table: change.Table, Err: apperr.Validation(fmt.Sprintf("unknown table %q", change.Table))}
		}
		return out, nil
	}

	if len(change.Rows) > s.MaxBatch {
		out := make([]RowOutcome, len(change.Rows))
		for i := range change.Rows {
			out[i] = RowOutcome{Table: change.Table, Err: apperr.Validation(fmt.Sprintf("batch of %d rows exceeds push_max_batch %d", len(change.Rows), s.MaxBatch))}
		}
		return out, nil
	}

	hasPerm, err := permissions.HasForTable(ctx, s.Pool, actor.UserID, change.Table)
	if err != nil {
		return nil, fmt.Errorf("pushservice: permission lookup: %w", err)
	}
	if !hasPerm {
		out := make([]RowOutcome, len(change.Rows))
		for i := range change.Rows {
			out[i] = RowOutcome{Table: change.Table, Err: apperr.Forbidden("missing permission for table " + string(change.Table))}
		}
		return out, nil
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pushservice: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	outcomes := make([]RowOutcome, 0, len(change.Rows))
	for _, row := range change.Rows {
		oc, err := s.routeRow(ctx, tx, actor, change.Table, row, autoApprove)
		if err != nil {
			return nil, fmt.Errorf("pushservice: table %s: %w", change.Table, err)
		}
		outcomes = append(outcomes, oc)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pushservice: commit table %s: %w", change.Table, err)
	}

	return outcomes, nil
}

// routeRow implements spec.md §4.5 steps 2-3: decide create-direct,
// owner-direct, auto-approve-direct, or enqueue.
func (s *Service) routeRow(ctx context.Context, tx pgx.Tx, actor Actor, table model.Table, row model.Payload, autoApprove bool) (RowOutcome, error) {
	rowID := row.RowID()
	if rowID == "" {
		return RowOutcome{Table: table, Err: apperr.Validation("row missing id")}, nil
	}

	owner, err := ownership.LookupOwner(ctx, tx, table, rowID)
	if err != nil {
		return RowOutcome{}, err
	}

	direct := autoApprove || owner == nil || owner.OwnerUserID == actor.UserID

	if direct {
		res, err := sink.Apply(ctx, tx, sink.Actor{UserID: actor.UserID, Username: actor.Username},
			[]model.RowChange{{Table: table, Rows: []model.Payload{row}}}, false)
		if err != nil {
			if aerr, ok := apperr.As(err); ok {
				return RowOutcome{Table: table, RowID: rowID, Err: aerr}, nil
			}
			return RowOutcome{}, err
		}
		return RowOutcome{Table: table, RowID: rowID, Applied: res > 0}, nil
	}

	// Foreign-owned row, non-auto-approve actor: enqueue for review
	// (spec.md §4.5 step 2, §4.6). before_json is the current
	// projection state, read outside the sink since this path never
	// writes to the projection.
	before, err := currentProjection(ctx, tx, table, rowID)
	if err != nil {
		return RowOutcome{}, err
	}

	id, err := workflow.Create(ctx, tx, table, rowID, before, row,
		workflow.Party{UserID: actor.UserID, Username: actor.Username},
		workflow.Party{UserID: owner.OwnerUserID, Username: owner.OwnerUsername})
	if err != nil {
		if aerr, ok := apperr.As(err); ok {
			return RowOutcome{Table: table, RowID: rowID, Err: aerr}, nil
		}
		return RowOutcome{}, err
	}

	return RowOutcome{Table: table, RowID: rowID, ChangeRequestID: id}, nil
}

// currentProjection reads the live payload for (table, rowID), or nil
// if the row does not exist yet.
func currentProjection(ctx context.Context, tx pgx.Tx, table model.Table, rowID string) (model.Payload, error) {
	var buf []byte
	err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT payload FROM %s WHERE id = $1`, table), rowID).Scan(&buf)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pushservice: read current projection: %w", err)
	}
	var p model.Payload
	if err := json.Unmarshal(buf, &p); err != nil {
		return nil, fmt.Errorf("pushservice: unmarshal current projection: %w", err)
	}
	return p, nil
}

func (s *Service) touchLastPushed(ctx context.Context, clientID string) error {
	if err := cursorstore.TouchPushed(ctx, s.Pool, clientID, syncx.NowMs()); err != nil {
		return fmt.Errorf("pushservice: %w", err)
	}
	return nil
}
