// Package pullservice implements the Pull Handler (spec.md §4.7, C7):
// reads the change log above a client's cursor, compacts it, and
// advances the cursor after emission.
package pullservice

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enginerepair/engshopsync/internal/changelog"
	"github.com/enginerepair/engshopsync/internal/cursorstore"
	"github.com/enginerepair/engshopsync/internal/model"
	"github.com/enginerepair/engshopsync/internal/syncx"
)

// DefaultMaxBatch bounds a single pull response (spec.md §5
// "Backpressure": MAX_BATCH ≈ 1,000 entries) when the caller leaves
// Service.MaxBatch unset.
const DefaultMaxBatch = 1000

// Request mirrors the wire pull body (spec.md §4.7, §6). SinceSeq is
// a pointer so "omitted" (use the stored cursor) is distinguishable
// from an explicit 0.
type Request struct {
	ClientID string
	SinceSeq *int64
	Limit    int
}

// Response mirrors the wire pull reply (spec.md §6).
type Response struct {
	Entries []changelog.Entry
	NextSeq int64
	HasMore bool
}

// Service wires C7 to the pool and C8. MaxBatch is the server-side
// ceiling a client's requested Limit is clamped to (spec.md §6
// pull_max_batch); zero means DefaultMaxBatch.
type Service struct {
	Pool     *pgxpool.Pool
	MaxBatch int
}

func New(pool *pgxpool.Pool, maxBatch int) *Service {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Service{Pool: pool, MaxBatch: maxBatch}
}

// Pull implements spec.md §4.7 steps 1-4. A context cancellation part
// way through leaves the cursor untouched (step 4 only runs after a
// successful read), satisfying "cancellation leaves C8 unchanged; the
// next call re-reads from the same cursor".
func (s *Service) Pull(ctx context.Context, req Request) (Response, error) {
	limit := req.Limit
	if limit <= 0 || limit > s.MaxBatch {
		limit = s.MaxBatch
	}

	sinceSeq := int64(0)
	if req.SinceSeq != nil {
		sinceSeq = *req.SinceSeq
	} else {
		cursor, err := cursorstore.Get(ctx, s.Pool, req.ClientID)
		if err != nil {
			return Response{}, fmt.Errorf("pullservice: cursor lookup: %w", err)
		}
		sinceSeq = cursor.LastPulledServerSeq
	}

	raw, err := changelog.Range(ctx, s.Pool, sinceSeq, limit)
	if err != nil {
		return Response{}, fmt.Errorf("pullservice: range: %w", err)
	}

	compacted := compact(raw)

	nextSeq := sinceSeq
	if len(raw) > 0 {
		nextSeq = raw[len(raw)-1].Seq
	}
	hasMore := len(raw) == limit

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	if err := cursorstore.AdvancePulled(ctx, s.Pool, req.ClientID, nextSeq, syncx.NowMs()); err != nil {
		return Response{}, fmt.Errorf("pullservice: advance cursor: %w", err)
	}

	return Response{Entries: compacted, NextSeq: nextSeq, HasMore: hasMore}, nil
}

// compact keeps only the latest entry per (table, row_id) within the
// batch (spec.md §4.7 step 2), preserving the relative order of first
// appearance so P2/P3 still see a consistent single entry per key.
func compact(entries []changelog.Entry) []changelog.Entry {
	type key struct {
		table model.Table
		rowID string
	}

	latest := make(map[key]changelog.Entry, len(entries))
	order := make([]key, 0, len(entries))
	for _, e := range entries {
		k := key{e.Table, e.RowID}
		if _, seen := latest[k]; !seen {
			order = append(order, k)
		}
		latest[k] = e
	}

	out := make([]changelog.Entry, 0, len(order))
	for _, k := range order {
		out = append(out, latest[k])
	}
	return out
}
