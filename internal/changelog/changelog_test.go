package changelog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/enginerepair/engshopsync/internal/dbtest"
	"github.com/enginerepair/engshopsync/internal/model"
)

func TestAppendAndRange_MonotonicSeq(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := dbtest.Pool(t)
	defer pool.Close()
	dbtest.Truncate(t, pool, "change_log")

	ctx := context.Background()
	rowID := uuid.New().String()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	seq1, err := Append(ctx, tx, model.TableNotes, rowID, model.OpUpsert, model.Payload{"id": rowID, "updated_at": float64(10)})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx2, err := pool.Begin(ctx)
	require.NoError(t, err)
	seq2, err := Append(ctx, tx2, model.TableNotes, rowID, model.OpUpsert, model.Payload{"id": rowID, "updated_at": float64(11)})
	require.NoError(t, err)
	require.NoError(t, tx2.Commit(ctx))

	require.Greater(t, seq2, seq1, "P1: consecutive appends must strictly increase seq")

	entries, err := Range(ctx, pool, 0, 100)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Less(t, entries[0].Seq, entries[1].Seq)
}

func TestAppend_RolledBackTxLeavesNoVisibleEntry(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := dbtest.Pool(t)
	defer pool.Close()
	dbtest.Truncate(t, pool, "change_log")

	ctx := context.Background()
	before, err := MaxSeq(ctx, pool)
	require.NoError(t, err)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	_, err = Append(ctx, tx, model.TableNotes, uuid.New().String(), model.OpUpsert, model.Payload{"id": uuid.New().String(), "updated_at": float64(1)})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	after, err := MaxSeq(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, before, after, "a rolled-back append must not be observable by range readers")
}

func TestRange_AfterSeqExcludesBoundary(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := dbtest.Pool(t)
	defer pool.Close()
	dbtest.Truncate(t, pool, "change_log")

	ctx := context.Background()
	var lastSeq int64
	for i := 0; i < 3; i++ {
		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		seq, err := Append(ctx, tx, model.TableNotes, uuid.New().String(), model.OpUpsert, model.Payload{"id": uuid.New().String(), "updated_at": float64(i)})
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))
		lastSeq = seq
	}

	// P7: a subsequent range at since_seq=lastSeq returns only seq > lastSeq.
	entries, err := Range(ctx, pool, lastSeq, 100)
	require.NoError(t, err)
	require.Empty(t, entries)
}

