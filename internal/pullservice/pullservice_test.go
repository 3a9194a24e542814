package pullservice

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/enginerepair/engshopsync/internal/changelog"
	"github.com/enginerepair/engshopsync/internal/dbtest"
	"github.com/enginerepair/engshopsync/internal/model"
)

func TestPull_CreateAndPull_P2(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := dbtest.Pool(t)
	defer pool.Close()
	dbtest.Truncate(t, pool, "change_log", "sync_state")

	ctx := context.Background()
	rowID := "00000000-0000-0000-0000-000000000001"

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	payload := model.Payload{
		"id": rowID, "code": "engine", "name": "Engine",
		"created_at": float64(1_700_000_000_000), "updated_at": float64(1_700_000_000_000),
		"deleted_at": nil, "sync_status": "synced",
	}
	_, err = changelog.Append(ctx, tx, model.TableEntityTypes, rowID, model.OpUpsert, payload)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	svc := New(pool, 0)
	resp, err := svc.Pull(ctx, Request{ClientID: "c2", SinceSeq: int64Ptr(0)})
	require.NoError(t, err)
	require.Len(t, resp.Entries, 1)
	require.Equal(t, "upsert", string(resp.Entries[0].Op))
	require.Equal(t, "engine", resp.Entries[0].Payload["code"])
	require.Equal(t, int64(1), resp.NextSeq)
	require.False(t, resp.HasMore)
}

func TestPull_ReplayReturnsEmptyAboveCursor(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := dbtest.Pool(t)
	defer pool.Close()
	dbtest.Truncate(t, pool, "change_log", "sync_state")

	ctx := context.Background()
	rowID := uuid.New().String()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	_, err = changelog.Append(ctx, tx, model.TableEntityTypes, rowID, model.OpUpsert, model.Payload{"id": rowID})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	svc := New(pool, 0)
	resp, err := svc.Pull(ctx, Request{ClientID: "c2", SinceSeq: int64Ptr(1)})
	require.NoError(t, err)
	require.Empty(t, resp.Entries, "P7: pulling above the latest seq returns nothing")
}

func TestPull_DefaultsToStoredCursor(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := dbtest.Pool(t)
	defer pool.Close()
	dbtest.Truncate(t, pool, "change_log", "sync_state")

	ctx := context.Background()
	rowID1 := uuid.New().String()
	rowID2 := uuid.New().String()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	_, err = changelog.Append(ctx, tx, model.TableEntityTypes, rowID1, model.OpUpsert, model.Payload{"id": rowID1})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	svc := New(pool, 0)
	_, err = svc.Pull(ctx, Request{ClientID: "new-client"}) // SinceSeq nil -> defaults to 0 for a never-seen client
	require.NoError(t, err)

	tx2, err := pool.Begin(ctx)
	require.NoError(t, err)
	_, err = changelog.Append(ctx, tx2, model.TableEntityTypes, rowID2, model.OpUpsert, model.Payload{"id": rowID2})
	require.NoError(t, err)
	require.NoError(t, tx2.Commit(ctx))

	resp, err := svc.Pull(ctx, Request{ClientID: "new-client"}) // now uses the advanced stored cursor
	require.NoError(t, err)
	require.Len(t, resp.Entries, 1)
	require.Equal(t, rowID2, resp.Entries[0].RowID)
}

func TestPull_Compaction_Scenario6(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := dbtest.Pool(t)
	defer pool.Close()
	dbtest.Truncate(t, pool, "change_log", "sync_state")

	ctx := context.Background()
	rowID := uuid.New().String()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	for _, at := range []float64{10, 11, 12} {
		_, err = changelog.Append(ctx, tx, model.TableAttributeValues, rowID, model.OpUpsert, model.Payload{
			"id": rowID, "updated_at": at,
		})
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit(ctx))

	svc := New(pool, 0)
	resp, err := svc.Pull(ctx, Request{ClientID: "c2", SinceSeq: int64Ptr(0), Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Entries, 1, "compaction must collapse three upserts to the same key into one entry")
	require.Equal(t, float64(12), resp.Entries[0].Payload["updated_at"])
}

func int64Ptr(v int64) *int64 { return &v }
