package pushservice

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/enginerepair/engshopsync/internal/dbtest"
	"github.com/enginerepair/engshopsync/internal/model"
	"github.com/enginerepair/engshopsync/internal/permissions"
)

func TestPush_CreateRoutesDirect_P2(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := dbtest.Pool(t)
	defer pool.Close()
	dbtest.Truncate(t, pool, "change_request", "change_log", "row_owner", "entity_types", "user_permissions", "permissions", "users")

	ctx := context.Background()
	userID := uuid.New().String()
	_, err := pool.Exec(ctx, `INSERT INTO users (id, username, password_hash, role, created_at, updated_at) VALUES ($1,'c1','x','operator',0,0)`, userID)
	require.NoError(t, err)

	permID := uuid.New().String()
	_, err = pool.Exec(ctx, `INSERT INTO permissions (id, code, name) VALUES ($1, $2, 'Master Data Edit')`, permID, permissions.CodeMasterDataEdit)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO user_permissions (id, user_id, permission_id) VALUES ($1, $2, $3)`, uuid.New().String(), userID, permID)
	require.NoError(t, err)

	svc := New(pool, zerolog.Nop(), 0)
	rowID := "00000000-0000-0000-0000-000000000001"
	outcomes, err := svc.Push(ctx, Actor{UserID: userID, Username: "c1", Role: "operator"}, Request{
		ClientID: "c1",
		Upserts: []model.RowChange{
			{Table: model.TableEntityTypes, Rows: []model.Payload{{
				"id": rowID, "code": "engine", "name": "Engine",
				"created_at": float64(1_700_000_000_000), "updated_at": float64(1_700_000_000_000), "deleted_at": nil,
			}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Applied)
	require.Empty(t, outcomes[0].ChangeRequestID)

	var ownerID string
	require.NoError(t, pool.QueryRow(ctx, `SELECT owner_user_id FROM row_owner WHERE row_id = $1`, rowID).Scan(&ownerID))
	require.Equal(t, userID, ownerID, "C4 must assign ownership to the actor on first write")
}

func TestPush_ForeignOwnedRowEnqueues_Scenario4(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := dbtest.Pool(t)
	defer pool.Close()
	dbtest.Truncate(t, pool, "change_request", "change_log", "row_owner", "entity_types", "user_permissions", "permissions", "users")

	ctx := context.Background()
	userA := uuid.New().String()
	userB := uuid.New().String()
	_, err := pool.Exec(ctx, `INSERT INTO users (id, username, password_hash, role, created_at, updated_at) VALUES ($1,'user_a','x','operator',0,0)`, userA)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO users (id, username, password_hash, role, created_at, updated_at) VALUES ($1,'user_b','x','operator',0,0)`, userB)
	require.NoError(t, err)

	permID := uuid.New().String()
	_, err = pool.Exec(ctx, `INSERT INTO permissions (id, code, name) VALUES ($1, $2, 'Master Data Edit')`, permID, permissions.CodeMasterDataEdit)
	require.NoError(t, err)
	for _, uid := range []string{userA, userB} {
		_, err = pool.Exec(ctx, `INSERT INTO user_permissions (id, user_id, permission_id) VALUES ($1, $2, $3)`, uuid.New().String(), uid, permID)
		require.NoError(t, err)
	}

	rowID := uuid.New().String()
	svc := New(pool, zerolog.Nop(), 0)

	// user_b creates the row first, becoming its owner.
	_, err = svc.Push(ctx, Actor{UserID: userB, Username: "user_b", Role: "operator"}, Request{
		ClientID: "c_b",
		Upserts: []model.RowChange{
			{Table: model.TableEntityTypes, Rows: []model.Payload{{
				"id": rowID, "code": "v1", "created_at": float64(100), "updated_at": float64(100),
			}}},
		},
	})
	require.NoError(t, err)

	// user_a (non-owner, non-admin) pushes an update to the same row.
	outcomes, err := svc.Push(ctx, Actor{UserID: userA, Username: "user_a", Role: "operator"}, Request{
		ClientID: "c_a",
		Upserts: []model.RowChange{
			{Table: model.TableEntityTypes, Rows: []model.Payload{{
				"id": rowID, "code": "v2-from-a", "created_at": float64(100), "updated_at": float64(200),
			}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.False(t, outcomes[0].Applied)
	require.NotEmpty(t, outcomes[0].ChangeRequestID, "non-owner edit to foreign-owned row must enqueue a change request")

	var logCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM change_log WHERE row_id = $1 AND table_name = $2`, rowID, string(model.TableEntityTypes)).Scan(&logCount))
	require.Equal(t, 1, logCount, "enqueueing must not append a log entry; only the original create did")

	var code string
	require.NoError(t, pool.QueryRow(ctx, `SELECT payload->>'code' FROM entity_types WHERE id = $1`, rowID).Scan(&code))
	require.Equal(t, "v1", code, "the projection must not be mutated by an enqueue")
}

func TestPush_AutoApproveRoleBypassesEnqueue(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := dbtest.Pool(t)
	defer pool.Close()
	dbtest.Truncate(t, pool, "change_request", "change_log", "row_owner", "entity_types", "user_permissions", "permissions", "users")

	ctx := context.Background()
	owner := uuid.New().String()
	superadmin := uuid.New().String()
	_, err := pool.Exec(ctx, `INSERT INTO users (id, username, password_hash, role, created_at, updated_at) VALUES ($1,'owner','x','operator',0,0)`, owner)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO users (id, username, password_hash, role, created_at, updated_at) VALUES ($1,'root','x','superadmin',0,0)`, superadmin)
	require.NoError(t, err)

	permID := uuid.New().String()
	_, err = pool.Exec(ctx, `INSERT INTO permissions (id, code, name) VALUES ($1, $2, 'Master Data Edit')`, permID, permissions.CodeMasterDataEdit)
	require.NoError(t, err)
	for _, uid := range []string{owner, superadmin} {
		_, err = pool.Exec(ctx, `INSERT INTO user_permissions (id, user_id, permission_id) VALUES ($1, $2, $3)`, uuid.New().String(), uid, permID)
		require.NoError(t, err)
	}

	rowID := uuid.New().String()
	svc := New(pool, zerolog.Nop(), 0)

	_, err = svc.Push(ctx, Actor{UserID: owner, Username: "owner", Role: "operator"}, Request{
		ClientID: "c1",
		Upserts: []model.RowChange{
			{Table: model.TableEntityTypes, Rows: []model.Payload{{
				"id": rowID, "code": "v1", "created_at": float64(100), "updated_at": float64(100),
			}}},
		},
	})
	require.NoError(t, err)

	outcomes, err := svc.Push(ctx, Actor{UserID: superadmin, Username: "root", Role: "superadmin"}, Request{
		ClientID: "c2",
		Upserts: []model.RowChange{
			{Table: model.TableEntityTypes, Rows: []model.Payload{{
				"id": rowID, "code": "v2-admin", "created_at": float64(100), "updated_at": float64(200),
			}}},
		},
	})
	require.NoError(t, err)
	require.True(t, outcomes[0].Applied, "superadmin always auto-approves and writes directly")
	require.Empty(t, outcomes[0].ChangeRequestID)
}

func TestPush_MissingPermissionIsForbidden(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := dbtest.Pool(t)
	defer pool.Close()
	dbtest.Truncate(t, pool, "change_request", "change_log", "row_owner", "entity_types", "user_permissions", "permissions", "users")

	ctx := context.Background()
	userID := uuid.New().String()
	_, err := pool.Exec(ctx, `INSERT INTO users (id, username, password_hash, role, created_at, updated_at) VALUES ($1,'c1','x','operator',0,0)`, userID)
	require.NoError(t, err)

	svc := New(pool, zerolog.Nop(), 0)
	outcomes, err := svc.Push(ctx, Actor{UserID: userID, Username: "c1", Role: "operator"}, Request{
		ClientID: "c1",
		Upserts: []model.RowChange{
			{Table: model.TableEntityTypes, Rows: []model.Payload{{"id": uuid.New().String(), "code": "x", "updated_at": float64(1)}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Err)
	require.Equal(t, "forbidden", string(outcomes[0].Err.Code))
}
