package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/enginerepair/engshopsync/internal/auth"
	"github.com/enginerepair/engshopsync/internal/compat"
	"github.com/enginerepair/engshopsync/internal/dbtest"
	"github.com/enginerepair/engshopsync/internal/pullservice"
	"github.com/enginerepair/engshopsync/internal/pushservice"
)

const testJWTSecret = "router-test-secret"

func testServer(t *testing.T, pool *pgxpool.Pool) *Server {
	t.Helper()
	return &Server{
		DB:                  pool,
		RateLimitConfig:     RateLimitInfo{WindowSeconds: 60, MaxRequests: 100000, Burst: 100000},
		AuthRateLimitConfig: RateLimitInfo{WindowSeconds: 60, MaxRequests: 100000, Burst: 100000},
		JWTCfg:              auth.JWTCfg{HS256Secret: testJWTSecret},
		Push:                pushservice.New(pool, zerolog.Nop(), 0),
		Pull:                pullservice.New(pool, 100000),
		Compat:              compat.New(pool),
	}
}

func seedTestUser(t *testing.T, pool *pgxpool.Pool, username, role string, permCodes ...string) string {
	t.Helper()
	ctx := t.Context()
	userID := uuid.New().String()
	now := time.Now().UnixMilli()
	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, role, is_active, created_at, updated_at)
		VALUES ($1, $2, 'x', $3, true, $4, $4)
	`, userID, username, role, now)
	require.NoError(t, err)

	for _, code := range permCodes {
		var permID string
		err := pool.QueryRow(ctx, `SELECT id FROM permissions WHERE code = $1`, code).Scan(&permID)
		if err != nil {
			permID = uuid.New().String()
			_, err = pool.Exec(ctx, `INSERT INTO permissions (id, code, name) VALUES ($1, $2, $2)`, permID, code)
			require.NoError(t, err)
		}
		_, err = pool.Exec(ctx, `
			INSERT INTO user_permissions (id, user_id, permission_id) VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, uuid.New().String(), userID, permID)
		require.NoError(t, err)
	}

	return username
}

func bearerFor(t *testing.T, username string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": username})
	signed, err := tok.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func doJSON(t *testing.T, handler http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// TestEndToEnd_PushPullBootstrapSchema covers the full client lifecycle
// (spec.md §8 scenario 1): fetch the schema descriptor, bootstrap a
// session, push a new row directly (the actor owns what it creates),
// then pull it back from seq 0.
func TestEndToEnd_PushPullBootstrapSchema(t *testing.T) {
	pool := dbtest.Pool(t)
	dbtest.Truncate(t, pool, "change_log", "sync_state", "entities", "users", "permissions", "user_permissions", "row_owner")

	username := seedTestUser(t, pool, "alice", "operator", "operations_edit")
	bearer := bearerFor(t, username)
	srv := testServer(t, pool)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodGet, "/sync/schema", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var schemaResp schemaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schemaResp))
	require.Equal(t, 1, schemaResp.Version)
	require.NotEmpty(t, schemaResp.Hash)

	rec = doJSON(t, h, http.MethodPost, "/v1/sync/bootstrap", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bootResp bootstrapResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bootResp))
	require.Equal(t, "proceed", bootResp.Action)

	rowID := uuid.New().String()
	now := time.Now().UnixMilli()
	pushBody := pushRequest{
		ClientID: "client-1",
		Upserts: []pushRowChange{
			{Table: "entities", Rows: []map[string]any{
				{"id": rowID, "updated_at": float64(now), "created_at": float64(now), "code": "ENG-100"},
			}},
		},
	}
	rec = doJSON(t, h, http.MethodPost, "/sync/push", bearer, pushBody)
	require.Equal(t, http.StatusOK, rec.Code)
	var pushResp pushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pushResp))
	require.Equal(t, 1, pushResp.Applied)
	require.Empty(t, pushResp.Errors)

	rec = doJSON(t, h, http.MethodPost, "/sync/pull", bearer, pullRequest{ClientID: "client-1", SinceSeq: int64Ptr(0)})
	require.Equal(t, http.StatusOK, rec.Code)
	var pullResp pullResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pullResp))
	require.Len(t, pullResp.Entries, 1)
	require.Equal(t, rowID, pullResp.Entries[0].RowID)
	require.False(t, pullResp.HasMore)
}

// TestEndToEnd_ForeignOwnedRowRequiresApproval covers spec.md §8
// scenario 4: a second user pushing a change to a row it doesn't own
// gets queued, not applied; the approver then applies it via
// /changes/apply and a subsequent pull observes the merged result.
func TestEndToEnd_ForeignOwnedRowRequiresApproval(t *testing.T) {
	pool := dbtest.Pool(t)
	dbtest.Truncate(t, pool, "change_log", "sync_state", "entities", "change_request", "users", "permissions", "user_permissions", "row_owner")

	owner := seedTestUser(t, pool, "owner-bob", "operator", "operations_edit")
	reviewer := seedTestUser(t, pool, "reviewer-carol", "operator", "operations_edit", "approve_changes")
	ownerBearer := bearerFor(t, owner)
	reviewerBearer := bearerFor(t, reviewer)
	srv := testServer(t, pool)
	h := srv.Routes()

	rowID := uuid.New().String()
	now := time.Now().UnixMilli()
	createBody := pushRequest{
		ClientID: "owner-client",
		Upserts: []pushRowChange{
			{Table: "entities", Rows: []map[string]any{
				{"id": rowID, "updated_at": float64(now), "created_at": float64(now), "code": "ENG-200"},
			}},
		},
	}
	rec := doJSON(t, h, http.MethodPost, "/sync/push", ownerBearer, createBody)
	require.Equal(t, http.StatusOK, rec.Code)

	editBody := pushRequest{
		ClientID: "reviewer-client",
		Upserts: []pushRowChange{
			{Table: "entities", Rows: []map[string]any{
				{"id": rowID, "updated_at": float64(now + 1000), "created_at": float64(now), "code": "ENG-201"},
			}},
		},
	}
	rec = doJSON(t, h, http.MethodPost, "/sync/push", reviewerBearer, editBody)
	require.Equal(t, http.StatusOK, rec.Code)
	var editResp pushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &editResp))
	require.Equal(t, 0, editResp.Applied)
	require.Len(t, editResp.Queued, 1)
	changeRequestID := editResp.Queued[0].ChangeRequestID
	require.NotEmpty(t, changeRequestID)

	rec = doJSON(t, h, http.MethodPost, "/changes/apply", reviewerBearer, changeDecisionRequest{ChangeRequestID: changeRequestID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/sync/pull", ownerBearer, pullRequest{ClientID: "owner-client", SinceSeq: int64Ptr(0)})
	require.Equal(t, http.StatusOK, rec.Code)
	var pullResp pullResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pullResp))
	require.Len(t, pullResp.Entries, 1, "only one log entry per row after compaction")
	require.Equal(t, "ENG-201", pullResp.Entries[0].Payload["code"])
}

func int64Ptr(v int64) *int64 { return &v }
