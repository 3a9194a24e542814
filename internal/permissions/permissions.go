// Package permissions maps synchronized tables to the permission
// codes spec.md §4.5 requires ("the actor must hold the permission
// bound to table") and answers whether a given user holds one,
// including permissions granted indirectly via delegation.
package permissions

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enginerepair/engshopsync/internal/model"
)

// Permission codes. Master-data tables (the catalog structure) and
// operational tables (day-to-day work records) are gated separately
// so an operator role can edit operations without being able to
// redefine entity types.
const (
	CodeMasterDataEdit = "master_data_edit"
	CodeOperationsEdit = "operations_edit"
	CodeChatEdit       = "chat_edit"
	CodeNotesEdit      = "notes_edit"
	CodePresenceEdit   = "presence_edit"
	CodeAuditWrite     = "audit_write"
	CodeApproveChanges = "approve_changes"
)

// RequiredCode returns the permission code bound to table (spec.md
// §4.5 step 1). Every table in model.SyncedTables has exactly one
// code; ParseTable already rejects unknown tables before this is
// consulted.
func RequiredCode(table model.Table) string {
	switch table {
	case model.TableEntityTypes, model.TableAttributeDefs:
		return CodeMasterDataEdit
	case model.TableEntities, model.TableAttributeValues, model.TableOperations:
		return CodeOperationsEdit
	case model.TableAuditLog:
		return CodeAuditWrite
	case model.TableChatMessages, model.TableChatReads:
		return CodeChatEdit
	case model.TableNotes, model.TableNoteShares:
		return CodeNotesEdit
	case model.TableUserPresence:
		return CodePresenceEdit
	default:
		return CodeOperationsEdit
	}
}

// Roles that bypass the ownership-routing enqueue branch entirely
// (spec.md §4.5 step 3: "auto-approve" roles always route to C4).
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
)

// IsAutoApprove reports whether role bypasses change-request enqueue.
// Superadmin always does; admin does only when it also holds the
// global operations-edit permission, mirroring spec.md §4.5's
// "admin with global edit permission".
func IsAutoApprove(ctx context.Context, pool *pgxpool.Pool, userID, role string) (bool, error) {
	if role == RoleSuperadmin {
		return true, nil
	}
	if role != RoleAdmin {
		return false, nil
	}
	return Has(ctx, pool, userID, CodeOperationsEdit)
}

// Has reports whether userID holds permission code, directly or via
// an unexpired delegation.
func Has(ctx context.Context, pool *pgxpool.Pool, userID, code string) (bool, error) {
	var direct bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM user_permissions up
			JOIN permissions p ON p.id = up.permission_id
			WHERE up.user_id = $1 AND p.code = $2
		)
	`, userID, code).Scan(&direct)
	if err != nil {
		return false, fmt.Errorf("permissions: direct lookup: %w", err)
	}
	if direct {
		return true, nil
	}

	var delegated bool
	err = pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM permission_delegations d
			JOIN permissions p ON p.id = d.permission_id
			WHERE d.to_user_id = $1 AND p.code = $2
			  AND (d.expires_at IS NULL OR d.expires_at > (extract(epoch from now()) * 1000)::bigint)
		)
	`, userID, code).Scan(&delegated)
	if err != nil {
		return false, fmt.Errorf("permissions: delegation lookup: %w", err)
	}
	return delegated, nil
}

// HasForTable is Has(RequiredCode(table)), the call site C5 actually uses.
func HasForTable(ctx context.Context, pool *pgxpool.Pool, userID string, table model.Table) (bool, error) {
	return Has(ctx, pool, userID, RequiredCode(table))
}
