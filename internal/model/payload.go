package model

// Payload is a row's post-image exactly as exchanged over the wire
// (spec.md §4.4): lower-snake-case column keys, timestamps as 64-bit
// millisecond integers, `sync_status` always `"synced"` on emission.
// It round-trips through JSON and through PostgreSQL's jsonb column
// without any intermediate struct, since the synchronized tables are
// schema-light by design (spec.md §9, "dynamic payload typing").
type Payload map[string]any

// Clone returns a shallow copy, enough for WithSyncStatus to build an
// emitted post-image without touching the caller's map (nested values
// are never mutated in place by this package).
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// WithSyncStatus returns a copy of p with sync_status forced to
// "synced", the value every emitted payload carries (spec.md §4.4).
func (p Payload) WithSyncStatus() Payload {
	out := p.Clone()
	out["sync_status"] = "synced"
	return out
}

// RowID extracts the `id` column as a string. Returns "" if absent or
// not a string; callers validate with ExtractLifecycle beforehand.
func (p Payload) RowID() string {
	if v, ok := p["id"].(string); ok {
		return v
	}
	return ""
}

// IsDelete reports whether the payload represents a soft-delete
// (non-null deleted_at), per spec.md §4.4 step 2.
func (p Payload) IsDelete() bool {
	v, ok := p["deleted_at"]
	return ok && v != nil
}

// ChangeLogEntry is one record from the append-only log (spec.md §3,
// §4.1): `(seq, table, row_id, op, payload, created_at)`.
type ChangeLogEntry struct {
	Seq       int64
	Table     Table
	RowID     string
	Op        Op
	Payload   Payload
	CreatedAt int64
}

// RowChange is one element of a push request's upserts/deletes
// (spec.md §6): a table name paired with full post-image rows.
type RowChange struct {
	Table Table
	Rows  []Payload
}

// RowOwner mirrors the server-only RowOwner table (spec.md §3):
// the first-writer owner of a (table, row_id) pair.
type RowOwner struct {
	ID            string
	TableName     Table
	RowID         string
	OwnerUserID   string
	OwnerUsername string
}

// ChangeRequestStatus is one of the three terminal-or-pending states a
// ChangeRequest can be in (spec.md §4.6).
type ChangeRequestStatus string

const (
	ChangeRequestPending  ChangeRequestStatus = "pending"
	ChangeRequestApplied  ChangeRequestStatus = "applied"
	ChangeRequestRejected ChangeRequestStatus = "rejected"
)

// ChangeRequest mirrors the server-only ChangeRequest table (spec.md
// §3): a pending row-level edit awaiting reviewer approval.
type ChangeRequest struct {
	ID                string
	Status            ChangeRequestStatus
	TableName         Table
	RowID             string
	RootEntityID      *string
	BeforeJSON        Payload
	AfterJSON         Payload
	RecordOwnerID     string
	RecordOwnerName   string
	ChangeAuthorID    string
	ChangeAuthorName  string
	Note              string
	CreatedAt         int64
	DecidedAt         *int64
	DecidedByID       *string
	DecidedByName     *string
}
