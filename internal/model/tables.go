// Package model holds the small set of types shared across the sync
// core's packages: the synchronized table enumeration and the row
// lifecycle shape every one of those tables carries (spec.md §3, §6).
package model

import "fmt"

// Table identifies one of the projection tables that participates in
// push/pull. This is a closed set (spec.md §6); unknown names are a
// validation error, not a schema extension point.
type Table string

const (
	TableEntityTypes    Table = "entity_types"
	TableEntities       Table = "entities"
	TableAttributeDefs  Table = "attribute_defs"
	TableAttributeValues Table = "attribute_values"
	TableOperations     Table = "operations"
	TableAuditLog       Table = "audit_log"
	TableChatMessages   Table = "chat_messages"
	TableChatReads      Table = "chat_reads"
	TableNotes          Table = "notes"
	TableNoteShares     Table = "note_shares"
	TableUserPresence   Table = "user_presence"
)

// SyncedTables is the fixed enumeration from spec.md §6, in the order
// the schema descriptor (C3) and migrations present them.
var SyncedTables = []Table{
	TableEntityTypes,
	TableEntities,
	TableAttributeDefs,
	TableAttributeValues,
	TableOperations,
	TableAuditLog,
	TableChatMessages,
	TableChatReads,
	TableNotes,
	TableNoteShares,
	TableUserPresence,
}

var syncedTableSet = func() map[Table]struct{} {
	m := make(map[Table]struct{}, len(SyncedTables))
	for _, t := range SyncedTables {
		m[t] = struct{}{}
	}
	return m
}()

// Valid reports whether t is one of the tables the sync engine
// recognizes.
func (t Table) Valid() bool {
	_, ok := syncedTableSet[t]
	return ok
}

// ParseTable validates a client-supplied table name, returning a
// validation error (apperr.CodeValidation, wired by the caller) shaped
// message for unknown tables.
func ParseTable(name string) (Table, error) {
	t := Table(name)
	if !t.Valid() {
		return "", fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}

// Op is the kind of change a ChangeLog entry records (spec.md §3).
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)
