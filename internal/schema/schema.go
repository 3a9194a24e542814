// Package schema implements the Schema Descriptor (spec.md §4.3, C3):
// a canonical snapshot of the synchronized table set's structure,
// hashed so clients and server can detect drift before syncing
// (spec.md §4.9).
package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enginerepair/engshopsync/internal/model"
)

// Column is one normalized column description.
type Column struct {
	Name     string `json:"name"`
	NotNull  bool   `json:"not_null"`
	DataType string `json:"data_type"`
	Default  string `json:"default"`
}

// ForeignKey is one normalized foreign-key edge.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// UniqueConstraint is one normalized unique (or primary-key) index.
type UniqueConstraint struct {
	Name      string   `json:"name"`
	Columns   []string `json:"columns"`
	IsPrimary bool     `json:"is_primary"`
}

// TableDescriptor is the normalized shape of a single table.
type TableDescriptor struct {
	Columns           []Column           `json:"columns"`
	ForeignKeys       []ForeignKey       `json:"foreign_keys"`
	UniqueConstraints []UniqueConstraint `json:"unique_constraints"`
}

// Snapshot is the full normalized schema of the synchronized table
// set, keyed by table name.
type Snapshot struct {
	Tables map[string]TableDescriptor `json:"tables"`
}

// Introspect builds a Snapshot by querying information_schema for
// every table in model.SyncedTables.
func Introspect(ctx context.Context, pool *pgxpool.Pool) (Snapshot, error) {
	snap := Snapshot{Tables: make(map[string]TableDescriptor, len(model.SyncedTables))}

	for _, table := range model.SyncedTables {
		desc, err := introspectTable(ctx, pool, string(table))
		if err != nil {
			return Snapshot{}, fmt.Errorf("schema: introspect %s: %w", table, err)
		}
		snap.Tables[string(table)] = desc
	}

	return snap, nil
}

func introspectTable(ctx context.Context, pool *pgxpool.Pool, table string) (TableDescriptor, error) {
	var desc TableDescriptor

	colRows, err := pool.Query(ctx, `
		SELECT column_name, is_nullable, data_type, COALESCE(column_default, '')
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
	`, table)
	if err != nil {
		return desc, fmt.Errorf("columns query: %w", err)
	}
	for colRows.Next() {
		var name, isNullable, dataType, def string
		if err := colRows.Scan(&name, &isNullable, &dataType, &def); err != nil {
			colRows.Close()
			return desc, fmt.Errorf("columns scan: %w", err)
		}
		desc.Columns = append(desc.Columns, Column{
			Name:     name,
			NotNull:  isNullable == "NO",
			DataType: dataType,
			Default:  def,
		})
	}
	colRows.Close()
	if err := colRows.Err(); err != nil {
		return desc, fmt.Errorf("columns rows: %w", err)
	}

	fkRows, err := pool.Query(ctx, `
		SELECT kcu.column_name, ccu.table_name AS referenced_table, ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public' AND tc.table_name = $1
	`, table)
	if err != nil {
		return desc, fmt.Errorf("fk query: %w", err)
	}
	for fkRows.Next() {
		var fk ForeignKey
		if err := fkRows.Scan(&fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			fkRows.Close()
			return desc, fmt.Errorf("fk scan: %w", err)
		}
		desc.ForeignKeys = append(desc.ForeignKeys, fk)
	}
	fkRows.Close()
	if err := fkRows.Err(); err != nil {
		return desc, fmt.Errorf("fk rows: %w", err)
	}

	uqRows, err := pool.Query(ctx, `
		SELECT tc.constraint_name, tc.constraint_type, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type IN ('UNIQUE', 'PRIMARY KEY') AND tc.table_schema = 'public' AND tc.table_name = $1
		ORDER BY kcu.ordinal_position
	`, table)
	if err != nil {
		return desc, fmt.Errorf("unique query: %w", err)
	}
	byName := make(map[string]*UniqueConstraint)
	var order []string
	for uqRows.Next() {
		var name, ctype, col string
		if err := uqRows.Scan(&name, &ctype, &col); err != nil {
			uqRows.Close()
			return desc, fmt.Errorf("unique scan: %w", err)
		}
		uc, ok := byName[name]
		if !ok {
			uc = &UniqueConstraint{Name: name, IsPrimary: ctype == "PRIMARY KEY"}
			byName[name] = uc
			order = append(order, name)
		}
		uc.Columns = append(uc.Columns, col)
	}
	uqRows.Close()
	if err := uqRows.Err(); err != nil {
		return desc, fmt.Errorf("unique rows: %w", err)
	}
	for _, name := range order {
		desc.UniqueConstraints = append(desc.UniqueConstraints, *byName[name])
	}

	normalize(&desc)
	return desc, nil
}

// normalize sorts every ordering-sensitive slice so that two
// structurally identical schemas produce byte-identical JSON
// regardless of introspection query ordering (spec.md §4.3, P6).
func normalize(desc *TableDescriptor) {
	sort.Slice(desc.Columns, func(i, j int) bool { return desc.Columns[i].Name < desc.Columns[j].Name })
	sort.Slice(desc.ForeignKeys, func(i, j int) bool {
		if desc.ForeignKeys[i].Column != desc.ForeignKeys[j].Column {
			return desc.ForeignKeys[i].Column < desc.ForeignKeys[j].Column
		}
		return desc.ForeignKeys[i].ReferencedTable < desc.ForeignKeys[j].ReferencedTable
	})
	sort.Slice(desc.UniqueConstraints, func(i, j int) bool {
		return desc.UniqueConstraints[i].Name < desc.UniqueConstraints[j].Name
	})
	for i := range desc.UniqueConstraints {
		sort.Strings(desc.UniqueConstraints[i].Columns)
	}
}

// Normalize applies normalize to every table descriptor in a
// snapshot built by some other means than Introspect (e.g. a test
// fixture whose slices arrive in arbitrary order).
func Normalize(snap Snapshot) Snapshot {
	out := Snapshot{Tables: make(map[string]TableDescriptor, len(snap.Tables))}
	for name, desc := range snap.Tables {
		d := desc
		normalize(&d)
		out.Tables[name] = d
	}
	return out
}

// Hash computes the SHA-256 hex digest over the canonical JSON
// encoding of a normalized snapshot. There is no schema-hashing
// library in the dependency surface this module draws from, so this
// one computation uses the standard library directly
// (crypto/sha256, encoding/json with sorted map keys, which
// encoding/json already guarantees for map[string]T).
func Hash(snap Snapshot) (string, error) {
	normalized := Normalize(snap)
	buf, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("schema: marshal snapshot: %w", err)
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}
