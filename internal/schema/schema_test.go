package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fixtureA and fixtureB build two snapshots that are structurally
// identical but whose columns arrive in different input orders, a
// permutation P6 requires hashing be insensitive to.
func fixtureA() Snapshot {
	return Snapshot{Tables: map[string]TableDescriptor{
		"notes": {
			Columns: []Column{
				{Name: "updated_at", NotNull: true, DataType: "bigint"},
				{Name: "id", NotNull: true, DataType: "uuid"},
				{Name: "payload", NotNull: true, DataType: "jsonb"},
			},
			ForeignKeys: []ForeignKey{
				{Column: "author_id", ReferencedTable: "users", ReferencedColumn: "id"},
			},
			UniqueConstraints: []UniqueConstraint{
				{Name: "notes_pkey", Columns: []string{"id"}, IsPrimary: true},
			},
		},
	}}
}

func fixtureB() Snapshot {
	return Snapshot{Tables: map[string]TableDescriptor{
		"notes": {
			Columns: []Column{
				{Name: "id", NotNull: true, DataType: "uuid"},
				{Name: "payload", NotNull: true, DataType: "jsonb"},
				{Name: "updated_at", NotNull: true, DataType: "bigint"},
			},
			ForeignKeys: []ForeignKey{
				{Column: "author_id", ReferencedTable: "users", ReferencedColumn: "id"},
			},
			UniqueConstraints: []UniqueConstraint{
				{Name: "notes_pkey", Columns: []string{"id"}, IsPrimary: true},
			},
		},
	}}
}

func TestHash_RoundTripOverPermutation(t *testing.T) {
	hashA, err := Hash(fixtureA())
	require.NoError(t, err)

	hashB, err := Hash(fixtureB())
	require.NoError(t, err)

	require.Equal(t, hashA, hashB, "P6: hash(normalize(snapshot)) must be insensitive to input ordering")

	hashA2, err := Hash(fixtureA())
	require.NoError(t, err)
	require.Equal(t, hashA, hashA2)
}

func TestHash_DetectsStructuralChange(t *testing.T) {
	hashA, err := Hash(fixtureA())
	require.NoError(t, err)

	changed := fixtureA()
	notes := changed.Tables["notes"]
	notes.Columns = append(notes.Columns, Column{Name: "title", NotNull: false, DataType: "text"})
	changed.Tables["notes"] = notes

	hashChanged, err := Hash(changed)
	require.NoError(t, err)

	require.NotEqual(t, hashA, hashChanged)
}

func TestNormalize_SortsUniqueConstraintColumns(t *testing.T) {
	snap := Snapshot{Tables: map[string]TableDescriptor{
		"attribute_values": {
			UniqueConstraints: []UniqueConstraint{
				{Name: "attribute_values_entity_def_live_idx", Columns: []string{"entity_id", "attribute_def_id"}},
			},
		},
	}}
	normalized := Normalize(snap)
	cols := normalized.Tables["attribute_values"].UniqueConstraints[0].Columns
	require.Equal(t, []string{"attribute_def_id", "entity_id"}, cols)
}
