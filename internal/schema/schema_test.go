package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/value"
)

var (
	thing    = value.NewID("hr", "Thing")
	person   = value.NewID("hr", "Person")
	employee = value.NewID("hr", "Employee")
	knows    = value.NewID("hr", "Knows")
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Define(Node{ID: thing, Kind: KindEntity}))
	require.NoError(t, r.Define(Node{ID: person, Kind: KindEntity, Super: thing}))
	require.NoError(t, r.Define(Node{ID: employee, Kind: KindEntity, Super: person}))
	require.NoError(t, r.Define(Node{ID: knows, Kind: KindRelationship, Start: person, End: person}))
	require.NoError(t, r.DefineProperty(Property{Owner: thing, Name: "Id"}))
	require.NoError(t, r.DefineProperty(Property{Owner: person, Name: "Name"}))
	require.NoError(t, r.DefineProperty(Property{Owner: employee, Name: "Salary", Type: IntType}))
	return r
}

func TestDefine(t *testing.T) {
	r := newTestRegistry(t)

	n, ok := r.Get(thing)
	require.True(t, ok)
	assert.Equal(t, EntityRoot, n.Super)
	assert.Equal(t, "Thing", n.Name)

	rel, ok := r.Get(knows)
	require.True(t, ok)
	assert.Equal(t, RelationshipRoot, rel.Super)
}

func TestDefineErrors(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name string
		node Node
	}{
		{name: "invalid id", node: Node{ID: value.ID{Key: "X"}, Kind: KindEntity}},
		{name: "duplicate", node: Node{ID: person, Kind: KindEntity}},
		{name: "unknown super", node: Node{ID: value.NewID("hr", "X"), Kind: KindEntity, Super: value.NewID("hr", "Nope")}},
		{name: "entity extends relationship", node: Node{ID: value.NewID("hr", "X"), Kind: KindEntity, Super: knows}},
		{name: "relationship without ends", node: Node{ID: value.NewID("hr", "R"), Kind: KindRelationship}},
		{name: "primitive", node: Node{ID: value.NewID("hr", "P"), Kind: KindPrimitive}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, r.Define(tt.node))
		})
	}
}

func TestDefinePropertyErrors(t *testing.T) {
	r := newTestRegistry(t)
	assert.Error(t, r.DefineProperty(Property{Owner: person, Name: ""}))
	assert.Error(t, r.DefineProperty(Property{Owner: value.NewID("hr", "Nope"), Name: "A"}))
	assert.Error(t, r.DefineProperty(Property{Owner: person, Name: "Name"}))
	assert.Error(t, r.DefineProperty(Property{Owner: person, Name: "Boss", Type: employee}))
}

func TestChain(t *testing.T) {
	r := newTestRegistry(t)

	chain := r.Chain(employee)
	require.Len(t, chain, 3)
	assert.Equal(t, employee, chain[0].ID)
	assert.Equal(t, person, chain[1].ID)
	assert.Equal(t, thing, chain[2].ID)

	assert.Empty(t, r.Chain(EntityRoot), "primitive roots are never visited")
	assert.Empty(t, r.Chain(value.NewID("hr", "Unknown")))
}

func TestChainTerminatesOnCycle(t *testing.T) {
	r := newTestRegistry(t)
	r.Reparent(thing, employee)

	chain := r.Chain(employee)
	assert.Len(t, chain, 3, "each node in the cycle is visited once")
}

func TestChainMaxDepth(t *testing.T) {
	r := NewRegistry(WithMaxDepth(2))
	require.NoError(t, r.Define(Node{ID: thing, Kind: KindEntity}))
	require.NoError(t, r.Define(Node{ID: person, Kind: KindEntity, Super: thing}))
	require.NoError(t, r.Define(Node{ID: employee, Kind: KindEntity, Super: person}))

	assert.Len(t, r.Chain(employee), 2)
}

func TestPropertyResolution(t *testing.T) {
	r := newTestRegistry(t)

	p, ok := r.Property(employee, "Name")
	require.True(t, ok)
	assert.Equal(t, person, p.Owner)
	assert.Equal(t, value.NewID("hr", "Person.Name"), p.ID)
	assert.Equal(t, StringType, p.Type)

	_, ok = r.Property(person, "Salary")
	assert.False(t, ok, "properties are not visible on ancestors")

	props := r.Properties(employee)
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"Id", "Name", "Salary"}, names)
}

func TestIsA(t *testing.T) {
	r := newTestRegistry(t)
	assert.True(t, r.IsA(employee, thing))
	assert.True(t, r.IsA(employee, EntityRoot))
	assert.True(t, r.IsA(person, person))
	assert.False(t, r.IsA(person, employee))
	assert.False(t, r.IsA(knows, EntityRoot))
}

func TestFindAndSchemas(t *testing.T) {
	r := newTestRegistry(t)

	n, ok := r.Find("HR", "person")
	require.True(t, ok)
	assert.Equal(t, person, n.ID)

	all := r.Schemas("hr")
	require.Len(t, all, 4)
	assert.Equal(t, employee, all[0].ID)
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, StringType, TypeOf(value.String("a")))
	assert.Equal(t, IntType, TypeOf(value.Int(1)))
	assert.True(t, TypeOf(value.Null{}).IsZero())
}
