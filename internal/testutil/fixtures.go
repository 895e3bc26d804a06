package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/session"
	"github.com/roach88/lattice/internal/value"
)

// Domain is the domain name of the HR fixture.
const Domain = "hr"

// HR fixture schema identities.
var (
	Person   = value.NewID(Domain, "Person")
	Employee = value.NewID(Domain, "Employee")
	Manager  = value.NewID(Domain, "Manager")
	Team     = value.NewID(Domain, "Team")
	MemberOf = value.NewID(Domain, "MemberOf")
)

// HRSchemas builds the HR metamodel:
//
//	Person(Name, Email) <- Employee(Salary) <- Manager(Reports)
//	Team(Title)
//	MemberOf: Employee -> Team (Since)
func HRSchemas(t testing.TB) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()
	for _, n := range []schema.Node{
		{ID: Person, Kind: schema.KindEntity},
		{ID: Employee, Kind: schema.KindEntity, Super: Person},
		{ID: Manager, Kind: schema.KindEntity, Super: Employee},
		{ID: Team, Kind: schema.KindEntity},
		{ID: MemberOf, Kind: schema.KindRelationship, Start: Employee, End: Team},
	} {
		require.NoError(t, r.Define(n))
	}
	for _, p := range []schema.Property{
		{Owner: Person, Name: "Name"},
		{Owner: Person, Name: "Email"},
		{Owner: Employee, Name: "Salary", Type: schema.IntType},
		{Owner: Manager, Name: "Reports", Type: schema.IntType},
		{Owner: Team, Name: "Title"},
		{Owner: MemberOf, Name: "Since", Type: schema.IntType},
	} {
		require.NoError(t, r.DefineProperty(p))
	}
	return r
}

// Sessions returns a session manager whose ids are "<prefix>-1",
// "<prefix>-2", and so on.
func Sessions(prefix string) *session.Manager {
	return session.NewManager(session.WithIDGenerator(&session.SequenceGenerator{Prefix: prefix}))
}

// Strict returns a session manager that panics if a session is opened
// beyond the given ids. Use it to prove code paths open no sessions.
func Strict(ids ...string) *session.Manager {
	return session.NewManager(session.WithIDGenerator(session.NewFixedGenerator(ids...)))
}
