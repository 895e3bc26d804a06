package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/testutil"
	"github.com/roach88/lattice/internal/value"
)

func TestStateIgnoresMutationOrder(t *testing.T) {
	build := func(reverse bool) *Domain {
		st := newStore(t)
		d := hrDomain(t, st)
		s := begin(t, st)
		steps := []func(){
			func() {
				_, err := d.CreateEntity(s, testutil.Employee, "e1")
				require.NoError(t, err)
				require.NoError(t, d.SetProperty(s, value.NewID(testutil.Domain, "e1"), "Salary", value.Int(5)))
			},
			func() {
				_, err := d.CreateEntity(s, testutil.Team, "t1")
				require.NoError(t, err)
			},
		}
		if reverse {
			steps[0], steps[1] = steps[1], steps[0]
		}
		for _, step := range steps {
			step()
		}
		require.NoError(t, s.Commit())
		return d
	}

	a, b := build(false), build(true)
	assert.Equal(t, a.State(), b.State())

	da, err := a.StateDigest()
	require.NoError(t, err)
	db, err := b.StateDigest()
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestStateListsElements(t *testing.T) {
	st := newStore(t)
	d := hrDomain(t, st)
	s := begin(t, st)
	e, err := d.CreateEntity(s, testutil.Employee, "e1")
	require.NoError(t, err)
	team, err := d.CreateEntity(s, testutil.Team, "t1")
	require.NoError(t, err)
	_, err = d.CreateRelationship(s, testutil.MemberOf, e.ID(), team.ID(), "r1")
	require.NoError(t, err)
	require.NoError(t, s.Commit())

	state := d.State()
	elements := state["elements"].(value.Map)
	require.Len(t, elements, 3)
	rel := elements[value.NewID(testutil.Domain, "r1").String()].(value.Map)
	assert.Equal(t, value.String(e.ID().String()), rel["start"])
	assert.Equal(t, value.String(team.ID().String()), rel["end"])
	assert.NotContains(t, elements[e.ID().String()].(value.Map), "start")
	assert.Len(t, state["schemas"], 5)
}
