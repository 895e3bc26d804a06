package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hrModel = `
domain: "hr"

entity: Person: properties: {
	Name:  string
	Email: string
}
entity: Employee: {
	extends: "Person"
	properties: Salary: int
}
entity: Team: properties: Title: string

relationship: MemberOf: {
	start: "Employee"
	end:   "Team"
	properties: Since: int
}

constraint: NameRequired: {
	on:       "Person"
	property: "Name"
	rule:     "required"
	message:  "{Id} needs a name"
}
constraint: EmailFormat: {
	on:       "Person"
	kind:     "validate"
	category: "contact"
	property: "Email"
	rule:     "pattern"
	pattern:  "^[^@]+@[^@]+$"
	severity: "warning"
}
constraint: SalaryFloor: {
	on:       "Employee"
	property: "Salary"
	rule:     "min"
	min:      0
}
`

func compile(t *testing.T, src string) (*Model, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileModel(v)
}

func TestCompileModelBasic(t *testing.T) {
	m, err := compile(t, hrModel)
	require.NoError(t, err)

	assert.Equal(t, "hr", m.Domain)
	require.Len(t, m.Entities, 3)
	assert.Equal(t, "Person", m.Entities[0].Name)
	assert.Equal(t, []PropertyDef{{Name: "Name", Type: "string"}, {Name: "Email", Type: "string"}}, m.Entities[0].Properties)
	assert.Equal(t, "Person", m.Entities[1].Extends)
	assert.Equal(t, []PropertyDef{{Name: "Salary", Type: "int"}}, m.Entities[1].Properties)

	require.Len(t, m.Relationships, 1)
	assert.Equal(t, RelationshipDef{
		Name:       "MemberOf",
		Start:      "Employee",
		End:        "Team",
		Properties: []PropertyDef{{Name: "Since", Type: "int"}},
	}, m.Relationships[0])

	require.Len(t, m.Constraints, 3)
	email := m.Constraints[1]
	assert.Equal(t, "EmailFormat", email.Name)
	assert.Equal(t, "validate", email.Kind)
	assert.Equal(t, "contact", email.Category)
	assert.Equal(t, RulePattern, email.Rule)
	assert.Equal(t, "warning", email.Severity)

	floor := m.Constraints[2]
	require.NotNil(t, floor.Min)
	assert.Equal(t, int64(0), *floor.Min)
	assert.Nil(t, floor.Max)

	assert.Empty(t, Validate(m))
}

func TestCompileModelPropertyTypes(t *testing.T) {
	m, err := compile(t, `
		domain: "x"
		entity: Thing: properties: {
			s: string
			i: int
			b: bool
			l: [...string]
			m: {...}
		}
	`)
	require.NoError(t, err)
	var types []string
	for _, p := range m.Entities[0].Properties {
		types = append(types, p.Type)
	}
	assert.Equal(t, []string{"string", "int", "bool", "list", "map"}, types)
}

func TestCompileModelErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		msg   string
	}{
		{
			name:  "missing domain",
			src:   `entity: A: {}`,
			field: "domain",
			msg:   "required",
		},
		{
			name:  "no entities",
			src:   `domain: "x"`,
			field: "entity",
			msg:   "at least one entity",
		},
		{
			name:  "float property",
			src:   `domain: "x", entity: A: properties: f: float`,
			field: "type",
			msg:   "float types are forbidden",
		},
		{
			name:  "relationship without end",
			src:   `domain: "x", entity: A: {}, relationship: R: start: "A"`,
			field: "relationship.R.end",
			msg:   "required",
		},
		{
			name:  "constraint without rule",
			src:   `domain: "x", entity: A: {}, constraint: C: on: "A"`,
			field: "constraint.C.rule",
			msg:   "required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compile(t, tt.src)
			require.Error(t, err)
			var ce *CompileError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Message, tt.msg)
		})
	}
}

func TestCompileModelWrongFieldType(t *testing.T) {
	_, err := compile(t, `domain: 42, entity: A: {}`)
	require.Error(t, err)
}

func TestCompileErrorFormatting(t *testing.T) {
	err := &CompileError{Field: "domain", Message: "domain is required"}
	assert.Equal(t, "domain: domain is required", err.Error())
}

func TestFormatCUEError(t *testing.T) {
	assert.Nil(t, formatCUEError(nil))

	v := cuecontext.New().CompileString(`a: int & "x"`)
	err := formatCUEError(v.LookupPath(cue.ParsePath("a")).Err())
	require.Error(t, err)
}
