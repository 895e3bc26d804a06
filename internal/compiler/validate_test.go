package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func int64p(n int64) *int64 { return &n }

func validModel() *Model {
	return &Model{
		Domain: "hr",
		Entities: []EntityDef{
			{Name: "Person", Properties: []PropertyDef{{Name: "Name", Type: "string"}}},
			{Name: "Employee", Extends: "Person", Properties: []PropertyDef{{Name: "Salary", Type: "int"}}},
			{Name: "Team"},
		},
		Relationships: []RelationshipDef{
			{Name: "MemberOf", Start: "Employee", End: "Team"},
		},
		Constraints: []ConstraintDef{
			{Name: "NameRequired", On: "Employee", Property: "Name", Rule: RuleRequired},
		},
	}
}

func TestValidateValidModel(t *testing.T) {
	assert.Empty(t, Validate(validModel()))
}

func TestValidateModelErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Model)
		want   []string
	}{
		{"empty domain", func(m *Model) { m.Domain = " " }, []string{ErrModelDomainEmpty}},
		{"domain with colon", func(m *Model) { m.Domain = "a:b" }, []string{ErrInvalidName}},
		{"no entities", func(m *Model) {
			m.Entities = nil
			m.Relationships = nil
			m.Constraints = nil
		}, []string{ErrModelNoEntities}},
		{"bad name", func(m *Model) { m.Entities[2].Name = "9Team" }, []string{ErrInvalidName, ErrUnknownEndpoint}},
		{"duplicate schema", func(m *Model) { m.Relationships[0].Name = "Team" }, []string{ErrDuplicateName}},
		{"duplicate property", func(m *Model) {
			m.Entities[0].Properties = append(m.Entities[0].Properties, PropertyDef{Name: "Name", Type: "string"})
		}, []string{ErrDuplicateName}},
		{"bad type", func(m *Model) { m.Entities[1].Properties[0].Type = "float" }, []string{ErrInvalidFieldType}},
		{"unknown extends", func(m *Model) { m.Entities[1].Extends = "Human" }, []string{ErrUnknownExtends, ErrUnknownProperty}},
		{"entity extends relationship", func(m *Model) { m.Entities[2].Extends = "MemberOf" }, []string{ErrExtendsWrongKind}},
		{"unknown endpoint", func(m *Model) { m.Relationships[0].End = "Office" }, []string{ErrUnknownEndpoint}},
		{"cycle", func(m *Model) { m.Entities[0].Extends = "Employee" }, []string{ErrInheritanceCycle}},
		{"unknown target", func(m *Model) { m.Constraints[0].On = "Robot" }, []string{ErrUnknownTarget}},
		{"unknown property", func(m *Model) { m.Constraints[0].Property = "Salary2" }, []string{ErrUnknownProperty}},
		{"missing property", func(m *Model) { m.Constraints[0].Property = "" }, []string{ErrUnknownProperty}},
		{"bad kind", func(m *Model) { m.Constraints[0].Kind = "always" }, []string{ErrInvalidKind}},
		{"bad severity", func(m *Model) { m.Constraints[0].Severity = "fatal" }, []string{ErrInvalidSeverity}},
		{"unknown rule", func(m *Model) { m.Constraints[0].Rule = "unique" }, []string{ErrInvalidRule}},
		{"pattern without pattern", func(m *Model) { m.Constraints[0].Rule = RulePattern }, []string{ErrInvalidRule}},
		{"bad pattern", func(m *Model) {
			m.Constraints[0].Rule = RulePattern
			m.Constraints[0].Pattern = "("
		}, []string{ErrInvalidPattern}},
		{"min without bound", func(m *Model) { m.Constraints[0].Rule = RuleMin }, []string{ErrInvalidRule}},
		{"max without bound", func(m *Model) {
			m.Constraints[0].Rule = RuleMax
			m.Constraints[0].Min = int64p(1)
		}, []string{ErrInvalidRule}},
		{"duplicate constraint", func(m *Model) {
			m.Constraints = append(m.Constraints, m.Constraints[0])
		}, []string{ErrDuplicateConstraint}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validModel()
			tt.mutate(m)
			assert.Equal(t, tt.want, codes(Validate(m)))
		})
	}
}

func TestValidationErrorFormatting(t *testing.T) {
	e := ValidationError{Field: "domain", Code: ErrModelDomainEmpty, Message: "domain is required"}
	assert.Equal(t, "[E101] domain: domain is required", e.Error())

	e.Line = 3
	assert.Equal(t, "[E101] line 3: domain: domain is required", e.Error())
}
