package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileModel parses a CUE value into a Model.
//
// The value is the root of a model package:
//
//	domain: "hr"
//	entity: Person: properties: {Name: string}
//	entity: Employee: {extends: "Person", properties: {Salary: int}}
//	relationship: MemberOf: {start: "Employee", end: "Team"}
//	constraint: NameRequired: {on: "Person", property: "Name", rule: "required"}
func CompileModel(v cue.Value) (*Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &Model{}
	domainVal := v.LookupPath(cue.ParsePath("domain"))
	if !domainVal.Exists() {
		return nil, &CompileError{
			Field:   "domain",
			Message: "domain is required",
			Pos:     v.Pos(),
		}
	}
	domain, err := domainVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	m.Domain = domain

	if m.Entities, err = parseEntities(v); err != nil {
		return nil, err
	}
	if len(m.Entities) == 0 {
		return nil, &CompileError{
			Field:   "entity",
			Message: "at least one entity is required",
			Pos:     v.Pos(),
		}
	}
	if m.Relationships, err = parseRelationships(v); err != nil {
		return nil, err
	}
	if m.Constraints, err = parseConstraints(v); err != nil {
		return nil, err
	}
	return m, nil
}

func parseEntities(v cue.Value) ([]EntityDef, error) {
	var entities []EntityDef

	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return entities, nil
	}
	iter, err := entityVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		def := EntityDef{Name: iter.Label()}
		if def.Extends, err = optionalString(iter.Value(), "extends"); err != nil {
			return nil, err
		}
		if def.Properties, err = parseProperties(iter.Value()); err != nil {
			return nil, err
		}
		entities = append(entities, def)
	}
	return entities, nil
}

func parseRelationships(v cue.Value) ([]RelationshipDef, error) {
	var relationships []RelationshipDef

	relVal := v.LookupPath(cue.ParsePath("relationship"))
	if !relVal.Exists() {
		return relationships, nil
	}
	iter, err := relVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		rv := iter.Value()
		def := RelationshipDef{Name: name}
		if def.Extends, err = optionalString(rv, "extends"); err != nil {
			return nil, err
		}
		for _, end := range []struct {
			field string
			dst   *string
		}{{"start", &def.Start}, {"end", &def.End}} {
			ev := rv.LookupPath(cue.ParsePath(end.field))
			if !ev.Exists() {
				return nil, &CompileError{
					Field:   fmt.Sprintf("relationship.%s.%s", name, end.field),
					Message: fmt.Sprintf("relationship %s is required", end.field),
					Pos:     rv.Pos(),
				}
			}
			s, err := ev.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			*end.dst = s
		}
		if def.Properties, err = parseProperties(rv); err != nil {
			return nil, err
		}
		relationships = append(relationships, def)
	}
	return relationships, nil
}

func parseProperties(v cue.Value) ([]PropertyDef, error) {
	var props []PropertyDef

	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return props, nil
	}
	iter, err := propsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		typ, err := extractTypeName(iter.Value())
		if err != nil {
			return nil, err
		}
		props = append(props, PropertyDef{Name: iter.Label(), Type: typ})
	}
	return props, nil
}

func parseConstraints(v cue.Value) ([]ConstraintDef, error) {
	var constraints []ConstraintDef

	cVal := v.LookupPath(cue.ParsePath("constraint"))
	if !cVal.Exists() {
		return constraints, nil
	}
	iter, err := cVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		cv := iter.Value()
		def := ConstraintDef{Name: name}

		for _, req := range []struct {
			field string
			dst   *string
		}{{"on", &def.On}, {"rule", &def.Rule}} {
			fv := cv.LookupPath(cue.ParsePath(req.field))
			if !fv.Exists() {
				return nil, &CompileError{
					Field:   fmt.Sprintf("constraint.%s.%s", name, req.field),
					Message: fmt.Sprintf("constraint %s is required", req.field),
					Pos:     cv.Pos(),
				}
			}
			s, err := fv.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			*req.dst = s
		}

		for _, opt := range []struct {
			field string
			dst   *string
		}{
			{"kind", &def.Kind},
			{"category", &def.Category},
			{"property", &def.Property},
			{"pattern", &def.Pattern},
			{"message", &def.Message},
			{"severity", &def.Severity},
		} {
			if *opt.dst, err = optionalString(cv, opt.field); err != nil {
				return nil, err
			}
		}
		if def.Min, err = optionalInt(cv, "min"); err != nil {
			return nil, err
		}
		if def.Max, err = optionalInt(cv, "max"); err != nil {
			return nil, err
		}
		constraints = append(constraints, def)
	}
	return constraints, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalInt(v cue.Value, field string) (*int64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return &n, nil
}

// extractTypeName converts a CUE type to a property type name. Floats are
// forbidden; property values are integers.
func extractTypeName(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.ListKind:
		return "list", nil
	case cue.StructKind:
		return "map", nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
