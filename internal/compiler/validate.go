package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/lattice/internal/constraint"
	"github.com/roach88/lattice/internal/diag"
)

// Validation error codes (E100-E199)
const (
	// Model errors (E101-E109)
	ErrModelDomainEmpty = "E101" // domain is required
	ErrModelNoEntities  = "E102" // at least one entity required
	ErrInvalidName      = "E103" // schema or property name is not an identifier
	ErrInvalidFieldType = "E104" // invalid property type
	ErrDuplicateName    = "E105" // duplicate schema or property name
	ErrUnknownExtends   = "E106" // extends names an unknown schema
	ErrUnknownEndpoint  = "E107" // relationship endpoint is not an entity
	ErrInheritanceCycle = "E108" // extends chain loops
	ErrExtendsWrongKind = "E109" // entity extends relationship or vice versa

	// Constraint errors (E110-E119)
	ErrUnknownTarget       = "E110" // constraint on unknown schema
	ErrUnknownProperty     = "E111" // constraint property not declared
	ErrInvalidRule         = "E112" // unknown rule or missing rule argument
	ErrInvalidPattern      = "E113" // pattern does not compile
	ErrInvalidKind         = "E114" // kind is not check or validate
	ErrInvalidSeverity     = "E115" // severity is not error or warning
	ErrDuplicateConstraint = "E116" // duplicate constraint name
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var propertyTypes = map[string]bool{
	"string": true,
	"int":    true,
	"bool":   true,
	"list":   true,
	"map":    true,
}

// ValidationError represents a model validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled model. It returns every error found.
func Validate(m *Model) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(m.Domain) == "" {
		add("domain", ErrModelDomainEmpty, "domain is required and must be non-empty")
	} else if strings.ContainsAny(m.Domain, ": ") {
		add("domain", ErrInvalidName, "domain %q must not contain ':' or spaces", m.Domain)
	}
	if len(m.Entities) == 0 {
		add("entities", ErrModelNoEntities, "at least one entity is required")
	}

	entities := make(map[string]bool)
	relationships := make(map[string]bool)
	seen := make(map[string]bool)
	checkName := func(field, name string) {
		if !identifier.MatchString(name) {
			add(field, ErrInvalidName, "%q is not a valid name", name)
		}
		if seen[name] {
			add(field, ErrDuplicateName, "duplicate schema name: %q", name)
		}
		seen[name] = true
	}
	for i, e := range m.Entities {
		checkName(fmt.Sprintf("entities[%d].name", i), e.Name)
		entities[e.Name] = true
	}
	for i, r := range m.Relationships {
		checkName(fmt.Sprintf("relationships[%d].name", i), r.Name)
		relationships[r.Name] = true
	}

	for i, e := range m.Entities {
		field := fmt.Sprintf("entities[%d]", i)
		if e.Extends != "" {
			switch {
			case relationships[e.Extends]:
				add(field+".extends", ErrExtendsWrongKind, "entity %q cannot extend relationship %q", e.Name, e.Extends)
			case !entities[e.Extends]:
				add(field+".extends", ErrUnknownExtends, "entity %q extends unknown schema %q", e.Name, e.Extends)
			}
		}
		errs = append(errs, validateProperties(field, e.Properties)...)
	}
	for i, r := range m.Relationships {
		field := fmt.Sprintf("relationships[%d]", i)
		if r.Extends != "" {
			switch {
			case entities[r.Extends]:
				add(field+".extends", ErrExtendsWrongKind, "relationship %q cannot extend entity %q", r.Name, r.Extends)
			case !relationships[r.Extends]:
				add(field+".extends", ErrUnknownExtends, "relationship %q extends unknown schema %q", r.Name, r.Extends)
			}
		}
		if !entities[r.Start] {
			add(field+".start", ErrUnknownEndpoint, "start %q is not an entity", r.Start)
		}
		if !entities[r.End] {
			add(field+".end", ErrUnknownEndpoint, "end %q is not an entity", r.End)
		}
		errs = append(errs, validateProperties(field, r.Properties)...)
	}

	for _, c := range AnalyzeInheritance(m) {
		add("extends", ErrInheritanceCycle, "%s", c.Message)
	}

	names := m.schemaNames()
	constraintNames := make(map[string]bool)
	for i, c := range m.Constraints {
		field := fmt.Sprintf("constraints[%d]", i)
		if constraintNames[c.Name] {
			add(field+".name", ErrDuplicateConstraint, "duplicate constraint name: %q", c.Name)
		}
		constraintNames[c.Name] = true

		if !names[c.On] {
			add(field+".on", ErrUnknownTarget, "constraint %q targets unknown schema %q", c.Name, c.On)
		} else if c.Property == "" {
			add(field+".property", ErrUnknownProperty, "constraint %q requires a property", c.Name)
		} else if !m.properties(c.On)[c.Property] {
			add(field+".property", ErrUnknownProperty, "%q has no property %q", c.On, c.Property)
		}
		if _, err := constraint.ParseKind(c.Kind); err != nil {
			add(field+".kind", ErrInvalidKind, "%v", err)
		}
		if _, err := diag.ParseSeverity(c.Severity); err != nil {
			add(field+".severity", ErrInvalidSeverity, "%v", err)
		}

		switch c.Rule {
		case RuleRequired:
		case RulePattern:
			if c.Pattern == "" {
				add(field+".pattern", ErrInvalidRule, "pattern rule %q requires a pattern", c.Name)
			} else if _, err := regexp.Compile(c.Pattern); err != nil {
				add(field+".pattern", ErrInvalidPattern, "pattern %q: %v", c.Pattern, err)
			}
		case RuleMin:
			if c.Min == nil {
				add(field+".min", ErrInvalidRule, "min rule %q requires min", c.Name)
			}
		case RuleMax:
			if c.Max == nil {
				add(field+".max", ErrInvalidRule, "max rule %q requires max", c.Name)
			}
		default:
			add(field+".rule", ErrInvalidRule, "unknown rule %q (want required, pattern, min or max)", c.Rule)
		}
	}

	return errs
}

func validateProperties(field string, props []PropertyDef) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for j, p := range props {
		pf := fmt.Sprintf("%s.properties[%d]", field, j)
		if !identifier.MatchString(p.Name) {
			errs = append(errs, ValidationError{Field: pf, Code: ErrInvalidName, Message: fmt.Sprintf("%q is not a valid name", p.Name)})
		}
		if seen[p.Name] {
			errs = append(errs, ValidationError{Field: pf, Code: ErrDuplicateName, Message: fmt.Sprintf("duplicate property name: %q", p.Name)})
		}
		seen[p.Name] = true
		if !propertyTypes[p.Type] {
			errs = append(errs, ValidationError{Field: pf + ".type", Code: ErrInvalidFieldType, Message: fmt.Sprintf("invalid type %q", p.Type)})
		}
	}
	return errs
}
