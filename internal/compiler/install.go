package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/roach88/lattice/internal/constraint"
	"github.com/roach88/lattice/internal/diag"
	"github.com/roach88/lattice/internal/graph"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/session"
	"github.com/roach88/lattice/internal/value"
)

var typeIDs = map[string]value.ID{
	"string": schema.StringType,
	"int":    schema.IntType,
	"bool":   schema.BoolType,
	"list":   schema.ListType,
	"map":    schema.MapType,
}

// Install declares the model's schemas in d through s and registers its
// constraints. The model should have passed Validate.
//
// Schema definitions are recorded as events of s. Constraint registration
// is immediate and survives a rollback of s.
func (m *Model) Install(s *session.Session, d *graph.Domain) error {
	if !strings.EqualFold(m.Domain, d.Name()) {
		return fmt.Errorf("install %s: model declares domain %q", d.Name(), m.Domain)
	}
	if errs := Validate(m); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return fmt.Errorf("install %s: %w", d.Name(), errors.Join(joined...))
	}

	resolve := func(name string) value.ID {
		if name == "" {
			return value.ID{}
		}
		id, _ := d.Schema(name)
		return id
	}

	for _, e := range orderByExtends(m.Entities, func(e EntityDef) string { return e.Name }, func(e EntityDef) string { return e.Extends }) {
		if _, err := d.DefineEntity(s, e.Name, resolve(e.Extends)); err != nil {
			return fmt.Errorf("install entity %s: %w", e.Name, err)
		}
	}
	for _, r := range orderByExtends(m.Relationships, func(r RelationshipDef) string { return r.Name }, func(r RelationshipDef) string { return r.Extends }) {
		if _, err := d.DefineRelationship(s, r.Name, resolve(r.Extends), resolve(r.Start), resolve(r.End)); err != nil {
			return fmt.Errorf("install relationship %s: %w", r.Name, err)
		}
	}

	define := func(owner string, props []PropertyDef) error {
		for _, p := range props {
			if _, err := d.DefineProperty(s, resolve(owner), p.Name, typeIDs[p.Type]); err != nil {
				return fmt.Errorf("install property %s.%s: %w", owner, p.Name, err)
			}
		}
		return nil
	}
	for _, e := range m.Entities {
		if err := define(e.Name, e.Properties); err != nil {
			return err
		}
	}
	for _, r := range m.Relationships {
		if err := define(r.Name, r.Properties); err != nil {
			return err
		}
	}

	for _, c := range m.Constraints {
		entry, err := c.Entry()
		if err != nil {
			return fmt.Errorf("install constraint %s: %w", c.Name, err)
		}
		if err := d.Constraints().Register(resolve(c.On), entry); err != nil {
			return fmt.Errorf("install constraint %s: %w", c.Name, err)
		}
	}

	slog.Info("model installed",
		"domain", d.Name(),
		"entities", len(m.Entities),
		"relationships", len(m.Relationships),
		"constraints", len(m.Constraints),
	)
	return nil
}

// Entry compiles the constraint into a registry entry.
func (c ConstraintDef) Entry() (constraint.Entry, error) {
	kind, err := constraint.ParseKind(c.Kind)
	if err != nil {
		return constraint.Entry{}, err
	}
	severity, err := diag.ParseSeverity(c.Severity)
	if err != nil {
		return constraint.Entry{}, err
	}

	var violated func(value.Value) bool
	message := c.Message
	switch c.Rule {
	case RuleRequired:
		violated = func(v value.Value) bool {
			s, isString := v.(value.String)
			return value.IsNull(v) || (isString && s == "")
		}
		if message == "" {
			message = fmt.Sprintf("{Id}: %s is required", c.Property)
		}
	case RulePattern:
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return constraint.Entry{}, fmt.Errorf("pattern %q: %w", c.Pattern, err)
		}
		violated = func(v value.Value) bool {
			s, ok := v.(value.String)
			return ok && !re.MatchString(string(s))
		}
		if message == "" {
			message = fmt.Sprintf("{Id}: %s has an invalid format", c.Property)
		}
	case RuleMin, RuleMax:
		bound := c.Min
		if c.Rule == RuleMax {
			bound = c.Max
		}
		if bound == nil {
			return constraint.Entry{}, fmt.Errorf("%s rule requires a bound", c.Rule)
		}
		limit := *bound
		violated = func(v value.Value) bool {
			n, ok := magnitude(v)
			if !ok {
				return false
			}
			if c.Rule == RuleMin {
				return n < limit
			}
			return n > limit
		}
		if message == "" {
			message = fmt.Sprintf("{Id}: %s must be %s %d", c.Property, map[string]string{RuleMin: "at least", RuleMax: "at most"}[c.Rule], limit)
		}
	default:
		return constraint.Entry{}, fmt.Errorf("unknown rule %q", c.Rule)
	}

	opts := []constraint.Option{constraint.WithName(c.Name)}
	if c.Category != "" {
		opts = append(opts, constraint.WithCategory(c.Category))
	}
	return constraint.Property(kind, c.Property, func(ctx *constraint.Context, v value.Value) error {
		if violated(v) {
			ctx.Log(severity, message)
		}
		return nil
	}, opts...), nil
}

// magnitude is the integer value, or the length of a string or list.
func magnitude(v value.Value) (int64, bool) {
	switch x := v.(type) {
	case value.Int:
		return int64(x), true
	case value.String:
		return int64(utf8.RuneCountInString(string(x))), true
	case value.List:
		return int64(len(x)), true
	default:
		return 0, false
	}
}

// orderByExtends puts every schema after the schema it extends. Extends
// outside the model keep declaration order.
func orderByExtends[T any](defs []T, name, extends func(T) string) []T {
	index := make(map[string]int, len(defs))
	for i, d := range defs {
		index[name(d)] = i
	}
	done := make(map[string]bool, len(defs))
	out := make([]T, 0, len(defs))
	var visit func(i, depth int)
	visit = func(i, depth int) {
		d := defs[i]
		if done[name(d)] || depth > len(defs) {
			return
		}
		if j, ok := index[extends(d)]; ok {
			visit(j, depth+1)
		}
		if !done[name(d)] {
			done[name(d)] = true
			out = append(out, d)
		}
	}
	for i := range defs {
		visit(i, 0)
	}
	return out
}
