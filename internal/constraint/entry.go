package constraint

import (
	"fmt"
	"strings"

	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/value"
)

// Kind selects when a rule runs.
type Kind int

const (
	// KindCheck rules run implicitly over the elements a session touched.
	KindCheck Kind = iota
	// KindValidate rules run on demand, optionally filtered by category.
	KindValidate
)

func (k Kind) String() string {
	switch k {
	case KindCheck:
		return "check"
	case KindValidate:
		return "validate"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "check" or "validate", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "check", "":
		return KindCheck, nil
	case "validate":
		return KindValidate, nil
	default:
		return 0, fmt.Errorf("unknown constraint kind %q", s)
	}
}

// Entry is one registered rule. Entries are built by Element or Property,
// which erase the caller's concrete types behind invoke.
type Entry struct {
	Name     string
	Kind     Kind
	Category string
	// Property is set for rules scoped to a single property.
	Property string

	invoke func(c *Context) error
}

// Option configures an Entry.
type Option func(*Entry)

// WithCategory sets the validation category.
func WithCategory(category string) Option {
	return func(e *Entry) { e.Category = category }
}

// WithName names the rule in logs and failure diagnostics.
func WithName(name string) Option {
	return func(e *Entry) { e.Name = name }
}

// Element builds a whole-element rule. fn only runs for elements whose
// concrete type is T; other elements are skipped.
func Element[T schema.Element](kind Kind, fn func(c *Context, el T) error, opts ...Option) Entry {
	e := Entry{Kind: kind}
	for _, opt := range opts {
		opt(&e)
	}
	e.invoke = func(c *Context) error {
		el, ok := c.element.(T)
		if !ok {
			return nil
		}
		return fn(c, el)
	}
	return e
}

// Property builds a rule scoped to one property. The property's value is
// resolved once per element; an unset property resolves to value.Null.
// fn only runs when the value has type V, so Property[value.Value] sees
// every value and Property[value.String] skips non-strings.
func Property[V value.Value](kind Kind, property string, fn func(c *Context, v V) error, opts ...Option) Entry {
	e := Entry{Kind: kind, Property: property}
	for _, opt := range opts {
		opt(&e)
	}
	e.invoke = func(c *Context) error {
		raw, ok := c.element.PropertyValue(property)
		if !ok || raw == nil {
			raw = value.Null{}
		}
		v, ok := raw.(V)
		if !ok {
			return nil
		}
		return fn(c, v)
	}
	return e
}

func (e *Entry) label() string {
	if e.Name != "" {
		return e.Name
	}
	if e.Property != "" {
		return e.Kind.String() + "(" + e.Property + ")"
	}
	return e.Kind.String()
}

func (e *Entry) matches(kind Kind, category string) bool {
	if e.Kind != kind {
		return false
	}
	if kind == KindCheck || category == "" {
		return true
	}
	return strings.EqualFold(e.Category, category)
}
