// Package schema is the in-memory metamodel: entity, relationship and
// property schemas with single inheritance.
//
// Schemas live in an arena keyed by identity. Super-classes and property
// owners are stored as identities, never as pointers, so the graph of
// schema nodes has no reference cycles. A cyclic super-class chain can
// still be declared by mistake; Chain guards against it.
package schema

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/lattice/internal/value"
)

// CoreDomain owns the primitive schemas every model builds on.
const CoreDomain = "$core"

// Kind classifies a schema node.
type Kind int

const (
	KindPrimitive Kind = iota
	KindEntity
	KindRelationship
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindEntity:
		return "entity"
	case KindRelationship:
		return "relationship"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Primitive roots and value types.
var (
	EntityRoot       = value.NewID(CoreDomain, "ModelEntity")
	RelationshipRoot = value.NewID(CoreDomain, "ModelRelationship")
	StringType       = value.NewID(CoreDomain, "string")
	IntType          = value.NewID(CoreDomain, "int")
	BoolType         = value.NewID(CoreDomain, "bool")
	ListType         = value.NewID(CoreDomain, "list")
	MapType          = value.NewID(CoreDomain, "map")
)

// Node is one schema in the arena.
type Node struct {
	ID    value.ID
	Name  string
	Kind  Kind
	Super value.ID
	// Start and End constrain relationship endpoints.
	Start value.ID
	End   value.ID
}

// Property is a property declared by a schema.
type Property struct {
	ID      value.ID
	Name    string
	Owner   value.ID
	Type    value.ID
	Default value.Value
}

// Element is the view of a graph element the pipeline needs.
type Element interface {
	ID() value.ID
	SchemaID() value.ID
	DomainModel() string
	PropertyValue(name string) (value.Value, bool)
}

type propertyKey struct {
	owner value.ID
	name  string
}

// Registry is the schema arena. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	nodes      map[value.ID]Node
	properties map[propertyKey]Property
	order      map[value.ID][]string
	maxDepth   int
}

// DefaultMaxDepth bounds super-class walks.
const DefaultMaxDepth = 64

// Option configures a Registry.
type Option func(*Registry)

// WithMaxDepth overrides the super-class walk bound.
func WithMaxDepth(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// NewRegistry creates an arena holding the primitive schemas.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		nodes:      make(map[value.ID]Node),
		properties: make(map[propertyKey]Property),
		order:      make(map[value.ID][]string),
		maxDepth:   DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, id := range []value.ID{EntityRoot, RelationshipRoot, StringType, IntType, BoolType, ListType, MapType} {
		r.nodes[id] = Node{ID: id, Name: id.Key, Kind: KindPrimitive}
	}
	return r
}

// Define adds a schema node. Entities default to EntityRoot as super-class,
// relationships to RelationshipRoot.
func (r *Registry) Define(n Node) error {
	if !n.ID.Valid() {
		return fmt.Errorf("define schema: invalid identity %q", n.ID)
	}
	if n.Kind == KindPrimitive {
		return fmt.Errorf("define schema %s: primitive schemas are predefined", n.ID)
	}
	if n.Name == "" {
		n.Name = n.ID.Key
	}
	if n.Super.IsZero() {
		if n.Kind == KindRelationship {
			n.Super = RelationshipRoot
		} else {
			n.Super = EntityRoot
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[n.ID]; exists {
		return fmt.Errorf("define schema %s: already defined", n.ID)
	}
	super, ok := r.nodes[n.Super]
	if !ok {
		return fmt.Errorf("define schema %s: unknown super-class %s", n.ID, n.Super)
	}
	if super.Kind != KindPrimitive && super.Kind != n.Kind {
		return fmt.Errorf("define schema %s: %s cannot extend %s %s", n.ID, n.Kind, super.Kind, n.Super)
	}
	if n.Kind == KindRelationship {
		for _, end := range []value.ID{n.Start, n.End} {
			if end.IsZero() {
				return fmt.Errorf("define schema %s: relationship requires start and end schemas", n.ID)
			}
			if _, ok := r.nodes[end]; !ok {
				return fmt.Errorf("define schema %s: unknown endpoint schema %s", n.ID, end)
			}
		}
	}
	r.nodes[n.ID] = n
	return nil
}

// Reparent changes the super-class of an existing node. No cycle check is
// made; Chain tolerates the result.
func (r *Registry) Reparent(id, super value.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[id]; ok {
		n.Super = super
		r.nodes[id] = n
	}
}

// DefineProperty declares a property on an existing schema.
func (r *Registry) DefineProperty(p Property) error {
	if p.Name == "" {
		return fmt.Errorf("define property on %s: empty name", p.Owner)
	}
	if p.ID.IsZero() {
		p.ID = value.NewID(p.Owner.Domain, p.Owner.Key+"."+p.Name)
	}
	if p.Type.IsZero() {
		p.Type = StringType
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[p.Owner]; !ok {
		return fmt.Errorf("define property %s: unknown schema %s", p.Name, p.Owner)
	}
	t, ok := r.nodes[p.Type]
	if !ok || t.Kind != KindPrimitive {
		return fmt.Errorf("define property %s.%s: type %s is not a primitive", p.Owner.Key, p.Name, p.Type)
	}
	key := propertyKey{owner: p.Owner, name: p.Name}
	if _, exists := r.properties[key]; exists {
		return fmt.Errorf("define property %s.%s: already defined", p.Owner.Key, p.Name)
	}
	r.properties[key] = p
	r.order[p.Owner] = append(r.order[p.Owner], p.Name)
	return nil
}

// Get returns the node for id.
func (r *Registry) Get(id value.ID) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	return n, ok
}

// Find resolves a schema by domain and name, case-insensitively.
func (r *Registry) Find(domain, name string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.nodes[value.NewID(domain, name)]; ok {
		return n, true
	}
	for id, n := range r.nodes {
		if strings.EqualFold(id.Domain, domain) && strings.EqualFold(id.Key, name) {
			return n, true
		}
	}
	return Node{}, false
}

// Chain returns the schema followed by its super-classes, stopping before
// the primitive root, at an unknown identity, at a repeated node, or after
// the configured maximum depth.
func (r *Registry) Chain(id value.ID) []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var chain []Node
	seen := make(map[value.ID]bool)
	for cur := id; !cur.IsZero() && len(chain) < r.maxDepth; {
		n, ok := r.nodes[cur]
		if !ok || n.Kind == KindPrimitive || seen[cur] {
			break
		}
		seen[cur] = true
		chain = append(chain, n)
		cur = n.Super
	}
	return chain
}

// IsA reports whether id is ancestor or inherits from it.
func (r *Registry) IsA(id, ancestor value.ID) bool {
	if id == ancestor {
		return true
	}
	for _, n := range r.Chain(id) {
		if n.ID == ancestor || n.Super == ancestor {
			return true
		}
	}
	return false
}

// Property resolves a property by name on the schema or its ancestors.
func (r *Registry) Property(schemaID value.ID, name string) (Property, bool) {
	for _, n := range r.Chain(schemaID) {
		r.mu.RLock()
		p, ok := r.properties[propertyKey{owner: n.ID, name: name}]
		r.mu.RUnlock()
		if ok {
			return p, true
		}
	}
	return Property{}, false
}

// Properties lists every property visible on a schema, ancestors first,
// in declaration order.
func (r *Registry) Properties(schemaID value.ID) []Property {
	chain := r.Chain(schemaID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Property
	for i := len(chain) - 1; i >= 0; i-- {
		owner := chain[i].ID
		for _, name := range r.order[owner] {
			out = append(out, r.properties[propertyKey{owner: owner, name: name}])
		}
	}
	return out
}

// Schemas returns every non-primitive schema of a domain.
func (r *Registry) Schemas(domain string) []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Node
	for id, n := range r.nodes {
		if n.Kind != KindPrimitive && id.SameDomain(domain) {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b Node) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// TypeOf returns the primitive schema matching a value.
func TypeOf(v value.Value) value.ID {
	switch v.(type) {
	case value.String:
		return StringType
	case value.Int:
		return IntType
	case value.Bool:
		return BoolType
	case value.List:
		return ListType
	case value.Map:
		return MapType
	default:
		return value.ID{}
	}
}
