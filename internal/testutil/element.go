// Package testutil provides shared fixtures for lattice tests: a small
// HR metamodel, a map-backed element and deterministic session managers.
package testutil

import (
	"sync"

	"github.com/roach88/lattice/internal/value"
)

// Element is a map-backed schema.Element.
//
// Thread-safety: property access is guarded by an internal mutex.
type Element struct {
	id     value.ID
	schema value.ID
	domain string

	mu    sync.Mutex
	props value.Map
}

// NewElement creates an element of schemaID in the domain of id.
func NewElement(id, schemaID value.ID, props value.Map) *Element {
	if props == nil {
		props = value.Map{}
	}
	return &Element{id: id, schema: schemaID, domain: id.Domain, props: props}
}

func (e *Element) ID() value.ID        { return e.id }
func (e *Element) SchemaID() value.ID  { return e.schema }
func (e *Element) DomainModel() string { return e.domain }

// PropertyValue returns the value stored under name.
func (e *Element) PropertyValue(name string) (value.Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[name]
	return v, ok
}

// Set stores a property value.
func (e *Element) Set(name string, v value.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.props[name] = v
}
