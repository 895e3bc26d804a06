package graph

import (
	"slices"
	"sync"

	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/notify"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/session"
	"github.com/roach88/lattice/internal/value"
)

// Element is an entity or relationship of a domain.
type Element struct {
	domain   *Domain
	id       value.ID
	schemaID value.ID
	kind     schema.Kind
	start    value.ID
	end      value.ID

	// props is guarded by domain.mu.
	props value.Map

	mu       sync.Mutex
	watchers map[int]func(*session.Session, event.ChangePropertyValue)
	nextID   int
}

func (e *Element) ID() value.ID        { return e.id }
func (e *Element) SchemaID() value.ID  { return e.schemaID }
func (e *Element) DomainModel() string { return e.domain.name }

// Kind reports whether the element is an entity or a relationship.
func (e *Element) Kind() schema.Kind { return e.kind }

// Start returns a relationship's start element.
func (e *Element) Start() value.ID { return e.start }

// End returns a relationship's end element.
func (e *Element) End() value.ID { return e.end }

// PropertyValue returns the stored value, or the schema default when the
// property is declared but unset.
func (e *Element) PropertyValue(name string) (value.Value, bool) {
	e.domain.mu.RLock()
	v, ok := e.props[name]
	e.domain.mu.RUnlock()
	if ok {
		return v, true
	}
	if p, ok := e.domain.schemas.Property(e.schemaID, name); ok && p.Default != nil {
		return p.Default, true
	}
	return nil, false
}

// Properties returns a copy of the stored values.
func (e *Element) Properties() value.Map {
	e.domain.mu.RLock()
	defer e.domain.mu.RUnlock()
	out := make(value.Map, len(e.props))
	for k, v := range e.props {
		out[k] = v
	}
	return out
}

// Watch registers fn for committed changes to this element's properties.
// Only changes made by sessions that touched the element are delivered.
func (e *Element) Watch(fn func(*session.Session, event.ChangePropertyValue)) notify.Subscription {
	e.mu.Lock()
	if e.watchers == nil {
		e.watchers = make(map[int]func(*session.Session, event.ChangePropertyValue))
	}
	e.nextID++
	id := e.nextID
	e.watchers[id] = fn
	e.mu.Unlock()

	reg := e.domain.events.RegisterForPropertyChanges(e)
	return closeFunc(func() {
		reg.Close()
		e.mu.Lock()
		delete(e.watchers, id)
		e.mu.Unlock()
	})
}

// OnPropertyChanged delivers a committed change to the element's watchers
// in registration order.
func (e *Element) OnPropertyChanged(s *session.Session, ev event.ChangePropertyValue) {
	e.mu.Lock()
	ids := make([]int, 0, len(e.watchers))
	for id := range e.watchers {
		ids = append(ids, id)
	}
	fns := make([]func(*session.Session, event.ChangePropertyValue), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, e.watchers[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(s, ev)
	}
}

type closeFunc func()

func (f closeFunc) Close() { f() }
