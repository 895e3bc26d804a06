package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/constraint"
	"github.com/roach88/lattice/internal/diag"
	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/notify"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/session"
	"github.com/roach88/lattice/internal/value"
)

// ErrNoSession is returned by mutations called without a session.
var ErrNoSession = errors.New("graph: mutation requires a session")

// Domain is one domain model: a schema arena, its rules, its event manager
// and the elements.
type Domain struct {
	name        string
	store       *Store
	schemas     *schema.Registry
	constraints *constraint.Registry
	events      *notify.Manager

	mu       sync.RWMutex
	elements map[value.ID]*Element
	// removed keeps elements deleted by open sessions so that a rollback
	// restores the same instance.
	removed map[value.ID]tombstone
}

type tombstone struct {
	session string
	el      *Element
}

func newDomain(s *Store, name string) *Domain {
	schemas := schema.NewRegistry(schema.WithMaxDepth(s.maxDepth))
	return &Domain{
		name:        name,
		store:       s,
		schemas:     schemas,
		constraints: constraint.NewRegistry(name, schemas, s.sessions, constraint.WithMetrics(s.metrics)),
		events:      notify.NewManager(name, notify.WithMetrics(s.metrics)),
		elements:    make(map[value.ID]*Element),
		removed:     make(map[value.ID]tombstone),
	}
}

// Name returns the domain name as created.
func (d *Domain) Name() string { return d.name }

// Schemas returns the schema arena.
func (d *Domain) Schemas() *schema.Registry { return d.schemas }

// Constraints returns the rule registry.
func (d *Domain) Constraints() *constraint.Registry { return d.constraints }

// Events returns the event manager.
func (d *Domain) Events() *notify.Manager { return d.events }

// Schema resolves a schema of this domain by name, ignoring case.
func (d *Domain) Schema(name string) (value.ID, bool) {
	n, ok := d.schemas.Find(d.name, name)
	if !ok {
		return value.ID{}, false
	}
	return n.ID, true
}

// Get returns an element by id.
func (d *Domain) Get(id value.ID) (*Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	el, ok := d.elements[id]
	return el, ok
}

// Len returns the number of elements.
func (d *Domain) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.elements)
}

// Elements returns every element ordered by id.
func (d *Domain) Elements() []*Element {
	d.mu.RLock()
	out := make([]*Element, 0, len(d.elements))
	for _, el := range d.elements {
		out = append(out, el)
	}
	d.mu.RUnlock()
	sortElements(out)
	return out
}

// Relationships returns the relationships starting or ending at id,
// ordered by id.
func (d *Domain) Relationships(id value.ID) []*Element {
	d.mu.RLock()
	var out []*Element
	for _, el := range d.elements {
		if el.kind == schema.KindRelationship && (el.start == id || el.end == id) {
			out = append(out, el)
		}
	}
	d.mu.RUnlock()
	sortElements(out)
	return out
}

// DefineEntity declares an entity schema. A zero super defaults to the
// entity root.
func (d *Domain) DefineEntity(s *session.Session, name string, super value.ID) (value.ID, error) {
	return d.define(s, schema.Node{ID: value.NewID(d.name, name), Name: name, Kind: schema.KindEntity, Super: super})
}

// DefineRelationship declares a relationship schema between start and end
// entity schemas.
func (d *Domain) DefineRelationship(s *session.Session, name string, super, start, end value.ID) (value.ID, error) {
	return d.define(s, schema.Node{
		ID:    value.NewID(d.name, name),
		Name:  name,
		Kind:  schema.KindRelationship,
		Super: super,
		Start: start,
		End:   end,
	})
}

func (d *Domain) define(s *session.Session, n schema.Node) (value.ID, error) {
	var (
		ev  event.Event
		err error
	)
	if n.Kind == schema.KindRelationship {
		if n.Super.IsZero() {
			n.Super = schema.RelationshipRoot
		}
		ev, err = event.NewAddSchemaRelationship(d.header(s), event.Link{
			ID:            n.ID,
			SchemaID:      n.Super,
			StartID:       n.Start,
			StartSchemaID: n.Start,
			EndID:         n.End,
			EndSchemaID:   n.End,
		})
	} else {
		if n.Super.IsZero() {
			n.Super = schema.EntityRoot
		}
		ev, err = event.NewAddSchemaEntity(d.header(s), n.ID, n.Super)
	}
	if err != nil {
		return value.ID{}, err
	}
	if _, err := d.record(s, ev); err != nil {
		return value.ID{}, err
	}
	return n.ID, nil
}

// DefineProperty declares a property of the given primitive type on owner.
// A zero type means string.
func (d *Domain) DefineProperty(s *session.Session, owner value.ID, name string, typ value.ID) (value.ID, error) {
	if typ.IsZero() {
		typ = schema.StringType
	}
	id := value.NewID(owner.Domain, owner.Key+"."+name)
	ev, err := event.NewAddSchemaProperty(d.header(s), id, owner, name, typ)
	if err != nil {
		return value.ID{}, err
	}
	if _, err := d.record(s, ev); err != nil {
		return value.ID{}, err
	}
	return id, nil
}

// CreateEntity adds an entity of schemaID. An empty key generates one.
func (d *Domain) CreateEntity(s *session.Session, schemaID value.ID, key string) (*Element, error) {
	if err := d.requireSchema(schemaID, schema.KindEntity); err != nil {
		return nil, err
	}
	id, err := d.newID(key)
	if err != nil {
		return nil, err
	}
	ev, err := event.NewAddEntity(d.header(s), id, schemaID)
	if err != nil {
		return nil, err
	}
	if _, err := d.record(s, ev); err != nil {
		return nil, err
	}
	el, _ := d.Get(id)
	return el, nil
}

// RemoveEntity removes an entity with its relationships and property
// values. Each removal is recorded as its own event.
func (d *Domain) RemoveEntity(s *session.Session, id value.ID) error {
	el, err := d.require(id)
	if err != nil {
		return err
	}
	if el.kind != schema.KindEntity {
		return &Error{Code: ErrCodeSchemaKind, Domain: d.name, Element: id, Message: "element is not an entity"}
	}
	for _, rel := range d.Relationships(id) {
		if err := d.RemoveRelationship(s, rel.id); err != nil {
			return err
		}
	}
	if err := d.clearProperties(s, el); err != nil {
		return err
	}
	ev, err := event.NewRemoveEntity(d.header(s), id, el.schemaID)
	if err != nil {
		return err
	}
	_, err = d.record(s, ev)
	return err
}

// CreateRelationship links start to end with a relationship of schemaID.
// The endpoints must conform to the schema's start and end schemas.
func (d *Domain) CreateRelationship(s *session.Session, schemaID, start, end value.ID, key string) (*Element, error) {
	if err := d.requireSchema(schemaID, schema.KindRelationship); err != nil {
		return nil, err
	}
	node, _ := d.schemas.Get(schemaID)
	from, err := d.require(start)
	if err != nil {
		return nil, err
	}
	to, err := d.require(end)
	if err != nil {
		return nil, err
	}
	if !d.schemas.IsA(from.schemaID, node.Start) {
		return nil, &Error{Code: ErrCodeEndpoint, Domain: d.name, Element: start,
			Message: fmt.Sprintf("start must be a %s", node.Start.Key)}
	}
	if !d.schemas.IsA(to.schemaID, node.End) {
		return nil, &Error{Code: ErrCodeEndpoint, Domain: d.name, Element: end,
			Message: fmt.Sprintf("end must be a %s", node.End.Key)}
	}

	id, err := d.newID(key)
	if err != nil {
		return nil, err
	}
	ev, err := event.NewAddRelationship(d.header(s), event.Link{
		ID:            id,
		SchemaID:      schemaID,
		StartID:       start,
		StartSchemaID: from.schemaID,
		EndID:         end,
		EndSchemaID:   to.schemaID,
	})
	if err != nil {
		return nil, err
	}
	if _, err := d.record(s, ev); err != nil {
		return nil, err
	}
	el, _ := d.Get(id)
	return el, nil
}

// RemoveRelationship removes a relationship and its property values.
func (d *Domain) RemoveRelationship(s *session.Session, id value.ID) error {
	el, err := d.require(id)
	if err != nil {
		return err
	}
	if el.kind != schema.KindRelationship {
		return &Error{Code: ErrCodeSchemaKind, Domain: d.name, Element: id, Message: "element is not a relationship"}
	}
	if err := d.clearProperties(s, el); err != nil {
		return err
	}
	start, _ := d.Get(el.start)
	end, _ := d.Get(el.end)
	l := event.Link{ID: id, SchemaID: el.schemaID, StartID: el.start, EndID: el.end}
	if start != nil {
		l.StartSchemaID = start.schemaID
	}
	if end != nil {
		l.EndSchemaID = end.schemaID
	}
	ev, err := event.NewRemoveRelationship(d.header(s), l)
	if err != nil {
		return err
	}
	_, err = d.record(s, ev)
	return err
}

// SetProperty assigns a property value. The property must be declared by
// the element's schema or an ancestor, and non-null values must match its
// type. The assignment is recorded even when the value does not change.
func (d *Domain) SetProperty(s *session.Session, id value.ID, name string, v value.Value) error {
	el, err := d.require(id)
	if err != nil {
		return err
	}
	p, ok := d.schemas.Property(el.schemaID, name)
	if !ok {
		return &Error{Code: ErrCodeUnknownProperty, Domain: d.name, Element: id,
			Message: fmt.Sprintf("%s has no property %q", el.schemaID.Key, name)}
	}
	if v == nil {
		v = value.Null{}
	}
	if !value.IsNull(v) && schema.TypeOf(v) != p.Type {
		return &Error{Code: ErrCodePropertyType, Domain: d.name, Element: id,
			Message: fmt.Sprintf("property %q expects %s, got %s", name, p.Type.Key, schema.TypeOf(v).Key)}
	}

	d.mu.RLock()
	old, ok := el.props[name]
	d.mu.RUnlock()
	if !ok {
		old = value.Null{}
	}
	ev, err := event.NewChangePropertyValue(d.header(s), d.propertyRef(el, p), v, old)
	if err != nil {
		return err
	}
	_, err = d.record(s, ev)
	return err
}

// RemoveProperty clears a property value. Clearing an unset property does
// nothing.
func (d *Domain) RemoveProperty(s *session.Session, id value.ID, name string) error {
	el, err := d.require(id)
	if err != nil {
		return err
	}
	d.mu.RLock()
	old, ok := el.props[name]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	p, _ := d.schemas.Property(el.schemaID, name)
	if p.Name == "" {
		p = schema.Property{ID: value.NewID(el.schemaID.Domain, el.schemaID.Key+"."+name), Name: name}
	}
	ev, err := event.NewRemoveProperty(d.header(s), d.propertyRef(el, p), old)
	if err != nil {
		return err
	}
	_, err = d.record(s, ev)
	return err
}

func (d *Domain) clearProperties(s *session.Session, el *Element) error {
	props := el.Properties()
	for _, name := range props.Keys() {
		if err := d.RemoveProperty(s, el.id, name); err != nil {
			return err
		}
	}
	return nil
}

// Raise records a custom event. Observers see it on CustomEventRaising
// immediately and on CustomEventRaised once the session commits.
func (d *Domain) Raise(s *session.Session, name string, data value.Map) error {
	ev, err := event.NewRaised(d.header(s), name, data)
	if err != nil {
		return err
	}
	_, err = d.record(s, ev)
	return err
}

// Undo records the inverse of this domain's reversible events, newest
// first. Schema events cannot be undone and are skipped.
func (d *Domain) Undo(s *session.Session, events []event.Event) error {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if !event.BelongsTo(ev, d.name, "") {
			continue
		}
		r, ok := ev.(event.Reversible)
		if !ok {
			if event.IsBuiltin(ev.Kind()) {
				slog.Warn("event not reversible", "domain", d.name, "kind", string(ev.Kind()))
			}
			continue
		}
		if _, err := d.record(s, r.Reverse(s.ID())); err != nil {
			return fmt.Errorf("undo %s: %w", ev.Kind(), err)
		}
	}
	return nil
}

// Validate runs the Validate rules over every element. A non-empty result
// is broadcast on OnErrors.
func (d *Domain) Validate(ctx context.Context, category string) *diag.Result {
	els := d.Elements()
	batch := make([]schema.Element, len(els))
	for i, el := range els {
		batch[i] = el
	}
	result := d.constraints.Validate(ctx, batch, category)
	if !result.Empty() {
		d.events.NotifyMessages(result)
	}
	return result
}

// record applies ev, appends it to s, touches the affected element and
// publishes the pre-phase notification. Nothing is applied when s cannot
// record events.
func (d *Domain) record(s *session.Session, ev event.Event) (event.Event, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	if st := s.State(); s.ReadOnly() || (st != session.StateOpen && st != session.StateCommitting) {
		// Append reports the session's own error.
		return s.Append(ev)
	}
	if err := d.apply(ev); err != nil {
		return nil, err
	}
	stamped, err := s.Append(ev)
	if err != nil {
		return nil, err
	}
	if id, ok := touchedBy(stamped); ok {
		s.Touch(id)
	}
	d.events.NotifyEvent(s, stamped)
	return stamped, nil
}

// apply changes in-memory state for ev. Custom events change nothing.
func (d *Domain) apply(ev event.Event) error {
	switch e := ev.(type) {
	case event.AddSchemaEntity:
		return d.schemas.Define(schema.Node{ID: e.ID, Kind: schema.KindEntity, Super: e.SchemaID})
	case event.AddSchemaRelationship:
		return d.schemas.Define(schema.Node{
			ID:    e.ID,
			Kind:  schema.KindRelationship,
			Super: e.SchemaID,
			Start: e.StartID,
			End:   e.EndID,
		})
	case event.AddSchemaProperty:
		return d.schemas.DefineProperty(schema.Property{
			ID:    e.ID,
			Name:  e.PropertyName,
			Owner: e.SchemaID,
			Type:  e.PropertySchemaID,
		})
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch e := ev.(type) {
	case event.AddEntity:
		if el := d.restore(e.CorrelationID, e.ID, e.SchemaID); el != nil {
			return d.insert(el)
		}
		return d.insert(&Element{domain: d, id: e.ID, schemaID: e.SchemaID, kind: schema.KindEntity})
	case event.AddRelationship:
		if el := d.restore(e.CorrelationID, e.ID, e.SchemaID); el != nil && el.start == e.StartID && el.end == e.EndID {
			return d.insert(el)
		}
		return d.insert(&Element{
			domain:   d,
			id:       e.ID,
			schemaID: e.SchemaID,
			kind:     schema.KindRelationship,
			start:    e.StartID,
			end:      e.EndID,
		})
	case event.RemoveEntity:
		return d.delete(e.CorrelationID, e.ID)
	case event.RemoveRelationship:
		return d.delete(e.CorrelationID, e.ID)
	case event.ChangePropertyValue:
		el, ok := d.elements[e.ElementID]
		if !ok {
			return d.notFound(e.ElementID)
		}
		if value.IsNull(e.Value) {
			delete(el.props, e.PropertyName)
			return nil
		}
		if el.props == nil {
			el.props = make(value.Map)
		}
		el.props[e.PropertyName] = e.Value
	case event.RemoveProperty:
		el, ok := d.elements[e.ElementID]
		if !ok {
			return d.notFound(e.ElementID)
		}
		delete(el.props, e.PropertyName)
	}
	return nil
}

// insert, delete and restore expect d.mu held.
func (d *Domain) insert(el *Element) error {
	if _, exists := d.elements[el.id]; exists {
		return &Error{Code: ErrCodeElementExists, Domain: d.name, Element: el.id, Message: "element already exists"}
	}
	d.elements[el.id] = el
	return nil
}

func (d *Domain) delete(sessionID string, id value.ID) error {
	el, ok := d.elements[id]
	if !ok {
		return d.notFound(id)
	}
	delete(d.elements, id)
	if sessionID != "" {
		d.removed[id] = tombstone{session: sessionID, el: el}
	}
	return nil
}

// restore returns the element sessionID removed under id, or nil when the
// session removed no such element.
func (d *Domain) restore(sessionID string, id, schemaID value.ID) *Element {
	ts, ok := d.removed[id]
	if !ok || sessionID == "" || ts.session != sessionID || ts.el.schemaID != schemaID {
		return nil
	}
	delete(d.removed, id)
	ts.el.props = nil
	return ts.el
}

// forget drops the tombstones of a closed session.
func (d *Domain) forget(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, ts := range d.removed {
		if ts.session == sessionID {
			delete(d.removed, id)
		}
	}
}

func (d *Domain) header(s *session.Session) event.Header {
	if s == nil {
		return event.Header{DomainModel: d.name}
	}
	return s.Header(d.name, "")
}

func (d *Domain) newID(key string) (value.ID, error) {
	if key == "" {
		key = uuid.Must(uuid.NewV7()).String()
	}
	if strings.Contains(key, ":") {
		return value.ID{}, fmt.Errorf("element key %q must not contain ':'", key)
	}
	id := value.NewID(d.name, key)
	if _, exists := d.Get(id); exists {
		return value.ID{}, &Error{Code: ErrCodeElementExists, Domain: d.name, Element: id, Message: "element already exists"}
	}
	return id, nil
}

func (d *Domain) require(id value.ID) (*Element, error) {
	el, ok := d.Get(id)
	if !ok {
		return nil, d.notFound(id)
	}
	return el, nil
}

func (d *Domain) requireSchema(id value.ID, kind schema.Kind) error {
	n, ok := d.schemas.Get(id)
	if !ok {
		return &Error{Code: ErrCodeUnknownSchema, Domain: d.name, Message: fmt.Sprintf("unknown schema %s", id)}
	}
	if n.Kind != kind {
		return &Error{Code: ErrCodeSchemaKind, Domain: d.name,
			Message: fmt.Sprintf("schema %s is a %s, not a %s", id, n.Kind, kind)}
	}
	return nil
}

func (d *Domain) notFound(id value.ID) error {
	return &Error{Code: ErrCodeElementNotFound, Domain: d.name, Element: id, Message: "element not found"}
}

func (d *Domain) propertyRef(el *Element, p schema.Property) event.PropertyRef {
	return event.PropertyRef{
		ElementID:        el.id,
		SchemaID:         el.schemaID,
		PropertySchemaID: p.ID,
		PropertyName:     p.Name,
	}
}

// touchedBy returns the element an event changes.
func touchedBy(ev event.Event) (value.ID, bool) {
	switch e := ev.(type) {
	case event.AddEntity:
		return e.ID, true
	case event.RemoveEntity:
		return e.ID, true
	case event.AddRelationship:
		return e.ID, true
	case event.RemoveRelationship:
		return e.ID, true
	case event.ChangePropertyValue:
		return e.ElementID, true
	case event.RemoveProperty:
		return e.ElementID, true
	default:
		return value.ID{}, false
	}
}

func sortElements(els []*Element) {
	slices.SortFunc(els, func(a, b *Element) int {
		return strings.Compare(a.id.String(), b.id.String())
	})
}
