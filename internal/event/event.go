package event

import (
	"github.com/roach88/lattice/internal/value"
)

// Kind names an event variant. Built-in kinds are listed below; custom
// events pick their own, distinct names.
type Kind string

const (
	KindAddEntity             Kind = "AddEntity"
	KindRemoveEntity          Kind = "RemoveEntity"
	KindAddRelationship       Kind = "AddRelationship"
	KindRemoveRelationship    Kind = "RemoveRelationship"
	KindChangePropertyValue   Kind = "ChangePropertyValue"
	KindRemoveProperty        Kind = "RemoveProperty"
	KindAddSchemaEntity       Kind = "AddSchemaEntity"
	KindAddSchemaRelationship Kind = "AddSchemaRelationship"
	KindAddSchemaProperty     Kind = "AddSchemaProperty"
)

// Header carries the fields common to every event.
type Header struct {
	// DomainModel names the owning domain.
	DomainModel string
	// ExtensionName identifies an overlay domain; empty for the base domain.
	ExtensionName string
	// Version is the sequence number assigned by the owning session.
	Version int64
	// CorrelationID is the id of the session that produced the event.
	CorrelationID string
	// TopLevel is false when the event is a side effect of handling another.
	TopLevel bool
}

// Meta returns the header. Embedding Header gives events this method.
func (h Header) Meta() Header { return h }

// Event is one recorded state change.
//
// WithMeta returns a copy of the event carrying h. Sessions use it to stamp
// versions; the receiver is never modified.
type Event interface {
	Meta() Header
	Kind() Kind
	WithMeta(h Header) Event
}

// Reversible is implemented by events that can produce their inverse.
type Reversible interface {
	Event
	Reverse(correlationID string) Event
}

// BelongsTo reports whether ev targets the given domain and extension.
func BelongsTo(ev Event, domain, extension string) bool {
	h := ev.Meta()
	return h.DomainModel == domain && h.ExtensionName == extension
}

// reverseHeader builds the header of an inverse event.
func reverseHeader(h Header, correlationID string) Header {
	return Header{
		DomainModel:   h.DomainModel,
		ExtensionName: h.ExtensionName,
		CorrelationID: correlationID,
		TopLevel:      true,
	}
}

// AddEntity records the creation of an entity.
type AddEntity struct {
	Header
	ID       value.ID
	SchemaID value.ID
}

// NewAddEntity validates and builds an AddEntity event.
func NewAddEntity(h Header, id, schemaID value.ID) (AddEntity, error) {
	ev := AddEntity{Header: h, ID: id, SchemaID: schemaID}
	return ev, validate(KindAddEntity, h,
		field{"id", id}, field{"schema_id", schemaID})
}

func (AddEntity) Kind() Kind                { return KindAddEntity }
func (e AddEntity) WithMeta(h Header) Event { e.Header = h; return e }

// Reverse returns the RemoveEntity that undoes e.
func (e AddEntity) Reverse(correlationID string) Event {
	return RemoveEntity{Header: reverseHeader(e.Header, correlationID), ID: e.ID, SchemaID: e.SchemaID}
}

// RemoveEntity records the removal of an entity.
type RemoveEntity struct {
	Header
	ID       value.ID
	SchemaID value.ID
}

// NewRemoveEntity validates and builds a RemoveEntity event.
func NewRemoveEntity(h Header, id, schemaID value.ID) (RemoveEntity, error) {
	ev := RemoveEntity{Header: h, ID: id, SchemaID: schemaID}
	return ev, validate(KindRemoveEntity, h,
		field{"id", id}, field{"schema_id", schemaID})
}

func (RemoveEntity) Kind() Kind                { return KindRemoveEntity }
func (e RemoveEntity) WithMeta(h Header) Event { e.Header = h; return e }

// Reverse returns the AddEntity that undoes e.
func (e RemoveEntity) Reverse(correlationID string) Event {
	return AddEntity{Header: reverseHeader(e.Header, correlationID), ID: e.ID, SchemaID: e.SchemaID}
}

// Link holds the identities shared by relationship events.
type Link struct {
	ID            value.ID
	SchemaID      value.ID
	StartID       value.ID
	StartSchemaID value.ID
	EndID         value.ID
	EndSchemaID   value.ID
}

func (l Link) fields() []field {
	return []field{
		{"id", l.ID},
		{"schema_id", l.SchemaID},
		{"start_id", l.StartID},
		{"start_schema_id", l.StartSchemaID},
		{"end_id", l.EndID},
		{"end_schema_id", l.EndSchemaID},
	}
}

// AddRelationship records the creation of a relationship.
type AddRelationship struct {
	Header
	Link
}

// NewAddRelationship validates and builds an AddRelationship event.
func NewAddRelationship(h Header, l Link) (AddRelationship, error) {
	return AddRelationship{Header: h, Link: l}, validate(KindAddRelationship, h, l.fields()...)
}

func (AddRelationship) Kind() Kind                { return KindAddRelationship }
func (e AddRelationship) WithMeta(h Header) Event { e.Header = h; return e }

// Reverse returns the RemoveRelationship that undoes e.
func (e AddRelationship) Reverse(correlationID string) Event {
	return RemoveRelationship{Header: reverseHeader(e.Header, correlationID), Link: e.Link}
}

// RemoveRelationship records the removal of a relationship.
type RemoveRelationship struct {
	Header
	Link
}

// NewRemoveRelationship validates and builds a RemoveRelationship event.
func NewRemoveRelationship(h Header, l Link) (RemoveRelationship, error) {
	return RemoveRelationship{Header: h, Link: l}, validate(KindRemoveRelationship, h, l.fields()...)
}

func (RemoveRelationship) Kind() Kind                { return KindRemoveRelationship }
func (e RemoveRelationship) WithMeta(h Header) Event { e.Header = h; return e }

// Reverse returns the AddRelationship that undoes e.
func (e RemoveRelationship) Reverse(correlationID string) Event {
	return AddRelationship{Header: reverseHeader(e.Header, correlationID), Link: e.Link}
}

// PropertyRef identifies one property of one element.
type PropertyRef struct {
	ElementID        value.ID
	SchemaID         value.ID
	PropertySchemaID value.ID
	PropertyName     string
}

func (p PropertyRef) fields() []field {
	return []field{
		{"element_id", p.ElementID},
		{"schema_id", p.SchemaID},
		{"property_schema_id", p.PropertySchemaID},
		{"property_name", p.PropertyName},
	}
}

// ChangePropertyValue records a property assignment.
type ChangePropertyValue struct {
	Header
	PropertyRef
	Value    value.Value
	OldValue value.Value
}

// NewChangePropertyValue validates and builds a ChangePropertyValue event.
// Nil values are normalized to value.Null.
func NewChangePropertyValue(h Header, p PropertyRef, newValue, oldValue value.Value) (ChangePropertyValue, error) {
	ev := ChangePropertyValue{Header: h, PropertyRef: p, Value: orNull(newValue), OldValue: orNull(oldValue)}
	return ev, validate(KindChangePropertyValue, h, p.fields()...)
}

func (ChangePropertyValue) Kind() Kind                { return KindChangePropertyValue }
func (e ChangePropertyValue) WithMeta(h Header) Event { e.Header = h; return e }

// Unchanged reports whether the assignment leaves the value as it was.
func (e ChangePropertyValue) Unchanged() bool {
	return value.Equal(e.Value, e.OldValue)
}

// Reverse swaps Value and OldValue.
func (e ChangePropertyValue) Reverse(correlationID string) Event {
	return ChangePropertyValue{
		Header:      reverseHeader(e.Header, correlationID),
		PropertyRef: e.PropertyRef,
		Value:       e.OldValue,
		OldValue:    e.Value,
	}
}

// RemoveProperty records that a property value was cleared.
type RemoveProperty struct {
	Header
	PropertyRef
	OldValue value.Value
}

// NewRemoveProperty validates and builds a RemoveProperty event.
func NewRemoveProperty(h Header, p PropertyRef, oldValue value.Value) (RemoveProperty, error) {
	ev := RemoveProperty{Header: h, PropertyRef: p, OldValue: orNull(oldValue)}
	return ev, validate(KindRemoveProperty, h, p.fields()...)
}

func (RemoveProperty) Kind() Kind                { return KindRemoveProperty }
func (e RemoveProperty) WithMeta(h Header) Event { e.Header = h; return e }

// Reverse restores the removed value.
func (e RemoveProperty) Reverse(correlationID string) Event {
	return ChangePropertyValue{
		Header:      reverseHeader(e.Header, correlationID),
		PropertyRef: e.PropertyRef,
		Value:       e.OldValue,
		OldValue:    value.Null{},
	}
}

// AddSchemaEntity records a new entity schema. Not reversible: the
// metamodel is immutable once committed.
type AddSchemaEntity struct {
	Header
	ID       value.ID
	SchemaID value.ID
}

// NewAddSchemaEntity validates and builds an AddSchemaEntity event.
func NewAddSchemaEntity(h Header, id, schemaID value.ID) (AddSchemaEntity, error) {
	ev := AddSchemaEntity{Header: h, ID: id, SchemaID: schemaID}
	return ev, validate(KindAddSchemaEntity, h, field{"id", id}, field{"schema_id", schemaID})
}

func (AddSchemaEntity) Kind() Kind                { return KindAddSchemaEntity }
func (e AddSchemaEntity) WithMeta(h Header) Event { e.Header = h; return e }

// AddSchemaRelationship records a new relationship schema.
type AddSchemaRelationship struct {
	Header
	Link
}

// NewAddSchemaRelationship validates and builds an AddSchemaRelationship event.
func NewAddSchemaRelationship(h Header, l Link) (AddSchemaRelationship, error) {
	return AddSchemaRelationship{Header: h, Link: l}, validate(KindAddSchemaRelationship, h, l.fields()...)
}

func (AddSchemaRelationship) Kind() Kind                { return KindAddSchemaRelationship }
func (e AddSchemaRelationship) WithMeta(h Header) Event { e.Header = h; return e }

// AddSchemaProperty records a property added to a schema.
type AddSchemaProperty struct {
	Header
	ID               value.ID
	SchemaID         value.ID
	PropertyName     string
	PropertySchemaID value.ID
}

// NewAddSchemaProperty validates and builds an AddSchemaProperty event.
func NewAddSchemaProperty(h Header, id, schemaID value.ID, name string, propertySchemaID value.ID) (AddSchemaProperty, error) {
	ev := AddSchemaProperty{Header: h, ID: id, SchemaID: schemaID, PropertyName: name, PropertySchemaID: propertySchemaID}
	return ev, validate(KindAddSchemaProperty, h,
		field{"id", id}, field{"schema_id", schemaID},
		field{"property_name", name}, field{"property_schema_id", propertySchemaID})
}

func (AddSchemaProperty) Kind() Kind                { return KindAddSchemaProperty }
func (e AddSchemaProperty) WithMeta(h Header) Event { e.Header = h; return e }

// Raised is a free-form event for notifications that have no built-in kind.
// The Event Manager routes it to the custom channel.
type Raised struct {
	Header
	Name string
	Data value.Map
}

// NewRaised validates and builds a custom event. Name becomes its Kind.
func NewRaised(h Header, name string, data value.Map) (Raised, error) {
	if IsBuiltin(Kind(name)) {
		return Raised{}, &InvalidEventError{Code: ErrCodeReservedKind, Kind: Kind(name), Field: "name"}
	}
	return Raised{Header: h, Name: name, Data: data}, validate(Kind(name), h, field{"name", name})
}

func (e Raised) Kind() Kind              { return Kind(e.Name) }
func (e Raised) WithMeta(h Header) Event { e.Header = h; return e }

func orNull(v value.Value) value.Value {
	if v == nil {
		return value.Null{}
	}
	return v
}
