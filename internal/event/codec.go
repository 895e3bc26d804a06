package event

import (
	"fmt"

	"github.com/roach88/lattice/internal/value"
)

// Payloader lets custom event types supply their encoded payload.
type Payloader interface {
	Payload() value.Map
}

// Envelope converts ev into its canonical map form:
//
//	{"header": {...}, "kind": "AddEntity", "payload": {...}}
func Envelope(ev Event) (value.Map, error) {
	payload, err := payloadOf(ev)
	if err != nil {
		return nil, err
	}
	h := ev.Meta()
	return value.Map{
		"kind": value.String(ev.Kind()),
		"header": value.Map{
			"domain_model":   value.String(h.DomainModel),
			"extension_name": value.String(h.ExtensionName),
			"version":        value.Int(h.Version),
			"correlation_id": value.String(h.CorrelationID),
			"top_level":      value.Bool(h.TopLevel),
		},
		"payload": payload,
	}, nil
}

// Encode returns the canonical JSON encoding of ev.
func Encode(ev Event) ([]byte, error) {
	env, err := Envelope(ev)
	if err != nil {
		return nil, err
	}
	return value.MarshalCanonical(env)
}

// Decode parses data produced by Encode. Unknown kinds decode as Raised so
// custom events survive a round trip through the journal.
func Decode(data []byte) (Event, error) {
	v, err := value.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	env, ok := v.(value.Map)
	if !ok {
		return nil, fmt.Errorf("decode event: expected object, got %T", v)
	}
	return FromEnvelope(env)
}

// FromEnvelope rebuilds an event from the map produced by Envelope.
func FromEnvelope(env value.Map) (Event, error) {
	r := reader{m: env}
	kind := Kind(r.str("kind"))
	hm := reader{m: r.obj("header")}
	h := Header{
		DomainModel:   hm.str("domain_model"),
		ExtensionName: hm.str("extension_name"),
		Version:       hm.int("version"),
		CorrelationID: hm.str("correlation_id"),
		TopLevel:      hm.bool("top_level"),
	}
	p := reader{m: r.obj("payload")}
	if r.err != nil || hm.err != nil {
		return nil, fmt.Errorf("decode %s event: %w", kind, firstErr(r.err, hm.err))
	}

	var (
		ev  Event
		err error
	)
	switch kind {
	case KindAddEntity:
		ev, err = NewAddEntity(h, p.id("id"), p.id("schema_id"))
	case KindRemoveEntity:
		ev, err = NewRemoveEntity(h, p.id("id"), p.id("schema_id"))
	case KindAddRelationship:
		ev, err = NewAddRelationship(h, p.link())
	case KindRemoveRelationship:
		ev, err = NewRemoveRelationship(h, p.link())
	case KindChangePropertyValue:
		ev, err = NewChangePropertyValue(h, p.propertyRef(), p.val("value"), p.val("old_value"))
	case KindRemoveProperty:
		ev, err = NewRemoveProperty(h, p.propertyRef(), p.val("old_value"))
	case KindAddSchemaEntity:
		ev, err = NewAddSchemaEntity(h, p.id("id"), p.id("schema_id"))
	case KindAddSchemaRelationship:
		ev, err = NewAddSchemaRelationship(h, p.link())
	case KindAddSchemaProperty:
		ev, err = NewAddSchemaProperty(h, p.id("id"), p.id("schema_id"), p.str("property_name"), p.id("property_schema_id"))
	default:
		data, _ := p.m["data"].(value.Map)
		if data == nil {
			data = p.m
		}
		ev, err = NewRaised(h, string(kind), data)
	}
	if p.err != nil {
		return nil, fmt.Errorf("decode %s event: %w", kind, p.err)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func payloadOf(ev Event) (value.Map, error) {
	switch e := ev.(type) {
	case AddEntity:
		return idPayload(e.ID, e.SchemaID), nil
	case RemoveEntity:
		return idPayload(e.ID, e.SchemaID), nil
	case AddRelationship:
		return linkPayload(e.Link), nil
	case RemoveRelationship:
		return linkPayload(e.Link), nil
	case AddSchemaRelationship:
		return linkPayload(e.Link), nil
	case AddSchemaEntity:
		return idPayload(e.ID, e.SchemaID), nil
	case ChangePropertyValue:
		m := propertyPayload(e.PropertyRef)
		m["value"] = e.Value
		m["old_value"] = e.OldValue
		return m, nil
	case RemoveProperty:
		m := propertyPayload(e.PropertyRef)
		m["old_value"] = e.OldValue
		return m, nil
	case AddSchemaProperty:
		m := idPayload(e.ID, e.SchemaID)
		m["property_name"] = value.String(e.PropertyName)
		m["property_schema_id"] = value.String(e.PropertySchemaID.String())
		return m, nil
	case Raised:
		data := e.Data
		if data == nil {
			data = value.Map{}
		}
		return value.Map{"data": data}, nil
	case Payloader:
		return e.Payload(), nil
	default:
		return nil, fmt.Errorf("encode event: kind %s has no payload encoding", ev.Kind())
	}
}

func idPayload(id, schemaID value.ID) value.Map {
	return value.Map{
		"id":        value.String(id.String()),
		"schema_id": value.String(schemaID.String()),
	}
}

func linkPayload(l Link) value.Map {
	return value.Map{
		"id":              value.String(l.ID.String()),
		"schema_id":       value.String(l.SchemaID.String()),
		"start_id":        value.String(l.StartID.String()),
		"start_schema_id": value.String(l.StartSchemaID.String()),
		"end_id":          value.String(l.EndID.String()),
		"end_schema_id":   value.String(l.EndSchemaID.String()),
	}
}

func propertyPayload(p PropertyRef) value.Map {
	return value.Map{
		"element_id":         value.String(p.ElementID.String()),
		"schema_id":          value.String(p.SchemaID.String()),
		"property_schema_id": value.String(p.PropertySchemaID.String()),
		"property_name":      value.String(p.PropertyName),
	}
}

// reader pulls typed fields out of a map and remembers the first error.
type reader struct {
	m   value.Map
	err error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *reader) str(key string) string {
	switch v := r.m[key].(type) {
	case nil, value.Null:
		return ""
	case value.String:
		return string(v)
	default:
		r.fail("field %q: expected string, got %T", key, v)
		return ""
	}
}

func (r *reader) int(key string) int64 {
	switch v := r.m[key].(type) {
	case nil:
		return 0
	case value.Int:
		return int64(v)
	default:
		r.fail("field %q: expected int, got %T", key, v)
		return 0
	}
}

func (r *reader) bool(key string) bool {
	switch v := r.m[key].(type) {
	case nil:
		return false
	case value.Bool:
		return bool(v)
	default:
		r.fail("field %q: expected bool, got %T", key, v)
		return false
	}
}

func (r *reader) obj(key string) value.Map {
	switch v := r.m[key].(type) {
	case nil:
		return value.Map{}
	case value.Map:
		return v
	default:
		r.fail("field %q: expected object, got %T", key, v)
		return value.Map{}
	}
}

func (r *reader) val(key string) value.Value {
	if v, ok := r.m[key]; ok {
		return v
	}
	return value.Null{}
}

func (r *reader) id(key string) value.ID {
	s := r.str(key)
	if s == "" {
		return value.ID{}
	}
	id, err := value.ParseID(s)
	if err != nil {
		r.fail("field %q: %v", key, err)
	}
	return id
}

func (r *reader) link() Link {
	return Link{
		ID:            r.id("id"),
		SchemaID:      r.id("schema_id"),
		StartID:       r.id("start_id"),
		StartSchemaID: r.id("start_schema_id"),
		EndID:         r.id("end_id"),
		EndSchemaID:   r.id("end_schema_id"),
	}
}

func (r *reader) propertyRef() PropertyRef {
	return PropertyRef{
		ElementID:        r.id("element_id"),
		SchemaID:         r.id("schema_id"),
		PropertySchemaID: r.id("property_schema_id"),
		PropertyName:     r.str("property_name"),
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
