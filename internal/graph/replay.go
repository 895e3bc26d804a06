package graph

import (
	"github.com/roach88/lattice/internal/dispatch"
	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/session"
)

// replayHandlers turn built-in events back into commands against the
// store. Custom events have no handler and are relayed.
type replayHandlers struct {
	store *Store
}

func (r *replayHandlers) Capabilities() []dispatch.Capability {
	return []dispatch.Capability{
		dispatch.Handles[event.AddSchemaEntity](dispatch.Func[event.AddSchemaEntity](r.schemaEntity)),
		dispatch.Handles[event.AddSchemaRelationship](dispatch.Func[event.AddSchemaRelationship](r.schemaRelationship)),
		dispatch.Handles[event.AddSchemaProperty](dispatch.Func[event.AddSchemaProperty](r.schemaProperty)),
		dispatch.Handles[event.AddEntity](dispatch.Func[event.AddEntity](r.addEntity)),
		dispatch.Handles[event.RemoveEntity](dispatch.Func[event.RemoveEntity](r.removeEntity)),
		dispatch.Handles[event.AddRelationship](dispatch.Func[event.AddRelationship](r.addRelationship)),
		dispatch.Handles[event.RemoveRelationship](dispatch.Func[event.RemoveRelationship](r.removeRelationship)),
		dispatch.Handles[event.ChangePropertyValue](dispatch.Func[event.ChangePropertyValue](r.setProperty)),
		dispatch.Handles[event.RemoveProperty](dispatch.Func[event.RemoveProperty](r.removeProperty)),
	}
}

func (r *replayHandlers) domain(name string) (*Domain, error) {
	d, ok := r.store.GetDomainModel(name)
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownDomain, Domain: name, Message: "domain not found"}
	}
	return d, nil
}

func (r *replayHandlers) schemaEntity(name string, ev event.AddSchemaEntity) ([]session.Command, error) {
	d, err := r.domain(name)
	if err != nil {
		return nil, err
	}
	return []session.Command{&DefineSchemaCommand{Domain: d, Node: schema.Node{
		ID:    ev.ID,
		Name:  ev.ID.Key,
		Kind:  schema.KindEntity,
		Super: ev.SchemaID,
	}}}, nil
}

func (r *replayHandlers) schemaRelationship(name string, ev event.AddSchemaRelationship) ([]session.Command, error) {
	d, err := r.domain(name)
	if err != nil {
		return nil, err
	}
	return []session.Command{&DefineSchemaCommand{Domain: d, Node: schema.Node{
		ID:    ev.ID,
		Name:  ev.ID.Key,
		Kind:  schema.KindRelationship,
		Super: ev.SchemaID,
		Start: ev.StartID,
		End:   ev.EndID,
	}}}, nil
}

func (r *replayHandlers) schemaProperty(name string, ev event.AddSchemaProperty) ([]session.Command, error) {
	d, err := r.domain(name)
	if err != nil {
		return nil, err
	}
	return []session.Command{&DefinePropertyCommand{Domain: d, Owner: ev.SchemaID, Name: ev.PropertyName, Type: ev.PropertySchemaID}}, nil
}

func (r *replayHandlers) addEntity(name string, ev event.AddEntity) ([]session.Command, error) {
	d, err := r.domain(name)
	if err != nil {
		return nil, err
	}
	return []session.Command{&AddEntityCommand{Domain: d, SchemaID: ev.SchemaID, Key: ev.ID.Key}}, nil
}

func (r *replayHandlers) removeEntity(name string, ev event.RemoveEntity) ([]session.Command, error) {
	d, err := r.domain(name)
	if err != nil {
		return nil, err
	}
	return []session.Command{&RemoveEntityCommand{Domain: d, ID: ev.ID}}, nil
}

func (r *replayHandlers) addRelationship(name string, ev event.AddRelationship) ([]session.Command, error) {
	d, err := r.domain(name)
	if err != nil {
		return nil, err
	}
	return []session.Command{&AddRelationshipCommand{
		Domain:   d,
		SchemaID: ev.SchemaID,
		Start:    ev.StartID,
		End:      ev.EndID,
		Key:      ev.ID.Key,
	}}, nil
}

func (r *replayHandlers) removeRelationship(name string, ev event.RemoveRelationship) ([]session.Command, error) {
	d, err := r.domain(name)
	if err != nil {
		return nil, err
	}
	return []session.Command{&RemoveRelationshipCommand{Domain: d, ID: ev.ID}}, nil
}

func (r *replayHandlers) setProperty(name string, ev event.ChangePropertyValue) ([]session.Command, error) {
	d, err := r.domain(name)
	if err != nil {
		return nil, err
	}
	return []session.Command{&SetPropertyCommand{Domain: d, ID: ev.ElementID, Name: ev.PropertyName, Value: ev.Value}}, nil
}

func (r *replayHandlers) removeProperty(name string, ev event.RemoveProperty) ([]session.Command, error) {
	d, err := r.domain(name)
	if err != nil {
		return nil, err
	}
	return []session.Command{&RemovePropertyCommand{Domain: d, ID: ev.ElementID, Name: ev.PropertyName}}, nil
}
