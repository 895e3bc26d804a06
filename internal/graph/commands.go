package graph

import (
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/session"
	"github.com/roach88/lattice/internal/value"
)

// Commands wrap the mutation API so dispatch handlers can return them.

// DefineSchemaCommand declares an entity or relationship schema.
type DefineSchemaCommand struct {
	Domain *Domain
	Node   schema.Node
}

func (c *DefineSchemaCommand) Execute(s *session.Session) error {
	_, err := c.Domain.define(s, c.Node)
	return err
}

// DefinePropertyCommand declares a property.
type DefinePropertyCommand struct {
	Domain *Domain
	Owner  value.ID
	Name   string
	Type   value.ID
}

func (c *DefinePropertyCommand) Execute(s *session.Session) error {
	_, err := c.Domain.DefineProperty(s, c.Owner, c.Name, c.Type)
	return err
}

// AddEntityCommand creates an entity.
type AddEntityCommand struct {
	Domain   *Domain
	SchemaID value.ID
	Key      string
}

func (c *AddEntityCommand) Execute(s *session.Session) error {
	_, err := c.Domain.CreateEntity(s, c.SchemaID, c.Key)
	return err
}

// RemoveEntityCommand removes an entity.
type RemoveEntityCommand struct {
	Domain *Domain
	ID     value.ID
}

func (c *RemoveEntityCommand) Execute(s *session.Session) error {
	return c.Domain.RemoveEntity(s, c.ID)
}

// AddRelationshipCommand links two elements.
type AddRelationshipCommand struct {
	Domain     *Domain
	SchemaID   value.ID
	Start, End value.ID
	Key        string
}

func (c *AddRelationshipCommand) Execute(s *session.Session) error {
	_, err := c.Domain.CreateRelationship(s, c.SchemaID, c.Start, c.End, c.Key)
	return err
}

// RemoveRelationshipCommand removes a relationship.
type RemoveRelationshipCommand struct {
	Domain *Domain
	ID     value.ID
}

func (c *RemoveRelationshipCommand) Execute(s *session.Session) error {
	return c.Domain.RemoveRelationship(s, c.ID)
}

// SetPropertyCommand assigns a property value.
type SetPropertyCommand struct {
	Domain *Domain
	ID     value.ID
	Name   string
	Value  value.Value
}

func (c *SetPropertyCommand) Execute(s *session.Session) error {
	return c.Domain.SetProperty(s, c.ID, c.Name, c.Value)
}

// RemovePropertyCommand clears a property value.
type RemovePropertyCommand struct {
	Domain *Domain
	ID     value.ID
	Name   string
}

func (c *RemovePropertyCommand) Execute(s *session.Session) error {
	return c.Domain.RemoveProperty(s, c.ID, c.Name)
}
