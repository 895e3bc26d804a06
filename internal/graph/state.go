package graph

import (
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/value"
)

// State returns the domain's schemas and elements as a canonical map:
//
//	{"schemas": [id, ...], "elements": {id: {"schema", "properties", "start", "end"}}}
//
// Two domains holding the same data produce equal states whatever order
// the data arrived in.
func (d *Domain) State() value.Map {
	nodes := d.schemas.Schemas(d.name)
	schemas := make(value.List, len(nodes))
	for i, n := range nodes {
		schemas[i] = value.String(n.ID.String())
	}

	elements := value.Map{}
	for _, el := range d.Elements() {
		entry := value.Map{
			"schema":     value.String(el.SchemaID().String()),
			"properties": el.Properties(),
		}
		if el.Kind() == schema.KindRelationship {
			entry["start"] = value.String(el.Start().String())
			entry["end"] = value.String(el.End().String())
		}
		elements[el.ID().String()] = entry
	}
	return value.Map{"schemas": schemas, "elements": elements}
}

// StateDigest hashes State.
func (d *Domain) StateDigest() (string, error) {
	return value.Digest(value.DomainState, d.State())
}
