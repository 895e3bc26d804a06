package compiler

// Model is a compiled domain model declaration.
type Model struct {
	Domain        string            `json:"domain"`
	Entities      []EntityDef       `json:"entities"`
	Relationships []RelationshipDef `json:"relationships,omitempty"`
	Constraints   []ConstraintDef   `json:"constraints,omitempty"`
}

// EntityDef declares an entity schema.
type EntityDef struct {
	Name       string        `json:"name"`
	Extends    string        `json:"extends,omitempty"`
	Properties []PropertyDef `json:"properties,omitempty"`
}

// RelationshipDef declares a relationship schema.
type RelationshipDef struct {
	Name       string        `json:"name"`
	Extends    string        `json:"extends,omitempty"`
	Start      string        `json:"start"`
	End        string        `json:"end"`
	Properties []PropertyDef `json:"properties,omitempty"`
}

// PropertyDef declares a property. Type is one of string, int, bool, list
// or map.
type PropertyDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Rule names.
const (
	RuleRequired = "required"
	RulePattern  = "pattern"
	RuleMin      = "min"
	RuleMax      = "max"
)

// ConstraintDef declares a rule on the schema named by On.
type ConstraintDef struct {
	Name     string `json:"name"`
	On       string `json:"on"`
	Kind     string `json:"kind,omitempty"`
	Category string `json:"category,omitempty"`
	Property string `json:"property"`
	Rule     string `json:"rule"`
	Pattern  string `json:"pattern,omitempty"`
	Min      *int64 `json:"min,omitempty"`
	Max      *int64 `json:"max,omitempty"`
	Message  string `json:"message,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// schemaNames returns every entity and relationship name.
func (m *Model) schemaNames() map[string]bool {
	names := make(map[string]bool, len(m.Entities)+len(m.Relationships))
	for _, e := range m.Entities {
		names[e.Name] = true
	}
	for _, r := range m.Relationships {
		names[r.Name] = true
	}
	return names
}

// properties returns the properties visible on a schema of the model,
// following extends within the model.
func (m *Model) properties(name string) map[string]bool {
	parents := make(map[string]string)
	own := make(map[string][]PropertyDef)
	for _, e := range m.Entities {
		parents[e.Name] = e.Extends
		own[e.Name] = e.Properties
	}
	for _, r := range m.Relationships {
		parents[r.Name] = r.Extends
		own[r.Name] = r.Properties
	}

	out := make(map[string]bool)
	seen := make(map[string]bool)
	for cur := name; cur != "" && !seen[cur]; cur = parents[cur] {
		seen[cur] = true
		for _, p := range own[cur] {
			out[p.Name] = true
		}
	}
	return out
}
