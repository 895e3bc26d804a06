package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run against a fresh store. Models are installed
// first, then each step runs in its own session, then assertions are
// checked against the trace and the final state.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden traces are named
	// after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Models lists CUE model directories, relative to the scenario file.
	Models []string `yaml:"models"`

	// Domain is the default domain of actions. Defaults to the domain of
	// the first model.
	Domain string `yaml:"domain,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is either a session of actions or a validation pass.
type Step struct {
	Name string `yaml:"name"`

	// Actions run in one session, committed at the end of the step.
	Actions []Action `yaml:"actions,omitempty"`

	// Rollback discards the session instead of committing it.
	Rollback bool `yaml:"rollback,omitempty"`

	// Expect is the expected session outcome: committed (default) or
	// aborted.
	Expect string `yaml:"expect,omitempty"`

	// Validate, when set, runs the Validate rules of every domain with
	// this category instead of a session. "" validates every category.
	Validate *string `yaml:"validate,omitempty"`
}

// Action is one mutation inside a step.
type Action struct {
	// Op is one of create, remove, relate, unrelate, set, unset, raise.
	Op string `yaml:"op"`

	// Domain overrides the scenario's default domain.
	Domain string `yaml:"domain,omitempty"`

	// Schema names the entity or relationship schema (create, relate).
	Schema string `yaml:"schema,omitempty"`
	// Key is the key of the new element (create, relate).
	Key string `yaml:"key,omitempty"`
	// ID is the key or domain:key of an existing element.
	ID string `yaml:"id,omitempty"`
	// Start and End are relationship endpoints (relate).
	Start string `yaml:"start,omitempty"`
	End   string `yaml:"end,omitempty"`

	Property string `yaml:"property,omitempty"`
	Value    any    `yaml:"value,omitempty"`

	// Event and Data describe a custom event (raise).
	Event string         `yaml:"event,omitempty"`
	Data  map[string]any `yaml:"data,omitempty"`

	// Error, when set, is a substring the action's error must contain.
	// The step continues after an expected error.
	Error string `yaml:"error,omitempty"`
}

// Action operations.
const (
	OpCreate   = "create"
	OpRemove   = "remove"
	OpRelate   = "relate"
	OpUnrelate = "unrelate"
	OpSet      = "set"
	OpUnset    = "unset"
	OpRaise    = "raise"
)

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of session, event_count, element, diagnostic.
	Type string `yaml:"type"`

	// Step and Status check a step's outcome (session).
	Step   string `yaml:"step,omitempty"`
	Status string `yaml:"status,omitempty"`

	// Kind and Count check how many events of a kind were committed
	// (event_count).
	Kind  string `yaml:"kind,omitempty"`
	Count *int   `yaml:"count,omitempty"`

	// Element checks: ID names the element, Schema its schema, Properties
	// a subset of its values. Absent asserts it does not exist.
	Domain     string         `yaml:"domain,omitempty"`
	ID         string         `yaml:"id,omitempty"`
	Schema     string         `yaml:"schema,omitempty"`
	Properties map[string]any `yaml:"properties,omitempty"`
	Absent     bool           `yaml:"absent,omitempty"`

	// Diagnostic checks: Severity and Text (a substring) must match one
	// recorded diagnostic. Element optionally narrows the match.
	Severity string `yaml:"severity,omitempty"`
	Text     string `yaml:"text,omitempty"`
	Element  string `yaml:"element,omitempty"`
}

// Assertion type constants.
const (
	AssertSession    = "session"
	AssertEventCount = "event_count"
	AssertElement    = "element"
	AssertDiagnostic = "diagnostic"
)

// LoadScenario reads and parses a scenario YAML file. Model paths are
// resolved relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving model paths against
// basePath.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, dir := range scenario.Models {
		if !filepath.IsAbs(dir) && basePath != "" {
			scenario.Models[i] = filepath.Join(basePath, dir)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Models) == 0 {
		return fmt.Errorf("models list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, dir := range s.Models {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("model directory not found: %s", dir)
		}
	}

	names := make(map[string]bool)
	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if names[step.Name] {
			return fmt.Errorf("steps[%d]: duplicate step name %q", i, step.Name)
		}
		names[step.Name] = true

		if step.Validate != nil {
			if len(step.Actions) > 0 || step.Rollback || step.Expect != "" {
				return fmt.Errorf("steps[%d]: validate steps take no actions", i)
			}
			continue
		}
		if len(step.Actions) == 0 {
			return fmt.Errorf("steps[%d]: actions or validate is required", i)
		}
		switch step.Expect {
		case "", StatusCommitted, StatusAborted:
		default:
			return fmt.Errorf("steps[%d]: expect must be %s or %s, got %q", i, StatusCommitted, StatusAborted, step.Expect)
		}
		for j, a := range step.Actions {
			if err := validateAction(a); err != nil {
				return fmt.Errorf("steps[%d].actions[%d]: %w", i, j, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, names); err != nil {
			return err
		}
	}
	return nil
}

func validateAction(a Action) error {
	require := func(field, v string) error {
		if v == "" {
			return fmt.Errorf("%s is required for %s", field, a.Op)
		}
		return nil
	}
	switch a.Op {
	case OpCreate:
		if err := require("schema", a.Schema); err != nil {
			return err
		}
		return require("key", a.Key)
	case OpRelate:
		for _, f := range []struct{ name, v string }{
			{"schema", a.Schema}, {"key", a.Key}, {"start", a.Start}, {"end", a.End},
		} {
			if err := require(f.name, f.v); err != nil {
				return err
			}
		}
		return nil
	case OpRemove, OpUnrelate:
		return require("id", a.ID)
	case OpSet, OpUnset:
		if err := require("id", a.ID); err != nil {
			return err
		}
		return require("property", a.Property)
	case OpRaise:
		return require("event", a.Event)
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", a.Op)
	}
}

func validateAssertion(index int, a *Assertion, steps map[string]bool) error {
	switch a.Type {
	case AssertSession:
		if !steps[a.Step] {
			return fmt.Errorf("assertions[%d]: unknown step %q", index, a.Step)
		}
		if a.Status != StatusCommitted && a.Status != StatusAborted {
			return fmt.Errorf("assertions[%d]: status must be %s or %s", index, StatusCommitted, StatusAborted)
		}
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for event_count", index)
		}
	case AssertElement:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for element", index)
		}
		if a.Absent && (a.Schema != "" || len(a.Properties) > 0) {
			return fmt.Errorf("assertions[%d]: absent elements have no schema or properties", index)
		}
	case AssertDiagnostic:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for diagnostic", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
