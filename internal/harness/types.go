package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/lattice/internal/value"
)

// Trace entry types.
const (
	EntryEvent      = "event"
	EntrySession    = "session"
	EntryDiagnostic = "diagnostic"
	EntryValidate   = "validate"
)

// Session outcomes recorded in the trace.
const (
	StatusCommitted = "committed"
	StatusAborted   = "aborted"
)

// TraceEvent is one observation made while a scenario ran. Events are
// recorded from the post-commit channels, diagnostics from OnErrors.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`
	Step string `json:"step"`

	// event and session entries
	Session string `json:"session,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Status  string `json:"status,omitempty"`

	// event and diagnostic entries
	Element  string      `json:"element,omitempty"`
	Property string      `json:"property,omitempty"`
	Value    value.Value `json:"value,omitempty"`

	// diagnostic and validate entries
	Severity string `json:"severity,omitempty"`
	Text     string `json:"text,omitempty"`
	Category string `json:"category,omitempty"`
	Errors   int    `json:"errors,omitempty"`
	Warnings int    `json:"warnings,omitempty"`
}

// toValue converts the entry to its canonical map. Empty fields are left
// out, except the counters of a validate entry.
func (e TraceEvent) toValue() value.Map {
	m := value.Map{
		"seq":  value.Int(e.Seq),
		"type": value.String(e.Type),
		"step": value.String(e.Step),
	}
	for k, v := range map[string]string{
		"session":  e.Session,
		"kind":     e.Kind,
		"status":   e.Status,
		"element":  e.Element,
		"property": e.Property,
		"severity": e.Severity,
		"text":     e.Text,
		"category": e.Category,
	} {
		if v != "" {
			m[k] = value.String(v)
		}
	}
	if e.Value != nil {
		m["value"] = e.Value
	}
	if e.Type == EntryValidate {
		m["errors"] = value.Int(e.Errors)
		m["warnings"] = value.Int(e.Warnings)
	}
	return m
}

// String renders the entry on one line, as printed by the run command.
func (e TraceEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", e.Seq, e.Step)
	switch e.Type {
	case EntryEvent:
		fmt.Fprintf(&b, " %s %s %s", e.Session, e.Kind, e.Element)
		if e.Property != "" {
			fmt.Fprintf(&b, ".%s", e.Property)
		}
		if e.Value != nil {
			fmt.Fprintf(&b, " = %s", value.Text(e.Value))
		}
	case EntrySession:
		fmt.Fprintf(&b, " %s %s", e.Session, e.Status)
	case EntryDiagnostic:
		fmt.Fprintf(&b, " %s", e.Severity)
		if e.Category != "" {
			fmt.Fprintf(&b, " (%s)", e.Category)
		}
		fmt.Fprintf(&b, ": %s", e.Text)
	case EntryValidate:
		category := e.Category
		if category == "" {
			category = "all"
		}
		fmt.Fprintf(&b, " validate %s: %d error(s), %d warning(s)", category, e.Errors, e.Warnings)
	}
	return b.String()
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step went as expected and every assertion
	// held.
	Pass bool `json:"pass"`

	// Trace holds the observations in the order they were made.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Count returns the number of event entries of kind.
func (r *Result) Count(kind string) int {
	n := 0
	for _, e := range r.Trace {
		if e.Type == EntryEvent && e.Kind == kind {
			n++
		}
	}
	return n
}
