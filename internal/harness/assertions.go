package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/lattice/internal/value"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, describe(ev))
		}
	}
	return buf.String()
}

func describe(e TraceEvent) string {
	switch e.Type {
	case EntryEvent:
		s := fmt.Sprintf("%s %s %s", e.Session, e.Kind, e.Element)
		if e.Property != "" {
			s += "." + e.Property
		}
		if e.Value != nil {
			s += " = " + value.Text(e.Value)
		}
		return s
	case EntrySession:
		return fmt.Sprintf("%s %s (%s)", e.Session, e.Status, e.Step)
	case EntryDiagnostic:
		return fmt.Sprintf("%s: %s", e.Severity, e.Text)
	default:
		return fmt.Sprintf("validate %q: %d error(s), %d warning(s)", e.Category, e.Errors, e.Warnings)
	}
}

// evaluate checks every assertion and returns the failure messages.
func (h *Harness) evaluate(assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertSession:
			err = assertSession(h.result.Trace, a)
		case AssertEventCount:
			err = assertEventCount(h.result, a)
		case AssertElement:
			err = h.assertElement(a)
		case AssertDiagnostic:
			err = assertDiagnostic(h.result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func assertSession(trace []TraceEvent, a Assertion) error {
	for _, e := range trace {
		if e.Type == EntrySession && e.Step == a.Step {
			if e.Status == a.Status {
				return nil
			}
			return &AssertionError{
				Type:     AssertSession,
				Expected: fmt.Sprintf("step %q %s", a.Step, a.Status),
				Actual:   e.Status,
				Trace:    trace,
			}
		}
	}
	return &AssertionError{
		Type:     AssertSession,
		Expected: fmt.Sprintf("step %q %s", a.Step, a.Status),
		Actual:   "no session recorded for step",
		Trace:    trace,
	}
}

func assertEventCount(r *Result, a Assertion) error {
	if got := r.Count(a.Kind); got != *a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d committed %s event(s)", *a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d", got),
			Trace:    r.Trace,
		}
	}
	return nil
}

func (h *Harness) assertElement(a Assertion) error {
	name := a.Domain
	if name == "" {
		name = h.domain
	}
	fail := func(expected, actual string) error {
		return &AssertionError{Type: AssertElement, Expected: expected, Actual: actual}
	}

	d, ok := h.store.GetDomainModel(name)
	if !ok {
		return fail(fmt.Sprintf("domain %q", name), "unknown domain")
	}
	id := value.NewID(d.Name(), a.ID)
	if strings.Contains(a.ID, ":") {
		parsed, err := value.ParseID(a.ID)
		if err != nil {
			return fail("valid element id", err.Error())
		}
		id = parsed
	}

	el, exists := d.Get(id)
	if a.Absent {
		if exists {
			return fail(fmt.Sprintf("%s absent", id), "element exists")
		}
		return nil
	}
	if !exists {
		return fail(fmt.Sprintf("%s exists", id), "element not found")
	}

	if a.Schema != "" {
		want, ok := d.Schema(a.Schema)
		if !ok || el.SchemaID() != want {
			return fail(fmt.Sprintf("%s of schema %s", id, a.Schema), el.SchemaID().String())
		}
	}
	for name, raw := range a.Properties {
		want, err := value.Of(raw)
		if err != nil {
			return fail(fmt.Sprintf("%s.%s", id, name), err.Error())
		}
		got, ok := el.PropertyValue(name)
		if !ok {
			got = value.Null{}
		}
		if !value.Equal(got, want) {
			return fail(
				fmt.Sprintf("%s.%s = %s", id, name, value.Text(want)),
				value.Text(got),
			)
		}
	}
	return nil
}

func assertDiagnostic(trace []TraceEvent, a Assertion) error {
	for _, e := range trace {
		if e.Type != EntryDiagnostic || !strings.Contains(e.Text, a.Text) {
			continue
		}
		if a.Severity != "" && !strings.EqualFold(e.Severity, a.Severity) {
			continue
		}
		if a.Element != "" && e.Element != a.Element && !strings.HasSuffix(e.Element, ":"+a.Element) {
			continue
		}
		return nil
	}
	expected := fmt.Sprintf("diagnostic containing %q", a.Text)
	if a.Severity != "" {
		expected = a.Severity + " " + expected
	}
	return &AssertionError{
		Type:     AssertDiagnostic,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}
