// Package harness runs YAML scenarios against a fresh graph store and
// records what the commit pipeline did.
//
// # Scenario Format
//
//	name: hire
//	description: "What this scenario validates"
//	models:
//	  - ../models/hr            # CUE model directories, relative to the file
//	steps:
//	  - name: hire              # one session per step
//	    actions:
//	      - {op: create, schema: Employee, key: e1}
//	      - {op: set, id: e1, property: Name, value: Ada}
//	  - name: nameless
//	    expect: aborted         # a Check rule vetoes the commit
//	    actions:
//	      - {op: create, schema: Person, key: p2}
//	  - name: audit
//	    validate: contact       # run Validate rules of a category
//	assertions:
//	  - {type: session, step: nameless, status: aborted}
//	  - {type: element, id: e1, properties: {Name: Ada}}
//
// Actions are create, remove, relate, unrelate, set, unset and raise. An
// action may name the error it is expected to fail with; the step then
// carries on. An unexpected failure rolls the step's session back.
//
// # Trace
//
// The trace lists, in order, the events each committed session replayed
// on the post-commit channels, every diagnostic broadcast on OnErrors, the
// outcome of each session and a summary of each validation pass. Session
// ids are sequential (s-1, s-2, ...) so traces compare byte for byte
// against golden files.
//
// # Assertion Types
//
//   - session: a step's session committed or aborted
//   - event_count: exactly N committed events of a kind
//   - element: an element exists (with schema and property values) or not
//   - diagnostic: a diagnostic with matching text was reported
package harness
