package diag

import (
	"fmt"
	"strings"
	"sync"
)

// Result is an ordered collection of diagnostics. The zero value is ready
// to use and safe for concurrent use.
type Result struct {
	mu       sync.Mutex
	messages []Message
	silent   bool
}

// NewResult creates a result holding msgs.
func NewResult(msgs ...Message) *Result {
	r := &Result{}
	for _, m := range msgs {
		r.Add(m)
	}
	return r
}

// Add appends a message.
func (r *Result) Add(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

// Messages returns a copy of the messages in insertion order.
func (r *Result) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Len returns the number of messages.
func (r *Result) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Empty reports whether the result holds no messages.
func (r *Result) Empty() bool {
	return r.Len() == 0
}

// HasErrors reports whether any message has error severity.
func (r *Result) HasErrors() bool {
	return r.count(SeverityError) > 0
}

// HasWarnings reports whether any message has warning severity.
func (r *Result) HasWarnings() bool {
	return r.count(SeverityWarning) > 0
}

// Errors returns the error messages.
func (r *Result) Errors() []Message {
	return r.filter(SeverityError)
}

// Warnings returns the warning messages.
func (r *Result) Warnings() []Message {
	return r.filter(SeverityWarning)
}

// Silent reports whether errors should not fail the session.
func (r *Result) Silent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.silent
}

// SetSilent marks the result silent.
func (r *Result) SetSilent(silent bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.silent = silent
}

// Merge appends other's messages after r's and accumulates silence.
// Merging a result into itself is a no-op.
func (r *Result) Merge(other *Result) {
	if other == nil || other == r {
		return
	}
	msgs := other.Messages()
	silent := other.Silent()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msgs...)
	r.silent = r.silent || silent
}

// Err returns a *ValidationError when the result has errors and is not
// silent, nil otherwise.
func (r *Result) Err() error {
	if r.Silent() || !r.HasErrors() {
		return nil
	}
	return &ValidationError{Messages: r.Errors()}
}

func (r *Result) count(sev Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Severity == sev {
			n++
		}
	}
	return n
}

func (r *Result) filter(sev Severity) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.Severity == sev {
			out = append(out, m)
		}
	}
	return out
}

// ValidationError reports the error diagnostics of a failed result.
type ValidationError struct {
	Messages []Message
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 1 {
		return "validation failed: " + e.Messages[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d error(s)", len(e.Messages))
	for _, m := range e.Messages {
		b.WriteString("\n  ")
		b.WriteString(m.String())
	}
	return b.String()
}
