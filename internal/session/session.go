// Package session implements the unit of work that owns an ordered event
// log, a cancellation signal and a commit/abort outcome.
//
// A session moves through an explicit state machine:
//
//	Open -> Committing -> Closed
//	Open -> Aborting   -> Closed
//
// Mutations and pre-notifications happen while Open. Prepare hooks run
// while Committing and may veto the commit, which turns it into an abort.
// Complete hooks run exactly once on the way to Closed; they observe the
// final outcome through Aborted.
//
// The active session is never process-global: it travels in a
// context.Context (see FromContext) or is passed explicitly.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/lattice/internal/diag"
	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/value"
)

// State is a session lifecycle state.
type State int

const (
	StateOpen State = iota
	StateCommitting
	StateAborting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCommitting:
		return "committing"
	case StateAborting:
		return "aborting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Command is a unit of work executed against a session, typically
// produced by a dispatch handler.
type Command interface {
	Execute(s *Session) error
}

// CommandFunc adapts a function to Command.
type CommandFunc func(s *Session) error

// Execute calls f(s).
func (f CommandFunc) Execute(s *Session) error { return f(s) }

// Session is one unit of work. Methods are safe for concurrent use, but
// the pipeline drives a session from one goroutine at a time.
type Session struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	clock    *Clock
	readOnly bool

	mu      sync.Mutex
	state   State
	aborted bool
	depth   int
	events  []event.Event
	touched map[value.ID]int
	order   []value.ID
	prepare []func(*Session) error
	done    []func(*Session)

	diagnostics *diag.Result
}

// ID returns the session id. Events recorded here carry it as their
// correlation id.
func (s *Session) ID() string { return s.id }

// Context returns the session's context. It carries the session (see
// FromContext) and its Done channel is the cancellation signal.
func (s *Session) Context() context.Context { return s.ctx }

// Cancelled reports whether cancellation was requested.
func (s *Session) Cancelled() bool { return s.ctx.Err() != nil }

// ReadOnly reports whether the session rejects mutations.
func (s *Session) ReadOnly() bool { return s.readOnly }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Aborted reports whether the session is (or will be) rolled back.
func (s *Session) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Disposing reports whether the session has left the Open state.
func (s *Session) Disposing() bool {
	return s.State() != StateOpen
}

// Abort marks the session for rollback. The outcome is applied on Close.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
}

// Header builds the header for a new event of domain, stamping the next
// version. Events built while a command runs are not top level.
func (s *Session) Header(domain, extension string) event.Header {
	s.mu.Lock()
	depth := s.depth
	s.mu.Unlock()
	return event.Header{
		DomainModel:   domain,
		ExtensionName: extension,
		Version:       s.clock.Next(),
		CorrelationID: s.id,
		TopLevel:      depth == 0,
	}
}

// Append records ev in the event log. Events without a version are
// stamped. Appending is allowed while Open or Committing; dispatch may add
// follow-up events during commit.
func (s *Session) Append(ev event.Event) (event.Event, error) {
	if s.readOnly {
		return nil, s.err(ErrCodeReadOnly, "cannot record events", nil)
	}
	if h := ev.Meta(); h.Version == 0 {
		h.Version = s.clock.Next()
		ev = ev.WithMeta(h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen && s.state != StateCommitting {
		return nil, s.err(ErrCodeClosed, "cannot record events in state "+s.state.String(), nil)
	}
	s.events = append(s.events, ev)
	return ev, nil
}

// Events returns the event log in recording order.
func (s *Session) Events() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

// EventsFor returns the events of one domain and extension.
func (s *Session) EventsFor(domain, extension string) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, ev := range s.events {
		if event.BelongsTo(ev, domain, extension) {
			out = append(out, ev)
		}
	}
	return out
}

// Touch records that an element changed during the session.
func (s *Session) Touch(id value.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.touched[id]; ok {
		return
	}
	s.touched[id] = len(s.order)
	s.order = append(s.order, id)
}

// IsTouched reports whether id changed during the session.
func (s *Session) IsTouched(id value.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.touched[id]
	return ok
}

// TouchedElements returns the changed elements in first-touch order.
func (s *Session) TouchedElements() []value.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]value.ID, len(s.order))
	copy(out, s.order)
	return out
}

// Execute runs commands in order and stops at the first failure.
func (s *Session) Execute(commands ...Command) error {
	if s.State() == StateClosed {
		return s.err(ErrCodeClosed, "cannot execute commands", nil)
	}
	s.mu.Lock()
	s.depth++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.depth--
		s.mu.Unlock()
	}()

	for i, cmd := range commands {
		if err := cmd.Execute(s); err != nil {
			return s.err(ErrCodeCommand, fmt.Sprintf("command %d of %d (%T)", i+1, len(commands), cmd), err)
		}
	}
	return nil
}

// Log records a diagnostic against the session.
func (s *Session) Log(m diag.Message) {
	s.diagnostics.Add(m)
	attrs := []any{"session", s.id, "severity", m.Severity.String(), "text", m.Text}
	if !m.Element.IsZero() {
		attrs = append(attrs, "element", m.Element.String())
	}
	if m.Cause != nil {
		attrs = append(attrs, "cause", m.Cause)
	}
	if m.Severity == diag.SeverityError {
		slog.Error("session diagnostic", attrs...)
	} else {
		slog.Warn("session diagnostic", attrs...)
	}
}

// Diagnostics returns the session-scoped result.
func (s *Session) Diagnostics() *diag.Result { return s.diagnostics }

// OnPrepare registers a hook run while committing. A hook error aborts the
// session and is returned from Commit.
func (s *Session) OnPrepare(fn func(*Session) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepare = append(s.prepare, fn)
}

// OnComplete registers a hook run once when the session closes, after the
// outcome is decided.
func (s *Session) OnComplete(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = append(s.done, fn)
}

// Commit closes the session, keeping its changes unless it was aborted or
// a prepare hook fails.
func (s *Session) Commit() error {
	return s.close(true)
}

// Rollback aborts and closes the session.
func (s *Session) Rollback() error {
	s.Abort()
	return s.close(false)
}

// Close rolls back a session that was neither committed nor rolled back.
// It is a no-op on a closed session, so it can be deferred.
func (s *Session) Close() error {
	if s.State() == StateClosed {
		return nil
	}
	return s.Rollback()
}

func (s *Session) close(commit bool) error {
	s.mu.Lock()
	if s.state != StateOpen {
		state := s.state
		s.mu.Unlock()
		return s.err(ErrCodeClosed, "already "+state.String(), nil)
	}
	if s.aborted || !commit {
		s.aborted = true
		s.state = StateAborting
	} else {
		s.state = StateCommitting
	}
	prepare := append([]func(*Session) error(nil), s.prepare...)
	s.mu.Unlock()

	var result error
	if s.State() == StateCommitting {
		for _, fn := range prepare {
			if err := fn(s); err != nil {
				s.mu.Lock()
				s.aborted = true
				s.state = StateAborting
				s.mu.Unlock()
				result = s.err(ErrCodeAborted, "commit vetoed", err)
				break
			}
		}
	} else if commit {
		result = s.err(ErrCodeAborted, "session was aborted", nil)
	}

	s.mu.Lock()
	done := make([]func(*Session), len(s.done))
	copy(done, s.done)
	s.mu.Unlock()
	for _, fn := range done {
		fn(s)
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.cancel()

	slog.Debug("session closed", "session", s.id, "aborted", s.Aborted(), "events", len(s.Events()))
	return result
}

func (s *Session) err(code ErrorCode, msg string, cause error) error {
	return &Error{Code: code, SessionID: s.id, Message: msg, Err: cause}
}
