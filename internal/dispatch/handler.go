package dispatch

import (
	"fmt"

	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/session"
)

// anyKind keys handlers that accept every event.
const anyKind event.Kind = "*"

// Handler handles events of type T. domain is the resolved name of the
// domain model owning the event.
type Handler[T event.Event] interface {
	Handle(domain string, ev T) ([]session.Command, error)
}

// AnyHandler handles every event.
type AnyHandler = Handler[event.Event]

// Func adapts a function to Handler.
type Func[T event.Event] func(domain string, ev T) ([]session.Command, error)

// Handle calls f.
func (f Func[T]) Handle(domain string, ev T) ([]session.Command, error) { return f(domain, ev) }

type invocation func(domain string, ev event.Event) ([]session.Command, error)

// Capability is one "handles events of kind K" declaration.
type Capability struct {
	kind   event.Kind
	invoke invocation
}

// Kind returns the event kind the capability accepts.
func (c Capability) Kind() event.Kind { return c.kind }

// Handles declares that h accepts events of type T. The kind is taken
// from the zero value of T; Handler[event.Event] accepts every kind. Use
// HandlesKind for custom events whose kind is not fixed by their type;
// Handles panics for them.
func Handles[T event.Event](h Handler[T]) Capability {
	var zero T
	if any(zero) == nil {
		return HandlesKind(anyKind, h)
	}
	if zero.Kind() == "" {
		panic(fmt.Sprintf("dispatch: %T has no fixed kind, use HandlesKind", zero))
	}
	return HandlesKind(zero.Kind(), h)
}

// HandlesKind declares that h accepts events of the given kind that have
// type T. It panics on an empty kind.
func HandlesKind[T event.Event](kind event.Kind, h Handler[T]) Capability {
	if kind == "" {
		var zero T
		panic(fmt.Sprintf("dispatch: empty kind for %T handler", zero))
	}
	return Capability{
		kind: kind,
		invoke: func(domain string, ev event.Event) ([]session.Command, error) {
			typed, ok := ev.(T)
			if !ok {
				return nil, nil
			}
			return h.Handle(domain, typed)
		},
	}
}

// Capabilities is implemented by values registered with a Dispatcher.
type Capabilities interface {
	Capabilities() []Capability
}

// Set is a literal capability set.
type Set []Capability

// Capabilities returns s.
func (s Set) Capabilities() []Capability { return s }
