package dispatch

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/session"
	"github.com/roach88/lattice/internal/telemetry"
)

// Resolver maps an event's domain model name to the name of the domain
// that owns it.
type Resolver interface {
	ResolveDomain(name string) (string, bool)
}

type registration struct {
	filter string
	invoke invocation
}

type registrations struct {
	mu   sync.Mutex
	list atomic.Pointer[[]registration]
}

func (r *registrations) load() []registration {
	if p := r.list.Load(); p != nil {
		return *p
	}
	return nil
}

func (r *registrations) add(reg registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.load()
	next := make([]registration, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, reg)
	r.list.Store(&next)
}

// Dispatcher is the handler registry. Safe for concurrent use.
type Dispatcher struct {
	resolver Resolver
	metrics  *telemetry.Pipeline
	handlers sync.Map // event.Kind -> *registrations
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithResolver sets the domain resolver. Without one, an event's domain
// model name is used as is.
func WithResolver(r Resolver) Option {
	return func(d *Dispatcher) { d.resolver = r }
}

// WithMetrics records relays and dispatched commands on p.
func WithMetrics(p *telemetry.Pipeline) Option {
	return func(d *Dispatcher) { d.metrics = p }
}

// New creates an empty dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterOption configures one registration.
type RegisterOption func(*registration)

// WithDomainFilter limits the handler to events owned by domain, compared
// case-insensitively.
func WithDomainFilter(domain string) RegisterOption {
	return func(r *registration) { r.filter = domain }
}

// Register adds every capability h declares.
func (d *Dispatcher) Register(h Capabilities, opts ...RegisterOption) {
	var base registration
	for _, opt := range opts {
		opt(&base)
	}
	for _, c := range h.Capabilities() {
		if c.invoke == nil {
			continue
		}
		reg := base
		reg.invoke = c.invoke
		v, _ := d.handlers.LoadOrStore(c.kind, &registrations{})
		v.(*registrations).add(reg)
		slog.Debug("dispatch handler registered", "kind", string(c.kind), "filter", base.filter)
	}
}

// HasHandlers reports whether any handler accepts kind.
func (d *Dispatcher) HasHandlers(kind event.Kind) bool {
	return len(d.lookup(kind)) > 0 || len(d.lookup(anyKind)) > 0
}

func (d *Dispatcher) lookup(kind event.Kind) []registration {
	v, ok := d.handlers.Load(kind)
	if !ok {
		return nil
	}
	return v.(*registrations).load()
}

func (d *Dispatcher) resolve(name string) (string, bool) {
	if d.resolver == nil {
		return name, name != ""
	}
	return d.resolver.ResolveDomain(name)
}

// HandleEvent routes ev to the handlers registered for its kind and to the
// any-event handlers, executing the commands they return against s.
//
// When no handler matches, and ev was produced by a session other than s,
// and s is still open, ev is appended to s. An event whose domain cannot
// be resolved is treated as unhandled.
//
// Handler and command failures are returned as *DispatchError.
func (d *Dispatcher) HandleEvent(s *session.Session, ev event.Event) error {
	kind := ev.Kind()
	name := ev.Meta().DomainModel

	var matched []invocation
	domain, ok := d.resolve(name)
	if ok {
		for _, regs := range [][]registration{d.lookup(kind), d.lookup(anyKind)} {
			for _, reg := range regs {
				if reg.filter == "" || strings.EqualFold(reg.filter, domain) {
					matched = append(matched, reg.invoke)
				}
			}
		}
	} else {
		domain = name
	}

	if len(matched) == 0 {
		return d.relay(s, ev, domain)
	}

	for _, invoke := range matched {
		commands, err := invoke(domain, ev)
		if err != nil {
			return &DispatchError{Kind: kind, Domain: domain, Err: err}
		}
		if len(commands) == 0 {
			continue
		}
		if s == nil {
			return &DispatchError{Kind: kind, Domain: domain, Err: ErrNoSession}
		}
		d.metrics.CommandsDispatched(s.Context(), string(kind), len(commands))
		if err := s.Execute(commands...); err != nil {
			return &DispatchError{Kind: kind, Domain: domain, Err: err}
		}
	}
	return nil
}

// HandleEvents dispatches events in order and stops at the first failure.
func (d *Dispatcher) HandleEvents(s *session.Session, events []event.Event) error {
	for _, ev := range events {
		if err := d.HandleEvent(s, ev); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) relay(s *session.Session, ev event.Event, domain string) error {
	if s == nil || s.Disposing() || ev.Meta().CorrelationID == s.ID() {
		return nil
	}
	if _, err := s.Append(ev); err != nil {
		return &DispatchError{Kind: ev.Kind(), Domain: domain, Err: fmt.Errorf("relay: %w", err)}
	}
	d.metrics.Relayed(s.Context(), string(ev.Kind()))
	slog.Debug("event relayed",
		"kind", string(ev.Kind()),
		"from", ev.Meta().CorrelationID,
		"to", s.ID(),
	)
	return nil
}
