package constraint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/lattice/internal/diag"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/session"
	"github.com/roach88/lattice/internal/telemetry"
	"github.com/roach88/lattice/internal/value"
)

// Resolver walks super-class chains. *schema.Registry implements it.
type Resolver interface {
	Chain(id value.ID) []schema.Node
}

// entryList is the per-schema rule list. Readers load the slice without
// locking; writers copy it under mu.
type entryList struct {
	mu      sync.Mutex
	entries atomic.Pointer[[]*Entry]
}

func (l *entryList) load() []*Entry {
	if p := l.entries.Load(); p != nil {
		return *p
	}
	return nil
}

func (l *entryList) add(e *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.load()
	next := make([]*Entry, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, e)
	l.entries.Store(&next)
}

// Registry holds the rules of one domain.
type Registry struct {
	domain   string
	schemas  Resolver
	sessions *session.Manager
	metrics  *telemetry.Pipeline

	entries sync.Map // value.ID -> *entryList
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMetrics records diagnostic counts on p.
func WithMetrics(p *telemetry.Pipeline) RegistryOption {
	return func(r *Registry) { r.metrics = p }
}

// NewRegistry creates the rule registry for domain. sessions supplies a
// short-lived read-only session when evaluation runs outside one.
func NewRegistry(domain string, schemas Resolver, sessions *session.Manager, opts ...RegistryOption) *Registry {
	r := &Registry{domain: domain, schemas: schemas, sessions: sessions}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Domain returns the owning domain name.
func (r *Registry) Domain() string { return r.domain }

// Register appends e to the rules of schemaID. Duplicates are kept and
// both fire.
func (r *Registry) Register(schemaID value.ID, e Entry) error {
	if !schemaID.SameDomain(r.domain) {
		return &SchemaMismatchError{Domain: r.domain, SchemaID: schemaID}
	}
	if e.invoke == nil {
		return errUnbuilt
	}
	v, _ := r.entries.LoadOrStore(schemaID, &entryList{})
	v.(*entryList).add(&e)
	slog.Debug("constraint registered",
		"domain", r.domain,
		"schema", schemaID.String(),
		"rule", e.label(),
		"kind", e.Kind.String(),
	)
	return nil
}

// MustRegister is Register for static setup; it panics on error.
func (r *Registry) MustRegister(schemaID value.ID, e Entry) {
	if err := r.Register(schemaID, e); err != nil {
		panic(err)
	}
}

// Entries returns the rules registered directly on schemaID.
func (r *Registry) Entries(schemaID value.ID) []Entry {
	list := r.lookup(schemaID)
	out := make([]Entry, len(list))
	for i, e := range list {
		out[i] = *e
	}
	return out
}

func (r *Registry) lookup(schemaID value.ID) []*Entry {
	v, ok := r.entries.Load(schemaID)
	if !ok {
		return nil
	}
	return v.(*entryList).load()
}

// Check runs every Check rule over elements.
func (r *Registry) Check(ctx context.Context, elements []schema.Element) *diag.Result {
	return r.Evaluate(ctx, elements, KindCheck, "")
}

// Validate runs the Validate rules whose category matches, ignoring case.
// An empty category runs every Validate rule.
func (r *Registry) Validate(ctx context.Context, elements []schema.Element, category string) *diag.Result {
	return r.Evaluate(ctx, elements, KindValidate, category)
}

// Evaluate runs the rules of kind over elements in order.
//
// An empty batch returns an empty result without opening a session.
// Otherwise the active session in ctx is used, or a read-only one is
// opened for the duration of the call. Cancellation is polled between
// elements; the diagnostics produced so far are returned.
func (r *Registry) Evaluate(ctx context.Context, elements []schema.Element, kind Kind, category string) *diag.Result {
	result := diag.NewResult()
	if len(elements) == 0 {
		return result
	}

	s, release := r.sessions.Current(ctx)
	defer release()

	for i, el := range elements {
		if s.Cancelled() {
			slog.Debug("constraint evaluation cancelled",
				"domain", r.domain,
				"session", s.ID(),
				"evaluated", i,
				"remaining", len(elements)-i,
			)
			break
		}
		if el == nil {
			continue
		}
		r.evaluate(s, el, kind, category, result)
	}

	r.metrics.Diagnostics(s.Context(), diag.SeverityError.String(), len(result.Errors()))
	r.metrics.Diagnostics(s.Context(), diag.SeverityWarning.String(), len(result.Warnings()))
	return result
}

// evaluate fires the matching rules of every level of el's schema chain.
// The first failing rule ends evaluation of el.
func (r *Registry) evaluate(s *session.Session, el schema.Element, kind Kind, category string, result *diag.Result) {
	var current *Entry
	defer func() {
		if p := recover(); p != nil {
			r.fail(result, el, current, fmt.Errorf("panic: %v", p))
		}
	}()

	for _, node := range r.schemas.Chain(el.SchemaID()) {
		for _, e := range r.lookup(node.ID) {
			if !e.matches(kind, category) {
				continue
			}
			current = e
			c := &Context{session: s, element: el, entry: e, result: result}
			if err := e.invoke(c); err != nil {
				r.fail(result, el, e, err)
				return
			}
		}
	}
}

func (r *Registry) fail(result *diag.Result, el schema.Element, e *Entry, err error) {
	rule := "constraint"
	var category, property string
	if e != nil {
		rule = e.label()
		category = e.Category
		property = e.Property
	}
	cause := &ExecutionError{Rule: rule, Element: el.ID(), Err: err}
	slog.Error("constraint failed",
		"domain", r.domain,
		"rule", rule,
		"element", el.ID().String(),
		"error", err,
	)
	result.Add(diag.Message{
		Severity:     diag.SeverityError,
		Text:         cause.Error(),
		Category:     category,
		Element:      el.ID(),
		PropertyName: property,
		Cause:        cause,
	})
}
