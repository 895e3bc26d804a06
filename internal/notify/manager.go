package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/lattice/internal/diag"
	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/session"
	"github.com/roach88/lattice/internal/telemetry"
	"github.com/roach88/lattice/internal/value"
)

// Change is the payload of an event channel.
type Change[E event.Event] struct {
	Session *session.Session
	Event   E
}

// PropertyObserver receives direct property-change callbacks once
// registered with RegisterForPropertyChanges.
type PropertyObserver interface {
	ID() value.ID
	OnPropertyChanged(s *session.Session, ev event.ChangePropertyValue)
}

type completer interface {
	Name() string
	Complete()
}

// Manager is the event bus of one domain (and optional extension).
type Manager struct {
	domain    string
	extension string
	metrics   *telemetry.Pipeline

	ElementAdding            *Channel[Change[event.AddEntity]]
	ElementRemoving          *Channel[Change[event.RemoveEntity]]
	RelationshipAdding       *Channel[Change[event.AddRelationship]]
	RelationshipRemoving     *Channel[Change[event.RemoveRelationship]]
	PropertyChanging         *Channel[Change[event.ChangePropertyValue]]
	PropertyRemoving         *Channel[Change[event.RemoveProperty]]
	SchemaEntityAdding       *Channel[Change[event.AddSchemaEntity]]
	SchemaRelationshipAdding *Channel[Change[event.AddSchemaRelationship]]
	SchemaPropertyAdding     *Channel[Change[event.AddSchemaProperty]]
	CustomEventRaising       *Channel[Change[event.Event]]

	ElementAdded            *Channel[Change[event.AddEntity]]
	ElementRemoved          *Channel[Change[event.RemoveEntity]]
	RelationshipAdded       *Channel[Change[event.AddRelationship]]
	RelationshipRemoved     *Channel[Change[event.RemoveRelationship]]
	PropertyChanged         *Channel[Change[event.ChangePropertyValue]]
	PropertyRemoved         *Channel[Change[event.RemoveProperty]]
	SchemaEntityAdded       *Channel[Change[event.AddSchemaEntity]]
	SchemaRelationshipAdded *Channel[Change[event.AddSchemaRelationship]]
	SchemaPropertyAdded     *Channel[Change[event.AddSchemaProperty]]
	CustomEventRaised       *Channel[Change[event.Event]]

	SessionCompleting *Channel[*session.Session]
	SessionCompleted  *Channel[*session.Session]
	OnErrors          *Channel[*diag.Result]

	channels []completer

	mu       sync.RWMutex
	watchers map[value.ID]*watcher
}

type watcher struct {
	refs     int
	observer PropertyObserver
}

// Option configures a Manager.
type Option func(*Manager)

// WithExtension scopes the manager to an extension of its domain.
func WithExtension(name string) Option {
	return func(m *Manager) { m.extension = name }
}

// WithMetrics records deliveries and failures on p.
func WithMetrics(p *telemetry.Pipeline) Option {
	return func(m *Manager) { m.metrics = p }
}

// NewManager creates the bus for domain.
func NewManager(domain string, opts ...Option) *Manager {
	m := &Manager{domain: domain, watchers: make(map[value.ID]*watcher)}
	for _, opt := range opts {
		opt(m)
	}

	m.ElementAdding = newChannel[Change[event.AddEntity]](m, "ElementAdding")
	m.ElementRemoving = newChannel[Change[event.RemoveEntity]](m, "ElementRemoving")
	m.RelationshipAdding = newChannel[Change[event.AddRelationship]](m, "RelationshipAdding")
	m.RelationshipRemoving = newChannel[Change[event.RemoveRelationship]](m, "RelationshipRemoving")
	m.PropertyChanging = newChannel[Change[event.ChangePropertyValue]](m, "PropertyChanging")
	m.PropertyRemoving = newChannel[Change[event.RemoveProperty]](m, "PropertyRemoving")
	m.SchemaEntityAdding = newChannel[Change[event.AddSchemaEntity]](m, "SchemaEntityAdding")
	m.SchemaRelationshipAdding = newChannel[Change[event.AddSchemaRelationship]](m, "SchemaRelationshipAdding")
	m.SchemaPropertyAdding = newChannel[Change[event.AddSchemaProperty]](m, "SchemaPropertyAdding")
	m.CustomEventRaising = newChannel[Change[event.Event]](m, "CustomEventRaising")

	m.ElementAdded = newChannel[Change[event.AddEntity]](m, "ElementAdded")
	m.ElementRemoved = newChannel[Change[event.RemoveEntity]](m, "ElementRemoved")
	m.RelationshipAdded = newChannel[Change[event.AddRelationship]](m, "RelationshipAdded")
	m.RelationshipRemoved = newChannel[Change[event.RemoveRelationship]](m, "RelationshipRemoved")
	m.PropertyChanged = newChannel[Change[event.ChangePropertyValue]](m, "PropertyChanged")
	m.PropertyRemoved = newChannel[Change[event.RemoveProperty]](m, "PropertyRemoved")
	m.SchemaEntityAdded = newChannel[Change[event.AddSchemaEntity]](m, "SchemaEntityAdded")
	m.SchemaRelationshipAdded = newChannel[Change[event.AddSchemaRelationship]](m, "SchemaRelationshipAdded")
	m.SchemaPropertyAdded = newChannel[Change[event.AddSchemaProperty]](m, "SchemaPropertyAdded")
	m.CustomEventRaised = newChannel[Change[event.Event]](m, "CustomEventRaised")

	m.SessionCompleting = newChannel[*session.Session](m, "SessionCompleting")
	m.SessionCompleted = newChannel[*session.Session](m, "SessionCompleted")
	m.OnErrors = newChannel[*diag.Result](m, "OnErrors")
	return m
}

func newChannel[T any](m *Manager, name string) *Channel[T] {
	c := NewChannel[T](name)
	m.channels = append(m.channels, c)
	return c
}

// Domain returns the owning domain name.
func (m *Manager) Domain() string { return m.domain }

// Extension returns the owning extension name, empty for a base domain.
func (m *Manager) Extension() string { return m.extension }

// NotifyEvent publishes ev on its pre-phase channel. Events of other
// domains are ignored. Observer failures are logged against s.
func (m *Manager) NotifyEvent(s *session.Session, ev event.Event) {
	if ev == nil || !event.BelongsTo(ev, m.domain, m.extension) {
		return
	}
	switch e := ev.(type) {
	case event.AddEntity:
		publish(m, s, m.ElementAdding, Change[event.AddEntity]{s, e})
	case event.RemoveEntity:
		publish(m, s, m.ElementRemoving, Change[event.RemoveEntity]{s, e})
	case event.AddRelationship:
		publish(m, s, m.RelationshipAdding, Change[event.AddRelationship]{s, e})
	case event.RemoveRelationship:
		publish(m, s, m.RelationshipRemoving, Change[event.RemoveRelationship]{s, e})
	case event.ChangePropertyValue:
		publish(m, s, m.PropertyChanging, Change[event.ChangePropertyValue]{s, e})
	case event.RemoveProperty:
		publish(m, s, m.PropertyRemoving, Change[event.RemoveProperty]{s, e})
	case event.AddSchemaEntity:
		publish(m, s, m.SchemaEntityAdding, Change[event.AddSchemaEntity]{s, e})
	case event.AddSchemaRelationship:
		publish(m, s, m.SchemaRelationshipAdding, Change[event.AddSchemaRelationship]{s, e})
	case event.AddSchemaProperty:
		publish(m, s, m.SchemaPropertyAdding, Change[event.AddSchemaProperty]{s, e})
	default:
		publish(m, s, m.CustomEventRaising, Change[event.Event]{s, ev})
	}
}

// NotifySessionCompleted runs the post phase for s. It does nothing when
// s recorded no events for this domain. Otherwise SessionCompleting fires
// first and SessionCompleted last; in between, a committed session's
// events are replayed in order on the "...ed" channels. Aborted sessions
// skip the replay.
func (m *Manager) NotifySessionCompleted(s *session.Session) {
	events := s.EventsFor(m.domain, m.extension)
	if len(events) == 0 {
		return
	}

	publish(m, s, m.SessionCompleting, s)
	if !s.Aborted() {
		for _, ev := range events {
			m.replay(s, ev)
		}
	}
	publish(m, s, m.SessionCompleted, s)
}

func (m *Manager) replay(s *session.Session, ev event.Event) {
	switch e := ev.(type) {
	case event.AddEntity:
		publish(m, s, m.ElementAdded, Change[event.AddEntity]{s, e})
	case event.RemoveEntity:
		publish(m, s, m.ElementRemoved, Change[event.RemoveEntity]{s, e})
	case event.AddRelationship:
		publish(m, s, m.RelationshipAdded, Change[event.AddRelationship]{s, e})
	case event.RemoveRelationship:
		publish(m, s, m.RelationshipRemoved, Change[event.RemoveRelationship]{s, e})
	case event.ChangePropertyValue:
		m.propertyChanged(s, e)
	case event.RemoveProperty:
		publish(m, s, m.PropertyRemoved, Change[event.RemoveProperty]{s, e})
	case event.AddSchemaEntity:
		publish(m, s, m.SchemaEntityAdded, Change[event.AddSchemaEntity]{s, e})
	case event.AddSchemaRelationship:
		publish(m, s, m.SchemaRelationshipAdded, Change[event.AddSchemaRelationship]{s, e})
	case event.AddSchemaProperty:
		publish(m, s, m.SchemaPropertyAdded, Change[event.AddSchemaProperty]{s, e})
	default:
		publish(m, s, m.CustomEventRaised, Change[event.Event]{s, ev})
	}
}

// NotifyMessages broadcasts a constraint result on OnErrors.
func (m *Manager) NotifyMessages(result *diag.Result) {
	if result == nil {
		return
	}
	publish(m, nil, m.OnErrors, result)
}

// Close completes every channel and drops property watchers. Each channel
// is completed independently.
func (m *Manager) Close() {
	for _, c := range m.channels {
		m.complete(c)
	}
	m.mu.Lock()
	m.watchers = make(map[value.ID]*watcher)
	m.mu.Unlock()
	slog.Debug("event manager closed", "domain", m.domain, "extension", m.extension)
}

func (m *Manager) complete(c completer) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("completing channel failed", "domain", m.domain, "channel", c.Name(), "panic", p)
		}
	}()
	c.Complete()
}

func publish[T any](m *Manager, s *session.Session, c *Channel[T], v T) {
	n, failures := c.Publish(v)
	ctx := context.Background()
	if s != nil {
		ctx = s.Context()
	}
	if n > 0 {
		m.metrics.EventNotified(ctx, m.domain, c.Name())
	}
	for _, err := range failures {
		m.observerFailed(ctx, s, c.Name(), err)
	}
}

func (m *Manager) observerFailed(ctx context.Context, s *session.Session, channel string, err error) {
	m.metrics.ObserverFailed(ctx, channel)
	if s == nil {
		slog.Error("observer failed", "domain", m.domain, "channel", channel, "error", err)
		return
	}
	s.Log(diag.Message{
		Severity: diag.SeverityError,
		Text:     err.Error(),
		Category: channel,
		Cause:    err,
	})
}
