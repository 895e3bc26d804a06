package graph

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/lattice/internal/diag"
	"github.com/roach88/lattice/internal/dispatch"
	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/journal"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/session"
	"github.com/roach88/lattice/internal/telemetry"
)

// Store is the registry of domain models.
type Store struct {
	sessions *session.Manager
	journal  *journal.Journal
	metrics  *telemetry.Pipeline
	maxDepth int

	dispatcher *dispatch.Dispatcher
	replayer   *dispatch.Dispatcher

	mu      sync.RWMutex
	domains map[string]*Domain
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithSessions sets the session manager.
func WithSessions(m *session.Manager) Option {
	return func(s *Store) { s.sessions = m }
}

// WithJournal journals every session the store closes.
func WithJournal(j *journal.Journal) Option {
	return func(s *Store) { s.journal = j }
}

// WithMetrics records pipeline counters on p.
func WithMetrics(p *telemetry.Pipeline) Option {
	return func(s *Store) { s.metrics = p }
}

// WithMaxSchemaDepth bounds super-class walks in new domains.
func WithMaxSchemaDepth(n int) Option {
	return func(s *Store) { s.maxDepth = n }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		domains:  make(map[string]*Domain),
		maxDepth: schema.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = session.NewManager()
	}
	s.dispatcher = dispatch.New(dispatch.WithResolver(s), dispatch.WithMetrics(s.metrics))
	s.replayer = dispatch.New(dispatch.WithResolver(s), dispatch.WithMetrics(s.metrics))
	s.replayer.Register(&replayHandlers{store: s})
	return s
}

// Sessions returns the session manager.
func (s *Store) Sessions() *session.Manager { return s.sessions }

// Dispatcher returns the dispatcher used by Dispatch. It starts empty.
func (s *Store) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// Journal returns the configured journal, or nil.
func (s *Store) Journal() *journal.Journal { return s.journal }

// CreateDomain adds a domain model. Names are unique ignoring case.
func (s *Store) CreateDomain(name string) (*Domain, error) {
	if name == "" || strings.ContainsAny(name, ": ") {
		return nil, fmt.Errorf("create domain: invalid name %q", name)
	}
	key := strings.ToLower(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("create domain %s: store is closed", name)
	}
	if _, exists := s.domains[key]; exists {
		return nil, &Error{Code: ErrCodeDomainExists, Domain: name, Message: "domain already exists"}
	}
	d := newDomain(s, name)
	s.domains[key] = d
	slog.Info("domain created", "domain", name)
	return d, nil
}

// GetDomainModel returns a domain by name, ignoring case.
func (s *Store) GetDomainModel(name string) (*Domain, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.domains[strings.ToLower(name)]
	return d, ok
}

// ResolveDomain returns the canonical name of a domain.
func (s *Store) ResolveDomain(name string) (string, bool) {
	d, ok := s.GetDomainModel(name)
	if !ok {
		return "", false
	}
	return d.name, true
}

// Domains returns every domain sorted by name.
func (s *Store) Domains() []*Domain {
	s.mu.RLock()
	out := make([]*Domain, 0, len(s.domains))
	for _, d := range s.domains {
		out = append(out, d)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Domain) int { return strings.Compare(a.name, b.name) })
	return out
}

// BeginSession opens a session wired to the commit path.
func (s *Store) BeginSession(ctx context.Context, opts session.Options) *session.Session {
	sess := s.sessions.Begin(ctx, opts)
	if opts.ReadOnly {
		return sess
	}
	sess.OnPrepare(s.prepare)
	sess.OnComplete(s.complete)
	return sess
}

// prepare runs Check constraints over the touched elements of every
// domain and vetoes the commit on errors that are not silenced.
func (s *Store) prepare(sess *session.Session) error {
	touched := make(map[*Domain][]schema.Element)
	var order []*Domain
	for _, id := range sess.TouchedElements() {
		d, ok := s.GetDomainModel(id.Domain)
		if !ok {
			continue
		}
		el, ok := d.Get(id)
		if !ok {
			continue
		}
		if _, seen := touched[d]; !seen {
			order = append(order, d)
		}
		touched[d] = append(touched[d], el)
	}

	combined := diag.NewResult()
	for _, d := range order {
		result := d.constraints.Check(sess.Context(), touched[d])
		if !result.Empty() {
			d.events.NotifyMessages(result)
		}
		combined.Merge(result)
	}
	sess.Diagnostics().Merge(combined)
	return combined.Err()
}

// complete rolls back aborted sessions, runs the post phase of every
// domain and journals the session.
func (s *Store) complete(sess *session.Session) {
	events := sess.Events()
	if sess.Aborted() {
		s.rollback(sess, events)
	}
	for _, d := range s.Domains() {
		d.forget(sess.ID())
		d.events.NotifySessionCompleted(sess)
	}
	// Relayed events were never applied here; their own session journals them.
	own := make([]event.Event, 0, len(events))
	for _, ev := range events {
		if ev.Meta().CorrelationID == sess.ID() {
			own = append(own, ev)
		}
	}
	if s.journal == nil || len(own) == 0 {
		return
	}
	status := journal.StatusCommitted
	if sess.Aborted() {
		status = journal.StatusAborted
	}
	if _, err := s.journal.WriteSession(context.WithoutCancel(sess.Context()), sess.ID(), status, own); err != nil {
		slog.Error("journal write failed", "session", sess.ID(), "error", err)
	}
}

// rollback reverts the in-memory effect of events, newest first.
func (s *Store) rollback(sess *session.Session, events []event.Event) {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		d, ok := s.GetDomainModel(ev.Meta().DomainModel)
		if !ok || ev.Meta().CorrelationID != sess.ID() {
			continue
		}
		r, ok := ev.(event.Reversible)
		if !ok {
			if event.IsBuiltin(ev.Kind()) {
				slog.Warn("schema change kept after rollback", "session", sess.ID(), "kind", string(ev.Kind()))
			}
			continue
		}
		if err := d.apply(r.Reverse(sess.ID())); err != nil {
			slog.Error("rollback failed", "session", sess.ID(), "kind", string(ev.Kind()), "error", err)
		}
	}
	slog.Debug("session rolled back", "session", sess.ID(), "events", len(events))
}

// Dispatch routes events through the store's dispatcher inside a new
// session and commits it.
func (s *Store) Dispatch(ctx context.Context, events []event.Event) error {
	return s.run(ctx, s.dispatcher, events)
}

// Apply reproduces events in this store inside a new session and commits
// it. Built-in events are re-executed against their domain; custom events
// are relayed into the session.
func (s *Store) Apply(ctx context.Context, events []event.Event) error {
	return s.run(ctx, s.replayer, events)
}

// Replay applies every committed session of j, one session per journaled
// session. Missing domains are created. A non-empty domain limits replay
// to that domain.
func (s *Store) Replay(ctx context.Context, j *journal.Journal, domain string) (int, error) {
	n := 0
	err := j.Replay(ctx, domain, func(sessionID string, events []event.Event) error {
		for _, ev := range events {
			name := ev.Meta().DomainModel
			if _, ok := s.GetDomainModel(name); ok {
				continue
			}
			if _, err := s.CreateDomain(name); err != nil {
				return err
			}
		}
		if err := s.Apply(ctx, events); err != nil {
			return err
		}
		n++
		slog.Debug("session replayed", "session", sessionID, "events", len(events))
		return nil
	})
	return n, err
}

func (s *Store) run(ctx context.Context, d *dispatch.Dispatcher, events []event.Event) error {
	sess := s.BeginSession(ctx, session.Options{})
	defer sess.Close()
	if err := d.HandleEvents(sess, events); err != nil {
		return err
	}
	return sess.Commit()
}

// ValidateAll runs Validate rules over every element of every domain, one
// goroutine per domain. Results are keyed by domain name.
func (s *Store) ValidateAll(ctx context.Context, category string) (map[string]*diag.Result, error) {
	domains := s.Domains()
	results := make([]*diag.Result, len(domains))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range domains {
		g.Go(func() error {
			results[i] = d.Validate(gctx, category)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	out := make(map[string]*diag.Result, len(domains))
	for i, d := range domains {
		out[d.name] = results[i]
	}
	return out, nil
}

// Close completes every domain's channels. The journal is left open; its
// owner closes it.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	domains := make([]*Domain, 0, len(s.domains))
	for _, d := range s.domains {
		domains = append(domains, d)
	}
	s.mu.Unlock()

	for _, d := range domains {
		d.events.Close()
	}
	return nil
}
