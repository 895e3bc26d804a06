package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/lattice/internal/compiler"
	"github.com/roach88/lattice/internal/diag"
	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/graph"
	"github.com/roach88/lattice/internal/journal"
	"github.com/roach88/lattice/internal/notify"
	"github.com/roach88/lattice/internal/session"
	"github.com/roach88/lattice/internal/telemetry"
	"github.com/roach88/lattice/internal/value"
)

// SessionPrefix prefixes the session ids handed out during a run:
// s-1, s-2, ... Model installation takes the first ids.
const SessionPrefix = "s"

// Option configures a run.
type Option func(*options)

type options struct {
	journal  *journal.Journal
	metrics  *telemetry.Pipeline
	timeout  time.Duration
	depth    int
	category string
}

// WithJournal records every completed session in j.
func WithJournal(j *journal.Journal) Option {
	return func(o *options) { o.journal = j }
}

// WithMetrics records pipeline metrics on p.
func WithMetrics(p *telemetry.Pipeline) Option {
	return func(o *options) { o.metrics = p }
}

// WithSessionTimeout bounds every step's session.
func WithSessionTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMaxSchemaDepth bounds super-class walks in the run's domains.
func WithMaxSchemaDepth(n int) Option {
	return func(o *options) { o.depth = n }
}

// WithDefaultCategory sets the category of validate steps that name none.
func WithDefaultCategory(category string) Option {
	return func(o *options) { o.category = category }
}

// Harness executes one scenario against a fresh store.
type Harness struct {
	store    *graph.Store
	scenario *Scenario
	domain   string
	timeout  time.Duration
	category string

	mu     sync.Mutex
	result *Result
	step   string
	subs   []notify.Subscription
}

// Run executes a scenario and returns the result.
//
// Each run uses a fresh store with sequential session ids so traces are
// reproducible. The returned error reports problems with the scenario
// itself (models that do not load, a cancelled context); failed steps and
// assertions are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	storeOpts := []graph.Option{
		graph.WithSessions(session.NewManager(
			session.WithIDGenerator(&session.SequenceGenerator{Prefix: SessionPrefix}),
		)),
	}
	if o.journal != nil {
		storeOpts = append(storeOpts, graph.WithJournal(o.journal))
	}
	if o.metrics != nil {
		storeOpts = append(storeOpts, graph.WithMetrics(o.metrics))
	}
	if o.depth > 0 {
		storeOpts = append(storeOpts, graph.WithMaxSchemaDepth(o.depth))
	}
	st := graph.NewStore(storeOpts...)
	defer st.Close()

	h := &Harness{
		store:    st,
		scenario: scenario,
		timeout:  o.timeout,
		category: o.category,
		result:   NewResult(),
	}
	defer h.unsubscribe()

	if err := h.install(ctx); err != nil {
		return nil, fmt.Errorf("failed to install models: %w", err)
	}

	for _, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := h.runStep(ctx, step); err != nil {
			return nil, fmt.Errorf("step %q: %w", step.Name, err)
		}
	}

	for _, msg := range h.evaluate(scenario.Assertions) {
		h.result.AddError(msg)
	}

	slog.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", h.result.Pass,
		"trace", len(h.result.Trace),
	)
	return h.result, nil
}

// install loads every model and installs it in its domain, one session per
// model.
func (h *Harness) install(ctx context.Context) error {
	for _, dir := range h.scenario.Models {
		res, err := compiler.LoadModel(dir)
		if err != nil {
			return err
		}
		d, ok := h.store.GetDomainModel(res.Model.Domain)
		if !ok {
			if d, err = h.store.CreateDomain(res.Model.Domain); err != nil {
				return err
			}
			h.observe(d)
		}

		s := h.store.BeginSession(ctx, session.Options{})
		if err := res.Model.Install(s, d); err != nil {
			s.Close()
			return fmt.Errorf("%s: %w", dir, err)
		}
		if err := s.Commit(); err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		if h.domain == "" {
			h.domain = d.Name()
		}
	}

	if h.scenario.Domain != "" {
		d, ok := h.store.GetDomainModel(h.scenario.Domain)
		if !ok {
			return fmt.Errorf("domain %q is not defined by any model", h.scenario.Domain)
		}
		h.domain = d.Name()
	}
	return nil
}

// observe records d's committed events and its diagnostics.
func (h *Harness) observe(d *graph.Domain) {
	ev := d.Events()
	track(h, ev.ElementAdded)
	track(h, ev.ElementRemoved)
	track(h, ev.RelationshipAdded)
	track(h, ev.RelationshipRemoved)
	track(h, ev.PropertyChanged)
	track(h, ev.PropertyRemoved)
	track(h, ev.CustomEventRaised)
	h.subs = append(h.subs, ev.OnErrors.Subscribe(func(r *diag.Result) error {
		for _, m := range r.Messages() {
			h.recordDiagnostic(m)
		}
		return nil
	}))
}

func track[E event.Event](h *Harness, ch *notify.Channel[notify.Change[E]]) {
	h.subs = append(h.subs, ch.Subscribe(func(c notify.Change[E]) error {
		h.recordEvent(c.Session, c.Event)
		return nil
	}))
}

func (h *Harness) unsubscribe() {
	for _, sub := range h.subs {
		sub.Close()
	}
}

func (h *Harness) runStep(ctx context.Context, step Step) error {
	h.mu.Lock()
	h.step = step.Name
	h.mu.Unlock()

	if step.Validate != nil {
		category := *step.Validate
		if category == "" {
			category = h.category
		}
		return h.validate(ctx, category)
	}

	s := h.store.BeginSession(ctx, session.Options{Timeout: h.timeout})
	failed := false
	for i, a := range step.Actions {
		err := h.apply(s, a)
		switch {
		case a.Error != "" && err == nil:
			h.result.AddError(fmt.Sprintf("step %q action %d (%s): expected error containing %q", step.Name, i, a.Op, a.Error))
		case a.Error != "" && !strings.Contains(err.Error(), a.Error):
			h.result.AddError(fmt.Sprintf("step %q action %d (%s): error %q does not contain %q", step.Name, i, a.Op, err, a.Error))
		case a.Error == "" && err != nil:
			h.result.AddError(fmt.Sprintf("step %q action %d (%s): %v", step.Name, i, a.Op, err))
			failed = true
		}
		if failed {
			break
		}
	}

	var err error
	if failed || step.Rollback {
		err = s.Rollback()
	} else {
		err = s.Commit()
	}
	status := StatusCommitted
	if s.Aborted() {
		status = StatusAborted
	}
	h.recordSession(s, status)

	want := step.Expect
	if want == "" {
		want = StatusCommitted
		if step.Rollback {
			want = StatusAborted
		}
	}
	if status != want {
		msg := fmt.Sprintf("step %q: expected session %s, got %s", step.Name, want, status)
		if err != nil {
			msg += ": " + err.Error()
		}
		h.result.AddError(msg)
	}
	return nil
}

func (h *Harness) validate(ctx context.Context, category string) error {
	results, err := h.store.ValidateAll(ctx, category)
	if err != nil {
		return err
	}
	var errs, warns int
	for _, r := range results {
		errs += len(r.Errors())
		warns += len(r.Warnings())
	}
	h.add(TraceEvent{
		Type:     EntryValidate,
		Category: category,
		Errors:   errs,
		Warnings: warns,
	})
	return nil
}

// apply performs one action in s.
func (h *Harness) apply(s *session.Session, a Action) error {
	name := a.Domain
	if name == "" {
		name = h.domain
	}
	d, ok := h.store.GetDomainModel(name)
	if !ok {
		return fmt.Errorf("unknown domain %q", name)
	}
	id := func(ref string) (value.ID, error) {
		if strings.Contains(ref, ":") {
			return value.ParseID(ref)
		}
		return value.NewID(d.Name(), ref), nil
	}
	schemaID := func() (value.ID, error) {
		sid, ok := d.Schema(a.Schema)
		if !ok {
			return value.ID{}, fmt.Errorf("unknown schema %q in domain %s", a.Schema, d.Name())
		}
		return sid, nil
	}

	switch a.Op {
	case OpCreate:
		sid, err := schemaID()
		if err != nil {
			return err
		}
		_, err = d.CreateEntity(s, sid, a.Key)
		return err
	case OpRelate:
		sid, err := schemaID()
		if err != nil {
			return err
		}
		start, err := id(a.Start)
		if err != nil {
			return err
		}
		end, err := id(a.End)
		if err != nil {
			return err
		}
		_, err = d.CreateRelationship(s, sid, start, end, a.Key)
		return err
	case OpRemove, OpUnrelate, OpSet, OpUnset:
		target, err := id(a.ID)
		if err != nil {
			return err
		}
		switch a.Op {
		case OpRemove:
			return d.RemoveEntity(s, target)
		case OpUnrelate:
			return d.RemoveRelationship(s, target)
		case OpSet:
			v, err := value.Of(a.Value)
			if err != nil {
				return fmt.Errorf("value of %s: %w", a.Property, err)
			}
			return d.SetProperty(s, target, a.Property, v)
		default:
			return d.RemoveProperty(s, target, a.Property)
		}
	case OpRaise:
		var data value.Map
		if a.Data != nil {
			v, err := value.Of(a.Data)
			if err != nil {
				return fmt.Errorf("data of %s: %w", a.Event, err)
			}
			data = v.(value.Map)
		}
		return d.Raise(s, a.Event, data)
	default:
		return fmt.Errorf("unknown op %q", a.Op)
	}
}

func (h *Harness) add(e TraceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e.Seq = int64(len(h.result.Trace) + 1)
	e.Step = h.step
	h.result.Trace = append(h.result.Trace, e)
}

func (h *Harness) recordEvent(s *session.Session, ev event.Event) {
	e := TraceEvent{Type: EntryEvent, Kind: string(ev.Kind())}
	if s != nil {
		e.Session = s.ID()
	}
	switch x := ev.(type) {
	case event.AddEntity:
		e.Element = x.ID.String()
	case event.RemoveEntity:
		e.Element = x.ID.String()
	case event.AddRelationship:
		e.Element = x.Link.ID.String()
	case event.RemoveRelationship:
		e.Element = x.Link.ID.String()
	case event.ChangePropertyValue:
		e.Element = x.ElementID.String()
		e.Property = x.PropertyName
		e.Value = x.Value
	case event.RemoveProperty:
		e.Element = x.ElementID.String()
		e.Property = x.PropertyName
	case event.Raised:
		if len(x.Data) > 0 {
			e.Value = x.Data
		}
	}
	h.add(e)
}

func (h *Harness) recordDiagnostic(m diag.Message) {
	e := TraceEvent{
		Type:     EntryDiagnostic,
		Severity: m.Severity.String(),
		Text:     m.Text,
		Category: m.Category,
		Property: m.PropertyName,
	}
	if !m.Element.IsZero() {
		e.Element = m.Element.String()
	}
	h.add(e)
}

func (h *Harness) recordSession(s *session.Session, status string) {
	h.add(TraceEvent{Type: EntrySession, Session: s.ID(), Status: status})
}
