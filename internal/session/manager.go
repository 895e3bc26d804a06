package session

import (
	"context"
	"time"

	"github.com/roach88/lattice/internal/diag"
	"github.com/roach88/lattice/internal/value"
)

type contextKey struct{}

// WithSession returns a context carrying s as the active session.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the active session carried by ctx. Closed sessions
// are not returned.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(contextKey{}).(*Session)
	if !ok || s == nil || s.State() == StateClosed {
		return nil, false
	}
	return s, true
}

// Options configure a new session.
type Options struct {
	// ReadOnly sessions reject Append.
	ReadOnly bool
	// Timeout cancels the session context after the given duration.
	Timeout time.Duration
}

// Manager opens sessions sharing one clock and id generator.
type Manager struct {
	clock *Clock
	ids   IDGenerator
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIDGenerator sets the session id generator.
func WithIDGenerator(g IDGenerator) ManagerOption {
	return func(m *Manager) { m.ids = g }
}

// WithClock sets the version clock.
func WithClock(c *Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// NewManager creates a Manager using UUIDv7 ids by default.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{clock: NewClock(), ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Clock returns the shared version clock.
func (m *Manager) Clock() *Clock { return m.clock }

// Begin opens a session. The returned session's Context carries it.
func (m *Manager) Begin(ctx context.Context, opts Options) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		sctx   context.Context
		cancel context.CancelFunc
	)
	if opts.Timeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		sctx, cancel = context.WithCancel(ctx)
	}

	s := &Session{
		id:          m.ids.Generate(),
		cancel:      cancel,
		clock:       m.clock,
		readOnly:    opts.ReadOnly,
		touched:     make(map[value.ID]int),
		diagnostics: &diag.Result{},
	}
	s.ctx = WithSession(sctx, s)
	return s
}

// Current returns the active session in ctx, or opens a read-only one.
// The release function closes the session only when Current opened it.
func (m *Manager) Current(ctx context.Context) (*Session, func()) {
	if s, ok := FromContext(ctx); ok && !s.Aborted() {
		return s, func() {}
	}
	s := m.Begin(ctx, Options{ReadOnly: true})
	return s, func() { _ = s.Close() }
}
