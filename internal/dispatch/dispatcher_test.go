package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/session"
	"github.com/roach88/lattice/internal/testutil"
	"github.com/roach88/lattice/internal/value"
)

// domains resolves names case-insensitively to their canonical spelling.
type domains []string

func (d domains) ResolveDomain(name string) (string, bool) {
	for _, n := range d {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

func sessions(t *testing.T) (*session.Manager, *session.Session, *session.Session) {
	t.Helper()
	m := testutil.Sessions("s")
	origin := m.Begin(context.Background(), session.Options{})
	active := m.Begin(context.Background(), session.Options{})
	t.Cleanup(func() {
		_ = origin.Close()
		_ = active.Close()
	})
	return m, origin, active
}

func added(t *testing.T, s *session.Session, domain, key string) event.AddEntity {
	t.Helper()
	ev, err := event.NewAddEntity(s.Header(domain, ""), value.NewID(domain, key), value.NewID(domain, "Person"))
	require.NoError(t, err)
	return ev
}

func removed(t *testing.T, s *session.Session, domain, key string) event.RemoveEntity {
	t.Helper()
	ev, err := event.NewRemoveEntity(s.Header(domain, ""), value.NewID(domain, key), value.NewID(domain, "Person"))
	require.NoError(t, err)
	return ev
}

type recorder struct {
	calls []string
}

func (r *recorder) Capabilities() []Capability {
	return []Capability{
		Handles[event.AddEntity](Func[event.AddEntity](func(domain string, ev event.AddEntity) ([]session.Command, error) {
			r.calls = append(r.calls, "add:"+domain+":"+ev.ID.Key)
			return nil, nil
		})),
		Handles[event.RemoveEntity](Func[event.RemoveEntity](func(domain string, ev event.RemoveEntity) ([]session.Command, error) {
			r.calls = append(r.calls, "remove:"+domain+":"+ev.ID.Key)
			return nil, nil
		})),
	}
}

func TestHandleEventRoutesByKind(t *testing.T) {
	_, origin, active := sessions(t)
	d := New(WithResolver(domains{"hr"}))
	r := &recorder{}
	d.Register(r)

	var seen []event.Kind
	d.Register(Set{Handles[event.Event](Func[event.Event](func(_ string, ev event.Event) ([]session.Command, error) {
		seen = append(seen, ev.Kind())
		return nil, nil
	}))})

	require.NoError(t, d.HandleEvent(active, added(t, origin, "HR", "p1")))
	require.NoError(t, d.HandleEvent(active, removed(t, origin, "hr", "p2")))

	assert.Equal(t, []string{"add:hr:p1", "remove:hr:p2"}, r.calls, "handlers see the resolved domain name")
	assert.Equal(t, []event.Kind{event.KindAddEntity, event.KindRemoveEntity}, seen)
	assert.Empty(t, active.Events(), "handled events are not relayed")
	assert.True(t, d.HasHandlers(event.KindChangePropertyValue), "any-event handlers accept every kind")
}

func TestDomainFilter(t *testing.T) {
	_, origin, active := sessions(t)
	d := New(WithResolver(domains{"hr", "crm"}))

	var hr, crm int
	d.Register(Set{Handles[event.AddEntity](Func[event.AddEntity](func(string, event.AddEntity) ([]session.Command, error) {
		hr++
		return nil, nil
	}))}, WithDomainFilter("HR"))
	d.Register(Set{Handles[event.AddEntity](Func[event.AddEntity](func(string, event.AddEntity) ([]session.Command, error) {
		crm++
		return nil, nil
	}))}, WithDomainFilter("crm"))

	require.NoError(t, d.HandleEvent(active, added(t, origin, "hr", "p1")))
	assert.Equal(t, 1, hr)
	assert.Zero(t, crm)

	require.NoError(t, d.HandleEvent(active, added(t, origin, "crm", "c1")))
	assert.Equal(t, 1, hr)
	assert.Equal(t, 1, crm)
}

func TestRelayUnhandledForeignEvent(t *testing.T) {
	_, origin, active := sessions(t)
	d := New(WithResolver(domains{"hr"}))

	ev := added(t, origin, "hr", "p1")
	require.NoError(t, d.HandleEvent(active, ev))

	events := active.Events()
	require.Len(t, events, 1, "relayed exactly once")
	assert.Equal(t, ev, events[0])
	assert.Equal(t, origin.ID(), events[0].Meta().CorrelationID)
}

func TestNoRelayWhenHandlerMatches(t *testing.T) {
	_, origin, active := sessions(t)
	d := New(WithResolver(domains{"hr"}))
	called := 0
	d.Register(Set{Handles[event.AddEntity](Func[event.AddEntity](func(string, event.AddEntity) ([]session.Command, error) {
		called++
		return nil, nil
	}))})

	require.NoError(t, d.HandleEvent(active, added(t, origin, "hr", "p1")))
	assert.Equal(t, 1, called)
	assert.Empty(t, active.Events(), "a matching handler suppresses relay even without commands")
}

func TestNoRelay(t *testing.T) {
	t.Run("own event", func(t *testing.T) {
		_, _, active := sessions(t)
		d := New()
		require.NoError(t, d.HandleEvent(active, added(t, active, "hr", "p1")))
		assert.Empty(t, active.Events())
	})

	t.Run("disposing session", func(t *testing.T) {
		_, origin, active := sessions(t)
		d := New()
		ev := added(t, origin, "hr", "p1")
		var err error
		active.OnComplete(func(s *session.Session) {
			err = d.HandleEvent(s, ev)
		})
		require.NoError(t, active.Commit())
		require.NoError(t, err)
		assert.Empty(t, active.Events())
	})

	t.Run("filtered handler only", func(t *testing.T) {
		_, origin, active := sessions(t)
		d := New(WithResolver(domains{"hr"}))
		d.Register(&recorder{}, WithDomainFilter("crm"))
		require.NoError(t, d.HandleEvent(active, added(t, origin, "hr", "p1")))
		assert.Len(t, active.Events(), 1, "filtered-out handlers leave the event unhandled")
	})
}

func TestUnresolvedDomainIsUnhandled(t *testing.T) {
	_, origin, active := sessions(t)
	d := New(WithResolver(domains{"hr"}))
	r := &recorder{}
	d.Register(r)

	require.NoError(t, d.HandleEvent(active, added(t, origin, "inventory", "i1")))
	assert.Empty(t, r.calls)
	assert.Len(t, active.Events(), 1, "unresolved events are still relayed")
}

func TestCommandsExecuteAgainstSession(t *testing.T) {
	_, origin, active := sessions(t)
	d := New()

	var executedIn []string
	d.Register(Set{Handles[event.AddEntity](Func[event.AddEntity](func(domain string, ev event.AddEntity) ([]session.Command, error) {
		return []session.Command{
			session.CommandFunc(func(s *session.Session) error {
				executedIn = append(executedIn, s.ID())
				follow, err := event.NewAddEntity(s.Header("crm", ""), value.NewID("crm", ev.ID.Key), value.NewID("crm", "Customer"))
				if err != nil {
					return err
				}
				_, err = s.Append(follow)
				return err
			}),
		}, nil
	}))})

	require.NoError(t, d.HandleEvent(active, added(t, origin, "hr", "p1")))
	assert.Equal(t, []string{active.ID()}, executedIn)

	events := active.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].Meta().TopLevel, "events from dispatched commands are side effects")
}

func TestFailuresPropagate(t *testing.T) {
	_, origin, active := sessions(t)
	boom := errors.New("boom")

	t.Run("handler error", func(t *testing.T) {
		d := New()
		d.Register(Set{Handles[event.AddEntity](Func[event.AddEntity](func(string, event.AddEntity) ([]session.Command, error) {
			return nil, boom
		}))})
		err := d.HandleEvent(active, added(t, origin, "hr", "p1"))
		require.Error(t, err)
		assert.True(t, IsDispatchError(err))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("command error", func(t *testing.T) {
		d := New()
		d.Register(Set{Handles[event.AddEntity](Func[event.AddEntity](func(string, event.AddEntity) ([]session.Command, error) {
			return []session.Command{session.CommandFunc(func(*session.Session) error { return boom })}, nil
		}))})
		err := d.HandleEvent(active, added(t, origin, "hr", "p1"))
		var de *DispatchError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, event.KindAddEntity, de.Kind)
		assert.Equal(t, "hr", de.Domain)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("no session", func(t *testing.T) {
		d := New()
		d.Register(Set{Handles[event.AddEntity](Func[event.AddEntity](func(string, event.AddEntity) ([]session.Command, error) {
			return []session.Command{session.CommandFunc(func(*session.Session) error { return nil })}, nil
		}))})
		err := d.HandleEvent(nil, added(t, origin, "hr", "p1"))
		assert.ErrorIs(t, err, ErrNoSession)
	})
}

func TestHandlesKindForCustomEvents(t *testing.T) {
	_, origin, active := sessions(t)
	d := New()

	var audits []string
	d.Register(Set{HandlesKind[event.Raised]("Audit", Func[event.Raised](func(_ string, ev event.Raised) ([]session.Command, error) {
		audits = append(audits, value.Text(ev.Data["by"]))
		return nil, nil
	}))})

	audit, err := event.NewRaised(origin.Header("hr", ""), "Audit", value.Map{"by": value.String("ops")})
	require.NoError(t, err)
	other, err := event.NewRaised(origin.Header("hr", ""), "Ping", nil)
	require.NoError(t, err)

	require.NoError(t, d.HandleEvents(active, []event.Event{audit, other}))
	assert.Equal(t, []string{"ops"}, audits)
	require.Len(t, active.Events(), 1)
	assert.Equal(t, event.Kind("Ping"), active.Events()[0].Kind())
}

func TestHandlesRejectsKindlessTypes(t *testing.T) {
	noop := Func[event.Raised](func(string, event.Raised) ([]session.Command, error) { return nil, nil })

	assert.PanicsWithValue(t, "dispatch: event.Raised has no fixed kind, use HandlesKind", func() {
		Handles[event.Raised](noop)
	})
	assert.PanicsWithValue(t, "dispatch: empty kind for event.Raised handler", func() {
		HandlesKind[event.Raised]("", noop)
	})
	assert.Equal(t, event.KindAddEntity, Handles[event.AddEntity](Func[event.AddEntity](
		func(string, event.AddEntity) ([]session.Command, error) { return nil, nil })).Kind())
}
