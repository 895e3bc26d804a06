package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/diag"
	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/session"
	"github.com/roach88/lattice/internal/testutil"
	"github.com/roach88/lattice/internal/value"
)

var (
	p1 = value.NewID(testutil.Domain, "p1")
	p2 = value.NewID(testutil.Domain, "p2")
)

func begin(t *testing.T) *session.Session {
	t.Helper()
	s := testutil.Sessions("s").Begin(context.Background(), session.Options{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(t *testing.T, s *session.Session, ev event.Event, err error) event.Event {
	t.Helper()
	require.NoError(t, err)
	stored, err := s.Append(ev)
	require.NoError(t, err)
	return stored
}

func addEntity(t *testing.T, s *session.Session, id value.ID) event.Event {
	ev, err := event.NewAddEntity(s.Header(testutil.Domain, ""), id, testutil.Person)
	return record(t, s, ev, err)
}

func changeName(t *testing.T, s *session.Session, id value.ID, newValue, oldValue string) event.Event {
	ref := event.PropertyRef{
		ElementID:        id,
		SchemaID:         testutil.Person,
		PropertySchemaID: value.NewID(testutil.Domain, "Person.Name"),
		PropertyName:     "Name",
	}
	ev, err := event.NewChangePropertyValue(s.Header(testutil.Domain, ""), ref, value.String(newValue), value.String(oldValue))
	return record(t, s, ev, err)
}

// trace subscribes to every channel and records the names that fire.
func trace(m *Manager) *[]string {
	var fired []string
	on := func(name string) { fired = append(fired, name) }
	m.ElementAdding.Subscribe(func(Change[event.AddEntity]) error { on("ElementAdding"); return nil })
	m.ElementRemoving.Subscribe(func(Change[event.RemoveEntity]) error { on("ElementRemoving"); return nil })
	m.RelationshipAdding.Subscribe(func(Change[event.AddRelationship]) error { on("RelationshipAdding"); return nil })
	m.RelationshipRemoving.Subscribe(func(Change[event.RemoveRelationship]) error { on("RelationshipRemoving"); return nil })
	m.PropertyChanging.Subscribe(func(Change[event.ChangePropertyValue]) error { on("PropertyChanging"); return nil })
	m.PropertyRemoving.Subscribe(func(Change[event.RemoveProperty]) error { on("PropertyRemoving"); return nil })
	m.SchemaEntityAdding.Subscribe(func(Change[event.AddSchemaEntity]) error { on("SchemaEntityAdding"); return nil })
	m.CustomEventRaising.Subscribe(func(Change[event.Event]) error { on("CustomEventRaising"); return nil })
	m.ElementAdded.Subscribe(func(Change[event.AddEntity]) error { on("ElementAdded"); return nil })
	m.ElementRemoved.Subscribe(func(Change[event.RemoveEntity]) error { on("ElementRemoved"); return nil })
	m.PropertyChanged.Subscribe(func(Change[event.ChangePropertyValue]) error { on("PropertyChanged"); return nil })
	m.PropertyRemoved.Subscribe(func(Change[event.RemoveProperty]) error { on("PropertyRemoved"); return nil })
	m.CustomEventRaised.Subscribe(func(Change[event.Event]) error { on("CustomEventRaised"); return nil })
	m.SessionCompleting.Subscribe(func(*session.Session) error { on("SessionCompleting"); return nil })
	m.SessionCompleted.Subscribe(func(*session.Session) error { on("SessionCompleted"); return nil })
	return &fired
}

func TestNotifyEventRoutesToPreChannels(t *testing.T) {
	s := begin(t)
	h := s.Header(testutil.Domain, "")
	ref := event.PropertyRef{ElementID: p1, SchemaID: testutil.Person, PropertySchemaID: value.NewID("hr", "Person.Name"), PropertyName: "Name"}

	add, _ := event.NewAddEntity(h, p1, testutil.Person)
	remove, _ := event.NewRemoveEntity(h, p1, testutil.Person)
	change, _ := event.NewChangePropertyValue(h, ref, value.String("a"), value.Null{})
	removeProp, _ := event.NewRemoveProperty(h, ref, value.String("a"))
	schemaAdd, _ := event.NewAddSchemaEntity(h, testutil.Team, testutil.Team)
	custom, _ := event.NewRaised(h, "Audit", value.Map{"by": value.String("ops")})

	tests := []struct {
		ev   event.Event
		want string
	}{
		{add, "ElementAdding"},
		{remove, "ElementRemoving"},
		{change, "PropertyChanging"},
		{removeProp, "PropertyRemoving"},
		{schemaAdd, "SchemaEntityAdding"},
		{custom, "CustomEventRaising"},
	}
	for _, tt := range tests {
		t.Run(string(tt.ev.Kind()), func(t *testing.T) {
			m := NewManager(testutil.Domain)
			fired := trace(m)
			m.NotifyEvent(s, tt.ev)
			assert.Equal(t, []string{tt.want}, *fired)
		})
	}
}

func TestNotifyEventIgnoresOtherDomains(t *testing.T) {
	s := begin(t)
	m := NewManager(testutil.Domain)
	fired := trace(m)

	foreign, err := event.NewAddEntity(s.Header("crm", ""), value.NewID("crm", "c1"), value.NewID("crm", "Customer"))
	require.NoError(t, err)
	m.NotifyEvent(s, foreign)

	overlay, err := event.NewAddEntity(s.Header(testutil.Domain, "overlay"), p1, testutil.Person)
	require.NoError(t, err)
	m.NotifyEvent(s, overlay)

	assert.Empty(t, *fired)

	om := NewManager(testutil.Domain, WithExtension("overlay"))
	ofired := trace(om)
	om.NotifyEvent(s, overlay)
	assert.Equal(t, []string{"ElementAdding"}, *ofired)
}

func TestNotifySessionCompletedReplaysInOrder(t *testing.T) {
	s := begin(t)
	m := NewManager(testutil.Domain)
	fired := trace(m)

	addEntity(t, s, p1)
	changeName(t, s, p1, "Ada", "")
	custom, err := event.NewRaised(s.Header(testutil.Domain, ""), "Audit", nil)
	record(t, s, custom, err)

	m.NotifySessionCompleted(s)
	assert.Equal(t, []string{
		"SessionCompleting",
		"ElementAdded",
		"PropertyChanged",
		"CustomEventRaised",
		"SessionCompleted",
	}, *fired)
}

func TestNotifySessionCompletedWithoutEvents(t *testing.T) {
	s := begin(t)
	m := NewManager(testutil.Domain)
	fired := trace(m)

	_, err := s.Append(mustForeign(t, s))
	require.NoError(t, err)

	m.NotifySessionCompleted(s)
	assert.Empty(t, *fired, "sessions with no events for the domain are silent")
}

func mustForeign(t *testing.T, s *session.Session) event.Event {
	ev, err := event.NewAddEntity(s.Header("crm", ""), value.NewID("crm", "c1"), value.NewID("crm", "Customer"))
	require.NoError(t, err)
	return ev
}

func TestAbortedSessionSuppressesPostEvents(t *testing.T) {
	s := begin(t)
	m := NewManager(testutil.Domain)
	fired := trace(m)

	addEntity(t, s, p1)
	s.Abort()

	m.NotifySessionCompleted(s)
	assert.Equal(t, []string{"SessionCompleting", "SessionCompleted"}, *fired)
}

func TestObserverIsolation(t *testing.T) {
	s := begin(t)
	m := NewManager(testutil.Domain)

	var second []value.ID
	m.ElementAdded.Subscribe(func(Change[event.AddEntity]) error { return errors.New("first observer broke") })
	m.ElementAdded.Subscribe(func(c Change[event.AddEntity]) error {
		second = append(second, c.Event.ID)
		return nil
	})
	completed := false
	m.SessionCompleted.Subscribe(func(*session.Session) error { completed = true; return nil })

	addEntity(t, s, p1)
	require.NotPanics(t, func() { m.NotifySessionCompleted(s) })

	assert.Equal(t, []value.ID{p1}, second)
	assert.True(t, completed)
	errs := s.Diagnostics().Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "ElementAdded", errs[0].Category)
	assert.Contains(t, errs[0].Text, "first observer broke")
}

func TestPreObserverPanicDoesNotEscape(t *testing.T) {
	s := begin(t)
	m := NewManager(testutil.Domain)
	m.ElementAdding.Subscribe(func(Change[event.AddEntity]) error { panic("boom") })

	ev, err := event.NewAddEntity(s.Header(testutil.Domain, ""), p1, testutil.Person)
	require.NoError(t, err)
	assert.NotPanics(t, func() { m.NotifyEvent(s, ev) })
	assert.True(t, s.Diagnostics().HasErrors())

	ev2, err := event.NewAddEntity(s.Header(testutil.Domain, ""), p2, testutil.Person)
	require.NoError(t, err)
	_, err = s.Append(ev2)
	assert.NoError(t, err, "the session keeps accepting mutations")
}

type watched struct {
	id    value.ID
	calls []event.ChangePropertyValue
}

func (w *watched) ID() value.ID { return w.id }
func (w *watched) OnPropertyChanged(_ *session.Session, ev event.ChangePropertyValue) {
	w.calls = append(w.calls, ev)
}

func TestNoOpPropertyChangeSuppressed(t *testing.T) {
	s := begin(t)
	m := NewManager(testutil.Domain)
	fired := trace(m)
	w := &watched{id: p1}
	defer m.RegisterForPropertyChanges(w).Close()

	s.Touch(p1)
	changeName(t, s, p1, "Ada", "Ada")

	m.NotifySessionCompleted(s)
	assert.Equal(t, []string{"SessionCompleting", "SessionCompleted"}, *fired)
	assert.Empty(t, w.calls)
	assert.Len(t, s.Events(), 1, "the no-op change is still recorded")
}

func TestDirectPropertyCallback(t *testing.T) {
	s := begin(t)
	m := NewManager(testutil.Domain)
	touched := &watched{id: p1}
	untouched := &watched{id: p2}
	m.RegisterForPropertyChanges(touched)
	m.RegisterForPropertyChanges(untouched)

	broadcasts := 0
	m.PropertyChanged.Subscribe(func(Change[event.ChangePropertyValue]) error { broadcasts++; return nil })

	s.Touch(p1)
	changeName(t, s, p1, "Ada", "")
	changeName(t, s, p2, "Bob", "")

	m.NotifySessionCompleted(s)
	assert.Equal(t, 2, broadcasts)
	require.Len(t, touched.calls, 1)
	assert.Equal(t, value.String("Ada"), touched.calls[0].Value)
	assert.Empty(t, untouched.calls, "only touched elements get direct callbacks")
}

func TestRegisterForPropertyChangesRefcount(t *testing.T) {
	m := NewManager(testutil.Domain)
	w := &watched{id: p1}

	g1 := m.RegisterForPropertyChanges(w)
	g2 := m.RegisterForPropertyChanges(w)
	assert.Equal(t, 2, m.Watching(w))

	g1.Close()
	g1.Close()
	assert.Equal(t, 1, m.Watching(w), "a guard releases once")

	g2.Close()
	assert.Zero(t, m.Watching(w))

	s := begin(t)
	s.Touch(p1)
	changeName(t, s, p1, "Ada", "")
	m.NotifySessionCompleted(s)
	assert.Empty(t, w.calls)
}

func TestDirectCallbackPanicIsLogged(t *testing.T) {
	s := begin(t)
	m := NewManager(testutil.Domain)
	m.RegisterForPropertyChanges(panicky{id: p1})

	s.Touch(p1)
	changeName(t, s, p1, "Ada", "")
	assert.NotPanics(t, func() { m.NotifySessionCompleted(s) })
	require.Len(t, s.Diagnostics().Errors(), 1)
	assert.Equal(t, "PropertyObserver", s.Diagnostics().Errors()[0].Category)
}

type panicky struct{ id value.ID }

func (p panicky) ID() value.ID { return p.id }
func (panicky) OnPropertyChanged(*session.Session, event.ChangePropertyValue) {
	panic("observer bug")
}

func TestNotifyMessages(t *testing.T) {
	m := NewManager(testutil.Domain)
	var got []*diag.Result
	m.OnErrors.Subscribe(func(r *diag.Result) error { got = append(got, r); return nil })
	m.OnErrors.Subscribe(func(*diag.Result) error { return errors.New("ignored") })

	r := diag.NewResult(diag.Message{Severity: diag.SeverityError, Text: "bad"})
	assert.NotPanics(t, func() { m.NotifyMessages(r) })
	m.NotifyMessages(nil)
	require.Len(t, got, 1)
	assert.Same(t, r, got[0])
}

func TestCloseCompletesEveryChannel(t *testing.T) {
	m := NewManager(testutil.Domain)
	fired := trace(m)
	w := &watched{id: p1}
	m.RegisterForPropertyChanges(w)

	m.Close()
	assert.True(t, m.ElementAdded.Completed())
	assert.True(t, m.OnErrors.Completed())
	assert.True(t, m.SessionCompleted.Completed())
	assert.Zero(t, m.Watching(w))

	s := begin(t)
	addEntity(t, s, p1)
	m.NotifySessionCompleted(s)
	assert.Empty(t, *fired)
}
