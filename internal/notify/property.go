package notify

import (
	"fmt"
	"sync"

	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/session"
)

// RegisterForPropertyChanges opts obs into direct property-change
// callbacks. Registrations are reference counted per element; the returned
// subscription releases one reference.
func (m *Manager) RegisterForPropertyChanges(obs PropertyObserver) Subscription {
	id := obs.ID()

	m.mu.Lock()
	w, ok := m.watchers[id]
	if !ok {
		w = &watcher{}
		m.watchers[id] = w
	}
	w.refs++
	w.observer = obs
	m.mu.Unlock()

	var once sync.Once
	return &subscriptionFunc{fn: func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if cur, ok := m.watchers[id]; ok && cur == w {
				cur.refs--
				if cur.refs <= 0 {
					delete(m.watchers, id)
				}
			}
		})
	}}
}

// Watching returns the reference count of an element's registration.
func (m *Manager) Watching(obs PropertyObserver) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if w, ok := m.watchers[obs.ID()]; ok {
		return w.refs
	}
	return 0
}

// propertyChanged is the post-phase path for ChangePropertyValue. A change
// that nets out to the old value is skipped entirely. Otherwise it is
// broadcast once, then delivered directly to the changed element when it
// is registered and was touched by s.
func (m *Manager) propertyChanged(s *session.Session, ev event.ChangePropertyValue) {
	if ev.Unchanged() {
		return
	}
	publish(m, s, m.PropertyChanged, Change[event.ChangePropertyValue]{s, ev})

	m.mu.RLock()
	if len(m.watchers) == 0 {
		m.mu.RUnlock()
		return
	}
	w, ok := m.watchers[ev.ElementID]
	var obs PropertyObserver
	if ok {
		obs = w.observer
	}
	m.mu.RUnlock()

	if obs == nil || !s.IsTouched(ev.ElementID) {
		return
	}
	if err := direct(obs, s, ev); err != nil {
		m.observerFailed(s.Context(), s, "PropertyObserver", &ObserverError{Channel: "PropertyObserver", Err: err})
	}
}

func direct(obs PropertyObserver, s *session.Session, ev event.ChangePropertyValue) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	obs.OnPropertyChanged(s, ev)
	return nil
}
