package notify

import (
	"fmt"
	"sync"
)

// ObserverError records a subscriber that returned an error or panicked.
// Publish collects these; it never returns them to the publisher's caller.
type ObserverError struct {
	Channel string
	Err     error
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("observer on %s failed: %v", e.Channel, e.Err)
}

func (e *ObserverError) Unwrap() error {
	return e.Err
}

// Subscription cancels one subscriber. Close is idempotent.
type Subscription interface {
	Close()
}

type subscriptionFunc struct {
	once sync.Once
	fn   func()
}

func (s *subscriptionFunc) Close() { s.once.Do(s.fn) }

type subscriber[T any] struct {
	id int
	fn func(T) error
}

// Channel is an ordered observer list for one notification. Subscribers
// are called in subscription order. After Complete no further values are
// delivered and new subscriptions are ignored.
type Channel[T any] struct {
	name string

	mu        sync.RWMutex
	subs      []subscriber[T]
	nextID    int
	completed bool
}

// NewChannel creates an open channel.
func NewChannel[T any](name string) *Channel[T] {
	return &Channel[T]{name: name}
}

// Name returns the channel name.
func (c *Channel[T]) Name() string { return c.name }

// Subscribe adds fn to the observer list.
func (c *Channel[T]) Subscribe(fn func(T) error) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completed {
		return &subscriptionFunc{fn: func() {}}
	}
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscriber[T]{id: id, fn: fn})
	return &subscriptionFunc{fn: func() { c.unsubscribe(id) }}
}

func (c *Channel[T]) unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribers.
func (c *Channel[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Publish delivers v to every subscriber. A failing subscriber does not
// stop delivery to the rest; its failure is returned as an *ObserverError.
// delivered reports how many subscribers were called.
func (c *Channel[T]) Publish(v T) (delivered int, failures []error) {
	c.mu.RLock()
	if c.completed {
		c.mu.RUnlock()
		return 0, nil
	}
	subs := c.subs
	c.mu.RUnlock()

	for _, s := range subs {
		if err := call(s.fn, v); err != nil {
			failures = append(failures, &ObserverError{Channel: c.name, Err: err})
		}
	}
	return len(subs), failures
}

// Complete marks the channel completed and drops its subscribers.
func (c *Channel[T]) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = true
	c.subs = nil
}

// Completed reports whether Complete was called.
func (c *Channel[T]) Completed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.completed
}

func call[T any](fn func(T) error, v T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(v)
}
