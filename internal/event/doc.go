// Package event defines the domain events recorded by a session.
//
// Events are immutable messages: the mutation API builds one per state
// change, the session appends it to its ordered log, and the notification
// and dispatch layers consume it. Nothing here has side effects.
//
// Kinds that can be undone implement Reversible. Schema events do not, so
// asking a schema event for its inverse does not compile:
//
//	var ev event.AddSchemaEntity
//	ev.Reverse("c")   // compile error
//
// Constructors validate required identities and return *InvalidEventError
// when one is missing.
package event
